package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"boxbluebook/internal/apperr"
	"boxbluebook/internal/catalog"
	"boxbluebook/internal/compare"
	"boxbluebook/internal/competitor"
	"boxbluebook/internal/pricing"
	"boxbluebook/internal/scrape"
	"boxbluebook/internal/search"
	"boxbluebook/internal/service"
)

var knownCigar = uuid.MustParse("7b0e8f8e-2f7a-4d3c-9a51-0c6f3a3d2b11")

type fakeComparer struct{}

func (fakeComparer) Compare(_ context.Context, id uuid.UUID) (*compare.PriceComparison, error) {
	if id != knownCigar {
		return nil, fmt.Errorf("cigar %s: %w", id, apperr.ErrNotFound)
	}
	return &compare.PriceComparison{Cigar: catalog.Identity{ID: id, Name: "Padron 1964 Exclusivo"}}, nil
}

type fakeAggregator struct {
	gotPT    pricing.PeriodType
	gotStart time.Time
	empty    bool
}

func (f *fakeAggregator) Run(_ context.Context, id uuid.UUID, pt pricing.PeriodType, at time.Time) (*pricing.PriceAggregate, error) {
	f.gotPT, f.gotStart = pt, at
	if f.empty {
		return nil, nil
	}
	return &pricing.PriceAggregate{CigarID: id, PeriodType: pt, PeriodStart: pt.Bounds(at).Start, CMV: decimal.NewFromInt(20)}, nil
}

type fakeScraper struct{ err error }

func (f fakeScraper) ScrapeCatalog(_ context.Context, code string) ([]scrape.ScrapedProduct, error) {
	if f.err != nil {
		return nil, f.err
	}
	if code != "famous" {
		return nil, fmt.Errorf("%w: %s", competitor.ErrUnknownCompetitor, code)
	}
	return []scrape.ScrapedProduct{{Name: "Box of 20", CompetitorCode: code}}, nil
}

type fakeMarket struct {
	gotHistory pricing.HistoryQuery
	gotTrends  pricing.TrendQuery
}

func (f *fakeMarket) CigarDetail(_ context.Context, id uuid.UUID) (service.CigarDetail, error) {
	if id != knownCigar {
		return service.CigarDetail{}, apperr.ErrNotFound
	}
	return service.CigarDetail{Cigar: catalog.Cigar{ID: id, FullName: "Padron 1964 Exclusivo"}, Related: []catalog.Cigar{}}, nil
}

func (f *fakeMarket) History(_ context.Context, id uuid.UUID, q pricing.HistoryQuery) (service.History, error) {
	f.gotHistory = q
	return service.History{CigarID: id, PeriodType: q.PeriodType, Data: []pricing.HistoryPoint{}}, nil
}

func (f *fakeMarket) Trends(_ context.Context, q pricing.TrendQuery) (service.Trends, error) {
	f.gotTrends = q
	return service.Trends{Period: q.Window, Direction: q.Direction, Trends: []pricing.TrendCandidate{}}, nil
}

type fakeCatalog struct{ gotCount bool }

func (f *fakeCatalog) ListCigars(_ context.Context, flt catalog.Filter) (catalog.Page, error) {
	return catalog.NewPage([]catalog.Cigar{{ID: knownCigar}}, 1, flt), nil
}

func (f *fakeCatalog) ListBrands(_ context.Context, includeCount bool) ([]catalog.Brand, error) {
	f.gotCount = includeCount
	return []catalog.Brand{{Name: "Padron"}}, nil
}

type fakeSearcher struct{}

func (fakeSearcher) Autocomplete(_ context.Context, q string, limit int, typ search.ResultType) (search.Response, error) {
	return search.Response{Results: []search.Result{{ID: "1", Type: search.TypeBrand, Name: q}}, Source: search.SourceCatalog}, nil
}

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

type fakeIndex bool

func (f fakeIndex) Healthy(context.Context) bool { return bool(f) }

func newTestServer(deps Deps) http.Handler {
	return New(Options{Mode: gin.TestMode}, deps, zerolog.Nop()).Handler()
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestCompareRoute(t *testing.T) {
	h := newTestServer(Deps{Comparer: fakeComparer{}})

	cases := []struct {
		target string
		status int
	}{
		{"/api/prices/compare/" + knownCigar.String(), http.StatusOK},
		{"/api/prices/compare/not-a-uuid", http.StatusBadRequest},
		{"/api/prices/compare/" + uuid.NewString(), http.StatusNotFound},
	}
	for _, tc := range cases {
		if rec := do(t, h, http.MethodGet, tc.target, ""); rec.Code != tc.status {
			t.Fatalf("%s: expected %d, got %d (%s)", tc.target, tc.status, rec.Code, rec.Body.String())
		}
	}
}

func TestMissingStoreAnswers503(t *testing.T) {
	h := newTestServer(Deps{})
	for _, target := range []string{
		"/api/prices/compare/" + knownCigar.String(),
		"/api/cigars",
		"/api/cigars/" + knownCigar.String(),
		"/api/market/trends",
		"/api/brands",
	} {
		if rec := do(t, h, http.MethodGet, target, ""); rec.Code != http.StatusServiceUnavailable {
			t.Fatalf("%s: expected 503, got %d", target, rec.Code)
		}
	}
}

func TestAggregateRoute(t *testing.T) {
	agg := &fakeAggregator{}
	h := newTestServer(Deps{Aggregator: agg})

	body := fmt.Sprintf(`{"cigar_id":%q,"period_type":"weekly","period_start":"2024-05-06"}`, knownCigar)
	rec := do(t, h, http.MethodPost, "/api/aggregates", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if agg.gotPT != pricing.PeriodWeekly || !agg.gotStart.Equal(time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected call %s %s", agg.gotPT, agg.gotStart)
	}

	agg.empty = true
	if rec := do(t, h, http.MethodPost, "/api/aggregates", body); rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 for no-op, got %d", rec.Code)
	}

	bad := fmt.Sprintf(`{"cigar_id":%q,"period_type":"hourly","period_start":"2024-05-06"}`, knownCigar)
	if rec := do(t, h, http.MethodPost, "/api/aggregates", bad); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad period type, got %d", rec.Code)
	}
	if rec := do(t, h, http.MethodPost, "/api/aggregates", `{"cigar_id":"x"}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing fields, got %d", rec.Code)
	}
}

func TestScrapeRoute(t *testing.T) {
	h := newTestServer(Deps{Scraper: fakeScraper{}})
	rec := do(t, h, http.MethodPost, "/api/scrape/famous", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if body := decodeBody(t, rec); body["count"] != float64(1) {
		t.Fatalf("unexpected body %v", body)
	}
	if rec := do(t, h, http.MethodPost, "/api/scrape/bogus", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}

	down := newTestServer(Deps{Scraper: fakeScraper{err: fmt.Errorf("zyte: %w", apperr.ErrUpstreamUnavailable)}})
	if rec := do(t, down, http.MethodPost, "/api/scrape/famous", ""); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	noKey := newTestServer(Deps{Scraper: fakeScraper{err: fmt.Errorf("key: %w", apperr.ErrConfigurationMissing)}})
	if rec := do(t, noKey, http.MethodPost, "/api/scrape/famous", ""); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestCatalogAndMarketRoutes(t *testing.T) {
	market := &fakeMarket{}
	cat := &fakeCatalog{}
	h := newTestServer(Deps{Market: market, Catalog: cat, Searcher: fakeSearcher{}})

	if rec := do(t, h, http.MethodGet, "/api/cigars?page=2&limit=5&sort_by=price&sort_order=desc", ""); rec.Code != http.StatusOK {
		t.Fatalf("list cigars: %d %s", rec.Code, rec.Body.String())
	}
	if rec := do(t, h, http.MethodGet, "/api/cigars?page=abc", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad page, got %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/api/cigars/"+knownCigar.String(), ""); rec.Code != http.StatusOK {
		t.Fatalf("detail: %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/api/cigars/"+uuid.NewString(), ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 detail, got %d", rec.Code)
	}

	rec := do(t, h, http.MethodGet, "/api/cigars/"+knownCigar.String()+"/prices?period=weekly&start_date=2024-01-01&limit=10", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("history: %d %s", rec.Code, rec.Body.String())
	}
	if market.gotHistory.PeriodType != pricing.PeriodWeekly || market.gotHistory.Limit != 10 || market.gotHistory.From == nil || market.gotHistory.To != nil {
		t.Fatalf("unexpected history query %+v", market.gotHistory)
	}
	if rec := do(t, h, http.MethodGet, "/api/cigars/"+knownCigar.String()+"/prices?start_date=yesterday", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad date, got %d", rec.Code)
	}

	if rec := do(t, h, http.MethodGet, "/api/market/trends?period=7d&direction=down&limit=500", ""); rec.Code != http.StatusOK {
		t.Fatalf("trends: %d", rec.Code)
	}
	if market.gotTrends.Window != pricing.Window7d || market.gotTrends.Direction != pricing.DirectionDown || market.gotTrends.Limit != pricing.MaxTrendLimit {
		t.Fatalf("unexpected trend query %+v", market.gotTrends)
	}
	if rec := do(t, h, http.MethodGet, "/api/market/trends?period=2w", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad window, got %d", rec.Code)
	}

	if rec := do(t, h, http.MethodGet, "/api/brands?include_count=true", ""); rec.Code != http.StatusOK || !cat.gotCount {
		t.Fatalf("brands: %d count=%v", rec.Code, cat.gotCount)
	}

	rec = do(t, h, http.MethodGet, "/api/search?q=pad&type=brand", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("search: %d", rec.Code)
	}
	if body := decodeBody(t, rec); body["source"] != search.SourceCatalog {
		t.Fatalf("unexpected search body %v", body)
	}
	if rec := do(t, h, http.MethodGet, "/api/search?q=pad&type=shop", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad type, got %d", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	rec := do(t, newTestServer(Deps{Database: fakePinger{}, Index: fakeIndex(false)}), http.MethodGet, "/health", "")
	body := decodeBody(t, rec)
	if rec.Code != http.StatusOK || body["database"] != "ok" || body["search"] != "unavailable" {
		t.Fatalf("unexpected health %d %v", rec.Code, body)
	}

	rec = do(t, newTestServer(Deps{Database: fakePinger{err: errors.New("down")}}), http.MethodGet, "/health", "")
	body = decodeBody(t, rec)
	if rec.Code != http.StatusServiceUnavailable || body["status"] != "degraded" || body["search"] != "disabled" {
		t.Fatalf("unexpected degraded health %d %v", rec.Code, body)
	}
}

func TestInternalErrorsAreMasked(t *testing.T) {
	h := newTestServer(Deps{Catalog: failingCatalog{}})
	rec := do(t, h, http.MethodGet, "/api/brands", "")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if body := decodeBody(t, rec); body["error"] != http.StatusText(http.StatusInternalServerError) {
		t.Fatalf("expected masked error, got %v", body)
	}
}

type failingCatalog struct{}

func (failingCatalog) ListCigars(context.Context, catalog.Filter) (catalog.Page, error) {
	return catalog.Page{}, errors.New("pq: connection reset")
}

func (failingCatalog) ListBrands(context.Context, bool) ([]catalog.Brand, error) {
	return nil, errors.New("pq: connection reset")
}
