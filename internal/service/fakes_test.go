package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"boxbluebook/internal/alerting"
	"boxbluebook/internal/apperr"
	"boxbluebook/internal/catalog"
	"boxbluebook/internal/competitor"
	"boxbluebook/internal/pricing"
	"boxbluebook/internal/scrape"
	"boxbluebook/internal/storage"
)

type memStore struct {
	mu sync.Mutex

	txs      []pricing.Transaction
	aggs     map[string]pricing.PriceAggregate
	cigars   map[uuid.UUID]catalog.Cigar
	links    map[string]uuid.UUID
	listings map[uuid.UUID][]scrape.ScrapedProduct
	alerts   []storage.DealAlert
	trends   []pricing.TrendCandidate

	competitors []string
	upserts     int
	locks       []int64
	unlocks     int
	lockBusy    bool
	failAggFor  uuid.UUID
	prunedTo    []time.Time
}

func newMemStore() *memStore {
	return &memStore{
		aggs:     make(map[string]pricing.PriceAggregate),
		cigars:   make(map[uuid.UUID]catalog.Cigar),
		links:    make(map[string]uuid.UUID),
		listings: make(map[uuid.UUID][]scrape.ScrapedProduct),
	}
}

func aggKey(id uuid.UUID, pt pricing.PeriodType, start time.Time) string {
	return fmt.Sprintf("%s/%s/%d", id, pt, start.Unix())
}

func (m *memStore) VerifiedTransactions(_ context.Context, cigarID uuid.UUID, from, to time.Time) ([]pricing.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]pricing.Transaction, 0)
	for _, tx := range m.txs {
		if tx.CigarID == cigarID && tx.Verified && !tx.TransactionDate.Before(from) && tx.TransactionDate.Before(to) {
			out = append(out, tx)
		}
	}
	return out, nil
}

func (m *memStore) AggregateAt(_ context.Context, cigarID uuid.UUID, pt pricing.PeriodType, start time.Time) (*pricing.PriceAggregate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if agg, ok := m.aggs[aggKey(cigarID, pt, start)]; ok {
		return &agg, nil
	}
	return nil, nil
}

func (m *memStore) latest(cigarID uuid.UUID, pt pricing.PeriodType, notAfter *time.Time) *pricing.PriceAggregate {
	var best *pricing.PriceAggregate
	for _, agg := range m.aggs {
		if agg.CigarID != cigarID || agg.PeriodType != pt {
			continue
		}
		if notAfter != nil && agg.PeriodStart.After(*notAfter) {
			continue
		}
		if best == nil || agg.PeriodStart.After(best.PeriodStart) {
			a := agg
			best = &a
		}
	}
	return best
}

func (m *memStore) BaselineAggregate(_ context.Context, cigarID uuid.UUID, pt pricing.PeriodType, notAfter time.Time) (*pricing.PriceAggregate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.latest(cigarID, pt, &notAfter), nil
}

func (m *memStore) LatestAggregate(_ context.Context, cigarID uuid.UUID, pt pricing.PeriodType) (*pricing.PriceAggregate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.latest(cigarID, pt, nil), nil
}

func (m *memStore) UpsertAggregate(_ context.Context, agg pricing.PriceAggregate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if agg.CigarID == m.failAggFor {
		return fmt.Errorf("upsert failed")
	}
	m.aggs[aggKey(agg.CigarID, agg.PeriodType, agg.PeriodStart)] = agg
	m.upserts++
	return nil
}

func (m *memStore) ListAggregates(_ context.Context, cigarID uuid.UUID, q pricing.HistoryQuery) ([]pricing.PriceAggregate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]pricing.PriceAggregate, 0)
	for _, agg := range m.aggs {
		if agg.CigarID == cigarID && agg.PeriodType == q.PeriodType {
			out = append(out, agg)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PeriodStart.After(out[j].PeriodStart) })
	if len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (m *memStore) TrendCandidates(_ context.Context, since time.Time) ([]pricing.TrendCandidate, error) {
	out := make([]pricing.TrendCandidate, 0)
	for _, c := range m.trends {
		if !c.PeriodStart.Before(since) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *memStore) CigarsWithTransactionsSince(_ context.Context, since time.Time) ([]uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := make(map[uuid.UUID]bool)
	ids := make([]uuid.UUID, 0)
	for _, tx := range m.txs {
		if tx.Verified && !tx.TransactionDate.Before(since) && !seen[tx.CigarID] {
			seen[tx.CigarID] = true
			ids = append(ids, tx.CigarID)
		}
	}
	return ids, nil
}

func (m *memStore) TryAdvisoryLock(_ context.Context, key int64) (func(), bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lockBusy {
		return nil, false, nil
	}
	m.locks = append(m.locks, key)
	return m.release, true, nil
}

func (m *memStore) WithTxLock(_ context.Context, key int64, fn func(tx storage.AggregationTx) error) error {
	m.mu.Lock()
	m.locks = append(m.locks, key)
	m.mu.Unlock()
	defer m.release()
	return fn(m)
}

func (m *memStore) release() {
	m.mu.Lock()
	m.unlocks++
	m.mu.Unlock()
}

func (m *memStore) GetCigar(_ context.Context, id uuid.UUID) (catalog.Cigar, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.cigars[id]
	if !ok {
		return catalog.Cigar{}, fmt.Errorf("get cigar %s: %w", id, apperr.ErrNotFound)
	}
	return c, nil
}

func (m *memStore) RelatedCigars(_ context.Context, c catalog.Cigar, limit int) ([]catalog.Cigar, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]catalog.Cigar, 0)
	for _, other := range m.cigars {
		if other.LineID == c.LineID && other.ID != c.ID && len(out) < limit {
			out = append(out, other)
		}
	}
	return out, nil
}

func (m *memStore) EnsureCompetitors(_ context.Context, competitors []competitor.Competitor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range competitors {
		m.competitors = append(m.competitors, c.Code)
	}
	return nil
}

func (m *memStore) UpsertListing(_ context.Context, cigarID uuid.UUID, p scrape.ScrapedProduct) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listings[cigarID] = append(m.listings[cigarID], p)
	m.links[p.CompetitorCode+"|"+p.URL] = cigarID
	return nil
}

func (m *memStore) CigarIDForURL(_ context.Context, code, url string) (uuid.UUID, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.links[code+"|"+url]
	return id, ok, nil
}

func (m *memStore) InsertDealAlert(_ context.Context, alert storage.DealAlert) (storage.DealAlert, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.alerts {
		if a.CigarID == alert.CigarID && a.Competitor == alert.Competitor && a.ScrapedAt.Equal(alert.ScrapedAt) {
			return alert, false, nil
		}
	}
	alert.ID = int64(len(m.alerts) + 1)
	alert.CreatedAt = time.Now().UTC()
	m.alerts = append(m.alerts, alert)
	return alert, true, nil
}

func (m *memStore) RecentDealAlert(_ context.Context, cigarID uuid.UUID, competitor string, since time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.alerts {
		if a.CigarID == cigarID && a.Competitor == competitor && !a.CreatedAt.Before(since) {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) ListRecentDealAlerts(_ context.Context, limit int) ([]storage.DealAlert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit > len(m.alerts) {
		limit = len(m.alerts)
	}
	return append([]storage.DealAlert(nil), m.alerts[:limit]...), nil
}

func (m *memStore) DeleteDealAlertsBefore(_ context.Context, olderThan time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prunedTo = append(m.prunedTo, olderThan)
	kept := m.alerts[:0]
	for _, a := range m.alerts {
		if !a.CreatedAt.Before(olderThan) {
			kept = append(kept, a)
		}
	}
	m.alerts = kept
	return nil
}

type recordingNotifier struct {
	mu    sync.Mutex
	notes []alerting.DealNotification
}

func (r *recordingNotifier) Notify(_ context.Context, note alerting.DealNotification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, note)
	return nil
}

type stubProvider struct {
	lists map[string][]scrape.RawProduct
	fail  map[string]error
}

func (s *stubProvider) FetchProduct(_ context.Context, url string) (*scrape.RawProduct, error) {
	return &scrape.RawProduct{Name: "Single Robusto", Price: dec("11.00"), Availability: "InStock", URL: url}, nil
}

func (s *stubProvider) FetchProductList(_ context.Context, url string) ([]scrape.RawProduct, error) {
	for host, err := range s.fail {
		if strings.Contains(url, host) {
			return nil, err
		}
	}
	for host, list := range s.lists {
		if strings.Contains(url, host) {
			return list, nil
		}
	}
	return nil, nil
}

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func verifiedTx(cigarID uuid.UUID, price string, at time.Time) pricing.Transaction {
	return pricing.Transaction{
		ID:              uuid.New(),
		CigarID:         cigarID,
		Source:          pricing.SourceEbay,
		Type:            pricing.TypeSale,
		Quantity:        1,
		UnitPrice:       decimal.RequireFromString(price),
		TotalPrice:      decimal.RequireFromString(price),
		Condition:       pricing.ConditionNewSealed,
		TransactionDate: at,
		Verified:        true,
	}
}

var (
	_ AggregationStore       = (*memStore)(nil)
	_ MarketStore            = (*memStore)(nil)
	_ ListingWriter          = (*memStore)(nil)
	_ DealMarket             = (*memStore)(nil)
	_ ActiveCigars           = (*memStore)(nil)
	_ storage.DealAlertStore = (*memStore)(nil)
	_ storage.AdvisoryLocker = (*memStore)(nil)
	_ storage.TxLocker       = (*memStore)(nil)
	_ AlertPruner            = (*memStore)(nil)
)
