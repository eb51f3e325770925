package search

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"boxbluebook/internal/apperr"
	"boxbluebook/internal/catalog"
	"boxbluebook/internal/pricing"
)

func TestMeiliClient(t *testing.T) {
	var (
		searchAuth, adminAuth string
		searchBody            map[string]any
		settingsSeen          int
		docsSeen              []map[string]any
		deletedIDs            []string
	)
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"available"}`))
	})
	mux.HandleFunc("/indexes/brands/search", func(w http.ResponseWriter, r *http.Request) {
		searchAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&searchBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"hits":[{"id":"b1","name":"Padron","country_of_origin":"Nicaragua"}]}`))
	})
	mux.HandleFunc("/indexes/cigars/settings", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch {
			t.Fatalf("settings method = %s", r.Method)
		}
		settingsSeen++
		w.WriteHeader(http.StatusAccepted)
	})
	mux.HandleFunc("/indexes/cigars/documents", func(w http.ResponseWriter, r *http.Request) {
		adminAuth = r.Header.Get("Authorization")
		if r.URL.Query().Get("primaryKey") != "id" {
			t.Fatalf("primaryKey = %q", r.URL.Query().Get("primaryKey"))
		}
		var batch []map[string]any
		_ = json.NewDecoder(r.Body).Decode(&batch)
		docsSeen = append(docsSeen, batch...)
		w.WriteHeader(http.StatusAccepted)
	})
	mux.HandleFunc("/indexes/cigars/documents/delete-batch", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.Header.Get("Authorization") != "Bearer admin" {
			t.Fatalf("delete-batch %s auth %q", r.Method, r.Header.Get("Authorization"))
		}
		var ids []string
		_ = json.NewDecoder(r.Body).Decode(&ids)
		deletedIDs = append(deletedIDs, ids...)
		w.WriteHeader(http.StatusAccepted)
	})
	mux.HandleFunc("/indexes/lines/search", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	m := NewMeiliClient(MeiliOptions{Host: srv.URL + "/", SearchKey: "search", AdminKey: "admin"}, zerolog.Nop())
	ctx := context.Background()

	if !m.Healthy(ctx) {
		t.Fatal("expected healthy")
	}
	hits, err := m.Search(ctx, IndexBrands, "pad", 3)
	if err != nil || len(hits) != 1 || hits[0].CountryOfOrigin != "Nicaragua" {
		t.Fatalf("search = %+v, %v", hits, err)
	}
	if searchAuth != "Bearer search" || searchBody["q"] != "pad" || searchBody["limit"] != float64(3) {
		t.Fatalf("auth = %q body = %v", searchAuth, searchBody)
	}
	if _, err := m.Search(ctx, IndexLines, "pad", 3); !errors.Is(err, apperr.ErrUpstreamUnavailable) {
		t.Fatalf("expected upstream unavailable, got %v", err)
	}

	ix := NewIndexer(m, 2, zerolog.Nop())
	if err := ix.writer.UpdateSettings(ctx, IndexCigars, IndexSettings[IndexCigars]); err != nil || settingsSeen != 1 {
		t.Fatalf("settings: %v (%d)", err, settingsSeen)
	}
	cmv := decimal.RequireFromString("14.25")
	docs := []CigarDocument{
		NewCigarDocument(catalog.Cigar{ID: uuid.New(), FullName: "A", BrandName: "Padron"}, &pricing.PriceAggregate{CMV: cmv, Confidence: pricing.ConfidenceHigh}),
		NewCigarDocument(catalog.Cigar{ID: uuid.New(), FullName: "B"}, nil),
		NewCigarDocument(catalog.Cigar{ID: uuid.New(), FullName: "C"}, nil),
	}
	if err := ix.IndexCigars(ctx, docs); err != nil {
		t.Fatalf("index cigars: %v", err)
	}
	if adminAuth != "Bearer admin" || len(docsSeen) != 3 {
		t.Fatalf("auth = %q docs = %d", adminAuth, len(docsSeen))
	}
	if docsSeen[0]["brand_name"] != "Padron" || docsSeen[0]["cmv_confidence"] != "high" || docsSeen[1]["cmv"] != nil {
		t.Fatalf("document = %v / %v", docsSeen[0], docsSeen[1])
	}

	retired := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	if err := ix.RemoveCigars(ctx, retired); err != nil {
		t.Fatalf("remove cigars: %v", err)
	}
	if len(deletedIDs) != 3 || deletedIDs[2] != retired[2].String() {
		t.Fatalf("deleted = %v", deletedIDs)
	}
}

func TestMeiliClientUnconfigured(t *testing.T) {
	m := NewMeiliClient(MeiliOptions{}, zerolog.Nop())
	if m != nil {
		t.Fatal("expected nil client without host")
	}
	if m.Healthy(context.Background()) {
		t.Fatal("nil client must not report healthy")
	}
}

func TestMeiliClientHealthyIgnoresContentType(t *testing.T) {
	cases := []struct {
		name        string
		contentType string
		status      int
		body        string
		want        bool
	}{
		{name: "no content type", status: http.StatusOK, body: `{"status":"available"}`, want: true},
		{name: "text plain", contentType: "text/plain", status: http.StatusOK, body: `{"status":"available"}`, want: true},
		{name: "json", contentType: "application/json", status: http.StatusOK, body: `{"status":"available"}`, want: true},
		{name: "other status", contentType: "application/json", status: http.StatusOK, body: `{"status":"starting"}`, want: false},
		{name: "server error", status: http.StatusServiceUnavailable, body: `{"status":"available"}`, want: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if tc.contentType != "" {
					w.Header().Set("Content-Type", tc.contentType)
				}
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			m := NewMeiliClient(MeiliOptions{Host: srv.URL}, zerolog.Nop())
			if got := m.Healthy(context.Background()); got != tc.want {
				t.Fatalf("healthy = %v, want %v", got, tc.want)
			}
		})
	}
}
