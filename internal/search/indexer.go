package search

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"boxbluebook/internal/catalog"
	"boxbluebook/internal/pricing"
)

// CigarDocument is a cigar flattened for the search index, with its current market value inlined.
type CigarDocument struct {
	catalog.Cigar
	CMV            *decimal.Decimal   `json:"cmv"`
	PriceChangePct *decimal.Decimal   `json:"price_change_pct"`
	CMVConfidence  pricing.Confidence `json:"cmv_confidence,omitempty"`
}

// BrandDocument is a brand as indexed.
type BrandDocument struct {
	ID              uuid.UUID `json:"id"`
	Name            string    `json:"name"`
	CountryOfOrigin string    `json:"country_of_origin,omitempty"`
	LogoURL         string    `json:"logo_url,omitempty"`
	IsActive        bool      `json:"is_active"`
	CigarCount      int       `json:"cigar_count"`
}

// LineDocument is a line as indexed.
type LineDocument struct {
	ID               uuid.UUID `json:"id"`
	BrandID          uuid.UUID `json:"brand_id"`
	Name             string    `json:"name"`
	BrandName        string    `json:"brand_name"`
	Strength         string    `json:"strength,omitempty"`
	IsLimitedEdition bool      `json:"is_limited_edition"`
	IsDiscontinued   bool      `json:"is_discontinued"`
}

// NewCigarDocument flattens a cigar and its latest aggregate (which may be nil).
func NewCigarDocument(c catalog.Cigar, current *pricing.PriceAggregate) CigarDocument {
	doc := CigarDocument{Cigar: c}
	if current != nil {
		cmv := current.CMV
		doc.CMV = &cmv
		doc.PriceChangePct = current.PriceChangePct
		doc.CMVConfidence = current.Confidence
	}
	return doc
}

// NewBrandDocument flattens a brand.
func NewBrandDocument(b catalog.Brand) BrandDocument {
	doc := BrandDocument{ID: b.ID, Name: b.Name, CountryOfOrigin: deref(b.Country), LogoURL: deref(b.LogoURL), IsActive: b.IsActive}
	if b.CigarCount != nil {
		doc.CigarCount = *b.CigarCount
	}
	return doc
}

// NewLineDocument flattens a line.
func NewLineDocument(l catalog.Line) LineDocument {
	return LineDocument{
		ID:               l.ID,
		BrandID:          l.BrandID,
		Name:             l.Name,
		BrandName:        l.BrandName,
		Strength:         deref(l.Strength),
		IsLimitedEdition: l.IsLimitedEdition,
		IsDiscontinued:   l.IsDiscontinued,
	}
}

// IndexSettings are the managed settings of each index.
var IndexSettings = map[string]Settings{
	IndexCigars: {
		SearchableAttributes: []string{"full_name", "brand_name", "line_name", "vitola", "wrapper"},
		FilterableAttributes: []string{"brand_id", "line_id", "strength", "is_limited_edition", "is_discontinued", "ring_gauge", "length_inches", "cmv_confidence"},
		SortableAttributes:   []string{"full_name", "cmv", "price_change_pct"},
		RankingRules:         []string{"words", "typo", "proximity", "attribute", "sort", "exactness"},
	},
	IndexBrands: {
		SearchableAttributes: []string{"name", "country_of_origin"},
		FilterableAttributes: []string{"country_of_origin", "is_active"},
		SortableAttributes:   []string{"name", "cigar_count"},
	},
	IndexLines: {
		SearchableAttributes: []string{"name", "brand_name"},
		FilterableAttributes: []string{"brand_id", "strength", "is_limited_edition", "is_discontinued"},
		SortableAttributes:   []string{"name", "brand_name"},
	},
}

// Writer is the write side of the search engine.
type Writer interface {
	UpdateSettings(ctx context.Context, index string, settings Settings) error
	AddDocuments(ctx context.Context, index string, docs any) error
	DeleteDocuments(ctx context.Context, index string, ids []string) error
}

// Indexer pushes catalog documents into the search engine in batches.
type Indexer struct {
	writer    Writer
	batchSize int
	logger    zerolog.Logger
}

// NewIndexer constructs an indexer; batchSize defaults to 500.
func NewIndexer(writer Writer, batchSize int, logger zerolog.Logger) *Indexer {
	if batchSize <= 0 {
		batchSize = 500
	}
	return &Indexer{writer: writer, batchSize: batchSize, logger: logger.With().Str("component", "indexer").Logger()}
}

// Configure applies IndexSettings to every index.
func (ix *Indexer) Configure(ctx context.Context) error {
	for _, name := range []string{IndexCigars, IndexBrands, IndexLines} {
		if err := ix.writer.UpdateSettings(ctx, name, IndexSettings[name]); err != nil {
			return fmt.Errorf("configure %s index: %w", name, err)
		}
	}
	return nil
}

// IndexCigars uploads cigar documents.
func (ix *Indexer) IndexCigars(ctx context.Context, docs []CigarDocument) error {
	return indexBatches(ctx, ix, IndexCigars, docs)
}

// IndexBrands uploads brand documents.
func (ix *Indexer) IndexBrands(ctx context.Context, docs []BrandDocument) error {
	return indexBatches(ctx, ix, IndexBrands, docs)
}

// IndexLines uploads line documents.
func (ix *Indexer) IndexLines(ctx context.Context, docs []LineDocument) error {
	return indexBatches(ctx, ix, IndexLines, docs)
}

// RemoveCigars deletes the documents of the given cigars.
func (ix *Indexer) RemoveCigars(ctx context.Context, ids []uuid.UUID) error {
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = id.String()
	}
	for start := 0; start < len(keys); start += ix.batchSize {
		end := min(start+ix.batchSize, len(keys))
		if err := ix.writer.DeleteDocuments(ctx, IndexCigars, keys[start:end]); err != nil {
			return fmt.Errorf("remove cigars batch %d-%d: %w", start, end, err)
		}
	}
	return nil
}

func indexBatches[T any](ctx context.Context, ix *Indexer, index string, docs []T) error {
	for start := 0; start < len(docs); start += ix.batchSize {
		end := min(start+ix.batchSize, len(docs))
		if err := ix.writer.AddDocuments(ctx, index, docs[start:end]); err != nil {
			return fmt.Errorf("index %s batch %d-%d: %w", index, start, end, err)
		}
	}
	ix.logger.Info().Str("index", index).Int("documents", len(docs)).Msg("documents queued")
	return nil
}
