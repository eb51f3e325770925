package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"boxbluebook/internal/catalog"
	"boxbluebook/internal/pricing"
	"boxbluebook/internal/search"
)

// IndexSource is the catalog read side of a reindex.
type IndexSource interface {
	ListActiveCigars(ctx context.Context) ([]catalog.Cigar, error)
	ListInactiveCigarIDs(ctx context.Context) ([]uuid.UUID, error)
	ListBrands(ctx context.Context, includeCount bool) ([]catalog.Brand, error)
	ListLines(ctx context.Context) ([]catalog.Line, error)
	LatestAggregate(ctx context.Context, cigarID uuid.UUID, pt pricing.PeriodType) (*pricing.PriceAggregate, error)
}

// ReindexReport counts uploaded documents.
type ReindexReport struct {
	Cigars  int `json:"cigars"`
	Brands  int `json:"brands"`
	Lines   int `json:"lines"`
	Removed int `json:"removed"`
}

// Reindex rebuilds the search indexes from the catalog.
type Reindex struct {
	source  IndexSource
	indexer *search.Indexer
	logger  zerolog.Logger
}

// NewReindex constructs the reindex job.
func NewReindex(source IndexSource, indexer *search.Indexer, logger zerolog.Logger) *Reindex {
	return &Reindex{source: source, indexer: indexer, logger: logger.With().Str("component", "reindex").Logger()}
}

// Run applies index settings, then uploads brands, lines and cigars and removes retired cigars.
// Cigar documents carry the latest daily CMV; a failed lookup indexes the cigar without one.
func (r *Reindex) Run(ctx context.Context) (ReindexReport, error) {
	var report ReindexReport
	if err := r.indexer.Configure(ctx); err != nil {
		return report, err
	}

	brands, err := r.source.ListBrands(ctx, true)
	if err != nil {
		return report, fmt.Errorf("load brands: %w", err)
	}
	brandDocs := make([]search.BrandDocument, 0, len(brands))
	for _, b := range brands {
		brandDocs = append(brandDocs, search.NewBrandDocument(b))
	}
	if err := r.indexer.IndexBrands(ctx, brandDocs); err != nil {
		return report, err
	}
	report.Brands = len(brandDocs)

	lines, err := r.source.ListLines(ctx)
	if err != nil {
		return report, fmt.Errorf("load lines: %w", err)
	}
	lineDocs := make([]search.LineDocument, 0, len(lines))
	for _, l := range lines {
		lineDocs = append(lineDocs, search.NewLineDocument(l))
	}
	if err := r.indexer.IndexLines(ctx, lineDocs); err != nil {
		return report, err
	}
	report.Lines = len(lineDocs)

	cigars, err := r.source.ListActiveCigars(ctx)
	if err != nil {
		return report, fmt.Errorf("load cigars: %w", err)
	}
	cigarDocs := make([]search.CigarDocument, 0, len(cigars))
	for _, c := range cigars {
		current, err := r.source.LatestAggregate(ctx, c.ID, pricing.PeriodDaily)
		if err != nil {
			r.logger.Warn().Err(err).Str("cigar_id", c.ID.String()).Msg("load current price failed")
		}
		cigarDocs = append(cigarDocs, search.NewCigarDocument(c, current))
	}
	if err := r.indexer.IndexCigars(ctx, cigarDocs); err != nil {
		return report, err
	}
	report.Cigars = len(cigarDocs)

	retired, err := r.source.ListInactiveCigarIDs(ctx)
	if err != nil {
		return report, fmt.Errorf("load retired cigars: %w", err)
	}
	if err := r.indexer.RemoveCigars(ctx, retired); err != nil {
		return report, err
	}
	report.Removed = len(retired)

	r.logger.Info().
		Int("brands", report.Brands).
		Int("lines", report.Lines).
		Int("cigars", report.Cigars).
		Int("removed", report.Removed).
		Msg("search indexes rebuilt")
	return report, nil
}
