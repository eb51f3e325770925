package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"boxbluebook/internal/competitor"
	"boxbluebook/internal/scrape"
)

// ListingWriter persists scraped offers.
type ListingWriter interface {
	EnsureCompetitors(ctx context.Context, competitors []competitor.Competitor) error
	UpsertListing(ctx context.Context, cigarID uuid.UUID, p scrape.ScrapedProduct) error
	CigarIDForURL(ctx context.Context, code, url string) (uuid.UUID, bool, error)
}

// Archiver keeps a raw snapshot of each catalog scrape.
type Archiver interface {
	ArchiveCatalog(ctx context.Context, res scrape.CatalogResult) error
}

// Invalidator drops derived views of a cigar once its listings change.
type Invalidator interface {
	Invalidate(ctx context.Context, cigarID uuid.UUID) error
}

// ScrapeReport summarizes one competitor's catalog scrape after persistence.
type ScrapeReport struct {
	Competitor string `json:"competitor"`
	Products   int    `json:"products"`
	Linked     int    `json:"linked"`
	Deals      int    `json:"deals"`
	Error      string `json:"error,omitempty"`
}

// Scraping runs catalog and product scrapes and persists what maps onto the catalog.
type Scraping struct {
	runner      *scrape.Runner
	listings    ListingWriter
	archive     Archiver
	deals       *Deals
	invalidator Invalidator
	logger      zerolog.Logger
}

// NewScraping wires a runner to storage. listings, archive and deals may be nil, in which case
// scrapes are returned without being persisted, archived or checked.
func NewScraping(runner *scrape.Runner, listings ListingWriter, archive Archiver, deals *Deals, logger zerolog.Logger) *Scraping {
	return &Scraping{
		runner:   runner,
		listings: listings,
		archive:  archive,
		deals:    deals,
		logger:   logger.With().Str("component", "scraping").Logger(),
	}
}

// WithInvalidator drops the cached views of every cigar whose listing is upserted.
func (s *Scraping) WithInvalidator(inv Invalidator) *Scraping {
	s.invalidator = inv
	return s
}

// Registry exposes the competitor table.
func (s *Scraping) Registry() *competitor.Registry {
	return s.runner.Registry()
}

// RegisterCompetitors makes sure every configured competitor exists in storage.
func (s *Scraping) RegisterCompetitors(ctx context.Context) error {
	if s.listings == nil {
		return nil
	}
	return s.listings.EnsureCompetitors(ctx, s.runner.Registry().All())
}

// ScrapeCatalog scrapes one competitor and persists its linked listings.
func (s *Scraping) ScrapeCatalog(ctx context.Context, code string) ([]scrape.ScrapedProduct, error) {
	if _, err := s.runner.Registry().Lookup(code); err != nil {
		return nil, err
	}
	results, _ := s.ScrapeCatalogs(ctx, []string{code})
	res := results[0]
	if res.Err != nil {
		return nil, res.Err
	}
	return res.Products, nil
}

// ScrapeCatalogs scrapes the given competitors (all when empty). Per-competitor failures are
// reported in the results and never abort the others.
func (s *Scraping) ScrapeCatalogs(ctx context.Context, codes []string) ([]scrape.CatalogResult, []ScrapeReport) {
	results := s.runner.ScrapeCatalogs(ctx, codes)
	reports := make([]ScrapeReport, len(results))
	for i, res := range results {
		reports[i] = s.persist(ctx, res)
	}
	return results, reports
}

// ScrapeURL scrapes one product page. With a non-nil cigarID the listing is linked to that cigar.
func (s *Scraping) ScrapeURL(ctx context.Context, rawURL string, cigarID *uuid.UUID) (scrape.ScrapedProduct, error) {
	product, err := s.runner.ScrapeURL(ctx, rawURL)
	if err != nil {
		return scrape.ScrapedProduct{}, err
	}
	if cigarID == nil || s.listings == nil {
		return product, nil
	}
	if err := s.listings.UpsertListing(ctx, *cigarID, product); err != nil {
		return product, fmt.Errorf("link listing: %w", err)
	}
	s.invalidate(ctx, *cigarID)
	if _, err := s.deals.Check(ctx, *cigarID, product); err != nil {
		s.logger.Warn().Err(err).Str("cigar_id", cigarID.String()).Msg("deal check failed")
	}
	return product, nil
}

func (s *Scraping) persist(ctx context.Context, res scrape.CatalogResult) ScrapeReport {
	report := ScrapeReport{Competitor: res.Competitor, Products: len(res.Products)}
	if res.Err != nil {
		report.Error = res.Err.Error()
	}

	if s.archive != nil && res.Err == nil {
		if err := s.archive.ArchiveCatalog(ctx, res); err != nil {
			s.logger.Warn().Err(err).Str("competitor", res.Competitor).Msg("archive scrape failed")
		}
	}
	if s.listings == nil {
		return report
	}

	for _, p := range res.Products {
		if p.URL == "" {
			continue
		}
		cigarID, ok, err := s.listings.CigarIDForURL(ctx, p.CompetitorCode, p.URL)
		if err != nil {
			s.logger.Warn().Err(err).Str("url", p.URL).Msg("resolve listing url failed")
			continue
		}
		if !ok {
			continue
		}
		if err := s.listings.UpsertListing(ctx, cigarID, p); err != nil {
			s.logger.Warn().Err(err).Str("url", p.URL).Msg("upsert listing failed")
			continue
		}
		report.Linked++
		s.invalidate(ctx, cigarID)

		alert, err := s.deals.Check(ctx, cigarID, p)
		if err != nil {
			s.logger.Warn().Err(err).Str("cigar_id", cigarID.String()).Msg("deal check failed")
			continue
		}
		if alert != nil {
			report.Deals++
		}
	}

	s.logger.Info().
		Str("competitor", res.Competitor).
		Int("products", report.Products).
		Int("linked", report.Linked).
		Int("deals", report.Deals).
		Dur("took", res.Duration).
		Msg("catalog persisted")
	return report
}

func (s *Scraping) invalidate(ctx context.Context, cigarID uuid.UUID) {
	if s.invalidator == nil {
		return
	}
	if err := s.invalidator.Invalidate(ctx, cigarID); err != nil {
		s.logger.Warn().Err(err).Str("cigar_id", cigarID.String()).Msg("invalidate cached comparison failed")
	}
}
