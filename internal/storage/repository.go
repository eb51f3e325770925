package storage

import (
	"context"
	"time"

	"github.com/google/uuid"

	"boxbluebook/internal/catalog"
	"boxbluebook/internal/compare"
	"boxbluebook/internal/competitor"
	"boxbluebook/internal/pricing"
	"boxbluebook/internal/scrape"
	"boxbluebook/internal/search"
)

// CatalogStore defines read and import operations over brands, lines and cigars.
type CatalogStore interface {
	GetCigar(ctx context.Context, id uuid.UUID) (catalog.Cigar, error)
	CigarIdentity(ctx context.Context, id uuid.UUID) (catalog.Identity, error)
	ListCigars(ctx context.Context, f catalog.Filter) (catalog.Page, error)
	RelatedCigars(ctx context.Context, c catalog.Cigar, limit int) ([]catalog.Cigar, error)
	ListActiveCigars(ctx context.Context) ([]catalog.Cigar, error)
	ListInactiveCigarIDs(ctx context.Context) ([]uuid.UUID, error)
	ListBrands(ctx context.Context, includeCount bool) ([]catalog.Brand, error)
	ListLines(ctx context.Context) ([]catalog.Line, error)
	SearchBrands(ctx context.Context, query string, limit int) ([]catalog.Brand, error)
	SearchLines(ctx context.Context, query string, limit int) ([]catalog.Line, error)
	SearchCigars(ctx context.Context, query string, limit int) ([]catalog.Cigar, error)
	UpsertCatalogEntry(ctx context.Context, e catalog.Entry) (uuid.UUID, bool, error)
}

// TransactionStore defines read access to the transaction ledger.
type TransactionStore interface {
	VerifiedTransactions(ctx context.Context, cigarID uuid.UUID, from, to time.Time) ([]pricing.Transaction, error)
	LastSale(ctx context.Context, cigarID uuid.UUID) (*pricing.LastSale, error)
	CigarsWithTransactionsSince(ctx context.Context, since time.Time) ([]uuid.UUID, error)
	InsertTransaction(ctx context.Context, tx *pricing.Transaction) error
}

// AggregateStore defines persistence of per-period price aggregates.
type AggregateStore interface {
	UpsertAggregate(ctx context.Context, agg pricing.PriceAggregate) error
	AggregateAt(ctx context.Context, cigarID uuid.UUID, pt pricing.PeriodType, start time.Time) (*pricing.PriceAggregate, error)
	LatestAggregate(ctx context.Context, cigarID uuid.UUID, pt pricing.PeriodType) (*pricing.PriceAggregate, error)
	BaselineAggregate(ctx context.Context, cigarID uuid.UUID, pt pricing.PeriodType, notAfter time.Time) (*pricing.PriceAggregate, error)
	ListAggregates(ctx context.Context, cigarID uuid.UUID, q pricing.HistoryQuery) ([]pricing.PriceAggregate, error)
	TrendCandidates(ctx context.Context, since time.Time) ([]pricing.TrendCandidate, error)
}

// ListingStore defines persistence of competitor offers.
type ListingStore interface {
	EnsureCompetitors(ctx context.Context, competitors []competitor.Competitor) error
	UpsertListing(ctx context.Context, cigarID uuid.UUID, p scrape.ScrapedProduct) error
	ListingsForCigar(ctx context.Context, cigarID uuid.UUID) ([]compare.Listing, error)
	CigarIDForURL(ctx context.Context, code, url string) (uuid.UUID, bool, error)
}

// DealAlertStore defines operations for deal alert auditing.
type DealAlertStore interface {
	InsertDealAlert(ctx context.Context, alert DealAlert) (DealAlert, bool, error)
	RecentDealAlert(ctx context.Context, cigarID uuid.UUID, competitor string, since time.Time) (bool, error)
	ListRecentDealAlerts(ctx context.Context, limit int) ([]DealAlert, error)
	DeleteDealAlertsBefore(ctx context.Context, olderThan time.Time) error
}

var (
	_ CatalogStore           = (*Store)(nil)
	_ TransactionStore       = (*Store)(nil)
	_ AggregateStore         = (*Store)(nil)
	_ ListingStore           = (*Store)(nil)
	_ DealAlertStore         = (*Store)(nil)
	_ AdvisoryLocker         = (*Store)(nil)
	_ TxLocker               = (*Store)(nil)
	_ AggregationTx          = (*Store)(nil)
	_ compare.CatalogReader  = (*Store)(nil)
	_ compare.ListingReader  = (*Store)(nil)
	_ compare.MarketReader   = (*Store)(nil)
	_ search.CatalogSearcher = (*Store)(nil)
)
