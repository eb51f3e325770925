// Package compare assembles the retail-versus-secondary-market view of a single cigar.
package compare

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"boxbluebook/internal/catalog"
	"boxbluebook/internal/pricing"
)

// Listing is a persisted competitor price joined with the competitor's code and name.
type Listing struct {
	Code         string           `json:"code"`
	Name         string           `json:"name"`
	PriceSingle  *decimal.Decimal `json:"price_single"`
	PriceBox     *decimal.Decimal `json:"price_box"`
	BoxCount     *int             `json:"box_count"`
	InStock      bool             `json:"in_stock"`
	IsOnSale     bool             `json:"is_on_sale"`
	RegularPrice *decimal.Decimal `json:"regular_price"`
	URL          *string          `json:"url"`
	Rating       *float64         `json:"rating"`
	ReviewCount  *int             `json:"review_count"`
	ScrapedAt    time.Time        `json:"scraped_at"`
}

// BestPrice is the cheapest in-stock single price and how it compares to the field.
type BestPrice struct {
	Competitor     string          `json:"competitor"`
	PriceSingle    decimal.Decimal `json:"price_single"`
	SavingsPercent int64           `json:"savings_percent"`
}

// MarketValue is the secondary-market block of a comparison.
type MarketValue struct {
	AvgSale  *decimal.Decimal  `json:"avg_sale"`
	Trend90d *decimal.Decimal  `json:"trend_90d"`
	LastSale *pricing.LastSale `json:"last_sale"`
}

// PriceComparison is assembled per request and never stored.
type PriceComparison struct {
	Cigar           catalog.Identity `json:"cigar"`
	Competitors     []Listing        `json:"competitors"`
	BestPrice       *BestPrice       `json:"best_price"`
	MarketValue     MarketValue      `json:"market_value"`
	CacheAgeMinutes int64            `json:"cache_age_minutes"`
}

// CatalogReader resolves a cigar's identity; it returns apperr.ErrNotFound for unknown ids.
type CatalogReader interface {
	CigarIdentity(ctx context.Context, id uuid.UUID) (catalog.Identity, error)
}

// ListingReader returns the current competitor listings of a cigar.
type ListingReader interface {
	ListingsForCigar(ctx context.Context, cigarID uuid.UUID) ([]Listing, error)
}

// MarketReader returns secondary-market data. Both methods return nil without error when absent.
type MarketReader interface {
	LatestAggregate(ctx context.Context, cigarID uuid.UUID, periodType pricing.PeriodType) (*pricing.PriceAggregate, error)
	LastSale(ctx context.Context, cigarID uuid.UUID) (*pricing.LastSale, error)
}

// Cache stores assembled comparisons for a short time.
type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// Assembler builds PriceComparisons.
type Assembler struct {
	catalog  CatalogReader
	listings ListingReader
	market   MarketReader
	cache    Cache
	cacheTTL time.Duration
	logger   zerolog.Logger
	now      func() time.Time
}

// NewAssembler wires the readers together.
func NewAssembler(catalog CatalogReader, listings ListingReader, market MarketReader, logger zerolog.Logger) *Assembler {
	return &Assembler{
		catalog:  catalog,
		listings: listings,
		market:   market,
		logger:   logger.With().Str("component", "compare").Logger(),
		now:      time.Now,
	}
}

// WithCache enables caching of assembled comparisons for ttl.
func (a *Assembler) WithCache(c Cache, ttl time.Duration) *Assembler {
	a.cache = c
	a.cacheTTL = ttl
	return a
}

// CacheKey is the cache key of a cigar's comparison.
func CacheKey(cigarID uuid.UUID) string {
	return "compare:" + cigarID.String()
}

// Invalidate drops the cached comparison of cigarID so the next Compare reassembles it.
func (a *Assembler) Invalidate(ctx context.Context, cigarID uuid.UUID) error {
	if a.cache == nil {
		return nil
	}
	return a.cache.Delete(ctx, CacheKey(cigarID))
}

// Compare assembles the comparison for cigarID. Only a catalog failure is fatal; listing and market
// lookups that fail degrade to empty blocks.
func (a *Assembler) Compare(ctx context.Context, cigarID uuid.UUID) (*PriceComparison, error) {
	if cached := a.fromCache(ctx, cigarID); cached != nil {
		return cached, nil
	}

	var (
		wg       sync.WaitGroup
		identity catalog.Identity
		catErr   error
		listings []Listing
		monthly  *pricing.PriceAggregate
		lastSale *pricing.LastSale
	)

	wg.Add(4)
	go func() {
		defer wg.Done()
		identity, catErr = a.catalog.CigarIdentity(ctx, cigarID)
	}()
	go func() {
		defer wg.Done()
		rows, err := a.listings.ListingsForCigar(ctx, cigarID)
		if err != nil {
			a.logger.Warn().Err(err).Str("cigar_id", cigarID.String()).Msg("listings unavailable")
			return
		}
		listings = rows
	}()
	go func() {
		defer wg.Done()
		agg, err := a.market.LatestAggregate(ctx, cigarID, pricing.PeriodMonthly)
		if err != nil {
			a.logger.Warn().Err(err).Str("cigar_id", cigarID.String()).Msg("monthly aggregate unavailable")
			return
		}
		monthly = agg
	}()
	go func() {
		defer wg.Done()
		sale, err := a.market.LastSale(ctx, cigarID)
		if err != nil {
			a.logger.Warn().Err(err).Str("cigar_id", cigarID.String()).Msg("last sale unavailable")
			return
		}
		lastSale = sale
	}()
	wg.Wait()

	if catErr != nil {
		return nil, fmt.Errorf("load cigar %s: %w", cigarID, catErr)
	}

	out := Assemble(identity, listings, monthly, lastSale, a.now())
	a.toCache(ctx, cigarID, out)
	return out, nil
}

// Assemble is the pure part of Compare.
func Assemble(identity catalog.Identity, listings []Listing, monthly *pricing.PriceAggregate, lastSale *pricing.LastSale, now time.Time) *PriceComparison {
	sorted := SortListings(listings)
	out := &PriceComparison{
		Cigar:           identity,
		Competitors:     sorted,
		BestPrice:       Best(sorted),
		CacheAgeMinutes: CacheAge(sorted, now),
		MarketValue:     MarketValue{LastSale: lastSale},
	}
	if monthly != nil {
		avg := monthly.AvgPrice
		out.MarketValue.AvgSale = &avg
		out.MarketValue.Trend90d = monthly.PriceChange90d
	}
	return out
}

// SortListings orders listings by single price ascending with unpriced listings last. Ties keep
// their input order.
func SortListings(listings []Listing) []Listing {
	out := make([]Listing, len(listings))
	copy(out, listings)
	sort.SliceStable(out, func(i, j int) bool {
		pi, pj := out[i].PriceSingle, out[j].PriceSingle
		switch {
		case pi == nil:
			return false
		case pj == nil:
			return true
		default:
			return pi.LessThan(*pj)
		}
	})
	return out
}

// Best returns the minimum single price among in-stock listings, or nil when none is priced.
func Best(listings []Listing) *BestPrice {
	var best *Listing
	priced := make([]decimal.Decimal, 0, len(listings))
	for i := range listings {
		l := &listings[i]
		if l.PriceSingle == nil {
			continue
		}
		priced = append(priced, *l.PriceSingle)
		if l.InStock && (best == nil || l.PriceSingle.LessThan(*best.PriceSingle)) {
			best = l
		}
	}
	if best == nil {
		return nil
	}
	return &BestPrice{
		Competitor:     best.Code,
		PriceSingle:    *best.PriceSingle,
		SavingsPercent: savingsPercent(*best.PriceSingle, priced),
	}
}

// savingsPercent is how far best sits below the mean of every priced listing, in whole percent.
func savingsPercent(best decimal.Decimal, priced []decimal.Decimal) int64 {
	if len(priced) < 2 {
		return 0
	}
	mean := decimal.Sum(priced[0], priced[1:]...).Div(decimal.NewFromInt(int64(len(priced))))
	if mean.IsZero() {
		return 0
	}
	pct := decimal.NewFromInt(1).Sub(best.Div(mean)).Mul(decimal.NewFromInt(100))
	return pct.Add(decimal.NewFromFloat(0.5)).Floor().IntPart()
}

// CacheAge is the age in whole minutes of the oldest listing, or 0 when there are none.
func CacheAge(listings []Listing, now time.Time) int64 {
	if len(listings) == 0 {
		return 0
	}
	oldest := listings[0].ScrapedAt
	for _, l := range listings[1:] {
		if l.ScrapedAt.Before(oldest) {
			oldest = l.ScrapedAt
		}
	}
	age := now.Sub(oldest)
	if age <= 0 {
		return 0
	}
	return int64(math.Floor(age.Minutes() + 0.5))
}

func (a *Assembler) fromCache(ctx context.Context, cigarID uuid.UUID) *PriceComparison {
	if a.cache == nil {
		return nil
	}
	var out PriceComparison
	ok, err := a.cache.Get(ctx, CacheKey(cigarID), &out)
	if err != nil {
		a.logger.Warn().Err(err).Str("cigar_id", cigarID.String()).Msg("comparison cache read failed")
		return nil
	}
	if !ok {
		return nil
	}
	out.CacheAgeMinutes = CacheAge(out.Competitors, a.now())
	return &out
}

func (a *Assembler) toCache(ctx context.Context, cigarID uuid.UUID, cmp *PriceComparison) {
	if a.cache == nil || a.cacheTTL <= 0 {
		return
	}
	if err := a.cache.Set(ctx, CacheKey(cigarID), cmp, a.cacheTTL); err != nil {
		a.logger.Warn().Err(err).Str("cigar_id", cigarID.String()).Msg("comparison cache write failed")
	}
}
