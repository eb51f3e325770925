package pricing

import (
	"sort"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

var (
	hundred = decimal.NewFromInt(100)

	// maxPercentChange is the widest value the price_change columns hold.
	maxPercentChange = decimal.RequireFromString("999999999999.99")
)

// AggregateInput is everything needed to summarize one cigar over one period.
type AggregateInput struct {
	CigarID      uuid.UUID
	Period       Period
	Transactions []Transaction
	// Previous is the aggregate of the immediately preceding period of the same type, if any.
	Previous *PriceAggregate
	// Baseline90d is the latest aggregate starting at least 90 days before Period.Start, if any.
	Baseline90d *PriceAggregate
}

// Result carries the computed aggregate plus bookkeeping about the input rows.
type Result struct {
	// Aggregate is nil when no transaction qualified.
	Aggregate  *PriceAggregate
	Considered int
	Skipped    int
}

// Aggregator turns a transaction slice into a PriceAggregate. It never touches storage or the clock.
type Aggregator struct {
	policy ConfidencePolicy
	logger zerolog.Logger
}

// NewAggregator constructs an aggregator using the given confidence thresholds.
func NewAggregator(policy ConfidencePolicy, logger zerolog.Logger) *Aggregator {
	return &Aggregator{
		policy: policy,
		logger: logger.With().Str("component", "aggregator").Logger(),
	}
}

// Policy returns the confidence thresholds in use.
func (a *Aggregator) Policy() ConfidencePolicy {
	return a.policy
}

// Aggregate computes the period summary. Unverified rows and rows outside the window are ignored;
// rows that would otherwise qualify but carry a non-positive price or quantity are skipped with a warning.
func (a *Aggregator) Aggregate(in AggregateInput) Result {
	prices := make([]decimal.Decimal, 0, len(in.Transactions))
	volume := 0
	skipped := 0

	for _, tx := range in.Transactions {
		if tx.CigarID != in.CigarID || !tx.Verified || !in.Period.Contains(tx.TransactionDate) {
			continue
		}
		if tx.UnitPrice.Sign() <= 0 || tx.Quantity <= 0 {
			skipped++
			a.logger.Warn().
				Str("transaction_id", tx.ID.String()).
				Str("cigar_id", tx.CigarID.String()).
				Str("unit_price", tx.UnitPrice.String()).
				Int("quantity", tx.Quantity).
				Msg("skip malformed transaction")
			continue
		}
		prices = append(prices, tx.UnitPrice)
		volume += tx.Quantity
	}

	res := Result{Considered: len(prices), Skipped: skipped}
	if len(prices) == 0 {
		return res
	}

	sort.SliceStable(prices, func(i, j int) bool { return prices[i].LessThan(prices[j]) })

	minPrice := prices[0]
	maxPrice := prices[len(prices)-1]
	avg := clamp(decimal.Sum(prices[0], prices[1:]...).Div(decimal.NewFromInt(int64(len(prices)))).Round(2), minPrice, maxPrice)
	med := clamp(median(prices).Round(2), minPrice, maxPrice)

	// CMV is the plain median of the window. No recency weighting or outlier trimming yet.
	cmv := med

	agg := &PriceAggregate{
		CigarID:          in.CigarID,
		PeriodType:       in.Period.Type,
		PeriodStart:      in.Period.Start,
		PeriodEnd:        in.Period.End,
		AvgPrice:         avg,
		MedianPrice:      med,
		MinPrice:         minPrice,
		MaxPrice:         maxPrice,
		TransactionCount: len(prices),
		TotalVolume:      volume,
		CMV:              cmv,
		Confidence:       a.policy.Level(len(prices)),
	}
	if in.Previous != nil {
		agg.PriceChangePct = PercentChange(cmv, in.Previous.CMV)
	}
	if in.Baseline90d != nil {
		agg.PriceChange90d = PercentChange(cmv, in.Baseline90d.CMV)
	}

	res.Aggregate = agg
	return res
}

// PercentChange returns (current-base)/base*100 rounded to two places and capped at
// maxPercentChange, or nil when base is not positive.
func PercentChange(current, base decimal.Decimal) *decimal.Decimal {
	if base.Sign() <= 0 {
		return nil
	}
	pct := clamp(current.Sub(base).Div(base).Mul(hundred).Round(2), maxPercentChange.Neg(), maxPercentChange)
	return &pct
}

// median expects sorted input.
func median(sorted []decimal.Decimal) decimal.Decimal {
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return sorted[n/2-1].Add(sorted[n/2]).Div(decimal.NewFromInt(2))
}

func clamp(v, lo, hi decimal.Decimal) decimal.Decimal {
	if v.LessThan(lo) {
		return lo
	}
	if v.GreaterThan(hi) {
		return hi
	}
	return v
}
