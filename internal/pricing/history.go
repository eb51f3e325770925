package pricing

import (
	"time"

	"github.com/shopspring/decimal"
)

// HistoryPoint is one chart-friendly row of a price history series.
type HistoryPoint struct {
	Date     time.Time       `json:"date"`
	AvgPrice decimal.Decimal `json:"avg_price"`
	MinPrice decimal.Decimal `json:"min_price"`
	MaxPrice decimal.Decimal `json:"max_price"`
	Volume   int             `json:"volume"`
	CMV      decimal.Decimal `json:"cmv"`
}

// HistorySummary condenses a series of aggregates.
type HistorySummary struct {
	CurrentCMV        decimal.Decimal `json:"current_cmv"`
	CurrentConfidence Confidence      `json:"current_confidence"`
	PeriodHigh        decimal.Decimal `json:"period_high"`
	PeriodLow         decimal.Decimal `json:"period_low"`
	TotalTransactions int             `json:"total_transactions"`
	TotalVolume       int             `json:"total_volume"`
}

// HistoryQuery bounds a price history lookup.
type HistoryQuery struct {
	PeriodType PeriodType
	From       *time.Time
	To         *time.Time
	Limit      int
}

// History limits.
const (
	DefaultHistoryLimit = 90
	MaxHistoryLimit     = 365
)

// ClampHistoryLimit applies the default and the ceiling to a requested row count.
func ClampHistoryLimit(n int) int {
	if n <= 0 {
		return DefaultHistoryLimit
	}
	if n > MaxHistoryLimit {
		return MaxHistoryLimit
	}
	return n
}

// Points converts aggregates (newest first) to chart rows in the same order.
func Points(aggs []PriceAggregate) []HistoryPoint {
	points := make([]HistoryPoint, 0, len(aggs))
	for _, a := range aggs {
		points = append(points, HistoryPoint{
			Date:     a.PeriodStart,
			AvgPrice: a.AvgPrice,
			MinPrice: a.MinPrice,
			MaxPrice: a.MaxPrice,
			Volume:   a.TotalVolume,
			CMV:      a.CMV,
		})
	}
	return points
}

// Summarize returns nil for an empty series. The first aggregate is taken as current, so callers pass
// the series newest first.
func Summarize(aggs []PriceAggregate) *HistorySummary {
	if len(aggs) == 0 {
		return nil
	}
	s := &HistorySummary{
		CurrentCMV:        aggs[0].CMV,
		CurrentConfidence: aggs[0].Confidence,
		PeriodHigh:        aggs[0].MaxPrice,
		PeriodLow:         aggs[0].MinPrice,
	}
	for _, a := range aggs {
		if a.MaxPrice.GreaterThan(s.PeriodHigh) {
			s.PeriodHigh = a.MaxPrice
		}
		if a.MinPrice.LessThan(s.PeriodLow) {
			s.PeriodLow = a.MinPrice
		}
		s.TotalTransactions += a.TransactionCount
		s.TotalVolume += a.TotalVolume
	}
	return s
}
