package pricing

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"boxbluebook/internal/apperr"
)

// TrendWindow is a look-back range for market movers.
type TrendWindow string

// Trend windows.
const (
	Window7d  TrendWindow = "7d"
	Window30d TrendWindow = "30d"
	Window90d TrendWindow = "90d"
	Window1y  TrendWindow = "1y"
)

// Days returns the length of the window.
func (w TrendWindow) Days() int {
	switch w {
	case Window7d:
		return 7
	case Window90d:
		return 90
	case Window1y:
		return 365
	default:
		return 30
	}
}

// Since returns the first day included by the window, relative to now.
func (w TrendWindow) Since(now time.Time) time.Time {
	day := PeriodDaily.Bounds(now).Start
	return day.AddDate(0, 0, -w.Days())
}

// TrendDirection filters movers by sign of change.
type TrendDirection string

// Directions.
const (
	DirectionUp   TrendDirection = "up"
	DirectionDown TrendDirection = "down"
	DirectionBoth TrendDirection = "both"
)

// TrendCategory selects the ordering of movers.
type TrendCategory string

// Categories. The empty category orders by change, descending unless the direction is down.
const (
	CategoryGainers TrendCategory = "gainers"
	CategoryLosers  TrendCategory = "losers"
	CategoryVolume  TrendCategory = "volume"
)

// Trend limits.
const (
	DefaultTrendLimit = 10
	MaxTrendLimit     = 50
)

// TrendQuery is a validated market-trends request.
type TrendQuery struct {
	Window    TrendWindow
	Direction TrendDirection
	Category  TrendCategory
	Limit     int
}

// ParseTrendQuery applies defaults and rejects unknown values.
func ParseTrendQuery(window, direction, category string, limit int) (TrendQuery, error) {
	q := TrendQuery{
		Window:    TrendWindow(window),
		Direction: TrendDirection(direction),
		Category:  TrendCategory(category),
		Limit:     limit,
	}
	switch q.Window {
	case "":
		q.Window = Window30d
	case Window7d, Window30d, Window90d, Window1y:
	default:
		return TrendQuery{}, fmt.Errorf("trend period %q: %w", window, apperr.ErrMalformedInput)
	}
	switch q.Direction {
	case "":
		q.Direction = DirectionBoth
	case DirectionUp, DirectionDown, DirectionBoth:
	default:
		return TrendQuery{}, fmt.Errorf("trend direction %q: %w", direction, apperr.ErrMalformedInput)
	}
	switch q.Category {
	case "", CategoryGainers, CategoryLosers, CategoryVolume:
	default:
		return TrendQuery{}, fmt.Errorf("trend category %q: %w", category, apperr.ErrMalformedInput)
	}
	if q.Limit <= 0 {
		q.Limit = DefaultTrendLimit
	}
	if q.Limit > MaxTrendLimit {
		q.Limit = MaxTrendLimit
	}
	return q, nil
}

// TrendCandidate is a weekly aggregate eligible for the movers list, joined with catalog identity.
type TrendCandidate struct {
	CigarID          uuid.UUID       `json:"cigar_id"`
	CigarName        string          `json:"cigar_name"`
	BrandName        string          `json:"brand_name"`
	LineName         string          `json:"line_name"`
	PeriodStart      time.Time       `json:"period_start"`
	CMV              decimal.Decimal `json:"cmv"`
	PriceChangePct   decimal.Decimal `json:"price_change_pct"`
	Confidence       Confidence      `json:"cmv_confidence"`
	TransactionCount int             `json:"transactions"`
	TotalVolume      int             `json:"volume"`
}

// TrendSummary describes the whole candidate set regardless of direction.
type TrendSummary struct {
	TotalCigars    int             `json:"total_cigars"`
	AvgPriceChange decimal.Decimal `json:"avg_price_change"`
	Gainers        int             `json:"gainers"`
	Losers         int             `json:"losers"`
	TotalVolume    int             `json:"total_volume"`
}

// RankTrends orders and filters candidates for q, keeping the most recent row per cigar.
func RankTrends(candidates []TrendCandidate, q TrendQuery) []TrendCandidate {
	rows := make([]TrendCandidate, 0, len(candidates))
	for _, c := range candidates {
		switch q.Direction {
		case DirectionUp:
			if c.PriceChangePct.Sign() <= 0 {
				continue
			}
		case DirectionDown:
			if c.PriceChangePct.Sign() >= 0 {
				continue
			}
		}
		rows = append(rows, c)
	}

	// newest first so dedupe keeps the latest week per cigar
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].PeriodStart.After(rows[j].PeriodStart) })
	seen := make(map[uuid.UUID]struct{}, len(rows))
	deduped := rows[:0]
	for _, r := range rows {
		if _, ok := seen[r.CigarID]; ok {
			continue
		}
		seen[r.CigarID] = struct{}{}
		deduped = append(deduped, r)
	}
	rows = deduped

	sort.SliceStable(rows, func(i, j int) bool {
		switch q.Category {
		case CategoryVolume:
			return rows[i].TotalVolume > rows[j].TotalVolume
		case CategoryLosers:
			return rows[i].PriceChangePct.LessThan(rows[j].PriceChangePct)
		case CategoryGainers:
			return rows[i].PriceChangePct.GreaterThan(rows[j].PriceChangePct)
		default:
			if q.Direction == DirectionDown {
				return rows[i].PriceChangePct.LessThan(rows[j].PriceChangePct)
			}
			return rows[i].PriceChangePct.GreaterThan(rows[j].PriceChangePct)
		}
	})

	if q.Limit > 0 && len(rows) > q.Limit {
		rows = rows[:q.Limit]
	}
	return rows
}

// SummarizeTrends aggregates every candidate row.
func SummarizeTrends(candidates []TrendCandidate) TrendSummary {
	s := TrendSummary{TotalCigars: len(candidates), AvgPriceChange: decimal.Zero}
	if len(candidates) == 0 {
		return s
	}
	total := decimal.Zero
	for _, c := range candidates {
		total = total.Add(c.PriceChangePct)
		switch c.PriceChangePct.Sign() {
		case 1:
			s.Gainers++
		case -1:
			s.Losers++
		}
		s.TotalVolume += c.TotalVolume
	}
	s.AvgPriceChange = total.Div(decimal.NewFromInt(int64(len(candidates)))).Round(2)
	return s
}
