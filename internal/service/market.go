package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"boxbluebook/internal/apperr"
	"boxbluebook/internal/catalog"
	"boxbluebook/internal/pricing"
)

// relatedLimit caps how many sibling cigars a detail view shows.
const relatedLimit = 4

// MarketStore is the read side used by catalog and market views.
type MarketStore interface {
	GetCigar(ctx context.Context, id uuid.UUID) (catalog.Cigar, error)
	RelatedCigars(ctx context.Context, c catalog.Cigar, limit int) ([]catalog.Cigar, error)
	LatestAggregate(ctx context.Context, cigarID uuid.UUID, pt pricing.PeriodType) (*pricing.PriceAggregate, error)
	ListAggregates(ctx context.Context, cigarID uuid.UUID, q pricing.HistoryQuery) ([]pricing.PriceAggregate, error)
	TrendCandidates(ctx context.Context, since time.Time) ([]pricing.TrendCandidate, error)
}

// CigarDetail is a cigar with its current daily aggregate and siblings from the same line.
type CigarDetail struct {
	catalog.Cigar
	CurrentPrice *pricing.PriceAggregate `json:"current_price"`
	Related      []catalog.Cigar         `json:"related"`
}

// History is a price history series with its summary.
type History struct {
	CigarID    uuid.UUID               `json:"cigar_id"`
	PeriodType pricing.PeriodType      `json:"period_type"`
	Data       []pricing.HistoryPoint  `json:"data"`
	Summary    *pricing.HistorySummary `json:"summary"`
}

// Trends is the market movers view.
type Trends struct {
	Period    pricing.TrendWindow      `json:"period"`
	Direction pricing.TrendDirection   `json:"direction"`
	Category  pricing.TrendCategory    `json:"category"`
	Trends    []pricing.TrendCandidate `json:"trends"`
	Summary   pricing.TrendSummary     `json:"summary"`
}

// Market serves catalog detail, price history and trend reads.
type Market struct {
	store  MarketStore
	logger zerolog.Logger
	now    func() time.Time
}

// NewMarket constructs the read service.
func NewMarket(store MarketStore, logger zerolog.Logger) *Market {
	return &Market{
		store:  store,
		logger: logger.With().Str("component", "market").Logger(),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// CigarDetail loads a cigar; missing price or related rows degrade to empty.
func (m *Market) CigarDetail(ctx context.Context, id uuid.UUID) (CigarDetail, error) {
	c, err := m.store.GetCigar(ctx, id)
	if err != nil {
		return CigarDetail{}, err
	}
	detail := CigarDetail{Cigar: c, Related: []catalog.Cigar{}}

	if agg, err := m.store.LatestAggregate(ctx, id, pricing.PeriodDaily); err != nil {
		m.logger.Warn().Err(err).Str("cigar_id", id.String()).Msg("load current price failed")
	} else {
		detail.CurrentPrice = agg
	}
	if related, err := m.store.RelatedCigars(ctx, c, relatedLimit); err != nil {
		m.logger.Warn().Err(err).Str("cigar_id", id.String()).Msg("load related cigars failed")
	} else {
		detail.Related = related
	}
	return detail, nil
}

// History returns the aggregates of a cigar newest first, with a summary. A nil summary means
// the cigar has no aggregates of that type in range.
func (m *Market) History(ctx context.Context, id uuid.UUID, q pricing.HistoryQuery) (History, error) {
	if q.PeriodType == "" {
		q.PeriodType = pricing.PeriodDaily
	}
	if !q.PeriodType.Valid() {
		return History{}, fmt.Errorf("period type %q: %w", q.PeriodType, apperr.ErrMalformedInput)
	}
	q.Limit = pricing.ClampHistoryLimit(q.Limit)

	if _, err := m.store.GetCigar(ctx, id); err != nil {
		return History{}, err
	}
	aggs, err := m.store.ListAggregates(ctx, id, q)
	if err != nil {
		return History{}, fmt.Errorf("load price history: %w", err)
	}
	return History{
		CigarID:    id,
		PeriodType: q.PeriodType,
		Data:       pricing.Points(aggs),
		Summary:    pricing.Summarize(aggs),
	}, nil
}

// Trends ranks recent weekly movers for q.
func (m *Market) Trends(ctx context.Context, q pricing.TrendQuery) (Trends, error) {
	candidates, err := m.store.TrendCandidates(ctx, q.Window.Since(m.now()))
	if err != nil {
		return Trends{}, fmt.Errorf("load trend candidates: %w", err)
	}
	return Trends{
		Period:    q.Window,
		Direction: q.Direction,
		Category:  q.Category,
		Trends:    pricing.RankTrends(candidates, q),
		Summary:   pricing.SummarizeTrends(candidates),
	}, nil
}
