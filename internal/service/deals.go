package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"boxbluebook/internal/alerting"
	"boxbluebook/internal/catalog"
	"boxbluebook/internal/pricing"
	"boxbluebook/internal/scrape"
	"boxbluebook/internal/storage"
)

// DealOptions configures deal detection.
type DealOptions struct {
	Enabled      bool
	ThresholdPct decimal.Decimal
	Cooldown     time.Duration
	Channels     []string
	// PeriodType selects which aggregate supplies the reference CMV.
	PeriodType pricing.PeriodType
	// MinConfidence skips CMVs rated below it.
	MinConfidence pricing.Confidence
}

// DealMarket resolves the reference market value of a cigar.
type DealMarket interface {
	LatestAggregate(ctx context.Context, cigarID uuid.UUID, pt pricing.PeriodType) (*pricing.PriceAggregate, error)
	GetCigar(ctx context.Context, id uuid.UUID) (catalog.Cigar, error)
}

// Deals compares fresh retail offers with the secondary-market CMV and raises alerts.
type Deals struct {
	opts     DealOptions
	market   DealMarket
	alerts   storage.DealAlertStore
	notifier alerting.Notifier
	logger   zerolog.Logger
	now      func() time.Time
}

// NewDeals constructs the deal checker. alerts and notifier may be nil.
func NewDeals(opts DealOptions, market DealMarket, alerts storage.DealAlertStore, notifier alerting.Notifier, logger zerolog.Logger) *Deals {
	if opts.PeriodType == "" {
		opts.PeriodType = pricing.PeriodMonthly
	}
	if opts.MinConfidence == "" {
		opts.MinConfidence = pricing.ConfidenceLow
	}
	return &Deals{
		opts:     opts,
		market:   market,
		alerts:   alerts,
		notifier: notifier,
		logger:   logger.With().Str("component", "deals").Logger(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Check evaluates one persisted listing. It returns the recorded alert, or nil when the offer is
// not a deal, is still cooling down, or detection is disabled.
func (d *Deals) Check(ctx context.Context, cigarID uuid.UUID, p scrape.ScrapedProduct) (*storage.DealAlert, error) {
	if d == nil || !d.opts.Enabled || !p.InStock || p.PriceSingle == nil {
		return nil, nil
	}

	agg, err := d.market.LatestAggregate(ctx, cigarID, d.opts.PeriodType)
	if err != nil {
		return nil, fmt.Errorf("load reference cmv: %w", err)
	}
	if agg == nil || !agg.Confidence.AtLeast(d.opts.MinConfidence) {
		return nil, nil
	}

	discount, ok := alerting.IsDeal(*p.PriceSingle, agg.CMV, d.opts.ThresholdPct)
	if !ok {
		return nil, nil
	}

	if d.alerts != nil && d.opts.Cooldown > 0 {
		recent, err := d.alerts.RecentDealAlert(ctx, cigarID, p.CompetitorCode, d.now().Add(-d.opts.Cooldown))
		if err != nil {
			return nil, fmt.Errorf("check alert cooldown: %w", err)
		}
		if recent {
			d.logger.Debug().Str("cigar_id", cigarID.String()).Str("competitor", p.CompetitorCode).Msg("deal alert cooling down")
			return nil, nil
		}
	}

	alert := storage.DealAlert{
		CigarID:      cigarID,
		Competitor:   p.CompetitorCode,
		PriceSingle:  *p.PriceSingle,
		CMV:          agg.CMV,
		DiscountPct:  discount,
		ThresholdPct: d.opts.ThresholdPct,
		Channels:     d.opts.Channels,
		ScrapedAt:    p.ScrapedAt,
	}
	if d.alerts != nil {
		rec, inserted, err := d.alerts.InsertDealAlert(ctx, alert)
		if err != nil {
			return nil, err
		}
		if !inserted {
			return nil, nil
		}
		alert = rec
	}

	name := p.Name
	if c, err := d.market.GetCigar(ctx, cigarID); err == nil {
		name = c.FullName
	}
	d.dispatch(ctx, alerting.DealNotification{
		CigarName:    name,
		Competitor:   p.CompetitorCode,
		URL:          p.URL,
		PriceSingle:  alert.PriceSingle,
		CMV:          alert.CMV,
		Confidence:   string(agg.Confidence),
		DiscountPct:  alert.DiscountPct,
		ThresholdPct: alert.ThresholdPct,
		Channels:     alert.Channels,
		ScrapedAt:    alert.ScrapedAt,
	})
	return &alert, nil
}

// Simulate pushes a notification for the given prices without touching storage.
func (d *Deals) Simulate(ctx context.Context, name, competitor string, price, cmv decimal.Decimal, note string) (decimal.Decimal, error) {
	discount := decimal.Zero
	if pct := alerting.Discount(price, cmv); pct != nil {
		discount = *pct
	}
	if d.notifier == nil {
		return discount, fmt.Errorf("no notifier configured")
	}
	err := d.notifier.Notify(ctx, alerting.DealNotification{
		CigarName:     name,
		Competitor:    competitor,
		PriceSingle:   price,
		CMV:           cmv,
		DiscountPct:   discount,
		ThresholdPct:  d.opts.ThresholdPct,
		Channels:      d.opts.Channels,
		ScrapedAt:     d.now(),
		AdditionalMsg: note,
	})
	return discount, err
}

func (d *Deals) dispatch(ctx context.Context, note alerting.DealNotification) {
	if d.notifier == nil {
		return
	}
	if err := d.notifier.Notify(ctx, note); err != nil {
		d.logger.Error().Err(err).Str("competitor", note.Competitor).Msg("failed to dispatch deal alert")
	}
}
