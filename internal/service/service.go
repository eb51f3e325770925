// Package service orchestrates the pricing core: aggregation runs, scraping with persistence and
// deal alerts, read-side market views, and the scheduled worker that drives them.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"boxbluebook/internal/pricing"
	"boxbluebook/internal/scheduler"
	"boxbluebook/internal/storage"
)

// ActiveCigars lists cigars with recent market activity.
type ActiveCigars interface {
	CigarsWithTransactionsSince(ctx context.Context, since time.Time) ([]uuid.UUID, error)
}

// AlertPruner deletes deal alerts older than a cutoff.
type AlertPruner interface {
	DeleteDealAlertsBefore(ctx context.Context, olderThan time.Time) error
}

// WorkerOptions tune the scheduled jobs.
type WorkerOptions struct {
	PeriodTypes  []pricing.PeriodType
	LookbackDays int
	// LockKey guards the aggregation job; the scrape job uses LockKey+1. Zero disables locking.
	LockKey     int64
	Competitors []string
	// AlertRetention prunes deal alerts older than this after each aggregation tick. Zero keeps them.
	AlertRetention time.Duration
}

// Worker runs periodic aggregation and catalog scrapes.
type Worker struct {
	aggregate   *scheduler.Scheduler
	scrape      *scheduler.Scheduler
	aggregation *Aggregation
	scraping    *Scraping
	cigars      ActiveCigars
	locker      storage.AdvisoryLocker
	pruner      AlertPruner
	opts        WorkerOptions
	logger      zerolog.Logger
}

// NewWorker constructs the background worker. scrapeSched and scraping may be nil to disable
// scheduled scrapes.
func NewWorker(opts WorkerOptions, aggregateSched, scrapeSched *scheduler.Scheduler, aggregation *Aggregation, scraping *Scraping, cigars ActiveCigars, logger zerolog.Logger) *Worker {
	if opts.LookbackDays <= 0 {
		opts.LookbackDays = 1
	}
	var locker storage.AdvisoryLocker
	if l, ok := cigars.(storage.AdvisoryLocker); ok {
		locker = l
	}
	var pruner AlertPruner
	if p, ok := cigars.(AlertPruner); ok {
		pruner = p
	}
	return &Worker{
		aggregate:   aggregateSched,
		scrape:      scrapeSched,
		aggregation: aggregation,
		scraping:    scraping,
		cigars:      cigars,
		locker:      locker,
		pruner:      pruner,
		opts:        opts,
		logger:      logger.With().Str("component", "worker").Logger(),
	}
}

// Run blocks until ctx is cancelled, driving every configured job.
func (w *Worker) Run(ctx context.Context) error {
	if w.aggregate == nil {
		return errors.New("aggregation scheduler not configured")
	}
	if w.scraping != nil {
		if err := w.scraping.RegisterCompetitors(ctx); err != nil {
			return fmt.Errorf("register competitors: %w", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return w.aggregate.Run(gctx, w.ProcessBucket) })
	if w.scrape != nil && w.scraping != nil {
		g.Go(func() error { return w.scrape.Run(gctx, w.ProcessScrape) })
	}
	return g.Wait()
}

// ProcessBucket recomputes the current and previous period of every configured type for each
// cigar traded within the lookback window.
func (w *Worker) ProcessBucket(ctx context.Context, bucket time.Time) error {
	unlock, proceed, err := w.acquireLock(ctx, w.opts.LockKey)
	if err != nil {
		return err
	}
	if !proceed {
		w.logger.Debug().Time("bucket", bucket).Msg("skip aggregation because advisory lock held elsewhere")
		return nil
	}
	if unlock != nil {
		defer unlock()
	}

	since := bucket.AddDate(0, 0, -w.opts.LookbackDays)
	ids, err := w.cigars.CigarsWithTransactionsSince(ctx, since)
	if err != nil {
		return fmt.Errorf("list active cigars: %w", err)
	}

	var upserted, failed int
	for _, id := range ids {
		for _, pt := range w.opts.PeriodTypes {
			current := pt.Bounds(bucket)
			for _, p := range []pricing.Period{current.Previous(), current} {
				agg, err := w.aggregation.Run(ctx, id, pt, p.Start)
				if err != nil {
					failed++
					w.logger.Error().Err(err).
						Str("cigar_id", id.String()).
						Str("period_type", string(pt)).
						Time("period_start", p.Start).
						Msg("aggregation failed")
					continue
				}
				if agg != nil {
					upserted++
				}
			}
		}
	}

	w.logger.Info().Time("bucket", bucket).
		Int("cigars", len(ids)).
		Int("upserted", upserted).
		Int("failed", failed).
		Msg("aggregation bucket processed")

	w.pruneAlerts(ctx, bucket)
	return nil
}

func (w *Worker) pruneAlerts(ctx context.Context, bucket time.Time) {
	if w.pruner == nil || w.opts.AlertRetention <= 0 {
		return
	}
	cutoff := bucket.Add(-w.opts.AlertRetention)
	if err := w.pruner.DeleteDealAlertsBefore(ctx, cutoff); err != nil {
		w.logger.Warn().Err(err).Time("cutoff", cutoff).Msg("prune deal alerts failed")
	}
}

// ProcessScrape scrapes the configured competitor catalogs once.
func (w *Worker) ProcessScrape(ctx context.Context, bucket time.Time) error {
	if w.scraping == nil {
		return nil
	}
	key := w.opts.LockKey
	if key != 0 {
		key++
	}
	unlock, proceed, err := w.acquireLock(ctx, key)
	if err != nil {
		return err
	}
	if !proceed {
		w.logger.Debug().Time("bucket", bucket).Msg("skip scrape because advisory lock held elsewhere")
		return nil
	}
	if unlock != nil {
		defer unlock()
	}

	_, reports := w.scraping.ScrapeCatalogs(ctx, w.opts.Competitors)
	failed := 0
	for _, r := range reports {
		if r.Error != "" {
			failed++
		}
	}
	w.logger.Info().Time("bucket", bucket).
		Int("competitors", len(reports)).
		Int("failed", failed).
		Msg("scrape bucket processed")
	return nil
}

func (w *Worker) acquireLock(ctx context.Context, key int64) (func(), bool, error) {
	if key == 0 || w.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := w.locker.TryAdvisoryLock(ctx, key)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}
