package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"boxbluebook/internal/pricing"
	"boxbluebook/internal/service"
)

// AggregateOptions configure a single aggregation run.
type AggregateOptions struct {
	CigarID    uuid.UUID
	PeriodType pricing.PeriodType
	At         time.Time
	Out        io.Writer
}

// Aggregate recomputes one period aggregate and prints it.
func (a *App) Aggregate(ctx context.Context, opts AggregateOptions) error {
	c, err := a.build(ctx, buildOptions{requireStore: true})
	if err != nil {
		return err
	}
	defer c.Close()

	agg, err := c.aggregation.Run(ctx, opts.CigarID, opts.PeriodType, opts.At)
	if err != nil {
		return err
	}
	if agg == nil {
		fmt.Fprintf(opts.Out, "no verified transactions in %s period containing %s\n", opts.PeriodType, opts.At.Format(time.DateOnly))
		return nil
	}
	return writeJSON(opts.Out, agg)
}

// BackfillOptions configure the backfill job.
type BackfillOptions struct {
	From        time.Time
	To          time.Time
	CigarIDs    []uuid.UUID
	PeriodTypes []pricing.PeriodType
	Workers     int
	Out         io.Writer
}

// Backfill recomputes aggregates over a historical range. Without explicit cigars it covers every
// cigar with a transaction since From.
func (a *App) Backfill(ctx context.Context, opts BackfillOptions) error {
	if !opts.From.Before(opts.To) {
		return errors.New("backfill range is empty; check --from/--to")
	}

	c, err := a.build(ctx, buildOptions{requireStore: true})
	if err != nil {
		return err
	}
	defer c.Close()

	ids := opts.CigarIDs
	if len(ids) == 0 {
		ids, err = c.store.CigarsWithTransactionsSince(ctx, opts.From)
		if err != nil {
			return err
		}
	}
	periodTypes := opts.PeriodTypes
	if len(periodTypes) == 0 {
		if periodTypes, err = a.Config.PeriodTypes(); err != nil {
			return err
		}
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = a.Config.Aggregation.BackfillConcurrency
	}

	report, err := c.aggregation.Backfill(ctx, service.BackfillRequest{
		CigarIDs:    ids,
		PeriodTypes: periodTypes,
		From:        opts.From.UTC(),
		To:          opts.To.UTC(),
		Concurrency: workers,
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(opts.Out, "cigars: %d periods: %d upserted: %d empty: %d failed: %d\n",
		len(ids), report.Periods, report.Upserted, report.Empty, report.Failed)
	if report.Failed > 0 {
		return fmt.Errorf("%d periods failed to backfill; check the logs", report.Failed)
	}
	return nil
}
