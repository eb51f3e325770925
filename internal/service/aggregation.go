package service

import (
	"context"
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"boxbluebook/internal/apperr"
	"boxbluebook/internal/pricing"
	"boxbluebook/internal/storage"
)

// baselineLookback is how far back the 90-day trend baseline must start.
const baselineLookback = -90

// AggregationStore is the persistence an aggregation run reads and writes.
type AggregationStore interface {
	VerifiedTransactions(ctx context.Context, cigarID uuid.UUID, from, to time.Time) ([]pricing.Transaction, error)
	AggregateAt(ctx context.Context, cigarID uuid.UUID, pt pricing.PeriodType, start time.Time) (*pricing.PriceAggregate, error)
	BaselineAggregate(ctx context.Context, cigarID uuid.UUID, pt pricing.PeriodType, notAfter time.Time) (*pricing.PriceAggregate, error)
	UpsertAggregate(ctx context.Context, agg pricing.PriceAggregate) error
}

// Aggregation recomputes stored aggregates from the transaction ledger.
type Aggregation struct {
	store      AggregationStore
	aggregator *pricing.Aggregator
	locker     storage.TxLocker
	logger     zerolog.Logger
}

// NewAggregation wires the pure aggregator to storage. When store also implements
// storage.TxLocker, each run executes in one transaction holding the advisory lock of its key, so
// runs for the same key are serialized across processes and a run never needs a second connection.
func NewAggregation(store AggregationStore, aggregator *pricing.Aggregator, logger zerolog.Logger) *Aggregation {
	var locker storage.TxLocker
	if l, ok := store.(storage.TxLocker); ok {
		locker = l
	}
	return &Aggregation{
		store:      store,
		aggregator: aggregator,
		locker:     locker,
		logger:     logger.With().Str("component", "aggregation").Logger(),
	}
}

// Run recomputes the aggregate of the period of type pt containing at. It returns nil without
// error when no transaction qualifies; an existing row for the period is then left untouched.
func (a *Aggregation) Run(ctx context.Context, cigarID uuid.UUID, pt pricing.PeriodType, at time.Time) (*pricing.PriceAggregate, error) {
	if !pt.Valid() {
		return nil, fmt.Errorf("period type %q: %w", pt, apperr.ErrMalformedInput)
	}
	period := pt.Bounds(at)

	var (
		res pricing.Result
		err error
	)
	if a.locker == nil {
		res, err = a.compute(ctx, a.store, cigarID, period)
	} else {
		err = a.locker.WithTxLock(ctx, AggregationLockKey(cigarID, pt, period.Start), func(tx storage.AggregationTx) error {
			var runErr error
			res, runErr = a.compute(ctx, tx, cigarID, period)
			return runErr
		})
	}
	if err != nil {
		return nil, err
	}

	if res.Aggregate == nil {
		a.logger.Debug().
			Str("cigar_id", cigarID.String()).
			Str("period_type", string(pt)).
			Time("period_start", period.Start).
			Int("skipped", res.Skipped).
			Msg("no qualifying transactions")
		return nil, nil
	}
	a.logger.Info().
		Str("cigar_id", cigarID.String()).
		Str("period_type", string(pt)).
		Time("period_start", period.Start).
		Int("transactions", res.Considered).
		Int("skipped", res.Skipped).
		Str("cmv", res.Aggregate.CMV.String()).
		Str("confidence", string(res.Aggregate.Confidence)).
		Msg("aggregate upserted")
	return res.Aggregate, nil
}

// compute reads the inputs of one period through store, aggregates them and upserts the result.
func (a *Aggregation) compute(ctx context.Context, store AggregationStore, cigarID uuid.UUID, period pricing.Period) (pricing.Result, error) {
	txs, err := store.VerifiedTransactions(ctx, cigarID, period.Start, period.End)
	if err != nil {
		return pricing.Result{}, fmt.Errorf("load transactions: %w", err)
	}
	prev, err := store.AggregateAt(ctx, cigarID, period.Type, period.Previous().Start)
	if err != nil {
		return pricing.Result{}, fmt.Errorf("load previous aggregate: %w", err)
	}
	baseline, err := store.BaselineAggregate(ctx, cigarID, period.Type, period.Start.AddDate(0, 0, baselineLookback))
	if err != nil {
		return pricing.Result{}, fmt.Errorf("load baseline aggregate: %w", err)
	}

	res := a.aggregator.Aggregate(pricing.AggregateInput{
		CigarID:      cigarID,
		Period:       period,
		Transactions: txs,
		Previous:     prev,
		Baseline90d:  baseline,
	})
	if res.Aggregate == nil {
		return res, nil
	}
	if err := store.UpsertAggregate(ctx, *res.Aggregate); err != nil {
		return pricing.Result{}, err
	}
	return res, nil
}

// BackfillRequest describes a range recompute.
type BackfillRequest struct {
	CigarIDs    []uuid.UUID
	PeriodTypes []pricing.PeriodType
	From        time.Time
	To          time.Time
	Concurrency int
}

// BackfillReport counts what a backfill did.
type BackfillReport struct {
	Periods  int
	Upserted int
	Empty    int
	Failed   int
}

// Backfill recomputes every period overlapping [From, To) for every cigar and period type. Keys
// run in parallel up to Concurrency; failures are counted and logged without stopping the rest.
func (a *Aggregation) Backfill(ctx context.Context, req BackfillRequest) (BackfillReport, error) {
	if !req.To.After(req.From) {
		return BackfillReport{}, fmt.Errorf("backfill range %s..%s: %w", req.From.Format(time.DateOnly), req.To.Format(time.DateOnly), apperr.ErrMalformedInput)
	}
	if req.Concurrency <= 0 {
		req.Concurrency = 1
	}

	type job struct {
		cigarID uuid.UUID
		period  pricing.Period
	}
	jobs := make([]job, 0)
	for _, pt := range req.PeriodTypes {
		for _, p := range pricing.Covering(pt, req.From, req.To) {
			for _, id := range req.CigarIDs {
				jobs = append(jobs, job{cigarID: id, period: p})
			}
		}
	}

	results := make([]int, len(jobs))
	const (
		empty = iota
		upserted
		failed
	)

	// A period's change figures read its predecessor, so each (cigar, type) chain runs oldest first.
	chains := make(map[string][]int)
	order := make([]string, 0)
	for i, j := range jobs {
		k := j.cigarID.String() + "/" + string(j.period.Type)
		if _, ok := chains[k]; !ok {
			order = append(order, k)
		}
		chains[k] = append(chains[k], i)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(req.Concurrency)
	for _, k := range order {
		idx := chains[k]
		g.Go(func() error {
			for _, i := range idx {
				if err := gctx.Err(); err != nil {
					return err
				}
				j := jobs[i]
				agg, err := a.Run(gctx, j.cigarID, j.period.Type, j.period.Start)
				switch {
				case err != nil:
					results[i] = failed
					a.logger.Error().Err(err).
						Str("cigar_id", j.cigarID.String()).
						Str("period_type", string(j.period.Type)).
						Time("period_start", j.period.Start).
						Msg("backfill period failed")
				case agg != nil:
					results[i] = upserted
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return BackfillReport{}, err
	}

	report := BackfillReport{Periods: len(jobs)}
	for _, r := range results {
		switch r {
		case upserted:
			report.Upserted++
		case failed:
			report.Failed++
		default:
			report.Empty++
		}
	}
	return report, nil
}

// AggregationLockKey derives the advisory lock key of one aggregate row.
func AggregationLockKey(cigarID uuid.UUID, pt pricing.PeriodType, start time.Time) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte("aggregate:"))
	_, _ = h.Write(cigarID[:])
	_, _ = h.Write([]byte(pt))
	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(start.UTC().Unix()))
	_, _ = h.Write(ts[:])
	return int64(h.Sum64())
}
