package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"boxbluebook/internal/pricing"
)

const aggregateColumns = `cigar_id, period_type, period_start, period_end, avg_price::text, median_price::text,
        min_price::text, max_price::text, transaction_count, total_volume, price_change_pct::text,
        price_change_90d::text, cmv::text, cmv_confidence`

const (
	upsertAggregateSQL = `INSERT INTO price_aggregates (
        cigar_id, period_type, period_start, period_end, avg_price, median_price, min_price, max_price,
        transaction_count, total_volume, price_change_pct, price_change_90d, cmv, cmv_confidence
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14
    )
    ON CONFLICT (cigar_id, period_type, period_start) DO UPDATE
    SET period_end        = EXCLUDED.period_end,
        avg_price         = EXCLUDED.avg_price,
        median_price      = EXCLUDED.median_price,
        min_price         = EXCLUDED.min_price,
        max_price         = EXCLUDED.max_price,
        transaction_count = EXCLUDED.transaction_count,
        total_volume      = EXCLUDED.total_volume,
        price_change_pct  = EXCLUDED.price_change_pct,
        price_change_90d  = EXCLUDED.price_change_90d,
        cmv               = EXCLUDED.cmv,
        cmv_confidence    = EXCLUDED.cmv_confidence,
        updated_at        = now();`

	aggregateAtSQL = `SELECT ` + aggregateColumns + `
    FROM price_aggregates
    WHERE cigar_id = $1 AND period_type = $2 AND period_start = $3;`

	latestAggregateSQL = `SELECT ` + aggregateColumns + `
    FROM price_aggregates
    WHERE cigar_id = $1 AND period_type = $2
    ORDER BY period_start DESC
    LIMIT 1;`

	baselineAggregateSQL = `SELECT ` + aggregateColumns + `
    FROM price_aggregates
    WHERE cigar_id = $1 AND period_type = $2 AND period_start <= $3
    ORDER BY period_start DESC
    LIMIT 1;`

	trendCandidatesSQL = `SELECT a.cigar_id, c.full_name, b.name, l.name, a.period_start, a.cmv::text,
        a.price_change_pct::text, a.cmv_confidence, a.transaction_count, a.total_volume
    FROM price_aggregates a
    JOIN cigars c ON c.id = a.cigar_id
    JOIN lines l ON l.id = c.line_id
    JOIN brands b ON b.id = l.brand_id
    WHERE a.period_type = $1
      AND a.period_start >= $2
      AND a.price_change_pct IS NOT NULL
      AND a.cmv_confidence IN ('medium', 'high')
    ORDER BY a.period_start DESC;`
)

// UpsertAggregate writes the aggregate under its (cigar, period type, period start) key.
func (s *Store) UpsertAggregate(ctx context.Context, agg pricing.PriceAggregate) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	_, err = db.Exec(ctx, upsertAggregateSQL,
		agg.CigarID,
		string(agg.PeriodType),
		agg.PeriodStart.UTC(),
		agg.PeriodEnd.UTC(),
		agg.AvgPrice.String(),
		agg.MedianPrice.String(),
		agg.MinPrice.String(),
		agg.MaxPrice.String(),
		agg.TransactionCount,
		agg.TotalVolume,
		decArg(agg.PriceChangePct),
		decArg(agg.PriceChange90d),
		agg.CMV.String(),
		string(agg.Confidence),
	)
	if err != nil {
		return fmt.Errorf("upsert aggregate %s/%s/%s: %w", agg.CigarID, agg.PeriodType, agg.PeriodStart.Format(time.DateOnly), err)
	}
	return nil
}

// AggregateAt returns the aggregate stored under the exact key, or nil.
func (s *Store) AggregateAt(ctx context.Context, cigarID uuid.UUID, pt pricing.PeriodType, start time.Time) (*pricing.PriceAggregate, error) {
	return s.optionalAggregate(ctx, "aggregate at", aggregateAtSQL, cigarID, string(pt), start.UTC())
}

// LatestAggregate returns the newest aggregate of the given period type, or nil.
func (s *Store) LatestAggregate(ctx context.Context, cigarID uuid.UUID, pt pricing.PeriodType) (*pricing.PriceAggregate, error) {
	return s.optionalAggregate(ctx, "latest aggregate", latestAggregateSQL, cigarID, string(pt))
}

// BaselineAggregate returns the newest aggregate starting at or before notAfter, or nil.
func (s *Store) BaselineAggregate(ctx context.Context, cigarID uuid.UUID, pt pricing.PeriodType, notAfter time.Time) (*pricing.PriceAggregate, error) {
	return s.optionalAggregate(ctx, "baseline aggregate", baselineAggregateSQL, cigarID, string(pt), notAfter.UTC())
}

// ListAggregates returns a cigar's aggregates, newest first, bounded by q.
func (s *Store) ListAggregates(ctx context.Context, cigarID uuid.UUID, q pricing.HistoryQuery) ([]pricing.PriceAggregate, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	query, args := buildHistorySQL(cigarID, q)
	rows, err := db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list aggregates: %w", err)
	}
	defer rows.Close()

	out := make([]pricing.PriceAggregate, 0)
	for rows.Next() {
		agg, err := scanAggregate(rows)
		if err != nil {
			return nil, fmt.Errorf("list aggregates: %w", err)
		}
		out = append(out, agg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list aggregates: %w", err)
	}
	return out, nil
}

func buildHistorySQL(cigarID uuid.UUID, q pricing.HistoryQuery) (string, []any) {
	args := []any{cigarID, string(q.PeriodType)}
	where := []string{"cigar_id = $1", "period_type = $2"}
	if q.From != nil {
		args = append(args, q.From.UTC())
		where = append(where, fmt.Sprintf("period_start >= $%d", len(args)))
	}
	if q.To != nil {
		args = append(args, q.To.UTC())
		where = append(where, fmt.Sprintf("period_start <= $%d", len(args)))
	}
	args = append(args, pricing.ClampHistoryLimit(q.Limit))

	query := fmt.Sprintf(`SELECT %s
    FROM price_aggregates
    WHERE %s
    ORDER BY period_start DESC
    LIMIT $%d;`, aggregateColumns, strings.Join(where, " AND "), len(args))
	return query, args
}

// TrendCandidates lists weekly aggregates since the given instant that qualify for the movers list.
func (s *Store) TrendCandidates(ctx context.Context, since time.Time) ([]pricing.TrendCandidate, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	rows, err := db.Query(ctx, trendCandidatesSQL, string(pricing.PeriodWeekly), since.UTC())
	if err != nil {
		return nil, fmt.Errorf("query trend candidates: %w", err)
	}
	defer rows.Close()

	out := make([]pricing.TrendCandidate, 0)
	for rows.Next() {
		var (
			c               pricing.TrendCandidate
			cmv, change, cf string
		)
		if err := rows.Scan(
			&c.CigarID,
			&c.CigarName,
			&c.BrandName,
			&c.LineName,
			&c.PeriodStart,
			&cmv,
			&change,
			&cf,
			&c.TransactionCount,
			&c.TotalVolume,
		); err != nil {
			return nil, fmt.Errorf("scan trend candidate: %w", err)
		}
		if c.CMV, err = parseDec(cmv, "cmv"); err != nil {
			return nil, err
		}
		if c.PriceChangePct, err = parseDec(change, "price_change_pct"); err != nil {
			return nil, err
		}
		c.Confidence = pricing.Confidence(cf)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trend candidates: %w", err)
	}
	return out, nil
}

func (s *Store) optionalAggregate(ctx context.Context, op, query string, args ...any) (*pricing.PriceAggregate, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}
	agg, err := scanAggregate(db.QueryRow(ctx, query, args...))
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &agg, nil
}

func scanAggregate(row interface{ Scan(...any) error }) (pricing.PriceAggregate, error) {
	var (
		agg                      pricing.PriceAggregate
		pt, cf                   string
		avg, median, lo, hi, cmv string
		changePct, change90d     *string
	)
	if err := row.Scan(
		&agg.CigarID,
		&pt,
		&agg.PeriodStart,
		&agg.PeriodEnd,
		&avg,
		&median,
		&lo,
		&hi,
		&agg.TransactionCount,
		&agg.TotalVolume,
		&changePct,
		&change90d,
		&cmv,
		&cf,
	); err != nil {
		return pricing.PriceAggregate{}, err
	}

	var err error
	for _, f := range []struct {
		dst  *decimal.Decimal
		src  string
		name string
	}{
		{&agg.AvgPrice, avg, "avg_price"},
		{&agg.MedianPrice, median, "median_price"},
		{&agg.MinPrice, lo, "min_price"},
		{&agg.MaxPrice, hi, "max_price"},
		{&agg.CMV, cmv, "cmv"},
	} {
		if *f.dst, err = parseDec(f.src, f.name); err != nil {
			return pricing.PriceAggregate{}, err
		}
	}
	if agg.PriceChangePct, err = parseOptDec(changePct, "price_change_pct"); err != nil {
		return pricing.PriceAggregate{}, err
	}
	if agg.PriceChange90d, err = parseOptDec(change90d, "price_change_90d"); err != nil {
		return pricing.PriceAggregate{}, err
	}
	agg.PeriodType = pricing.PeriodType(pt)
	agg.Confidence = pricing.Confidence(cf)
	agg.PeriodStart = agg.PeriodStart.UTC()
	agg.PeriodEnd = agg.PeriodEnd.UTC()
	return agg, nil
}
