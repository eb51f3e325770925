package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DealAlert records a retail offer that undercut the market value.
type DealAlert struct {
	ID           int64
	CigarID      uuid.UUID
	Competitor   string
	PriceSingle  decimal.Decimal
	CMV          decimal.Decimal
	DiscountPct  decimal.Decimal
	ThresholdPct decimal.Decimal
	Channels     []string
	ScrapedAt    time.Time
	CreatedAt    time.Time
}

const (
	insertDealAlertSQL = `INSERT INTO deal_alerts (
        cigar_id, competitor, price_single, cmv, discount_pct, threshold_pct, channels, scraped_at
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8
    )
    ON CONFLICT (cigar_id, competitor, scraped_at) DO NOTHING
    RETURNING id, created_at;`

	recentDealAlertSQL = `SELECT EXISTS (
        SELECT 1 FROM deal_alerts
        WHERE cigar_id = $1 AND competitor = $2 AND created_at >= $3
    );`

	listRecentDealAlertsSQL = `SELECT id, cigar_id, competitor, price_single::text, cmv::text, discount_pct::text,
        threshold_pct::text, channels, scraped_at, created_at
    FROM deal_alerts
    ORDER BY created_at DESC
    LIMIT $1;`

	deleteDealAlertsBeforeSQL = `DELETE FROM deal_alerts WHERE created_at < $1;`
)

// InsertDealAlert persists an alert. It reports false when the same offer was already recorded.
func (s *Store) InsertDealAlert(ctx context.Context, alert DealAlert) (DealAlert, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return DealAlert{}, false, err
	}

	rec := alert
	err = db.QueryRow(ctx, insertDealAlertSQL,
		alert.CigarID,
		alert.Competitor,
		alert.PriceSingle.String(),
		alert.CMV.String(),
		alert.DiscountPct.String(),
		alert.ThresholdPct.String(),
		alert.Channels,
		alert.ScrapedAt.UTC(),
	).Scan(&rec.ID, &rec.CreatedAt)
	if err != nil {
		if isNoRows(err) {
			return alert, false, nil
		}
		return DealAlert{}, false, fmt.Errorf("insert deal alert: %w", err)
	}
	return rec, true, nil
}

// RecentDealAlert reports whether an alert for the cigar and competitor was recorded since the given instant.
func (s *Store) RecentDealAlert(ctx context.Context, cigarID uuid.UUID, competitor string, since time.Time) (bool, error) {
	db, err := s.getDB()
	if err != nil {
		return false, err
	}

	var exists bool
	if err := db.QueryRow(ctx, recentDealAlertSQL, cigarID, competitor, since.UTC()).Scan(&exists); err != nil {
		return false, fmt.Errorf("query recent deal alert: %w", err)
	}
	return exists, nil
}

// ListRecentDealAlerts lists the newest alerts first.
func (s *Store) ListRecentDealAlerts(ctx context.Context, limit int) ([]DealAlert, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	rows, err := db.Query(ctx, listRecentDealAlertsSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("query deal alerts: %w", err)
	}
	defer rows.Close()

	alerts := make([]DealAlert, 0, limit)
	for rows.Next() {
		var (
			rec                          DealAlert
			price, cmv, discount, thresh string
		)
		if err := rows.Scan(&rec.ID, &rec.CigarID, &rec.Competitor, &price, &cmv, &discount, &thresh, &rec.Channels, &rec.ScrapedAt, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan deal alert: %w", err)
		}
		if rec.PriceSingle, err = parseDec(price, "price_single"); err != nil {
			return nil, err
		}
		if rec.CMV, err = parseDec(cmv, "cmv"); err != nil {
			return nil, err
		}
		if rec.DiscountPct, err = parseDec(discount, "discount_pct"); err != nil {
			return nil, err
		}
		if rec.ThresholdPct, err = parseDec(thresh, "threshold_pct"); err != nil {
			return nil, err
		}
		alerts = append(alerts, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate deal alerts: %w", err)
	}
	return alerts, nil
}

// DeleteDealAlertsBefore prunes alerts created before olderThan.
func (s *Store) DeleteDealAlertsBefore(ctx context.Context, olderThan time.Time) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}
	if _, err := db.Exec(ctx, deleteDealAlertsBeforeSQL, olderThan.UTC()); err != nil {
		return fmt.Errorf("delete deal alerts: %w", err)
	}
	return nil
}
