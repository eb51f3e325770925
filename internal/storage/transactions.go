package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"boxbluebook/internal/pricing"
)

const (
	transactionsInRangeSQL = `SELECT id, cigar_id, source, transaction_type, quantity, unit_price::text, total_price::text,
        condition, box_code_id, transaction_date, scraped_at, verified
    FROM transactions
    WHERE cigar_id = $1 AND verified AND transaction_date >= $2 AND transaction_date < $3
    ORDER BY transaction_date;`

	lastSaleSQL = `SELECT unit_price::text, source, transaction_date
    FROM transactions
    WHERE cigar_id = $1 AND verified
    ORDER BY transaction_date DESC
    LIMIT 1;`

	cigarsWithTransactionsSQL = `SELECT DISTINCT cigar_id
    FROM transactions
    WHERE verified AND transaction_date >= $1
    ORDER BY cigar_id;`

	insertTransactionSQL = `INSERT INTO transactions (
        cigar_id, source, transaction_type, quantity, unit_price, total_price, condition,
        box_code_id, transaction_date, verified
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10
    )
    RETURNING id, scraped_at;`
)

// VerifiedTransactions returns the verified transactions of a cigar dated within [from, to).
func (s *Store) VerifiedTransactions(ctx context.Context, cigarID uuid.UUID, from, to time.Time) ([]pricing.Transaction, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	rows, err := db.Query(ctx, transactionsInRangeSQL, cigarID, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	out := make([]pricing.Transaction, 0)
	for rows.Next() {
		var (
			tx                 pricing.Transaction
			unitPrice, total   string
			source, kind, cond string
		)
		if err := rows.Scan(
			&tx.ID,
			&tx.CigarID,
			&source,
			&kind,
			&tx.Quantity,
			&unitPrice,
			&total,
			&cond,
			&tx.BoxCodeID,
			&tx.TransactionDate,
			&tx.ScrapedAt,
			&tx.Verified,
		); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		if tx.UnitPrice, err = parseDec(unitPrice, "unit_price"); err != nil {
			return nil, err
		}
		if tx.TotalPrice, err = parseDec(total, "total_price"); err != nil {
			return nil, err
		}
		tx.Source = pricing.TransactionSource(source)
		tx.Type = pricing.TransactionType(kind)
		tx.Condition = pricing.Condition(cond)
		out = append(out, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return out, nil
}

// LastSale returns the most recent verified transaction of a cigar, or nil when it has none.
func (s *Store) LastSale(ctx context.Context, cigarID uuid.UUID) (*pricing.LastSale, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	var (
		price, source string
		sale          pricing.LastSale
	)
	err = db.QueryRow(ctx, lastSaleSQL, cigarID).Scan(&price, &source, &sale.Date)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("query last sale: %w", err)
	}
	if sale.Price, err = parseDec(price, "unit_price"); err != nil {
		return nil, err
	}
	sale.Source = pricing.TransactionSource(source)
	return &sale, nil
}

// CigarsWithTransactionsSince lists cigars with at least one verified transaction at or after since.
func (s *Store) CigarsWithTransactionsSince(ctx context.Context, since time.Time) ([]uuid.UUID, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	rows, err := db.Query(ctx, cigarsWithTransactionsSQL, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("query active cigars: %w", err)
	}
	defer rows.Close()

	ids := make([]uuid.UUID, 0)
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan cigar id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cigar ids: %w", err)
	}
	return ids, nil
}

// InsertTransaction appends one transaction to the ledger and fills its generated fields.
func (s *Store) InsertTransaction(ctx context.Context, tx *pricing.Transaction) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}
	if tx.Condition == "" {
		tx.Condition = pricing.ConditionUnknown
	}

	err = db.QueryRow(ctx, insertTransactionSQL,
		tx.CigarID,
		string(tx.Source),
		string(tx.Type),
		tx.Quantity,
		tx.UnitPrice.String(),
		tx.TotalPrice.String(),
		string(tx.Condition),
		tx.BoxCodeID,
		tx.TransactionDate.UTC(),
		tx.Verified,
	).Scan(&tx.ID, &tx.ScrapedAt)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}
