package app

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"boxbluebook/internal/apperr"
	"boxbluebook/internal/pricing"
)

// RecordSaleOptions describe one secondary-market sale entered by hand.
type RecordSaleOptions struct {
	CigarID   uuid.UUID
	Source    pricing.TransactionSource
	Type      pricing.TransactionType
	Condition pricing.Condition
	Quantity  int
	UnitPrice decimal.Decimal
	Date      time.Time
	Verified  bool
	Out       io.Writer
}

// RecordSale appends a sale to the ledger. A verified sale immediately refreshes the aggregates
// of every configured period containing it.
func (a *App) RecordSale(ctx context.Context, opts RecordSaleOptions) error {
	tx, err := newSaleTransaction(opts)
	if err != nil {
		return err
	}
	periodTypes, err := a.Config.PeriodTypes()
	if err != nil {
		return err
	}

	c, err := a.build(ctx, buildOptions{requireStore: true})
	if err != nil {
		return err
	}
	defer c.Close()

	if _, err := c.store.GetCigar(ctx, tx.CigarID); err != nil {
		return err
	}
	if err := c.store.InsertTransaction(ctx, &tx); err != nil {
		return err
	}
	fmt.Fprintf(opts.Out, "recorded transaction %s (%s x%d at %s)\n", tx.ID, tx.Source, tx.Quantity, tx.UnitPrice.StringFixed(2))

	if !tx.Verified {
		return nil
	}
	for _, pt := range periodTypes {
		agg, err := c.aggregation.Run(ctx, tx.CigarID, pt, tx.TransactionDate)
		if err != nil {
			return err
		}
		if agg != nil {
			fmt.Fprintf(opts.Out, "%s cmv %s (%s, %d sales)\n", pt, agg.CMV.StringFixed(2), agg.Confidence, agg.TransactionCount)
		}
	}
	if err := c.assembler.Invalidate(ctx, tx.CigarID); err != nil {
		a.Logger.Warn().Err(err).Str("cigar_id", tx.CigarID.String()).Msg("invalidate cached comparison failed")
	}
	return nil
}

func newSaleTransaction(opts RecordSaleOptions) (pricing.Transaction, error) {
	if opts.Condition == "" {
		opts.Condition = pricing.ConditionUnknown
	}
	if opts.Type == "" {
		opts.Type = pricing.TypeSale
	}
	switch {
	case opts.CigarID == uuid.Nil:
		return pricing.Transaction{}, fmt.Errorf("cigar id is required: %w", apperr.ErrMalformedInput)
	case !opts.Source.Valid():
		return pricing.Transaction{}, fmt.Errorf("source %q: %w", opts.Source, apperr.ErrMalformedInput)
	case !opts.Type.Valid():
		return pricing.Transaction{}, fmt.Errorf("transaction type %q: %w", opts.Type, apperr.ErrMalformedInput)
	case !opts.Condition.Valid():
		return pricing.Transaction{}, fmt.Errorf("condition %q: %w", opts.Condition, apperr.ErrMalformedInput)
	case opts.Quantity <= 0:
		return pricing.Transaction{}, fmt.Errorf("quantity must be positive: %w", apperr.ErrMalformedInput)
	case !opts.UnitPrice.IsPositive():
		return pricing.Transaction{}, fmt.Errorf("unit price must be positive: %w", apperr.ErrMalformedInput)
	case opts.Date.IsZero():
		return pricing.Transaction{}, fmt.Errorf("sale date is required: %w", apperr.ErrMalformedInput)
	}

	price := opts.UnitPrice.Round(2)
	return pricing.Transaction{
		CigarID:         opts.CigarID,
		Source:          opts.Source,
		Type:            opts.Type,
		Quantity:        opts.Quantity,
		UnitPrice:       price,
		TotalPrice:      price.Mul(decimal.NewFromInt(int64(opts.Quantity))),
		Condition:       opts.Condition,
		TransactionDate: opts.Date.UTC(),
		Verified:        opts.Verified,
	}, nil
}
