// Package pricing derives per-period market summaries and Current Market Value (CMV) from the
// collector transaction ledger.
package pricing

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionSource identifies the marketplace a transaction was observed on.
type TransactionSource string

// Transaction sources.
const (
	SourceEbay         TransactionSource = "ebay"
	SourceCigarBid     TransactionSource = "cigarbid"
	SourceCBid         TransactionSource = "cbid"
	SourceFoxCigar     TransactionSource = "foxcigar"
	SourceManual       TransactionSource = "manual"
	SourceUserReported TransactionSource = "user_reported"
)

// Valid reports whether s is a known source.
func (s TransactionSource) Valid() bool {
	switch s {
	case SourceEbay, SourceCigarBid, SourceCBid, SourceFoxCigar, SourceManual, SourceUserReported:
		return true
	}
	return false
}

// TransactionType is the sale mechanism.
type TransactionType string

// Transaction types.
const (
	TypeSale          TransactionType = "sale"
	TypeAuction       TransactionType = "auction"
	TypeBuyNow        TransactionType = "buy_now"
	TypeOfferAccepted TransactionType = "offer_accepted"
)

// Valid reports whether t is a known sale mechanism.
func (t TransactionType) Valid() bool {
	switch t {
	case TypeSale, TypeAuction, TypeBuyNow, TypeOfferAccepted:
		return true
	}
	return false
}

// Condition describes the physical state of the sold cigars.
type Condition string

// Conditions.
const (
	ConditionNewSealed Condition = "new_sealed"
	ConditionNewOpened Condition = "new_opened"
	ConditionAged      Condition = "aged"
	ConditionVintage   Condition = "vintage"
	ConditionUnknown   Condition = "unknown"
)

// Valid reports whether c is a known condition.
func (c Condition) Valid() bool {
	switch c {
	case ConditionNewSealed, ConditionNewOpened, ConditionAged, ConditionVintage, ConditionUnknown:
		return true
	}
	return false
}

// Transaction is one observed secondary-market sale. Rows are append-only.
type Transaction struct {
	ID              uuid.UUID
	CigarID         uuid.UUID
	Source          TransactionSource
	Type            TransactionType
	Quantity        int
	UnitPrice       decimal.Decimal
	TotalPrice      decimal.Decimal
	Condition       Condition
	BoxCodeID       *uuid.UUID
	TransactionDate time.Time
	ScrapedAt       time.Time
	Verified        bool
}

// PriceAggregate summarizes the verified transactions of one cigar within one period.
type PriceAggregate struct {
	CigarID          uuid.UUID        `json:"cigar_id"`
	PeriodType       PeriodType       `json:"period_type"`
	PeriodStart      time.Time        `json:"period_start"`
	PeriodEnd        time.Time        `json:"period_end"`
	AvgPrice         decimal.Decimal  `json:"avg_price"`
	MedianPrice      decimal.Decimal  `json:"median_price"`
	MinPrice         decimal.Decimal  `json:"min_price"`
	MaxPrice         decimal.Decimal  `json:"max_price"`
	TransactionCount int              `json:"transaction_count"`
	TotalVolume      int              `json:"total_volume"`
	PriceChangePct   *decimal.Decimal `json:"price_change_pct"`
	PriceChange90d   *decimal.Decimal `json:"price_change_90d"`
	CMV              decimal.Decimal  `json:"cmv"`
	Confidence       Confidence       `json:"cmv_confidence"`
}

// Key returns the upsert key of the aggregate.
func (a PriceAggregate) Key() Key {
	return Key{CigarID: a.CigarID, PeriodType: a.PeriodType, PeriodStart: a.PeriodStart}
}

// Key identifies one aggregate row.
type Key struct {
	CigarID     uuid.UUID
	PeriodType  PeriodType
	PeriodStart time.Time
}

// LastSale is the most recent verified transaction, as shown next to retail prices.
type LastSale struct {
	Price  decimal.Decimal   `json:"price"`
	Source TransactionSource `json:"source"`
	Date   time.Time         `json:"date"`
}
