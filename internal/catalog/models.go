// Package catalog holds brand, line and cigar reference data and the helpers used to normalize
// manufacturer price lists into it.
package catalog

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Brand is a cigar manufacturer or marque.
type Brand struct {
	ID         uuid.UUID `json:"id"`
	Name       string    `json:"name"`
	Slug       string    `json:"slug"`
	Country    *string   `json:"country_of_origin"`
	LogoURL    *string   `json:"logo_url"`
	IsActive   bool      `json:"is_active"`
	CigarCount *int      `json:"cigar_count,omitempty"`
}

// Line is a product line within a brand.
type Line struct {
	ID               uuid.UUID `json:"id"`
	BrandID          uuid.UUID `json:"brand_id"`
	BrandName        string    `json:"brand_name"`
	Name             string    `json:"name"`
	Slug             string    `json:"slug"`
	Strength         *string   `json:"strength"`
	IsLimitedEdition bool      `json:"is_limited_edition"`
	IsDiscontinued   bool      `json:"is_discontinued"`
}

// Cigar is a single vitola of a line, joined with its line and brand names.
type Cigar struct {
	ID               uuid.UUID        `json:"id"`
	LineID           uuid.UUID        `json:"line_id"`
	BrandID          uuid.UUID        `json:"brand_id"`
	BrandName        string           `json:"brand_name"`
	LineName         string           `json:"line_name"`
	Name             string           `json:"name"`
	Slug             string           `json:"slug"`
	FullName         string           `json:"full_name"`
	Vitola           string           `json:"vitola"`
	LengthInches     *decimal.Decimal `json:"length_inches"`
	RingGauge        *int             `json:"ring_gauge"`
	BoxCount         *int             `json:"box_count"`
	MSRPPerCigar     *decimal.Decimal `json:"msrp_per_cigar"`
	MSRPPerBox       *decimal.Decimal `json:"msrp_per_box"`
	Wrapper          *string          `json:"wrapper"`
	Strength         *string          `json:"strength"`
	ImageURL         *string          `json:"image_url"`
	IsLimitedEdition bool             `json:"is_limited_edition"`
	IsDiscontinued   bool             `json:"is_discontinued"`
}

// Identity is the slice of a cigar shown at the top of a price comparison.
type Identity struct {
	ID         uuid.UUID        `json:"id"`
	Name       string           `json:"name"`
	Brand      string           `json:"brand"`
	Line       string           `json:"line"`
	Vitola     string           `json:"vitola"`
	MSRPSingle *decimal.Decimal `json:"msrp_single"`
	MSRPBox    *decimal.Decimal `json:"msrp_box"`
}

// Identity projects the cigar onto its comparison header.
func (c Cigar) Identity() Identity {
	return Identity{
		ID:         c.ID,
		Name:       c.FullName,
		Brand:      c.BrandName,
		Line:       c.LineName,
		Vitola:     c.Vitola,
		MSRPSingle: c.MSRPPerCigar,
		MSRPBox:    c.MSRPPerBox,
	}
}

// Entry is one normalized price-list row ready to be written as brand, line and cigar.
type Entry struct {
	Brand        string
	Line         string
	Name         string
	Vitola       string
	Country      *string
	Strength     *string
	Wrapper      *string
	LengthInches *decimal.Decimal
	RingGauge    *int
	BoxCount     *int
	MSRPPerCigar *decimal.Decimal
	MSRPPerBox   *decimal.Decimal
}

// Key identifies the entry for deduplication within one import.
func (e Entry) Key() string {
	return Slugify(e.Brand) + "/" + Slugify(e.Line) + "/" + Slugify(e.Name)
}
