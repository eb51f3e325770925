package catalog

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"boxbluebook/internal/apperr"
)

// Listing limits.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// SortField selects the catalog listing order.
type SortField string

// Sort fields.
const (
	SortName  SortField = "name"
	SortPrice SortField = "price"
)

// Filter narrows the catalog listing.
type Filter struct {
	Query     string
	BrandID   *uuid.UUID
	Strength  string
	Limited   bool
	SortBy    SortField
	Ascending bool
	Page      int
	Limit     int
}

// Offset is the row offset of the requested page.
func (f Filter) Offset() int {
	return (f.Page - 1) * f.Limit
}

// Page is one page of a catalog listing.
type Page struct {
	Cigars  []Cigar `json:"cigars"`
	Total   int     `json:"total"`
	Page    int     `json:"page"`
	Limit   int     `json:"limit"`
	HasMore bool    `json:"has_more"`
}

// NewPage assembles a page envelope for f.
func NewPage(cigars []Cigar, total int, f Filter) Page {
	return Page{
		Cigars:  cigars,
		Total:   total,
		Page:    f.Page,
		Limit:   f.Limit,
		HasMore: total > f.Offset()+f.Limit,
	}
}

// ParseFilter validates raw listing parameters and fills defaults.
func ParseFilter(query, brandID, strength, sortBy, order string, limited bool, page, limit int) (Filter, error) {
	f := Filter{
		Query:     strings.TrimSpace(query),
		Strength:  strings.TrimSpace(strength),
		Limited:   limited,
		SortBy:    SortName,
		Ascending: true,
		Page:      page,
		Limit:     limit,
	}

	if brandID != "" {
		id, err := uuid.Parse(brandID)
		if err != nil {
			return Filter{}, fmt.Errorf("brand_id %q: %w", brandID, apperr.ErrMalformedInput)
		}
		f.BrandID = &id
	}

	switch SortField(sortBy) {
	case "", SortName:
	case SortPrice:
		f.SortBy = SortPrice
	default:
		return Filter{}, fmt.Errorf("sort_by %q: %w", sortBy, apperr.ErrMalformedInput)
	}

	switch strings.ToLower(order) {
	case "", "asc":
	case "desc":
		f.Ascending = false
	default:
		return Filter{}, fmt.Errorf("sort_order %q: %w", order, apperr.ErrMalformedInput)
	}

	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit <= 0 {
		f.Limit = DefaultPageSize
	}
	if f.Limit > MaxPageSize {
		f.Limit = MaxPageSize
	}
	return f, nil
}
