package scrape

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Policy holds the heuristics that decide whether a listed price is per cigar or per box.
type Policy struct {
	// BoxCountPatterns are tried in order against the product name; the first capture group is the count.
	BoxCountPatterns []*regexp.Regexp
	// SinglePriceCeiling is the highest price still read as a single cigar when no box count is found.
	SinglePriceCeiling decimal.Decimal
}

// DefaultPolicy returns the production heuristics.
func DefaultPolicy() Policy {
	return Policy{
		BoxCountPatterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)box\s*of\s*(\d+)`),
			regexp.MustCompile(`(?i)(\d+)\s*(?:ct|count|pack)`),
		},
		SinglePriceCeiling: decimal.NewFromInt(50),
	}
}

// BoxCount returns the number of cigars the name says are included, if any.
func (p Policy) BoxCount(name string) *int {
	for _, re := range p.BoxCountPatterns {
		m := re.FindStringSubmatch(name)
		if len(m) < 2 {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		return &n
	}
	return nil
}

// Normalizer converts raw products into ScrapedProducts.
type Normalizer struct {
	Policy Policy
}

// NewNormalizer returns a normalizer using policy.
func NewNormalizer(policy Policy) Normalizer {
	return Normalizer{Policy: policy}
}

// Normalize is deterministic: identical inputs give identical output.
func (n Normalizer) Normalize(raw RawProduct, code string, scrapedAt time.Time) ScrapedProduct {
	out := ScrapedProduct{
		Name:           raw.Name,
		BoxCount:       n.Policy.BoxCount(raw.Name),
		Currency:       raw.Currency,
		URL:            raw.URL,
		CompetitorCode: code,
		ScrapedAt:      scrapedAt,
	}
	if out.Name == "" {
		out.Name = "Unknown"
	}
	if out.Currency == "" {
		out.Currency = "USD"
	}

	price := positive(raw.Price)
	if price != nil {
		switch {
		case out.BoxCount != nil && *out.BoxCount > 1:
			box := *price
			single := price.Div(decimal.NewFromInt(int64(*out.BoxCount))).Round(2)
			out.PriceBox = &box
			out.PriceSingle = &single
		case price.GreaterThan(n.Policy.SinglePriceCeiling):
			box := *price
			out.PriceBox = &box
		default:
			single := *price
			out.PriceSingle = &single
		}
	}

	availability := strings.ToLower(raw.Availability)
	out.InStock = !strings.Contains(availability, "out") && !strings.Contains(availability, "unavailable")

	out.RegularPrice = positive(raw.RegularPrice)
	out.IsOnSale = out.RegularPrice != nil && price != nil && price.LessThan(*out.RegularPrice)

	if raw.SKU != "" {
		sku := raw.SKU
		out.SKU = &sku
	}
	if r := raw.AggregateRating; r != nil {
		if r.RatingValue != nil && *r.RatingValue != 0 {
			v := *r.RatingValue
			out.Rating = &v
		}
		if r.ReviewCount != nil && *r.ReviewCount != 0 {
			c := *r.ReviewCount
			out.ReviewCount = &c
		}
	}
	return out
}

// NormalizeAll normalizes a page of products with a shared scrape time.
func (n Normalizer) NormalizeAll(raws []RawProduct, code string, scrapedAt time.Time) []ScrapedProduct {
	out := make([]ScrapedProduct, 0, len(raws))
	for _, raw := range raws {
		out = append(out, n.Normalize(raw, code, scrapedAt))
	}
	return out
}

func positive(d *decimal.Decimal) *decimal.Decimal {
	if d == nil || d.Sign() <= 0 {
		return nil
	}
	v := *d
	return &v
}
