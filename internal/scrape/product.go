// Package scrape fetches competitor listings and normalizes them into comparable prices.
package scrape

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Rating is the review block attached to a product page.
type Rating struct {
	RatingValue *float64 `json:"ratingValue,omitempty"`
	ReviewCount *int     `json:"reviewCount,omitempty"`
}

// RawProduct is a product as extracted from a retailer page, before normalization.
type RawProduct struct {
	Name            string           `json:"name,omitempty"`
	Price           *decimal.Decimal `json:"price,omitempty"`
	Currency        string           `json:"currency,omitempty"`
	Availability    string           `json:"availability,omitempty"`
	SKU             string           `json:"sku,omitempty"`
	URL             string           `json:"url,omitempty"`
	RegularPrice    *decimal.Decimal `json:"regularPrice,omitempty"`
	Brand           *ZyteBrand       `json:"brand,omitempty"`
	AggregateRating *Rating          `json:"aggregateRating,omitempty"`
}

// ZyteBrand is the brand object of the Zyte product schema.
type ZyteBrand struct {
	Name string `json:"name,omitempty"`
}

// ScrapedProduct is a normalized competitor listing.
type ScrapedProduct struct {
	Name           string           `json:"name"`
	PriceSingle    *decimal.Decimal `json:"price_single"`
	PriceBox       *decimal.Decimal `json:"price_box"`
	BoxCount       *int             `json:"box_count"`
	Currency       string           `json:"currency"`
	InStock        bool             `json:"in_stock"`
	IsOnSale       bool             `json:"is_on_sale"`
	RegularPrice   *decimal.Decimal `json:"regular_price"`
	URL            string           `json:"url"`
	SKU            *string          `json:"sku"`
	Rating         *float64         `json:"rating"`
	ReviewCount    *int             `json:"review_count"`
	CompetitorCode string           `json:"competitor_code"`
	ScrapedAt      time.Time        `json:"scraped_at"`
}

// Provider extracts raw products from retailer pages.
type Provider interface {
	FetchProduct(ctx context.Context, url string) (*RawProduct, error)
	FetchProductList(ctx context.Context, url string) ([]RawProduct, error)
}
