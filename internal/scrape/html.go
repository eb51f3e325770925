package scrape

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"boxbluebook/internal/apperr"
)

// HTMLOptions configures the direct-fetch provider.
type HTMLOptions struct {
	UserAgent string
	Timeout   time.Duration
}

// HTMLProvider fetches pages directly and reads schema.org Product data from JSON-LD blocks,
// falling back to Open Graph product meta tags. It needs no API key but cannot render scripts.
type HTMLProvider struct {
	client *resty.Client
	logger zerolog.Logger
}

var _ Provider = (*HTMLProvider)(nil)

// NewHTMLProvider constructs the provider.
func NewHTMLProvider(opts HTMLOptions, logger zerolog.Logger) *HTMLProvider {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ua := opts.UserAgent
	if ua == "" {
		ua = "Mozilla/5.0 (compatible; boxbluebook/1.0)"
	}
	return &HTMLProvider{
		client: resty.New().SetTimeout(timeout).SetHeader("User-Agent", ua),
		logger: logger.With().Str("component", "html_provider").Logger(),
	}
}

// FetchProduct returns the first Product found on the page.
func (h *HTMLProvider) FetchProduct(ctx context.Context, url string) (*RawProduct, error) {
	doc, err := h.fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	products := ExtractProducts(doc)
	if len(products) == 0 {
		if p, ok := metaProduct(doc); ok {
			products = append(products, p)
		}
	}
	if len(products) == 0 {
		return nil, fmt.Errorf("no product data on %s: %w", url, apperr.ErrNotFound)
	}
	p := products[0]
	if p.URL == "" {
		p.URL = url
	}
	return &p, nil
}

// FetchProductList returns every Product found on the page, including ItemList entries.
func (h *HTMLProvider) FetchProductList(ctx context.Context, url string) ([]RawProduct, error) {
	doc, err := h.fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	return ExtractProducts(doc), nil
}

func (h *HTMLProvider) fetch(ctx context.Context, url string) (*goquery.Document, error) {
	resp, err := h.client.R().SetContext(ctx).Get(url)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w: %w", url, err, apperr.ErrUpstreamUnavailable)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("fetch %s: status %d: %w", url, resp.StatusCode(), apperr.ErrUpstreamUnavailable)
	}
	h.logger.Debug().Str("url", url).Int("bytes", len(resp.Body())).Msg("page fetched")
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body()))
	if err != nil {
		return nil, fmt.Errorf("parse html %s: %w", url, err)
	}
	return doc, nil
}

// ExtractProducts walks the JSON-LD blocks of a document and returns the Product nodes in
// document order. Malformed blocks are ignored.
func ExtractProducts(doc *goquery.Document) []RawProduct {
	var out []RawProduct
	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		dec := json.NewDecoder(strings.NewReader(s.Text()))
		dec.UseNumber()
		var node any
		if err := dec.Decode(&node); err != nil {
			return
		}
		collectProducts(node, &out)
	})
	return out
}

func collectProducts(node any, out *[]RawProduct) {
	switch v := node.(type) {
	case []any:
		for _, item := range v {
			collectProducts(item, out)
		}
	case map[string]any:
		if hasType(v["@type"], "Product") {
			*out = append(*out, productFromLD(v))
			return
		}
		for _, key := range []string{"@graph", "itemListElement", "item", "mainEntity"} {
			if child, ok := v[key]; ok {
				collectProducts(child, out)
			}
		}
	}
}

func hasType(t any, want string) bool {
	switch v := t.(type) {
	case string:
		return strings.EqualFold(v, want)
	case []any:
		for _, item := range v {
			if hasType(item, want) {
				return true
			}
		}
	}
	return false
}

func productFromLD(m map[string]any) RawProduct {
	p := RawProduct{
		Name: str(m["name"]),
		SKU:  str(m["sku"]),
		URL:  str(m["url"]),
	}
	switch b := m["brand"].(type) {
	case string:
		p.Brand = &ZyteBrand{Name: b}
	case map[string]any:
		if name := str(b["name"]); name != "" {
			p.Brand = &ZyteBrand{Name: name}
		}
	}

	offer := firstOffer(m["offers"])
	if offer != nil {
		p.Price = num(offer["price"])
		if p.Price == nil {
			p.Price = num(offer["lowPrice"])
		}
		p.Currency = str(offer["priceCurrency"])
		p.Availability = availabilityName(str(offer["availability"]))
		if spec, ok := offer["priceSpecification"].(map[string]any); ok {
			if strings.Contains(str(spec["priceType"]), "ListPrice") || strings.Contains(str(spec["priceType"]), "StrikethroughPrice") {
				p.RegularPrice = num(spec["price"])
			}
		}
	}

	if r, ok := m["aggregateRating"].(map[string]any); ok {
		rating := &Rating{}
		if d := num(r["ratingValue"]); d != nil {
			f := d.InexactFloat64()
			rating.RatingValue = &f
		}
		if d := num(r["reviewCount"]); d != nil {
			n := int(d.IntPart())
			rating.ReviewCount = &n
		}
		p.AggregateRating = rating
	}
	return p
}

func firstOffer(v any) map[string]any {
	switch o := v.(type) {
	case map[string]any:
		if hasType(o["@type"], "AggregateOffer") {
			if inner := firstOffer(o["offers"]); inner != nil {
				return inner
			}
		}
		return o
	case []any:
		for _, item := range o {
			if m, ok := item.(map[string]any); ok {
				return m
			}
		}
	}
	return nil
}

// availabilityName turns "https://schema.org/OutOfStock" into "OutOfStock".
func availabilityName(s string) string {
	if i := strings.LastIndex(s, "/"); i >= 0 {
		return s[i+1:]
	}
	return s
}

func metaProduct(doc *goquery.Document) (RawProduct, bool) {
	content := func(sel string) string {
		v, _ := doc.Find(sel).First().Attr("content")
		return strings.TrimSpace(v)
	}
	amount := content(`meta[property="product:price:amount"]`)
	if amount == "" {
		return RawProduct{}, false
	}
	p := RawProduct{
		Name:         content(`meta[property="og:title"]`),
		URL:          content(`meta[property="og:url"]`),
		Currency:     content(`meta[property="product:price:currency"]`),
		Availability: content(`meta[property="product:availability"]`),
		Price:        num(amount),
	}
	return p, true
}

func str(v any) string {
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	case json.Number:
		return s.String()
	}
	return ""
}

func num(v any) *decimal.Decimal {
	var raw string
	switch n := v.(type) {
	case json.Number:
		raw = n.String()
	case string:
		raw = strings.TrimPrefix(strings.ReplaceAll(strings.TrimSpace(n), ",", ""), "$")
	default:
		return nil
	}
	if raw == "" {
		return nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return nil
	}
	return &d
}
