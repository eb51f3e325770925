package scrape

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"

	"boxbluebook/internal/apperr"
)

const productPage = `<html><head>
<script type="application/ld+json">{"@context":"https://schema.org","@type":"BreadcrumbList"}</script>
<script type="application/ld+json">
{"@context":"https://schema.org","@type":"Product","name":"My Father Le Bijou 1922 Torpedo (Box of 23)","sku":"MF-LB-T","brand":{"@type":"Brand","name":"My Father"},
 "offers":{"@type":"Offer","price":"241.50","priceCurrency":"USD","availability":"https://schema.org/InStock",
   "priceSpecification":{"@type":"UnitPriceSpecification","priceType":"https://schema.org/ListPrice","price":"265.00"}},
 "aggregateRating":{"@type":"AggregateRating","ratingValue":"4.8","reviewCount":57}}
</script>
<script type="application/ld+json">{not json</script>
</head><body></body></html>`

const listPage = `<html><head><script type="application/ld+json">
{"@context":"https://schema.org","@graph":[
 {"@type":"ItemList","itemListElement":[
   {"@type":"ListItem","position":1,"item":{"@type":"Product","name":"A","offers":[{"price":12,"availability":"OutOfStock"}]}},
   {"@type":"ListItem","position":2,"item":{"@type":"Product","name":"B","offers":{"@type":"AggregateOffer","lowPrice":"7.25"}}}
 ]}
]}
</script></head></html>`

func TestExtractProducts(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(productPage))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	products := ExtractProducts(doc)
	if len(products) != 1 {
		t.Fatalf("len = %d, want 1", len(products))
	}
	p := products[0]
	if p.SKU != "MF-LB-T" || p.Brand == nil || p.Brand.Name != "My Father" {
		t.Fatalf("unexpected product %+v", p)
	}
	if p.Price.String() != "241.5" || p.RegularPrice == nil || p.RegularPrice.String() != "265" {
		t.Fatalf("price/regular = %v/%v", p.Price, p.RegularPrice)
	}
	if p.Availability != "InStock" {
		t.Fatalf("availability = %q", p.Availability)
	}
	if p.AggregateRating == nil || *p.AggregateRating.RatingValue != 4.8 || *p.AggregateRating.ReviewCount != 57 {
		t.Fatalf("rating = %+v", p.AggregateRating)
	}

	norm := NewNormalizer(DefaultPolicy()).Normalize(p, "famous", scrapedAt)
	if norm.PriceSingle == nil || norm.PriceSingle.StringFixed(2) != "10.50" || !norm.IsOnSale {
		t.Fatalf("normalized = %+v", norm)
	}
}

func TestExtractProductList(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(listPage))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	products := ExtractProducts(doc)
	if len(products) != 2 {
		t.Fatalf("len = %d, want 2", len(products))
	}
	if products[0].Price.String() != "12" || products[0].Availability != "OutOfStock" {
		t.Fatalf("first = %+v", products[0])
	}
	if products[1].Price == nil || products[1].Price.String() != "7.25" {
		t.Fatalf("second = %+v", products[1])
	}
}

func TestHTMLProviderFetch(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/product.html", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(productPage))
	})
	mux.HandleFunc("/meta.html", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><head><meta property="og:title" content="Arturo Fuente Hemingway"><meta property="product:price:amount" content="11.95"></head></html>`))
	})
	mux.HandleFunc("/empty.html", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html></html>`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	h := NewHTMLProvider(HTMLOptions{}, zerolog.Nop())
	p, err := h.FetchProduct(context.Background(), srv.URL+"/product.html")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if p.URL != srv.URL+"/product.html" {
		t.Fatalf("url should default to the page url, got %q", p.URL)
	}

	p, err = h.FetchProduct(context.Background(), srv.URL+"/meta.html")
	if err != nil || p.Name != "Arturo Fuente Hemingway" || p.Price.String() != "11.95" {
		t.Fatalf("meta fallback = %+v, %v", p, err)
	}

	if _, err := h.FetchProduct(context.Background(), srv.URL+"/empty.html"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := h.FetchProductList(context.Background(), srv.URL+"/missing"); !errors.Is(err, apperr.ErrUpstreamUnavailable) {
		t.Fatalf("expected upstream unavailable, got %v", err)
	}
}
