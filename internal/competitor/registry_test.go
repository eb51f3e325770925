package competitor

import (
	"errors"
	"testing"

	"boxbluebook/internal/apperr"
)

func TestLookup(t *testing.T) {
	r := Default()
	c, err := r.Lookup("JR")
	if err != nil {
		t.Fatalf("lookup jr: %v", err)
	}
	if c.Name != "JR Cigars" || c.CatalogPageURL() != "https://www.jrcigars.com/cigars" {
		t.Fatalf("unexpected competitor %+v", c)
	}
	if _, err := r.Lookup("tobacconist"); !errors.Is(err, ErrUnknownCompetitor) {
		t.Fatalf("expected ErrUnknownCompetitor, got %v", err)
	}
}

func TestDetect(t *testing.T) {
	r := Default()
	cases := map[string]string{
		"https://www.famous-smoke.com/padron-1926-cigars/robusto": "famous",
		"https://famous-smoke.com/x":                              "famous",
		"https://shop.holts.com/ashton-vsg.html":                  "holts",
		"HTTPS://WWW.CIGARPAGE.COM/some-item.html":                "cigarpage",
		"www.jrcigars.com/item/padron-2000":                       "jr",
	}
	for raw, want := range cases {
		c, ok := r.Detect(raw)
		if !ok || c.Code != want {
			t.Fatalf("Detect(%q) = %q, %v; want %q", raw, c.Code, ok, want)
		}
	}
	for _, raw := range []string{"", "https://example.com/cigars", "https://notholts.com/a.html", "::::"} {
		if c, ok := r.Detect(raw); ok {
			t.Fatalf("Detect(%q) matched %q", raw, c.Code)
		}
	}
}

func TestDetectFirstMatchWins(t *testing.T) {
	r, err := NewRegistry([]Definition{
		{Code: "a", BaseURL: "https://shop.example.com"},
		{Code: "b", BaseURL: "https://example.com"},
	})
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	if c, _ := r.Detect("https://shop.example.com/p/1"); c.Code != "a" {
		t.Fatalf("expected a, got %q", c.Code)
	}
	if c, _ := r.Detect("https://other.example.com/p/1"); c.Code != "b" {
		t.Fatalf("expected b, got %q", c.Code)
	}
}

func TestProductSlug(t *testing.T) {
	r := Default()
	slug, ok := r.ProductSlug("https://www.cigarsinternational.com/p/padron-1964-anniversary/1412345/")
	if !ok || slug != "padron-1964-anniversary" {
		t.Fatalf("slug = %q, %v", slug, ok)
	}
	if _, ok := r.ProductSlug("https://www.jrcigars.com/brands"); ok {
		t.Fatal("non-product url should not yield a slug")
	}
}

func TestNewRegistryRejectsBadDefinitions(t *testing.T) {
	bad := [][]Definition{
		{{Code: "", BaseURL: "https://a.com"}},
		{{Code: "a", BaseURL: "https://a.com"}, {Code: "A", BaseURL: "https://b.com"}},
		{{Code: "a", BaseURL: ""}},
		{{Code: "a", BaseURL: "https://a.com", Pattern: "("}},
	}
	for i, defs := range bad {
		if _, err := NewRegistry(defs); err == nil {
			t.Fatalf("case %d: expected error", i)
		}
	}
}

func TestUnknownCompetitorIsNotFound(t *testing.T) {
	_, err := Default().Lookup("nope")
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
