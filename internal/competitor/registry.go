// Package competitor holds the table of retail sites whose listings are scraped for comparison.
package competitor

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"boxbluebook/internal/apperr"
)

// ErrUnknownCompetitor is returned by Lookup for codes missing from the registry. It matches
// apperr.ErrNotFound.
var ErrUnknownCompetitor = fmt.Errorf("unknown competitor: %w", apperr.ErrNotFound)

// Competitor describes one retail site.
type Competitor struct {
	Code              string
	Name              string
	BaseURL           string
	CatalogURL        string
	ProductURLPattern *regexp.Regexp
}

// CatalogPageURL joins the base and catalog paths.
func (c Competitor) CatalogPageURL() string {
	return strings.TrimRight(c.BaseURL, "/") + "/" + strings.TrimLeft(c.CatalogURL, "/")
}

// Definition is the config-friendly form of a Competitor.
type Definition struct {
	Code       string `mapstructure:"code"`
	Name       string `mapstructure:"name"`
	BaseURL    string `mapstructure:"base_url"`
	CatalogURL string `mapstructure:"catalog_url"`
	Pattern    string `mapstructure:"product_pattern"`
}

// DefaultDefinitions is the built-in competitor table, in detection order.
func DefaultDefinitions() []Definition {
	return []Definition{
		{Code: "famous", Name: "Famous Smoke Shop", BaseURL: "https://www.famous-smoke.com", CatalogURL: "/cigars", Pattern: `famous-smoke\.com/([^/]+)-cigars`},
		{Code: "ci", Name: "Cigars International", BaseURL: "https://www.cigarsinternational.com", CatalogURL: "/shop/cigars/1800000/", Pattern: `cigarsinternational\.com/p/([^/]+)`},
		{Code: "jr", Name: "JR Cigars", BaseURL: "https://www.jrcigars.com", CatalogURL: "/cigars", Pattern: `jrcigars\.com/item/([^/]+)`},
		{Code: "holts", Name: "Holts", BaseURL: "https://www.holts.com", CatalogURL: "/cigars.html", Pattern: `holts\.com/([^.]+)\.html`},
		{Code: "atlantic", Name: "Atlantic Cigar", BaseURL: "https://www.atlanticcigar.com", CatalogURL: "/All-Cigars", Pattern: `atlanticcigar\.com/([^.]+)`},
		{Code: "cigarpage", Name: "CigarPage", BaseURL: "https://www.cigarpage.com", CatalogURL: "/cigars.html", Pattern: `cigarpage\.com/([^.]+)`},
	}
}

// Registry is an ordered, read-only competitor table.
type Registry struct {
	entries []Competitor
	hosts   []string
	byCode  map[string]int
}

// NewRegistry compiles definitions. Codes must be unique and base URLs must carry a host.
func NewRegistry(defs []Definition) (*Registry, error) {
	r := &Registry{byCode: make(map[string]int, len(defs))}
	for _, d := range defs {
		code := strings.ToLower(strings.TrimSpace(d.Code))
		if code == "" {
			return nil, fmt.Errorf("competitor code is required")
		}
		if _, dup := r.byCode[code]; dup {
			return nil, fmt.Errorf("duplicate competitor code %q", code)
		}
		host := hostname(d.BaseURL)
		if host == "" {
			return nil, fmt.Errorf("competitor %s: base_url %q has no host", code, d.BaseURL)
		}
		var pattern *regexp.Regexp
		if d.Pattern != "" {
			re, err := regexp.Compile(d.Pattern)
			if err != nil {
				return nil, fmt.Errorf("competitor %s: compile product pattern: %w", code, err)
			}
			pattern = re
		}
		name := d.Name
		if name == "" {
			name = code
		}
		r.byCode[code] = len(r.entries)
		r.entries = append(r.entries, Competitor{
			Code:              code,
			Name:              name,
			BaseURL:           d.BaseURL,
			CatalogURL:        d.CatalogURL,
			ProductURLPattern: pattern,
		})
		r.hosts = append(r.hosts, host)
	}
	return r, nil
}

// Default returns the registry of built-in competitors.
func Default() *Registry {
	r, err := NewRegistry(DefaultDefinitions())
	if err != nil {
		panic(err)
	}
	return r
}

// All returns the competitors in registry order.
func (r *Registry) All() []Competitor {
	out := make([]Competitor, len(r.entries))
	copy(out, r.entries)
	return out
}

// Codes returns the competitor codes in registry order.
func (r *Registry) Codes() []string {
	codes := make([]string, 0, len(r.entries))
	for _, c := range r.entries {
		codes = append(codes, c.Code)
	}
	return codes
}

// Lookup finds a competitor by code, case-insensitively.
func (r *Registry) Lookup(code string) (Competitor, error) {
	idx, ok := r.byCode[strings.ToLower(strings.TrimSpace(code))]
	if !ok {
		return Competitor{}, fmt.Errorf("%w: %s", ErrUnknownCompetitor, code)
	}
	return r.entries[idx], nil
}

// Detect returns the first competitor whose host matches the URL host or one of its parents.
func (r *Registry) Detect(rawURL string) (Competitor, bool) {
	host := hostname(rawURL)
	if host == "" {
		return Competitor{}, false
	}
	for i, h := range r.hosts {
		if host == h || strings.HasSuffix(host, "."+h) {
			return r.entries[i], true
		}
	}
	return Competitor{}, false
}

// ProductSlug extracts the competitor's product identifier from a product page URL.
func (r *Registry) ProductSlug(rawURL string) (string, bool) {
	c, ok := r.Detect(rawURL)
	if !ok || c.ProductURLPattern == nil {
		return "", false
	}
	m := c.ProductURLPattern.FindStringSubmatch(rawURL)
	if len(m) < 2 || m[1] == "" {
		return "", false
	}
	return m[1], true
}

func hostname(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}
