// Package search serves autocomplete from Meilisearch with a catalog fallback and keeps the
// search indexes in sync with the catalog.
package search

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"boxbluebook/internal/apperr"
	"boxbluebook/internal/catalog"
)

// ResultType is the kind of entity an autocomplete result points at.
type ResultType string

// Result types.
const (
	TypeBrand ResultType = "brand"
	TypeLine  ResultType = "line"
	TypeCigar ResultType = "cigar"
)

// Sources.
const (
	SourceMeilisearch = "meilisearch"
	SourceCatalog     = "catalog"
)

// Limits.
const (
	DefaultLimit   = 10
	MaxLimit       = 20
	MinQueryLength = 2
	brandHits      = 3
	lineHits       = 3
)

// Result is one autocomplete suggestion.
type Result struct {
	ID       string     `json:"id"`
	Type     ResultType `json:"type"`
	Name     string     `json:"name"`
	Subtitle string     `json:"subtitle,omitempty"`
	ImageURL string     `json:"image_url,omitempty"`
}

// Response is the autocomplete payload.
type Response struct {
	Results []Result `json:"results"`
	Source  string   `json:"source,omitempty"`
}

// Index is the search engine side of the gateway.
type Index interface {
	Healthy(ctx context.Context) bool
	Search(ctx context.Context, index, query string, limit int) ([]Hit, error)
}

// CatalogSearcher is the database fallback. Implementations match names case-insensitively by
// substring and return active rows only.
type CatalogSearcher interface {
	SearchBrands(ctx context.Context, query string, limit int) ([]catalog.Brand, error)
	SearchLines(ctx context.Context, query string, limit int) ([]catalog.Line, error)
	SearchCigars(ctx context.Context, query string, limit int) ([]catalog.Cigar, error)
}

// Gateway answers autocomplete queries.
type Gateway struct {
	index   Index
	catalog CatalogSearcher
	logger  zerolog.Logger
}

// NewGateway builds a gateway. index may be nil, in which case every query uses the catalog.
func NewGateway(index Index, catalog CatalogSearcher, logger zerolog.Logger) *Gateway {
	return &Gateway{
		index:   index,
		catalog: catalog,
		logger:  logger.With().Str("component", "search").Logger(),
	}
}

// ParseType validates an optional type filter.
func ParseType(s string) (ResultType, error) {
	switch t := ResultType(strings.ToLower(strings.TrimSpace(s))); t {
	case "", TypeBrand, TypeLine, TypeCigar:
		return t, nil
	default:
		return "", fmt.Errorf("search type %q: %w", s, apperr.ErrMalformedInput)
	}
}

// ClampLimit applies the default and ceiling.
func ClampLimit(n int) int {
	if n <= 0 {
		return DefaultLimit
	}
	if n > MaxLimit {
		return MaxLimit
	}
	return n
}

// Autocomplete returns up to limit suggestions ordered brands, lines, cigars.
func (g *Gateway) Autocomplete(ctx context.Context, query string, limit int, typ ResultType) (Response, error) {
	query = strings.TrimSpace(query)
	limit = ClampLimit(limit)
	if utf8.RuneCountInString(query) < MinQueryLength {
		return Response{Results: []Result{}}, nil
	}

	if g.index != nil && g.index.Healthy(ctx) {
		results, err := g.fromIndex(ctx, query, limit)
		if err == nil {
			return Response{Results: filterType(results, typ), Source: SourceMeilisearch}, nil
		}
		g.logger.Warn().Err(err).Str("query", query).Msg("search index failed, falling back to catalog")
	}

	if g.catalog == nil {
		return Response{}, fmt.Errorf("catalog search: %w", apperr.ErrConfigurationMissing)
	}
	results, err := g.fromCatalog(ctx, query, limit, typ)
	if err != nil {
		return Response{}, err
	}
	return Response{Results: results, Source: SourceCatalog}, nil
}

func (g *Gateway) fromIndex(ctx context.Context, query string, limit int) ([]Result, error) {
	var brands, lines, cigars []Hit
	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		if limit-2 <= 0 {
			return nil
		}
		hits, err := g.index.Search(egCtx, IndexCigars, query, limit-2)
		cigars = hits
		return err
	})
	eg.Go(func() error {
		hits, err := g.index.Search(egCtx, IndexBrands, query, brandHits)
		brands = hits
		return err
	})
	eg.Go(func() error {
		hits, err := g.index.Search(egCtx, IndexLines, query, lineHits)
		lines = hits
		return err
	})
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(brands)+len(lines)+len(cigars))
	for _, h := range brands {
		results = append(results, Result{ID: h.ID, Type: TypeBrand, Name: h.Name, Subtitle: h.CountryOfOrigin, ImageURL: h.LogoURL})
	}
	for _, h := range lines {
		results = append(results, Result{ID: h.ID, Type: TypeLine, Name: h.Name, Subtitle: h.BrandName, ImageURL: h.ImageURL})
	}
	for _, h := range cigars {
		results = append(results, Result{ID: h.ID, Type: TypeCigar, Name: h.FullName, Subtitle: h.Vitola, ImageURL: h.ImageURL})
	}
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (g *Gateway) fromCatalog(ctx context.Context, query string, limit int, typ ResultType) ([]Result, error) {
	results := make([]Result, 0, limit)
	if typ == "" || typ == TypeBrand {
		brands, err := g.catalog.SearchBrands(ctx, query, brandHits)
		if err != nil {
			return nil, fmt.Errorf("search brands: %w", err)
		}
		for _, b := range brands {
			results = append(results, Result{ID: b.ID.String(), Type: TypeBrand, Name: b.Name, Subtitle: deref(b.Country), ImageURL: deref(b.LogoURL)})
		}
	}
	if typ == "" || typ == TypeLine {
		lines, err := g.catalog.SearchLines(ctx, query, lineHits)
		if err != nil {
			return nil, fmt.Errorf("search lines: %w", err)
		}
		for _, l := range lines {
			results = append(results, Result{ID: l.ID.String(), Type: TypeLine, Name: l.Name, Subtitle: l.BrandName})
		}
	}
	if remaining := limit - len(results); (typ == "" || typ == TypeCigar) && remaining > 0 {
		cigars, err := g.catalog.SearchCigars(ctx, query, remaining)
		if err != nil {
			return nil, fmt.Errorf("search cigars: %w", err)
		}
		for _, c := range cigars {
			results = append(results, Result{ID: c.ID.String(), Type: TypeCigar, Name: c.FullName, Subtitle: c.Vitola, ImageURL: deref(c.ImageURL)})
		}
	}
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func filterType(results []Result, typ ResultType) []Result {
	if typ == "" {
		return results
	}
	out := make([]Result, 0, len(results))
	for _, r := range results {
		if r.Type == typ {
			out = append(out, r)
		}
	}
	return out
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
