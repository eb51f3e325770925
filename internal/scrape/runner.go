package scrape

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"boxbluebook/internal/competitor"
)

// RunnerOptions bounds how hard the runner hits providers.
type RunnerOptions struct {
	Concurrency       int
	RequestsPerSecond float64
	Burst             int
	RequestTimeout    time.Duration
}

// CatalogResult is the outcome of scraping one competitor's catalog page.
type CatalogResult struct {
	Competitor string
	URL        string
	Products   []ScrapedProduct
	Err        error
	Duration   time.Duration
}

// Runner fans scrape requests out across competitors.
type Runner struct {
	provider   Provider
	registry   *competitor.Registry
	normalizer Normalizer
	limiter    *rate.Limiter
	opts       RunnerOptions
	logger     zerolog.Logger
	now        func() time.Time
}

// NewRunner wires a provider to the competitor table.
func NewRunner(provider Provider, registry *competitor.Registry, normalizer Normalizer, opts RunnerOptions, logger zerolog.Logger) *Runner {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 90 * time.Second
	}
	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Runner{
		provider:   provider,
		registry:   registry,
		normalizer: normalizer,
		limiter:    rate.NewLimiter(limit, burst),
		opts:       opts,
		logger:     logger.With().Str("component", "scrape_runner").Logger(),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Registry exposes the competitor table the runner resolves codes against.
func (r *Runner) Registry() *competitor.Registry {
	return r.registry
}

// ScrapeCatalog scrapes a single competitor's catalog page.
func (r *Runner) ScrapeCatalog(ctx context.Context, code string) ([]ScrapedProduct, error) {
	c, err := r.registry.Lookup(code)
	if err != nil {
		return nil, err
	}
	res := r.scrapeCatalog(ctx, c)
	return res.Products, res.Err
}

// ScrapeCatalogs scrapes every listed competitor, or all of them when codes is empty. Results keep
// the order of codes; a failing competitor never cancels the others.
func (r *Runner) ScrapeCatalogs(ctx context.Context, codes []string) []CatalogResult {
	if len(codes) == 0 {
		codes = r.registry.Codes()
	}
	results := make([]CatalogResult, len(codes))

	var g errgroup.Group
	g.SetLimit(r.opts.Concurrency)
	for i, code := range codes {
		i := i
		c, err := r.registry.Lookup(code)
		if err != nil {
			results[i] = CatalogResult{Competitor: code, Err: err}
			continue
		}
		g.Go(func() error {
			results[i] = r.scrapeCatalog(ctx, c)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// ScrapeURL scrapes a single product page, detecting the competitor from the host.
func (r *Runner) ScrapeURL(ctx context.Context, rawURL string) (ScrapedProduct, error) {
	c, ok := r.registry.Detect(rawURL)
	if !ok {
		return ScrapedProduct{}, fmt.Errorf("%w: no competitor matches %s", competitor.ErrUnknownCompetitor, rawURL)
	}
	if err := r.limiter.Wait(ctx); err != nil {
		return ScrapedProduct{}, fmt.Errorf("wait for rate limiter: %w", err)
	}
	reqCtx, cancel := context.WithTimeout(ctx, r.opts.RequestTimeout)
	defer cancel()

	raw, err := r.provider.FetchProduct(reqCtx, rawURL)
	if err != nil {
		return ScrapedProduct{}, fmt.Errorf("scrape %s product: %w", c.Code, err)
	}
	product := r.normalizer.Normalize(*raw, c.Code, r.now())
	if product.URL == "" {
		product.URL = rawURL
	}
	return product, nil
}

func (r *Runner) scrapeCatalog(ctx context.Context, c competitor.Competitor) (res CatalogResult) {
	started := time.Now()
	res = CatalogResult{Competitor: c.Code, URL: c.CatalogPageURL()}
	defer func() { res.Duration = time.Since(started) }()

	if err := r.limiter.Wait(ctx); err != nil {
		res.Err = fmt.Errorf("wait for rate limiter: %w", err)
		return res
	}
	reqCtx, cancel := context.WithTimeout(ctx, r.opts.RequestTimeout)
	defer cancel()

	raws, err := r.provider.FetchProductList(reqCtx, res.URL)
	if err != nil {
		res.Err = fmt.Errorf("scrape %s catalog: %w", c.Code, err)
		r.logger.Warn().Err(err).Str("competitor", c.Code).Msg("catalog scrape failed")
		return res
	}
	res.Products = r.normalizer.NormalizeAll(raws, c.Code, r.now())
	r.logger.Info().Str("competitor", c.Code).Int("products", len(res.Products)).Msg("catalog scraped")
	return res
}
