package scrape

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"boxbluebook/internal/apperr"
)

// DefaultZyteEndpoint is the Zyte extraction API.
const DefaultZyteEndpoint = "https://api.zyte.com/v1/extract"

// ZyteOptions configures the Zyte extraction client.
type ZyteOptions struct {
	APIKey     string
	Endpoint   string
	Timeout    time.Duration
	RetryCount int
}

// ZyteProvider extracts products through the Zyte API, rendering pages in a browser first.
type ZyteProvider struct {
	client   *resty.Client
	endpoint string
	apiKey   string
	logger   zerolog.Logger
}

var _ Provider = (*ZyteProvider)(nil)

type zyteRequest struct {
	URL                string       `json:"url"`
	BrowserHTML        bool         `json:"browserHtml"`
	Product            bool         `json:"product,omitempty"`
	ProductOptions     *zyteOptions `json:"productOptions,omitempty"`
	ProductList        bool         `json:"productList,omitempty"`
	ProductListOptions *zyteOptions `json:"productListOptions,omitempty"`
}

type zyteOptions struct {
	ExtractFrom string `json:"extractFrom"`
}

type zyteResponse struct {
	URL         string      `json:"url"`
	Product     *RawProduct `json:"product"`
	ProductList *struct {
		Products []RawProduct `json:"products"`
	} `json:"productList"`
}

// NewZyteProvider builds the client. A missing API key is reported on first use, not here.
func NewZyteProvider(opts ZyteOptions, logger zerolog.Logger) *ZyteProvider {
	endpoint := opts.Endpoint
	if endpoint == "" {
		endpoint = DefaultZyteEndpoint
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(opts.RetryCount).
		SetRetryWaitTime(2*time.Second).
		SetHeader("Content-Type", "application/json")
	if opts.APIKey != "" {
		client.SetBasicAuth(opts.APIKey, "")
	}

	return &ZyteProvider{
		client:   client,
		endpoint: endpoint,
		apiKey:   opts.APIKey,
		logger:   logger.With().Str("component", "zyte").Logger(),
	}
}

// FetchProduct extracts a single product page.
func (z *ZyteProvider) FetchProduct(ctx context.Context, url string) (*RawProduct, error) {
	resp, err := z.extract(ctx, zyteRequest{
		URL:            url,
		BrowserHTML:    true,
		Product:        true,
		ProductOptions: &zyteOptions{ExtractFrom: "browserHtml"},
	})
	if err != nil {
		return nil, err
	}
	if resp.Product == nil {
		return nil, fmt.Errorf("zyte extracted no product from %s: %w", url, apperr.ErrNotFound)
	}
	return resp.Product, nil
}

// FetchProductList extracts every product on a catalog page.
func (z *ZyteProvider) FetchProductList(ctx context.Context, url string) ([]RawProduct, error) {
	resp, err := z.extract(ctx, zyteRequest{
		URL:                url,
		BrowserHTML:        true,
		ProductList:        true,
		ProductListOptions: &zyteOptions{ExtractFrom: "browserHtml"},
	})
	if err != nil {
		return nil, err
	}
	if resp.ProductList == nil {
		return []RawProduct{}, nil
	}
	return resp.ProductList.Products, nil
}

func (z *ZyteProvider) extract(ctx context.Context, payload zyteRequest) (*zyteResponse, error) {
	if z.apiKey == "" {
		return nil, fmt.Errorf("scraper.zyte_api_key: %w", apperr.ErrConfigurationMissing)
	}

	var out zyteResponse
	resp, err := z.client.R().
		SetContext(ctx).
		SetBody(payload).
		SetResult(&out).
		Post(z.endpoint)
	if err != nil {
		return nil, fmt.Errorf("zyte request %s: %w: %w", payload.URL, err, apperr.ErrUpstreamUnavailable)
	}
	if resp.IsError() {
		z.logger.Warn().
			Int("status", resp.StatusCode()).
			Str("url", payload.URL).
			Str("body", truncate(resp.String(), 512)).
			Msg("zyte returned error status")
		return nil, fmt.Errorf("zyte status %d for %s: %w", resp.StatusCode(), payload.URL, apperr.ErrUpstreamUnavailable)
	}
	return &out, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
