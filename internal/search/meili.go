package search

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"boxbluebook/internal/apperr"
)

// Index names.
const (
	IndexCigars = "cigars"
	IndexBrands = "brands"
	IndexLines  = "lines"
)

// MeiliOptions configures the Meilisearch REST client.
type MeiliOptions struct {
	Host      string
	SearchKey string
	AdminKey  string
	Timeout   time.Duration
}

// Hit is the union of the fields autocomplete reads from any of the three indexes.
type Hit struct {
	ID              string `json:"id"`
	Name            string `json:"name,omitempty"`
	FullName        string `json:"full_name,omitempty"`
	Vitola          string `json:"vitola,omitempty"`
	BrandName       string `json:"brand_name,omitempty"`
	CountryOfOrigin string `json:"country_of_origin,omitempty"`
	LogoURL         string `json:"logo_url,omitempty"`
	ImageURL        string `json:"image_url,omitempty"`
}

// Settings is the subset of index settings the service manages.
type Settings struct {
	SearchableAttributes []string `json:"searchableAttributes,omitempty"`
	FilterableAttributes []string `json:"filterableAttributes,omitempty"`
	SortableAttributes   []string `json:"sortableAttributes,omitempty"`
	RankingRules         []string `json:"rankingRules,omitempty"`
}

// MeiliClient talks to Meilisearch over its REST API.
type MeiliClient struct {
	client    *resty.Client
	searchKey string
	adminKey  string
	logger    zerolog.Logger
}

// NewMeiliClient returns nil when no host is configured.
func NewMeiliClient(opts MeiliOptions, logger zerolog.Logger) *MeiliClient {
	if strings.TrimSpace(opts.Host) == "" {
		return nil
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &MeiliClient{
		client:    resty.New().SetBaseURL(strings.TrimRight(opts.Host, "/")).SetTimeout(timeout),
		searchKey: opts.SearchKey,
		adminKey:  opts.AdminKey,
		logger:    logger.With().Str("component", "meilisearch").Logger(),
	}
}

// Healthy reports whether the instance answers /health with status "available".
func (m *MeiliClient) Healthy(ctx context.Context) bool {
	if m == nil {
		return false
	}
	var out struct {
		Status string `json:"status"`
	}
	resp, err := m.client.R().
		SetContext(ctx).
		SetResult(&out).
		ForceContentType("application/json").
		Get("/health")
	if err != nil || resp.IsError() {
		return false
	}
	return out.Status == "available"
}

// Search runs a plain query against one index.
func (m *MeiliClient) Search(ctx context.Context, index, query string, limit int) ([]Hit, error) {
	var out struct {
		Hits []Hit `json:"hits"`
	}
	resp, err := m.request(ctx, m.searchKey).
		SetBody(map[string]any{"q": query, "limit": limit}).
		SetResult(&out).
		ForceContentType("application/json").
		Post("/indexes/" + url.PathEscape(index) + "/search")
	if err := m.check(resp, err, "search "+index); err != nil {
		return nil, err
	}
	return out.Hits, nil
}

// UpdateSettings replaces the managed settings of an index.
func (m *MeiliClient) UpdateSettings(ctx context.Context, index string, settings Settings) error {
	resp, err := m.request(ctx, m.adminKey).
		SetBody(settings).
		Patch("/indexes/" + url.PathEscape(index) + "/settings")
	return m.check(resp, err, "update settings "+index)
}

// AddDocuments upserts documents keyed by their id field.
func (m *MeiliClient) AddDocuments(ctx context.Context, index string, docs any) error {
	resp, err := m.request(ctx, m.adminKey).
		SetQueryParam("primaryKey", "id").
		SetBody(docs).
		Post("/indexes/" + url.PathEscape(index) + "/documents")
	return m.check(resp, err, "add documents "+index)
}

// DeleteDocuments removes documents by id in one batch.
func (m *MeiliClient) DeleteDocuments(ctx context.Context, index string, ids []string) error {
	resp, err := m.request(ctx, m.adminKey).
		SetBody(ids).
		Post("/indexes/" + url.PathEscape(index) + "/documents/delete-batch")
	return m.check(resp, err, "delete documents "+index)
}

func (m *MeiliClient) request(ctx context.Context, key string) *resty.Request {
	req := m.client.R().SetContext(ctx).SetHeader("Content-Type", "application/json")
	if key != "" {
		req.SetAuthToken(key)
	}
	return req
}

func (m *MeiliClient) check(resp *resty.Response, err error, op string) error {
	if err != nil {
		return fmt.Errorf("meilisearch %s: %w: %w", op, err, apperr.ErrUpstreamUnavailable)
	}
	if resp.IsError() {
		m.logger.Warn().Int("status", resp.StatusCode()).Str("op", op).Str("body", resp.String()).Msg("meilisearch error")
		return fmt.Errorf("meilisearch %s: status %d: %w", op, resp.StatusCode(), apperr.ErrUpstreamUnavailable)
	}
	return nil
}
