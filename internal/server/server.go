// Package server exposes the pricing core over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"boxbluebook/internal/catalog"
	"boxbluebook/internal/compare"
	"boxbluebook/internal/pricing"
	"boxbluebook/internal/scrape"
	"boxbluebook/internal/search"
	"boxbluebook/internal/service"
)

// Comparer assembles price comparisons.
type Comparer interface {
	Compare(ctx context.Context, cigarID uuid.UUID) (*compare.PriceComparison, error)
}

// Aggregator recomputes one period aggregate.
type Aggregator interface {
	Run(ctx context.Context, cigarID uuid.UUID, pt pricing.PeriodType, at time.Time) (*pricing.PriceAggregate, error)
}

// Scraper scrapes one competitor catalog.
type Scraper interface {
	ScrapeCatalog(ctx context.Context, code string) ([]scrape.ScrapedProduct, error)
}

// Market serves catalog detail, history and trends.
type Market interface {
	CigarDetail(ctx context.Context, id uuid.UUID) (service.CigarDetail, error)
	History(ctx context.Context, id uuid.UUID, q pricing.HistoryQuery) (service.History, error)
	Trends(ctx context.Context, q pricing.TrendQuery) (service.Trends, error)
}

// Catalog lists cigars and brands.
type Catalog interface {
	ListCigars(ctx context.Context, f catalog.Filter) (catalog.Page, error)
	ListBrands(ctx context.Context, includeCount bool) ([]catalog.Brand, error)
}

// Searcher answers autocomplete queries.
type Searcher interface {
	Autocomplete(ctx context.Context, query string, limit int, typ search.ResultType) (search.Response, error)
}

// Pinger reports database reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthReporter reports search index reachability.
type HealthReporter interface {
	Healthy(ctx context.Context) bool
}

// Deps are the services behind the routes. A nil dependency makes its routes answer 503.
type Deps struct {
	Comparer   Comparer
	Aggregator Aggregator
	Scraper    Scraper
	Market     Market
	Catalog    Catalog
	Searcher   Searcher
	Database   Pinger
	Index      HealthReporter
}

// Options configure the listener.
type Options struct {
	Addr            string
	Mode            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// Server is the HTTP API.
type Server struct {
	opts   Options
	deps   Deps
	engine *gin.Engine
	logger zerolog.Logger
}

// New builds the router.
func New(opts Options, deps Deps, logger zerolog.Logger) *Server {
	if opts.Addr == "" {
		opts.Addr = ":8080"
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 10 * time.Second
	}
	if opts.Mode != "" {
		gin.SetMode(opts.Mode)
	}

	s := &Server{
		opts:   opts,
		deps:   deps,
		engine: gin.New(),
		logger: logger.With().Str("component", "http").Logger(),
	}
	s.engine.Use(gin.Recovery(), s.requestLogger(), cors())
	s.routes()
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.opts.Addr,
		Handler:      s.engine,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.opts.Addr).Msg("http server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	s.logger.Info().Msg("http server stopped")
	return nil
}

func (s *Server) routes() {
	s.engine.GET("/health", s.health)

	api := s.engine.Group("/api")
	api.GET("/prices/compare/:cigarId", s.compare)
	api.POST("/aggregates", s.aggregate)
	api.POST("/scrape/:competitor", s.scrapeCatalog)
	api.GET("/cigars", s.listCigars)
	api.GET("/cigars/:id", s.cigarDetail)
	api.GET("/cigars/:id/prices", s.priceHistory)
	api.GET("/market/trends", s.trends)
	api.GET("/brands", s.brands)
	api.GET("/search", s.search)

	s.engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
	})
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()

		status := c.Writer.Status()
		event := s.logger.Debug()
		if status >= http.StatusInternalServerError {
			event = s.logger.Warn()
		}
		event.
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", status).
			Dur("elapsed", time.Since(started)).
			Msg("request")
	}
}

func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", strings.Join([]string{http.MethodGet, http.MethodPost, http.MethodOptions}, ", "))
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
