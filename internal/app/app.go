package app

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"boxbluebook/internal/alerting"
	"boxbluebook/internal/apperr"
	"boxbluebook/internal/archive"
	"boxbluebook/internal/cache"
	"boxbluebook/internal/compare"
	"boxbluebook/internal/competitor"
	"boxbluebook/internal/config"
	"boxbluebook/internal/pricing"
	"boxbluebook/internal/scheduler"
	"boxbluebook/internal/scrape"
	"boxbluebook/internal/search"
	"boxbluebook/internal/server"
	"boxbluebook/internal/service"
	"boxbluebook/internal/storage"
	"boxbluebook/internal/version"
)

var errNoDatabase = fmt.Errorf("database.dsn: %w", apperr.ErrConfigurationMissing)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	decimal.MarshalJSONWithoutQuotes = true
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

// components are the wired services one command needs. Store-backed services are nil when no
// database is configured.
type components struct {
	store       *storage.Store
	registry    *competitor.Registry
	runner      *scrape.Runner
	aggregation *service.Aggregation
	deals       *service.Deals
	scraping    *service.Scraping
	market      *service.Market
	assembler   *compare.Assembler
	meili       *search.MeiliClient
	gateway     *search.Gateway
	closers     []func()
}

func (c *components) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
}

type buildOptions struct {
	requireStore bool
	archivePath  string
}

func (a *App) build(ctx context.Context, opts buildOptions) (*components, error) {
	cfg := a.Config
	c := &components{}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}
	if store == nil && opts.requireStore {
		return nil, errNoDatabase
	}
	if closeStore != nil {
		c.closers = append(c.closers, closeStore)
	}
	c.store = store

	registry, err := competitor.NewRegistry(cfg.CompetitorDefinitions())
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("competitors: %w", err)
	}
	c.registry = registry

	policy := scrape.DefaultPolicy()
	policy.SinglePriceCeiling = decimal.NewFromFloat(cfg.Scraper.SinglePriceCeiling)
	c.runner = scrape.NewRunner(a.newProvider(), registry, scrape.NewNormalizer(policy), scrape.RunnerOptions{
		Concurrency:       cfg.Scraper.Concurrency,
		RequestsPerSecond: cfg.Scraper.RequestsPerSecond,
		Burst:             cfg.Scraper.Burst,
		RequestTimeout:    cfg.Scraper.RequestTimeout,
	}, a.Logger)

	var archiver service.Archiver
	archivePath := opts.archivePath
	if archivePath == "" {
		archivePath = cfg.Archive.Path
	}
	if archivePath != "" {
		arc, err := archive.Open(archivePath, a.Logger)
		if err != nil {
			c.Close()
			return nil, err
		}
		c.closers = append(c.closers, func() { _ = arc.Close() })
		archiver = arc
	}

	c.meili = search.NewMeiliClient(search.MeiliOptions{
		Host:      cfg.Search.Host,
		SearchKey: cfg.Search.SearchKey,
		AdminKey:  cfg.Search.AdminKey,
		Timeout:   cfg.Search.Timeout,
	}, a.Logger)
	var index search.Index
	if c.meili != nil {
		index = c.meili
	}

	if store == nil {
		c.scraping = service.NewScraping(c.runner, nil, archiver, nil, a.Logger)
		c.gateway = search.NewGateway(index, nil, a.Logger)
		return c, nil
	}

	c.aggregation = service.NewAggregation(store, pricing.NewAggregator(cfg.Aggregation.Confidence, a.Logger), a.Logger)
	c.deals = a.newDeals(store, a.newNotifier())
	c.scraping = service.NewScraping(c.runner, store, archiver, c.deals, a.Logger)
	c.market = service.NewMarket(store, a.Logger)
	c.gateway = search.NewGateway(index, store, a.Logger)

	c.assembler = compare.NewAssembler(store, store, store, a.Logger)
	if cfg.Cache.Enabled {
		rc := cache.NewRedisCache(cache.Options{
			Addr:     cfg.Cache.Addr,
			Password: cfg.Cache.Password,
			DB:       cfg.Cache.DB,
			Prefix:   cfg.App.Name + ":",
		}, a.Logger)
		if err := rc.Ping(ctx); err != nil {
			a.Logger.Warn().Err(err).Msg("comparison cache unreachable; continuing without it")
			_ = rc.Close()
		} else {
			c.closers = append(c.closers, func() { _ = rc.Close() })
			c.assembler.WithCache(rc, cfg.Cache.TTL)
		}
	}
	c.scraping.WithInvalidator(c.assembler)
	return c, nil
}

func (a *App) newProvider() scrape.Provider {
	cfg := a.Config.Scraper
	if cfg.Provider == "html" {
		ua := cfg.UserAgent
		if ua == "" {
			ua = version.UserAgent()
		}
		return scrape.NewHTMLProvider(scrape.HTMLOptions{UserAgent: ua, Timeout: cfg.RequestTimeout}, a.Logger)
	}
	return scrape.NewZyteProvider(scrape.ZyteOptions{
		APIKey:     cfg.ZyteAPIKey,
		Endpoint:   cfg.ZyteEndpoint,
		Timeout:    cfg.RequestTimeout,
		RetryCount: cfg.RetryCount,
	}, a.Logger)
}

func (a *App) newNotifier() alerting.Notifier {
	if a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		return alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger)
	}
	return alerting.NewLogNotifier(a.Logger)
}

func (a *App) newDeals(market service.DealMarket, notifier alerting.Notifier) *service.Deals {
	cfg := a.Config.Alerting
	var alerts storage.DealAlertStore
	if s, ok := market.(storage.DealAlertStore); ok {
		alerts = s
	}
	return service.NewDeals(service.DealOptions{
		Enabled:      cfg.Enabled,
		ThresholdPct: decimal.NewFromFloat(cfg.ThresholdPct),
		Cooldown:     cfg.Cooldown,
		Channels:     cfg.Channels,
	}, market, alerts, notifier, a.Logger)
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool, a.Logger)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

// serverDeps converts components to route dependencies, leaving store-backed routes unset when
// there is no database.
func (c *components) serverDeps() server.Deps {
	deps := server.Deps{Scraper: c.scraping, Searcher: c.gateway}
	if c.meili != nil {
		deps.Index = c.meili
	}
	if c.store != nil {
		deps.Comparer = c.assembler
		deps.Aggregator = c.aggregation
		deps.Market = c.market
		deps.Catalog = c.store
		deps.Database = c.store
	}
	return deps
}

// ServeOptions configure the serve command.
type ServeOptions struct {
	Addr       string
	WithWorker bool
}

// Serve runs the HTTP API, and the scheduled worker alongside it when asked.
func (a *App) Serve(ctx context.Context, opts ServeOptions) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	c, err := a.build(ctx, buildOptions{requireStore: opts.WithWorker})
	if err != nil {
		return err
	}
	defer c.Close()
	if c.store == nil {
		a.Logger.Warn().Msg("database.dsn not configured; catalog and pricing routes answer 503")
	}

	srvCfg := a.Config.Server
	if opts.Addr != "" {
		srvCfg.Addr = opts.Addr
	}
	srv := server.New(server.Options{
		Addr:            srvCfg.Addr,
		Mode:            srvCfg.Mode,
		ReadTimeout:     srvCfg.ReadTimeout,
		WriteTimeout:    srvCfg.WriteTimeout,
		ShutdownTimeout: srvCfg.ShutdownTimeout,
	}, c.serverDeps(), a.Logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(gctx) })
	if opts.WithWorker {
		worker, err := a.newWorker(c)
		if err != nil {
			return err
		}
		g.Go(func() error { return worker.Run(gctx) })
	}
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// Run executes the long-running aggregation and scrape worker.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	c, err := a.build(ctx, buildOptions{requireStore: true})
	if err != nil {
		return err
	}
	defer c.Close()

	worker, err := a.newWorker(c)
	if err != nil {
		return err
	}

	a.Logger.Info().Msg("starting pricing worker")
	err = worker.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("worker terminated with error")
		return err
	}

	a.Logger.Info().Msg("pricing worker stopped")
	return nil
}

func (a *App) newWorker(c *components) (*service.Worker, error) {
	cfg := a.Config.Scheduler
	periodTypes, err := a.Config.PeriodTypes()
	if err != nil {
		return nil, err
	}

	aggregateSched, err := scheduler.New(scheduler.Options{
		Name:           "aggregate",
		Interval:       cfg.Interval,
		AlignToStart:   cfg.AlignToBucket,
		StartupDelay:   cfg.StartupDelay,
		RunImmediately: true,
	}, a.Logger)
	if err != nil {
		return nil, err
	}
	scrapeSched, err := scheduler.New(scheduler.Options{
		Name:         "scrape",
		Interval:     cfg.ScrapeInterval,
		AlignToStart: cfg.AlignToBucket,
		StartupDelay: cfg.StartupDelay,
	}, a.Logger)
	if err != nil {
		return nil, err
	}

	return service.NewWorker(service.WorkerOptions{
		PeriodTypes:    periodTypes,
		LookbackDays:   cfg.LookbackDays,
		LockKey:        cfg.AdvisoryLockKey,
		AlertRetention: a.Config.Alerting.Retention,
	}, aggregateSched, scrapeSched, c.aggregation, c.scraping, c.store, a.Logger), nil
}
