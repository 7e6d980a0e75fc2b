package server

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/fieldwise/farmhand/config"
	"github.com/fieldwise/farmhand/internal/advisor"
	"github.com/fieldwise/farmhand/internal/analytics"
	"github.com/fieldwise/farmhand/internal/library"
	"github.com/fieldwise/farmhand/internal/lookupcache"
	"github.com/fieldwise/farmhand/internal/lookupcache/inmemory"
	rediscache "github.com/fieldwise/farmhand/internal/lookupcache/redis"
	"github.com/fieldwise/farmhand/internal/store"
	"github.com/fieldwise/farmhand/provider"
	"github.com/fieldwise/farmhand/tools/tabular"
	"github.com/fieldwise/farmhand/tools/web_fetch"
	"github.com/fieldwise/farmhand/tools/web_search"
)

// Run wires the full service and serves HTTP until the process exits.
func Run(cfg *config.Config) error {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	// Unified HTTP error handler with structured JSON and logging
	baseLogger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		baseLogger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]interface{}{"error": msg})
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Cookie"},
		AllowCredentials: true,
	}))

	e.GET("/healthz", func(c echo.Context) error { return c.String(200, "ok") })
	registerDocs(e)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	ctx := context.Background()
	_ = Migrate("file://migrations", cfg.Storage.Postgres.DSN(), "up", 0)

	st, err := store.NewWithDSN(ctx, cfg.Storage.Postgres.DSN())
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}

	// Redis serves the lookup cache when selected and the janitor lock when
	// a retention purge can run on multiple replicas.
	var rdb *redis.Client
	if cfg.Sources.WebLookup.CacheBackend == "redis" || cfg.Janitor.Retention > 0 {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Storage.Redis.Addr(),
			Password: cfg.Storage.Redis.Password,
			DB:       cfg.Storage.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis connection failed (%s): %w", cfg.Storage.Redis.Addr(), err)
		}
	}

	var cache lookupcache.Store
	switch cfg.Sources.WebLookup.CacheBackend {
	case "redis":
		cache = rediscache.NewStore(rdb, 2*cfg.Sources.WebLookup.FreshnessWindow)
	default:
		cache = inmemory.NewStore()
	}

	llm, err := provider.NewCompleter(cfg.LLM)
	if err != nil {
		return fmt.Errorf("completion client: %w", err)
	}
	searcher, err := web_search.NewWebSearcher(
		web_search.Provider(cfg.Sources.WebSearch.Provider),
		searchAPIKey(cfg),
		cfg.Sources.WebSearch.Timeout,
	)
	if err != nil {
		return fmt.Errorf("web searcher: %w", err)
	}
	executor, err := tabular.NewExecutor(tabular.CSVExecutorType, cfg.Tabular.DataDir, cfg.Tabular.PreviewRows)
	if err != nil {
		return fmt.Errorf("tabular executor: %w", err)
	}

	var fetcher advisor.WebFetcher
	if cfg.Sources.WebLookup.DeepFetch {
		fetcher, err = web_fetch.NewWebFetcher(web_fetch.ChromedpFetcherType, 0, cfg.Sources.WebLookup.DeepFetchMaxChars)
		if err != nil {
			return fmt.Errorf("web fetcher: %w", err)
		}
	}

	var journal *analytics.Journal
	opts := advisor.Options{
		FreshnessWindow: cfg.Sources.WebLookup.FreshnessWindow,
		WebResults:      cfg.Sources.WebSearch.MaxResults,
		Fetcher:         fetcher,
		FetchMaxChars:   cfg.Sources.WebLookup.DeepFetchMaxChars,
	}
	if cfg.Analytics.LogFile != "" {
		journal = analytics.NewJournal(cfg.Analytics.LogFile)
		opts.Journal = journal
	}
	orch := advisor.NewOrchestrator(llm, searcher, executor, st, cache, opts)

	// Operator search index over the reference library.
	index, err := library.NewIndex()
	if err != nil {
		return fmt.Errorf("search index: %w", err)
	}
	fragments, err := st.AllFragments(ctx)
	if err != nil {
		return fmt.Errorf("load fragments: %w", err)
	}
	if err := index.Rebuild(fragments); err != nil {
		return fmt.Errorf("build search index: %w", err)
	}

	api := e.Group("/api")
	NewConversationsHandler(st, orch).Register(api.Group("/conversations"))
	NewDocumentsHandler(st, index).Register(api.Group("/documents"))
	NewDatasetsHandler(st).Register(api.Group("/datasets"))

	janitor := NewJanitor(cache, st, rdb, cfg.Janitor.Schedule, cfg.Sources.WebLookup.FreshnessWindow, cfg.Janitor.Retention)
	janitor.Start()

	addr := cfg.Server.Address
	if addr == "" {
		addr = ":8080"
	}
	log.Printf("listening on %s", addr)
	return e.Start(addr)
}

func searchAPIKey(cfg *config.Config) string {
	if cfg.Sources.WebSearch.Provider == "brave" {
		return cfg.Sources.WebSearch.BraveAPIKey
	}
	return cfg.Sources.WebSearch.SerperAPIKey
}
