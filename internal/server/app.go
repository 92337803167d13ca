// Package server builds the application's dependency graph and runs the
// HTTP server.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/JakeFAU/reviewdle/internal/api"
	"github.com/JakeFAU/reviewdle/internal/clock/system"
	"github.com/JakeFAU/reviewdle/internal/config"
	"github.com/JakeFAU/reviewdle/internal/daily"
	"github.com/JakeFAU/reviewdle/internal/dailycache"
	"github.com/JakeFAU/reviewdle/internal/fetcher"
	collyfetcher "github.com/JakeFAU/reviewdle/internal/fetcher/colly"
	headlessfetcher "github.com/JakeFAU/reviewdle/internal/fetcher/headless"
	"github.com/JakeFAU/reviewdle/internal/game"
	"github.com/JakeFAU/reviewdle/internal/headless/detector"
	"github.com/JakeFAU/reviewdle/internal/id/uuid"
	"github.com/JakeFAU/reviewdle/internal/logging"
	"github.com/JakeFAU/reviewdle/internal/policy/ratelimit"
	memorypublisher "github.com/JakeFAU/reviewdle/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/reviewdle/internal/publisher/pubsub"
	"github.com/JakeFAU/reviewdle/internal/reviews"
	"github.com/JakeFAU/reviewdle/internal/search"
	"github.com/JakeFAU/reviewdle/internal/selector"
	gcsstorage "github.com/JakeFAU/reviewdle/internal/storage/gcs"
	localstorage "github.com/JakeFAU/reviewdle/internal/storage/local"
	memorystorage "github.com/JakeFAU/reviewdle/internal/storage/memory"
	pgstore "github.com/JakeFAU/reviewdle/internal/storage/postgres"
	"github.com/JakeFAU/reviewdle/internal/telemetry"
)

// catalog is what the app needs from a catalog store.
type catalog interface {
	game.Catalog
	Ping(ctx context.Context) error
}

// App contains the application's dependencies.
type App struct {
	cfg       *config.Config
	logger    *zap.Logger
	apiServer *api.Server
	daily     *daily.Service

	catalog   catalog
	tracing   *telemetry.Tracing
	pgStore   *pgstore.CatalogStore
	headless  *headlessfetcher.Fetcher
	gcs       *gcsstorage.BlobStore
	publisher *gcppublisher.Publisher
}

// Build creates the application's dependencies.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)
	return BuildWithLogger(ctx, cfg, logger)
}

// BuildWithLogger creates the application's dependencies using logger.
func BuildWithLogger(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	app := &App{cfg: cfg, logger: logger}
	logger.Info("building application",
		zap.Int("port", cfg.Server.Port),
		zap.String("timezone", cfg.Game.Timezone),
		zap.String("archive_backend", cfg.Archive.Backend),
	)

	loc, err := cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("timezone init failed: %w", err)
	}
	app.tracing, err = telemetry.Setup(ctx, telemetry.ServiceName, telemetry.Config{
		Enabled:     cfg.Tracing.Enabled,
		Endpoint:    cfg.Tracing.Endpoint,
		Headers:     cfg.Tracing.Headers,
		SampleRatio: cfg.Tracing.SampleRatio,
	})
	if err != nil {
		return nil, fmt.Errorf("tracing init failed: %w", err)
	}
	if err := app.setupCatalog(ctx); err != nil {
		app.closeInfrastructure()
		return nil, err
	}
	archive, err := app.setupArchive(ctx)
	if err != nil {
		app.closeInfrastructure()
		return nil, err
	}
	publisher, err := app.setupPublisher(ctx)
	if err != nil {
		app.closeInfrastructure()
		return nil, err
	}
	clueFetcher, err := app.setupFetcher()
	if err != nil {
		app.closeInfrastructure()
		return nil, err
	}

	acquirer := reviews.NewAcquirer(clueFetcher, reviews.NewParser(), cfg.ClueTimeout(), logger.Named("reviews"))
	app.daily, err = daily.New(daily.Deps{
		Catalog:   app.catalog,
		Selector:  selector.New(app.catalog, logger.Named("selector")),
		Acquirer:  acquirer,
		Cache:     dailycache.New(logger.Named("dailycache")),
		Clock:     system.New(),
		Archive:   archive,
		Publisher: publisher,
		IDs:       uuid.New(),
		Logger:    logger.Named("daily"),
	}, daily.Config{
		Location:      loc,
		ArchivePrefix: cfg.Archive.Prefix,
		Topic:         cfg.PubSub.TopicName,
	})
	if err != nil {
		app.closeInfrastructure()
		return nil, fmt.Errorf("daily service init failed: %w", err)
	}

	app.apiServer = api.NewServer(app.daily, search.New(app.catalog), api.Options{
		RequestTimeout: cfg.RequestTimeout(),
		Ready:          app.catalog,
	}, logger.Named("api"))
	return app, nil
}

// Daily returns the puzzle pipeline.
func (a *App) Daily() *daily.Service {
	return a.daily
}

// Handler returns the HTTP handler. Requests get server spans when tracing
// is enabled.
func (a *App) Handler() http.Handler {
	if !a.cfg.Tracing.Enabled {
		return a.apiServer.Handler()
	}
	return otelhttp.NewHandler(a.apiServer.Handler(), telemetry.ServiceName)
}

// Run starts the HTTP server and blocks until the context is canceled or a
// termination signal arrives.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	closeErr := a.Close()

	select {
	case err := <-serveErr:
		return fmt.Errorf("http server: %w", err)
	default:
		return closeErr
	}
}

// Close releases infrastructure clients and flushes the logger.
func (a *App) Close() error {
	a.closeInfrastructure()
	a.logger.Info("shutdown complete")
	// Sync fails on stderr/stdout for some platforms; not actionable.
	_ = a.logger.Sync() //nolint:errcheck // see above
	return nil
}

func (a *App) closeInfrastructure() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.tracing.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn("tracing shutdown failed", zap.Error(err))
	}
	if a.headless != nil {
		a.headless.Close()
	}
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.logger.Warn("pubsub publisher close failed", zap.Error(err))
		}
	}
	if a.gcs != nil {
		if err := a.gcs.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.pgStore != nil {
		a.pgStore.Close()
	}
}

func (a *App) setupCatalog(ctx context.Context) error {
	db := a.cfg.Database
	if db.DSN != "" {
		store, err := pgstore.NewCatalogStore(ctx, pgstore.CatalogStoreConfig{
			DSN:             db.DSN,
			EntriesTable:    db.EntriesTable,
			SourcesTable:    db.SourcesTable,
			MaxConns:        db.MaxConns,
			MinConns:        db.MinConns,
			MaxConnLifetime: db.MaxConnLifetime,
		})
		if err != nil {
			return fmt.Errorf("catalog store init failed: %w", err)
		}
		a.pgStore = store
		a.catalog = store
		a.logger.Info("postgres catalog initialized",
			zap.String("entries_table", db.EntriesTable),
			zap.String("sources_table", db.SourcesTable),
		)
		return nil
	}

	if path := a.cfg.Catalog.FixtureFile; path != "" {
		store, err := memorystorage.LoadCatalogFixture(path)
		if err != nil {
			return fmt.Errorf("catalog fixture load failed: %w", err)
		}
		a.catalog = store
		a.logger.Info("in-memory catalog loaded", zap.String("fixture", path))
		return nil
	}

	a.logger.Warn("no database DSN or catalog fixture configured, using an empty in-memory catalog")
	a.catalog = memorystorage.NewCatalogStore()
	return nil
}

func (a *App) setupArchive(ctx context.Context) (game.BlobStore, error) {
	archive := a.cfg.Archive
	switch archive.Backend {
	case "gcs":
		store, err := gcsstorage.Dial(ctx, gcsstorage.Config{Bucket: archive.Bucket})
		if err != nil {
			return nil, fmt.Errorf("gcs archive init failed: %w", err)
		}
		a.gcs = store
		a.logger.Info("archiving payloads to GCS", zap.String("bucket", archive.Bucket))
		return store, nil
	case "local":
		store, err := localstorage.New(localstorage.Config{BaseDir: archive.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("local archive init failed: %w", err)
		}
		a.logger.Info("archiving payloads locally", zap.String("path", archive.BaseDir))
		return store, nil
	case "memory":
		a.logger.Info("archiving payloads in memory")
		return memorystorage.NewBlobStore(), nil
	default:
		a.logger.Info("payload archive disabled")
		return nil, nil
	}
}

func (a *App) setupPublisher(ctx context.Context) (game.Publisher, error) {
	ps := a.cfg.PubSub
	if ps.ProjectID == "" || ps.TopicName == "" {
		a.logger.Info("no Pub/Sub topic configured, recording notifications in memory")
		return memorypublisher.New(), nil
	}
	pub, err := gcppublisher.Dial(ctx, ps.ProjectID, ps.TopicName)
	if err != nil {
		return nil, fmt.Errorf("pubsub publisher init failed: %w", err)
	}
	a.publisher = pub
	a.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", ps.ProjectID),
		zap.String("topic", ps.TopicName),
	)
	return pub, nil
}

func (a *App) setupFetcher() (game.ClueFetcher, error) {
	sc := a.cfg.Scraper
	collyCfg := collyfetcher.Config{
		UserAgent: sc.UserAgent,
		Timeout:   a.cfg.FetchTimeout(),
	}
	if a.cfg.Tracing.Enabled {
		collyCfg.WrapTransport = func(rt http.RoundTripper) http.RoundTripper {
			return otelhttp.NewTransport(rt)
		}
	}
	var clueFetcher game.ClueFetcher = collyfetcher.New(collyCfg)
	a.logger.Info("using colly clue fetcher",
		zap.Duration("attempt_timeout", a.cfg.FetchTimeout()),
		zap.Duration("clue_timeout", a.cfg.ClueTimeout()),
	)

	if sc.Headless.Enabled {
		hf, err := headlessfetcher.NewChromedp(headlessfetcher.Config{
			MaxParallel:       sc.Headless.MaxParallel,
			UserAgent:         sc.UserAgent,
			NavigationTimeout: a.cfg.NavTimeout(),
		})
		if err != nil {
			return nil, fmt.Errorf("headless fetcher init failed: %w", err)
		}
		a.headless = hf
		clueFetcher = fetcher.NewFallback(clueFetcher, hf, a.logger.Named("fetcher"),
			fetcher.WithPromoter(detector.NewHeuristic(0)))
		a.logger.Info("headless fallback enabled", zap.Int("max_parallel", sc.Headless.MaxParallel))
	}

	if sc.RateLimit.Enabled {
		clueFetcher = ratelimit.New(ratelimit.Config{
			DefaultRPS:   sc.RateLimit.RPS,
			DefaultBurst: sc.RateLimit.Burst,
		}).Wrap(clueFetcher)
		a.logger.Info("rate limiter enabled",
			zap.Float64("rps", sc.RateLimit.RPS),
			zap.Int("burst", sc.RateLimit.Burst),
		)
	}

	// Each retry attempt takes its own rate limit token.
	if sc.Retry.MaxAttempts > 1 {
		clueFetcher = fetcher.NewRetrying(clueFetcher, fetcher.NewExponentialRetryPolicy(
			sc.Retry.MaxAttempts,
			time.Duration(sc.Retry.BaseDelayMS)*time.Millisecond,
			time.Duration(sc.Retry.MaxDelayMS)*time.Millisecond,
		), a.logger.Named("fetcher"))
		a.logger.Info("fetch retries enabled", zap.Int("max_attempts", sc.Retry.MaxAttempts))
	}
	return clueFetcher, nil
}
