// Package app wires storage, the catalog and the enrollment services into
// the HTTP server and manages their lifecycle.
package app

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/learnerinfo/lis/internal/accounts"
	"github.com/learnerinfo/lis/internal/aggregator"
	httpapi "github.com/learnerinfo/lis/internal/api/http"
	"github.com/learnerinfo/lis/internal/config"
	"github.com/learnerinfo/lis/internal/enrollment"
	"github.com/learnerinfo/lis/internal/entry"
	"github.com/learnerinfo/lis/internal/loader"
	"github.com/learnerinfo/lis/internal/manifest"
	"github.com/learnerinfo/lis/internal/notify"
	"github.com/learnerinfo/lis/internal/observability"
	"github.com/learnerinfo/lis/internal/registry"
	"github.com/learnerinfo/lis/internal/server"
	"github.com/learnerinfo/lis/internal/snapshot"
	"github.com/learnerinfo/lis/internal/storage"
)

const statsPruneInterval = 5 * time.Minute

// App owns every service of one LIS process.
type App struct {
	cfg    *config.Config
	layout enrollment.Layout

	// Shared resources
	storage   storage.ObjectStorage
	catalog   *manifest.SQLiteCatalog
	registry  *registry.Registry
	loader    *loader.Loader
	engine    *aggregator.Engine
	stats     *observability.UsageStats
	snapshots *snapshot.Store
	notifier  *notify.Notifier
	writer    *entry.Writer
	accounts  *accounts.Store
	tokens    *accounts.Tokens
	shutdown  *server.ShutdownManager

	// HTTP
	httpServer *server.HTTPServer
	listener   net.Listener

	// Lifecycle
	mu      sync.Mutex
	opened  bool
	running bool
	wg      sync.WaitGroup
}

// New creates an App with the given configuration.
func New(cfg *config.Config) (*App, error) {
	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to create directories: %w", err)
	}

	return &App{
		cfg:    cfg,
		layout: enrollment.NewLayout(cfg.EnrollmentPrefix),
	}, nil
}

// Open initializes storage, the catalog and the services without starting
// the HTTP server. CLI commands use it directly.
func (a *App) Open(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.opened {
		return nil
	}
	if err := a.initSharedResources(ctx); err != nil {
		a.cleanup()
		return fmt.Errorf("failed to initialize shared resources: %w", err)
	}
	a.opened = true
	return nil
}

// Start opens the services and serves the HTTP API in the background.
func (a *App) Start(ctx context.Context) error {
	if err := a.Open(ctx); err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.running {
		return fmt.Errorf("app is already running")
	}

	if err := a.startHTTP(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	a.running = true

	log.Printf("lis: started, serving %d school years from %s storage", a.countYears(ctx), a.cfg.Storage.Type)
	return nil
}

// initSharedResources builds storage, the catalog and every service.
func (a *App) initSharedResources(ctx context.Context) error {
	var err error

	switch a.cfg.Storage.Type {
	case "local":
		a.storage, err = storage.NewLocalStorage(a.cfg.Storage.Path)
	case "s3":
		a.storage, err = storage.NewS3Storage(ctx, a.cfg.Storage.S3.Bucket, storage.S3Config{
			Region:       a.cfg.Storage.S3.Region,
			Endpoint:     a.cfg.Storage.S3.Endpoint,
			UsePathStyle: a.cfg.Storage.S3.UsePathStyle,
		})
	default:
		return fmt.Errorf("unsupported storage type: %s", a.cfg.Storage.Type)
	}
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	if a.cfg.Storage.Type == "s3" {
		log.Printf("storage: s3 bucket=%s region=%s endpoint=%s",
			a.cfg.Storage.S3.Bucket, a.cfg.Storage.S3.Region, a.cfg.Storage.S3.Endpoint)
	} else {
		log.Printf("storage: local path=%s", a.cfg.Storage.Path)
	}

	a.shutdown = server.NewShutdownManager(server.ShutdownConfig{ShutdownTimeout: a.cfg.ShutdownTimeout})

	// The catalog is advisory: writes proceed without it.
	var catalog manifest.Catalog
	if a.cfg.Catalog.Enabled {
		a.catalog, err = manifest.NewCatalog(a.cfg.Catalog.Path)
		if err != nil {
			return fmt.Errorf("failed to initialize catalog: %w", err)
		}
		catalog = a.catalog
		a.shutdown.RegisterCloser("catalog", a.catalog)

		n, err := manifest.Sync(ctx, a.catalog, a.storage, a.layout)
		if err != nil {
			log.Printf("[WARN] catalog: startup sync failed: %v", err)
		} else if n > 0 {
			log.Printf("catalog: recorded %d enrollment files found in storage", n)
		}
	}

	a.registry = registry.New(a.storage, a.cfg.SchoolsFile, a.layout)
	a.loader = loader.New(a.storage, a.registry, loader.Config{
		Layout:       a.layout,
		Concurrency:  a.cfg.Dashboard.LoadConcurrency,
		CacheEntries: a.cfg.Dashboard.CacheEntries,
	})
	a.engine = aggregator.NewEngine(a.loader, a.registry, aggregator.Options{
		RegionOrderThreshold: a.cfg.Dashboard.RegionOrderThreshold,
		LeaderboardSize:      a.cfg.Dashboard.LeaderboardSize,
		TrendWindow:          a.cfg.Dashboard.TrendWindow,
	})
	a.stats = observability.NewUsageStats(a.cfg.Dashboard.StatsWindow)
	a.engine.SetStats(a.stats)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.stats.RunPruner(statsPruneInterval, a.shutdown.ShutdownCh())
	}()

	a.snapshots = snapshot.NewStore(a.storage, a.cfg.Snapshots.Prefix, a.cfg.Snapshots.Keep)

	// Writes evict the loader's cached dataset for the year.
	a.notifier = notify.New(64)
	a.shutdown.RegisterCloser("notifier", a.notifier)
	sub := a.notifier.Subscribe("loader-cache")
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.loader.Watch(sub)
	}()

	a.writer = entry.NewWriter(a.storage, a.registry, catalog, a.snapshots, entry.Config{
		Layout:   a.layout,
		Notifier: a.notifier,
	})

	a.accounts = accounts.NewStore(a.storage, a.cfg.UsersFile, a.cfg.Auth.BcryptCost)
	if a.cfg.Auth.JWTSecret != "" {
		a.tokens = accounts.NewTokens(a.cfg.Auth.JWTSecret, a.cfg.Auth.TokenTTL)
	}

	return nil
}

// Handler returns the API handler with the full middleware chain.
func (a *App) Handler() http.Handler {
	deps := httpapi.Deps{
		Engine:         a.engine,
		Registry:       a.registry,
		Writer:         a.writer,
		Accounts:       a.accounts,
		Tokens:         a.tokens,
		Stats:          a.stats,
		RequireAuth:    a.cfg.Auth.Enabled,
		MaxUploadBytes: int64(a.cfg.HTTP.MaxUploadMB) << 20,
	}
	if a.catalog != nil {
		deps.Catalog = a.catalog
	}

	middleware := httpapi.ChainMiddleware(
		server.ShutdownMiddleware(a.shutdown),
		httpapi.RecoveryMiddleware,
		httpapi.RequestIDMiddleware,
		httpapi.CorrelationIDMiddleware,
		httpapi.ContentTypeMiddleware,
	)
	return middleware(httpapi.NewRouter(deps))
}

// startHTTP binds the listen address and serves in the background.
func (a *App) startHTTP() error {
	ln, err := net.Listen("tcp", a.cfg.HTTP.Addr)
	if err != nil {
		return err
	}
	a.listener = ln

	a.httpServer = server.NewHTTPServer(&http.Server{
		Handler:      a.Handler(),
		ReadTimeout:  a.cfg.HTTP.ReadTimeout,
		WriteTimeout: a.cfg.HTTP.WriteTimeout,
		IdleTimeout:  a.cfg.HTTP.IdleTimeout,
	}, a.shutdown)

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		log.Printf("http: listening on %s", ln.Addr())
		if err := a.httpServer.Serve(ln); err != nil {
			log.Printf("[ERROR] http: server error: %v", err)
		}
	}()
	return nil
}

// Addr returns the bound HTTP address once started.
func (a *App) Addr() string {
	if a.listener == nil {
		return ""
	}
	return a.listener.Addr().String()
}

func (a *App) countYears(ctx context.Context) int {
	years, err := a.registry.GetAvailableSchoolYears(ctx)
	if err != nil {
		log.Printf("[WARN] lis: failed to list school years: %v", err)
		return 0
	}
	return len(years)
}

// Stop drains requests, stops the HTTP server and releases resources.
func (a *App) Stop(ctx context.Context) error {
	a.mu.Lock()
	if !a.opened {
		a.mu.Unlock()
		return nil
	}
	a.opened = false
	a.running = false
	a.mu.Unlock()

	err := a.shutdown.Shutdown(ctx, "stop requested")
	a.wg.Wait()

	log.Printf("lis: stopped")
	return err
}

// Close releases resources of an App that was only opened.
func (a *App) Close() error {
	return a.Stop(context.Background())
}

// cleanup releases what a failed Open managed to create.
func (a *App) cleanup() {
	if a.notifier != nil {
		a.notifier.Close()
	}
	if a.catalog != nil {
		a.catalog.Close()
		a.catalog = nil
	}
}

// WaitForShutdown blocks until a shutdown signal arrives or ctx is done,
// then stops the app.
func (a *App) WaitForShutdown(ctx context.Context) error {
	err := a.shutdown.ListenForSignals(ctx)
	a.mu.Lock()
	a.opened = false
	a.running = false
	a.mu.Unlock()
	a.wg.Wait()
	return err
}

// Config returns the resolved configuration.
func (a *App) Config() *config.Config { return a.cfg }

// Layout returns the enrollment file layout.
func (a *App) Layout() enrollment.Layout { return a.layout }

// Storage returns the object store.
func (a *App) Storage() storage.ObjectStorage { return a.storage }

// Catalog returns the file-version catalog, or nil when disabled.
func (a *App) Catalog() *manifest.SQLiteCatalog { return a.catalog }

// Registry returns the school registry.
func (a *App) Registry() *registry.Registry { return a.registry }

// Engine returns the aggregation engine.
func (a *App) Engine() *aggregator.Engine { return a.engine }

// Writer returns the entry writer.
func (a *App) Writer() *entry.Writer { return a.writer }

// Stats returns the usage statistics tracker.
func (a *App) Stats() *observability.UsageStats { return a.stats }

// Snapshots returns the snapshot store.
func (a *App) Snapshots() *snapshot.Store { return a.snapshots }

// Accounts returns the account store.
func (a *App) Accounts() *accounts.Store { return a.accounts }

// Tokens returns the token issuer, or nil when no secret is configured.
func (a *App) Tokens() *accounts.Tokens { return a.tokens }
