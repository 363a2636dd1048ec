// Package server wires configuration, storage, services and transports into
// the running sync server and handles graceful shutdown.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/vaultsync/internal/events"
	"github.com/dmitrijs2005/vaultsync/internal/logging"
	"github.com/dmitrijs2005/vaultsync/internal/server/config"
	"github.com/dmitrijs2005/vaultsync/internal/server/healthcheck"
	"github.com/dmitrijs2005/vaultsync/internal/server/httpapi"
	"github.com/dmitrijs2005/vaultsync/internal/server/objectstore"
	"github.com/dmitrijs2005/vaultsync/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/vaultsync/internal/server/services"
	"github.com/dmitrijs2005/vaultsync/internal/server/sweeper"
	_ "github.com/jackc/pgx/v5/stdlib"

	gs "github.com/dmitrijs2005/vaultsync/internal/server/grpc"
)

const (
	eventBuffer     = 256
	shutdownTimeout = 5 * time.Second
)

// ObjectStore is the bucket as the app uses it: presigning for the
// services and a ping for the health checker.
type ObjectStore interface {
	services.ObjectStore
	healthcheck.Pinger
}

var (
	openDB               = sql.Open
	newRepositoryManager = repomanager.NewPostgresRepositoryManager
	newObjectStore       = func(ctx context.Context, o objectstore.Options) (ObjectStore, error) { return objectstore.New(ctx, o) }
	newLogger            = newZapLogger
)

func newZapLogger(level string) (logging.Logger, func() error, error) {
	zl, err := logging.NewProductionZap(level)
	if err != nil {
		return nil, nil, err
	}
	l := logging.NewZapLogger(zl)
	return l, l.Sync, nil
}

type App struct {
	config     *config.Config
	logger     logging.Logger
	syncLogger func() error
	db         *sql.DB
	bus        *events.Bus
	notifier   *events.Notifier
	auth       *services.AuthService
	chunks     *services.ChunkService
	health     *healthcheck.Checker
	router     http.Handler
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger, syncLogger, err := newLogger(c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("logger init error: %w", err)
	}

	db, err := openDB("pgx", c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm := newRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations error: %w", err)
	}

	store, err := newObjectStore(ctx, objectstore.Options{
		AccessKey:     c.S3RootUser,
		SecretKey:     c.S3RootPassword,
		Bucket:        c.S3Bucket,
		Region:        c.S3Region,
		BaseEndpoint:  c.S3BaseEndpoint,
		PresignExpiry: c.PresignExpiry,
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("object store init error: %w", err)
	}

	bus := events.NewBus(eventBuffer)
	notifier := events.NewNotifier()
	paging := services.Paging{Default: c.DefaultPageLimit, Max: c.MaxPageLimit}

	server := services.NewServerService(db, rm, c)
	auth := services.NewAuthService(db, rm, c, bus).WithRegistrationGate(server)
	chunks := services.NewChunkService(db, rm, store, bus)
	health := healthcheck.NewChecker(healthcheck.PingFunc(db.PingContext), store, logger)

	router := httpapi.NewRouter(httpapi.Services{
		Auth:      auth,
		Vaults:    services.NewVaultService(db, rm, paging, bus),
		Versions:  services.NewVersionService(db, rm, chunks, paging, bus),
		Chunks:    chunks,
		Snapshots: services.NewSnapshotService(db, rm),
		Pending:   notifier,
		Users:     services.NewUserService(db, rm, bus),
		Server:    server,
		Health:    health,
	}, logger)

	return &App{
		config:     c,
		logger:     logger,
		syncLogger: syncLogger,
		db:         db,
		bus:        bus,
		notifier:   notifier,
		auth:       auth,
		chunks:     chunks,
		health:     health,
		router:     router,
	}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := gs.NewGRPCServer(app.config.EndpointAddrGRPC, app.logger).
		WithHealthWatcher(app.health, app.config.HealthCheckInterval)
	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	srv := &http.Server{Addr: app.config.EndpointAddrHTTP, Handler: app.router, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		<-ctx.Done()
		app.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			app.logger.Error(ctx, "http shutdown", "error", err)
		}
	}()

	app.logger.Info(ctx, "Starting HTTP server", "address", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

// Run blocks until ctx is cancelled, a signal arrives or a server fails.
func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup
	start := func(fn func(context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn(ctx)
		}()
	}

	sub := app.bus.Subscribe()
	notifierDone := make(chan struct{})
	go func() {
		app.notifier.Run(sub)
		close(notifierDone)
	}()

	start(func(ctx context.Context) { app.startHTTPServer(ctx, cancelFunc) })
	start(func(ctx context.Context) { app.startGRPCServer(ctx, cancelFunc) })
	start(sweeper.NewSessionSweeper(app.auth, app.config.SessionSweepInterval, app.logger).Run)
	start(sweeper.NewChunkCollector(app.chunks, app.config.ChunkGCInterval, app.config.ChunkGCGrace, app.logger).Run)

	wg.Wait()

	app.bus.Close()
	<-notifierDone

	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, "db close", "error", err)
	}
	app.logger.Info(ctx, "App stopped")
	_ = app.syncLogger()
}
