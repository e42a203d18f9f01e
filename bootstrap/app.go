package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"argus/api"
	"argus/config"
	"argus/engine"
	"argus/notify"
	"argus/storage"

	"go.uber.org/zap"
)

// App represents the application with all its components
type App struct {
	Config *config.Config
	Logger *zap.Logger
	Sugar  *zap.SugaredLogger

	Store      storage.Store
	AlertCache *storage.RedisCache

	Engine     *engine.CorrelationEngine
	Dispatcher *notify.Dispatcher
	APIServer  *api.API

	serverErrCh chan error
}

// NewApp creates a new application instance and initializes all components
func NewApp(ctx context.Context) (*App, error) {
	app := &App{
		serverErrCh: make(chan error, 1),
	}

	logger, sugar, err := InitLogger(os.Getenv("ARGUS_LOG_LEVEL"))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	app.Logger = logger
	app.Sugar = sugar

	sugar.Info("Argus correlation engine starting...")

	cfg, err := InitConfig(sugar)
	if err != nil {
		return nil, err
	}
	app.Config = cfg

	store, err := InitStore(cfg, sugar)
	if err != nil {
		return nil, err
	}
	app.Store = store

	app.AlertCache = InitAlertCache(cfg, sugar)

	// The engine persists alerts through the cache wrapper when Redis is
	// available, otherwise straight to the store
	var sink engine.AlertSink = store
	if app.AlertCache != nil {
		sink = storage.NewCachedAlertStore(store, app.AlertCache, sugar)
	}

	app.Dispatcher = notify.NewDispatcher(cfg.Engine.NotifyTimeout, sugar)

	eng, err := engine.New(sink, app.Dispatcher, engine.Options{
		CorrelationWindow: cfg.Engine.CorrelationWindow,
		ResolvedRetention: cfg.Engine.ResolvedRetention,
		DispatchWorkers:   cfg.Engine.DispatchWorkers,
		DispatchQueueSize: cfg.Engine.DispatchQueueSize,
	}, sugar)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize correlation engine: %w", err)
	}
	app.Engine = eng

	if err := app.loadRules(ctx); err != nil {
		return nil, err
	}

	app.APIServer = api.NewAPI(eng, store, cfg, sugar)
	return app, nil
}

// loadRules seeds the store from on-disk rule files, then loads the full
// store contents into the engine. File rules already present in the store
// are left untouched so API edits survive restarts.
func (a *App) loadRules(ctx context.Context) error {
	fileRules, err := storage.LoadRuleFiles(a.Config.DataPaths.RulesDir, a.Sugar)
	if err != nil {
		return fmt.Errorf("failed to load rule files: %w", err)
	}
	for i := range fileRules {
		if err := a.Store.InsertRule(ctx, &fileRules[i]); err != nil {
			if errors.Is(err, storage.ErrDuplicateRule) {
				continue
			}
			a.Sugar.Warnw("Failed to seed rule from file",
				"rule_id", fileRules[i].ID,
				"error", err)
		}
	}

	rules, err := a.Store.ListRules(ctx)
	if err != nil {
		return fmt.Errorf("failed to load rules from store: %w", err)
	}
	a.Engine.ReloadRules(rules)
	return nil
}

// Start starts the API server
func (a *App) Start(ctx context.Context) error {
	go func() {
		a.Sugar.Infof("API listening on %s:%d", a.Config.API.Host, a.Config.API.Port)
		if err := a.APIServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.serverErrCh <- err
		}
	}()
	return nil
}

// WaitForShutdown blocks until a shutdown signal or a server failure
func (a *App) WaitForShutdown() {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	select {
	case sig := <-c:
		a.Sugar.Infof("Received signal %v", sig)
	case err := <-a.serverErrCh:
		a.Sugar.Errorw("API server failed", "error", err)
	}
}

// Shutdown gracefully shuts down all components: API first so no new
// events arrive, then the engine so queued notifications drain, then
// storage.
func (a *App) Shutdown() {
	a.Sugar.Info("Shutting down...")

	if a.APIServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := a.APIServer.Stop(ctx); err != nil {
			a.Sugar.Errorw("API shutdown error", "error", err)
		}
		cancel()
	}

	if a.Engine != nil {
		a.Engine.Stop()
	}

	if a.AlertCache != nil {
		if err := a.AlertCache.Close(); err != nil {
			a.Sugar.Errorw("Redis close error", "error", err)
		}
	}

	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			a.Sugar.Errorw("Storage close error", "error", err)
		}
	}

	a.Sugar.Info("Shutdown complete")
	_ = a.Logger.Sync()
}
