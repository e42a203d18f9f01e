package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"argus/config"
	"argus/core"
	"argus/storage"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Engine is the slice of the correlation engine the API depends on
type Engine interface {
	Evaluate(ctx context.Context, event *core.Event) ([]*core.Alert, error)
	ReloadRules(rules []core.Rule)
	Acknowledge(ctx context.Context, alertID, by string) (*core.Alert, error)
	Resolve(ctx context.Context, alertID, by, notes string) (*core.Alert, error)
	ActiveAlertCount() int
}

// rateLimiterEntry holds a per-client rate limiter with last seen time
type rateLimiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// API holds the HTTP server: event ingestion, rule CRUD, alert lifecycle
type API struct {
	router *mux.Router
	server *http.Server
	engine Engine
	store  storage.Store
	config *config.Config
	logger *zap.SugaredLogger

	validate *validator.Validate

	rateLimiters   map[string]*rateLimiterEntry
	rateLimitersMu sync.Mutex
	stopCh         chan struct{}
}

// NewAPI creates a new API server
func NewAPI(engine Engine, store storage.Store, cfg *config.Config, logger *zap.SugaredLogger) *API {
	a := &API{
		router:       mux.NewRouter(),
		engine:       engine,
		store:        store,
		config:       cfg,
		logger:       logger,
		validate:     validator.New(),
		rateLimiters: make(map[string]*rateLimiterEntry),
		stopCh:       make(chan struct{}),
	}
	a.setupRoutes()
	go a.cleanupRateLimiters()
	return a
}

func (a *API) setupRoutes() {
	a.router.Use(a.rateLimitMiddleware)

	a.router.HandleFunc("/api/events", a.ingestEvent).Methods("POST")

	a.router.HandleFunc("/api/rules", a.getRules).Methods("GET")
	a.router.HandleFunc("/api/rules", a.createRule).Methods("POST")
	a.router.HandleFunc("/api/rules/{id}", a.getRule).Methods("GET")
	a.router.HandleFunc("/api/rules/{id}", a.updateRule).Methods("PUT")
	a.router.HandleFunc("/api/rules/{id}", a.deleteRule).Methods("DELETE")

	a.router.HandleFunc("/api/alerts", a.getAlerts).Methods("GET")
	a.router.HandleFunc("/api/alerts/{id}", a.getAlert).Methods("GET")
	a.router.HandleFunc("/api/alerts/{id}/acknowledge", a.acknowledgeAlert).Methods("POST")
	a.router.HandleFunc("/api/alerts/{id}/resolve", a.resolveAlert).Methods("POST")

	a.router.HandleFunc("/health", a.healthCheck).Methods("GET")
	a.router.Handle("/metrics", promhttp.Handler())
}

// Handler exposes the router for tests
func (a *API) Handler() http.Handler {
	return a.router
}

// Start starts the API server and blocks until it exits
func (a *API) Start() error {
	a.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", a.config.API.Host, a.config.API.Port),
		Handler:      a.router,
		ReadTimeout:  a.config.API.ReadTimeout,
		WriteTimeout: a.config.API.WriteTimeout,
	}
	return a.server.ListenAndServe()
}

// Stop stops the API server
func (a *API) Stop(ctx context.Context) error {
	close(a.stopCh)
	if a.server != nil {
		return a.server.Shutdown(ctx)
	}
	return nil
}

// rateLimitMiddleware applies a per-client token bucket
func (a *API) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		limiter := a.limiterFor(r.RemoteAddr)
		if !limiter.Allow() {
			http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *API) limiterFor(remoteAddr string) *rate.Limiter {
	a.rateLimitersMu.Lock()
	defer a.rateLimitersMu.Unlock()

	entry, ok := a.rateLimiters[remoteAddr]
	if !ok {
		entry = &rateLimiterEntry{
			limiter: rate.NewLimiter(
				rate.Limit(a.config.API.RateLimit.RequestsPerSecond),
				a.config.API.RateLimit.Burst),
		}
		a.rateLimiters[remoteAddr] = entry
	}
	entry.lastSeen = time.Now()
	return entry.limiter
}

// cleanupRateLimiters drops limiters for clients idle over 10 minutes
func (a *API) cleanupRateLimiters() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			a.rateLimitersMu.Lock()
			for addr, entry := range a.rateLimiters {
				if time.Since(entry.lastSeen) > 10*time.Minute {
					delete(a.rateLimiters, addr)
				}
			}
			a.rateLimitersMu.Unlock()
		case <-a.stopCh:
			return
		}
	}
}
