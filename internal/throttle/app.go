// Package throttle wires the engine into a runnable application.
package throttle

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Application hosts the admission engine behind an HTTP server with health
// and metrics endpoints and a guarded demo route tree.
type Application struct {
	cfg     *Config
	logger  zerolog.Logger
	server  *http.Server
	store   Store
	closers []func() error
}

// NewApplication builds the store, scope table, chain, meter, and router
// from cfg.
func NewApplication(cfg *Config, logger zerolog.Logger) (*Application, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	app := &Application{cfg: cfg, logger: logger}

	var base Store
	switch cfg.StoreKind {
	case "", "memory":
		base = NewMemoryStore(nil)
	case "redis":
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		redisStore, err := DialRedisStore(ctx, cfg.RedisAddr)
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		app.closers = append(app.closers, redisStore.Close)
		base = redisStore
	default:
		return nil, fmt.Errorf("unknown store kind %q", cfg.StoreKind)
	}
	app.store = NewBreakerStore("counter-store", base)

	registry := prometheus.NewRegistry()
	opts := Options{
		Logger:  logger,
		Metrics: NewMetrics(registry),
	}

	rules, err := cfg.Rules()
	if err != nil {
		return nil, err
	}
	table, err := NewScopeTable(app.store, cfg.DefaultScope, rules, opts)
	if err != nil {
		return nil, err
	}

	var meter *UsageMeter
	if cfg.HasMeter() {
		meterCfg, err := cfg.MeterConfig()
		if err != nil {
			return nil, err
		}
		meter = NewUsageMeter(app.store, meterCfg, opts)
	}

	router := mux.NewRouter()
	router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods(http.MethodGet)

	for _, scope := range table.Scopes() {
		guard := Middleware(MiddlewareConfig{
			Chain:  NewChain(table.Resolve(scope)),
			Meter:  meter,
			Logger: logger,
		})
		handler := guard(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))
		router.Handle("/check/"+scope, handler)
	}

	app.server = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return app, nil
}

// Start binds the listener and begins serving. The bind happens before
// Start returns, so a bad address fails here rather than in the serve
// goroutine.
func (a *Application) Start(ctx context.Context) error {
	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", a.server.Addr)
	if err != nil {
		return err
	}
	a.logger.Info().Str("addr", listener.Addr().String()).Msg("admission server listening")
	go func() {
		if err := a.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error().Err(err).Msg("admission server stopped")
		}
	}()
	return nil
}

// Shutdown drains the server and closes backing clients.
func (a *Application) Shutdown(ctx context.Context) error {
	var firstErr error
	if err := a.server.Shutdown(ctx); err != nil {
		firstErr = err
	}
	for _, closeFn := range a.closers {
		if err := closeFn(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
