package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/cardiosense/cardiosense/server/internal/alerts"
	"github.com/cardiosense/cardiosense/server/internal/api"
	"github.com/cardiosense/cardiosense/server/internal/auth"
	"github.com/cardiosense/cardiosense/server/internal/cache"
	"github.com/cardiosense/cardiosense/server/internal/config"
	"github.com/cardiosense/cardiosense/server/internal/events"
	"github.com/cardiosense/cardiosense/server/internal/explain"
	"github.com/cardiosense/cardiosense/server/internal/metrics"
	"github.com/cardiosense/cardiosense/server/internal/ruleset"
	"github.com/cardiosense/cardiosense/server/internal/store"
	"github.com/cardiosense/cardiosense/server/internal/store/sqlstore"
	"github.com/cardiosense/cardiosense/server/internal/ws"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	envFile := flag.String("env-file", ".env", "optional dotenv file with secrets referenced by *_env keys")
	flag.Parse()

	// A missing .env is normal outside local development.
	_ = godotenv.Load(*envFile)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Server.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	slog.Info("cardiosense-server starting", "config", *configPath)
	slog.Info("config loaded",
		"http_port", cfg.Server.HTTPPort,
		"auth_mode", cfg.Server.Auth.Mode,
		"rule_set", cfg.Server.Rules.Set,
		"rules_file", cfg.Server.Rules.File,
		"storage", cfg.Server.Storage.Backend,
		"events", cfg.Server.Events.Backend,
		"cache", cfg.Server.Cache.Backend,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg); err != nil {
		slog.Error("cardiosense-server stopped", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	sc := cfg.Server

	m := metrics.New(prometheus.NewRegistry())

	// Active rule set, hot-swapped when the rules file changes.
	rs, err := sc.Rules.Load()
	if err != nil {
		return fmt.Errorf("load rule set: %w", err)
	}
	rules := ruleset.New(rs, m.ObserveReload)
	slog.Info("rule set loaded", "id", rs.ID(), "rules", rs.Len())

	if sc.Rules.File != "" {
		go func() {
			err := config.WatchFile(ctx, sc.Rules.File, func() error {
				return rules.Reload(sc.Rules.Load)
			})
			if err != nil {
				slog.Warn("rule set watcher stopped", "path", sc.Rules.File, "err", err)
			}
		}()
	}

	readings, closeLog, err := openLog(ctx, sc)
	if err != nil {
		return err
	}
	defer closeLog()

	publisher, err := events.New(sc.Events)
	if err != nil {
		return fmt.Errorf("events: %w", err)
	}
	defer publisher.Close() //nolint:errcheck

	reportCache, err := cache.New(ctx, sc.Cache)
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	defer reportCache.Close() //nolint:errcheck

	// Alerts engine: fires on every emergency or CRITICAL reading.
	alertEngine := alerts.New(sc.Alerts)
	defer alertEngine.Wait()

	// WebSocket hub: pushes each new reading to dashboard clients.
	hub := ws.New()
	go hub.Run(ctx)

	apiHandler := api.New(api.Deps{
		Rules:     rules,
		Log:       readings,
		Alerts:    alertEngine,
		Explainer: explain.Template{},
		Events:    publisher,
		Cache:     reportCache,
		Hub:       hub,
		Metrics:   m,
	})

	httpMux := http.NewServeMux()
	httpMux.Handle("/api/", apiHandler)
	httpMux.Handle("/ws/stream", hub)
	httpMux.Handle("/metrics", m.Handler())

	handler, err := newHTTPHandler(ctx, sc, m, httpMux)
	if err != nil {
		return err
	}
	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", sc.HTTPPort),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "port", sc.HTTPPort)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}

	slog.Info("cardiosense-server shutting down")
	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	return httpSrv.Shutdown(shutdownCtx)
}

// openLog returns the configured reading log and a function releasing it.
func openLog(ctx context.Context, sc config.ServerConfig) (store.Log, func(), error) {
	switch sc.Storage.Backend {
	case "", "memory":
		mem := store.NewMemory(sc.History.TTL, sc.History.MaxEntries)
		go mem.Run(ctx)
		return mem, func() {}, nil
	default:
		if sc.Storage.CreateTables {
			if err := sqlstore.Migrate(ctx, sc.Storage.Backend, sc.Storage.DSN(), sc.Storage.Table); err != nil {
				return nil, nil, fmt.Errorf("storage: %w", err)
			}
		}
		st, err := sqlstore.Open(ctx, sc.Storage.Backend, sc.Storage.DSN(), sc.Storage.Table)
		if err != nil {
			return nil, nil, fmt.Errorf("storage: %w", err)
		}
		slog.Info("reading log opened", "backend", st.Name(), "table", sc.Storage.Table)
		return st, func() { st.Close() }, nil //nolint:errcheck
	}
}

// newHTTPHandler wraps mux in the middleware chain, outermost first: metrics,
// per-IP rate limit, API key auth.
func newHTTPHandler(ctx context.Context, sc config.ServerConfig, m *metrics.Metrics, mux http.Handler) (http.Handler, error) {
	h := auth.APIKey(
		sc.Auth.Mode,
		sc.Auth.EffectiveHeader(),
		sc.Auth.Key(),
		m.AuthFailures.Inc,
		"/metrics", "/api/v1/health",
	)(mux)

	if sc.RateLimit.RPS > 0 {
		proxies, err := sc.RateLimit.Proxies()
		if err != nil {
			return nil, fmt.Errorf("rate limit: %w", err)
		}
		limiter := api.NewIPRateLimiter(sc.RateLimit.RPS, sc.RateLimit.Burst, proxies...)
		go limiter.Run(ctx.Done())
		h = api.RateLimit(limiter, m.RateLimitDropped.Inc)(h)
	}
	return m.Middleware(h), nil
}
