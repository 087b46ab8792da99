package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/splax/moodjournal/db"
	"github.com/splax/moodjournal/internal/app/migrate"
	"github.com/splax/moodjournal/internal/classifier"
	httpx "github.com/splax/moodjournal/internal/http"
	"github.com/splax/moodjournal/internal/metrics"
	"github.com/splax/moodjournal/internal/repository"
	"github.com/splax/moodjournal/internal/repository/memory"
	"github.com/splax/moodjournal/internal/repository/postgres"
	"github.com/splax/moodjournal/internal/service/auth"
	"github.com/splax/moodjournal/internal/service/journal"
	"github.com/splax/moodjournal/pkg/config"
	"github.com/splax/moodjournal/pkg/logger"
)

type store interface {
	repository.UserRepository
	repository.EntryRepository
	Ping(context.Context) error
}

func main() {
	dotenvErr := config.LoadDotEnv(".env")
	cfg := config.LoadJournalConfig()
	log := logger.New("journal-api", logger.ParseLevel(cfg.LogLevel))
	if dotenvErr != nil {
		log.Warn("failed to load .env file", "error", dotenvErr)
	}
	if cfg.Environment == "production" && cfg.JWTSecret == "dev-secret-key" {
		log.Warn("running in production with the development token secret")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry, registry)

	repo, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		log.Error("failed to open store", "driver", cfg.StoreDriver, "error", err)
		os.Exit(1)
	}
	defer closeStore()
	if users, err := repo.CountUsers(ctx); err != nil {
		log.Warn("failed to count users", "error", err)
	} else {
		log.Info("store ready", "driver", cfg.StoreDriver, "users", users)
	}

	var emotions classifier.Classifier = classifier.Fallback()
	if cfg.HFDisabled {
		log.Info("remote classification disabled, every entry is labelled neutral")
	} else {
		hf, err := classifier.NewHuggingFace(classifier.Config{
			BaseURL: cfg.HFBaseURL,
			Model:   cfg.HFModel,
			Token:   cfg.HFToken,
			TopK:    cfg.HFTopK,
			Timeout: cfg.HFTimeout,
		}, nil, log, m)
		if err != nil {
			log.Error("failed to configure classifier", "error", err)
			os.Exit(1)
		}
		if cfg.HFToken == "" {
			log.Warn("no inference api token configured, requests may be throttled")
		}
		emotions = hf
	}

	authSvc := auth.New(repo, log, auth.Config{JWTSecret: cfg.JWTSecret, AccessTokenTTL: cfg.AccessTokenTTL})
	journalSvc := journal.New(repo, emotions, log)

	limiter := httpx.NewMemoryRateLimiter()
	if addr := strings.TrimSpace(cfg.RateLimitRedisAddr); addr != "" {
		redisLimiter, err := httpx.NewRedisRateLimiter(addr, cfg.RateLimitRedisPass, cfg.RateLimitRedisDB, log)
		if err != nil {
			log.Warn("redis rate limiter unavailable", "error", err)
		} else {
			limiter.Close()
			limiter = redisLimiter
		}
	}

	router := httpx.NewRouter(log, authSvc, journalSvc, httpx.Options{
		Limiter:           limiter,
		Metrics:           m,
		CORSOrigins:       cfg.CORSOrigins,
		DBHealth:          repo.Ping,
		TrustProxyHeaders: cfg.TrustProxyHeaders,
	})
	defer router.Close()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errorCh := make(chan error, 1)
	go func() {
		log.Info("api server starting", "addr", cfg.Addr, "env", cfg.Environment, "store", cfg.StoreDriver)
		errorCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful shutdown failed", "error", err)
		}
		log.Info("api server stopped")
	case err := <-errorCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}
}

// openStore connects the configured backend. Postgres schemas are migrated before use.
func openStore(ctx context.Context, cfg config.JournalConfig, log *slog.Logger) (store, func(), error) {
	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		log.Warn("using in-memory store, data is lost on restart")
		return memory.New(), func() {}, nil
	case config.StoreDriverPostgres, "":
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect database: %w", err)
	}
	runner, err := migrate.New(pool, cfg.DatabaseURL, db.Migrations, db.MigrationsDir, log)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("configure migrations: %w", err)
	}
	if err := runner.Ping(ctx); err != nil {
		runner.Close()
		return nil, nil, fmt.Errorf("database ping: %w", err)
	}
	if err := runner.Ensure(ctx); err != nil {
		runner.Close()
		return nil, nil, fmt.Errorf("migrations: %w", err)
	}
	return postgres.New(pool), runner.Close, nil
}
