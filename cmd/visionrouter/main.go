package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
	"gorm.io/gorm"

	vr "github.com/ineyio/visionrouter"
	"github.com/ineyio/visionrouter/brandstore"
	"github.com/ineyio/visionrouter/internal/config"
	"github.com/ineyio/visionrouter/internal/httpapi"
	"github.com/ineyio/visionrouter/internal/retention"
	"github.com/ineyio/visionrouter/ledger"
	ledgerpg "github.com/ineyio/visionrouter/ledger/postgres"
	ledgerredis "github.com/ineyio/visionrouter/ledger/redis"
	"github.com/ineyio/visionrouter/meter"
	"github.com/ineyio/visionrouter/policy"
	"github.com/ineyio/visionrouter/provider/gemini"
	"github.com/ineyio/visionrouter/provider/openaicompat"
)

func main() {
	if err := run(); err != nil {
		log.WithError(err).Error("visionrouter exited")
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logger, err := setupLogger(cfg.Log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	catalog := vr.DefaultConfig()
	if cfg.Catalog.Path != "" {
		catalog, err = vr.LoadConfig(cfg.Catalog.Path)
		if err != nil {
			return err
		}
	}

	usage, prune, closeLedger, err := openLedger(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeLedger()

	brands, err := openBrandStore(cfg.Brand)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	promMeter, err := meter.NewPrometheusMeter(reg)
	if err != nil {
		return err
	}
	httpMetrics, err := httpapi.NewHTTPMetrics(reg)
	if err != nil {
		return err
	}

	svc, err := vr.NewService(catalog, usage, providers(cfg.Providers),
		vr.WithPolicy(&policy.FreeFirstPolicy{}),
		vr.WithServiceMeter(meter.Multi{promMeter, meter.NewLogMeter(logger)}),
		vr.WithLogger(logger),
		vr.WithRouterOptions(vr.WithCallTimeout(cfg.Catalog.CallTimeout)),
	)
	if err != nil {
		return err
	}

	retention.New(prune, cfg.Ledger.Retention, retention.WithLogger(logger)).Start(ctx)

	handler := httpapi.NewHandler(svc, brands, logger)
	srv := &http.Server{
		Addr: cfg.Server.Addr(),
		Handler: httpapi.NewRouter(handler, httpapi.RouterConfig{
			CORSAllowedOrigins: cfg.CORS.AllowedOrigins,
			Metrics:            httpMetrics,
			Gatherer:           reg,
			Logger:             logger,
		}),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.Catalog.CallTimeout*2 + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.WithFields(log.Fields{
			"addr":   srv.Addr,
			"ledger": cfg.Ledger.Backend,
			"models": len(svc.Models()),
		}).Info("starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		logger.Info("shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	logger.Info("server stopped gracefully")
	return nil
}

func setupLogger(cfg config.LogConfig) (*log.Logger, error) {
	logger := log.New()

	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("parsing log level: %w", err)
	}
	logger.SetLevel(level)

	if cfg.Format == "json" {
		logger.SetFormatter(&log.JSONFormatter{})
	} else {
		logger.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}

	var out io.Writer = os.Stdout
	if cfg.File != "" {
		out = &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			Compress:   true,
		}
	}
	logger.SetOutput(out)
	return logger, nil
}

// openLedger returns the configured ledger, its prune function (nil when
// the backend expires records itself) and a close function.
func openLedger(ctx context.Context, cfg *config.Config) (vr.UsageLedger, retention.PruneFunc, func(), error) {
	switch cfg.Ledger.Backend {
	case config.LedgerRedis:
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, nil, nil, fmt.Errorf("connecting to redis: %w", err)
		}
		l := ledgerredis.New(client, ledgerredis.WithRetention(cfg.Ledger.Retention))
		return l, nil, func() { client.Close() }, nil

	case config.LedgerPostgres:
		pool, err := pgxpool.New(ctx, cfg.DB.DSN)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("connecting to postgres: %w", err)
		}
		l := ledgerpg.New(pool)
		if err := l.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, nil, err
		}
		return l, l.Prune, pool.Close, nil

	default:
		l := ledger.NewMemory()
		prune := func(_ context.Context, before time.Time) (int64, error) {
			return int64(l.Prune(before)), nil
		}
		return l, prune, func() {}, nil
	}
}

func openBrandStore(cfg config.BrandConfig) (brandstore.Store, error) {
	if cfg.SQLitePath == "" {
		return brandstore.NewMemory(), nil
	}
	db, err := gorm.Open(sqlite.Open(cfg.SQLitePath), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("opening brand store: %w", err)
	}
	s := brandstore.NewGormStore(db)
	if err := s.Migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

// providers builds every adapter. Ones without a key stay registered and
// fail with ErrProviderNotConfigured, which falls back to the default model.
func providers(cfg config.ProvidersConfig) []vr.Provider {
	return []vr.Provider{
		gemini.New(gemini.WithAPIKey(cfg.GeminiAPIKey)),
		openaicompat.NewOpenAI(openaicompat.WithAPIKey(cfg.OpenAIAPIKey)),
		openaicompat.NewOpenRouter(cfg.OpenRouterReferer, cfg.OpenRouterTitle, openaicompat.WithAPIKey(cfg.OpenRouterAPIKey)),
		openaicompat.NewPerplexity(openaicompat.WithAPIKey(cfg.PerplexityAPIKey)),
	}
}
