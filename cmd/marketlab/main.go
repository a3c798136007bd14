package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/efreitasn/marketlab/internal/config"
	"github.com/efreitasn/marketlab/internal/domain"
	"github.com/efreitasn/marketlab/internal/handler"
	"github.com/efreitasn/marketlab/internal/metrics"
	"github.com/efreitasn/marketlab/internal/service"
	"github.com/efreitasn/marketlab/internal/store"
)

func main() {
	healthcheck := flag.Bool("healthcheck", false, "Run health check against running server")
	flag.Parse()

	// Handle -healthcheck flag: HTTP GET to localhost:PORT/healthz, exit 0/1.
	if *healthcheck {
		port := os.Getenv("PORT")
		if port == "" {
			port = "8080"
		}
		resp, err := http.Get(fmt.Sprintf("http://localhost:%s/healthz", port))
		if err != nil || resp.StatusCode != http.StatusOK {
			os.Exit(1)
		}
		os.Exit(0)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	var logLevel slog.Level
	switch cfg.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	classStore, pinger, closeStore, err := openClassStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open store", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer closeStore()

	exp := cfg.Experiment
	seed := time.Now().UnixNano()
	endowment, err := newEndowmentPolicy(exp, seed)
	if err != nil {
		logger.Error("failed to build endowment policy", slog.String("error", err.Error()))
		os.Exit(1)
	}
	unitValues := domain.NewUnitValueRange(exp.UnitValueMin, exp.UnitValueMax, rand.New(rand.NewSource(seed+1)))
	rules := service.Rules{
		MaxUnits:      exp.MaxUnits,
		MaxPrice:      exp.MaxPrice,
		EnforceBudget: exp.EnforceBudget,
	}
	m := metrics.PrometheusMetrics("marketlab")

	// Services (webhook first: the round service dispatches through it).
	webhookSvc := service.NewWebhookService(store.NewWebhookStore(), cfg.WebhookTimeout, m, logger)
	participantSvc := service.NewParticipantService(classStore, endowment, rules, exp.InitialUnitValue, m, logger)
	roundSvc := service.NewRoundService(classStore, rules, unitValues, webhookSvc, m, logger)
	marketSvc := service.NewMarketService(classStore, rules)

	router := handler.NewRouter(participantSvc, roundSvc, marketSvc, webhookSvc, pinger, logger)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	go func() {
		logger.Info("server starting",
			slog.String("addr", addr),
			slog.Int("max_units", exp.MaxUnits),
			slog.Int64("max_price", exp.MaxPrice),
			slog.String("endowment_mode", exp.EndowmentMode),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("shutdown signal received", slog.String("signal", sig.String()))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.String("error", err.Error()))
	}
	webhookSvc.Wait()
	cancel()

	logger.Info("server stopped")
}

// openClassStore returns the PostgreSQL store when DATABASE_URL is set and
// the in-memory store otherwise. The pinger is nil for the in-memory store.
func openClassStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (service.ClassStore, handler.Pinger, func(), error) {
	if cfg.DatabaseURL == "" {
		logger.Info("using in-memory store")
		return store.NewMemoryStore(), nil, func() {}, nil
	}

	pool, err := store.Connect(ctx, cfg.DatabaseURL, cfg.DBMaxConns)
	if err != nil {
		return nil, nil, nil, err
	}
	pg := store.NewPostgresStore(pool, store.RetryPolicy{
		MaxRetries: cfg.StoreMaxRetries,
		Backoff:    cfg.StoreRetryBackoff,
	}, logger)
	if err := pg.Migrate(ctx); err != nil {
		pool.Close()
		return nil, nil, nil, err
	}
	logger.Info("using postgres store", slog.Int("max_conns", cfg.DBMaxConns))
	return pg, pg, pool.Close, nil
}

func newEndowmentPolicy(exp config.Experiment, seed int64) (domain.EndowmentPolicy, error) {
	rng := rand.New(rand.NewSource(seed))
	switch exp.EndowmentMode {
	case config.EndowmentFixed:
		return domain.NewFixedEndowment(exp.StartingMoney, exp.StartingHoldings, rng), nil
	case config.EndowmentWeighted:
		return domain.NewWeightedEndowment(exp.EndowmentBaseMoney, exp.EndowmentUnitCost, rng), nil
	default:
		return nil, fmt.Errorf("unknown endowment mode %q", exp.EndowmentMode)
	}
}
