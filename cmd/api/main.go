package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/01moynul/snaplist/internal/ai"
	"github.com/01moynul/snaplist/internal/auth"
	"github.com/01moynul/snaplist/internal/config"
	"github.com/01moynul/snaplist/internal/credits"
	"github.com/01moynul/snaplist/internal/database"
	"github.com/01moynul/snaplist/internal/generation"
	"github.com/01moynul/snaplist/internal/handlers"
	"github.com/01moynul/snaplist/internal/logger"
	"github.com/01moynul/snaplist/internal/metrics"
	"github.com/01moynul/snaplist/internal/middleware"
	"github.com/01moynul/snaplist/internal/promo"
	"github.com/01moynul/snaplist/internal/routes"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "snaplist: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// 0. --- Configuration ---
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log, err := logger.New(cfg.Log.Level)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. --- Database ---
	db, err := database.Open(cfg.DB.Driver, cfg.DB.DSN)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	if err := database.RunMigrations(db); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	// 2. --- AI Service ---
	aiService, err := ai.NewService(ctx, cfg.Gemini.APIKey, cfg.Gemini.Model, log)
	if err != nil {
		return fmt.Errorf("initialize AI service: %w", err)
	}
	defer aiService.Close()

	// 3. --- Metrics ---
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// 4. --- Application Setup ---
	ledger := credits.NewLedger(db, log)
	app := &handlers.Handlers{
		DB:     db,
		Ledger: ledger,
		Generation: generation.NewService(db, ledger, aiService, m, log, generation.Config{
			MaxImages: cfg.Generation.MaxImages,
			Timeout:   cfg.Generation.Timeout,
		}),
		Promo:  promo.NewService(db, ledger, m, log),
		Tokens: auth.NewTokenIssuer(cfg.JWT.Secret, cfg.JWT.TTL),
		Config: cfg,
		Log:    log,
	}
	redeemLimiter := middleware.NewAccountLimiter(cfg.Promo.RedeemPerMinute)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := &http.Server{
		Addr:              ":" + cfg.App.Port,
		Handler:           routes.SetupRouter(app, redeemLimiter, reg),
		ReadHeaderTimeout: 10 * time.Second,
		// Uploads plus the model call must fit.
		WriteTimeout: cfg.Generation.Timeout + 30*time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	// --- Server ---
	g.Go(func() error {
		log.Info("starting snaplist API server", zap.String("addr", srv.Addr), zap.String("db", cfg.DB.Driver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Generation.Timeout+5*time.Second)
		defer cancel()
		log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})

	// --- Background Worker: stale generation locks ---
	g.Go(func() error {
		ticker := time.NewTicker(cfg.Generation.ReaperInterval)
		defer ticker.Stop()

		log.Info("background worker started", zap.Duration("interval", cfg.Generation.ReaperInterval))
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				n, err := ledger.ReleaseStale(gctx, cfg.Generation.StaleLockAfter)
				if err != nil {
					log.Error("stale lock sweep failed", zap.Error(err))
					continue
				}
				m.AddStaleLocks(n)
				redeemLimiter.Cleanup()
			}
		}
	})

	return g.Wait()
}
