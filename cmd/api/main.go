package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
	"github.com/rs/cors"
	"golang.org/x/sync/errgroup"

	"github.com/errandhub/backend/internal/auth"
	"github.com/errandhub/backend/internal/config"
	"github.com/errandhub/backend/internal/db"
	"github.com/errandhub/backend/internal/escrow"
	"github.com/errandhub/backend/internal/jobs"
	"github.com/errandhub/backend/internal/ledger"
	"github.com/errandhub/backend/internal/middleware"
	"github.com/errandhub/backend/internal/payment"
	"github.com/errandhub/backend/internal/profiles"
	"github.com/errandhub/backend/internal/repository"
	"github.com/errandhub/backend/internal/router"
	"github.com/errandhub/backend/internal/settings"
	"github.com/errandhub/backend/internal/tasks"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		return err
	}
	slog.Info("connected to PostgreSQL")

	if cfg.RunMigrations {
		if err := db.Migrate(ctx, pool); err != nil {
			return err
		}
		migrator, err := rivermigrate.New(riverpgxv5.New(pool), nil)
		if err != nil {
			return err
		}
		if _, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil); err != nil {
			return err
		}
		slog.Info("migrations applied")
	}

	// Repositories
	accountRepo := repository.NewAccountRepo(pool)
	walletRepo := repository.NewWalletRepo(pool)
	txnRepo := repository.NewTransactionRepo(pool)
	taskRepo := repository.NewTaskRepo(pool)
	escrowRepo := repository.NewEscrowRepo(pool)
	profileRepo := repository.NewProfileRepo(pool)
	reviewRepo := repository.NewReviewRepo(pool)
	settingsRepo := repository.NewSettingsRepo(pool)

	platformSettings := settings.NewProvider(settingsRepo, cfg.DefaultSettings())
	walletLedger := ledger.New(pool, walletRepo, txnRepo, platformSettings, logger)

	// River
	workers := jobs.NewWorkers(
		jobs.NewTaskNotificationWorker(cfg.NotifyWebhookURL, logger),
		jobs.NewExpirePendingDepositsWorker(txnRepo, walletLedger, cfg.PendingDepositTTL, logger),
	)
	riverClient, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: cfg.RiverMaxWorkers},
		},
		Workers:      workers,
		PeriodicJobs: jobs.PeriodicJobs(cfg.ReconcileInterval),
		Logger:       logger,
	})
	if err != nil {
		return err
	}

	lifecycle := &tasks.Lifecycle{
		Pool:     pool,
		Tasks:    taskRepo,
		Profiles: profileRepo,
		Reviews:  reviewRepo,
		Escrows:  escrow.NewManager(escrowRepo),
		Ledger:   walletLedger,
		Settings: platformSettings,
		Notify:   jobs.NewInsertTaskNotificationTx(riverClient),
		Logger:   logger,
	}
	validator, err := tasks.NewValidator()
	if err != nil {
		return err
	}

	authSvc := auth.NewService(pool, accountRepo, walletRepo, profileRepo, cfg.JWTSecret, logger)
	gateway := payment.NewHostedCheckout(cfg.CheckoutURL, cfg.CheckoutMerchantID, cfg.CheckoutSecret, cfg.CheckoutCurrency, cfg.PaymentReturnURL)
	limiter := middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, 10*time.Minute)

	api := router.New(router.Handlers{
		Auth:     auth.NewHandler(authSvc, logger),
		Wallet:   ledger.NewHandler(walletLedger, logger),
		Payments: payment.NewHandler(
			payment.NewIntake(walletLedger, gateway, logger),
			payment.NewPayouts(walletLedger, gateway, logger),
			logger,
		),
		Tasks:    tasks.NewHandler(lifecycle, validator, logger),
		Profiles: profiles.NewHandler(profiles.NewService(profileRepo, logger), logger),
	}, router.Deps{
		Tokens:   authSvc,
		Settings: platformSettings,
		Limiter:  limiter,
		Health:   pool.Ping,
		Logger:   logger,
	})

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		AllowCredentials: true,
	}).Handler(api)

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           corsHandler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := riverClient.Start(gctx); err != nil {
			return err
		}
		<-gctx.Done()
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return riverClient.Stop(stopCtx)
	})
	g.Go(func() error {
		limiter.Run(gctx)
		return nil
	})
	g.Go(func() error {
		slog.Info("starting HTTP server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

var _ jobs.TxInserter = (*river.Client[pgx.Tx])(nil)
