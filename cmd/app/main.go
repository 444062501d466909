package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"esim-fulfillment/internal/config"
	"esim-fulfillment/internal/infra/adapters/payment"
	"esim-fulfillment/internal/infra/api"
	pg "esim-fulfillment/internal/infra/db/postgres"
	"esim-fulfillment/internal/infra/events"
	"esim-fulfillment/internal/infra/logging"
	"esim-fulfillment/internal/infra/metrics"
	red "esim-fulfillment/internal/infra/redis"
	"esim-fulfillment/internal/infra/sched"
	"esim-fulfillment/internal/infra/worker"
	"esim-fulfillment/internal/usecase"

	"golang.org/x/sync/errgroup"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (console logs, verbose secrets)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)

	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database)
	if err != nil {
		logger.Fatal().Err(err).Str("url", logging.Redact(cfg.Database.URL, cfg.Runtime.Dev)).Msg("postgres")
	}
	defer pool.Close()

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis")
	}
	defer redisClient.Close()
	locker := red.NewLocker(redisClient)
	rateLimiter := red.NewRateLimiter(redisClient)

	// ---- Repositories ----
	tm := pg.NewTxManager(pool)
	planRepo := pg.NewPlanRepoCacheDecorator(pg.NewPostgresPlanRepo(pool), redisClient, cfg.Redis.PlanCacheTTL)
	orderRepo := pg.NewOrderRepo(pool)
	paymentRepo := pg.NewPaymentRepo(pool)
	inventoryRepo := pg.NewInventoryRepo(pool)
	esimRepo := pg.NewEsimRepo(pool)
	eventRepo := pg.NewEventRepo(pool)

	// ---- Events ----
	eventPool := worker.NewPool(cfg.Events.Workers, cfg.Events.Buffer, logger)
	emitter := events.NewEmitter(eventRepo, eventPool, logger)

	// ---- Use cases ----
	snapshotter := usecase.NewPlanSnapshotter(planRepo, logger)
	allocator := usecase.NewInventoryAllocator(inventoryRepo, usecase.AllocatorOptions{
		ReservationTTL: cfg.Inventory.ReservationTTL,
		CandidateBatch: cfg.Inventory.CandidateBatch,
		MaxRounds:      cfg.Inventory.MaxRounds,
	}, logger)
	orderUC := usecase.NewOrderUseCase(orderRepo, paymentRepo, esimRepo, snapshotter, allocator, tm, emitter,
		usecase.OrderOptions{DefaultCurrency: cfg.Orders.DefaultCurrency, Currencies: cfg.Orders.Currencies}, logger)

	mockGateway, err := payment.NewMockGateway(cfg.Payment.Mock.Outcome, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("mock gateway")
	}
	paymentUC := usecase.NewPaymentUseCase(paymentRepo, orderRepo, orderUC, cfg.Payment.DefaultProvider, locker, logger, mockGateway)
	esimUC := usecase.NewEsimUseCase(orderRepo, esimRepo, allocator, tm, emitter, cfg.Inventory.ReservationTTL, logger)

	// ---- Workers ----
	guard := sched.NewGuard(locker, logger)
	sweeper := sched.NewReservationSweeper(cfg.Scheduler.ReservationSweepInterval, allocator, guard, logger)
	expiry := sched.NewEsimExpiryWorker(cfg.Scheduler.EsimExpiryInterval, esimUC, guard, logger)
	stats := sched.NewPoolStatsWorker(cfg.Scheduler.PoolStatsInterval, allocator, sched.PgxPoolStats(pool), logger)
	reconciler := sched.NewPaymentReconciler(cfg.Scheduler.PaymentSettleInterval, paymentUC, guard, logger)

	// ---- HTTP ----
	auth := api.NewAuthManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	srv := api.NewServer(orderUC, paymentUC, esimUC, auth, rateLimiter, api.Options{
		RequestTimeout:     cfg.HTTP.RequestTimeout,
		RateLimitPerMinute: cfg.Orders.RateLimitPerMinute,
	}, logger)
	httpServer := api.NewHTTPServer(fmt.Sprintf(":%d", cfg.HTTP.Port), srv.Routes())

	g, gctx := errgroup.WithContext(ctx)
	eventPool.Start(context.WithoutCancel(gctx))

	g.Go(func() error {
		logger.Info().Str("addr", httpServer.Addr).Str("version", version).Msg("HTTP server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	for _, run := range []func(context.Context) error{sweeper.Run, expiry.Run, stats.Run, reconciler.Run} {
		run := run
		g.Go(func() error {
			if err := run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	err = g.Wait()
	eventPool.Stop()
	if err != nil {
		logger.Error().Err(err).Msg("shutdown with error")
		os.Exit(1)
	}
	logger.Info().Msg("shutdown complete")
}
