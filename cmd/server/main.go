package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fairtrace/internal/config"
	"fairtrace/internal/infra"
	"fairtrace/internal/middleware"
	"fairtrace/internal/repository"
	"fairtrace/internal/router"
	"fairtrace/internal/worker"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	// Structured logger: pretty in development, JSON in production
	if cfg.Env != "production" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	db, err := infra.NewDatabase(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to postgres")
	}

	rdb, err := infra.NewRedis(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Worker handlers are wired here (composition root) so that the pool has
	// full access to the infrastructure.
	breaker := infra.NewCircuitBreaker(infra.DefaultCBConfig())
	chain := infra.NewBlockchainClient(cfg.BlockchainURL, cfg.BlockchainSecret)
	mailer := infra.NewMailer(cfg)
	dispatcher := worker.NewDispatcher(rdb)
	txnRepo := repository.NewTransactionRepository(db)

	blockchainWorker := worker.NewBlockchainWorker(chain, breaker, txnRepo, rdb)
	pool := worker.NewPool(rdb, map[string]worker.Handler{
		worker.JobBlockchain: blockchainWorker,
		worker.JobReview:     worker.NewReviewWorker(mailer, cfg.ReviewEmail),
	})
	pool.Start(ctx, cfg.WorkerPoolSize)
	worker.StartRetryCron(ctx, worker.RetryCronConfig{TxnRepo: txnRepo, Worker: blockchainWorker, CB: breaker})

	limiter := middleware.NewIPRateLimiter(float64(cfg.RateLimitRPS), cfg.RateLimitRPS*2)
	limiter.StartPurge(ctx)

	r := router.New(cfg, router.Deps{
		DB:          db,
		Redis:       rdb,
		Breaker:     breaker,
		Dispatcher:  dispatcher,
		RateLimiter: limiter,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown on SIGINT / SIGTERM
	go func() {
		log.Info().Msgf("fairtrace listening on :%d", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server…")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("forced shutdown")
	}
	log.Info().Msg("server exited")
}
