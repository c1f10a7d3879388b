package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"reelgen/internal/credit"
	"reelgen/internal/infra"
	"reelgen/internal/provider"
	"reelgen/internal/task"
)

// The worker is the reconciliation side of the task lifecycle: it re-polls
// PENDING tasks the client stopped watching, enforces the task TTL, and
// retries refunds that could not land inline.
func main() {
	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: db connection failed")
	}
	defer pool.Close()

	runner := infra.NewSQLRunner(pool, logger)

	gateway := provider.NewClient(provider.Options{
		APIKey:  cfg.ProviderAPIKey,
		BaseURL: cfg.ProviderBaseURL,
		Logger:  &logger,
	})
	if cfg.ProviderAPIKey == "" {
		logger.Warn().Msg("worker: provider api key missing, using synthetic poll results")
	}

	ledger := credit.NewLedger(runner, logger)
	manager := task.NewManager(task.ManagerOptions{
		SQL:             runner,
		Gateway:         gateway,
		Ledger:          ledger,
		Logger:          logger,
		TaskTTL:         cfg.TaskTTL,
		MaxPollFailures: cfg.MaxPollFailures,
	})

	if err := run(ctx, manager, logger, cfg.SweepInterval, cfg.SweepBatchSize); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("worker: stopped with error")
	}
	logger.Info().Msg("worker: stopped")
}

func run(ctx context.Context, manager *task.Manager, logger infra.Logger, interval time.Duration, batch int) error {
	logger.Info().Dur("interval", interval).Int("batch", batch).Msg("worker: started")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		if n, err := manager.SweepOnce(ctx, interval, batch); err != nil {
			logger.Error().Err(err).Msg("worker: pending sweep failed")
		} else if n > 0 {
			logger.Debug().Int("claimed", n).Msg("worker: pending sweep")
		}

		if n, err := manager.ReconcileRefunds(ctx, batch); err != nil {
			logger.Error().Err(err).Msg("worker: refund reconciliation failed")
		} else if n > 0 {
			logger.Info().Int("tasks", n).Msg("worker: refund reconciliation")
		}
	}
}
