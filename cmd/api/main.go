package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"reelgen/internal/credit"
	"reelgen/internal/http/handlers"
	"reelgen/internal/http/httpapi"
	"reelgen/internal/infra"
	"reelgen/internal/provider"
	"reelgen/internal/publish"
	"reelgen/internal/task"
)

func main() {
	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx := context.Background()
	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: db connection failed")
	}
	defer pool.Close()

	runner := infra.NewSQLRunner(pool, logger)

	gateway := provider.NewClient(provider.Options{
		APIKey:  cfg.ProviderAPIKey,
		BaseURL: cfg.ProviderBaseURL,
		Logger:  &logger,
	})
	if cfg.ProviderAPIKey == "" {
		logger.Warn().Msg("api: provider api key missing, generations will use synthetic assets")
	}

	ledger := credit.NewLedger(runner, logger)
	tasks := task.NewManager(task.ManagerOptions{
		SQL:             runner,
		Gateway:         gateway,
		Ledger:          ledger,
		Logger:          logger,
		TaskTTL:         cfg.TaskTTL,
		MaxPollFailures: cfg.MaxPollFailures,
	})
	publisher := publish.NewController(runner, logger)

	app := &handlers.App{
		SQL:       runner,
		Logger:    logger,
		Tasks:     tasks,
		Publisher: publisher,
		Ledger:    ledger,
	}

	server := infra.NewHTTPServer(cfg, httpapi.NewRouter(app, cfg), logger)

	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}
