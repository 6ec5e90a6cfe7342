// The server binary runs the campaign management API: dispatch, retry,
// scheduling and segment preview endpoints.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ignite/campaign-engine/internal/api"
	"github.com/ignite/campaign-engine/internal/campaign"
	"github.com/ignite/campaign-engine/internal/config"
	"github.com/ignite/campaign-engine/internal/pkg/logger"
	"github.com/ignite/campaign-engine/internal/queue"
	"github.com/ignite/campaign-engine/internal/repository/postgres"
	"github.com/ignite/campaign-engine/internal/segmentation"
	"github.com/ignite/campaign-engine/internal/tracking"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		logger.Error("config load failed", "error", err)
		os.Exit(1)
	}
	logger.SetLevel(logger.ParseLevel(cfg.Logging.Level))
	if cfg.Logging.RedactPII != nil {
		logger.SetRedactPII(*cfg.Logging.RedactPII)
	}

	store, err := postgres.Open(cfg.Database.URL)
	if err != nil {
		logger.Error("database connection failed", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	engine := segmentation.NewEngine(store.DB())
	tracker := tracking.NewService(store, cfg.Tracking.SigningKey, cfg.Tracking.BaseURL)
	q := queue.New(store)
	policy := queue.RetryPolicy{
		MaxAttempts: cfg.Queue.MaxAttempts,
		BaseDelay:   cfg.Queue.BaseDelay,
		Multiplier:  cfg.Queue.BackoffMultiplier,
	}
	campaigns := campaign.NewService(store, engine, tracker, q, policy)

	handler := api.NewHandler(campaigns, engine)
	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      handler.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("api server listening", "addr", cfg.Server.Addr())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("shutdown failed", "error", err)
	}
}
