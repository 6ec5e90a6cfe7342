// The worker binary runs the delivery pool: it claims queued send jobs,
// passes the shared rate limiter and hands messages to SES.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/ignite/campaign-engine/internal/config"
	"github.com/ignite/campaign-engine/internal/esp"
	"github.com/ignite/campaign-engine/internal/pkg/logger"
	"github.com/ignite/campaign-engine/internal/queue"
	"github.com/ignite/campaign-engine/internal/repository/postgres"
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

	sender, err := esp.NewSESSender(cfg.SES)
	if err != nil {
		logger.Error("ses client init failed", "error", err)
		os.Exit(1)
	}

	limiter, err := queue.NewRateLimiterFromURL(cfg.Redis.URL, cfg.Queue.RatePerSecond)
	if err != nil {
		logger.Error("rate limiter init failed", "error", err)
		os.Exit(1)
	}

	pool := queue.NewPool(store, sender, limiter, queue.PoolConfig{
		Workers:      cfg.Queue.Workers,
		BatchSize:    cfg.Queue.BatchSize,
		PollInterval: cfg.Queue.PollInterval,
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
		<-stop
		logger.Info("shutting down")
		cancel()
	}()

	// Blocks until the context is cancelled and in-flight jobs drain.
	pool.Start(ctx)
	logger.Info("worker stopped", "processed", pool.Processed(), "failed", pool.Failed())
}
