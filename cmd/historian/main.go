// cmd/historian/main.go is an asynchronous historian service that pops settled rounds
// from a Redis queue and persists them to a PostgreSQL database.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/jason-s-yu/oichokabu/internal/cache"
	"github.com/jason-s-yu/oichokabu/internal/config"
	"github.com/jason-s-yu/oichokabu/internal/database"
	"github.com/jason-s-yu/oichokabu/internal/historian"
	"github.com/jason-s-yu/oichokabu/internal/models"
	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("invalid configuration: %v", err)
	}
	logger := cfg.NewLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb, err := cache.ConnectRedis(cfg.Redis)
	if err != nil {
		logger.Fatal(err)
	}
	defer rdb.Close()

	pool, err := database.ConnectDB(ctx, cfg.Postgres)
	if err != nil {
		logger.Fatal(err)
	}
	defer pool.Close()
	if err := database.EnsureSchema(ctx, pool); err != nil {
		logger.Fatal(err)
	}

	queue := cache.NewRoundQueue(rdb, cfg.Historian.QueueName)
	sink := func(ctx context.Context, recs []models.RoundRecord) error {
		return database.RecordRounds(ctx, pool, recs)
	}
	hs := historian.NewService(queue, sink, logger, cfg.Historian.BatchSize, cfg.Historian.FlushDelay())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return hs.Run(gctx) })
	if err := g.Wait(); err != nil {
		logger.Errorf("historian stopped: %v", err)
	}
	logger.Info("Historian shutdown complete.")
}
