package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/Impact-10/apartmentcafe/internal/archiver"
	"github.com/Impact-10/apartmentcafe/internal/config"
	kafkax "github.com/Impact-10/apartmentcafe/internal/kafka"
	"github.com/Impact-10/apartmentcafe/internal/live"
	"github.com/Impact-10/apartmentcafe/internal/orders"
	"github.com/Impact-10/apartmentcafe/internal/postgres"
	"github.com/Impact-10/apartmentcafe/internal/redisx"
)

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Error("db connect", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	pArchived := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderArchived, 1024)
	pArchived.Start(ctx)

	// Publish-only feed: archivals must reach trackers on every API instance.
	feed := live.NewFeed(rdb, live.NewHub(logger), logger)

	svc := &orders.Service{
		Store:     &orders.Repo{DB: db},
		Redis:     rdb,
		Producers: orders.Producers{Archived: pArchived},
		Changes:   feed,
		Name:      cfg.ServiceName + "-archiver",
		Logger:    logger,
	}

	worker := &archiver.Worker{
		Orders: svc,
		Redis:  rdb,
		Delay:  cfg.ArchiveDelay,
		Logger: logger,
	}

	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.ArchiverGroup, orders.TopicOrderDelivered, cfg.ArchiverWorkers)
	consDone := make(chan struct{})
	go func() {
		defer close(consDone)
		logger.Info("archiver consumer started",
			"group", cfg.ArchiverGroup, "topic", orders.TopicOrderDelivered,
			"workers", cfg.ArchiverWorkers, "delay", cfg.ArchiveDelay.String())
		if err := cons.Start(ctx, worker.HandleOrderDelivered); err != nil {
			logger.Error("consumer exit", "error", err)
			cancel()
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case <-ctx.Done():
	}
	logger.Info("shutting down archiver")

	// Stop consuming first so no worker publishes into a closing producer,
	// then flush what the workers managed to enqueue.
	cancel()
	<-consDone
	pArchived.Close()
	pArchived.WaitClosed()
}
