package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/Impact-10/apartmentcafe/internal/auth"
	"github.com/Impact-10/apartmentcafe/internal/config"
	"github.com/Impact-10/apartmentcafe/internal/httpx"
	kafkax "github.com/Impact-10/apartmentcafe/internal/kafka"
	"github.com/Impact-10/apartmentcafe/internal/live"
	"github.com/Impact-10/apartmentcafe/internal/menu"
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

	// One topic-bound producer per lifecycle event.
	producers := []*kafkax.Producer{
		kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderCreated, 1024),
		kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderAccepted, 1024),
		kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderDelivered, 1024),
		kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderArchived, 1024),
	}
	for _, p := range producers {
		p.Start(ctx)
	}

	hub := live.NewHub(logger)
	feed := live.NewFeed(rdb, hub, logger)
	go func() {
		if err := feed.Run(ctx); err != nil {
			logger.Error("live feed exited", "error", err)
		}
	}()

	svc := &orders.Service{
		Store: &orders.Repo{DB: db},
		Redis: rdb,
		Producers: orders.Producers{
			Created:   producers[0],
			Accepted:  producers[1],
			Delivered: producers[2],
			Archived:  producers[3],
		},
		Changes: feed,
		Name:    cfg.ServiceName,
		Logger:  logger,
	}

	router := httpx.NewRouter()
	h := &httpx.Handler{
		Orders: svc,
		Menu:   &menu.Repo{DB: db},
		Hub:    hub,
		Admin:  auth.NewAdmin(cfg.AdminEmail, cfg.AdminPassword, cfg.JWTSecret),
		Logger: logger,
	}
	h.Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	go func() {
		logger.Info("HTTP listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("listen", "error", err)
			os.Exit(1)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("shutting down")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)

	// Stop the feed and flush the producers; a handler that outlived the
	// shutdown deadline publishes into a closed producer, which drops.
	cancel()
	for _, p := range producers {
		p.Close()
	}
	for _, p := range producers {
		p.WaitClosed()
	}
}
