// Copyright 2026 The Turnline Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/turnline/turnline/chat"
	"github.com/turnline/turnline/config"
	"github.com/turnline/turnline/credstore"
	"github.com/turnline/turnline/feed"
	"github.com/turnline/turnline/feed/pgfeed"
	"github.com/turnline/turnline/inbound"
	"github.com/turnline/turnline/lib/clock"
	"github.com/turnline/turnline/notify"
	"github.com/turnline/turnline/turns"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath string
	flag.StringVar(&configPath, "config", os.Getenv(config.EnvVar), "path to the YAML configuration file")
	flag.Parse()

	if configPath == "" {
		return fmt.Errorf("--config or %s is required", config.EnvVar)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	credentials, err := credstore.Open(credstore.Config{
		Path:   cfg.Credentials.Path,
		Logger: logger.With("component", "credstore"),
	})
	if err != nil {
		return err
	}
	defer credentials.Close()

	store, err := turns.Open(ctx, turns.Config{
		DSN:          cfg.Database.DSN,
		MaxOpenConns: cfg.Database.MaxOpenConns,
		Logger:       logger.With("component", "turns"),
	})
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.EnsureChangeFeed(ctx, cfg.Feed.NotifyChannel); err != nil {
		return err
	}

	gateway, err := chat.NewClient(chat.ClientConfig{
		BaseURL: cfg.Gateway.URL,
		Logger:  logger.With("component", "gateway"),
	})
	if err != nil {
		return err
	}

	manager, err := chat.NewSessionManager(chat.SessionConfig{
		Gateway:        gateway,
		Credentials:    credentials,
		Clock:          clock.Real(),
		Logger:         logger.With("component", "session"),
		ClientName:     cfg.Gateway.ClientName,
		ReconnectDelay: cfg.Gateway.ReconnectDelay.Std(),
	})
	if err != nil {
		return err
	}

	handler, err := inbound.NewHandler(inbound.Config{
		Turns:  store,
		Sender: manager,
		Logger: logger.With("component", "inbound"),
	})
	if err != nil {
		return err
	}
	manager.OnMessage(handler.Handle)

	notifier, err := notify.New(notify.Config{
		Store:  store,
		Sender: manager,
		Logger: logger.With("component", "notify"),
	})
	if err != nil {
		return err
	}

	transport, err := pgfeed.New(pgfeed.Config{
		DSN:           cfg.Database.DSN,
		NotifyChannel: cfg.Feed.NotifyChannel,
		Logger:        logger.With("component", "pgfeed"),
	})
	if err != nil {
		return err
	}

	subscriber, err := feed.NewSubscriber(feed.SubscriberConfig{
		Transport: transport,
		OnEvent: func(ctx context.Context, event feed.Event) {
			notifier.TurnCalled(ctx, event.New)
		},
		Clock:          clock.Real(),
		Logger:         logger.With("component", "feed"),
		ReconnectDelay: cfg.Feed.ReconnectDelay.Std(),
	})
	if err != nil {
		return err
	}

	web := newStatusServer(cfg.HTTP.Listen, manager, logger.With("component", "web"))

	errs := make(chan error, 3)
	go func() { errs <- web.Serve(ctx) }()
	go func() { errs <- manager.Run(ctx) }()
	go func() { errs <- subscriber.Run(ctx) }()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		return nil
	case <-manager.Fatal():
		return fmt.Errorf("session credentials corrupted; exiting for a clean restart")
	case err := <-errs:
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	}
}
