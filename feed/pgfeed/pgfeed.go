// Copyright 2026 The Turnline Authors
// SPDX-License-Identifier: Apache-2.0

// Package pgfeed implements the change-feed transport over Postgres
// LISTEN/NOTIFY. Each channel instance holds its own database
// connection; the notify payloads come from the row trigger installed
// by turns.EnsureChangeFeed.
package pgfeed

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lib/pq"

	"github.com/turnline/turnline/feed"
)

// DefaultNotifyChannel is the NOTIFY channel the turn-change trigger
// publishes on.
const DefaultNotifyChannel = "turnline_turn_changes"

// Config holds the parameters for creating a Transport.
type Config struct {
	// DSN is the Postgres connection string. Each opened channel
	// dials its own connection with it.
	DSN string

	// NotifyChannel is the NOTIFY channel to LISTEN on. Must match the
	// channel passed to turns.EnsureChangeFeed. Default:
	// DefaultNotifyChannel.
	NotifyChannel string

	// Logger receives operational messages. If nil, slog.Default()
	// is used.
	Logger *slog.Logger
}

// Transport opens LISTEN channels onto the turns database.
type Transport struct {
	dsn           string
	notifyChannel string
	logger        *slog.Logger
}

var _ feed.Transport = (*Transport)(nil)

// New creates a Transport.
func New(config Config) (*Transport, error) {
	if config.DSN == "" {
		return nil, fmt.Errorf("pgfeed: DSN is required")
	}

	notifyChannel := config.NotifyChannel
	if notifyChannel == "" {
		notifyChannel = DefaultNotifyChannel
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Transport{
		dsn:           config.DSN,
		notifyChannel: notifyChannel,
		logger:        logger,
	}, nil
}

// Open dials a dedicated connection and starts listening. The
// subscription outcome arrives through onStatus: subscribed once the
// LISTEN is live, channel_error if it fails. Open itself fails only
// when the connection cannot be established.
func (t *Transport) Open(ctx context.Context, name string, onEvent feed.EventFunc, onStatus feed.StatusFunc) (feed.Channel, error) {
	notifications := make(chan *pq.Notification, 32)
	conn, err := pq.NewListenerConn(t.dsn, notifications)
	if err != nil {
		return nil, fmt.Errorf("pgfeed: dialing %s: %w", name, err)
	}

	instance := &channel{
		name:   name,
		conn:   conn,
		logger: t.logger.With("channel", name),
	}
	go instance.run(ctx, t.notifyChannel, notifications, onEvent, onStatus)
	return instance, nil
}

// channel is one live LISTEN connection.
type channel struct {
	name   string
	conn   *pq.ListenerConn
	logger *slog.Logger
}

func (c *channel) Name() string { return c.name }

// run issues the LISTEN and pumps notifications until the connection
// dies or ctx is cancelled. The driver closes the notification channel
// when the connection is lost, which surfaces as status closed.
func (c *channel) run(ctx context.Context, notifyChannel string, notifications <-chan *pq.Notification, onEvent feed.EventFunc, onStatus feed.StatusFunc) {
	ok, err := c.conn.Listen(notifyChannel)
	if err != nil || !ok {
		c.logger.Error("LISTEN failed", "notify_channel", notifyChannel, "error", err)
		c.conn.Close()
		onStatus(feed.StatusChannelError)
		return
	}
	onStatus(feed.StatusSubscribed)

	for {
		select {
		case <-ctx.Done():
			c.conn.Close()
			return
		case notification, open := <-notifications:
			if !open {
				c.logger.Warn("listen connection lost")
				onStatus(feed.StatusClosed)
				return
			}
			if notification == nil {
				continue
			}
			event, err := parsePayload([]byte(notification.Extra))
			if err != nil {
				// A malformed payload is a bug in the trigger, not a
				// reason to drop the channel.
				c.logger.Warn("skipping unparseable notification", "error", err)
				continue
			}
			onEvent(event)
		}
	}
}
