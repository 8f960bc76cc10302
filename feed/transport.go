// Copyright 2026 The Turnline Authors
// SPDX-License-Identifier: Apache-2.0

package feed

import (
	"context"
	"time"

	"github.com/turnline/turnline/turns"
)

// Status is a lifecycle report from a transport channel.
type Status string

const (
	// StatusSubscribed means the channel is live and delivering events.
	StatusSubscribed Status = "subscribed"
	// StatusClosed means the channel ended (server restart, connection
	// drop).
	StatusClosed Status = "closed"
	// StatusTimedOut means the channel subscription timed out before
	// or after becoming live.
	StatusTimedOut Status = "timed_out"
	// StatusChannelError means the channel failed with a transport
	// error.
	StatusChannelError Status = "channel_error"
)

// Event is one turn-row change delivered by the transport. Old and New
// are the row snapshots before and after the update; At is the
// server-side timestamp of the change.
type Event struct {
	Op  string
	Old turns.Turn
	New turns.Turn
	At  time.Time
}

// EventFunc receives events from a live channel.
type EventFunc func(Event)

// StatusFunc receives lifecycle statuses from a channel. Statuses can
// arrive at any time after Open returns, including from channels the
// subscriber has already abandoned.
type StatusFunc func(Status)

// Channel is a live transport channel. The subscriber never tears a
// channel down; a superseded channel is simply abandoned and dies with
// its context or its connection.
type Channel interface {
	// Name returns the instance name the channel was opened under.
	Name() string
}

// Transport opens named channels onto the change stream. Implemented
// by pgfeed; tests substitute a fake.
type Transport interface {
	Open(ctx context.Context, name string, onEvent EventFunc, onStatus StatusFunc) (Channel, error)
}
