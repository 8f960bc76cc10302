// Copyright 2026 The Turnline Authors
// SPDX-License-Identifier: Apache-2.0

package feed

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"

	"github.com/turnline/turnline/lib/clock"
	"github.com/turnline/turnline/turns"
)

// seenLimit bounds the recently-seen set. Churn-induced redeliveries
// arrive within seconds of the original, so a small window is enough.
const seenLimit = 512

// SubscriberConfig holds the parameters for creating a Subscriber.
type SubscriberConfig struct {
	// Transport opens channels onto the change stream. Required.
	Transport Transport

	// OnEvent is invoked once per deduplicated waiting→serving
	// transition. Required.
	OnEvent func(ctx context.Context, event Event)

	// Clock drives the reconnect delay. If nil, clock.Real() is used.
	Clock clock.Clock

	// Logger receives operational messages. If nil, slog.Default()
	// is used.
	Logger *slog.Logger

	// ChannelPrefix names channel instances; a fresh UUID suffix is
	// appended per instance. Default: "turn-changes".
	ChannelPrefix string

	// ReconnectDelay is the wait before recreating a failed channel.
	// Long enough to ride out a server restart without hammering it,
	// short enough that a called turn is still at the desk when the
	// notification lands. Default: 7s.
	ReconnectDelay time.Duration
}

// Subscriber maintains the one live change-feed channel and filters
// its events down to notification attempts.
type Subscriber struct {
	transport      Transport
	onEvent        func(ctx context.Context, event Event)
	clock          clock.Clock
	logger         *slog.Logger
	channelPrefix  string
	reconnectDelay time.Duration

	mu           sync.Mutex
	current      Channel
	reconnecting bool
	seen         map[[32]byte]struct{}
	seenOrder    [][32]byte
}

// NewSubscriber creates a subscriber. Call Run to open the first
// channel and start processing.
func NewSubscriber(config SubscriberConfig) (*Subscriber, error) {
	if config.Transport == nil {
		return nil, fmt.Errorf("feed: Transport is required")
	}
	if config.OnEvent == nil {
		return nil, fmt.Errorf("feed: OnEvent is required")
	}

	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	subscriber := &Subscriber{
		transport:      config.Transport,
		onEvent:        config.OnEvent,
		clock:          clk,
		logger:         logger,
		channelPrefix:  config.ChannelPrefix,
		reconnectDelay: config.ReconnectDelay,
		seen:           make(map[[32]byte]struct{}),
	}
	if subscriber.channelPrefix == "" {
		subscriber.channelPrefix = "turn-changes"
	}
	if subscriber.reconnectDelay == 0 {
		subscriber.reconnectDelay = 7 * time.Second
	}
	return subscriber, nil
}

// Run opens the initial channel and blocks until ctx is cancelled.
// After a successful start, channel failures are handled internally by
// recreation; only the initial open can fail.
func (s *Subscriber) Run(ctx context.Context) error {
	if err := s.openChannel(ctx); err != nil {
		return fmt.Errorf("feed: opening initial channel: %w", err)
	}
	<-ctx.Done()
	return ctx.Err()
}

// openChannel opens a fresh channel instance and makes it current.
// The previous channel, if any, is abandoned.
func (s *Subscriber) openChannel(ctx context.Context) error {
	name := s.channelPrefix + "-" + uuid.NewString()
	channel, err := s.transport.Open(ctx, name,
		func(event Event) { s.handleEvent(ctx, event) },
		func(status Status) { s.handleStatus(ctx, status) },
	)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.current = channel
	s.mu.Unlock()

	s.logger.Info("change feed channel opened", "channel", name)
	return nil
}

// handleStatus reacts to a channel lifecycle report. A subscribed
// status clears the pending-reconnect flag; any failure status
// schedules one recreation unless one is already pending. Statuses
// from abandoned channels go through the same guard, which is what
// keeps a flapping old channel from stacking reconnects.
func (s *Subscriber) handleStatus(ctx context.Context, status Status) {
	if status == StatusSubscribed {
		s.mu.Lock()
		s.reconnecting = false
		s.mu.Unlock()
		s.logger.Info("change feed subscribed")
		return
	}

	s.mu.Lock()
	if s.reconnecting {
		s.mu.Unlock()
		s.logger.Debug("channel failure while reconnect pending", "status", status)
		return
	}
	s.reconnecting = true
	s.mu.Unlock()

	s.logger.Warn("change feed channel failed; scheduling recreation",
		"status", status,
		"retry_in", s.reconnectDelay,
	)
	s.scheduleReopen(ctx)
}

// scheduleReopen arms the single reconnect timer. If the reopen itself
// fails, the timer is re-armed; the reconnecting flag stays set until
// a new channel reports subscribed.
func (s *Subscriber) scheduleReopen(ctx context.Context) {
	s.clock.AfterFunc(s.reconnectDelay, func() {
		if ctx.Err() != nil {
			return
		}
		if err := s.openChannel(ctx); err != nil {
			s.logger.Error("recreating change feed channel failed", "error", err)
			s.scheduleReopen(ctx)
		}
	})
}

// handleEvent filters one change down to a notification attempt. Only
// the waiting→serving transition matters; everything else — inserts,
// other state changes, repeated updates — is ignored here.
func (s *Subscriber) handleEvent(ctx context.Context, event Event) {
	if event.Old.State != turns.StateWaiting || event.New.State != turns.StateServing {
		return
	}

	key := dedupeKey(event)
	s.mu.Lock()
	if _, duplicate := s.seen[key]; duplicate {
		s.mu.Unlock()
		s.logger.Debug("dropping redelivered transition", "turn_id", event.New.ID)
		return
	}
	s.remember(key)
	s.mu.Unlock()

	s.logger.Info("turn called",
		"turn_id", event.New.ID,
		"turn", event.New.Code(),
		"module_id", event.New.ModuleID,
	)
	s.onEvent(ctx, event)
}

// remember adds key to the seen set, evicting the oldest entry when
// the set is full. Caller holds mu.
func (s *Subscriber) remember(key [32]byte) {
	if len(s.seenOrder) >= seenLimit {
		oldest := s.seenOrder[0]
		s.seenOrder = s.seenOrder[1:]
		delete(s.seen, oldest)
	}
	s.seen[key] = struct{}{}
	s.seenOrder = append(s.seenOrder, key)
}

// dedupeKey identifies one specific transition delivery. The timestamp
// distinguishes a genuine repeat call (waiting→serving again later)
// from a churn-induced redelivery of the same change.
func dedupeKey(event Event) [32]byte {
	material := fmt.Sprintf("%d|%s|%s|%d",
		event.New.ID, event.Old.State, event.New.State, event.At.UnixNano())
	return blake3.Sum256([]byte(material))
}
