// Copyright 2026 The Turnline Authors
// SPDX-License-Identifier: Apache-2.0

// Package notify delivers the "your turn is being called" message.
// Every step is best-effort: a miss at any point is logged and
// swallowed, because by the time a turn is called there is nobody
// upstream to surface an error to.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/turnline/turnline/chat"
	"github.com/turnline/turnline/turns"
)

// fallbackModuleName stands in when the service point has no display
// name.
const fallbackModuleName = "un módulo"

const messageTemplate = "🚨 *¡ES TU TURNO!* 🚨\n\nEl turno *%s* está siendo llamado.\n➡️ Dirígete al *%s* ahora mismo."

// SubscriptionStore is the slice of the turns store the notifier uses.
// *turns.Store implements it.
type SubscriptionStore interface {
	SubscriptionForTurn(ctx context.Context, turnID int64) (string, bool, error)
	ServicePointName(ctx context.Context, moduleID int64) (string, bool, error)
}

// Sender is the slice of the session manager the notifier uses.
type Sender interface {
	Connected() bool
	SendText(ctx context.Context, to chat.Address, body string) error
}

// Config holds the parameters for creating a Notifier.
type Config struct {
	// Store resolves subscriptions and service point names. Required.
	Store SubscriptionStore

	// Sender delivers the notification. Required.
	Sender Sender

	// Logger receives operational messages. If nil, slog.Default()
	// is used.
	Logger *slog.Logger
}

// Notifier resolves and sends one notification per called turn.
type Notifier struct {
	store  SubscriptionStore
	sender Sender
	logger *slog.Logger
}

// New creates a Notifier.
func New(config Config) (*Notifier, error) {
	if config.Store == nil {
		return nil, fmt.Errorf("notify: Store is required")
	}
	if config.Sender == nil {
		return nil, fmt.Errorf("notify: Sender is required")
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		store:  config.Store,
		sender: config.Sender,
		logger: logger,
	}, nil
}

// TurnCalled notifies whoever subscribed to the turn, if anyone.
// A notification missed while the session is down is accepted loss:
// nothing is queued, nothing is retried.
func (n *Notifier) TurnCalled(ctx context.Context, turn turns.Turn) {
	address, found, err := n.store.SubscriptionForTurn(ctx, turn.ID)
	if err != nil {
		n.logger.Error("subscription lookup failed", "turn_id", turn.ID, "error", err)
		return
	}
	if !found {
		n.logger.Debug("no subscription for called turn", "turn_id", turn.ID)
		return
	}

	moduleName := fallbackModuleName
	if name, found, err := n.store.ServicePointName(ctx, turn.ModuleID); err != nil {
		n.logger.Warn("service point lookup failed", "module_id", turn.ModuleID, "error", err)
	} else if found {
		moduleName = name
	}

	message := fmt.Sprintf(messageTemplate, turn.Code(), moduleName)

	if !n.sender.Connected() {
		n.logger.Warn("notification dropped: session not connected",
			"turn_id", turn.ID,
			"turn", turn.Code(),
		)
		return
	}

	to := chat.NormalizeAddress(address)
	if to.IsZero() {
		n.logger.Error("subscription address is unusable", "turn_id", turn.ID, "address", address)
		return
	}

	if err := n.sender.SendText(ctx, to, message); err != nil {
		n.logger.Error("notification delivery failed",
			"turn_id", turn.ID,
			"turn", turn.Code(),
			"error", err,
		)
		return
	}
	n.logger.Info("notification sent",
		"turn_id", turn.ID,
		"turn", turn.Code(),
		"module", moduleName,
	)
}
