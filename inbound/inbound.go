// Copyright 2026 The Turnline Authors
// SPDX-License-Identifier: Apache-2.0

// Package inbound turns citizen chat messages into turn subscriptions.
// The only recognized command is a bare citizen identifier (cédula);
// everything else gets the instructional reply.
package inbound

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/turnline/turnline/chat"
	"github.com/turnline/turnline/turns"
)

// identifierPattern matches a citizen identifier: digits only, at
// least five of them. Anything else is not a lookup attempt.
var identifierPattern = regexp.MustCompile(`^[0-9]{5,}$`)

// User-facing replies. Fixed texts; only the identifier, turn code and
// queue position are interpolated.
const (
	replyInstructions = "👋 ¡Hola! Para recibir el aviso de tu turno, envía tu número de cédula (solo números, sin puntos ni espacios)."

	replyNotFound = "❌ No encontramos un turno *en espera* registrado hoy con la cédula *%s*.\n\nVerifica el número o acércate al punto de atención."

	replyConfirmed = "✅ ¡Suscripción lista! Te avisaremos por este chat cuando llamen tu turno *%s*.\n\n📋 Turnos en espera antes del tuyo: *%d*."
)

// TurnStore is the slice of the turns store the handler uses.
// *turns.Store implements it; tests substitute a fake.
type TurnStore interface {
	OpenTurnForIdentifier(ctx context.Context, identifier string) (turns.Turn, bool, error)
	CountAhead(ctx context.Context, serviceID int64, before time.Time) (int, error)
	UpsertSubscription(ctx context.Context, turnID int64, address string) error
}

// TextSender delivers a reply to the sender. *chat.SessionManager
// implements it.
type TextSender interface {
	SendText(ctx context.Context, to chat.Address, body string) error
}

// Config holds the parameters for creating a Handler.
type Config struct {
	// Turns looks up turns and records subscriptions. Required.
	Turns TurnStore

	// Sender delivers replies. Required.
	Sender TextSender

	// Logger receives operational messages. If nil, slog.Default()
	// is used.
	Logger *slog.Logger
}

// Handler processes one inbound message at a time. Register
// Handler.Handle as the session manager's message handler.
type Handler struct {
	turns  TurnStore
	sender TextSender
	logger *slog.Logger
}

// NewHandler creates a Handler.
func NewHandler(config Config) (*Handler, error) {
	if config.Turns == nil {
		return nil, fmt.Errorf("inbound: Turns is required")
	}
	if config.Sender == nil {
		return nil, fmt.Errorf("inbound: Sender is required")
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		turns:  config.Turns,
		sender: config.Sender,
		logger: logger,
	}, nil
}

// Handle processes one inbound message: an identifier subscribes its
// sender to the newest waiting turn registered today under that
// identifier; anything else gets usage instructions. Failures never
// propagate — the worst outcome for the citizen is a not-found reply
// or silence, never a crash of the session loop.
func (h *Handler) Handle(ctx context.Context, sender chat.Address, body string) {
	if !identifierPattern.MatchString(body) {
		h.reply(ctx, sender, replyInstructions)
		return
	}

	turn, found, err := h.turns.OpenTurnForIdentifier(ctx, body)
	if err != nil {
		// A lookup failure and a missing turn read the same from the
		// citizen's side.
		h.logger.Error("turn lookup failed", "identifier", body, "error", err)
		found = false
	}
	if !found {
		h.reply(ctx, sender, fmt.Sprintf(replyNotFound, body))
		return
	}

	if err := h.turns.UpsertSubscription(ctx, turn.ID, sender.String()); err != nil {
		// No reply here: confirming a subscription that was not
		// recorded would be worse than silence.
		h.logger.Error("subscription upsert failed",
			"turn_id", turn.ID,
			"error", err,
		)
		return
	}

	ahead, err := h.turns.CountAhead(ctx, turn.ServiceID, turn.CreatedAt)
	if err != nil {
		h.logger.Warn("queue position count failed", "turn_id", turn.ID, "error", err)
		ahead = 0
	}

	h.logger.Info("subscription recorded",
		"turn_id", turn.ID,
		"turn", turn.Code(),
		"ahead", ahead,
	)
	h.reply(ctx, sender, fmt.Sprintf(replyConfirmed, turn.Code(), ahead))
}

// reply sends a response, logging delivery failures. A reply lost to a
// disconnect is accepted loss.
func (h *Handler) reply(ctx context.Context, to chat.Address, body string) {
	if err := h.sender.SendText(ctx, to, body); err != nil {
		if errors.Is(err, chat.ErrNotConnected) {
			h.logger.Warn("reply dropped: not connected", "to", to)
			return
		}
		h.logger.Warn("reply delivery failed", "to", to, "error", err)
	}
}
