// Copyright 2026 The Turnline Authors
// SPDX-License-Identifier: Apache-2.0

package turns

import (
	"fmt"
	"time"
)

// Turn states as stored in turnos.estado. The booking system owns the
// vocabulary; these two are the only states this system reacts to.
const (
	// StateWaiting is a turn in the queue.
	StateWaiting = "en espera"
	// StateServing is a turn being called at a service point.
	StateServing = "en atencion"
)

// Turn is one row of the turnos table. Created and mutated by the
// booking system; this system only reads it.
type Turn struct {
	// ID is id_turno: unique and immutable for the lifetime of the turn.
	ID int64

	// Prefix and Number form the human-facing turn code (prefijo_turno,
	// numero_turno).
	Prefix string
	Number int

	// ServiceID is id_servicio, the service queue the turn belongs to.
	ServiceID int64

	// CreatedAt is fecha_creacion.
	CreatedAt time.Time

	// State is estado.
	State string

	// ModuleID is id_modulo_atencion, the service point calling the
	// turn. Zero until the turn is being served.
	ModuleID int64
}

// Code renders the human-facing turn code, e.g. "N-007". The number is
// always zero-padded to three digits to match the office's displays.
func (t Turn) Code() string {
	return fmt.Sprintf("%s-%03d", t.Prefix, t.Number)
}

// Subscription maps a turn to the chat address that asked to be
// notified about it. At most one per turn; a later request overwrites
// the address.
type Subscription struct {
	TurnID  int64
	Address string
}
