// Copyright 2026 The Turnline Authors
// SPDX-License-Identifier: Apache-2.0

// Package turns is the read-mostly adapter over the notary office's
// turns database. The schema (turnos, clientes, modulos,
// whatsapp_subscriptions) is owned by the office's booking system;
// this package only reads turn state, maintains the per-turn chat
// subscription row, and installs the change-feed trigger that
// feed/pgfeed listens on.
package turns
