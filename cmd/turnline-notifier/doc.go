// Copyright 2026 The Turnline Authors
// SPDX-License-Identifier: Apache-2.0

// Turnline-notifier is the notary office's turn notification daemon.
// It holds one long-lived chat session through the chat gateway and
// bridges it with the office's turns database: citizens send their
// cédula over chat to subscribe to their turn, and when the booking
// system moves a turn from "en espera" to "en atencion" the subscriber
// gets a message telling them which service point to walk to.
//
// # Startup
//
// The daemon reads its YAML configuration from --config (or the
// TURNLINE_CONFIG environment variable), opens the session credential
// store and the turns database, installs the turn-change trigger, and
// starts three loops: the chat session manager, the change feed
// subscriber, and the HTTP status server.
//
// # Pairing
//
// On first run (or after a logout) the chat network issues a pairing
// code. The status page at the HTTP root renders it as a QR image to
// scan with the office's phone; once paired, the page shows a
// connected banner. Session credentials persist across restarts, so
// pairing is a once-per-logout event.
//
// # Exit
//
// SIGINT/SIGTERM shut the daemon down gracefully. A corrupted-
// credential session close wipes the stored credentials and exits
// nonzero so the supervisor restarts the process into a clean pairing
// cycle.
package main
