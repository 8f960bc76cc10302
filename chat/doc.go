// Copyright 2026 The Turnline Authors
// SPDX-License-Identifier: Apache-2.0

// Package chat owns the single outbound chat connection of the
// notifier process.
//
// The package provides two core types. [Client] is the HTTP client for
// the external chat gateway — the service that speaks the actual chat
// wire protocol on our behalf. It exposes three operations: establish a
// session from stored credential material, long-poll the session's
// event stream, and send a text message. All gateway errors decode into
// [*GatewayError] with a stable error code ([IsGatewayError] tests for
// one).
//
// [SessionManager] drives the connection lifecycle over a Client:
//
//	disconnected → pairing → connected → disconnected → …
//
// On first run (no stored identity) the gateway answers with a pairing
// code, held for external display until the counterpart scans it. On
// close, the manager classifies the close code: a permanent logout
// wipes stored credentials and starts a fresh pairing cycle with clean
// state; the bad-session code (credentials rejected as corrupt) wipes
// credentials and signals [SessionManager.Fatal] so the process can
// exit and be restarted by its supervisor — retrying in place with
// corrupt credentials would loop forever. Every other close reason is
// transient: reconnect after a fixed delay, credentials intact.
//
// Inbound text events are forwarded verbatim (sender address, body) to
// the registered handler after discarding self-echoes and bodiless
// events and normalizing the sender to canonical address form. The
// manager never interprets message content.
package chat
