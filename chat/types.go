// Copyright 2026 The Turnline Authors
// SPDX-License-Identifier: Apache-2.0

package chat

// ConnectRequest opens (or resumes) a chat session on the gateway.
type ConnectRequest struct {
	// ClientName is the client signature presented to the chat
	// network (the "browser" string). Gateways reject generic or
	// missing signatures, so a stable, realistic value matters.
	ClientName string `json:"client_name"`

	// IdentityKey is the public half of the session's long-term
	// identity keypair.
	IdentityKey []byte `json:"identity_key"`

	// SessionBlob is the opaque resumption material from a previous
	// session, if any. Empty on first run — the gateway then answers
	// with a pairing code instead of an open session.
	SessionBlob []byte `json:"session_blob,omitempty"`

	// ConnectTimeoutMs bounds the gateway-side connection attempt.
	ConnectTimeoutMs int `json:"connect_timeout_ms,omitempty"`

	// KeepAliveMs is the interval for gateway-side keep-alive pings.
	KeepAliveMs int `json:"keep_alive_ms,omitempty"`
}

// Session status values returned by Connect.
const (
	// StatusConnected means the session resumed from stored
	// credentials and is ready to send.
	StatusConnected = "connected"

	// StatusPairing means the gateway issued a pairing code and is
	// waiting for the counterpart device to scan it. The session
	// becomes connected via an EventOpen on the event stream.
	StatusPairing = "pairing"
)

// ConnectResponse is the gateway's answer to a ConnectRequest.
type ConnectResponse struct {
	// SessionID identifies the session on all subsequent calls.
	SessionID string `json:"session_id"`

	// Status is StatusConnected or StatusPairing.
	Status string `json:"status"`

	// PairingCode is set when Status is StatusPairing.
	PairingCode string `json:"pairing_code,omitempty"`
}

// Event kinds delivered on the session event stream.
const (
	// EventPairingCode carries a fresh pairing code (the previous one
	// expired unscanned).
	EventPairingCode = "pairing_code"

	// EventOpen means the session finished pairing or resuming and is
	// ready to send.
	EventOpen = "open"

	// EventMessage is an inbound chat message.
	EventMessage = "message"

	// EventCredentials carries updated credential material records to
	// persist for the next resume.
	EventCredentials = "credentials"

	// EventClosed means the gateway closed the session. CloseCode
	// classifies the reason.
	EventClosed = "closed"
)

// Event is one entry on the session event stream.
type Event struct {
	// Type is one of the Event* constants.
	Type string `json:"type"`

	// PairingCode is set for EventPairingCode.
	PairingCode string `json:"pairing_code,omitempty"`

	// Sender, Body, and FromSelf are set for EventMessage. Sender is
	// in whatever transient form the network delivered; the session
	// manager normalizes it before forwarding.
	Sender   string `json:"sender,omitempty"`
	Body     string `json:"body,omitempty"`
	FromSelf bool   `json:"from_self,omitempty"`

	// Records is set for EventCredentials: keyed opaque material to
	// persist. The record under "session" is the resumption blob
	// supplied on the next Connect.
	Records map[string][]byte `json:"records,omitempty"`

	// CloseCode is set for EventClosed.
	CloseCode string `json:"close_code,omitempty"`
}

// EventsResponse is one long-poll result from the event stream.
type EventsResponse struct {
	// Next is the stream position token for the following poll.
	Next string `json:"next"`

	// Events holds the events that arrived since the previous
	// position. Empty when the long-poll timed out quietly.
	Events []Event `json:"events"`
}

// SendRequest delivers one text message through the session.
type SendRequest struct {
	To   string `json:"to"`
	Body string `json:"body"`
}
