// Copyright 2026 The Turnline Authors
// SPDX-License-Identifier: Apache-2.0

package chat

import (
	"errors"
	"fmt"
)

// ErrNotConnected is returned by SendText when the session is not in
// the connected state. Callers treat it as "drop the message", never
// as a reason to crash — a missed send during an outage is accepted
// loss.
var ErrNotConnected = errors.New("chat: session not connected")

// GatewayError is a structured error response from the chat gateway.
// Callers can use errors.As to extract the structured information:
//
//	var gatewayErr *GatewayError
//	if errors.As(err, &gatewayErr) {
//	    if gatewayErr.Code == CodeLoggedOut { ... }
//	}
type GatewayError struct {
	// Code is the gateway error code (e.g., "TL_LOGGED_OUT").
	Code string `json:"errcode"`
	// Message is the human-readable description from the gateway.
	Message string `json:"error"`
	// StatusCode is the HTTP status code of the response.
	StatusCode int `json:"-"`
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("gateway: %s (%d): %s", e.Code, e.StatusCode, e.Message)
}

// Gateway close and error codes. CodeLoggedOut and CodeBadSession get
// dedicated handling in the session manager; any code not listed here
// is treated as transient.
const (
	// CodeLoggedOut means the remote side confirmed an explicit
	// logout. The stored credentials are permanently invalid.
	CodeLoggedOut = "TL_LOGGED_OUT"

	// CodeBadSession means the gateway rejected the supplied
	// credential material as corrupt. Reconnecting with the same
	// material would fail identically, forever.
	CodeBadSession = "TL_BAD_SESSION"

	// CodeStreamError is a generic protocol-level stream failure.
	CodeStreamError = "TL_STREAM_ERROR"

	// CodeTimedOut means the gateway closed an idle or stalled session.
	CodeTimedOut = "TL_TIMED_OUT"

	// CodeServerRestart means the gateway itself is restarting.
	CodeServerRestart = "TL_SERVER_RESTART"
)

// IsGatewayError checks whether err is a *GatewayError with the given
// error code.
func IsGatewayError(err error, code string) bool {
	var gatewayErr *GatewayError
	if errors.As(err, &gatewayErr) {
		return gatewayErr.Code == code
	}
	return false
}
