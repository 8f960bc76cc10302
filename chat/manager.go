// Copyright 2026 The Turnline Authors
// SPDX-License-Identifier: Apache-2.0

package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/turnline/turnline/credstore"
	"github.com/turnline/turnline/lib/clock"
)

// State is the connection state of the session manager.
type State int

const (
	// StateDisconnected is the initial state and the state after any
	// close.
	StateDisconnected State = iota
	// StatePairing means a pairing code has been issued and the
	// manager is waiting for the counterpart device to scan it.
	StatePairing
	// StateConnected means the session is ready to send.
	StateConnected
)

func (s State) String() string {
	switch s {
	case StatePairing:
		return "pairing"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Gateway is the slice of the gateway client the session manager
// uses. *Client implements it; tests substitute a fake.
type Gateway interface {
	Connect(ctx context.Context, request ConnectRequest) (*ConnectResponse, error)
	Events(ctx context.Context, sessionID, since string, timeout time.Duration) (*EventsResponse, error)
	SendText(ctx context.Context, sessionID string, to Address, body string) error
}

// MessageHandler receives inbound text messages: the normalized sender
// address and the trimmed body. Called from the manager's event loop;
// a slow handler delays subsequent events, not sends.
type MessageHandler func(ctx context.Context, sender Address, body string)

// gatewayRecordPrefix namespaces gateway-issued credential records in
// the credential store.
const gatewayRecordPrefix = "gateway/"

// sessionRecordKey is the credential store key for the session
// resumption blob.
const sessionRecordKey = gatewayRecordPrefix + "session"

// SessionConfig holds the parameters for creating a SessionManager.
// The zero value of each optional field selects the documented default.
type SessionConfig struct {
	// Gateway performs the actual gateway calls. Required.
	Gateway Gateway

	// Credentials persists session credential material. Required.
	Credentials *credstore.Store

	// Clock drives the reconnect delay. If nil, clock.Real() is used.
	Clock clock.Clock

	// Logger receives operational messages. If nil, slog.Default()
	// is used.
	Logger *slog.Logger

	// ClientName is the client signature presented to the chat
	// network. Default: "Turnline (Chrome; Ubuntu)".
	ClientName string

	// ConnectTimeout bounds the gateway-side connection attempt.
	// Default: 60s.
	ConnectTimeout time.Duration

	// KeepAlive is the gateway-side keep-alive ping interval.
	// Default: 30s.
	KeepAlive time.Duration

	// PollTimeout is the event long-poll hold time. Default: 30s.
	PollTimeout time.Duration

	// ReconnectDelay is the fixed wait before reconnecting after a
	// transient close. Default: 3s.
	ReconnectDelay time.Duration
}

// SessionManager owns the single outbound chat connection. It drives
// the disconnected → pairing → connected state machine, classifies
// close reasons, persists credential material, and fans inbound text
// out to the registered handler.
//
// Exactly one SessionManager is meaningful per process.
type SessionManager struct {
	gateway        Gateway
	creds          *credstore.Store
	clock          clock.Clock
	logger         *slog.Logger
	clientName     string
	connectTimeout time.Duration
	keepAlive      time.Duration
	pollTimeout    time.Duration
	reconnectDelay time.Duration

	// mu guards the connection state. The live session ID is replaced
	// under the same lock that flips state to connected, so a
	// superseded session can never satisfy a send.
	mu          sync.Mutex
	state       State
	sessionID   string
	pairingCode string
	handler     MessageHandler

	fatal     chan struct{}
	fatalOnce sync.Once
}

// NewSessionManager creates a session manager. Call OnMessage to
// register the inbound handler, then Run to start the connection
// lifecycle.
func NewSessionManager(config SessionConfig) (*SessionManager, error) {
	if config.Gateway == nil {
		return nil, fmt.Errorf("chat: Gateway is required")
	}
	if config.Credentials == nil {
		return nil, fmt.Errorf("chat: Credentials is required")
	}

	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	manager := &SessionManager{
		gateway:        config.Gateway,
		creds:          config.Credentials,
		clock:          clk,
		logger:         logger,
		clientName:     config.ClientName,
		connectTimeout: config.ConnectTimeout,
		keepAlive:      config.KeepAlive,
		pollTimeout:    config.PollTimeout,
		reconnectDelay: config.ReconnectDelay,
		fatal:          make(chan struct{}),
	}
	if manager.clientName == "" {
		manager.clientName = "Turnline (Chrome; Ubuntu)"
	}
	if manager.connectTimeout == 0 {
		manager.connectTimeout = 60 * time.Second
	}
	if manager.keepAlive == 0 {
		manager.keepAlive = 30 * time.Second
	}
	if manager.pollTimeout == 0 {
		manager.pollTimeout = 30 * time.Second
	}
	if manager.reconnectDelay == 0 {
		manager.reconnectDelay = 3 * time.Second
	}
	return manager, nil
}

// OnMessage registers the inbound message handler. Must be called
// before Run.
func (m *SessionManager) OnMessage(handler MessageHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handler = handler
}

// State returns the current connection state.
func (m *SessionManager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Connected reports whether the session is ready to send.
func (m *SessionManager) Connected() bool {
	return m.State() == StateConnected
}

// PairingCode returns the current pairing code, or "" when none is
// pending. Read by the status page for external display.
func (m *SessionManager) PairingCode() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pairingCode
}

// Fatal is closed when the manager hits the corrupted-credential
// close. The process should exit nonzero and let its supervisor
// restart it against the now-clean credential store.
func (m *SessionManager) Fatal() <-chan struct{} {
	return m.fatal
}

// SendText delivers a text message to the given address. Returns
// ErrNotConnected when the session is not connected; otherwise the
// outcome reflects the transport acknowledgment.
func (m *SessionManager) SendText(ctx context.Context, to Address, body string) error {
	m.mu.Lock()
	if m.state != StateConnected {
		m.mu.Unlock()
		return ErrNotConnected
	}
	sessionID := m.sessionID
	m.mu.Unlock()

	return m.gateway.SendText(ctx, sessionID, to, body)
}

// Run drives the connection lifecycle until ctx is cancelled or a
// fatal credential corruption is hit. Each cycle connects with the
// stored credentials, processes the event stream until the session
// closes, classifies the close, and either reconnects after the fixed
// delay (transient), wipes credentials and starts a fresh pairing
// cycle (permanent logout), or wipes credentials and returns
// (corruption — the Fatal channel is closed for the process boundary).
func (m *SessionManager) Run(ctx context.Context) error {
	for {
		closeCode, err := m.runSession(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		switch classifyClose(closeCode) {
		case closePermanent:
			// The remote side confirmed a logout: the stored
			// credentials are dead. Wipe them and go around again —
			// the next connect starts a clean pairing cycle.
			m.logger.Warn("session logged out remotely; discarding credentials for fresh pairing",
				"close_code", closeCode,
			)
			m.discardCredentials(ctx)
		case closeFatal:
			// Corrupted credentials would fail every in-place retry
			// identically. Wipe them and hand recovery to the process
			// supervisor.
			m.logger.Error("session credentials rejected as corrupt; restart required",
				"close_code", closeCode,
			)
			m.discardCredentials(ctx)
			m.fatalOnce.Do(func() { close(m.fatal) })
			return fmt.Errorf("chat: session credentials corrupted (%s): process restart required", closeCode)
		default:
			if err != nil {
				m.logger.Error("session closed, reconnecting",
					"error", err,
					"retry_in", m.reconnectDelay,
				)
			} else {
				m.logger.Warn("session closed, reconnecting",
					"close_code", closeCode,
					"retry_in", m.reconnectDelay,
				)
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-m.clock.After(m.reconnectDelay):
		}
	}
}

// runSession performs one connect-and-poll cycle. Returns the gateway
// close code when the session closed cleanly, or an error for
// transport failures. Always leaves the manager disconnected.
func (m *SessionManager) runSession(ctx context.Context) (string, error) {
	defer m.setDisconnected()

	identity, err := LoadOrCreateIdentity(ctx, m.creds, m.logger)
	if err != nil {
		return "", err
	}

	var sessionBlob []byte
	if _, err := m.creds.Load(ctx, sessionRecordKey, &sessionBlob); err != nil {
		// Unreadable resumption material degrades to a fresh pairing,
		// never to a crash.
		m.logger.Warn("failed to load session material; connecting fresh", "error", err)
		sessionBlob = nil
	}

	response, err := m.gateway.Connect(ctx, ConnectRequest{
		ClientName:       m.clientName,
		IdentityKey:      identity.PublicKey,
		SessionBlob:      sessionBlob,
		ConnectTimeoutMs: int(m.connectTimeout.Milliseconds()),
		KeepAliveMs:      int(m.keepAlive.Milliseconds()),
	})
	if err != nil {
		var gatewayErr *GatewayError
		if errors.As(err, &gatewayErr) {
			return gatewayErr.Code, err
		}
		return "", err
	}

	m.mu.Lock()
	m.sessionID = response.SessionID
	if response.Status == StatusConnected {
		m.state = StateConnected
		m.pairingCode = ""
	} else {
		m.state = StatePairing
		m.pairingCode = response.PairingCode
	}
	state := m.state
	m.mu.Unlock()

	m.logger.Info("session established",
		"session_id", response.SessionID,
		"state", state.String(),
	)

	since := ""
	for {
		events, err := m.gateway.Events(ctx, response.SessionID, since, m.pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			var gatewayErr *GatewayError
			if errors.As(err, &gatewayErr) {
				return gatewayErr.Code, err
			}
			// TCP-level errors often indicate a poisoned connection in
			// the HTTP pool; drop idle connections so the reconnect
			// opens a fresh socket.
			if closer, ok := m.gateway.(interface{ CloseIdleConnections() }); ok {
				closer.CloseIdleConnections()
			}
			return "", err
		}
		since = events.Next

		for _, event := range events.Events {
			if code, closed := m.handleEvent(ctx, event); closed {
				return code, nil
			}
		}
	}
}

// handleEvent dispatches one stream event. Returns (code, true) for a
// close event, which ends the session cycle.
func (m *SessionManager) handleEvent(ctx context.Context, event Event) (string, bool) {
	switch event.Type {
	case EventPairingCode:
		m.mu.Lock()
		m.state = StatePairing
		m.pairingCode = event.PairingCode
		m.mu.Unlock()
		m.logger.Info("pairing code issued; scan it from the status page")

	case EventOpen:
		m.mu.Lock()
		m.state = StateConnected
		m.pairingCode = ""
		m.mu.Unlock()
		m.logger.Info("session connected")

	case EventMessage:
		m.dispatchMessage(ctx, event)

	case EventCredentials:
		for key, blob := range event.Records {
			if err := m.creds.Save(ctx, gatewayRecordPrefix+key, blob); err != nil {
				// Best-effort: a lost record degrades to re-pairing on
				// the next restart.
				m.logger.Warn("failed to persist credential record",
					"record", key,
					"error", err,
				)
			}
		}

	case EventClosed:
		return event.CloseCode, true

	default:
		m.logger.Debug("ignoring unknown event", "type", event.Type)
	}
	return "", false
}

// dispatchMessage forwards an inbound text event to the registered
// handler. Self-echoes, bodiless events, and senders that do not
// normalize to a usable address are discarded here; the handler never
// sees them.
func (m *SessionManager) dispatchMessage(ctx context.Context, event Event) {
	if event.FromSelf {
		return
	}
	body := strings.TrimSpace(event.Body)
	if body == "" {
		return
	}
	sender := NormalizeAddress(event.Sender)
	if sender.IsZero() {
		m.logger.Warn("discarding message with unusable sender", "sender", event.Sender)
		return
	}

	m.mu.Lock()
	handler := m.handler
	m.mu.Unlock()
	if handler == nil {
		return
	}
	handler(ctx, sender, body)
}

// setDisconnected clears the live session. The session ID is cleared
// under the same lock so a stale session can never satisfy a send
// issued after the close.
func (m *SessionManager) setDisconnected() {
	m.mu.Lock()
	m.state = StateDisconnected
	m.sessionID = ""
	m.pairingCode = ""
	m.mu.Unlock()
}

// discardCredentials wipes all stored credential material. Failures
// are logged and tolerated — the worst case is one more failed
// connect before the next wipe attempt.
func (m *SessionManager) discardCredentials(ctx context.Context) {
	if err := m.creds.DeleteAll(ctx); err != nil {
		m.logger.Error("failed to discard credentials", "error", err)
	}
}

// closeAction is the recovery policy for a session close.
type closeAction int

const (
	// closeTransient: reconnect after the fixed delay, credentials
	// intact. This is the default for every unclassified close code.
	closeTransient closeAction = iota
	// closePermanent: credentials are invalid; wipe and re-pair.
	closePermanent
	// closeFatal: credentials are corrupt; wipe and exit for the
	// supervisor.
	closeFatal
)

// classifyClose maps a gateway close code to its recovery policy.
func classifyClose(code string) closeAction {
	switch code {
	case CodeLoggedOut:
		return closePermanent
	case CodeBadSession:
		return closeFatal
	default:
		return closeTransient
	}
}
