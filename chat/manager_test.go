// Copyright 2026 The Turnline Authors
// SPDX-License-Identifier: Apache-2.0

package chat

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/turnline/turnline/credstore"
	"github.com/turnline/turnline/lib/clock"
	"github.com/turnline/turnline/lib/testutil"
)

type sentMessage struct {
	sessionID string
	to        Address
	body      string
}

type eventsBatch struct {
	response *EventsResponse
	err      error
}

// fakeGateway is a scripted Gateway. Tests push connect responses and
// event batches through channels; the fake blocks on its channels the
// way a real long-poll blocks on the wire.
type fakeGateway struct {
	connects         chan ConnectRequest
	connectResponses chan *ConnectResponse
	batches          chan eventsBatch
	polls            chan struct{}
	sent             chan sentMessage
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		connects:         make(chan ConnectRequest, 16),
		connectResponses: make(chan *ConnectResponse, 16),
		batches:          make(chan eventsBatch, 16),
		polls:            make(chan struct{}, 128),
		sent:             make(chan sentMessage, 16),
	}
}

func (g *fakeGateway) Connect(ctx context.Context, request ConnectRequest) (*ConnectResponse, error) {
	g.connects <- request
	select {
	case response := <-g.connectResponses:
		return response, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (g *fakeGateway) Events(ctx context.Context, sessionID, since string, timeout time.Duration) (*EventsResponse, error) {
	// Each token marks the start of a poll, which also means every
	// event of the previous batch has been processed.
	g.polls <- struct{}{}
	select {
	case batch := <-g.batches:
		return batch.response, batch.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (g *fakeGateway) SendText(ctx context.Context, sessionID string, to Address, body string) error {
	g.sent <- sentMessage{sessionID: sessionID, to: to, body: body}
	return nil
}

func newTestStore(t *testing.T) *credstore.Store {
	t.Helper()
	store, err := credstore.Open(credstore.Config{
		Path: filepath.Join(t.TempDir(), "credentials.db"),
	})
	if err != nil {
		t.Fatalf("opening credential store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func newTestManager(t *testing.T, gateway *fakeGateway, store *credstore.Store, clk clock.Clock) *SessionManager {
	t.Helper()
	manager, err := NewSessionManager(SessionConfig{
		Gateway:     gateway,
		Credentials: store,
		Clock:       clk,
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("NewSessionManager: %v", err)
	}
	return manager
}

func closedBatch(code string) eventsBatch {
	return eventsBatch{response: &EventsResponse{
		Next:   "next",
		Events: []Event{{Type: EventClosed, CloseCode: code}},
	}}
}

func connectedResponse(sessionID string) *ConnectResponse {
	return &ConnectResponse{SessionID: sessionID, Status: StatusConnected}
}

func TestSendTextBeforeRun(t *testing.T) {
	manager := newTestManager(t, newFakeGateway(), newTestStore(t), clock.Fake(time.Now()))

	err := manager.SendText(context.Background(), "573001234567@s.whatsapp.net", "hola")
	if !errors.Is(err, ErrNotConnected) {
		t.Fatalf("SendText = %v, want ErrNotConnected", err)
	}
}

func TestTransientCloseReconnects(t *testing.T) {
	gateway := newFakeGateway()
	clk := clock.Fake(time.Now())
	manager := newTestManager(t, gateway, newTestStore(t), clk)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- manager.Run(ctx) }()

	gateway.connectResponses <- connectedResponse("sess-1")
	testutil.RequireReceive(t, gateway.connects, 5*time.Second, "first connect")
	testutil.RequireReceive(t, gateway.polls, 5*time.Second, "first poll")

	gateway.batches <- closedBatch(CodeStreamError)

	// Exactly one reconnect timer: the fixed delay, no exponential
	// machinery and no duplicates.
	clk.WaitForTimers(1)
	if got := clk.PendingCount(); got != 1 {
		t.Fatalf("pending timers = %d, want 1", got)
	}
	if manager.Connected() {
		t.Fatal("manager still connected during reconnect delay")
	}
	clk.Advance(3 * time.Second)

	gateway.connectResponses <- connectedResponse("sess-2")
	testutil.RequireReceive(t, gateway.connects, 5*time.Second, "reconnect after transient close")

	cancel()
	if err := testutil.RequireReceive(t, done, 5*time.Second, "Run return"); !errors.Is(err, context.Canceled) {
		t.Fatalf("Run = %v, want context.Canceled", err)
	}
}

func TestLoggedOutDiscardsCredentials(t *testing.T) {
	gateway := newFakeGateway()
	clk := clock.Fake(time.Now())
	store := newTestStore(t)
	manager := newTestManager(t, gateway, store, clk)

	sessionBlob := []byte("resume-material")
	if err := store.Save(context.Background(), sessionRecordKey, sessionBlob); err != nil {
		t.Fatalf("seeding session blob: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- manager.Run(ctx) }()

	gateway.connectResponses <- connectedResponse("sess-1")
	first := testutil.RequireReceive(t, gateway.connects, 5*time.Second, "first connect")
	if !bytes.Equal(first.SessionBlob, sessionBlob) {
		t.Errorf("first connect blob = %q, want %q", first.SessionBlob, sessionBlob)
	}
	testutil.RequireReceive(t, gateway.polls, 5*time.Second, "first poll")

	gateway.batches <- closedBatch(CodeLoggedOut)

	clk.WaitForTimers(1)
	clk.Advance(3 * time.Second)

	gateway.connectResponses <- &ConnectResponse{
		SessionID:   "sess-2",
		Status:      StatusPairing,
		PairingCode: "FRSH-0001",
	}
	second := testutil.RequireReceive(t, gateway.connects, 5*time.Second, "fresh-pairing connect")
	if len(second.SessionBlob) != 0 {
		t.Errorf("fresh-pairing connect carried session blob %q", second.SessionBlob)
	}

	var stored []byte
	found, err := store.Load(context.Background(), sessionRecordKey, &stored)
	if err != nil {
		t.Fatalf("loading session blob: %v", err)
	}
	if found {
		t.Error("session blob survived logout wipe")
	}
}

func TestBadSessionIsFatal(t *testing.T) {
	gateway := newFakeGateway()
	store := newTestStore(t)
	manager := newTestManager(t, gateway, store, clock.Fake(time.Now()))

	done := make(chan error, 1)
	go func() { done <- manager.Run(context.Background()) }()

	gateway.connectResponses <- connectedResponse("sess-1")
	testutil.RequireReceive(t, gateway.connects, 5*time.Second, "connect")
	testutil.RequireReceive(t, gateway.polls, 5*time.Second, "poll")

	gateway.batches <- closedBatch(CodeBadSession)

	err := testutil.RequireReceive(t, done, 5*time.Second, "Run return")
	if err == nil || errors.Is(err, context.Canceled) {
		t.Fatalf("Run = %v, want restart-required error", err)
	}
	testutil.RequireClosed(t, manager.Fatal(), 5*time.Second, "Fatal channel")

	var stored []byte
	found, loadErr := store.Load(context.Background(), identityRecordKey, &stored)
	if loadErr == nil && found {
		t.Error("identity survived corruption wipe")
	}
}

func TestPairingThenOpen(t *testing.T) {
	gateway := newFakeGateway()
	manager := newTestManager(t, gateway, newTestStore(t), clock.Fake(time.Now()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- manager.Run(ctx) }()

	gateway.connectResponses <- &ConnectResponse{
		SessionID:   "sess-1",
		Status:      StatusPairing,
		PairingCode: "ABCD-1234",
	}
	testutil.RequireReceive(t, gateway.connects, 5*time.Second, "connect")
	testutil.RequireReceive(t, gateway.polls, 5*time.Second, "first poll")

	if got := manager.State(); got != StatePairing {
		t.Fatalf("state = %v, want pairing", got)
	}
	if got := manager.PairingCode(); got != "ABCD-1234" {
		t.Fatalf("pairing code = %q, want ABCD-1234", got)
	}
	if err := manager.SendText(ctx, "573001234567@s.whatsapp.net", "hola"); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("SendText while pairing = %v, want ErrNotConnected", err)
	}

	gateway.batches <- eventsBatch{response: &EventsResponse{
		Next:   "next",
		Events: []Event{{Type: EventOpen}},
	}}
	testutil.RequireReceive(t, gateway.polls, 5*time.Second, "poll after open")

	if !manager.Connected() {
		t.Fatal("manager not connected after open event")
	}
	if got := manager.PairingCode(); got != "" {
		t.Fatalf("pairing code = %q after open, want empty", got)
	}

	if err := manager.SendText(ctx, "573001234567@s.whatsapp.net", "su turno"); err != nil {
		t.Fatalf("SendText: %v", err)
	}
	sent := testutil.RequireReceive(t, gateway.sent, 5*time.Second, "outbound message")
	if sent.sessionID != "sess-1" || sent.body != "su turno" {
		t.Errorf("unexpected send: %+v", sent)
	}
}

func TestMessageDispatch(t *testing.T) {
	gateway := newFakeGateway()
	manager := newTestManager(t, gateway, newTestStore(t), clock.Fake(time.Now()))

	type delivery struct {
		sender Address
		body   string
	}
	deliveries := make(chan delivery, 16)
	manager.OnMessage(func(ctx context.Context, sender Address, body string) {
		deliveries <- delivery{sender: sender, body: body}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- manager.Run(ctx) }()

	gateway.connectResponses <- connectedResponse("sess-1")
	testutil.RequireReceive(t, gateway.connects, 5*time.Second, "connect")
	testutil.RequireReceive(t, gateway.polls, 5*time.Second, "first poll")

	gateway.batches <- eventsBatch{response: &EventsResponse{
		Next: "next",
		Events: []Event{
			{Type: EventMessage, Sender: "573001234567@s.whatsapp.net", Body: "own echo", FromSelf: true},
			{Type: EventMessage, Sender: "573001234567@s.whatsapp.net", Body: "   "},
			{Type: EventMessage, Sender: "status@broadcast", Body: "broadcast noise"},
			{Type: EventMessage, Sender: "573001234567:4@s.whatsapp.net", Body: "  12345678  "},
		},
	}}
	testutil.RequireReceive(t, gateway.polls, 5*time.Second, "poll after batch")

	got := testutil.RequireReceive(t, deliveries, 5*time.Second, "dispatched message")
	if got.sender != "573001234567@s.whatsapp.net" {
		t.Errorf("sender = %q, want normalized address", got.sender)
	}
	if got.body != "12345678" {
		t.Errorf("body = %q, want trimmed %q", got.body, "12345678")
	}

	select {
	case extra := <-deliveries:
		t.Errorf("unexpected extra delivery: %+v", extra)
	default:
	}
}

func TestCredentialEventsPersist(t *testing.T) {
	gateway := newFakeGateway()
	clk := clock.Fake(time.Now())
	store := newTestStore(t)
	manager := newTestManager(t, gateway, store, clk)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- manager.Run(ctx) }()

	gateway.connectResponses <- connectedResponse("sess-1")
	testutil.RequireReceive(t, gateway.connects, 5*time.Second, "first connect")
	testutil.RequireReceive(t, gateway.polls, 5*time.Second, "first poll")

	sessionBlob := []byte("fresh-resume-material")
	gateway.batches <- eventsBatch{response: &EventsResponse{
		Next: "next",
		Events: []Event{
			{Type: EventCredentials, Records: map[string][]byte{
				"session": sessionBlob,
				"keys/1":  []byte("prekey-bundle"),
			}},
			{Type: EventClosed, CloseCode: CodeServerRestart},
		},
	}}

	clk.WaitForTimers(1)
	clk.Advance(3 * time.Second)

	gateway.connectResponses <- connectedResponse("sess-2")
	second := testutil.RequireReceive(t, gateway.connects, 5*time.Second, "reconnect")
	if !bytes.Equal(second.SessionBlob, sessionBlob) {
		t.Errorf("reconnect blob = %q, want persisted %q", second.SessionBlob, sessionBlob)
	}

	var keys []byte
	found, err := store.Load(context.Background(), gatewayRecordPrefix+"keys/1", &keys)
	if err != nil || !found {
		t.Fatalf("loading persisted record: found=%v err=%v", found, err)
	}
	if !bytes.Equal(keys, []byte("prekey-bundle")) {
		t.Errorf("persisted record = %q", keys)
	}
}
