// Copyright 2026 The Turnline Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	qrcode "github.com/skip2/go-qrcode"
)

// sessionStatus is the slice of the session manager the status page
// reads.
type sessionStatus interface {
	Connected() bool
	PairingCode() string
}

// newStatusHandler builds the HTTP surface: the root status page and
// the liveness endpoint.
func newStatusHandler(session sessionStatus, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprintln(w, "ok")
	})
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")

		if session.Connected() {
			fmt.Fprint(w, `<h1 style="color:green">✅ Turnline conectado y listo</h1>`)
			return
		}

		if code := session.PairingCode(); code != "" {
			png, err := qrcode.Encode(code, qrcode.Medium, 300)
			if err != nil {
				logger.Error("rendering pairing QR failed", "error", err)
				http.Error(w, "QR generation failed", http.StatusInternalServerError)
				return
			}
			fmt.Fprintf(w, `<div style="text-align:center; font-family:sans-serif;">
<h1>Escanea este QR con el WhatsApp de la Notaría</h1>
<img src="data:image/png;base64,%s" style="width:300px;" />
<p>Si expira, recarga la página.</p>
</div>`, base64.StdEncoding.EncodeToString(png))
			return
		}

		fmt.Fprint(w, `<h1 style="text-align:center; font-family:sans-serif;">Cargando... espera unos segundos y recarga.</h1>`)
	})
	return mux
}

// statusServer serves the status page on a TCP listener and handles
// graceful shutdown.
type statusServer struct {
	address string
	handler http.Handler
	logger  *slog.Logger

	// ready is closed after the listener is bound.
	ready chan struct{}

	// addr is the resolved listen address, valid once ready is closed.
	addr net.Addr
}

func newStatusServer(address string, session sessionStatus, logger *slog.Logger) *statusServer {
	return &statusServer{
		address: address,
		handler: newStatusHandler(session, logger),
		logger:  logger,
		ready:   make(chan struct{}),
	}
}

// Ready returns a channel closed once the server is accepting
// connections.
func (s *statusServer) Ready() <-chan struct{} {
	return s.ready
}

// Addr returns the resolved listen address. Only valid after Ready is
// closed; useful when the configured address uses port 0.
func (s *statusServer) Addr() net.Addr {
	return s.addr
}

// Serve blocks until ctx is cancelled, then drains in-flight requests.
func (s *statusServer) Serve(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.address, err)
	}
	s.addr = listener.Addr()
	close(s.ready)

	server := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	s.logger.Info("status server listening", "address", s.addr.String())

	serveDone := make(chan error, 1)
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveDone <- err
		}
		close(serveDone)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("status server shutting down")
	case err := <-serveDone:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("status server shutdown: %w", err)
	}
	return nil
}
