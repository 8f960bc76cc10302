// Copyright 2026 The Turnline Authors
// SPDX-License-Identifier: Apache-2.0

package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ClientConfig holds configuration for creating a gateway Client.
type ClientConfig struct {
	// BaseURL is the base URL of the chat gateway
	// (e.g., "http://localhost:8800").
	BaseURL string

	// HTTPClient is used for all requests. If nil, http.DefaultClient
	// is used. The client must not set an overall request timeout —
	// event polls are long-lived by design and are bounded per call
	// via context.
	HTTPClient *http.Client

	// Logger is used for structured logging. If nil, slog.Default()
	// is used.
	Logger *slog.Logger
}

// Client is the HTTP client for the chat gateway. It is stateless:
// the session ID travels on every call, so a single Client serves the
// session manager across reconnects.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// Compile-time check: *Client implements Gateway.
var _ Gateway = (*Client)(nil)

// NewClient creates a new gateway client.
func NewClient(config ClientConfig) (*Client, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("chat: BaseURL is required")
	}
	if _, err := url.Parse(config.BaseURL); err != nil {
		return nil, fmt.Errorf("chat: invalid BaseURL %q: %w", config.BaseURL, err)
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:    strings.TrimRight(config.BaseURL, "/"),
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// CloseIdleConnections drops idle HTTP connections in the underlying
// transport's pool. Called after a network disruption so the next
// request opens a fresh TCP connection instead of reusing a poisoned
// pooled one.
func (c *Client) CloseIdleConnections() {
	c.httpClient.CloseIdleConnections()
}

// Connect opens or resumes a session. With resumption material the
// gateway answers StatusConnected; without it, StatusPairing plus a
// pairing code.
func (c *Client) Connect(ctx context.Context, request ConnectRequest) (*ConnectResponse, error) {
	body, err := c.doRequest(ctx, http.MethodPost, "/v1/sessions", nil, request)
	if err != nil {
		return nil, fmt.Errorf("chat: connect failed: %w", err)
	}

	var response ConnectResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("chat: failed to parse connect response: %w", err)
	}
	if response.SessionID == "" {
		return nil, fmt.Errorf("chat: connect response missing session ID")
	}
	return &response, nil
}

// Events long-polls the session event stream from the given position.
// The gateway holds the connection up to timeout, returning early when
// events arrive. An empty since token starts at the stream head.
func (c *Client) Events(ctx context.Context, sessionID, since string, timeout time.Duration) (*EventsResponse, error) {
	query := url.Values{}
	if since != "" {
		query.Set("since", since)
	}
	query.Set("timeout", strconv.FormatInt(timeout.Milliseconds(), 10))

	path := "/v1/sessions/" + url.PathEscape(sessionID) + "/events"
	body, err := c.doRequest(ctx, http.MethodGet, path, query, nil)
	if err != nil {
		return nil, fmt.Errorf("chat: event poll failed: %w", err)
	}

	var response EventsResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("chat: failed to parse events response: %w", err)
	}
	return &response, nil
}

// SendText delivers a text message to the given address through the
// session. The call resolves when the transport acknowledges the
// message and fails with the gateway's error otherwise.
func (c *Client) SendText(ctx context.Context, sessionID string, to Address, body string) error {
	path := "/v1/sessions/" + url.PathEscape(sessionID) + "/messages"
	_, err := c.doRequest(ctx, http.MethodPost, path, nil, SendRequest{
		To:   to.String(),
		Body: body,
	})
	if err != nil {
		return fmt.Errorf("chat: send to %s failed: %w", to, err)
	}
	return nil
}

// doRequest performs an HTTP request to the gateway and returns the
// response body. On 2xx, returns the body. On 4xx/5xx, returns a
// *GatewayError. Request URLs are built by string concatenation with
// pre-escaped segments to avoid double-encoding.
func (c *Client) doRequest(ctx context.Context, method, path string, query url.Values, requestBody any) ([]byte, error) {
	requestURL := c.baseURL + path
	if len(query) > 0 {
		requestURL += "?" + query.Encode()
	}

	var bodyReader io.Reader
	if requestBody != nil {
		encoded, err := json.Marshal(requestBody)
		if err != nil {
			return nil, fmt.Errorf("chat: failed to encode request body: %w", err)
		}
		bodyReader = bytes.NewReader(encoded)
	}

	request, err := http.NewRequestWithContext(ctx, method, requestURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("chat: failed to create request: %w", err)
	}
	if requestBody != nil {
		request.Header.Set("Content-Type", "application/json")
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("chat: request to %s %s failed: %w", method, path, err)
	}
	defer response.Body.Close()

	responseBody, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, fmt.Errorf("chat: failed to read response body: %w", err)
	}

	if response.StatusCode >= 200 && response.StatusCode < 300 {
		return responseBody, nil
	}

	// All gateway error responses use the same JSON shape.
	var gatewayErr GatewayError
	if jsonErr := json.Unmarshal(responseBody, &gatewayErr); jsonErr != nil || gatewayErr.Code == "" {
		// Non-JSON error from a proxy or a crashed gateway. Fail loud
		// with the raw body; the caller classifies it as transient.
		return nil, fmt.Errorf("chat: unexpected %d response from %s %s: %s",
			response.StatusCode, method, path, string(responseBody))
	}
	gatewayErr.StatusCode = response.StatusCode

	return nil, &gatewayErr
}
