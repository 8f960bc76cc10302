// Copyright 2026 The Turnline Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the daemon configuration from a YAML file. The
// file path comes from the --config flag or the TURNLINE_CONFIG
// environment variable; missing required settings fail startup.
package config

import (
	"bytes"
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvVar names the environment variable holding the config file path
// when the --config flag is not given.
const EnvVar = "TURNLINE_CONFIG"

// Duration is a time.Duration that unmarshals from YAML strings like
// "3s" or "7s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("duration must be a string like \"3s\": %w", err)
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the complete daemon configuration.
type Config struct {
	Gateway     Gateway     `yaml:"gateway"`
	Database    Database    `yaml:"database"`
	Credentials Credentials `yaml:"credentials"`
	HTTP        HTTP        `yaml:"http"`
	Feed        Feed        `yaml:"feed"`
}

// Gateway configures the chat gateway connection.
type Gateway struct {
	// URL is the base URL of the chat gateway. Required.
	URL string `yaml:"url"`

	// ClientName is the client signature presented to the chat
	// network.
	ClientName string `yaml:"client_name"`

	// ReconnectDelay is the wait before reconnecting a transiently
	// closed session.
	ReconnectDelay Duration `yaml:"reconnect_delay"`
}

// Database configures the turns database connection.
type Database struct {
	// DSN is the Postgres connection string. Required.
	DSN string `yaml:"dsn"`

	// MaxOpenConns caps the connection pool.
	MaxOpenConns int `yaml:"max_open_conns"`
}

// Credentials configures the session credential store.
type Credentials struct {
	// Path is the SQLite database file holding session credentials.
	Path string `yaml:"path"`
}

// HTTP configures the status/health endpoint.
type HTTP struct {
	// Listen is the address the status server binds to.
	Listen string `yaml:"listen"`
}

// Feed configures the turn change feed.
type Feed struct {
	// NotifyChannel is the Postgres NOTIFY channel carrying turn
	// changes.
	NotifyChannel string `yaml:"notify_channel"`

	// ReconnectDelay is the wait before recreating a failed feed
	// channel.
	ReconnectDelay Duration `yaml:"reconnect_delay"`
}

// Default returns the configuration defaults. Load starts from these,
// so the file only needs to state what differs.
func Default() Config {
	return Config{
		Gateway: Gateway{
			ClientName:     "Turnline (Chrome; Ubuntu)",
			ReconnectDelay: Duration(3 * time.Second),
		},
		Database: Database{
			MaxOpenConns: 4,
		},
		Credentials: Credentials{
			Path: "turnline-credentials.db",
		},
		HTTP: HTTP{
			Listen: ":3000",
		},
		Feed: Feed{
			NotifyChannel:  "turnline_turn_changes",
			ReconnectDelay: Duration(7 * time.Second),
		},
	}
}

// Load reads and validates the configuration file at path. Unknown
// keys are rejected to catch typos.
func Load(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: reading %s: %w", path, err)
	}

	cfg := Default()
	decoder := yaml.NewDecoder(bytes.NewReader(raw))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the required settings.
func (c Config) Validate() error {
	if c.Gateway.URL == "" {
		return fmt.Errorf("gateway.url is required")
	}
	if _, err := url.Parse(c.Gateway.URL); err != nil {
		return fmt.Errorf("gateway.url is invalid: %w", err)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}
	if c.Credentials.Path == "" {
		return fmt.Errorf("credentials.path is required")
	}
	if c.HTTP.Listen == "" {
		return fmt.Errorf("http.listen is required")
	}
	if c.Feed.NotifyChannel == "" {
		return fmt.Errorf("feed.notify_channel is required")
	}
	return nil
}
