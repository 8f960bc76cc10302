// Copyright 2026 The Turnline Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "turnline.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
gateway:
  url: http://localhost:8800
database:
  dsn: postgres://turnline@localhost/turnos?sslmode=disable
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Gateway.URL != "http://localhost:8800" {
		t.Errorf("Gateway.URL = %q", cfg.Gateway.URL)
	}
	if cfg.Gateway.ReconnectDelay.Std() != 3*time.Second {
		t.Errorf("Gateway.ReconnectDelay = %v, want default 3s", cfg.Gateway.ReconnectDelay.Std())
	}
	if cfg.Feed.ReconnectDelay.Std() != 7*time.Second {
		t.Errorf("Feed.ReconnectDelay = %v, want default 7s", cfg.Feed.ReconnectDelay.Std())
	}
	if cfg.Feed.NotifyChannel != "turnline_turn_changes" {
		t.Errorf("Feed.NotifyChannel = %q", cfg.Feed.NotifyChannel)
	}
	if cfg.HTTP.Listen != ":3000" {
		t.Errorf("HTTP.Listen = %q", cfg.HTTP.Listen)
	}
	if cfg.Credentials.Path != "turnline-credentials.db" {
		t.Errorf("Credentials.Path = %q", cfg.Credentials.Path)
	}
}

func TestLoadOverrides(t *testing.T) {
	path := writeConfig(t, `
gateway:
  url: http://gateway:8800
  client_name: "Notaria Primera"
  reconnect_delay: 5s
database:
  dsn: postgres://turnline@db/turnos
  max_open_conns: 8
http:
  listen: ":8080"
feed:
  reconnect_delay: 9s
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Gateway.ClientName != "Notaria Primera" {
		t.Errorf("Gateway.ClientName = %q", cfg.Gateway.ClientName)
	}
	if cfg.Gateway.ReconnectDelay.Std() != 5*time.Second {
		t.Errorf("Gateway.ReconnectDelay = %v", cfg.Gateway.ReconnectDelay.Std())
	}
	if cfg.Database.MaxOpenConns != 8 {
		t.Errorf("Database.MaxOpenConns = %d", cfg.Database.MaxOpenConns)
	}
	if cfg.Feed.ReconnectDelay.Std() != 9*time.Second {
		t.Errorf("Feed.ReconnectDelay = %v", cfg.Feed.ReconnectDelay.Std())
	}
}

func TestLoadRequiredSettings(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{
			name: "missing gateway url",
			content: `
database:
  dsn: postgres://turnline@db/turnos
`,
			want: "gateway.url",
		},
		{
			name: "missing dsn",
			content: `
gateway:
  url: http://localhost:8800
`,
			want: "database.dsn",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, test.content))
			if err == nil || !strings.Contains(err.Error(), test.want) {
				t.Errorf("Load error = %v, want mention of %s", err, test.want)
			}
		})
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeConfig(t, `
gateway:
  url: http://localhost:8800
  reconect_delay: 5s
database:
  dsn: postgres://turnline@db/turnos
`)

	if _, err := Load(path); err == nil {
		t.Error("Load accepted a misspelled key")
	}
}

func TestLoadRejectsBadDuration(t *testing.T) {
	path := writeConfig(t, `
gateway:
  url: http://localhost:8800
  reconnect_delay: soon
database:
  dsn: postgres://turnline@db/turnos
`)

	if _, err := Load(path); err == nil {
		t.Error("Load accepted an unparseable duration")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("Load succeeded on a missing file")
	}
}
