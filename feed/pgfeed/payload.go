// Copyright 2026 The Turnline Authors
// SPDX-License-Identifier: Apache-2.0

package pgfeed

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/turnline/turnline/feed"
	"github.com/turnline/turnline/turns"
)

// payload is the JSON document the turn-change trigger publishes:
// the operation, both row snapshots, and the server-side timestamp.
type payload struct {
	Op  string   `json:"op"`
	Old *turnRow `json:"old"`
	New *turnRow `json:"new"`
	At  pgTime   `json:"at"`
}

// turnRow mirrors the row_to_json serialization of a turnos row.
// Columns this system does not use are simply not listed.
type turnRow struct {
	ID        int64  `json:"id_turno"`
	Prefix    string `json:"prefijo_turno"`
	Number    int    `json:"numero_turno"`
	ServiceID int64  `json:"id_servicio"`
	CreatedAt pgTime `json:"fecha_creacion"`
	State     string `json:"estado"`
	ModuleID  *int64 `json:"id_modulo_atencion"`
}

func (r *turnRow) toTurn() turns.Turn {
	if r == nil {
		return turns.Turn{}
	}
	turn := turns.Turn{
		ID:        r.ID,
		Prefix:    r.Prefix,
		Number:    r.Number,
		ServiceID: r.ServiceID,
		CreatedAt: r.CreatedAt.Time,
		State:     r.State,
	}
	if r.ModuleID != nil {
		turn.ModuleID = *r.ModuleID
	}
	return turn
}

// pgTime unmarshals the ISO 8601 timestamps Postgres emits through
// to_json, which use a numeric zone offset that may omit minutes
// ("+00" rather than "+00:00").
type pgTime struct {
	time.Time
}

var pgTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999-07",
	"2006-01-02T15:04:05.999999999",
}

func (t *pgTime) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("timestamp is not a string: %w", err)
	}
	for _, layout := range pgTimeLayouts {
		parsed, err := time.Parse(layout, raw)
		if err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("unrecognized timestamp %q", raw)
}

// parsePayload decodes one notification payload into a feed event.
func parsePayload(data []byte) (feed.Event, error) {
	var p payload
	if err := json.Unmarshal(data, &p); err != nil {
		return feed.Event{}, fmt.Errorf("pgfeed: decoding payload: %w", err)
	}
	if p.New == nil {
		return feed.Event{}, fmt.Errorf("pgfeed: payload has no new row")
	}
	return feed.Event{
		Op:  p.Op,
		Old: p.Old.toTurn(),
		New: p.New.toTurn(),
		At:  p.At.Time,
	}, nil
}
