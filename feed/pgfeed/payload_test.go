// Copyright 2026 The Turnline Authors
// SPDX-License-Identifier: Apache-2.0

package pgfeed

import (
	"testing"
	"time"

	"github.com/turnline/turnline/turns"
)

func TestParsePayload(t *testing.T) {
	data := []byte(`{
		"op": "UPDATE",
		"old": {
			"id_turno": 42, "prefijo_turno": "N", "numero_turno": 7,
			"id_servicio": 3, "fecha_creacion": "2026-08-28T09:15:00-05:00",
			"estado": "en espera", "id_modulo_atencion": null
		},
		"new": {
			"id_turno": 42, "prefijo_turno": "N", "numero_turno": 7,
			"id_servicio": 3, "fecha_creacion": "2026-08-28T09:15:00-05:00",
			"estado": "en atencion", "id_modulo_atencion": 5
		},
		"at": "2026-08-28T10:30:00.123456+00:00"
	}`)

	event, err := parsePayload(data)
	if err != nil {
		t.Fatalf("parsePayload: %v", err)
	}
	if event.Op != "UPDATE" {
		t.Errorf("Op = %q, want UPDATE", event.Op)
	}
	if event.Old.State != turns.StateWaiting || event.New.State != turns.StateServing {
		t.Errorf("states = (%q, %q)", event.Old.State, event.New.State)
	}
	if event.Old.ModuleID != 0 {
		t.Errorf("Old.ModuleID = %d, want 0 for null", event.Old.ModuleID)
	}
	if event.New.ModuleID != 5 {
		t.Errorf("New.ModuleID = %d, want 5", event.New.ModuleID)
	}
	if event.New.Code() != "N-007" {
		t.Errorf("New.Code() = %q, want N-007", event.New.Code())
	}
	wantAt := time.Date(2026, 8, 28, 10, 30, 0, 123456000, time.UTC)
	if !event.At.Equal(wantAt) {
		t.Errorf("At = %v, want %v", event.At, wantAt)
	}
}

func TestParsePayloadShortOffset(t *testing.T) {
	// timestamptz rendered with an hour-only zone offset.
	data := []byte(`{
		"op": "UPDATE",
		"old": {"id_turno": 1, "estado": "en espera", "fecha_creacion": "2026-08-28T09:15:00+00"},
		"new": {"id_turno": 1, "estado": "en atencion", "fecha_creacion": "2026-08-28T09:15:00+00"},
		"at": "2026-08-28T10:30:00+00"
	}`)

	event, err := parsePayload(data)
	if err != nil {
		t.Fatalf("parsePayload: %v", err)
	}
	if event.At.IsZero() {
		t.Error("At not parsed")
	}
}

func TestParsePayloadInsertHasNoOldRow(t *testing.T) {
	data := []byte(`{
		"op": "INSERT",
		"old": null,
		"new": {"id_turno": 9, "estado": "en espera", "fecha_creacion": "2026-08-28T09:15:00+00"},
		"at": "2026-08-28T09:15:00+00"
	}`)

	event, err := parsePayload(data)
	if err != nil {
		t.Fatalf("parsePayload: %v", err)
	}
	if event.Old.ID != 0 || event.Old.State != "" {
		t.Errorf("Old = %+v, want zero turn", event.Old)
	}
}

func TestParsePayloadRejectsGarbage(t *testing.T) {
	if _, err := parsePayload([]byte(`not json`)); err == nil {
		t.Error("garbage payload parsed")
	}
	if _, err := parsePayload([]byte(`{"op": "UPDATE", "old": null, "new": null, "at": "2026-08-28T09:15:00+00"}`)); err == nil {
		t.Error("payload without new row parsed")
	}
	if _, err := parsePayload([]byte(`{"op": "UPDATE", "new": {"id_turno": 1, "fecha_creacion": "yesterday"}, "at": "2026-08-28T09:15:00+00"}`)); err == nil {
		t.Error("unparseable timestamp accepted")
	}
}
