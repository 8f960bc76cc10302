// Copyright 2026 The Turnline Authors
// SPDX-License-Identifier: Apache-2.0

// Package credstore persists the chat session's credential material so
// that a process restart can resume the session without re-pairing.
//
// The store is a keyed blob table in a local SQLite file. Values are
// CBOR-encoded: credential material contains raw cryptographic byte
// buffers (identity keys, session secrets, per-key sync records), and
// CBOR round-trips []byte fields to the exact original bytes. A codec
// that transforms binary payloads (base64 detours, UTF-8 coercion)
// would corrupt the session's keys, which is why JSON is not used here.
//
// Callers treat read and write failures as "no prior state" and
// "best-effort save" respectively — a lost credential record degrades
// to a re-pairing cycle, never to a crashed process. The session
// manager owns that policy; this package just reports errors.
package credstore
