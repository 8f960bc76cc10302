// Copyright 2026 The Turnline Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for Turnline packages.
//
// [RequireReceive] and [RequireClosed] encapsulate the timeout safety
// valve pattern (select with time.After fallback) so that individual
// tests do not need direct time.After calls.
//
// All helpers call t.Fatalf on failure rather than returning errors,
// since test setup failures are not recoverable.
//
// This package has no Turnline-internal dependencies.
package testutil
