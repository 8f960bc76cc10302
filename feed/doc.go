// Copyright 2026 The Turnline Authors
// SPDX-License-Identifier: Apache-2.0

// Package feed subscribes to the stream of turn-row changes and
// invokes the notifier for each waiting→serving transition.
//
// The Subscriber owns the channel lifecycle: one logical channel at a
// time, recreated under a fresh instance name after any failure status.
// Reconnection is storm-guarded (one pending reconnect at most) and
// delayed on an injected clock. Because a superseded channel is
// abandoned rather than torn down, the same transition can be delivered
// more than once during churn; a bounded recently-seen set keyed by
// blake3 hashes collapses those duplicates so one transition produces
// exactly one notification attempt.
//
// The Postgres transport lives in feed/pgfeed.
package feed
