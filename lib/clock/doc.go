// Copyright 2026 The Turnline Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time abstraction for testability.
//
// Production code accepts a Clock parameter instead of calling time.Now,
// time.After, or time.AfterFunc directly. Real() provides standard
// library behavior; Fake() provides a deterministic clock that advances
// only when Advance is called.
//
// The reconnect timers in the chat session manager and the change feed
// subscriber are the main consumers. Tests wait for the component's
// timer with WaitForTimers and then fire it with Advance, eliminating
// the race between timer registration and time advancement:
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	subscriber := feed.NewSubscriber(feed.SubscriberConfig{Clock: c, ...})
//	// ... trigger a channel error ...
//	c.WaitForTimers(1)
//	c.Advance(10 * time.Second) // fires the reconnect deterministically
package clock
