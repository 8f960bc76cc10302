// Copyright 2026 The Turnline Authors
// SPDX-License-Identifier: Apache-2.0

package chat

import "strings"

// canonicalDomain is the domain part of a canonical destination
// address. Sends to any other domain form are rejected by the chat
// network, so every address is normalized to this form before being
// stored or handed onward.
const canonicalDomain = "s.whatsapp.net"

// Address is a canonical chat destination: the subscriber's phone
// number in international format, digits only, followed by
// "@s.whatsapp.net". Produced by NormalizeAddress; never constructed
// from raw input.
type Address string

// String returns the address as a plain string.
func (a Address) String() string { return string(a) }

// IsZero reports whether the address is empty.
func (a Address) IsZero() bool { return a == "" }

// NormalizeAddress converts a raw sender identifier into canonical
// form. Inbound events can carry the sender in several transient
// shapes — a bare phone number with formatting ("+57 300 123 4567"),
// a device-qualified identifier ("573001234567:12@s.whatsapp.net"),
// or an alternate domain ("573001234567@c.us"). All of them normalize
// to "573001234567@s.whatsapp.net" so that a later send to the stored
// address succeeds.
//
// Returns the zero Address when no digits remain after stripping,
// which callers treat as an unusable sender.
func NormalizeAddress(raw string) Address {
	user := raw
	if at := strings.IndexByte(user, '@'); at >= 0 {
		user = user[:at]
	}
	// Drop the per-device suffix ("<number>:<device>").
	if colon := strings.IndexByte(user, ':'); colon >= 0 {
		user = user[:colon]
	}

	var digits strings.Builder
	for _, r := range user {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	if digits.Len() == 0 {
		return ""
	}
	return Address(digits.String() + "@" + canonicalDomain)
}
