// Copyright 2026 The Turnline Authors
// SPDX-License-Identifier: Apache-2.0

package chat

import "testing"

func TestNormalizeAddress(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Address
	}{
		{
			name: "bare digits",
			raw:  "573001234567",
			want: "573001234567@s.whatsapp.net",
		},
		{
			name: "formatted phone number",
			raw:  "+57 300 123-4567",
			want: "573001234567@s.whatsapp.net",
		},
		{
			name: "already canonical",
			raw:  "573001234567@s.whatsapp.net",
			want: "573001234567@s.whatsapp.net",
		},
		{
			name: "device-qualified identifier",
			raw:  "573001234567:12@s.whatsapp.net",
			want: "573001234567@s.whatsapp.net",
		},
		{
			name: "alternate domain",
			raw:  "573001234567@c.us",
			want: "573001234567@s.whatsapp.net",
		},
		{
			name: "no digits",
			raw:  "status@broadcast",
			want: "",
		},
		{
			name: "empty",
			raw:  "",
			want: "",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got := NormalizeAddress(test.raw)
			if got != test.want {
				t.Errorf("NormalizeAddress(%q) = %q, want %q", test.raw, got, test.want)
			}
			if test.want == "" && !got.IsZero() {
				t.Errorf("NormalizeAddress(%q).IsZero() = false, want true", test.raw)
			}
		})
	}
}
