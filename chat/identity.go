// Copyright 2026 The Turnline Authors
// SPDX-License-Identifier: Apache-2.0

package chat

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"

	"golang.org/x/crypto/curve25519"

	"github.com/turnline/turnline/credstore"
)

// identityRecordKey is the credential store key holding the session's
// long-term identity.
const identityRecordKey = "identity"

// Identity is the session's long-term identity keypair. The public
// half is presented to the gateway on every connect; the private half
// never leaves the credential store except in process memory.
type Identity struct {
	PrivateKey []byte `cbor:"private_key"`
	PublicKey  []byte `cbor:"public_key"`
}

// valid reports whether both halves have the expected curve25519 size.
// Stored material that fails this check is treated as absent.
func (id Identity) valid() bool {
	return len(id.PrivateKey) == curve25519.ScalarSize &&
		len(id.PublicKey) == curve25519.PointSize
}

// LoadOrCreateIdentity returns the stored session identity, or
// generates and stores a fresh one when none exists. A fresh identity
// means the gateway cannot resume — the connect that follows takes the
// pairing-code path.
//
// Store failures are degraded, not fatal: an unreadable record is
// treated as absent, and a failed save of the fresh identity is logged
// and tolerated (the identity lives for this process run; the next run
// pairs again).
func LoadOrCreateIdentity(ctx context.Context, store *credstore.Store, logger *slog.Logger) (Identity, error) {
	var identity Identity
	found, err := store.Load(ctx, identityRecordKey, &identity)
	if err != nil {
		logger.Warn("failed to load session identity; generating a fresh one", "error", err)
	}
	if found && identity.valid() {
		return identity, nil
	}
	if found {
		logger.Warn("stored session identity is malformed; generating a fresh one")
	}

	identity, err = generateIdentity()
	if err != nil {
		return Identity{}, err
	}
	if err := store.Save(ctx, identityRecordKey, identity); err != nil {
		logger.Warn("failed to persist fresh session identity", "error", err)
	} else {
		logger.Info("generated fresh session identity")
	}
	return identity, nil
}

// generateIdentity creates a new curve25519 keypair.
func generateIdentity() (Identity, error) {
	private := make([]byte, curve25519.ScalarSize)
	if _, err := rand.Read(private); err != nil {
		return Identity{}, fmt.Errorf("chat: generating identity key: %w", err)
	}
	public, err := curve25519.X25519(private, curve25519.Basepoint)
	if err != nil {
		return Identity{}, fmt.Errorf("chat: deriving identity public key: %w", err)
	}
	return Identity{PrivateKey: private, PublicKey: public}, nil
}
