// Copyright 2026 The Turnline Authors
// SPDX-License-Identifier: Apache-2.0

package credstore

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/fxamacker/cbor/v2"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// encMode is the CBOR encoder configured with Core Deterministic
// Encoding (RFC 8949 §4.2): sorted map keys, smallest integer
// encoding, no indefinite-length items. Same logical material always
// produces identical bytes, so repeated saves of unchanged credentials
// write identical rows.
var encMode cbor.EncMode

// decMode accepts standard CBOR. Unknown fields are ignored so older
// binaries can read material written by newer ones.
var decMode cbor.DecMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("credstore: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("credstore: CBOR decoder initialization failed: " + err.Error())
	}
}

// Config holds the parameters for opening a credential store.
type Config struct {
	// Path is the filesystem path to the SQLite database file. The
	// parent directory must exist. The file is created if it does not
	// exist. Use ":memory:" for tests (pool size is forced to 1 since
	// each in-memory connection is independent).
	Path string

	// PoolSize is the number of connections in the pool. Credential
	// traffic is a trickle (one writer, rare reads), so the default
	// of 2 is plenty.
	PoolSize int

	// Logger receives operational messages. If nil, a no-op logger
	// is used.
	Logger *slog.Logger
}

// Store is the credential store. Safe for concurrent use; individual
// connections are not shared across goroutines.
type Store struct {
	pool   *sqlitex.Pool
	logger *slog.Logger
	path   string
}

const schema = `
CREATE TABLE IF NOT EXISTS credential (
	key   TEXT PRIMARY KEY,
	value BLOB NOT NULL
) WITHOUT ROWID;
`

// Open creates or opens the credential database at cfg.Path and
// applies standard pragmas to every connection. The caller must call
// Close when the store is no longer needed.
func Open(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("credstore: Path is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = 2
	}
	if cfg.Path == ":memory:" {
		poolSize = 1
	}

	pool, err := sqlitex.NewPool(cfg.Path, sqlitex.PoolOptions{
		PoolSize:    poolSize,
		PrepareConn: prepareConnection,
	})
	if err != nil {
		return nil, fmt.Errorf("credstore: opening %s: %w", cfg.Path, err)
	}

	logger.Info("credential store opened", "path", cfg.Path)

	return &Store{
		pool:   pool,
		logger: logger,
		path:   cfg.Path,
	}, nil
}

// prepareConnection applies pragmas and the schema. Runs once per
// connection in the pool, on first use.
func prepareConnection(conn *sqlite.Conn) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			return fmt.Errorf("credstore: %s: %w", pragma, err)
		}
	}
	if err := sqlitex.ExecuteScript(conn, schema, nil); err != nil {
		return fmt.Errorf("credstore: applying schema: %w", err)
	}
	return nil
}

// Close closes all connections in the pool. Blocks until borrowed
// connections are returned.
func (s *Store) Close() error {
	if err := s.pool.Close(); err != nil {
		return fmt.Errorf("credstore: closing %s: %w", s.path, err)
	}
	return nil
}

// Load reads the material stored under key into v. Returns false with
// a nil error when no material exists for the key.
func (s *Store) Load(ctx context.Context, key string, v any) (bool, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return false, fmt.Errorf("credstore: load %q: %w", key, err)
	}
	defer s.pool.Put(conn)

	var raw []byte
	found := false
	err = sqlitex.ExecuteTransient(conn, `SELECT value FROM credential WHERE key = ?`, &sqlitex.ExecOptions{
		Args: []any{key},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			raw = make([]byte, stmt.ColumnLen(0))
			stmt.ColumnBytes(0, raw)
			found = true
			return nil
		},
	})
	if err != nil {
		return false, fmt.Errorf("credstore: load %q: %w", key, err)
	}
	if !found {
		return false, nil
	}

	if err := decMode.Unmarshal(raw, v); err != nil {
		return false, fmt.Errorf("credstore: decoding %q: %w", key, err)
	}
	return true, nil
}

// Save stores v under key, replacing any existing material.
func (s *Store) Save(ctx context.Context, key string, v any) error {
	raw, err := encMode.Marshal(v)
	if err != nil {
		return fmt.Errorf("credstore: encoding %q: %w", key, err)
	}

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("credstore: save %q: %w", key, err)
	}
	defer s.pool.Put(conn)

	err = sqlitex.ExecuteTransient(conn,
		`INSERT INTO credential (key, value) VALUES (?, ?)
		 ON CONFLICT (key) DO UPDATE SET value = excluded.value`,
		&sqlitex.ExecOptions{Args: []any{key, raw}},
	)
	if err != nil {
		return fmt.Errorf("credstore: save %q: %w", key, err)
	}
	return nil
}

// Delete removes the material stored under key. Deleting an absent
// key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("credstore: delete %q: %w", key, err)
	}
	defer s.pool.Put(conn)

	err = sqlitex.ExecuteTransient(conn, `DELETE FROM credential WHERE key = ?`, &sqlitex.ExecOptions{
		Args: []any{key},
	})
	if err != nil {
		return fmt.Errorf("credstore: delete %q: %w", key, err)
	}
	return nil
}

// DeleteAll removes every credential record. This is the "discard
// credentials" path taken on permanent logout and on fatal session
// corruption — the next connect starts a fresh pairing cycle.
func (s *Store) DeleteAll(ctx context.Context) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("credstore: delete all: %w", err)
	}
	defer s.pool.Put(conn)

	if err := sqlitex.ExecuteTransient(conn, `DELETE FROM credential`, nil); err != nil {
		return fmt.Errorf("credstore: delete all: %w", err)
	}
	s.logger.Info("credential store wiped", "path", s.path)
	return nil
}
