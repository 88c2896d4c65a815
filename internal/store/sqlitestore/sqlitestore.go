// Package sqlitestore keeps history, pins and settings in a single SQLite
// database through the pure-Go modernc.org/sqlite driver.
//
// Each collection save replaces the table contents inside one transaction,
// so readers never observe a half-written collection. Item bodies are the
// same JSON the file store writes, optionally sealed with a Cipher.
package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	_ "modernc.org/sqlite"

	"go.klb.dev/clipstash/internal/crypto"
	"go.klb.dev/clipstash/internal/item"
	"go.klb.dev/clipstash/internal/settings"
	"go.klb.dev/clipstash/internal/store"
)

// DefaultFile is the database file name inside the data directory.
const DefaultFile = "clipstash.db"

const schema = `
CREATE TABLE IF NOT EXISTS meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS history (
	position    INTEGER PRIMARY KEY,
	id          TEXT NOT NULL,
	type        TEXT NOT NULL,
	captured_at INTEGER NOT NULL,
	body        BLOB NOT NULL
);
CREATE TABLE IF NOT EXISTS pinned (
	position  INTEGER PRIMARY KEY,
	id        TEXT NOT NULL,
	pinned_at INTEGER NOT NULL,
	body      BLOB NOT NULL
);
CREATE TABLE IF NOT EXISTS settings (
	id   INTEGER PRIMARY KEY CHECK (id = 1),
	body BLOB NOT NULL
);
`

// Store is a SQLite-backed set of repositories.
type Store struct {
	db     *sql.DB
	cipher *crypto.Cipher
}

// Option configures a Store.
type Option func(*Store)

// WithCipher seals history and pinned bodies with c.
func WithCipher(c *crypto.Cipher) Option {
	return func(s *Store) { s.cipher = c }
}

// Open opens (creating if needed) the database at path.
func Open(ctx context.Context, path string, opts ...Option) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("sqlitestore: create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: open: %w", err)
	}
	// One writer at a time; WAL lets CLI readers in alongside the daemon.
	db.SetMaxOpenConns(4)
	db.SetConnMaxLifetime(0)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlitestore: %s: %w", pragma, err)
		}
	}
	if err := migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	s := &Store{db: db}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("sqlitestore: apply schema: %w", err)
	}

	var v string
	err := db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = 'version'`).Scan(&v)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = db.ExecContext(ctx, `INSERT INTO meta (key, value) VALUES ('version', ?)`, strconv.Itoa(store.Version))
		if err != nil {
			return fmt.Errorf("sqlitestore: record version: %w", err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("sqlitestore: read version: %w", err)
	}
	if n, err := strconv.Atoi(v); err != nil || n != store.Version {
		return fmt.Errorf("sqlitestore: %w: unsupported schema version %q", store.ErrMalformed, v)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// History returns the history repository.
func (s *Store) History() *History { return &History{s: s} }

// Pinned returns the pinned repository.
func (s *Store) Pinned() *Pinned { return &Pinned{s: s} }

// Settings returns the settings repository.
func (s *Store) Settings() *Settings { return &Settings{s: s} }

func (s *Store) seal(b []byte) ([]byte, error) {
	if s.cipher == nil {
		return b, nil
	}
	return s.cipher.Encrypt(b)
}

func (s *Store) unseal(b []byte) ([]byte, error) {
	if s.cipher == nil {
		return b, nil
	}
	return s.cipher.Decrypt(b)
}

// replace swaps the contents of table inside a transaction. insert is
// called once per row.
func (s *Store) replace(ctx context.Context, table string, n int, insert func(tx *sql.Tx, i int) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlitestore: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
		return fmt.Errorf("sqlitestore: clear %s: %w", table, err)
	}
	for i := range n {
		if err := insert(tx, i); err != nil {
			return fmt.Errorf("sqlitestore: insert %s: %w", table, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlitestore: commit %s: %w", table, err)
	}
	return nil
}

// History is the SQLite store.HistoryRepository.
type History struct{ s *Store }

var _ store.HistoryRepository = (*History)(nil)

func (h *History) Load(ctx context.Context) ([]item.Item, error) {
	rows, err := h.s.db.QueryContext(ctx, `SELECT body FROM history ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: query history: %w", err)
	}
	defer rows.Close()

	var out []item.Item
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("sqlitestore: scan history: %w", err)
		}
		plain, err := h.s.unseal(body)
		if err != nil {
			return nil, fmt.Errorf("sqlitestore: history: %w", err)
		}
		it, err := store.Decode[item.Item](plain)
		if err != nil {
			return nil, fmt.Errorf("sqlitestore: history: %w", err)
		}
		out = append(out, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlitestore: history rows: %w", err)
	}
	return out, nil
}

func (h *History) Save(ctx context.Context, items []item.Item) error {
	return h.s.replace(ctx, "history", len(items), func(tx *sql.Tx, i int) error {
		it := items[i]
		body, err := store.Encode(it)
		if err != nil {
			return err
		}
		if body, err = h.s.seal(body); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO history (position, id, type, captured_at, body) VALUES (?, ?, ?, ?, ?)`,
			i, it.ID, string(it.Type), it.CapturedAt.UnixNano(), body)
		return err
	})
}

func (h *History) Clear(ctx context.Context) error {
	if _, err := h.s.db.ExecContext(ctx, `DELETE FROM history`); err != nil {
		return fmt.Errorf("sqlitestore: clear history: %w", err)
	}
	return nil
}

// Pinned is the SQLite store.PinnedRepository.
type Pinned struct{ s *Store }

var _ store.PinnedRepository = (*Pinned)(nil)

func (p *Pinned) Load(ctx context.Context) ([]item.Pinned, error) {
	rows, err := p.s.db.QueryContext(ctx, `SELECT body FROM pinned ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: query pinned: %w", err)
	}
	defer rows.Close()

	var out []item.Pinned
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("sqlitestore: scan pinned: %w", err)
		}
		plain, err := p.s.unseal(body)
		if err != nil {
			return nil, fmt.Errorf("sqlitestore: pinned: %w", err)
		}
		pin, err := store.Decode[item.Pinned](plain)
		if err != nil {
			return nil, fmt.Errorf("sqlitestore: pinned: %w", err)
		}
		out = append(out, pin)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlitestore: pinned rows: %w", err)
	}
	return out, nil
}

func (p *Pinned) Save(ctx context.Context, pins []item.Pinned) error {
	return p.s.replace(ctx, "pinned", len(pins), func(tx *sql.Tx, i int) error {
		pin := pins[i]
		body, err := store.Encode(pin)
		if err != nil {
			return err
		}
		if body, err = p.s.seal(body); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO pinned (position, id, pinned_at, body) VALUES (?, ?, ?, ?)`,
			i, pin.Item.ID, pin.PinnedAt.UnixNano(), body)
		return err
	})
}

// Settings is the SQLite store.SettingsRepository.
type Settings struct{ s *Store }

var _ store.SettingsRepository = (*Settings)(nil)

func (r *Settings) Load(ctx context.Context) (settings.Settings, error) {
	var body []byte
	err := r.s.db.QueryRowContext(ctx, `SELECT body FROM settings WHERE id = 1`).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return settings.Default(), nil
	}
	if err != nil {
		return settings.Default(), fmt.Errorf("sqlitestore: query settings: %w", err)
	}
	loaded := settings.Default()
	if err := store.DecodeInto(body, &loaded); err != nil {
		return settings.Default(), fmt.Errorf("sqlitestore: settings: %w", err)
	}
	return loaded.Normalize(), nil
}

func (r *Settings) Save(ctx context.Context, s settings.Settings) error {
	body, err := store.Encode(s.Normalize())
	if err != nil {
		return err
	}
	_, err = r.s.db.ExecContext(ctx,
		`INSERT INTO settings (id, body) VALUES (1, ?) ON CONFLICT(id) DO UPDATE SET body = excluded.body`, body)
	if err != nil {
		return fmt.Errorf("sqlitestore: save settings: %w", err)
	}
	return nil
}
