// Package filestore keeps history, pins and settings as JSON files in a
// data directory. Writes go to a temporary file that is renamed over the
// target, so a crash mid-save leaves the previous file intact.
//
// When a Cipher is configured, history and pins are sealed before they
// reach disk. Settings always stay plain so the file can be edited by hand
// and picked up by the settings watcher.
package filestore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"go.klb.dev/clipstash/internal/crypto"
	"go.klb.dev/clipstash/internal/item"
	"go.klb.dev/clipstash/internal/settings"
	"go.klb.dev/clipstash/internal/store"
)

const (
	HistoryFile  = "history.json"
	PinnedFile   = "pinned.json"
	SettingsFile = "settings.json"
)

// ErrEncrypted is returned when a sealed file is found but no passphrase
// is configured.
var ErrEncrypted = errors.New("data file is encrypted; set a passphrase")

// sealedMagic prefixes every sealed file. It cannot begin a JSON document.
var sealedMagic = []byte("clipstash-sealed-v1\n")

// Store is a directory of JSON files.
type Store struct {
	dir    string
	cipher *crypto.Cipher

	// mu serializes file replacement within this process.
	mu sync.Mutex
}

// Option configures a Store.
type Option func(*Store)

// WithCipher seals history and pins with c.
func WithCipher(c *crypto.Cipher) Option {
	return func(s *Store) { s.cipher = c }
}

// New returns a Store rooted at dir, creating it with private permissions.
func New(dir string, opts ...Option) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("filestore: data directory is empty")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("filestore: create data directory: %w", err)
	}
	s := &Store{dir: dir}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Dir returns the data directory.
func (s *Store) Dir() string { return s.dir }

// SettingsPath is the file the settings repository reads and writes.
func (s *Store) SettingsPath() string { return filepath.Join(s.dir, SettingsFile) }

// History returns the history repository.
func (s *Store) History() *History { return &History{s: s} }

// Pinned returns the pinned repository.
func (s *Store) Pinned() *Pinned { return &Pinned{s: s} }

// Settings returns the settings repository.
func (s *Store) Settings() *Settings { return &Settings{s: s} }

// Close is a no-op; it lets Store share a shutdown path with sqlitestore.
func (s *Store) Close() error { return nil }

// read returns the file contents, or nil when it does not exist.
func (s *Store) read(name string, sealed bool) ([]byte, error) {
	b, err := os.ReadFile(filepath.Join(s.dir, name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	if len(bytes.TrimSpace(b)) == 0 {
		return nil, nil
	}
	if !sealed {
		return b, nil
	}

	if !bytes.HasPrefix(b, sealedMagic) {
		// Plain JSON, possibly written before a passphrase was configured;
		// it is sealed on the next save. Decode errors surface as
		// store.ErrMalformed.
		return b, nil
	}
	if s.cipher == nil {
		return nil, fmt.Errorf("%s: %w", name, ErrEncrypted)
	}
	plain, err := s.cipher.Decrypt(b[len(sealedMagic):])
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return plain, nil
}

func (s *Store) write(ctx context.Context, name string, data []byte, sealed bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if sealed && s.cipher != nil {
		ct, err := s.cipher.Encrypt(data)
		if err != nil {
			return fmt.Errorf("seal %s: %w", name, err)
		}
		data = append(append([]byte(nil), sealedMagic...), ct...)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.dir, name)
	tmp, err := os.CreateTemp(s.dir, "."+name+".*.tmp")
	if err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", name, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("replace %s: %w", name, err)
	}
	return nil
}

func (s *Store) remove(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := os.Remove(filepath.Join(s.dir, name))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", name, err)
	}
	return nil
}

// History is the file-backed store.HistoryRepository.
type History struct{ s *Store }

var _ store.HistoryRepository = (*History)(nil)

func (h *History) Load(ctx context.Context) ([]item.Item, error) {
	b, err := h.s.read(HistoryFile, true)
	if err != nil || b == nil {
		return nil, err
	}
	items, err := store.Decode[[]item.Item](b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", HistoryFile, err)
	}
	return items, nil
}

func (h *History) Save(ctx context.Context, items []item.Item) error {
	if items == nil {
		items = []item.Item{}
	}
	b, err := store.Encode(items)
	if err != nil {
		return err
	}
	return h.s.write(ctx, HistoryFile, b, true)
}

// Clear removes the history file.
func (h *History) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return h.s.remove(HistoryFile)
}

// Pinned is the file-backed store.PinnedRepository.
type Pinned struct{ s *Store }

var _ store.PinnedRepository = (*Pinned)(nil)

func (p *Pinned) Load(ctx context.Context) ([]item.Pinned, error) {
	b, err := p.s.read(PinnedFile, true)
	if err != nil || b == nil {
		return nil, err
	}
	pins, err := store.Decode[[]item.Pinned](b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", PinnedFile, err)
	}
	return pins, nil
}

func (p *Pinned) Save(ctx context.Context, pins []item.Pinned) error {
	if pins == nil {
		pins = []item.Pinned{}
	}
	b, err := store.Encode(pins)
	if err != nil {
		return err
	}
	return p.s.write(ctx, PinnedFile, b, true)
}

// Settings is the file-backed store.SettingsRepository.
type Settings struct{ s *Store }

var _ store.SettingsRepository = (*Settings)(nil)

// Load returns settings.Default when the file does not exist.
func (r *Settings) Load(ctx context.Context) (settings.Settings, error) {
	b, err := r.s.read(SettingsFile, false)
	if err != nil {
		return settings.Default(), err
	}
	if b == nil {
		return settings.Default(), nil
	}
	// Fields missing from the file keep their defaults.
	loaded := settings.Default()
	if err := store.DecodeInto(b, &loaded); err != nil {
		return settings.Default(), fmt.Errorf("%s: %w", SettingsFile, err)
	}
	return loaded.Normalize(), nil
}

func (r *Settings) Save(ctx context.Context, s settings.Settings) error {
	b, err := store.Encode(s.Normalize())
	if err != nil {
		return err
	}
	return r.s.write(ctx, SettingsFile, b, false)
}
