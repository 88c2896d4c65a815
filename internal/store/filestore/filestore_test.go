package filestore

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.klb.dev/clipstash/internal/crypto"
	"go.klb.dev/clipstash/internal/item"
	"go.klb.dev/clipstash/internal/settings"
	"go.klb.dev/clipstash/internal/store"
)

var t0 = time.Date(2026, 5, 1, 9, 30, 0, 0, time.UTC)

func sampleItems() []item.Item {
	return []item.Item{
		item.NewText(item.TypeEmail, "john@example.com", item.Source{App: "mail"}, t0.Add(2*time.Second)),
		item.NewRichText("bold", nil, []byte("<b>bold</b>"), item.Source{}, t0.Add(time.Second)),
		item.NewFile("/tmp/report.pdf", item.Source{}, t0),
	}
}

func TestMissingFilesAreEmpty(t *testing.T) {
	ctx := context.Background()
	s, err := New(filepath.Join(t.TempDir(), "nested", "data"))
	require.NoError(t, err)

	hist, err := s.History().Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, hist)

	pins, err := s.Pinned().Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, pins)

	set, err := s.Settings().Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, settings.Default(), set)

	require.NoError(t, s.History().Clear(ctx), "clearing a missing file is fine")
}

func TestHistoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, err := New(t.TempDir())
	require.NoError(t, err)

	in := sampleItems()
	require.NoError(t, s.History().Save(ctx, in))

	out, err := s.History().Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, in, out)

	require.NoError(t, s.History().Clear(ctx))
	out, err = s.History().Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, out)
	_, err = os.Stat(filepath.Join(s.Dir(), HistoryFile))
	assert.True(t, os.IsNotExist(err))
}

func TestPinnedRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, err := New(t.TempDir())
	require.NoError(t, err)

	in := []item.Pinned{item.NewPinned(sampleItems()[0], t0)}
	require.NoError(t, s.Pinned().Save(ctx, in))
	out, err := s.Pinned().Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestSettingsRoundTripAndDefaults(t *testing.T) {
	ctx := context.Background()
	s, err := New(t.TempDir())
	require.NoError(t, err)

	want := settings.Default()
	want.HistoryLimit = 42
	want.Incognito = true
	want.ExcludedApps = []string{"keepass", "1password"}
	require.NoError(t, s.Settings().Save(ctx, want))

	got, err := s.Settings().Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, want.Normalize(), got)

	// Hand-edited file with only one key keeps the other defaults.
	require.NoError(t, os.WriteFile(s.SettingsPath(), []byte(`{"version":1,"data":{"incognito":true}}`), 0o600))
	got, err = s.Settings().Load(ctx)
	require.NoError(t, err)
	assert.True(t, got.Incognito)
	assert.True(t, got.RememberHistory)
	assert.Equal(t, settings.DefaultHistoryLimit, got.HistoryLimit)
}

func TestMalformedIsDistinctFromIO(t *testing.T) {
	ctx := context.Background()
	s, err := New(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(s.Dir(), HistoryFile), []byte(`{"version":1,"data":[`), 0o600))
	_, err = s.History().Load(ctx)
	assert.ErrorIs(t, err, store.ErrMalformed)

	require.NoError(t, os.WriteFile(s.SettingsPath(), []byte(`{"version":9,"data":{}}`), 0o600))
	set, err := s.Settings().Load(ctx)
	assert.ErrorIs(t, err, store.ErrMalformed)
	assert.Equal(t, settings.Default(), set)

	// A directory where the file should be is an I/O fault, not malformed.
	require.NoError(t, os.Mkdir(filepath.Join(s.Dir(), PinnedFile), 0o700))
	_, err = s.Pinned().Load(ctx)
	require.Error(t, err)
	assert.NotErrorIs(t, err, store.ErrMalformed)
}

func TestCorruptPlainFileIsMalformed(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	c, err := crypto.New("hunter2")
	require.NoError(t, err)
	sealed, err := New(dir, WithCipher(c))
	require.NoError(t, err)
	plain, err := New(dir)
	require.NoError(t, err)

	for name, body := range map[string][]byte{
		"truncated": []byte(`{"version":1,"data":[`),
		"binary":    {0x7b, 0x00, 0xff, 0x13},
		"text":      []byte("not json at all"),
	} {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, os.WriteFile(filepath.Join(dir, HistoryFile), body, 0o600))
			for _, s := range []*Store{plain, sealed} {
				_, err := s.History().Load(ctx)
				assert.ErrorIs(t, err, store.ErrMalformed)
				assert.NotErrorIs(t, err, ErrEncrypted)
			}
		})
	}
}

func TestSealedFileCarriesMarker(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	c, err := crypto.New("hunter2")
	require.NoError(t, err)
	s, err := New(dir, WithCipher(c))
	require.NoError(t, err)
	require.NoError(t, s.Pinned().Save(ctx, nil))

	b, err := os.ReadFile(filepath.Join(dir, PinnedFile))
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(b, sealedMagic))

	// Settings are never sealed.
	require.NoError(t, s.Settings().Save(ctx, settings.Default()))
	b, err = os.ReadFile(s.SettingsPath())
	require.NoError(t, err)
	assert.False(t, bytes.HasPrefix(b, sealedMagic))
}

func TestEncryptedHistory(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	c, err := crypto.New("hunter2")
	require.NoError(t, err)

	s, err := New(dir, WithCipher(c))
	require.NoError(t, err)
	in := sampleItems()
	require.NoError(t, s.History().Save(ctx, in))

	raw, err := os.ReadFile(filepath.Join(dir, HistoryFile))
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "john@example.com")

	out, err := s.History().Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, in, out)

	plain, err := New(dir)
	require.NoError(t, err)
	_, err = plain.History().Load(ctx)
	assert.ErrorIs(t, err, ErrEncrypted)

	other, err := crypto.New("wrong")
	require.NoError(t, err)
	wrong, err := New(dir, WithCipher(other))
	require.NoError(t, err)
	_, err = wrong.History().Load(ctx)
	assert.ErrorIs(t, err, crypto.ErrDecrypt)
	assert.NotErrorIs(t, err, store.ErrMalformed)
}

func TestPlainHistoryReadableAfterPassphraseAdded(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	plain, err := New(dir)
	require.NoError(t, err)
	in := sampleItems()
	require.NoError(t, plain.History().Save(ctx, in))

	c, err := crypto.New("new passphrase")
	require.NoError(t, err)
	sealed, err := New(dir, WithCipher(c))
	require.NoError(t, err)
	out, err := sealed.History().Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestSaveHonoursCancelledContext(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.History().Save(ctx, sampleItems()), context.Canceled)
}

func TestSaveLeavesNoTempFiles(t *testing.T) {
	ctx := context.Background()
	s, err := New(t.TempDir())
	require.NoError(t, err)
	for range 3 {
		require.NoError(t, s.History().Save(ctx, sampleItems()))
	}
	entries, err := os.ReadDir(s.Dir())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, HistoryFile, entries[0].Name())
}
