package daemon

import (
	"context"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"go.klb.dev/clipstash/internal/clip"
	"go.klb.dev/clipstash/internal/crypto"
	"go.klb.dev/clipstash/internal/ipc"
	"go.klb.dev/clipstash/internal/item"
	"go.klb.dev/clipstash/internal/message"
	"go.klb.dev/clipstash/internal/settings"
	"go.klb.dev/clipstash/internal/store/filestore"
	"go.klb.dev/clipstash/internal/wire"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

// testConfig returns a config rooted in fresh temp dirs. The socket lives in
// a short path to stay under the sun_path limit.
func testConfig(t *testing.T) Config {
	t.Helper()
	sockDir, err := os.MkdirTemp("", "cs")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(sockDir) })
	return Config{
		DataDir:      t.TempDir(),
		Store:        StoreFile,
		PollInterval: 2 * time.Millisecond,
		SocketPath:   filepath.Join(sockDir, "d.sock"),
		Version:      "test",
	}
}

func open(t *testing.T, cfg Config, mem *clip.Memory) *Daemon {
	t.Helper()
	d, err := Open(context.Background(), cfg, WithClipboard(mem), WithLogger(quiet()))
	require.NoError(t, err)
	return d
}

// run starts d and returns a function that stops it and checks Run's result.
func run(t *testing.T, d *Daemon) (stop func()) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()
	require.Eventually(t, d.Coordinator().RuntimeActive, 2*time.Second, time.Millisecond)
	return func() {
		cancel()
		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("daemon did not stop")
		}
	}
}

// waitIPC blocks until the control socket answers STATUS.
func waitIPC(t *testing.T, path string, opts ...wire.Option) {
	t.Helper()
	require.Eventually(t, func() bool {
		_, err := ipc.Call(context.Background(), path, &message.Message{Type: message.TypeStatus}, opts...)
		return err == nil
	}, 2*time.Second, 5*time.Millisecond)
}

func add(t *testing.T, d *Daemon, text string) item.Item {
	t.Helper()
	it := item.NewText(item.TypeText, text, item.Source{}, time.Now())
	require.NoError(t, d.Coordinator().AddItem(context.Background(), it))
	return it
}

func call(t *testing.T, d *Daemon, req *message.Message) *message.Message {
	t.Helper()
	return d.Handle(context.Background(), req)
}

func TestOpenUnknownStore(t *testing.T) {
	cfg := testConfig(t)
	cfg.Store = "redis"
	_, err := Open(context.Background(), cfg, WithClipboard(clip.NewMemory("m")), WithLogger(quiet()))
	assert.ErrorIs(t, err, ErrUnknownStore)
}

func TestHandleListAndLimit(t *testing.T) {
	d := open(t, testConfig(t), clip.NewMemory("m"))
	defer d.Close()
	add(t, d, "one")
	add(t, d, "two")
	newest := add(t, d, "three")

	resp := call(t, d, &message.Message{Type: message.TypeList})
	require.NoError(t, resp.Err())
	require.Len(t, resp.Entries, 3)
	assert.Equal(t, newest.ID, resp.Entries[0].ID)
	assert.Equal(t, "three", resp.Entries[0].Preview)

	resp = call(t, d, &message.Message{Type: message.TypeList, Limit: 2})
	assert.Len(t, resp.Entries, 2)
}

func TestHandlePinToggleAndPins(t *testing.T) {
	d := open(t, testConfig(t), clip.NewMemory("m"))
	defer d.Close()
	it := add(t, d, "keep me")

	resp := call(t, d, &message.Message{Type: message.TypePin, ID: it.ID})
	require.NoError(t, resp.Err())
	require.NotNil(t, resp.Pinned)
	assert.True(t, *resp.Pinned)

	pins := call(t, d, &message.Message{Type: message.TypePins})
	require.Len(t, pins.Entries, 1)
	assert.False(t, pins.Entries[0].PinnedAt.IsZero())

	resp = call(t, d, &message.Message{Type: message.TypePin, ID: it.ID})
	require.NotNil(t, resp.Pinned)
	assert.False(t, *resp.Pinned)
	assert.Empty(t, call(t, d, &message.Message{Type: message.TypePins}).Entries)
}

func TestHandleDeleteAndClear(t *testing.T) {
	d := open(t, testConfig(t), clip.NewMemory("m"))
	defer d.Close()
	a := add(t, d, "a")
	add(t, d, "b")

	require.NoError(t, call(t, d, &message.Message{Type: message.TypeDelete, ID: a.ID}).Err())
	assert.Len(t, d.Coordinator().History(), 1)

	require.NoError(t, call(t, d, &message.Message{Type: message.TypeDelete, ID: "unknown"}).Err())

	resp := call(t, d, &message.Message{Type: message.TypeDelete})
	assert.Equal(t, message.TypeError, resp.Type)
	assert.True(t, resp.UserFacing)

	require.NoError(t, call(t, d, &message.Message{Type: message.TypeClear}).Err())
	assert.Empty(t, d.Coordinator().History())
}

func TestHandleSettings(t *testing.T) {
	d := open(t, testConfig(t), clip.NewMemory("m"))
	defer d.Close()

	resp := call(t, d, &message.Message{Type: message.TypeSettingsGet})
	require.NotNil(t, resp.Settings)
	assert.Equal(t, settings.Default(), *resp.Settings)

	next := settings.Default()
	next.Incognito = true
	next.ExcludedApps = []string{"KeePass.EXE"}
	resp = call(t, d, &message.Message{Type: message.TypeSettingsSet, Settings: &next})
	require.NoError(t, resp.Err())
	assert.True(t, resp.Settings.Incognito)
	assert.Equal(t, []string{"keepass"}, resp.Settings.ExcludedApps)

	bad := settings.Default()
	bad.HistoryLimit = 0
	resp = call(t, d, &message.Message{Type: message.TypeSettingsSet, Settings: &bad})
	assert.Equal(t, message.TypeError, resp.Type)
	assert.True(t, resp.UserFacing)

	resp = call(t, d, &message.Message{Type: message.TypeSettingsSet})
	assert.True(t, resp.UserFacing)
}

func TestHandleRestore(t *testing.T) {
	mem := clip.NewMemory("m")
	d := open(t, testConfig(t), mem)
	defer d.Close()
	it := add(t, d, "put me back")

	require.NoError(t, call(t, d, &message.Message{Type: message.TypeRestore, ID: it.ID}).Err())

	s, err := mem.Open()
	require.NoError(t, err)
	defer s.Close()
	text, err := s.Text()
	require.NoError(t, err)
	assert.Equal(t, "put me back", text)

	resp := call(t, d, &message.Message{Type: message.TypeRestore, ID: "missing"})
	assert.Equal(t, message.TypeError, resp.Type)
	assert.True(t, resp.UserFacing)
}

func TestHandleUnknownType(t *testing.T) {
	d := open(t, testConfig(t), clip.NewMemory("m"))
	defer d.Close()
	resp := call(t, d, &message.Message{Type: "PASTE"})
	assert.Equal(t, message.TypeError, resp.Type)
	assert.True(t, resp.UserFacing)
	assert.Contains(t, resp.Error, "PASTE")
}

func TestHandleStatus(t *testing.T) {
	cfg := testConfig(t)
	d := open(t, cfg, clip.NewMemory("m"))
	defer d.Close()
	add(t, d, "x")

	st := call(t, d, &message.Message{Type: message.TypeStatus}).Status
	require.NotNil(t, st)
	assert.Equal(t, "test", st.Version)
	assert.Equal(t, StoreFile, st.Store)
	assert.Equal(t, cfg.DataDir, st.DataDir)
	assert.Equal(t, 1, st.History)
	assert.Equal(t, settings.DefaultHistoryLimit, st.HistoryLimit)
	assert.False(t, st.RuntimeActive)
	assert.False(t, st.Encrypted)
}

func TestRunCapturesAndServesIPC(t *testing.T) {
	mem := clip.NewMemory("m")
	cfg := testConfig(t)
	d := open(t, cfg, mem)
	stop := run(t, d)
	defer stop()

	waitIPC(t, cfg.SocketPath)
	mem.SetText("captured by the daemon")

	require.Eventually(t, func() bool {
		resp, err := ipc.Call(context.Background(), cfg.SocketPath, &message.Message{Type: message.TypeList})
		return err == nil && len(resp.Entries) == 1
	}, 2*time.Second, 5*time.Millisecond)

	resp, err := ipc.Call(context.Background(), cfg.SocketPath, &message.Message{Type: message.TypeStatus})
	require.NoError(t, err)
	assert.True(t, resp.Status.RuntimeActive)
	assert.Empty(t, resp.Status.Degraded)
	assert.Positive(t, resp.Status.Monitor.Captured)
}

func TestRunPersistsAcrossRestart(t *testing.T) {
	cfg := testConfig(t)
	for _, backend := range []string{StoreFile, StoreSQLite} {
		t.Run(backend, func(t *testing.T) {
			cfg := cfg
			cfg.Store = backend
			cfg.DataDir = t.TempDir()

			d := open(t, cfg, clip.NewMemory("m"))
			it := add(t, d, "survives")
			_, err := d.Coordinator().TogglePin(context.Background(), it)
			require.NoError(t, err)
			require.NoError(t, d.Close())

			d = open(t, cfg, clip.NewMemory("m"))
			defer d.Close()
			require.Len(t, d.Coordinator().History(), 1)
			assert.Equal(t, "survives", d.Coordinator().History()[0].Text)
			assert.Len(t, d.Coordinator().Pinned(), 1)
		})
	}
}

func TestRunEncryptedIPC(t *testing.T) {
	cfg := testConfig(t)
	cfg.Passphrase = "correct horse"
	d := open(t, cfg, clip.NewMemory("m"))
	stop := run(t, d)
	defer stop()

	c, err := crypto.New(cfg.Passphrase)
	require.NoError(t, err)
	waitIPC(t, cfg.SocketPath, wire.WithCipher(c))
	resp, err := ipc.Call(context.Background(), cfg.SocketPath, &message.Message{Type: message.TypeStatus}, wire.WithCipher(c))
	require.NoError(t, err)
	assert.True(t, resp.Status.Encrypted)

	_, err = ipc.Call(context.Background(), cfg.SocketPath, &message.Message{Type: message.TypeStatus})
	assert.Error(t, err)
}

func TestRunDegradedWhenSocketTaken(t *testing.T) {
	cfg := testConfig(t)
	ln, err := net.Listen("unix", cfg.SocketPath)
	require.NoError(t, err)
	defer ln.Close()
	accepted := make(chan struct{})
	go func() {
		defer close(accepted)
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			_ = c.Close()
		}
	}()

	d := open(t, cfg, clip.NewMemory("m"))
	stop := run(t, d)

	var st *message.Status
	require.Eventually(t, func() bool {
		st = call(t, d, &message.Message{Type: message.TypeStatus}).Status
		return len(st.Degraded) == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.Contains(t, st.Degraded[0], "ipc")
	assert.True(t, st.RuntimeActive)

	stop()
	_ = ln.Close()
	<-accepted
}

func TestRunReloadsEditedSettings(t *testing.T) {
	cfg := testConfig(t)
	cfg.WatchSettings = true
	d := open(t, cfg, clip.NewMemory("m"))
	stop := run(t, d)
	defer stop()
	// Give fsnotify a moment to register the directory.
	time.Sleep(50 * time.Millisecond)

	fs, err := filestore.New(cfg.DataDir)
	require.NoError(t, err)
	edited := settings.Default()
	edited.Incognito = true
	require.NoError(t, fs.Settings().Save(context.Background(), edited))

	require.Eventually(t, func() bool { return d.Coordinator().Settings().Incognito }, 3*time.Second, 10*time.Millisecond)
}
