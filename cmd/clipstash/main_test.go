package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.klb.dev/clipstash/internal/clip"
	"go.klb.dev/clipstash/internal/daemon"
	"go.klb.dev/clipstash/internal/ipc"
	"go.klb.dev/clipstash/internal/item"
	"go.klb.dev/clipstash/internal/message"
	"go.klb.dev/clipstash/internal/settings"
)

// startDaemon runs a daemon on a memory clipboard and returns its socket.
func startDaemon(t *testing.T, passphrase string) (string, *daemon.Daemon) {
	t.Helper()
	sockDir, err := os.MkdirTemp("", "cs")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(sockDir) })
	sock := filepath.Join(sockDir, "c.sock")

	d, err := daemon.Open(context.Background(), daemon.Config{
		DataDir:      t.TempDir(),
		Passphrase:   passphrase,
		PollInterval: 5 * time.Millisecond,
		SocketPath:   sock,
		Version:      "test",
	}, daemon.WithClipboard(clip.NewMemory("m")), daemon.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
	})
	require.Eventually(t, func() bool { return ipc.IsRunning(sock) }, 2*time.Second, 5*time.Millisecond)
	return sock, d
}

// execute runs the CLI with args and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func addText(t *testing.T, d *daemon.Daemon, text string) item.Item {
	t.Helper()
	it := item.NewText(item.TypeText, text, item.Source{App: "code.exe"}, time.Now())
	require.NoError(t, d.Coordinator().AddItem(context.Background(), it))
	return it
}

func TestMatchID(t *testing.T) {
	id, err := matchID("ab", []string{"abc", "abc"})
	require.NoError(t, err)
	assert.Equal(t, "abc", id)

	_, err = matchID("ab", nil)
	assert.ErrorIs(t, err, errNoMatch)

	_, err = matchID("ab", []string{"abc", "abd"})
	assert.ErrorIs(t, err, errAmbiguous)
}

func TestShortIDAndOneLine(t *testing.T) {
	assert.Equal(t, "1b4e28ba", shortID("1b4e28ba-2fa1-11d2-883f-0016d3cca427"))
	assert.Equal(t, "plain", shortID("plain"))
	assert.Equal(t, "a b c", oneLine(" a\n b\tc "))
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "clipstash dev\n", out)
}

func TestListPinDeleteFlow(t *testing.T) {
	sock, d := startDaemon(t, "")
	it := addText(t, d, "first line\nsecond line")

	out, err := execute(t, "list", "--socket", sock)
	require.NoError(t, err)
	assert.Contains(t, out, shortID(it.ID))
	assert.Contains(t, out, "first line second line")
	assert.Contains(t, out, "code.exe")

	out, err = execute(t, "pin", shortID(it.ID), "--socket", sock)
	require.NoError(t, err)
	assert.Contains(t, out, "pinned")
	assert.Len(t, d.Coordinator().Pinned(), 1)

	out, err = execute(t, "pins", "--socket", sock, "--json")
	require.NoError(t, err)
	assert.Contains(t, out, it.ID)

	_, err = execute(t, "delete", it.ID, "--socket", sock)
	require.NoError(t, err)
	assert.Empty(t, d.Coordinator().History())
	assert.Empty(t, d.Coordinator().Pinned())

	_, err = execute(t, "delete", "zzz", "--socket", sock)
	assert.ErrorIs(t, err, errNoMatch)
}

func TestClearKeepsPins(t *testing.T) {
	sock, d := startDaemon(t, "")
	it := addText(t, d, "pinned")
	addText(t, d, "not pinned")
	_, err := d.Coordinator().TogglePin(context.Background(), it)
	require.NoError(t, err)

	_, err = execute(t, "clear", "--socket", sock)
	require.NoError(t, err)
	assert.Empty(t, d.Coordinator().History())
	assert.Len(t, d.Coordinator().Pinned(), 1)

	out, err := execute(t, "list", "--socket", sock)
	require.NoError(t, err)
	assert.Equal(t, "History is empty.\n", out)
}

func TestSettingsCommand(t *testing.T) {
	sock, d := startDaemon(t, "")

	out, err := execute(t, "settings", "--socket", sock)
	require.NoError(t, err)
	assert.Contains(t, out, "Incognito:")

	_, err = execute(t, "settings", "--socket", sock, "--incognito", "--exclude", "KeePass.exe,1Password")
	require.NoError(t, err)
	got := d.Coordinator().Settings()
	assert.True(t, got.Incognito)
	assert.Equal(t, []string{"1password", "keepass"}, got.ExcludedApps)
	assert.True(t, got.RememberHistory, "unchanged flags keep their current value")

	_, err = execute(t, "settings", "--socket", sock, "--include", "keepass")
	require.NoError(t, err)
	assert.Equal(t, []string{"1password"}, d.Coordinator().Settings().ExcludedApps)

	_, err = execute(t, "settings", "--socket", sock, "--history-limit", "0")
	assert.ErrorContains(t, err, "history limit")
	assert.Equal(t, settings.DefaultHistoryLimit, d.Coordinator().Settings().HistoryLimit)
}

func TestStatusWithPassphrase(t *testing.T) {
	sock, _ := startDaemon(t, "s3cret")

	out, err := execute(t, "status", "--socket", sock, "--passphrase", "s3cret")
	require.NoError(t, err)
	assert.Contains(t, out, "encrypted: true")

	_, err = execute(t, "status", "--socket", sock)
	assert.ErrorContains(t, err, "passphrase")
}

func TestRestoreCommand(t *testing.T) {
	sock, d := startDaemon(t, "")
	it := addText(t, d, "again")

	_, err := execute(t, "restore", shortID(it.ID), "--socket", sock)
	require.NoError(t, err)

	resp, err := ipc.Call(context.Background(), sock, &message.Message{Type: message.TypeList})
	require.NoError(t, err)
	assert.Len(t, resp.Entries, 1, "restored content is not captured twice")
}

func TestClientWithoutDaemon(t *testing.T) {
	dir, err := os.MkdirTemp("", "cs")
	require.NoError(t, err)
	defer os.RemoveAll(dir)
	_, err = execute(t, "status", "--socket", filepath.Join(dir, "none.sock"))
	assert.ErrorIs(t, err, ipc.ErrNotRunning)
}
