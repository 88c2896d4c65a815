//go:build linux

package clip

import (
	"bytes"
	"log/slog"
	"sync"

	"golang.design/x/clipboard"

	"go.klb.dev/clipstash/internal/item"
)

type linuxBackend struct {
	mu       sync.Mutex
	seq      uint64
	lastText []byte
	lastImg  []byte
}

// New returns the Linux clipboard backend, or an in-process Memory clipboard
// if the display environment is unavailable (e.g. a headless server without
// X11 or Wayland). clipboard.Init is called here rather than in init() so
// that CLI sub-commands only talking to the daemon don't trigger the warning.
func New() Clipboard {
	if err := clipboard.Init(); err != nil {
		slog.Warn("clipboard unavailable, running headless", "err", err)
		return NewMemory("headless (memory)")
	}
	return &linuxBackend{}
}

func (b *linuxBackend) Name() string { return "Linux clipboard (poll)" }

// Sequence emulates a change counter: X11 and Wayland expose no generation
// number to clients, so the contents are compared with the previous call.
func (b *linuxBackend) Sequence() (uint64, error) {
	text := clipboard.Read(clipboard.FmtText)
	img := clipboard.Read(clipboard.FmtImage)

	b.mu.Lock()
	defer b.mu.Unlock()
	if !bytes.Equal(text, b.lastText) || !bytes.Equal(img, b.lastImg) {
		b.lastText = text
		b.lastImg = img
		b.seq++
	}
	return b.seq, nil
}

// Open never reports ErrBusy: X11 selections are served by their owner on
// request and have no exclusive lock.
func (b *linuxBackend) Open() (Session, error) {
	return &designSession{}, nil
}

func (b *linuxBackend) Write(it item.Item) error { return designWrite(it) }

func (b *linuxBackend) Close() {}
