// Package clip provides a unified interface to the system clipboard across
// platforms. Build constraints select the appropriate implementation:
//
//	clip_darwin.go   macOS via golang.design/x/clipboard + cgo changeCount
//	clip_windows.go  Windows via user32 (sequence number, HDROP, DIB, RTF, HTML)
//	clip_linux.go    Linux via golang.design/x/clipboard, content-compare generation
//	clip_other.go    headless / container fallback (Memory)
//
// The clipboard is a single system-wide resource. Callers observe it cheaply
// through Sequence and read it only inside a short Open/Close session.
package clip

import (
	"errors"

	"go.klb.dev/clipstash/internal/item"
)

var (
	// ErrBusy is returned by Open when another process holds the clipboard.
	ErrBusy = errors.New("clipboard busy")

	// ErrUnavailable is returned when no clipboard is reachable at all.
	ErrUnavailable = errors.New("clipboard unavailable")

	// ErrUnsupported is returned by Write for payloads the backend cannot place.
	ErrUnsupported = errors.New("unsupported clipboard payload")
)

// Clipboard is the interface that all platform clipboard implementations satisfy.
type Clipboard interface {
	// Name returns a human-readable name for the backend.
	Name() string

	// Sequence returns the clipboard change generation. It changes whenever
	// the clipboard contents change and is cheap enough to call every tick.
	Sequence() (uint64, error)

	// Open acquires read access to the clipboard. It fails fast with ErrBusy
	// when the clipboard is held elsewhere; retrying is the caller's job.
	// The returned Session must be closed.
	Open() (Session, error)

	// Close releases any resources held by the backend.
	Close()
}

// Session is exclusive read access to the clipboard. Each accessor returns a
// zero value with a nil error when its format is not present.
type Session interface {
	// Files returns the file-drop list.
	Files() ([]string, error)

	// Bitmap returns image bytes: a device-independent bitmap (header and
	// pixels, no file header) or PNG, whichever the platform provides.
	Bitmap() ([]byte, error)

	RTF() ([]byte, error)

	// HTML returns the HTML fragment with any platform envelope removed.
	HTML() ([]byte, error)

	Text() (string, error)

	// Owner identifies the application that last set the clipboard, if known.
	Owner() item.Source

	Close() error
}

// Writer is implemented by backends that can place an item back on the
// clipboard.
type Writer interface {
	Write(it item.Item) error
}
