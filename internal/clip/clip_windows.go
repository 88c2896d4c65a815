//go:build windows

package clip

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime"
	"unsafe"

	"golang.design/x/clipboard"
	"golang.org/x/sys/windows"

	"go.klb.dev/clipstash/internal/item"
)

const (
	cfUnicodeText = 13
	cfHDROP       = 15
	cfDIB         = 8
	cfDIBV5       = 17
)

var (
	user32   = windows.NewLazySystemDLL("user32.dll")
	kernel32 = windows.NewLazySystemDLL("kernel32.dll")

	procGetClipboardSequenceNumber = user32.NewProc("GetClipboardSequenceNumber")
	procOpenClipboard              = user32.NewProc("OpenClipboard")
	procCloseClipboard             = user32.NewProc("CloseClipboard")
	procIsClipboardFormatAvailable = user32.NewProc("IsClipboardFormatAvailable")
	procGetClipboardData           = user32.NewProc("GetClipboardData")
	procGetClipboardOwner          = user32.NewProc("GetClipboardOwner")
	procRegisterClipboardFormatW   = user32.NewProc("RegisterClipboardFormatW")

	procGlobalLock   = kernel32.NewProc("GlobalLock")
	procGlobalUnlock = kernel32.NewProc("GlobalUnlock")
	procGlobalSize   = kernel32.NewProc("GlobalSize")
)

type windowsBackend struct {
	cfRTF  uintptr
	cfHTML uintptr
}

// New returns the Windows clipboard backend. Reads go straight to user32 so
// that file drops, DIBs and the registered RTF/HTML formats are visible;
// writes go through golang.design/x/clipboard.
func New() Clipboard {
	if err := clipboard.Init(); err != nil {
		slog.Warn("clipboard init failed, restore disabled", "err", err)
	}
	return &windowsBackend{
		cfRTF:  registerFormat("Rich Text Format"),
		cfHTML: registerFormat("HTML Format"),
	}
}

func registerFormat(name string) uintptr {
	p, err := windows.UTF16PtrFromString(name)
	if err != nil {
		return 0
	}
	r, _, _ := procRegisterClipboardFormatW.Call(uintptr(unsafe.Pointer(p)))
	return r
}

func (b *windowsBackend) Name() string { return "Windows Clipboard" }

func (b *windowsBackend) Sequence() (uint64, error) {
	if err := procGetClipboardSequenceNumber.Find(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	r, _, _ := procGetClipboardSequenceNumber.Call()
	return uint64(r), nil
}

// Open calls OpenClipboard and pins the calling goroutine to its OS thread
// until the session closes; CloseClipboard must run on the same thread.
func (b *windowsBackend) Open() (Session, error) {
	runtime.LockOSThread()
	r, _, err := procOpenClipboard.Call(0)
	if r == 0 {
		runtime.UnlockOSThread()
		if err == windows.ERROR_ACCESS_DENIED {
			return nil, ErrBusy
		}
		return nil, fmt.Errorf("%w: OpenClipboard: %v", ErrBusy, err)
	}
	return &windowsSession{b: b}, nil
}

func (b *windowsBackend) Write(it item.Item) error { return designWrite(it) }

func (b *windowsBackend) Close() {}

type windowsSession struct {
	b      *windowsBackend
	closed bool
}

func available(format uintptr) bool {
	if format == 0 {
		return false
	}
	r, _, _ := procIsClipboardFormatAvailable.Call(format)
	return r != 0
}

// globalBytes copies the contents of the clipboard's HGLOBAL for format.
func globalBytes(format uintptr) ([]byte, error) {
	if !available(format) {
		return nil, nil
	}
	h, _, err := procGetClipboardData.Call(format)
	if h == 0 {
		return nil, fmt.Errorf("GetClipboardData(%d): %v", format, err)
	}
	p, _, err := procGlobalLock.Call(h)
	if p == 0 {
		return nil, fmt.Errorf("GlobalLock: %v", err)
	}
	defer procGlobalUnlock.Call(h)
	n, _, _ := procGlobalSize.Call(h)
	if n == 0 {
		return nil, nil
	}
	src := unsafe.Slice((*byte)(unsafe.Pointer(p)), int(n))
	out := make([]byte, len(src))
	copy(out, src)
	return out, nil
}

func (s *windowsSession) Files() ([]string, error) {
	b, err := globalBytes(cfHDROP)
	if err != nil || b == nil {
		return nil, err
	}
	return ParseHDROP(b)
}

// Bitmap prefers CF_DIBV5 over CF_DIB.
func (s *windowsSession) Bitmap() ([]byte, error) {
	for _, f := range []uintptr{cfDIBV5, cfDIB} {
		b, err := globalBytes(f)
		if err != nil {
			return nil, err
		}
		if len(b) > 0 {
			return b, nil
		}
	}
	return nil, nil
}

func (s *windowsSession) RTF() ([]byte, error) {
	b, err := globalBytes(s.b.cfRTF)
	if err != nil || b == nil {
		return nil, err
	}
	if i := indexNUL(b); i >= 0 {
		b = b[:i]
	}
	return b, nil
}

func (s *windowsSession) HTML() ([]byte, error) {
	b, err := globalBytes(s.b.cfHTML)
	if err != nil || b == nil {
		return nil, err
	}
	if i := indexNUL(b); i >= 0 {
		b = b[:i]
	}
	return ParseCFHTML(b)
}

func (s *windowsSession) Text() (string, error) {
	b, err := globalBytes(cfUnicodeText)
	if err != nil || len(b) < 2 {
		return "", err
	}
	u16 := unsafe.Slice((*uint16)(unsafe.Pointer(&b[0])), len(b)/2)
	return windows.UTF16ToString(u16), nil
}

func (s *windowsSession) Owner() item.Source {
	hwnd, _, _ := procGetClipboardOwner.Call()
	if hwnd == 0 {
		return item.Source{}
	}
	var pid uint32
	if _, err := windows.GetWindowThreadProcessId(windows.HWND(hwnd), &pid); err != nil || pid == 0 {
		return item.Source{}
	}
	h, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, pid)
	if err != nil {
		return item.Source{}
	}
	defer windows.CloseHandle(h)

	buf := make([]uint16, windows.MAX_LONG_PATH)
	n := uint32(len(buf))
	if err := windows.QueryFullProcessImageName(h, 0, &buf[0], &n); err != nil {
		return item.Source{}
	}
	path := windows.UTF16ToString(buf[:n])
	return item.Source{App: filepath.Base(path), Path: path}
}

func (s *windowsSession) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	defer runtime.UnlockOSThread()
	if r, _, err := procCloseClipboard.Call(); r == 0 {
		return fmt.Errorf("CloseClipboard: %v", err)
	}
	return nil
}

func indexNUL(b []byte) int {
	for i, c := range b {
		if c == 0 {
			return i
		}
	}
	return -1
}
