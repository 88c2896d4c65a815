//go:build !darwin && !windows && !linux

package clip

// New returns an in-process Memory clipboard for platforms without a
// supported display clipboard (containers, BSDs, CI).
func New() Clipboard {
	return NewMemory("headless (memory)")
}
