package state

import "errors"

var (
	// ErrNotFound is returned when no history or pinned item has the id.
	ErrNotFound = errors.New("clipboard item not found")

	// ErrInvalidSettings is returned by SaveSettings for rejected settings.
	ErrInvalidSettings = errors.New("invalid settings")

	// ErrInvalidItem is returned for items that break the payload rules.
	ErrInvalidItem = errors.New("invalid clipboard item")

	// ErrNoMonitor is returned by StartRuntime when no monitor is configured.
	ErrNoMonitor = errors.New("no clipboard monitor configured")

	// ErrPersistence wraps repository failures. The in-memory state has
	// already changed when it is returned; memory and disk stay out of
	// step until the next successful save.
	ErrPersistence = errors.New("persistence failed")
)

// IsUserFacing reports whether err describes a condition to show the user
// (bad input, unknown id) rather than an internal fault.
func IsUserFacing(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrInvalidSettings) ||
		errors.Is(err, ErrInvalidItem)
}
