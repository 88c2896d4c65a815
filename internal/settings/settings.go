// Package settings holds the user-facing capture settings snapshot.
//
// Settings is a plain value. The state coordinator replaces it wholesale on
// every save; nothing mutates a Settings in place once it is published.
package settings

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
)

const (
	// MaxHistory is the hard ceiling on history size.
	MaxHistory = 500

	// DefaultHistoryLimit is the configured limit for a fresh install.
	DefaultHistoryLimit = 100
)

// ErrInvalid is returned by Validate.
var ErrInvalid = errors.New("invalid settings")

// Settings is a snapshot of capture behaviour.
type Settings struct {
	RememberHistory     bool     `json:"remember_history"`
	HistoryLimitEnabled bool     `json:"history_limit_enabled"`
	HistoryLimit        int      `json:"history_limit"`
	Incognito           bool     `json:"incognito"`
	ExcludedApps        []string `json:"excluded_apps,omitempty"`
	CaptureRichText     bool     `json:"capture_rich_text"`
	AutoPaste           bool     `json:"auto_paste"`
}

// Default returns the settings used when nothing has been persisted yet.
func Default() Settings {
	return Settings{
		RememberHistory:     true,
		HistoryLimitEnabled: true,
		HistoryLimit:        DefaultHistoryLimit,
		CaptureRichText:     true,
	}
}

// EffectiveHistoryLimit is the number of history entries to retain.
func (s Settings) EffectiveHistoryLimit() int {
	if !s.HistoryLimitEnabled {
		return MaxHistory
	}
	return min(max(s.HistoryLimit, 1), MaxHistory)
}

// Validate rejects settings a user could not have meant.
func (s Settings) Validate() error {
	if s.HistoryLimitEnabled && s.HistoryLimit < 1 {
		return fmt.Errorf("%w: history limit must be at least 1, got %d", ErrInvalid, s.HistoryLimit)
	}
	for _, app := range s.ExcludedApps {
		if NormalizeApp(app) == "" {
			return fmt.Errorf("%w: empty excluded application entry", ErrInvalid)
		}
	}
	return nil
}

// Normalize returns a copy with the limit clamped and excluded apps
// canonicalized, deduplicated and sorted.
func (s Settings) Normalize() Settings {
	out := s
	if out.HistoryLimitEnabled {
		out.HistoryLimit = out.EffectiveHistoryLimit()
	}
	apps := make([]string, 0, len(s.ExcludedApps))
	for _, app := range s.ExcludedApps {
		if n := NormalizeApp(app); n != "" {
			apps = append(apps, n)
		}
	}
	slices.Sort(apps)
	out.ExcludedApps = slices.Compact(apps)
	if len(out.ExcludedApps) == 0 {
		out.ExcludedApps = nil
	}
	return out
}

// Clone returns a copy that shares no slices with s.
func (s Settings) Clone() Settings {
	out := s
	out.ExcludedApps = slices.Clone(s.ExcludedApps)
	return out
}

// Equal reports whether two snapshots are the same after normalization.
func (s Settings) Equal(o Settings) bool {
	a, b := s.Normalize(), o.Normalize()
	return a.RememberHistory == b.RememberHistory &&
		a.HistoryLimitEnabled == b.HistoryLimitEnabled &&
		a.HistoryLimit == b.HistoryLimit &&
		a.Incognito == b.Incognito &&
		a.CaptureRichText == b.CaptureRichText &&
		a.AutoPaste == b.AutoPaste &&
		slices.Equal(a.ExcludedApps, b.ExcludedApps)
}

// IsExcluded reports whether app matches an excluded application entry.
// Matching is case-insensitive and ignores a trailing ".exe" on either side.
func (s Settings) IsExcluded(app string) bool {
	n := NormalizeApp(app)
	if n == "" {
		return false
	}
	for _, ex := range s.ExcludedApps {
		if NormalizeApp(ex) == n {
			return true
		}
	}
	return false
}

// NormalizeApp canonicalizes an application identifier: the base name of a
// path, lower-cased, with a trailing ".exe" removed.
func NormalizeApp(app string) string {
	app = strings.TrimSpace(app)
	if app == "" {
		return ""
	}
	// Windows paths arrive on every platform via IPC, so split on both.
	if i := strings.LastIndexAny(app, `/\`); i >= 0 {
		app = app[i+1:]
	}
	app = filepath.Base(app)
	app = strings.ToLower(app)
	app = strings.TrimSuffix(app, ".exe")
	if app == "." {
		return ""
	}
	return app
}
