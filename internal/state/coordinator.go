// Package state owns clipboard history, pinned items and settings.
//
// The Coordinator applies every write-path policy (incognito, excluded
// applications, deduplication, limits) under a single lock and persists
// outside it. Readers always get copies. A change signal is broadcast to
// subscribers after each successful mutation.
package state

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"go.klb.dev/clipstash/internal/item"
	"go.klb.dev/clipstash/internal/logging"
	"go.klb.dev/clipstash/internal/monitor"
	"go.klb.dev/clipstash/internal/settings"
	"go.klb.dev/clipstash/internal/store"
)

// Repositories are the persistence collaborators.
type Repositories struct {
	History  store.HistoryRepository
	Pinned   store.PinnedRepository
	Settings store.SettingsRepository
}

// Monitor is the part of monitor.Monitor the coordinator drives.
type Monitor interface {
	Start(callback monitor.Callback, captureRichText bool) error
	Stop() error
	UpdateCaptureRichText(enabled bool)
}

var _ Monitor = (*monitor.Monitor)(nil)

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithMonitor sets the clipboard monitor driven by StartRuntime.
func WithMonitor(m Monitor) Option {
	return func(c *Coordinator) { c.mon = m }
}

// WithLogger sets the logger; the default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.log = l
		}
	}
}

// WithClock replaces the pin timestamp source.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		if now != nil {
			c.now = now
		}
	}
}

// Coordinator is the single source of truth for clipstash state.
type Coordinator struct {
	repos Repositories
	mon   Monitor
	log   *slog.Logger
	now   func() time.Time

	mu       sync.Mutex
	history  []item.Item // newest first
	pinned   []item.Pinned
	settings settings.Settings

	// saveMu serializes repository writes. Each save snapshots the state
	// after acquiring it, so the last save to finish holds the newest data.
	saveMu sync.Mutex

	// runtimeMu serializes StartRuntime and StopRuntime, which can block for
	// the monitor's stop timeout. runtimeActive is read without it.
	runtimeMu     sync.Mutex
	runtimeActive atomic.Bool

	notifier notifier
}

// New returns a coordinator holding default settings and no items. Call
// Initialize to load persisted state.
func New(repos Repositories, opts ...Option) *Coordinator {
	c := &Coordinator{
		repos:    repos,
		log:      slog.Default(),
		now:      time.Now,
		settings: settings.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Initialize loads settings, then history (only when RememberHistory is
// on), then pins, trims history to the effective limit and emits one change
// signal. Calling it again reloads and replaces the in-memory state.
//
// Malformed stored data is logged and replaced with an empty collection (or
// default settings); any other repository error is returned.
func (c *Coordinator) Initialize(ctx context.Context) error {
	set, err := c.repos.Settings.Load(ctx)
	switch {
	case errors.Is(err, store.ErrMalformed):
		c.log.Warn("stored settings unreadable, using defaults", "err", err)
		set = settings.Default()
	case err != nil:
		return fmt.Errorf("%w: load settings: %w", ErrPersistence, err)
	}
	if verr := set.Validate(); verr != nil {
		c.log.Warn("stored settings invalid, normalizing", "err", verr)
	}
	set = set.Normalize()

	var hist []item.Item
	if set.RememberHistory {
		hist, err = c.repos.History.Load(ctx)
		switch {
		case errors.Is(err, store.ErrMalformed):
			c.log.Warn("stored history unreadable, starting empty", "err", err)
			hist = nil
		case err != nil:
			return fmt.Errorf("%w: load history: %w", ErrPersistence, err)
		}
	}

	pins, err := c.repos.Pinned.Load(ctx)
	switch {
	case errors.Is(err, store.ErrMalformed):
		c.log.Warn("stored pins unreadable, starting empty", "err", err)
		pins = nil
	case err != nil:
		return fmt.Errorf("%w: load pinned: %w", ErrPersistence, err)
	}

	hist = c.sanitizeHistory(hist)
	hist = truncate(hist, set.EffectiveHistoryLimit())
	pins = c.sanitizePinned(pins)

	c.mu.Lock()
	c.settings = set
	c.history = hist
	c.pinned = pins
	c.mu.Unlock()

	if c.mon != nil && c.RuntimeActive() {
		c.mon.UpdateCaptureRichText(set.CaptureRichText)
	}

	c.log.Info("state loaded",
		"history", len(hist),
		"pinned", len(pins),
		"remember_history", set.RememberHistory,
		"limit", set.EffectiveHistoryLimit(),
	)
	c.notifier.notify()
	return nil
}

// sanitizeHistory drops invalid records and later duplicates.
func (c *Coordinator) sanitizeHistory(in []item.Item) []item.Item {
	out := make([]item.Item, 0, len(in))
	for _, it := range in {
		if err := it.Validate(); err != nil {
			c.log.Warn("dropping invalid stored item", "id", it.ID, "err", err)
			continue
		}
		if indexEquivalent(out, it) >= 0 {
			continue
		}
		out = append(out, it)
	}
	return out
}

func (c *Coordinator) sanitizePinned(in []item.Pinned) []item.Pinned {
	out := make([]item.Pinned, 0, len(in))
	for _, p := range in {
		if err := p.Item.Validate(); err != nil {
			c.log.Warn("dropping invalid stored pin", "id", p.Item.ID, "err", err)
			continue
		}
		if indexPinned(out, p.Item) >= 0 {
			continue
		}
		out = append(out, p)
	}
	return truncate(out, item.MaxPinned)
}

// AddItem records a captured item. It is a silent no-op while incognito is
// on, for items from an excluded application, and for content already in
// history (the existing entry keeps its place and timestamp).
//
// A persistence failure is returned after the item is already in memory.
func (c *Coordinator) AddItem(ctx context.Context, it item.Item) error {
	if err := it.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidItem, err)
	}

	c.mu.Lock()
	set := c.settings
	switch {
	case set.Incognito:
		c.mu.Unlock()
		c.log.Debug("incognito, capture dropped", "type", it.Type)
		return nil
	case set.IsExcluded(it.SourceApp) || set.IsExcluded(it.SourcePath):
		c.mu.Unlock()
		c.log.Debug("excluded application, capture dropped", "source", it.SourceApp)
		return nil
	case indexEquivalent(c.history, it) >= 0:
		c.mu.Unlock()
		c.log.Debug("duplicate capture ignored", "type", it.Type)
		return nil
	}
	c.history = truncate(slices.Insert(c.history, 0, it.Clone()), set.EffectiveHistoryLimit())
	c.mu.Unlock()

	logging.LogItem(c.log, "clipboard captured", it)

	if err := c.saveHistory(ctx); err != nil {
		return err
	}
	c.notifier.notify()
	return nil
}

// DeleteItem removes the item with id from history and from the pinned
// set. Deleting an unknown id succeeds without change.
func (c *Coordinator) DeleteItem(ctx context.Context, id string) error {
	c.mu.Lock()
	hl, pl := len(c.history), len(c.pinned)
	c.history = slices.DeleteFunc(c.history, func(it item.Item) bool { return it.ID == id })
	c.pinned = slices.DeleteFunc(c.pinned, func(p item.Pinned) bool { return p.Item.ID == id })
	changed := len(c.history) != hl || len(c.pinned) != pl
	c.mu.Unlock()

	if !changed {
		return nil
	}
	if err := errors.Join(c.saveHistory(ctx), c.savePinned(ctx)); err != nil {
		return err
	}
	c.notifier.notify()
	return nil
}

// TogglePin unpins the pinned item with the same content as it, or pins a
// copy of it at the front of the pinned set. It reports whether the item
// is pinned afterwards.
func (c *Coordinator) TogglePin(ctx context.Context, it item.Item) (bool, error) {
	if err := it.Validate(); err != nil {
		return false, fmt.Errorf("%w: %w", ErrInvalidItem, err)
	}

	c.mu.Lock()
	pinned := false
	if i := indexPinned(c.pinned, it); i >= 0 {
		c.pinned = slices.Delete(c.pinned, i, i+1)
	} else {
		c.pinned = truncate(slices.Insert(c.pinned, 0, item.NewPinned(it, c.now())), item.MaxPinned)
		pinned = true
	}
	c.mu.Unlock()

	if err := c.savePinned(ctx); err != nil {
		return pinned, err
	}
	c.notifier.notify()
	return pinned, nil
}

// ClearHistory empties history in memory and in the repository. Pins and
// settings are untouched.
func (c *Coordinator) ClearHistory(ctx context.Context) error {
	c.mu.Lock()
	c.history = nil
	c.mu.Unlock()

	if err := c.clearDurableHistory(ctx); err != nil {
		return err
	}
	c.notifier.notify()
	return nil
}

// SaveSettings validates next and replaces the current settings with it.
// A smaller limit trims history, a rich text change reaches the running
// monitor immediately, and turning RememberHistory off clears the durable
// history.
func (c *Coordinator) SaveSettings(ctx context.Context, next settings.Settings) error {
	if err := next.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSettings, err)
	}
	next = next.Normalize()
	return c.applySettings(ctx, next, true)
}

// ReloadSettings re-reads settings from the repository and applies them
// without writing them back. Unchanged settings produce no signal.
func (c *Coordinator) ReloadSettings(ctx context.Context) error {
	next, err := c.repos.Settings.Load(ctx)
	if err != nil {
		if errors.Is(err, store.ErrMalformed) {
			return fmt.Errorf("%w: %w", ErrInvalidSettings, err)
		}
		return fmt.Errorf("%w: load settings: %w", ErrPersistence, err)
	}
	if err := next.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSettings, err)
	}
	next = next.Normalize()

	c.mu.Lock()
	same := c.settings.Equal(next)
	c.mu.Unlock()
	if same {
		return nil
	}
	c.log.Info("settings reloaded from repository")
	return c.applySettings(ctx, next, false)
}

func (c *Coordinator) applySettings(ctx context.Context, next settings.Settings, persist bool) error {
	c.mu.Lock()
	prev := c.settings
	c.settings = next.Clone()
	limit := next.EffectiveHistoryLimit()
	trimmed := len(c.history) > limit
	c.history = truncate(c.history, limit)
	c.mu.Unlock()

	if prev.CaptureRichText != next.CaptureRichText && c.mon != nil {
		c.mon.UpdateCaptureRichText(next.CaptureRichText)
	}

	var errs []error
	if persist {
		if err := c.saveSettings(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	switch {
	case prev.RememberHistory && !next.RememberHistory:
		errs = append(errs, c.clearDurableHistory(ctx))
	case !prev.RememberHistory && next.RememberHistory, trimmed:
		errs = append(errs, c.saveHistory(ctx))
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}
	c.notifier.notify()
	return nil
}

// StartRuntime starts the clipboard monitor with the coordinator's AddItem
// as its callback. Repeated calls are no-ops.
func (c *Coordinator) StartRuntime() error {
	c.runtimeMu.Lock()
	defer c.runtimeMu.Unlock()

	if c.runtimeActive.Load() {
		return nil
	}
	if c.mon == nil {
		return ErrNoMonitor
	}
	rich := c.Settings().CaptureRichText
	if err := c.mon.Start(c.AddItem, rich); err != nil {
		return err
	}
	c.runtimeActive.Store(true)
	return nil
}

// StopRuntime stops the clipboard monitor. Repeated calls are no-ops. The
// runtime counts as stopped even when the monitor reports a stop timeout;
// StartRuntime then fails until the abandoned poll loop exits.
func (c *Coordinator) StopRuntime() error {
	c.runtimeMu.Lock()
	defer c.runtimeMu.Unlock()

	if !c.runtimeActive.Load() {
		return nil
	}
	c.runtimeActive.Store(false)
	return c.mon.Stop()
}

// RuntimeActive reports whether StartRuntime has succeeded without a
// matching StopRuntime.
func (c *Coordinator) RuntimeActive() bool {
	return c.runtimeActive.Load()
}

// History returns a copy of the history, newest first.
func (c *Coordinator) History() []item.Item {
	c.mu.Lock()
	defer c.mu.Unlock()
	return item.CloneAll(c.history)
}

// Pinned returns a copy of the pinned set, most recently pinned first.
func (c *Coordinator) Pinned() []item.Pinned {
	c.mu.Lock()
	defer c.mu.Unlock()
	return item.ClonePinned(c.pinned)
}

// Settings returns a copy of the current settings.
func (c *Coordinator) Settings() settings.Settings {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settings.Clone()
}

// Find returns the history or pinned item with id.
func (c *Coordinator) Find(id string) (item.Item, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, it := range c.history {
		if it.ID == id {
			return it.Clone(), nil
		}
	}
	for _, p := range c.pinned {
		if p.Item.ID == id {
			return p.Item.Clone(), nil
		}
	}
	return item.Item{}, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// Subscribe returns a channel that receives a signal after each successful
// mutation, and a function that unsubscribes and closes it. Signals
// coalesce: consumers re-read state through the accessors.
func (c *Coordinator) Subscribe() (<-chan struct{}, func()) {
	return c.notifier.subscribe()
}

// Subscribers returns the number of active subscriptions.
func (c *Coordinator) Subscribers() int { return c.notifier.count() }

func (c *Coordinator) saveHistory(ctx context.Context) error {
	c.saveMu.Lock()
	defer c.saveMu.Unlock()

	c.mu.Lock()
	remember := c.settings.RememberHistory
	snap := slices.Clone(c.history)
	c.mu.Unlock()

	if !remember {
		return nil
	}
	if err := c.repos.History.Save(ctx, snap); err != nil {
		c.log.Warn("history not saved; memory and disk may differ until the next save", "err", err)
		return fmt.Errorf("%w: save history: %w", ErrPersistence, err)
	}
	return nil
}

func (c *Coordinator) clearDurableHistory(ctx context.Context) error {
	c.saveMu.Lock()
	defer c.saveMu.Unlock()

	if err := c.repos.History.Clear(ctx); err != nil {
		c.log.Warn("history not cleared on disk", "err", err)
		return fmt.Errorf("%w: clear history: %w", ErrPersistence, err)
	}
	return nil
}

func (c *Coordinator) savePinned(ctx context.Context) error {
	c.saveMu.Lock()
	defer c.saveMu.Unlock()

	c.mu.Lock()
	snap := slices.Clone(c.pinned)
	c.mu.Unlock()

	if err := c.repos.Pinned.Save(ctx, snap); err != nil {
		c.log.Warn("pins not saved; memory and disk may differ until the next save", "err", err)
		return fmt.Errorf("%w: save pinned: %w", ErrPersistence, err)
	}
	return nil
}

func (c *Coordinator) saveSettings(ctx context.Context) error {
	c.saveMu.Lock()
	defer c.saveMu.Unlock()

	c.mu.Lock()
	snap := c.settings.Clone()
	c.mu.Unlock()

	if err := c.repos.Settings.Save(ctx, snap); err != nil {
		c.log.Warn("settings not saved", "err", err)
		return fmt.Errorf("%w: save settings: %w", ErrPersistence, err)
	}
	return nil
}

func indexEquivalent(items []item.Item, it item.Item) int {
	return slices.IndexFunc(items, func(x item.Item) bool { return item.Equivalent(x, it) })
}

func indexPinned(pins []item.Pinned, it item.Item) int {
	return slices.IndexFunc(pins, func(p item.Pinned) bool { return item.Equivalent(p.Item, it) })
}

func truncate[S ~[]E, E any](s S, n int) S {
	if len(s) <= n {
		return s
	}
	clear(s[n:])
	return s[:n]
}
