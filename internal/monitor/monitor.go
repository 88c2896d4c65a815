// Package monitor implements the clipboard change monitor.
//
// The OS clipboard has no change event that is reliable across formats, so
// the monitor polls the backend's generation counter on a fixed interval.
// When the generation moves it opens the clipboard (retrying briefly while
// another process holds it), extracts the highest-priority format present,
// and hands each resulting item to the registered callback.
//
// A bad tick is never fatal: read failures, malformed payloads and callback
// errors are logged and the loop simply carries on with the next tick.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"go.klb.dev/clipstash/internal/clip"
	"go.klb.dev/clipstash/internal/item"
)

const (
	DefaultInterval    = 250 * time.Millisecond
	DefaultRetries     = 5
	DefaultRetryDelay  = 25 * time.Millisecond
	DefaultStopTimeout = 3 * time.Second
)

var (
	// ErrStartFailed is returned by Start when polling cannot begin.
	ErrStartFailed = errors.New("monitor start failed")

	// ErrInvalidOperation is returned by Stop when teardown fails unexpectedly.
	ErrInvalidOperation = errors.New("invalid monitor operation")

	// ErrStopTimeout is returned by Stop when the poll loop does not exit in
	// time. It indicates a stuck callback or backend.
	ErrStopTimeout = errors.New("monitor did not stop in time")

	// ErrClipboardReadFailed is reported when the clipboard stayed busy for
	// every retry of a tick.
	ErrClipboardReadFailed = errors.New("clipboard read failed")
)

// Callback receives each captured item. The context is detached from the
// monitor's lifetime so that a Stop never aborts a half-finished save.
type Callback func(ctx context.Context, it item.Item) error

// Stats is a point-in-time view of monitor activity.
type Stats struct {
	Running          bool      `json:"running"`
	Backend          string    `json:"backend"`
	Ticks            uint64    `json:"ticks"`
	Changes          uint64    `json:"changes"`
	Captured         uint64    `json:"captured"`
	Failures         uint64    `json:"failures"`
	CallbackFailures uint64    `json:"callback_failures"`
	LastError        string    `json:"last_error,omitempty"`
	LastCapture      time.Time `json:"last_capture,omitzero"`
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithInterval sets the poll interval.
func WithInterval(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.interval = d
		}
	}
}

// WithRetry sets how many times a tick tries to open a busy clipboard and
// the fixed delay between attempts.
func WithRetry(attempts int, delay time.Duration) Option {
	return func(m *Monitor) {
		if attempts > 0 {
			m.retries = attempts
		}
		if delay >= 0 {
			m.retryDelay = delay
		}
	}
}

// WithStopTimeout bounds how long Stop waits for the loop to exit.
func WithStopTimeout(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.stopTimeout = d
		}
	}
}

// WithLogger sets the logger; the default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(m *Monitor) {
		if l != nil {
			m.log = l
		}
	}
}

// WithStat replaces the function used to check dropped file paths.
func WithStat(stat func(string) (os.FileInfo, error)) Option {
	return func(m *Monitor) {
		if stat != nil {
			m.ext.stat = stat
		}
	}
}

// WithClock replaces the capture timestamp source.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) {
		if now != nil {
			m.ext.now = now
		}
	}
}

// Monitor polls a clipboard for changes.
type Monitor struct {
	cb          clip.Clipboard
	ext         extractor
	log         *slog.Logger
	interval    time.Duration
	retries     int
	retryDelay  time.Duration
	stopTimeout time.Duration

	richText atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	statsMu sync.Mutex
	stats   Stats
}

// New returns a stopped monitor for cb.
func New(cb clip.Clipboard, opts ...Option) *Monitor {
	m := &Monitor{
		cb:          cb,
		ext:         extractor{stat: os.Stat, now: time.Now},
		log:         slog.Default(),
		interval:    DefaultInterval,
		retries:     DefaultRetries,
		retryDelay:  DefaultRetryDelay,
		stopTimeout: DefaultStopTimeout,
	}
	for _, o := range opts {
		o(m)
	}
	m.ext.log = m.log
	m.stats.Backend = cb.Name()
	return m
}

// Start begins polling and delivers captured items to callback. It is a
// no-op when the monitor is already running. The clipboard's current
// generation is taken as the baseline, so content present before Start is
// not captured.
//
// After a Stop that timed out, Start fails with ErrStartFailed until the
// abandoned loop has exited; only one poll loop ever runs.
func (m *Monitor) Start(callback Callback, captureRichText bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cancel != nil {
		return nil
	}
	if m.done != nil {
		select {
		case <-m.done:
			m.done = nil
		default:
			return fmt.Errorf("%w: previous poll loop has not exited", ErrStartFailed)
		}
	}
	if callback == nil {
		return fmt.Errorf("%w: nil callback", ErrStartFailed)
	}
	baseline, err := m.cb.Sequence()
	if err != nil {
		return fmt.Errorf("%w: read clipboard generation: %w", ErrStartFailed, err)
	}

	m.richText.Store(captureRichText)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	m.cancel, m.done = cancel, done
	m.setRunning(true)

	go m.run(ctx, done, callback, baseline)

	m.log.Info("clipboard monitor started",
		"backend", m.cb.Name(),
		"interval", m.interval,
		"rich_text", captureRichText,
	)
	return nil
}

// Stop cancels polling and waits up to the stop timeout for the loop to
// exit. It is a no-op when the monitor is not running. The lock is not
// held while waiting.
func (m *Monitor) Stop() (err error) {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel = nil
	m.mu.Unlock()
	if cancel == nil {
		return nil
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrInvalidOperation, r)
		}
	}()

	cancel()
	timer := time.NewTimer(m.stopTimeout)
	defer timer.Stop()
	select {
	case <-done:
		m.mu.Lock()
		if m.done == done {
			m.done = nil
		}
		m.mu.Unlock()
		m.log.Info("clipboard monitor stopped")
		return nil
	case <-timer.C:
		m.log.Error("clipboard monitor stuck, abandoning poll loop", "timeout", m.stopTimeout)
		return ErrStopTimeout
	}
}

// UpdateCaptureRichText changes whether rich content is captured. The next
// tick observes the new value; no restart is needed.
func (m *Monitor) UpdateCaptureRichText(enabled bool) {
	if m.richText.Swap(enabled) != enabled {
		m.log.Debug("rich text capture updated", "enabled", enabled)
	}
}

// CaptureRichText reports the current rich text flag.
func (m *Monitor) CaptureRichText() bool { return m.richText.Load() }

// Running reports whether a poll loop is alive, including one abandoned by
// a timed-out Stop.
func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		return true
	}
	if m.done == nil {
		return false
	}
	select {
	case <-m.done:
		return false
	default:
		return true
	}
}

// Stats returns a snapshot of the activity counters.
func (m *Monitor) Stats() Stats {
	m.statsMu.Lock()
	defer m.statsMu.Unlock()
	return m.stats
}

func (m *Monitor) setRunning(v bool) {
	m.statsMu.Lock()
	m.stats.Running = v
	m.statsMu.Unlock()
}

func (m *Monitor) record(f func(*Stats)) {
	m.statsMu.Lock()
	f(&m.stats)
	m.statsMu.Unlock()
}

func (m *Monitor) run(ctx context.Context, done chan struct{}, callback Callback, last uint64) {
	defer close(done)
	defer m.setRunning(false)

	t := time.NewTicker(m.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			last = m.tick(ctx, callback, last)
		}
	}
}

// tick runs one poll iteration and returns the generation to compare
// against next time. A busy clipboard leaves the generation unconsumed so
// the change is picked up on a later tick.
func (m *Monitor) tick(ctx context.Context, callback Callback, last uint64) (next uint64) {
	next = last
	rich := m.richText.Load()
	m.record(func(s *Stats) { s.Ticks++ })

	defer func() {
		if r := recover(); r != nil {
			m.fail(fmt.Errorf("clipboard tick panic: %v", r))
		}
	}()

	seq, err := m.cb.Sequence()
	if err != nil {
		m.fail(fmt.Errorf("read clipboard generation: %w", err))
		return last
	}
	if seq == last {
		return last
	}
	m.record(func(s *Stats) { s.Changes++ })

	items, err := m.capture(rich)
	if err != nil {
		m.fail(err)
		if errors.Is(err, ErrClipboardReadFailed) {
			return last
		}
		return seq
	}

	for _, it := range items {
		if err := callback(context.WithoutCancel(ctx), it); err != nil {
			m.log.Warn("clipboard capture callback failed", "type", it.Type, "err", err)
			m.record(func(s *Stats) { s.CallbackFailures++ })
			continue
		}
		m.record(func(s *Stats) {
			s.Captured++
			s.LastCapture = it.CapturedAt
		})
	}
	return seq
}

func (m *Monitor) fail(err error) {
	m.log.Warn("clipboard capture failed", "err", err)
	m.record(func(s *Stats) {
		s.Failures++
		s.LastError = err.Error()
	})
}

// capture opens the clipboard, extracts its contents and always closes it.
func (m *Monitor) capture(rich bool) (items []item.Item, err error) {
	s, err := m.acquire()
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := s.Close(); cerr != nil {
			m.log.Warn("clipboard close failed", "err", cerr)
		}
	}()
	return m.ext.extract(s, rich)
}

// acquire opens the clipboard, retrying with a fixed delay while it is held
// by another process. The wait is not cancellable: a tick always finishes
// its read attempt before the loop observes Stop.
func (m *Monitor) acquire() (clip.Session, error) {
	var lastErr error
	for attempt := 1; attempt <= m.retries; attempt++ {
		s, err := m.cb.Open()
		if err == nil {
			return s, nil
		}
		lastErr = err
		if attempt < m.retries {
			time.Sleep(m.retryDelay)
		}
	}
	return nil, fmt.Errorf("%w after %d attempts: %w", ErrClipboardReadFailed, m.retries, lastErr)
}
