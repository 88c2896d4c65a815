// Package daemon runs clipstash: it opens the configured store, loads state,
// starts the clipboard monitor and serves the control socket until its
// context is cancelled.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"go.klb.dev/clipstash/internal/clip"
	"go.klb.dev/clipstash/internal/crypto"
	"go.klb.dev/clipstash/internal/ipc"
	"go.klb.dev/clipstash/internal/monitor"
	"go.klb.dev/clipstash/internal/state"
	"go.klb.dev/clipstash/internal/store/filestore"
	"go.klb.dev/clipstash/internal/store/sqlitestore"
	"go.klb.dev/clipstash/internal/watch"
	"go.klb.dev/clipstash/internal/wire"
)

// Store backends.
const (
	StoreFile   = "file"
	StoreSQLite = "sqlite"
)

// ErrUnknownStore is returned by Open for an unrecognised Config.Store.
var ErrUnknownStore = errors.New("unknown store backend")

// Config is the daemon's runtime configuration.
type Config struct {
	DataDir       string
	Store         string // StoreFile or StoreSQLite
	Passphrase    string // seals history, pins and IPC traffic when set
	PollInterval  time.Duration
	WatchSettings bool
	SocketPath    string
	Version       string
}

// DefaultDataDir is the per-user clipstash directory.
func DefaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "clipstash")
	}
	return filepath.Join(os.TempDir(), "clipstash")
}

// Option configures a Daemon.
type Option func(*Daemon)

// WithClipboard replaces the system clipboard, mainly for tests.
func WithClipboard(c clip.Clipboard) Option {
	return func(d *Daemon) { d.clip = c }
}

// WithLogger sets the logger; the default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(d *Daemon) {
		if l != nil {
			d.log = l
		}
	}
}

// Daemon owns every long-lived clipstash component.
type Daemon struct {
	cfg     Config
	log     *slog.Logger
	clip    clip.Clipboard
	mon     *monitor.Monitor
	coord   *state.Coordinator
	cipher  *crypto.Cipher
	started time.Time

	settingsPath string // empty when the backend has no settings file
	closeStore   func() error
	closeOnce    sync.Once

	mu       sync.Mutex
	degraded []string
}

// Open builds the daemon and loads persisted state. Nothing runs until Run.
func Open(ctx context.Context, cfg Config, opts ...Option) (*Daemon, error) {
	if cfg.DataDir == "" {
		cfg.DataDir = DefaultDataDir()
	}
	if cfg.Store == "" {
		cfg.Store = StoreFile
	}
	if cfg.SocketPath == "" {
		cfg.SocketPath = ipc.SocketPath()
	}

	d := &Daemon{cfg: cfg, log: slog.Default(), started: time.Now()}
	for _, o := range opts {
		o(d)
	}
	if d.clip == nil {
		d.clip = clip.New()
	}

	if cfg.Passphrase != "" {
		c, err := crypto.New(cfg.Passphrase)
		if err != nil {
			return nil, err
		}
		d.cipher = c
	}

	repos, err := d.openStore(ctx)
	if err != nil {
		return nil, err
	}

	monOpts := []monitor.Option{monitor.WithLogger(d.log)}
	if cfg.PollInterval > 0 {
		monOpts = append(monOpts, monitor.WithInterval(cfg.PollInterval))
	}
	d.mon = monitor.New(d.clip, monOpts...)
	d.coord = state.New(repos, state.WithMonitor(d.mon), state.WithLogger(d.log))

	if err := d.coord.Initialize(ctx); err != nil {
		_ = d.Close()
		return nil, fmt.Errorf("load state: %w", err)
	}
	return d, nil
}

func (d *Daemon) openStore(ctx context.Context) (state.Repositories, error) {
	switch d.cfg.Store {
	case StoreFile:
		var opts []filestore.Option
		if d.cipher != nil {
			opts = append(opts, filestore.WithCipher(d.cipher))
		}
		s, err := filestore.New(d.cfg.DataDir, opts...)
		if err != nil {
			return state.Repositories{}, err
		}
		d.settingsPath = s.SettingsPath()
		d.closeStore = s.Close
		return state.Repositories{History: s.History(), Pinned: s.Pinned(), Settings: s.Settings()}, nil

	case StoreSQLite:
		if err := os.MkdirAll(d.cfg.DataDir, 0o700); err != nil {
			return state.Repositories{}, fmt.Errorf("sqlite store: %w", err)
		}
		var opts []sqlitestore.Option
		if d.cipher != nil {
			opts = append(opts, sqlitestore.WithCipher(d.cipher))
		}
		s, err := sqlitestore.Open(ctx, filepath.Join(d.cfg.DataDir, sqlitestore.DefaultFile), opts...)
		if err != nil {
			return state.Repositories{}, err
		}
		d.closeStore = s.Close
		return state.Repositories{History: s.History(), Pinned: s.Pinned(), Settings: s.Settings()}, nil
	}
	return state.Repositories{}, fmt.Errorf("%w %q", ErrUnknownStore, d.cfg.Store)
}

// Coordinator returns the daemon's state coordinator.
func (d *Daemon) Coordinator() *state.Coordinator { return d.coord }

// Run starts capturing and serves the control socket until ctx is
// cancelled, then stops the monitor and closes the store. A failing IPC
// listener or settings watcher degrades the daemon rather than stopping it.
func (d *Daemon) Run(ctx context.Context) error {
	defer func() {
		if err := d.Close(); err != nil {
			d.log.Warn("closing store failed", "err", err)
		}
	}()

	if err := d.coord.StartRuntime(); err != nil {
		return fmt.Errorf("start clipboard monitor: %w", err)
	}
	d.log.Info("clipstash daemon started",
		"version", d.cfg.Version,
		"backend", d.clip.Name(),
		"store", d.cfg.Store,
		"data_dir", d.cfg.DataDir,
		"encrypted", d.cipher != nil,
	)

	g, gctx := errgroup.WithContext(ctx)

	if ln, err := ipc.Listen(d.cfg.SocketPath); err != nil {
		d.degrade("ipc", err)
	} else {
		d.log.Info("IPC socket listening", "path", d.cfg.SocketPath)
		g.Go(func() error { return d.serve(gctx, ln) })
	}

	switch {
	case !d.cfg.WatchSettings:
	case d.settingsPath == "":
		d.log.Info("settings watcher unavailable for store", "store", d.cfg.Store)
	default:
		w := watch.New(d.settingsPath, d.coord.ReloadSettings, watch.WithLogger(d.log))
		g.Go(func() error {
			if err := w.Run(gctx); err != nil {
				d.degrade("settings watcher", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		d.logChanges(gctx)
		return nil
	})

	err := g.Wait()

	if stopErr := d.coord.StopRuntime(); stopErr != nil {
		d.log.Warn("stopping clipboard monitor failed", "err", stopErr)
	}
	d.log.Info("clipstash daemon stopped")
	return err
}

// Close releases the store. Run calls it on return; call it directly only
// for a daemon that was opened but never run.
func (d *Daemon) Close() error {
	var err error
	d.closeOnce.Do(func() { err = d.closeStore() })
	return err
}

// logChanges reports state changes at debug level.
func (d *Daemon) logChanges(ctx context.Context) {
	ch, unsubscribe := d.coord.Subscribe()
	defer unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ch:
			d.log.Debug("state changed",
				"history", len(d.coord.History()),
				"pinned", len(d.coord.Pinned()),
			)
		}
	}
}

func (d *Daemon) degrade(component string, err error) {
	d.log.Warn("running degraded", "component", component, "err", err)
	d.mu.Lock()
	d.degraded = append(d.degraded, component+": "+err.Error())
	d.mu.Unlock()
}

func (d *Daemon) degradedList() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.degraded...)
}

// serve accepts control connections until ctx is cancelled.
func (d *Daemon) serve(ctx context.Context, ln net.Listener) error {
	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()

	var wg sync.WaitGroup
	defer wg.Wait()

	var opts []wire.Option
	if d.cipher != nil {
		opts = append(opts, wire.WithCipher(d.cipher))
	}
	for {
		nc, err := ln.Accept()
		if err != nil {
			if ctx.Err() == nil {
				d.degrade("ipc", fmt.Errorf("accept: %w", err))
			}
			return nil
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.handleConn(ctx, wire.New(nc, opts...))
		}()
	}
}

// idleTimeout closes control connections that send nothing.
const idleTimeout = 30 * time.Second

func (d *Daemon) handleConn(ctx context.Context, c *wire.Conn) {
	defer c.Close()
	stop := context.AfterFunc(ctx, func() { _ = c.Close() })
	defer stop()

	for {
		c.SetReadDeadline(idleTimeout)
		req, err := c.ReadMsg()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) && ctx.Err() == nil {
				d.log.Debug("ipc connection closed", "err", err)
			}
			return
		}
		resp := d.Handle(ctx, req)
		if err := c.WriteMsg(resp); err != nil {
			d.log.Debug("ipc write failed", "type", req.Type, "err", err)
			return
		}
	}
}
