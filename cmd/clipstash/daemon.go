package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.klb.dev/clipstash/internal/daemon"
	"go.klb.dev/clipstash/internal/ipc"
	"go.klb.dev/clipstash/internal/monitor"
)

func newDaemonCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Capture the clipboard and serve the control socket",
		Long: `Starts the clipboard monitor, loads history, pins and settings from the data
directory and listens for CLI commands on the local control socket.

With --passphrase (or CLIPSTASH_PASSPHRASE) history and pins are encrypted
at rest and control traffic is sealed; CLI commands need the same passphrase.
Settings stay plaintext so they can be edited by hand; with --watch-settings
edits are applied without a restart.

Precedence (lowest → highest): defaults → config file → CLIPSTASH_* env vars → flags`,
		Args:    cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE:    func(cmd *cobra.Command, _ []string) error { return runDaemon(cmd.Context(), v) },
	}

	f := cmd.Flags()
	f.String("data-dir", daemon.DefaultDataDir(), "directory for history, pins and settings")
	f.String("store", daemon.StoreFile, "storage backend: file|sqlite")
	f.String("passphrase", "", "encrypt history, pins and control traffic (empty = plaintext)")
	f.Duration("poll-interval", monitor.DefaultInterval, "clipboard change poll interval")
	f.Bool("watch-settings", true, "reload the settings file when it changes on disk")
	f.String("socket", ipc.SocketPath(), "control socket path")
	addLoggingFlags(cmd)
	addConfigFlag(cmd)

	return cmd
}

func runDaemon(parent context.Context, v *viper.Viper) error {
	setupLogging(v)

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	d, err := daemon.Open(ctx, daemon.Config{
		DataDir:       v.GetString("data-dir"),
		Store:         v.GetString("store"),
		Passphrase:    v.GetString("passphrase"),
		PollInterval:  v.GetDuration("poll-interval"),
		WatchSettings: v.GetBool("watch-settings"),
		SocketPath:    v.GetString("socket"),
		Version:       Version,
	})
	if err != nil {
		return err
	}
	return d.Run(ctx)
}
