package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.klb.dev/clipstash/internal/message"
)

func newStatusCmd() *cobra.Command {
	cmd := newClientCmd("status", "Show daemon status", cobra.NoArgs,
		func(cmd *cobra.Command, v *viper.Viper, _ []string) error {
			resp, err := call(cmd.Context(), v, &message.Message{Type: message.TypeStatus})
			if err != nil {
				return err
			}
			if v.GetBool("json") {
				return printJSON(cmd.OutOrStdout(), resp.Status)
			}
			return printStatus(cmd.OutOrStdout(), v.GetString("socket"), resp.Status)
		})
	cmd.Long = `Displays the running daemon's version, storage, capture counters and any
components running degraded (for example a settings watcher that failed).`
	return cmd
}

func printStatus(w io.Writer, socket string, st *message.Status) error {
	tw := tabwriter.NewWriter(w, 1, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(tw, "Version:\t%s (pid %d)\n", st.Version, st.PID)
	_, _ = fmt.Fprintf(tw, "Socket:\t%s\n", socket)
	_, _ = fmt.Fprintf(tw, "Up since:\t%s (%s)\n", st.StartedAt.UTC().Format(time.RFC3339), fmtAge(st.StartedAt))
	_, _ = fmt.Fprintf(tw, "Store:\t%s in %s (encrypted: %t)\n", st.Store, st.DataDir, st.Encrypted)
	_, _ = fmt.Fprintf(tw, "Capturing:\t%t (incognito: %t)\n", st.RuntimeActive, st.Incognito)
	_, _ = fmt.Fprintf(tw, "Clipboard:\t%s\n", st.Monitor.Backend)
	_, _ = fmt.Fprintf(tw, "History:\t%d / %d\n", st.History, st.HistoryLimit)
	_, _ = fmt.Fprintf(tw, "Pinned:\t%d\n", st.Pinned)
	_, _ = fmt.Fprintf(tw, "Changes seen:\t%d (captured %d, failed %d, rejected %d)\n",
		st.Monitor.Changes, st.Monitor.Captured, st.Monitor.Failures, st.Monitor.CallbackFailures)
	if !st.Monitor.LastCapture.IsZero() {
		_, _ = fmt.Fprintf(tw, "Last capture:\t%s\n", fmtAge(st.Monitor.LastCapture))
	}
	if st.Monitor.LastError != "" {
		_, _ = fmt.Fprintf(tw, "Last error:\t%s\n", st.Monitor.LastError)
	}
	for _, d := range st.Degraded {
		_, _ = fmt.Fprintf(tw, "Degraded:\t%s\n", d)
	}
	return tw.Flush()
}
