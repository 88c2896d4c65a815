package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.klb.dev/clipstash/internal/message"
)

func newListCmd() *cobra.Command {
	cmd := newClientCmd("list", "Show clipboard history, newest first", cobra.NoArgs,
		func(cmd *cobra.Command, v *viper.Viper, _ []string) error {
			resp, err := call(cmd.Context(), v, &message.Message{Type: message.TypeList, Limit: v.GetInt("limit")})
			if err != nil {
				return err
			}
			return printEntries(cmd.OutOrStdout(), v, resp.Entries, "History is empty.", false)
		})
	cmd.Flags().IntP("limit", "n", 20, "maximum entries to show (0 = all)")
	return cmd
}

func newPinsCmd() *cobra.Command {
	return newClientCmd("pins", "Show pinned items", cobra.NoArgs,
		func(cmd *cobra.Command, v *viper.Viper, _ []string) error {
			resp, err := call(cmd.Context(), v, &message.Message{Type: message.TypePins})
			if err != nil {
				return err
			}
			return printEntries(cmd.OutOrStdout(), v, resp.Entries, "Nothing pinned.", true)
		})
}

func printEntries(w io.Writer, v *viper.Viper, entries []message.Entry, empty string, pinned bool) error {
	if v.GetBool("json") {
		return printJSON(w, entries)
	}
	if len(entries) == 0 {
		_, err := fmt.Fprintln(w, empty)
		return err
	}

	tw := tabwriter.NewWriter(w, 1, 0, 2, ' ', 0)
	when := "CAPTURED"
	if pinned {
		when = "PINNED"
	}
	_, _ = fmt.Fprintf(tw, "ID\tTYPE\t%s\tSOURCE\tPREVIEW\n", when)
	for _, e := range entries {
		t := e.CapturedAt
		if pinned {
			t = e.PinnedAt
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			shortID(e.ID), e.Type, fmtAge(t), orDash(e.SourceApp), oneLine(e.Preview))
	}
	return tw.Flush()
}

// shortID returns the leading uuid group; the daemon accepts full ids only,
// so commands resolve short ids with resolveID.
func shortID(id string) string {
	if i := strings.IndexByte(id, '-'); i > 0 {
		return id[:i]
	}
	return id
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func fmtAge(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	age := time.Since(t).Round(time.Second)
	switch {
	case age < time.Minute:
		return fmt.Sprintf("%ds ago", int(age.Seconds()))
	case age < time.Hour:
		return fmt.Sprintf("%dm ago", int(age.Minutes()))
	case age < 24*time.Hour:
		return t.Local().Format("15:04:05")
	}
	return t.Local().Format("2006-01-02")
}
