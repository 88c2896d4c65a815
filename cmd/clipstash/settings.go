package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.klb.dev/clipstash/internal/message"
	"go.klb.dev/clipstash/internal/settings"
)

func newSettingsCmd() *cobra.Command {
	cmd := newClientCmd("settings", "Show or change capture settings", cobra.NoArgs, runSettings)
	cmd.Long = `Without flags, prints the daemon's current settings. Any flag given is
applied on top of them and the result is saved.

Excluded applications match the clipboard owner's executable name,
case-insensitively and ignoring a trailing ".exe".`

	f := cmd.Flags()
	f.Bool("remember-history", true, "persist history across restarts")
	f.Bool("history-limit-enabled", true, "cap history at --history-limit entries")
	f.Int("history-limit", settings.DefaultHistoryLimit, fmt.Sprintf("history size (1-%d)", settings.MaxHistory))
	f.Bool("incognito", false, "stop recording clipboard changes")
	f.Bool("capture-rich-text", true, "keep RTF/HTML formatting when it is significant")
	f.Bool("auto-paste", false, "paste after restoring an item")
	f.StringSlice("exclude", nil, "add applications to the exclusion list")
	f.StringSlice("include", nil, "remove applications from the exclusion list")
	return cmd
}

func runSettings(cmd *cobra.Command, v *viper.Viper, _ []string) error {
	resp, err := call(cmd.Context(), v, &message.Message{Type: message.TypeSettingsGet})
	if err != nil {
		return err
	}
	cur := *resp.Settings

	next, changed := applySettingsFlags(cmd, v, cur)
	if changed {
		resp, err = call(cmd.Context(), v, &message.Message{Type: message.TypeSettingsSet, Settings: &next})
		if err != nil {
			return err
		}
		cur = *resp.Settings
	}

	if v.GetBool("json") {
		return printJSON(cmd.OutOrStdout(), cur)
	}
	return printSettings(cmd.OutOrStdout(), cur)
}

// applySettingsFlags overlays explicitly set flags onto s.
func applySettingsFlags(cmd *cobra.Command, v *viper.Viper, s settings.Settings) (settings.Settings, bool) {
	f := cmd.Flags()
	s = s.Clone()
	changed := false
	bools := map[string]*bool{
		"remember-history":      &s.RememberHistory,
		"history-limit-enabled": &s.HistoryLimitEnabled,
		"incognito":             &s.Incognito,
		"capture-rich-text":     &s.CaptureRichText,
		"auto-paste":            &s.AutoPaste,
	}
	for name, dst := range bools {
		if f.Changed(name) {
			*dst = v.GetBool(name)
			changed = true
		}
	}
	if f.Changed("history-limit") {
		s.HistoryLimit = v.GetInt("history-limit")
		changed = true
	}
	if f.Changed("exclude") {
		s.ExcludedApps = append(s.ExcludedApps, v.GetStringSlice("exclude")...)
		changed = true
	}
	if f.Changed("include") {
		drop := settings.Settings{ExcludedApps: v.GetStringSlice("include")}
		kept := s.ExcludedApps[:0]
		for _, app := range s.ExcludedApps {
			if !drop.IsExcluded(app) {
				kept = append(kept, app)
			}
		}
		s.ExcludedApps = kept
		changed = true
	}
	return s, changed
}

func printSettings(w io.Writer, s settings.Settings) error {
	tw := tabwriter.NewWriter(w, 1, 0, 2, ' ', 0)
	limit := "off"
	if s.HistoryLimitEnabled {
		limit = fmt.Sprint(s.HistoryLimit)
	}
	_, _ = fmt.Fprintf(tw, "Remember history:\t%t\n", s.RememberHistory)
	_, _ = fmt.Fprintf(tw, "History limit:\t%s (effective %d)\n", limit, s.EffectiveHistoryLimit())
	_, _ = fmt.Fprintf(tw, "Incognito:\t%t\n", s.Incognito)
	_, _ = fmt.Fprintf(tw, "Capture rich text:\t%t\n", s.CaptureRichText)
	_, _ = fmt.Fprintf(tw, "Auto paste:\t%t\n", s.AutoPaste)
	_, _ = fmt.Fprintf(tw, "Excluded apps:\t%s\n", orDash(strings.Join(s.ExcludedApps, ", ")))
	return tw.Flush()
}
