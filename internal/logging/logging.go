// Package logging configures the global slog logger for clipstash.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/pwntr/tinter"

	"go.klb.dev/clipstash/internal/item"
)

// Format selects the log output format.
type Format string

const (
	FormatAuto Format = "auto"
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// previewLen bounds the text logged for an item at DEBUG.
const previewLen = 120

// ParseFormat converts a string to a Format, returning FormatAuto for unknown values.
func ParseFormat(s string) Format {
	switch strings.ToLower(s) {
	case "text", "tint", "human":
		return FormatText
	case "json":
		return FormatJSON
	default:
		return FormatAuto
	}
}

// ParseLevel converts a string to a slog.Level, defaulting to Info.
func ParseLevel(s string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// IsTTY reports whether w is a terminal.
func IsTTY(w io.Writer) bool {
	if f, ok := w.(*os.File); ok {
		return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return false
}

// New returns a logger writing to w: colourised via tinter on a terminal
// (or when FormatText is forced), JSON otherwise.
func New(w io.Writer, format Format, level slog.Level) *slog.Logger {
	useTint := format == FormatText || (format == FormatAuto && IsTTY(w))

	var h slog.Handler
	if useTint {
		h = tinter.NewHandler(w, &tinter.Options{
			Level:      level,
			TimeFormat: "15:04:05.000",
		})
	} else {
		h = slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level: level,
		})
	}
	return slog.New(h)
}

// Setup configures the global slog logger on stderr. Call once after
// flag/viper parsing.
func Setup(format Format, level slog.Level) {
	slog.SetDefault(New(os.Stderr, format, level))
}

// LogItem logs a clipboard event at INFO (type, source app) and, when
// enabled, a DEBUG line with a short preview of the payload. Binary
// payloads log their size only.
func LogItem(l *slog.Logger, event string, it item.Item) {
	if l == nil {
		l = slog.Default()
	}
	l.Info(event, "id", it.ID, "type", it.Type, "source", it.SourceApp)

	if !l.Enabled(context.Background(), slog.LevelDebug) {
		return
	}
	switch it.Type {
	case item.TypeImage:
		l.Debug("clipboard item", "id", it.ID, "type", it.Type, "size_bytes", len(it.Binary))
	default:
		l.Debug("clipboard item", "id", it.ID, "type", it.Type, "preview", it.Preview(previewLen))
	}
}
