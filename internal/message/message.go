// Package message defines the clipstash control protocol spoken between the
// CLI and a running daemon over the local IPC socket.
//
// All messages are newline-delimited JSON, one request then one response
// per exchange. Binary item payloads are base64 strings inside the JSON.
package message

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.klb.dev/clipstash/internal/item"
	"go.klb.dev/clipstash/internal/monitor"
	"go.klb.dev/clipstash/internal/settings"
)

// Type identifies the kind of message.
type Type string

const (
	TypeList        Type = "LIST"
	TypePins        Type = "PINS"
	TypePin         Type = "PIN"
	TypeDelete      Type = "DELETE"
	TypeClear       Type = "CLEAR"
	TypeSettingsGet Type = "SETTINGS_GET"
	TypeSettingsSet Type = "SETTINGS_SET"
	TypeRestore     Type = "RESTORE"
	TypeStatus      Type = "STATUS"

	TypeOK    Type = "OK"
	TypeError Type = "ERROR"
)

// previewLen bounds Entry.Preview.
const previewLen = 80

// Entry summarizes an item for listing without shipping its payload.
type Entry struct {
	ID         string    `json:"id"`
	Type       item.Type `json:"type"`
	CapturedAt time.Time `json:"captured_at"`
	SourceApp  string    `json:"source_app,omitempty"`
	Preview    string    `json:"preview"`
	Size       int       `json:"size"`
	PinnedAt   time.Time `json:"pinned_at,omitzero"`
}

// EntryOf summarizes it.
func EntryOf(it item.Item) Entry {
	size := len(it.Text) + len(it.Binary) + len(it.FilePath)
	if it.Rich != nil {
		size += len(it.Rich.Plain) + len(it.Rich.RTF) + len(it.Rich.HTML)
	}
	return Entry{
		ID:         it.ID,
		Type:       it.Type,
		CapturedAt: it.CapturedAt,
		SourceApp:  it.SourceApp,
		Preview:    it.Preview(previewLen),
		Size:       size,
	}
}

// PinnedEntryOf summarizes a pin.
func PinnedEntryOf(p item.Pinned) Entry {
	e := EntryOf(p.Item)
	e.PinnedAt = p.PinnedAt
	return e
}

// Status is the daemon's STATUS payload.
type Status struct {
	Version       string        `json:"version"`
	PID           int           `json:"pid"`
	StartedAt     time.Time     `json:"started_at"`
	Store         string        `json:"store"`
	DataDir       string        `json:"data_dir"`
	Encrypted     bool          `json:"encrypted"`
	RuntimeActive bool          `json:"runtime_active"`
	History       int           `json:"history"`
	HistoryLimit  int           `json:"history_limit"`
	Pinned        int           `json:"pinned"`
	Incognito     bool          `json:"incognito"`
	Monitor       monitor.Stats `json:"monitor"`
	Degraded      []string      `json:"degraded,omitempty"`
}

// Message is the top-level wire envelope.
type Message struct {
	Type Type `json:"type"`

	// PIN, DELETE, RESTORE: the target item.
	ID string `json:"id,omitempty"`

	// LIST: maximum entries to return; zero means all.
	Limit int `json:"limit,omitempty"`

	// SETTINGS_SET request, SETTINGS_GET response.
	Settings *settings.Settings `json:"settings,omitempty"`

	// OK payloads.
	Entries []Entry `json:"entries,omitempty"`
	Pinned  *bool   `json:"pinned,omitempty"`
	Status  *Status `json:"status,omitempty"`

	// ERROR
	Error      string `json:"error,omitempty"`
	UserFacing bool   `json:"user_facing,omitempty"`
}

// ErrRemote is wrapped by Err for ERROR responses.
var ErrRemote = errors.New("daemon error")

// OK returns an empty success response.
func OK() *Message { return &Message{Type: TypeOK} }

// Failure returns an ERROR response for err.
func Failure(err error, userFacing bool) *Message {
	return &Message{Type: TypeError, Error: err.Error(), UserFacing: userFacing}
}

// Err returns nil for non-error messages, or an error wrapping ErrRemote.
func (m *Message) Err() error {
	if m.Type != TypeError {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrRemote, m.Error)
}

// Encode serialises the message to JSON without a trailing newline.
func (m *Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// Decode deserialises a message from raw JSON bytes.
func Decode(b []byte) (*Message, error) {
	var m Message
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("message decode: %w", err)
	}
	if m.Type == "" {
		return nil, fmt.Errorf("message decode: missing type")
	}
	return &m, nil
}
