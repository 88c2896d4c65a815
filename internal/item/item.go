// Package item defines the clipboard records that clipstash captures, stores
// and pins.
//
// An Item is a value: it is built once by the monitor, never mutated, and
// copied (Clone) whenever it crosses an ownership boundary. Exactly one
// primary payload field is populated per Type:
//
//	text, code, url, email, phone, json, color → Text
//	image                                      → Binary (DIB or PNG bytes)
//	file                                       → FilePath
//	rich_text                                  → Rich
package item

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Type is the semantic classification of an item.
type Type string

const (
	TypeText     Type = "text"
	TypeCode     Type = "code"
	TypeURL      Type = "url"
	TypeEmail    Type = "email"
	TypePhone    Type = "phone"
	TypeJSON     Type = "json"
	TypeColor    Type = "color"
	TypeImage    Type = "image"
	TypeFile     Type = "file"
	TypeRichText Type = "rich_text"
)

// MaxPinned is the hard cap on the number of pinned items.
const MaxPinned = 25

// ErrInvalid is returned by Validate for items that break the one-payload rule.
var ErrInvalid = errors.New("invalid clipboard item")

// IsText reports whether t carries its payload in Item.Text.
func (t Type) IsText() bool {
	switch t {
	case TypeText, TypeCode, TypeURL, TypeEmail, TypePhone, TypeJSON, TypeColor:
		return true
	}
	return false
}

// Valid reports whether t is a known type.
func (t Type) Valid() bool {
	return t.IsText() || t == TypeImage || t == TypeFile || t == TypeRichText
}

// RichText is formatted clipboard content with its plain-text fallback.
type RichText struct {
	Plain string `json:"plain"`
	RTF   []byte `json:"rtf,omitempty"`
	HTML  []byte `json:"html,omitempty"`
}

// Item is one captured clipboard record.
type Item struct {
	ID         string    `json:"id"`
	Type       Type      `json:"type"`
	CapturedAt time.Time `json:"captured_at"`

	Text     string    `json:"text,omitempty"`
	Binary   []byte    `json:"binary,omitempty"`
	FilePath string    `json:"file_path,omitempty"`
	Rich     *RichText `json:"rich,omitempty"`

	// SourceApp is the executable name of the clipboard owner, e.g. "code.exe".
	SourceApp  string `json:"source_app,omitempty"`
	SourcePath string `json:"source_path,omitempty"`
}

// Source identifies the application that owned the clipboard at capture.
type Source struct {
	App  string
	Path string
}

func newItem(t Type, src Source, now time.Time) Item {
	return Item{
		ID:         uuid.NewString(),
		Type:       t,
		CapturedAt: now.UTC(),
		SourceApp:  src.App,
		SourcePath: src.Path,
	}
}

// NewText returns a textual item of type t. t must satisfy Type.IsText.
func NewText(t Type, text string, src Source, now time.Time) Item {
	it := newItem(t, src, now)
	it.Text = text
	return it
}

// NewImage returns an image item holding a copy of data.
func NewImage(data []byte, src Source, now time.Time) Item {
	it := newItem(TypeImage, src, now)
	it.Binary = bytes.Clone(data)
	return it
}

// NewFile returns a file item referencing path.
func NewFile(path string, src Source, now time.Time) Item {
	it := newItem(TypeFile, src, now)
	it.FilePath = path
	return it
}

// NewRichText returns a rich-text item. rtf and html are copied.
func NewRichText(plain string, rtf, html []byte, src Source, now time.Time) Item {
	it := newItem(TypeRichText, src, now)
	it.Rich = &RichText{
		Plain: plain,
		RTF:   bytes.Clone(rtf),
		HTML:  bytes.Clone(html),
	}
	return it
}

// Validate checks that the item has an id, a known type and exactly the
// payload field its type requires.
func (it Item) Validate() error {
	if it.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalid)
	}
	if !it.Type.Valid() {
		return fmt.Errorf("%w: unknown type %q", ErrInvalid, it.Type)
	}

	populated := 0
	if it.Text != "" {
		populated++
	}
	if len(it.Binary) > 0 {
		populated++
	}
	if it.FilePath != "" {
		populated++
	}
	if it.Rich != nil {
		populated++
	}
	if populated != 1 {
		return fmt.Errorf("%w: %s item has %d payloads", ErrInvalid, it.Type, populated)
	}

	var ok bool
	switch {
	case it.Type.IsText():
		ok = it.Text != ""
	case it.Type == TypeImage:
		ok = len(it.Binary) > 0
	case it.Type == TypeFile:
		ok = it.FilePath != ""
	case it.Type == TypeRichText:
		ok = it.Rich != nil && it.Rich.Plain != ""
	}
	if !ok {
		return fmt.Errorf("%w: payload does not match type %s", ErrInvalid, it.Type)
	}
	return nil
}

// Clone returns a deep copy of it.
func (it Item) Clone() Item {
	out := it
	out.Binary = bytes.Clone(it.Binary)
	if it.Rich != nil {
		r := *it.Rich
		r.RTF = bytes.Clone(it.Rich.RTF)
		r.HTML = bytes.Clone(it.Rich.HTML)
		out.Rich = &r
	}
	return out
}

// Preview returns a short single-line description of the payload.
func (it Item) Preview(max int) string {
	var s string
	switch {
	case it.Type.IsText():
		s = it.Text
	case it.Type == TypeRichText && it.Rich != nil:
		s = it.Rich.Plain
	case it.Type == TypeFile:
		s = it.FilePath
	case it.Type == TypeImage:
		return fmt.Sprintf("[image %d bytes]", len(it.Binary))
	}
	return truncate(s, max)
}

func truncate(s string, max int) string {
	out := make([]rune, 0, max)
	for _, r := range s {
		if len(out) >= max {
			return string(out) + "…"
		}
		if r == '\n' || r == '\r' || r == '\t' {
			r = ' '
		}
		out = append(out, r)
	}
	return string(out)
}

// Equivalent reports whether a and b hold the same content: same type and
// identical payload. IDs, timestamps and source metadata are ignored.
func Equivalent(a, b Item) bool {
	if a.Type != b.Type {
		return false
	}
	switch {
	case a.Type.IsText():
		return a.Text == b.Text
	case a.Type == TypeImage:
		return bytes.Equal(a.Binary, b.Binary)
	case a.Type == TypeFile:
		return a.FilePath == b.FilePath
	case a.Type == TypeRichText:
		if a.Rich == nil || b.Rich == nil {
			return a.Rich == b.Rich
		}
		return a.Rich.Plain == b.Rich.Plain &&
			bytes.Equal(a.Rich.RTF, b.Rich.RTF) &&
			bytes.Equal(a.Rich.HTML, b.Rich.HTML)
	}
	return false
}

// Pinned is a pinned copy of an item. It owns its Item by value so that
// history eviction never affects it.
type Pinned struct {
	Item     Item      `json:"item"`
	PinnedAt time.Time `json:"pinned_at"`
}

// NewPinned pins a clone of it.
func NewPinned(it Item, now time.Time) Pinned {
	return Pinned{Item: it.Clone(), PinnedAt: now.UTC()}
}

// Clone returns a deep copy of p.
func (p Pinned) Clone() Pinned {
	return Pinned{Item: p.Item.Clone(), PinnedAt: p.PinnedAt}
}

// CloneAll deep-copies items.
func CloneAll(items []Item) []Item {
	out := make([]Item, len(items))
	for i, it := range items {
		out[i] = it.Clone()
	}
	return out
}

// ClonePinned deep-copies pins.
func ClonePinned(pins []Pinned) []Pinned {
	out := make([]Pinned, len(pins))
	for i, p := range pins {
		out[i] = p.Clone()
	}
	return out
}
