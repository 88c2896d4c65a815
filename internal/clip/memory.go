package clip

import (
	"bytes"
	"slices"
	"sync"

	"go.klb.dev/clipstash/internal/item"
)

// Content is a complete clipboard state, one field per format the monitor
// understands.
type Content struct {
	Files  []string
	Bitmap []byte
	RTF    []byte
	HTML   []byte
	Text   string
	Owner  item.Source
}

func (c Content) clone() Content {
	return Content{
		Files:  slices.Clone(c.Files),
		Bitmap: bytes.Clone(c.Bitmap),
		RTF:    bytes.Clone(c.RTF),
		HTML:   bytes.Clone(c.HTML),
		Text:   c.Text,
		Owner:  c.Owner,
	}
}

// Memory is an in-process clipboard. It backs headless hosts, where it lets
// "restore" and IPC-driven captures work without a display server, and it
// is the clipboard used by tests.
type Memory struct {
	name string

	mu      sync.Mutex
	seq     uint64
	content Content
	seqErr  error
	opens   int
	open    bool

	// busy counts the remaining Open calls that fail with ErrBusy.
	busy int
}

// NewMemory returns an empty in-process clipboard.
func NewMemory(name string) *Memory {
	if name == "" {
		name = "memory"
	}
	return &Memory{name: name}
}

func (m *Memory) Name() string { return m.name }

// Set replaces the contents and advances the generation.
func (m *Memory) Set(c Content) {
	m.mu.Lock()
	m.content = c.clone()
	m.seq++
	m.mu.Unlock()
}

// SetText is shorthand for Set(Content{Text: text}).
func (m *Memory) SetText(text string) { m.Set(Content{Text: text}) }

// Hold makes the next n Open calls fail with ErrBusy, as if another process
// had the clipboard open.
func (m *Memory) Hold(n int) {
	m.mu.Lock()
	m.busy = n
	m.mu.Unlock()
}

// FailSequence makes Sequence return err until called again with nil.
func (m *Memory) FailSequence(err error) {
	m.mu.Lock()
	m.seqErr = err
	m.mu.Unlock()
}

// Opens returns how many times Open was attempted.
func (m *Memory) Opens() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opens
}

// IsOpen reports whether a session is outstanding.
func (m *Memory) IsOpen() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.open
}

func (m *Memory) Sequence() (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.seqErr != nil {
		return 0, m.seqErr
	}
	return m.seq, nil
}

func (m *Memory) Open() (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opens++
	if m.busy > 0 {
		m.busy--
		return nil, ErrBusy
	}
	if m.open {
		return nil, ErrBusy
	}
	m.open = true
	return &memorySession{m: m, c: m.content.clone()}, nil
}

// Write places it on the clipboard.
func (m *Memory) Write(it item.Item) error {
	c := Content{Owner: item.Source{App: "clipstash"}}
	switch {
	case it.Type.IsText():
		c.Text = it.Text
	case it.Type == item.TypeImage:
		c.Bitmap = it.Binary
	case it.Type == item.TypeFile:
		c.Files = []string{it.FilePath}
	case it.Type == item.TypeRichText && it.Rich != nil:
		c.Text = it.Rich.Plain
		c.RTF = it.Rich.RTF
		c.HTML = it.Rich.HTML
	default:
		return ErrUnsupported
	}
	m.Set(c)
	return nil
}

func (m *Memory) Close() {}

type memorySession struct {
	m *Memory
	c Content
}

func (s *memorySession) Files() ([]string, error) { return s.c.Files, nil }
func (s *memorySession) Bitmap() ([]byte, error)  { return s.c.Bitmap, nil }
func (s *memorySession) RTF() ([]byte, error)     { return s.c.RTF, nil }
func (s *memorySession) HTML() ([]byte, error)    { return s.c.HTML, nil }
func (s *memorySession) Text() (string, error)    { return s.c.Text, nil }
func (s *memorySession) Owner() item.Source       { return s.c.Owner }

func (s *memorySession) Close() error {
	s.m.mu.Lock()
	s.m.open = false
	s.m.mu.Unlock()
	return nil
}
