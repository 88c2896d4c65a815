package clip

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.klb.dev/clipstash/internal/item"
)

func TestMemorySequenceAdvancesOnSet(t *testing.T) {
	m := NewMemory("")
	assert.Equal(t, "memory", m.Name())

	s0, err := m.Sequence()
	require.NoError(t, err)
	m.SetText("a")
	s1, _ := m.Sequence()
	assert.Greater(t, s1, s0)
}

func TestMemoryExclusiveSession(t *testing.T) {
	m := NewMemory("test")
	m.Set(Content{Text: "hi", Files: []string{"/a"}})

	s, err := m.Open()
	require.NoError(t, err)
	assert.True(t, m.IsOpen())

	_, err = m.Open()
	assert.ErrorIs(t, err, ErrBusy)

	files, _ := s.Files()
	text, _ := s.Text()
	assert.Equal(t, []string{"/a"}, files)
	assert.Equal(t, "hi", text)

	require.NoError(t, s.Close())
	assert.False(t, m.IsOpen())
}

func TestMemoryHold(t *testing.T) {
	m := NewMemory("test")
	m.Hold(2)
	_, err := m.Open()
	assert.ErrorIs(t, err, ErrBusy)
	_, err = m.Open()
	assert.ErrorIs(t, err, ErrBusy)
	s, err := m.Open()
	require.NoError(t, err)
	_ = s.Close()
	assert.Equal(t, 3, m.Opens())
}

func TestMemoryWrite(t *testing.T) {
	m := NewMemory("test")
	now := time.Now()

	require.NoError(t, m.Write(item.NewRichText("plain", nil, []byte("<b>x</b>"), item.Source{}, now)))
	s, err := m.Open()
	require.NoError(t, err)
	text, _ := s.Text()
	html, _ := s.HTML()
	assert.Equal(t, "plain", text)
	assert.Equal(t, "<b>x</b>", string(html))
	assert.Equal(t, "clipstash", s.Owner().App)
	_ = s.Close()

	assert.ErrorIs(t, m.Write(item.Item{Type: "bogus"}), ErrUnsupported)
}
