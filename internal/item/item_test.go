package item

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestConstructorsProduceValidItems(t *testing.T) {
	src := Source{App: "code.exe", Path: `C:\Apps\code.exe`}
	cases := []Item{
		NewText(TypeURL, "https://example.com", src, now),
		NewImage([]byte{1, 2, 3}, src, now),
		NewFile("/tmp/report.pdf", src, now),
		NewRichText("hello", []byte(`{\rtf1 \b hello}`), nil, src, now),
	}
	for _, it := range cases {
		t.Run(string(it.Type), func(t *testing.T) {
			require.NoError(t, it.Validate())
			assert.NotEmpty(t, it.ID)
			assert.Equal(t, "code.exe", it.SourceApp)
			assert.Equal(t, time.UTC, it.CapturedAt.Location())
		})
	}
}

func TestValidateRejectsMismatchedPayload(t *testing.T) {
	it := NewText(TypeText, "hi", Source{}, now)
	it.FilePath = "/tmp/x"
	assert.ErrorIs(t, it.Validate(), ErrInvalid)

	img := NewImage(nil, Source{}, now)
	assert.ErrorIs(t, img.Validate(), ErrInvalid)

	wrong := NewText(TypeImage, "not an image", Source{}, now)
	assert.ErrorIs(t, wrong.Validate(), ErrInvalid)

	unknown := NewText(Type("bogus"), "x", Source{}, now)
	assert.ErrorIs(t, unknown.Validate(), ErrInvalid)
}

func TestEquivalentIgnoresIdentity(t *testing.T) {
	a := NewText(TypeText, "same", Source{App: "a.exe"}, now)
	b := NewText(TypeText, "same", Source{App: "b.exe"}, now.Add(time.Hour))
	assert.NotEqual(t, a.ID, b.ID)
	assert.True(t, Equivalent(a, b))

	c := NewText(TypeCode, "same", Source{}, now)
	assert.False(t, Equivalent(a, c), "different type")

	img1 := NewImage([]byte{1, 2}, Source{}, now)
	img2 := NewImage([]byte{1, 2}, Source{}, now)
	img3 := NewImage([]byte{1, 3}, Source{}, now)
	assert.True(t, Equivalent(img1, img2))
	assert.False(t, Equivalent(img1, img3))

	r1 := NewRichText("x", nil, []byte("<b>x</b>"), Source{}, now)
	r2 := NewRichText("x", nil, []byte("<i>x</i>"), Source{}, now)
	assert.False(t, Equivalent(r1, r2))
}

func TestCloneIsDeep(t *testing.T) {
	orig := NewRichText("x", []byte("rtf"), []byte("html"), Source{}, now)
	cp := orig.Clone()
	cp.Rich.RTF[0] = 'X'
	cp.Rich.Plain = "changed"
	assert.Equal(t, "rtf", string(orig.Rich.RTF))
	assert.Equal(t, "x", orig.Rich.Plain)

	img := NewImage([]byte{9}, Source{}, now)
	pin := NewPinned(img, now)
	img.Binary[0] = 0
	assert.Equal(t, byte(9), pin.Item.Binary[0])
}

func TestPreview(t *testing.T) {
	it := NewText(TypeText, "line one\nline two", Source{}, now)
	assert.Equal(t, "line one…", it.Preview(8))
	assert.Equal(t, "line one line two", it.Preview(100))
	assert.Equal(t, "[image 3 bytes]", NewImage([]byte{1, 2, 3}, Source{}, now).Preview(10))
}
