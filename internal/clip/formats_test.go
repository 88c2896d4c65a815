package clip

import (
	"encoding/binary"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dib(headerSize uint32, w, h int32, bpp uint16) []byte {
	b := make([]byte, headerSize+16)
	binary.LittleEndian.PutUint32(b[0:4], headerSize)
	binary.LittleEndian.PutUint32(b[4:8], uint32(w))
	binary.LittleEndian.PutUint32(b[8:12], uint32(h))
	binary.LittleEndian.PutUint16(b[12:14], 1)
	binary.LittleEndian.PutUint16(b[14:16], bpp)
	return b
}

func TestParseDIBHeader(t *testing.T) {
	for _, size := range []uint32{dibInfoHeader, dibV4Header, dibV5Header} {
		info, err := ParseDIBHeader(dib(size, 640, 480, 32))
		require.NoError(t, err)
		assert.Equal(t, ImageInfo{Format: ImageDIB, Width: 640, Height: 480, BitCount: 32, HeaderVersion: int(size)}, info)
	}

	topDown, err := ParseDIBHeader(dib(dibV5Header, 10, -20, 24))
	require.NoError(t, err)
	assert.Equal(t, 20, topDown.Height)

	_, err = ParseDIBHeader([]byte{1, 2})
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = ParseDIBHeader(dib(dibInfoHeader, 0, 10, 24))
	assert.ErrorIs(t, err, ErrMalformed)

	bogus := dib(dibInfoHeader, 1, 1, 24)
	binary.LittleEndian.PutUint32(bogus[0:4], 77)
	_, err = ParseDIBHeader(bogus)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestSniffImagePNG(t *testing.T) {
	png := append([]byte{}, pngSignature...)
	png = append(png, 0, 0, 0, 13)
	png = append(png, "IHDR"...)
	png = binary.BigEndian.AppendUint32(png, 32)
	png = binary.BigEndian.AppendUint32(png, 16)
	png = append(png, 8)

	info, err := SniffImage(png)
	require.NoError(t, err)
	assert.Equal(t, ImagePNG, info.Format)
	assert.Equal(t, 32, info.Width)
	assert.Equal(t, 16, info.Height)

	_, err = SniffImage(pngSignature)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestHDROPRoundTrip(t *testing.T) {
	paths := []string{`C:\Users\me\report.pdf`, `D:\Фото\cat.jpg`}
	got, err := ParseHDROP(EncodeHDROP(paths))
	require.NoError(t, err)
	assert.Equal(t, paths, got)
}

func TestParseHDROPAnsi(t *testing.T) {
	b := make([]byte, dropFilesSize)
	binary.LittleEndian.PutUint32(b[0:4], dropFilesSize)
	b = append(b, "C:\\a.txt\x00C:\\b.txt\x00\x00garbage"...)
	got, err := ParseHDROP(b)
	require.NoError(t, err)
	assert.Equal(t, []string{`C:\a.txt`, `C:\b.txt`}, got)
}

func TestParseHDROPMalformed(t *testing.T) {
	_, err := ParseHDROP([]byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrMalformed)

	b := make([]byte, dropFilesSize)
	binary.LittleEndian.PutUint32(b[0:4], 999)
	_, err = ParseHDROP(b)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestParseCFHTML(t *testing.T) {
	frag := "<b>bold</b>"
	prefix := "<html><body><!--StartFragment-->"
	header := "Version:0.9\r\nStartHTML:0000000000\r\nEndHTML:0000000000\r\nStartFragment:%010d\r\nEndFragment:%010d\r\n"
	render := func(start, end int) string { return fmt.Sprintf(header, start, end) }
	start := len(render(0, 0)) + len(prefix)
	payload := []byte(render(start, start+len(frag)) + prefix + frag + "<!--EndFragment--></body></html>")

	got, err := ParseCFHTML(payload)
	require.NoError(t, err)
	assert.Equal(t, frag, string(got))

	raw := []byte("<p>no header</p>")
	got, err = ParseCFHTML(raw)
	require.NoError(t, err)
	assert.Equal(t, raw, got)

	_, err = ParseCFHTML([]byte("Version:0.9\r\nStartFragment:50\r\nEndFragment:10\r\n"))
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestIsSignificantlyFormatted(t *testing.T) {
	tests := []struct {
		name string
		rtf  string
		html string
		want bool
	}{
		{"nothing", "", "", false},
		{"plain paragraph html", "", "<html><body><p>Just some prose.</p></body></html>", false},
		{"plain span default style", "", `<span style="font-weight: normal; color: black">prose</span>`, false},
		{"bold html", "", "<p>Some <b>bold</b> text</p>", true},
		{"link html", "", `<a href="https://example.com">link</a>`, true},
		{"styled span", "", `<span style="font-weight:700">loud</span>`, true},
		{"table html", "", "<table><tr><td>1</td></tr></table>", true},
		{"plain rtf", `{\rtf1\ansi\deff0{\fonttbl{\f0 Calibri;}}\f0\fs22 plain prose\par}`, "", false},
		{"bold rtf", `{\rtf1\ansi{\fonttbl{\f0 Calibri;}}\f0 some \b bold\b0 text\par}`, "", true},
		{"colored rtf", `{\rtf1{\colortbl;\red255\green0\blue0;}\cf1 red\cf0\par}`, "", true},
		{"font table only", `{\rtf1{\fonttbl{\f0\fswiss\b Arial;}}\f0 plain\par}`, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsSignificantlyFormatted([]byte(tt.rtf), []byte(tt.html)))
		})
	}
}
