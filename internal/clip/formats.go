package clip

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/encoding/unicode"
)

// ErrMalformed is returned by the format parsers for undecodable payloads.
var ErrMalformed = errors.New("malformed clipboard payload")

// ImageFormat is the encoding of an image payload.
type ImageFormat string

const (
	ImageDIB ImageFormat = "dib"
	ImagePNG ImageFormat = "png"
)

// BITMAPINFOHEADER sizes by version.
const (
	dibCoreHeader = 12
	dibInfoHeader = 40
	dibV4Header   = 108
	dibV5Header   = 124
)

var pngSignature = []byte("\x89PNG\r\n\x1a\n")

// ImageInfo describes an image payload.
type ImageInfo struct {
	Format   ImageFormat
	Width    int
	Height   int
	BitCount int
	// HeaderVersion is the DIB header size (12, 40, 108 or 124); 0 for PNG.
	HeaderVersion int
}

// SniffImage identifies a PNG or DIB payload and reads its dimensions.
func SniffImage(b []byte) (ImageInfo, error) {
	if bytes.HasPrefix(b, pngSignature) {
		return sniffPNG(b)
	}
	return ParseDIBHeader(b)
}

func sniffPNG(b []byte) (ImageInfo, error) {
	// signature(8) + length(4) + "IHDR"(4) + width(4) + height(4) + depth(1)
	if len(b) < 25 || string(b[12:16]) != "IHDR" {
		return ImageInfo{}, fmt.Errorf("%w: png without IHDR", ErrMalformed)
	}
	return ImageInfo{
		Format:   ImagePNG,
		Width:    int(binary.BigEndian.Uint32(b[16:20])),
		Height:   int(binary.BigEndian.Uint32(b[20:24])),
		BitCount: int(b[24]),
	}, nil
}

// ParseDIBHeader reads a packed DIB's header (as stored by CF_DIB/CF_DIBV5).
// Top-down bitmaps report a positive height.
func ParseDIBHeader(b []byte) (ImageInfo, error) {
	if len(b) < 4 {
		return ImageInfo{}, fmt.Errorf("%w: dib shorter than header size", ErrMalformed)
	}
	size := int(binary.LittleEndian.Uint32(b[0:4]))
	if len(b) < size {
		return ImageInfo{}, fmt.Errorf("%w: dib header truncated (%d < %d)", ErrMalformed, len(b), size)
	}

	info := ImageInfo{Format: ImageDIB, HeaderVersion: size}
	switch size {
	case dibCoreHeader:
		info.Width = int(binary.LittleEndian.Uint16(b[4:6]))
		info.Height = int(binary.LittleEndian.Uint16(b[6:8]))
		info.BitCount = int(binary.LittleEndian.Uint16(b[10:12]))
	case dibInfoHeader, dibV4Header, dibV5Header:
		w := int32(binary.LittleEndian.Uint32(b[4:8]))
		h := int32(binary.LittleEndian.Uint32(b[8:12]))
		if h < 0 {
			h = -h
		}
		info.Width = int(w)
		info.Height = int(h)
		info.BitCount = int(binary.LittleEndian.Uint16(b[14:16]))
	default:
		return ImageInfo{}, fmt.Errorf("%w: unknown dib header size %d", ErrMalformed, size)
	}
	if info.Width <= 0 || info.Height == 0 {
		return ImageInfo{}, fmt.Errorf("%w: dib has empty dimensions %dx%d", ErrMalformed, info.Width, info.Height)
	}
	return info, nil
}

// dropFilesSize is sizeof(DROPFILES): pFiles, pt.x, pt.y, fNC, fWide.
const dropFilesSize = 20

// ParseHDROP decodes a CF_HDROP memory block into its file paths.
func ParseHDROP(b []byte) ([]string, error) {
	if len(b) < dropFilesSize {
		return nil, fmt.Errorf("%w: hdrop shorter than DROPFILES", ErrMalformed)
	}
	offset := int(binary.LittleEndian.Uint32(b[0:4]))
	wide := binary.LittleEndian.Uint32(b[16:20]) != 0
	if offset < dropFilesSize || offset > len(b) {
		return nil, fmt.Errorf("%w: hdrop file list offset %d out of range", ErrMalformed, offset)
	}
	list := b[offset:]

	var names string
	if wide {
		// The list is NUL-separated and double-NUL-terminated; decode only
		// up to the terminator so trailing slack never reaches the decoder.
		end := len(list) &^ 1
		for i := 0; i+3 < len(list); i += 2 {
			if list[i] == 0 && list[i+1] == 0 && list[i+2] == 0 && list[i+3] == 0 {
				end = i + 2
				break
			}
		}
		dec := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder()
		out, err := dec.Bytes(list[:end])
		if err != nil {
			return nil, fmt.Errorf("%w: hdrop utf-16: %v", ErrMalformed, err)
		}
		names = string(out)
	} else {
		if i := bytes.Index(list, []byte{0, 0}); i >= 0 {
			list = list[:i+1]
		}
		names = string(list)
	}

	var paths []string
	for _, p := range strings.Split(names, "\x00") {
		if p != "" {
			paths = append(paths, p)
		}
	}
	return paths, nil
}

// EncodeHDROP builds a wide CF_HDROP block for paths.
func EncodeHDROP(paths []string) []byte {
	enc := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewEncoder()
	var list bytes.Buffer
	for _, p := range paths {
		b, _ := enc.String(p)
		list.WriteString(b)
		list.Write([]byte{0, 0})
	}
	list.Write([]byte{0, 0})

	out := make([]byte, dropFilesSize, dropFilesSize+list.Len())
	binary.LittleEndian.PutUint32(out[0:4], dropFilesSize)
	binary.LittleEndian.PutUint32(out[16:20], 1)
	return append(out, list.Bytes()...)
}

// ParseCFHTML extracts the fragment from a Windows "HTML Format" payload.
// Payloads without the CF_HTML header are returned unchanged.
func ParseCFHTML(b []byte) ([]byte, error) {
	if !bytes.HasPrefix(b, []byte("Version:")) {
		return b, nil
	}
	start, end := -1, -1
	for _, line := range strings.SplitN(string(b), "\n", 16) {
		key, val, ok := strings.Cut(strings.TrimRight(line, "\r"), ":")
		if !ok {
			break
		}
		switch key {
		case "StartFragment":
			start, _ = strconv.Atoi(strings.TrimSpace(val))
		case "EndFragment":
			end, _ = strconv.Atoi(strings.TrimSpace(val))
		}
	}
	if start < 0 || end < start || end > len(b) {
		return nil, fmt.Errorf("%w: cf_html fragment offsets %d..%d", ErrMalformed, start, end)
	}
	return b[start:end], nil
}
