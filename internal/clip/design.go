//go:build linux || darwin || windows

package clip

import (
	"golang.design/x/clipboard"

	"go.klb.dev/clipstash/internal/item"
)

// designSession reads the formats golang.design/x/clipboard exposes: UTF-8
// text and PNG images.
type designSession struct {
	owner item.Source
}

func (s *designSession) Files() ([]string, error) { return nil, nil }
func (s *designSession) RTF() ([]byte, error)     { return nil, nil }
func (s *designSession) HTML() ([]byte, error)    { return nil, nil }
func (s *designSession) Owner() item.Source       { return s.owner }
func (s *designSession) Close() error             { return nil }

func (s *designSession) Bitmap() ([]byte, error) {
	return clipboard.Read(clipboard.FmtImage), nil
}

func (s *designSession) Text() (string, error) {
	return string(clipboard.Read(clipboard.FmtText)), nil
}

// designWrite places it on the clipboard via golang.design/x/clipboard.
// Rich text is written as its plain fallback and files as their path.
func designWrite(it item.Item) error {
	switch {
	case it.Type.IsText():
		clipboard.Write(clipboard.FmtText, []byte(it.Text))
	case it.Type == item.TypeRichText && it.Rich != nil:
		clipboard.Write(clipboard.FmtText, []byte(it.Rich.Plain))
	case it.Type == item.TypeFile:
		clipboard.Write(clipboard.FmtText, []byte(it.FilePath))
	case it.Type == item.TypeImage:
		info, err := SniffImage(it.Binary)
		if err != nil || info.Format != ImagePNG {
			return ErrUnsupported
		}
		clipboard.Write(clipboard.FmtImage, it.Binary)
	default:
		return ErrUnsupported
	}
	return nil
}
