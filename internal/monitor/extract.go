package monitor

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.klb.dev/clipstash/internal/classify"
	"go.klb.dev/clipstash/internal/clip"
	"go.klb.dev/clipstash/internal/item"
)

// extractor turns an open clipboard session into items. Formats are checked
// in priority order and the first one present wins:
//
//	file drop list > bitmap > rich text (when enabled) > plain text
//
// A drop list yields one item per accessible path; every other format
// yields at most one item.
type extractor struct {
	stat func(string) (os.FileInfo, error)
	now  func() time.Time
	log  *slog.Logger
}

func (e extractor) extract(s clip.Session, rich bool) ([]item.Item, error) {
	src := s.Owner()
	now := e.now()

	files, err := s.Files()
	if err != nil {
		return nil, fmt.Errorf("read file list: %w", err)
	}
	if len(files) > 0 {
		return e.files(files, src, now), nil
	}

	bmp, err := s.Bitmap()
	if err != nil {
		return nil, fmt.Errorf("read bitmap: %w", err)
	}
	if len(bmp) > 0 {
		if _, err := clip.SniffImage(bmp); err != nil {
			return nil, fmt.Errorf("bitmap: %w", err)
		}
		return []item.Item{item.NewImage(bmp, src, now)}, nil
	}

	text, err := s.Text()
	if err != nil {
		return nil, fmt.Errorf("read text: %w", err)
	}
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	if rich {
		if it, ok, err := e.richText(s, text, src, now); err != nil {
			return nil, err
		} else if ok {
			return []item.Item{it}, nil
		}
	}

	return []item.Item{item.NewText(classify.Classify(text), text, src, now)}, nil
}

// files keeps absolute, reachable, distinct paths in drop-list order. An
// entry that cannot be stat'ed (deleted, unmounted, permission denied) is
// skipped without failing the rest.
func (e extractor) files(paths []string, src item.Source, now time.Time) []item.Item {
	seen := make(map[string]struct{}, len(paths))
	out := make([]item.Item, 0, len(paths))
	for _, p := range paths {
		if p == "" || !filepath.IsAbs(p) {
			continue
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		if _, err := e.stat(p); err != nil {
			e.log.Debug("skipping inaccessible clipboard file", "path", p, "err", err)
			continue
		}
		out = append(out, item.NewFile(p, src, now))
	}
	return out
}

func (e extractor) richText(s clip.Session, plain string, src item.Source, now time.Time) (item.Item, bool, error) {
	rtf, err := s.RTF()
	if err != nil {
		return item.Item{}, false, fmt.Errorf("read rtf: %w", err)
	}
	html, err := s.HTML()
	if err != nil {
		return item.Item{}, false, fmt.Errorf("read html: %w", err)
	}
	if len(rtf) == 0 && len(html) == 0 {
		return item.Item{}, false, nil
	}
	if !clip.IsSignificantlyFormatted(rtf, html) {
		return item.Item{}, false, nil
	}
	return item.NewRichText(plain, rtf, html, src, now), true, nil
}
