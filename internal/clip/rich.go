package clip

import (
	"bytes"
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

// formattingTags are HTML elements that carry formatting a plain-text
// fallback would lose. Structural wrappers (html, body, div, p, br, plain
// span) do not count.
var formattingTags = map[string]struct{}{
	"b": {}, "strong": {}, "i": {}, "em": {}, "u": {}, "s": {}, "strike": {},
	"a": {}, "img": {}, "table": {}, "ul": {}, "ol": {}, "li": {},
	"h1": {}, "h2": {}, "h3": {}, "h4": {}, "h5": {}, "h6": {},
	"pre": {}, "code": {}, "blockquote": {}, "font": {}, "mark": {},
	"sub": {}, "sup": {},
}

// styleProps are inline CSS properties that count as formatting.
var styleProps = []string{"font-weight", "font-style", "text-decoration", "color", "background", "font-size", "font-family"}

// rtfFormatting matches RTF control words that change appearance beyond the
// document defaults every RTF writer emits.
var rtfFormatting = regexp.MustCompile(`\\(b|i|ul|strike|super|sub|highlight\d+|cf[1-9]\d*|trowd|pict|field|listtext|pn)\b`)

// rtfHeaderGroups are RTF destination groups whose content is metadata.
var rtfHeaderGroups = regexp.MustCompile(`\{\\(fonttbl|colortbl|stylesheet|\*\\generator|info)[^{}]*(\{[^{}]*\}[^{}]*)*\}`)

// IsSignificantlyFormatted reports whether rich clipboard content carries
// formatting worth keeping over its plain-text fallback. Plain prose wrapped
// in markup by the copying application is not significant.
func IsSignificantlyFormatted(rtf, htmlFragment []byte) bool {
	return htmlFormatted(htmlFragment) || rtfFormatted(rtf)
}

func htmlFormatted(b []byte) bool {
	if len(bytes.TrimSpace(b)) == 0 {
		return false
	}
	z := html.NewTokenizer(bytes.NewReader(b))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return false
		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			if _, ok := formattingTags[string(name)]; ok {
				return true
			}
			for hasAttr {
				var key, val []byte
				key, val, hasAttr = z.TagAttr()
				if string(key) == "style" && styleFormats(string(val)) {
					return true
				}
			}
		}
	}
}

func styleFormats(style string) bool {
	style = strings.ToLower(style)
	for _, decl := range strings.Split(style, ";") {
		prop, val, ok := strings.Cut(decl, ":")
		if !ok {
			continue
		}
		prop = strings.TrimSpace(prop)
		val = strings.TrimSpace(val)
		for _, p := range styleProps {
			if prop != p {
				continue
			}
			// Default values do not count.
			switch val {
			case "normal", "none", "inherit", "initial", "400", "black", "#000000", "rgb(0, 0, 0)", "transparent":
				continue
			}
			return true
		}
	}
	return false
}

func rtfFormatted(b []byte) bool {
	if len(b) == 0 {
		return false
	}
	body := rtfHeaderGroups.ReplaceAll(b, nil)
	return rtfFormatting.Match(body)
}
