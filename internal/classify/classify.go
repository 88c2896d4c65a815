// Package classify assigns a semantic item type to clipboard text.
//
// Classify is a pure function. Rules are tried in a fixed order and the first
// match wins; the order matters because categories overlap (a URL fragment can
// look like a color, a number list like a phone):
//
//  1. email   local@domain.tld or mailto: URI
//  2. url     absolute http, https, ftp or ftps URI with a host
//  3. phone   optional +, optional (country/area), 6–15 digits with separators;
//     bare digit runs, dates, decimals and dotted quads are excluded
//  4. json    {…} or […] that parses
//  5. color   #RGB, #RGBA, #RRGGBB, #RRGGBBAA, rgb()/rgba()/hsl()/hsla()
//  6. code    two or more independent code signals
//  7. text
package classify

import (
	"encoding/json"
	"net/url"
	"regexp"
	"strings"
	"unicode"

	"go.klb.dev/clipstash/internal/item"
)

// MinCodeSignals is the number of signals needed to call text code.
const MinCodeSignals = 2

const (
	minPhoneDigits = 6
	maxPhoneDigits = 15
)

var (
	emailRe = regexp.MustCompile(`^[A-Za-z0-9._%+\-]+@[A-Za-z0-9\-]+(\.[A-Za-z0-9\-]+)*\.[A-Za-z]{2,}$`)
	phoneRe = regexp.MustCompile(`^\+?\s*(\d{1,3}[\s.\-]?)?(\(\d{1,4}\)[\s.\-]?)?[\d\s.\-]{6,}$`)
	hexRe   = regexp.MustCompile(`^#([0-9A-Fa-f]{3}|[0-9A-Fa-f]{4}|[0-9A-Fa-f]{6}|[0-9A-Fa-f]{8})$`)
	colorFn = regexp.MustCompile(`^(?i)(rgba?|hsla?)\(\s*[\d.]+%?\s*(,\s*[\d.]+%?\s*){2}(,\s*[\d.]+%?\s*)?\)$`)

	// Space-separated CSS Color 4 syntax: rgb(255 0 0 / 50%).
	colorFn4 = regexp.MustCompile(`^(?i)(rgba?|hsla?)\(\s*[\d.]+(deg|%)?(\s+[\d.]+%?){2}(\s*/\s*[\d.]+%?)?\s*\)$`)

	// Phone-shaped digit runs that are almost never phone numbers.
	isoDateRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	decimalRe = regexp.MustCompile(`^\d+\.\d+$`)
	dottedRe  = regexp.MustCompile(`^\d{1,3}(\.\d{1,3}){3,}$`) // IPv4, version strings
	bareRe    = regexp.MustCompile(`^\d+$`)

	terminatorRe  = regexp.MustCompile(`(?m);\s*$`)
	operatorRe    = regexp.MustCompile(`=>|->|::|:=|\+\+|&&|\|\||==`)
	controlFlowRe = regexp.MustCompile(`(?m)^\s*(if|else|for|foreach|while|switch|case|try|catch|except|elif|do|def|class)\b.*[({:]\s*$|^\s*(if|for|while|switch)\s*\(`)
	wordRe        = regexp.MustCompile(`[A-Za-z_#][A-Za-z0-9_]*`)
)

// keywords spans the common languages users copy from. Each distinct hit is
// counted once; two distinct hits make one signal.
var keywords = map[string]struct{}{
	"func": {}, "function": {}, "def": {}, "fn": {}, "lambda": {},
	"return": {}, "var": {}, "let": {}, "const": {}, "class": {},
	"struct": {}, "interface": {}, "enum": {}, "impl": {}, "trait": {},
	"import": {}, "package": {}, "#include": {}, "using": {}, "namespace": {},
	"public": {}, "private": {}, "protected": {}, "static": {}, "void": {},
	"async": {}, "await": {}, "yield": {}, "typeof": {}, "instanceof": {},
	"null": {}, "nil": {}, "None": {}, "true": {}, "false": {},
	"elif": {}, "foreach": {}, "extends": {}, "implements": {}, "throw": {},
	"SELECT": {}, "FROM": {}, "WHERE": {}, "INSERT": {}, "UPDATE": {},
	"println": {}, "printf": {}, "console": {}, "self": {}, "fmt": {},
}

// CodeSignals is the breakdown of the code heuristic for one input.
type CodeSignals struct {
	MultilineBraces bool
	Terminators     bool
	Keywords        bool
	ControlFlow     bool
}

// Score is the number of signals present.
func (s CodeSignals) Score() int {
	n := 0
	for _, b := range []bool{s.MultilineBraces, s.Terminators, s.Keywords, s.ControlFlow} {
		if b {
			n++
		}
	}
	return n
}

// Classify returns the semantic type of text. Surrounding whitespace is
// ignored; empty input is TypeText.
func Classify(text string) item.Type {
	s := strings.TrimSpace(text)
	switch {
	case s == "":
		return item.TypeText
	case IsEmail(s):
		return item.TypeEmail
	case IsURL(s):
		return item.TypeURL
	case IsPhone(s):
		return item.TypePhone
	case IsJSON(s):
		return item.TypeJSON
	case IsColor(s):
		return item.TypeColor
	case Signals(s).Score() >= MinCodeSignals:
		return item.TypeCode
	}
	return item.TypeText
}

// IsEmail matches a bare address or a mailto: URI.
func IsEmail(s string) bool {
	if len(s) > 7 && strings.EqualFold(s[:7], "mailto:") {
		addr := s[7:]
		if i := strings.IndexByte(addr, '?'); i >= 0 {
			addr = addr[:i]
		}
		return emailRe.MatchString(addr)
	}
	return emailRe.MatchString(s)
}

var urlSchemes = map[string]struct{}{
	"http": {}, "https": {}, "ftp": {}, "ftps": {},
}

// IsURL matches absolute URIs with a web or ftp scheme and a host. Text with
// interior whitespace is never a URL.
func IsURL(s string) bool {
	if strings.IndexFunc(s, unicode.IsSpace) >= 0 {
		return false
	}
	u, err := url.Parse(s)
	if err != nil || !u.IsAbs() {
		return false
	}
	if _, ok := urlSchemes[strings.ToLower(u.Scheme)]; !ok {
		return false
	}
	return u.Hostname() != ""
}

// IsPhone matches phone-number-shaped text. A bare digit run needs a
// leading + to count; without separators it is more likely an id or date.
func IsPhone(s string) bool {
	if !phoneRe.MatchString(s) {
		return false
	}
	for _, re := range []*regexp.Regexp{isoDateRe, decimalRe, dottedRe, bareRe} {
		if re.MatchString(s) {
			return false
		}
	}
	digits := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			digits++
		}
	}
	return digits >= minPhoneDigits && digits <= maxPhoneDigits
}

// IsJSON matches a bracketed object or array that is valid JSON.
func IsJSON(s string) bool {
	if len(s) < 2 {
		return false
	}
	first, last := s[0], s[len(s)-1]
	if !(first == '{' && last == '}') && !(first == '[' && last == ']') {
		return false
	}
	return json.Valid([]byte(s))
}

// IsColor matches hex and functional CSS color notation.
func IsColor(s string) bool {
	return hexRe.MatchString(s) || colorFn.MatchString(s) || colorFn4.MatchString(s)
}

// Signals evaluates the code heuristic for s.
func Signals(s string) CodeSignals {
	var sig CodeSignals

	multiline := strings.Count(s, "\n") >= 1
	sig.MultilineBraces = multiline && strings.ContainsAny(s, "{") && strings.ContainsAny(s, "}")

	sig.Terminators = terminatorRe.MatchString(s) || operatorRe.MatchString(s)

	hits := make(map[string]struct{})
	for _, w := range wordRe.FindAllString(s, -1) {
		if _, ok := keywords[w]; ok {
			hits[w] = struct{}{}
			if len(hits) >= 2 {
				sig.Keywords = true
				break
			}
		}
	}

	sig.ControlFlow = controlFlowRe.MatchString(s)
	return sig
}
