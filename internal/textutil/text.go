// Package textutil repairs and trims text taken from imported mail.
package textutil

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/gogs/chardet"
	"github.com/mattn/go-runewidth"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/htmlindex"
)

// EnsureUTF8 returns s unchanged when it is valid UTF-8. Otherwise the
// charset is detected and s decoded from it, with Windows-1252 as the
// fallback. Bytes that still do not decode become U+FFFD.
func EnsureUTF8(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	data := []byte(s)

	minConfidence := 30
	if len(data) > 50 {
		minConfidence = 50
	}
	if result, err := chardet.NewTextDetector().DetectBest(data); err == nil && result.Confidence >= minConfidence {
		if decoded, ok := decode(result.Charset, data); ok {
			return decoded
		}
	}

	if decoded, err := charmap.Windows1252.NewDecoder().Bytes(data); err == nil && utf8.Valid(decoded) {
		return string(decoded)
	}
	return strings.ToValidUTF8(s, "�")
}

// decode converts data from the named charset. ok is false for unknown
// charsets and for results that are not valid UTF-8.
func decode(charset string, data []byte) (string, bool) {
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return "", false
	}
	decoded, err := enc.NewDecoder().Bytes(data)
	if err != nil || !utf8.Valid(decoded) {
		return "", false
	}
	return string(decoded), true
}

// Truncate shortens s to at most width terminal columns, marking the cut
// with "...".
func Truncate(s string, width int) string {
	if width <= 0 {
		return ""
	}
	if runewidth.StringWidth(s) <= width {
		return s
	}
	if width <= 3 {
		return runewidth.Truncate(s, width, "")
	}
	return runewidth.Truncate(s, width, "...")
}

// FirstLine returns the first line of s, ignoring leading line breaks.
func FirstLine(s string) string {
	s = strings.TrimLeft(s, "\r\n")
	if idx := strings.IndexAny(s, "\r\n"); idx >= 0 {
		return s[:idx]
	}
	return s
}

// Words splits s into lowercase words on any rune that is not a letter or
// digit. Duplicates are kept. Full-text search matches these words: text
// with no words matches every mail.
func Words(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
