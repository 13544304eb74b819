// Package labels reads title block values out of a drawing and compares the text labels of two drawings.
package labels

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/width"

	"github.com/rpattn/dxfdiff/internal/domain"
)

// drawingNumberPattern matches two letters, four digits, three digits, two digits and a revision
// letter, delimited by anything that is not alphanumeric. It runs on width-folded text.
var drawingNumberPattern = regexp.MustCompile(`(?:^|[^A-Za-z0-9])([A-Z]{2}[0-9]{4}-[0-9]{3}-[0-9]{2}[A-Z])(?:$|[^A-Za-z0-9])`)

// MatchDrawingNumber finds a drawing number in s. Full-width characters are accepted and the
// returned number is half-width.
func MatchDrawingNumber(s string) (string, bool) {
	match := drawingNumberPattern.FindStringSubmatch(width.Fold.String(s))
	if match == nil {
		return "", false
	}
	return match[1], true
}

// Content returns the display text of a text shape: MTEXT formatting removed, control codes and
// \U+XXXX escapes decoded, surrounding space trimmed.
func Content(t domain.Text) string {
	return cleanText(t.Content, t.Multiline)
}

// normalize folds width, upper-cases and drops whitespace and trailing colons. It is the key under
// which anchors are compared.
func normalize(s string) string {
	folded := strings.ToUpper(width.Fold.String(s))
	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		if !unicode.IsSpace(r) {
			b.WriteRune(r)
		}
	}
	return strings.TrimRight(b.String(), ":")
}

func cleanText(s string, multiline bool) string {
	runes := []rune(s)
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case r == '%' && i+2 < len(runes) && runes[i+1] == '%':
			i += controlCode(&b, runes[i+2:])
			continue
		case r == '\\' && i+1 < len(runes):
			if skip, ok := unicodeEscape(&b, runes[i+1:]); ok {
				i += skip
				continue
			}
			if multiline {
				i += formatCode(&b, runes[i+1:])
				continue
			}
		case multiline && (r == '{' || r == '}'):
			continue
		}
		b.WriteRune(r)
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// controlCode handles the %%x codes of single line text; rest starts after "%%". It returns
// how many runes after the first '%' were consumed.
func controlCode(b *strings.Builder, rest []rune) int {
	switch unicode.ToLower(rest[0]) {
	case 'd':
		b.WriteRune('°')
	case 'p':
		b.WriteRune('±')
	case 'c':
		b.WriteRune('⌀')
	case '%':
		b.WriteRune('%')
	case 'u', 'o', 'k':
	default:
		if len(rest) >= 3 {
			if code, err := strconv.Atoi(string(rest[:3])); err == nil {
				b.WriteRune(rune(code))
				return 4
			}
		}
		b.WriteString("%%")
		return 1
	}
	return 2
}

// unicodeEscape decodes \U+XXXX; rest starts after the backslash.
func unicodeEscape(b *strings.Builder, rest []rune) (int, bool) {
	if len(rest) < 6 || (rest[0] != 'U' && rest[0] != 'u') || rest[1] != '+' {
		return 0, false
	}
	code, err := strconv.ParseUint(string(rest[2:6]), 16, 32)
	if err != nil {
		return 0, false
	}
	b.WriteRune(rune(code))
	return 6, true
}

// formatCode drops one MTEXT formatting code; rest starts after the backslash. It returns the
// number of runes consumed after the backslash.
func formatCode(b *strings.Builder, rest []rune) int {
	switch code := rest[0]; code {
	case '\\', '{', '}':
		b.WriteRune(code)
		return 1
	case 'P', 'X', '~':
		b.WriteRune(' ')
		return 1
	case 'L', 'l', 'O', 'o', 'K', 'k', 'N':
		return 1
	case 'S':
		end := 1
		for end < len(rest) && rest[end] != ';' {
			switch rest[end] {
			case '^', '#':
				b.WriteRune('/')
			default:
				b.WriteRune(rest[end])
			}
			end++
		}
		return end + 1
	case 'A', 'C', 'c', 'F', 'f', 'H', 'h', 'Q', 'q', 'T', 't', 'W', 'w', 'p':
		end := 1
		for end < len(rest) && rest[end] != ';' {
			end++
		}
		return end + 1
	default:
		b.WriteRune(code)
		return 1
	}
}
