package cleanup

import (
	"regexp"
	"strings"

	"github.com/taji/gm-kit/internal/marker"
)

// bulletRe matches the bullet glyph zoo at the start of an item.
var bulletRe = regexp.MustCompile(`^([ \t]*)[\x{2022}\x{25E6}\x{25AA}\x{25CF}\x{00B7}\x{2023}\x{2043}][ \t]*`)

// NormalizeBullets replaces bullet glyphs with "- " so lists render as
// markdown lists.
func NormalizeBullets(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		replaced := false
		lines[i] = marker.Rewrite(line, func(t string, _ bool) string {
			if replaced || strings.TrimSpace(t) == "" {
				return t
			}
			if m := bulletRe.FindStringSubmatch(t); m != nil {
				replaced = true
				return m[1] + "- " + t[len(m[0]):]
			}
			replaced = true // first non-blank segment did not start with a bullet
			return t
		})
	}
	return strings.Join(lines, "\n")
}

// joinedWordsRe matches an OCR word join: at least two lowercase letters
// running straight into a capitalized word. Short prefixes stay glued so
// names like McGuffin survive.
var joinedWordsRe = regexp.MustCompile(`(\p{Ll}{2})(\p{Lu}\p{Ll})`)

// RestoreSpaces inserts the space lost between words where a
// lowercase-to-uppercase transition inside a token signals a join.
func RestoreSpaces(text string) string {
	return marker.Rewrite(text, func(t string, _ bool) string {
		return joinedWordsRe.ReplaceAllString(t, "$1 $2")
	})
}

// CollapseTokenSpace removes doubled whitespace inside lines left behind
// by earlier joins.
func CollapseTokenSpace(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		line = marker.Rewrite(line, func(t string, _ bool) string {
			return hspaceRe.ReplaceAllString(t, " ")
		})
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.Join(lines, "\n")
}
