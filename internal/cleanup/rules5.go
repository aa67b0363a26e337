package cleanup

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/taji/gm-kit/internal/marker"
)

// GutterWhitespace collapses the horizontal space runs that two-column
// gutter alignment leaves inside extracted lines.
func GutterWhitespace(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		line = marker.Rewrite(line, func(t string, _ bool) string {
			return hspaceRe.ReplaceAllString(t, " ")
		})
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.Join(lines, "\n")
}

var hspaceRe = regexp.MustCompile(`[ \t]{2,}`)

// Dehyphenate rejoins words split by end-of-line hyphenation:
// "investi-\ngator" becomes "investigator". Compound hyphens survive
// because the join requires the continuation to start lowercase.
func Dehyphenate(text string) string {
	lines := strings.Split(text, "\n")
	var out []string
	i := 0
	for i < len(lines) {
		cur := lines[i]
		for i+1 < len(lines) {
			next := lines[i+1]
			joined, ok := joinHyphenated(cur, next)
			if !ok {
				break
			}
			cur = joined
			i++
		}
		out = append(out, cur)
		i++
	}
	return strings.Join(out, "\n")
}

// joinHyphenated merges next onto cur when cur ends with a hyphenated
// word fragment and next continues it in lowercase. Markers with the
// same signature merge into one; different signatures stay adjacent.
func joinHyphenated(cur, next string) (string, bool) {
	curSegs := marker.Split(cur)
	nextSegs := marker.Split(strings.TrimLeft(next, " \t"))
	if len(curSegs) == 0 || len(nextSegs) == 0 {
		return "", false
	}
	last := &curSegs[len(curSegs)-1]
	first := nextSegs[0]
	if !strings.HasSuffix(last.Text, "-") || len(last.Text) < 2 {
		return "", false
	}
	if !startsLower(first.Text) || !endsLetter(strings.TrimSuffix(last.Text, "-")) {
		return "", false
	}
	last.Text = strings.TrimSuffix(last.Text, "-")
	merged := append(curSegs, nextSegs...)
	return marker.Join(marker.Coalesce(merged, "")), true
}

func startsLower(s string) bool {
	for _, r := range s {
		return r >= 'a' && r <= 'z' || r >= 'à' && r <= 'ÿ'
	}
	return false
}

func endsLetter(s string) bool {
	rs := []rune(s)
	if len(rs) == 0 {
		return false
	}
	r := rs[len(rs)-1]
	return r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= 'À' && r <= 'ÿ'
}

// FlowLineBreaks joins mid-sentence hard line breaks into paragraph
// flow. Intentional breaks survive: blank lines, list items, page
// comments, and lines whose continuation starts with anything but a
// lowercase letter.
func FlowLineBreaks(text string) string {
	lines := strings.Split(text, "\n")
	var out []string
	i := 0
	for i < len(lines) {
		cur := lines[i]
		for i+1 < len(lines) && flowJoinable(cur, lines[i+1]) {
			next := strings.TrimLeft(lines[i+1], " \t")
			segs := marker.Split(cur)
			nextSegs := marker.Split(next)
			// Same-signature markers merge with a space inside the
			// marker; anything else gets the space between them.
			if len(segs) > 0 && len(nextSegs) > 0 {
				a, b := segs[len(segs)-1], nextSegs[0]
				if a.SigID == "" || a.SigID != b.SigID {
					segs = append(segs, marker.Segment{Text: " "})
				}
			}
			cur = marker.Join(marker.Coalesce(append(segs, nextSegs...), " "))
			i++
		}
		out = append(out, cur)
		i++
	}
	return strings.Join(out, "\n")
}

var listStartRe = regexp.MustCompile(`^\s*([-*\x{2022}\x{25E6}\x{25AA}\x{00B7}]|\d+[.)]\s)`)

func flowJoinable(cur, next string) bool {
	curText := strings.TrimSpace(marker.Strip(cur))
	nextTrim := strings.TrimLeft(next, " \t")
	nextText := strings.TrimSpace(marker.Strip(nextTrim))
	if curText == "" || nextText == "" {
		return false
	}
	if strings.HasPrefix(curText, "<!--") || strings.HasPrefix(nextText, "<!--") {
		return false
	}
	if listStartRe.MatchString(nextText) || listStartRe.MatchString(curText) {
		return false
	}
	if strings.ContainsAny(string(curText[len(curText)-1]), ".!?:;\"'") {
		return false
	}
	return startsLower(nextText)
}

// garbled maps the mojibake sequences common in RPG PDFs (CP1252 text
// mis-decoded as UTF-8) and the typographic ligatures to their plain
// forms. Longer sequences must precede their prefixes.
var garbled = strings.NewReplacer(
	"\u00e2\u20ac\u2122", "'", // garbled right single quote
	"\u00e2\u20ac\u02dc", "'", // garbled left single quote
	"\u00e2\u20ac\u0153", "\"", // garbled left double quote
	"\u00e2\u20ac\u201d", "\u2014", // garbled em dash
	"\u00e2\u20ac\u201c", "\u2013", // garbled en dash
	"\u00e2\u20ac\u00a6", "...", // garbled ellipsis
	"\u00e2\u20ac", "\"", // garbled right double quote (trailing byte lost)
	"\u00c3\u00a9", "\u00e9",
	"\u00c3\u00a8", "\u00e8",
	"\u00c3\u00bc", "\u00fc",
	"\u00c3\u00b6", "\u00f6",
	"\u00c3\u00a4", "\u00e4",
	"\ufb00", "ff",
	"\ufb01", "fi",
	"\ufb02", "fl",
	"\ufb03", "ffi",
	"\ufb04", "ffl",
	"\u00ad", "", // soft hyphen
	"\u200b", "", // zero-width space
	"\u00a0", " ", // no-break space
)

// RepairUnicode replaces known garbled sequences, NFC-normalizes, and
// substitutes invalid bytes with U+FFFD.
func RepairUnicode(text string) string {
	return marker.Rewrite(text, func(t string, _ bool) string {
		t = strings.ToValidUTF8(t, "\uFFFD")
		t = garbled.Replace(t)
		return norm.NFC.String(t)
	})
}

// straightener maps typographic quotes and dashes to plain forms.
// Straight quotes always win: the downstream reader is an AI agent, and
// consistency beats typography.
var straightener = strings.NewReplacer(
	"\u2018", "'",
	"\u2019", "'",
	"\u201a", "'",
	"\u201c", "\"",
	"\u201d", "\"",
	"\u201e", "\"",
	"\u2013", "-", // en dash
	"\u2014", "--", // em dash
	"\u2026", "...",
)

// NormalizePunctuation straightens smart quotes and normalizes en and em
// dashes.
func NormalizePunctuation(text string) string {
	return marker.Rewrite(text, func(t string, _ bool) string {
		return straightener.Replace(t)
	})
}

// CollapseBlankLines bounds runs of blank lines at two.
func CollapseBlankLines(text string) string {
	lines := strings.Split(text, "\n")
	var out []string
	blanks := 0
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			blanks++
			if blanks > 2 {
				continue
			}
			out = append(out, "")
			continue
		}
		blanks = 0
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}
