// Package marker implements the «sigNNN:text» wrapper protocol that carries
// font signature identity through the cleanup phases.
package marker

import (
	"fmt"
	"regexp"
	"strings"
)

// Re is the marker grammar. The text group excludes a closing guillemet
// but tolerates the escape sequence \» so escaped source guillemets can
// ride inside marker text; on escape-free text it is equivalent to the
// strict form «(sig[a-z0-9]+):([^»]+)».
var Re = regexp.MustCompile(`«(sig[a-z0-9]+):((?:\\»|[^»])+)»`)

// Format wraps text in a marker for the given signature id.
func Format(sigID, text string) string {
	return "«" + sigID + ":" + text + "»"
}

// Escape protects guillemets that occur in source text so they cannot be
// confused with marker delimiters.
func Escape(s string) string {
	s = strings.ReplaceAll(s, "«", `\«`)
	return strings.ReplaceAll(s, "»", `\»`)
}

// Unescape restores guillemets escaped by Escape. Called once, after all
// marker processing is finished.
func Unescape(s string) string {
	s = strings.ReplaceAll(s, `\«`, "«")
	return strings.ReplaceAll(s, `\»`, "»")
}

// Segment is one slice of a marker-bearing line: either the interior of a
// marker (SigID set) or plain text between markers (SigID empty).
type Segment struct {
	SigID string
	Text  string
}

// Split decomposes s into an alternating sequence of gap and marker
// segments. Concatenating the rendered segments reproduces s exactly.
func Split(s string) []Segment {
	var segs []Segment
	idx := Re.FindAllStringSubmatchIndex(s, -1)
	pos := 0
	for _, m := range idx {
		if m[0] > pos {
			segs = append(segs, Segment{Text: s[pos:m[0]]})
		}
		segs = append(segs, Segment{SigID: s[m[2]:m[3]], Text: s[m[4]:m[5]]})
		pos = m[1]
	}
	if pos < len(s) {
		segs = append(segs, Segment{Text: s[pos:]})
	}
	return segs
}

// Join renders segments back into marker syntax.
func Join(segs []Segment) string {
	var b strings.Builder
	for _, sg := range segs {
		if sg.SigID == "" {
			b.WriteString(sg.Text)
			continue
		}
		b.WriteString(Format(sg.SigID, sg.Text))
	}
	return b.String()
}

// Rewrite applies fn to every text segment of s — marker interiors and the
// gaps between markers — while leaving signature ids and delimiters
// untouched. Every cleanup rule goes through here so that no rule can
// split a marker or corrupt its id. fn must not introduce unescaped
// guillemets; Rewrite re-escapes any it finds as a safety net.
func Rewrite(s string, fn func(text string, inMarker bool) string) string {
	segs := Split(s)
	for i := range segs {
		out := fn(segs[i].Text, segs[i].SigID != "")
		if strings.ContainsAny(out, "«»") {
			out = sanitize(out)
		}
		segs[i].Text = out
	}
	return Join(segs)
}

// sanitize escapes bare guillemets, leaving already-escaped ones alone.
func sanitize(s string) string {
	var b strings.Builder
	for i, r := range s {
		if (r == '«' || r == '»') && !escapedAt(s, i) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

func escapedAt(s string, i int) bool {
	return i > 0 && s[i-1] == '\\'
}

// Coalesce merges runs of adjacent markers that share a signature id into
// a single marker whose text is the concatenation. sep is inserted
// between the merged texts ("" for same-line spans, " " across a joined
// line break).
func Coalesce(segs []Segment, sep string) []Segment {
	var out []Segment
	for _, sg := range segs {
		n := len(out)
		if n > 0 && sg.SigID != "" && out[n-1].SigID == sg.SigID {
			out[n-1].Text += sep + sg.Text
			continue
		}
		out = append(out, sg)
	}
	return out
}

// Strip removes all marker syntax from s, leaving the carried text.
func Strip(s string) string {
	return Re.ReplaceAllString(s, "$2")
}

// Validate checks that s contains no malformed marker syntax: every
// guillemet is either part of a well-formed marker or escaped.
func Validate(s string) error {
	clean := Re.ReplaceAllString(s, "")
	for i, r := range clean {
		if (r == '«' || r == '»') && !escapedAt(clean, i) {
			return fmt.Errorf("stray %q at offset %d", r, i)
		}
	}
	return nil
}
