package hierarchy

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/taji/gm-kit/internal/callout"
	"github.com/taji/gm-kit/internal/images"
	"github.com/taji/gm-kit/internal/marker"
	"github.com/taji/gm-kit/internal/sig"
)

var pageCommentRe = regexp.MustCompile(`^<!-- page (\d+) -->$`)

// SplitEmbeddedHeadings moves heading markers flagged by phase 7 onto
// their own lines so the rewrite sees them as headings.
func SplitEmbeddedHeadings(text string, reg *sig.Registry) string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		segs := marker.Split(line)
		cut := -1
		for i, sg := range segs {
			if sg.SigID == "" || i == 0 {
				continue
			}
			s := reg.Get(sg.SigID)
			if s == nil || !s.EmbeddedHeading {
				continue
			}
			if _, ok := s.Label.IsHeading(); ok {
				cut = i
				break
			}
		}
		if cut < 0 {
			out = append(out, line)
			continue
		}
		head := strings.TrimRight(marker.Join(segs[:cut]), " \t")
		rest := marker.Join(segs[cut:])
		if strings.TrimSpace(marker.Strip(head)) != "" {
			out = append(out, head)
		}
		// The remainder may hold further embedded headings; recurse via
		// the same pass on the tail.
		out = append(out, strings.Split(SplitEmbeddedHeadings(rest, reg), "\n")...)
	}
	return strings.Join(out, "\n")
}

// renderer is the marker-to-markdown state machine. One instance renders
// one document top to bottom.
type renderer struct {
	reg      *sig.Registry
	cfg      callout.Config
	keywords []callout.Keyword

	out          []string
	activeLabel  string // current callout label, "" when closed
	rangeOpen    bool   // callout was opened by a configured start_text
	rangeEnd     string // its end_text
	codeBlock    []string
}

// Render rewrites the full phase 6 text.
func (r *renderer) Render(text string) string {
	for _, line := range strings.Split(text, "\n") {
		r.renderLine(line)
	}
	r.flushCode()
	return strings.Join(r.out, "\n")
}

func (r *renderer) emit(line string) {
	r.out = append(r.out, line)
}

func (r *renderer) closeCallout() {
	r.activeLabel = ""
	r.rangeOpen = false
	r.rangeEnd = ""
}

func (r *renderer) flushCode() {
	if len(r.codeBlock) == 0 {
		return
	}
	if len(r.codeBlock) == 1 {
		r.emit("`" + r.codeBlock[0] + "`")
	} else {
		r.emit("```")
		r.out = append(r.out, r.codeBlock...)
		r.emit("```")
	}
	r.codeBlock = nil
}

func (r *renderer) renderLine(line string) {
	trimmed := strings.TrimSpace(line)
	if pageCommentRe.MatchString(trimmed) {
		r.flushCode()
		r.emit(trimmed)
		return
	}
	if trimmed == "" {
		r.flushCode()
		if r.activeLabel != "" {
			r.emit(">")
		} else {
			r.emit("")
		}
		return
	}

	segs := marker.Split(line)
	lead := r.leadSignature(segs)

	// Configured ranges open on raw text regardless of signature labels.
	plain := marker.Strip(line)
	if r.activeLabel == "" {
		for i := range r.cfg {
			if strings.Contains(plain, r.cfg[i].StartText) {
				r.activeLabel = r.cfg[i].EffectiveLabel()
				r.rangeOpen = true
				r.rangeEnd = r.cfg[i].EndText
				break
			}
		}
	}

	if lead != nil {
		if level, ok := lead.Label.IsHeading(); ok {
			r.flushCode()
			r.closeCallout()
			r.emit("")
			r.emit(strings.Repeat("#", level) + " " + r.inlineText(segs, lead.ID))
			return
		}
		switch {
		case lead.Label == sig.LabelCode:
			r.codeBlock = append(r.codeBlock, r.plainText(segs))
			return
		case lead.Label == sig.LabelQuote:
			r.flushCode()
			r.emit("> *" + r.plainText(segs) + "*")
			return
		case lead.Label == sig.LabelQuoteAuthor:
			r.flushCode()
			r.emit("> — " + r.plainText(segs))
			return
		case lead.Label.IsCallout():
			r.flushCode()
			if r.activeLabel != "" && r.activeLabel != string(lead.Label) && !r.rangeOpen {
				r.closeCallout()
			}
			if r.activeLabel == "" {
				r.activeLabel = string(lead.Label)
			}
			r.emitCallout(plainTextOf(segs, r.reg))
			r.checkRangeEnd(plain)
			return
		}
	}

	// Body (or unlabeled) line.
	r.flushCode()
	body := r.bodyText(segs)
	if r.activeLabel != "" {
		if r.rangeOpen {
			r.emitCallout(body)
			r.checkRangeEnd(plain)
			return
		}
		// A signature-opened callout ends at the next plain body marker.
		r.closeCallout()
	}
	if strings.TrimSpace(body) != "" {
		r.emit(body)
	}
}

func (r *renderer) checkRangeEnd(plain string) {
	if r.rangeOpen && r.rangeEnd != "" && strings.Contains(plain, r.rangeEnd) {
		r.closeCallout()
	}
}

// emitCallout writes one blockquote line, bolding a known GM keyword.
func (r *renderer) emitCallout(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		r.emit(">")
		return
	}
	for _, kw := range r.keywords {
		if strings.HasPrefix(text, kw.Pattern) {
			rest := strings.TrimSpace(strings.TrimPrefix(text, kw.Pattern))
			r.emit("> **" + strings.TrimSuffix(kw.Pattern, ":") + ":** " + rest)
			return
		}
	}
	r.emit("> " + text)
}

// leadSignature returns the signature of the first non-skip marker.
func (r *renderer) leadSignature(segs []marker.Segment) *sig.Signature {
	for _, sg := range segs {
		if sg.SigID == "" {
			continue
		}
		s := r.reg.Get(sg.SigID)
		if s == nil || s.Label == sig.LabelSkip {
			continue
		}
		return s
	}
	return nil
}

// inlineText renders a heading line: the lead signature's text plus any
// trailing non-skip text.
func (r *renderer) inlineText(segs []marker.Segment, leadID string) string {
	var parts []string
	for _, sg := range segs {
		if sg.SigID == "" {
			if t := strings.TrimSpace(sg.Text); t != "" {
				parts = append(parts, t)
			}
			continue
		}
		s := r.reg.Get(sg.SigID)
		if s != nil && s.Label == sig.LabelSkip {
			continue
		}
		if t := strings.TrimSpace(sg.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}

// plainText drops skip segments and strips marker syntax.
func (r *renderer) plainText(segs []marker.Segment) string {
	return plainTextOf(segs, r.reg)
}

func plainTextOf(segs []marker.Segment, reg *sig.Registry) string {
	var b strings.Builder
	for _, sg := range segs {
		if sg.SigID != "" {
			s := reg.Get(sg.SigID)
			if s != nil && s.Label == sig.LabelSkip {
				continue
			}
		}
		b.WriteString(sg.Text)
	}
	return strings.TrimSpace(b.String())
}

// bodyText renders a body line: skip segments vanish, inline code
// segments get backticks, everything else passes through.
func (r *renderer) bodyText(segs []marker.Segment) string {
	var b strings.Builder
	for _, sg := range segs {
		if sg.SigID == "" {
			b.WriteString(sg.Text)
			continue
		}
		s := r.reg.Get(sg.SigID)
		if s != nil {
			switch {
			case s.Label == sig.LabelSkip:
				continue
			case s.Label == sig.LabelCode:
				b.WriteString("`" + sg.Text + "`")
				continue
			}
		}
		b.WriteString(sg.Text)
	}
	return strings.TrimRight(b.String(), " \t")
}

// InsertImageRefs places a commented-out image link for every manifest
// entry at its page boundary, ordered top of page first, then strips the
// page boundary comments. Placement is approximate by design: the user
// uncomments and moves references while reviewing.
func InsertImageRefs(text string, manifest []images.ManifestEntry) (string, int) {
	byPage := make(map[int][]images.ManifestEntry)
	for _, e := range manifest {
		byPage[e.Page] = append(byPage[e.Page], e)
	}
	for pg := range byPage {
		entries := byPage[pg]
		sort.SliceStable(entries, func(i, j int) bool {
			if entries[i].Y != entries[j].Y {
				return entries[i].Y > entries[j].Y // top of page first
			}
			return entries[i].Filename < entries[j].Filename
		})
	}

	placed := 0
	var out []string
	for _, line := range strings.Split(text, "\n") {
		m := pageCommentRe.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			out = append(out, line)
			continue
		}
		pg := atoi(m[1])
		for _, e := range byPage[pg] {
			out = append(out, fmt.Sprintf("<!-- ![description](images/%s) -->", e.Filename))
			placed++
		}
		delete(byPage, pg)
	}

	// Entries whose page comment vanished still land at the end rather
	// than being dropped.
	var rest []int
	for pg := range byPage {
		rest = append(rest, pg)
	}
	sort.Ints(rest)
	for _, pg := range rest {
		for _, e := range byPage[pg] {
			out = append(out, fmt.Sprintf("<!-- ![description](images/%s) -->", e.Filename))
			placed++
		}
	}
	return strings.Join(out, "\n"), placed
}

func atoi(s string) int {
	n := 0
	for _, r := range s {
		n = n*10 + int(r-'0')
	}
	return n
}

var headingRe = regexp.MustCompile(`^(#{1,6}) (.*)$`)

// EnforceSingleH1 keeps the first top-level heading, demotes any later
// H1 to H2 cascading its section down a level, and forbids level skips.
// A document with no H1 at all gains one from the title.
func EnforceSingleH1(text, title string) string {
	lines := strings.Split(text, "\n")

	seenH1 := false
	demote := false
	inFence := false
	for i, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			inFence = !inFence
			continue
		}
		if inFence {
			continue
		}
		m := headingRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		level := len(m[1])
		if level == 1 {
			if !seenH1 {
				seenH1 = true
				demote = false
			} else {
				level = 2
				demote = true
			}
		} else if demote {
			level++
		}
		if level > 6 {
			level = 6
		}
		lines[i] = strings.Repeat("#", level) + " " + m[2]
	}

	// Second pass: no heading may skip a level below its ancestors.
	prev := 0
	inFence = false
	for i, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			inFence = !inFence
			continue
		}
		if inFence {
			continue
		}
		m := headingRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		level := len(m[1])
		if prev == 0 && level > 1 {
			// Content before any H1; leave room for the synthesized one.
			prev = 1
		}
		if level > prev+1 {
			level = prev + 1
		}
		prev = level
		lines[i] = strings.Repeat("#", level) + " " + m[2]
	}

	if !seenH1 {
		withTitle := append([]string{"# " + title, ""}, lines...)
		return strings.Join(withTitle, "\n")
	}
	return strings.Join(lines, "\n")
}

var htmlTagRe = regexp.MustCompile(`</?[a-zA-Z][a-zA-Z0-9-]*(\s[^<>]*)?/?>`)

// GuardSensitiveText wraps raw HTML tags in backticks and escapes
// heading-like body lines so source text cannot change the document
// structure when rendered. Comments, headings, blockquotes and code are
// left alone.
func GuardSensitiveText(text string) string {
	lines := strings.Split(text, "\n")
	inFence := false
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") {
			inFence = !inFence
			continue
		}
		if inFence || trimmed == "" {
			continue
		}
		if strings.HasPrefix(trimmed, "#") && headingRe.MatchString(line) {
			continue
		}
		if strings.HasPrefix(trimmed, ">") || strings.HasPrefix(trimmed, "<!--") {
			continue
		}
		line = htmlTagRe.ReplaceAllStringFunc(line, func(tag string) string {
			return "`" + tag + "`"
		})
		// A body line that begins like a heading would fabricate one.
		if strings.HasPrefix(strings.TrimLeft(line, " \t"), "#") {
			idx := strings.Index(line, "#")
			line = line[:idx] + "\\" + line[idx:]
		}
		lines[i] = line
	}
	return strings.Join(lines, "\n")
}
