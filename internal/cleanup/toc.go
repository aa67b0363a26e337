package cleanup

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/taji/gm-kit/internal/marker"
	"github.com/taji/gm-kit/internal/phase"
	"github.com/taji/gm-kit/internal/tocfonts"
)

// leaderRe matches a TOC leader tail: dot runs padding out to a page
// number.
var leaderRe = regexp.MustCompile(`\s*\.{2,}\s*(\d+)\s*$`)

// stepTOCRegion strips leader dots and re-indents the printed contents
// block using the extracted outline levels.
func stepTOCRegion(ctx context.Context, env *phase.Env) (*phase.StepOutput, error) {
	text, err := readWorking(env, 5)
	if err != nil {
		return nil, err
	}

	var toc []tocfonts.Entry
	if data, err := os.ReadFile(env.Artifact(tocfonts.TOCFileName)); err == nil {
		toc, _ = tocfonts.ParseTOC(string(data))
	}

	out := CleanTOCRegion(text, toc)
	if err := writeWorking(env, 5, out); err != nil {
		return nil, err
	}
	return phase.OK(), nil
}

// CleanTOCRegion rewrites TOC-looking lines: leader dots collapse to a
// single space before the page number, and lines matching an outline
// title are indented two spaces per level below the top.
func CleanTOCRegion(text string, toc []tocfonts.Entry) string {
	levelByTitle := make(map[string]int, len(toc))
	for _, e := range toc {
		levelByTitle[normalizeTitle(e.Title)] = e.Level
	}

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		if !leaderRe.MatchString(marker.Strip(line)) {
			continue
		}
		line = marker.Rewrite(line, func(t string, _ bool) string {
			return leaderRe.ReplaceAllString(t, " $1")
		})
		if len(levelByTitle) > 0 {
			title := normalizeTitle(leaderRe.ReplaceAllString(marker.Strip(lines[i]), ""))
			if level, ok := levelByTitle[title]; ok && level > 1 {
				line = strings.Repeat("  ", level-1) + strings.TrimLeft(line, " \t")
			}
		}
		lines[i] = line
	}
	return strings.Join(lines, "\n")
}

func normalizeTitle(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(strings.TrimSpace(s))), " ")
}

// mergedItemRe finds a numbered item glued onto the text before it:
// "3.First item 4.Second item". The uppercase requirement and the
// sequence check below keep false positives down — a wrong split drops
// no text but does reshape a line.
var mergedItemRe = regexp.MustCompile(`(\S)\s+(\d+)\.\s*(\p{Lu})`)

var leadingItemRe = regexp.MustCompile(`^\s*(\d+)[.)]`)

// stepListSplit is phase 6's merged-list repair. Deliberately
// conservative: it only splits when the glued number continues the
// sequence started at the head of the line, and it reports a diagnostic
// count instead of reshaping silently.
func stepListSplit(ctx context.Context, env *phase.Env) (*phase.StepOutput, error) {
	text, err := readWorking(env, 6)
	if err != nil {
		return nil, err
	}
	out, splits := SplitMergedListItems(text)
	if err := writeWorking(env, 6, out); err != nil {
		return nil, err
	}
	res := &phase.StepOutput{OutputFile: env.DocName + "-phase6.md"}
	if splits > 0 {
		res.Message = fmt.Sprintf("%d merged list items split", splits)
	}
	return res, nil
}

// SplitMergedListItems breaks "N.Item N+1.Item" runs onto separate
// lines, returning the rewritten text and the number of splits applied.
func SplitMergedListItems(text string) (string, int) {
	splits := 0
	lines := strings.Split(text, "\n")
	var out []string
	for _, line := range lines {
		m := leadingItemRe.FindStringSubmatch(marker.Strip(line))
		if m == nil {
			out = append(out, line)
			continue
		}
		expect := atoiSafe(m[1]) + 1
		segs := marker.Split(line)
		var rebuilt []string
		current := ""
		for _, sg := range segs {
			if sg.SigID == "" {
				current += sg.Text
				continue
			}
			pieces, n := splitSegment(sg, &expect)
			splits += n
			current += pieces[0]
			for _, p := range pieces[1:] {
				rebuilt = append(rebuilt, current)
				current = p
			}
		}
		rebuilt = append(rebuilt, current)
		out = append(out, rebuilt...)
	}
	return strings.Join(out, "\n"), splits
}

// splitSegment cuts one marker's text at each in-sequence merged item,
// producing same-signature markers for each piece.
func splitSegment(sg marker.Segment, expect *int) ([]string, int) {
	text := sg.Text
	var pieces []string
	n := 0
	for {
		loc := mergedItemRe.FindStringSubmatchIndex(text)
		if loc == nil {
			break
		}
		numStart, numEnd := loc[4], loc[5]
		if atoiSafe(text[numStart:numEnd]) != *expect {
			break
		}
		head := strings.TrimRight(text[:loc[3]], " ")
		pieces = append(pieces, marker.Format(sg.SigID, head))
		text = text[numStart:]
		*expect++
		n++
	}
	pieces = append(pieces, marker.Format(sg.SigID, text))
	return pieces, n
}

func atoiSafe(s string) int {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return -1
		}
		n = n*10 + int(r-'0')
	}
	return n
}
