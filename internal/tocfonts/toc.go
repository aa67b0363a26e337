package tocfonts

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/taji/gm-kit/internal/pdfread"
)

// Entry is one parsed line of toc-extracted.txt.
type Entry struct {
	Level int
	Title string
	Page  int
}

// WriteTOC writes outline entries as level|title|page lines. Pipes in
// titles are replaced so the line stays parseable.
func WriteTOC(path string, entries []pdfread.OutlineEntry) error {
	var b strings.Builder
	for _, e := range entries {
		title := strings.ReplaceAll(e.Title, "|", "/")
		fmt.Fprintf(&b, "%d|%s|%d\n", e.Level, title, e.Page)
	}
	return os.WriteFile(path, []byte(b.String()), 0644)
}

// ParseTOC parses the level|title|page format. Blank lines are ignored;
// anything else malformed is an error so a bad agent response gets
// retried rather than silently accepted.
func ParseTOC(text string) ([]Entry, error) {
	var entries []Entry
	for i, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, "|", 3)
		if len(parts) != 3 {
			return nil, fmt.Errorf("line %d: want level|title|page, got %q", i+1, line)
		}
		level, err := strconv.Atoi(strings.TrimSpace(parts[0]))
		if err != nil || level < 1 {
			return nil, fmt.Errorf("line %d: bad level %q", i+1, parts[0])
		}
		page, err := strconv.Atoi(strings.TrimSpace(parts[2]))
		if err != nil {
			return nil, fmt.Errorf("line %d: bad page %q", i+1, parts[2])
		}
		title := strings.TrimSpace(parts[1])
		if title == "" {
			return nil, fmt.Errorf("line %d: empty title", i+1)
		}
		entries = append(entries, Entry{Level: level, Title: title, Page: page})
	}
	return entries, nil
}
