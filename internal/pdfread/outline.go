package pdfread

import (
	"os"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
)

// OutlineEntry is one flattened TOC entry. Level 1 is the top of the
// outline tree.
type OutlineEntry struct {
	Level int
	Title string
	Page  int
}

// Outline flattens the embedded outline tree in document order. A
// document without an outline returns an empty slice, not an error.
func (r *Reader) Outline() ([]OutlineEntry, error) {
	f, err := os.Open(r.path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	bms, err := api.Bookmarks(f, r.conf)
	if err != nil {
		// pdfcpu reports "no bookmarks" as an error; treat it as empty.
		if strings.Contains(err.Error(), "no bookmarks") {
			return nil, nil
		}
		return nil, err
	}
	var entries []OutlineEntry
	flattenBookmarks(bms, 1, &entries)
	return entries, nil
}

func flattenBookmarks(bms []pdfcpu.Bookmark, level int, out *[]OutlineEntry) {
	for _, bm := range bms {
		title := strings.TrimSpace(cleanText(bm.Title))
		if title != "" {
			*out = append(*out, OutlineEntry{Level: level, Title: title, Page: bm.PageFrom})
		}
		flattenBookmarks(bm.Kids, level+1, out)
	}
}

// MaxDepth returns the deepest level in entries (1 = flat outline, 0 = no
// outline).
func MaxDepth(entries []OutlineEntry) int {
	depth := 0
	for _, e := range entries {
		if e.Level > depth {
			depth = e.Level
		}
	}
	return depth
}
