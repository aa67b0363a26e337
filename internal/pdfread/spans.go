package pdfread

import (
	"fmt"
	"regexp"
	"strings"
)

// Span is one styled text run on a page, in content-stream order.
type Span struct {
	Page   int
	Text   string
	Family string
	Size   float64
	Weight int
	Style  string
	X, Y   float64
	W      float64
}

// Font weights and styles. PDF font programs rarely expose numeric
// weights, so bold detection comes from the PostScript name.
const (
	WeightNormal = 400
	WeightBold   = 700

	StyleNormal  = "normal"
	StyleItalic  = "italic"
	StyleOblique = "oblique"
)

// Spans returns the styled runs of a 1-indexed page. Runs are returned in
// the order the content stream paints them.
func (r *Reader) Spans(pageNr int) (spans []Span, err error) {
	// The text layer parser panics on exotic content streams; degrade to
	// an empty page instead of taking down the pipeline.
	defer func() {
		if rec := recover(); rec != nil {
			spans = nil
			err = fmt.Errorf("page %d: text layer unreadable: %v", pageNr, rec)
		}
	}()

	p := r.styled.Page(pageNr)
	if p.V.IsNull() {
		return nil, nil
	}
	content := p.Content()
	for _, t := range content.Text {
		if t.S == "" {
			continue
		}
		family, weight, style := ParseFontName(t.Font)
		spans = append(spans, Span{
			Page:   pageNr,
			Text:   cleanText(t.S),
			Family: family,
			Size:   t.FontSize,
			Weight: weight,
			Style:  style,
			X:      t.X,
			Y:      t.Y,
			W:      t.W,
		})
	}
	return spans, nil
}

// ExtractableChars counts text characters across the whole document, the
// pre-flight measure that separates text PDFs from scans.
func (r *Reader) ExtractableChars() int {
	total := 0
	for p := 1; p <= r.PageCount(); p++ {
		spans, err := r.Spans(p)
		if err != nil {
			continue
		}
		for _, s := range spans {
			total += len(strings.TrimSpace(s.Text))
		}
	}
	return total
}

// FontFamilies returns the distinct base family names in the document.
// Weight and style variants collapse into one family here — the
// pre-flight complexity estimate counts coarser than signature identity.
func (r *Reader) FontFamilies() []string {
	seen := make(map[string]bool)
	var families []string
	for p := 1; p <= r.PageCount(); p++ {
		spans, err := r.Spans(p)
		if err != nil {
			continue
		}
		for _, s := range spans {
			if !seen[s.Family] {
				seen[s.Family] = true
				families = append(families, s.Family)
			}
		}
	}
	return families
}

var subsetTagRe = regexp.MustCompile(`^[A-Z]{6}\+`)

// styleSuffixes are matched against the tail of a PostScript font name,
// longest first.
var styleSuffixes = []struct {
	suffix string
	weight int
	style  string
}{
	{"bolditalic", WeightBold, StyleItalic},
	{"boldoblique", WeightBold, StyleOblique},
	{"semibolditalic", WeightBold, StyleItalic},
	{"semibold", WeightBold, StyleNormal},
	{"black", WeightBold, StyleNormal},
	{"heavy", WeightBold, StyleNormal},
	{"bold", WeightBold, StyleNormal},
	{"italic", WeightNormal, StyleItalic},
	{"oblique", WeightNormal, StyleOblique},
	{"it", WeightNormal, StyleItalic},
	{"regular", WeightNormal, StyleNormal},
	{"roman", WeightNormal, StyleNormal},
	{"medium", WeightNormal, StyleNormal},
	{"light", WeightNormal, StyleNormal},
}

// ParseFontName splits a PostScript font name into base family, weight
// and style. Subset tags ("ABCDEF+") are stripped; style words after the
// last hyphen or comma decide weight and slant.
func ParseFontName(name string) (family string, weight int, style string) {
	weight, style = WeightNormal, StyleNormal
	name = subsetTagRe.ReplaceAllString(name, "")
	if name == "" {
		return "Unknown", weight, style
	}

	base := name
	for _, sep := range []string{"-", ","} {
		if i := strings.LastIndex(base, sep); i > 0 {
			tail := strings.ToLower(strings.ReplaceAll(base[i+1:], " ", ""))
			for _, ss := range styleSuffixes {
				if tail == ss.suffix {
					weight, style = ss.weight, ss.style
					base = base[:i]
					break
				}
			}
		}
	}

	// Style words embedded without a separator (e.g. "ArialBoldItalic").
	lower := strings.ToLower(base)
	if strings.HasSuffix(lower, "bolditalic") {
		weight, style = WeightBold, StyleItalic
		base = base[:len(base)-len("bolditalic")]
	} else if strings.HasSuffix(lower, "bold") {
		weight = WeightBold
		base = base[:len(base)-len("bold")]
	} else if strings.HasSuffix(lower, "italic") {
		style = StyleItalic
		base = base[:len(base)-len("italic")]
	}

	base = strings.TrimRight(base, "-, ")
	if base == "" {
		base = name
	}
	return base, weight, style
}
