package pdfread

import "testing"

func TestParseFontName(t *testing.T) {
	tests := []struct {
		in     string
		family string
		weight int
		style  string
	}{
		{"Times-Bold", "Times", WeightBold, StyleNormal},
		{"Times-Roman", "Times", WeightNormal, StyleNormal},
		{"Times-BoldItalic", "Times", WeightBold, StyleItalic},
		{"Helvetica-Oblique", "Helvetica", WeightNormal, StyleOblique},
		{"ABCDEF+MinionPro-It", "MinionPro", WeightNormal, StyleItalic},
		{"ABCDEF+MinionPro-Semibold", "MinionPro", WeightBold, StyleNormal},
		{"Arial,Bold", "Arial", WeightBold, StyleNormal},
		{"ArialBoldItalic", "Arial", WeightBold, StyleItalic},
		{"Courier", "Courier", WeightNormal, StyleNormal},
		{"", "Unknown", WeightNormal, StyleNormal},
	}
	for _, tt := range tests {
		family, weight, style := ParseFontName(tt.in)
		if family != tt.family || weight != tt.weight || style != tt.style {
			t.Errorf("ParseFontName(%q) = %q/%d/%q, want %q/%d/%q",
				tt.in, family, weight, style, tt.family, tt.weight, tt.style)
		}
	}
}

func TestMaxDepth(t *testing.T) {
	entries := []OutlineEntry{{Level: 1}, {Level: 3}, {Level: 2}}
	if got := MaxDepth(entries); got != 3 {
		t.Fatalf("depth %d", got)
	}
	if got := MaxDepth(nil); got != 0 {
		t.Fatalf("empty depth %d", got)
	}
}
