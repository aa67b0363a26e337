package sig

import (
	"strings"
	"unicode"
)

// minReadableSize is the point size below which an unlabeled signature is
// treated as page chrome (page numbers, footers) and skipped.
const minReadableSize = 8.0

// InferLabels pre-fills labels from the layered inference ladder:
// document title, then TOC matches, then font heuristics. User overrides
// applied later always win; this never overwrites a label that is already
// set. tocLevels maps signature ids to 1-based TOC levels established by
// matching outline titles against document spans.
func (r *Registry) InferLabels(titleSigID string, tocLevels map[string]int) {
	if s := r.Get(titleSigID); s != nil && s.Label == LabelNone {
		s.Label = LabelH1
		s.SuggestedLevel = intPtr(1)
	}

	// TOC level N maps to heading N+1, preserving the single-H1 rule.
	for id, level := range tocLevels {
		s := r.Get(id)
		if s == nil || s.Label != LabelNone {
			continue
		}
		s.Label = HeadingLabel(level + 1)
		if level <= 3 {
			s.SuggestedLevel = intPtr(level)
		}
	}

	body := r.MostFrequent()
	if body != nil && body.Label == LabelNone {
		body.Label = LabelBody
	}
	bodySize := 0.0
	if body != nil {
		bodySize = body.Size
	}

	smallest := r.smallestSize()
	for _, s := range r.sigs {
		if s.Label != LabelNone {
			continue
		}
		switch {
		case monospace(s.Family):
			s.Label = LabelCode
		case s.Size < minReadableSize || (s.Size == smallest && smallest < bodySize):
			// Page-number and footnote chrome; never the body face.
			s.Label = LabelSkip
		}
	}

	// Remaining unlabeled signatures larger than body text form the
	// heading ladder: largest → H2, next → H3, the rest → H4. ALL CAPS at
	// body size or above also reads as a heading, and a bolder variant of
	// the body font reads as the lowest heading tier.
	level := 2
	for _, s := range r.BySizeDesc() {
		if s.Label != LabelNone {
			continue
		}
		switch {
		case s.Size > bodySize || (s.Size >= bodySize && r.allCapsSamples(s)):
			s.Label = HeadingLabel(level)
			if level <= 4 {
				s.SuggestedLevel = intPtr(level - 1)
			}
			if level < 4 {
				level++
			}
		case s.Size == bodySize && body != nil && s.Weight > body.Weight:
			s.Label = LabelH3
			s.SuggestedLevel = intPtr(2)
		default:
			s.Label = LabelBody
		}
	}
}

func (r *Registry) smallestSize() float64 {
	small := 0.0
	for _, s := range r.sigs {
		if small == 0 || s.Size < small {
			small = s.Size
		}
	}
	return small
}

// allCapsSamples reports whether every recorded sample with letters is
// fully upper-case.
func (r *Registry) allCapsSamples(s *Signature) bool {
	seen := false
	for _, t := range s.SampleTexts {
		hasLetter := false
		for _, c := range t {
			if unicode.IsLetter(c) {
				hasLetter = true
				if unicode.IsLower(c) {
					return false
				}
			}
		}
		if hasLetter {
			seen = true
		}
	}
	return seen
}

func monospace(family string) bool {
	f := strings.ToLower(family)
	for _, m := range []string{"mono", "courier", "consol", "typewriter"} {
		if strings.Contains(f, m) {
			return true
		}
	}
	return false
}

func intPtr(n int) *int { return &n }
