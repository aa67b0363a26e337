// Package sig assigns stable identities to the font tuples observed in a
// document and carries their structural labels through the pipeline.
package sig

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Label is the structural role assigned to a signature. The empty label
// means "not yet decided".
type Label string

const (
	LabelNone        Label = ""
	LabelH1          Label = "H1"
	LabelH2          Label = "H2"
	LabelH3          Label = "H3"
	LabelH4          Label = "H4"
	LabelBody        Label = "body"
	LabelCode        Label = "code"
	LabelSkip        Label = "skip"
	LabelQuote       Label = "quote"
	LabelQuoteAuthor Label = "quote_author"
	LabelCalloutGM   Label = "callout_gm"
	LabelCalloutRead Label = "callout_read_aloud"
	LabelCalloutSide Label = "callout_sidebar"
)

// Valid reports whether l is a recognized label. Custom callout labels of
// the form callout_<name> are accepted.
func (l Label) Valid() bool {
	switch l {
	case LabelNone, LabelH1, LabelH2, LabelH3, LabelH4,
		LabelBody, LabelCode, LabelSkip, LabelQuote, LabelQuoteAuthor:
		return true
	}
	return strings.HasPrefix(string(l), "callout_") && len(l) > len("callout_")
}

// IsHeading reports whether l is one of H1..H4, returning the level.
func (l Label) IsHeading() (int, bool) {
	switch l {
	case LabelH1:
		return 1, true
	case LabelH2:
		return 2, true
	case LabelH3:
		return 3, true
	case LabelH4:
		return 4, true
	}
	return 0, false
}

// IsCallout reports whether l is a callout label.
func (l Label) IsCallout() bool {
	return strings.HasPrefix(string(l), "callout_")
}

// HeadingLabel returns the label for a heading level, clamped to H4.
func HeadingLabel(level int) Label {
	switch {
	case level <= 1:
		return LabelH1
	case level == 2:
		return LabelH2
	case level == 3:
		return LabelH3
	default:
		return LabelH4
	}
}

const maxSamples = 8

// Signature is one (family, size, weight, style) tuple observed in the
// document. Two spans share a signature only when all four match.
type Signature struct {
	ID             string   `json:"id"`
	Family         string   `json:"family"`
	Size           float64  `json:"size"`
	Weight         int      `json:"weight"`
	Style          string   `json:"style"`
	SampleTexts    []string `json:"sample_texts"`
	SuggestedLevel *int     `json:"suggested_level"`
	Label          Label    `json:"label"`
	UsageCount     int      `json:"usage_count"`
	FirstPage      int      `json:"first_page"`
	// EmbeddedHeading is a phase-7 finding: this heading signature also
	// appears mid-paragraph, so phase 8 must split those lines.
	EmbeddedHeading bool `json:"embedded_heading,omitempty"`
}

type sigKey struct {
	family string
	size   float64
	weight int
	style  string
}

// Registry interns signatures in first-seen order so ids are stable
// across runs over the same input.
type Registry struct {
	sigs  []*Signature
	index map[sigKey]*Signature
}

func NewRegistry() *Registry {
	return &Registry{index: make(map[sigKey]*Signature)}
}

func keyOf(family string, size float64, weight int, style string) sigKey {
	// Sizes from the reader can wobble in the last decimals; a tenth of a
	// point is below visual distinction.
	return sigKey{family: family, size: math.Round(size*10) / 10, weight: weight, style: style}
}

// Intern returns the signature for the tuple, creating it on first sight.
// page is the 1-indexed page where the span was seen.
func (r *Registry) Intern(family string, size float64, weight int, style string, page int) *Signature {
	k := keyOf(family, size, weight, style)
	if s, ok := r.index[k]; ok {
		s.UsageCount++
		return s
	}
	s := &Signature{
		ID:        fmt.Sprintf("sig%03d", len(r.sigs)+1),
		Family:    family,
		Size:      k.size,
		Weight:    weight,
		Style:     style,
		FirstPage: page,
		UsageCount: 1,
	}
	r.sigs = append(r.sigs, s)
	r.index[k] = s
	return s
}

// Find returns the signature for a tuple without affecting usage
// counts, or nil when the tuple was never interned.
func (r *Registry) Find(family string, size float64, weight int, style string) *Signature {
	return r.index[keyOf(family, size, weight, style)]
}

// RecordSample appends a representative text line, bounded at eight.
func (r *Registry) RecordSample(sigID, text string) {
	s := r.Get(sigID)
	if s == nil || len(s.SampleTexts) >= maxSamples {
		return
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	s.SampleTexts = append(s.SampleTexts, text)
}

// Get returns the signature with the given id, or nil.
func (r *Registry) Get(sigID string) *Signature {
	for _, s := range r.sigs {
		if s.ID == sigID {
			return s
		}
	}
	return nil
}

// All returns signatures in id order.
func (r *Registry) All() []*Signature {
	return r.sigs
}

// Len returns the number of interned signatures.
func (r *Registry) Len() int { return len(r.sigs) }

// ApplyOverrides replaces labels per user review. Unknown ids and invalid
// labels are reported rather than dropped silently.
func (r *Registry) ApplyOverrides(overrides map[string]Label) error {
	for id, l := range overrides {
		s := r.Get(id)
		if s == nil {
			return fmt.Errorf("unknown signature %q", id)
		}
		if !l.Valid() {
			return fmt.Errorf("signature %s: invalid label %q", id, l)
		}
		s.Label = l
	}
	return nil
}

type mappingFile struct {
	Signatures []*Signature `json:"signatures"`
}

// MappingFileName is the on-disk name of the persisted registry.
const MappingFileName = "font-family-mapping.json"

// Save persists the registry to font-family-mapping.json in dir.
func (r *Registry) Save(dir string) error {
	data, err := json.MarshalIndent(mappingFile{Signatures: r.sigs}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, MappingFileName), append(data, '\n'), 0644)
}

// Load reads a persisted registry from dir.
func Load(dir string) (*Registry, error) {
	data, err := os.ReadFile(filepath.Join(dir, MappingFileName))
	if err != nil {
		return nil, err
	}
	var mf mappingFile
	if err := json.Unmarshal(data, &mf); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", MappingFileName, err)
	}
	r := NewRegistry()
	for _, s := range mf.Signatures {
		if !s.Label.Valid() {
			return nil, fmt.Errorf("%s: signature %s: invalid label %q", MappingFileName, s.ID, s.Label)
		}
		r.sigs = append(r.sigs, s)
		r.index[keyOf(s.Family, s.Size, s.Weight, s.Style)] = s
	}
	return r, nil
}

// BySizeDesc returns the signatures ordered by point size, largest first,
// breaking ties by usage count.
func (r *Registry) BySizeDesc() []*Signature {
	out := make([]*Signature, len(r.sigs))
	copy(out, r.sigs)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Size != out[j].Size {
			return out[i].Size > out[j].Size
		}
		return out[i].UsageCount > out[j].UsageCount
	})
	return out
}

// MostFrequent returns the signature with the highest usage count, or nil
// for an empty registry.
func (r *Registry) MostFrequent() *Signature {
	var best *Signature
	for _, s := range r.sigs {
		if best == nil || s.UsageCount > best.UsageCount {
			best = s
		}
	}
	return best
}
