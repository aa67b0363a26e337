// Package callout models the user-editable callout boundary config and
// the built-in GM keyword patterns. Callout detection is keyword-based,
// not font-based: publishers style boxed text too inconsistently for
// font signatures alone.
package callout

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// FileName is the config artifact name inside the output directory.
const FileName = "callout_config.json"

// DefaultLabel is applied to entries that do not name one.
const DefaultLabel = "callout_gm"

// Entry is one start/end text boundary pair. Spans between an unmatched
// start_text and the next end_text receive the entry's label.
type Entry struct {
	StartText string `json:"start_text"`
	EndText   string `json:"end_text"`
	Label     string `json:"label,omitempty"`
}

// EffectiveLabel returns the entry's label, defaulted.
func (e Entry) EffectiveLabel() string {
	if e.Label == "" {
		return DefaultLabel
	}
	return e.Label
}

// Config is the ordered entry list. An empty list is valid.
type Config []Entry

// Load reads a callout config file. A missing file is an error; write
// one with WriteDefault first.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	for i, e := range cfg {
		if e.StartText == "" || e.EndText == "" {
			return nil, fmt.Errorf("%s: entry %d: start_text and end_text are required", path, i+1)
		}
		if e.Label != "" && !strings.HasPrefix(e.Label, "callout_") {
			return nil, fmt.Errorf("%s: entry %d: label must start with callout_", path, i+1)
		}
	}
	return cfg, nil
}

// WriteDefault writes an empty config the user can edit before
// continuing the conversion.
func WriteDefault(path string) error {
	return os.WriteFile(path, []byte("[]\n"), 0644)
}

// Keyword is a built-in callout trigger phrase with its label.
type Keyword struct {
	Pattern string
	Label   string
}

// BuiltinKeywords are the trigger phrases recognized without any user
// config. User --gm-keyword additions extend this list with the default
// label.
var BuiltinKeywords = []Keyword{
	{Pattern: "Keeper's Note:", Label: "callout_gm"},
	{Pattern: "GM Note:", Label: "callout_gm"},
	{Pattern: "DM Note:", Label: "callout_gm"},
	{Pattern: "Read Aloud:", Label: "callout_read_aloud"},
	{Pattern: "Read aloud:", Label: "callout_read_aloud"},
	{Pattern: "Sidebar:", Label: "callout_sidebar"},
}

// Keywords returns the built-in patterns plus user additions.
func Keywords(userKeywords []string) []Keyword {
	out := make([]Keyword, len(BuiltinKeywords), len(BuiltinKeywords)+len(userKeywords))
	copy(out, BuiltinKeywords)
	for _, k := range userKeywords {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		out = append(out, Keyword{Pattern: k, Label: DefaultLabel})
	}
	return out
}

// MatchKeyword reports the first keyword whose pattern occurs in line.
func MatchKeyword(line string, kws []Keyword) (Keyword, bool) {
	for _, kw := range kws {
		if strings.Contains(line, kw.Pattern) {
			return kw, true
		}
	}
	return Keyword{}, false
}
