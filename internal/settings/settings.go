// Package settings loads the optional .pdf-convert.yaml defaults file.
// Explicit CLI flags always override it; the per-conversion contracts
// (state, metadata, mapping, callout config) stay strict JSON.
package settings

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// FileName is looked up in the current working directory.
const FileName = ".pdf-convert.yaml"

// Settings are the user-level defaults.
type Settings struct {
	Diagnostics       bool     `yaml:"diagnostics"`
	Yes               bool     `yaml:"yes"`
	GMKeywords        []string `yaml:"gm-keywords"`
	CalloutConfigFile string   `yaml:"gm-callout-config-file"`
}

// Load reads settings from dir. A missing file yields zero-value
// settings; a malformed file is an error so typos do not silently
// vanish.
func Load(dir string) (*Settings, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &Settings{}, nil
		}
		return nil, err
	}
	var s Settings
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if s.CalloutConfigFile != "" {
		if _, err := os.Stat(s.CalloutConfigFile); err != nil {
			return nil, fmt.Errorf("%s: gm-callout-config-file %q not found", path, s.CalloutConfigFile)
		}
	}
	return &s, nil
}
