// Package docmeta holds the persisted document metadata artifact written
// by pre-flight and consumed by the hierarchy phase.
package docmeta

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// FileName is the metadata artifact name inside the output directory.
const FileName = "metadata.json"

// Metadata is the pre-flight analysis record. Optional fields degrade to
// their zero values; date fields are null when absent or unparseable.
type Metadata struct {
	FileSizeBytes int64      `json:"file_size_bytes"`
	PageCount     int        `json:"page_count"`
	HasTOC        bool       `json:"has_toc"`
	TOCEntries    int        `json:"toc_entries"`
	TOCMaxDepth   int        `json:"toc_max_depth"`
	ImageCount    int        `json:"image_count"`
	FontCount     int        `json:"font_count"`
	ExtractedAt   time.Time  `json:"extracted_at"`
	Title         string     `json:"title,omitempty"`
	Author        string     `json:"author,omitempty"`
	Creator       string     `json:"creator,omitempty"`
	Producer      string     `json:"producer,omitempty"`
	Copyright     string     `json:"copyright"`
	CreationDate  *time.Time `json:"creation_date"`
	ModDate       *time.Time `json:"modification_date"`
}

// Save writes the metadata artifact into dir.
func (m *Metadata) Save(dir string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, FileName), append(data, '\n'), 0644)
}

// Load reads the metadata artifact from dir.
func Load(dir string) (*Metadata, error) {
	data, err := os.ReadFile(filepath.Join(dir, FileName))
	if err != nil {
		return nil, err
	}
	var m Metadata
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", FileName, err)
	}
	return &m, nil
}
