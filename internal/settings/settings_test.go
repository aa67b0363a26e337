package settings

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingYieldsDefaults(t *testing.T) {
	s, err := Load(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if s.Diagnostics || s.Yes || len(s.GMKeywords) != 0 {
		t.Fatalf("defaults: %+v", s)
	}
}

func TestLoadParsesFields(t *testing.T) {
	dir := t.TempDir()
	data := "diagnostics: true\nyes: true\ngm-keywords:\n  - \"Referee Only:\"\n"
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(data), 0644); err != nil {
		t.Fatal(err)
	}
	s, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if !s.Diagnostics || !s.Yes {
		t.Fatalf("flags: %+v", s)
	}
	if len(s.GMKeywords) != 1 || s.GMKeywords[0] != "Referee Only:" {
		t.Fatalf("keywords: %v", s.GMKeywords)
	}
}

func TestLoadRejectsMalformed(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(":\tnot yaml"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(dir); err == nil {
		t.Fatal("malformed settings accepted")
	}
}

func TestLoadChecksCalloutPath(t *testing.T) {
	dir := t.TempDir()
	data := "gm-callout-config-file: /nonexistent/callouts.json\n"
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(data), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(dir); err == nil {
		t.Fatal("dangling callout path accepted")
	}
}
