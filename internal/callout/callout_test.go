package callout

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadValidConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FileName)
	data := `[{"start_text":"Keeper's Note:","end_text":"End of Note","label":"callout_gm"},
	          {"start_text":"Read Aloud:","end_text":"(stop reading)"}]`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg) != 2 {
		t.Fatalf("entries %d", len(cfg))
	}
	if cfg[1].EffectiveLabel() != DefaultLabel {
		t.Fatalf("default label %q", cfg[1].EffectiveLabel())
	}
}

func TestLoadEmptyListIsValid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FileName)
	if err := WriteDefault(path); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg) != 0 {
		t.Fatalf("entries %d", len(cfg))
	}
}

func TestLoadRejectsBadEntries(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FileName)
	for _, data := range []string{
		`[{"start_text":"","end_text":"x"}]`,
		`[{"start_text":"x","end_text":"y","label":"note"}]`,
		`{not json`,
	} {
		if err := os.WriteFile(path, []byte(data), 0644); err != nil {
			t.Fatal(err)
		}
		if _, err := Load(path); err == nil {
			t.Fatalf("accepted %s", data)
		}
	}
}

func TestKeywords(t *testing.T) {
	kws := Keywords([]string{"Referee Only:", " ", ""})
	if len(kws) != len(BuiltinKeywords)+1 {
		t.Fatalf("keywords %d", len(kws))
	}
	kw, ok := MatchKeyword("boxed text GM Note: beware", kws)
	if !ok || kw.Label != "callout_gm" {
		t.Fatalf("match %+v ok=%v", kw, ok)
	}
	if _, ok := MatchKeyword("nothing here", kws); ok {
		t.Fatal("false match")
	}
}
