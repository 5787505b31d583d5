package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/subcards/subcards/internal/types"
)

func TestLoadRules_EmptyPathUsesDefaults(t *testing.T) {
	rs, err := LoadRules("")
	if err != nil {
		t.Fatalf("load default rules: %v", err)
	}
	res := rs.Apply([]types.Cue{{Text: "（足音）", Start: 0, End: time.Second}})
	if len(res.Dropped) != 1 {
		t.Fatalf("default rules must drop bracketed SFX: %+v", res)
	}
}

func TestLoadRules_YAML(t *testing.T) {
	body := `
rules:
  - name: song
    pattern: "♪"
    action: tag
  - name: stage-direction
    pattern: "^--.*--$"
    action: drop
`
	path := filepath.Join(t.TempDir(), "rules.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	rs, err := LoadRules(path)
	if err != nil {
		t.Fatalf("load rules: %v", err)
	}
	res := rs.Apply([]types.Cue{
		{Index: 0, Text: "♪ la la la", End: time.Second},
		{Index: 1, Text: "--door opens--", End: time.Second},
	})
	if len(res.Kept) != 1 || len(res.Kept[0].Tags) != 1 || res.Kept[0].Tags[0] != "song" {
		t.Fatalf("tag rule not applied: %+v", res.Kept)
	}
	if len(res.Dropped) != 1 || res.Dropped[0].Rule != "stage-direction" {
		t.Fatalf("drop rule not applied: %+v", res.Dropped)
	}
}

func TestLoadRules_BadAction(t *testing.T) {
	body := "rules:\n  - name: bad\n    pattern: x\n    action: explode\n"
	path := filepath.Join(t.TempDir(), "rules.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadRules(path); err == nil {
		t.Fatal("expected error for unknown action")
	}
}
