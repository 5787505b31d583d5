package cards

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/subcards/subcards/internal/domain/align"
	"github.com/subcards/subcards/internal/types"
)

func TestStableID(t *testing.T) {
	a := StableID("ep01", time.Second, 2*time.Second, 0)
	b := StableID("ep01", time.Second, 2*time.Second, 0)
	if a != b {
		t.Fatalf("same inputs must yield the same id: %s vs %s", a, b)
	}
	if len(a) != 12 {
		t.Fatalf("id length %d, want 12", len(a))
	}
	variants := []string{
		StableID("ep02", time.Second, 2*time.Second, 0),
		StableID("ep01", time.Second+time.Millisecond, 2*time.Second, 0),
		StableID("ep01", time.Second, 2*time.Second+time.Millisecond, 0),
		StableID("ep01", time.Second, 2*time.Second, 1),
	}
	for i, v := range variants {
		if v == a {
			t.Fatalf("variant %d collided with base id", i)
		}
	}
}

func TestMediaFileNames(t *testing.T) {
	if got := AudioFileName(0); got != "audio_00001.mp3" {
		t.Fatalf("AudioFileName(0) = %q", got)
	}
	if got := ImageFileName(41); got != "img_00042.jpg" {
		t.Fatalf("ImageFileName(41) = %q", got)
	}
}

func TestBuildDraft(t *testing.T) {
	source := []types.Cue{
		{Index: 0, Start: time.Second, End: 2 * time.Second, Text: "こんにちは", Merged: false},
		{Index: 2, Start: 3 * time.Second, End: 5 * time.Second, Text: "昨日 映画を", Merged: true, Tags: []string{"song"}},
	}
	matches := []align.Match{
		{SourceIndex: 0, TargetIndex: 0, TargetText: "hello", Refs: []types.TargetRef{{TargetIndex: 0, Matched: true}}},
		{SourceIndex: 1, TargetIndex: -1},
	}
	lines := BuildDraft("ep01", source, matches)
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	if lines[0].TextTarget != "hello" || lines[0].Provenance != types.ProvenanceOriginal {
		t.Fatalf("unexpected first line: %+v", lines[0])
	}
	if lines[1].TextTarget != "" {
		t.Fatalf("unmatched line must carry an empty target: %+v", lines[1])
	}
	if lines[1].Provenance != types.ProvenanceMerged {
		t.Fatalf("merged cue must report merged provenance: %+v", lines[1])
	}
	if lines[1].SourceRef != 2 {
		t.Fatalf("source ordinal not preserved: %+v", lines[1])
	}
	if lines[0].ID == lines[1].ID {
		t.Fatal("line ids must be distinct")
	}
	// Rebuilding the same draft reproduces the same ids.
	again := BuildDraft("ep01", source, matches)
	if again[0].ID != lines[0].ID || again[1].ID != lines[1].ID {
		t.Fatal("ids not stable across rebuilds")
	}
}

func TestVerifyMedia(t *testing.T) {
	audioDir := t.TempDir()
	imageDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(audioDir, "audio_00001.mp3"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	line := types.LineRecord{ID: "abc", AudioFile: "audio_00001.mp3"}
	if err := VerifyMedia(line, audioDir, imageDir); err != nil {
		t.Fatalf("existing audio should verify: %v", err)
	}

	line.ImageFile = "img_00001.jpg"
	err := VerifyMedia(line, audioDir, imageDir)
	var mme *MissingMediaError
	if !errors.As(err, &mme) {
		t.Fatalf("expected MissingMediaError, got %v", err)
	}
	if mme.LineID != "abc" {
		t.Fatalf("error must name the line: %+v", mme)
	}

	// No media references at all is fine.
	if err := VerifyMedia(types.LineRecord{ID: "def"}, audioDir, imageDir); err != nil {
		t.Fatalf("line without media should verify: %v", err)
	}
}
