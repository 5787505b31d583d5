package subtitle

import (
	"reflect"
	"testing"
	"time"

	"github.com/subcards/subcards/internal/types"
)

func timedCue(index int, start, end time.Duration, text string) types.Cue {
	return types.Cue{Index: index, Start: start, End: end, Text: text, Track: types.TrackSource}
}

func TestMergeAdjacent_JoinsSmallGaps(t *testing.T) {
	cues := []types.Cue{
		timedCue(0, 0, time.Second, "昨日"),
		timedCue(1, 1200*time.Millisecond, 2*time.Second, "映画を"),
		timedCue(2, 2100*time.Millisecond, 3*time.Second, "見た"),
	}
	out := MergeAdjacent(cues, DefaultGapThreshold)
	if len(out) != 1 {
		t.Fatalf("expected one merged cue, got %d", len(out))
	}
	m := out[0]
	if m.Text != "昨日 映画を 見た" {
		t.Fatalf("unexpected merged text: %q", m.Text)
	}
	if m.Start != 0 || m.End != 3*time.Second {
		t.Fatalf("merged span %v -> %v", m.Start, m.End)
	}
	if !m.Merged {
		t.Fatal("merged cue must carry the merged flag")
	}
}

func TestMergeAdjacent_ThresholdIsStrict(t *testing.T) {
	cues := []types.Cue{
		timedCue(0, 0, time.Second, "a"),
		timedCue(1, 1400*time.Millisecond, 2*time.Second, "b"),
	}
	// Gap is exactly the threshold: no merge.
	out := MergeAdjacent(cues, 400*time.Millisecond)
	if len(out) != 2 {
		t.Fatalf("exact-threshold gap must not merge, got %d cues", len(out))
	}
	// One millisecond under: merge.
	out = MergeAdjacent(cues, 401*time.Millisecond)
	if len(out) != 1 {
		t.Fatalf("sub-threshold gap must merge, got %d cues", len(out))
	}
}

func TestMergeAdjacent_NeverCrossesDroppedCue(t *testing.T) {
	// Ordinal 1 was dropped by filtering, so 0 and 2 are close in time but
	// must not merge.
	cues := []types.Cue{
		timedCue(0, 0, time.Second, "keep"),
		timedCue(2, 1100*time.Millisecond, 2*time.Second, "keep too"),
	}
	out := MergeAdjacent(cues, DefaultGapThreshold)
	if len(out) != 2 {
		t.Fatalf("merge crossed a dropped cue: %+v", out)
	}
}

func TestMergeAdjacent_ChainsThroughOrdinals(t *testing.T) {
	// After 0+1 merge, the survivor adopts ordinal 1 so cue 2 still chains.
	cues := []types.Cue{
		timedCue(0, 0, time.Second, "a"),
		timedCue(1, 1100*time.Millisecond, 2*time.Second, "b"),
		timedCue(2, 2100*time.Millisecond, 3*time.Second, "c"),
	}
	out := MergeAdjacent(cues, DefaultGapThreshold)
	if len(out) != 1 || out[0].Text != "a b c" {
		t.Fatalf("chain broken: %+v", out)
	}
}

func TestMergeAdjacent_Idempotent(t *testing.T) {
	cues := []types.Cue{
		timedCue(0, 0, time.Second, "a"),
		timedCue(1, 1100*time.Millisecond, 2*time.Second, "b"),
		timedCue(5, 4*time.Second, 5*time.Second, "far"),
		timedCue(6, 8*time.Second, 9*time.Second, "farther"),
	}
	once := MergeAdjacent(cues, DefaultGapThreshold)
	twice := MergeAdjacent(once, DefaultGapThreshold)
	if !reflect.DeepEqual(once, twice) {
		t.Fatalf("merge not idempotent:\nonce:  %+v\ntwice: %+v", once, twice)
	}
}

func TestMergeAdjacent_UnionsTags(t *testing.T) {
	a := timedCue(0, 0, time.Second, "a")
	a.Tags = []string{"song"}
	b := timedCue(1, 1100*time.Millisecond, 2*time.Second, "b")
	b.Tags = []string{"song", "loud"}
	out := MergeAdjacent([]types.Cue{a, b}, DefaultGapThreshold)
	if len(out) != 1 {
		t.Fatalf("expected merge, got %d cues", len(out))
	}
	if !reflect.DeepEqual(out[0].Tags, []string{"song", "loud"}) {
		t.Fatalf("tags not unioned: %v", out[0].Tags)
	}
}

func TestMergeAdjacent_Empty(t *testing.T) {
	if out := MergeAdjacent(nil, DefaultGapThreshold); out != nil {
		t.Fatalf("expected nil, got %+v", out)
	}
}
