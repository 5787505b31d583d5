package subtitle

import (
	"strings"
	"time"

	"github.com/subcards/subcards/internal/types"
)

// DefaultGapThreshold is the largest inter-cue silence that still reads as
// one utterance.
const DefaultGapThreshold = 400 * time.Millisecond

// MergeAdjacent coalesces neighbouring cues whose gap is strictly below the
// threshold. Merging is transitive and left-associative, preserves order, and
// never crosses a dropped cue: only cues that were ordinally adjacent in the
// original track may merge, so a filtered-out SFX cue resets the chain.
//
// Merging an already-merged sequence with the same threshold is a no-op.
func MergeAdjacent(cues []types.Cue, gap time.Duration) []types.Cue {
	if len(cues) == 0 {
		return nil
	}
	if gap < 0 {
		gap = 0
	}
	out := make([]types.Cue, 0, len(cues))
	out = append(out, cues[0])
	for _, c := range cues[1:] {
		prev := &out[len(out)-1]
		adjacent := c.Index == prev.Index+1
		if adjacent && c.Start-prev.End < gap {
			prev.Text = joinText(prev.Text, c.Text)
			if c.End > prev.End {
				prev.End = c.End
			}
			// The merged cue takes over the last constituent's ordinal so the
			// chain can keep extending through further adjacent cues.
			prev.Index = c.Index
			prev.Merged = true
			for _, t := range c.Tags {
				prev.Tags = appendUnique(prev.Tags, t)
			}
			continue
		}
		out = append(out, c)
	}
	return out
}

func joinText(a, b string) string {
	a = strings.TrimSpace(a)
	b = strings.TrimSpace(b)
	if a == "" {
		return b
	}
	if b == "" {
		return a
	}
	return a + " " + b
}
