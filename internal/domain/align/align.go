// Package align matches source-track cues to translation-track cues by
// temporal overlap. The two tracks are independently timed and segmented, so
// cue boundaries rarely coincide.
package align

import (
	"time"

	"github.com/subcards/subcards/internal/types"
)

// Match is the alignment outcome for one source cue. TargetIndex is -1 when
// no translation cue overlaps; the empty text is a reviewable gap, not an
// error. Refs records every target cue consulted, losers included, so a run
// can be re-aligned or debugged without reparsing.
type Match struct {
	SourceIndex int
	TargetIndex int
	TargetText  string
	Refs        []types.TargetRef
}

// Overlap is the shared span of two intervals in absolute time. An exact
// boundary touch yields zero and does not count as overlap.
func Overlap(aStart, aEnd, bStart, bEnd time.Duration) time.Duration {
	lo := aStart
	if bStart > lo {
		lo = bStart
	}
	hi := aEnd
	if bEnd < hi {
		hi = bEnd
	}
	if hi <= lo {
		return 0
	}
	return hi - lo
}

// Align produces zero or one matched target per source cue. The winner is
// the target cue with maximum overlap; ties break to the longer target cue,
// then the earlier start, then the lower index. Several source cues may win
// the same target (many-to-one); the target text is never split between them.
//
// Both inputs must be sorted by start time. The result is deterministic for
// identical inputs.
func Align(source, target []types.Cue) []Match {
	matches := make([]Match, 0, len(source))
	lo := 0
	for si, s := range source {
		// Targets ending at or before this source's start can never overlap
		// any later source either (source starts are non-decreasing), so the
		// window only moves forward.
		for lo < len(target) && target[lo].End <= s.Start {
			lo++
		}
		m := Match{SourceIndex: si, TargetIndex: -1}
		var best int = -1
		var bestOverlap time.Duration
		for j := lo; j < len(target) && target[j].Start < s.End; j++ {
			ov := Overlap(s.Start, s.End, target[j].Start, target[j].End)
			m.Refs = append(m.Refs, types.TargetRef{TargetIndex: j, Overlap: ov})
			if ov <= 0 {
				continue
			}
			if best < 0 || better(target[j], ov, target[best], bestOverlap) {
				best = j
				bestOverlap = ov
			}
		}
		if best >= 0 {
			m.TargetIndex = best
			m.TargetText = target[best].Text
			for i := range m.Refs {
				if m.Refs[i].TargetIndex == best {
					m.Refs[i].Matched = true
				}
			}
		}
		matches = append(matches, m)
	}
	return matches
}

func better(cand types.Cue, candOverlap time.Duration, cur types.Cue, curOverlap time.Duration) bool {
	if candOverlap != curOverlap {
		return candOverlap > curOverlap
	}
	if cand.Duration() != cur.Duration() {
		return cand.Duration() > cur.Duration()
	}
	// Earlier start wins; equal starts fall through to the lower index,
	// which the scan order already guarantees.
	return cand.Start < cur.Start
}
