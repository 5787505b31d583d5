// Package cards builds the final, id-stable line records handed to deck
// export.
package cards

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/subcards/subcards/internal/domain/align"
	"github.com/subcards/subcards/internal/types"
)

// MissingMediaError reports a media file referenced by a line that does not
// exist at assembly time. Fatal for that line only.
type MissingMediaError struct {
	LineID string
	Path   string
}

func (e *MissingMediaError) Error() string {
	return fmt.Sprintf("line %s: missing media file %s", e.LineID, e.Path)
}

// StableID derives a line id from the video identity, the cue span and the
// ordinal position. Re-running the pipeline on unchanged input reproduces
// identical ids, which is what makes review round-tripping possible.
func StableID(videoID string, start, end time.Duration, ordinal int) string {
	seed := fmt.Sprintf("%s|%d|%d|%d", videoID, start.Milliseconds(), end.Milliseconds(), ordinal)
	sum := sha256.Sum256([]byte(seed))
	return hex.EncodeToString(sum[:])[:12]
}

// AudioFileName and ImageFileName name per-line media deterministically so
// repeated extraction for the same line lands on the same path.
func AudioFileName(ordinal int) string { return fmt.Sprintf("audio_%05d.mp3", ordinal+1) }
func ImageFileName(ordinal int) string { return fmt.Sprintf("img_%05d.jpg", ordinal+1) }

// BuildDraft turns aligned source cues into machine-produced line records.
// matches must be the aligner output for exactly these source cues.
func BuildDraft(videoID string, source []types.Cue, matches []align.Match) []types.LineRecord {
	lines := make([]types.LineRecord, 0, len(source))
	for i, s := range source {
		prov := types.ProvenanceOriginal
		if s.Merged {
			prov = types.ProvenanceMerged
		}
		var m align.Match
		if i < len(matches) {
			m = matches[i]
		}
		lines = append(lines, types.LineRecord{
			ID:         StableID(videoID, s.Start, s.End, i),
			Start:      s.Start,
			End:        s.End,
			TextSource: s.Text,
			TextTarget: m.TargetText,
			SourceRef:  s.Index,
			TargetRefs: m.Refs,
			Tags:       s.Tags,
			Provenance: prov,
			Video:      videoID,
		})
	}
	return lines
}

// VerifyMedia checks that the media files a line references actually exist
// under mediaDir. The first missing file fails the line.
func VerifyMedia(line types.LineRecord, audioDir, imageDir string) error {
	if line.AudioFile != "" {
		p := filepath.Join(audioDir, line.AudioFile)
		if _, err := os.Stat(p); err != nil {
			return &MissingMediaError{LineID: line.ID, Path: p}
		}
	}
	if line.ImageFile != "" {
		p := filepath.Join(imageDir, line.ImageFile)
		if _, err := os.Stat(p); err != nil {
			return &MissingMediaError{LineID: line.ID, Path: p}
		}
	}
	return nil
}
