// Package ports declares the contracts toward external collaborators:
// media probing/extraction, romanization and LLM review. Adapters live in
// subpackages; the core depends only on these interfaces.
package ports

import (
	"context"
	"time"
)

// SubtitleTrack describes one embedded subtitle stream in a video container.
// Index is the subtitle-relative stream index (ffmpeg's 0:s:N).
type SubtitleTrack struct {
	Index    int
	Language string
	Title    string
	Codec    string
}

// MediaTool extracts per-line media and resolves embedded subtitle tracks.
// Audio/image extraction is invoked once per line record with no ordering
// dependency, so callers may parallelize with bounded concurrency; each call
// is idempotent for the same inputs.
type MediaTool interface {
	ExtractAudio(ctx context.Context, video string, start, end, padLead, padTrail time.Duration, audioTrack int, outPath string) error
	ExtractImage(ctx context.Context, video string, at time.Duration, videoTrack int, outPath string) error
	ListSubtitleTracks(ctx context.Context, video string) ([]SubtitleTrack, error)
	ExtractSubtitleTrack(ctx context.Context, video string, trackIndex int, outPath string) error
}

// Romanizer converts source-language text to a romanized reading.
// Per-line, idempotent; a failure leaves the reading empty and flags the
// line rather than aborting the batch.
type Romanizer interface {
	Romanize(ctx context.Context, text string) (string, error)
}

// ReviewItem is one draft line offered to the review collaborator.
type ReviewItem struct {
	ID     string
	Source string
	Target string
}

// ReviewCandidate is the collaborator's suggested correction for one line.
type ReviewCandidate struct {
	ID     string
	Keep   bool
	Focus  string
	Gloss  string
	Reason string
}

// Reviewer asks an LLM which lines make good flashcards and what to focus
// on. Level is the learner proficiency shaping the selection. A failed or
// missing response degrades the export to manual-only review.
type Reviewer interface {
	Review(ctx context.Context, items []ReviewItem, level string) ([]ReviewCandidate, error)
}
