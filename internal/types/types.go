package types

import "time"

// Track identifies which subtitle stream a cue came from.
type Track string

const (
	TrackSource Track = "source"
	TrackTarget Track = "target"
)

// Cue is one timed subtitle entry from a single track.
// Index is the cue's ordinal within the loaded track; it survives
// filtering so the merger can tell when a dropped cue sits between
// two kept neighbours.
type Cue struct {
	Index  int
	Start  time.Duration
	End    time.Duration
	Text   string
	Track  Track
	Tags   []string
	Merged bool
}

// Duration is the cue's time span.
func (c Cue) Duration() time.Duration { return c.End - c.Start }

// Provenance marks how a line record came to be.
type Provenance string

const (
	ProvenanceOriginal Provenance = "original"
	ProvenanceMerged   Provenance = "merged"
	ProvenanceReviewed Provenance = "reviewed"
)

// TargetRef records one translation-track cue the aligner consulted for a
// source cue, including losing candidates.
type TargetRef struct {
	TargetIndex int           `json:"target_index"`
	OverlapMS   int64         `json:"overlap_ms"`
	Matched     bool          `json:"matched"`
	Overlap     time.Duration `json:"-"`
}

// LineRecord is the reconciled unit eventually mapped to one flashcard.
type LineRecord struct {
	ID           string
	Start        time.Duration
	End          time.Duration
	TextSource   string
	TextTranslit string
	TextTarget   string
	SourceRef    int
	TargetRefs   []TargetRef
	Tags         []string
	Provenance   Provenance

	// Filled during assembly.
	AudioFile string
	ImageFile string
	Video     string
}

// ReviewRow is one line of the durable review overlay table. It is the wire
// contract between the export and reingest invocations.
type ReviewRow struct {
	ID             string
	OriginalSource string
	OriginalTarget string
	Focus          string
	Gloss          string
	Reason         string
	Approved       bool
}

// DroppedCue is an audit entry for a cue excluded by the filter.
type DroppedCue struct {
	Track Track  `json:"track"`
	Index int    `json:"index"`
	Text  string `json:"text"`
	Rule  string `json:"rule"`
}

// LineFailure is a non-fatal per-line error surfaced in the run manifest.
type LineFailure struct {
	LineID string `json:"line_id"`
	Stage  string `json:"stage"`
	Error  string `json:"error"`
}

// Manifest describes one pipeline run: what was produced, what was dropped,
// and what failed. Partial success is auditable, never silent.
type Manifest struct {
	RunID      string         `json:"run_id"`
	Video      string         `json:"video"`
	CreatedAt  time.Time      `json:"created_at"`
	SourceSubs string         `json:"source_subs"`
	TargetSubs string         `json:"target_subs"`
	ReviewFile string         `json:"review_file,omitempty"`
	CardsFile  string         `json:"cards_file,omitempty"`
	Lines      []ManifestLine `json:"lines"`
	Dropped    []DroppedCue   `json:"dropped"`
	Failures   []LineFailure  `json:"failures"`
	Stats      Stats          `json:"stats"`
}

// ManifestLine is the serialized form of a LineRecord.
type ManifestLine struct {
	ID         string      `json:"id"`
	StartMS    int64       `json:"start_ms"`
	EndMS      int64       `json:"end_ms"`
	Source     string      `json:"source"`
	Translit   string      `json:"translit,omitempty"`
	Target     string      `json:"target"`
	Audio      string      `json:"audio,omitempty"`
	Image      string      `json:"image,omitempty"`
	Tags       []string    `json:"tags,omitempty"`
	Provenance Provenance  `json:"provenance"`
	TargetRefs []TargetRef `json:"target_refs,omitempty"`
}

// Stats summarizes a run for the end-of-run table.
type Stats struct {
	Lines   int `json:"lines"`
	Merged  int `json:"merged"`
	Gaps    int `json:"gaps"`
	Dropped int `json:"dropped"`
	Failed  int `json:"failed"`
}

// ToManifestLine flattens a LineRecord for the manifest.
func ToManifestLine(l LineRecord) ManifestLine {
	refs := make([]TargetRef, len(l.TargetRefs))
	for i, r := range l.TargetRefs {
		r.OverlapMS = r.Overlap.Milliseconds()
		refs[i] = r
	}
	if len(refs) == 0 {
		refs = nil
	}
	return ManifestLine{
		ID:         l.ID,
		StartMS:    l.Start.Milliseconds(),
		EndMS:      l.End.Milliseconds(),
		Source:     l.TextSource,
		Translit:   l.TextTranslit,
		Target:     l.TextTarget,
		Audio:      l.AudioFile,
		Image:      l.ImageFile,
		Tags:       l.Tags,
		Provenance: l.Provenance,
		TargetRefs: refs,
	}
}
