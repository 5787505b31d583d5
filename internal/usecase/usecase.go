// Package usecase runs the reconciliation pipeline: load, filter, merge,
// align, review round-trip, and assembly. Stages 1-4 are a pure batch
// transform; only per-line media and romanization fan out to workers.
package usecase

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/subcards/subcards/internal/domain/align"
	"github.com/subcards/subcards/internal/domain/cards"
	"github.com/subcards/subcards/internal/domain/review"
	"github.com/subcards/subcards/internal/domain/subtitle"
	"github.com/subcards/subcards/internal/ports"
	"github.com/subcards/subcards/internal/types"
)

type Deps struct {
	Media     ports.MediaTool
	Romanizer ports.Romanizer
	Reviewer  ports.Reviewer
	Log       zerolog.Logger
}

type Usecase struct{ d Deps }

func New(d Deps) Usecase { return Usecase{d: d} }

type Input struct {
	Video   string
	VideoID string

	SourcePath     string
	TargetPath     string
	SourceEncoding string
	TargetEncoding string

	Rules    *subtitle.RuleSet
	GapMerge time.Duration
	Limit    int
	Level    string

	PadLead    time.Duration
	PadTrail   time.Duration
	AudioTrack int
	VideoTrack int

	MediaWorkers int
	DryRun       bool
	OutDir       string
	ReviewIn     string
}

// Draft is the machine-produced output before any review is applied.
type Draft struct {
	Lines   []types.LineRecord
	Dropped []types.DroppedCue
}

// BuildDraft runs loader, filter, merger and aligner over both tracks and
// assembles id-stable draft records.
func (u Usecase) BuildDraft(ctx context.Context, in Input) (Draft, error) {
	_ = ctx

	source, err := u.prepareTrack(in.SourcePath, in.SourceEncoding, types.TrackSource, in)
	if err != nil {
		return Draft{}, err
	}
	target, err := u.prepareTrack(in.TargetPath, in.TargetEncoding, types.TrackTarget, in)
	if err != nil {
		return Draft{}, err
	}

	srcCues := source.Kept
	if in.Limit > 0 && in.Limit < len(srcCues) {
		srcCues = srcCues[:in.Limit]
	}

	matches := align.Align(srcCues, target.Kept)
	lines := cards.BuildDraft(in.VideoID, srcCues, matches)

	u.d.Log.Debug().
		Int("source_cues", len(srcCues)).
		Int("target_cues", len(target.Kept)).
		Int("dropped", len(source.Dropped)+len(target.Dropped)).
		Msg("draft built")

	return Draft{
		Lines:   lines,
		Dropped: append(source.Dropped, target.Dropped...),
	}, nil
}

func (u Usecase) prepareTrack(path, encoding string, track types.Track, in Input) (subtitle.FilterResult, error) {
	cues, err := subtitle.Load(path, encoding, track)
	if err != nil {
		return subtitle.FilterResult{}, err
	}
	res := in.Rules.Apply(cues)
	res.Kept = subtitle.MergeAdjacent(res.Kept, in.GapMerge)
	return res, nil
}

// ExportResult reports a review export.
type ExportResult struct {
	Draft      Draft
	ReviewPath string
	Candidates int
	// LLMDegraded is set when the review collaborator failed and the overlay
	// was written with empty candidate fields.
	LLMDegraded bool
	LLMError    string
}

// ExportReview writes the draft as an editable overlay table, pre-filled
// with LLM candidate corrections when the collaborator is available.
func (u Usecase) ExportReview(ctx context.Context, in Input, reviewOut string) (ExportResult, error) {
	draft, err := u.BuildDraft(ctx, in)
	if err != nil {
		return ExportResult{}, err
	}

	res := ExportResult{Draft: draft, ReviewPath: reviewOut}
	candidates := map[string]ports.ReviewCandidate{}
	if u.d.Reviewer != nil {
		items := make([]ports.ReviewItem, 0, len(draft.Lines))
		for _, l := range draft.Lines {
			items = append(items, ports.ReviewItem{ID: l.ID, Source: l.TextSource, Target: l.TextTarget})
		}
		cands, err := u.d.Reviewer.Review(ctx, items, in.Level)
		if err != nil {
			var pe *ports.ProviderError
			if !errors.As(err, &pe) {
				return ExportResult{}, err
			}
			// Manual-only review is still a usable export.
			u.d.Log.Warn().Err(err).Msg("review collaborator failed, exporting without candidates")
			res.LLMDegraded = true
			res.LLMError = err.Error()
		}
		for _, c := range cands {
			candidates[c.ID] = c
		}
		res.Candidates = len(candidates)
	}

	rows := review.BuildOverlay(draft.Lines, candidates)
	if err := review.WriteOverlay(reviewOut, rows); err != nil {
		return ExportResult{}, err
	}
	return res, nil
}

// Result is a completed build.
type Result struct {
	Lines     []types.LineRecord // lines that made it into the card table
	AllLines  []types.LineRecord // including lines that failed media
	Dropped   []types.DroppedCue
	Failures  []types.LineFailure
	Report    review.Report
	MediaDirs MediaDirs
}

type MediaDirs struct {
	Audio string
	Image string
}

// Build runs the full pipeline. With ReviewIn set, the edited overlay is
// reingested first; otherwise the draft goes straight to assembly.
func (u Usecase) Build(ctx context.Context, in Input) (Result, error) {
	draft, err := u.BuildDraft(ctx, in)
	if err != nil {
		return Result{}, err
	}

	res := Result{Dropped: draft.Dropped}
	lines := draft.Lines
	if in.ReviewIn != "" {
		rows, err := review.ReadOverlay(in.ReviewIn)
		if err != nil {
			return Result{}, err
		}
		applied, rep := review.Apply(lines, rows)
		lines = applied
		res.Report = rep
		for _, unk := range rep.Unknown {
			res.Failures = append(res.Failures, types.LineFailure{
				LineID: unk.ID, Stage: "reingest", Error: unk.Error(),
			})
		}
	}

	res.MediaDirs = MediaDirs{
		Audio: filepath.Join(in.OutDir, "media", "audio"),
		Image: filepath.Join(in.OutDir, "media", "img"),
	}

	outcomes := u.assembleLines(ctx, in, lines, res.MediaDirs)
	for i := range lines {
		lines[i] = outcomes[i].line
		res.Failures = append(res.Failures, outcomes[i].failures...)
		if outcomes[i].excluded {
			continue
		}
		res.Lines = append(res.Lines, lines[i])
	}
	res.AllLines = lines
	return res, nil
}

type lineOutcome struct {
	line     types.LineRecord
	failures []types.LineFailure
	// excluded lines stay in the manifest but are kept out of the card
	// table (media extraction or assembly failed).
	excluded bool
}

// assembleLines romanizes and extracts media for each line. Lines are
// independent, so they run on a bounded worker pool; order is preserved by
// writing results by index. A per-line failure flags only that line.
func (u Usecase) assembleLines(ctx context.Context, in Input, lines []types.LineRecord, dirs MediaDirs) []lineOutcome {
	workers := in.MediaWorkers
	if workers <= 0 {
		workers = 1
	}
	outcomes := make([]lineOutcome, len(lines))
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	for i := range lines {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			outcomes[i] = u.assembleLine(ctx, in, lines[i], i, dirs)
		}(i)
	}
	wg.Wait()
	return outcomes
}

func (u Usecase) assembleLine(ctx context.Context, in Input, line types.LineRecord, ordinal int, dirs MediaDirs) lineOutcome {
	out := lineOutcome{}
	if u.d.Romanizer != nil {
		translit, err := u.d.Romanizer.Romanize(ctx, line.TextSource)
		if err != nil {
			// Reading stays empty; the card is still usable.
			u.d.Log.Warn().Str("line", line.ID).Err(err).Msg("romanization failed")
			out.failures = append(out.failures, types.LineFailure{
				LineID: line.ID, Stage: "romanize", Error: err.Error(),
			})
		} else {
			line.TextTranslit = translit
		}
	}

	if in.DryRun || u.d.Media == nil {
		out.line = line
		return out
	}

	line.AudioFile = cards.AudioFileName(ordinal)
	line.ImageFile = cards.ImageFileName(ordinal)

	audioPath := filepath.Join(dirs.Audio, line.AudioFile)
	if err := u.d.Media.ExtractAudio(ctx, in.Video, line.Start, line.End, in.PadLead, in.PadTrail, in.AudioTrack, audioPath); err != nil {
		out.line = line
		out.excluded = true
		out.failures = append(out.failures, types.LineFailure{LineID: line.ID, Stage: "audio", Error: err.Error()})
		return out
	}

	mid := line.Start + (line.End-line.Start)/2
	imagePath := filepath.Join(dirs.Image, line.ImageFile)
	if err := u.d.Media.ExtractImage(ctx, in.Video, mid, in.VideoTrack, imagePath); err != nil {
		out.line = line
		out.excluded = true
		out.failures = append(out.failures, types.LineFailure{LineID: line.ID, Stage: "image", Error: err.Error()})
		return out
	}

	if err := cards.VerifyMedia(line, dirs.Audio, dirs.Image); err != nil {
		out.line = line
		out.excluded = true
		out.failures = append(out.failures, types.LineFailure{LineID: line.ID, Stage: "assemble", Error: err.Error()})
		return out
	}

	out.line = line
	return out
}
