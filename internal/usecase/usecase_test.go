package usecase

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/subcards/subcards/internal/domain/review"
	"github.com/subcards/subcards/internal/domain/subtitle"
	"github.com/subcards/subcards/internal/ports"
	"github.com/subcards/subcards/internal/types"
)

type fakeMedia struct {
	mu         sync.Mutex
	audioCalls int
	imageCalls int
	failAudio  map[string]bool // keyed by fmtSpan(start)
	skipWrite  bool
}

func fmtSpan(start time.Duration) string { return start.String() }

func (f *fakeMedia) ExtractAudio(_ context.Context, _ string, start, _, _, _ time.Duration, _ int, outPath string) error {
	f.mu.Lock()
	f.audioCalls++
	fail := f.failAudio[fmtSpan(start)]
	f.mu.Unlock()
	if fail {
		return errors.New("boom")
	}
	if f.skipWrite {
		return nil
	}
	return writeMediaFile(outPath)
}

func (f *fakeMedia) ExtractImage(_ context.Context, _ string, _ time.Duration, _ int, outPath string) error {
	f.mu.Lock()
	f.imageCalls++
	f.mu.Unlock()
	if f.skipWrite {
		return nil
	}
	return writeMediaFile(outPath)
}

func (f *fakeMedia) ListSubtitleTracks(context.Context, string) ([]ports.SubtitleTrack, error) {
	return nil, nil
}

func (f *fakeMedia) ExtractSubtitleTrack(context.Context, string, int, string) error {
	return nil
}

func writeMediaFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte("x"), 0o644)
}

type fakeRomanizer struct {
	err error
}

func (f *fakeRomanizer) Romanize(_ context.Context, text string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "roman:" + text, nil
}

type fakeReviewer struct {
	err   error
	cands []ports.ReviewCandidate
	items []ports.ReviewItem
}

func (f *fakeReviewer) Review(_ context.Context, items []ports.ReviewItem, _ string) ([]ports.ReviewCandidate, error) {
	f.items = items
	if f.err != nil {
		return nil, f.err
	}
	return f.cands, nil
}

const srcSRT = `1
00:00:01,000 --> 00:00:02,000
こんにちは

2
00:00:02,100 --> 00:00:03,000
元気？

3
00:00:04,000 --> 00:00:05,000
（ドアの音）

4
00:00:06,000 --> 00:00:07,000
さようなら
`

const tgtSRT = `1
00:00:00,900 --> 00:00:03,100
hello, how are you?

2
00:00:05,900 --> 00:00:07,200
goodbye
`

func testInput(t *testing.T, outDir string) Input {
	t.Helper()
	dir := t.TempDir()
	srcPath := filepath.Join(dir, "src.srt")
	tgtPath := filepath.Join(dir, "tgt.srt")
	if err := os.WriteFile(srcPath, []byte(srcSRT), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(tgtPath, []byte(tgtSRT), 0o644); err != nil {
		t.Fatal(err)
	}
	rules, err := subtitle.NewRuleSet(subtitle.DefaultRules())
	if err != nil {
		t.Fatal(err)
	}
	return Input{
		Video:        filepath.Join(dir, "ep01.mkv"),
		VideoID:      "ep01",
		SourcePath:   srcPath,
		TargetPath:   tgtPath,
		Rules:        rules,
		GapMerge:     subtitle.DefaultGapThreshold,
		Level:        "intermediate",
		MediaWorkers: 2,
		OutDir:       outDir,
	}
}

func newUsecase(d Deps) Usecase {
	d.Log = zerolog.Nop()
	return New(d)
}

func TestBuildDraft(t *testing.T) {
	uc := newUsecase(Deps{})
	draft, err := uc.BuildDraft(context.Background(), testInput(t, t.TempDir()))
	if err != nil {
		t.Fatalf("build draft: %v", err)
	}
	// Cues 1+2 merge (gap 100ms); the SFX cue drops; cue 4 stands alone.
	if len(draft.Lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %+v", len(draft.Lines), draft.Lines)
	}
	if draft.Lines[0].TextSource != "こんにちは 元気？" {
		t.Fatalf("merge missing: %q", draft.Lines[0].TextSource)
	}
	if draft.Lines[0].Provenance != types.ProvenanceMerged {
		t.Fatalf("merged provenance missing: %+v", draft.Lines[0])
	}
	if draft.Lines[0].TextTarget != "hello, how are you?" {
		t.Fatalf("alignment missing: %q", draft.Lines[0].TextTarget)
	}
	if draft.Lines[1].TextTarget != "goodbye" {
		t.Fatalf("alignment missing: %q", draft.Lines[1].TextTarget)
	}
	if len(draft.Dropped) != 1 || !strings.Contains(draft.Dropped[0].Text, "ドア") {
		t.Fatalf("audit list wrong: %+v", draft.Dropped)
	}
}

func TestBuildDraft_Limit(t *testing.T) {
	uc := newUsecase(Deps{})
	in := testInput(t, t.TempDir())
	in.Limit = 1
	draft, err := uc.BuildDraft(context.Background(), in)
	if err != nil {
		t.Fatalf("build draft: %v", err)
	}
	if len(draft.Lines) != 1 {
		t.Fatalf("limit not applied: %d lines", len(draft.Lines))
	}
}

func TestExportReview_WithCandidates(t *testing.T) {
	rev := &fakeReviewer{}
	uc := newUsecase(Deps{Reviewer: rev})
	in := testInput(t, t.TempDir())

	// First pass to learn the stable ids, then pre-load candidates for them.
	draft, err := uc.BuildDraft(context.Background(), in)
	if err != nil {
		t.Fatal(err)
	}
	rev.cands = []ports.ReviewCandidate{
		{ID: draft.Lines[0].ID, Keep: true, Focus: "元気", Gloss: "well", Reason: "common"},
	}

	reviewPath := filepath.Join(t.TempDir(), "review.tsv")
	res, err := uc.ExportReview(context.Background(), in, reviewPath)
	if err != nil {
		t.Fatalf("export review: %v", err)
	}
	if res.LLMDegraded || res.Candidates != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if len(rev.items) != 2 {
		t.Fatalf("reviewer must see every draft line, saw %d", len(rev.items))
	}

	rows, err := review.ReadOverlay(reviewPath)
	if err != nil {
		t.Fatalf("read overlay: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 overlay rows, got %d", len(rows))
	}
	if !rows[0].Approved || rows[0].Focus != "元気" {
		t.Fatalf("candidate not written: %+v", rows[0])
	}
	if rows[1].Approved {
		t.Fatalf("line without candidate must not be pre-approved: %+v", rows[1])
	}
}

func TestExportReview_DegradesOnProviderError(t *testing.T) {
	rev := &fakeReviewer{err: &ports.ProviderError{Provider: "openrouter", Status: 429, Err: errors.New("rate limited")}}
	uc := newUsecase(Deps{Reviewer: rev})
	reviewPath := filepath.Join(t.TempDir(), "review.tsv")

	res, err := uc.ExportReview(context.Background(), testInput(t, t.TempDir()), reviewPath)
	if err != nil {
		t.Fatalf("provider failure must degrade, not fail: %v", err)
	}
	if !res.LLMDegraded || res.Candidates != 0 {
		t.Fatalf("degradation not reported: %+v", res)
	}
	if _, err := os.Stat(reviewPath); err != nil {
		t.Fatalf("overlay must still be written: %v", err)
	}
}

func TestExportReview_OtherErrorsAreFatal(t *testing.T) {
	rev := &fakeReviewer{err: errors.New("programming error")}
	uc := newUsecase(Deps{Reviewer: rev})
	_, err := uc.ExportReview(context.Background(), testInput(t, t.TempDir()), filepath.Join(t.TempDir(), "review.tsv"))
	if err == nil {
		t.Fatal("non-provider errors must fail the export")
	}
}

func TestBuild_DryRun(t *testing.T) {
	uc := newUsecase(Deps{Romanizer: &fakeRomanizer{}})
	in := testInput(t, t.TempDir())
	in.DryRun = true

	res, err := uc.Build(context.Background(), in)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(res.Lines) != 2 || len(res.Failures) != 0 {
		t.Fatalf("unexpected result: lines=%d failures=%d", len(res.Lines), len(res.Failures))
	}
	if res.Lines[0].TextTranslit != "roman:"+res.Lines[0].TextSource {
		t.Fatalf("romanization missing: %+v", res.Lines[0])
	}
	if res.Lines[0].AudioFile != "" {
		t.Fatalf("dry run must not name media files: %+v", res.Lines[0])
	}
}

func TestBuild_ExtractsMedia(t *testing.T) {
	media := &fakeMedia{}
	uc := newUsecase(Deps{Media: media})
	outDir := t.TempDir()

	res, err := uc.Build(context.Background(), testInput(t, outDir))
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(res.Lines) != 2 {
		t.Fatalf("expected 2 card lines, got %d", len(res.Lines))
	}
	if media.audioCalls != 2 || media.imageCalls != 2 {
		t.Fatalf("extraction calls: audio=%d image=%d", media.audioCalls, media.imageCalls)
	}
	if res.Lines[0].AudioFile != "audio_00001.mp3" || res.Lines[1].ImageFile != "img_00002.jpg" {
		t.Fatalf("media names wrong: %+v", res.Lines)
	}
	if res.MediaDirs.Audio != filepath.Join(outDir, "media", "audio") {
		t.Fatalf("unexpected media dir: %+v", res.MediaDirs)
	}
}

func TestBuild_MediaFailureFlagsOnlyThatLine(t *testing.T) {
	media := &fakeMedia{failAudio: map[string]bool{fmtSpan(time.Second): true}}
	uc := newUsecase(Deps{Media: media})

	res, err := uc.Build(context.Background(), testInput(t, t.TempDir()))
	if err != nil {
		t.Fatalf("per-line media failure must not abort the run: %v", err)
	}
	if len(res.Lines) != 1 {
		t.Fatalf("expected the surviving line only, got %d", len(res.Lines))
	}
	if len(res.AllLines) != 2 {
		t.Fatalf("failed line must remain in the manifest view: %d", len(res.AllLines))
	}
	if len(res.Failures) != 1 || res.Failures[0].Stage != "audio" {
		t.Fatalf("unexpected failures: %+v", res.Failures)
	}
}

func TestBuild_VerifyCatchesMissingMedia(t *testing.T) {
	// Extraction reports success but writes nothing; verification must fail
	// each line.
	media := &fakeMedia{skipWrite: true}
	uc := newUsecase(Deps{Media: media})

	res, err := uc.Build(context.Background(), testInput(t, t.TempDir()))
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(res.Lines) != 0 {
		t.Fatalf("unverified lines must not reach the card table: %+v", res.Lines)
	}
	for _, f := range res.Failures {
		if f.Stage != "assemble" {
			t.Fatalf("unexpected failure stage: %+v", f)
		}
	}
}

func TestBuild_RomanizeFailureKeepsLine(t *testing.T) {
	uc := newUsecase(Deps{Romanizer: &fakeRomanizer{err: errors.New("kakasi exploded")}})
	in := testInput(t, t.TempDir())
	in.DryRun = true

	res, err := uc.Build(context.Background(), in)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(res.Lines) != 2 {
		t.Fatalf("romanize failure must not drop lines: %d", len(res.Lines))
	}
	if len(res.Failures) != 2 {
		t.Fatalf("each romanize failure must be flagged: %+v", res.Failures)
	}
	for _, f := range res.Failures {
		if f.Stage != "romanize" {
			t.Fatalf("unexpected stage: %+v", f)
		}
	}
}

func TestBuild_ReingestsOverlay(t *testing.T) {
	uc := newUsecase(Deps{})
	in := testInput(t, t.TempDir())
	in.DryRun = true

	draft, err := uc.BuildDraft(context.Background(), in)
	if err != nil {
		t.Fatal(err)
	}
	rows := []types.ReviewRow{
		{ID: draft.Lines[0].ID, Approved: true, Focus: "元気", Gloss: "well"},
		{ID: draft.Lines[1].ID, Approved: false},
		{ID: "stale99", Approved: true},
	}
	overlay := filepath.Join(t.TempDir(), "review.tsv")
	if err := review.WriteOverlay(overlay, rows); err != nil {
		t.Fatal(err)
	}
	in.ReviewIn = overlay

	res, err := uc.Build(context.Background(), in)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(res.Lines) != 1 {
		t.Fatalf("only the approved line survives, got %d", len(res.Lines))
	}
	if res.Lines[0].TextSource != "元気" || res.Lines[0].TextTarget != "well" {
		t.Fatalf("overlay edits not applied: %+v", res.Lines[0])
	}
	if res.Lines[0].Provenance != types.ProvenanceReviewed {
		t.Fatalf("provenance not updated: %+v", res.Lines[0])
	}
	if res.Report.Applied != 1 || res.Report.Dropped != 1 || len(res.Report.Unknown) != 1 {
		t.Fatalf("unexpected report: %+v", res.Report)
	}
	// The stale row is a per-row failure, not an abort.
	if len(res.Failures) != 1 || res.Failures[0].Stage != "reingest" {
		t.Fatalf("unexpected failures: %+v", res.Failures)
	}
}
