// Package pipeline wires adapters and configuration around the usecase and
// owns the run's filesystem layout: output directory, media dirs, manifest.
package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/subcards/subcards/internal/config"
	"github.com/subcards/subcards/internal/domain/subtitle"
	"github.com/subcards/subcards/internal/export"
	"github.com/subcards/subcards/internal/ports"
	"github.com/subcards/subcards/internal/ports/adapters/ffmpeg"
	"github.com/subcards/subcards/internal/ports/adapters/kakasi"
	"github.com/subcards/subcards/internal/ports/adapters/openrouter"
	"github.com/subcards/subcards/internal/types"
	"github.com/subcards/subcards/internal/usecase"
)

// TrackRef points at one subtitle input: either a standalone file or an
// embedded track index to extract from the video.
type TrackRef struct {
	Path     string
	Embedded int // used when Path is empty
	Encoding string
}

func (r TrackRef) isEmbedded() bool { return r.Path == "" }

// Config is the fully resolved run configuration.
type Config struct {
	Video  string
	Source TrackRef
	Target TrackRef

	Settings config.Config

	// ReviewOut switches the run to review export; ReviewIn reingests an
	// edited overlay during build. Mutually exclusive.
	ReviewOut string
	ReviewIn  string
	DryRun    bool

	// WithLLM enables the review collaborator on export.
	WithLLM bool

	Log zerolog.Logger
}

func (c Config) Validate() error {
	if c.Video == "" {
		return errors.New("video path is empty")
	}
	if _, err := os.Stat(c.Video); err != nil {
		return fmt.Errorf("stat video: %w", err)
	}
	if c.ReviewOut != "" && c.ReviewIn != "" {
		return errors.New("review export and reingest cannot be combined in one run")
	}
	if c.Source.Path != "" {
		if _, err := os.Stat(c.Source.Path); err != nil {
			return fmt.Errorf("stat source subtitles: %w", err)
		}
	}
	if c.Target.Path != "" {
		if _, err := os.Stat(c.Target.Path); err != nil {
			return fmt.Errorf("stat target subtitles: %w", err)
		}
	}
	if c.Settings.GapMergeMS < 0 {
		return errors.New("gap_merge_ms must be >= 0")
	}
	if c.WithLLM {
		if c.Settings.LLM.APIKey == "" {
			return errors.New("LLM API key is required (set LLM_API_KEY in .env)")
		}
		if err := openrouter.ValidateBaseURL(c.Settings.LLM.BaseURL, c.Settings.LLM.AllowedHosts); err != nil {
			return err
		}
	}
	return nil
}

// Result is what the CLI renders after a run.
type Result struct {
	Manifest     types.Manifest
	ManifestPath string
	CardsPath    string
	ReviewPath   string
	LLMDegraded  bool
}

// Run executes a draft-export or build run, depending on Config.ReviewOut.
func Run(ctx context.Context, cfg Config) (Result, error) {
	if err := cfg.Validate(); err != nil {
		return Result{}, err
	}
	log := cfg.Log

	media := ffmpeg.New(cfg.Settings.FFmpegPath, cfg.Settings.FFprobePath)

	rules, err := config.LoadRules(cfg.Settings.RulesFile)
	if err != nil {
		return Result{}, err
	}
	if cfg.Settings.KeepSFX {
		// Keep-SFX runs still normalize; only the pattern rules are skipped.
		rules, err = subtitle.NewRuleSet(nil)
		if err != nil {
			return Result{}, err
		}
	}

	cacheDir := filepath.Join(cfg.Settings.CacheDir, "runs", hash(cfg.Video))
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return Result{}, err
	}

	sourcePath, err := resolveTrack(ctx, media, cfg.Video, cfg.Source, cacheDir, "source")
	if err != nil {
		return Result{}, err
	}
	targetPath, err := resolveTrack(ctx, media, cfg.Video, cfg.Target, cacheDir, "target")
	if err != nil {
		return Result{}, err
	}

	outDir := buildRunOutDir(cfg.Settings.OutDir, cfg.Video, time.Now().UTC())

	var reviewer ports.Reviewer
	if cfg.WithLLM {
		reviewer = openrouter.New(cfg.Settings.LLM.APIKey, openrouter.Options{
			Model:     cfg.Settings.LLM.Model,
			BaseURL:   cfg.Settings.LLM.BaseURL,
			AppName:   cfg.Settings.LLM.AppName,
			SiteURL:   cfg.Settings.LLM.SiteURL,
			BatchSize: cfg.Settings.LLM.BatchSize,
			Timeout:   time.Duration(cfg.Settings.LLM.TimeoutS) * time.Second,
		})
	}

	uc := usecase.New(usecase.Deps{
		Media:     media,
		Romanizer: kakasi.New(cfg.Settings.KakasiPath),
		Reviewer:  reviewer,
		Log:       log,
	})

	in := usecase.Input{
		Video:          cfg.Video,
		VideoID:        filepath.Base(cfg.Video),
		SourcePath:     sourcePath,
		TargetPath:     targetPath,
		SourceEncoding: cfg.Source.Encoding,
		TargetEncoding: cfg.Target.Encoding,
		Rules:          rules,
		GapMerge:       time.Duration(cfg.Settings.GapMergeMS) * time.Millisecond,
		Limit:          cfg.Settings.Limit,
		Level:          config.NormalizeLevel(cfg.Settings.Level),
		PadLead:        time.Duration(cfg.Settings.PadBeforeMS) * time.Millisecond,
		PadTrail:       time.Duration(cfg.Settings.PadAfterMS) * time.Millisecond,
		AudioTrack:     cfg.Settings.AudioTrack,
		VideoTrack:     cfg.Settings.VideoTrack,
		MediaWorkers:   cfg.Settings.MediaWorkers,
		DryRun:         cfg.DryRun,
		OutDir:         outDir,
		ReviewIn:       cfg.ReviewIn,
	}

	if cfg.ReviewOut != "" {
		return runExport(ctx, uc, in, cfg, sourcePath, targetPath)
	}
	return runBuild(ctx, uc, in, cfg, outDir, sourcePath, targetPath)
}

func runExport(ctx context.Context, uc usecase.Usecase, in usecase.Input, cfg Config, sourcePath, targetPath string) (Result, error) {
	exp, err := uc.ExportReview(ctx, in, cfg.ReviewOut)
	if err != nil {
		return Result{}, err
	}

	m := newManifest(cfg.Video, sourcePath, targetPath)
	m.ReviewFile = cfg.ReviewOut
	for _, l := range exp.Draft.Lines {
		m.Lines = append(m.Lines, types.ToManifestLine(l))
	}
	m.Dropped = exp.Draft.Dropped
	if exp.LLMDegraded {
		m.Failures = append(m.Failures, types.LineFailure{Stage: "review", Error: exp.LLMError})
	}
	fillStats(&m, exp.Draft.Lines)

	cfg.Log.Info().
		Int("lines", len(exp.Draft.Lines)).
		Int("candidates", exp.Candidates).
		Str("review", cfg.ReviewOut).
		Msg("review overlay written")

	return Result{Manifest: m, ReviewPath: exp.ReviewPath, LLMDegraded: exp.LLMDegraded}, nil
}

func runBuild(ctx context.Context, uc usecase.Usecase, in usecase.Input, cfg Config, outDir, sourcePath, targetPath string) (Result, error) {
	if !cfg.DryRun {
		for _, d := range []string{
			filepath.Join(outDir, "media", "audio"),
			filepath.Join(outDir, "media", "img"),
		} {
			if err := os.MkdirAll(d, 0o755); err != nil {
				return Result{}, err
			}
		}
	}

	res, err := uc.Build(ctx, in)
	if err != nil {
		return Result{}, err
	}

	cardsPath, err := export.WriteCards(outDir, res.Lines)
	if err != nil {
		return Result{}, err
	}

	m := newManifest(cfg.Video, sourcePath, targetPath)
	m.CardsFile = cardsPath
	if cfg.ReviewIn != "" {
		m.ReviewFile = cfg.ReviewIn
	}
	for _, l := range res.AllLines {
		m.Lines = append(m.Lines, types.ToManifestLine(l))
	}
	m.Dropped = res.Dropped
	m.Failures = res.Failures
	fillStats(&m, res.AllLines)

	manifestPath := filepath.Join(outDir, "manifest.json")
	if err := writeManifest(manifestPath, m); err != nil {
		return Result{}, err
	}

	cfg.Log.Info().
		Int("cards", len(res.Lines)).
		Int("failures", len(res.Failures)).
		Str("out", outDir).
		Msg("build finished")

	return Result{Manifest: m, ManifestPath: manifestPath, CardsPath: cardsPath}, nil
}

func resolveTrack(ctx context.Context, media ports.MediaTool, video string, ref TrackRef, cacheDir, name string) (string, error) {
	if !ref.isEmbedded() {
		return ref.Path, nil
	}
	out := filepath.Join(cacheDir, fmt.Sprintf("%s-track%d.srt", name, ref.Embedded))
	if err := media.ExtractSubtitleTrack(ctx, video, ref.Embedded, out); err != nil {
		return "", err
	}
	return out, nil
}

func newManifest(video, sourcePath, targetPath string) types.Manifest {
	return types.Manifest{
		RunID:      uuid.NewString(),
		Video:      video,
		CreatedAt:  time.Now().UTC(),
		SourceSubs: sourcePath,
		TargetSubs: targetPath,
	}
}

func fillStats(m *types.Manifest, lines []types.LineRecord) {
	m.Stats.Lines = len(lines)
	m.Stats.Dropped = len(m.Dropped)
	for _, l := range lines {
		if l.Provenance == types.ProvenanceMerged {
			m.Stats.Merged++
		}
		if l.TextTarget == "" {
			m.Stats.Gaps++
		}
	}
	m.Stats.Failed = len(m.Failures)
}

func writeManifest(path string, m types.Manifest) error {
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	return os.WriteFile(path, b, 0o644)
}

func buildRunOutDir(outRoot, video string, now time.Time) string {
	name := strings.TrimSuffix(filepath.Base(video), filepath.Ext(video))
	name = normalizePathSegment(name)
	if name == "" {
		name = "input"
	}
	ts := now.UTC().Format("20060102-150405Z")
	runSeed := fmt.Sprintf("%s|%d", video, now.UTC().UnixNano())
	suffix := hash(runSeed)[:6]
	return filepath.Join(outRoot, fmt.Sprintf("%s-%s-%s", name, ts, suffix))
}

func normalizePathSegment(s string) string {
	var b strings.Builder
	prevDash := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			b.WriteRune(r)
			prevDash = false
		default:
			if !prevDash {
				b.WriteByte('-')
				prevDash = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}

func hash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:12]
}
