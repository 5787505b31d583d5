package cli

import (
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/subcards/subcards/internal/config"
	"github.com/subcards/subcards/internal/logging"
	"github.com/subcards/subcards/internal/pipeline"
	"github.com/subcards/subcards/internal/types"
)

// loadSettings builds the effective configuration: defaults ← TOML ← env ←
// flags (only flags the user actually set override the file).
func loadSettings(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	explicit := cmd.Flags().Changed("config")
	cfg, err := config.Load(path, explicit)
	if err != nil {
		return cfg, err
	}
	cfg.ApplyEnv()

	if cmd.Flags().Changed("log-level") {
		cfg.Logging.Level, _ = cmd.Flags().GetString("log-level")
	}
	if cmd.Flags().Changed("log-format") {
		cfg.Logging.Format, _ = cmd.Flags().GetString("log-format")
	}

	overrideString(cmd, "out", &cfg.OutDir)
	overrideString(cmd, "rules", &cfg.RulesFile)
	overrideString(cmd, "source-encoding", &cfg.SourceEncoding)
	overrideString(cmd, "target-encoding", &cfg.TargetEncoding)
	overrideString(cmd, "level", &cfg.Level)
	overrideString(cmd, "llm-model", &cfg.LLM.Model)
	overrideInt(cmd, "gap-merge-ms", &cfg.GapMergeMS)
	overrideInt(cmd, "pad-before-ms", &cfg.PadBeforeMS)
	overrideInt(cmd, "pad-after-ms", &cfg.PadAfterMS)
	overrideInt(cmd, "limit", &cfg.Limit)
	overrideInt(cmd, "audio-track", &cfg.AudioTrack)
	overrideInt(cmd, "video-track", &cfg.VideoTrack)
	overrideInt(cmd, "media-workers", &cfg.MediaWorkers)
	overrideBool(cmd, "keep-sfx", &cfg.KeepSFX)
	return cfg, nil
}

func overrideString(cmd *cobra.Command, name string, dst *string) {
	if cmd.Flags().Changed(name) {
		*dst, _ = cmd.Flags().GetString(name)
	}
}

func overrideInt(cmd *cobra.Command, name string, dst *int) {
	if cmd.Flags().Changed(name) {
		*dst, _ = cmd.Flags().GetInt(name)
	}
}

func overrideBool(cmd *cobra.Command, name string, dst *bool) {
	if cmd.Flags().Changed(name) {
		*dst, _ = cmd.Flags().GetBool(name)
	}
}

// addPipelineFlags registers the flags shared by draft and build.
func addPipelineFlags(cmd *cobra.Command) {
	cmd.Flags().String("source", "", "Source-language subtitle file")
	cmd.Flags().String("target", "", "Translation subtitle file")
	cmd.Flags().Int("source-track", -1, "Embedded subtitle track index for the source language")
	cmd.Flags().Int("target-track", -1, "Embedded subtitle track index for the translation")
	cmd.Flags().String("source-encoding", "", "Source subtitle encoding (utf-8, shift-jis, utf-16le, utf-16be)")
	cmd.Flags().String("target-encoding", "", "Translation subtitle encoding")
	cmd.Flags().String("out", "", "Output directory")
	cmd.Flags().String("rules", "", "YAML filter-rule file")
	cmd.Flags().Int("gap-merge-ms", 400, "Merge cues separated by less than this gap")
	cmd.Flags().Int("limit", 0, "Process only the first N lines")
	cmd.Flags().Bool("keep-sfx", false, "Keep SFX-only cues instead of dropping them")
	cmd.Flags().String("level", "", "Learner proficiency (beginner, intermediate, advanced)")
}

func trackRefs(cmd *cobra.Command, cfg config.Config) (pipeline.TrackRef, pipeline.TrackRef, error) {
	sourcePath, _ := cmd.Flags().GetString("source")
	targetPath, _ := cmd.Flags().GetString("target")
	sourceTrack, _ := cmd.Flags().GetInt("source-track")
	targetTrack, _ := cmd.Flags().GetInt("target-track")

	src := pipeline.TrackRef{Path: sourcePath, Embedded: sourceTrack, Encoding: cfg.SourceEncoding}
	tgt := pipeline.TrackRef{Path: targetPath, Embedded: targetTrack, Encoding: cfg.TargetEncoding}
	if src.Path == "" && sourceTrack < 0 {
		return src, tgt, fmt.Errorf("either --source or --source-track is required")
	}
	if tgt.Path == "" && targetTrack < 0 {
		return src, tgt, fmt.Errorf("either --target or --target-track is required")
	}
	return src, tgt, nil
}

func newLogger(cfg config.Config) zerolog.Logger {
	return logging.New(cfg.Logging.Level, cfg.Logging.Format)
}

func printSummary(cmd *cobra.Command, m types.Manifest) {
	rows := [][]string{
		{"lines", strconv.Itoa(m.Stats.Lines)},
		{"merged", strconv.Itoa(m.Stats.Merged)},
		{"translation gaps", strconv.Itoa(m.Stats.Gaps)},
		{"dropped cues", strconv.Itoa(m.Stats.Dropped)},
		{"failures", strconv.Itoa(m.Stats.Failed)},
	}
	cmd.Println(renderTable([]string{"Stat", "Value"}, rows, []columnAlignment{alignLeft, alignRight}))
	if m.CardsFile != "" {
		cmd.Printf("cards: %s\n", m.CardsFile)
	}
	if m.ReviewFile != "" {
		cmd.Printf("review overlay: %s\n", m.ReviewFile)
	}
	for _, f := range m.Failures {
		if f.LineID == "" {
			cmd.Printf("warning (%s): %s\n", f.Stage, f.Error)
		}
	}
}

func absPath(p string) string {
	abs, err := filepath.Abs(p)
	if err != nil {
		return p
	}
	return abs
}
