package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/subcards/subcards/internal/pipeline"
)

func newDraftCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "draft <video>",
		Short: "Align tracks and export a review overlay for correction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDraft(cmd, args[0])
		},
	}
	addPipelineFlags(cmd)
	cmd.Flags().String("review-out", "review.tsv", "Path for the review overlay table")
	cmd.Flags().Bool("no-llm", false, "Skip LLM candidate generation (manual-only review)")
	cmd.Flags().String("llm-model", "", "LLM model name")
	return cmd
}

func runDraft(cmd *cobra.Command, video string) error {
	cfg, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	src, tgt, err := trackRefs(cmd, cfg)
	if err != nil {
		return err
	}
	reviewOut, _ := cmd.Flags().GetString("review-out")
	noLLM, _ := cmd.Flags().GetBool("no-llm")

	ctx, cancel := context.WithTimeout(cmd.Context(), time.Hour)
	defer cancel()

	res, err := pipeline.Run(ctx, pipeline.Config{
		Video:     absPath(video),
		Source:    src,
		Target:    tgt,
		Settings:  cfg,
		ReviewOut: absPath(reviewOut),
		WithLLM:   !noLLM,
		Log:       newLogger(cfg),
	})
	if err != nil {
		return err
	}

	printSummary(cmd, res.Manifest)
	cmd.Println("Edit the 'approved' column, then run 'subcards build --review' to generate cards.")
	return nil
}
