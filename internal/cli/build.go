package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/subcards/subcards/internal/pipeline"
)

func newBuildCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build <video>",
		Short: "Run the full pipeline and produce cards with media",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBuild(cmd, args[0])
		},
	}
	addPipelineFlags(cmd)
	cmd.Flags().String("review", "", "Reingest an edited review overlay")
	cmd.Flags().Bool("dry-run", false, "Skip media extraction")
	cmd.Flags().Int("pad-before-ms", 100, "Audio padding before each line")
	cmd.Flags().Int("pad-after-ms", 200, "Audio padding after each line")
	cmd.Flags().Int("audio-track", 0, "Audio track index for extraction")
	cmd.Flags().Int("video-track", 0, "Video track index for frame grabs")
	cmd.Flags().Int("media-workers", 4, "Concurrent media extraction workers")
	return cmd
}

func runBuild(cmd *cobra.Command, video string) error {
	cfg, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	src, tgt, err := trackRefs(cmd, cfg)
	if err != nil {
		return err
	}
	reviewIn, _ := cmd.Flags().GetString("review")
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	ctx, cancel := context.WithTimeout(cmd.Context(), 3*time.Hour)
	defer cancel()

	res, err := pipeline.Run(ctx, pipeline.Config{
		Video:    absPath(video),
		Source:   src,
		Target:   tgt,
		Settings: cfg,
		ReviewIn: reviewIn,
		DryRun:   dryRun,
		Log:      newLogger(cfg),
	})
	if err != nil {
		return err
	}

	printSummary(cmd, res.Manifest)
	return nil
}
