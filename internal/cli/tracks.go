package cli

import (
	"context"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/subcards/subcards/internal/ports/adapters/ffmpeg"
)

func newTracksCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "tracks <video>",
		Short: "List embedded subtitle tracks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadSettings(cmd)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
			defer cancel()

			media := ffmpeg.New(cfg.FFmpegPath, cfg.FFprobePath)
			tracks, err := media.ListSubtitleTracks(ctx, absPath(args[0]))
			if err != nil {
				return err
			}
			if len(tracks) == 0 {
				cmd.Println("no embedded subtitle tracks")
				return nil
			}

			rows := make([][]string, 0, len(tracks))
			for _, t := range tracks {
				rows = append(rows, []string{strconv.Itoa(t.Index), t.Language, t.Codec, t.Title})
			}
			cmd.Println(renderTable(
				[]string{"Track", "Language", "Codec", "Title"},
				rows,
				[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft},
			))
			return nil
		},
	}
}
