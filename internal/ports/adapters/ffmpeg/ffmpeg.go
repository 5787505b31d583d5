// Package ffmpeg shells out to ffmpeg/ffprobe for media extraction and
// embedded subtitle track handling.
package ffmpeg

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"time"

	"github.com/subcards/subcards/internal/ports"
)

type Adapter struct {
	ffmpeg  string
	ffprobe string
}

func New(ffmpegPath, ffprobePath string) *Adapter {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &Adapter{ffmpeg: ffmpegPath, ffprobe: ffprobePath}
}

// ExtractAudio cuts the line's span, padded on both sides, to a mono 44.1k
// clip. Writing with -y keeps the call idempotent under retry.
func (a *Adapter) ExtractAudio(ctx context.Context, video string, start, end, padLead, padTrail time.Duration, audioTrack int, outPath string) error {
	from := start - padLead
	if from < 0 {
		from = 0
	}
	to := end + padTrail
	cmd := exec.CommandContext(ctx, a.ffmpeg,
		"-y",
		"-loglevel", "error",
		"-ss", fmtSeconds(from),
		"-to", fmtSeconds(to),
		"-i", video,
		"-map", fmt.Sprintf("0:a:%d", audioTrack),
		"-ac", "1",
		"-ar", "44100",
		"-vn",
		outPath,
	)
	if b, err := cmd.CombinedOutput(); err != nil {
		return &ports.ExtractionError{Video: video, Detail: "audio clip: " + string(b), Err: err}
	}
	return nil
}

// ExtractImage grabs a single frame at the given timestamp.
func (a *Adapter) ExtractImage(ctx context.Context, video string, at time.Duration, videoTrack int, outPath string) error {
	if at < 0 {
		at = 0
	}
	cmd := exec.CommandContext(ctx, a.ffmpeg,
		"-y",
		"-loglevel", "error",
		"-ss", fmtSeconds(at),
		"-i", video,
		"-map", fmt.Sprintf("0:v:%d", videoTrack),
		"-frames:v", "1",
		"-q:v", "2",
		outPath,
	)
	if b, err := cmd.CombinedOutput(); err != nil {
		return &ports.ExtractionError{Video: video, Detail: "frame: " + string(b), Err: err}
	}
	return nil
}

// ListSubtitleTracks probes the container's subtitle streams.
func (a *Adapter) ListSubtitleTracks(ctx context.Context, video string) ([]ports.SubtitleTrack, error) {
	cmd := exec.CommandContext(ctx, a.ffprobe,
		"-v", "error",
		"-print_format", "json",
		"-show_streams",
		"-select_streams", "s",
		video,
	)
	b, err := cmd.Output()
	if err != nil {
		return nil, &ports.ExtractionError{Video: video, Detail: "probe subtitle streams", Err: err}
	}
	return parseSubtitleStreams(b)
}

// ExtractSubtitleTrack dumps one embedded track to a standalone SRT file the
// cue loader can read.
func (a *Adapter) ExtractSubtitleTrack(ctx context.Context, video string, trackIndex int, outPath string) error {
	tracks, err := a.ListSubtitleTracks(ctx, video)
	if err != nil {
		return err
	}
	if trackIndex < 0 || trackIndex >= len(tracks) {
		return &ports.TrackNotFoundError{Video: video, Index: trackIndex, Have: len(tracks)}
	}
	cmd := exec.CommandContext(ctx, a.ffmpeg,
		"-y",
		"-loglevel", "error",
		"-i", video,
		"-map", "0:s:"+strconv.Itoa(trackIndex),
		"-f", "srt",
		outPath,
	)
	if b, err := cmd.CombinedOutput(); err != nil {
		return &ports.ExtractionError{Video: video, Detail: "subtitle track: " + string(b), Err: err}
	}
	return nil
}

func parseSubtitleStreams(data []byte) ([]ports.SubtitleTrack, error) {
	var probe struct {
		Streams []struct {
			Index     int    `json:"index"`
			CodecName string `json:"codec_name"`
			Tags      struct {
				Language string `json:"language"`
				Title    string `json:"title"`
			} `json:"tags"`
		} `json:"streams"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("parse ffprobe output: %w", err)
	}
	tracks := make([]ports.SubtitleTrack, 0, len(probe.Streams))
	// ffprobe reports container-global stream indices; -map 0:s:N wants the
	// subtitle-relative position, so renumber from zero.
	for i, s := range probe.Streams {
		tracks = append(tracks, ports.SubtitleTrack{
			Index:    i,
			Language: s.Tags.Language,
			Title:    s.Tags.Title,
			Codec:    s.CodecName,
		})
	}
	return tracks, nil
}

func fmtSeconds(d time.Duration) string {
	sec := float64(d) / float64(time.Second)
	return strconv.FormatFloat(sec, 'f', 3, 64)
}
