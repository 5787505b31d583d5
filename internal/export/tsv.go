// Package export writes the final card table consumed by deck assembly.
package export

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"

	"github.com/subcards/subcards/internal/types"
)

// Header is the cards.tsv column set. Audio/Image carry deck-ready markup
// referencing files in the media directory.
var Header = []string{"Source", "Reading", "Translation", "Audio", "Image", "Start", "End", "Video"}

// WriteCards writes line records as a tab-separated card table and returns
// the output path.
func WriteCards(outDir string, lines []types.LineRecord) (string, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(outDir, "cards.tsv")
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	w.Comma = '\t'
	if err := w.Write(Header); err != nil {
		return "", err
	}
	for _, l := range lines {
		audio := ""
		if l.AudioFile != "" {
			audio = fmt.Sprintf("[sound:%s]", l.AudioFile)
		}
		image := ""
		if l.ImageFile != "" {
			image = fmt.Sprintf("<img src=%q>", l.ImageFile)
		}
		rec := []string{
			l.TextSource,
			l.TextTranslit,
			l.TextTarget,
			audio,
			image,
			fmt.Sprintf("%d", l.Start.Milliseconds()),
			fmt.Sprintf("%d", l.End.Milliseconds()),
			l.Video,
		}
		if err := w.Write(rec); err != nil {
			return "", err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}
	return path, nil
}
