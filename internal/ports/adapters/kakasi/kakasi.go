// Package kakasi romanizes Japanese text by shelling out to the kakasi
// command-line converter.
package kakasi

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

type Adapter struct {
	bin string
}

func New(binPath string) *Adapter {
	if binPath == "" {
		binPath = "kakasi"
	}
	return &Adapter{bin: binPath}
}

// Romanize converts kanji/kana to Hepburn romaji. Pure function of its
// input, so retries are safe.
func (a *Adapter) Romanize(ctx context.Context, text string) (string, error) {
	cmd := exec.CommandContext(ctx, a.bin,
		"-i", "utf8",
		"-o", "utf8",
		"-Ja", "-Ha", "-Ka", "-Ea",
		"-s",
	)
	cmd.Stdin = strings.NewReader(text)
	var out, errb bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errb
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("kakasi: %w: %s", err, strings.TrimSpace(errb.String()))
	}
	return strings.Join(strings.Fields(out.String()), " "), nil
}
