// Package subtitle loads, normalizes, filters and merges subtitle cues.
package subtitle

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/unicode"

	"github.com/subcards/subcards/internal/types"
)

// ParseError reports a malformed subtitle file. It is fatal for the whole
// track: if timing cannot be trusted, none of the cues are usable.
type ParseError struct {
	Path string
	Line int
	Msg  string
	Err  error
}

func (e *ParseError) Error() string {
	where := e.Path
	if e.Line > 0 {
		where = fmt.Sprintf("%s:%d", e.Path, e.Line)
	}
	if e.Err != nil {
		return fmt.Sprintf("parse %s: %s: %v", where, e.Msg, e.Err)
	}
	return fmt.Sprintf("parse %s: %s", where, e.Msg)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Load reads a subtitle file, decodes it with the given encoding name
// ("" or "utf-8", "shift-jis", "utf-16le", "utf-16be"), parses it by
// extension (.srt, .vtt, .ass/.ssa) and returns cues sorted by start time.
// Text is returned raw: ruby markup and full-width punctuation are left for
// the normalizer.
func Load(path, encodingName string, track types.Track) ([]types.Cue, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ParseError{Path: path, Msg: "read file", Err: err}
	}
	text, err := decodeText(data, encodingName)
	if err != nil {
		return nil, &ParseError{Path: path, Msg: err.Error()}
	}

	var cues []types.Cue
	switch strings.ToLower(filepath.Ext(path)) {
	case ".vtt":
		cues, err = parseVTT(path, text)
	case ".ass", ".ssa":
		cues, err = parseASS(path, text)
	default:
		cues, err = parseSRT(path, text)
	}
	if err != nil {
		return nil, err
	}

	// Stable sort keeps authoring order for identical timestamps, which in
	// turn keeps alignment deterministic.
	sort.SliceStable(cues, func(i, j int) bool {
		if cues[i].Start != cues[j].Start {
			return cues[i].Start < cues[j].Start
		}
		return cues[i].End < cues[j].End
	})
	for i := range cues {
		cues[i].Index = i
		cues[i].Track = track
	}
	return cues, nil
}

func decodeText(data []byte, name string) (string, error) {
	var enc encoding.Encoding
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "utf-8", "utf8":
		return string(stripBOM(data)), nil
	case "shift-jis", "shift_jis", "sjis", "cp932":
		enc = japanese.ShiftJIS
	case "euc-jp", "eucjp":
		enc = japanese.EUCJP
	case "utf-16le", "utf16le":
		enc = unicode.UTF16(unicode.LittleEndian, unicode.UseBOM)
	case "utf-16be", "utf16be":
		enc = unicode.UTF16(unicode.BigEndian, unicode.UseBOM)
	default:
		return "", fmt.Errorf("unsupported encoding %q", name)
	}
	out, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return "", fmt.Errorf("decode %s: %w", name, err)
	}
	return string(stripBOM(out)), nil
}

func stripBOM(b []byte) []byte {
	return bytes.TrimPrefix(b, []byte{0xEF, 0xBB, 0xBF})
}

func parseSRT(path, text string) ([]types.Cue, error) {
	blocks := splitBlocks(text)
	cues := make([]types.Cue, 0, len(blocks))
	for _, blk := range blocks {
		lines := blk.lines
		// The first line is usually a counter; some files omit or duplicate
		// it, so locate the timing line instead of trusting position.
		ti := -1
		for i := 0; i < len(lines) && i < 2; i++ {
			if strings.Contains(lines[i], "-->") {
				ti = i
				break
			}
		}
		if ti < 0 {
			return nil, &ParseError{Path: path, Line: blk.firstLine, Msg: "missing timing line"}
		}
		start, end, err := parseTimingLine(lines[ti])
		if err != nil {
			return nil, &ParseError{Path: path, Line: blk.firstLine + ti, Msg: "bad timing", Err: err}
		}
		if start >= end {
			return nil, &ParseError{Path: path, Line: blk.firstLine + ti, Msg: fmt.Sprintf("cue start %v is not before end %v", start, end)}
		}
		cues = append(cues, types.Cue{
			Start: start,
			End:   end,
			Text:  strings.Join(lines[ti+1:], "\n"),
		})
	}
	return cues, nil
}

func parseVTT(path, text string) ([]types.Cue, error) {
	blocks := splitBlocks(text)
	cues := make([]types.Cue, 0, len(blocks))
	for _, blk := range blocks {
		lines := blk.lines
		first := strings.TrimSpace(lines[0])
		if strings.HasPrefix(first, "WEBVTT") || strings.HasPrefix(first, "NOTE") || first == "STYLE" || first == "REGION" {
			continue
		}
		ti := -1
		for i := 0; i < len(lines) && i < 2; i++ {
			if strings.Contains(lines[i], "-->") {
				ti = i
				break
			}
		}
		if ti < 0 {
			return nil, &ParseError{Path: path, Line: blk.firstLine, Msg: "missing timing line"}
		}
		start, end, err := parseTimingLine(lines[ti])
		if err != nil {
			return nil, &ParseError{Path: path, Line: blk.firstLine + ti, Msg: "bad timing", Err: err}
		}
		if start >= end {
			return nil, &ParseError{Path: path, Line: blk.firstLine + ti, Msg: fmt.Sprintf("cue start %v is not before end %v", start, end)}
		}
		cues = append(cues, types.Cue{
			Start: start,
			End:   end,
			Text:  strings.Join(lines[ti+1:], "\n"),
		})
	}
	return cues, nil
}

// parseASS reads Dialogue lines from the [Events] section.
// Format: Layer, Start, End, Style, Name, MarginL, MarginR, MarginV, Effect, Text
func parseASS(path, text string) ([]types.Cue, error) {
	var cues []types.Cue
	inEvents := false
	for n, raw := range strings.Split(normalizeNewlines(text), "\n") {
		line := strings.TrimSpace(raw)
		switch {
		case strings.HasPrefix(line, "["):
			inEvents = strings.EqualFold(line, "[Events]")
		case inEvents && strings.HasPrefix(line, "Dialogue:"):
			body := strings.TrimSpace(strings.TrimPrefix(line, "Dialogue:"))
			parts := strings.SplitN(body, ",", 10)
			if len(parts) < 10 {
				return nil, &ParseError{Path: path, Line: n + 1, Msg: "short dialogue line"}
			}
			start, err := parseASSTime(parts[1])
			if err != nil {
				return nil, &ParseError{Path: path, Line: n + 1, Msg: "bad start time", Err: err}
			}
			end, err := parseASSTime(parts[2])
			if err != nil {
				return nil, &ParseError{Path: path, Line: n + 1, Msg: "bad end time", Err: err}
			}
			if start >= end {
				return nil, &ParseError{Path: path, Line: n + 1, Msg: fmt.Sprintf("cue start %v is not before end %v", start, end)}
			}
			cues = append(cues, types.Cue{Start: start, End: end, Text: parts[9]})
		}
	}
	return cues, nil
}

type block struct {
	firstLine int // 1-based line number of the block's first line
	lines     []string
}

func splitBlocks(text string) []block {
	lines := strings.Split(normalizeNewlines(text), "\n")
	var out []block
	var cur []string
	curFirst := 0
	flush := func() {
		for len(cur) > 0 && strings.TrimSpace(cur[len(cur)-1]) == "" {
			cur = cur[:len(cur)-1]
		}
		if len(cur) > 0 {
			out = append(out, block{firstLine: curFirst, lines: cur})
		}
		cur = nil
	}
	for i, l := range lines {
		if strings.TrimSpace(l) == "" {
			flush()
			continue
		}
		if cur == nil {
			curFirst = i + 1
		}
		cur = append(cur, strings.TrimRight(l, " \t"))
	}
	flush()
	return out
}

func normalizeNewlines(s string) string {
	return strings.ReplaceAll(s, "\r\n", "\n")
}

// parseTimingLine parses "HH:MM:SS,mmm --> HH:MM:SS,mmm" (SRT) and the
// dot-millisecond WebVTT variant. Cue settings after the end time are ignored.
func parseTimingLine(line string) (time.Duration, time.Duration, error) {
	parts := strings.SplitN(line, "-->", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid timing separator in %q", line)
	}
	startStr := strings.TrimSpace(parts[0])
	endFields := strings.Fields(strings.TrimSpace(parts[1]))
	if len(endFields) == 0 {
		return 0, 0, fmt.Errorf("missing end time in %q", line)
	}
	start, err := parseClockTime(startStr)
	if err != nil {
		return 0, 0, fmt.Errorf("start time: %w", err)
	}
	end, err := parseClockTime(endFields[0])
	if err != nil {
		return 0, 0, fmt.Errorf("end time: %w", err)
	}
	return start, end, nil
}

func parseClockTime(s string) (time.Duration, error) {
	sep := ","
	if !strings.Contains(s, ",") {
		sep = "."
	}
	main, msStr, ok := strings.Cut(s, sep)
	if !ok {
		return 0, fmt.Errorf("missing milliseconds in %q", s)
	}
	hms := strings.Split(main, ":")
	if len(hms) == 2 {
		// WebVTT permits MM:SS.mmm
		hms = append([]string{"0"}, hms...)
	}
	if len(hms) != 3 {
		return 0, fmt.Errorf("invalid clock time %q", s)
	}
	h, err := strconv.Atoi(hms[0])
	if err != nil {
		return 0, err
	}
	m, err := strconv.Atoi(hms[1])
	if err != nil {
		return 0, err
	}
	sec, err := strconv.Atoi(hms[2])
	if err != nil {
		return 0, err
	}
	ms, err := strconv.Atoi(msStr)
	if err != nil {
		return 0, err
	}
	return time.Duration(h)*time.Hour +
		time.Duration(m)*time.Minute +
		time.Duration(sec)*time.Second +
		time.Duration(ms)*time.Millisecond, nil
}

// parseASSTime parses "H:MM:SS.cc" (centiseconds).
func parseASSTime(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	main, csStr, ok := strings.Cut(s, ".")
	if !ok {
		return 0, fmt.Errorf("missing centiseconds in %q", s)
	}
	hms := strings.Split(main, ":")
	if len(hms) != 3 {
		return 0, fmt.Errorf("invalid ass time %q", s)
	}
	h, err := strconv.Atoi(hms[0])
	if err != nil {
		return 0, err
	}
	m, err := strconv.Atoi(hms[1])
	if err != nil {
		return 0, err
	}
	sec, err := strconv.Atoi(hms[2])
	if err != nil {
		return 0, err
	}
	cs, err := strconv.Atoi(csStr)
	if err != nil {
		return 0, err
	}
	return time.Duration(h)*time.Hour +
		time.Duration(m)*time.Minute +
		time.Duration(sec)*time.Second +
		time.Duration(cs)*10*time.Millisecond, nil
}
