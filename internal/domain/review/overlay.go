// Package review implements the two-phase correction workflow: export a
// draft as a human-editable overlay table, then reingest the edited table
// against the same draft.
package review

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"

	"github.com/subcards/subcards/internal/ports"
	"github.com/subcards/subcards/internal/types"
)

// Columns is the overlay wire schema. Order matters: this is the contract
// between the export run and the reingest run.
var Columns = []string{"id", "original_source", "original_target", "focus", "gloss", "reason", "approved"}

// BuildOverlay produces one overlay row per line record. Candidate
// corrections, when present, pre-fill the editable fields; approved is
// seeded from the candidate's keep flag so an unedited file reproduces the
// LLM's selection.
func BuildOverlay(lines []types.LineRecord, candidates map[string]ports.ReviewCandidate) []types.ReviewRow {
	rows := make([]types.ReviewRow, 0, len(lines))
	for _, l := range lines {
		row := types.ReviewRow{
			ID:             l.ID,
			OriginalSource: l.TextSource,
			OriginalTarget: l.TextTarget,
		}
		if c, ok := candidates[l.ID]; ok {
			row.Focus = c.Focus
			row.Gloss = c.Gloss
			row.Reason = c.Reason
			row.Approved = c.Keep
		}
		rows = append(rows, row)
	}
	return rows
}

// WriteOverlay writes the overlay table as tab-separated values. The file is
// the only state shared between the two invocations, so it is written under
// an advisory lock.
func WriteOverlay(path string, rows []types.ReviewRow) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	lock := flock.New(path + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("lock overlay: %w", err)
	}
	defer lock.Unlock()

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	w.Comma = '\t'
	if err := w.Write(Columns); err != nil {
		return err
	}
	for _, r := range rows {
		rec := []string{
			r.ID,
			r.OriginalSource,
			r.OriginalTarget,
			r.Focus,
			r.Gloss,
			r.Reason,
			formatBool(r.Approved),
		}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return f.Sync()
}

// ReadOverlay loads an overlay table. Column lookup is header-driven so
// spreadsheet round-trips that reorder or append columns still parse.
func ReadOverlay(path string) ([]types.ReviewRow, error) {
	lock := flock.New(path + ".lock")
	if err := lock.RLock(); err != nil {
		return nil, fmt.Errorf("lock overlay: %w", err)
	}
	defer lock.Unlock()

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.Comma = '\t'
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read overlay %s: %w", path, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("overlay %s is empty", path)
	}

	col := map[string]int{}
	for i, name := range records[0] {
		col[strings.TrimSpace(strings.ToLower(name))] = i
	}
	if _, ok := col["id"]; !ok {
		return nil, fmt.Errorf("overlay %s: missing id column", path)
	}
	field := func(rec []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return rec[i]
	}

	rows := make([]types.ReviewRow, 0, len(records)-1)
	for _, rec := range records[1:] {
		id := strings.TrimSpace(field(rec, "id"))
		if id == "" {
			continue
		}
		rows = append(rows, types.ReviewRow{
			ID:             id,
			OriginalSource: field(rec, "original_source"),
			OriginalTarget: field(rec, "original_target"),
			Focus:          field(rec, "focus"),
			Gloss:          field(rec, "gloss"),
			Reason:         field(rec, "reason"),
			Approved:       ParseBool(field(rec, "approved")),
		})
	}
	return rows, nil
}

// ParseBool interprets the boolean-like approved token. Absence or anything
// unrecognized defaults to not-approved; a typo must never approve a row.
func ParseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "y", "t":
		return true
	default:
		return false
	}
}

func formatBool(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
