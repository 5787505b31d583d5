package review

import (
	"fmt"
	"strings"

	"github.com/subcards/subcards/internal/types"
)

// UnknownIDError reports an overlay row whose id matches no known line
// record, usually a stale review file. Per-row, non-fatal.
type UnknownIDError struct {
	ID string
}

func (e *UnknownIDError) Error() string {
	return fmt.Sprintf("overlay row %s does not match any line record", e.ID)
}

// Report summarizes a reingest: how many rows applied, how many lines the
// reviewer rejected, and which rows were stale.
type Report struct {
	Applied int
	Dropped int
	Unknown []*UnknownIDError
}

// Apply joins overlay rows to line records by id and resolves final field
// values. Rows with approved=false drop their line; edited fields override
// by fallback chain (source := focus else original, target := gloss else
// reason else original). Unknown ids are reported but do not abort: valid
// rows still apply. Lines with no overlay row at all are treated as
// not-approved.
//
// Apply is idempotent and pure: reingesting the same overlay against the
// same draft always yields the same output.
func Apply(lines []types.LineRecord, rows []types.ReviewRow) ([]types.LineRecord, Report) {
	var rep Report
	byID := make(map[string]types.ReviewRow, len(rows))
	known := make(map[string]bool, len(lines))
	for _, l := range lines {
		known[l.ID] = true
	}
	for _, r := range rows {
		if !known[r.ID] {
			rep.Unknown = append(rep.Unknown, &UnknownIDError{ID: r.ID})
			continue
		}
		byID[r.ID] = r
	}

	out := make([]types.LineRecord, 0, len(lines))
	for _, l := range lines {
		row, ok := byID[l.ID]
		if !ok || !row.Approved {
			rep.Dropped++
			continue
		}
		if focus := strings.TrimSpace(row.Focus); focus != "" {
			l.TextSource = focus
		}
		if gloss := strings.TrimSpace(row.Gloss); gloss != "" {
			l.TextTarget = gloss
		} else if reason := strings.TrimSpace(row.Reason); reason != "" {
			l.TextTarget = reason
		}
		l.Provenance = types.ProvenanceReviewed
		out = append(out, l)
		rep.Applied++
	}
	return out, rep
}
