package ports

import "fmt"

// TrackNotFoundError means a referenced embedded subtitle track does not
// exist in the container. Fatal: there is nothing to load.
type TrackNotFoundError struct {
	Video string
	Index int
	Have  int
}

func (e *TrackNotFoundError) Error() string {
	return fmt.Sprintf("%s: subtitle track %d not found (%d available)", e.Video, e.Index, e.Have)
}

// ExtractionError is a per-line media extraction failure. The line is
// flagged and excluded from packaging; the run continues.
type ExtractionError struct {
	Video  string
	Detail string
	Err    error
}

func (e *ExtractionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("extract %s: %s: %v", e.Video, e.Detail, e.Err)
	}
	return fmt.Sprintf("extract %s: %s", e.Video, e.Detail)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// ProviderError is a failed LLM/review collaborator call. Non-fatal: the
// export degrades to manual-only review.
type ProviderError struct {
	Provider string
	Status   int
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Provider, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }
