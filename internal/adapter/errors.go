package adapter

import (
	"errors"
	"fmt"
)

// ErrAdapterNotFound is returned when no adapter is registered for an institution.
var ErrAdapterNotFound = errors.New("adapter not found")

// Fetch stages reported by SourceFetchError.
const (
	StageFetch    = "fetch"
	StageSession  = "session"
	StageNavigate = "navigate"
	StageFilter   = "filter"
	StageScrape   = "scrape"
	StageParse    = "parse"
	StageProcess  = "process"
	StageReshape  = "reshape"
	StageTimeout  = "timeout"
)

// SourceFetchError reports a failed retrieval or interpretation of an institution's catalog.
type SourceFetchError struct {
	Institution string
	Stage       string
	Err         error
}

// Error implements the error interface.
func (e *SourceFetchError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("source fetch failed for %s at %s: %v", e.Institution, e.Stage, e.Err)
}

// Unwrap returns the underlying cause.
func (e *SourceFetchError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// FetchError wraps err unless it already is a SourceFetchError.
func FetchError(institution, stage string, err error) error {
	if err == nil {
		return nil
	}
	var existing *SourceFetchError
	if errors.As(err, &existing) {
		return err
	}
	return &SourceFetchError{Institution: institution, Stage: stage, Err: err}
}
