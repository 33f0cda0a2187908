package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Run is one invocation of the processing pipeline.
type Run struct {
	ID          string
	StartedAt   time.Time
	FinishedAt  time.Time // zero while the run is in progress or was interrupted
	Apply       bool
	Model       string
	ContextSize int
	Tag         string // empty when every document was processed
	Total       int
	Failed      int
}

// Finished reports whether the run completed.
func (r Run) Finished() bool { return !r.FinishedAt.IsZero() }

// Outcome is the journaled result of one document within a run.
type Outcome struct {
	RunID           string
	DocID           int
	Stage           string // "done" or "failed"
	FailedStage     string // last stage reached before a failure
	Error           string
	OldTitle        string
	NewTitle        string
	OldCustomFields string // JSON array as read from paperless
	PatchJSON       string // JSON body that was (or would have been) sent
	Applied         bool
	Truncated       bool
	ElapsedMS       int64
	CreatedAt       time.Time
}
