package pipeline

import (
	"fmt"
	"time"

	"github.com/kalambet/paperllm/internal/paperless"
)

// Stage is a point in the per-document lifecycle.
type Stage string

const (
	StageQueued    Stage = "queued"
	StageFetched   Stage = "fetched"
	StagePrompted  Stage = "prompted"
	StageCompleted Stage = "completed"
	StageParsed    Stage = "parsed"
	StagePatched   Stage = "patched"
	StageDone      Stage = "done"
	StageFailed    Stage = "failed"
)

// StageError is the error of a failed document. Stage is the last stage the
// document reached before the failure.
type StageError struct {
	DocID int
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("document %d failed after %s: %v", e.DocID, e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Outcome is the final state of one document.
type Outcome struct {
	DocID int
	// Stage is StageDone or StageFailed.
	Stage Stage
	// Err is a *StageError when Stage is StageFailed.
	Err error

	OldTitle        string
	OldCustomFields []paperless.CustomFieldValue
	NewTitle        string
	// Raw is the unparsed model reply, if one was received.
	Raw       string
	Patch     *paperless.DocumentPatch
	Applied   bool
	Truncated bool
	Elapsed   time.Duration
}
