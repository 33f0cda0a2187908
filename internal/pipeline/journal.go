package pipeline

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/kalambet/paperllm/internal/storage"
)

// Journal records outcomes of one run in the SQLite journal.
type Journal struct {
	store *storage.Store
	runID string
}

// NewJournal returns a Recorder writing to run runID.
func NewJournal(store *storage.Store, runID string) *Journal {
	return &Journal{store: store, runID: runID}
}

// RecordOutcome implements Recorder.
func (j *Journal) RecordOutcome(_ context.Context, o Outcome) error {
	return j.store.SaveOutcome(JournalEntry(j.runID, o))
}

// JournalEntry converts an outcome into its journal row.
func JournalEntry(runID string, o Outcome) storage.Outcome {
	e := storage.Outcome{
		RunID:     runID,
		DocID:     o.DocID,
		Stage:     string(o.Stage),
		OldTitle:  o.OldTitle,
		NewTitle:  o.NewTitle,
		Applied:   o.Applied,
		Truncated: o.Truncated,
		ElapsedMS: o.Elapsed.Milliseconds(),
	}
	if o.Err != nil {
		e.Error = o.Err.Error()
		var se *StageError
		if errors.As(o.Err, &se) {
			e.FailedStage = string(se.Stage)
			e.Error = se.Err.Error()
		}
	}
	if o.OldCustomFields != nil {
		if b, err := json.Marshal(o.OldCustomFields); err == nil {
			e.OldCustomFields = string(b)
		}
	}
	if o.Patch != nil {
		if b, err := json.Marshal(o.Patch); err == nil {
			e.PatchJSON = string(b)
		}
	}
	return e
}
