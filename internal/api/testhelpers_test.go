package api

import (
	"testing"
	"time"

	"github.com/kalambet/paperllm/internal/storage"
)

func newTestStore(t *testing.T) *storage.Store {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

// seedRun stores a finished run with one applied and one failed document.
func seedRun(t *testing.T, store *storage.Store, id string, started time.Time) {
	t.Helper()
	if err := store.CreateRun(storage.Run{
		ID:          id,
		StartedAt:   started,
		Apply:       true,
		Model:       "qwen2.5-7b",
		ContextSize: 4096,
		Tag:         "llm",
	}); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	outcomes := []storage.Outcome{
		{
			RunID:     id,
			DocID:     7,
			Stage:     "done",
			OldTitle:  "scan_0007",
			NewTitle:  "Invoice 42",
			PatchJSON: `{"title":"Invoice 42","tags":[],"custom_fields":[{"field":9,"value":"CHF42.00"}]}`,
			Applied:   true,
			ElapsedMS: 120,
		},
		{
			RunID:       id,
			DocID:       8,
			Stage:       "failed",
			FailedStage: "prompted",
			Error:       "connection refused",
			OldTitle:    "scan_0008",
		},
	}
	for _, o := range outcomes {
		if err := store.SaveOutcome(o); err != nil {
			t.Fatalf("SaveOutcome: %v", err)
		}
	}
	if err := store.FinishRun(id, started.Add(time.Minute), 2, 1); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}
}
