package storage

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// TestMigrationsIdempotent runs Open twice on the same database and verifies
// the migration is not re-applied.
func TestMigrationsIdempotent(t *testing.T) {
	dir := t.TempDir()

	s1, err := Open(dir)
	if err != nil {
		t.Fatalf("first Open failed: %v", err)
	}
	v1, err := s1.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	if err := s1.CreateRun(Run{ID: "r1", StartedAt: time.Now()}); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	s1.Close()

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("second Open failed: %v", err)
	}
	defer s2.Close()

	v2, err := s2.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	if len(v1) != len(v2) {
		t.Errorf("migration count changed: %d -> %d", len(v1), len(v2))
	}
	if _, err := s2.GetRun("r1"); err != nil {
		t.Errorf("run lost across reopen: %v", err)
	}
}

func TestIndexesExist(t *testing.T) {
	s := openTestStore(t)

	for _, idx := range []string{"idx_runs_started", "idx_outcomes_doc"} {
		var count int
		err := s.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name=?", idx).Scan(&count)
		if err != nil {
			t.Fatalf("querying index %s: %v", idx, err)
		}
		if count != 1 {
			t.Errorf("index %s not found", idx)
		}
	}
}

func TestRunLifecycle(t *testing.T) {
	s := openTestStore(t)
	started := time.Date(2026, 3, 1, 9, 30, 0, 123456789, time.UTC)

	err := s.CreateRun(Run{ID: "abc", StartedAt: started, Apply: true, Model: "qwen", ContextSize: 8192, Tag: "llm-process"})
	if err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	r, err := s.GetRun("abc")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if r.Finished() {
		t.Error("new run reported as finished")
	}
	if !r.StartedAt.Equal(started) {
		t.Errorf("StartedAt = %v, want %v", r.StartedAt, started)
	}

	finished := started.Add(90 * time.Second)
	if err := s.FinishRun("abc", finished, 12, 2); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}

	r, err = s.GetRun("abc")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	want := Run{
		ID: "abc", StartedAt: started, FinishedAt: finished, Apply: true,
		Model: "qwen", ContextSize: 8192, Tag: "llm-process", Total: 12, Failed: 2,
	}
	if diff := cmp.Diff(want, r); diff != "" {
		t.Errorf("run mismatch (-want +got):\n%s", diff)
	}
}

func TestGetRun_NotFound(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.GetRun("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
	if err := s.FinishRun("missing", time.Now(), 0, 0); !errors.Is(err, ErrNotFound) {
		t.Errorf("FinishRun error = %v, want ErrNotFound", err)
	}
}

func TestListRuns_NewestFirst(t *testing.T) {
	s := openTestStore(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		if err := s.CreateRun(Run{ID: fmt.Sprintf("run-%d", i), StartedAt: base.Add(time.Duration(i) * time.Millisecond)}); err != nil {
			t.Fatalf("CreateRun: %v", err)
		}
	}

	runs, err := s.ListRuns(3)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	var ids []string
	for _, r := range runs {
		ids = append(ids, r.ID)
	}
	if diff := cmp.Diff([]string{"run-4", "run-3", "run-2"}, ids); diff != "" {
		t.Errorf("ListRuns mismatch (-want +got):\n%s", diff)
	}
}

func TestOutcomes(t *testing.T) {
	s := openTestStore(t)
	if err := s.CreateRun(Run{ID: "r", StartedAt: time.Now()}); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	in := []Outcome{
		{RunID: "r", DocID: 9, Stage: "failed", FailedStage: "completed", Error: "malformed model output", OldTitle: "scan_9", CreatedAt: at},
		{RunID: "r", DocID: 7, Stage: "done", OldTitle: "scan_0001", NewTitle: "Invoice 42",
			OldCustomFields: `[{"field":9,"value":"CHF10.00"}]`, PatchJSON: `{"title":"Invoice 42"}`,
			Applied: true, Truncated: true, ElapsedMS: 1500, CreatedAt: at},
	}
	for _, o := range in {
		if err := s.SaveOutcome(o); err != nil {
			t.Fatalf("SaveOutcome: %v", err)
		}
	}

	got, err := s.Outcomes("r")
	if err != nil {
		t.Fatalf("Outcomes: %v", err)
	}
	want := []Outcome{in[1], in[0]}
	want[1].OldCustomFields = "[]"
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("outcomes mismatch (-want +got):\n%s", diff)
	}
}

func TestSaveOutcome_UnknownRun(t *testing.T) {
	s := openTestStore(t)
	if err := s.SaveOutcome(Outcome{RunID: "nope", DocID: 1, Stage: "done"}); err == nil {
		t.Fatal("expected foreign key error for unknown run")
	}
}

func TestSaveOutcome_Replaces(t *testing.T) {
	s := openTestStore(t)
	s.CreateRun(Run{ID: "r", StartedAt: time.Now()})
	s.SaveOutcome(Outcome{RunID: "r", DocID: 1, Stage: "failed"})
	s.SaveOutcome(Outcome{RunID: "r", DocID: 1, Stage: "done"})

	got, err := s.Outcomes("r")
	if err != nil {
		t.Fatalf("Outcomes: %v", err)
	}
	if len(got) != 1 || got[0].Stage != "done" {
		t.Errorf("outcomes = %+v, want single done outcome", got)
	}
}

func TestDocumentHistory(t *testing.T) {
	s := openTestStore(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, title := range []string{"scan_0001", "Invoice 41"} {
		id := fmt.Sprintf("r%d", i)
		s.CreateRun(Run{ID: id, StartedAt: base.Add(time.Duration(i) * time.Hour)})
		err := s.SaveOutcome(Outcome{RunID: id, DocID: 7, Stage: "done", OldTitle: title, Applied: true, CreatedAt: base.Add(time.Duration(i) * time.Hour)})
		if err != nil {
			t.Fatalf("SaveOutcome: %v", err)
		}
	}
	s.SaveOutcome(Outcome{RunID: "r0", DocID: 8, Stage: "done"})

	hist, err := s.DocumentHistory(7)
	if err != nil {
		t.Fatalf("DocumentHistory: %v", err)
	}
	if len(hist) != 2 {
		t.Fatalf("got %d entries, want 2", len(hist))
	}
	if hist[0].RunID != "r1" || hist[1].OldTitle != "scan_0001" {
		t.Errorf("history = %+v, want newest first", hist)
	}
}
