package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func getJSON(t *testing.T, h http.Handler, path, token string, v any) int {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if v != nil && w.Code == http.StatusOK {
		if err := json.NewDecoder(w.Body).Decode(v); err != nil {
			t.Fatalf("decoding %s: %v", path, err)
		}
	}
	return w.Code
}

func TestStatus_Health(t *testing.T) {
	h := NewStatusHandler(StatusDeps{Token: "secret"})

	var body map[string]string
	if code := getJSON(t, h, "/health", "", &body); code != http.StatusOK {
		t.Fatalf("status = %d, want 200", code)
	}
	if body["status"] != "ok" {
		t.Errorf("status = %q, want %q", body["status"], "ok")
	}
}

func TestStatus_ProgressWithoutRun(t *testing.T) {
	h := NewStatusHandler(StatusDeps{})
	if code := getJSON(t, h, "/progress", "", nil); code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", code)
	}
}

func TestStatus_Progress(t *testing.T) {
	p := NewProgress("run-1", false, 10)
	p.Update(4, 10)
	h := NewStatusHandler(StatusDeps{Progress: p})

	var snap ProgressSnapshot
	if code := getJSON(t, h, "/progress", "", &snap); code != http.StatusOK {
		t.Fatalf("status = %d, want 200", code)
	}
	if snap.RunID != "run-1" || snap.Total != 10 || snap.Processed != 4 || snap.Finished {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestStatus_ListRuns(t *testing.T) {
	store := newTestStore(t)
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	seedRun(t, store, "older", base)
	seedRun(t, store, "newer", base.Add(time.Hour))
	h := NewStatusHandler(StatusDeps{Store: store})

	var runs []RunView
	if code := getJSON(t, h, "/runs", "", &runs); code != http.StatusOK {
		t.Fatalf("status = %d, want 200", code)
	}
	if len(runs) != 2 {
		t.Fatalf("len(runs) = %d, want 2", len(runs))
	}
	if runs[0].ID != "newer" {
		t.Errorf("runs[0].ID = %q, want %q", runs[0].ID, "newer")
	}
	if runs[0].FinishedAt == nil {
		t.Error("finished run has no finished_at")
	}

	runs = nil
	getJSON(t, h, "/runs?limit=1", "", &runs)
	if len(runs) != 1 {
		t.Errorf("limit=1 returned %d runs", len(runs))
	}
}

func TestStatus_GetRun(t *testing.T) {
	store := newTestStore(t)
	seedRun(t, store, "run-1", time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	h := NewStatusHandler(StatusDeps{Store: store})

	var detail RunDetail
	if code := getJSON(t, h, "/runs/run-1", "", &detail); code != http.StatusOK {
		t.Fatalf("status = %d, want 200", code)
	}
	if detail.Run.Total != 2 || detail.Run.Failed != 1 {
		t.Errorf("run = %+v", detail.Run)
	}
	if len(detail.Outcomes) != 2 {
		t.Fatalf("len(outcomes) = %d, want 2", len(detail.Outcomes))
	}
	if got := detail.Outcomes[0]; got.DocID != 7 || got.NewTitle != "Invoice 42" || len(got.Patch) == 0 {
		t.Errorf("outcomes[0] = %+v", got)
	}
	if got := detail.Outcomes[1]; got.FailedStage != "prompted" || got.Error != "connection refused" {
		t.Errorf("outcomes[1] = %+v", got)
	}
}

func TestStatus_GetRunNotFound(t *testing.T) {
	h := NewStatusHandler(StatusDeps{Store: newTestStore(t)})
	if code := getJSON(t, h, "/runs/missing", "", nil); code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", code)
	}
}

func TestStatus_DocumentHistory(t *testing.T) {
	store := newTestStore(t)
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	seedRun(t, store, "a", base)
	seedRun(t, store, "b", base.Add(time.Hour))
	h := NewStatusHandler(StatusDeps{Store: store})

	var hist []OutcomeView
	if code := getJSON(t, h, "/documents/7/history", "", &hist); code != http.StatusOK {
		t.Fatalf("status = %d, want 200", code)
	}
	if len(hist) != 2 {
		t.Fatalf("len(history) = %d, want 2", len(hist))
	}
	for _, o := range hist {
		if o.DocID != 7 {
			t.Errorf("history contains doc %d", o.DocID)
		}
	}

	if code := getJSON(t, h, "/documents/abc/history", "", nil); code != http.StatusBadRequest {
		t.Errorf("non-numeric id status = %d, want 400", code)
	}
}

func TestStatus_NoStore(t *testing.T) {
	h := NewStatusHandler(StatusDeps{})
	if code := getJSON(t, h, "/runs", "", nil); code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", code)
	}
}

func TestStatus_BearerAuth(t *testing.T) {
	h := NewStatusHandler(StatusDeps{Store: newTestStore(t), Token: "secret"})

	tests := []struct {
		name  string
		token string
		want  int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"wrong", "nope", http.StatusUnauthorized},
		{"valid", "secret", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if code := getJSON(t, h, "/runs", tt.token, nil); code != tt.want {
				t.Errorf("status = %d, want %d", code, tt.want)
			}
		})
	}
}
