package api

import (
	"encoding/json"
	"time"

	"github.com/kalambet/paperllm/internal/storage"
)

// RunView is the JSON form of a journaled run.
type RunView struct {
	ID          string     `json:"id"`
	StartedAt   time.Time  `json:"started_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
	Apply       bool       `json:"apply"`
	Model       string     `json:"model"`
	ContextSize int        `json:"context_size"`
	Tag         string     `json:"tag,omitempty"`
	Total       int        `json:"total"`
	Failed      int        `json:"failed"`
}

// OutcomeView is the JSON form of a journaled document outcome.
type OutcomeView struct {
	RunID           string          `json:"run_id"`
	DocID           int             `json:"doc_id"`
	Stage           string          `json:"stage"`
	FailedStage     string          `json:"failed_stage,omitempty"`
	Error           string          `json:"error,omitempty"`
	OldTitle        string          `json:"old_title"`
	NewTitle        string          `json:"new_title,omitempty"`
	OldCustomFields json.RawMessage `json:"old_custom_fields,omitempty"`
	Patch           json.RawMessage `json:"patch,omitempty"`
	Applied         bool            `json:"applied"`
	Truncated       bool            `json:"truncated,omitempty"`
	ElapsedMS       int64           `json:"elapsed_ms"`
}

// RunDetail is a run with its outcomes.
type RunDetail struct {
	Run      RunView       `json:"run"`
	Outcomes []OutcomeView `json:"outcomes"`
}

func runView(r storage.Run) RunView {
	v := RunView{
		ID:          r.ID,
		StartedAt:   r.StartedAt,
		Apply:       r.Apply,
		Model:       r.Model,
		ContextSize: r.ContextSize,
		Tag:         r.Tag,
		Total:       r.Total,
		Failed:      r.Failed,
	}
	if r.Finished() {
		t := r.FinishedAt
		v.FinishedAt = &t
	}
	return v
}

func runViews(runs []storage.Run) []RunView {
	out := make([]RunView, len(runs))
	for i, r := range runs {
		out[i] = runView(r)
	}
	return out
}

func outcomeViews(outcomes []storage.Outcome) []OutcomeView {
	out := make([]OutcomeView, len(outcomes))
	for i, o := range outcomes {
		out[i] = OutcomeView{
			RunID:       o.RunID,
			DocID:       o.DocID,
			Stage:       o.Stage,
			FailedStage: o.FailedStage,
			Error:       o.Error,
			OldTitle:    o.OldTitle,
			NewTitle:    o.NewTitle,
			Applied:     o.Applied,
			Truncated:   o.Truncated,
			ElapsedMS:   o.ElapsedMS,
		}
		if o.OldCustomFields != "" && o.OldCustomFields != "[]" {
			out[i].OldCustomFields = json.RawMessage(o.OldCustomFields)
		}
		if o.PatchJSON != "" {
			out[i].Patch = json.RawMessage(o.PatchJSON)
		}
	}
	return out
}

func runDetail(store *storage.Store, id string) (RunDetail, error) {
	r, err := store.GetRun(id)
	if err != nil {
		return RunDetail{}, err
	}
	outcomes, err := store.Outcomes(id)
	if err != nil {
		return RunDetail{}, err
	}
	return RunDetail{Run: runView(r), Outcomes: outcomeViews(outcomes)}, nil
}
