package api

import (
	"slices"
	"sync"
	"time"
)

// Progress tracks the run in flight for the status server. It is safe for
// concurrent use; Update matches pipeline.ProgressFunc.
type Progress struct {
	mu        sync.Mutex
	runID     string
	apply     bool
	startedAt time.Time
	total     int
	processed int
	finished  bool
	failed    []int
}

// ProgressSnapshot is the JSON served on /progress.
type ProgressSnapshot struct {
	RunID     string    `json:"run_id"`
	Apply     bool      `json:"apply"`
	StartedAt time.Time `json:"started_at"`
	Total     int       `json:"total"`
	Processed int       `json:"processed"`
	Finished  bool      `json:"finished"`
	Failed    []int     `json:"failed,omitempty"`
	ElapsedMS int64     `json:"elapsed_ms"`
}

// NewProgress starts tracking run runID of total documents.
func NewProgress(runID string, apply bool, total int) *Progress {
	return &Progress{
		runID:     runID,
		apply:     apply,
		startedAt: time.Now(),
		total:     total,
	}
}

// Update records that processed of total documents are finished. Calls may
// arrive out of order; the count never goes backwards.
func (p *Progress) Update(processed, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.total = total
	p.processed = max(p.processed, processed)
}

// Finish marks the run complete with its failure set.
func (p *Progress) Finish(failed []int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.finished = true
	p.failed = slices.Clone(failed)
	p.processed = p.total
}

// Snapshot returns the current state.
func (p *Progress) Snapshot() ProgressSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return ProgressSnapshot{
		RunID:     p.runID,
		Apply:     p.apply,
		StartedAt: p.startedAt,
		Total:     p.total,
		Processed: p.processed,
		Finished:  p.finished,
		Failed:    slices.Clone(p.failed),
		ElapsedMS: time.Since(p.startedAt).Milliseconds(),
	}
}
