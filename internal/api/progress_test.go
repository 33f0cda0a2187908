package api

import (
	"sync"
	"testing"
)

func TestProgress_UpdateNeverGoesBackwards(t *testing.T) {
	p := NewProgress("r", true, 5)
	p.Update(3, 5)
	p.Update(2, 5)

	if got := p.Snapshot().Processed; got != 3 {
		t.Errorf("processed = %d, want 3", got)
	}
}

func TestProgress_Concurrent(t *testing.T) {
	p := NewProgress("r", false, 100)
	var wg sync.WaitGroup
	for i := 1; i <= 100; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			p.Update(n, 100)
		}(i)
	}
	wg.Wait()

	if got := p.Snapshot().Processed; got != 100 {
		t.Errorf("processed = %d, want 100", got)
	}
}

func TestProgress_Finish(t *testing.T) {
	p := NewProgress("r", true, 4)
	p.Update(1, 4)
	failed := []int{2, 3}
	p.Finish(failed)
	failed[0] = 99

	snap := p.Snapshot()
	if !snap.Finished {
		t.Error("Finished = false, want true")
	}
	if snap.Processed != 4 {
		t.Errorf("processed = %d, want 4", snap.Processed)
	}
	if len(snap.Failed) != 2 || snap.Failed[0] != 2 {
		t.Errorf("failed = %v, want [2 3]", snap.Failed)
	}
	if !snap.Apply || snap.RunID != "r" {
		t.Errorf("snapshot = %+v", snap)
	}
}
