package bulksync

import "sync"

// Tracker holds the progress of the in-flight sweep, if any, plus the last
// finished summary. In-memory only: the orchestrator runs inside the
// triggering request, so there is no out-of-process state to reconcile.
type Tracker struct {
	mu       sync.Mutex
	running  bool
	progress Progress
	lastRun  *Summary
}

func NewTracker() *Tracker {
	return &Tracker{}
}

func (t *Tracker) begin(runID string, total int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.running = true
	t.progress = Progress{RunID: runID, Total: total}
}

func (t *Tracker) update(p Progress) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.progress = p
}

func (t *Tracker) finish(s *Summary) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.running = false
	t.lastRun = s
}

// Status returns whether a sweep is in flight, its progress if so, and the
// last finished summary otherwise.
func (t *Tracker) Status() (running bool, progress Progress, lastRun *Summary) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running, t.progress, t.lastRun
}
