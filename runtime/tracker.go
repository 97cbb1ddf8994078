package runtime

import (
	"sync"
	"time"
)

type ResultStatus string

const (
	StatusPending ResultStatus = "pending"
	StatusRunning ResultStatus = "running"
	StatusSuccess ResultStatus = "success"
	StatusError   ResultStatus = "error"
	StatusSkipped ResultStatus = "skipped"
)

type NodeResult struct {
	NodeID    string       `json:"nodeId"`
	Status    ResultStatus `json:"status"`
	StartedAt time.Time    `json:"startedAt,omitzero"`
	EndedAt   time.Time    `json:"endedAt,omitzero"`
	Output    any          `json:"output,omitempty"`
	Error     string       `json:"error,omitempty"`
}

// Duration is zero until the node has both timestamps.
func (r NodeResult) Duration() time.Duration {
	if r.StartedAt.IsZero() || r.EndedAt.IsZero() {
		return 0
	}
	return r.EndedAt.Sub(r.StartedAt)
}

// ResultPatch lists the fields to overwrite. Nil fields are left alone.
type ResultPatch struct {
	Status    ResultStatus
	StartedAt *time.Time
	EndedAt   *time.Time
	Output    *any
	Error     *string
}

// ProgressFunc receives a snapshot of every tracked result after each change.
type ProgressFunc func(results []NodeResult)

// Tracker owns per-node results for one execution.
type Tracker struct {
	mu      sync.Mutex
	order   []string
	results map[string]*NodeResult

	// emitMu keeps progress callbacks from parallel branches from interleaving.
	emitMu     sync.Mutex
	onProgress ProgressFunc
}

func NewTracker(onProgress ProgressFunc) *Tracker {
	return &Tracker{
		results:    make(map[string]*NodeResult),
		onProgress: onProgress,
	}
}

// Update merges patch into the node's result, creating a pending one first if
// needed, and then publishes a snapshot.
func (t *Tracker) Update(nodeID string, patch ResultPatch) {
	t.mu.Lock()
	r, ok := t.results[nodeID]
	if !ok {
		r = &NodeResult{NodeID: nodeID, Status: StatusPending}
		t.results[nodeID] = r
		t.order = append(t.order, nodeID)
	}
	if patch.Status != "" {
		r.Status = patch.Status
	}
	if patch.StartedAt != nil {
		r.StartedAt = *patch.StartedAt
	}
	if patch.EndedAt != nil {
		r.EndedAt = *patch.EndedAt
	}
	if patch.Output != nil {
		r.Output = *patch.Output
	}
	if patch.Error != nil {
		r.Error = *patch.Error
	}
	t.mu.Unlock()

	if t.onProgress == nil {
		return
	}
	t.emitMu.Lock()
	defer t.emitMu.Unlock()
	t.onProgress(t.Snapshot())
}

// Snapshot returns copies of all results in the order nodes were first seen.
func (t *Tracker) Snapshot() []NodeResult {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]NodeResult, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, *t.results[id])
	}
	return out
}

func (t *Tracker) Get(nodeID string) (NodeResult, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.results[nodeID]
	if !ok {
		return NodeResult{}, false
	}
	return *r, true
}

// Failed reports whether any tracked node ended in error.
func (t *Tracker) Failed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, r := range t.results {
		if r.Status == StatusError {
			return true
		}
	}
	return false
}
