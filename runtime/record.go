package runtime

import "time"

type ExecutionStatus string

const (
	ExecutionRunning ExecutionStatus = "running"
	ExecutionSuccess ExecutionStatus = "success"
	ExecutionError   ExecutionStatus = "error"
	ExecutionAborted ExecutionStatus = "aborted"
)

// ExecutionRecord is the persisted summary of one run.
type ExecutionRecord struct {
	ID        string          `json:"id"`
	FlowID    string          `json:"flowId"`
	FlowName  string          `json:"flowName"`
	Status    ExecutionStatus `json:"status"`
	Results   []NodeResult    `json:"results"`
	StartedAt time.Time       `json:"startedAt"`
	EndedAt   time.Time       `json:"endedAt"`
	Error     string          `json:"error,omitempty"`
}

func (r ExecutionRecord) Duration() time.Duration {
	return r.EndedAt.Sub(r.StartedAt)
}
