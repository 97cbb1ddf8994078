package server

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/BDNK1/nodeflow/runtime"
)

var ErrApprovalNotFound = errors.New("approval not found")

// Approval is a manual approval waiting for an answer over the API.
type Approval struct {
	ID          string    `json:"id"`
	ExecutionID string    `json:"executionId"`
	Title       string    `json:"title"`
	Message     string    `json:"message"`
	RequestedAt time.Time `json:"requestedAt"`
}

type pendingApproval struct {
	Approval
	decision chan bool
}

// ApprovalQueue parks approval requests until Resolve answers them or the
// requesting context ends. The executor bounds that context with
// ApprovalTimeout.
type ApprovalQueue struct {
	mu      sync.Mutex
	pending map[string]*pendingApproval
	now     func() time.Time
}

func NewApprovalQueue() *ApprovalQueue {
	return &ApprovalQueue{pending: make(map[string]*pendingApproval), now: time.Now}
}

// For returns an Approver that files requests under executionID.
func (q *ApprovalQueue) For(executionID string) runtime.Approver {
	return runtime.ApproverFunc(func(ctx context.Context, title, message string) (bool, error) {
		return q.wait(ctx, executionID, title, message)
	})
}

func (q *ApprovalQueue) wait(ctx context.Context, executionID, title, message string) (bool, error) {
	p := &pendingApproval{
		Approval: Approval{
			ID:          uuid.New().String(),
			ExecutionID: executionID,
			Title:       title,
			Message:     message,
			RequestedAt: q.now(),
		},
		decision: make(chan bool, 1),
	}

	q.mu.Lock()
	q.pending[p.ID] = p
	q.mu.Unlock()

	select {
	case approved := <-p.decision:
		return approved, nil
	case <-ctx.Done():
		q.mu.Lock()
		delete(q.pending, p.ID)
		q.mu.Unlock()
		return false, ctx.Err()
	}
}

// Resolve answers a pending approval. Each approval is answered once.
func (q *ApprovalQueue) Resolve(id string, approved bool) error {
	q.mu.Lock()
	p, ok := q.pending[id]
	if ok {
		delete(q.pending, id)
	}
	q.mu.Unlock()

	if !ok {
		return ErrApprovalNotFound
	}
	p.decision <- approved
	return nil
}

// Pending lists open approvals, oldest first.
func (q *ApprovalQueue) Pending() []Approval {
	q.mu.Lock()
	out := make([]Approval, 0, len(q.pending))
	for _, p := range q.pending {
		out = append(out, p.Approval)
	}
	q.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].RequestedAt.Equal(out[j].RequestedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].RequestedAt.Before(out[j].RequestedAt)
	})
	return out
}

// Cancel drops every approval filed by executionID, answering each with a
// rejection.
func (q *ApprovalQueue) Cancel(executionID string) {
	q.mu.Lock()
	var dropped []*pendingApproval
	for id, p := range q.pending {
		if p.ExecutionID == executionID {
			dropped = append(dropped, p)
			delete(q.pending, id)
		}
	}
	q.mu.Unlock()

	for _, p := range dropped {
		p.decision <- false
	}
}
