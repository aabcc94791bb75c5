package channel

import (
	"context"
	"fmt"
	"sync"

	"github.com/boristopalov/abby/internal/model"
)

// approvalGate is the per-connection implementation of
// agent.ApprovalGate: at most one approval request is outstanding at
// a time (the agent loop processes one user turn at a time per
// connection), so a single pending slot is enough.
type approvalGate struct {
	mu      sync.Mutex
	pending *pendingApproval
}

type pendingApproval struct {
	req   model.ApprovalRequest
	reply chan map[string]bool
}

func newApprovalGate() *approvalGate {
	return &approvalGate{}
}

// Await blocks until deliver is called with a decision for req, or ctx
// is canceled (client disconnect cancels the agent loop's current
// call, spec.md §5).
func (g *approvalGate) Await(ctx context.Context, req model.ApprovalRequest) ([]model.ApprovalDecision, error) {
	p := &pendingApproval{req: req, reply: make(chan map[string]bool, 1)}

	g.mu.Lock()
	g.pending = p
	g.mu.Unlock()

	defer func() {
		g.mu.Lock()
		if g.pending == p {
			g.pending = nil
		}
		g.mu.Unlock()
	}()

	select {
	case decisions := <-p.reply:
		out := make([]model.ApprovalDecision, len(req.Calls))
		for i, c := range req.Calls {
			out[i] = model.ApprovalDecision{ToolCallID: c.ID, Approved: decisions[c.ID]}
		}
		return out, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("approval: %w", ctx.Err())
	}
}

// deliver answers the current pending approval request, if any. An
// approvals frame with no matching pending request is silently
// dropped (a stray or duplicate answer from the client).
func (g *approvalGate) deliver(decisions map[string]bool) {
	g.mu.Lock()
	p := g.pending
	g.mu.Unlock()
	if p == nil {
		return
	}
	select {
	case p.reply <- decisions:
	default:
	}
}
