package eventloop

import (
	"context"
	"time"

	"github.com/agentcore/agentcore/message"
	"github.com/agentcore/agentcore/multiagent"
)

// AsNode adapts Agent to the multiagent.Node interface so an Agent can be
// used directly as a graph or swarm participant.
func (a *Agent) AsNode() multiagent.Node { return agentNode{a} }

type agentNode struct{ agent *Agent }

// Invoke implements multiagent.Node.
func (n agentNode) Invoke(ctx context.Context, conversation []message.Message) (multiagent.Result, error) {
	start := time.Now()
	result, err := n.agent.Invoke(ctx, conversation)
	elapsed := multiagent.Elapsed(start)

	if err != nil {
		return multiagent.Result{Status: multiagent.StatusFailed, Err: err, ExecutionTimeMs: elapsed}, err
	}

	return multiagent.Result{
		Status: multiagent.StatusCompleted,
		Agent: &multiagent.AgentOutcome{
			StopReason: result.StopReason,
			Message:    result.Message,
		},
		ExecutionTimeMs: elapsed,
		Usage:           result.Usage,
		Metrics:         result.Metrics,
		ExecutionCount:  1,
	}, nil
}
