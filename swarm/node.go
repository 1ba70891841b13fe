package swarm

import (
	"context"

	"github.com/agentcore/agentcore/message"
	"github.com/agentcore/agentcore/multiagent"
)

// AsNode adapts Swarm to multiagent.Node so a swarm can be nested as a node
// executor inside a graph or another swarm, mirroring graph.Graph.AsNode.
func (sw *Swarm) AsNode() multiagent.Node { return swarmNode{sw} }

type swarmNode struct{ swarm *Swarm }

// Invoke implements multiagent.Node by flattening conversation's content
// blocks into the swarm's task and wrapping the Result as a nested
// multiagent.Result.
func (n swarmNode) Invoke(ctx context.Context, conversation []message.Message) (multiagent.Result, error) {
	var task []message.ContentBlock
	for _, msg := range conversation {
		task = append(task, msg.Content...)
	}

	result, err := n.swarm.Invoke(ctx, task)
	nested := result.MultiAgentResult
	out := multiagent.Result{
		Status:          nested.Status,
		Nested:          &nested,
		ExecutionTimeMs: nested.ExecutionTimeMs,
		Usage:           nested.Usage,
		Metrics:         nested.Metrics,
		ExecutionCount:  len(result.NodeHistory),
	}
	if err != nil {
		out.Err = err
	}
	return out, err
}
