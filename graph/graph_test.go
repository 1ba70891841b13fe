package graph

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/agentcore/agentcore/message"
	"github.com/agentcore/agentcore/multiagent"
)

type textNode struct {
	name   string
	output string
}

func (n textNode) Invoke(ctx context.Context, conversation []message.Message) (multiagent.Result, error) {
	return multiagent.Result{
		Status: multiagent.StatusCompleted,
		Agent: &multiagent.AgentOutcome{
			StopReason: message.StopReasonEndTurn,
			Message:    message.Message{Role: message.RoleAssistant, Content: []message.ContentBlock{message.TextBlock{Text: n.output}}},
		},
		ExecutionCount: 1,
	}, nil
}

type delayedNode struct {
	textNode
	delay time.Duration
}

func (n delayedNode) Invoke(ctx context.Context, conversation []message.Message) (multiagent.Result, error) {
	time.Sleep(n.delay)
	return n.textNode.Invoke(ctx, conversation)
}

func containsCondition(nodeID, substr string) Condition {
	return func(state *State) bool {
		result, ok := state.Results[nodeID]
		if !ok || result.Agent == nil {
			return false
		}
		for _, blk := range result.Agent.Message.Content {
			if t, ok := blk.(message.TextBlock); ok && strings.Contains(t.Text, substr) {
				return true
			}
		}
		return false
	}
}

func TestGraph_BranchScenario(t *testing.T) {
	b := NewBuilder(Config{})
	require.NoError(t, b.AddNode("classifier", textNode{name: "classifier", output: "this looks technical"}))
	require.NoError(t, b.AddNode("tech", textNode{name: "tech", output: "tech handled"}))
	require.NoError(t, b.AddNode("biz", textNode{name: "biz", output: "biz handled"}))
	b.AddEdge("classifier", "tech", containsCondition("classifier", "technical"))
	b.AddEdge("classifier", "biz", containsCondition("classifier", "business"))

	g, err := b.Build()
	require.NoError(t, err)

	result, err := g.Invoke(context.Background(), []message.ContentBlock{message.TextBlock{Text: "review RFC"}})
	require.NoError(t, err)

	require.Equal(t, []string{"classifier", "tech"}, result.ExecutionOrder)
	require.NotContains(t, result.CompletedNodes, "biz")
}

func TestGraph_ExecutionOrderReflectsCompletionNotReadyOrder(t *testing.T) {
	b := NewBuilder(Config{})
	slow := delayedNode{textNode: textNode{name: "slow", output: "slow done"}, delay: 30 * time.Millisecond}
	fast := delayedNode{textNode: textNode{name: "fast", output: "fast done"}, delay: 0}
	require.NoError(t, b.AddNode("slow", slow))
	require.NoError(t, b.AddNode("fast", fast))
	b.SetEntryPoints("slow", "fast")

	g, err := b.Build()
	require.NoError(t, err)

	result, err := g.Invoke(context.Background(), []message.ContentBlock{message.TextBlock{Text: "go"}})
	require.NoError(t, err)

	require.Equal(t, []string{"fast", "slow"}, result.ExecutionOrder)
}

func TestGraph_BuildRejectsCycle(t *testing.T) {
	b := NewBuilder(Config{})
	require.NoError(t, b.AddNode("a", textNode{name: "a"}))
	require.NoError(t, b.AddNode("b", textNode{name: "b"}))
	b.AddEdge("a", "b", nil)
	b.AddEdge("b", "a", nil)

	_, err := b.Build()
	require.Error(t, err)
	var cycleErr *CycleError
	require.ErrorAs(t, err, &cycleErr)
}

func TestGraph_BuildRejectsDuplicateNodeID(t *testing.T) {
	b := NewBuilder(Config{})
	require.NoError(t, b.AddNode("a", textNode{name: "a"}))
	err := b.AddNode("a", textNode{name: "a2"})
	require.Error(t, err)
}

func TestGraph_BuildRejectsDuplicateExecutorInstance(t *testing.T) {
	b := NewBuilder(Config{})
	shared := textNode{name: "shared"}
	require.NoError(t, b.AddNode("a", shared))
	err := b.AddNode("b", shared)
	require.Error(t, err)
}

func TestGraph_AutoDerivesEntryPoints(t *testing.T) {
	b := NewBuilder(Config{})
	require.NoError(t, b.AddNode("a", textNode{name: "a", output: "done"}))
	require.NoError(t, b.AddNode("b", textNode{name: "b", output: "done"}))
	b.AddEdge("a", "b", nil)

	g, err := b.Build()
	require.NoError(t, err)
	require.Equal(t, []string{"a"}, g.entryPoints)
}

func TestGraph_NoEntryPointsFailsBuild(t *testing.T) {
	b := NewBuilder(Config{})
	require.NoError(t, b.AddNode("a", textNode{name: "a"}))
	require.NoError(t, b.AddNode("b", textNode{name: "b"}))
	b.AddEdge("a", "b", nil)
	b.AddEdge("b", "a", nil)

	_, err := b.Build()
	require.Error(t, err)
}
