package toolexec

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/agentcore/agentcore/invocation"
	"github.com/agentcore/agentcore/message"
	"github.com/agentcore/agentcore/toolerrors"
	"github.com/agentcore/agentcore/tools"
)

func okRunner(text string, delay time.Duration) tools.Runner {
	return func(ctx context.Context, call message.ToolUseBlock, inv *invocation.State) <-chan tools.Event {
		ch := make(chan tools.Event, 2)
		go func() {
			defer close(ch)
			if delay > 0 {
				time.Sleep(delay)
			}
			ch <- tools.ProgressEvent{Data: map[string]any{"step": 1}}
			ch <- tools.Result{Block: message.ToolResultBlock{
				ToolUseID: call.ID,
				Status:    message.StatusSuccess,
				Content:   []message.ToolResultContent{message.TextResultContent{Text: text}},
			}}
		}()
		return ch
	}
}

func silentRunner() tools.Runner {
	return func(ctx context.Context, call message.ToolUseBlock, inv *invocation.State) <-chan tools.Event {
		ch := make(chan tools.Event)
		close(ch)
		return ch
	}
}

func newRegistry() *tools.StaticRegistry {
	return tools.NewStaticRegistry(
		tools.Registration{Spec: tools.ToolSpec{Name: "slow"}, Runner: okRunner("slow-done", 20 * time.Millisecond)},
		tools.Registration{Spec: tools.ToolSpec{Name: "fast"}, Runner: okRunner("fast-done", 0)},
		tools.Registration{Spec: tools.ToolSpec{Name: "silent"}, Runner: silentRunner()},
	)
}

func TestRun_PreservesOrderRegardlessOfCompletionOrder(t *testing.T) {
	calls := []message.ToolUseBlock{
		{ID: "1", Name: "slow", Input: json.RawMessage("{}")},
		{ID: "2", Name: "fast", Input: json.RawMessage("{}")},
	}
	inv := invocation.NewState(context.Background(), "run-1", "cycle-1", "", nil)

	msg := Run(context.Background(), Config{Parallel: true}, newRegistry(), calls, inv, nil, "run-1")

	require.Len(t, msg.Content, 2)
	require.Equal(t, "1", msg.Content[0].(message.ToolResultBlock).ToolUseID)
	require.Equal(t, "2", msg.Content[1].(message.ToolResultBlock).ToolUseID)
}

func TestRun_UnknownToolSynthesizesErrorResult(t *testing.T) {
	calls := []message.ToolUseBlock{{ID: "1", Name: "does-not-exist", Input: json.RawMessage("{}")}}
	inv := invocation.NewState(context.Background(), "run-1", "cycle-1", "", nil)

	msg := Run(context.Background(), Config{}, newRegistry(), calls, inv, nil, "run-1")

	result := msg.Content[0].(message.ToolResultBlock)
	require.Equal(t, message.StatusError, result.Status)
	require.Equal(t, "1", result.ToolUseID)
}

func TestRun_SilentRunnerSynthesizesErrorResult(t *testing.T) {
	calls := []message.ToolUseBlock{{ID: "1", Name: "silent", Input: json.RawMessage("{}")}}
	inv := invocation.NewState(context.Background(), "run-1", "cycle-1", "", nil)

	msg := Run(context.Background(), Config{}, newRegistry(), calls, inv, nil, "run-1")

	result := msg.Content[0].(message.ToolResultBlock)
	require.Equal(t, message.StatusError, result.Status)
}

func TestRun_CancelledContextSynthesizesErrorResult(t *testing.T) {
	calls := []message.ToolUseBlock{{ID: "1", Name: "fast", Input: json.RawMessage("{}")}}
	inv := invocation.NewState(context.Background(), "run-1", "cycle-1", "", nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	msg := Run(ctx, Config{}, newRegistry(), calls, inv, nil, "run-1")

	result := msg.Content[0].(message.ToolResultBlock)
	require.Equal(t, message.StatusError, result.Status)
}

func TestRun_UnknownToolErrorResultCarriesStructuredToolError(t *testing.T) {
	calls := []message.ToolUseBlock{{ID: "1", Name: "does-not-exist", Input: json.RawMessage("{}")}}
	inv := invocation.NewState(context.Background(), "run-1", "cycle-1", "", nil)

	msg := Run(context.Background(), Config{}, newRegistry(), calls, inv, nil, "run-1")

	result := msg.Content[0].(message.ToolResultBlock)
	require.Len(t, result.Content, 2)
	require.IsType(t, message.TextResultContent{}, result.Content[0])
	jsonContent := result.Content[1].(message.JSONResultContent)
	toolErr, ok := jsonContent.JSON.(*toolerrors.ToolError)
	require.True(t, ok)
	require.Contains(t, toolErr.Error(), "does-not-exist")
}

func TestRun_SchemaMismatchSynthesizesErrorResult(t *testing.T) {
	schema := json.RawMessage(`{"type":"object","required":["a"],"properties":{"a":{"type":"integer"}}}`)
	registry := tools.NewStaticRegistry(
		tools.Registration{Spec: tools.ToolSpec{Name: "add", InputSchema: schema}, Runner: okRunner("7", 0)},
	)
	calls := []message.ToolUseBlock{{ID: "1", Name: "add", Input: json.RawMessage(`{"a":"not-an-int"}`)}}
	inv := invocation.NewState(context.Background(), "run-1", "cycle-1", "", nil)

	msg := Run(context.Background(), Config{}, registry, calls, inv, nil, "run-1")

	result := msg.Content[0].(message.ToolResultBlock)
	require.Equal(t, message.StatusError, result.Status)
}

func TestRun_SchemaMatchRunsNormally(t *testing.T) {
	schema := json.RawMessage(`{"type":"object","required":["a"],"properties":{"a":{"type":"integer"}}}`)
	registry := tools.NewStaticRegistry(
		tools.Registration{Spec: tools.ToolSpec{Name: "add", InputSchema: schema}, Runner: okRunner("7", 0)},
	)
	calls := []message.ToolUseBlock{{ID: "1", Name: "add", Input: json.RawMessage(`{"a":3}`)}}
	inv := invocation.NewState(context.Background(), "run-1", "cycle-1", "", nil)

	msg := Run(context.Background(), Config{}, registry, calls, inv, nil, "run-1")

	result := msg.Content[0].(message.ToolResultBlock)
	require.Equal(t, message.StatusSuccess, result.Status)
	require.Equal(t, "7", result.Content[0].(message.TextResultContent).Text)
}

func TestRun_SequentialRunsInOrderOneAtATime(t *testing.T) {
	var order []string
	var mu sync.Mutex
	tracking := func(name string) tools.Runner {
		return func(ctx context.Context, call message.ToolUseBlock, inv *invocation.State) <-chan tools.Event {
			ch := make(chan tools.Event, 1)
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			ch <- tools.Result{Block: message.ToolResultBlock{ToolUseID: call.ID, Status: message.StatusSuccess}}
			close(ch)
			return ch
		}
	}
	registry := tools.NewStaticRegistry(
		tools.Registration{Spec: tools.ToolSpec{Name: "a"}, Runner: tracking("a")},
		tools.Registration{Spec: tools.ToolSpec{Name: "b"}, Runner: tracking("b")},
	)
	calls := []message.ToolUseBlock{
		{ID: "1", Name: "a", Input: json.RawMessage("{}")},
		{ID: "2", Name: "b", Input: json.RawMessage("{}")},
	}
	inv := invocation.NewState(context.Background(), "run-1", "cycle-1", "", nil)

	Run(context.Background(), Config{Parallel: false}, registry, calls, inv, nil, "run-1")

	require.Equal(t, []string{"a", "b"}, order)
}
