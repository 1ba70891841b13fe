package eventloop

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/agentcore/agentcore/invocation"
	"github.com/agentcore/agentcore/message"
	"github.com/agentcore/agentcore/modelclient"
	"github.com/agentcore/agentcore/tools"
)

type fakeStream struct {
	events []modelclient.Event
	pos    int
}

func (f *fakeStream) Recv(context.Context) (modelclient.Event, error) {
	if f.pos >= len(f.events) {
		return nil, io.EOF
	}
	ev := f.events[f.pos]
	f.pos++
	return ev, nil
}

func (f *fakeStream) Close() error { return nil }

type turn struct {
	err    error
	events []modelclient.Event
}

type scriptedClient struct {
	turns []turn
	idx   int
}

func (c *scriptedClient) Converse(context.Context, modelclient.Request) (modelclient.Stream, error) {
	t := c.turns[c.idx]
	c.idx++
	if t.err != nil {
		return nil, t.err
	}
	return &fakeStream{events: t.events}, nil
}

func endTurnEvents(text string) []modelclient.Event {
	return []modelclient.Event{
		modelclient.MessageStartEvent{Role: message.RoleAssistant},
		modelclient.ContentBlockStartEvent{},
		modelclient.ContentBlockDeltaEvent{Text: text},
		modelclient.ContentBlockStopEvent{},
		modelclient.MessageStopEvent{StopReason: message.StopReasonEndTurn},
		modelclient.MetadataEvent{Usage: message.Usage{InputTokens: 1, OutputTokens: 1, TotalTokens: 2}},
	}
}

func toolUseEvents(id, name, input string) []modelclient.Event {
	return []modelclient.Event{
		modelclient.MessageStartEvent{Role: message.RoleAssistant},
		modelclient.ContentBlockStartEvent{ToolUse: &modelclient.ToolUseStart{ID: id, Name: name}},
		modelclient.ContentBlockDeltaEvent{ToolUseInputDelta: input},
		modelclient.ContentBlockStopEvent{},
		modelclient.MessageStopEvent{StopReason: message.StopReasonToolUse},
		modelclient.MetadataEvent{},
	}
}

func addRunner() tools.Runner {
	return func(ctx context.Context, call message.ToolUseBlock, inv *invocation.State) <-chan tools.Event {
		ch := make(chan tools.Event, 1)
		ch <- tools.Result{Block: message.ToolResultBlock{
			ToolUseID: call.ID,
			Status:    message.StatusSuccess,
			Content:   []message.ToolResultContent{message.TextResultContent{Text: "7"}},
		}}
		close(ch)
		return ch
	}
}

func TestInvoke_TrivialTurn(t *testing.T) {
	client := &scriptedClient{turns: []turn{{events: endTurnEvents("hello")}}}
	agent := New(client, tools.NewStaticRegistry(), "")

	result, err := agent.Invoke(context.Background(), []message.Message{
		{Role: message.RoleUser, Content: []message.ContentBlock{message.TextBlock{Text: "hi"}}},
	})

	require.NoError(t, err)
	require.Equal(t, message.StopReasonEndTurn, result.StopReason)
	require.Equal(t, []message.ContentBlock{message.TextBlock{Text: "hello"}}, result.Message.Content)
	require.Equal(t, 2, result.Usage.TotalTokens)
}

func TestInvoke_OneToolRoundTrip(t *testing.T) {
	client := &scriptedClient{turns: []turn{
		{events: toolUseEvents("t1", "add", `{"a":3,"b":4}`)},
		{events: endTurnEvents("the sum is 7")},
	}}
	registry := tools.NewStaticRegistry(tools.Registration{Spec: tools.ToolSpec{Name: "add"}, Runner: addRunner()})
	agent := New(client, registry, "")

	result, err := agent.Invoke(context.Background(), []message.Message{
		{Role: message.RoleUser, Content: []message.ContentBlock{message.TextBlock{Text: "add 3 and 4"}}},
	})

	require.NoError(t, err)
	require.Equal(t, message.StopReasonEndTurn, result.StopReason)
}

func TestInvoke_ThrottleThenSucceed(t *testing.T) {
	client := &scriptedClient{turns: []turn{
		{err: modelclient.ErrThrottled},
		{err: modelclient.ErrThrottled},
		{events: endTurnEvents("hello")},
	}}
	agent := New(client, tools.NewStaticRegistry(), "")
	agent.Config = Config{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}.WithDefaults()

	result, err := agent.Invoke(context.Background(), []message.Message{
		{Role: message.RoleUser, Content: []message.ContentBlock{message.TextBlock{Text: "hi"}}},
	})

	require.NoError(t, err)
	require.Equal(t, message.StopReasonEndTurn, result.StopReason)
	require.Equal(t, 3, client.idx)
}

func TestInvoke_ContextWindowExceededPropagatesUnwrapped(t *testing.T) {
	client := &scriptedClient{turns: []turn{{err: modelclient.ErrContextWindowExceeded}}}
	agent := New(client, tools.NewStaticRegistry(), "")

	_, err := agent.Invoke(context.Background(), []message.Message{
		{Role: message.RoleUser, Content: []message.ContentBlock{message.TextBlock{Text: "hi"}}},
	})

	require.True(t, errors.Is(err, modelclient.ErrContextWindowExceeded))
	var wrapped *Error
	require.False(t, errors.As(err, &wrapped))
}

func TestInvoke_CycleDepthLimitExceeded(t *testing.T) {
	var turns []turn
	for i := 0; i < 10; i++ {
		turns = append(turns, turn{events: toolUseEvents("t1", "add", `{"a":1,"b":1}`)})
	}
	client := &scriptedClient{turns: turns}
	registry := tools.NewStaticRegistry(tools.Registration{Spec: tools.ToolSpec{Name: "add"}, Runner: addRunner()})
	agent := New(client, registry, "")
	agent.Config = Config{MaxCycleDepth: 2}.WithDefaults()

	_, err := agent.Invoke(context.Background(), []message.Message{
		{Role: message.RoleUser, Content: []message.ContentBlock{message.TextBlock{Text: "go"}}},
	})

	require.Error(t, err)
	require.True(t, errors.Is(err, ErrCycleLimitExceeded))
}

func TestInvoke_ToolErrorDoesNotAbortLoop(t *testing.T) {
	client := &scriptedClient{turns: []turn{
		{events: toolUseEvents("t1", "missing", `{}`)},
		{events: endTurnEvents("handled")},
	}}
	agent := New(client, tools.NewStaticRegistry(), "")

	result, err := agent.Invoke(context.Background(), []message.Message{
		{Role: message.RoleUser, Content: []message.ContentBlock{message.TextBlock{Text: "go"}}},
	})

	require.NoError(t, err)
	require.Equal(t, message.StopReasonEndTurn, result.StopReason)
}
