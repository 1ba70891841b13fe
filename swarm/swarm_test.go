package swarm

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/agentcore/agentcore/eventloop"
	"github.com/agentcore/agentcore/message"
	"github.com/agentcore/agentcore/modelclient"
	"github.com/agentcore/agentcore/session"
	"github.com/agentcore/agentcore/tools"
)

type fakeSessionStore struct{}

func (fakeSessionStore) CreateSession(context.Context, string, time.Time) (session.Session, error) {
	return session.Session{}, nil
}
func (fakeSessionStore) LoadSession(context.Context, string) (session.Session, error) {
	return session.Session{}, nil
}
func (fakeSessionStore) EndSession(context.Context, string, time.Time) (session.Session, error) {
	return session.Session{}, nil
}
func (fakeSessionStore) UpsertRun(context.Context, session.RunMeta) error { return nil }
func (fakeSessionStore) LoadRun(context.Context, string) (session.RunMeta, error) {
	return session.RunMeta{}, nil
}
func (fakeSessionStore) ListRunsBySession(context.Context, string, []session.RunStatus) ([]session.RunMeta, error) {
	return nil, nil
}

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
	events []modelclient.Event
}

type scriptedClient struct {
	turns []turn
	idx   int
}

func (c *scriptedClient) Converse(context.Context, modelclient.Request) (modelclient.Stream, error) {
	t := c.turns[c.idx]
	c.idx++
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

func TestSwarm_HandoffScenario(t *testing.T) {
	clientA := &scriptedClient{turns: []turn{
		{events: toolUseEvents("h1", "handoff_to_agent", `{"agent_name":"b","message":"please finish","context":{"note":"x"}}`)},
		{events: endTurnEvents("handed off")},
	}}
	clientB := &scriptedClient{turns: []turn{{events: endTurnEvents("done by b")}}}

	agentA := eventloop.New(clientA, tools.NewStaticRegistry(), "")
	agentB := eventloop.New(clientB, tools.NewStaticRegistry(), "")

	b := NewBuilder(Config{})
	require.NoError(t, b.AddAgent("a", "agent a", agentA))
	require.NoError(t, b.AddAgent("b", "agent b", agentB))
	sw, err := b.Build()
	require.NoError(t, err)

	result, err := sw.Invoke(context.Background(), []message.ContentBlock{message.TextBlock{Text: "do the thing"}})
	require.NoError(t, err)

	require.Equal(t, []string{"a", "b"}, result.NodeHistory)
	require.Equal(t, map[string]any{"note": "x"}, result.SharedContext["a"])
}

func TestSwarm_NoHandoffCompletesAfterOneNode(t *testing.T) {
	client := &scriptedClient{turns: []turn{{events: endTurnEvents("all done")}}}
	agent := eventloop.New(client, tools.NewStaticRegistry(), "")

	b := NewBuilder(Config{})
	require.NoError(t, b.AddAgent("solo", "solo agent", agent))
	sw, err := b.Build()
	require.NoError(t, err)

	result, err := sw.Invoke(context.Background(), []message.ContentBlock{message.TextBlock{Text: "task"}})
	require.NoError(t, err)
	require.Equal(t, []string{"solo"}, result.NodeHistory)
}

func TestSwarm_MaxHandoffsStopsAndFails(t *testing.T) {
	var aTurns []turn
	for i := 0; i < 5; i++ {
		aTurns = append(aTurns,
			turn{events: toolUseEvents("h", "handoff_to_agent", `{"agent_name":"b","message":"go"}`)},
			turn{events: endTurnEvents("handed off")},
		)
	}
	var bTurns []turn
	for i := 0; i < 5; i++ {
		bTurns = append(bTurns,
			turn{events: toolUseEvents("h", "handoff_to_agent", `{"agent_name":"a","message":"go"}`)},
			turn{events: endTurnEvents("handed off")},
		)
	}
	clientA := &scriptedClient{turns: aTurns}
	clientB := &scriptedClient{turns: bTurns}
	agentA := eventloop.New(clientA, tools.NewStaticRegistry(), "")
	agentB := eventloop.New(clientB, tools.NewStaticRegistry(), "")

	b := NewBuilder(Config{MaxHandoffs: 3, MaxIterations: 3})
	require.NoError(t, b.AddAgent("a", "", agentA))
	require.NoError(t, b.AddAgent("b", "", agentB))
	sw, err := b.Build()
	require.NoError(t, err)

	result, err := sw.Invoke(context.Background(), []message.ContentBlock{message.TextBlock{Text: "ping pong"}})
	require.Error(t, err)
	require.Equal(t, 3, len(result.NodeHistory))
}

func TestBuilder_RejectsDuplicateAgentName(t *testing.T) {
	client := &scriptedClient{turns: []turn{{events: endTurnEvents("x")}}}
	agent := eventloop.New(client, tools.NewStaticRegistry(), "")

	b := NewBuilder(Config{})
	require.NoError(t, b.AddAgent("a", "", agent))
	err := b.AddAgent("a", "", agent)
	require.Error(t, err)
}

func TestBuilder_RejectsReservedToolName(t *testing.T) {
	registry := tools.NewStaticRegistry(tools.Registration{Spec: tools.ToolSpec{Name: "handoff_to_agent"}})
	client := &scriptedClient{turns: []turn{{events: endTurnEvents("x")}}}
	agent := eventloop.New(client, registry, "")

	b := NewBuilder(Config{})
	err := b.AddAgent("a", "", agent)
	require.Error(t, err)
}

func TestBuilder_RejectsAgentWithSessionStore(t *testing.T) {
	client := &scriptedClient{turns: []turn{{events: endTurnEvents("x")}}}
	agent := eventloop.New(client, tools.NewStaticRegistry(), "")
	agent.Session = fakeSessionStore{}

	b := NewBuilder(Config{})
	err := b.AddAgent("a", "", agent)
	require.Error(t, err)
}

func TestBuilder_RejectsEmptySwarm(t *testing.T) {
	b := NewBuilder(Config{})
	_, err := b.Build()
	require.Error(t, err)
}
