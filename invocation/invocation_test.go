package invocation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestState_RequestStateRoundTripsAndIsCopied(t *testing.T) {
	s := NewState(context.Background(), "run-1", "cycle-1", "", nil)
	s.SetRequestState("k", "v")

	got := s.RequestState()
	require.Equal(t, "v", got["k"])

	got["k"] = "mutated"
	require.Equal(t, "v", s.RequestState()["k"])
}

func TestState_CancelledReflectsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := NewState(ctx, "run-1", "cycle-1", "", nil)
	require.False(t, s.Cancelled())

	cancel()
	require.True(t, s.Cancelled())
}

func TestState_WithCycleSnapshotsRequestStateIndependently(t *testing.T) {
	s := NewState(context.Background(), "run-1", "cycle-1", "", nil)
	s.SetRequestState("a", 1)

	next := s.WithCycle(context.Background(), "cycle-2")
	require.Equal(t, "cycle-2", next.CycleID)
	require.Equal(t, "run-1", next.RunID)
	require.Equal(t, 1, next.RequestState()["a"])

	next.SetRequestState("a", 2)
	require.Equal(t, 1, s.RequestState()["a"])
	require.Equal(t, 2, next.RequestState()["a"])
}
