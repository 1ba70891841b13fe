// Package multiagent defines the shared node/result vocabulary that the
// Graph Runner and Swarm Runner both build on: a node is either an Agent or
// another multi-agent orchestrator, and every run produces a NodeResult per
// node plus an overall MultiAgentResult.
package multiagent

import (
	"context"
	"time"

	"github.com/agentcore/agentcore/message"
)

// Status reports the terminal state of a node or an orchestrator run.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusExecuting Status = "executing"
)

// Node is the interface a Graph or Swarm runs as one participant: either an
// eventloop.Agent wrapped to satisfy this shape, or a nested Graph/Swarm
// adapted through its AsNode method, so orchestrators compose.
//
// This replaces the "inherited base class MultiAgentBase" pattern with a
// plain interface, per the Design Notes.
type Node interface {
	// Invoke runs the node against conversation and returns its result.
	Invoke(ctx context.Context, conversation []message.Message) (Result, error)
}

// Result is what one node run produces: either an agent turn's outcome or a
// nested orchestrator's MultiAgentResult, never both.
type Result struct {
	Status Status

	// Agent is populated when the node is a plain Agent.
	Agent *AgentOutcome

	// Nested is populated when the node is itself a Graph or Swarm.
	Nested *MultiAgentResult

	// Err carries the failure when Status is StatusFailed.
	Err error

	ExecutionTimeMs int64
	Usage           message.Usage
	Metrics         message.Metrics
	ExecutionCount  int
}

// AgentOutcome is the plain-agent shape of a NodeResult: the final message
// and stop reason from one Agent.Invoke call. Usage and metrics are carried
// on the enclosing Result.
type AgentOutcome struct {
	StopReason message.StopReason
	Message    message.Message
}

// MultiAgentResult is the common result shape returned by both the Graph
// Runner and the Swarm Runner (GraphResult/SwarmResult embed it).
type MultiAgentResult struct {
	Status          Status
	Results         map[string]Result
	Usage           message.Usage
	Metrics         message.Metrics
	ExecutionTimeMs int64
}

// Accumulate folds delta's usage and metrics into m, returning the updated
// totals. Used by both orchestrators to keep "accumulated usage is
// monotonically non-decreasing" true by construction.
func (m MultiAgentResult) Accumulate(delta Result) MultiAgentResult {
	m.Usage = m.Usage.Add(delta.Usage)
	m.Metrics = m.Metrics.Add(delta.Metrics)
	return m
}

// Elapsed is a small helper for stamping ExecutionTimeMs from a start time,
// shared by both orchestrators.
func Elapsed(start time.Time) int64 {
	return time.Since(start).Milliseconds()
}
