package swarm

import (
	"time"

	"github.com/agentcore/agentcore/hooks"
	"github.com/agentcore/agentcore/telemetry"
)

// Config is the closed configuration record for a Swarm.
type Config struct {
	// MaxHandoffs stops the swarm once len(node_history) reaches it.
	MaxHandoffs int

	// MaxIterations stops the swarm once len(node_history) reaches it.
	// Distinct from MaxHandoffs so callers can reason about them
	// independently even though both default to the same value.
	MaxIterations int

	// ExecutionTimeout is the outer wall-clock guard across the whole run.
	ExecutionTimeout time.Duration

	// NodeTimeout bounds a single node invocation. Per the source's soft
	// wait semantics, exceeding it abandons (does not cancel) the node's
	// in-flight work and marks the swarm failed.
	NodeTimeout time.Duration

	// RepetitionWindow and RepetitionMinUnique configure repetitive-handoff
	// detection: once len(history) >= RepetitionWindow, if the last
	// RepetitionWindow agents have fewer than RepetitionMinUnique unique
	// members the swarm fails with reason "Repetitive handoff". Either at
	// zero disables the check.
	RepetitionWindow    int
	RepetitionMinUnique int

	Bus       hooks.Bus
	Telemetry telemetry.Bundle
}

// WithDefaults fills zero-valued fields with the documented defaults:
// 20 max handoffs, 20 max iterations, 900s execution timeout, 300s node
// timeout. Repetition detection stays disabled unless both fields are set.
func (c Config) WithDefaults() Config {
	if c.MaxHandoffs == 0 {
		c.MaxHandoffs = 20
	}
	if c.MaxIterations == 0 {
		c.MaxIterations = 20
	}
	if c.ExecutionTimeout == 0 {
		c.ExecutionTimeout = 900 * time.Second
	}
	if c.NodeTimeout == 0 {
		c.NodeTimeout = 300 * time.Second
	}
	c.Telemetry = c.Telemetry.WithDefaults()
	return c
}
