package swarm

import (
	"errors"
	"fmt"
)

// ConfigError is raised synchronously at construction time: duplicate agent
// names, a reserved tool name conflict, or an agent carrying a forbidden
// session store or lifecycle hooks.
type ConfigError struct{ Msg string }

func (e *ConfigError) Error() string { return "swarm config: " + e.Msg }

// ErrNodeTimeout marks a node result that did not complete within the
// configured NodeTimeout. The underlying agent invocation is abandoned, not
// cancelled, so its eventual result (if any) is simply discarded.
var ErrNodeTimeout = errors.New("swarm: node timeout exceeded")

// ErrTerminatedFailed is the error Invoke returns whenever the swarm
// terminates with status failed, carrying the human-readable reason.
type ErrTerminatedFailed struct{ Reason string }

func (e *ErrTerminatedFailed) Error() string {
	return fmt.Sprintf("swarm: terminated failed: %s", e.Reason)
}
