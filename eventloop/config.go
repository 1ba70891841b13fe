package eventloop

import (
	"time"

	"github.com/agentcore/agentcore/retry"
)

// Config is the closed configuration record for an Agent's event loop,
// replacing keyword-argument bags with named, documented fields.
type Config struct {
	// MaxAttempts bounds model-call attempts on Throttled errors (the
	// initial attempt plus retries). Spec-documented default: ~3.
	MaxAttempts int

	// InitialDelay is the backoff before the first retry. Spec-documented
	// default: ~4s.
	InitialDelay time.Duration

	// MaxDelay caps the backoff between retries. Spec-documented default:
	// ~60s.
	MaxDelay time.Duration

	// MaxCycleDepth bounds recursive tool-use cycles within one Invoke
	// call. Exceeding it fails with ErrCycleLimitExceeded rather than
	// looping forever on a model that never stops requesting tools.
	MaxCycleDepth int

	// Parallel runs a cycle's tool calls concurrently via toolexec when
	// true; sequentially otherwise.
	Parallel bool
}

// WithDefaults returns cfg with the documented defaults applied to any
// zero-valued field.
func (c Config) WithDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = 4 * time.Second
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 60 * time.Second
	}
	if c.MaxCycleDepth <= 0 {
		c.MaxCycleDepth = 50
	}
	return c
}

func (c Config) retryConfig() retry.Config {
	return retry.Config{MaxAttempts: c.MaxAttempts, InitialBackoff: c.InitialDelay, MaxBackoff: c.MaxDelay}
}
