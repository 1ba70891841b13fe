package hooks

import (
	"context"
	"errors"

	"github.com/agentcore/agentcore/modelclient"
)

// This file defines the user-facing error messages the runtime attaches to
// force_stop/swarm_done callback events so a UI can render something better
// than a raw Go error string.
//
// Contract:
// - These messages are intended to be rendered directly in UIs.
// - Do not mutate these values concurrently with active runs.
var (
	// PublicErrorTimeout is emitted when a run fails due to a timeout (provider or runtime).
	PublicErrorTimeout = "The request timed out. Please retry."

	// PublicErrorInternal is emitted when a run fails for an unclassified reason.
	PublicErrorInternal = "The request failed. Please retry."

	// PublicErrorProviderRateLimited is emitted when the model provider is throttling requests.
	PublicErrorProviderRateLimited = "The AI provider is rate-limiting requests. Please wait a moment and retry."

	// PublicErrorProviderContextExceeded is emitted when a request exceeded the model's context window.
	PublicErrorProviderContextExceeded = "The conversation is too long for the model's context window."

	// PublicErrorProviderUnknown is emitted for unclassified provider failures.
	PublicErrorProviderUnknown = "The AI provider returned an unexpected error. Please retry."
)

// PublicMessageFor classifies err against the known model-call error
// taxonomy (modelclient.ErrThrottled, ErrContextWindowExceeded,
// ErrProviderError) and context deadline/cancellation, returning the
// matching public-facing message, or PublicErrorInternal for anything else.
func PublicMessageFor(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.DeadlineExceeded):
		return PublicErrorTimeout
	case errors.Is(err, modelclient.ErrThrottled):
		return PublicErrorProviderRateLimited
	case errors.Is(err, modelclient.ErrContextWindowExceeded):
		return PublicErrorProviderContextExceeded
	case errors.Is(err, modelclient.ErrProviderError):
		return PublicErrorProviderUnknown
	default:
		return PublicErrorInternal
	}
}
