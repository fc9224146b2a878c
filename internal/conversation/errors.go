// ABOUTME: Error taxonomy for conversation turns
// ABOUTME: Gateway failures and malformed responses are recoverable; store failures propagate as-is

package conversation

import "errors"

var (
	// ErrGatewayFailure wraps a transport error or a non-200 status from the agent API.
	ErrGatewayFailure = errors.New("agent gateway failure")

	// ErrMalformedResponse is returned when a 200 response cannot be interpreted.
	ErrMalformedResponse = errors.New("malformed agent response")

	// ErrInvalidArgument rejects a turn before any remote call is made.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNoThread is returned by Send when the cursor has no active thread.
	ErrNoThread = errors.New("no active thread")
)

// IsRecoverable reports whether err leaves the conversation usable: the
// caller may show it and let the user try again.
func IsRecoverable(err error) bool {
	return errors.Is(err, ErrGatewayFailure) ||
		errors.Is(err, ErrMalformedResponse) ||
		errors.Is(err, ErrInvalidArgument) ||
		errors.Is(err, ErrNoThread)
}
