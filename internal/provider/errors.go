package provider

import (
	"errors"
	"fmt"
)

// ErrProviderUnavailable is returned when a provider has no usable credential.
var ErrProviderUnavailable = errors.New("provider not configured")

// ErrMalformedResponse is returned when a success response cannot be parsed.
var ErrMalformedResponse = errors.New("malformed provider response")

// UpstreamError reports a failed remote call. Status is zero for transport
// failures and timeouts.
type UpstreamError struct {
	Provider string
	Status   int
	Message  string
	Err      error
}

func (e *UpstreamError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: API error %d: %s", e.Provider, e.Status, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Provider, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

func malformed(providerID, format string, args ...interface{}) error {
	return fmt.Errorf("%s: %w: %s", providerID, ErrMalformedResponse, fmt.Sprintf(format, args...))
}

// ErrNoMessages is returned when a request carries an empty conversation.
var ErrNoMessages = errors.New("conversation has no messages")
