package plaid

import (
	"fmt"
)

// ErrorCodeItemLoginRequired means the item's credentials are stale and the
// user must go through update-mode linking.
const ErrorCodeItemLoginRequired = "ITEM_LOGIN_REQUIRED"

// UpstreamError is returned when the upstream API answered with a non-2xx
// status. Body holds the raw response body with credentials scrubbed.
type UpstreamError struct {
	Endpoint   string
	StatusCode int
	Body       []byte

	// ErrorCode and RequestID are parsed from Body when it is the upstream
	// JSON error envelope; both are empty otherwise.
	ErrorCode string
	RequestID string

	// ParseErr is set when Body is not a JSON object or its error_code is
	// not a string.
	ParseErr error
}

func (e *UpstreamError) Error() string {
	if e.ErrorCode != "" {
		return fmt.Sprintf("%s returned status %d (%s)", e.Endpoint, e.StatusCode, e.ErrorCode)
	}
	return fmt.Sprintf("%s returned status %d", e.Endpoint, e.StatusCode)
}

// ReauthRequired reports whether the item must be re-authenticated.
func (e *UpstreamError) ReauthRequired() bool {
	return e.ErrorCode == ErrorCodeItemLoginRequired
}

// TransportError wraps failures where no usable upstream response was
// obtained: connection errors, timeouts, unreadable bodies.
type TransportError struct {
	Endpoint string
	Err      error

	// message is Err's text with credentials scrubbed.
	message string
}

func (e *TransportError) Error() string {
	if e.message != "" {
		return e.message
	}
	return e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
