package inference

import (
	"errors"
	"fmt"
)

// Sentinel errors for common conditions.
var (
	// ErrNoAPIKey is returned when no credential is configured.
	ErrNoAPIKey = errors.New("inference: API key required")

	// ErrEmptyImage is returned when Classify gets no image data.
	ErrEmptyImage = errors.New("inference: empty image")

	// ErrTransport is wrapped by every TransportError.
	ErrTransport = errors.New("inference: transport failure")

	// ErrMalformedResponse is wrapped by every MalformedResponseError.
	ErrMalformedResponse = errors.New("inference: malformed response")
)

// User-facing fallbacks when the remote gives no message.
const (
	DefaultTransportMessage = "Failed to reach the emotion analysis service. Please try again."
	DefaultMalformedMessage = "The analysis service returned a response that could not be read. Please try again."
)

// TransportError reports a failure at the network or service layer.
type TransportError struct {
	// Provider identifies which backend failed.
	Provider string

	// StatusCode is the HTTP status code, 0 when no response arrived.
	StatusCode int

	// Message is the remote's error message, if it sent one.
	Message string

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Message != "":
		return fmt.Sprintf("inference [%s]: API error %d: %s", e.Provider, e.StatusCode, e.Message)
	case e.StatusCode != 0:
		return fmt.Sprintf("inference [%s]: API error %d", e.Provider, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("inference [%s]: %v", e.Provider, e.Err)
	default:
		return fmt.Sprintf("inference [%s]: transport failure", e.Provider)
	}
}

// Unwrap returns the underlying cause.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrTransport) true.
func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}

// IsRateLimited returns true if this is a rate limit error (HTTP 429).
func (e *TransportError) IsRateLimited() bool {
	return e.StatusCode == 429
}

// IsUnauthorized returns true for HTTP 401 and 403.
func (e *TransportError) IsUnauthorized() bool {
	return e.StatusCode == 401 || e.StatusCode == 403
}

// IsServerError returns true if this is a server-side error (HTTP 5xx).
func (e *TransportError) IsServerError() bool {
	return e.StatusCode >= 500 && e.StatusCode < 600
}

// MalformedResponseError reports a reply that was not valid JSON or did
// not match the observation schema.
type MalformedResponseError struct {
	// Provider identifies which backend replied.
	Provider string

	// Raw is the reply text, truncated for logging.
	Raw string

	// Err describes what was wrong with it.
	Err error
}

// Error implements the error interface.
func (e *MalformedResponseError) Error() string {
	if e.Provider == "" {
		return fmt.Sprintf("inference: malformed response: %v", e.Err)
	}
	return fmt.Sprintf("inference [%s]: malformed response: %v", e.Provider, e.Err)
}

// Unwrap returns the underlying cause.
func (e *MalformedResponseError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrMalformedResponse) true.
func (e *MalformedResponseError) Is(target error) bool {
	return target == ErrMalformedResponse
}

// Message returns the banner text for a classification error: the
// remote's own message for transport failures when it sent one, a fixed
// message otherwise.
func Message(err error) string {
	if err == nil {
		return ""
	}

	var te *TransportError
	if errors.As(err, &te) {
		if te.Message != "" {
			return te.Message
		}
		return DefaultTransportMessage
	}
	if errors.Is(err, ErrMalformedResponse) {
		return DefaultMalformedMessage
	}
	return err.Error()
}

// truncate shortens a string to maxLen bytes.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}
