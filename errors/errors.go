package errors

import (
	"errors"
	"fmt"
)

var (
	ErrNoMatchingModel      = errors.New("no matching model found")
	ErrUnknownProvider      = errors.New("unknown provider")
	ErrUnsupportedOperation = errors.New("unsupported provider operation")
	ErrUnsupportedContent   = errors.New("unsupported content block")
	ErrUnknownPart          = errors.New("unknown content part")
)

// APIError is a vendor-reported failure, either from a non-2xx response or
// from an error event in the middle of a stream.
type APIError struct {
	Provider   string `json:"provider"`
	StatusCode int    `json:"status_code,omitempty"` // 0 for mid-stream errors
	Type       string `json:"type,omitempty"`
	Message    string `json:"message"`
	Body       string `json:"body,omitempty"`
}

func (e *APIError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Type != "":
		return fmt.Sprintf("%s http %d (%s): %s", e.Provider, e.StatusCode, e.Type, e.Message)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s http %d: %s", e.Provider, e.StatusCode, e.Message)
	case e.Type != "":
		return fmt.Sprintf("%s error (%s): %s", e.Provider, e.Type, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Provider, e.Message)
}

// AsAPIError unwraps err into an *APIError when possible.
func AsAPIError(err error) (*APIError, bool) {
	var ae *APIError
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}
