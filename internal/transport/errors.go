package transport

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"

	moderr "github.com/lizzyg/llmbridge/errors"
)

const maxErrorBody = 64 * 1024

// CheckResponse returns nil for 2xx responses. Otherwise it reads the body
// and returns an *errors.APIError; the body is not closed.
func CheckResponse(resp *http.Response, provider string) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return fmt.Errorf("%s http %d and failed to read body: %w", provider, resp.StatusCode, err)
	}
	ae := ParseError(body, provider)
	if ae == nil {
		ae = &moderr.APIError{Provider: provider, Message: strings.TrimSpace(string(body))}
		if ae.Message == "" {
			ae.Message = http.StatusText(resp.StatusCode)
		}
	}
	ae.StatusCode = resp.StatusCode
	ae.Body = string(body)
	return ae
}

// ParseError decodes a vendor error object of the shape
// {"error":{"type"|"status":..., "message":...}}. It returns nil when the
// payload carries no error message.
func ParseError(body []byte, provider string) *moderr.APIError {
	if !gjson.ValidBytes(body) {
		return nil
	}
	errObj := gjson.GetBytes(body, "error")
	if !errObj.IsObject() {
		return nil
	}
	msg := errObj.Get("message").String()
	if msg == "" {
		return nil
	}
	kind := errObj.Get("type").String()
	if kind == "" {
		kind = errObj.Get("status").String()
	}
	return &moderr.APIError{Provider: provider, Type: kind, Message: msg}
}
