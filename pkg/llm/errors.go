package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// ErrMissingCredential is returned before any I/O when a provider has no key.
var ErrMissingCredential = errors.New("provider credential not configured")

// StatusError is a non-2xx reply from a provider.
type StatusError struct {
	Provider   string
	StatusCode int
	Body       string
	Message    string // provider supplied error message, when the body carried one
}

func (e *StatusError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Body
	}
	return fmt.Sprintf("%s error: status %d, body: %s", e.Provider, e.StatusCode, msg)
}

// NewStatusError builds a StatusError, extracting {"error": "..."} or
// {"error": {"message": "..."}} when present.
func NewStatusError(provider string, statusCode int, body []byte) *StatusError {
	return &StatusError{
		Provider:   provider,
		StatusCode: statusCode,
		Body:       string(body),
		Message:    extractErrorMessage(body),
	}
}

func extractErrorMessage(body []byte) string {
	var flat struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &flat); err == nil && flat.Error != "" {
		return flat.Error
	}
	var nested struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &nested); err == nil {
		return nested.Error.Message
	}
	return ""
}

// IsModelNotFound reports a not-found status whose body names a model,
// e.g. Ollama's {"error":"model \"x\" not found, try pulling it first"}.
func IsModelNotFound(err error) bool {
	var se *StatusError
	if !errors.As(err, &se) {
		return false
	}
	if se.StatusCode != http.StatusNotFound {
		return false
	}
	text := strings.ToLower(se.Message + " " + se.Body)
	return strings.Contains(text, "model")
}

// IsTimeout reports deadline or client timeouts.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// IsConnectionError reports failures to reach the provider at all.
func IsConnectionError(err error) bool {
	if err == nil || IsTimeout(err) {
		return false
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr)
}
