package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/shpitdev/specsynth/pkg/pipeline/redact"
)

// errorEnvelope is the registry's JSON error body.
type errorEnvelope struct {
	ErrorCode json.Number `json:"error_code"`
	Name      string      `json:"name"`
	Message   string      `json:"message"`
}

// HTTPError is a sanitized summary of a non-2xx registry or spec store response.
//
// Raw response bodies are never included; Message and Snippet are redacted and truncated.
type HTTPError struct {
	// Service names the API that failed; empty means the registry.
	Service    string
	Op         string
	StatusCode int
	Status     string
	ErrorName  string
	ErrorCode  string
	Message    string

	// Snippet is a redacted, truncated hint for responses without an error envelope.
	Snippet string
}

func (e *HTTPError) Error() string {
	if e == nil {
		return "registry http error"
	}
	service := strings.TrimSpace(e.Service)
	if service == "" {
		service = "registry"
	}
	parts := []string{
		fmt.Sprintf("%s api error: op=%s status=%s", service, strings.TrimSpace(e.Op), strings.TrimSpace(e.Status)),
	}
	if strings.TrimSpace(e.ErrorName) != "" {
		parts = append(parts, "errorName="+strings.TrimSpace(e.ErrorName))
	}
	if strings.TrimSpace(e.ErrorCode) != "" {
		parts = append(parts, "errorCode="+strings.TrimSpace(e.ErrorCode))
	}
	if strings.TrimSpace(e.Message) != "" {
		parts = append(parts, "message="+strconv.Quote(strings.TrimSpace(e.Message)))
	}
	if strings.TrimSpace(e.Snippet) != "" {
		parts = append(parts, "body="+strings.TrimSpace(e.Snippet))
	}
	return strings.Join(parts, " ")
}

// IsNotFound reports whether err is a registry 404.
func IsNotFound(err error) bool {
	var he *HTTPError
	return errors.As(err, &he) && he.StatusCode == http.StatusNotFound
}

// Transient reports whether the response is worth retrying (429 or 5xx).
func (e *HTTPError) Transient() bool {
	return e != nil && (e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500)
}

func newHTTPError(op string, resp *http.Response, body []byte) error {
	return NewHTTPError("", op, resp, body)
}

// NewHTTPError summarizes a non-2xx response of service. The body is parsed for the
// JSON error envelope; otherwise only a redacted snippet is kept.
func NewHTTPError(service, op string, resp *http.Response, body []byte) *HTTPError {
	h := &HTTPError{Service: service, Op: op}
	if resp != nil {
		h.StatusCode = resp.StatusCode
		h.Status = resp.Status
	}

	var env errorEnvelope
	if len(body) > 0 && json.Unmarshal(body, &env) == nil {
		h.ErrorName = strings.TrimSpace(env.Name)
		h.ErrorCode = strings.TrimSpace(env.ErrorCode.String())
		h.Message = redactAndTruncate([]byte(env.Message))
		if h.ErrorName != "" || h.ErrorCode != "" || h.Message != "" {
			return h
		}
	}

	h.Snippet = redactAndTruncate(body)
	return h
}

func redactAndTruncate(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	const max = 256
	b := body
	if len(b) > max {
		b = b[:max]
	}
	s := redact.Secrets(string(b))
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\r", " ")
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if len(body) > max {
		return s + "..."
	}
	return s
}
