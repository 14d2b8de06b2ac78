package ollama

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// ErrorKind classifies transport failures.
type ErrorKind int

const (
	KindOther ErrorKind = iota
	KindBadRequest
	KindUnauthorized
	KindNotFound
	KindServerError
	KindConnection
)

func (k ErrorKind) String() string {
	switch k {
	case KindBadRequest:
		return "bad request"
	case KindUnauthorized:
		return "unauthorized"
	case KindNotFound:
		return "not found"
	case KindServerError:
		return "server error"
	case KindConnection:
		return "connection failed"
	default:
		return "unexpected status"
	}
}

// StatusError is returned for every failed exchange with the backend.
type StatusError struct {
	Kind       ErrorKind
	StatusCode int
	Message    string
	Cause      error
}

func (e *StatusError) Error() string {
	var b strings.Builder
	b.WriteString("ollama: ")
	b.WriteString(e.Kind.String())
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (%d)", e.StatusCode)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *StatusError) Unwrap() error {
	return e.Cause
}

// Is matches any StatusError of the same kind, so callers can test against
// the sentinels below with errors.Is.
func (e *StatusError) Is(target error) bool {
	t, ok := target.(*StatusError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.StatusCode == 0 && t.Message == e.Kind.String()
}

// Sentinels for errors.Is.
var (
	ErrNotRunning   = &StatusError{Kind: KindConnection, Message: KindConnection.String()}
	ErrUnauthorized = &StatusError{Kind: KindUnauthorized, Message: KindUnauthorized.String()}
	ErrNotFound     = &StatusError{Kind: KindNotFound, Message: KindNotFound.String()}
)

// Classify maps an HTTP status code onto the error taxonomy.
func Classify(status int) ErrorKind {
	switch {
	case status == http.StatusBadRequest:
		return KindBadRequest
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindUnauthorized
	case status == http.StatusNotFound:
		return KindNotFound
	case status >= 500:
		return KindServerError
	default:
		return KindOther
	}
}

// statusError builds the error for a non-2xx response. Ollama reports
// failures as {"error": "..."}; anything else is passed through verbatim.
func statusError(status int, body []byte) *StatusError {
	msg := strings.TrimSpace(string(body))
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error != "" {
		msg = payload.Error
	}
	return &StatusError{
		Kind:       Classify(status),
		StatusCode: status,
		Message:    msg,
	}
}
