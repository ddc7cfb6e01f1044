package apiclient

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
)

const (
	msgTransport    = "Could not reach the server. Check your connection and try again."
	msgUnauthorized = "Your session has expired. Please sign in again."
	msgForbidden    = "You do not have permission to do that."
	msgUnexpected   = "Something went wrong. Please try again."
)

// Error is every failure a Client call can return. Message is the one line a
// view shows; the other fields are for logs and tests.
type Error struct {
	Status    int
	Code      string
	Message   string
	RequestID string
	Err       error
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Err }

// Message returns the text to show for err, whatever produced it.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var apiErr *Error
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return err.Error()
}

func transportError(err error) *Error {
	return &Error{Message: msgTransport, Err: err}
}

type envelope struct {
	Error struct {
		Code      string          `json:"code"`
		Message   string          `json:"message"`
		RequestID string          `json:"requestId"`
		Details   json.RawMessage `json:"details"`
	} `json:"error"`
}

type fieldDetails struct {
	Fields []struct {
		Field   string `json:"field"`
		Message string `json:"message"`
	} `json:"fields"`
}

// decodeError turns a non-2xx response body into an *Error. Bodies that are
// not the API envelope fall back to a message chosen by status.
func decodeError(status int, body []byte) *Error {
	e := &Error{Status: status}

	var env envelope
	if err := json.Unmarshal(body, &env); err == nil && env.Error.Message != "" {
		e.Code = env.Error.Code
		e.RequestID = env.Error.RequestID
		e.Message = withFieldDetail(env.Error.Message, env.Error.Details)
		return e
	}

	switch status {
	case http.StatusUnauthorized:
		e.Message = msgUnauthorized
	case http.StatusForbidden:
		e.Message = msgForbidden
	default:
		e.Message = msgUnexpected
	}
	return e
}

// withFieldDetail names the first rejected field so the line is actionable.
func withFieldDetail(msg string, raw json.RawMessage) string {
	if len(raw) == 0 {
		return msg
	}

	var d fieldDetails
	if err := json.Unmarshal(raw, &d); err != nil || len(d.Fields) == 0 {
		return msg
	}

	f := d.Fields[0]
	if f.Field == "" || f.Message == "" {
		return msg
	}
	return strings.TrimSuffix(msg, ".") + ": " + f.Field + " " + f.Message
}
