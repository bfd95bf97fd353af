// ABOUTME: Client-facing error taxonomy mapped from backend HTTP statuses.
// ABOUTME: Extracts backend messages and field errors, and supports errors.Is by kind.
package apierr

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// Kind is a stable error category surfaced to users.
type Kind int

const (
	KindUnexpected Kind = iota
	KindValidation
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindConflict
	KindPayloadTooLarge
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindPayloadTooLarge:
		return "payload_too_large"
	default:
		return "unexpected"
	}
}

// defaultMessage is shown when the backend gives no usable message.
func (k Kind) defaultMessage() string {
	switch k {
	case KindValidation:
		return "Some fields are invalid."
	case KindUnauthorized:
		return "Session expired. Please login again."
	case KindForbidden:
		return "You are not allowed to do this."
	case KindNotFound:
		return "Not found."
	case KindConflict:
		return "That username or email is already taken."
	case KindPayloadTooLarge:
		return "The file is too large to upload."
	default:
		return "An unexpected error occurred. Please try again."
	}
}

// Sentinels for errors.Is comparisons by kind.
var (
	ErrUnexpected      = &Error{Kind: KindUnexpected}
	ErrValidation      = &Error{Kind: KindValidation}
	ErrUnauthorized    = &Error{Kind: KindUnauthorized}
	ErrForbidden       = &Error{Kind: KindForbidden}
	ErrNotFound        = &Error{Kind: KindNotFound}
	ErrConflict        = &Error{Kind: KindConflict}
	ErrPayloadTooLarge = &Error{Kind: KindPayloadTooLarge}
)

// Error is a categorized client error.
type Error struct {
	Kind    Kind
	Status  int                 // HTTP status, 0 for local or transport errors
	Message string              // user-facing message
	Fields  map[string][]string // per-field validation messages
	Err     error               // underlying cause
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.defaultMessage()
	}
	if len(e.Fields) > 0 {
		msg += " (" + e.fieldSummary() + ")"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// UserMessage is the text a screen or CLI should show.
func (e *Error) UserMessage() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Kind.defaultMessage()
}

func (e *Error) fieldSummary() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+": "+strings.Join(e.Fields[name], " "))
	}
	return strings.Join(parts, "; ")
}

// New builds a local error that never reached the backend.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap categorizes an underlying error.
func Wrap(kind Kind, err error, message string) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindForStatus maps an HTTP status to its error kind.
func KindForStatus(status int) Kind {
	switch status {
	case http.StatusBadRequest:
		return KindValidation
	case http.StatusUnauthorized:
		return KindUnauthorized
	case http.StatusForbidden:
		return KindForbidden
	case http.StatusNotFound:
		return KindNotFound
	case http.StatusConflict:
		return KindConflict
	case http.StatusRequestEntityTooLarge:
		return KindPayloadTooLarge
	default:
		return KindUnexpected
	}
}

// FromResponse builds an error from a failed response status and body.
func FromResponse(status int, body []byte) *Error {
	e := &Error{Kind: KindForStatus(status), Status: status}
	if len(body) == 0 {
		return e
	}

	var payload map[string]json.RawMessage
	if err := json.Unmarshal(body, &payload); err != nil {
		return e
	}

	for _, key := range []string{"error", "detail", "message"} {
		if raw, ok := payload[key]; ok {
			var s string
			if json.Unmarshal(raw, &s) == nil && s != "" {
				e.Message = s
				break
			}
		}
	}

	if e.Kind == KindValidation {
		e.Fields = fieldErrors(payload)
	}
	return e
}

// fieldErrors collects DRF-style {"field": ["msg", ...]} entries.
func fieldErrors(payload map[string]json.RawMessage) map[string][]string {
	fields := make(map[string][]string)
	for name, raw := range payload {
		switch name {
		case "error", "detail", "message":
			continue
		}
		var list []string
		if json.Unmarshal(raw, &list) == nil && len(list) > 0 {
			fields[name] = list
			continue
		}
		var single string
		if json.Unmarshal(raw, &single) == nil && single != "" {
			fields[name] = []string{single}
		}
	}
	if len(fields) == 0 {
		return nil
	}
	return fields
}

// KindOf returns the kind of err, or KindUnexpected for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnexpected
}

// Message returns the user-facing text for any error.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.UserMessage()
	}
	return KindUnexpected.defaultMessage()
}
