package polaris

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind classifies an Error.
type Kind int

// Error kinds.
const (
	KindUnknown Kind = iota
	KindValidation
	KindTransport
	KindProtocol
	KindAuthentication
	KindProxy
	KindTimeout
	KindParse
)

// String returns the name of the kind.
func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindTransport:
		return "transport"
	case KindProtocol:
		return "protocol"
	case KindAuthentication:
		return "authentication"
	case KindProxy:
		return "proxy"
	case KindTimeout:
		return "timeout"
	case KindParse:
		return "parse"
	default:
		return "unknown"
	}
}

// Error is the single error type returned by the client. Kind tells callers
// whether the problem is local (Validation, Parse), on the wire (Transport,
// Proxy, Timeout), in the server's answer (Protocol) or in the credentials
// (Authentication).
type Error struct {
	Kind Kind
	// Op is the operation or flow that failed, e.g. "core_sla_list" or "session".
	Op string
	// StatusCode is the HTTP status, or the error code carried by a GraphQL error.
	StatusCode int
	// Description is the human readable status description.
	Description string
	// Message is the server supplied message, if any.
	Message string
	// TraceID is the server trace id, "N/A" when absent.
	TraceID string
	// Path is the GraphQL error path.
	Path []interface{}
	Err  error
}

// Sentinels for errors.Is against a kind.
var (
	ErrValidation     = &Error{Kind: KindValidation}
	ErrTransport      = &Error{Kind: KindTransport}
	ErrProtocol       = &Error{Kind: KindProtocol}
	ErrAuthentication = &Error{Kind: KindAuthentication}
	ErrProxy          = &Error{Kind: KindProxy}
	ErrTimeout        = &Error{Kind: KindTimeout}
	ErrParse          = &Error{Kind: KindParse}
)

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteString(e.Kind.String())
	b.WriteString(" error")

	if e.Op != "" {
		fmt.Fprintf(&b, " in %s", e.Op)
	}

	if e.StatusCode != 0 {
		fmt.Fprintf(&b, ": status %d (%s)", e.StatusCode, e.Description)
	}

	if e.TraceID != "" {
		fmt.Fprintf(&b, ", trace id %s", e.TraceID)
	}

	if e.Message != "" {
		fmt.Fprintf(&b, ": %s", e.Message)
	}

	if len(e.Path) > 0 {
		fmt.Fprintf(&b, " (path %v)", e.Path)
	}

	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}

	return b.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}

	return t.Op == "" && t.StatusCode == 0 && t.Err == nil && t.Kind == e.Kind
}

// NewError wraps err with a kind and the failing operation.
func NewError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// NewProtocolError builds a protocol error from a server answer. An empty
// trace id is reported as "N/A".
func NewProtocolError(op string, status int, message, traceID string, path []interface{}) *Error {
	if traceID == "" {
		traceID = "N/A"
	}

	return &Error{
		Kind:        KindProtocol,
		Op:          op,
		StatusCode:  status,
		Description: StatusDescription(status),
		Message:     message,
		TraceID:     traceID,
		Path:        path,
	}
}

// StatusDescription maps a status code to its description.
func StatusDescription(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "Bad request"
	case http.StatusUnauthorized:
		return "Unauthorized"
	case http.StatusForbidden:
		return "Forbidden"
	case http.StatusNotFound:
		return "Resource not found"
	case http.StatusInternalServerError:
		return "Internal server error"
	default:
		return "Unexpected error"
	}
}

// KindOf returns the kind of err, or KindUnknown.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}

	return KindUnknown
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }

// IsTransport checks if the error is a transport error.
func IsTransport(err error) bool { return errors.Is(err, ErrTransport) }

// IsProtocol checks if the error is a protocol error.
func IsProtocol(err error) bool { return errors.Is(err, ErrProtocol) }

// IsAuthentication checks if the error is an authentication error.
func IsAuthentication(err error) bool { return errors.Is(err, ErrAuthentication) }

// IsProxy checks if the error is a proxy error.
func IsProxy(err error) bool { return errors.Is(err, ErrProxy) }

// IsTimeout checks if the error is a timeout error.
func IsTimeout(err error) bool { return errors.Is(err, ErrTimeout) }

// IsParse checks if the error is a template parse error.
func IsParse(err error) bool { return errors.Is(err, ErrParse) }

// IsUnauthorized checks if the server answered with status 401, either as
// a structured error or as a bare HTTP status.
func IsUnauthorized(err error) bool {
	var pe *Error
	if errors.As(err, &pe) {
		return (pe.Kind == KindProtocol || pe.Kind == KindTransport) && pe.StatusCode == http.StatusUnauthorized
	}

	return false
}

// IsNotFound checks if the error is a protocol error with status 404.
func IsNotFound(err error) bool {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind == KindProtocol && pe.StatusCode == http.StatusNotFound
	}

	return false
}
