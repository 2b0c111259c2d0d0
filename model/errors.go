package model

import (
	"errors"
	"fmt"
	"strings"
	"syscall"
)

type ErrorKind string

const (
	// ConnectionError: session establishment exhausted its retries, or the
	// established connection was lost.
	ConnectionError ErrorKind = "connection"
	// ResourceError: camera, audio or recording writer could not be initialized.
	ResourceError ErrorKind = "resource"
	// ProtocolError: malformed frame, length or template packet.
	ProtocolError ErrorKind = "protocol"
	// IOError: local persistence failure.
	IOError ErrorKind = "io"
)

type Cause string

const (
	CauseTimeout   Cause = "timeout"
	CauseRefused   Cause = "refused"
	CauseCorrupt   Cause = "corrupt"
	CauseLost      Cause = "lost"
	CauseExhausted Cause = "exhausted"
	CauseOther     Cause = "other"
)

// Error carries enough context (operation, endpoint, cause) for the caller to
// tell a timeout from a refusal from a corrupted stream.
type Error struct {
	Kind     ErrorKind
	Cause    Cause
	Op       string
	Endpoint string
	Err      error
}

func NewError(kind ErrorKind, cause Cause, op, endpoint string, err error) *Error {
	return &Error{
		Kind:     kind,
		Cause:    cause,
		Op:       op,
		Endpoint: endpoint,
		Err:      err,
	}
}

func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(string(e.Kind))
	sb.WriteString(" error")
	if e.Op != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Op)
	}
	if e.Endpoint != "" {
		fmt.Fprintf(&sb, " [%s]", e.Endpoint)
	}
	if e.Cause != "" {
		fmt.Fprintf(&sb, " (%s)", e.Cause)
	}
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsKind reports whether any error in err's chain is a *Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var e *Error
	for err != nil {
		if !errors.As(err, &e) {
			return false
		}
		if e.Kind == kind {
			return true
		}
		err = e.Err
	}
	return false
}

// CauseOf returns the cause of the outermost *Error in err's chain.
func CauseOf(err error) Cause {
	var e *Error
	if errors.As(err, &e) {
		return e.Cause
	}
	return ""
}

// NetCause classifies a network error so callers can tell a timeout from a
// refused connection.
func NetCause(err error) Cause {
	var te interface{ Timeout() bool }
	switch {
	case err == nil:
		return ""
	case errors.As(err, &te) && te.Timeout():
		return CauseTimeout
	case errors.Is(err, syscall.ECONNREFUSED):
		return CauseRefused
	default:
		return CauseOther
	}
}
