package rtmpstream

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies errors returned across the package boundary so
// callers can decide how to react (close the connection, log and
// continue, retry) without string-matching error text.
type Kind int

const (
	// KindTransport covers TCP read/write/accept failures.
	KindTransport Kind = iota
	// KindProtocol covers malformed chunks, handshakes, or commands.
	KindProtocol
	// KindAuth covers rejected publish/play authorization.
	KindAuth
	// KindParse covers malformed AMF0 or FLV-style tag payloads.
	KindParse
	// KindResource covers exhausted application/stream capacity.
	KindResource
	// KindTimeout covers idle-connection and handshake deadlines.
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindProtocol:
		return "protocol"
	case KindAuth:
		return "auth"
	case KindParse:
		return "parse"
	case KindResource:
		return "resource"
	case KindTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Error wraps an underlying cause with a Kind classification and the
// connection-relevant context (application/stream name) that produced
// it.
type Error struct {
	Kind    Kind
	App     string
	Stream  string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.App == "" && e.Stream == "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s/%s: %s", e.Kind, e.App, e.Stream, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// newError builds an Error, wrapping cause with errors.Wrap so a
// stack trace is attached at the point of creation.
func newError(kind Kind, app, stream, message string, cause error) *Error {
	if cause != nil {
		cause = errors.Wrap(cause, message)
	}
	return &Error{Kind: kind, App: app, Stream: stream, Message: message, Cause: cause}
}

var (
	errNotFound       = errors.New("not found")
	errNotImplemented = errors.New("not implemented")
	errNotSupported   = errors.New("not supported")
	// ErrConnectionClosed is returned by operations attempted after a
	// Connection has shut down.
	ErrConnectionClosed = errors.New("rtmpstream: connection closed")
	// ErrUnauthorized is returned when publish/play is rejected by an
	// Authorizer.
	ErrUnauthorized = errors.New("rtmpstream: unauthorized")
)
