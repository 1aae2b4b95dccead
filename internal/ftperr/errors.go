// Package ftperr defines the error kinds shared across the daemon's
// components and the mapping from those kinds to FTP reply codes.
package ftperr

import "fmt"

// Code identifies the kind of failure that occurred.
type Code int

const (
	// ProtocolError indicates a malformed command or a reply-500 class
	// protocol violation.
	ProtocolError Code = iota + 1

	// WrongState indicates a command was issued in a session state that
	// forbids it (e.g. anything but PASS/QUIT/REIN while awaiting PASS).
	WrongState

	// PermissionDenied indicates an ACL check rejected the operation.
	PermissionDenied

	// PathEscape indicates a virtual path normalized outside the site root.
	PathEscape

	// NotFound indicates the requested file, directory, user or group does
	// not exist.
	NotFound

	// AlreadyExists indicates a create/rename target is already occupied.
	AlreadyExists

	// QuotaExceeded indicates a credit or disk-space limit was hit.
	QuotaExceeded

	// TransferAborted indicates ABOR or a connection loss cut a transfer short.
	TransferAborted

	// PeerMismatch indicates an FXP data connection's peer address did not
	// match the session that requested it.
	PeerMismatch

	// IOFailure wraps an underlying OS error.
	IOFailure

	// ConfigError indicates a configuration load-time failure.
	ConfigError

	// StoreError indicates a user/group repository backend failure.
	StoreError
)

func (c Code) String() string {
	switch c {
	case ProtocolError:
		return "ProtocolError"
	case WrongState:
		return "WrongState"
	case PermissionDenied:
		return "PermissionDenied"
	case PathEscape:
		return "PathEscape"
	case NotFound:
		return "NotFound"
	case AlreadyExists:
		return "AlreadyExists"
	case QuotaExceeded:
		return "QuotaExceeded"
	case TransferAborted:
		return "TransferAborted"
	case PeerMismatch:
		return "PeerMismatch"
	case IOFailure:
		return "IOFailure"
	case ConfigError:
		return "ConfigError"
	case StoreError:
		return "StoreError"
	default:
		return fmt.Sprintf("Code(%d)", c)
	}
}

// Error is the concrete error type carried through the engine. Path is
// optional context (virtual path, username) attached for logging.
type Error struct {
	Code    Code
	Message string
	Path    string
	Wrapped error
}

func (e *Error) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Path)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Wrapped }

func new(code Code, path, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Path: path}
}

func NewProtocolError(format string, args ...interface{}) *Error {
	return new(ProtocolError, "", format, args...)
}

func NewWrongState(format string, args ...interface{}) *Error {
	return new(WrongState, "", format, args...)
}

func NewPermissionDenied(path string) *Error {
	return new(PermissionDenied, path, "permission denied")
}

func NewPathEscape(path string) *Error {
	return new(PathEscape, path, "path escapes site root")
}

func NewNotFound(path string) *Error {
	return new(NotFound, path, "not found")
}

func NewAlreadyExists(path string) *Error {
	return new(AlreadyExists, path, "already exists")
}

func NewQuotaExceeded(path string) *Error {
	return new(QuotaExceeded, path, "quota exceeded")
}

func NewTransferAborted(path string) *Error {
	return new(TransferAborted, path, "transfer aborted")
}

func NewPeerMismatch(path string) *Error {
	return new(PeerMismatch, path, "peer address mismatch")
}

func NewIOFailure(path string, wrapped error) *Error {
	e := new(IOFailure, path, "i/o error: %v", wrapped)
	e.Wrapped = wrapped
	return e
}

func NewConfigError(format string, args ...interface{}) *Error {
	return new(ConfigError, "", format, args...)
}

func NewStoreError(format string, args ...interface{}) *Error {
	return new(StoreError, "", format, args...)
}

// Is reports whether err is an *Error with the given code.
func Is(err error, code Code) bool {
	fe, ok := err.(*Error)
	return ok && fe.Code == code
}

// ReplyCodeFor maps an error to the nearest FTP three-digit reply code.
// Errors that are not *Error fall back to a generic 451.
func ReplyCodeFor(err error) int {
	fe, ok := err.(*Error)
	if !ok {
		return 451
	}
	switch fe.Code {
	case ProtocolError:
		return 500
	case WrongState:
		return 503
	case PermissionDenied:
		return 550
	case PathEscape:
		return 550
	case NotFound:
		return 550
	case AlreadyExists:
		return 550
	case QuotaExceeded:
		return 552
	case TransferAborted:
		return 426
	case PeerMismatch:
		return 425
	case IOFailure:
		return 451
	case ConfigError:
		return 451
	case StoreError:
		return 451
	default:
		return 451
	}
}
