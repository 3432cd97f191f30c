package sandbox

import (
	"errors"
	"fmt"
)

// Errors reported by sandbox implementations across the boundary.
var (
	ErrConnectionClosed    = errors.New("sandbox connection is closed")
	ErrHeapCeilingRejected = errors.New("heap ceiling rejected by sandbox")
	ErrIsolateClosed       = errors.New("isolate is closed")
	ErrNotConnected        = errors.New("sandbox is not connected")
)

// Kind classifies a runtime failure
type Kind int

const (
	KindUnknown Kind = iota
	KindInvalidRequest
	KindSandboxUnavailable
	KindSandboxConnectionLost
	KindUnsupportedCapability
	KindIsolateCreationFailed
	KindModuleTransferFailed
	KindScriptExecutionFailed
)

// Sentinels, one per Kind. *Error values match the sentinel of their kind.
var (
	ErrInvalidRequest        = errors.New("invalid evaluation request")
	ErrSandboxUnavailable    = errors.New("sandbox unavailable")
	ErrSandboxConnectionLost = errors.New("sandbox connection lost")
	ErrUnsupportedCapability = errors.New("unsupported sandbox capability")
	ErrIsolateCreationFailed = errors.New("isolate creation failed")
	ErrModuleTransferFailed  = errors.New("module transfer failed")
	ErrScriptExecutionFailed = errors.New("script execution failed")
)

var sentinels = map[Kind]error{
	KindInvalidRequest:        ErrInvalidRequest,
	KindSandboxUnavailable:    ErrSandboxUnavailable,
	KindSandboxConnectionLost: ErrSandboxConnectionLost,
	KindUnsupportedCapability: ErrUnsupportedCapability,
	KindIsolateCreationFailed: ErrIsolateCreationFailed,
	KindModuleTransferFailed:  ErrModuleTransferFailed,
	KindScriptExecutionFailed: ErrScriptExecutionFailed,
}

// String returns the string representation of the kind
func (k Kind) String() string {
	switch k {
	case KindInvalidRequest:
		return "invalid_request"
	case KindSandboxUnavailable:
		return "sandbox_unavailable"
	case KindSandboxConnectionLost:
		return "sandbox_connection_lost"
	case KindUnsupportedCapability:
		return "unsupported_capability"
	case KindIsolateCreationFailed:
		return "isolate_creation_failed"
	case KindModuleTransferFailed:
		return "module_transfer_failed"
	case KindScriptExecutionFailed:
		return "script_execution_failed"
	default:
		return "unknown"
	}
}

// Error is a classified runtime failure.
type Error struct {
	Kind Kind
	Op   string // operation that failed, e.g. "create isolate"
	Msg  string // optional detail
	Err  error  // underlying cause
}

// NewError creates a classified error
func NewError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf creates a classified error with a formatted message and no cause
func Errorf(kind Kind, op, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Error returns the error message
func (e *Error) Error() string {
	msg := e.Kind.String()
	if sentinel, ok := sentinels[e.Kind]; ok {
		msg = sentinel.Error()
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Msg != "" {
		msg += ": " + e.Msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel of the error's kind
func (e *Error) Is(target error) bool {
	sentinel, ok := sentinels[e.Kind]
	return ok && target == sentinel
}

// KindOf returns the kind of the first *Error in err's chain
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
