package errors

import (
	"context"
	stdErrors "errors"
	"fmt"
	"time"
)

// protocolMarker is implemented by all protocol-layer error types so we can classify them.
type protocolMarker interface {
	error
	isProtocol()
}

// ProtocolError is a generic wire-protocol layer error (validation, state, etc).
type ProtocolError struct {
	Op  string // high-level operation (e.g. "state.transition", "decode.command")
	Err error  // underlying cause (may be nil)
}

func (e *ProtocolError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("protocol error: %s", e.Op)
	}
	return fmt.Sprintf("protocol error: %s: %v", e.Op, e.Err)
}
func (e *ProtocolError) Unwrap() error { return e.Err }
func (e *ProtocolError) isProtocol()   {}

// HandshakeError indicates a HELLO/AUTH handshake violation or failure.
type HandshakeError struct {
	Op  string
	Err error
}

func (e *HandshakeError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("handshake error: %s", e.Op)
	}
	return fmt.Sprintf("handshake error: %s: %v", e.Op, e.Err)
}
func (e *HandshakeError) Unwrap() error { return e.Err }
func (e *HandshakeError) isProtocol()   {}

// WireError indicates a failure parsing or serializing the control-message
// grammar or the v2/v3 frame envelope (malformed TAG|KEY=VALUE line,
// truncated size=N payload, bad binary marker/header).
type WireError struct {
	Op  string
	Err error
}

func (e *WireError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("wire error: %s", e.Op)
	}
	return fmt.Sprintf("wire error: %s: %v", e.Op, e.Err)
}
func (e *WireError) Unwrap() error { return e.Err }
func (e *WireError) isProtocol()   {}

// SessionError indicates a viewer session state-machine violation, such as a
// command arriving while the session is in a state that does not permit it.
type SessionError struct {
	Op  string
	Err error
}

func (e *SessionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("session error: %s", e.Op)
	}
	return fmt.Sprintf("session error: %s: %v", e.Op, e.Err)
}
func (e *SessionError) Unwrap() error { return e.Err }
func (e *SessionError) isProtocol()   {}

// busMarker is implemented by bus-layer errors (frame bus / command bus).
type busMarker interface {
	error
	isBus()
}

// BusError indicates a frame-bus or command-bus failure: pushing onto a
// closed bus, or a bounded queue rejecting a non-droppable item.
type BusError struct {
	Op  string
	Err error
}

func (e *BusError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("bus error: %s", e.Op)
	}
	return fmt.Sprintf("bus error: %s: %v", e.Op, e.Err)
}
func (e *BusError) Unwrap() error { return e.Err }
func (e *BusError) isBus()        {}

// TimeoutError indicates an operation exceeded a deadline or idle timeout.
type TimeoutError struct {
	Op       string
	Duration time.Duration
	Err      error
}

func (e *TimeoutError) Error() string {
	base := fmt.Sprintf("timeout error: %s (after %s)", e.Op, e.Duration)
	if e.Err != nil {
		return base + ": " + e.Err.Error()
	}
	return base
}
func (e *TimeoutError) Unwrap() error { return e.Err }

// IsTimeout returns true if err is (or wraps) a TimeoutError, a context deadline exceeded,
// or any error type that exposes Timeout() bool and returns true.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	var te *TimeoutError
	if stdErrors.As(err, &te) {
		return true
	}
	if stdErrors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var toErr interface{ Timeout() bool }
	if stdErrors.As(err, &toErr) && toErr.Timeout() {
		return true
	}
	return false
}

// IsProtocolError returns true if the error chain contains any protocol-layer
// error (ProtocolError, HandshakeError, WireError, SessionError).
func IsProtocolError(err error) bool {
	if err == nil {
		return false
	}
	var pm protocolMarker
	return stdErrors.As(err, &pm)
}

// IsBusError returns true if the error chain contains a BusError.
func IsBusError(err error) bool {
	if err == nil {
		return false
	}
	var bm busMarker
	return stdErrors.As(err, &bm)
}

// Constructors (encourage contextual wrapping with %w when used by callers).
func NewProtocolError(op string, cause error) error  { return &ProtocolError{Op: op, Err: cause} }
func NewHandshakeError(op string, cause error) error { return &HandshakeError{Op: op, Err: cause} }
func NewWireError(op string, cause error) error      { return &WireError{Op: op, Err: cause} }
func NewSessionError(op string, cause error) error   { return &SessionError{Op: op, Err: cause} }
func NewBusError(op string, cause error) error       { return &BusError{Op: op, Err: cause} }
func NewTimeoutError(op string, d time.Duration, cause error) error {
	return &TimeoutError{Op: op, Duration: d, Err: cause}
}

// Usage pattern example:
//  if _, err := io.ReadFull(r, buf); err != nil {
//      return NewWireError("read frame header", fmt.Errorf("io: %w", err))
//  }
// Keep layering context with fmt.Errorf("...: %w", err).
