package modbus

import (
	"errors"
	"fmt"
)

// Kind classifies why a master or server operation failed.
type Kind int

const (
	// KindIO covers socket/serial failures.
	KindIO Kind = iota
	// KindTimeout covers no response within the configured window.
	KindTimeout
	// KindProtocol covers malformed frames, CRC failures, wrong
	// protocol_id, and transaction/unit mismatches.
	KindProtocol
	// KindException covers a Modbus exception response from the peer.
	KindException
	// KindConfig covers invalid configuration: overlapping blocks,
	// out-of-range slave IDs, bad quantities at the API surface.
	KindConfig
)

func (k Kind) String() string {
	switch k {
	case KindIO:
		return "io"
	case KindTimeout:
		return "timeout"
	case KindProtocol:
		return "protocol"
	case KindException:
		return "exception"
	case KindConfig:
		return "config"
	default:
		return "unknown"
	}
}

// Error is the error type returned by every master and server
// operation. ExceptionCode is only meaningful when Kind == KindException.
type Error struct {
	Kind          Kind
	ExceptionCode ExceptionCode
	Op            string
	Err           error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindException:
		return fmt.Sprintf("modbus: %s: exception %d (%s)", e.Op, e.ExceptionCode, e.ExceptionCode)
	default:
		if e.Err != nil {
			return fmt.Sprintf("modbus: %s: %s: %v", e.Op, e.Kind, e.Err)
		}
		return fmt.Sprintf("modbus: %s: %s", e.Op, e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is the same Kind, so callers can write
// errors.Is(err, modbus.ErrTimeout) style checks via the sentinels below.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	if t.Kind == KindException && t.ExceptionCode != 0 {
		return t.ExceptionCode == e.ExceptionCode
	}
	return true
}

func newErr(op string, kind Kind, err error) *Error {
	return &Error{Op: op, Kind: kind, Err: err}
}

func newExceptionErr(op string, code ExceptionCode) *Error {
	return &Error{Op: op, Kind: KindException, ExceptionCode: code}
}

func errInvalidSlaveID(id uint8) error {
	return fmt.Errorf("slave id %d out of range [1, 247]", id)
}

func errDuplicateSlaveID(id uint8) error {
	return fmt.Errorf("slave id %d already registered", id)
}

// Sentinels for errors.Is(err, modbus.ErrX) checks against the Kind only.
var (
	ErrIO        = &Error{Kind: KindIO}
	ErrTimeout   = &Error{Kind: KindTimeout}
	ErrProtocol  = &Error{Kind: KindProtocol}
	ErrException = &Error{Kind: KindException}
	ErrConfig    = &Error{Kind: KindConfig}
)

// AsError unwraps err into a *Error if the chain contains one.
func AsError(err error) (*Error, bool) {
	var me *Error
	if errors.As(err, &me) {
		return me, true
	}
	return nil, false
}
