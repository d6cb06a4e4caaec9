// Package jtagerr is the tagged error kind used end to end by this module,
// replacing the single JtagException the original C++ threw for every
// failure with a result-returning error that callers can switch on.
package jtagerr

import "fmt"

// Kind classifies a failure the way the original's EXCEPTION_TYPE_* did.
type Kind int

const (
	// Adapter is a lower-level USB/driver failure; the session must tear down.
	Adapter Kind = iota
	// BoardFault is an electrical problem: TDO stuck, missing DONE, a
	// programming verify mismatch.
	BoardFault
	// Framing is a malformed bit/fuse file or wire frame.
	Framing
	// GIGO is an invalid caller argument: index out of range, bad length.
	GIGO
	// Unimplemented marks a feature that is acknowledged but not built.
	Unimplemented
	// Firmware is a target-side error reported via NoC (RETURN_FAIL or a
	// fault interrupt).
	Firmware
	// Network is a TCP I/O failure.
	Network
	// Timeout is a blocking NoC receive exceeding its deadline.
	Timeout
)

func (k Kind) String() string {
	switch k {
	case Adapter:
		return "ADAPTER"
	case BoardFault:
		return "BOARD_FAULT"
	case Framing:
		return "FRAMING"
	case GIGO:
		return "GIGO"
	case Unimplemented:
		return "UNIMPLEMENTED"
	case Firmware:
		return "FIRMWARE"
	case Network:
		return "NETWORK"
	case Timeout:
		return "TIMEOUT"
	default:
		return "UNKNOWN"
	}
}

// Error is the tagged error value threaded through every package in this
// module in place of the original's JtagException.
type Error struct {
	Kind    Kind
	Message string
	Wrapped error
}

func (e *Error) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Wrapped)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Wrapped }

// Is lets errors.Is(err, jtagerr.ErrUnimplemented) style comparisons
// against the sentinel values below work by matching on Kind rather than
// identity; see KindOf for the usual way to query an error's kind.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == other.Kind
}

// New builds a tagged error with no wrapped cause.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds a tagged error that wraps an underlying cause.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Wrapped: cause}
}

// KindOf extracts the Kind from err if it (or something it wraps) is a
// *Error, and reports ok=false otherwise.
func KindOf(err error) (Kind, bool) {
	var tagged *Error
	for err != nil {
		if e, ok := err.(*Error); ok {
			tagged = e
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	if tagged == nil {
		return 0, false
	}
	return tagged.Kind, true
}

// Sentinel values for use with errors.Is when only the kind matters.
var (
	ErrAdapter       = &Error{Kind: Adapter, Message: "adapter error"}
	ErrBoardFault    = &Error{Kind: BoardFault, Message: "board fault"}
	ErrFraming       = &Error{Kind: Framing, Message: "framing error"}
	ErrGIGO          = &Error{Kind: GIGO, Message: "invalid argument"}
	ErrUnimplemented = &Error{Kind: Unimplemented, Message: "not implemented"}
	ErrFirmware      = &Error{Kind: Firmware, Message: "firmware error"}
	ErrNetwork       = &Error{Kind: Network, Message: "network error"}
	ErrTimeout       = &Error{Kind: Timeout, Message: "timeout"}
)
