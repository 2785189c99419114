package dxgi

import (
	"errors"
	"fmt"

	ole "github.com/go-ole/go-ole"
)

// Native status codes the translator recognizes.
const (
	StatusOK                    uint32 = 0x00000000
	StatusAccessLost            uint32 = 0x887A0026 // DXGI_ERROR_ACCESS_LOST
	StatusWaitTimeout           uint32 = 0x887A0027 // DXGI_ERROR_WAIT_TIMEOUT
	StatusInvalidCall           uint32 = 0x887A0001 // DXGI_ERROR_INVALID_CALL
	StatusAccessDenied          uint32 = 0x80070005 // E_ACCESSDENIED
	StatusUnsupported           uint32 = 0x887A0004 // DXGI_ERROR_UNSUPPORTED
	StatusNotCurrentlyAvailable uint32 = 0x887A0022 // DXGI_ERROR_NOT_CURRENTLY_AVAILABLE
	StatusSessionDisconnected   uint32 = 0x887A0028 // DXGI_ERROR_SESSION_DISCONNECTED
	StatusNotFound              uint32 = 0x887A0002 // DXGI_ERROR_NOT_FOUND
	StatusNoInterface           uint32 = 0x80004002 // E_NOINTERFACE
	StatusFail                  uint32 = 0x80004005 // E_FAIL
)

var errClosed = errors.New("capture session closed")

// Kind is the portable classification of a capture failure. Kinds are
// comparable sentinels: errors.Is(err, dxgi.WouldBlock) works on any error
// produced by this package.
type Kind uint8

const (
	Other Kind = iota
	ConnectionReset
	TimedOut
	InvalidData
	PermissionDenied
	ConnectionRefused
	Interrupted
	ConnectionAborted
	NotFound
	WouldBlock
)

var kindNames = [...]string{
	Other:             "other error",
	ConnectionReset:   "connection reset",
	TimedOut:          "timed out",
	InvalidData:       "invalid data",
	PermissionDenied:  "permission denied",
	ConnectionRefused: "connection refused",
	Interrupted:       "interrupted",
	ConnectionAborted: "connection aborted",
	NotFound:          "not found",
	WouldBlock:        "operation would block",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

func (k Kind) Error() string { return k.String() }

// Error is a failed native operation.
type Error struct {
	Op   string
	Kind Kind
	Code uint32 // HRESULT, 0 when the failure did not come from a native call
	Err  error
}

func (e *Error) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s: %s (0x%08X)", e.Op, e.Kind, e.Code)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is the Kind of e.
func (e *Error) Is(target error) bool {
	k, ok := target.(Kind)
	return ok && k == e.Kind
}

// KindOf returns the portable kind carried by err. Errors that did not come
// from this package are Other.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	var k Kind
	if errors.As(err, &k) {
		return k
	}
	return Other
}

// KindForStatus maps a native status code onto the portable taxonomy.
func KindForStatus(hr uint32) Kind {
	switch hr {
	case StatusAccessLost:
		return ConnectionReset
	case StatusWaitTimeout:
		return TimedOut
	case StatusInvalidCall:
		return InvalidData
	case StatusAccessDenied:
		return PermissionDenied
	case StatusUnsupported:
		return ConnectionRefused
	case StatusNotCurrentlyAvailable:
		return Interrupted
	case StatusSessionDisconnected:
		return ConnectionAborted
	default:
		return Other
	}
}

// Translate converts the result of native operation op into a portable
// error. A nil err stays nil. *ole.OleError results are classified by their
// HRESULT; anything else is Other.
func Translate(op string, err error) error {
	if err == nil {
		return nil
	}
	var oe *ole.OleError
	if errors.As(err, &oe) {
		hr := uint32(oe.Code())
		if hr == StatusOK {
			return nil
		}
		return &Error{Op: op, Kind: KindForStatus(hr), Code: hr, Err: err}
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return &Error{Op: op, Kind: Other, Err: err}
}

// Status wraps a raw HRESULT as the native error type used by backends.
// Zero maps to nil.
func Status(hr uint32) error {
	if hr == StatusOK {
		return nil
	}
	return ole.NewError(uintptr(hr))
}
