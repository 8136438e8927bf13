// Package mberrors defines the single error taxonomy shared by the
// framing, store, server, and client packages.
package mberrors

import (
	"errors"
	"fmt"
)

// Kind is a closed enumeration of the error taxonomy the codec reports,
// covering both transport-level and application-level faults.
type Kind int

const (
	// OOB indicates the output buffer is full or a caller buffer is too
	// small for the requested operation.
	OOB Kind = iota
	// OOBContext indicates a register address range exceeds the store's
	// capacity.
	OOBContext
	// FrameBroken indicates a header or length check failed, or the frame
	// was too short to contain what it claims.
	FrameBroken
	// FrameCRCError indicates a CRC or LRC mismatch.
	FrameCRCError
	// IllegalFunction mirrors wire exception code 0x01.
	IllegalFunction
	// IllegalDataAddress mirrors wire exception code 0x02.
	IllegalDataAddress
	// IllegalDataValue mirrors wire exception code 0x03.
	IllegalDataValue
	// SlaveDeviceFailure mirrors wire exception code 0x04.
	SlaveDeviceFailure
	// Acknowledge mirrors wire exception code 0x05.
	Acknowledge
	// SlaveDeviceBusy mirrors wire exception code 0x06.
	SlaveDeviceBusy
	// NegativeAcknowledge mirrors wire exception code 0x07.
	NegativeAcknowledge
	// MemoryParityError mirrors wire exception code 0x08.
	MemoryParityError
	// GatewayPathUnavailable mirrors wire exception code 0x09.
	GatewayPathUnavailable
	// GatewayTargetFailed mirrors wire exception code 0x0A.
	GatewayTargetFailed
	// CommunicationError indicates the client observed a CRC/LRC mismatch
	// on a response frame.
	CommunicationError
	// UnknownError indicates an exception byte the taxonomy does not
	// recognize.
	UnknownError
	// Utf8Error indicates parse_string/parse_string_utf8 encountered
	// invalid UTF-8.
	Utf8Error
	// ReadCallOnWriteFrame indicates ProcessRead was called on a frame
	// classified as a write.
	ReadCallOnWriteFrame
	// WriteCallOnReadFrame indicates ProcessWrite was called on a frame
	// classified as a read.
	WriteCallOnReadFrame
)

func (k Kind) String() string {
	switch k {
	case OOB:
		return "out of buffer"
	case OOBContext:
		return "out of buffer in context"
	case FrameBroken:
		return "frame broken"
	case FrameCRCError:
		return "frame crc error"
	case IllegalFunction:
		return "modbus error code 01 - illegal function"
	case IllegalDataAddress:
		return "modbus error code 02 - illegal data address"
	case IllegalDataValue:
		return "modbus error code 03 - illegal data value"
	case SlaveDeviceFailure:
		return "modbus error code 04 - slave device failure"
	case Acknowledge:
		return "modbus error code 05 - acknowledge"
	case SlaveDeviceBusy:
		return "modbus error code 06 - slave device busy"
	case NegativeAcknowledge:
		return "modbus error code 07 - negative acknowledge"
	case MemoryParityError:
		return "modbus error code 08 - memory parity error"
	case GatewayPathUnavailable:
		return "modbus error code 09 - gateway path unavailable"
	case GatewayTargetFailed:
		return "modbus error code 10 - gateway target device failed to respond"
	case CommunicationError:
		return "modbus error code 21 - response crc did not match calculated crc"
	case UnknownError:
		return "unknown modbus error"
	case Utf8Error:
		return "utf8 conversion error"
	case ReadCallOnWriteFrame:
		return "frame describing write had read processing called on it"
	case WriteCallOnReadFrame:
		return "frame describing read had write processing called on it"
	default:
		return "unrecognized error kind"
	}
}

// Fault wraps a Kind with optional contextual detail, implementing error.
type Fault struct {
	Kind   Kind
	Detail string
}

func (f *Fault) Error() string {
	if f.Detail == "" {
		return f.Kind.String()
	}
	return fmt.Sprintf("%s: %s", f.Kind, f.Detail)
}

// Is allows errors.Is(err, mberrors.ErrOOB) style checks against a Kind by
// comparing against the sentinel values below.
func (f *Fault) Is(target error) bool {
	t, ok := target.(*Fault)
	return ok && t.Kind == f.Kind
}

// New builds a Fault for the given kind with optional detail text.
func New(kind Kind, detail string) error {
	return &Fault{Kind: kind, Detail: detail}
}

// Sentinel faults for errors.Is comparisons against a bare kind, e.g.
// errors.Is(err, mberrors.ErrOOBContext).
var (
	ErrOOB                    = &Fault{Kind: OOB}
	ErrOOBContext              = &Fault{Kind: OOBContext}
	ErrFrameBroken             = &Fault{Kind: FrameBroken}
	ErrFrameCRCError           = &Fault{Kind: FrameCRCError}
	ErrIllegalFunction         = &Fault{Kind: IllegalFunction}
	ErrIllegalDataAddress      = &Fault{Kind: IllegalDataAddress}
	ErrIllegalDataValue        = &Fault{Kind: IllegalDataValue}
	ErrCommunicationError      = &Fault{Kind: CommunicationError}
	ErrUnknownError            = &Fault{Kind: UnknownError}
	ErrUtf8Error               = &Fault{Kind: Utf8Error}
	ErrReadCallOnWriteFrame    = &Fault{Kind: ReadCallOnWriteFrame}
	ErrWriteCallOnReadFrame    = &Fault{Kind: WriteCallOnReadFrame}
)

// Is reports whether err carries the given Kind anywhere in its chain.
func Is(err error, kind Kind) bool {
	var f *Fault
	if errors.As(err, &f) {
		return f.Kind == kind
	}
	return false
}

// KindOf extracts the Kind from err, returning (UnknownError, false) if err
// is not a Fault.
func KindOf(err error) (Kind, bool) {
	var f *Fault
	if errors.As(err, &f) {
		return f.Kind, true
	}
	return UnknownError, false
}

// modbusErrorCodes maps wire exception bytes to their Kind, per §6/§7.
var modbusErrorCodes = map[byte]Kind{
	0x01: IllegalFunction,
	0x02: IllegalDataAddress,
	0x03: IllegalDataValue,
	0x04: SlaveDeviceFailure,
	0x05: Acknowledge,
	0x06: SlaveDeviceBusy,
	0x07: NegativeAcknowledge,
	0x08: MemoryParityError,
	0x09: GatewayPathUnavailable,
	0x0A: GatewayTargetFailed,
}

// FromWireCode translates a wire exception byte into the matching Kind,
// UnknownError for anything unrecognized.
func FromWireCode(code byte) Kind {
	if k, ok := modbusErrorCodes[code]; ok {
		return k
	}
	return UnknownError
}

// IsWireException reports whether k corresponds to one of the standard
// Modbus wire exception codes (as opposed to a purely local/transport
// fault like OOB or FrameBroken).
func IsWireException(k Kind) bool {
	switch k {
	case IllegalFunction, IllegalDataAddress, IllegalDataValue,
		SlaveDeviceFailure, Acknowledge, SlaveDeviceBusy,
		NegativeAcknowledge, MemoryParityError,
		GatewayPathUnavailable, GatewayTargetFailed:
		return true
	default:
		return false
	}
}

// ToWireCode returns the wire exception byte for k, and false if k has no
// wire representation (e.g. OOB, FrameBroken).
func ToWireCode(k Kind) (byte, bool) {
	for code, kind := range modbusErrorCodes {
		if kind == k {
			return code, true
		}
	}
	return 0, false
}
