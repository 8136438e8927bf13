// Package frame holds the checksum and framing helpers (C2): CRC-16
// (Modbus polynomial) for RTU, LRC for ASCII, the ASCII hex envelope
// codec, and the request-length guesser a stream reader uses to know how
// many bytes to consume.
//
// No third-party CRC library appears anywhere in the reference pack this
// module was grounded on — every example hand-rolls CRC-16/Modbus the way
// it's done here.
package frame

import "github.com/coreprotocols/gomodbus/mberrors"

// CRC16 computes the Modbus CRC-16 (init 0xFFFF, polynomial 0xA001,
// byte-wise LSB-first) over data.
func CRC16(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		crc ^= uint16(b)
		for i := 0; i < 8; i++ {
			if crc&1 != 0 {
				crc = (crc >> 1) ^ 0xA001
			} else {
				crc >>= 1
			}
		}
	}
	return crc
}

// AppendCRC16LE appends the little-endian CRC-16 of data to data and
// returns the result, matching the RTU trailer layout.
func AppendCRC16LE(data []byte) []byte {
	crc := CRC16(data)
	return append(data, byte(crc), byte(crc>>8))
}

// LRC computes the Modbus Longitudinal Redundancy Check: the two's
// complement of the sum of data's bytes, mod 256.
func LRC(data []byte) byte {
	var sum byte
	for _, b := range data {
		sum += b
	}
	return byte(-int8(sum))
}

// VerifyCRC16 reports whether the trailing two bytes of frame (little
// endian) match the CRC-16 of everything preceding them.
func VerifyCRC16(frame []byte) bool {
	if len(frame) < 2 {
		return false
	}
	body := frame[:len(frame)-2]
	want := CRC16(body)
	got := uint16(frame[len(frame)-2]) | uint16(frame[len(frame)-1])<<8
	return want == got
}

// VerifyLRC reports whether the trailing byte of frame matches the LRC of
// everything preceding it.
func VerifyLRC(frame []byte) bool {
	if len(frame) < 1 {
		return false
	}
	body := frame[:len(frame)-1]
	return LRC(body) == frame[len(frame)-1]
}

const (
	asciiStart byte = ':'
	asciiCR    byte = 0x0D
	asciiLF    byte = 0x0A
)

var hexDigits = "0123456789ABCDEF"

func hexNibble(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	default:
		return 0, false
	}
}

// EncodeASCII wraps binary data in the ASCII envelope: ':' then two
// uppercase hex digits per byte, then CR LF.
func EncodeASCII(data []byte) []byte {
	out := make([]byte, 0, 1+len(data)*2+2)
	out = append(out, asciiStart)
	for _, b := range data {
		out = append(out, hexDigits[b>>4], hexDigits[b&0x0F])
	}
	out = append(out, asciiCR, asciiLF)
	return out
}

// ParseASCII validates the leading ':' and trailing CR LF of src, decodes
// the hex pairs in between into binary bytes, and returns them. Any
// invalid byte, odd hex length, or missing envelope markers fails with
// mberrors.FrameBroken.
func ParseASCII(src []byte) ([]byte, error) {
	if len(src) < 4 || src[0] != asciiStart {
		return nil, mberrors.New(mberrors.FrameBroken, "ascii frame missing leading ':'")
	}
	if src[len(src)-2] != asciiCR || src[len(src)-1] != asciiLF {
		return nil, mberrors.New(mberrors.FrameBroken, "ascii frame missing trailing CRLF")
	}
	hexBody := src[1 : len(src)-2]
	if len(hexBody)%2 != 0 {
		return nil, mberrors.New(mberrors.FrameBroken, "ascii frame has odd hex length")
	}
	out := make([]byte, len(hexBody)/2)
	for i := 0; i < len(out); i++ {
		hi, ok1 := hexNibble(hexBody[i*2])
		lo, ok2 := hexNibble(hexBody[i*2+1])
		if !ok1 || !ok2 {
			return nil, mberrors.New(mberrors.FrameBroken, "ascii frame has invalid hex digit")
		}
		out[i] = hi<<4 | lo
	}
	return out, nil
}

// IndexCRLF returns the offset of the first CR LF pair in src, or -1 if
// none is present.
func IndexCRLF(src []byte) int {
	for i := 0; i+1 < len(src); i++ {
		if src[i] == asciiCR && src[i+1] == asciiLF {
			return i
		}
	}
	return -1
}
