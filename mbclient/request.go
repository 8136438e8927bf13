// Package mbclient implements the client half of the codec (C5): one
// Request object per logical session that builds request frames and
// validates/parses response frames across all three framing variants.
// A Request is reusable across calls — generating a new request
// overwrites the function/register/count it tracks for the matching
// parse call.
package mbclient

import (
	"bytes"
	"encoding/binary"
	"math"
	"unicode/utf8"

	"github.com/coreprotocols/gomodbus/buffer"
	"github.com/coreprotocols/gomodbus/frame"
	"github.com/coreprotocols/gomodbus/mberrors"
	"github.com/coreprotocols/gomodbus/mbproto"
)

// Request is a Modbus client session: it remembers the function,
// register, and count of the request it last generated, so the matching
// Parse* call can validate and decode the response without the caller
// having to repeat them.
type Request struct {
	TransactionID uint16 // TCP/UDP only, defaults to 1
	UnitID        byte
	Function      mbproto.Function
	Register      uint16
	Count         uint16
	Proto         mbproto.Proto
}

// New builds a Request for proto, defaulting TransactionID to 1 (only
// meaningful for TcpUdp).
func New(unitID byte, proto mbproto.Proto) *Request {
	return &Request{TransactionID: 1, UnitID: unitID, Function: mbproto.GetCoils, Proto: proto}
}

// NewTCP builds a TCP/UDP Request with an explicit transaction id.
func NewTCP(unitID byte, transactionID uint16) *Request {
	return &Request{TransactionID: transactionID, UnitID: unitID, Function: mbproto.GetCoils, Proto: mbproto.TcpUdp}
}

// --- request generation ---

// GenerateGetCoils builds a GetCoils (0x01) request.
func (r *Request) GenerateGetCoils(reg, count uint16, out buffer.Buffer) error {
	r.Register, r.Count, r.Function = reg, count, mbproto.GetCoils
	return r.generate(nil, out)
}

// GenerateGetDiscretes builds a GetDiscretes (0x02) request.
func (r *Request) GenerateGetDiscretes(reg, count uint16, out buffer.Buffer) error {
	r.Register, r.Count, r.Function = reg, count, mbproto.GetDiscretes
	return r.generate(nil, out)
}

// GenerateGetHoldings builds a GetHoldings (0x03) request.
func (r *Request) GenerateGetHoldings(reg, count uint16, out buffer.Buffer) error {
	r.Register, r.Count, r.Function = reg, count, mbproto.GetHoldings
	return r.generate(nil, out)
}

// GenerateGetInputs builds a GetInputs (0x04) request.
func (r *Request) GenerateGetInputs(reg, count uint16, out buffer.Buffer) error {
	r.Register, r.Count, r.Function = reg, count, mbproto.GetInputs
	return r.generate(nil, out)
}

// GenerateSetCoil builds a SetCoil (0x05) request.
func (r *Request) GenerateSetCoil(reg uint16, value bool, out buffer.Buffer) error {
	r.Register, r.Count, r.Function = reg, 1, mbproto.SetCoil
	v := byte(0x00)
	if value {
		v = 0xFF
	}
	return r.generate([]byte{v, 0x00}, out)
}

// GenerateSetHolding builds a SetHolding (0x06) request.
func (r *Request) GenerateSetHolding(reg, value uint16, out buffer.Buffer) error {
	r.Register, r.Count, r.Function = reg, 1, mbproto.SetHolding
	return r.generate([]byte{byte(value >> 8), byte(value)}, out)
}

// GenerateSetHoldingsBulk builds a SetHoldingsBulk (0x10) request writing
// values starting at reg.
func (r *Request) GenerateSetHoldingsBulk(reg uint16, values []uint16, out buffer.Buffer) error {
	if len(values) == 0 || len(values) > mbproto.MaxWriteRegisterCount {
		return mberrors.New(mberrors.OOB, "register count outside the function's wire bound")
	}
	r.Register, r.Count, r.Function = reg, uint16(len(values)), mbproto.SetHoldingsBulk
	data := make([]byte, len(values)*2)
	for i, v := range values {
		data[i*2], data[i*2+1] = byte(v>>8), byte(v)
	}
	return r.generate(data, out)
}

// GenerateSetHoldingsBulkFromBytes builds a SetHoldingsBulk request from
// raw bytes, two per register; an odd trailing byte is padded into the
// low byte of the final register.
func (r *Request) GenerateSetHoldingsBulkFromBytes(reg uint16, values []byte, out buffer.Buffer) error {
	count := (len(values) + 1) / 2
	if count == 0 || count > mbproto.MaxWriteRegisterCount {
		return mberrors.New(mberrors.OOB, "register count outside the function's wire bound")
	}
	r.Register, r.Count, r.Function = reg, uint16(count), mbproto.SetHoldingsBulk
	data := make([]byte, 0, count*2)
	for i := 0; i < len(values); i += 2 {
		if i+1 < len(values) {
			data = append(data, values[i], values[i+1])
		} else {
			data = append(data, 0x00, values[i])
		}
	}
	return r.generate(data, out)
}

// GenerateSetHoldingsString builds a SetHoldingsBulk request carrying s
// as raw bytes, padded to an even length.
func (r *Request) GenerateSetHoldingsString(reg uint16, s string, out buffer.Buffer) error {
	data := []byte(s)
	if len(data)%2 != 0 {
		data = append(data, 0x00)
	}
	return r.GenerateSetHoldingsBulkFromBytes(reg, data, out)
}

// GenerateSetCoilsBulk builds a SetCoilsBulk (0x0F) request writing
// values starting at reg. Count is clamped at 1968 — the largest count
// whose packed byte count still fits the wire's single byte-count field
// (246, the FC15 byte-count ceiling).
func (r *Request) GenerateSetCoilsBulk(reg uint16, values []bool, out buffer.Buffer) error {
	if len(values) == 0 || len(values) > mbproto.MaxWriteCoilCount {
		return mberrors.New(mberrors.OOB, "coil count outside the function's wire bound")
	}
	r.Register, r.Count, r.Function = reg, uint16(len(values)), mbproto.SetCoilsBulk
	data := make([]byte, (len(values)+7)/8)
	for i, v := range values {
		if v {
			data[i/8] |= 1 << uint(i%8)
		}
	}
	return r.generate(data, out)
}

// generate assembles the complete wire frame for the function currently
// set on r — MBAP header (TCP/UDP), unit+function+register+payload, and
// the protocol's trailer (CRC16 for RTU, LRC + the ':' hex envelope for
// ASCII) — into out. For TCP/UDP, the MBAP length field is backpatched
// after the frame's true size is known, the same way the original
// request builder backpatches it in place rather than computing it
// up front.
func (r *Request) generate(data []byte, out buffer.Buffer) error {
	out.Clear()
	if r.Proto == mbproto.TcpUdp {
		if err := out.Extend([]byte{byte(r.TransactionID >> 8), byte(r.TransactionID), 0, 0, 0, 0}); err != nil {
			return err
		}
	}
	if err := out.Push(r.UnitID); err != nil {
		return err
	}
	if err := out.Push(r.Function.Byte()); err != nil {
		return err
	}
	if err := out.Extend([]byte{byte(r.Register >> 8), byte(r.Register)}); err != nil {
		return err
	}

	switch {
	case r.Function.IsRead():
		if err := out.Extend([]byte{byte(r.Count >> 8), byte(r.Count)}); err != nil {
			return err
		}
	case r.Function == mbproto.SetCoil || r.Function == mbproto.SetHolding:
		if err := out.Extend(data); err != nil {
			return err
		}
	default: // SetCoilsBulk, SetHoldingsBulk
		if err := out.Extend([]byte{byte(r.Count >> 8), byte(r.Count)}); err != nil {
			return err
		}
		if len(data) > 255 {
			return mberrors.New(mberrors.OOB, "payload byte count exceeds the wire's single byte-count field")
		}
		if err := out.Push(byte(len(data))); err != nil {
			return err
		}
		if err := out.Extend(data); err != nil {
			return err
		}
	}

	switch r.Proto {
	case mbproto.TcpUdp:
		l := out.Len()
		if l < 6 {
			return mberrors.New(mberrors.OOB, "frame shorter than the mbap header")
		}
		length := uint16(l - 6)
		if err := out.Replace(4, byte(length>>8)); err != nil {
			return err
		}
		if err := out.Replace(5, byte(length)); err != nil {
			return err
		}

	case mbproto.Rtu:
		crc := frame.CRC16(out.AsSlice())
		if err := out.Extend([]byte{byte(crc), byte(crc >> 8)}); err != nil {
			return err
		}

	case mbproto.Ascii:
		raw := append([]byte{}, out.AsSlice()...)
		raw = append(raw, frame.LRC(raw))
		encoded := frame.EncodeASCII(raw)
		out.Clear()
		if err := out.Extend(encoded); err != nil {
			return err
		}
	}
	return nil
}

// --- response parsing ---

// parseResponse validates buf's envelope (MBAP header / CRC16 / ASCII
// envelope + LRC, depending on r.Proto), checks the unit id and function
// byte against what r last generated, and returns the bare
// unit+function+data body with the checksum and any textual envelope
// stripped. A wire exception response surfaces as the matching
// mberrors.Kind rather than as a body to decode further.
func (r *Request) parseResponse(buf []byte) ([]byte, error) {
	var body []byte
	switch r.Proto {
	case mbproto.TcpUdp:
		if len(buf) < 9 {
			return nil, mberrors.New(mberrors.FrameBroken, "tcp response shorter than header+unit+function+bytecount")
		}
		transactionID := binary.BigEndian.Uint16(buf[0:2])
		protocolID := binary.BigEndian.Uint16(buf[2:4])
		if transactionID != r.TransactionID || protocolID != 0 {
			return nil, mberrors.New(mberrors.FrameBroken, "tcp response header does not match the request")
		}
		body = buf[6:]

	case mbproto.Rtu:
		if len(buf) < 5 {
			return nil, mberrors.New(mberrors.FrameBroken, "rtu response shorter than unit+function+bytecount+crc")
		}
		if !frame.VerifyCRC16(buf) {
			return nil, mberrors.New(mberrors.CommunicationError, "rtu response crc mismatch")
		}
		body = buf[:len(buf)-2]

	case mbproto.Ascii:
		decoded, err := frame.ParseASCII(buf)
		if err != nil {
			return nil, err
		}
		if len(decoded) < 4 {
			return nil, mberrors.New(mberrors.FrameBroken, "ascii response shorter than unit+function+bytecount+lrc")
		}
		if !frame.VerifyLRC(decoded) {
			return nil, mberrors.New(mberrors.CommunicationError, "ascii response lrc mismatch")
		}
		body = decoded[:len(decoded)-1]

	default:
		return nil, mberrors.New(mberrors.FrameBroken, "unknown protocol")
	}

	if len(body) < 2 {
		return nil, mberrors.New(mberrors.FrameBroken, "response shorter than unit+function")
	}
	if body[0] != r.UnitID {
		return nil, mberrors.New(mberrors.FrameBroken, "response unit id does not match the request")
	}

	fnByte := body[1]
	if mbproto.IsException(fnByte) {
		if mbproto.StripException(fnByte) != r.Function.Byte() {
			return nil, mberrors.New(mberrors.FrameBroken, "exception response function does not match the request")
		}
		if len(body) < 3 {
			return nil, mberrors.New(mberrors.FrameBroken, "exception response missing exception code")
		}
		return nil, mberrors.New(mberrors.FromWireCode(body[2]), "")
	}
	if fnByte != r.Function.Byte() {
		return nil, mberrors.New(mberrors.FrameBroken, "response function does not match the request")
	}

	if r.Function.IsRead() {
		if len(body) < 3 {
			return nil, mberrors.New(mberrors.FrameBroken, "read response missing byte count")
		}
		byteCount := int(body[2])
		if byteCount != len(body)-3 {
			return nil, mberrors.New(mberrors.FrameBroken, "read response byte count does not match payload length")
		}
	}
	return body, nil
}

// ParseOK validates a response carries no wire exception, discarding any
// payload. Useful for the four write functions, whose success response
// is just an echo of the request.
func (r *Request) ParseOK(buf []byte) error {
	_, err := r.parseResponse(buf)
	return err
}

// ParseSlice validates buf and returns its raw payload bytes: for a read
// function this is the data following the byte-count field, for a write
// function it is everything after the function byte (the echoed
// register/value fields).
func (r *Request) ParseSlice(buf []byte) ([]byte, error) {
	body, err := r.parseResponse(buf)
	if err != nil {
		return nil, err
	}
	if r.Function.IsWrite() {
		return body[2:], nil
	}
	return body[3:], nil
}

// ParseU16 decodes a read response as big-endian u16 values, capped at
// r.Count.
func (r *Request) ParseU16(buf []byte) ([]uint16, error) {
	data, err := r.ParseSlice(buf)
	if err != nil {
		return nil, err
	}
	out := make([]uint16, 0, r.Count)
	for pos := 0; pos+2 <= len(data) && len(out) < int(r.Count); pos += 2 {
		out = append(out, binary.BigEndian.Uint16(data[pos:pos+2]))
	}
	return out, nil
}

// ParseI16 decodes a read response as big-endian two's-complement i16
// values, capped at r.Count.
func (r *Request) ParseI16(buf []byte) ([]int16, error) {
	data, err := r.ParseSlice(buf)
	if err != nil {
		return nil, err
	}
	out := make([]int16, 0, r.Count)
	for pos := 0; pos+2 <= len(data) && len(out) < int(r.Count); pos += 2 {
		out = append(out, int16(binary.BigEndian.Uint16(data[pos:pos+2])))
	}
	return out, nil
}

// ParseU32 decodes a read response as big-endian, high-word-first u32
// values spanning two consecutive registers, capped at r.Count.
func (r *Request) ParseU32(buf []byte) ([]uint32, error) {
	data, err := r.ParseSlice(buf)
	if err != nil {
		return nil, err
	}
	out := make([]uint32, 0, r.Count)
	for pos := 0; pos+4 <= len(data) && len(out) < int(r.Count); pos += 4 {
		out = append(out, binary.BigEndian.Uint32(data[pos:pos+4]))
	}
	return out, nil
}

// ParseI32 decodes a read response the same way as ParseU32, as signed
// two's-complement values.
func (r *Request) ParseI32(buf []byte) ([]int32, error) {
	data, err := r.ParseSlice(buf)
	if err != nil {
		return nil, err
	}
	out := make([]int32, 0, r.Count)
	for pos := 0; pos+4 <= len(data) && len(out) < int(r.Count); pos += 4 {
		out = append(out, int32(binary.BigEndian.Uint32(data[pos:pos+4])))
	}
	return out, nil
}

// ParseF32 decodes a read response the same way as ParseU32, reinterpreting
// each 32-bit word as IEEE-754 binary32.
func (r *Request) ParseF32(buf []byte) ([]float32, error) {
	words, err := r.ParseU32(buf)
	if err != nil {
		return nil, err
	}
	out := make([]float32, len(words))
	for i, w := range words {
		out[i] = math.Float32frombits(w)
	}
	return out, nil
}

// ParseBool decodes a read-coils/read-discretes response into one bool
// per bit, LSB-first within each byte, capped at r.Count.
func (r *Request) ParseBool(buf []byte) ([]bool, error) {
	body, err := r.parseResponse(buf)
	if err != nil {
		return nil, err
	}
	out := make([]bool, 0, r.Count)
	for _, b := range body[3:] {
		for i := 0; i < 8 && len(out) < int(r.Count); i++ {
			out = append(out, (b>>uint(i))&1 == 1)
		}
	}
	return out, nil
}

// ParseBoolU8 decodes the same bits ParseBool does, as 0/1 bytes instead
// of bools.
func (r *Request) ParseBoolU8(buf []byte) ([]byte, error) {
	body, err := r.parseResponse(buf)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, r.Count)
	for _, b := range body[3:] {
		for i := 0; i < 8 && len(out) < int(r.Count); i++ {
			out = append(out, (b>>uint(i))&1)
		}
	}
	return out, nil
}

// ParseString decodes a read response's payload as a NUL-terminated (or
// full-length, if no NUL is present) UTF-8 string.
func (r *Request) ParseString(buf []byte) (string, error) {
	data, err := r.ParseSlice(buf)
	if err != nil {
		return "", err
	}
	n := bytes.IndexByte(data, 0)
	if n < 0 {
		n = len(data)
	}
	if !utf8.Valid(data[:n]) {
		return "", mberrors.ErrUtf8Error
	}
	return string(data[:n]), nil
}

// ParseStringUTF8 decodes a read response's entire payload as UTF-8,
// without truncating at a NUL byte.
func (r *Request) ParseStringUTF8(buf []byte) (string, error) {
	data, err := r.ParseSlice(buf)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(data) {
		return "", mberrors.ErrUtf8Error
	}
	return string(data), nil
}
