package server

import (
	"encoding/binary"

	"github.com/coreprotocols/gomodbus/buffer"
	"github.com/coreprotocols/gomodbus/frame"
	"github.com/coreprotocols/gomodbus/mberrors"
	"github.com/coreprotocols/gomodbus/mbproto"
	"github.com/coreprotocols/gomodbus/store"
)

// FrameState tracks where a Frame sits in its New -> Parse ->
// (ProcessRead|ProcessWrite) -> FinalizeResponse lifecycle. Calling a
// stage out of order is a programmer error and returns an error rather
// than panicking.
type FrameState int

const (
	StateNew FrameState = iota
	StateParsed
	StateProcessed
	StateFinalized
)

func (s FrameState) String() string {
	switch s {
	case StateNew:
		return "New"
	case StateParsed:
		return "Parsed"
	case StateProcessed:
		return "Processed"
	case StateFinalized:
		return "Finalized"
	default:
		return "Unknown"
	}
}

// Changes previews the store range a pending write will touch, so a
// caller can audit or mirror a write before it lands (or, via the
// external-write hooks below, decide to serve it from somewhere other
// than the local Store entirely).
type Changes struct {
	Space store.Space
	Start uint16
	Count uint16
}

// Frame is the server-side request/response state machine (C4): it owns
// one request from raw wire bytes through to a finalized response frame,
// across all three framing variants. It never blocks, and nothing after
// Parse reads the input buffer, so callers can reuse it once Parse returns.
type Frame struct {
	proto mbproto.Proto
	state FrameState

	unit      byte
	broadcast bool

	transactionID uint16 // TCP/UDP only

	function       mbproto.Function
	respondingToFn byte // function byte the response echoes, exception bit included on error

	startRegister uint16
	count         uint16

	writeBits  []bool
	writeWords []uint16

	readOnly           bool
	processingRequired bool
	responseRequired   bool

	changes    Changes
	hasChanges bool

	pdu []byte // function byte + data, post envelope validation
	err error

	pendingBody *responseBody

	output buffer.Buffer
}

// New builds a Frame for one inbound wire message. raw is the complete
// message as received: for TCP/UDP this is the MBAP header followed by
// the PDU; for RTU it is unit id, PDU, and CRC trailer; for ASCII it is
// the ':'-delimited hex envelope including the trailing LRC byte and
// CRLF. output receives the finalized response bytes (nothing is written
// to it before FinalizeResponse).
func New(proto mbproto.Proto, raw []byte, output buffer.Buffer) *Frame {
	return &Frame{proto: proto, state: StateNew, output: output, pdu: raw}
}

// State reports the Frame's current lifecycle stage.
func (f *Frame) State() FrameState { return f.state }

// Unit returns the unit identifier this frame addresses.
func (f *Frame) Unit() byte { return f.unit }

// IsBroadcast reports whether this frame addresses every device on the
// bus, per mbproto.IsBroadcast.
func (f *Frame) IsBroadcast() bool { return f.broadcast }

// Function returns the parsed function code. Only meaningful once State
// is at least StateParsed.
func (f *Frame) Function() mbproto.Function { return f.function }

// Err returns the fault recorded during Parse or processing, nil if none.
func (f *Frame) Err() error { return f.err }

// Changes reports the store range a pending write touches and whether
// one is pending; false once the frame has finished processing or never
// represented a write in the first place.
func (f *Frame) Changes() (Changes, bool) {
	return f.changes, f.hasChanges && f.state == StateParsed
}

// IsReadOnly reports whether f's function never mutates a store, valid
// once State is at least StateParsed.
func (f *Frame) IsReadOnly() bool { return f.readOnly }

// ProcessingRequired reports whether the caller still needs to invoke
// ProcessRead/ProcessWrite (or the external-hook equivalents): false
// when Parse already rejected the frame with a wire exception, since
// there is nothing left to execute against a store.
func (f *Frame) ProcessingRequired() bool { return f.processingRequired }

// ResponseRequired reports whether FinalizeResponse will actually write
// bytes: false for broadcast frames, which never get a reply.
func (f *Frame) ResponseRequired() bool { return f.responseRequired }

// Parse validates the envelope (checksum/header) for f's protocol,
// extracts the unit id and function code, and decodes the function's
// fixed fields (register/count/values). It never returns a Go error for
// a well-formed-but-invalid-content frame (wrong function, bad count,
// exception-worthy data) — those are recorded on f.err and surfaced
// through FinalizeResponse as an exception response. A Go error is
// returned only when the envelope itself is unusable (truncated,
// checksum mismatch): there is no unit id to address a response to, so
// the caller should drop the frame rather than reply.
func (f *Frame) Parse() error {
	if f.state != StateNew {
		return mberrors.New(mberrors.FrameBroken, "Parse called out of order: state="+f.state.String())
	}

	pdu, err := f.parseEnvelope()
	if err != nil {
		return err
	}
	f.pdu = pdu

	if len(pdu) < 1 {
		return mberrors.New(mberrors.FrameBroken, "empty pdu after envelope")
	}
	f.broadcast = mbproto.IsBroadcast(f.unit)

	fn, ok := mbproto.ParseFunction(pdu[0])
	if !ok {
		f.respondingToFn = pdu[0] | mbproto.ExceptionBit
		f.err = mberrors.New(mberrors.IllegalFunction, "unsupported function code")
		f.responseRequired = !f.broadcast
		f.state = StateParsed
		return nil
	}
	f.function = fn
	f.respondingToFn = fn.Byte()
	f.readOnly = fn.IsRead()
	f.responseRequired = !f.broadcast

	if fn.IsRead() {
		f.parseReadBody(pdu[1:])
	} else {
		f.parseWriteBody(pdu[1:])
	}

	// Broadcast reads are dropped before processing: a slave must not
	// touch the store (or real hardware behind an external-read hook) on
	// behalf of a request nobody will see the response to.
	f.processingRequired = f.err == nil && !(f.broadcast && fn.IsRead())
	f.state = StateParsed
	return nil
}

// parseEnvelope strips the protocol-specific header/checksum from the
// raw frame and returns the bare PDU (function byte + data), recording
// the unit id and, for TCP/UDP, the transaction id. A non-nil error
// means the frame could not be trusted at all.
func (f *Frame) parseEnvelope() ([]byte, error) {
	raw := f.pdu
	switch f.proto {
	case mbproto.TcpUdp:
		if len(raw) < 8 {
			return nil, mberrors.New(mberrors.FrameBroken, "tcp frame shorter than mbap header + function")
		}
		f.transactionID = binary.BigEndian.Uint16(raw[0:2])
		protocolID := binary.BigEndian.Uint16(raw[2:4])
		length := binary.BigEndian.Uint16(raw[4:6])
		if protocolID != 0 {
			return nil, mberrors.New(mberrors.FrameBroken, "non-zero mbap protocol id")
		}
		if int(length) < mbproto.TCPMinLength || int(length) > mbproto.TCPMaxLength || 6+int(length) != len(raw) {
			return nil, mberrors.New(mberrors.FrameBroken, "mbap length field does not match frame size")
		}
		f.unit = raw[6]
		return raw[7:], nil

	case mbproto.Rtu:
		if len(raw) < 4 {
			return nil, mberrors.New(mberrors.FrameBroken, "rtu frame shorter than unit+fn+crc")
		}
		if !frame.VerifyCRC16(raw) {
			return nil, mberrors.New(mberrors.FrameCRCError, "rtu crc mismatch")
		}
		f.unit = raw[0]
		return raw[1 : len(raw)-2], nil

	case mbproto.Ascii:
		decoded, err := frame.ParseASCII(raw)
		if err != nil {
			return nil, err
		}
		if len(decoded) < 3 {
			return nil, mberrors.New(mberrors.FrameBroken, "ascii frame shorter than unit+fn+lrc")
		}
		if !frame.VerifyLRC(decoded) {
			return nil, mberrors.New(mberrors.FrameCRCError, "ascii lrc mismatch")
		}
		f.unit = decoded[0]
		return decoded[1 : len(decoded)-1], nil

	default:
		return nil, mberrors.New(mberrors.FrameBroken, "unknown protocol")
	}
}

// parseReadBody decodes the common "start register, count" read request
// layout shared by GetCoils/GetDiscretes/GetHoldings/GetInputs and
// validates count against the function's wire bound.
func (f *Frame) parseReadBody(data []byte) {
	if len(data) != 4 {
		f.fail(mbproto.IllegalDataValue, "read request must carry 4 bytes of start+count")
		return
	}
	f.startRegister = binary.BigEndian.Uint16(data[0:2])
	f.count = binary.BigEndian.Uint16(data[2:4])

	maxCount := mbproto.MaxReadRegisterCount
	if f.function == mbproto.GetCoils || f.function == mbproto.GetDiscretes {
		maxCount = mbproto.MaxReadBitCount
	}
	if f.count == 0 || int(f.count) > maxCount {
		f.fail(mbproto.IllegalDataValue, "read count outside the function's wire bound")
	}
}

func (f *Frame) parseWriteBody(data []byte) {
	switch f.function {
	case mbproto.SetCoil:
		if len(data) != 4 {
			f.fail(mbproto.IllegalDataValue, "write-coil request must carry 4 bytes")
			return
		}
		f.startRegister = binary.BigEndian.Uint16(data[0:2])
		value := binary.BigEndian.Uint16(data[2:4])
		if value != 0x0000 && value != 0xFF00 {
			f.fail(mbproto.IllegalDataValue, "coil value must be 0x0000 or 0xFF00")
			return
		}
		f.count = 1
		f.writeBits = []bool{value == 0xFF00}
		f.changes = Changes{Space: store.Coils, Start: f.startRegister, Count: 1}
		f.hasChanges = true

	case mbproto.SetHolding:
		if len(data) != 4 {
			f.fail(mbproto.IllegalDataValue, "write-register request must carry 4 bytes")
			return
		}
		f.startRegister = binary.BigEndian.Uint16(data[0:2])
		f.count = 1
		f.writeWords = []uint16{binary.BigEndian.Uint16(data[2:4])}
		f.changes = Changes{Space: store.Holdings, Start: f.startRegister, Count: 1}
		f.hasChanges = true

	case mbproto.SetCoilsBulk:
		if len(data) < 5 {
			f.fail(mbproto.IllegalDataValue, "bulk coil write request too short")
			return
		}
		f.startRegister = binary.BigEndian.Uint16(data[0:2])
		f.count = binary.BigEndian.Uint16(data[2:4])
		byteCount := data[4]
		wantBytes := (int(f.count) + 7) / 8
		if f.count == 0 || int(f.count) > mbproto.MaxWriteCoilCount ||
			int(byteCount) != wantBytes || len(data) != 5+wantBytes {
			f.fail(mbproto.IllegalDataValue, "bulk coil write count/byte-count mismatch")
			return
		}
		f.writeBits = make([]bool, f.count)
		for i := 0; i < int(f.count); i++ {
			f.writeBits[i] = data[5+i/8]>>uint(i%8)&1 == 1
		}
		f.changes = Changes{Space: store.Coils, Start: f.startRegister, Count: f.count}
		f.hasChanges = true

	case mbproto.SetHoldingsBulk:
		if len(data) < 5 {
			f.fail(mbproto.IllegalDataValue, "bulk register write request too short")
			return
		}
		f.startRegister = binary.BigEndian.Uint16(data[0:2])
		f.count = binary.BigEndian.Uint16(data[2:4])
		byteCount := data[4]
		if f.count == 0 || int(f.count) > mbproto.MaxWriteRegisterCount ||
			int(byteCount) != int(f.count)*2 || len(data) != 5+int(byteCount) {
			f.fail(mbproto.IllegalDataValue, "bulk register write count/byte-count mismatch")
			return
		}
		f.writeWords = make([]uint16, f.count)
		for i := 0; i < int(f.count); i++ {
			f.writeWords[i] = binary.BigEndian.Uint16(data[5+i*2 : 7+i*2])
		}
		f.changes = Changes{Space: store.Holdings, Start: f.startRegister, Count: f.count}
		f.hasChanges = true
	}
}

func (f *Frame) fail(code mbproto.ErrorCode, detail string) {
	f.respondingToFn = f.function.Byte() | mbproto.ExceptionBit
	f.err = mberrors.New(mberrors.FromWireCode(byte(code)), detail)
}

// responseBody is returned by ProcessRead/ProcessWrite and consumed by
// FinalizeResponse to build the PDU bytes.
type responseBody struct {
	bits  []bool // read-coils/discretes results
	words []uint16 // read-holdings/inputs results
}

// ProcessRead executes a parsed read-function frame against s and
// records the result for FinalizeResponse. Calling it on a write frame
// returns mberrors.ReadCallOnWriteFrame without touching s.
func (f *Frame) ProcessRead(s store.Store) error {
	if f.state != StateParsed {
		return mberrors.New(mberrors.FrameBroken, "ProcessRead called out of order: state="+f.state.String())
	}
	if !f.function.IsRead() {
		return mberrors.ErrReadCallOnWriteFrame
	}
	f.state = StateProcessed
	if f.err != nil {
		return nil // already failed during Parse; nothing to execute
	}
	if f.broadcast {
		return nil // broadcast reads are dropped before processing
	}

	var body responseBody
	var err error
	switch f.function {
	case mbproto.GetCoils:
		body.bits, err = s.GetCoilsBulk(f.startRegister, f.count, nil)
	case mbproto.GetDiscretes:
		body.bits, err = s.GetDiscretesBulk(f.startRegister, f.count, nil)
	case mbproto.GetHoldings:
		body.words, err = s.GetHoldingsBulk(f.startRegister, f.count, nil)
	case mbproto.GetInputs:
		body.words, err = s.GetInputsBulk(f.startRegister, f.count, nil)
	}
	if err != nil {
		f.respondingToFn = f.function.Byte() | mbproto.ExceptionBit
		f.err = mberrors.New(mberrors.IllegalDataAddress, err.Error())
		return nil
	}
	f.pendingBody = &body
	return nil
}

// ProcessWrite executes a parsed write-function frame against s.
// Calling it on a read frame returns mberrors.WriteCallOnReadFrame
// without touching s. Broadcast writes are still applied locally (every
// device on the bus is expected to apply them identically) even though
// no response will be sent.
func (f *Frame) ProcessWrite(s store.Store) error {
	if f.state != StateParsed {
		return mberrors.New(mberrors.FrameBroken, "ProcessWrite called out of order: state="+f.state.String())
	}
	if !f.function.IsWrite() {
		return mberrors.ErrWriteCallOnReadFrame
	}
	f.state = StateProcessed
	if f.err != nil {
		return nil
	}

	var err error
	switch f.function {
	case mbproto.SetCoil:
		err = s.SetCoil(f.startRegister, f.writeBits[0])
	case mbproto.SetHolding:
		err = s.SetHolding(f.startRegister, f.writeWords[0])
	case mbproto.SetCoilsBulk:
		err = s.SetCoilsBulk(f.startRegister, f.writeBits)
	case mbproto.SetHoldingsBulk:
		err = s.SetHoldingsBulk(f.startRegister, f.writeWords)
	}
	if err != nil {
		f.respondingToFn = f.function.Byte() | mbproto.ExceptionBit
		f.err = mberrors.New(mberrors.IllegalDataAddress, err.Error())
	}
	return nil
}

// ExternalRead reports the space/start/count a pending read targets, for
// a caller that wants to serve the value from somewhere other than a
// store.Store (a cache, a remote device, a computed value). ok is false
// if the frame isn't a pending, still-unprocessed read.
func (f *Frame) ExternalRead() (space store.Space, start, count uint16, ok bool) {
	if f.state != StateParsed || !f.function.IsRead() || f.err != nil || f.broadcast {
		return 0, 0, 0, false
	}
	space = store.Holdings
	switch f.function {
	case mbproto.GetCoils:
		space = store.Coils
	case mbproto.GetDiscretes:
		space = store.Discretes
	case mbproto.GetInputs:
		space = store.Inputs
	}
	return space, f.startRegister, f.count, true
}

// CompleteExternalRead finishes a read that ExternalRead handed off,
// supplying exactly one of bits or words depending on the frame's
// address space. A non-nil readErr is reported as IllegalDataAddress.
func (f *Frame) CompleteExternalRead(bits []bool, words []uint16, readErr error) error {
	if f.state != StateParsed || !f.function.IsRead() {
		return mberrors.New(mberrors.FrameBroken, "CompleteExternalRead called out of order")
	}
	f.state = StateProcessed
	if f.err != nil {
		return nil
	}
	if readErr != nil {
		f.respondingToFn = f.function.Byte() | mbproto.ExceptionBit
		f.err = mberrors.New(mberrors.IllegalDataAddress, readErr.Error())
		return nil
	}
	f.pendingBody = &responseBody{bits: bits, words: words}
	return nil
}

// ExternalWrite reports the space/start/count and values a pending write
// targets, for a caller that wants to apply it somewhere other than a
// store.Store. ok is false if the frame isn't a pending, still-
// unprocessed write.
func (f *Frame) ExternalWrite() (space store.Space, start uint16, bits []bool, words []uint16, ok bool) {
	if f.state != StateParsed || !f.function.IsWrite() || f.err != nil {
		return 0, 0, nil, nil, false
	}
	space = store.Holdings
	if f.function == mbproto.SetCoil || f.function == mbproto.SetCoilsBulk {
		space = store.Coils
	}
	return space, f.startRegister, f.writeBits, f.writeWords, true
}

// CompleteExternalWrite finishes a write that ExternalWrite handed off.
// A non-nil writeErr is reported as IllegalDataAddress.
func (f *Frame) CompleteExternalWrite(writeErr error) error {
	if f.state != StateParsed || !f.function.IsWrite() {
		return mberrors.New(mberrors.FrameBroken, "CompleteExternalWrite called out of order")
	}
	f.state = StateProcessed
	if f.err == nil && writeErr != nil {
		f.respondingToFn = f.function.Byte() | mbproto.ExceptionBit
		f.err = mberrors.New(mberrors.IllegalDataAddress, writeErr.Error())
	}
	return nil
}

// FinalizeResponse writes the complete response frame (envelope,
// checksum, and all) to f's output buffer. For a broadcast frame it
// writes nothing and returns (false, nil): there is never a response to
// a broadcast write. It is safe to call exactly once, after processing
// has run (or immediately after Parse, if Parse already recorded a
// fault).
func (f *Frame) FinalizeResponse() (bool, error) {
	skippedProcessing := f.broadcast && f.function.IsRead()
	if f.state != StateProcessed && f.err == nil && !skippedProcessing {
		return false, mberrors.New(mberrors.FrameBroken, "FinalizeResponse called before processing")
	}
	f.state = StateFinalized

	if f.broadcast {
		return false, nil
	}

	pdu := f.buildPDU()

	switch f.proto {
	case mbproto.TcpUdp:
		header := make([]byte, 7)
		binary.BigEndian.PutUint16(header[0:2], f.transactionID)
		binary.BigEndian.PutUint16(header[2:4], 0)
		binary.BigEndian.PutUint16(header[4:6], uint16(1+len(pdu)))
		header[6] = f.unit
		if err := f.output.Extend(header); err != nil {
			return false, err
		}
		if err := f.output.Extend(pdu); err != nil {
			return false, err
		}

	case mbproto.Rtu:
		body := append([]byte{f.unit}, pdu...)
		body = frame.AppendCRC16LE(body)
		if err := f.output.Extend(body); err != nil {
			return false, err
		}

	case mbproto.Ascii:
		body := append([]byte{f.unit}, pdu...)
		body = append(body, frame.LRC(body))
		if err := f.output.Extend(frame.EncodeASCII(body)); err != nil {
			return false, err
		}
	}
	return true, nil
}

func (f *Frame) buildPDU() []byte {
	if f.err != nil {
		kind, _ := mberrors.KindOf(f.err)
		code, ok := mberrors.ToWireCode(kind)
		if !ok {
			code = byte(mbproto.SlaveDeviceFailure)
		}
		return []byte{f.respondingToFn, code}
	}

	switch f.function {
	case mbproto.GetCoils, mbproto.GetDiscretes:
		packed := packBitsForResponse(f.pendingBody.bits)
		return append([]byte{f.respondingToFn, byte(len(packed))}, packed...)

	case mbproto.GetHoldings, mbproto.GetInputs:
		data := make([]byte, 0, 2*len(f.pendingBody.words))
		for _, w := range f.pendingBody.words {
			data = append(data, byte(w>>8), byte(w))
		}
		return append([]byte{f.respondingToFn, byte(len(data))}, data...)

	case mbproto.SetCoil:
		value := uint16(0x0000)
		if f.writeBits[0] {
			value = 0xFF00
		}
		return []byte{f.respondingToFn, byte(f.startRegister >> 8), byte(f.startRegister), byte(value >> 8), byte(value)}

	case mbproto.SetHolding:
		v := f.writeWords[0]
		return []byte{f.respondingToFn, byte(f.startRegister >> 8), byte(f.startRegister), byte(v >> 8), byte(v)}

	case mbproto.SetCoilsBulk, mbproto.SetHoldingsBulk:
		return []byte{
			f.respondingToFn,
			byte(f.startRegister >> 8), byte(f.startRegister),
			byte(f.count >> 8), byte(f.count),
		}

	default:
		return []byte{f.respondingToFn, byte(mbproto.IllegalFunction)}
	}
}

func packBitsForResponse(bits []bool) []byte {
	out := make([]byte, (len(bits)+7)/8)
	for i, b := range bits {
		if b {
			out[i/8] |= 1 << uint(i%8)
		}
	}
	return out
}
