package frame

import (
	"encoding/binary"

	"github.com/coreprotocols/gomodbus/mberrors"
	"github.com/coreprotocols/gomodbus/mbproto"
)

// GuessRequestLen inspects the first few bytes of an inbound request and
// returns the total frame length, so a stream reader knows how many bytes
// to consume before handing the frame to server.Frame. buf need only
// contain enough leading bytes to make the determination (6 for TCP/UDP;
// for RTU 2, or 7 for FC 15/16; up through the terminating CRLF for ASCII).
func GuessRequestLen(buf []byte, proto mbproto.Proto) (int, error) {
	switch proto {
	case mbproto.TcpUdp:
		if len(buf) < 6 {
			return 0, mberrors.New(mberrors.FrameBroken, "tcp header too short to guess length")
		}
		protocolID := binary.BigEndian.Uint16(buf[2:4])
		if protocolID != 0 {
			return 0, mberrors.New(mberrors.FrameBroken, "tcp protocol id is not 0")
		}
		length := binary.BigEndian.Uint16(buf[4:6])
		return 6 + int(length), nil

	case mbproto.Rtu:
		if len(buf) < 2 {
			return 0, mberrors.New(mberrors.FrameBroken, "rtu header too short to guess length")
		}
		fc := buf[1]
		switch {
		case fc >= 1 && fc <= 6:
			return 8, nil
		case fc == 0x0F || fc == 0x10:
			if len(buf) < 7 {
				return 0, mberrors.New(mberrors.FrameBroken, "rtu bulk-write header too short")
			}
			byteCount := int(buf[6])
			return 9 + byteCount, nil
		default:
			// Unsupported function code: still framed as a minimal
			// request so the caller can read it and let Frame.Parse
			// reject it with IllegalFunction.
			return 8, nil
		}

	case mbproto.Ascii:
		idx := IndexCRLF(buf)
		if idx < 0 {
			return 0, mberrors.New(mberrors.FrameBroken, "ascii frame has no CRLF terminator yet")
		}
		return idx + 2, nil

	default:
		return 0, mberrors.New(mberrors.FrameBroken, "unknown protocol")
	}
}
