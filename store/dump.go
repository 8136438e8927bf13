package store

import "github.com/coreprotocols/gomodbus/mberrors"

// Dump serializes every space into a single byte-addressed snapshot:
// packed coils, then packed discretes, then big-endian holdings, then
// big-endian inputs, each space's length stored ahead of its data. This
// mirrors the original context's full-context dump/restore (there built
// on a byte-addressed cell iterator) without replaying its exact offset
// layout, since that layout is an implementation detail rather than part
// of the wire protocol.
func (a *Array) Dump() []byte {
	a.mu.RLock()
	defer a.mu.RUnlock()

	var out []byte
	appendSpace := func(n int, emit func([]byte) []byte) {
		out = append(out, byte(n>>8), byte(n))
		out = emit(out)
	}
	appendSpace(len(a.coils), func(b []byte) []byte {
		return append(b, packBits(a.coils, 0, uint16(len(a.coils)))...)
	})
	appendSpace(len(a.discretes), func(b []byte) []byte {
		return append(b, packBits(a.discretes, 0, uint16(len(a.discretes)))...)
	})
	appendSpace(len(a.holdings), func(b []byte) []byte {
		for _, v := range a.holdings {
			b = append(b, byte(v>>8), byte(v))
		}
		return b
	})
	appendSpace(len(a.inputs), func(b []byte) []byte {
		for _, v := range a.inputs {
			b = append(b, byte(v>>8), byte(v))
		}
		return b
	})
	return out
}

// Restore loads a snapshot produced by Dump. The snapshot's per-space
// lengths must match this Array's configured capacities exactly.
func (a *Array) Restore(snapshot []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	readLen := func(b []byte) (int, []byte, error) {
		if len(b) < 2 {
			return 0, nil, mberrors.New(mberrors.FrameBroken, "truncated snapshot length prefix")
		}
		return int(b[0])<<8 | int(b[1]), b[2:], nil
	}

	n, rest, err := readLen(snapshot)
	if err != nil {
		return err
	}
	if n != len(a.coils) {
		return mberrors.New(mberrors.OOBContext, "snapshot coil capacity mismatch")
	}
	needed := (n + 7) / 8
	if len(rest) < needed {
		return mberrors.New(mberrors.FrameBroken, "truncated coil snapshot body")
	}
	unpackBits(a.coils, 0, uint16(n), rest[:needed])
	rest = rest[needed:]

	n, rest, err = readLen(rest)
	if err != nil {
		return err
	}
	if n != len(a.discretes) {
		return mberrors.New(mberrors.OOBContext, "snapshot discrete capacity mismatch")
	}
	needed = (n + 7) / 8
	if len(rest) < needed {
		return mberrors.New(mberrors.FrameBroken, "truncated discrete snapshot body")
	}
	unpackBits(a.discretes, 0, uint16(n), rest[:needed])
	rest = rest[needed:]

	n, rest, err = readLen(rest)
	if err != nil {
		return err
	}
	if n != len(a.holdings) {
		return mberrors.New(mberrors.OOBContext, "snapshot holding capacity mismatch")
	}
	if len(rest) < n*2 {
		return mberrors.New(mberrors.FrameBroken, "truncated holding snapshot body")
	}
	for i := 0; i < n; i++ {
		a.holdings[i] = uint16(rest[i*2])<<8 | uint16(rest[i*2+1])
	}
	rest = rest[n*2:]

	n, rest, err = readLen(rest)
	if err != nil {
		return err
	}
	if n != len(a.inputs) {
		return mberrors.New(mberrors.OOBContext, "snapshot input capacity mismatch")
	}
	if len(rest) < n*2 {
		return mberrors.New(mberrors.FrameBroken, "truncated input snapshot body")
	}
	for i := 0; i < n; i++ {
		a.inputs[i] = uint16(rest[i*2])<<8 | uint16(rest[i*2+1])
	}
	return nil
}
