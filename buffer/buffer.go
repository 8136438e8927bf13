// Package buffer provides a single interface over a growable heap buffer
// and a pre-allocated fixed-capacity buffer, so the server and client
// packages can run identically whether or not the target allocates.
package buffer

import "github.com/coreprotocols/gomodbus/mberrors"

// Buffer is the uniform push/extend/slice interface shared by Dynamic and
// Fixed. No mutating method ever panics; capacity exhaustion is reported
// as mberrors.OOB.
type Buffer interface {
	// Push appends a single byte.
	Push(b byte) error
	// Extend appends all of other.
	Extend(other []byte) error
	// Len returns the current length.
	Len() int
	// IsEmpty reports whether Len() == 0.
	IsEmpty() bool
	// Clear truncates to zero length without releasing capacity.
	Clear()
	// AsSlice returns the current contents. The slice is only valid until
	// the next mutating call.
	AsSlice() []byte
	// Replace overwrites the byte at index, which must be < Len().
	Replace(index int, b byte) error
	// CutEnd removes the trailing n bytes (or all of them if n >= Len()).
	// fill is unused for byte buffers but kept to mirror the generic
	// vector trait this is grounded on.
	CutEnd(n int, fill byte)
}

// Dynamic is a Buffer backed by a growable []byte. It never runs out of
// capacity; only Replace with an out-of-range index reports OOB.
type Dynamic struct {
	data []byte
}

// NewDynamic returns an empty Dynamic buffer, optionally pre-sized via
// capacity hint.
func NewDynamic(capacityHint int) *Dynamic {
	return &Dynamic{data: make([]byte, 0, capacityHint)}
}

func (d *Dynamic) Push(b byte) error {
	d.data = append(d.data, b)
	return nil
}

func (d *Dynamic) Extend(other []byte) error {
	d.data = append(d.data, other...)
	return nil
}

func (d *Dynamic) Len() int { return len(d.data) }

func (d *Dynamic) IsEmpty() bool { return len(d.data) == 0 }

func (d *Dynamic) Clear() { d.data = d.data[:0] }

func (d *Dynamic) AsSlice() []byte { return d.data }

func (d *Dynamic) Replace(index int, b byte) error {
	if index < 0 || index >= len(d.data) {
		return mberrors.New(mberrors.OOB, "replace index out of range")
	}
	d.data[index] = b
	return nil
}

func (d *Dynamic) CutEnd(n int, fill byte) {
	_ = fill
	if n >= len(d.data) {
		d.data = d.data[:0]
		return
	}
	d.data = d.data[:len(d.data)-n]
}

// Fixed is a Buffer backed by a caller-supplied fixed-length array. Push,
// Extend, and Replace fail with mberrors.OOB once capacity is exhausted.
type Fixed struct {
	data []byte
	n    int
}

// NewFixed wraps storage (whose length is the buffer's capacity) as an
// initially-empty Fixed buffer.
func NewFixed(storage []byte) *Fixed {
	return &Fixed{data: storage, n: 0}
}

func (f *Fixed) Push(b byte) error {
	if f.n >= len(f.data) {
		return mberrors.New(mberrors.OOB, "fixed buffer full")
	}
	f.data[f.n] = b
	f.n++
	return nil
}

func (f *Fixed) Extend(other []byte) error {
	if f.n+len(other) > len(f.data) {
		return mberrors.New(mberrors.OOB, "fixed buffer capacity exceeded")
	}
	copy(f.data[f.n:], other)
	f.n += len(other)
	return nil
}

func (f *Fixed) Len() int { return f.n }

func (f *Fixed) IsEmpty() bool { return f.n == 0 }

func (f *Fixed) Clear() { f.n = 0 }

func (f *Fixed) AsSlice() []byte { return f.data[:f.n] }

func (f *Fixed) Replace(index int, b byte) error {
	if index < 0 || index >= f.n {
		return mberrors.New(mberrors.OOB, "replace index out of range")
	}
	f.data[index] = b
	return nil
}

func (f *Fixed) CutEnd(n int, fill byte) {
	_ = fill
	if n >= f.n {
		f.n = 0
		return
	}
	f.n -= n
}
