package store

import (
	"math"
	"sync"

	"github.com/coreprotocols/gomodbus/mberrors"
)

// Default capacities, matching the "small" and "full" presets the
// original context provides.
const (
	SmallCapacity = 1000
	FullCapacity  = 10000
)

// Array is the default bounded-array backing store: four fixed-capacity
// slices, one per logical address space, guarded by a single RWMutex.
// Construct with New or the Small/Full presets.
type Array struct {
	mu sync.RWMutex

	coils     []bool
	discretes []bool
	inputs    []uint16
	holdings  []uint16
}

// Option configures an Array at construction time.
type Option func(*config)

type config struct {
	coilCap     int
	discreteCap int
	inputCap    int
	holdingCap  int
}

// WithCoilCapacity overrides the number of addressable coils.
func WithCoilCapacity(n int) Option { return func(c *config) { c.coilCap = n } }

// WithDiscreteCapacity overrides the number of addressable discretes.
func WithDiscreteCapacity(n int) Option { return func(c *config) { c.discreteCap = n } }

// WithInputCapacity overrides the number of addressable input registers.
func WithInputCapacity(n int) Option { return func(c *config) { c.inputCap = n } }

// WithHoldingCapacity overrides the number of addressable holding
// registers.
func WithHoldingCapacity(n int) Option { return func(c *config) { c.holdingCap = n } }

// New builds an Array store. Unset capacities default to the "full"
// preset (10000).
func New(opts ...Option) *Array {
	cfg := config{coilCap: FullCapacity, discreteCap: FullCapacity, inputCap: FullCapacity, holdingCap: FullCapacity}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Array{
		coils:     make([]bool, cfg.coilCap),
		discretes: make([]bool, cfg.discreteCap),
		inputs:    make([]uint16, cfg.inputCap),
		holdings:  make([]uint16, cfg.holdingCap),
	}
}

// Small returns an Array sized to the 1000-register "small" preset
// across all four spaces.
func Small() *Array {
	return New(
		WithCoilCapacity(SmallCapacity), WithDiscreteCapacity(SmallCapacity),
		WithInputCapacity(SmallCapacity), WithHoldingCapacity(SmallCapacity),
	)
}

// Full returns an Array sized to the 10000-register "full" preset across
// all four spaces.
func Full() *Array {
	return New()
}

func oobContext(space Space) error {
	return mberrors.New(mberrors.OOBContext, "register range exceeds "+space.String()+" capacity")
}

func (a *Array) Capacity(space Space) uint16 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	switch space {
	case Coils:
		return uint16(len(a.coils))
	case Discretes:
		return uint16(len(a.discretes))
	case Inputs:
		return uint16(len(a.inputs))
	case Holdings:
		return uint16(len(a.holdings))
	default:
		return 0
	}
}

// --- single-value accessors ---

func (a *Array) GetCoil(reg uint16) (bool, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if int(reg) >= len(a.coils) {
		return false, oobContext(Coils)
	}
	return a.coils[reg], nil
}

func (a *Array) SetCoil(reg uint16, v bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if int(reg) >= len(a.coils) {
		return oobContext(Coils)
	}
	a.coils[reg] = v
	return nil
}

func (a *Array) GetDiscrete(reg uint16) (bool, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if int(reg) >= len(a.discretes) {
		return false, oobContext(Discretes)
	}
	return a.discretes[reg], nil
}

func (a *Array) SetDiscrete(reg uint16, v bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if int(reg) >= len(a.discretes) {
		return oobContext(Discretes)
	}
	a.discretes[reg] = v
	return nil
}

func (a *Array) GetInput(reg uint16) (uint16, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if int(reg) >= len(a.inputs) {
		return 0, oobContext(Inputs)
	}
	return a.inputs[reg], nil
}

func (a *Array) SetInput(reg uint16, v uint16) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if int(reg) >= len(a.inputs) {
		return oobContext(Inputs)
	}
	a.inputs[reg] = v
	return nil
}

func (a *Array) GetHolding(reg uint16) (uint16, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if int(reg) >= len(a.holdings) {
		return 0, oobContext(Holdings)
	}
	return a.holdings[reg], nil
}

func (a *Array) SetHolding(reg uint16, v uint16) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if int(reg) >= len(a.holdings) {
		return oobContext(Holdings)
	}
	a.holdings[reg] = v
	return nil
}

// --- bulk typed accessors ---

func (a *Array) GetCoilsBulk(reg, count uint16, out []bool) ([]bool, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if int(reg)+int(count) > len(a.coils) {
		return out, oobContext(Coils)
	}
	return append(out, a.coils[reg:int(reg)+int(count)]...), nil
}

func (a *Array) SetCoilsBulk(reg uint16, values []bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if int(reg)+len(values) > len(a.coils) {
		return oobContext(Coils)
	}
	copy(a.coils[reg:], values)
	return nil
}

func (a *Array) GetDiscretesBulk(reg, count uint16, out []bool) ([]bool, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if int(reg)+int(count) > len(a.discretes) {
		return out, oobContext(Discretes)
	}
	return append(out, a.discretes[reg:int(reg)+int(count)]...), nil
}

func (a *Array) GetInputsBulk(reg, count uint16, out []uint16) ([]uint16, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if int(reg)+int(count) > len(a.inputs) {
		return out, oobContext(Inputs)
	}
	return append(out, a.inputs[reg:int(reg)+int(count)]...), nil
}

func (a *Array) GetHoldingsBulk(reg, count uint16, out []uint16) ([]uint16, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if int(reg)+int(count) > len(a.holdings) {
		return out, oobContext(Holdings)
	}
	return append(out, a.holdings[reg:int(reg)+int(count)]...), nil
}

func (a *Array) SetHoldingsBulk(reg uint16, values []uint16) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if int(reg)+len(values) > len(a.holdings) {
		return oobContext(Holdings)
	}
	copy(a.holdings[reg:], values)
	return nil
}

// --- packed-byte accessors ---

// packBits packs count bools starting at reg from src, LSB-first within
// each output byte, ceil(count/8) bytes total, and returns them.
func packBits(src []bool, reg, count uint16) []byte {
	nbytes := (int(count) + 7) / 8
	packed := make([]byte, nbytes)
	for i := 0; i < int(count); i++ {
		if src[int(reg)+i] {
			packed[i/8] |= 1 << uint(i%8)
		}
	}
	return packed
}

func (a *Array) GetCoilsAsU8(reg, count uint16, out []byte) ([]byte, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if int(reg)+int(count) > len(a.coils) {
		return out, oobContext(Coils)
	}
	return append(out, packBits(a.coils, reg, count)...), nil
}

func (a *Array) GetDiscretesAsU8(reg, count uint16, out []byte) ([]byte, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if int(reg)+int(count) > len(a.discretes) {
		return out, oobContext(Discretes)
	}
	return append(out, packBits(a.discretes, reg, count)...), nil
}

// unpackBits writes exactly count bits from packed (LSB-first within each
// byte) into dst starting at reg. Extra bits in the final packed byte are
// ignored, per §4.3.
func unpackBits(dst []bool, reg, count uint16, packed []byte) {
	for i := 0; i < int(count); i++ {
		bit := packed[i/8]>>uint(i%8)&1 == 1
		dst[int(reg)+i] = bit
	}
}

func (a *Array) SetCoilsFromU8(reg, count uint16, packed []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if int(reg)+int(count) > len(a.coils) {
		return oobContext(Coils)
	}
	needed := (int(count) + 7) / 8
	if len(packed) < needed {
		return mberrors.New(mberrors.OOB, "packed byte slice too short for count")
	}
	unpackBits(a.coils, reg, count, packed)
	return nil
}

func (a *Array) SetDiscretesFromU8(reg, count uint16, packed []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if int(reg)+int(count) > len(a.discretes) {
		return oobContext(Discretes)
	}
	needed := (int(count) + 7) / 8
	if len(packed) < needed {
		return mberrors.New(mberrors.OOB, "packed byte slice too short for count")
	}
	unpackBits(a.discretes, reg, count, packed)
	return nil
}

func (a *Array) GetInputsAsU8(reg, count uint16, out []byte) ([]byte, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if int(reg)+int(count) > len(a.inputs) {
		return out, oobContext(Inputs)
	}
	for i := 0; i < int(count); i++ {
		v := a.inputs[int(reg)+i]
		out = append(out, byte(v>>8), byte(v))
	}
	return out, nil
}

func (a *Array) GetHoldingsAsU8(reg, count uint16, out []byte) ([]byte, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if int(reg)+int(count) > len(a.holdings) {
		return out, oobContext(Holdings)
	}
	for i := 0; i < int(count); i++ {
		v := a.holdings[int(reg)+i]
		out = append(out, byte(v>>8), byte(v))
	}
	return out, nil
}

func (a *Array) SetHoldingsFromU8(reg uint16, packed []byte) error {
	if len(packed)%2 != 0 {
		return mberrors.New(mberrors.OOB, "odd byte count cannot fill whole registers")
	}
	count := len(packed) / 2
	a.mu.Lock()
	defer a.mu.Unlock()
	if int(reg)+count > len(a.holdings) {
		return oobContext(Holdings)
	}
	for i := 0; i < count; i++ {
		a.holdings[int(reg)+i] = uint16(packed[i*2])<<8 | uint16(packed[i*2+1])
	}
	return nil
}

// --- multi-word big-endian numeric views ---

func (a *Array) GetInputsAsU32(reg uint16) (uint32, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if int(reg)+2 > len(a.inputs) {
		return 0, oobContext(Inputs)
	}
	return uint32(a.inputs[reg])<<16 | uint32(a.inputs[reg+1]), nil
}

func (a *Array) GetInputsAsU64(reg uint16) (uint64, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if int(reg)+4 > len(a.inputs) {
		return 0, oobContext(Inputs)
	}
	return uint64(a.inputs[reg])<<48 | uint64(a.inputs[reg+1])<<32 |
		uint64(a.inputs[reg+2])<<16 | uint64(a.inputs[reg+3]), nil
}

func (a *Array) GetInputsAsF32(reg uint16) (float32, error) {
	bits, err := a.GetInputsAsU32(reg)
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(bits), nil
}

func (a *Array) GetHoldingsAsU32(reg uint16) (uint32, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if int(reg)+2 > len(a.holdings) {
		return 0, oobContext(Holdings)
	}
	return uint32(a.holdings[reg])<<16 | uint32(a.holdings[reg+1]), nil
}

func (a *Array) SetHoldingsAsU32(reg uint16, v uint32) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if int(reg)+2 > len(a.holdings) {
		return oobContext(Holdings)
	}
	a.holdings[reg] = uint16(v >> 16)
	a.holdings[reg+1] = uint16(v)
	return nil
}

func (a *Array) GetHoldingsAsU64(reg uint16) (uint64, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if int(reg)+4 > len(a.holdings) {
		return 0, oobContext(Holdings)
	}
	return uint64(a.holdings[reg])<<48 | uint64(a.holdings[reg+1])<<32 |
		uint64(a.holdings[reg+2])<<16 | uint64(a.holdings[reg+3]), nil
}

func (a *Array) SetHoldingsAsU64(reg uint16, v uint64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if int(reg)+4 > len(a.holdings) {
		return oobContext(Holdings)
	}
	a.holdings[reg] = uint16(v >> 48)
	a.holdings[reg+1] = uint16(v >> 32)
	a.holdings[reg+2] = uint16(v >> 16)
	a.holdings[reg+3] = uint16(v)
	return nil
}

func (a *Array) GetHoldingsAsF32(reg uint16) (float32, error) {
	bits, err := a.GetHoldingsAsU32(reg)
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(bits), nil
}

func (a *Array) SetHoldingsAsF32(reg uint16, v float32) error {
	return a.SetHoldingsAsU32(reg, math.Float32bits(v))
}

// --- clear ---

func (a *Array) ClearAll() {
	a.ClearCoils()
	a.ClearDiscretes()
	a.ClearInputs()
	a.ClearHoldings()
}

func (a *Array) ClearCoils() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i := range a.coils {
		a.coils[i] = false
	}
}

func (a *Array) ClearDiscretes() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i := range a.discretes {
		a.discretes[i] = false
	}
}

func (a *Array) ClearInputs() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i := range a.inputs {
		a.inputs[i] = 0
	}
}

func (a *Array) ClearHoldings() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i := range a.holdings {
		a.holdings[i] = 0
	}
}

var _ Store = (*Array)(nil)
