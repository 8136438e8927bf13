package store

import "testing"

func TestArray_RoundTripSingleValues(t *testing.T) {
	s := New(WithCoilCapacity(16), WithDiscreteCapacity(16), WithInputCapacity(16), WithHoldingCapacity(16))

	if err := s.SetCoil(3, true); err != nil {
		t.Fatalf("SetCoil: %v", err)
	}
	got, err := s.GetCoil(3)
	if err != nil || !got {
		t.Fatalf("GetCoil = (%v, %v), want (true, nil)", got, err)
	}

	if err := s.SetHolding(7, 0xBEEF); err != nil {
		t.Fatalf("SetHolding: %v", err)
	}
	hv, err := s.GetHolding(7)
	if err != nil || hv != 0xBEEF {
		t.Fatalf("GetHolding = (%#04x, %v), want (0xbeef, nil)", hv, err)
	}
}

func TestArray_RoundTripU32U64F32(t *testing.T) {
	s := New(WithHoldingCapacity(8), WithInputCapacity(8))

	if err := s.SetHoldingsAsU32(0, 0x11223344); err != nil {
		t.Fatalf("SetHoldingsAsU32: %v", err)
	}
	vals, err := s.GetHoldingsBulk(0, 2, nil)
	if err != nil {
		t.Fatalf("GetHoldingsBulk: %v", err)
	}
	if vals[0] != 0x1122 || vals[1] != 0x3344 {
		t.Errorf("GetHoldingsBulk = %04x, want [1122 3344]", vals)
	}
	u32, err := s.GetHoldingsAsU32(0)
	if err != nil || u32 != 0x11223344 {
		t.Errorf("GetHoldingsAsU32 = (%#08x, %v), want (0x11223344, nil)", u32, err)
	}

	if err := s.SetHoldingsAsU64(0, 0x1122334455667788); err != nil {
		t.Fatalf("SetHoldingsAsU64: %v", err)
	}
	u64, err := s.GetHoldingsAsU64(0)
	if err != nil || u64 != 0x1122334455667788 {
		t.Errorf("GetHoldingsAsU64 = (%#016x, %v), want (0x1122334455667788, nil)", u64, err)
	}

	want := float32(3.14159)
	if err := s.SetHoldingsAsF32(0, want); err != nil {
		t.Fatalf("SetHoldingsAsF32: %v", err)
	}
	got, err := s.GetHoldingsAsF32(0)
	if err != nil || got != want {
		t.Errorf("GetHoldingsAsF32 = (%v, %v), want (%v, nil)", got, err, want)
	}
}

func TestArray_PackedBitsS1(t *testing.T) {
	// S1 scenario: coils 5, 7, 9 set.
	s := New(WithCoilCapacity(16))
	for _, c := range []uint16{5, 7, 9} {
		if err := s.SetCoil(c, true); err != nil {
			t.Fatalf("SetCoil(%d): %v", c, err)
		}
	}
	packed, err := s.GetCoilsAsU8(5, 5, nil)
	if err != nil {
		t.Fatalf("GetCoilsAsU8: %v", err)
	}
	if len(packed) != 1 || packed[0] != 0x15 {
		t.Errorf("GetCoilsAsU8(5,5) = % X, want [15]", packed)
	}
}

func TestArray_SetCoilsFromU8IgnoresTrailingBits(t *testing.T) {
	s := New(WithCoilCapacity(16))
	// 0xFF would set 8 bits, but count=5 should only apply the low 5.
	if err := s.SetCoilsFromU8(0, 5, []byte{0xFF}); err != nil {
		t.Fatalf("SetCoilsFromU8: %v", err)
	}
	for i := uint16(0); i < 5; i++ {
		v, _ := s.GetCoil(i)
		if !v {
			t.Errorf("coil %d should be set", i)
		}
	}
	for i := uint16(5); i < 8; i++ {
		v, _ := s.GetCoil(i)
		if v {
			t.Errorf("coil %d should not be set (trailing bits must be ignored)", i)
		}
	}
}

func TestArray_SetHoldingsFromU8RejectsOddLength(t *testing.T) {
	s := New(WithHoldingCapacity(8))
	if err := s.SetHoldingsFromU8(0, []byte{0x00, 0x01, 0x02}); err == nil {
		t.Error("expected error for odd-length packed register write")
	}
}

func TestArray_BoundsFailWithoutMutation(t *testing.T) {
	s := New(WithHoldingCapacity(4))
	if err := s.SetHolding(10, 123); err == nil {
		t.Error("expected OOBContext for out-of-range register")
	}
	if err := s.SetHoldingsBulk(2, []uint16{1, 2, 3}); err == nil {
		t.Error("expected OOBContext for bulk write exceeding capacity")
	}
	// Nothing should have been written.
	v, _ := s.GetHolding(2)
	if v != 0 {
		t.Errorf("store was mutated despite OOBContext failure: holding[2]=%d", v)
	}
}

func TestArray_DumpRestoreRoundTrip(t *testing.T) {
	s := New(WithCoilCapacity(8), WithDiscreteCapacity(8), WithInputCapacity(2), WithHoldingCapacity(2))
	s.SetCoil(0, true)
	s.SetCoil(3, true)
	s.SetHolding(0, 0xCAFE)
	s.SetInput(1, 0x1234)

	snapshot := s.Dump()

	restored := New(WithCoilCapacity(8), WithDiscreteCapacity(8), WithInputCapacity(2), WithHoldingCapacity(2))
	if err := restored.Restore(snapshot); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if v, _ := restored.GetCoil(3); !v {
		t.Error("restored coil 3 should be set")
	}
	if v, _ := restored.GetHolding(0); v != 0xCAFE {
		t.Errorf("restored holding[0] = %#04x, want 0xCAFE", v)
	}
	if v, _ := restored.GetInput(1); v != 0x1234 {
		t.Errorf("restored input[1] = %#04x, want 0x1234", v)
	}
}
