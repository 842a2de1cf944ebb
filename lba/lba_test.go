package lba

import "testing"

func TestToBytes(t *testing.T) {
	if got := ToBytes(0x300000); got != 0x60000000 {
		t.Errorf("ToBytes(0x300000) = %#x, want %#x", got, 0x60000000)
	}
}

func TestFromBytes(t *testing.T) {
	if got := FromBytes(0x60000000); got != 0x300000 {
		t.Errorf("FromBytes = %#x, want %#x", got, 0x300000)
	}
	// Partial LBAs truncate.
	if got := FromBytes(0x6000002A); got != 0x300000 {
		t.Errorf("FromBytes with partial sector = %#x, want %#x", got, 0x300000)
	}
}

func TestU34Rshift2(t *testing.T) {
	b := make([]byte, 4)
	PutU34Rshift2(b, 0x8000)
	if got := GetU34Rshift2(b); got != 0x8000 {
		t.Errorf("round trip = %#x, want %#x", got, 0x8000)
	}
}
