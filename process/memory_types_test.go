package process

import (
	"errors"
	"math"
	"testing"
)

func TestAddressString(t *testing.T) {
	tests := []struct {
		addr ProcessMemoryAddress
		want string
	}{
		{0, "0x0000000000000000"},
		{0x7FFE0000, "0x000000007FFE0000"},
		{math.MaxUint64, "0xFFFFFFFFFFFFFFFF"},
	}
	for _, tt := range tests {
		if got := tt.addr.String(); got != tt.want {
			t.Errorf("%#x.String() = %q, want %q", uint64(tt.addr), got, tt.want)
		}
	}
}

func TestAddressArithmetic(t *testing.T) {
	base := ProcessMemoryAddress(0x1000)

	if got := base.Offset(-0x10); got != 0xFF0 {
		t.Errorf("Offset(-0x10) = %s, want 0xFF0", got)
	}
	if got := ProcessMemoryAddress(0).Offset(-1); got != math.MaxUint64 {
		t.Errorf("Offset wraps: got %s", got)
	}
	if got := base.Add(0x20); got != 0x1020 {
		t.Errorf("Add(0x20) = %s", got)
	}

	if end, wrapped := ProcessMemoryAddress(math.MaxUint64 - 1).AddChecked(2); !wrapped || end != 0 {
		t.Errorf("AddChecked at top = (%s, %v), want (0, true)", end, wrapped)
	}
	if end, wrapped := base.AddChecked(0x1000); wrapped || end != 0x2000 {
		t.Errorf("AddChecked = (%s, %v), want (0x2000, false)", end, wrapped)
	}
}

func TestAlignment(t *testing.T) {
	tests := []struct {
		addr      ProcessMemoryAddress
		alignment uint64
		up, down  ProcessMemoryAddress
		aligned   bool
	}{
		{0x1001, 0x1000, 0x2000, 0x1000, false},
		{0x1000, 0x1000, 0x1000, 0x1000, true},
		{0x1003, 4, 0x1004, 0x1000, false},
		{0x1003, 0, 0x1003, 0x1003, true},
	}
	for _, tt := range tests {
		if got := tt.addr.AlignUp(tt.alignment); got != tt.up {
			t.Errorf("%s.AlignUp(%d) = %s, want %s", tt.addr, tt.alignment, got, tt.up)
		}
		if got := tt.addr.AlignDown(tt.alignment); got != tt.down {
			t.Errorf("%s.AlignDown(%d) = %s, want %s", tt.addr, tt.alignment, got, tt.down)
		}
		if got := tt.addr.IsAligned(tt.alignment); got != tt.aligned {
			t.Errorf("%s.IsAligned(%d) = %v, want %v", tt.addr, tt.alignment, got, tt.aligned)
		}
	}
	if AlignUp[uint32](5, 8) != 8 || AlignDown[uint8](250, 16) != 240 {
		t.Error("generic AlignUp/AlignDown mismatch")
	}
}

func TestParseAddress(t *testing.T) {
	tests := []struct {
		in   string
		want ProcessMemoryAddress
	}{
		{"0x10000", 0x10000},
		{"0X7ffe", 0x7FFE},
		{"$DEAD", 0xDEAD},
		{"7ffe0000", 0x7FFE0000},
		{"4096", 4096},
		{" 0x10 ", 0x10},
	}
	for _, tt := range tests {
		got, err := ParseAddress(tt.in)
		if err != nil {
			t.Errorf("ParseAddress(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseAddress(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}

	for _, bad := range []string{"", "0x", "zz", "0x1G"} {
		if _, err := ParseAddress(bad); !errors.Is(err, ErrInvalidAddress) {
			t.Errorf("ParseAddress(%q): got %v, want ErrInvalidAddress", bad, err)
		}
	}
}
