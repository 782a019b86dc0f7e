package hexdump

import (
	"strings"
	"testing"

	"memprobe/process"
	"memprobe/scanner"

	"github.com/google/go-cmp/cmp"
)

func plain() Options {
	o := DefaultOptions()
	o.Plain = true
	o.OffsetWidth = 8
	return o
}

func TestDumpPlain(t *testing.T) {
	data := []byte("ABCDEFGHIJKLMNOP\x00\x01")
	o := plain()
	o.Address = 0x1000

	got := strings.Split(strings.TrimRight(Dump(data, o), "\n"), "\n")
	want := []string{
		"00001000  41 42 43 44 45 46 47 48 | 49 4a 4b 4c 4d 4e 4f 50 | ABCDEFGH IJKLMNOP",
		"00001010  00 01" + strings.Repeat(" ", 44) + " | ..",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Dump mismatch (-want +got):\n%s", diff)
	}
}

func TestDumpMaxLines(t *testing.T) {
	o := plain()
	o.MaxLines = 1
	got := Dump(make([]byte, 40), o)
	if !strings.HasSuffix(got, "... 24 more bytes\n") {
		t.Errorf("Dump with MaxLines=1 = %q, want trailing remainder note", got)
	}
}

func TestHighlightMarksHonourMask(t *testing.T) {
	p, err := scanner.ParsePattern("48 ?? 05")
	if err != nil {
		t.Fatal(err)
	}
	data := []byte{0x00, 0x48, 0xAA, 0x05, 0x48, 0x8B, 0x06}

	got := highlightMarks(data, &p)
	want := []mark{markNone, markByte, markWildcard, markByte, markNone, markNone, markNone}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("highlightMarks mismatch (-want +got):\n%s", diff)
	}

	if highlightMarks(data, nil) != nil {
		t.Error("highlightMarks(nil pattern) should be nil")
	}
}

func TestPointerAnnotation(t *testing.T) {
	regions := pointerTargets([]process.Region{
		{Base: 0x5000, Size: 0x1000, State: process.StateCommitted, Protect: process.PageReadWrite},
		{Base: 0x1000, Size: 0x1000, State: process.StateCommitted, Protect: process.PageNoAccess},
		{Base: 0x9000, Size: 0x1000, State: process.StateReserved},
	})
	if len(regions) != 1 {
		t.Fatalf("pointerTargets kept %d regions, want 1", len(regions))
	}

	tests := []struct {
		ptr  uint64
		want bool
	}{
		{0, false},
		{0x4FFF, false},
		{0x5000, true},
		{0x5FFF, true},
		{0x6000, false},
		{0x1800, false},
		{0x9000, false},
	}
	for _, tt := range tests {
		if got := IsValidPointer(tt.ptr, regions); got != tt.want {
			t.Errorf("IsValidPointer(%#x) = %v, want %v", tt.ptr, got, tt.want)
		}
	}

	o := plain()
	o.Regions = regions[:1]
	data := []byte{0x10, 0x50, 0, 0, 0, 0, 0, 0, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}
	got := Dump(data, o)
	if !strings.HasSuffix(got, " | 0x5010\n") {
		t.Errorf("Dump with regions = %q, want trailing 0x5010 annotation", got)
	}
}
