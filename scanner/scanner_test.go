package scanner

import (
	"encoding/binary"
	"errors"
	"testing"

	"memprobe/process"
	"memprobe/process_blob"

	"github.com/google/go-cmp/cmp"
)

var marker = []byte{0xDE, 0xAD, 0x11, 0xEF}

func scanBlob() *process_blob.ProcessBlob {
	a := make([]byte, 0x1000)
	copy(a[0x10:], marker)
	copy(a[0x101:], []byte{0xDE, 0xAD, 0x22, 0xEF})
	binary.LittleEndian.PutUint32(a[0x200:], 500)
	binary.LittleEndian.PutUint32(a[0x300:], 500)

	b := make([]byte, 0x1000)
	copy(b[0x40:], marker)

	c := make([]byte, 0x1000)
	copy(c, marker)

	d := make([]byte, 0x1000)
	copy(d[0xFFC:], marker)
	binary.LittleEndian.PutUint32(d[0x100:], 500)

	return process_blob.NewProcessBlob(11).
		Map(0x10000, a, process.PageReadWrite, process.KindPrivate).
		Map(0x20000, b, process.PageExecuteRead, process.KindImage).
		Map(0x30000, c, process.PageNoAccess, process.KindPrivate).
		Reserve(0x38000, 0x1000).
		Map(0x40000, d, process.PageReadOnly, process.KindMapped)
}

func addrs(v ...uint64) []process.ProcessMemoryAddress {
	out := make([]process.ProcessMemoryAddress, len(v))
	for i, a := range v {
		out[i] = process.ProcessMemoryAddress(a)
	}
	return out
}

func TestScan(t *testing.T) {
	p, _ := ParsePattern("DE AD ?? EF")

	tests := []struct {
		name string
		opts []Option
		want []process.ProcessMemoryAddress
	}{
		{"all readable regions", nil, addrs(0x10010, 0x10101, 0x20040, 0x40FFC)},
		{"aligned", []Option{WithAlignment(4)}, addrs(0x10010, 0x20040, 0x40FFC)},
		{"aligned from unaligned start", []Option{WithAlignment(4), WithRange(0x10003, 0x50000)}, addrs(0x10010, 0x20040, 0x40FFC)},
		{"aligned to odd start", []Option{WithAlignment(0x100), WithRange(0x10001, 0x50000)}, nil},
		{"capped", []Option{WithMaxResults(2)}, addrs(0x10010, 0x10101)},
		{"executable only", []Option{ExecutableOnly()}, addrs(0x20040)},
		{"writable only", []Option{WritableOnly()}, addrs(0x10010, 0x10101)},
		{"clipped range", []Option{WithRange(0x10100, 0x20044)}, addrs(0x10101, 0x20040)},
		{"range cuts match", []Option{WithRange(0x10000, 0x20043)}, addrs(0x10010, 0x10101)},
		{"empty range", []Option{WithRange(0x20000, 0x20000)}, nil},
		{"parallel", []Option{WithParallel(2)}, addrs(0x10010, 0x10101, 0x20040, 0x40FFC)},
		{"parallel capped", []Option{WithParallel(0), WithMaxResults(3)}, addrs(0x10010, 0x10101, 0x20040)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := New(scanBlob()).Scan(p, NewOptions(tt.opts...))
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Scan mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestScanMaskIsHonoured(t *testing.T) {
	got, err := New(scanBlob()).Scan(Exact(marker), NewOptions())
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(addrs(0x10010, 0x20040, 0x40FFC), got); diff != "" {
		t.Errorf("exact scan mismatch (-want +got):\n%s", diff)
	}
}

func TestAlignmentFollowsRegionBase(t *testing.T) {
	data := make([]byte, 0x1000)
	binary.LittleEndian.PutUint32(data[0x104:], 0xCAFEBABE)
	binary.LittleEndian.PutUint32(data[0x203:], 0xCAFEBABE)
	blob := process_blob.NewProcessBlob(13).
		Map(0x10000, data, process.PageReadWrite, process.KindPrivate)
	s := New(blob)

	tests := []struct {
		name      string
		start     process.ProcessMemoryAddress
		alignment int
		want      []process.ProcessMemoryAddress
	}{
		{"region start", 0x10000, 4, addrs(0x10104)},
		{"start inside region", 0x10001, 4, addrs(0x10104)},
		{"start on a candidate", 0x10104, 4, addrs(0x10104)},
		{"start past a candidate", 0x10105, 4, nil},
		{"odd start unaligned scan", 0x10001, 1, addrs(0x10104, 0x10203)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := NewOptions(WithRange(tt.start, 0x11000), WithAlignment(tt.alignment))
			got, err := s.FindValue(process.Uint32Value(0xCAFEBABE), opts)
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("FindValue mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

type exclusiveHandle struct{ process.Handle }

func TestScanErrors(t *testing.T) {
	s := New(scanBlob())
	if _, err := s.Scan(Pattern{}, NewOptions()); !errors.Is(err, process.ErrInvalidPattern) {
		t.Errorf("empty pattern: got %v", err)
	}

	blob := scanBlob().FailReads(0x40000, 0x40010)
	if _, err := New(blob).Scan(Exact(marker), NewOptions()); !errors.Is(err, process.ErrReadFailed) {
		t.Errorf("region read failure: got %v, want ErrReadFailed", err)
	}

	exclusive := New(exclusiveHandle{scanBlob()})
	if _, err := exclusive.Scan(Exact(marker), NewOptions(WithParallel(2))); !errors.Is(err, process.ErrUnsupported) {
		t.Errorf("parallel on exclusive handle: got %v", err)
	}
	if got, err := exclusive.Scan(Exact(marker), NewOptions()); err != nil || len(got) != 3 {
		t.Errorf("sequential on exclusive handle = %v, %v", got, err)
	}
}

func TestFindValueAndFirst(t *testing.T) {
	s := New(scanBlob())

	got, err := s.FindValue(process.Uint32Value(500), NewOptions())
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(addrs(0x10200, 0x10300, 0x40100), got); diff != "" {
		t.Errorf("FindValue mismatch (-want +got):\n%s", diff)
	}

	first, err := s.FindFirst(Exact(marker), NewOptions(WithRange(0x20000, 0x50000)))
	if err != nil || first != 0x20040 {
		t.Errorf("FindFirst = %s, %v", first, err)
	}
	if _, err := s.FindFirst(Text("absent"), NewOptions()); !errors.Is(err, process.ErrPatternNotFound) {
		t.Errorf("FindFirst(absent): got %v", err)
	}

	region, err := s.ScanRegion(0x10000, 0x200, Exact(marker[:2]), NewOptions())
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(addrs(0x10010, 0x10101), region); diff != "" {
		t.Errorf("ScanRegion mismatch (-want +got):\n%s", diff)
	}
}
