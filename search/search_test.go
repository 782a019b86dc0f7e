package search

import (
	"encoding/binary"
	"errors"
	"testing"

	"memprobe/process"
	"memprobe/process_blob"
	"memprobe/reader"
	"memprobe/regions"

	"github.com/google/go-cmp/cmp"
)

func graph(t *testing.T) (*reader.Reader, []process.Region) {
	t.Helper()

	root := make([]byte, 0x1000)
	binary.LittleEndian.PutUint64(root[0x10:], 0x20000)
	binary.LittleEndian.PutUint64(root[0x20:], 0x7777_0000) // points nowhere

	leaf := make([]byte, 0x1000)
	binary.LittleEndian.PutUint32(leaf[0x18:], 0xDEADBEEF)

	blob := process_blob.NewProcessBlob(42).
		Map(0x10000, root, process.PageReadWrite, process.KindPrivate).
		Map(0x20000, leaf, process.PageReadWrite, process.KindPrivate)
	return reader.New(blob), regions.New(blob).All()
}

func TestSearchFindsPointerPath(t *testing.T) {
	r, regs := graph(t)

	got, err := Search(r, regs, 0x10000, WithValue(process.Uint32Value(0xDEADBEEF)))
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	want := []SearchResult{{Path: []int64{0x10, 0x18}, Address: 0x20018}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("Search mismatch (-want +got):\n%s", diff)
	}

	addr, err := reader.ReadPointerChain(r, 0x10000, got[0].Path...)
	if err != nil {
		t.Fatalf("ReadPointerChain: %v", err)
	}
	if addr != got[0].Address {
		t.Errorf("ReadPointerChain = %s, want %s", addr, got[0].Address)
	}
}

func TestSearchRespectsDepth(t *testing.T) {
	r, regs := graph(t)

	got, err := Search(r, regs, 0x10000, WithValue(process.Uint32Value(0xDEADBEEF)), WithMaxDepth(0))
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Search with depth 0 = %v, want no results", got)
	}
}

func TestSearchNeedsTarget(t *testing.T) {
	r, regs := graph(t)
	if _, err := Search(r, regs, 0x10000); !errors.Is(err, process.ErrInvalidPattern) {
		t.Errorf("Search without target: got %v, want ErrInvalidPattern", err)
	}
}
