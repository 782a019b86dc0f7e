package scanner

import (
	"errors"
	"testing"

	"memprobe/process"

	"github.com/google/go-cmp/cmp"
)

func TestSessionNarrowing(t *testing.T) {
	blob := scanBlob()
	ss := New(blob).NewSession()

	if _, err := ss.Next(Greater); !errors.Is(err, ErrNoInitialScan) {
		t.Errorf("Next before First: got %v", err)
	}

	n, err := ss.FirstValue(process.Uint32Value(500), NewOptions())
	if err != nil || n != 3 {
		t.Fatalf("FirstValue = %d, %v", n, err)
	}
	if ss.Kind != process.KindU32 {
		t.Errorf("Kind = %v", ss.Kind)
	}

	blob.Poke(0x10200, u32(501))
	blob.Poke(0x10300, u32(499))

	if n, _ := ss.Next(Greater); n != 1 {
		t.Fatalf("Next(Greater) kept %d", n)
	}
	results := ss.Results()
	if len(results) != 1 || results[0].Address != 0x10200 || results[0].Value.Uint() != 501 {
		t.Fatalf("Results = %+v", results)
	}
	if results[0].Previous == nil || results[0].Previous.Uint() != 500 {
		t.Errorf("Previous = %v, want 500", results[0].Previous)
	}

	blob.Poke(0x10200, u32(777))
	if n, _ := ss.NextValue(process.Uint32Value(777)); n != 1 {
		t.Errorf("NextValue kept %d", n)
	}
	if ss.Rounds != 3 {
		t.Errorf("Rounds = %d, want 3", ss.Rounds)
	}

	id := ss.ID
	ss.Reset()
	if ss.Len() != 0 || ss.ID != id || ss.Rounds != 0 {
		t.Errorf("Reset left %d candidates, id changed %v", ss.Len(), ss.ID != id)
	}
}

func TestSessionPatternAndFilter(t *testing.T) {
	blob := scanBlob()
	ss := New(blob).NewSession()

	p, _ := ParsePattern("DE AD ?? EF")
	n, err := ss.First(p, NewOptions())
	if err != nil || n != 4 {
		t.Fatalf("First = %d, %v", n, err)
	}

	blob.Poke(0x10101, []byte{0, 0, 0, 0})
	if n, _ := ss.Next(Equal); n != 3 {
		t.Errorf("Next(Equal) kept %d, want 3", n)
	}

	left := ss.Filter(func(r Result) bool { return r.Address >= 0x20000 })
	if diff := cmp.Diff(addrs(0x20040, 0x40FFC), ss.Candidates()); diff != "" || left != 2 {
		t.Errorf("Filter mismatch (-want +got):\n%s", diff)
	}

	snap := ss.Snapshot()
	snap[0x20040][0] = 0
	if ss.Snapshot()[0x20040][0] != 0xDE {
		t.Error("Snapshot aliased session data")
	}
}
