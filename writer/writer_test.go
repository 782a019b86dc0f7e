package writer

import (
	"bytes"
	"errors"
	"testing"

	"memprobe/process"
	"memprobe/process_blob"

	"github.com/google/go-cmp/cmp"
)

const (
	rwBase process.ProcessMemoryAddress = 0x10000
	roBase process.ProcessMemoryAddress = 0x20000
)

func testBlob() *process_blob.ProcessBlob {
	return process_blob.NewProcessBlob(7).
		Map(rwBase, make([]byte, 0x4000), process.PageReadWrite, process.KindPrivate).
		Map(roBase, bytes.Repeat([]byte{0xCC}, 0x1000), process.PageExecuteRead, process.KindImage)
}

type recordInvalidator struct {
	spans [][2]int
}

func (r *recordInvalidator) Invalidate(addr process.ProcessMemoryAddress, size int) {
	r.spans = append(r.spans, [2]int{int(addr), size})
}

func TestWriteAndInvalidate(t *testing.T) {
	blob := testBlob()
	inv := &recordInvalidator{}
	w := New(blob, WithInvalidator(inv))

	if err := Write[uint32](w, rwBase+0x10, 0xCAFEBABE); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]byte{0xBE, 0xBA, 0xFE, 0xCA}, blob.Peek(rwBase+0x10, 4)); diff != "" {
		t.Errorf("Write mismatch (-want +got):\n%s", diff)
	}
	if err := w.WriteValue(rwBase+0x20, process.Int16Value(-2)); err != nil {
		t.Fatal(err)
	}
	if err := w.WriteString(rwBase+0x30, "hi"); err != nil {
		t.Fatal(err)
	}
	if err := w.WriteWideString(rwBase+0x40, "hi"); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]byte{'h', 'i', 0}, blob.Peek(rwBase+0x30, 3)); diff != "" {
		t.Errorf("WriteString mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]byte{'h', 0, 'i', 0, 0, 0}, blob.Peek(rwBase+0x40, 6)); diff != "" {
		t.Errorf("WriteWideString mismatch (-want +got):\n%s", diff)
	}

	want := [][2]int{{0x10010, 4}, {0x10020, 2}, {0x10030, 3}, {0x10040, 6}}
	if diff := cmp.Diff(want, inv.spans); diff != "" {
		t.Errorf("invalidations mismatch (-want +got):\n%s", diff)
	}

	writes := blob.Writes()
	if err := w.WriteBytes(rwBase, nil); err != nil || blob.Writes() != writes {
		t.Errorf("empty write touched the target: err=%v", err)
	}
}

func TestWriteFailures(t *testing.T) {
	blob := testBlob().ShortWrites(2)
	w := New(blob)

	err := w.WriteBytes(rwBase, []byte{1, 2, 3, 4})
	if !errors.Is(err, process.ErrWriteFailed) {
		t.Errorf("short write: got %v, want ErrWriteFailed", err)
	}

	blob.ShortWrites(-1)
	if err := w.WriteBytes(0x90000, []byte{1}); !errors.Is(err, process.ErrWriteFailed) {
		t.Errorf("unmapped write: got %v", err)
	}
	if err := w.WriteBytes(roBase, []byte{1}); !errors.Is(err, process.ErrAccessDenied) {
		t.Errorf("read-only write: got %v, want ErrAccessDenied", err)
	}

	errs := WriteBatch(w, []Item[uint8]{{rwBase, 1}, {0x90000, 2}, {rwBase + 1, 3}})
	if errs[0] != nil || errs[1] == nil || errs[2] != nil {
		t.Errorf("WriteBatch errors = %v", errs)
	}
}

func TestFillCopySwap(t *testing.T) {
	blob := testBlob()
	w := New(blob)

	if err := w.Fill(rwBase, 0xAB, FillChunkSize+10); err != nil {
		t.Fatal(err)
	}
	if got := blob.Peek(rwBase, FillChunkSize+11); !bytes.Equal(got[:FillChunkSize+10], bytes.Repeat([]byte{0xAB}, FillChunkSize+10)) || got[FillChunkSize+10] != 0 {
		t.Error("Fill wrote the wrong span")
	}

	blob.Poke(rwBase+0x3000, []byte{1, 2, 3, 4, 5, 6, 7, 8})
	// Overlapping move upwards must not smear the source.
	if err := w.CopyMemory(rwBase+0x3000, rwBase+0x3002, 6); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]byte{1, 2, 1, 2, 3, 4, 5, 6}, blob.Peek(rwBase+0x3000, 8)); diff != "" {
		t.Errorf("CopyMemory overlap mismatch (-want +got):\n%s", diff)
	}

	blob.Poke(rwBase+0x3100, []byte{1, 1, 1})
	blob.Poke(rwBase+0x3200, []byte{2, 2, 2})
	if err := w.SwapMemory(rwBase+0x3100, rwBase+0x3200, 3); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(blob.Peek(rwBase+0x3100, 3), []byte{2, 2, 2}) || !bytes.Equal(blob.Peek(rwBase+0x3200, 3), []byte{1, 1, 1}) {
		t.Error("SwapMemory did not exchange the ranges")
	}

}

func TestZeroSizeTouchesNothing(t *testing.T) {
	blob := testBlob()
	plain := New(blob)
	safe := NewSafe(blob)
	safe.AttachBackup(NewBackup(blob, DefaultBackupConfig()))

	tests := []struct {
		name string
		op   func() error
	}{
		{"Fill", func() error { return plain.Fill(rwBase, 0xFF, 0) }},
		{"CopyMemory", func() error { return plain.CopyMemory(rwBase, rwBase+0x100, 0) }},
		{"SwapMemory", func() error { return plain.SwapMemory(rwBase, rwBase+0x100, 0) }},
		{"WriteBytes", func() error { return plain.WriteBytes(rwBase, nil) }},
		{"safe Fill", func() error { return safe.Fill(rwBase, 0xFF, 0) }},
		{"safe CopyMemory", func() error { return safe.CopyMemory(rwBase, rwBase+0x100, 0) }},
		{"safe SwapMemory", func() error { return safe.SwapMemory(rwBase, rwBase+0x100, 0) }},
		{"safe WriteBytes", func() error { return safe.WriteBytes(rwBase, []byte{}) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reads, writes, queries := blob.Reads(), blob.Writes(), blob.Queries()
			if err := tt.op(); err != nil {
				t.Fatalf("zero-size %s: %v", tt.name, err)
			}
			if blob.Reads() != reads || blob.Writes() != writes || blob.Queries() != queries {
				t.Errorf("zero-size %s touched the target: reads %d->%d writes %d->%d queries %d->%d",
					tt.name, reads, blob.Reads(), writes, blob.Writes(), queries, blob.Queries())
			}
		})
	}
}

func TestRestoreInvalidates(t *testing.T) {
	blob := testBlob()
	inv := &recordInvalidator{}
	b := NewBackup(blob, DefaultBackupConfig(), WithInvalidator(inv))

	if err := b.BackupRegion(rwBase+0x10, 4, "before patch"); err != nil {
		t.Fatal(err)
	}
	if err := b.RestoreLast(); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([][2]int{{0x10010, 4}}, inv.spans); diff != "" {
		t.Errorf("restore invalidations mismatch (-want +got):\n%s", diff)
	}
}

func TestSafeWriter(t *testing.T) {
	blob := testBlob()
	w := NewSafe(blob)

	if err := w.WriteBytes(0, []byte{1}); !errors.Is(err, process.ErrInvalidAddress) {
		t.Errorf("null write: got %v", err)
	}
	if err := w.WriteBytes(^process.ProcessMemoryAddress(0), []byte{1, 2}); !errors.Is(err, process.ErrInvalidAddress) {
		t.Errorf("wrapping write: got %v", err)
	}

	reads := blob.Reads()
	if err := Write[uint16](w, rwBase, 0x1234); err != nil {
		t.Fatal(err)
	}
	if blob.Reads() != reads+1 {
		t.Error("verified write did not read back")
	}

	w.SetVerifyWrites(false)
	reads = blob.Reads()
	Write[uint16](w, rwBase, 0x5678)
	if blob.Reads() != reads {
		t.Error("unverified write read back")
	}

	w.SetCheckAddresses(false)
	if err := w.WriteBytes(0, []byte{1}); errors.Is(err, process.ErrInvalidAddress) {
		t.Error("address check still active")
	}
}

func TestSafeWriterAutoBackup(t *testing.T) {
	blob := testBlob()
	blob.Poke(rwBase, []byte{9, 9})
	w := NewSafe(blob)
	b := NewBackup(blob, DefaultBackupConfig())
	w.AttachBackup(b)

	if err := w.WriteBytes(rwBase, []byte{1, 2}); err != nil {
		t.Fatal(err)
	}
	if err := w.WriteBytes(rwBase, []byte{3, 4}); err != nil {
		t.Fatal(err)
	}
	if b.Count() != 2 {
		t.Fatalf("Count() = %d, want 2", b.Count())
	}

	if err := b.RestoreAll(); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]byte{9, 9}, blob.Peek(rwBase, 2)); diff != "" {
		t.Errorf("RestoreAll did not unwind to the original (-want +got):\n%s", diff)
	}

	b.SetAutoBackup(false)
	w.WriteBytes(rwBase, []byte{5, 5})
	if b.Count() != 2 {
		t.Error("backup recorded with auto-backup off")
	}
}

func TestBackupLog(t *testing.T) {
	blob := testBlob()
	b := NewBackup(blob, BackupConfig{MaxEntries: 2, AutoBackup: true})

	if err := b.RestoreLast(); !errors.Is(err, process.ErrNoBackups) || !errors.Is(err, process.ErrSessionNotFound) {
		t.Errorf("RestoreLast on empty log: got %v", err)
	}
	if err := b.BackupRegion(rwBase, 0, "empty"); err == nil {
		t.Error("zero-size backup accepted")
	}

	for i := 0; i < 3; i++ {
		if err := b.BackupRegion(rwBase+process.ProcessMemoryAddress(i*0x10), 0x10, "step"); err != nil {
			t.Fatal(err)
		}
	}
	if b.Count() != 2 || b.Entries()[0].Address != rwBase+0x10 {
		t.Errorf("trim kept %d entries starting at %s", b.Count(), b.Entries()[0].Address)
	}
	if b.TotalSize() != 0x20 {
		t.Errorf("TotalSize() = %d", b.TotalSize())
	}
	if e := b.Find(rwBase + 0x20); e == nil || e.Size() != 0x10 {
		t.Errorf("Find = %+v", e)
	}
	if e := b.FindForRange(rwBase+0x14, 4); e == nil || e.Address != rwBase+0x10 {
		t.Errorf("FindForRange = %+v", e)
	}
	if e := b.FindForRange(rwBase+0x1C, 8); e != nil {
		t.Errorf("FindForRange across entries = %+v", e)
	}

	b.SetMaxEntries(1)
	if b.Count() != 1 {
		t.Errorf("SetMaxEntries left %d entries", b.Count())
	}
	b.Clear()
	if b.Count() != 0 {
		t.Error("Clear left entries")
	}
}

func TestBackupCompressedRestore(t *testing.T) {
	blob := testBlob()
	original := bytes.Repeat([]byte("memprobe"), 256)
	blob.Poke(rwBase, original)

	b := NewBackup(blob, BackupConfig{MaxEntries: 10, Compress: true})
	if err := b.BackupRegion(rwBase, len(original), "compressed"); err != nil {
		t.Fatal(err)
	}
	entry := b.Entries()[0]
	if entry.Size() != len(original) {
		t.Errorf("Size() = %d, want %d", entry.Size(), len(original))
	}

	blob.Poke(rwBase, make([]byte, len(original)))
	if err := b.RestoreLast(); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(blob.Peek(rwBase, len(original)), original) {
		t.Error("compressed restore did not reproduce the original bytes")
	}

	other := NewBackup(process_blob.NewProcessBlob(8).Map(rwBase, make([]byte, 0x10), process.PageReadWrite, process.KindPrivate), DefaultBackupConfig())
	if err := other.RestoreEntry(entry); !errors.Is(err, process.ErrUnsupported) {
		t.Errorf("restore into another process: got %v", err)
	}
}

func TestWithWritable(t *testing.T) {
	blob := testBlob()
	w := New(blob)

	err := WithWritable(blob, roBase, 4, func() error {
		return w.WriteBytes(roBase, []byte{0x90, 0x90, 0x90, 0x90})
	})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]byte{0x90, 0x90, 0x90, 0x90, 0xCC}, blob.Peek(roBase, 5)); diff != "" {
		t.Errorf("patched bytes mismatch (-want +got):\n%s", diff)
	}
	region, _ := blob.QueryRegion(roBase)
	if region.Protect != process.PageExecuteRead {
		t.Errorf("protection after WithWritable = %s, want restored", region.Protect)
	}

	boom := errors.New("boom")
	if err := WithWritable(blob, rwBase, 4, func() error { return boom }); !errors.Is(err, boom) {
		t.Errorf("fn error not returned: %v", err)
	}
	if err := WithWritable(blob, 0x90000, 4, func() error { return nil }); !errors.Is(err, process.ErrProtection) {
		t.Errorf("unmapped protect: got %v", err)
	}
}
