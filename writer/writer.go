// Package writer writes raw buffers and typed values into a target, with an
// optional validating variant and a bounded backup log for rollback.
package writer

import (
	"encoding/binary"
	"errors"
	"fmt"
	"unicode/utf16"
	"unsafe"

	"memprobe/process"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"
)

const (
	FillChunkSize = 4096
	CopyChunkSize = 8192
)

// BytesWriter is the minimum the typed helpers need.
type BytesWriter interface {
	WriteBytes(addr process.ProcessMemoryAddress, data []byte) error
}

// Invalidator is told about every successful write, so cached reads of the
// same span can be dropped.
type Invalidator interface {
	Invalidate(addr process.ProcessMemoryAddress, size int)
}

// Writer performs live writes and rejects partial transfers.
type Writer struct {
	h            process.Handle
	log          *logger.Logger
	invalidators []Invalidator
}

// Option configures a Writer
type Option func(*Writer)

func WithInvalidator(inv Invalidator) Option {
	return func(w *Writer) {
		w.invalidators = append(w.invalidators, inv)
	}
}

func New(h process.Handle, options ...Option) *Writer {
	w := &Writer{
		h:   h,
		log: logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, fmt.Sprintf("writer-%d", h.PID()))),
	}
	for _, opt := range options {
		opt(w)
	}
	return w
}

func (w *Writer) WriteBytes(addr process.ProcessMemoryAddress, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	if err := writeRaw(w.h, addr, data); err != nil {
		return err
	}
	for _, inv := range w.invalidators {
		inv.Invalidate(addr, len(data))
	}
	return nil
}

func (w *Writer) WriteValue(addr process.ProcessMemoryAddress, v process.Value) error {
	return writeValue(w, addr, v)
}

func (w *Writer) WriteString(addr process.ProcessMemoryAddress, s string) error {
	return w.WriteBytes(addr, encodeString(s))
}

func (w *Writer) WriteWideString(addr process.ProcessMemoryAddress, s string) error {
	return w.WriteBytes(addr, encodeWideString(s))
}

func (w *Writer) Fill(addr process.ProcessMemoryAddress, value byte, count int) error {
	return fill(w, addr, value, count)
}

func (w *Writer) CopyMemory(src, dst process.ProcessMemoryAddress, size int) error {
	return copyMemory(w.h, w, src, dst, size)
}

func (w *Writer) SwapMemory(a, b process.ProcessMemoryAddress, size int) error {
	return swapMemory(w.h, w, a, b, size)
}

// Write writes v using its in-memory representation. T must be plain old data.
func Write[T any](w BytesWriter, addr process.ProcessMemoryAddress, v T) error {
	size := int(unsafe.Sizeof(v))
	data := unsafe.Slice((*byte)(unsafe.Pointer(&v)), size)
	buf := make([]byte, size)
	copy(buf, data)
	return w.WriteBytes(addr, buf)
}

// Item is one entry of a batch write.
type Item[T any] struct {
	Address process.ProcessMemoryAddress
	Value   T
}

// WriteBatch writes every item and returns one error slot per item, in order.
func WriteBatch[T any](w BytesWriter, items []Item[T]) []error {
	out := make([]error, len(items))
	for i, it := range items {
		out[i] = Write(w, it.Address, it.Value)
	}
	return out
}

func writeRaw(h process.Handle, addr process.ProcessMemoryAddress, data []byte) error {
	n, err := h.WriteMemory(addr, data)
	if err != nil {
		if errors.Is(err, process.ErrWriteFailed) {
			return err
		}
		return fmt.Errorf("%w at %s: %w", process.ErrWriteFailed, addr, err)
	}
	if n != len(data) {
		return process.WriteError(addr, fmt.Sprintf("partial write: expected %d bytes, wrote %d", len(data), n))
	}
	return nil
}

func readRaw(h process.Handle, addr process.ProcessMemoryAddress, size int) ([]byte, error) {
	buf := make([]byte, size)
	n, err := h.ReadMemory(addr, buf)
	if err != nil {
		if errors.Is(err, process.ErrReadFailed) {
			return nil, err
		}
		return nil, fmt.Errorf("%w at %s: %w", process.ErrReadFailed, addr, err)
	}
	if n != size {
		return nil, process.ReadError(addr, fmt.Sprintf("partial read: %d of %d bytes", n, size))
	}
	return buf, nil
}

func writeValue(w BytesWriter, addr process.ProcessMemoryAddress, v process.Value) error {
	if v.Kind() == process.KindString {
		return w.WriteBytes(addr, encodeString(v.Text()))
	}
	return w.WriteBytes(addr, v.Bytes())
}

func encodeString(s string) []byte {
	return append([]byte(s), 0)
}

func encodeWideString(s string) []byte {
	units := append(utf16.Encode([]rune(s)), 0)
	out := make([]byte, 0, len(units)*2)
	for _, u := range units {
		out = binary.LittleEndian.AppendUint16(out, u)
	}
	return out
}

func fill(w BytesWriter, addr process.ProcessMemoryAddress, value byte, count int) error {
	if count <= 0 {
		return nil
	}
	chunk := make([]byte, min(count, FillChunkSize))
	for i := range chunk {
		chunk[i] = value
	}

	for done := 0; done < count; {
		n := min(count-done, len(chunk))
		if err := w.WriteBytes(addr.Add(process.ProcessMemorySize(done)), chunk[:n]); err != nil {
			return err
		}
		done += n
	}
	return nil
}

// copyMemory moves size bytes from src to dst through an intermediate buffer.
// Overlapping ranges with dst above src are copied from the end backwards.
func copyMemory(h process.Handle, w BytesWriter, src, dst process.ProcessMemoryAddress, size int) error {
	if size <= 0 {
		return nil
	}
	backward := dst > src && uint64(dst-src) < uint64(size)

	for done := 0; done < size; {
		n := min(size-done, CopyChunkSize)
		off := done
		if backward {
			off = size - done - n
		}

		buf, err := readRaw(h, src.Add(process.ProcessMemorySize(off)), n)
		if err != nil {
			return err
		}
		if err := w.WriteBytes(dst.Add(process.ProcessMemorySize(off)), buf); err != nil {
			return err
		}
		done += n
	}
	return nil
}

// swapMemory exchanges two ranges. Disjoint ranges are swapped chunk by chunk;
// overlapping ones are read whole before either is written.
func swapMemory(h process.Handle, w BytesWriter, a, b process.ProcessMemoryAddress, size int) error {
	if size <= 0 || a == b {
		return nil
	}
	chunk := CopyChunkSize
	lo, hi := min(a, b), max(a, b)
	if uint64(hi-lo) < uint64(size) {
		chunk = size
	}

	for done := 0; done < size; {
		n := min(size-done, chunk)
		pa := a.Add(process.ProcessMemorySize(done))
		pb := b.Add(process.ProcessMemorySize(done))

		bufA, err := readRaw(h, pa, n)
		if err != nil {
			return err
		}
		bufB, err := readRaw(h, pb, n)
		if err != nil {
			return err
		}
		if err := w.WriteBytes(pa, bufB); err != nil {
			return err
		}
		if err := w.WriteBytes(pb, bufA); err != nil {
			return err
		}
		done += n
	}
	return nil
}
