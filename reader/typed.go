package reader

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"unicode/utf16"
	"unicode/utf8"
	"unsafe"

	"memprobe/process"
)

// VariableReadSize is the window read for Bytes and String values.
const VariableReadSize = 256

// PointerSize is the width of a target pointer.
const PointerSize = 8

// Read reads a single value of type T. T must be plain old data.
func Read[T any](r RawReader, addr process.ProcessMemoryAddress) (T, error) {
	var t T
	size := int(unsafe.Sizeof(t))
	if size == 0 {
		return t, nil
	}

	data, err := r.ReadBytes(addr, size)
	if err != nil {
		return t, err
	}

	copyTo(&t, data)
	return t, nil
}

// ReadArray reads count consecutive values of type T in one transfer.
func ReadArray[T any](r RawReader, addr process.ProcessMemoryAddress, count int) ([]T, error) {
	var t T
	size := int(unsafe.Sizeof(t))
	if count <= 0 || size == 0 {
		return []T{}, nil
	}

	data, err := r.ReadBytes(addr, size*count)
	if err != nil {
		return nil, err
	}

	out := make([]T, count)
	for i := range out {
		copyTo(&out[i], data[i*size:])
	}
	return out, nil
}

// Result is the outcome of one address in a batch.
type Result[T any] struct {
	Address process.ProcessMemoryAddress
	Value   T
	Err     error
}

// ReadBatch reads T at every address. Failures are reported per address and
// the output order matches the input.
func ReadBatch[T any](r RawReader, addrs []process.ProcessMemoryAddress) []Result[T] {
	out := make([]Result[T], len(addrs))
	for i, addr := range addrs {
		v, err := Read[T](r, addr)
		out[i] = Result[T]{Address: addr, Value: v, Err: err}
	}
	return out
}

// ReadPointer reads a 64-bit pointer.
func ReadPointer(r RawReader, addr process.ProcessMemoryAddress) (process.ProcessMemoryAddress, error) {
	v, err := Read[uint64](r, addr)
	return process.ProcessMemoryAddress(v), err
}

// ReadPointerChain starts at base, adds the first offset and dereferences,
// repeating for every offset but the last, which is added to the final pointer.
// With no offsets it returns base.
func ReadPointerChain(r RawReader, base process.ProcessMemoryAddress, offsets ...int64) (process.ProcessMemoryAddress, error) {
	current := base
	for i := 0; i < len(offsets)-1; i++ {
		ptrAddr := current.Offset(offsets[i])
		ptr, err := ReadPointer(r, ptrAddr)
		if err != nil {
			return 0, process.PointerChainError(i, fmt.Sprintf("read at %s: %v", ptrAddr, err))
		}
		if ptr.IsNull() {
			return 0, process.PointerChainError(i, fmt.Sprintf("null pointer at %s", ptrAddr))
		}
		current = ptr
	}
	if len(offsets) > 0 {
		current = current.Offset(offsets[len(offsets)-1])
	}
	return current, nil
}

// ReadPath follows a pointer chain and reads T at its end.
func ReadPath[T any](r RawReader, base process.ProcessMemoryAddress, offsets ...int64) (T, error) {
	addr, err := ReadPointerChain(r, base, offsets...)
	if err != nil {
		var zero T
		return zero, err
	}
	return Read[T](r, addr)
}

// copyTo copies bytes to *T
func copyTo[T any](dst *T, src []byte) {
	size := int(unsafe.Sizeof(*dst))
	if len(src) < size {
		return
	}

	dstBytes := unsafe.Slice((*byte)(unsafe.Pointer(dst)), size)
	copy(dstBytes, src)
}

func readValue(r RawReader, addr process.ProcessMemoryAddress, kind process.ValueKind) (process.Value, error) {
	size, fixed := kind.Size()
	if !fixed {
		size = VariableReadSize
	}

	data, err := r.ReadBytes(addr, size)
	if err != nil {
		return process.Value{}, err
	}
	if kind == process.KindString {
		if i := bytes.IndexByte(data, 0); i >= 0 {
			data = data[:i]
		}
	}
	return process.ValueFromBytes(data, kind)
}

func readString(r RawReader, addr process.ProcessMemoryAddress, maxLen int) (string, error) {
	data, err := r.ReadBytes(addr, maxLen)
	if err != nil {
		return "", err
	}
	if i := bytes.IndexByte(data, 0); i >= 0 {
		data = data[:i]
	}
	if !utf8.Valid(data) {
		return "", fmt.Errorf("%w: string at %s is not valid UTF-8", process.ErrInvalidValueType, addr)
	}
	return string(data), nil
}

func readWideString(r RawReader, addr process.ProcessMemoryAddress, maxChars int) (string, error) {
	data, err := r.ReadBytes(addr, maxChars*2)
	if err != nil {
		return "", err
	}

	units := make([]uint16, 0, maxChars)
	for i := 0; i+1 < len(data); i += 2 {
		u := binary.LittleEndian.Uint16(data[i:])
		if u == 0 {
			break
		}
		units = append(units, u)
	}

	s, ok := decodeUTF16(units)
	if !ok {
		return "", fmt.Errorf("%w: string at %s is not valid UTF-16", process.ErrInvalidValueType, addr)
	}
	return s, nil
}

// decodeUTF16 rejects unpaired surrogates instead of substituting U+FFFD.
func decodeUTF16(units []uint16) (string, bool) {
	runes := make([]rune, 0, len(units))
	for i := 0; i < len(units); i++ {
		u := rune(units[i])
		if !utf16.IsSurrogate(u) {
			runes = append(runes, u)
			continue
		}
		if i+1 >= len(units) {
			return "", false
		}
		r := utf16.DecodeRune(u, rune(units[i+1]))
		if r == utf8.RuneError {
			return "", false
		}
		runes = append(runes, r)
		i++
	}
	return string(runes), true
}
