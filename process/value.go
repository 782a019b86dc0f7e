package process

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"
)

// ValueKind identifies how a Value is encoded in target memory.
type ValueKind int

const (
	KindI8 ValueKind = iota
	KindI16
	KindI32
	KindI64
	KindU8
	KindU16
	KindU32
	KindU64
	KindF32
	KindF64
	KindBytes
	KindString
)

var kindNames = [...]string{"i8", "i16", "i32", "i64", "u8", "u16", "u32", "u64", "f32", "f64", "bytes", "string"}

func (k ValueKind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	return kindNames[k]
}

// Size returns the encoded width of a fixed-size kind. fixed is false for bytes and string.
func (k ValueKind) Size() (size int, fixed bool) {
	switch k {
	case KindI8, KindU8:
		return 1, true
	case KindI16, KindU16:
		return 2, true
	case KindI32, KindU32, KindF32:
		return 4, true
	case KindI64, KindU64, KindF64:
		return 8, true
	}
	return 0, false
}

func (k ValueKind) IsFloat() bool  { return k == KindF32 || k == KindF64 }
func (k ValueKind) IsSigned() bool { return k >= KindI8 && k <= KindI64 }

// ParseValueKind maps names such as "u32", "float" or "str" to a kind.
func ParseValueKind(s string) (ValueKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "i8", "int8":
		return KindI8, nil
	case "i16", "int16":
		return KindI16, nil
	case "i32", "int32", "int":
		return KindI32, nil
	case "i64", "int64":
		return KindI64, nil
	case "u8", "uint8", "byte":
		return KindU8, nil
	case "u16", "uint16":
		return KindU16, nil
	case "u32", "uint32":
		return KindU32, nil
	case "u64", "uint64", "ptr", "pointer":
		return KindU64, nil
	case "f32", "float32", "float":
		return KindF32, nil
	case "f64", "float64", "double":
		return KindF64, nil
	case "bytes", "aob":
		return KindBytes, nil
	case "string", "str":
		return KindString, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidValueType, s)
}

// Scalar is the set of fixed-width types a Value can be built from.
type Scalar interface {
	~int8 | ~int16 | ~int32 | ~int64 | ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~float32 | ~float64
}

// Value is a typed quantity as it appears in target memory. Fixed kinds keep
// their little-endian encoding; Bytes and String keep their content.
type Value struct {
	kind ValueKind
	raw  []byte
}

// ValueOf builds a Value from any Scalar.
func ValueOf[T Scalar](v T) Value {
	var kind ValueKind
	switch any(v).(type) {
	case int8:
		kind = KindI8
	case int16:
		kind = KindI16
	case int32:
		kind = KindI32
	case int64:
		kind = KindI64
	case uint8:
		kind = KindU8
	case uint16:
		kind = KindU16
	case uint32:
		kind = KindU32
	case uint64:
		kind = KindU64
	case float32:
		kind = KindF32
	case float64:
		kind = KindF64
	default:
		kind = kindOfSize(v)
	}
	raw, _ := binary.Append(nil, binary.LittleEndian, v)
	return Value{kind: kind, raw: raw}
}

// kindOfSize handles named types (type Health int32) that miss the exact cases above.
func kindOfSize[T Scalar](v T) ValueKind {
	size := binary.Size(v)
	half := 0.5
	isFloat := T(half) != 0
	isSigned := !isFloat && T(0)-1 < 0
	switch {
	case isFloat && size == 4:
		return KindF32
	case isFloat:
		return KindF64
	case size == 1 && isSigned:
		return KindI8
	case size == 1:
		return KindU8
	case size == 2 && isSigned:
		return KindI16
	case size == 2:
		return KindU16
	case size == 4 && isSigned:
		return KindI32
	case size == 4:
		return KindU32
	case isSigned:
		return KindI64
	}
	return KindU64
}

func Int8Value(v int8) Value       { return ValueOf(v) }
func Int16Value(v int16) Value     { return ValueOf(v) }
func Int32Value(v int32) Value     { return ValueOf(v) }
func Int64Value(v int64) Value     { return ValueOf(v) }
func Uint8Value(v uint8) Value     { return ValueOf(v) }
func Uint16Value(v uint16) Value   { return ValueOf(v) }
func Uint32Value(v uint32) Value   { return ValueOf(v) }
func Uint64Value(v uint64) Value   { return ValueOf(v) }
func Float32Value(v float32) Value { return ValueOf(v) }
func Float64Value(v float64) Value { return ValueOf(v) }

func BytesValue(b []byte) Value {
	return Value{kind: KindBytes, raw: bytes.Clone(b)}
}

func StringValue(s string) Value {
	return Value{kind: KindString, raw: []byte(s)}
}

// ValueFromBytes decodes b as kind. Fixed kinds use the leading bytes and
// fail when b is too short; strings must be valid UTF-8.
func ValueFromBytes(b []byte, kind ValueKind) (Value, error) {
	if size, fixed := kind.Size(); fixed {
		if len(b) < size {
			return Value{}, BufferTooSmallError(size, len(b))
		}
		return Value{kind: kind, raw: bytes.Clone(b[:size])}, nil
	}

	switch kind {
	case KindBytes:
		return BytesValue(b), nil
	case KindString:
		if !utf8.Valid(b) {
			return Value{}, fmt.Errorf("%w: string is not valid UTF-8", ErrInvalidValueType)
		}
		return StringValue(string(b)), nil
	}
	return Value{}, fmt.Errorf("%w: %v", ErrInvalidValueType, kind)
}

// ParseValue parses text as kind, the way a user types it on a command line.
func ParseValue(text string, kind ValueKind) (Value, error) {
	var v Value
	var err error
	switch kind {
	case KindI8, KindI16, KindI32, KindI64:
		size, _ := kind.Size()
		var n int64
		if n, err = parseSigned(text, size*8); err == nil {
			v, err = ValueFromBytes(binary.LittleEndian.AppendUint64(nil, uint64(n)), kind)
		}
	case KindU8, KindU16, KindU32, KindU64:
		size, _ := kind.Size()
		var n uint64
		if n, err = parseUnsigned(text, size*8); err == nil {
			v, err = ValueFromBytes(binary.LittleEndian.AppendUint64(nil, n), kind)
		}
	case KindF32:
		var f float64
		if f, err = parseFloat(text, 32); err == nil {
			v = Float32Value(float32(f))
		}
	case KindF64:
		var f float64
		if f, err = parseFloat(text, 64); err == nil {
			v = Float64Value(f)
		}
	case KindBytes:
		v, err = parseHexBytes(text)
	case KindString:
		v = StringValue(text)
	default:
		err = fmt.Errorf("%w: %v", ErrInvalidValueType, kind)
	}
	return v, err
}

func (v Value) Kind() ValueKind { return v.kind }

// Size is the encoded width in bytes: the fixed width, the byte count, or the
// UTF-8 length of a string.
func (v Value) Size() int { return len(v.raw) }

// Bytes returns a copy of the encoded form.
func (v Value) Bytes() []byte { return bytes.Clone(v.raw) }

// Int returns signed kinds sign-extended and unsigned kinds reinterpreted.
func (v Value) Int() int64 {
	switch v.kind {
	case KindI8:
		return int64(int8(v.raw[0]))
	case KindI16:
		return int64(int16(binary.LittleEndian.Uint16(v.raw)))
	case KindI32:
		return int64(int32(binary.LittleEndian.Uint32(v.raw)))
	case KindF32, KindF64:
		return int64(v.Float())
	}
	return int64(v.Uint())
}

func (v Value) Uint() uint64 {
	switch v.kind {
	case KindI8, KindU8:
		return uint64(v.raw[0])
	case KindI16, KindU16:
		return uint64(binary.LittleEndian.Uint16(v.raw))
	case KindI32, KindU32:
		return uint64(binary.LittleEndian.Uint32(v.raw))
	case KindI64, KindU64:
		return binary.LittleEndian.Uint64(v.raw)
	case KindF32, KindF64:
		return uint64(v.Float())
	}
	return 0
}

func (v Value) Float() float64 {
	switch v.kind {
	case KindF32:
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(v.raw)))
	case KindF64:
		return math.Float64frombits(binary.LittleEndian.Uint64(v.raw))
	case KindI8, KindI16, KindI32, KindI64:
		return float64(v.Int())
	}
	return float64(v.Uint())
}

// Text returns the content of a String value.
func (v Value) Text() string {
	if v.kind != KindString {
		return ""
	}
	return string(v.raw)
}

// Compare orders two values of the same fixed kind numerically. ok is false
// for differing or variable-size kinds, and for NaN operands.
func (v Value) Compare(other Value) (c int, ok bool) {
	if v.kind != other.kind {
		return 0, false
	}
	if _, fixed := v.kind.Size(); !fixed {
		return 0, false
	}

	switch {
	case v.kind.IsFloat():
		a, b := v.Float(), other.Float()
		if math.IsNaN(a) || math.IsNaN(b) {
			return 0, false
		}
		return cmp3(a, b), true
	case v.kind.IsSigned():
		return cmp3(v.Int(), other.Int()), true
	}
	return cmp3(v.Uint(), other.Uint()), true
}

func (v Value) Equal(other Value) bool {
	return v.kind == other.kind && bytes.Equal(v.raw, other.raw)
}

func (v Value) String() string {
	if size, fixed := v.kind.Size(); fixed && len(v.raw) < size {
		return "<nil>"
	}
	switch {
	case v.kind == KindString:
		return fmt.Sprintf("%q", string(v.raw))
	case v.kind == KindBytes:
		return fmt.Sprintf("% X", v.raw)
	case v.kind.IsFloat():
		return fmt.Sprintf("%g", v.Float())
	case v.kind.IsSigned():
		return fmt.Sprintf("%d", v.Int())
	}
	return fmt.Sprintf("%d", v.Uint())
}

func cmp3[T int64 | uint64 | float64](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func parseSigned(text string, bits int) (int64, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(text), 0, bits)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidValueType, err)
	}
	return n, nil
}

func parseUnsigned(text string, bits int) (uint64, error) {
	n, err := strconv.ParseUint(strings.TrimSpace(text), 0, bits)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidValueType, err)
	}
	return n, nil
}

func parseFloat(text string, bits int) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(text), bits)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidValueType, err)
	}
	return f, nil
}

// parseHexBytes accepts "48 8B 05" as well as "488b05".
func parseHexBytes(text string) (Value, error) {
	b, err := hex.DecodeString(strings.Join(strings.Fields(text), ""))
	if err != nil {
		return Value{}, fmt.Errorf("%w: %v", ErrInvalidValueType, err)
	}
	return BytesValue(b), nil
}
