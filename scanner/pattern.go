// Package scanner searches target memory for byte patterns and values and
// narrows candidate sets by re-reading them.
package scanner

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf16"

	"memprobe/process"
)

// PatternKind says how a Pattern was built.
type PatternKind int

const (
	PatternExact PatternKind = iota
	PatternMasked
	PatternString
	PatternWideString
)

func (k PatternKind) String() string {
	switch k {
	case PatternExact:
		return "exact"
	case PatternMasked:
		return "masked"
	case PatternString:
		return "string"
	case PatternWideString:
		return "wide-string"
	}
	return fmt.Sprintf("pattern(%d)", int(k))
}

// Pattern is a byte sequence where some positions may be wildcards.
// bytes and mask always have the same length; mask[i] false means any byte matches.
type Pattern struct {
	kind  PatternKind
	bytes []byte
	mask  []bool
}

// Exact matches b byte for byte.
func Exact(b []byte) Pattern {
	return Pattern{kind: PatternExact, bytes: clone(b), mask: allTrue(len(b))}
}

// Masked compares only the positions where mask is true.
func Masked(b []byte, mask []bool) (Pattern, error) {
	if len(b) != len(mask) {
		return Pattern{}, fmt.Errorf("%w: %d bytes but %d mask entries", process.ErrInvalidPattern, len(b), len(mask))
	}
	m := make([]bool, len(mask))
	copy(m, mask)
	return Pattern{kind: PatternMasked, bytes: clone(b), mask: m}, nil
}

// Text matches s as UTF-8 followed by a NUL.
func Text(s string) Pattern {
	b := append([]byte(s), 0)
	return Pattern{kind: PatternString, bytes: b, mask: allTrue(len(b))}
}

// WideText matches s as UTF-16LE followed by a NUL code unit.
func WideText(s string) Pattern {
	units := append(utf16.Encode([]rune(s)), 0)
	b := make([]byte, 0, len(units)*2)
	for _, u := range units {
		b = binary.LittleEndian.AppendUint16(b, u)
	}
	return Pattern{kind: PatternWideString, bytes: b, mask: allTrue(len(b))}
}

// ParsePattern compiles whitespace separated tokens such as "48 8B ?? ?? 89".
// Each token is two hex digits or a ? / ?? wildcard.
func ParsePattern(text string) (Pattern, error) {
	tokens := strings.Fields(text)
	if len(tokens) == 0 {
		return Pattern{}, fmt.Errorf("%w: empty pattern", process.ErrInvalidPattern)
	}

	b := make([]byte, len(tokens))
	mask := make([]bool, len(tokens))
	for i, tok := range tokens {
		if tok == "?" || tok == "??" {
			continue
		}
		if len(tok) != 2 {
			return Pattern{}, fmt.Errorf("%w: token %d %q is not two hex digits", process.ErrInvalidPattern, i, tok)
		}
		v, err := strconv.ParseUint(tok, 16, 8)
		if err != nil {
			return Pattern{}, fmt.Errorf("%w: token %d %q is not hex", process.ErrInvalidPattern, i, tok)
		}
		b[i] = byte(v)
		mask[i] = true
	}
	return Pattern{kind: PatternMasked, bytes: b, mask: mask}, nil
}

func (p Pattern) Kind() PatternKind { return p.kind }

func (p Pattern) Len() int { return len(p.bytes) }

// Compile returns copies of the byte and mask vectors.
func (p Pattern) Compile() ([]byte, []bool) {
	m := make([]bool, len(p.mask))
	copy(m, p.mask)
	return clone(p.bytes), m
}

// MatchAt reports whether the pattern matches data starting at off.
func (p Pattern) MatchAt(data []byte, off int) bool {
	if off < 0 || off+len(p.bytes) > len(data) {
		return false
	}
	for j, want := range p.bytes {
		if p.mask[j] && data[off+j] != want {
			return false
		}
	}
	return true
}

func (p Pattern) String() string {
	var sb strings.Builder
	for i, b := range p.bytes {
		if i > 0 {
			sb.WriteByte(' ')
		}
		if !p.mask[i] {
			sb.WriteString("??")
			continue
		}
		fmt.Fprintf(&sb, "%02X", b)
	}
	return sb.String()
}

// findPatternMatches returns the offsets in data where p matches, testing
// first, first+stride, first+2*stride and so on.
func findPatternMatches(data []byte, p Pattern, first, stride int) []int {
	if len(p.bytes) == 0 || len(data) < len(p.bytes) {
		return nil
	}
	if stride < 1 {
		stride = 1
	}

	var matches []int
	for i := max(first, 0); i <= len(data)-len(p.bytes); i += stride {
		if p.MatchAt(data, i) {
			matches = append(matches, i)
		}
	}
	return matches
}

func allTrue(n int) []bool {
	m := make([]bool, n)
	for i := range m {
		m[i] = true
	}
	return m
}

func clone(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
