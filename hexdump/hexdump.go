// Package hexdump renders target memory as a coloured hex/ASCII dump with
// pattern highlighting and pointer annotations.
package hexdump

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"memprobe/process"
	"memprobe/scanner"

	"github.com/Moonlight-Companies/gologger/coloransi"
)

// Options defines options for customizing the hexdump output
type Options struct {
	// BytesPerLine defines the number of bytes to display per line
	BytesPerLine int

	// GroupSize defines the grouping of bytes (usually 1, 2, 4, or 8)
	GroupSize int

	ShowASCII bool

	// Address is the target address of data[0]; the offset column counts from it
	Address process.ProcessMemoryAddress

	// OffsetWidth is the width of the offset column in hex digits
	OffsetWidth int

	OffsetColor       coloransi.ColorCode
	HexColor          coloransi.ColorCode
	ASCIIColor        coloransi.ColorCode
	NonPrintableColor coloransi.ColorCode
	ZeroColor         coloransi.ColorCode

	// Highlight marks every match of the pattern. Wildcard positions inside a
	// match use WildcardColor.
	Highlight                *scanner.Pattern
	HighlightColor           coloransi.ColorCode
	HighlightBackgroundColor coloransi.ColorCode
	WildcardColor            coloransi.ColorCode

	// MaxLines is the maximum number of lines to show (0 for no limit)
	MaxLines int

	// Regions, when set, turns on pointer annotation: the qwords at line
	// offsets 0 and 8 are shown when they point into a readable committed region.
	Regions []process.Region

	// Plain disables ANSI colouring.
	Plain bool
}

// DefaultOptions returns the default hexdump options
func DefaultOptions() Options {
	return Options{
		BytesPerLine:             16,
		GroupSize:                1,
		ShowASCII:                true,
		OffsetWidth:              16,
		OffsetColor:              coloransi.Cyan,
		HexColor:                 coloransi.Green,
		ASCIIColor:               coloransi.White,
		NonPrintableColor:        coloransi.Red,
		ZeroColor:                coloransi.BrightBlack,
		HighlightColor:           coloransi.Yellow,
		HighlightBackgroundColor: coloransi.Black,
		WildcardColor:            coloransi.ColorOrange,
	}
}

// mark is the highlight state of one byte.
type mark uint8

const (
	markNone mark = iota
	markByte
	markWildcard
)

// Dump creates a hex dump of the given data with specified options
func Dump(data []byte, options Options) string {
	var buffer bytes.Buffer
	DumpToWriter(&buffer, data, options)
	return buffer.String()
}

// DumpToWriter writes a hex dump of the given data to the specified writer
func DumpToWriter(writer io.Writer, data []byte, options Options) {
	if options.BytesPerLine <= 0 {
		options.BytesPerLine = 16
	}
	if options.GroupSize <= 0 {
		options.GroupSize = 1
	}
	if options.OffsetWidth <= 0 {
		options.OffsetWidth = 16
	}

	marks := highlightMarks(data, options.Highlight)
	regions := pointerTargets(options.Regions)

	d := &dumper{w: writer, opts: options, regions: regions}
	lineCount := 0
	for offset := 0; offset < len(data); offset += options.BytesPerLine {
		if options.MaxLines > 0 && lineCount >= options.MaxLines {
			fmt.Fprintf(writer, "... %d more bytes\n", len(data)-offset)
			break
		}

		end := min(offset+options.BytesPerLine, len(data))
		var lineMarks []mark
		if marks != nil {
			lineMarks = marks[offset:end]
		}
		d.line(data[offset:end], lineMarks, options.Address.Add(process.ProcessMemorySize(offset)))
		lineCount++
	}
}

// highlightMarks flags every byte covered by a match of p.
func highlightMarks(data []byte, p *scanner.Pattern) []mark {
	if p == nil || p.Len() == 0 {
		return nil
	}
	_, mask := p.Compile()
	marks := make([]mark, len(data))
	for off := 0; off+p.Len() <= len(data); off++ {
		if !p.MatchAt(data, off) {
			continue
		}
		for i, significant := range mask {
			switch {
			case significant:
				marks[off+i] = markByte
			case marks[off+i] == markNone:
				marks[off+i] = markWildcard
			}
		}
	}
	return marks
}

// pointerTargets keeps the regions a pointer may usefully point into, sorted by base.
func pointerTargets(regions []process.Region) []process.Region {
	var out []process.Region
	for _, r := range regions {
		if r.IsCommitted() && r.IsReadable() {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Base < out[j].Base })
	return out
}

// IsValidPointer reports whether ptr lands inside one of regions, which must
// be sorted by base address.
func IsValidPointer(ptr uint64, regions []process.Region) bool {
	if ptr == 0 || len(regions) == 0 {
		return false
	}
	addr := process.ProcessMemoryAddress(ptr)
	i := sort.Search(len(regions), func(i int) bool { return regions[i].End() > addr })
	return i < len(regions) && regions[i].Contains(addr)
}

type dumper struct {
	w       io.Writer
	opts    Options
	regions []process.Region
}

func (d *dumper) fg(c coloransi.ColorCode, s string) string {
	if d.opts.Plain {
		return s
	}
	return coloransi.Foreground(c, s)
}

func (d *dumper) hl(fg coloransi.ColorCode, s string) string {
	if d.opts.Plain {
		return s
	}
	return coloransi.Color(fg, d.opts.HighlightBackgroundColor, s)
}

// line formats a single line of the hex dump
func (d *dumper) line(data []byte, marks []mark, addr process.ProcessMemoryAddress) {
	o := d.opts
	offsetStr := fmt.Sprintf("%0"+strconv.Itoa(o.OffsetWidth)+"x", uint64(addr))
	fmt.Fprint(d.w, d.fg(o.OffsetColor, offsetStr), "  ")

	hexParts := d.hexGroups(data, marks)

	// Only show the mid-line divider once the line reaches past half of BytesPerLine.
	useSplit := o.BytesPerLine >= 8 && len(data) > o.BytesPerLine/2

	groupsPerLine := max(o.BytesPerLine/o.GroupSize, 1)
	leftGroups := min(groupsPerLine/2, len(hexParts))

	split := useSplit && leftGroups > 0 && leftGroups < len(hexParts)
	if split {
		fmt.Fprint(d.w, strings.Join(hexParts[:leftGroups], " "), " | ", strings.Join(hexParts[leftGroups:], " "))
	} else {
		fmt.Fprint(d.w, strings.Join(hexParts, " "))
	}

	// Pad short lines so the ASCII column stays aligned.
	if o.BytesPerLine > len(data) {
		full := hexWidth(o.BytesPerLine, o.GroupSize, o.BytesPerLine >= 8 && groupsPerLine > 1)
		if pad := full - hexWidth(len(data), o.GroupSize, split); pad > 0 {
			fmt.Fprint(d.w, strings.Repeat(" ", pad))
		}
	}

	if o.ShowASCII {
		fmt.Fprint(d.w, " | ")
		mid := o.BytesPerLine / 2
		if o.BytesPerLine >= 8 && len(data) > mid {
			d.ascii(data[:mid], sliceMarks(marks, 0, mid))
			fmt.Fprint(d.w, " ")
			d.ascii(data[mid:], sliceMarks(marks, mid, len(data)))
		} else {
			d.ascii(data, marks)
		}
	}

	if len(d.regions) > 0 {
		var ptrs []string
		for off := 0; off+8 <= len(data) && off <= 8; off += 8 {
			ptr := binary.LittleEndian.Uint64(data[off:])
			if IsValidPointer(ptr, d.regions) {
				ptrs = append(ptrs, d.fg(coloransi.Yellow, fmt.Sprintf("0x%x", ptr)))
			}
		}
		if len(ptrs) > 0 {
			fmt.Fprint(d.w, " | ", strings.Join(ptrs, " "))
		}
	}

	fmt.Fprintln(d.w)
}

// hexWidth is the printed width of n bytes of hex; the divider widens one gap by two.
func hexWidth(n, groupSize int, split bool) int {
	groups := (n + groupSize - 1) / groupSize
	w := n*2 + max(groups-1, 0)
	if split {
		w += 2
	}
	return w
}

func sliceMarks(marks []mark, from, to int) []mark {
	if marks == nil {
		return nil
	}
	return marks[from:to]
}

func markAt(marks []mark, i int) mark {
	if marks == nil {
		return markNone
	}
	return marks[i]
}

func (d *dumper) ascii(data []byte, marks []mark) {
	o := d.opts
	for i, b := range data {
		c := rune(b)
		printable := b != 0 && unicode.IsPrint(c) && c < 0x7f
		ch := "."
		if printable {
			ch = string(c)
		}

		switch m := markAt(marks, i); {
		case m == markByte:
			fmt.Fprint(d.w, d.hl(o.HighlightColor, ch))
		case m == markWildcard:
			fmt.Fprint(d.w, d.hl(o.WildcardColor, ch))
		case b == 0:
			fmt.Fprint(d.w, d.fg(o.ZeroColor, ch))
		case !printable:
			fmt.Fprint(d.w, d.fg(o.NonPrintableColor, ch))
		default:
			fmt.Fprint(d.w, d.fg(o.ASCIIColor, ch))
		}
	}
}

// hexGroups formats the hex values of a line with grouping and highlighting
func (d *dumper) hexGroups(data []byte, marks []mark) []string {
	o := d.opts
	var result []string
	var group []string

	for i, b := range data {
		hexValue := fmt.Sprintf("%02x", b)

		var colored string
		switch markAt(marks, i) {
		case markByte:
			colored = d.hl(o.HighlightColor, hexValue)
		case markWildcard:
			colored = d.hl(o.WildcardColor, hexValue)
		default:
			color := o.HexColor
			if b == 0 {
				color = o.ZeroColor
			}
			colored = d.fg(color, hexValue)
		}
		group = append(group, colored)

		if (i+1)%o.GroupSize == 0 || i == len(data)-1 {
			result = append(result, strings.Join(group, ""))
			group = nil
		}
	}
	return result
}

// DumpBytes creates a plain-coloured dump of data at addr
func DumpBytes(data []byte, addr process.ProcessMemoryAddress) string {
	options := DefaultOptions()
	options.Address = addr
	return Dump(data, options)
}

// DumpMatch dumps the bytes around a scan hit with the pattern highlighted.
func DumpMatch(data []byte, addr process.ProcessMemoryAddress, p scanner.Pattern, regions []process.Region) string {
	options := DefaultOptions()
	options.Address = addr
	options.Highlight = &p
	options.Regions = regions
	return Dump(data, options)
}
