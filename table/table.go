// Package table renders column-aligned text tables whose cells may carry ANSI
// colour sequences.
package table

import (
	"fmt"
	"io"
	"strings"

	"github.com/Moonlight-Companies/gologger/coloransi"
)

// FormatFunc decorates a cell after its width has been measured.
type FormatFunc func(value string) string

// Column describes one column.
type Column struct {
	Header     string
	Blank      string // shown for empty cells, "-" when unset
	Format     FormatFunc
	MinWidth   int
	AlignRight bool
}

type Table struct {
	columns []Column
	rows    [][]string
	widths  []int
	color   bool
}

func New(cols ...Column) *Table {
	t := &Table{
		columns: cols,
		widths:  make([]int, len(cols)),
	}
	for i := range t.columns {
		if t.columns[i].Blank == "" {
			t.columns[i].Blank = "-"
		}
		t.widths[i] = max(t.columns[i].MinWidth, visibleLength(t.columns[i].Header))
	}
	return t
}

// WithColor turns column formatters on.
func (t *Table) WithColor(color bool) *Table {
	t.color = color
	return t
}

// AddRow appends a row. Missing and empty cells show the column's blank value;
// extra cells are dropped.
func (t *Table) AddRow(cells ...string) {
	row := make([]string, len(t.columns))
	for i := range row {
		if i < len(cells) && cells[i] != "" {
			row[i] = cells[i]
		} else {
			row[i] = t.columns[i].Blank
		}
		t.widths[i] = max(t.widths[i], visibleLength(row[i]))
	}
	t.rows = append(t.rows, row)
}

// AddRowf is AddRow with every cell run through fmt.Sprint.
func (t *Table) AddRowf(cells ...interface{}) {
	s := make([]string, len(cells))
	for i, c := range cells {
		s[i] = fmt.Sprint(c)
	}
	t.AddRow(s...)
}

func (t *Table) Len() int { return len(t.rows) }

func (t *Table) Render(w io.Writer) error {
	headers := make([]string, len(t.columns))
	rules := make([]string, len(t.columns))
	for i, col := range t.columns {
		headers[i] = t.pad(i, col.Header)
		rules[i] = strings.Repeat("-", t.widths[i])
	}
	if _, err := fmt.Fprintln(w, strings.TrimRight(strings.Join(headers, " "), " ")); err != nil {
		return err
	}
	if _, err := fmt.Fprintln(w, strings.Join(rules, " ")); err != nil {
		return err
	}

	for _, row := range t.rows {
		cells := make([]string, len(row))
		for i, val := range row {
			padded := t.pad(i, val)
			if t.color && t.columns[i].Format != nil && val != t.columns[i].Blank {
				// Pad first so the escape codes do not count towards the width.
				trimmed := strings.TrimSpace(padded)
				padded = strings.Replace(padded, trimmed, t.columns[i].Format(trimmed), 1)
			}
			cells[i] = padded
		}
		if _, err := fmt.Fprintln(w, strings.TrimRight(strings.Join(cells, " "), " ")); err != nil {
			return err
		}
	}
	return nil
}

func (t *Table) pad(col int, s string) string {
	n := t.widths[col] - visibleLength(s)
	if n <= 0 {
		return s
	}
	if t.columns[col].AlignRight {
		return strings.Repeat(" ", n) + s
	}
	return s + strings.Repeat(" ", n)
}

// visibleLength counts runes outside ANSI escape sequences.
func visibleLength(s string) int {
	length := 0
	inEscape := false
	for _, r := range s {
		switch {
		case r == '\033':
			inEscape = true
		case inEscape:
			if r == 'm' {
				inEscape = false
			}
		default:
			length++
		}
	}
	return length
}

// Colored returns a FormatFunc painting the cell in fg.
func Colored(fg coloransi.ColorCode) FormatFunc {
	return func(s string) string {
		return coloransi.Foreground(fg, s)
	}
}

// Protection colours a protection string by its most permissive right:
// executable red, writable yellow, readable green, inaccessible grey.
func Protection(s string) string {
	switch {
	case strings.Contains(s, "X"):
		return coloransi.Foreground(coloransi.Red, s)
	case strings.Contains(s, "W"):
		return coloransi.Foreground(coloransi.Yellow, s)
	case strings.Contains(s, "R"):
		return coloransi.Foreground(coloransi.Green, s)
	}
	return coloransi.Foreground(coloransi.BrightBlack, s)
}
