package table

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestRender(t *testing.T) {
	tbl := New(
		Column{Header: "Address"},
		Column{Header: "Size", AlignRight: true},
		Column{Header: "Note", Blank: "none"},
	)
	tbl.AddRow("0x10", "4096", "")
	tbl.AddRowf("0x2000", 16)

	var sb strings.Builder
	if err := tbl.Render(&sb); err != nil {
		t.Fatal(err)
	}
	want := []string{
		"Address Size Note",
		"------- ---- ----",
		"0x10    4096 none",
		"0x2000    16 none",
		"",
	}
	if diff := cmp.Diff(want, strings.Split(sb.String(), "\n")); diff != "" {
		t.Errorf("Render mismatch (-want +got):\n%s", diff)
	}
	if tbl.Len() != 2 {
		t.Errorf("Len() = %d", tbl.Len())
	}
}

func TestColorDoesNotChangeWidths(t *testing.T) {
	mark := func(s string) string { return "\033[31m" + s + "\033[0m" }
	tbl := New(Column{Header: "P", Format: mark}, Column{Header: "N"}).WithColor(true)
	tbl.AddRow("RW", "a")
	tbl.AddRow("\033[32mR\033[0m", "b")

	var sb strings.Builder
	tbl.Render(&sb)
	lines := strings.Split(sb.String(), "\n")
	if lines[2] != "\033[31mRW\033[0m a" {
		t.Errorf("coloured row = %q", lines[2])
	}
	if visibleLength(lines[3]) != len("R  b") {
		t.Errorf("pre-coloured cell mis-padded: %q", lines[3])
	}
}
