package main

import (
	"io"
	"os"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

// output is where command results go. ANSI sequences pass through
// go-colorable so they render on Windows consoles too.
type output struct {
	w     io.Writer
	color bool
}

func newOutput(noColor bool) *output {
	fd := os.Stdout.Fd()
	tty := isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
	if !tty || noColor {
		return &output{w: colorable.NewNonColorable(os.Stdout)}
	}
	return &output{w: colorable.NewColorableStdout(), color: true}
}
