package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"memprobe/scanner"
	"memprobe/session"

	"github.com/derekparker/trie"
	"github.com/go-delve/liner"
	"github.com/google/shlex"
)

const (
	prompt      = "(memscan) "
	historyFile = ".memscan_history"
)

type cmdFn func(t *Term, args []string) error

type command struct {
	aliases []string
	fn      cmdFn
	help    string
}

func (c command) match(name string) bool {
	for _, v := range c.aliases {
		if v == name {
			return true
		}
	}
	return false
}

// Term is the interactive shell. It keeps one scan session alive between commands.
type Term struct {
	sess *session.Session
	out  *output
	line *liner.State
	cmds []command
	scan *scanner.Session
}

func newTerm(sess *session.Session, out *output) *Term {
	t := &Term{
		sess: sess,
		out:  out,
		line: liner.NewLiner(),
	}
	t.cmds = shellCommands()
	return t
}

var errExit = errors.New("exit")

func (t *Term) Run() error {
	defer t.line.Close()
	t.line.SetCtrlCAborts(true)

	cmds := trie.New()
	for _, cmd := range t.cmds {
		for _, alias := range cmd.aliases {
			cmds.Add(alias, nil)
		}
	}
	t.line.SetCompleter(func(line string) []string {
		return cmds.PrefixSearch(line)
	})

	history := historyPath()
	if f, err := os.Open(history); err == nil {
		t.line.ReadHistory(f)
		f.Close()
	}
	defer t.saveHistory(history)

	fmt.Fprintf(t.out.w, "attached to pid %d. Type 'help' for list of commands.\n", t.sess.PID())

	for {
		input, err := t.line.Prompt(prompt)
		if err != nil {
			if err == io.EOF || errors.Is(err, liner.ErrPromptAborted) {
				fmt.Fprintln(t.out.w, "exit")
				return nil
			}
			return fmt.Errorf("prompt for input failed: %w", err)
		}
		if strings.TrimSpace(input) == "" {
			continue
		}
		t.line.AppendHistory(input)

		if err := t.Call(input); err != nil {
			if errors.Is(err, errExit) {
				return nil
			}
			fmt.Fprintf(os.Stderr, "Command failed: %s\n", err)
		}
	}
}

// Call splits input shell-style and runs the named command.
func (t *Term) Call(input string) error {
	args, err := shlex.Split(input)
	if err != nil {
		return fmt.Errorf("parse %q: %w", input, err)
	}
	if len(args) == 0 {
		return nil
	}
	for _, cmd := range t.cmds {
		if cmd.match(args[0]) {
			return cmd.fn(t, args[1:])
		}
	}
	return fmt.Errorf("command %q not available", args[0])
}

func (t *Term) help(args []string) error {
	fmt.Fprintln(t.out.w, "The following commands are available:")
	w := new(tabwriter.Writer)
	w.Init(t.out.w, 0, 8, 0, '-', 0)
	for _, cmd := range t.cmds {
		h := cmd.help
		if idx := strings.Index(h, "\n"); idx >= 0 {
			h = h[:idx]
		}
		if len(cmd.aliases) > 1 {
			fmt.Fprintf(w, "    %s (alias: %s) \t %s\n", cmd.aliases[0], strings.Join(cmd.aliases[1:], " | "), h)
		} else {
			fmt.Fprintf(w, "    %s \t %s\n", cmd.aliases[0], h)
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintln(t.out.w)
	return nil
}

func (t *Term) saveHistory(path string) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		log.Warn("unable to save history: ", err)
		return
	}
	defer f.Close()
	t.line.WriteHistory(f)
}

func historyPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, historyFile)
}
