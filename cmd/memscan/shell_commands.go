package main

import (
	"fmt"
	"strconv"

	"memprobe/process"
	"memprobe/reader"
	"memprobe/scanner"
	"memprobe/search"
	"memprobe/table"

	"github.com/Moonlight-Companies/gologger/coloransi"
)

func shellCommands() []command {
	return []command{
		{aliases: []string{"help", "h"}, fn: (*Term).help, help: "Prints the help message."},
		{aliases: []string{"regions", "rg"}, fn: cmdRegions, help: `List regions.

	regions [all|committed|exec|heap|stack|image|large]`},
		{aliases: []string{"read", "r"}, fn: cmdRead, help: `Read a value.

	read <address> [type] [size]`},
		{aliases: []string{"dump", "x"}, fn: cmdDump, help: `Hex dump memory.

	dump <address> [size]`},
		{aliases: []string{"write", "w"}, fn: cmdWrite, help: `Write a value through the safe writer.

	write <address> <type> <value>`},
		{aliases: []string{"chain", "pc"}, fn: cmdChain, help: `Follow a pointer chain and read the value at its end.

	chain <type> <base> <offset>...`},
		{aliases: []string{"scan", "s"}, fn: cmdScan, help: `Start a new scan session.

	scan <type> <value|pattern>
	scan bytes "48 8B ?? 05"`},
		{aliases: []string{"next", "n"}, fn: cmdNext, help: `Narrow the session.

	next eq|ne|gt|lt|ge|le    compare against the previous round
	next <value>              keep candidates holding exactly value`},
		{aliases: []string{"list", "ls"}, fn: cmdList, help: `Show candidates.

	list [limit]`},
		{aliases: []string{"set"}, fn: cmdSet, help: `Write value to every candidate.

	set <value>`},
		{aliases: []string{"reset"}, fn: cmdReset, help: "Forget the current scan session."},
		{aliases: []string{"search", "ps"}, fn: cmdSearch, help: `Find pointer paths from base to a value.

	search <base> <type> <value> [depth]`},
		{aliases: []string{"backups", "bk"}, fn: cmdBackups, help: "List the bytes saved before each write."},
		{aliases: []string{"undo", "u"}, fn: cmdUndo, help: "Restore the most recent backup."},
		{aliases: []string{"restore"}, fn: cmdRestore, help: "Restore every backup, newest first."},
		{aliases: []string{"exit", "quit", "q"}, fn: func(*Term, []string) error { return errExit }, help: "Exit the shell."},
	}
}

func argsAtLeast(args []string, n int, usage string) error {
	if len(args) < n {
		return fmt.Errorf("usage: %s", usage)
	}
	return nil
}

func cmdRegions(t *Term, args []string) error {
	filter := ""
	if len(args) > 0 {
		filter = args[0]
	}
	return printRegions(t.out, t.sess, filter)
}

func cmdRead(t *Term, args []string) error {
	if err := argsAtLeast(args, 1, "read <address> [type] [size]"); err != nil {
		return err
	}
	addr, err := parseAddress(args[0])
	if err != nil {
		return err
	}
	kind := process.KindU32
	if len(args) > 1 {
		if kind, err = process.ParseValueKind(args[1]); err != nil {
			return err
		}
	}
	size := 64
	if len(args) > 2 {
		if size, err = strconv.Atoi(args[2]); err != nil {
			return err
		}
	}
	return readAndPrint(t.out, t.sess, addr, kind, size, false)
}

func cmdDump(t *Term, args []string) error {
	if err := argsAtLeast(args, 1, "dump <address> [size]"); err != nil {
		return err
	}
	addr, err := parseAddress(args[0])
	if err != nil {
		return err
	}
	size := 128
	if len(args) > 1 {
		if size, err = strconv.Atoi(args[1]); err != nil {
			return err
		}
	}
	return readAndPrint(t.out, t.sess, addr, process.KindBytes, size, true)
}

func cmdWrite(t *Term, args []string) error {
	if err := argsAtLeast(args, 3, "write <address> <type> <value>"); err != nil {
		return err
	}
	addr, err := parseAddress(args[0])
	if err != nil {
		return err
	}
	kind, err := process.ParseValueKind(args[1])
	if err != nil {
		return err
	}
	return writeValue(t.sess, addr, kind, args[2], false)
}

func cmdChain(t *Term, args []string) error {
	if err := argsAtLeast(args, 2, "chain <type> <base> <offset>..."); err != nil {
		return err
	}
	kind, err := process.ParseValueKind(args[0])
	if err != nil {
		return err
	}
	base, err := parseAddress(args[1])
	if err != nil {
		return err
	}
	offsets, err := parseOffsets(args[2:])
	if err != nil {
		return err
	}
	addr, err := reader.ReadPointerChain(t.sess.Reader(), base, offsets...)
	if err != nil {
		return err
	}
	return readAndPrint(t.out, t.sess, addr, kind, 64, false)
}

func cmdScan(t *Term, args []string) error {
	if err := argsAtLeast(args, 2, "scan <type> <value|pattern>"); err != nil {
		return err
	}
	kind, err := process.ParseValueKind(args[0])
	if err != nil {
		return err
	}
	p, v, err := parseScanTarget(args[1], kind)
	if err != nil {
		return err
	}

	ss := t.sess.Scanner().NewSession()
	var n int
	if v != nil {
		n, err = ss.FirstValue(*v, t.sess.ScanOptions())
	} else {
		n, err = ss.First(p, t.sess.ScanOptions())
	}
	if err != nil {
		return err
	}
	t.scan = ss
	fmt.Fprintf(t.out.w, "%d candidates\n", n)
	return nil
}

func (t *Term) session() (*scanner.Session, error) {
	if t.scan == nil {
		return nil, scanner.ErrNoInitialScan
	}
	return t.scan, nil
}

func cmdNext(t *Term, args []string) error {
	ss, err := t.session()
	if err != nil {
		return err
	}
	if err := argsAtLeast(args, 1, "next eq|ne|gt|lt|ge|le|<value>"); err != nil {
		return err
	}

	var n int
	if cmp, cerr := scanner.ParseComparison(args[0]); cerr == nil {
		n, err = ss.Next(cmp)
	} else {
		v, perr := process.ParseValue(args[0], ss.Kind)
		if perr != nil {
			return fmt.Errorf("%q is neither a comparison nor a %s value: %w", args[0], ss.Kind, perr)
		}
		n, err = ss.NextValue(v)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(t.out.w, "%d candidates\n", n)
	return nil
}

func cmdList(t *Term, args []string) error {
	ss, err := t.session()
	if err != nil {
		return err
	}
	limit := 50
	if len(args) > 0 {
		if limit, err = strconv.Atoi(args[0]); err != nil {
			return err
		}
	}

	results := ss.Results()
	tbl := table.New(
		table.Column{Header: "Address", Format: table.Colored(coloransi.Cyan)},
		table.Column{Header: "Value", AlignRight: true, Format: table.Colored(coloransi.Green)},
		table.Column{Header: "Previous", AlignRight: true},
	).WithColor(t.out.color)
	for i, r := range results {
		if limit > 0 && i >= limit {
			break
		}
		prev := ""
		if r.Previous != nil {
			prev = r.Previous.String()
		}
		tbl.AddRow(r.Address.String(), r.Value.String(), prev)
	}
	if err := tbl.Render(t.out.w); err != nil {
		return err
	}
	if more := len(results) - tbl.Len(); more > 0 {
		fmt.Fprintf(t.out.w, "... %d more\n", more)
	}
	fmt.Fprintln(t.out.w, ss)
	return nil
}

func cmdSet(t *Term, args []string) error {
	ss, err := t.session()
	if err != nil {
		return err
	}
	if err := argsAtLeast(args, 1, "set <value>"); err != nil {
		return err
	}
	v, err := process.ParseValue(args[0], ss.Kind)
	if err != nil {
		return err
	}

	var failed int
	for _, addr := range ss.Candidates() {
		if err := t.sess.SafeWriter().WriteValue(addr, v); err != nil {
			failed++
			log.Warn("set ", addr, ": ", err)
		}
	}
	fmt.Fprintf(t.out.w, "wrote %s to %d candidates (%d failed)\n", v, ss.Len()-failed, failed)
	return nil
}

func cmdReset(t *Term, args []string) error {
	if t.scan != nil {
		t.scan.Reset()
	}
	t.scan = nil
	return nil
}

func cmdSearch(t *Term, args []string) error {
	if err := argsAtLeast(args, 3, "search <base> <type> <value> [depth]"); err != nil {
		return err
	}
	base, err := parseAddress(args[0])
	if err != nil {
		return err
	}
	kind, err := process.ParseValueKind(args[1])
	if err != nil {
		return err
	}
	p, _, err := parseScanTarget(args[2], kind)
	if err != nil {
		return err
	}
	depth := 3
	if len(args) > 3 {
		if depth, err = strconv.Atoi(args[3]); err != nil {
			return err
		}
	}

	results, err := search.Search(t.sess.Reader(), t.sess.Regions().All(), base,
		search.WithPattern(p), search.WithMaxDepth(depth))
	if err != nil {
		return err
	}
	printSearch(t.out.w, results)
	return nil
}

func cmdBackups(t *Term, args []string) error {
	b := t.sess.Backup()
	tbl := table.New(
		table.Column{Header: "#", AlignRight: true},
		table.Column{Header: "Address", Format: table.Colored(coloransi.Cyan)},
		table.Column{Header: "Size", AlignRight: true},
		table.Column{Header: "Time"},
		table.Column{Header: "Description"},
	).WithColor(t.out.color)
	for i, e := range b.Entries() {
		tbl.AddRowf(i, e.Address, e.Size(), e.Timestamp.Format("15:04:05.000"), e.Description)
	}
	if err := tbl.Render(t.out.w); err != nil {
		return err
	}
	fmt.Fprintf(t.out.w, "%d backups, %d bytes stored\n", b.Count(), b.TotalSize())
	return nil
}

func cmdUndo(t *Term, args []string) error {
	return t.sess.Backup().RestoreLast()
}

func cmdRestore(t *Term, args []string) error {
	return t.sess.Backup().RestoreAll()
}
