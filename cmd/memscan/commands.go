package main

import (
	"fmt"

	"memprobe/process"
	"memprobe/reader"
	"memprobe/scanner"
	"memprobe/search"
	"memprobe/writer"

	"github.com/urfave/cli"
)

var regionsCommand = cli.Command{
	Name:  "regions",
	Usage: "list the target's memory regions",
	Flags: []cli.Flag{
		cli.StringFlag{Name: "filter, f", Usage: "all, committed, exec, heap, stack, image or large"},
	},
	Action: func(c *cli.Context) error {
		sess, err := openSession(c, process.AccessQuery)
		if err != nil {
			return err
		}
		defer sess.Close()

		return printRegions(newOutput(c.GlobalBool("no-color")), sess, c.String("filter"))
	},
}

var readCommand = cli.Command{
	Name:      "read",
	Usage:     "read a value or a byte range",
	ArgsUsage: "<address> [offset...]",
	Flags: []cli.Flag{
		cli.StringFlag{Name: "type, t", Value: "bytes", Usage: "value type (i8..u64, f32, f64, bytes, string)"},
		cli.IntFlag{Name: "size, s", Value: 64, Usage: "bytes to dump for --type bytes"},
		cli.BoolFlag{Name: "safe", Usage: "validate the region before reading"},
	},
	Action: func(c *cli.Context) error {
		addr, err := parseAddress(c.Args().First())
		if err != nil {
			return err
		}
		offsets, err := parseOffsets(c.Args().Tail())
		if err != nil {
			return err
		}
		kind, err := process.ParseValueKind(c.String("type"))
		if err != nil {
			return err
		}

		sess, err := openSession(c, process.AccessReadOnly)
		if err != nil {
			return err
		}
		defer sess.Close()

		if len(offsets) > 0 {
			if addr, err = reader.ReadPointerChain(sess.Reader(), addr, offsets...); err != nil {
				return err
			}
		}
		return readAndPrint(newOutput(c.GlobalBool("no-color")), sess, addr, kind, c.Int("size"), c.Bool("safe"))
	},
}

var writeCommand = cli.Command{
	Name:      "write",
	Usage:     "write a value",
	ArgsUsage: "<address> <value>",
	Flags: []cli.Flag{
		cli.StringFlag{Name: "type, t", Value: "i32", Usage: "value type"},
		cli.BoolFlag{Name: "raw", Usage: "skip address checks, backup and verification"},
		cli.BoolFlag{Name: "unprotect", Usage: "make the page writable for the duration of the write"},
	},
	Action: func(c *cli.Context) error {
		if c.NArg() != 2 {
			return fmt.Errorf("write expects <address> <value>, got %d arguments", c.NArg())
		}
		addr, err := parseAddress(c.Args().First())
		if err != nil {
			return err
		}
		kind, err := process.ParseValueKind(c.String("type"))
		if err != nil {
			return err
		}

		sess, err := openSession(c, process.AccessReadWrite)
		if err != nil {
			return err
		}
		defer sess.Close()

		write := func() error { return writeValue(sess, addr, kind, c.Args().Get(1), c.Bool("raw")) }
		if c.Bool("unprotect") {
			v, err := process.ParseValue(c.Args().Get(1), kind)
			if err != nil {
				return err
			}
			err = writer.WithWritable(sess.Handle(), addr, v.Size(), write)
		} else {
			err = write()
		}
		if err != nil {
			return err
		}
		log.Infoln("wrote", kind, "at", addr)
		return nil
	},
}

var scanCommand = cli.Command{
	Name:      "scan",
	Usage:     "scan for a byte pattern or value",
	ArgsUsage: "<pattern|value>",
	Flags: []cli.Flag{
		cli.StringFlag{Name: "type, t", Value: "bytes", Usage: "bytes for an AOB like '48 8B ?? 05', or a value type"},
		cli.StringFlag{Name: "start", Usage: "lowest address to scan"},
		cli.StringFlag{Name: "end", Usage: "address to stop before"},
		cli.IntFlag{Name: "align, a", Usage: "match alignment"},
		cli.IntFlag{Name: "max, m", Usage: "stop after this many matches"},
		cli.BoolFlag{Name: "exec", Usage: "executable regions only"},
		cli.BoolFlag{Name: "writable", Usage: "writable regions only"},
		cli.IntFlag{Name: "parallel", Usage: "scan regions with up to N workers"},
		cli.BoolFlag{Name: "dump", Usage: "hex dump each match"},
	},
	Action: func(c *cli.Context) error {
		kind, err := process.ParseValueKind(c.String("type"))
		if err != nil {
			return err
		}
		p, _, err := parseScanTarget(c.Args().First(), kind)
		if err != nil {
			return err
		}
		opts, err := scanOptionsFromFlags(c)
		if err != nil {
			return err
		}

		sess, err := openSession(c, process.AccessReadOnly)
		if err != nil {
			return err
		}
		defer sess.Close()

		hits, err := sess.Scanner().Scan(p, sess.ScanOptions(opts...))
		if err != nil {
			return err
		}

		out := newOutput(c.GlobalBool("no-color"))
		if c.Bool("dump") {
			dumpHits(out, sess, p, hits)
		} else {
			for _, hit := range hits {
				fmt.Fprintln(out.w, hit)
			}
		}
		fmt.Fprintf(out.w, "%d matches for %s\n", len(hits), p)
		return nil
	},
}

func scanOptionsFromFlags(c *cli.Context) ([]scanner.Option, error) {
	var opts []scanner.Option
	if c.IsSet("start") || c.IsSet("end") {
		start, end := process.ProcessMemoryAddress(scanner.DefaultStart), process.ProcessMemoryAddress(scanner.DefaultEnd)
		var err error
		if c.IsSet("start") {
			if start, err = parseAddress(c.String("start")); err != nil {
				return nil, err
			}
		}
		if c.IsSet("end") {
			if end, err = parseAddress(c.String("end")); err != nil {
				return nil, err
			}
		}
		opts = append(opts, scanner.WithRange(start, end))
	}
	if c.IsSet("align") {
		opts = append(opts, scanner.WithAlignment(c.Int("align")))
	}
	if c.IsSet("max") {
		opts = append(opts, scanner.WithMaxResults(c.Int("max")))
	}
	if c.Bool("exec") {
		opts = append(opts, scanner.ExecutableOnly())
	}
	if c.Bool("writable") {
		opts = append(opts, scanner.WritableOnly())
	}
	if c.IsSet("parallel") {
		opts = append(opts, scanner.WithParallel(c.Int("parallel")))
	}
	return opts, nil
}

var searchCommand = cli.Command{
	Name:      "search",
	Usage:     "find pointer paths from a base address to a value",
	ArgsUsage: "<base> <value>",
	Flags: []cli.Flag{
		cli.StringFlag{Name: "type, t", Value: "i32", Usage: "value type, or bytes for an AOB"},
		cli.IntFlag{Name: "depth, d", Value: 3, Usage: "pointer levels to follow"},
		cli.IntFlag{Name: "struct-size", Value: 256, Usage: "bytes to examine per level"},
		cli.IntFlag{Name: "align", Value: 4, Usage: "candidate offset alignment"},
	},
	Action: func(c *cli.Context) error {
		if c.NArg() != 2 {
			return fmt.Errorf("search expects <base> <value>, got %d arguments", c.NArg())
		}
		base, err := parseAddress(c.Args().First())
		if err != nil {
			return err
		}
		kind, err := process.ParseValueKind(c.String("type"))
		if err != nil {
			return err
		}
		p, _, err := parseScanTarget(c.Args().Get(1), kind)
		if err != nil {
			return err
		}

		sess, err := openSession(c, process.AccessReadOnly)
		if err != nil {
			return err
		}
		defer sess.Close()

		results, err := search.Search(sess.Reader(), sess.Regions().All(), base,
			search.WithPattern(p),
			search.WithMaxDepth(c.Int("depth")),
			search.WithMaxStructSize(uint(c.Int("struct-size"))),
			search.WithMinAlignment(uint(c.Int("align"))),
		)
		if err != nil {
			return err
		}
		printSearch(newOutput(c.GlobalBool("no-color")).w, results)
		return nil
	},
}

var shellCommand = cli.Command{
	Name:  "shell",
	Usage: "interactive scan, narrow and patch session",
	Action: func(c *cli.Context) error {
		sess, err := openSession(c, process.AccessReadWrite)
		if err != nil {
			return err
		}
		defer sess.Close()

		return newTerm(sess, newOutput(c.GlobalBool("no-color"))).Run()
	},
}
