package main

import (
	"fmt"
	"io"
	"strings"

	"memprobe/hexdump"
	"memprobe/process"
	"memprobe/reader"
	"memprobe/regions"
	"memprobe/scanner"
	"memprobe/search"
	"memprobe/session"
	"memprobe/table"

	"github.com/Moonlight-Companies/gologger/coloransi"
)

// regionFilter maps a preset name onto a filter. "" and "all" keep everything.
func regionFilter(name string) (*regions.FilterCriteria, error) {
	switch strings.ToLower(name) {
	case "", "all":
		return regions.NewFilter(), nil
	case "committed":
		return regions.NewFilter().CommittedOnly(), nil
	case "exec", "code":
		return regions.ExecutableCode(), nil
	case "heap":
		return regions.HeapRegions(), nil
	case "stack":
		return regions.StackRegions(), nil
	case "image":
		return regions.ImageRegions(), nil
	case "large":
		return regions.LargeRegions(), nil
	}
	return nil, fmt.Errorf("unknown region filter %q (all, committed, exec, heap, stack, image, large)", name)
}

func printRegions(out *output, sess *session.Session, filter string) error {
	f, err := regionFilter(filter)
	if err != nil {
		return err
	}
	all := f.Apply(sess.Regions().All())

	tbl := table.New(
		table.Column{Header: "Base", Format: table.Colored(coloransi.Cyan)},
		table.Column{Header: "End"},
		table.Column{Header: "Size", AlignRight: true},
		table.Column{Header: "State"},
		table.Column{Header: "Kind"},
		table.Column{Header: "Prot", Format: table.Protection},
		table.Column{Header: "Path", Blank: " "},
	).WithColor(out.color)
	for _, r := range all {
		tbl.AddRow(r.Base.String(), r.End().String(), fmt.Sprintf("%#x", uint64(r.Size)), r.State.String(), r.Kind.String(), r.Protect.String(), r.Path)
	}
	if err := tbl.Render(out.w); err != nil {
		return err
	}
	fmt.Fprintf(out.w, "%d regions, %s\n", len(all), f.TotalSize(all))
	return nil
}

// readAndPrint reads kind at addr. Bytes are shown as a hex dump of size bytes.
func readAndPrint(out *output, sess *session.Session, addr process.ProcessMemoryAddress, kind process.ValueKind, size int, safe bool) error {
	var r interface {
		reader.RawReader
		ReadValue(process.ProcessMemoryAddress, process.ValueKind) (process.Value, error)
	} = sess.Reader()
	if safe {
		r = sess.SafeReader()
	}

	if kind != process.KindBytes {
		v, err := r.ReadValue(addr, kind)
		if err != nil {
			return err
		}
		fmt.Fprintf(out.w, "%s %s = %s\n", addr, kind, v)
		return nil
	}

	if limit := sess.Config().Reader.MaxReadSize; size > limit {
		return fmt.Errorf("%w: read of %d bytes exceeds max_read_size %d", process.ErrInvalidValueType, size, limit)
	}
	data, err := r.ReadBytes(addr, size)
	if err != nil {
		return err
	}
	dump(out, sess, data, addr, nil)
	return nil
}

func dump(out *output, sess *session.Session, data []byte, addr process.ProcessMemoryAddress, highlight *scanner.Pattern) {
	opts := hexdump.DefaultOptions()
	opts.Address = addr
	opts.Plain = !out.color
	opts.Highlight = highlight
	opts.Regions = regions.NewFilter().CommittedOnly().Readable(true).Apply(sess.Regions().All())
	hexdump.DumpToWriter(out.w, data, opts)
}

// writeValue writes text as kind at addr, through the safe writer unless raw is set.
func writeValue(sess *session.Session, addr process.ProcessMemoryAddress, kind process.ValueKind, text string, raw bool) error {
	v, err := process.ParseValue(text, kind)
	if err != nil {
		return err
	}
	if raw {
		return sess.Writer().WriteValue(addr, v)
	}
	return sess.SafeWriter().WriteValue(addr, v)
}

// parseScanTarget turns text into a pattern: an AOB for bytes, the encoded
// value otherwise.
func parseScanTarget(text string, kind process.ValueKind) (scanner.Pattern, *process.Value, error) {
	if kind == process.KindBytes {
		p, err := scanner.ParsePattern(text)
		return p, nil, err
	}
	v, err := process.ParseValue(text, kind)
	if err != nil {
		return scanner.Pattern{}, nil, err
	}
	return scanner.Exact(v.Bytes()), &v, nil
}

// dumpHits prints a short hex dump around each hit with the pattern highlighted.
func dumpHits(out *output, sess *session.Session, p scanner.Pattern, hits []process.ProcessMemoryAddress) {
	const before = 16
	for _, hit := range hits {
		start := hit
		if start >= before {
			start -= before
		}
		size := int(hit-start) + p.Len() + before
		data, err := sess.SafeReader().ReadBytes(start, size)
		if err != nil {
			// The context may cross into an unreadable page; fall back to the hit itself.
			if data, err = sess.Reader().ReadBytes(hit, p.Len()); err != nil {
				fmt.Fprintf(out.w, "%s: %v\n", hit, err)
				continue
			}
			start = hit
		}
		fmt.Fprintf(out.w, "match at %s\n", hit)
		dump(out, sess, data, start, &p)
	}
}

func printSearch(w io.Writer, results []search.SearchResult) {
	for _, r := range results {
		offsets := make([]string, len(r.Path))
		for i, o := range r.Path {
			offsets[i] = fmt.Sprintf("%#x", o)
		}
		fmt.Fprintf(w, "%s  [%s]\n", r.Address, strings.Join(offsets, ", "))
	}
	fmt.Fprintf(w, "%d paths\n", len(results))
}
