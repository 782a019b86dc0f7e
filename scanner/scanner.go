package scanner

import (
	"fmt"
	"sync"

	"memprobe/process"
	"memprobe/regions"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"
)

// Scanner searches the memory of one target.
type Scanner struct {
	h   process.Handle
	log *logger.Logger
}

func New(h process.Handle) *Scanner {
	return &Scanner{
		h:   h,
		log: logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, fmt.Sprintf("scanner-%d", h.PID()))),
	}
}

// span is the part of a region that falls inside the scan bounds. first is
// the offset of the first candidate, keeping candidates on the stride grid
// of the whole region when the bounds clip its start.
type span struct {
	base  process.ProcessMemoryAddress
	size  int
	first int
}

// spans lists the qualifying regions in ascending order, clipped to [Start, End).
func (s *Scanner) spans(opts Options) ([]span, error) {
	var out []span
	e := regions.New(s.h).SetStart(opts.Start).SetCeiling(opts.End)
	e.Each(func(r process.Region) bool {
		if !opts.accepts(r) {
			return true
		}
		start := max(r.Base, opts.Start)
		end := r.End()
		if end == 0 || end > opts.End {
			end = opts.End
		}
		if end > start {
			stride := uint64(opts.stride())
			first := (stride - uint64(start-r.Base)%stride) % stride
			out = append(out, span{base: start, size: int(end - start), first: int(first)})
		}
		return true
	})
	return out, e.Err()
}

// Scan returns the addresses matching p, in ascending order, capped at opts.MaxResults.
// A region that cannot be read aborts the scan.
func (s *Scanner) Scan(p Pattern, opts Options) ([]process.ProcessMemoryAddress, error) {
	if p.Len() == 0 {
		return nil, fmt.Errorf("%w: empty pattern", process.ErrInvalidPattern)
	}
	if opts.End <= opts.Start {
		return nil, nil
	}

	spans, err := s.spans(opts)
	if err != nil {
		return nil, err
	}
	s.log.Debugln("scanning", len(spans), "regions for", p.String())

	if opts.Parallel {
		if !process.IsShareable(s.h) {
			return nil, fmt.Errorf("%w: parallel scan needs a handle that can be shared between goroutines", process.ErrUnsupported)
		}
		return s.scanParallel(spans, p, opts)
	}

	var results []process.ProcessMemoryAddress
	for _, sp := range spans {
		matches, err := s.scanSpan(sp, p, opts.stride())
		if err != nil {
			return nil, err
		}
		results = append(results, matches...)
		if opts.MaxResults > 0 && len(results) >= opts.MaxResults {
			results = results[:opts.MaxResults]
			break
		}
	}

	s.log.Debugln("scan complete, found", len(results), "matches")
	return results, nil
}

// scanParallel scans spans on a bounded set of goroutines and merges the
// per-region results in region order, so the output equals a sequential scan.
func (s *Scanner) scanParallel(spans []span, p Pattern, opts Options) ([]process.ProcessMemoryAddress, error) {
	perSpan := make([][]process.ProcessMemoryAddress, len(spans))
	errs := make([]error, len(spans))

	// Create a semaphore to limit concurrency
	sem := make(chan struct{}, opts.workers())
	var wg sync.WaitGroup

	for i, sp := range spans {
		wg.Add(1)
		sem <- struct{}{}

		go func(i int, sp span) {
			defer func() {
				<-sem
				wg.Done()
			}()
			perSpan[i], errs[i] = s.scanSpan(sp, p, opts.stride())
		}(i, sp)
	}
	wg.Wait()

	var results []process.ProcessMemoryAddress
	for i := range spans {
		if errs[i] != nil {
			return nil, errs[i]
		}
		results = append(results, perSpan[i]...)
		if opts.MaxResults > 0 && len(results) >= opts.MaxResults {
			results = results[:opts.MaxResults]
			break
		}
	}

	s.log.Debugln("parallel scan complete, found", len(results), "matches")
	return results, nil
}

// ScanRegion scans [base, base+size) without consulting the region map.
func (s *Scanner) ScanRegion(base process.ProcessMemoryAddress, size int, p Pattern, opts Options) ([]process.ProcessMemoryAddress, error) {
	if p.Len() == 0 {
		return nil, fmt.Errorf("%w: empty pattern", process.ErrInvalidPattern)
	}
	results, err := s.scanSpan(span{base: base, size: size}, p, opts.stride())
	if err != nil {
		return nil, err
	}
	if opts.MaxResults > 0 && len(results) > opts.MaxResults {
		results = results[:opts.MaxResults]
	}
	return results, nil
}

func (s *Scanner) scanSpan(sp span, p Pattern, stride int) ([]process.ProcessMemoryAddress, error) {
	if sp.size < sp.first+p.Len() {
		return nil, nil
	}

	data := make([]byte, sp.size)
	n, err := s.h.ReadMemory(sp.base, data)
	if err != nil {
		return nil, fmt.Errorf("%w: region %s (%d bytes): %w", process.ErrReadFailed, sp.base, sp.size, err)
	}
	if n != sp.size {
		return nil, process.ReadError(sp.base, fmt.Sprintf("partial region read: %d of %d bytes", n, sp.size))
	}

	offsets := findPatternMatches(data, p, sp.first, stride)
	out := make([]process.ProcessMemoryAddress, len(offsets))
	for i, off := range offsets {
		out[i] = sp.base.Add(process.ProcessMemorySize(off))
	}
	return out, nil
}

// FindValue scans for the encoded bytes of v.
func (s *Scanner) FindValue(v process.Value, opts Options) ([]process.ProcessMemoryAddress, error) {
	return s.Scan(Exact(v.Bytes()), opts)
}

// FindFirst returns the lowest matching address.
func (s *Scanner) FindFirst(p Pattern, opts Options) (process.ProcessMemoryAddress, error) {
	opts.MaxResults = 1
	results, err := s.Scan(p, opts)
	if err != nil {
		return 0, err
	}
	if len(results) == 0 {
		return 0, fmt.Errorf("%w: %s", process.ErrPatternNotFound, p)
	}
	return results[0], nil
}
