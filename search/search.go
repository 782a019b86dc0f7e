// Package search walks pointer graphs outward from a base address looking for
// a value, and reports the offset paths that reach it.
package search

import (
	"encoding/binary"
	"fmt"
	"sort"

	"memprobe/process"
	"memprobe/reader"
	"memprobe/scanner"
)

// Searcher holds configuration for the search
type Searcher struct {
	MaxStructSize uint
	MaxDepth      int
	MinAlignment  uint
	MaxResults    int
	Target        *scanner.Pattern
}

// Option is a function that configures a Searcher
type Option func(*Searcher)

func WithMaxStructSize(size uint) Option {
	return func(s *Searcher) {
		s.MaxStructSize = size
	}
}

func WithMaxDepth(depth int) Option {
	return func(s *Searcher) {
		s.MaxDepth = depth
	}
}

func WithMinAlignment(align uint) Option {
	return func(s *Searcher) {
		s.MinAlignment = align
	}
}

func WithMaxResults(n int) Option {
	return func(s *Searcher) {
		s.MaxResults = n
	}
}

// WithPattern searches for bytes matching p.
func WithPattern(p scanner.Pattern) Option {
	return func(s *Searcher) {
		s.Target = &p
	}
}

// WithValue searches for the encoded bytes of v.
func WithValue(v process.Value) Option {
	return WithPattern(scanner.Exact(v.Bytes()))
}

// SearchResult is one path from the base to a match. Path can be passed
// straight to reader.ReadPointerChain.
type SearchResult struct {
	Path    []int64
	Address process.ProcessMemoryAddress
}

func (r SearchResult) String() string {
	return fmt.Sprintf("%s %v", r.Address, r.Path)
}

// Search performs a depth-limited walk from base. A qword is followed as a
// pointer only when it lands in a committed readable region of regions.
func Search(r reader.RawReader, regions []process.Region, base process.ProcessMemoryAddress, options ...Option) ([]SearchResult, error) {
	s := &Searcher{
		MaxStructSize: 256,
		MaxDepth:      3,
		MinAlignment:  4,
		MaxResults:    1000,
	}
	for _, opt := range options {
		opt(s)
	}

	if s.Target == nil || s.Target.Len() == 0 {
		return nil, fmt.Errorf("%w: no search target specified", process.ErrInvalidPattern)
	}
	if s.MinAlignment == 0 {
		s.MinAlignment = 1
	}

	valid := readable(regions)
	var results []SearchResult
	visited := make(map[process.ProcessMemoryAddress]bool)

	var walk func(addr process.ProcessMemoryAddress, depth int, path []int64)
	walk = func(addr process.ProcessMemoryAddress, depth int, path []int64) {
		if depth > s.MaxDepth || visited[addr] || s.full(results) {
			return
		}
		visited[addr] = true

		region, ok := find(valid, addr)
		if !ok {
			return
		}
		size := min(uint64(s.MaxStructSize), uint64(region.Remaining(addr)))
		data, err := r.ReadBytes(addr, int(size))
		if err != nil {
			return
		}

		for offset := uint(0); offset < uint(len(data)); offset += s.MinAlignment {
			if s.Target.MatchAt(data, int(offset)) {
				results = append(results, SearchResult{
					Path:    extend(path, int64(offset)),
					Address: addr.Add(process.ProcessMemorySize(offset)),
				})
				if s.full(results) {
					return
				}
			}

			if offset%reader.PointerSize != 0 || depth >= s.MaxDepth || offset+reader.PointerSize > uint(len(data)) {
				continue
			}
			ptr := process.ProcessMemoryAddress(binary.LittleEndian.Uint64(data[offset:]))
			if _, ok := find(valid, ptr); ok && !ptr.IsNull() {
				walk(ptr, depth+1, extend(path, int64(offset)))
			}
		}
	}

	walk(base, 0, nil)
	return results, nil
}

func (s *Searcher) full(results []SearchResult) bool {
	return s.MaxResults > 0 && len(results) >= s.MaxResults
}

func extend(path []int64, offset int64) []int64 {
	out := make([]int64, len(path), len(path)+1)
	copy(out, path)
	return append(out, offset)
}

func readable(regions []process.Region) []process.Region {
	var out []process.Region
	for _, r := range regions {
		if r.IsCommitted() && r.IsReadable() {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Base < out[j].Base })
	return out
}

func find(regions []process.Region, addr process.ProcessMemoryAddress) (process.Region, bool) {
	i := sort.Search(len(regions), func(i int) bool { return regions[i].End() > addr })
	if i < len(regions) && regions[i].Contains(addr) {
		return regions[i], true
	}
	return process.Region{}, false
}
