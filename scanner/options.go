package scanner

import (
	"runtime"

	"memprobe/process"
)

const (
	DefaultStart      = process.ProcessMemoryAddress(0x10000)
	DefaultEnd        = process.ProcessMemoryAddress(0x7FFFFFFFFFFF)
	DefaultMaxResults = 1000
)

// Options bound a scan. MaxResults of 0 means no cap.
type Options struct {
	Start          process.ProcessMemoryAddress
	End            process.ProcessMemoryAddress
	ExecutableOnly bool
	WritableOnly   bool
	Alignment      int
	MaxResults     int
	Parallel       bool
	MaxDOP         int
}

// Option adjusts Options
type Option func(*Options)

func DefaultOptions() Options {
	return Options{
		Start:      DefaultStart,
		End:        DefaultEnd,
		Alignment:  1,
		MaxResults: DefaultMaxResults,
	}
}

// NewOptions applies options on top of DefaultOptions.
func NewOptions(options ...Option) Options {
	o := DefaultOptions()
	for _, opt := range options {
		opt(&o)
	}
	return o
}

func WithRange(start, end process.ProcessMemoryAddress) Option {
	return func(o *Options) {
		o.Start, o.End = start, end
	}
}

func WithAlignment(alignment int) Option {
	return func(o *Options) {
		o.Alignment = alignment
	}
}

func WithMaxResults(n int) Option {
	return func(o *Options) {
		o.MaxResults = n
	}
}

func ExecutableOnly() Option {
	return func(o *Options) {
		o.ExecutableOnly = true
	}
}

func WritableOnly() Option {
	return func(o *Options) {
		o.WritableOnly = true
	}
}

// WithParallel scans regions on up to maxdop goroutines. A maxdop of 0 uses
// every CPU.
func WithParallel(maxdop int) Option {
	return func(o *Options) {
		o.Parallel = true
		o.MaxDOP = maxdop
	}
}

func (o Options) stride() int {
	if o.Alignment < 1 {
		return 1
	}
	return o.Alignment
}

func (o Options) workers() int {
	n := runtime.NumCPU()
	if o.MaxDOP > 0 && o.MaxDOP < n {
		n = o.MaxDOP
	}
	return n
}

// accepts applies the region filters of a scan.
func (o Options) accepts(r process.Region) bool {
	switch {
	case r.State != process.StateCommitted:
		return false
	case !r.IsReadable():
		return false
	case o.ExecutableOnly && !r.IsExecutable():
		return false
	case o.WritableOnly && !r.IsWritable():
		return false
	}
	return true
}
