// Package reader reads raw buffers, typed values and strings from a target,
// either through a short-lived cache or with region validation before every read.
package reader

import (
	"errors"
	"fmt"
	"time"

	"memprobe/process"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"
)

// RawReader is the minimum the typed helpers need.
type RawReader interface {
	ReadBytes(addr process.ProcessMemoryAddress, size int) ([]byte, error)
}

// Reader serves reads through a ReadCache.
type Reader struct {
	h     process.Handle
	cache *ReadCache
	log   *logger.Logger
}

// Option configures a Reader
type Option func(*Reader)

// WithCache sizes the read cache. A capacity of 0 disables it.
func WithCache(capacity int, maxAge time.Duration) Option {
	return func(r *Reader) {
		r.cache = NewReadCache(capacity, maxAge)
	}
}

func New(h process.Handle, options ...Option) *Reader {
	r := &Reader{
		h:     h,
		cache: NewReadCache(DefaultCacheEntries, DefaultCacheMaxAge),
		log:   logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, fmt.Sprintf("reader-%d", h.PID()))),
	}
	for _, opt := range options {
		opt(r)
	}
	return r
}

// ReadBytes returns size bytes at addr, from the cache when a fresh entry covers them.
func (r *Reader) ReadBytes(addr process.ProcessMemoryAddress, size int) ([]byte, error) {
	if size == 0 {
		return []byte{}, nil
	}
	if data, ok := r.cache.Get(addr, size); ok {
		return data, nil
	}

	data, err := readRaw(r.h, addr, size)
	if err != nil {
		return nil, err
	}
	r.cache.Put(addr, data)
	return data, nil
}

// ReadValue reads a value of the given kind. Bytes and String kinds read a fixed window.
func (r *Reader) ReadValue(addr process.ProcessMemoryAddress, kind process.ValueKind) (process.Value, error) {
	return readValue(r, addr, kind)
}

// ReadString reads up to maxLen bytes and stops at the first NUL.
func (r *Reader) ReadString(addr process.ProcessMemoryAddress, maxLen int) (string, error) {
	return readString(r, addr, maxLen)
}

// ReadWideString reads up to maxChars UTF-16 code units and stops at the first NUL.
func (r *Reader) ReadWideString(addr process.ProcessMemoryAddress, maxChars int) (string, error) {
	return readWideString(r, addr, maxChars)
}

// Invalidate drops cached data overlapping [addr, addr+size).
func (r *Reader) Invalidate(addr process.ProcessMemoryAddress, size int) {
	r.cache.Invalidate(addr, size)
}

func (r *Reader) ClearCache() {
	r.cache.Clear()
	r.log.Debugln("cache cleared")
}

func (r *Reader) CacheSize() int {
	return r.cache.Len()
}

// readRaw performs one live read and rejects short transfers.
func readRaw(h process.Handle, addr process.ProcessMemoryAddress, size int) ([]byte, error) {
	buf := make([]byte, size)
	n, err := h.ReadMemory(addr, buf)
	if err != nil {
		return nil, readFailed(addr, err)
	}
	if n != size {
		return nil, process.ReadError(addr, fmt.Sprintf("partial read: %d of %d bytes", n, size))
	}
	return buf, nil
}

func readFailed(addr process.ProcessMemoryAddress, err error) error {
	if errors.Is(err, process.ErrReadFailed) {
		return err
	}
	return fmt.Errorf("%w at %s: %w", process.ErrReadFailed, addr, err)
}
