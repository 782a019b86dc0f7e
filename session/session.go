// Package session opens a target once and hands the same handle to the
// reader, writer and scanner facades for as long as the session lives.
package session

import (
	"fmt"
	"sync"

	"memprobe/config"
	"memprobe/process"
	"memprobe/reader"
	"memprobe/regions"
	"memprobe/scanner"
	"memprobe/writer"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"
)

// Session owns one process handle. Close releases it; every facade handed
// out fails with process.ErrProcessNotOpen afterwards.
type Session struct {
	h   *sharedHandle
	cfg config.Config
	log *logger.Logger

	reader     *reader.Reader
	safeReader *reader.SafeReader
	writer     *writer.Writer
	safeWriter *writer.SafeWriter
	backup     *writer.Backup
	scanner    *scanner.Scanner
}

// Open opens pid through open and builds the facades from cfg.
func Open(open process.OpenFunc, pid process.ProcessID, access process.Access, priv *process.Privilege, cfg config.Config) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	h, err := open(pid, access, priv)
	if err != nil {
		return nil, err
	}
	return New(h, cfg), nil
}

// New wraps an already open handle. The session takes ownership of h.
func New(h process.Handle, cfg config.Config) *Session {
	shared := &sharedHandle{inner: h}
	s := &Session{
		h:   shared,
		cfg: cfg,
		log: logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, fmt.Sprintf("session-%d", h.PID()))),
	}

	s.reader = reader.New(shared, reader.WithCache(cfg.Reader.CacheEntries, cfg.Reader.CacheMaxAge))
	s.safeReader = reader.NewSafe(shared)
	s.writer = writer.New(shared, writer.WithInvalidator(s.reader))
	s.backup = writer.NewBackup(shared, cfg.Backup, writer.WithInvalidator(s.reader))
	s.safeWriter = writer.NewSafe(shared, writer.WithInvalidator(s.reader))
	s.safeWriter.SetVerifyWrites(cfg.Writer.VerifyWrites)
	s.safeWriter.SetCheckAddresses(cfg.Writer.CheckAddresses)
	s.safeWriter.AttachBackup(s.backup)
	s.scanner = scanner.New(shared)

	s.log.Infoln("session opened with", h.Access(), "access")
	return s
}

func (s *Session) PID() process.ProcessID { return s.h.PID() }

func (s *Session) Config() config.Config { return s.cfg }

func (s *Session) Handle() process.Handle { return s.h }

func (s *Session) Reader() *reader.Reader { return s.reader }

func (s *Session) SafeReader() *reader.SafeReader { return s.safeReader }

func (s *Session) Writer() *writer.Writer { return s.writer }

// SafeWriter validates addresses, verifies writes and backs up before each
// write, as configured.
func (s *Session) SafeWriter() *writer.SafeWriter { return s.safeWriter }

func (s *Session) Backup() *writer.Backup { return s.backup }

func (s *Session) Scanner() *scanner.Scanner { return s.scanner }

// Regions starts a new walk of the address space.
func (s *Session) Regions() *regions.Enumerator { return regions.New(s.h) }

// ScanOptions returns the configured scan defaults with options applied on top.
func (s *Session) ScanOptions(options ...scanner.Option) scanner.Options {
	o := s.cfg.ScanOptions()
	for _, opt := range options {
		opt(&o)
	}
	return o
}

// Close releases the handle. It is safe to call more than once.
func (s *Session) Close() error {
	if !s.h.close() {
		return nil
	}
	s.reader.ClearCache()
	s.log.Infoln("session closed,", s.backup.Count(), "backups discarded")
	return s.h.inner.Close()
}

// sharedHandle is the single handle every facade borrows. After close it
// refuses every operation.
type sharedHandle struct {
	inner  process.Handle
	mu     sync.RWMutex
	closed bool
}

func (h *sharedHandle) close() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.closed = true
	return true
}

func (h *sharedHandle) open() (process.Handle, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return nil, process.ErrProcessNotOpen
	}
	return h.inner, nil
}

func (h *sharedHandle) PID() process.ProcessID { return h.inner.PID() }

func (h *sharedHandle) Access() process.Access { return h.inner.Access() }

func (h *sharedHandle) Shareable() bool { return process.IsShareable(h.inner) }

func (h *sharedHandle) ReadMemory(addr process.ProcessMemoryAddress, buf []byte) (int, error) {
	inner, err := h.open()
	if err != nil {
		return 0, err
	}
	return inner.ReadMemory(addr, buf)
}

func (h *sharedHandle) WriteMemory(addr process.ProcessMemoryAddress, data []byte) (int, error) {
	inner, err := h.open()
	if err != nil {
		return 0, err
	}
	return inner.WriteMemory(addr, data)
}

func (h *sharedHandle) QueryRegion(addr process.ProcessMemoryAddress) (process.Region, error) {
	inner, err := h.open()
	if err != nil {
		return process.Region{}, err
	}
	return inner.QueryRegion(addr)
}

func (h *sharedHandle) ChangeProtection(addr process.ProcessMemoryAddress, size process.ProcessMemorySize, prot process.Protection) (process.Protection, error) {
	inner, err := h.open()
	if err != nil {
		return 0, err
	}
	return inner.ChangeProtection(addr, size, prot)
}

// Close is a no-op for borrowers; only Session.Close releases the handle.
func (h *sharedHandle) Close() error { return nil }
