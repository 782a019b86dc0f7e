package writer

import (
	"fmt"
	"time"

	"memprobe/process"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"
	"github.com/klauspost/compress/zstd"
)

const DefaultMaxBackups = 100

// BackupConfig controls the backup log.
type BackupConfig struct {
	MaxEntries int  `yaml:"max_entries"`
	AutoBackup bool `yaml:"auto_backup"`
	Compress   bool `yaml:"compress"`
}

func DefaultBackupConfig() BackupConfig {
	return BackupConfig{
		MaxEntries: DefaultMaxBackups,
		AutoBackup: true,
	}
}

// BackupEntry holds the bytes found at Address before a modification.
type BackupEntry struct {
	Address     process.ProcessMemoryAddress
	Timestamp   time.Time
	PID         process.ProcessID
	Description string

	size       int
	data       []byte
	compressed bool
}

// Size is the length of the original bytes, regardless of compression.
func (e *BackupEntry) Size() int { return e.size }

// ContainsRange reports whether [addr, addr+size) lies within the backed up span.
func (e *BackupEntry) ContainsRange(addr process.ProcessMemoryAddress, size int) bool {
	end, wrapped := addr.AddChecked(process.ProcessMemorySize(size))
	return !wrapped && addr >= e.Address && end <= e.Address.Add(process.ProcessMemorySize(e.size))
}

// Backup is a bounded log of original bytes. When full, the oldest entry is
// dropped first.
type Backup struct {
	h       process.Handle
	w       *Writer
	cfg     BackupConfig
	entries []*BackupEntry
	enc     *zstd.Encoder
	dec     *zstd.Decoder
	log     *logger.Logger
}

// NewBackup creates an empty log. Restores are written through a Writer built
// from options, so its invalidators see them like any other write.
func NewBackup(h process.Handle, cfg BackupConfig, options ...Option) *Backup {
	return &Backup{
		h:   h,
		w:   New(h, options...),
		cfg: cfg,
		log: logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, fmt.Sprintf("backup-%d", h.PID()))),
	}
}

func (b *Backup) Config() BackupConfig { return b.cfg }

func (b *Backup) SetMaxEntries(n int) {
	b.cfg.MaxEntries = n
	b.trim()
}

func (b *Backup) SetAutoBackup(enabled bool) { b.cfg.AutoBackup = enabled }

func (b *Backup) SetCompress(enabled bool) { b.cfg.Compress = enabled }

// BackupRegion captures the current size bytes at addr.
func (b *Backup) BackupRegion(addr process.ProcessMemoryAddress, size int, description string) error {
	if size <= 0 {
		return fmt.Errorf("%w: backup size cannot be zero", process.ErrInvalidValueType)
	}

	original, err := readRaw(b.h, addr, size)
	if err != nil {
		return err
	}

	entry := &BackupEntry{
		Address:     addr,
		Timestamp:   time.Now(),
		PID:         b.h.PID(),
		Description: description,
		size:        size,
		data:        original,
	}
	if b.cfg.Compress {
		if err := b.compress(entry); err != nil {
			return err
		}
	}

	b.entries = append(b.entries, entry)
	b.trim()
	return nil
}

// BackupBeforeWrite captures addr when auto-backup is enabled.
func (b *Backup) BackupBeforeWrite(addr process.ProcessMemoryAddress, size int) error {
	if !b.cfg.AutoBackup {
		return nil
	}
	return b.BackupRegion(addr, size, "auto-backup before write")
}

// Original returns the uncompressed original bytes of entry.
func (b *Backup) Original(entry *BackupEntry) ([]byte, error) {
	if !entry.compressed {
		out := make([]byte, len(entry.data))
		copy(out, entry.data)
		return out, nil
	}
	if b.dec == nil {
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, fmt.Errorf("zstd reader: %w", err)
		}
		b.dec = dec
	}
	out, err := b.dec.DecodeAll(entry.data, make([]byte, 0, entry.size))
	if err != nil {
		return nil, fmt.Errorf("decompress backup at %s: %w", entry.Address, err)
	}
	return out, nil
}

// RestoreEntry writes entry's original bytes back verbatim.
func (b *Backup) RestoreEntry(entry *BackupEntry) error {
	if entry.PID != b.h.PID() {
		return fmt.Errorf("%w: backup entry is for process %d, not %d", process.ErrUnsupported, entry.PID, b.h.PID())
	}

	original, err := b.Original(entry)
	if err != nil {
		return err
	}
	if err := b.w.WriteBytes(entry.Address, original); err != nil {
		return err
	}
	b.log.Debugln("restored", entry.Size(), "bytes at", entry.Address)
	return nil
}

// RestoreLast restores the most recent entry.
func (b *Backup) RestoreLast() error {
	if len(b.entries) == 0 {
		return fmt.Errorf("%w: %w", process.ErrSessionNotFound, process.ErrNoBackups)
	}
	return b.RestoreEntry(b.entries[len(b.entries)-1])
}

// RestoreAll restores every entry from newest to oldest so layered writes unwind.
func (b *Backup) RestoreAll() error {
	for i := len(b.entries) - 1; i >= 0; i-- {
		if err := b.RestoreEntry(b.entries[i]); err != nil {
			return err
		}
	}
	b.log.Infoln("restored", len(b.entries), "backups")
	return nil
}

// Find returns the newest entry taken exactly at addr.
func (b *Backup) Find(addr process.ProcessMemoryAddress) *BackupEntry {
	for i := len(b.entries) - 1; i >= 0; i-- {
		if b.entries[i].Address == addr {
			return b.entries[i]
		}
	}
	return nil
}

// FindForRange returns the newest entry whose span contains [addr, addr+size).
func (b *Backup) FindForRange(addr process.ProcessMemoryAddress, size int) *BackupEntry {
	for i := len(b.entries) - 1; i >= 0; i-- {
		if b.entries[i].ContainsRange(addr, size) {
			return b.entries[i]
		}
	}
	return nil
}

func (b *Backup) Clear() { b.entries = nil }

func (b *Backup) Count() int { return len(b.entries) }

// TotalSize sums the original sizes of all entries.
func (b *Backup) TotalSize() int {
	total := 0
	for _, e := range b.entries {
		total += e.size
	}
	return total
}

// Entries returns the entries oldest first.
func (b *Backup) Entries() []*BackupEntry {
	out := make([]*BackupEntry, len(b.entries))
	copy(out, b.entries)
	return out
}

func (b *Backup) trim() {
	if over := len(b.entries) - max(b.cfg.MaxEntries, 0); over > 0 {
		b.entries = append([]*BackupEntry(nil), b.entries[over:]...)
	}
}

func (b *Backup) compress(entry *BackupEntry) error {
	if b.enc == nil {
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return fmt.Errorf("zstd writer: %w", err)
		}
		b.enc = enc
	}
	entry.data = b.enc.EncodeAll(entry.data, nil)
	entry.compressed = true
	return nil
}
