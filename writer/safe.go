package writer

import (
	"bytes"
	"fmt"

	"memprobe/process"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"
)

// SafeWriter rejects null and wrapping addresses, can read back every write,
// and can record a backup before each write. The checks toggle independently.
type SafeWriter struct {
	base         *Writer
	h            process.Handle
	checkAddrs   bool
	verifyWrites bool
	backup       *Backup
	log          *logger.Logger
}

func NewSafe(h process.Handle, options ...Option) *SafeWriter {
	return &SafeWriter{
		base:         New(h, options...),
		h:            h,
		checkAddrs:   true,
		verifyWrites: true,
		log:          logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, fmt.Sprintf("safe-writer-%d", h.PID()))),
	}
}

func (w *SafeWriter) SetVerifyWrites(verify bool) { w.verifyWrites = verify }

func (w *SafeWriter) SetCheckAddresses(check bool) { w.checkAddrs = check }

// AttachBackup records the current bytes in b before every write when b has
// auto-backup enabled.
func (w *SafeWriter) AttachBackup(b *Backup) { w.backup = b }

func (w *SafeWriter) checkAddress(addr process.ProcessMemoryAddress, size int) error {
	if !w.checkAddrs {
		return nil
	}
	if addr.IsNull() {
		return process.InvalidAddressError(addr, "null pointer")
	}
	if _, wrapped := addr.AddChecked(process.ProcessMemorySize(size)); wrapped {
		return process.InvalidAddressError(addr, "address overflow")
	}
	return nil
}

func (w *SafeWriter) WriteBytes(addr process.ProcessMemoryAddress, data []byte) error {
	if err := w.checkAddress(addr, len(data)); err != nil {
		w.log.Debugln("rejected write", err)
		return err
	}
	if len(data) == 0 {
		return nil
	}

	if w.backup != nil {
		if err := w.backup.BackupBeforeWrite(addr, len(data)); err != nil {
			return fmt.Errorf("backup before write: %w", err)
		}
	}

	if err := w.base.WriteBytes(addr, data); err != nil {
		return err
	}

	if w.verifyWrites {
		got, err := readRaw(w.h, addr, len(data))
		if err != nil {
			return err
		}
		if !bytes.Equal(got, data) {
			return process.WriteError(addr, "verification failed: written data doesn't match")
		}
	}
	return nil
}

func (w *SafeWriter) WriteValue(addr process.ProcessMemoryAddress, v process.Value) error {
	return writeValue(w, addr, v)
}

func (w *SafeWriter) WriteString(addr process.ProcessMemoryAddress, s string) error {
	return w.WriteBytes(addr, encodeString(s))
}

func (w *SafeWriter) WriteWideString(addr process.ProcessMemoryAddress, s string) error {
	return w.WriteBytes(addr, encodeWideString(s))
}

func (w *SafeWriter) Fill(addr process.ProcessMemoryAddress, value byte, count int) error {
	if err := w.checkAddress(addr, count); err != nil {
		return err
	}
	return fill(w, addr, value, count)
}

func (w *SafeWriter) CopyMemory(src, dst process.ProcessMemoryAddress, size int) error {
	if err := w.checkAddress(dst, size); err != nil {
		return err
	}
	return copyMemory(w.h, w, src, dst, size)
}

func (w *SafeWriter) SwapMemory(a, b process.ProcessMemoryAddress, size int) error {
	if err := w.checkAddress(a, size); err != nil {
		return err
	}
	if err := w.checkAddress(b, size); err != nil {
		return err
	}
	return swapMemory(w.h, w, a, b, size)
}
