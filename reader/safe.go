package reader

import (
	"fmt"

	"memprobe/process"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"
)

// SafeReader validates the target region before every read and never caches.
type SafeReader struct {
	h   process.Handle
	log *logger.Logger
}

func NewSafe(h process.Handle) *SafeReader {
	return &SafeReader{
		h:   h,
		log: logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, fmt.Sprintf("safe-reader-%d", h.PID()))),
	}
}

// ValidateRegion checks that [addr, addr+size) lies in one committed region
// that is neither no-access nor guarded.
func (r *SafeReader) ValidateRegion(addr process.ProcessMemoryAddress, size int) error {
	region, err := r.h.QueryRegion(addr)
	if err != nil {
		return process.InvalidAddressError(addr, fmt.Sprintf("query failed: %v", err))
	}

	switch {
	case region.State != process.StateCommitted:
		return process.InvalidAddressError(addr, fmt.Sprintf("memory not committed (%s)", region.State))
	case region.Remaining(addr) < process.ProcessMemorySize(size):
		return process.InvalidAddressError(addr, fmt.Sprintf("region too small: %d bytes left, %d requested", region.Remaining(addr), size))
	case region.Protect&process.PageNoAccess != 0:
		return process.InvalidAddressError(addr, "memory is not accessible")
	case region.Protect&process.PageGuard != 0:
		return process.InvalidAddressError(addr, "memory is a guard page")
	}
	return nil
}

// ReadBytes validates then reads size bytes at addr.
func (r *SafeReader) ReadBytes(addr process.ProcessMemoryAddress, size int) ([]byte, error) {
	if err := r.ValidateRegion(addr, size); err != nil {
		r.log.Debugln("rejected read", err)
		return nil, err
	}
	if size == 0 {
		return []byte{}, nil
	}
	return readRaw(r.h, addr, size)
}

func (r *SafeReader) ReadValue(addr process.ProcessMemoryAddress, kind process.ValueKind) (process.Value, error) {
	return readValue(r, addr, kind)
}

func (r *SafeReader) ReadString(addr process.ProcessMemoryAddress, maxLen int) (string, error) {
	return readString(r, addr, maxLen)
}

func (r *SafeReader) ReadWideString(addr process.ProcessMemoryAddress, maxChars int) (string, error) {
	return readWideString(r, addr, maxChars)
}
