// Package regions walks a target's address space and filters the regions it finds.
package regions

import (
	"errors"
	"math"

	"memprobe/process"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"
)

// Enumerator yields regions in ascending address order. Addresses that cannot
// be queried are stepped over one page at a time; a handle that is closed or
// whose process is gone ends the walk and is reported by Err.
type Enumerator struct {
	h       process.Handle
	cursor  process.ProcessMemoryAddress
	ceiling process.ProcessMemoryAddress
	done    bool
	skipped int
	err     error
	log     *logger.Logger
}

func New(h process.Handle) *Enumerator {
	return &Enumerator{
		h:       h,
		ceiling: math.MaxUint64,
		log:     logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, "regions")),
	}
}

// SetStart moves the cursor and restarts the walk.
func (e *Enumerator) SetStart(addr process.ProcessMemoryAddress) *Enumerator {
	e.cursor = addr
	e.done = false
	e.err = nil
	return e
}

// SetCeiling stops the walk before addr.
func (e *Enumerator) SetCeiling(addr process.ProcessMemoryAddress) *Enumerator {
	e.ceiling = addr
	return e
}

// Skipped is the number of pages stepped over because QueryRegion failed.
func (e *Enumerator) Skipped() int { return e.skipped }

// Err is the handle failure that ended the walk early, if any.
func (e *Enumerator) Err() error { return e.err }

// Next returns the region at the cursor and moves past it.
func (e *Enumerator) Next() (process.Region, bool) {
	for !e.done && e.cursor < e.ceiling {
		region, err := e.h.QueryRegion(e.cursor)
		if errors.Is(err, process.ErrProcessNotOpen) || errors.Is(err, process.ErrProcessNotFound) {
			e.err = err
			e.done = true
			break
		}
		if err != nil {
			e.skipped++
			e.log.Debugln("query failed at", e.cursor, err)
			next, wrapped := e.cursor.AddChecked(process.PageSize)
			if wrapped {
				e.done = true
				break
			}
			e.cursor = next
			continue
		}

		end, wrapped := region.Base.AddChecked(region.Size)
		if region.Size == 0 || end <= e.cursor && !wrapped {
			// A region that does not advance the cursor would loop forever.
			e.done = true
			e.log.Warn("region query did not advance at ", e.cursor)
			break
		}
		if wrapped || end >= e.ceiling {
			e.done = true
		} else {
			e.cursor = end
		}
		return region, true
	}
	return process.Region{}, false
}

// Each calls fn for every remaining region until fn returns false.
func (e *Enumerator) Each(fn func(process.Region) bool) {
	for {
		region, ok := e.Next()
		if !ok || !fn(region) {
			return
		}
	}
}

// All collects every remaining region.
func (e *Enumerator) All() []process.Region {
	var out []process.Region
	e.Each(func(r process.Region) bool {
		out = append(out, r)
		return true
	})
	return out
}
