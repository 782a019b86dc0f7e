package scanner

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"memprobe/process"

	"github.com/google/uuid"
)

// ErrNoInitialScan is returned when narrowing a session that has not scanned yet.
var ErrNoInitialScan = errors.New("no initial scan")

// Result is one surviving candidate of a session.
type Result struct {
	Address  process.ProcessMemoryAddress
	Value    process.Value
	Previous *process.Value
}

// Session runs the scan, narrow, rescan workflow over a shrinking candidate set.
type Session struct {
	ID         uuid.UUID
	Kind       process.ValueKind
	Rounds     int
	CreatedAt  time.Time
	LastScanAt time.Time

	s        *Scanner
	current  Snapshot
	previous Snapshot
	numeric  bool
	scanned  bool
}

// NewSession starts an empty session. Values found by FirstValue are
// narrowed numerically; patterns are narrowed as raw bytes.
func (s *Scanner) NewSession() *Session {
	now := time.Now()
	return &Session{
		ID:         uuid.New(),
		Kind:       process.KindBytes,
		CreatedAt:  now,
		LastScanAt: now,
		s:          s,
	}
}

// First runs the initial pattern scan and snapshots every match.
func (ss *Session) First(p Pattern, opts Options) (int, error) {
	addrs, err := ss.s.Scan(p, opts)
	if err != nil {
		return 0, err
	}
	ss.numeric = false
	ss.Kind = process.KindBytes
	ss.record(ss.s.TakeSnapshot(addrs, p.Len()))
	return len(ss.current), nil
}

// FirstValue runs the initial scan for v.
func (ss *Session) FirstValue(v process.Value, opts Options) (int, error) {
	addrs, err := ss.s.FindValue(v, opts)
	if err != nil {
		return 0, err
	}
	_, fixed := v.Kind().Size()
	ss.numeric = fixed
	ss.Kind = v.Kind()
	ss.record(ss.s.TakeSnapshot(addrs, v.Size()))
	return len(ss.current), nil
}

// Next keeps the candidates for which cmp holds between the last snapshot and
// live memory.
func (ss *Session) Next(cmp Comparison) (int, error) {
	if !ss.scanned {
		return 0, ErrNoInitialScan
	}

	var next Snapshot
	if ss.numeric {
		var err error
		if next, err = ss.s.refreshValues(ss.current, cmp, ss.Kind); err != nil {
			return 0, err
		}
	} else {
		next = ss.s.refresh(ss.current, func(old, cur []byte) bool {
			return cmp.holds(bytes.Compare(cur, old))
		})
	}
	ss.record(next)
	return len(ss.current), nil
}

// NextValue keeps the candidates that currently hold exactly v.
func (ss *Session) NextValue(v process.Value) (int, error) {
	if !ss.scanned {
		return 0, ErrNoInitialScan
	}
	want := v.Bytes()
	next := make(Snapshot)
	for addr, old := range ss.current {
		if len(old) != len(want) {
			continue
		}
		cur, err := ss.s.readExact(addr, len(want))
		if err == nil && bytes.Equal(cur, want) {
			next[addr] = cur
		}
	}
	ss.record(next)
	return len(ss.current), nil
}

// Filter drops the candidates for which keep returns false, without re-reading.
func (ss *Session) Filter(keep func(Result) bool) int {
	for _, r := range ss.Results() {
		if !keep(r) {
			delete(ss.current, r.Address)
		}
	}
	return len(ss.current)
}

func (ss *Session) record(next Snapshot) {
	ss.previous, ss.current = ss.current, next
	ss.scanned = true
	ss.Rounds++
	ss.LastScanAt = time.Now()
	ss.s.log.Debugln("session", ss.ID, "round", ss.Rounds, "candidates", len(next))
}

func (ss *Session) Len() int { return len(ss.current) }

// Candidates returns the surviving addresses in ascending order.
func (ss *Session) Candidates() []process.ProcessMemoryAddress {
	return ss.current.Addresses()
}

// Snapshot returns a copy of the latest captured bytes.
func (ss *Session) Snapshot() Snapshot {
	out := make(Snapshot, len(ss.current))
	for addr, b := range ss.current {
		out[addr] = clone(b)
	}
	return out
}

// Results decodes the candidates, in ascending order, with their value from
// the round before when it is known.
func (ss *Session) Results() []Result {
	addrs := ss.current.Addresses()
	out := make([]Result, 0, len(addrs))
	for _, addr := range addrs {
		v, err := process.ValueFromBytes(ss.current[addr], ss.Kind)
		if err != nil {
			v = process.BytesValue(ss.current[addr])
		}
		r := Result{Address: addr, Value: v}
		if old, ok := ss.previous[addr]; ok {
			if pv, err := process.ValueFromBytes(old, ss.Kind); err == nil {
				r.Previous = &pv
			}
		}
		out = append(out, r)
	}
	return out
}

// Reset forgets every candidate while keeping the session id.
func (ss *Session) Reset() {
	ss.current, ss.previous = nil, nil
	ss.scanned = false
	ss.Rounds = 0
}

func (ss *Session) String() string {
	return fmt.Sprintf("session %s: %d candidates after %d rounds", ss.ID, len(ss.current), ss.Rounds)
}
