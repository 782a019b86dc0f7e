// Command example walks through a scan, narrow and patch cycle against an
// in-memory target, the same way memscan drives a live process.
package main

import (
	"encoding/binary"
	"fmt"
	"os"

	"memprobe/config"
	"memprobe/process"
	"memprobe/process_blob"
	"memprobe/reader"
	"memprobe/scanner"
	"memprobe/session"
	"memprobe/writer"
)

// Unit mirrors the layout the target keeps for each unit.
type Unit struct {
	ID     uint32
	Health uint32
	Next   uint64
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	heap := make([]byte, 0x1000)
	putUnit(heap[0x100:], Unit{ID: 1, Health: 100, Next: 0x10200})
	putUnit(heap[0x200:], Unit{ID: 2, Health: 100})

	target := process_blob.NewProcessBlob(4242).
		Map(0x10000, heap, process.PageReadWrite, process.KindPrivate)

	sess := session.New(target, config.Default())
	defer sess.Close()

	ss := sess.Scanner().NewSession()
	n, err := ss.FirstValue(process.Uint32Value(100), sess.ScanOptions())
	if err != nil {
		return err
	}
	fmt.Println("health 100:", n, "candidates")

	// The second unit takes damage.
	target.Poke(0x10204, binary.LittleEndian.AppendUint32(nil, 75))
	if n, err = ss.Next(scanner.Less); err != nil {
		return err
	}
	fmt.Println("decreased:", n, "candidates", ss.Candidates())

	// Reach the same field through the first unit's Next pointer.
	health, err := reader.ReadPath[uint32](sess.Reader(), 0x10100, 8, 4)
	if err != nil {
		return err
	}
	fmt.Println("unit[0].next.health =", health)

	unit, err := reader.Read[Unit](sess.Reader(), 0x10200)
	if err != nil {
		return err
	}
	fmt.Printf("unit[1] = %+v\n", unit)

	if err := writer.Write[uint32](sess.SafeWriter(), ss.Candidates()[0], 999); err != nil {
		return err
	}
	fmt.Println("patched, backups:", sess.Backup().Count())

	if err := sess.Backup().RestoreAll(); err != nil {
		return err
	}
	restored, _ := reader.Read[uint32](sess.SafeReader(), 0x10204)
	fmt.Println("restored health =", restored)
	return nil
}

func putUnit(b []byte, u Unit) {
	binary.LittleEndian.PutUint32(b[0:], u.ID)
	binary.LittleEndian.PutUint32(b[4:], u.Health)
	binary.LittleEndian.PutUint64(b[8:], u.Next)
}
