// Package device defines the narrow collaborator interface ubifsck uses to
// talk to the underlying flash/UBI volume layer, kept separate from any
// concrete transport so the core packages never import a specific driver.
package device

import "fmt"

// Volume is the five-primitive LEB-level device interface (spec.md §6):
// read, write, atomic whole-LEB replace, unmap, and a mapped-state query.
// All offsets and lengths are in bytes; LebWrite offsets and lengths must
// be a multiple of the volume's MinIOSize, while LebChange accepts any
// length up to LebSize and fills the rest of the LEB with 0xFF.
type Volume interface {
	// LebSize returns the fixed byte length of every LEB on this volume.
	LebSize() uint32
	// LebCount returns the number of LEBs the volume exposes, numbered
	// 0 .. LebCount()-1.
	LebCount() int
	// MinIOSize returns the minimum write granularity in bytes.
	MinIOSize() uint32
	// MaxWriteSize returns the largest single write the device accepts.
	MaxWriteSize() uint32

	// LebRead reads len bytes from lnum starting at offs.
	LebRead(lnum int, offs, length int) ([]byte, error)
	// LebWrite appends or overwrites buf at offs within lnum; offs and
	// len(buf) must be MinIOSize-aligned.
	LebWrite(lnum int, offs int, buf []byte) error
	// LebChange atomically replaces lnum's entire contents with buf,
	// erasing first. Used for rewriting torn LEBs and committing the
	// master node.
	LebChange(lnum int, buf []byte) error
	// LebUnmap erases lnum and marks it unmapped (free).
	LebUnmap(lnum int) error
	// IsMapped reports whether lnum currently holds data.
	IsMapped(lnum int) (bool, error)
}

// ErrOutOfRange is returned by a Volume implementation when asked to
// operate on a LEB number outside [0, LebCount()).
type ErrOutOfRange struct {
	Lnum  int
	Count int
}

func (e *ErrOutOfRange) Error() string {
	return fmt.Sprintf("leb %d out of range [0,%d)", e.Lnum, e.Count)
}
