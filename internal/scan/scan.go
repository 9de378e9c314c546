// Package scan implements scan_leb: walking a single LEB from offset 0,
// consuming aligned nodes and padding until empty space or garbage, per
// spec.md §4.1.
package scan

import (
	"errors"
	"fmt"

	"github.com/ubifsck/ubifsck/internal/node"
)

const align = 8

// ErrGarbage marks a LEB region that scan_leb could not interpret as
// either a valid node or clean empty space: spec.md calls this
// SCANNED_GARBAGE and it stops the scan.
var ErrGarbage = errors.New("garbage region")

// NodeRef locates one successfully parsed node within a LEB.
type NodeRef struct {
	Offs int
	Len  int
	Node node.Node
}

// Sleb is the result of scanning one LEB: every node recovered in order,
// the offset at which clean empty space begins (len(buf) if none), and
// whether the scan found per-node corruption it could recover from.
type Sleb struct {
	Lnum        int
	Nodes       []NodeRef
	EmptyOffs   int
	HasBadNode  bool // at least one corrupt node was skipped (BadCRC-recoverable)
	Garbage     bool // scan stopped early on an unrecognizable region
	GarbageOffs int
}

// isEmpty reports whether buf[off:] is entirely 0xFF, the erased-flash
// pattern scan_leb treats as clean empty space.
func isEmpty(buf []byte, off int) bool {
	for _, b := range buf[off:] {
		if b != 0xFF {
			return false
		}
	}
	return true
}

// alignUp rounds off up to the next 8-byte boundary.
func alignUp(off int) int {
	return (off + align - 1) &^ (align - 1)
}

// LEB walks buf (one LEB's full contents) and returns everything scan_leb
// would recover. A single corrupt node is recorded as HasBadNode and the
// scan stops there: the rest of the LEB from the corrupt node's start is
// treated as garbage, since without a valid length field there is no
// reliable resync point — this matches
// spec.md's "upgrade to drop the LEB" escalation path: higher layers that
// see HasBadNode may choose to drop the whole LEB rather than trust the
// partial recovery.
func LEB(lnum int, buf []byte) (*Sleb, error) {
	s := &Sleb{Lnum: lnum}
	off := 0

	for off < len(buf) {
		if off+node.HeaderLen > len(buf) {
			break
		}
		if isEmpty(buf, off) {
			s.EmptyOffs = off
			return s, nil
		}

		n, err := node.Parse(buf[off:], lnum, off)
		if err != nil {
			if errors.Is(err, node.ErrBadMagic) {
				// Not a node and not erased space: garbage, per spec.md's
				// definition ("first 0xFF byte ... followed only by
				// 0xFF" is the only recognized empty-space marker).
				s.Garbage = true
				s.GarbageOffs = off
				s.EmptyOffs = len(buf)
				return s, fmt.Errorf("%w: leb %d offset %d", ErrGarbage, lnum, off)
			}
			// A structurally-recognizable but corrupt node (bad CRC/
			// length): recoverable at the scan level, escalated by the
			// caller if it decides the whole LEB should be dropped.
			s.HasBadNode = true
			s.Garbage = true
			s.GarbageOffs = off
			s.EmptyOffs = len(buf)
			return s, nil
		}

		length := int(n.Head().Len)
		if n.Head().NodeType != node.TypePad {
			s.Nodes = append(s.Nodes, NodeRef{Offs: off, Len: length, Node: n})
		}
		off = alignUp(off + length)
	}

	s.EmptyOffs = off
	return s, nil
}
