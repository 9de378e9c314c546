package node

import (
	"encoding/binary"
	"fmt"

	"github.com/ubifsck/ubifsck/internal/key"
)

// branchLen is the on-flash size of one index-node branch: an 8-byte key
// plus lnum/offs/len.
const branchLen = 8 + 4 + 4 + 4

// idxBodyLen is the fixed portion of an index node preceding its branches.
const idxBodyLen = 4

// Branch is one child reference inside an Idx node: the child's key plus
// its on-flash location, exactly as the TNC needs to resolve a leaf or
// descend to the next internal node.
type Branch struct {
	Key  key.Key
	Lnum uint32
	Offs uint32
	Len  uint32
}

// Idx is the decoded body of an internal B+-tree index node.
type Idx struct {
	Header   Header
	Level    uint16
	Branches []Branch
}

func (x *Idx) Head() Header { return x.Header }

func decodeIdx(h Header, body []byte) (*Idx, error) {
	if len(body) < idxBodyLen {
		return nil, fmt.Errorf("%w: idx body too short: %d bytes", ErrBadNodeLength, len(body))
	}
	level := binary.LittleEndian.Uint16(body[0:2])
	count := binary.LittleEndian.Uint16(body[2:4])
	want := idxBodyLen + int(count)*branchLen
	if len(body) < want {
		return nil, fmt.Errorf("%w: idx declares %d branches but body is only %d bytes", ErrBadNodeLength, count, len(body))
	}
	branches := make([]Branch, count)
	off := idxBodyLen
	for i := range branches {
		var kb [8]byte
		copy(kb[:], body[off:off+8])
		branches[i] = Branch{
			Key:  key.Decode(kb),
			Lnum: binary.LittleEndian.Uint32(body[off+8 : off+12]),
			Offs: binary.LittleEndian.Uint32(body[off+12 : off+16]),
			Len:  binary.LittleEndian.Uint32(body[off+16 : off+20]),
		}
		off += branchLen
	}
	return &Idx{Header: h, Level: level, Branches: branches}, nil
}

// EncodeIdx serializes n into a fresh node buffer with a recomputed CRC,
// for the scavenging rebuilder's fresh index write (spec.md §4.6 stage
// 10): every index node the rebuild writes is brand new, so unlike
// EncodeInode's in-place rewrite this always produces a node at a
// not-yet-determined (lnum, offs) the caller fills in once it knows
// where the node lands.
func EncodeIdx(n *Idx) []byte {
	size := idxBodyLen + len(n.Branches)*branchLen
	buf := make([]byte, HeaderLen+size)
	binary.LittleEndian.PutUint16(buf[HeaderLen+0:HeaderLen+2], n.Level)
	binary.LittleEndian.PutUint16(buf[HeaderLen+2:HeaderLen+4], uint16(len(n.Branches)))
	off := HeaderLen + idxBodyLen
	for _, b := range n.Branches {
		kb := b.Key.Encode()
		copy(buf[off:off+8], kb[:])
		binary.LittleEndian.PutUint32(buf[off+8:off+12], b.Lnum)
		binary.LittleEndian.PutUint32(buf[off+12:off+16], b.Offs)
		binary.LittleEndian.PutUint32(buf[off+16:off+20], b.Len)
		off += branchLen
	}

	h := n.Header
	h.Len = uint32(len(buf))
	h.NodeType = TypeIdx
	EncodeHeader(buf, h)
	n.Header = h
	return buf
}

// Validate enforces that branch keys are sorted and that no branch claims
// an empty extent.
func (x *Idx) Validate() error {
	if len(x.Branches) == 0 {
		return fmt.Errorf("%w: index node has no branches", ErrValidation)
	}
	for i, b := range x.Branches {
		if b.Len == 0 {
			return fmt.Errorf("%w: index branch %d has zero length", ErrValidation, i)
		}
		if i > 0 && !key.Less(x.Branches[i-1].Key, b.Key) {
			return fmt.Errorf("%w: index branches out of order at %d", ErrValidation, i)
		}
	}
	return nil
}
