package node

import (
	"encoding/binary"
	"fmt"
)

// dataBodyLen is the fixed body of a data node: inode number, block
// index, and payload size. Mirroring the block index here (rather than
// leaving it recoverable only from the TNC key that indexes the node)
// is what lets a raw scan — the loader's journal replay and the
// rebuilder's full-volume scavenge alike — re-key a data node from its
// own bytes, the same way an inode or truncation node already can.
const dataBodyLen = 12

// Data is the decoded body of a data node: one bounded (<=4KiB) block of a
// regular file's content.
type Data struct {
	Header Header
	Inum   uint32
	Block  uint32 // block index within the file
	Size   uint32 // size of the payload actually carried, 0 < Size <= BlockSize
	Sqnum  uint64
}

func (d *Data) Head() Header { return d.Header }

func decodeData(h Header, body []byte) (*Data, error) {
	if len(body) < dataBodyLen {
		return nil, fmt.Errorf("%w: data body too short: %d bytes", ErrBadNodeLength, len(body))
	}
	return &Data{
		Header: h,
		Inum:   binary.LittleEndian.Uint32(body[0:4]),
		Block:  binary.LittleEndian.Uint32(body[4:8]),
		Size:   binary.LittleEndian.Uint32(body[8:12]),
		Sqnum:  h.Sqnum,
	}, nil
}

// EncodeData serializes a data node with a recomputed CRC, used by the
// scavenging rebuilder to rewrite surviving file content into the new
// image.
func EncodeData(n *Data, payload []byte) []byte {
	buf := make([]byte, HeaderLen+dataBodyLen+len(payload))
	binary.LittleEndian.PutUint32(buf[HeaderLen+0:HeaderLen+4], n.Inum)
	binary.LittleEndian.PutUint32(buf[HeaderLen+4:HeaderLen+8], n.Block)
	binary.LittleEndian.PutUint32(buf[HeaderLen+8:HeaderLen+12], n.Size)
	copy(buf[HeaderLen+dataBodyLen:], payload)

	h := n.Header
	h.Len = uint32(len(buf))
	h.NodeType = TypeData
	EncodeHeader(buf, h)
	return buf
}

// Validate enforces the data-node size rule from spec.md §4.1: size must
// lie in (0, BlockSize].
func (d *Data) Validate() error {
	if d.Size == 0 || d.Size > BlockSize {
		return fmt.Errorf("%w: data node size %d out of range (0, %d]", ErrValidation, d.Size, BlockSize)
	}
	return nil
}

// trunBodyLen is the fixed payload of a truncation node.
const trunBodyLen = 20

// Trun is the decoded body of a truncation node.
type Trun struct {
	Header  Header
	Inum    uint32
	OldSize uint64
	NewSize uint64
}

func (t *Trun) Head() Header { return t.Header }

func decodeTrun(h Header, body []byte) (*Trun, error) {
	if len(body) < trunBodyLen {
		return nil, fmt.Errorf("%w: trun body too short: %d bytes", ErrBadNodeLength, len(body))
	}
	return &Trun{
		Header:  h,
		Inum:    binary.LittleEndian.Uint32(body[0:4]),
		OldSize: binary.LittleEndian.Uint64(body[4:12]),
		NewSize: binary.LittleEndian.Uint64(body[12:20]),
	}, nil
}

// Validate enforces spec.md §4.1: old_size > new_size >= 0 (the latter is
// automatic given an unsigned field).
func (t *Trun) Validate() error {
	if t.OldSize <= t.NewSize {
		return fmt.Errorf("%w: trun old_size %d must exceed new_size %d", ErrValidation, t.OldSize, t.NewSize)
	}
	return nil
}
