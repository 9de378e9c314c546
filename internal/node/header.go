// Package node implements the on-flash node codec: the common header shared
// by every node type, and per-type parse/validate/dump behavior dispatched
// over a tagged union of node kinds (spec.md §9 "Dynamic dispatch of node
// types").
package node

import (
	"encoding/binary"
	"fmt"

	"github.com/ubifsck/ubifsck/internal/crc"
)

// Magic is the 4-byte little-endian magic every node begins with.
const Magic uint32 = 0x06101831

// HeaderLen is the size in bytes of the common node header.
const HeaderLen = 24

// Type tags the node kind, the single byte at offset 20 of the header.
type Type uint8

const (
	TypeInode Type = iota
	TypeData
	TypeDent
	TypeXent
	TypeTrun
	TypeIdx
	TypePad
	TypeSB
	TypeMaster
	TypeRef
	TypeCommitStart
	TypeOrphan
	TypeAuth
	typeCount
)

func (t Type) String() string {
	names := [...]string{
		"inode", "data", "dent", "xent", "trun", "idx", "pad",
		"sb", "master", "ref", "commit-start", "orphan", "auth",
	}
	if int(t) < len(names) {
		return names[t]
	}
	return fmt.Sprintf("type(%d)", uint8(t))
}

// GroupType records whether a node participates in a cross-LEB atomic
// write group, and if so whether it is the last member.
type GroupType uint8

const (
	GroupNone GroupType = iota
	GroupInGroup
	GroupLastOfGroup
)

// Header is the 24-byte common header present at the start of every node.
type Header struct {
	Magic     uint32
	CRC       uint32
	Sqnum     uint64
	Len       uint32
	NodeType  Type
	GroupType GroupType
}

// decodeHeader parses the common header from buf, which must be at least
// HeaderLen bytes. It does not verify CRC or magic; callers do that via
// ParseHeader.
func decodeHeader(buf []byte) Header {
	return Header{
		Magic:     binary.LittleEndian.Uint32(buf[0:4]),
		CRC:       binary.LittleEndian.Uint32(buf[4:8]),
		Sqnum:     binary.LittleEndian.Uint64(buf[8:16]),
		Len:       binary.LittleEndian.Uint32(buf[16:20]),
		NodeType:  Type(buf[20]),
		GroupType: GroupType(buf[21]),
	}
}

// EncodeHeader writes h into the first HeaderLen bytes of buf and fixes up
// the CRC to cover bytes 8..len, where len is h.Len (the full node,
// including any type-specific payload already written at buf[24:h.Len]).
func EncodeHeader(buf []byte, h Header) {
	binary.LittleEndian.PutUint32(buf[0:4], Magic)
	binary.LittleEndian.PutUint64(buf[8:16], h.Sqnum)
	binary.LittleEndian.PutUint32(buf[16:20], h.Len)
	buf[20] = byte(h.NodeType)
	buf[21] = byte(h.GroupType)
	buf[22] = 0
	buf[23] = 0
	binary.LittleEndian.PutUint32(buf[4:8], crc.Checksum(buf[8:h.Len]))
}

// ParseHeader validates magic, length bounds, and CRC, returning the
// decoded header. buf must hold at least HeaderLen bytes; the caller is
// expected to have already read up to the type's max length.
func ParseHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderLen {
		return Header{}, fmt.Errorf("%w: short header, have %d bytes want %d", ErrBadNodeLength, len(buf), HeaderLen)
	}
	h := decodeHeader(buf)
	if h.Magic != Magic {
		return Header{}, fmt.Errorf("%w: got 0x%08x", ErrBadMagic, h.Magic)
	}
	if h.Len < HeaderLen || int(h.Len) > len(buf) {
		return Header{}, fmt.Errorf("%w: declared length %d, have %d bytes available", ErrBadNodeLength, h.Len, len(buf))
	}
	if h.NodeType >= typeCount {
		return Header{}, fmt.Errorf("%w: unknown node type %d", ErrBadNodeLength, h.NodeType)
	}
	want := binary.LittleEndian.Uint32(buf[4:8])
	got := crc.Checksum(buf[8:h.Len])
	if got != want {
		return Header{}, fmt.Errorf("%w: lnum offset mismatch, want 0x%08x got 0x%08x", ErrBadCRC, want, got)
	}
	return h, nil
}
