// Package key implements the fixed-width key used to order every TNC leaf:
// a 32-bit inode number in the high word and, in the low word, a 3-bit type
// tag plus a 29-bit payload (zero, a name hash, or a data-block index).
package key

import "fmt"

// Type is the 3-bit key-type tag stored in the low word of a Key.
type Type uint8

const (
	TypeInode Type = iota
	TypeData
	TypeDent
	TypeXent
	TypeTrun // truncation nodes are keyed like inodes but never indexed by TNC
)

func (t Type) String() string {
	switch t {
	case TypeInode:
		return "inode"
	case TypeData:
		return "data"
	case TypeDent:
		return "dent"
	case TypeXent:
		return "xent"
	case TypeTrun:
		return "trun"
	default:
		return fmt.Sprintf("type(%d)", uint8(t))
	}
}

const (
	typeBits    = 3
	payloadBits = 29
	payloadMask = 1<<payloadBits - 1
)

// Key is the 8-byte, lexicographically-ordered on-flash key:
// (inode, type, payload).
type Key struct {
	Inode   uint32
	Type    Type
	Payload uint32 // zero for inode/trun; name hash for dent/xent; block index for data
}

// New builds a Key, masking payload to its 29-bit range.
func New(inode uint32, typ Type, payload uint32) Key {
	return Key{Inode: inode, Type: typ, Payload: payload & payloadMask}
}

// Encode packs the key into its 8-byte little-endian on-flash form:
// bytes 0-3 are the inode number, bytes 4-7 are type<<29 | payload.
func (k Key) Encode() [8]byte {
	var buf [8]byte
	low := uint32(k.Type)<<payloadBits | (k.Payload & payloadMask)
	buf[0] = byte(k.Inode)
	buf[1] = byte(k.Inode >> 8)
	buf[2] = byte(k.Inode >> 16)
	buf[3] = byte(k.Inode >> 24)
	buf[4] = byte(low)
	buf[5] = byte(low >> 8)
	buf[6] = byte(low >> 16)
	buf[7] = byte(low >> 24)
	return buf
}

// Decode unpacks an 8-byte on-flash key.
func Decode(buf [8]byte) Key {
	inode := uint32(buf[0]) | uint32(buf[1])<<8 | uint32(buf[2])<<16 | uint32(buf[3])<<24
	low := uint32(buf[4]) | uint32(buf[5])<<8 | uint32(buf[6])<<16 | uint32(buf[7])<<24
	return Key{
		Inode:   inode,
		Type:    Type(low >> payloadBits),
		Payload: low & payloadMask,
	}
}

// Less orders keys lexicographically over (inode, type, payload), the
// ordering the TNC B+-tree and scanned-file maps rely on.
func Less(a, b Key) bool {
	if a.Inode != b.Inode {
		return a.Inode < b.Inode
	}
	if a.Type != b.Type {
		return a.Type < b.Type
	}
	return a.Payload < b.Payload
}

// Equal reports whether two keys are identical.
func Equal(a, b Key) bool {
	return a.Inode == b.Inode && a.Type == b.Type && a.Payload == b.Payload
}

// fnv32a is the name-hash used for dent/xent payloads. Hash collisions are
// expected and resolved by the caller comparing full entry names, per
// spec.md §3.
func fnv32a(name string) uint32 {
	const (
		offset = 2166136261
		prime  = 16777619
	)
	h := uint32(offset)
	for i := 0; i < len(name); i++ {
		h ^= uint32(name[i])
		h *= prime
	}
	return h
}

// NameHash computes the 29-bit name-hash payload for a directory entry or
// extended-attribute entry key.
func NameHash(name string) uint32 {
	return fnv32a(name) & payloadMask
}

// DataBlock builds the key for data block index blk of inode.
func DataBlock(inode uint32, blk uint32) Key {
	return New(inode, TypeData, blk)
}

// Inode builds the key for the inode node of inode.
func Inode(inode uint32) Key {
	return New(inode, TypeInode, 0)
}

// Dent builds the key for a directory entry named name under parent.
func Dent(parent uint32, name string) Key {
	return New(parent, TypeDent, NameHash(name))
}

// Xent builds the key for an extended-attribute entry named name under
// host.
func Xent(host uint32, name string) Key {
	return New(host, TypeXent, NameHash(name))
}

// Trun builds the key for inode's truncation record. Unlike a dent/xent's
// name hash, a truncation's payload carries no information (spec.md §3:
// "truncation nodes are keyed like inodes"), so it is always zero.
func Trun(inode uint32) Key {
	return New(inode, TypeTrun, 0)
}
