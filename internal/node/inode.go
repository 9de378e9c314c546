package node

import (
	"encoding/binary"
	"fmt"
)

// InodeFlag bits stored in Inode.Flags.
type InodeFlag uint32

const (
	FlagCompr    InodeFlag = 1 << 0
	FlagEncrypt  InodeFlag = 1 << 1
	FlagXattr    InodeFlag = 1 << 2 // this inode is itself an xattr-host's xattr inode
	FlagAppend   InodeFlag = 1 << 3
	FlagImmutable InodeFlag = 1 << 4
)

// inodeBodyLen is the fixed portion of the inode node payload following the
// common header: inum, mode, nlink, size (8 bytes), xattr count, xattr
// size, xattr names-size; an optional 4-byte flags word follows it.
const inodeBodyLen = 32

// Inode is the decoded body of an inode node.
type Inode struct {
	Header Header
	Inum   uint32
	Mode   uint32 // Go os.FileMode-compatible bit layout is not assumed; raw on-flash mode
	Nlink  uint32
	Size   uint64
	Xcnt   uint32
	Xsz    uint32
	Xnms   uint32
	Flags  InodeFlag
}

func (n *Inode) Head() Header { return n.Header }

// IsDir, IsRegular, IsSymlink classify Mode using the standard POSIX S_IFMT
// bits, matching the on-flash format's reuse of Linux mode encoding.
const (
	modeFmt  = 0o170000
	modeDir  = 0o040000
	modeReg  = 0o100000
	modeLink = 0o120000
)

func (n *Inode) IsDir() bool     { return n.Mode&modeFmt == modeDir }
func (n *Inode) IsRegular() bool { return n.Mode&modeFmt == modeReg }
func (n *Inode) IsSymlink() bool { return n.Mode&modeFmt == modeLink }
func (n *Inode) IsXattr() bool   { return n.Flags&FlagXattr != 0 }
func (n *Inode) IsEncrypted() bool { return n.Flags&FlagEncrypt != 0 }

// EncodeInode serializes n into a fresh node buffer with a recomputed
// CRC, for the consistency engine's in-place inode rewrite (spec.md
// §4.5.4: "rewrites the inode node at its existing (lnum, offs) with
// corrected fields and a recomputed CRC").
func EncodeInode(n *Inode) ([]byte, error) {
	size := inodeBodyLen + 4
	buf := make([]byte, HeaderLen+size)
	binary.LittleEndian.PutUint32(buf[HeaderLen+0:HeaderLen+4], n.Inum)
	binary.LittleEndian.PutUint32(buf[HeaderLen+4:HeaderLen+8], n.Mode)
	binary.LittleEndian.PutUint32(buf[HeaderLen+8:HeaderLen+12], n.Nlink)
	binary.LittleEndian.PutUint64(buf[HeaderLen+12:HeaderLen+20], n.Size)
	binary.LittleEndian.PutUint32(buf[HeaderLen+20:HeaderLen+24], n.Xcnt)
	binary.LittleEndian.PutUint32(buf[HeaderLen+24:HeaderLen+28], n.Xsz)
	binary.LittleEndian.PutUint32(buf[HeaderLen+28:HeaderLen+32], n.Xnms)
	binary.LittleEndian.PutUint32(buf[HeaderLen+32:HeaderLen+36], uint32(n.Flags))

	h := n.Header
	h.Len = uint32(len(buf))
	h.NodeType = TypeInode
	EncodeHeader(buf, h)
	n.Header = h
	return buf, nil
}

func decodeInode(h Header, body []byte) (*Inode, error) {
	if len(body) < inodeBodyLen {
		return nil, fmt.Errorf("%w: inode body too short: %d bytes", ErrBadNodeLength, len(body))
	}
	n := &Inode{
		Header: h,
		Inum:   binary.LittleEndian.Uint32(body[0:4]),
		Mode:   binary.LittleEndian.Uint32(body[4:8]),
		Nlink:  binary.LittleEndian.Uint32(body[8:12]),
		Size:   binary.LittleEndian.Uint64(body[12:20]),
		Xcnt:   binary.LittleEndian.Uint32(body[20:24]),
		Xsz:    binary.LittleEndian.Uint32(body[24:28]),
		Xnms:   binary.LittleEndian.Uint32(body[28:32]),
	}
	if len(body) >= inodeBodyLen+4 {
		n.Flags = InodeFlag(binary.LittleEndian.Uint32(body[32:36]))
	}
	return n, nil
}

// Validate enforces mode/size/xattr bounds and the per-mode data-length
// rule from spec.md §4.1: a directory has no data nodes of its own size
// derived from content, a regular file's size is bounded by the maximum
// representable data-block extent, and xattr/xcnt/xsz/xnms must be
// internally consistent (zero count implies zero size and name bytes).
func (n *Inode) Validate() error {
	if n.Xcnt == 0 && (n.Xsz != 0 || n.Xnms != 0) {
		return fmt.Errorf("%w: inode %d has zero xattr count but non-zero xattr size/names", ErrValidation, n.Inum)
	}
	if !n.IsRegular() && !n.IsDir() && !n.IsSymlink() {
		// Other POSIX types (fifo, socket, device) are allowed on-flash but
		// carry no data nodes; nothing further to validate here.
		return nil
	}
	if n.IsDir() && n.Size > uint64(HeaderLen)+uint64(n.Nlink)*4096 {
		// A directory's size is header-size plus per-entry bytes; an
		// absurdly large stored size relative to nlink cannot be produced
		// by any valid sequence of dirent writes and signals corruption
		// the consistency engine should flag rather than trust blindly.
		return fmt.Errorf("%w: inode %d directory size %d implausible for nlink %d", ErrValidation, n.Inum, n.Size, n.Nlink)
	}
	return nil
}
