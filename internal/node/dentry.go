package node

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// dentBodyLen is the fixed portion of a dent/xent node preceding the
// variable-length, NUL-terminated name.
const dentBodyLen = 20

// DirEntry is the decoded body of a dent (directory entry) or xent
// (extended-attribute entry) node. Both share the same on-flash layout;
// Xattr distinguishes which key-type/node-type pairing produced it.
type DirEntry struct {
	Header     Header
	ParentInum uint32 // owning directory (dent) or host file (xent)
	Inum       uint32 // target inode (0 marks a deletion tombstone)
	Type       uint8  // target's file type, mirrored from the target inode's mode
	Xattr      bool
	Name       string
}

func (d *DirEntry) Head() Header { return d.Header }

func decodeDirEntry(h Header, body []byte, xattr bool) (*DirEntry, error) {
	if len(body) < dentBodyLen {
		return nil, fmt.Errorf("%w: dent body too short: %d bytes", ErrBadNodeLength, len(body))
	}
	parent := binary.LittleEndian.Uint32(body[0:4])
	inum := binary.LittleEndian.Uint32(body[4:8])
	typ := body[8]
	nlen := binary.LittleEndian.Uint16(body[10:12])
	if int(nlen) > MaxNameLen {
		return nil, fmt.Errorf("%w: dent name length %d exceeds max %d", ErrValidation, nlen, MaxNameLen)
	}
	nameStart := dentBodyLen
	nameEnd := nameStart + int(nlen)
	if len(body) < nameEnd+1 {
		return nil, fmt.Errorf("%w: dent name+NUL does not fit in body", ErrBadNodeLength)
	}
	if body[nameEnd] != 0 {
		return nil, fmt.Errorf("%w: dent name not NUL-terminated", ErrValidation)
	}
	if bytes.IndexByte(body[nameStart:nameEnd], 0) != -1 {
		return nil, fmt.Errorf("%w: dent name contains embedded NUL", ErrValidation)
	}
	return &DirEntry{
		Header:     h,
		ParentInum: parent,
		Inum:       inum,
		Type:       typ,
		Xattr:      xattr,
		Name:       string(body[nameStart:nameEnd]),
	}, nil
}

// EncodeDirEntry serializes a dent (xattr=false) or xent (xattr=true)
// node with a recomputed CRC, used by the scavenging rebuilder to
// rewrite surviving directory structure into the new image.
func EncodeDirEntry(d *DirEntry) []byte {
	body := make([]byte, dentBodyLen+len(d.Name)+1)
	binary.LittleEndian.PutUint32(body[0:4], d.ParentInum)
	binary.LittleEndian.PutUint32(body[4:8], d.Inum)
	body[8] = d.Type
	binary.LittleEndian.PutUint16(body[10:12], uint16(len(d.Name)))
	copy(body[dentBodyLen:], d.Name)

	buf := make([]byte, HeaderLen+len(body))
	copy(buf[HeaderLen:], body)

	h := d.Header
	h.Len = uint32(len(buf))
	h.NodeType = TypeDent
	if d.Xattr {
		h.NodeType = TypeXent
	}
	EncodeHeader(buf, h)
	return buf
}

// IsDeletion reports whether this dentry is a tombstone: spec.md §4.6 step
// 2 treats a dentry with inum == 0 as a deletion record during rebuild.
func (d *DirEntry) IsDeletion() bool { return d.Inum == 0 }

// Validate enforces name length and NUL-termination, already checked at
// decode time; satisfies the Node interface. Use ValidateWatermark for
// the additional inum-within-watermark check, which needs volume-global
// state the codec itself does not track.
func (d *DirEntry) Validate() error {
	if len(d.Name) == 0 {
		return fmt.Errorf("%w: empty dentry name", ErrValidation)
	}
	if len(d.Name) > MaxNameLen {
		return fmt.Errorf("%w: dentry name length %d exceeds max %d", ErrValidation, len(d.Name), MaxNameLen)
	}
	return nil
}

// ValidateWatermark additionally enforces that a non-zero target inode
// number lies within highestInum, the current highest-inode watermark
// (spec.md §4.1: "inum within watermark").
func (d *DirEntry) ValidateWatermark(highestInum uint32) error {
	if err := d.Validate(); err != nil {
		return err
	}
	if d.Inum != 0 && highestInum != 0 && d.Inum > highestInum {
		return fmt.Errorf("%w: dentry %q targets inode %d beyond watermark %d", ErrValidation, d.Name, d.Inum, highestInum)
	}
	return nil
}
