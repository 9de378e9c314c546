package node

import (
	"encoding/binary"
	"fmt"
)

// CommitStart is the decoded body of a commit-start node: the log region
// replay anchor. Variable length only in that it carries a commit number.
type CommitStart struct {
	Header Header
	Cmtno  uint64
}

func (c *CommitStart) Head() Header { return c.Header }

func decodeCommitStart(h Header, body []byte) (*CommitStart, error) {
	if len(body) < 8 {
		return nil, fmt.Errorf("%w: commit-start body too short: %d bytes", ErrBadNodeLength, len(body))
	}
	return &CommitStart{Header: h, Cmtno: binary.LittleEndian.Uint64(body[0:8])}, nil
}

func (c *CommitStart) Validate() error { return nil }

// EncodeCommitStart serializes a fresh commit-start anchor, used by the
// scavenging rebuilder (spec.md §4.6 stage 12) to re-anchor a cleaned log
// area after unmapping every prior log LEB.
func EncodeCommitStart(cmtno uint64) []byte {
	buf := make([]byte, HeaderLen+8)
	binary.LittleEndian.PutUint64(buf[HeaderLen:HeaderLen+8], cmtno)
	h := Header{Len: uint32(len(buf)), NodeType: TypeCommitStart}
	EncodeHeader(buf, h)
	return buf
}

// Orphan is the decoded body of an orphan node: a run of inode numbers
// whose last link vanished without the inode being deleted.
type Orphan struct {
	Header Header
	Inodes []uint64
}

func (o *Orphan) Head() Header { return o.Header }

func decodeOrphan(h Header, body []byte) (*Orphan, error) {
	if len(body)%8 != 0 {
		return nil, fmt.Errorf("%w: orphan body length %d not a multiple of 8", ErrBadNodeLength, len(body))
	}
	inodes := make([]uint64, len(body)/8)
	for i := range inodes {
		inodes[i] = binary.LittleEndian.Uint64(body[i*8 : i*8+8])
	}
	return &Orphan{Header: h, Inodes: inodes}, nil
}

func (o *Orphan) Validate() error { return nil }

// Auth is the decoded body of an auth node: a detached signature or HMAC
// covering the preceding nodes in its group, produced by the pluggable
// hash-and-sign collaborator (internal/auth).
type Auth struct {
	Header Header
	HMAC   []byte
}

func (a *Auth) Head() Header { return a.Header }

func decodeAuth(h Header, body []byte) (*Auth, error) {
	if len(body) == 0 {
		return nil, fmt.Errorf("%w: auth body empty", ErrBadNodeLength)
	}
	hmac := make([]byte, len(body))
	copy(hmac, body)
	return &Auth{Header: h, HMAC: hmac}, nil
}

func (a *Auth) Validate() error { return nil }

// Padding is the decoded body of a padding node: pure filler between real
// nodes, carrying no payload beyond its own length.
type Padding struct {
	Header Header
}

func (p *Padding) Head() Header { return p.Header }
func (p *Padding) Validate() error { return nil }
