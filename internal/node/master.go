package node

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// masterLen is the full fixed length of a master node, header included.
const masterLen = 24 + 40

// Master is the decoded body of a master node: the commit record pointing
// at the TNC root, LPT root, log head, and space statistics. Two copies
// are kept in the master region; the loader keeps the copy with the
// higher sequence number and does not compare the two.
type Master struct {
	Header      Header
	HighestInum uint32
	RootLnum    uint32
	RootOffs    uint32
	RootLen     uint32
	IdxSize     uint64
	LPTLnum     uint32
	LPTOffs     uint32
	LogLnum     uint32
	TotalFree   uint64
	TotalDirty  uint64
	TotalUsed   uint64
	Flags       uint32
}

func (m *Master) Head() Header { return m.Header }

// Bytes re-encodes the master body (without the common header) for
// byte-for-byte comparison between the two on-flash copies.
func (m *Master) Bytes() []byte {
	buf := make([]byte, 40)
	binary.LittleEndian.PutUint32(buf[0:4], m.HighestInum)
	binary.LittleEndian.PutUint32(buf[4:8], m.RootLnum)
	binary.LittleEndian.PutUint32(buf[8:12], m.RootOffs)
	binary.LittleEndian.PutUint32(buf[12:16], m.RootLen)
	binary.LittleEndian.PutUint64(buf[16:24], m.IdxSize)
	binary.LittleEndian.PutUint32(buf[24:28], m.LPTLnum)
	binary.LittleEndian.PutUint32(buf[28:32], m.LPTOffs)
	binary.LittleEndian.PutUint32(buf[32:36], m.LogLnum)
	binary.LittleEndian.PutUint32(buf[36:40], m.Flags)
	return buf
}

// EncodeMaster serializes m into a fresh masterLen-byte node buffer with
// a recomputed CRC, used to write back a corrected IdxSize (spec.md
// §4.5.6). The space-total fields (TotalFree, TotalDirty, TotalUsed) are
// not part of the encoding.
func EncodeMaster(m *Master) []byte {
	buf := make([]byte, masterLen)
	copy(buf[HeaderLen:], m.Bytes())

	h := m.Header
	h.Len = uint32(masterLen)
	h.NodeType = TypeMaster
	EncodeHeader(buf, h)
	m.Header = h
	return buf
}

func decodeMaster(h Header, body []byte) (*Master, error) {
	const need = 40
	if len(body) < need {
		return nil, fmt.Errorf("%w: master body too short: %d bytes", ErrBadNodeLength, len(body))
	}
	return &Master{
		Header:      h,
		HighestInum: binary.LittleEndian.Uint32(body[0:4]),
		RootLnum:    binary.LittleEndian.Uint32(body[4:8]),
		RootOffs:    binary.LittleEndian.Uint32(body[8:12]),
		RootLen:     binary.LittleEndian.Uint32(body[12:16]),
		IdxSize:     binary.LittleEndian.Uint64(body[16:24]),
		LPTLnum:     binary.LittleEndian.Uint32(body[24:28]),
		LPTOffs:     binary.LittleEndian.Uint32(body[28:32]),
		LogLnum:     binary.LittleEndian.Uint32(body[32:36]),
		Flags:       binary.LittleEndian.Uint32(body[36:40]),
	}, nil
}

func (m *Master) Validate() error {
	if m.RootLen == 0 {
		return fmt.Errorf("%w: master node has zero-length tnc root", ErrValidation)
	}
	return nil
}

// SameAs reports whether two master copies agree on their committed state
// (equal Bytes encodings); the loader does not call it.
func (m *Master) SameAs(o *Master) bool {
	return bytes.Equal(m.Bytes(), o.Bytes())
}

// refLen is the full fixed length of a reference node, header included.
const refLen = 24 + 16

// Reference is the decoded body of a reference node: a log entry pointing
// at a bud LEB whose live content must be replayed into the TNC.
type Reference struct {
	Header   Header
	BudLnum  uint32
	BudOffs  uint32
	Jhead    uint32 // journal head that owned this bud, for log consolidation
	Reserved uint32
}

func (r *Reference) Head() Header { return r.Header }

func decodeReference(h Header, body []byte) (*Reference, error) {
	const need = 16
	if len(body) < need {
		return nil, fmt.Errorf("%w: reference body too short: %d bytes", ErrBadNodeLength, len(body))
	}
	return &Reference{
		Header:  h,
		BudLnum: binary.LittleEndian.Uint32(body[0:4]),
		BudOffs: binary.LittleEndian.Uint32(body[4:8]),
		Jhead:   binary.LittleEndian.Uint32(body[8:12]),
	}, nil
}

func (r *Reference) Validate() error { return nil }
