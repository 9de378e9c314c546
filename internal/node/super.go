package node

import (
	"encoding/binary"
	"fmt"
)

// sbLen is the full fixed length of a superblock node, header included.
const sbLen = 24 + 60

// Superblock is the decoded body of a superblock node: volume geometry and
// format identification. Fixed-length per spec.md §3.
type Superblock struct {
	Header         Header
	MinIOSize      uint32
	LEBSize        uint32
	LEBCount       uint32
	MaxLEBCount    uint32
	MaxBudIdx      uint32 // reserved for journal sizing; kept for layout fidelity
	LogLebs        uint32
	LPTLebs        uint32
	OrphanLebs     uint32
	MainLebs       uint32
	KeyHash        uint8
	KeyFmt         uint8
	Fanout         uint16
	FmtVersion     uint32
	ROCompatVersion uint32
}

func (s *Superblock) Head() Header { return s.Header }

func decodeSuperblock(h Header, body []byte) (*Superblock, error) {
	const need = 60
	if len(body) < need {
		return nil, fmt.Errorf("%w: superblock body too short: %d bytes", ErrBadNodeLength, len(body))
	}
	return &Superblock{
		Header:          h,
		MinIOSize:       binary.LittleEndian.Uint32(body[0:4]),
		LEBSize:         binary.LittleEndian.Uint32(body[4:8]),
		LEBCount:        binary.LittleEndian.Uint32(body[8:12]),
		MaxLEBCount:     binary.LittleEndian.Uint32(body[12:16]),
		MaxBudIdx:       binary.LittleEndian.Uint32(body[16:20]),
		LogLebs:         binary.LittleEndian.Uint32(body[20:24]),
		LPTLebs:         binary.LittleEndian.Uint32(body[24:28]),
		OrphanLebs:      binary.LittleEndian.Uint32(body[28:32]),
		MainLebs:        binary.LittleEndian.Uint32(body[32:36]),
		KeyHash:         body[36],
		KeyFmt:          body[37],
		Fanout:          binary.LittleEndian.Uint16(body[38:40]),
		FmtVersion:      binary.LittleEndian.Uint32(body[40:44]),
		ROCompatVersion: binary.LittleEndian.Uint32(body[44:48]),
	}, nil
}

// Validate enforces spec.md §4.1: superblock geometry must lie within
// declared min/max LEB counts and region sizes must sum sanely.
func (s *Superblock) Validate() error {
	if s.LEBSize == 0 || s.MinIOSize == 0 {
		return fmt.Errorf("%w: superblock has zero leb/io size", ErrValidation)
	}
	if s.LEBSize%s.MinIOSize != 0 {
		return fmt.Errorf("%w: leb size %d not a multiple of min i/o unit %d", ErrValidation, s.LEBSize, s.MinIOSize)
	}
	if s.LEBCount == 0 || s.LEBCount > s.MaxLEBCount {
		return fmt.Errorf("%w: leb count %d outside declared max %d", ErrValidation, s.LEBCount, s.MaxLEBCount)
	}
	reserved := uint64(2) /*sb*/ + 2 /*master*/ + uint64(s.LogLebs) + uint64(s.LPTLebs) + uint64(s.OrphanLebs) + uint64(s.MainLebs)
	if reserved > uint64(s.LEBCount) {
		return fmt.Errorf("%w: reserved regions (%d lebs) exceed volume leb count %d", ErrValidation, reserved, s.LEBCount)
	}
	if s.Fanout < 2 {
		return fmt.Errorf("%w: fanout %d too small", ErrValidation, s.Fanout)
	}
	return nil
}
