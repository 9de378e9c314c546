package loader

import (
	"errors"
	"fmt"

	"github.com/ubifsck/ubifsck/internal/device"
	"github.com/ubifsck/ubifsck/internal/node"
	"github.com/ubifsck/ubifsck/internal/scan"
)

// LoadSuperblock implements spec.md §4.2 stage 2: read the first
// superblock LEB and validate its declared geometry. Exported so
// internal/rebuild can bring up the same minimal context (superblock
// only, stage 1) without a second implementation of this read.
func LoadSuperblock(vol device.Volume) (*node.Superblock, error) {
	buf, err := vol.LebRead(0, 0, int(vol.LebSize()))
	if err != nil {
		return nil, fmt.Errorf("%w: read leb 0: %v", ErrSuperblockCorrupted, err)
	}
	sl, err := scan.LEB(0, buf)
	if err != nil && !errors.Is(err, scan.ErrGarbage) {
		return nil, err
	}
	for _, nr := range sl.Nodes {
		sb, ok := nr.Node.(*node.Superblock)
		if !ok {
			continue
		}
		if err := sb.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSuperblockCorrupted, err)
		}
		return sb, nil
	}
	return nil, fmt.Errorf("%w: no superblock node in leb 0", ErrSuperblockCorrupted)
}

// loadMaster implements spec.md §4.2 stage 3: pick the last intact master
// copy between the two master-region LEBs, preferring the higher
// sequence number when both parse.
func loadMaster(vol device.Volume, layout Layout) (*node.Master, int, int, error) {
	m0, o0 := scanMasterCopy(vol, layout.MasterLnum0)
	m1, o1 := scanMasterCopy(vol, layout.MasterLnum1)

	switch {
	case m0 == nil && m1 == nil:
		return nil, 0, 0, fmt.Errorf("%w: both master copies unreadable", ErrMasterCorrupted)
	case m1 == nil:
		return m0, layout.MasterLnum0, o0, nil
	case m0 == nil:
		return m1, layout.MasterLnum1, o1, nil
	case m0.Header.Sqnum >= m1.Header.Sqnum:
		return m0, layout.MasterLnum0, o0, nil
	default:
		return m1, layout.MasterLnum1, o1, nil
	}
}

// scanMasterCopy returns the validly-parsed master node with the highest
// sequence number found in lnum, the later one on a tie (master nodes are
// appended within a LEB as the log commits, spec.md §4.2 stage 3's "pick
// the last intact one"), or nil if none parse.
func scanMasterCopy(vol device.Volume, lnum int) (*node.Master, int) {
	buf, err := vol.LebRead(lnum, 0, int(vol.LebSize()))
	if err != nil {
		return nil, 0
	}
	sl, err := scan.LEB(lnum, buf)
	if err != nil && !errors.Is(err, scan.ErrGarbage) {
		return nil, 0
	}

	var best *node.Master
	var bestOffs int
	for _, nr := range sl.Nodes {
		m, ok := nr.Node.(*node.Master)
		if !ok {
			continue
		}
		if err := m.Validate(); err != nil {
			continue
		}
		if best == nil || m.Header.Sqnum >= best.Header.Sqnum {
			best = m
			bestOffs = nr.Offs
		}
	}
	return best, bestOffs
}
