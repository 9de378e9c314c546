package check

import (
	"fmt"

	"github.com/ubifsck/ubifsck/internal/key"
	"github.com/ubifsck/ubifsck/internal/lpt"
	"github.com/ubifsck/ubifsck/internal/node"
	"github.com/ubifsck/ubifsck/internal/problem"
	"github.com/ubifsck/ubifsck/internal/tnc"
)

// SpaceCheck implements spec.md §4.5.5: for every main LEB, scan it and
// sum live node sizes into true (free, dirty, is_idx), compare to the
// LPT entry, and fold any correction into the running global total so
// SpaceStatIncorrect can be evaluated once at the end.
func (e *Engine) SpaceCheck() error {
	var trueTotal lpt.SpaceStat

	for lnum := 0; lnum < e.Lpt.NumLebs(); lnum++ {
		free, dirty, isIdx, used, err := e.recountLeb(lnum)
		if err != nil {
			return err
		}
		trueTotal.TotalFree += uint64(free)
		trueTotal.TotalDirty += uint64(dirty)
		trueTotal.TotalUsed += uint64(used)

		stored, err := e.Lpt.Lookup(lnum)
		if err != nil {
			return err
		}
		storedUsed := uint64(e.Lpt.LebSize) - uint64(stored.Free) - uint64(stored.Dirty)
		if uint64(free) == uint64(stored.Free) && uint64(dirty) == uint64(stored.Dirty) && storedUsed == uint64(used) {
			continue
		}

		d, err := e.decide(problem.LpIncorrect)
		if err != nil {
			return err
		}
		if d.Fix {
			taken := stored.Flags == lpt.CategoryTaken
			if err := e.Lpt.Change(lnum, free, dirty, isIdx, taken, used); err != nil {
				return fmt.Errorf("check: correct lpt entry for leb %d: %w", lnum, err)
			}
		}
	}

	recordedTotal := e.Lpt.Stat()
	if recordedTotal != trueTotal {
		if _, err := e.decide(problem.SpaceStatIncorrect); err != nil {
			return err
		}
	}
	return nil
}

// recountLeb scans lnum once and derives its true free/dirty/used space,
// counting a node "live" only when the TNC still indexes it (tnc.HasNode)
// — the definition spec.md §4.5.5 gives for "live".
func (e *Engine) recountLeb(lnum int) (free, dirty uint32, isIdx bool, used uint32, err error) {
	sl, err := e.readLeb(lnum)
	if err != nil {
		return 0, 0, false, 0, err
	}

	for _, nr := range sl.Nodes {
		if node.IsIndex(nr.Node.Head().NodeType) {
			isIdx = true
		}
		if e.nodeIsLive(nr.Node, lnum, nr.Offs) {
			used += uint32(nr.Len)
		} else {
			dirty += uint32(nr.Len)
		}
	}
	free = e.Lpt.LebSize - used - dirty
	if sl.Garbage {
		// Unrecognizable trailing region counts as dirty: it can never
		// be reclaimed as free without erasing the whole LEB.
		reclaim := e.Lpt.LebSize - uint32(sl.GarbageOffs)
		dirty += reclaim
		free -= reclaim
	}
	return free, dirty, isIdx, used, nil
}

// nodeIsLive derives n's TNC key by node type and reports whether the
// TNC still indexes it at exactly (lnum, offs). Index nodes, and node
// types the TNC never stores as leaves (trun, padding, superblock,
// master, reference, commit-start, orphan, auth), are never "live" in
// this sense — an idx node's liveness is instead decided by
// IndexSizeCheck's walk, and the other types are journal/log-only
// records that do not occupy committed main-LEB space once replayed.
func (e *Engine) nodeIsLive(n node.Node, lnum, offs int) bool {
	switch v := n.(type) {
	case *node.Inode:
		return e.Tnc.HasNode(key.Inode(v.Inum), lnum, offs)
	case *node.Data:
		return e.Tnc.HasNode(key.DataBlock(v.Inum, v.Block), lnum, offs)
	case *node.DirEntry:
		k := key.Dent(v.ParentInum, v.Name)
		if v.Xattr {
			k = key.Xent(v.ParentInum, v.Name)
		}
		return e.Tnc.HasNode(k, lnum, offs)
	default:
		return false
	}
}

// IndexSizeCheck implements spec.md §4.5.6: walk_index with an add_size
// znode callback accumulates the 8-byte-aligned size of every index
// node, compared against the master node's stored calc_idx_sz.
func (e *Engine) IndexSizeCheck() error {
	var total uint64
	err := tnc.WalkIndex(e.Tnc.Root, func(z *tnc.Znode) error {
		total += alignUp8(uint64(z.Len))
		return nil
	}, nil)
	if err != nil {
		return err
	}

	if e.Master == nil || total == e.Master.IdxSize {
		return nil
	}
	d, err := e.decide(problem.IncorrectIdxSz)
	if err != nil {
		return err
	}
	if d.Fix {
		e.Master.IdxSize = total
		buf := node.EncodeMaster(e.Master)
		leb, err := e.Device.LebRead(e.MasterLnum, 0, int(e.Device.LebSize()))
		if err != nil {
			return fmt.Errorf("check: read master leb %d: %w", e.MasterLnum, err)
		}
		copy(leb[e.MasterOffs:], buf)
		if err := e.Device.LebChange(e.MasterLnum, leb); err != nil {
			return fmt.Errorf("check: rewrite master idx size: %w", err)
		}
	}
	return nil
}

func alignUp8(n uint64) uint64 { return (n + 7) &^ 7 }
