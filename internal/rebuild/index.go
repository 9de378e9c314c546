package rebuild

import (
	"fmt"

	"github.com/ubifsck/ubifsck/internal/device"
	"github.com/ubifsck/ubifsck/internal/key"
	"github.com/ubifsck/ubifsck/internal/loader"
	"github.com/ubifsck/ubifsck/internal/lpt"
	"github.com/ubifsck/ubifsck/internal/node"
	"github.com/ubifsck/ubifsck/internal/scanfile"
	"github.com/ubifsck/ubifsck/internal/tnc"
)

// leafLoc is one surviving TNC leaf candidate, gathered from the
// validated/reconnected scavenge result and handed to BuildFromLeaves —
// the rebuild's equivalent of a sweep's already-indexed TNC leaf.
type leafLoc struct {
	key        key.Key
	name       string
	lnum, offs int
	len        int
}

// indexLoc is the on-flash location of one freshly written index node,
// most importantly the final tree root the new master node must point
// at. TotalSize is only meaningful on the value returned for the root: the
// sum of every index node's 8-byte-aligned length, the calc_idx_sz a
// fresh master node commits (spec.md §4.5.6).
type indexLoc struct {
	Lnum, Offs, Len int
	TotalSize       uint64
}

func alignUp8(n uint64) uint64 { return (n + 7) &^ 7 }

// survivingLeaves enumerates exactly one TNC-leaf candidate per surviving
// node: every file's inode node, every directory's non-xattr dentries,
// every xattr host's xent entries, and every file's data blocks (spec.md
// §4.6 stage 9). Truncation records are never indexed by the TNC (they
// carry no payload a reader ever looks up), so they contribute nothing
// here even though RecomputeAttributes has already consumed them.
func survivingLeaves(files map[uint32]*scanfile.File, sc *scavenge) []leafLoc {
	var out []leafLoc

	for inum, f := range files {
		if f.Inode != nil {
			out = append(out, leafLoc{
				key:  key.Inode(inum),
				lnum: f.InodeLnum, offs: f.InodeOffs,
				len: nodeLenAt(sc, f.InodeLnum, f.InodeOffs),
			})
		}

		for _, d := range f.AllDentries() {
			out = append(out, leafLoc{
				key:  key.Dent(inum, d.Entry.Name),
				name: d.Entry.Name,
				lnum: d.Lnum, offs: d.Offs,
				len: nodeLenAt(sc, d.Lnum, d.Offs),
			})
		}

		for xinum, target := range f.Xattrs {
			_ = xinum
			for _, d := range target.AllLinks() {
				if d.ParentInum != inum {
					continue
				}
				out = append(out, leafLoc{
					key:  key.Xent(inum, d.Entry.Name),
					name: d.Entry.Name,
					lnum: d.Lnum, offs: d.Offs,
					len: nodeLenAt(sc, d.Lnum, d.Offs),
				})
			}
		}

		f.Data.Range(func(block uint32, db scanfile.DataBlock) bool {
			out = append(out, leafLoc{
				key:  key.DataBlock(inum, block),
				lnum: db.Lnum, offs: db.Offs,
				len: nodeLenAt(sc, db.Lnum, db.Offs),
			})
			return true
		})
	}

	return out
}

// nodeLenAt looks up the on-flash length the scavenge scan recorded for
// the node at (lnum, offs); 0 if the scan never saw anything there (which
// should not happen for any location survivingLeaves hands out, since
// every such location came from the same scan).
func nodeLenAt(sc *scavenge, lnum, offs int) int {
	if ls, ok := sc.space[lnum]; ok {
		if l, ok := ls.nodeLen[offs]; ok {
			return l
		}
	}
	return 0
}

// buildIndexAndSpace implements spec.md §4.6 stages 8-10 together: the
// space table and the fresh index are interdependent, since the space
// table must exclude whichever main LEBs end up hosting new index nodes,
// but that allocation is only known once the fresh tree has actually been
// folded from the surviving leaves. It marks the fixed regions Taken,
// folds leaves into a brand-new TNC and B+-tree shape, writes that tree
// bottom-up onto reclaimable main LEBs, and finally fills in the space
// table entries for every main LEB the index pass did not claim.
func buildIndexAndSpace(vol device.Volume, sb *node.Superblock, layout loader.Layout, sc *scavenge, leaves []leafLoc) (*lpt.Lpt, indexLoc, error) {
	lp := lptNew(vol)

	takeRange := func(start, count int) error {
		for lnum := start; lnum < start+count; lnum++ {
			if err := lp.Change(lnum, 0, 0, false, true, vol.LebSize()); err != nil {
				return err
			}
		}
		return nil
	}
	if err := takeRange(0, layout.LogStart); err != nil { // superblock + master
		return nil, indexLoc{}, err
	}
	if err := takeRange(layout.LogStart, layout.LogCount); err != nil {
		return nil, indexLoc{}, err
	}
	if err := takeRange(layout.LptStart, layout.LptCount); err != nil {
		return nil, indexLoc{}, err
	}
	if err := takeRange(layout.OrphanStart, layout.OrphanCount); err != nil {
		return nil, indexLoc{}, err
	}

	used := make(map[int]int, layout.MainCount)
	for _, lf := range leaves {
		used[lf.lnum] += lf.len
	}

	var pool []int
	for lnum := layout.MainStart; lnum < layout.MainStart+layout.MainCount; lnum++ {
		if used[lnum] == 0 {
			pool = append(pool, lnum)
		}
	}

	t := tnc.New()
	for _, lf := range leaves {
		t.AddNm(lf.key, lf.name, tnc.Loc{Lnum: lf.lnum, Offs: lf.offs, Len: lf.len})
	}
	root := t.BuildFromLeaves(int(sb.Fanout))
	if root == nil {
		return nil, indexLoc{}, fmt.Errorf("rebuild: no surviving leaves to index")
	}

	need := countZnodes(root)
	if need > len(pool) {
		return nil, indexLoc{}, fmt.Errorf("rebuild: need %d lebs to host a fresh index but only %d are reclaimable", need, len(pool))
	}

	indexLnums := make(map[int]bool, need)
	rootLoc, err := writeIndexNode(vol, lp, &pool, indexLnums, root)
	if err != nil {
		return nil, indexLoc{}, err
	}

	var total uint64
	if err := tnc.WalkIndex(root, func(z *tnc.Znode) error {
		total += alignUp8(uint64(z.Len))
		return nil
	}, nil); err != nil {
		return nil, indexLoc{}, err
	}
	rootLoc.TotalSize = total

	for lnum := layout.MainStart; lnum < layout.MainStart+layout.MainCount; lnum++ {
		if indexLnums[lnum] {
			continue
		}
		ls, ok := sc.space[lnum]
		emptyOffs := 0
		if ok {
			emptyOffs = ls.emptyOffs
		}
		u := used[lnum]
		free := vol.LebSize() - uint32(emptyOffs)
		dirty := uint32(emptyOffs - u)
		if err := lp.Change(lnum, free, dirty, false, false, uint32(u)); err != nil {
			return nil, indexLoc{}, fmt.Errorf("rebuild: space table leb %d: %w", lnum, err)
		}
	}

	return lp, rootLoc, nil
}

// countZnodes counts every internal index node the tree contains
// (leaves live in the Tnc dictionary, never materialized as a Znode).
func countZnodes(z *tnc.Znode) int {
	if z == nil {
		return 0
	}
	n := 1
	for _, b := range z.Branches {
		if b.Child != nil {
			n += countZnodes(b.Child)
		}
	}
	return n
}

// writeIndexNode writes z and every descendant bottom-up onto LEBs popped
// from pool, recording each one in indexLnums and its Category in lp, and
// returns the location the parent (or the caller, for the root) should
// reference.
func writeIndexNode(vol device.Volume, lp *lpt.Lpt, pool *[]int, indexLnums map[int]bool, z *tnc.Znode) (indexLoc, error) {
	for i := range z.Branches {
		b := &z.Branches[i]
		if b.Child == nil {
			continue
		}
		loc, err := writeIndexNode(vol, lp, pool, indexLnums, b.Child)
		if err != nil {
			return indexLoc{}, err
		}
		b.Lnum, b.Offs, b.Len = loc.Lnum, loc.Offs, loc.Len
	}

	branches := make([]node.Branch, len(z.Branches))
	for i, b := range z.Branches {
		branches[i] = node.Branch{
			Key: b.Key, Lnum: uint32(b.Lnum), Offs: uint32(b.Offs), Len: uint32(b.Len),
		}
	}
	idx := &node.Idx{Level: uint16(z.Level), Branches: branches}
	buf := node.EncodeIdx(idx)

	if len(*pool) == 0 {
		return indexLoc{}, fmt.Errorf("rebuild: ran out of reclaimable lebs while writing the fresh index")
	}
	lnum := (*pool)[0]
	*pool = (*pool)[1:]

	if err := vol.LebChange(lnum, buf); err != nil {
		return indexLoc{}, fmt.Errorf("rebuild: write index leb %d: %w", lnum, err)
	}
	if err := lp.Change(lnum, vol.LebSize()-uint32(len(buf)), 0, true, false, uint32(len(buf))); err != nil {
		return indexLoc{}, fmt.Errorf("rebuild: lpt update for index leb %d: %w", lnum, err)
	}
	indexLnums[lnum] = true

	z.Lnum, z.Offs, z.Len = lnum, 0, len(buf)
	z.Dirty = false

	return indexLoc{Lnum: lnum, Offs: 0, Len: len(buf)}, nil
}
