package rebuild

import (
	"errors"
	"fmt"

	"github.com/ubifsck/ubifsck/internal/device"
	"github.com/ubifsck/ubifsck/internal/key"
	"github.com/ubifsck/ubifsck/internal/loader"
	"github.com/ubifsck/ubifsck/internal/node"
	"github.com/ubifsck/ubifsck/internal/scan"
	"github.com/ubifsck/ubifsck/internal/scanfile"
)

// lebSpace is the per-LEB space ledger the scavenge scan builds up in
// the same pass that resolves surviving nodes: every node length it ever
// saw at this LEB (offset keyed, regardless of whether that node
// survives dedup) plus the offset at which clean erased space begins —
// the two numbers buildIndexAndSpace needs to recompute free/dirty/used
// once the final surviving set is known (spec.md §4.6 stage 8).
type lebSpace struct {
	emptyOffs int
	nodeLen   map[int]int
}

// scavenge is the raw scan's output: every surviving file keyed by inode
// number, the highest inode number observed anywhere — live or not,
// since spec.md's inode watermark must never regress across a rebuild —
// and the per-LEB space ledger.
type scavenge struct {
	files       map[uint32]*scanfile.File
	highestInum uint32
	space       map[int]*lebSpace
}

// dentKey identifies one directory/xattr-entry slot: spec.md's "latest
// version wins" rule (stage 2) resolves competing writes at this
// granularity, not at the name-hash bucket the on-flash key actually
// groups by, since two different names can share a hash bucket without
// being the same logical entry.
type dentKey struct {
	parent uint32
	xattr  bool
	name   string
}

// dataKey identifies one (file, block) data-node slot.
type dataKey struct {
	inum  uint32
	block uint32
}

// scavengeVolume implements spec.md §4.6 stages 2-4: scan every main-area
// LEB once, resolve the highest-sequence-number candidate at each
// logical identity, and fold the winners into a scanned-file map of
// exactly the shape internal/check's Sweep produces from TNC leaves —
// except built directly from flash, trusting no index at all.
func scavengeVolume(vol device.Volume, layout loader.Layout) (*scavenge, error) {
	bestInode := make(map[uint32]*node.Inode)
	inodeLoc := make(map[uint32]nodeLoc)
	bestTrun := make(map[uint32]*node.Trun)
	bestDent := make(map[dentKey]*node.DirEntry)
	dentLoc := make(map[dentKey]nodeLoc)
	bestData := make(map[dataKey]*node.Data)
	dataLoc := make(map[dataKey]nodeLoc)

	space := make(map[int]*lebSpace, layout.MainCount)

	for lnum := layout.MainStart; lnum < layout.MainStart+layout.MainCount; lnum++ {
		buf, err := vol.LebRead(lnum, 0, int(vol.LebSize()))
		if err != nil {
			return nil, fmt.Errorf("read leb %d: %w", lnum, err)
		}
		sl, err := scan.LEB(lnum, buf)
		if err != nil && !errors.Is(err, scan.ErrGarbage) {
			return nil, fmt.Errorf("scan leb %d: %w", lnum, err)
		}

		ls := &lebSpace{emptyOffs: sl.EmptyOffs, nodeLen: make(map[int]int, len(sl.Nodes))}
		space[lnum] = ls

		for _, nr := range sl.Nodes {
			ls.nodeLen[nr.Offs] = nr.Len

			switch v := nr.Node.(type) {
			case *node.Inode:
				if cur, ok := bestInode[v.Inum]; !ok || v.Header.Sqnum > cur.Header.Sqnum {
					bestInode[v.Inum] = v
					inodeLoc[v.Inum] = nodeLoc{lnum, nr.Offs}
				}
			case *node.Trun:
				if cur, ok := bestTrun[v.Inum]; !ok || v.Header.Sqnum > cur.Header.Sqnum {
					bestTrun[v.Inum] = v
				}
			case *node.DirEntry:
				dk := dentKey{parent: v.ParentInum, xattr: v.Xattr, name: v.Name}
				if cur, ok := bestDent[dk]; !ok || v.Header.Sqnum > cur.Header.Sqnum {
					bestDent[dk] = v
					dentLoc[dk] = nodeLoc{lnum, nr.Offs}
				}
			case *node.Data:
				dk := dataKey{inum: v.Inum, block: v.Block}
				if cur, ok := bestData[dk]; !ok || v.Header.Sqnum > cur.Header.Sqnum {
					bestData[dk] = v
					dataLoc[dk] = nodeLoc{lnum, nr.Offs}
				}
			}
		}
	}

	sc := &scavenge{files: make(map[uint32]*scanfile.File), space: space}
	file := func(inum uint32) *scanfile.File {
		f, ok := sc.files[inum]
		if !ok {
			f = scanfile.New(inum)
			sc.files[inum] = f
		}
		return f
	}
	bumpWatermark := func(inum uint32) {
		if inum > sc.highestInum {
			sc.highestInum = inum
		}
	}

	for inum, in := range bestInode {
		f := file(inum)
		f.Inode = in
		loc := inodeLoc[inum]
		f.InodeLnum, f.InodeOffs = loc.lnum, loc.offs
		bumpWatermark(inum)
	}
	for inum, tr := range bestTrun {
		file(inum).Trun = tr
		bumpWatermark(inum)
	}
	for dk, d := range bestDent {
		bumpWatermark(dk.parent)
		bumpWatermark(d.Inum)
		if d.IsDeletion() {
			// A tombstone wins the slot but contributes no live edge
			// (spec.md §4.6 stage 2).
			continue
		}
		loc := dentLoc[dk]
		rec := scanfile.Dentry{Entry: d, Lnum: loc.lnum, Offs: loc.offs, ParentInum: dk.parent}
		hash := key.NameHash(dk.name)
		if dk.xattr {
			host := file(dk.parent)
			target := file(d.Inum)
			host.Xattrs[d.Inum] = target
			target.AddLinkAt(hash, rec)
		} else {
			parent := file(dk.parent)
			parent.AddDentryAt(hash, rec)
			target := file(d.Inum)
			target.AddLinkAt(hash, rec)
		}
	}
	for dk, d := range bestData {
		bumpWatermark(dk.inum)
		loc := dataLoc[dk]
		file(dk.inum).Data.Set(dk.block, scanfile.DataBlock{Node: d, Lnum: loc.lnum, Offs: loc.offs})
	}

	return sc, nil
}
