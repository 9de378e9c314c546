package check

import (
	"fmt"

	"github.com/ubifsck/ubifsck/internal/node"
	"github.com/ubifsck/ubifsck/internal/problem"
	"github.com/ubifsck/ubifsck/internal/scanfile"
)

// RecomputeAttributes implements spec.md §4.5.4: recompute calc_nlink,
// calc_size, calc_xcnt, calc_xsz, calc_xnms for every surviving file and
// compare against the stored inode; a mismatch emits FileIsInconsistent
// and, when approved, rewrites the inode node in place.
func (e *Engine) RecomputeAttributes() error {
	childSubdirs := e.countChildSubdirs()

	for _, f := range e.Files {
		if f.Inode == nil {
			continue
		}
		f.Recompute(childSubdirs[f.Inum])

		mismatch := f.CalcNlink != f.Inode.Nlink ||
			f.CalcSize != f.Inode.Size ||
			f.CalcXcnt != f.Inode.Xcnt ||
			f.CalcXsz != f.Inode.Xsz ||
			f.CalcXnms != f.Inode.Xnms
		if !mismatch {
			continue
		}

		d, err := e.decide(problem.FileIsInconsistent)
		if err != nil {
			return err
		}
		if d.Fix {
			if err := e.rewriteInode(f); err != nil {
				return err
			}
		}
	}
	return nil
}

// countChildSubdirs tallies, per directory inum, the number of direct
// child dentries that target a directory inode — the childSubdirs term
// scanfile.Recompute needs but cannot derive on its own since it would
// require crossing file boundaries.
func (e *Engine) countChildSubdirs() map[uint32]uint32 {
	out := make(map[uint32]uint32)
	for _, f := range e.Files {
		if f.Inode == nil || !f.Inode.IsDir() {
			continue
		}
		for _, d := range f.AllDentries() {
			if d.Entry.IsDeletion() {
				continue
			}
			if target, ok := e.Files[d.Entry.Inum]; ok && target.Inode != nil && target.Inode.IsDir() {
				out[f.Inum]++
			}
		}
	}
	return out
}

// rewriteInode applies the recomputed attributes to f.Inode and writes
// the node back to its existing (lnum, offs) with a fresh CRC, via the
// LEB read-modify-change operation spec.md §4.5.4 prescribes: read the
// whole hosting LEB, splice in the re-encoded node, and atomically
// replace the LEB so a torn partial write is never observable.
func (e *Engine) rewriteInode(f *scanfile.File) error {
	inode := f.Inode
	inode.Nlink = f.CalcNlink
	inode.Size = f.CalcSize
	inode.Xcnt = f.CalcXcnt
	inode.Xsz = f.CalcXsz
	inode.Xnms = f.CalcXnms

	buf, err := node.EncodeInode(inode)
	if err != nil {
		return fmt.Errorf("check: encode inode %d: %w", inode.Inum, err)
	}
	leb, err := e.Device.LebRead(f.InodeLnum, 0, int(e.Device.LebSize()))
	if err != nil {
		return fmt.Errorf("check: read leb %d: %w", f.InodeLnum, err)
	}
	copy(leb[f.InodeOffs:], buf)
	if err := e.Device.LebChange(f.InodeLnum, leb); err != nil {
		return fmt.Errorf("check: rewrite inode %d: %w", inode.Inum, err)
	}
	return nil
}
