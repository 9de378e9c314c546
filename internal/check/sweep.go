package check

import (
	"github.com/ubifsck/ubifsck/internal/key"
	"github.com/ubifsck/ubifsck/internal/node"
	"github.com/ubifsck/ubifsck/internal/problem"
	"github.com/ubifsck/ubifsck/internal/scanfile"
	"github.com/ubifsck/ubifsck/internal/tnc"
)

// Sweep implements spec.md §4.5.1: walk every TNC leaf, classify its
// hosting LEB's segregation, parse the node, and fold it into the
// scanned-files map. Internal znodes are not visited, so an index LEB
// that hosts no leaf is never scanned here; segregation is checked only
// for LEBs that host at least one leaf, by scanning every node in them.
func (e *Engine) Sweep() error {
	for _, leaf := range e.Tnc.AllLeaves() {
		if err := e.sweepLeaf(leaf.Key, leaf.Name, leaf.Loc); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) sweepLeaf(k key.Key, name string, loc tnc.Loc) error {
	if loc.Len < node.HeaderLen {
		d, err := e.decide(problem.TncDataCorrupted)
		if err != nil {
			return err
		}
		if d.Fix {
			e.Tnc.RemoveNm(k, name)
		}
		return nil
	}

	if e.lebCorrupt[loc.Lnum] {
		d, err := e.decide(problem.TncCorrupted)
		if err != nil {
			return err
		}
		if d.Fix {
			e.Tnc.RemoveNm(k, name)
		}
		return nil
	}

	if _, seen := e.lebKind[loc.Lnum]; !seen {
		sl, err := e.readLeb(loc.Lnum)
		if err != nil {
			return err
		}
		for _, nr := range sl.Nodes {
			e.markLebKind(loc.Lnum, node.IsIndex(nr.Node.Head().NodeType))
		}
	}
	if e.lebCorrupt[loc.Lnum] {
		d, err := e.decide(problem.TncCorrupted)
		if err != nil {
			return err
		}
		if d.Fix {
			e.Tnc.RemoveNm(k, name)
		}
		return nil
	}

	buf, err := e.Device.LebRead(loc.Lnum, loc.Offs, loc.Len)
	if err != nil {
		return err
	}
	n, perr := node.Parse(buf, loc.Lnum, loc.Offs)
	if perr != nil {
		d, err := e.decide(problem.TncDataCorrupted)
		if err != nil {
			return err
		}
		if d.Fix {
			e.Tnc.RemoveNm(k, name)
		}
		return nil
	}

	e.foldNode(k, name, loc.Lnum, loc.Offs, n)
	return nil
}

// foldNode inserts a parsed leaf node into its owning scanned file.
func (e *Engine) foldNode(k key.Key, name string, lnum, offs int, n node.Node) {
	switch v := n.(type) {
	case *node.Inode:
		f := e.file(v.Inum)
		if f.Inode == nil || v.Header.Sqnum > f.Inode.Header.Sqnum {
			f.Inode = v
			f.InodeLnum = lnum
			f.InodeOffs = offs
		}
		if v.Inum > e.HighestInum {
			e.HighestInum = v.Inum
		}
	case *node.DirEntry:
		d := scanfile.Dentry{Entry: v, Lnum: lnum, Offs: offs, ParentInum: k.Inode}
		if v.Xattr {
			host := e.file(k.Inode)
			if !v.IsDeletion() {
				target := e.file(v.Inum)
				host.Xattrs[v.Inum] = target
				target.AddLinkAt(k.Payload, d)
			}
		} else {
			parent := e.file(k.Inode)
			parent.AddDentryAt(k.Payload, d)
			if !v.IsDeletion() {
				target := e.file(v.Inum)
				target.AddLinkAt(k.Payload, d)
			}
		}
	case *node.Data:
		f := e.file(v.Inum)
		f.Data.Set(v.Block, scanfile.DataBlock{Node: v, Lnum: lnum, Offs: offs})
	case *node.Trun:
		f := e.file(v.Inum)
		if f.Trun == nil || v.Header.Sqnum > f.Trun.Header.Sqnum {
			f.Trun = v
		}
	}
}

// ValidateFiles implements spec.md §4.5.2 in two rounds: xattr files
// first (ordinary files query them), then everything else.
func (e *Engine) ValidateFiles() error {
	var xattrs, others []uint32
	for inum, f := range e.Files {
		if f.Inode != nil && f.Inode.IsXattr() {
			xattrs = append(xattrs, inum)
		} else {
			others = append(others, inum)
		}
	}
	for _, inum := range xattrs {
		if err := e.validateOne(inum); err != nil {
			return err
		}
	}
	for _, inum := range others {
		if err := e.validateOne(inum); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) validateOne(inum uint32) error {
	f, ok := e.Files[inum]
	if !ok {
		return nil
	}

	if f.Inode == nil {
		d, err := e.decide(problem.FileHasNoInode)
		if err != nil {
			return err
		}
		if d.Fix {
			delete(e.Files, inum)
		}
		return nil
	}

	if f.Inode.Nlink == 0 {
		d, err := e.decide(problem.FileHasZeroNlinkInode)
		if err != nil {
			return err
		}
		if d.Fix {
			delete(e.Files, inum)
		}
		return nil
	}

	if err := e.reconcileDentTypes(f); err != nil {
		return err
	}

	if (f.Inode.IsDir() || f.Inode.IsXattr()) && f.LinkCount() > 1 {
		d, err := e.decide(problem.FileHasTooManyDent)
		if err != nil {
			return err
		}
		if d.Fix {
			e.keepNewestLink(f)
		}
	}

	if !f.Inode.IsRegular() && f.Data.Len() > 0 {
		d, err := e.decide(problem.FileShouldntHaveData)
		if err != nil {
			return err
		}
		if d.Fix {
			for _, blk := range f.Data.Keys() {
				f.Data.Delete(blk)
			}
		}
	}

	if inum != rootInum && f.LinkCount() == 0 {
		if f.Inode.IsRegular() {
			if _, err := e.decide(problem.FileIsDisconnected); err != nil {
				return err
			}
			e.Disconnected = append(e.Disconnected, f)
		} else {
			d, err := e.decide(problem.FileHasNoDent)
			if err != nil {
				return err
			}
			if d.Fix {
				delete(e.Files, inum)
			}
		}
		return nil
	}

	if inum == rootInum && f.LinkCount() > 0 {
		d, err := e.decide(problem.FileRootHasDent)
		if err != nil {
			return err
		}
		if d.Fix {
			for _, h := range f.Links.Keys() {
				f.Links.Delete(h)
			}
		}
	}

	if f.Inode.IsXattr() {
		host, hasHost := e.Files[hostOf(f)]
		if !hasHost {
			if _, err := e.decide(problem.XattrHasNoHost); err != nil {
				return err
			}
		} else if host.Inode != nil && host.Inode.IsXattr() {
			if _, err := e.decide(problem.XattrHasWrongHost); err != nil {
				return err
			}
		}
	}

	if f.Inode.IsEncrypted() && !f.Inode.IsXattr() && !hasEncryptXattr(f) {
		if _, err := e.decide(problem.FileHasNoEncrypt); err != nil {
			return err
		}
	}

	return nil
}

// rootInum is the synthetic root directory's inode number.
const rootInum = 1

// reconcileDentTypes drops f's incoming dentries whose declared type
// disagrees with f's own inode mode, or whose xattr/non-xattr
// classification disagrees with the entry's own Xattr flag.
func (e *Engine) reconcileDentTypes(f *scanfile.File) error {
	wantDir := f.Inode.IsDir()
	wantXattr := f.Inode.IsXattr()
	var bad []scanfile.Dentry
	for _, d := range f.AllLinks() {
		gotDir := d.Entry.Type == dirEntType
		if wantDir != gotDir || d.Entry.Xattr != wantXattr {
			bad = append(bad, d)
		}
	}
	if len(bad) == 0 {
		return nil
	}
	d, err := e.decide(problem.FileHasInconsistType)
	if err != nil {
		return err
	}
	if d.Fix {
		for _, b := range bad {
			e.dropLink(f, b)
		}
	}
	return nil
}

// dirEntType is the on-flash DirEntry.Type value this package treats as
// naming a directory inode.
const dirEntType = 2

// keepNewestLink drops every incoming dentry but the one with the
// highest sequence number, spec.md §4.5.2's FileHasTooManyDent fix.
func (e *Engine) keepNewestLink(f *scanfile.File) {
	all := f.AllLinks()
	if len(all) < 2 {
		return
	}
	best := all[0]
	for _, d := range all[1:] {
		if d.Entry.Header.Sqnum > best.Entry.Header.Sqnum {
			best = d
		}
	}
	for _, d := range all {
		if d.Lnum == best.Lnum && d.Offs == best.Offs {
			continue
		}
		e.dropLink(f, d)
	}
}

// dropLink removes one incoming dentry from both f's own Links (the
// back-pointer) and, if still present, from the naming parent's Dents
// (its forward child entry) — the two views a dropped dentry must leave
// in lockstep.
func (e *Engine) dropLink(f *scanfile.File, d scanfile.Dentry) {
	hash := key.NameHash(d.Entry.Name)
	f.RemoveLink(hash, d.Lnum, d.Offs)
	if parent, ok := e.Files[d.ParentInum]; ok {
		parent.RemoveDentry(hash, d.Lnum, d.Offs)
	}
}

// hostOf returns the inode number of f's xattr host, derived from the
// single incoming-link back-pointer an xattr file is expected to carry.
func hostOf(f *scanfile.File) uint32 {
	all := f.AllLinks()
	if len(all) == 0 {
		return 0
	}
	return all[0].ParentInum
}

// encryptXattrName is the reserved extended-attribute name marking a
// file as carrying an encryption context.
const encryptXattrName = "c"

func hasEncryptXattr(f *scanfile.File) bool {
	for _, x := range f.Xattrs {
		if x.Inode != nil {
			for _, d := range x.AllLinks() {
				if d.Entry.Name == encryptXattrName {
					return true
				}
			}
		}
	}
	return false
}
