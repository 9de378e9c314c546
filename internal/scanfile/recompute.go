package scanfile

import "github.com/ubifsck/ubifsck/internal/node"

// Recompute fills CalcNlink, CalcSize, CalcXcnt, CalcXsz, CalcXnms from
// f's structure, implementing spec.md §4.5.4 exactly. childSubdirs is the
// number of direct child directory entries pointing at a directory inode
// (needed only when f.Inode.IsDir()); it is supplied by the caller because
// computing it requires looking up each child's inode, which crosses file
// boundaries this package does not itself track.
func (f *File) Recompute(childSubdirs uint32) {
	switch {
	case f.Inode == nil:
		return
	case f.Inode.IsXattr():
		f.CalcNlink = 1
		f.CalcSize = f.Inode.Size
	case f.Inode.IsDir():
		f.CalcNlink = 2 + childSubdirs
		f.CalcSize = uint64(node.HeaderLen) + f.dentryBytes()
	default:
		f.CalcNlink = f.countDentries()
		f.CalcSize = f.recomputeRegularSize()
	}

	f.CalcXcnt = uint32(len(f.Xattrs))
	var xsz, xnms uint32
	for _, x := range f.Xattrs {
		if x.Inode == nil {
			continue
		}
		xsz += uint32(x.Inode.Size)
		for _, link := range x.AllLinks() {
			xnms += uint32(len(link.Entry.Name)) + 1
		}
	}
	f.CalcXsz = xsz
	f.CalcXnms = xnms
}

// countDentries sums incoming dentry records, the nlink of a
// non-directory file with hard links (ubifs directories cannot be
// hard-linked, so this path only matters for regular files, symlinks,
// and other non-dir types).
func (f *File) countDentries() uint32 {
	return uint32(f.LinkCount())
}

// dentryBytes sums the on-flash size contribution of every dentry this
// directory contains as a child, the second term of a directory's
// calc_size.
func (f *File) dentryBytes() uint64 {
	var total uint64
	for _, d := range f.AllDentries() {
		total += uint64(node.HeaderLen) + 20 + uint64(len(d.Entry.Name)) + 1
	}
	return total
}

// recomputeRegularSize implements the reconciliation rule for a regular
// file's size: the maximum block_no*BlockSize+data_size across data nodes
// not obsoleted by a newer truncation, with the stored inode size
// preserved only when it exceeds that maximum and no truncation
// overrides it.
//
// This is the one area spec.md §9 itself flags as needing verification
// against kernel journal semantics before being trusted in production;
// implemented here exactly as specified.
func (f *File) recomputeRegularSize() uint64 {
	var maxExtent uint64
	f.Data.Range(func(blk uint32, d DataBlock) bool {
		extent := uint64(blk)*node.BlockSize + uint64(d.Node.Size)
		if f.Trun != nil && f.Trun.Header.Sqnum > d.Node.Sqnum && extent > f.Trun.NewSize {
			// A truncation newer than this data node cuts it off when
			// the node reaches past the truncated size; the data node is
			// logically dropped from the size computation (and, during
			// repair, from the TNC/rebuild image too).
			return true
		}
		if extent > maxExtent {
			maxExtent = extent
		}
		return true
	})

	if f.Trun != nil && f.Trun.Header.Sqnum > f.inodeSqnum() && f.Trun.NewSize < maxExtent {
		maxExtent = f.Trun.NewSize
	}

	if f.Inode != nil && f.Inode.Size > maxExtent {
		// No truncation overrides a larger stored size: size extension
		// via stat (e.g. an ftruncate growing the file with a hole) is
		// preserved rather than clamped to the data actually written.
		overridden := f.Trun != nil && f.Trun.Header.Sqnum > f.inodeSqnum() && f.Trun.NewSize < f.Inode.Size
		if !overridden {
			return f.Inode.Size
		}
	}
	return maxExtent
}

func (f *File) inodeSqnum() uint64 {
	if f.Inode == nil {
		return 0
	}
	return f.Inode.Header.Sqnum
}

// DataAbove drops every data block whose extent ends beyond cutoff,
// used when a truncation obsoletes data nodes (spec.md §4.5.4).
func (f *File) DataAbove(cutoff uint64) (dropped []DataBlock) {
	for _, blk := range f.Data.Keys() {
		d, ok := f.Data.Get(blk)
		if !ok {
			continue
		}
		if uint64(blk)*node.BlockSize+uint64(d.Node.Size) > cutoff {
			dropped = append(dropped, d)
			f.Data.Delete(blk)
		}
	}
	return dropped
}
