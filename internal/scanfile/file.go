// Package scanfile implements the scanned-file model of spec.md §3: an
// in-memory reconstruction of one inode's worth of on-flash nodes, plus the
// calc_* recomputation rules of spec.md §4.5.4 shared verbatim by the
// consistency engine and the scavenging rebuilder.
package scanfile

import (
	"github.com/ubifsck/ubifsck/internal/node"
	"github.com/ubifsck/ubifsck/internal/rbtree"
)

// Dentry pairs a decoded directory/xattr entry with the location it was
// read from, and a non-owning back-pointer to the parent file used only
// during reachability and reporting (spec.md §9: back-pointers are arena
// indices, not pointer cycles).
type Dentry struct {
	Entry      *node.DirEntry
	Lnum, Offs int
	ParentInum uint32 // the file that owns this dentry record
}

// DataBlock pairs a decoded data node with its on-flash location.
type DataBlock struct {
	Node       *node.Data
	Lnum, Offs int
}

// File is one scanned file: the chosen inode-node, its dentry and data
// maps, optional truncation record, and its xattr-file subtree.
type File struct {
	Inum  uint32
	Inode *node.Inode

	// InodeLnum/InodeOffs locate the chosen inode node on flash, needed
	// by the consistency engine's in-place inode rewrite (spec.md
	// §4.5.4).
	InodeLnum, InodeOffs int

	// Dents maps name-hash payload to the list of candidate dentries this
	// file contains as a directory's children (collisions resolved by
	// full-name compare at use sites). Only ever populated when f is
	// itself a directory; empty for every other file.
	Dents *rbtree.Map[uint32, []Dentry]

	// Links holds the incoming dentry records that name f as their
	// target — the parent-directory entries pointing at f, keyed the
	// same way as Dents. Distinct from Dents: a directory's Dents are
	// the entries it contains, its Links is the (normally singular)
	// entry some other directory uses to name it. A regular file's
	// Links is every hard-link dentry pointing at it, possibly spread
	// across several different parent directories.
	Links *rbtree.Map[uint32, []Dentry]

	Data *rbtree.Map[uint32, DataBlock]

	Trun *node.Trun

	// Xattrs holds this file's extended-attribute files, keyed by their
	// own inode number.
	Xattrs map[uint32]*File

	// Computed by Recompute; compared against Inode's stored fields by
	// the consistency engine (FileIsInconsistent) and written back
	// verbatim by the rebuilder.
	CalcNlink uint32
	CalcSize  uint64
	CalcXcnt  uint32
	CalcXsz   uint32
	CalcXnms  uint32
}

func lessU32(a, b uint32) bool { return a < b }

// New creates an empty scanned file for inum.
func New(inum uint32) *File {
	return &File{
		Inum:   inum,
		Dents:  rbtree.New[uint32, []Dentry](lessU32),
		Links:  rbtree.New[uint32, []Dentry](lessU32),
		Data:   rbtree.New[uint32, DataBlock](lessU32),
		Xattrs: make(map[uint32]*File),
	}
}

// AddDentryAt records a dentry candidate under its name-hash bucket,
// preserving all hash collisions for later full-name resolution. hash is
// the dentry key's name-hash payload, computed by the caller (who owns
// the TNC key).
func (f *File) AddDentryAt(hash uint32, d Dentry) {
	existing, _ := f.Dents.Get(hash)
	f.Dents.Set(hash, append(existing, d))
}

// DentryCount returns the total number of dentry records across all
// hash buckets (spec.md §4.5.2 "more than one dentry").
func (f *File) DentryCount() int {
	n := 0
	f.Dents.Range(func(_ uint32, ds []Dentry) bool {
		n += len(ds)
		return true
	})
	return n
}

// AllDentries returns every dentry record in hash order, for deterministic
// iteration by the consistency engine.
func (f *File) AllDentries() []Dentry {
	var out []Dentry
	f.Dents.Range(func(_ uint32, ds []Dentry) bool {
		out = append(out, ds...)
		return true
	})
	return out
}

// RemoveDentry deletes one specific child-dentry record (by exact
// lnum/offs), keeping a directory's Dents in step when a dropped Link
// names one of its children.
func (f *File) RemoveDentry(hash uint32, lnum, offs int) {
	existing, ok := f.Dents.Get(hash)
	if !ok {
		return
	}
	kept := existing[:0]
	for _, d := range existing {
		if d.Lnum == lnum && d.Offs == offs {
			continue
		}
		kept = append(kept, d)
	}
	if len(kept) == 0 {
		f.Dents.Delete(hash)
		return
	}
	f.Dents.Set(hash, kept)
}

// AddLinkAt records an incoming dentry that names f as its target, under
// its name-hash bucket.
func (f *File) AddLinkAt(hash uint32, d Dentry) {
	existing, _ := f.Links.Get(hash)
	f.Links.Set(hash, append(existing, d))
}

// LinkCount returns the number of incoming dentries pointing at f —
// spec.md §4.5.2's "more than one dentry" and "no dentry" both count
// this, not f.Dents.
func (f *File) LinkCount() int {
	n := 0
	f.Links.Range(func(_ uint32, ds []Dentry) bool {
		n += len(ds)
		return true
	})
	return n
}

// AllLinks returns every incoming dentry in hash order.
func (f *File) AllLinks() []Dentry {
	var out []Dentry
	f.Links.Range(func(_ uint32, ds []Dentry) bool {
		out = append(out, ds...)
		return true
	})
	return out
}

// RemoveLink deletes one specific incoming-dentry record by exact
// lnum/offs.
func (f *File) RemoveLink(hash uint32, lnum, offs int) {
	existing, ok := f.Links.Get(hash)
	if !ok {
		return
	}
	kept := existing[:0]
	for _, d := range existing {
		if d.Lnum == lnum && d.Offs == offs {
			continue
		}
		kept = append(kept, d)
	}
	if len(kept) == 0 {
		f.Links.Delete(hash)
		return
	}
	f.Links.Set(hash, kept)
}
