package tnc

import "github.com/ubifsck/ubifsck/internal/key"

// Branch is one child reference inside a Znode: either another internal
// Znode (Level > 0) or a leaf (Level == 0, Child is nil and the LeafName
// disambiguates dent/xent hash collisions).
type Branch struct {
	Key      key.Key
	LeafName string
	Lnum     int
	Offs     int
	Len      int
	Child    *Znode // nil for a leaf branch, or an internal branch not yet materialized
}

// Znode is the in-memory overlay of one on-flash index node (or, at
// Level 0 conceptually, the set of leaf branches hanging directly off its
// parent). Level mirrors the on-flash Idx node's level field: 0 is never
// itself materialized as a Znode (leaves live in the Tnc dictionary), so
// every Znode here has Level >= 1.
type Znode struct {
	Level    int
	Lnum     int // on-flash location once committed; 0 while dirty/new
	Offs     int
	Len      int
	Branches []Branch
	Dirty    bool
}

// IsIndexParent reports whether this znode's children are leaves (the
// lowest internal level, whose hosting LEB — once the branches are
// written out — must contain only leaf nodes' *index entries*, i.e. this
// znode itself is still an index node; leaves live in main-area LEBs of
// their own per spec.md §3 segregation invariant).
func (z *Znode) IsIndexParent() bool { return z.Level == 1 }
