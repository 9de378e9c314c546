// Package tnc implements the in-memory overlay of the on-flash B+-tree
// index (spec.md §4.3): the dictionary operations (lookup/add/replace/
// remove) the consistency engine and rebuilder both drive, plus the
// znode-level traversal (WalkIndex) used for LEB segregation checks,
// index-size accounting, and bottom-up rebuild.
//
// The leaf dictionary (this file) is the TNC's externally-observable
// state: every operation spec.md §4.3 names operates on it directly. The
// znode tree (znode.go, walk.go) is the on-flash B+-tree shape overlaying
// that same content, materialized either by loading real index nodes
// during normal bring-up or by folding fresh leaves bottom-up during
// rebuild (spec.md §4.6 stage 10) — this tool always has either the whole
// volume's index in hand (rebuild) or walks it once end to end (check),
// so on-demand per-branch flash faulting is not externally observable
// here and is omitted as a deliberate scope simplification (see
// DESIGN.md).
package tnc

import (
	"errors"
	"fmt"

	"github.com/ubifsck/ubifsck/internal/key"
	"github.com/ubifsck/ubifsck/internal/rbtree"
)

// ErrNotFound is returned by Lookup-family operations that find no
// matching leaf.
var ErrNotFound = errors.New("key not found in tnc")

// ErrDataCorrupted corresponds to spec.md's TncDataCorrupted: the target
// leaf no longer parses, but the rest of the tree is intact and the
// caller may drop just this leaf.
var ErrDataCorrupted = errors.New("tnc leaf data corrupted")

// ErrCorrupted corresponds to TncCorrupted: the hosting LEB itself is
// corrupt, failing the whole walk unless the mode permits rebuild.
var ErrCorrupted = errors.New("tnc leaf leb corrupted")

// Loc is the on-flash location of a leaf node, plus the content hash used
// by an authenticated volume to detect tampering independent of CRC.
type Loc struct {
	Lnum, Offs, Len int
	Hash            []byte
}

// entry is one leaf record: for a dent/xent key, Name disambiguates hash
// collisions (spec.md §3); for inode/data/trun keys Name is unused.
type entry struct {
	Loc
	Name  string
	Dirty bool
}

// Tnc is the leaf dictionary plus, optionally, the materialized znode
// tree overlaying it.
type Tnc struct {
	leaves *rbtree.Map[leafKey, entry]
	Root   *Znode
}

// leafKey extends key.Key with the entry name so that dent/xent hash
// collisions occupy distinct dictionary slots instead of clobbering one
// another.
type leafKey struct {
	key.Key
	Name string
}

func lessLeafKey(a, b leafKey) bool {
	if !key.Equal(a.Key, b.Key) {
		return key.Less(a.Key, b.Key)
	}
	return a.Name < b.Name
}

// New constructs an empty TNC.
func New() *Tnc {
	return &Tnc{leaves: rbtree.New[leafKey, entry](lessLeafKey)}
}

// Lookup finds the leaf for a non-named key (inode, data, trun).
func (t *Tnc) Lookup(k key.Key) (Loc, error) {
	return t.LookupNm(k, "")
}

// LookupNm finds the leaf for key k disambiguated by name (dent/xent), or
// by "" for keys that carry no name.
func (t *Tnc) LookupNm(k key.Key, name string) (Loc, error) {
	e, ok := t.leaves.Get(leafKey{k, name})
	if !ok {
		return Loc{}, fmt.Errorf("%w: %v/%q", ErrNotFound, k, name)
	}
	return e.Loc, nil
}

// Add inserts or overwrites the leaf for a non-named key.
func (t *Tnc) Add(k key.Key, loc Loc) {
	t.AddNm(k, "", loc)
}

// AddNm inserts or overwrites the leaf for (key, name).
func (t *Tnc) AddNm(k key.Key, name string, loc Loc) {
	t.leaves.Set(leafKey{k, name}, entry{Loc: loc, Name: name, Dirty: true})
}

// Replace atomically swaps a leaf's location, used after an in-place
// rewrite (e.g. FileIsInconsistent's inode fixup) to keep the TNC
// pointing at the corrected copy.
func (t *Tnc) Replace(k key.Key, name string, newLoc Loc) error {
	lk := leafKey{k, name}
	if _, ok := t.leaves.Get(lk); !ok {
		return fmt.Errorf("%w: %v/%q", ErrNotFound, k, name)
	}
	t.leaves.Set(lk, entry{Loc: newLoc, Name: name, Dirty: true})
	return nil
}

// Remove deletes the leaf for a non-named key.
func (t *Tnc) Remove(k key.Key) {
	t.RemoveNm(k, "")
}

// RemoveNm deletes the leaf for (key, name).
func (t *Tnc) RemoveNm(k key.Key, name string) {
	t.leaves.Delete(leafKey{k, name})
}

// RemoveNode surgically deletes one exact leaf instance by its on-flash
// location, used by the consistency engine when multiple stale copies of
// a key might otherwise collide (spec.md §4.3).
func (t *Tnc) RemoveNode(k key.Key, lnum, offs int) {
	for _, lk := range t.leaves.Keys() {
		if !key.Equal(lk.Key, k) {
			continue
		}
		e, ok := t.leaves.Get(lk)
		if ok && e.Lnum == lnum && e.Offs == offs {
			t.leaves.Delete(lk)
			return
		}
	}
}

// RemoveRange deletes every leaf with key in [from, to).
func (t *Tnc) RemoveRange(from, to key.Key) {
	var victims []leafKey
	t.leaves.Range(func(lk leafKey, _ entry) bool {
		if !key.Less(lk.Key, from) && key.Less(lk.Key, to) {
			victims = append(victims, lk)
		}
		return true
	})
	for _, lk := range victims {
		t.leaves.Delete(lk)
	}
}

// HasNode reports whether the TNC currently indexes a leaf at exactly
// (lnum, offs) for key k — the liveness test the space check (§4.5.5)
// drives to decide whether a node contributes to "used" space.
func (t *Tnc) HasNode(k key.Key, lnum, offs int) bool {
	found := false
	t.leaves.Range(func(lk leafKey, e entry) bool {
		if key.Equal(lk.Key, k) && e.Lnum == lnum && e.Offs == offs {
			found = true
			return false
		}
		return true
	})
	return found
}

// NextEnt returns the next dentry/xent key strictly after (k, name) with
// the same inode and type, for directory iteration (readdir). Because
// leafKey orders primarily by key.Key (inode, type, payload) and only
// then by name, every (inode, type) group is contiguous in the
// dictionary, so the immediate successor of (k, name) is the answer
// whenever it still belongs to that group.
func (t *Tnc) NextEnt(k key.Key, name string) (key.Key, string, Loc, error) {
	nextKey, _, ok := t.leaves.Next(leafKey{k, name})
	if !ok || nextKey.Inode != k.Inode || nextKey.Type != k.Type {
		return key.Key{}, "", Loc{}, ErrNotFound
	}
	e, _ := t.leaves.Get(nextKey)
	return nextKey.Key, nextKey.Name, e.Loc, nil
}

// Count returns the number of leaves currently indexed.
func (t *Tnc) Count() int { return t.leaves.Len() }

// AllLeaves returns every (key, name, loc) triple in key order, the
// traversal WalkIndex's leaf callback would see and what rebuild's
// bottom-up fold (BuildFromLeaves) consumes.
func (t *Tnc) AllLeaves() []struct {
	Key  key.Key
	Name string
	Loc  Loc
} {
	var out []struct {
		Key  key.Key
		Name string
		Loc  Loc
	}
	t.leaves.Range(func(lk leafKey, e entry) bool {
		out = append(out, struct {
			Key  key.Key
			Name string
			Loc  Loc
		}{Key: lk.Key, Name: lk.Name, Loc: e.Loc})
		return true
	})
	return out
}
