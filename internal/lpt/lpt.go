// Package lpt implements the LEB Properties Tree: a wide (FANOUT-ary) tree
// tracking per-LEB free/dirty space and category flags (spec.md §4.4).
//
// The tree shape itself (pnode leaves of FANOUT entries under nnode
// internal nodes) is realized as the on-flash packing format (pack.go);
// in memory, ubifsck keeps the authoritative per-LEB properties in a flat
// array indexed by LEB number; that gives the same O(1) LookupInfo the
// tree provides, at far less code than re-deriving a fixed-arity
// in-memory tree that is rebuilt from scratch on every repair run anyway.
package lpt

import (
	"errors"
	"fmt"
)

// Category is the LEB category flag; spec.md requires exactly one set
// per LEB.
type Category uint8

const (
	CategoryUncategorized Category = iota
	CategoryDirty
	CategoryDirtyIndex
	CategoryFree
	CategoryEmpty
	CategoryFreeable
	CategoryFreeableIndex
	CategoryTaken
	CategoryIndex
)

func (c Category) String() string {
	names := [...]string{
		"uncategorized", "dirty", "dirty-index", "free", "empty",
		"freeable", "freeable-index", "taken", "index",
	}
	if int(c) < len(names) {
		return names[c]
	}
	return "unknown"
}

// Prop is one LEB's properties entry.
type Prop struct {
	Free, Dirty uint32
	Flags       Category
}

// ErrInvariant marks a violation of the LPT arithmetic invariant
// (free + dirty + used == leb_size, no field negative — automatic here
// since fields are unsigned, so the only failure mode is the sum).
var ErrInvariant = errors.New("lpt arithmetic invariant violated")

// Lpt is the in-memory LEB properties table for one volume.
type Lpt struct {
	LebSize uint32
	props   []Prop

	// DeadWatermark is the dirty-space threshold below which a non-empty
	// LEB is categorized "free" rather than "dirty" (spec.md §4.4).
	DeadWatermark uint32
	// DarkWatermark — an index LEB with at least this much dirty space is
	// categorized "dirty-index".
	DarkWatermark uint32

	heaps *heaps
}

// New constructs an Lpt for lebCount LEBs of lebSize bytes each, all
// initially empty (free == lebSize).
func New(lebCount int, lebSize, deadWatermark, darkWatermark uint32) *Lpt {
	props := make([]Prop, lebCount)
	for i := range props {
		props[i] = Prop{Free: lebSize, Flags: CategoryEmpty}
	}
	l := &Lpt{
		LebSize:       lebSize,
		props:         props,
		DeadWatermark: deadWatermark,
		DarkWatermark: darkWatermark,
	}
	l.heaps = newHeaps()
	return l
}

// Lookup returns lnum's properties.
func (l *Lpt) Lookup(lnum int) (Prop, error) {
	if lnum < 0 || lnum >= len(l.props) {
		return Prop{}, fmt.Errorf("leb %d out of range [0,%d)", lnum, len(l.props))
	}
	return l.props[lnum], nil
}

// LookupDirty is Lookup restricted to LEBs the in-memory overlay has not
// yet flushed; ubifsck always keeps the whole table resident, so it is
// equivalent to Lookup here (see the package doc comment on scope).
func (l *Lpt) LookupDirty(lnum int) (Prop, error) { return l.Lookup(lnum) }

// Change overwrites lnum's free/dirty/flags, recomputing its derived
// category from (free, dirty) unless flags explicitly forces one (e.g.
// CategoryTaken, which is never derived from arithmetic alone). It
// enforces the LPT arithmetic invariant against usedHint, the caller's
// independently-known "used" byte count for this LEB (the space check in
// internal/check is the caller that actually has this number; Lpt itself
// has no notion of "used" beyond free+dirty).
func (l *Lpt) Change(lnum int, free, dirty uint32, isIndex bool, taken bool, usedHint uint32) error {
	if lnum < 0 || lnum >= len(l.props) {
		return fmt.Errorf("leb %d out of range [0,%d)", lnum, len(l.props))
	}
	if uint64(free)+uint64(dirty)+uint64(usedHint) != uint64(l.LebSize) {
		return fmt.Errorf("%w: leb %d free=%d dirty=%d used=%d leb_size=%d", ErrInvariant, lnum, free, dirty, usedHint, l.LebSize)
	}
	flags := CategoryUncategorized
	switch {
	case taken:
		flags = CategoryTaken
	case isIndex:
		flags = categorizeIndex(free, dirty, l.LebSize, l.DarkWatermark)
	default:
		flags = categorizeMain(free, dirty, l.LebSize, l.DeadWatermark)
	}
	l.props[lnum] = Prop{Free: free, Dirty: dirty, Flags: flags}
	l.heaps.update(lnum, l.props[lnum])
	return nil
}

// ChangeOne is Change without requiring the caller to pre-classify
// is-index/taken — used when only free/dirty move and the category
// should be re-derived from the LEB's previous classification.
func (l *Lpt) ChangeOne(lnum int, free, dirty uint32, usedHint uint32) error {
	prev, err := l.Lookup(lnum)
	if err != nil {
		return err
	}
	wasIndex := prev.Flags == CategoryIndex || prev.Flags == CategoryDirtyIndex || prev.Flags == CategoryFreeableIndex
	wasTaken := prev.Flags == CategoryTaken
	return l.Change(lnum, free, dirty, wasIndex, wasTaken, usedHint)
}

// UpdateOne sets a LEB's category flag directly, bypassing derivation —
// used when the loader or rebuilder already knows a LEB's role (e.g.
// marking a freshly-written index LEB CategoryIndex) rather than having
// it re-derived from free/dirty alone.
func (l *Lpt) UpdateOne(lnum int, flags Category) error {
	if lnum < 0 || lnum >= len(l.props) {
		return fmt.Errorf("leb %d out of range [0,%d)", lnum, len(l.props))
	}
	l.props[lnum].Flags = flags
	l.heaps.update(lnum, l.props[lnum])
	return nil
}

func categorizeMain(free, dirty, lebSize, deadWatermark uint32) Category {
	switch {
	case free == lebSize:
		return CategoryEmpty
	case free+dirty == lebSize:
		return CategoryFreeable
	case free > 0 && dirty < deadWatermark:
		return CategoryFree
	default:
		return CategoryDirty
	}
}

func categorizeIndex(free, dirty, lebSize, darkWatermark uint32) Category {
	switch {
	case free+dirty == lebSize:
		return CategoryFreeableIndex
	case dirty >= darkWatermark:
		return CategoryDirtyIndex
	default:
		return CategoryIndex
	}
}

// NumLebs returns the number of LEBs this table tracks.
func (l *Lpt) NumLebs() int { return len(l.props) }

// SpaceStat sums free/dirty/used across every LEB, the global
// total_free/total_dirty/total_used the space-summation invariant checks
// against (spec.md §8).
type SpaceStat struct {
	TotalFree, TotalDirty, TotalUsed uint64
}

// Stat computes the current SpaceStat.
func (l *Lpt) Stat() SpaceStat {
	var s SpaceStat
	for _, p := range l.props {
		used := uint64(l.LebSize) - uint64(p.Free) - uint64(p.Dirty)
		s.TotalFree += uint64(p.Free)
		s.TotalDirty += uint64(p.Dirty)
		s.TotalUsed += used
	}
	return s
}
