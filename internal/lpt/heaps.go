package lpt

import "sort"

// maxHeapSize bounds each per-category heap (spec.md §4.4: "kept in
// per-category heaps of bounded size... LEBs evicted from heaps end up on
// the uncategorized list").
const maxHeapSize = 256

// heaps tracks, for each dirtiness-relevant category, the LEBs most
// attractive for GC/allocation, bounded to maxHeapSize entries; anything
// evicted falls onto Uncategorized for a future full rescan to
// rediscover.
type heaps struct {
	free         []int
	dirty        []int
	dirtyIndex   []int
	freeable     []int
	Uncategorized []int
	byLnum       map[int]Category
}

func newHeaps() *heaps {
	return &heaps{byLnum: make(map[int]Category)}
}

func (h *heaps) bucket(c Category) *[]int {
	switch c {
	case CategoryFree:
		return &h.free
	case CategoryDirty:
		return &h.dirty
	case CategoryDirtyIndex:
		return &h.dirtyIndex
	case CategoryFreeable, CategoryFreeableIndex:
		return &h.freeable
	default:
		return nil
	}
}

func removeFrom(s []int, lnum int) []int {
	for i, v := range s {
		if v == lnum {
			return append(s[:i], s[i+1:]...)
		}
	}
	return s
}

// update moves lnum to the heap matching its new properties, evicting its
// earliest-inserted member if the target heap is full.
func (h *heaps) update(lnum int, p Prop) {
	if old, ok := h.byLnum[lnum]; ok {
		if b := h.bucket(old); b != nil {
			*b = removeFrom(*b, lnum)
		} else {
			h.Uncategorized = removeFrom(h.Uncategorized, lnum)
		}
	}
	h.byLnum[lnum] = p.Flags

	b := h.bucket(p.Flags)
	if b == nil {
		h.Uncategorized = append(h.Uncategorized, lnum)
		return
	}
	*b = append(*b, lnum)
	if len(*b) > maxHeapSize {
		// Evict the earliest-inserted member (dirty space is not
		// compared); it moves to Uncategorized for a future rescan rather
		// than being forgotten.
		evicted := (*b)[0]
		*b = (*b)[1:]
		h.Uncategorized = append(h.Uncategorized, evicted)
		delete(h.byLnum, evicted)
	}
}

// TopDirty returns up to n LEB numbers from the dirty heap, most-dirty
// first, the allocator's primary GC candidate source.
func (h *heaps) TopDirty(props []Prop, n int) []int {
	sorted := append([]int(nil), h.dirty...)
	sort.Slice(sorted, func(i, j int) bool {
		return props[sorted[i]].Dirty > props[sorted[j]].Dirty
	})
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}
