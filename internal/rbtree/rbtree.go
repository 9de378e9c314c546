// Package rbtree provides the small ordered map used for a scanned file's
// directory-entry and data-block maps (spec.md §3's "red-black map").
// The pack carries no general-purpose ordered-map library (see DESIGN.md),
// and at the scale of one file's worth of entries a sorted slice with
// binary search gives the same asymptotic behavior with far less code
// than a self-balancing tree, while still supporting the one operation
// that actually needs ordering: in-key-order iteration for next_ent.
package rbtree

import "sort"

// Map is an ordered map keyed by K, compared with less. It is not
// safe for concurrent use; callers own a Map the way a scanned file
// owns its dent/data maps exclusively (spec.md §3 ownership rules).
type Map[K any, V any] struct {
	less    func(a, b K) bool
	entries []entry[K, V]
}

type entry[K any, V any] struct {
	key K
	val V
}

// New constructs an empty Map ordered by less.
func New[K any, V any](less func(a, b K) bool) *Map[K, V] {
	return &Map[K, V]{less: less}
}

func (m *Map[K, V]) search(k K) (int, bool) {
	i := sort.Search(len(m.entries), func(i int) bool {
		return !m.less(m.entries[i].key, k)
	})
	if i < len(m.entries) && !m.less(k, m.entries[i].key) && !m.less(m.entries[i].key, k) {
		return i, true
	}
	return i, false
}

// Get returns the value stored at k, if any.
func (m *Map[K, V]) Get(k K) (V, bool) {
	i, ok := m.search(k)
	if !ok {
		var zero V
		return zero, false
	}
	return m.entries[i].val, true
}

// Set inserts or overwrites the value stored at k.
func (m *Map[K, V]) Set(k K, v V) {
	i, ok := m.search(k)
	if ok {
		m.entries[i].val = v
		return
	}
	m.entries = append(m.entries, entry[K, V]{})
	copy(m.entries[i+1:], m.entries[i:])
	m.entries[i] = entry[K, V]{key: k, val: v}
}

// Delete removes the entry at k, if present.
func (m *Map[K, V]) Delete(k K) {
	i, ok := m.search(k)
	if !ok {
		return
	}
	m.entries = append(m.entries[:i], m.entries[i+1:]...)
}

// Len returns the number of entries.
func (m *Map[K, V]) Len() int { return len(m.entries) }

// Keys returns the keys in ascending order.
func (m *Map[K, V]) Keys() []K {
	keys := make([]K, len(m.entries))
	for i, e := range m.entries {
		keys[i] = e.key
	}
	return keys
}

// Range calls fn for every entry in ascending key order, stopping early if
// fn returns false.
func (m *Map[K, V]) Range(fn func(k K, v V) bool) {
	for _, e := range m.entries {
		if !fn(e.key, e.val) {
			return
		}
	}
}

// Next returns the first entry strictly greater than k, used by TNC/
// scanned-file directory iteration (next_ent).
func (m *Map[K, V]) Next(k K) (K, V, bool) {
	i, ok := m.search(k)
	if ok {
		i++
	}
	if i >= len(m.entries) {
		var zeroK K
		var zeroV V
		return zeroK, zeroV, false
	}
	return m.entries[i].key, m.entries[i].val, true
}
