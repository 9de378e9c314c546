package tnc

import "github.com/ubifsck/ubifsck/internal/key"

// BuildFromLeaves folds the TNC's current leaf set into a fresh znode
// tree, fanout-at-a-time bottom-up, implementing spec.md §4.6 stage 10:
// "sort all surviving leaves by key+name, then fold FANOUT-at-a-time into
// parent index nodes until one root remains." The leaves themselves are
// already kept in key order by the dictionary (AllLeaves), so only the
// folding is needed here. The returned tree is entirely dirty (Lnum==0
// everywhere): callers write it out bottom-up and fix up Lnum/Offs/Len as
// each level is flushed.
func (t *Tnc) BuildFromLeaves(fanout int) *Znode {
	if fanout < 2 {
		fanout = 2
	}
	leaves := t.AllLeaves()
	if len(leaves) == 0 {
		return nil
	}

	level1 := make([]*Znode, 0, (len(leaves)+fanout-1)/fanout)
	for i := 0; i < len(leaves); i += fanout {
		end := i + fanout
		if end > len(leaves) {
			end = len(leaves)
		}
		z := &Znode{Level: 1, Dirty: true}
		for _, l := range leaves[i:end] {
			z.Branches = append(z.Branches, Branch{
				Key:      l.Key,
				LeafName: l.Name,
				Lnum:     l.Loc.Lnum,
				Offs:     l.Loc.Offs,
				Len:      l.Loc.Len,
			})
		}
		level1 = append(level1, z)
	}

	return foldLevel(level1, fanout)
}

// foldLevel repeatedly groups fanout children under new parent znodes
// until exactly one root remains.
func foldLevel(level []*Znode, fanout int) *Znode {
	for len(level) > 1 {
		next := make([]*Znode, 0, (len(level)+fanout-1)/fanout)
		for i := 0; i < len(level); i += fanout {
			end := i + fanout
			if end > len(level) {
				end = len(level)
			}
			group := level[i:end]
			parent := &Znode{Level: group[0].Level + 1, Dirty: true}
			for _, child := range group {
				parent.Branches = append(parent.Branches, Branch{
					Key:   firstKey(child),
					Child: child,
				})
			}
			next = append(next, parent)
		}
		level = next
	}
	return level[0]
}

func firstKey(z *Znode) key.Key {
	if len(z.Branches) == 0 {
		return key.Key{}
	}
	return z.Branches[0].Key
}

// SetRoot attaches a materialized znode tree (loaded from flash, or built
// by BuildFromLeaves) as the overlay used by WalkIndex.
func (t *Tnc) SetRoot(root *Znode) { t.Root = root }
