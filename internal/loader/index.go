package loader

import (
	"fmt"

	"github.com/ubifsck/ubifsck/internal/device"
	"github.com/ubifsck/ubifsck/internal/key"
	"github.com/ubifsck/ubifsck/internal/node"
	"github.com/ubifsck/ubifsck/internal/tnc"
)

// loadIndexNode recursively loads the on-flash B+-tree rooted at
// (lnum, offs, length) into t's leaf dictionary, returning the
// materialized Znode overlay WalkIndex traverses (spec.md §4.3). A
// level-1 index node's branches point directly at leaf nodes (inode,
// dent, xent, data, trun) rather than at a further level-0 index node —
// this codec never writes a redundant level-0 index layer, so the
// recursion bottoms out one level higher than the on-flash level number
// alone would suggest (see internal/tnc's Znode doc comment).
func loadIndexNode(vol device.Volume, t *tnc.Tnc, lnum, offs, length int) (*tnc.Znode, error) {
	buf, err := vol.LebRead(lnum, offs, length)
	if err != nil {
		return nil, fmt.Errorf("read index node at leb %d offset %d: %w", lnum, offs, err)
	}
	n, err := node.ParseAndValidate(buf, lnum, offs)
	if err != nil {
		return nil, err
	}
	idx, ok := n.(*node.Idx)
	if !ok {
		return nil, fmt.Errorf("leb %d offset %d: expected index node, got %v", lnum, offs, n.Head().NodeType)
	}

	z := &tnc.Znode{Level: int(idx.Level), Lnum: lnum, Offs: offs, Len: length}
	for _, b := range idx.Branches {
		if idx.Level > 1 {
			child, err := loadIndexNode(vol, t, int(b.Lnum), int(b.Offs), int(b.Len))
			if err != nil {
				return nil, err
			}
			z.Branches = append(z.Branches, tnc.Branch{
				Key: b.Key, Lnum: int(b.Lnum), Offs: int(b.Offs), Len: int(b.Len), Child: child,
			})
			continue
		}

		name, err := leafName(vol, b.Key, int(b.Lnum), int(b.Offs), int(b.Len))
		if err != nil {
			return nil, err
		}
		t.AddNm(b.Key, name, tnc.Loc{Lnum: int(b.Lnum), Offs: int(b.Offs), Len: int(b.Len)})
		z.Branches = append(z.Branches, tnc.Branch{
			Key: b.Key, LeafName: name, Lnum: int(b.Lnum), Offs: int(b.Offs), Len: int(b.Len),
		})
	}
	return z, nil
}

// leafName reads a dent/xent leaf's own node to recover the name that
// disambiguates hash collisions — an index branch's key alone carries
// only the name's hash, not the name itself (spec.md §3).
func leafName(vol device.Volume, k key.Key, lnum, offs, length int) (string, error) {
	if k.Type != key.TypeDent && k.Type != key.TypeXent {
		return "", nil
	}
	buf, err := vol.LebRead(lnum, offs, length)
	if err != nil {
		return "", fmt.Errorf("read leaf at leb %d offset %d: %w", lnum, offs, err)
	}
	n, err := node.Parse(buf, lnum, offs)
	if err != nil {
		return "", err
	}
	d, ok := n.(*node.DirEntry)
	if !ok {
		return "", fmt.Errorf("leb %d offset %d: expected dent/xent, got %v", lnum, offs, n.Head().NodeType)
	}
	return d.Name, nil
}
