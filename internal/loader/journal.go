package loader

import (
	"errors"

	"github.com/ubifsck/ubifsck/internal/device"
	"github.com/ubifsck/ubifsck/internal/key"
	"github.com/ubifsck/ubifsck/internal/node"
	"github.com/ubifsck/ubifsck/internal/scan"
	"github.com/ubifsck/ubifsck/internal/tnc"
)

// replayJournal implements spec.md §4.2 stage 6: follow the log region
// from master's recorded head, and for each reference node found, parse
// its bud LEB's live content and apply it to t. A commit-start node is
// just an anchor; it carries no content to apply.
func replayJournal(vol device.Volume, layout Layout, master *node.Master, t *tnc.Tnc) error {
	if layout.LogCount == 0 {
		return nil
	}
	start := int(master.LogLnum)
	for i := 0; i < layout.LogCount; i++ {
		lnum := layout.LogStart + (start-layout.LogStart+i)%layout.LogCount

		buf, err := vol.LebRead(lnum, 0, int(vol.LebSize()))
		if err != nil {
			return err
		}
		sl, err := scan.LEB(lnum, buf)
		if err != nil && !errors.Is(err, scan.ErrGarbage) {
			return err
		}

		for _, nr := range sl.Nodes {
			ref, ok := nr.Node.(*node.Reference)
			if !ok {
				continue
			}
			if err := replayBud(vol, t, ref); err != nil {
				return err
			}
		}
		if sl.Garbage {
			// The log stops being trustworthy past an unrecognizable
			// region; nothing after it can be a reference this commit
			// actually wrote.
			break
		}
	}
	return nil
}

// replayBud scans one bud LEB and folds its live nodes into t, honoring
// cross-LEB atomic commit groups: a run of GroupInGroup nodes followed by
// a GroupLastOfGroup member commits together, and a trailing run that
// never reaches its GroupLastOfGroup member is discarded entirely (the
// crash landed mid-group).
func replayBud(vol device.Volume, t *tnc.Tnc, ref *node.Reference) error {
	buf, err := vol.LebRead(int(ref.BudLnum), 0, int(vol.LebSize()))
	if err != nil {
		return err
	}
	sl, err := scan.LEB(int(ref.BudLnum), buf)
	if err != nil && !errors.Is(err, scan.ErrGarbage) {
		return err
	}

	var pending []scan.NodeRef
	for _, nr := range sl.Nodes {
		if nr.Offs < int(ref.BudOffs) {
			// Content before the bud's recorded start belongs to an
			// earlier, already-committed use of this LEB.
			continue
		}
		switch nr.Node.Head().GroupType {
		case node.GroupNone:
			applyBudNode(t, int(ref.BudLnum), nr)
		case node.GroupInGroup:
			pending = append(pending, nr)
		case node.GroupLastOfGroup:
			pending = append(pending, nr)
			for _, g := range pending {
				applyBudNode(t, int(ref.BudLnum), g)
			}
			pending = nil
		}
	}
	return nil
}

// applyBudNode folds one bud-LEB node into t. Every leaf node type
// stores its own key material in its body — inode number for inode and
// truncation nodes, inode plus block index for data, and owning-inum
// plus name for dent/xent — so a bud LEB's writes can always be re-keyed
// from raw content alone, without waiting for the next full commit.
func applyBudNode(t *tnc.Tnc, lnum int, nr scan.NodeRef) {
	loc := tnc.Loc{Lnum: lnum, Offs: nr.Offs, Len: nr.Len}
	switch v := nr.Node.(type) {
	case *node.Inode:
		t.Add(key.Inode(v.Inum), loc)
	case *node.Data:
		t.Add(key.DataBlock(v.Inum, v.Block), loc)
	case *node.Trun:
		t.Add(key.Trun(v.Inum), loc)
	case *node.DirEntry:
		k := key.Dent(v.ParentInum, v.Name)
		if v.Xattr {
			k = key.Xent(v.ParentInum, v.Name)
		}
		if v.IsDeletion() {
			// A tombstone in the journal means exactly one thing: drop
			// the name, don't index a deleted entry.
			t.RemoveNm(k, v.Name)
		} else {
			t.AddNm(k, v.Name, loc)
		}
	}
}
