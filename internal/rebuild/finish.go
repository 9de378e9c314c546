package rebuild

import (
	"encoding/binary"
	"fmt"

	"github.com/ubifsck/ubifsck/internal/device"
	"github.com/ubifsck/ubifsck/internal/loader"
	"github.com/ubifsck/ubifsck/internal/lpt"
	"github.com/ubifsck/ubifsck/internal/node"
)

// packAndWriteLpt implements spec.md §4.6 stage 11: pack the freshly
// built LPT into pnodes and lay them end to end across the LPT region,
// length-prefixed so the boundaries survive concatenation across LEBs.
// Nothing in this tool ever reads the LPT back off flash at bring-up
// (internal/loader always starts it fresh from lpt.New), so
// this packing only needs to be internally self-consistent, not
// byte-compatible with any other reader — a deliberate simplification
// recorded in DESIGN.md.
func packAndWriteLpt(vol device.Volume, lp *lpt.Lpt, sb *node.Superblock, layout loader.Layout) error {
	_, pnodes, err := lpt.CreateLpt(lp, int(sb.Fanout))
	if err != nil {
		return err
	}

	var stream []byte
	for _, pn := range pnodes {
		var lenBuf [4]byte
		binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(pn)))
		stream = append(stream, lenBuf[:]...)
		stream = append(stream, pn...)
	}

	lebSize := int(vol.LebSize())
	need := (len(stream) + lebSize - 1) / lebSize
	if need > layout.LptCount {
		return fmt.Errorf("rebuild: packed lpt needs %d lebs but only %d are reserved", need, layout.LptCount)
	}

	for i := 0; i < layout.LptCount; i++ {
		lnum := layout.LptStart + i
		start := i * lebSize
		if start >= len(stream) {
			if err := vol.LebUnmap(lnum); err != nil {
				return fmt.Errorf("rebuild: unmap lpt leb %d: %w", lnum, err)
			}
			continue
		}
		end := start + lebSize
		if end > len(stream) {
			end = len(stream)
		}
		if err := vol.LebChange(lnum, stream[start:end]); err != nil {
			return fmt.Errorf("rebuild: write lpt leb %d: %w", lnum, err)
		}
	}
	return nil
}

// cleanLog implements spec.md §4.6 stage 12: every log LEB is unmapped
// (nothing the fresh index built from a raw scan needs replayed) and a
// single fresh commit-start anchors the now-empty log at commit 0.
func cleanLog(vol device.Volume, layout loader.Layout) error {
	for lnum := layout.LogStart; lnum < layout.LogStart+layout.LogCount; lnum++ {
		if err := vol.LebUnmap(lnum); err != nil {
			return fmt.Errorf("rebuild: unmap log leb %d: %w", lnum, err)
		}
	}
	if layout.LogCount == 0 {
		return nil
	}
	buf := node.EncodeCommitStart(0)
	if err := vol.LebChange(layout.LogStart, buf); err != nil {
		return fmt.Errorf("rebuild: write commit-start anchor: %w", err)
	}
	return nil
}

// clearOrphans implements spec.md §4.6 stage 13: the orphan list only
// ever tracked inodes whose last link vanished before their own deletion
// committed, which the scavenge's own reachability pass has already
// folded in by simply dropping anything no longer reachable — so the
// orphan region starts over empty rather than replaying stale entries.
func clearOrphans(vol device.Volume, layout loader.Layout) error {
	for lnum := layout.OrphanStart; lnum < layout.OrphanStart+layout.OrphanCount; lnum++ {
		if err := vol.LebUnmap(lnum); err != nil {
			return fmt.Errorf("rebuild: unmap orphan leb %d: %w", lnum, err)
		}
	}
	return nil
}

// writeMaster implements spec.md §4.6 stage 14: commit a fresh master
// node, identical in both copies, pointing at the newly written index
// root, LPT region, and cleaned log head, carrying the inode watermark.
// The recomputed space totals are set on the Master value, but
// EncodeMaster does not write them.
func writeMaster(vol device.Volume, layout loader.Layout, sc *scavenge, lp *lpt.Lpt, root indexLoc) error {
	stat := lp.Stat()
	m := &node.Master{
		HighestInum: sc.highestInum,
		RootLnum:    uint32(root.Lnum),
		RootOffs:    uint32(root.Offs),
		RootLen:     uint32(root.Len),
		IdxSize:     root.TotalSize,
		LPTLnum:     uint32(layout.LptStart),
		LPTOffs:     0,
		LogLnum:     uint32(layout.LogStart),
		TotalFree:   stat.TotalFree,
		TotalDirty:  stat.TotalDirty,
		TotalUsed:   stat.TotalUsed,
	}
	buf := node.EncodeMaster(m)

	if err := vol.LebChange(layout.MasterLnum0, buf); err != nil {
		return fmt.Errorf("rebuild: write master copy 0: %w", err)
	}
	if err := vol.LebChange(layout.MasterLnum1, buf); err != nil {
		return fmt.Errorf("rebuild: write master copy 1: %w", err)
	}
	return nil
}
