// Package rebuild implements the scavenging rebuilder (spec.md §4.6): the
// last-resort repair path the top-level driver escalates to when bring-up
// itself fails or the consistency engine's mode gate decides a problem
// needs a full rebuild. Rather than trying to patch the existing TNC/LPT
// in place, it throws both away and reconstructs them from a raw scan of
// the main area — the same scavenge-and-rebuild strategy a power-cut or a
// badly corrupted index leaves as the only recourse.
//
// The rebuilder deliberately reuses as much of internal/check as
// possible: once the raw scan has produced a scanfile.File map the same
// shape internal/check's Sweep produces from TNC leaves, the file
// validation, reachability, and attribute-recompute passes are run
// through a check.Engine exactly as they are during an ordinary check —
// those passes never touch the TNC or LPT fields of an Engine, so an
// Engine built with both nil drives them over the scavenged files just as
// well as it would over a sweep result.
package rebuild

import (
	"context"
	"fmt"

	"github.com/ubifsck/ubifsck/internal/check"
	"github.com/ubifsck/ubifsck/internal/device"
	"github.com/ubifsck/ubifsck/internal/loader"
	"github.com/ubifsck/ubifsck/internal/logger"
	"github.com/ubifsck/ubifsck/internal/lpt"
	"github.com/ubifsck/ubifsck/internal/node"
	"github.com/ubifsck/ubifsck/internal/scanfile"
	"github.com/ubifsck/ubifsck/internal/session"
)

// nodeLoc is an on-flash (lnum, offset) pair, used as a map key wherever
// the scavenge needs to remember exactly which physical node a decision
// was made about.
type nodeLoc struct {
	lnum, offs int
}

// watermark divisors mirroring the loader's own LPT sizing (see
// internal/loader/loader.go); duplicated here rather than exported from
// loader because they are two integer constants, not shared logic.
const (
	deadWatermarkDivisor = 8
	darkWatermarkDivisor = 4
)

// Run implements spec.md §4.6 end to end: bring up the minimal geometry
// context, scavenge every surviving file from a raw scan of the main
// area, validate/reconnect/recompute it exactly as a normal check would,
// then write a fresh TNC, LPT, log, and orphan region and commit two new
// master copies pointing at them.
func Run(ctx context.Context, sess *session.Session, vol device.Volume) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	sb, err := loader.LoadSuperblock(vol)
	if err != nil {
		return fmt.Errorf("rebuild: %w", err)
	}
	layout := loader.LayoutFrom(sb)

	logger.Infof("rebuild: scavenging main area (%d lebs starting at %d)", layout.MainCount, layout.MainStart)
	sc, err := scavengeVolume(vol, layout)
	if err != nil {
		return fmt.Errorf("rebuild: scavenge: %w", err)
	}
	sess.Metrics.LebsScanned(ctx, int64(layout.MainCount), "rebuild-scavenge")

	if _, hasRoot := sc.files[rootInum]; !hasRoot {
		if err := synthesizeRoot(vol, layout, sc); err != nil {
			return fmt.Errorf("rebuild: synthesize root: %w", err)
		}
	}

	eng := check.New(sess, nil, nil, vol, nil)
	eng.Files = sc.files
	eng.HighestInum = sc.highestInum

	if err := eng.ValidateFiles(); err != nil {
		return fmt.Errorf("rebuild: validate files: %w", err)
	}
	if err := eng.Reachable(); err != nil {
		return fmt.Errorf("rebuild: reachability: %w", err)
	}
	if err := eng.RecomputeAttributes(); err != nil {
		return fmt.Errorf("rebuild: recompute attributes: %w", err)
	}
	for _, f := range eng.Files {
		f.DataAbove(f.CalcSize)
	}

	leaves := survivingLeaves(eng.Files, sc)
	logger.Infof("rebuild: %d files survived scavenge, %d leaves to re-index", len(eng.Files), len(leaves))

	lp, root, err := buildIndexAndSpace(vol, sb, layout, sc, leaves)
	if err != nil {
		return fmt.Errorf("rebuild: build index: %w", err)
	}

	if err := packAndWriteLpt(vol, lp, sb, layout); err != nil {
		return fmt.Errorf("rebuild: write lpt: %w", err)
	}

	if err := cleanLog(vol, layout); err != nil {
		return fmt.Errorf("rebuild: clean log: %w", err)
	}
	if err := clearOrphans(vol, layout); err != nil {
		return fmt.Errorf("rebuild: clear orphans: %w", err)
	}

	if err := writeMaster(vol, layout, sc, lp, root); err != nil {
		return fmt.Errorf("rebuild: write master: %w", err)
	}

	logger.Infof("rebuild: complete, highest_inum=%d idx_root=(%d,%d,%d)", sc.highestInum, root.Lnum, root.Offs, root.Len)
	return nil
}

// synthesizeRoot handles the degenerate case where the scavenge found no
// usable root-directory inode — an entirely empty volume, or one whose
// inode 1 was lost beyond recovery — by manufacturing a fresh empty root
// directory so the rebuilt volume is still a valid, mountable (if
// otherwise empty) filesystem rather than one with no root at all.
func synthesizeRoot(vol device.Volume, layout loader.Layout, sc *scavenge) error {
	lnum, ok := firstPristineLeb(vol, layout, sc)
	if !ok {
		return fmt.Errorf("no pristine main leb available to host a synthesized root inode")
	}

	root := &node.Inode{
		Inum:  rootInum,
		Mode:  uint32(dirMode),
		Nlink: 2,
	}
	buf, err := node.EncodeInode(root)
	if err != nil {
		return err
	}
	if err := vol.LebChange(lnum, buf); err != nil {
		return err
	}

	f := scanfile.New(rootInum)
	f.Inode = root
	f.InodeLnum, f.InodeOffs = lnum, 0
	sc.files[rootInum] = f
	if rootInum > sc.highestInum {
		sc.highestInum = rootInum
	}
	if sc.space[lnum] == nil {
		sc.space[lnum] = &lebSpace{nodeLen: make(map[int]int)}
	}
	sc.space[lnum].nodeLen[0] = len(buf)
	sc.space[lnum].emptyOffs = len(buf)
	return nil
}

// firstPristineLeb returns the first main-area LEB the scavenge scan
// found entirely empty (never held a single node), the safest possible
// home for a freshly synthesized inode.
func firstPristineLeb(vol device.Volume, layout loader.Layout, sc *scavenge) (int, bool) {
	for lnum := layout.MainStart; lnum < layout.MainStart+layout.MainCount; lnum++ {
		ls, ok := sc.space[lnum]
		if !ok || ls.emptyOffs == 0 {
			return lnum, true
		}
	}
	return 0, false
}

// rootInum is the synthetic root directory's inode number, matching
// internal/check's own rootInum constant.
const rootInum = 1

// dirMode is a plain rwxr-xr-x directory mode carrying the POSIX S_IFDIR
// pattern node.Inode.IsDir recognizes in the synthesized root.
const dirMode = 0o40755

// lptNew constructs a fresh Lpt sized for vol, using the same
// dead/dark-watermark proportions the loader applies at ordinary bring-up.
func lptNew(vol device.Volume) *lpt.Lpt {
	deadWM := vol.LebSize() / deadWatermarkDivisor
	darkWM := vol.LebSize() / darkWatermarkDivisor
	return lpt.New(vol.LebCount(), vol.LebSize(), deadWM, darkWM)
}
