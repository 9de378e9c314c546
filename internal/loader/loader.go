// Package loader implements the bring-up sequence of spec.md §4.2: from a
// raw device.Volume to a populated TNC and LPT plus the chosen master node,
// ready for the consistency engine (internal/check) to run its passes
// against, or for the top-level driver to hand to the scavenging rebuilder
// instead if a bring-up stage fails in a way the problem policy decides
// warrants it.
package loader

import (
	"errors"
	"fmt"

	"github.com/ubifsck/ubifsck/internal/device"
	"github.com/ubifsck/ubifsck/internal/key"
	"github.com/ubifsck/ubifsck/internal/lpt"
	"github.com/ubifsck/ubifsck/internal/node"
	"github.com/ubifsck/ubifsck/internal/tnc"
)

// Bring-up failure sentinels; the top-level driver wraps these through
// the problem policy (MstCorrupted et al.) rather than this package
// depending on internal/problem directly.
var (
	ErrBelowMinima         = errors.New("loader: device geometry below required minima")
	ErrSuperblockCorrupted = errors.New("loader: superblock unreadable")
	ErrMasterCorrupted     = errors.New("loader: master node unreadable")
)

// Minimum device geometry this tool can bring up at all: enough LEBs for
// the fixed regions spec.md §4.1's superblock.Validate reserves (2
// superblock + 2 master + 1 log + 1 lpt + 1 orphan + 1 main), and a LEB
// size generous enough to hold a superblock node plus headroom.
const (
	minLebCount = 8
	minLebSize  = 2048
)

// Layout is the fixed region boundaries derived from the superblock,
// mirroring spec.md §3's "first superblock LEB" / "master region" /
// "log region" / "LPT region" / "orphan region" / "main area" wording.
// Superblock reserves 2 LEBs and master 2 LEBs for symmetry with the
// superblock's own Validate (which reserves the same two pairs). Bring-up
// reads only the first superblock LEB and scans both master LEBs, the
// "two copies" master convention of spec.md §4.2 stage 3.
type Layout struct {
	SBLnum                   int
	MasterLnum0, MasterLnum1 int
	LogStart, LogCount       int
	LptStart, LptCount       int
	OrphanStart, OrphanCount int
	MainStart, MainCount     int
}

// LayoutFrom derives the fixed region boundaries from a validated
// superblock. Exported for internal/rebuild, which needs the same
// region boundaries to scan the main area and reconstruct the log/LPT
// regions from scratch.
func LayoutFrom(sb *node.Superblock) Layout {
	logStart := 4
	logCount := int(sb.LogLebs)
	lptStart := logStart + logCount
	lptCount := int(sb.LPTLebs)
	orphanStart := lptStart + lptCount
	orphanCount := int(sb.OrphanLebs)
	mainStart := orphanStart + orphanCount
	mainCount := int(sb.MainLebs)
	return Layout{
		SBLnum:      0,
		MasterLnum0: 2,
		MasterLnum1: 3,
		LogStart:    logStart, LogCount: logCount,
		LptStart: lptStart, LptCount: lptCount,
		OrphanStart: orphanStart, OrphanCount: orphanCount,
		MainStart: mainStart, MainCount: mainCount,
	}
}

// Result is everything bring-up hands off to the consistency engine: the
// chosen master copy and its location (so IndexSizeCheck can rewrite it
// in place), the populated TNC, a freshly-sized LPT, and the orphan
// inodes scheduled for post-mount deletion.
type Result struct {
	Superblock *node.Superblock
	Layout     Layout

	Master                 *node.Master
	MasterLnum, MasterOffs int

	Tnc *tnc.Tnc
	Lpt *lpt.Lpt

	Orphans []uint64
}

// watermark divisors deriving the LPT's dead/dark thresholds from LEB
// size, the same rough proportion spec.md's "dead" (mostly-dirty LEBs
// worth reclaiming) and "dark" (index LEBs too dirty to keep) watermarks
// describe without prescribing an exact constant.
const (
	deadWatermarkDivisor = 8
	darkWatermarkDivisor = 4
)

// Load runs spec.md §4.2's bring-up stages 1-7 in order: early geometry
// constants, superblock, master, LPT initialization, space fix-up,
// journal replay, and orphans. Stage 8 (log consolidation/size recovery)
// has no separate effect on a read-mostly checker beyond what
// IndexSizeCheck already recomputes, so it is folded into the caller's
// use of Result rather than performed here.
func Load(vol device.Volume) (*Result, error) {
	if err := checkMinima(vol); err != nil {
		return nil, err
	}

	sb, err := LoadSuperblock(vol)
	if err != nil {
		return nil, fmt.Errorf("loader: %w", err)
	}
	layout := LayoutFrom(sb)

	master, masterLnum, masterOffs, err := loadMaster(vol, layout)
	if err != nil {
		return nil, fmt.Errorf("loader: %w", err)
	}
	if err := master.Validate(); err != nil {
		return nil, fmt.Errorf("loader: %w", err)
	}

	deadWM := sb.LEBSize / deadWatermarkDivisor
	darkWM := sb.LEBSize / darkWatermarkDivisor
	l := lpt.New(vol.LebCount(), vol.LebSize(), deadWM, darkWM)
	// Space fix-up (stage 5) is a deliberate no-op here: spec.md's
	// half-written-min-I/O-unit rewrite exists so a live mount can keep
	// writing past a torn power-cut boundary, but scan.LEB already
	// treats such a boundary as ordinary clean empty space (its isEmpty
	// check), which is the only thing this read-mostly tool ever
	// observes. Actually rewriting torn units is an online-repair
	// concern this tool's Non-goals exclude.

	t := tnc.New()
	root, err := loadIndexNode(vol, t, int(master.RootLnum), int(master.RootOffs), int(master.RootLen))
	if err != nil {
		return nil, fmt.Errorf("loader: load index: %w", err)
	}
	t.Root = root

	if err := replayJournal(vol, layout, master, t); err != nil {
		return nil, fmt.Errorf("loader: journal replay: %w", err)
	}

	orphans, err := loadOrphans(vol, layout)
	if err != nil {
		return nil, fmt.Errorf("loader: orphans: %w", err)
	}
	for _, inum := range orphans {
		lo := key.New(uint32(inum), 0, 0)
		hi := key.New(uint32(inum)+1, 0, 0)
		t.RemoveRange(lo, hi)
	}

	return &Result{
		Superblock: sb,
		Layout:     layout,
		Master:     master,
		MasterLnum: masterLnum,
		MasterOffs: masterOffs,
		Tnc:        t,
		Lpt:        l,
		Orphans:    orphans,
	}, nil
}

func checkMinima(vol device.Volume) error {
	if vol.LebSize() < minLebSize || vol.MinIOSize() == 0 || vol.LebCount() < minLebCount {
		return fmt.Errorf("%w: leb_size=%d min_io_size=%d leb_count=%d", ErrBelowMinima, vol.LebSize(), vol.MinIOSize(), vol.LebCount())
	}
	return nil
}
