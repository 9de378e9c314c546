package node

import "fmt"

// Node is the tagged-union member interface every decoded node satisfies.
// Validate re-checks type-specific invariants beyond what ParseHeader
// already guarantees (magic/CRC/length bounds).
type Node interface {
	Head() Header
	Validate() error
}

const (
	// BlockSize is the maximum payload of a single data node (spec.md §3).
	BlockSize = 4096

	// MaxNameLen bounds a directory-entry or xattr-entry name, excluding
	// the terminating NUL the on-flash format requires.
	MaxNameLen = 255
)

// Dump renders a one-line human-readable summary of n, for -g debug
// tracing (cfg.LogSeverity TRACE) of the scanner and consistency engine.
func Dump(n Node) string {
	switch v := n.(type) {
	case *Inode:
		return fmt.Sprintf("inode inum=%d mode=0%o nlink=%d size=%d sqnum=%d", v.Inum, v.Mode, v.Nlink, v.Size, v.Header.Sqnum)
	case *DirEntry:
		kind := "dent"
		if v.Xattr {
			kind = "xent"
		}
		return fmt.Sprintf("%s name=%q inum=%d sqnum=%d", kind, v.Name, v.Inum, v.Header.Sqnum)
	case *Data:
		return fmt.Sprintf("data inum=%d block=%d size=%d sqnum=%d", v.Inum, v.Block, v.Size, v.Header.Sqnum)
	case *Trun:
		return fmt.Sprintf("trun inum=%d old=%d new=%d", v.Inum, v.OldSize, v.NewSize)
	case *Idx:
		return fmt.Sprintf("idx level=%d branches=%d", v.Level, len(v.Branches))
	case *Superblock:
		return fmt.Sprintf("sb leb_size=%d leb_count=%d fanout=%d fmt=%d", v.LEBSize, v.LEBCount, v.Fanout, v.FmtVersion)
	case *Master:
		return fmt.Sprintf("master root=(%d,%d,%d) idx_sz=%d highest_inum=%d", v.RootLnum, v.RootOffs, v.RootLen, v.IdxSize, v.HighestInum)
	case *Reference:
		return fmt.Sprintf("ref bud=(%d,%d)", v.BudLnum, v.BudOffs)
	case *CommitStart:
		return fmt.Sprintf("commit-start cmtno=%d", v.Cmtno)
	case *Orphan:
		return fmt.Sprintf("orphan count=%d", len(v.Inodes))
	case *Auth:
		return fmt.Sprintf("auth len=%d", len(v.HMAC))
	case *Padding:
		return "pad"
	default:
		return fmt.Sprintf("node(%T)", n)
	}
}
