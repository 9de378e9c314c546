package check

import (
	"github.com/ubifsck/ubifsck/internal/problem"
	"github.com/ubifsck/ubifsck/internal/scanfile"
)

// Reachable implements spec.md §4.5.3: starting from the synthetic root,
// traverse parent→child through directory entries and delete any
// dentry whose chain of ancestors does not terminate at the root
// (cycles included).
func (e *Engine) Reachable() error {
	reached := make(map[uint32]bool)
	e.markReachable(rootInum, reached, make(map[uint32]bool))

	type orphanDentry struct {
		inum uint32
		d    scanfile.Dentry
	}
	var unreachable []orphanDentry
	for inum, f := range e.Files {
		if inum == rootInum || reached[inum] {
			continue
		}
		if f.Inode != nil && f.Inode.IsXattr() {
			// Xattr files hang off their host, not the directory tree;
			// their connectivity is validated separately by
			// XattrHasNoHost/XattrHasWrongHost.
			continue
		}
		for _, d := range f.AllLinks() {
			unreachable = append(unreachable, orphanDentry{inum: inum, d: d})
		}
	}

	touched := make(map[uint32]bool, len(unreachable))
	for _, u := range unreachable {
		d, err := e.decide(problem.DentryIsUnreachable)
		if err != nil {
			return err
		}
		touched[u.inum] = true
		if d.Fix {
			f := e.Files[u.inum]
			e.dropLink(f, u.d)
		}
	}

	// A file whose incoming-link set became empty as a result falls into
	// the disconnected-list or FileHasNoDent path (§4.5.2).
	for inum := range touched {
		f, ok := e.Files[inum]
		if !ok || f.LinkCount() > 0 {
			continue
		}
		if f.Inode != nil && f.Inode.IsRegular() {
			if _, err := e.decide(problem.FileIsDisconnected); err != nil {
				return err
			}
			e.Disconnected = append(e.Disconnected, f)
		} else {
			d, err := e.decide(problem.FileHasNoDent)
			if err != nil {
				return err
			}
			if d.Fix {
				delete(e.Files, inum)
			}
		}
	}
	return nil
}

// markReachable walks the directory tree from inum, marking every file it
// reaches and stopping at cycles (visiting tracks the current path).
func (e *Engine) markReachable(inum uint32, reached, visiting map[uint32]bool) {
	if visiting[inum] || reached[inum] {
		return
	}
	visiting[inum] = true
	reached[inum] = true

	f, ok := e.Files[inum]
	if !ok || f.Inode == nil || !f.Inode.IsDir() {
		delete(visiting, inum)
		return
	}
	for _, d := range f.AllDentries() {
		if d.Entry.IsDeletion() {
			continue
		}
		e.markReachable(d.Entry.Inum, reached, visiting)
	}
	delete(visiting, inum)
}
