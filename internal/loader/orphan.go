package loader

import (
	"errors"

	"github.com/ubifsck/ubifsck/internal/device"
	"github.com/ubifsck/ubifsck/internal/node"
	"github.com/ubifsck/ubifsck/internal/scan"
)

// loadOrphans implements spec.md §4.2 stage 7: read every orphan node in
// the orphan region and collect the inode numbers scheduled for deletion
// — inodes whose last link vanished without the inode itself being
// written as deleted.
func loadOrphans(vol device.Volume, layout Layout) ([]uint64, error) {
	var out []uint64
	for i := 0; i < layout.OrphanCount; i++ {
		lnum := layout.OrphanStart + i
		buf, err := vol.LebRead(lnum, 0, int(vol.LebSize()))
		if err != nil {
			return nil, err
		}
		sl, err := scan.LEB(lnum, buf)
		if err != nil && !errors.Is(err, scan.ErrGarbage) {
			return nil, err
		}
		for _, nr := range sl.Nodes {
			if o, ok := nr.Node.(*node.Orphan); ok {
				out = append(out, o.Inodes...)
			}
		}
	}
	return out, nil
}
