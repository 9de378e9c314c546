package scanfile_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ubifsck/ubifsck/internal/node"
	"github.com/ubifsck/ubifsck/internal/scanfile"
)

func TestRecomputeRegularFileSizeFromDataBlocks(t *testing.T) {
	f := scanfile.New(10)
	f.Inode = &node.Inode{Inum: 10, Mode: 0100644, Size: 4096}
	f.Data.Set(0, scanfile.DataBlock{Node: &node.Data{Inum: 10, Size: node.BlockSize, Sqnum: 1}})
	f.Data.Set(1, scanfile.DataBlock{Node: &node.Data{Inum: 10, Size: node.BlockSize, Sqnum: 1}})

	f.Recompute(0)

	assert.Equal(t, uint64(2*node.BlockSize), f.CalcSize)
}

func TestRecomputeTruncationDropsNewerDataAboveCutoff(t *testing.T) {
	f := scanfile.New(11)
	f.Inode = &node.Inode{Inum: 11, Mode: 0100644, Size: 8192, Header: node.Header{Sqnum: 1}}
	f.Data.Set(0, scanfile.DataBlock{Node: &node.Data{Inum: 11, Size: node.BlockSize, Sqnum: 1}})
	f.Data.Set(1, scanfile.DataBlock{Node: &node.Data{Inum: 11, Size: node.BlockSize, Sqnum: 1}})
	f.Trun = &node.Trun{Inum: 11, OldSize: 8192, NewSize: node.BlockSize, Header: node.Header{Sqnum: 2}}

	f.Recompute(0)

	assert.Equal(t, uint64(node.BlockSize), f.CalcSize)
}

func TestRecomputeDirectorySizeAndNlink(t *testing.T) {
	f := scanfile.New(1)
	f.Inode = &node.Inode{Inum: 1, Mode: 040755}
	f.AddDentryAt(100, scanfile.Dentry{Entry: &node.DirEntry{Name: "a"}})
	f.AddDentryAt(200, scanfile.Dentry{Entry: &node.DirEntry{Name: "bb"}})

	f.Recompute(1) // one child subdirectory

	assert.Equal(t, uint32(3), f.CalcNlink) // 2 + 1 subdir
	require.Greater(t, f.CalcSize, uint64(node.HeaderLen))
}

func TestRecomputeXattrFile(t *testing.T) {
	f := scanfile.New(50)
	f.Inode = &node.Inode{Inum: 50, Size: 16, Flags: node.FlagXattr}

	f.Recompute(0)

	assert.Equal(t, uint32(1), f.CalcNlink)
	assert.Equal(t, uint64(16), f.CalcSize)
}

func TestDentryCountAndRemoveDentry(t *testing.T) {
	f := scanfile.New(2)
	f.AddDentryAt(5, scanfile.Dentry{Entry: &node.DirEntry{Name: "x"}, Lnum: 1, Offs: 10})
	f.AddDentryAt(5, scanfile.Dentry{Entry: &node.DirEntry{Name: "y"}, Lnum: 1, Offs: 20})

	require.Equal(t, 2, f.DentryCount())

	f.RemoveDentry(5, 1, 10)

	assert.Equal(t, 1, f.DentryCount())
}
