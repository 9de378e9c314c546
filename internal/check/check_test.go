package check_test

import (
	"encoding/binary"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ubifsck/ubifsck/internal/check"
	"github.com/ubifsck/ubifsck/internal/device"
	"github.com/ubifsck/ubifsck/internal/key"
	"github.com/ubifsck/ubifsck/internal/lpt"
	"github.com/ubifsck/ubifsck/internal/node"
	"github.com/ubifsck/ubifsck/internal/problem"
	"github.com/ubifsck/ubifsck/internal/scanfile"
	"github.com/ubifsck/ubifsck/internal/session"
	"github.com/ubifsck/ubifsck/internal/tnc"
)

func openVolume(t *testing.T) *device.FileVolume {
	t.Helper()
	path := filepath.Join(t.TempDir(), "image.bin")
	v, err := device.OpenFileVolume(path, 8, 4096, 512, 2048, true)
	require.NoError(t, err)
	t.Cleanup(func() { _ = v.Close() })
	return v
}

func newEngine(t *testing.T, mode problem.Mode) (*check.Engine, *device.FileVolume) {
	t.Helper()
	vol := openVolume(t)
	sess := session.New()
	sess.Mode = mode
	e := check.New(sess, tnc.New(), lpt.New(vol.LebCount(), vol.LebSize(), 4096, 4096), vol, nil)
	return e, vol
}

func regularInode(inum uint32, nlink uint32) *node.Inode {
	return &node.Inode{Inum: inum, Mode: uint32(0o100644), Nlink: nlink}
}

func dirInode(inum uint32, nlink uint32) *node.Inode {
	return &node.Inode{Inum: inum, Mode: uint32(0o040755), Nlink: nlink}
}

func TestValidateFilesDeletesFileWithNoInode(t *testing.T) {
	e, _ := newEngine(t, problem.ModeDanger1)
	f := scanfile.New(7)
	e.Files[7] = f

	require.NoError(t, e.ValidateFiles())

	_, ok := e.Files[7]
	assert.False(t, ok)
}

func TestValidateFilesDeletesZeroNlinkInode(t *testing.T) {
	e, _ := newEngine(t, problem.ModeDanger1)
	f := scanfile.New(7)
	f.Inode = regularInode(7, 0)
	e.Files[7] = f

	require.NoError(t, e.ValidateFiles())

	_, ok := e.Files[7]
	assert.False(t, ok)
}

func TestValidateFilesParksDisconnectedRegularFile(t *testing.T) {
	e, _ := newEngine(t, problem.ModeDanger1)
	f := scanfile.New(7)
	f.Inode = regularInode(7, 1)
	e.Files[7] = f

	require.NoError(t, e.ValidateFiles())

	require.Len(t, e.Disconnected, 1)
	assert.Equal(t, uint32(7), e.Disconnected[0].Inum)
	_, stillPresent := e.Files[7]
	assert.True(t, stillPresent)
}

func TestValidateFilesKeepsNewestOfTooManyDentries(t *testing.T) {
	e, _ := newEngine(t, problem.ModeDanger1)

	parent := scanfile.New(7)
	parent.Inode = dirInode(7, 2)
	e.Files[7] = parent

	target := scanfile.New(99)
	target.Inode = dirInode(99, 2)
	oldLink := scanfile.Dentry{
		Entry: &node.DirEntry{Header: node.Header{Sqnum: 1}, Inum: 99, Type: 2, Name: "old"},
		Lnum:  1, Offs: 0, ParentInum: 7,
	}
	newLink := scanfile.Dentry{
		Entry: &node.DirEntry{Header: node.Header{Sqnum: 2}, Inum: 99, Type: 2, Name: "new"},
		Lnum:  1, Offs: 64, ParentInum: 7,
	}
	parent.AddDentryAt(key.NameHash("old"), oldLink)
	parent.AddDentryAt(key.NameHash("new"), newLink)
	target.AddLinkAt(key.NameHash("old"), oldLink)
	target.AddLinkAt(key.NameHash("new"), newLink)
	e.Files[99] = target

	require.NoError(t, e.ValidateFiles())

	assert.Equal(t, 1, target.LinkCount())
	all := target.AllLinks()
	require.Len(t, all, 1)
	assert.Equal(t, "new", all[0].Entry.Name)
}

func TestReachableDeletesDentryNotReachableFromRoot(t *testing.T) {
	e, _ := newEngine(t, problem.ModeDanger1)

	root := scanfile.New(1)
	root.Inode = dirInode(1, 2)
	e.Files[1] = root

	orphan := scanfile.New(42)
	orphan.Inode = regularInode(42, 1)
	orphan.AddLinkAt(key.NameHash("orphaned"), scanfile.Dentry{
		Entry: &node.DirEntry{Inum: 42, Type: 1, Name: "orphaned"},
		Lnum:  2, Offs: 0, ParentInum: 99, // 99 never exists, so this file is unreachable
	})
	e.Files[42] = orphan

	require.NoError(t, e.Reachable())

	// its only dentry was deleted as unreachable, dropping it into
	// either disconnected or deleted; since it's a regular file, it is
	// parked rather than removed.
	require.Len(t, e.Disconnected, 1)
	assert.Equal(t, uint32(42), e.Disconnected[0].Inum)
}

func TestReachableKeepsDentryUnderRoot(t *testing.T) {
	e, _ := newEngine(t, problem.ModeDanger1)

	root := scanfile.New(1)
	root.Inode = dirInode(1, 2)
	child := scanfile.New(2)
	child.Inode = regularInode(2, 1)
	entry := scanfile.Dentry{
		Entry: &node.DirEntry{Inum: 2, Type: 1, Name: "file.txt"},
		Lnum:  1, Offs: 0, ParentInum: 1,
	}
	root.AddDentryAt(key.NameHash("file.txt"), entry)
	child.AddLinkAt(key.NameHash("file.txt"), entry)
	e.Files[1] = root
	e.Files[2] = child

	require.NoError(t, e.Reachable())

	assert.Equal(t, 1, child.LinkCount())
	assert.Empty(t, e.Disconnected)
}

func TestRecomputeAttributesFixesDirectoryNlinkMismatch(t *testing.T) {
	e, vol := newEngine(t, problem.ModeDanger1)

	inode := dirInode(1, 99) // wrong nlink, should become 2 (no subdirs)
	buf, err := node.EncodeInode(inode)
	require.NoError(t, err)
	require.NoError(t, vol.LebChange(0, buf))

	f := scanfile.New(1)
	f.Inode = inode
	f.InodeLnum, f.InodeOffs = 0, 0
	e.Files[1] = f

	require.NoError(t, e.RecomputeAttributes())

	assert.Equal(t, uint32(2), f.Inode.Nlink)

	reread, err := vol.LebRead(0, 0, len(buf))
	require.NoError(t, err)
	h, err := node.ParseHeader(reread)
	require.NoError(t, err)
	assert.Equal(t, node.TypeInode, h.NodeType)
}

func TestSpaceCheckFlagsLpIncorrectWhenLptDisagrees(t *testing.T) {
	e, vol := newEngine(t, problem.ModeDanger1)

	// leb 0 holds one inode node; the rest is empty space.
	inode := regularInode(5, 1)
	buf, err := node.EncodeInode(inode)
	require.NoError(t, err)
	full := make([]byte, vol.LebSize())
	for i := range full {
		full[i] = 0xFF
	}
	copy(full, buf)
	require.NoError(t, vol.LebChange(0, full))

	f := scanfile.New(5)
	f.Inode = inode
	f.InodeLnum, f.InodeOffs = 0, 0
	e.Files[5] = f
	e.Tnc.Add(key.Inode(5), tnc.Loc{Lnum: 0, Offs: 0, Len: len(buf)})

	before := e.Sess.ExitCode.Code()
	require.NoError(t, e.SpaceCheck())
	after := e.Sess.ExitCode.Code()

	assert.Equal(t, problem.ExitErrorsCorrected, after&problem.ExitErrorsCorrected)
	assert.NotEqual(t, before, after)

	prop, err := e.Lpt.Lookup(0)
	require.NoError(t, err)
	assert.Equal(t, vol.LebSize()-uint32(len(buf)), prop.Free)
	assert.Equal(t, uint32(0), prop.Dirty)
}

func TestSweepParsesInodeLeafIntoScannedFile(t *testing.T) {
	e, vol := newEngine(t, problem.ModeDanger1)

	inode := regularInode(9, 1)
	buf, err := node.EncodeInode(inode)
	require.NoError(t, err)
	full := make([]byte, vol.LebSize())
	for i := range full {
		full[i] = 0xFF
	}
	copy(full, buf)
	require.NoError(t, vol.LebChange(1, full))

	e.Tnc.Add(key.Inode(9), tnc.Loc{Lnum: 1, Offs: 0, Len: len(buf)})

	require.NoError(t, e.Sweep())

	f, ok := e.Files[9]
	require.True(t, ok)
	require.NotNil(t, f.Inode)
	assert.Equal(t, uint32(9), f.Inode.Inum)
	assert.Equal(t, uint32(9), e.HighestInum)
}

func TestSweepDropsLeafOnCorruptLeb(t *testing.T) {
	e, vol := newEngine(t, problem.ModeDanger1)

	garbage := make([]byte, vol.LebSize())
	for i := range garbage {
		garbage[i] = 0x42
	}
	require.NoError(t, vol.LebChange(2, garbage))

	e.Tnc.Add(key.Inode(11), tnc.Loc{Lnum: 2, Offs: 0, Len: node.HeaderLen + 36})

	require.NoError(t, e.Sweep())

	_, ok := e.Files[11]
	assert.False(t, ok)
	loc, lookupErr := e.Tnc.Lookup(key.Inode(11))
	_ = loc
	assert.Error(t, lookupErr)
}

func TestValidateFilesSkipsRootWithNoDentries(t *testing.T) {
	e, _ := newEngine(t, problem.ModeDanger1)

	before := e.Sess.ExitCode.Code()
	root := scanfile.New(1)
	root.Inode = dirInode(1, 2)
	e.Files[1] = root

	require.NoError(t, e.ValidateFiles())

	assert.Equal(t, before, e.Sess.ExitCode.Code())
	_, ok := e.Files[1]
	assert.True(t, ok)
}

// encodeDirEntry builds a raw dent/xent node buffer, following the same
// manual layout node_test.go uses.
func encodeDirEntry(targetInum uint32, typ byte, xattr bool, name string) []byte {
	body := make([]byte, 20+len(name)+1)
	binary.LittleEndian.PutUint32(body[4:8], targetInum)
	body[8] = typ
	binary.LittleEndian.PutUint16(body[10:12], uint16(len(name)))
	copy(body[20:20+len(name)], name)

	buf := make([]byte, node.HeaderLen+len(body))
	copy(buf[node.HeaderLen:], body)
	nodeType := node.TypeDent
	if xattr {
		nodeType = node.TypeXent
	}
	node.EncodeHeader(buf, node.Header{Len: uint32(len(buf)), NodeType: nodeType})
	return buf
}

func TestSweepWiresXattrHostAndIncomingLink(t *testing.T) {
	e, vol := newEngine(t, problem.ModeDanger1)

	host := regularInode(20, 1)
	xattrInode := &node.Inode{Inum: 21, Flags: node.FlagXattr, Nlink: 1}

	hostBuf, err := node.EncodeInode(host)
	require.NoError(t, err)
	xattrBuf, err := node.EncodeInode(xattrInode)
	require.NoError(t, err)
	xentBuf := encodeDirEntry(21, 0, true, "c")

	full := make([]byte, vol.LebSize())
	for i := range full {
		full[i] = 0xFF
	}
	hostOffs := 0
	copy(full[hostOffs:], hostBuf)
	xattrOffs := hostOffs + len(hostBuf)
	copy(full[xattrOffs:], xattrBuf)
	xentOffs := xattrOffs + len(xattrBuf)
	copy(full[xentOffs:], xentBuf)
	require.NoError(t, vol.LebChange(3, full))

	e.Tnc.Add(key.Inode(20), tnc.Loc{Lnum: 3, Offs: hostOffs, Len: len(hostBuf)})
	e.Tnc.Add(key.Inode(21), tnc.Loc{Lnum: 3, Offs: xattrOffs, Len: len(xattrBuf)})
	e.Tnc.AddNm(key.Xent(20, "c"), "c", tnc.Loc{Lnum: 3, Offs: xentOffs, Len: len(xentBuf)})

	require.NoError(t, e.Sweep())

	hostFile, ok := e.Files[20]
	require.True(t, ok)
	assert.Contains(t, hostFile.Xattrs, uint32(21))

	xattrFile, ok := e.Files[21]
	require.True(t, ok)
	assert.Equal(t, 1, xattrFile.LinkCount())
	assert.Empty(t, xattrFile.AllDentries())
}

func TestDecideUsesAskFunctionInNormalMode(t *testing.T) {
	vol := openVolume(t)
	sess := session.New()
	sess.Mode = problem.ModeNormal
	asked := false
	ask := func(problem.Kind) problem.Answer {
		asked = true
		return problem.AnswerYes
	}
	e := check.New(sess, tnc.New(), lpt.New(vol.LebCount(), vol.LebSize(), 4096, 4096), vol, ask)

	f := scanfile.New(7)
	e.Files[7] = f
	require.NoError(t, e.ValidateFiles())

	assert.True(t, asked)
	_, ok := e.Files[7]
	assert.False(t, ok)
}
