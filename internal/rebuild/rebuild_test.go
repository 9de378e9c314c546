package rebuild_test

import (
	"context"
	"encoding/binary"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ubifsck/ubifsck/internal/device"
	"github.com/ubifsck/ubifsck/internal/key"
	"github.com/ubifsck/ubifsck/internal/loader"
	"github.com/ubifsck/ubifsck/internal/node"
	"github.com/ubifsck/ubifsck/internal/problem"
	"github.com/ubifsck/ubifsck/internal/rebuild"
	"github.com/ubifsck/ubifsck/internal/session"
)

// Geometry matching loader.LayoutFrom's fixed region order: 2 superblock
// + 2 master lebs, then 1 log + 1 lpt + 1 orphan + 6 main lebs (7..12).
const (
	testLebSize  = 4096
	testMinIO    = 512
	testLebCount = 13

	mainStart = 7
	mainCount = 6
)

func openVolume(t *testing.T) *device.FileVolume {
	t.Helper()
	path := filepath.Join(t.TempDir(), "image.bin")
	v, err := device.OpenFileVolume(path, testLebCount, testLebSize, testMinIO, 2048, true)
	require.NoError(t, err)
	t.Cleanup(func() { _ = v.Close() })

	// Put every leb into the erased (0xFF) state scan_leb expects before
	// a test writes its own content on top of a subset of them.
	for lnum := 0; lnum < testLebCount; lnum++ {
		require.NoError(t, v.LebUnmap(lnum))
	}
	return v
}

func encodeSuperblock(t *testing.T) []byte {
	t.Helper()
	body := make([]byte, 60)
	binary.LittleEndian.PutUint32(body[0:4], testMinIO)
	binary.LittleEndian.PutUint32(body[4:8], testLebSize)
	binary.LittleEndian.PutUint32(body[8:12], testLebCount)
	binary.LittleEndian.PutUint32(body[12:16], testLebCount)
	binary.LittleEndian.PutUint32(body[16:20], 0) // max bud idx, unused
	binary.LittleEndian.PutUint32(body[20:24], 1) // log lebs
	binary.LittleEndian.PutUint32(body[24:28], 1) // lpt lebs
	binary.LittleEndian.PutUint32(body[28:32], 1) // orphan lebs
	binary.LittleEndian.PutUint32(body[32:36], mainCount)
	body[36] = 0                                   // key hash
	body[37] = 0                                   // key fmt
	binary.LittleEndian.PutUint16(body[38:40], 8)  // fanout
	binary.LittleEndian.PutUint32(body[40:44], 1)  // fmt version
	binary.LittleEndian.PutUint32(body[44:48], 0)  // ro compat

	buf := make([]byte, node.HeaderLen+len(body))
	copy(buf[node.HeaderLen:], body)
	node.EncodeHeader(buf, node.Header{Len: uint32(len(buf)), NodeType: node.TypeSB})
	return buf
}

func encodeInode(t *testing.T, inum uint32, sqnum uint64, mode uint32, nlink uint32, size uint64) []byte {
	t.Helper()
	buf, err := node.EncodeInode(&node.Inode{
		Header: node.Header{Sqnum: sqnum},
		Inum:   inum,
		Mode:   mode,
		Nlink:  nlink,
		Size:   size,
	})
	require.NoError(t, err)
	return buf
}

// buildScavengeableVolume lays out a superblock, leaves the master region
// untouched (rebuild.Run never reads it), and hand-writes a tiny but
// internally connected file tree directly into the main area: a root
// directory (inode 1) containing one dentry "foo" pointing at a regular
// file (inode 2) with one block of data. This is exactly the kind of
// image a power-cut mid-commit leaves behind: a perfectly good main area
// with a master/log/lpt region that bring-up can no longer trust.
func buildScavengeableVolume(t *testing.T) *device.FileVolume {
	t.Helper()
	vol := openVolume(t)

	sbLeb := make([]byte, testLebSize)
	copy(sbLeb, encodeSuperblock(t))
	require.NoError(t, vol.LebChange(0, sbLeb))

	rootBuf := encodeInode(t, 1, 1, 0o40755, 2, 0)
	dent := &node.DirEntry{
		Header:     node.Header{Sqnum: 2},
		ParentInum: 1,
		Inum:       2,
		Type:       0,
		Name:       "foo",
	}
	dentBuf := node.EncodeDirEntry(dent)

	leb7 := make([]byte, testLebSize)
	copy(leb7, rootBuf)
	copy(leb7[len(rootBuf):], dentBuf)
	require.NoError(t, vol.LebChange(mainStart, leb7))

	payload := []byte("hello")
	childBuf := encodeInode(t, 2, 3, 0o100644, 1, uint64(len(payload)))
	dataNode := &node.Data{Header: node.Header{Sqnum: 4}, Inum: 2, Block: 0, Size: uint32(len(payload))}
	dataBuf := node.EncodeData(dataNode, payload)

	leb8 := make([]byte, testLebSize)
	copy(leb8, childBuf)
	copy(leb8[len(childBuf):], dataBuf)
	require.NoError(t, vol.LebChange(mainStart+1, leb8))

	return vol
}

func runRebuild(t *testing.T, vol *device.FileVolume) {
	t.Helper()
	sess := session.New()
	sess.Mode = problem.ModeRebuild
	require.NoError(t, rebuild.Run(context.Background(), sess, vol))
}

func TestRunRebuildsConnectedVolume(t *testing.T) {
	vol := buildScavengeableVolume(t)
	runRebuild(t, vol)

	res, err := loader.Load(vol)
	require.NoError(t, err)
	require.NotNil(t, res.Master)
	assert.Equal(t, uint32(2), res.Master.HighestInum)

	_, err = res.Tnc.Lookup(key.Inode(1))
	require.NoError(t, err)
	_, err = res.Tnc.Lookup(key.Inode(2))
	require.NoError(t, err)

	loc, err := res.Tnc.LookupNm(key.Dent(1, "foo"), "foo")
	require.NoError(t, err)
	assert.Equal(t, mainStart, loc.Lnum)

	_, err = res.Tnc.Lookup(key.DataBlock(2, 0))
	require.NoError(t, err)
}

func TestRunSynthesizesRootWhenMissing(t *testing.T) {
	vol := openVolume(t)
	sbLeb := make([]byte, testLebSize)
	copy(sbLeb, encodeSuperblock(t))
	require.NoError(t, vol.LebChange(0, sbLeb))

	runRebuild(t, vol)

	res, err := loader.Load(vol)
	require.NoError(t, err)
	loc, err := res.Tnc.Lookup(key.Inode(1))
	require.NoError(t, err)
	assert.Equal(t, uint32(1), res.Master.HighestInum)
	_ = loc
}

// A second rebuild over an already-rebuilt image must succeed and reach
// the same fixed point: the fresh index and LPT regions the first run
// wrote are themselves just more main-area content to a raw scavenge,
// and stale index nodes left behind by a prior rebuild carry no live
// file-tree node a second scavenge would mistake for a survivor.
func TestRunIsIdempotent(t *testing.T) {
	vol := buildScavengeableVolume(t)
	runRebuild(t, vol)
	runRebuild(t, vol)

	res, err := loader.Load(vol)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), res.Master.HighestInum)

	_, err = res.Tnc.Lookup(key.Inode(1))
	require.NoError(t, err)
	_, err = res.Tnc.Lookup(key.Inode(2))
	require.NoError(t, err)
	_, err = res.Tnc.LookupNm(key.Dent(1, "foo"), "foo")
	require.NoError(t, err)
}
