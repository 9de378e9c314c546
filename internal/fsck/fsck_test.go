package fsck_test

import (
	"context"
	"encoding/binary"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ubifsck/ubifsck/internal/device"
	"github.com/ubifsck/ubifsck/internal/fsck"
	"github.com/ubifsck/ubifsck/internal/node"
	"github.com/ubifsck/ubifsck/internal/problem"
	"github.com/ubifsck/ubifsck/internal/rebuild"
	"github.com/ubifsck/ubifsck/internal/session"
)

const (
	testLebSize  = 4096
	testMinIO    = 512
	testLebCount = 13

	mainStart = 7
)

func openVolume(t *testing.T) *device.FileVolume {
	t.Helper()
	path := filepath.Join(t.TempDir(), "image.bin")
	v, err := device.OpenFileVolume(path, testLebCount, testLebSize, testMinIO, 2048, true)
	require.NoError(t, err)
	t.Cleanup(func() { _ = v.Close() })
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
	binary.LittleEndian.PutUint32(body[16:20], 0)
	binary.LittleEndian.PutUint32(body[20:24], 1) // log lebs
	binary.LittleEndian.PutUint32(body[24:28], 1) // lpt lebs
	binary.LittleEndian.PutUint32(body[28:32], 1) // orphan lebs
	binary.LittleEndian.PutUint32(body[32:36], 6) // main lebs
	body[36] = 0
	body[37] = 0
	binary.LittleEndian.PutUint16(body[38:40], 8)
	binary.LittleEndian.PutUint32(body[40:44], 1)
	binary.LittleEndian.PutUint32(body[44:48], 0)

	buf := make([]byte, node.HeaderLen+len(body))
	copy(buf[node.HeaderLen:], body)
	node.EncodeHeader(buf, node.Header{Len: uint32(len(buf)), NodeType: node.TypeSB})
	return buf
}

func encodeInode(t *testing.T, inum uint32, sqnum uint64, mode, nlink uint32) []byte {
	t.Helper()
	buf, err := node.EncodeInode(&node.Inode{
		Header: node.Header{Sqnum: sqnum},
		Inum:   inum,
		Mode:   mode,
		Nlink:  nlink,
	})
	require.NoError(t, err)
	return buf
}

// buildConnectedVolume writes a superblock and a tiny but fully connected
// main-area file tree (a root directory with one child file), leaving the
// master/log/lpt/orphan regions untouched so the volume is only brought
// up by whichever of loader.Load or rebuild.Run the test calls next.
func buildConnectedVolume(t *testing.T) (*device.FileVolume, []byte, []byte) {
	t.Helper()
	vol := openVolume(t)

	sbLeb := make([]byte, testLebSize)
	copy(sbLeb, encodeSuperblock(t))
	require.NoError(t, vol.LebChange(0, sbLeb))

	rootBuf := encodeInode(t, 1, 1, 0o40755, 2)
	dent := &node.DirEntry{Header: node.Header{Sqnum: 2}, ParentInum: 1, Inum: 2, Type: 0, Name: "foo"}
	dentBuf := node.EncodeDirEntry(dent)

	leb7 := make([]byte, testLebSize)
	copy(leb7, rootBuf)
	copy(leb7[len(rootBuf):], dentBuf)
	require.NoError(t, vol.LebChange(mainStart, leb7))

	childBuf := encodeInode(t, 2, 3, 0o100644, 1)
	leb8 := make([]byte, testLebSize)
	copy(leb8, childBuf)
	require.NoError(t, vol.LebChange(mainStart+1, leb8))

	return vol, rootBuf, dentBuf
}

func TestRunCleanVolumeReportsNoErrors(t *testing.T) {
	vol, _, _ := buildConnectedVolume(t)

	sess := session.New()
	sess.Mode = problem.ModeRebuild
	require.NoError(t, rebuild.Run(context.Background(), sess, vol))

	res, err := fsck.Run(context.Background(), vol, fsck.Options{Mode: problem.ModeCheck})
	require.NoError(t, err)
	assert.Equal(t, problem.ExitNoErrors, res.ExitCode)
	assert.False(t, res.Rebuilt)
}

func TestRunFixesInconsistentAttributesWithoutRebuilding(t *testing.T) {
	vol, rootBuf, dentBuf := buildConnectedVolume(t)

	sess := session.New()
	sess.Mode = problem.ModeRebuild
	require.NoError(t, rebuild.Run(context.Background(), sess, vol))

	// Corrupt the root directory's stored nlink in place, leaving its
	// on-flash location and the dentry after it untouched: the index the
	// rebuild just wrote still points straight at this inode, so the
	// check pass reads the bad value straight off flash.
	badRoot := encodeInode(t, 1, 1, 0o40755, 99)
	require.Equal(t, len(rootBuf), len(badRoot))
	leb7 := make([]byte, testLebSize)
	copy(leb7, badRoot)
	copy(leb7[len(badRoot):], dentBuf)
	require.NoError(t, vol.LebChange(mainStart, leb7))

	res, err := fsck.Run(context.Background(), vol, fsck.Options{Mode: problem.ModeDanger1})
	require.NoError(t, err)
	assert.False(t, res.Rebuilt)
	assert.NotZero(t, res.ExitCode&problem.ExitErrorsCorrected)
	assert.Zero(t, res.ExitCode&problem.ExitRebootRecommended)
}

func TestRunEscalatesToRebuildOnCorruptedMaster(t *testing.T) {
	vol, _, _ := buildConnectedVolume(t)
	// Master/log/lpt/orphan regions are left unmapped by openVolume, so
	// bring-up itself fails before a consistency engine ever runs.

	res, err := fsck.Run(context.Background(), vol, fsck.Options{Mode: problem.ModeDanger1})
	require.NoError(t, err)
	assert.True(t, res.Rebuilt)
	assert.NotZero(t, res.ExitCode&problem.ExitErrorsCorrected)
	assert.NotZero(t, res.ExitCode&problem.ExitRebootRecommended)
}
