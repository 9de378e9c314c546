package node_test

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ubifsck/ubifsck/internal/node"
)

func buildInode(t *testing.T, inum, mode, nlink uint32, size uint64) []byte {
	t.Helper()
	body := make([]byte, 36)
	binary.LittleEndian.PutUint32(body[0:4], inum)
	binary.LittleEndian.PutUint32(body[4:8], mode)
	binary.LittleEndian.PutUint32(body[8:12], nlink)
	binary.LittleEndian.PutUint64(body[12:20], size)

	buf := make([]byte, node.HeaderLen+len(body))
	copy(buf[node.HeaderLen:], body)
	node.EncodeHeader(buf, node.Header{
		Sqnum:    7,
		Len:      uint32(len(buf)),
		NodeType: node.TypeInode,
	})
	return buf
}

func TestParseInodeRoundTrip(t *testing.T) {
	buf := buildInode(t, 42, 0100644, 1, 4096)

	n, err := node.Parse(buf, 3, 128)
	require.NoError(t, err)

	inode, ok := n.(*node.Inode)
	require.True(t, ok)
	assert.Equal(t, uint32(42), inode.Inum)
	assert.Equal(t, uint64(4096), inode.Size)
	assert.Equal(t, uint64(7), inode.Head().Sqnum)
}

func TestParseRejectsBadMagic(t *testing.T) {
	buf := buildInode(t, 1, 0100644, 1, 0)
	buf[0] ^= 0xFF

	_, err := node.Parse(buf, 0, 0)

	assert.ErrorIs(t, err, node.ErrBadMagic)
}

func TestParseRejectsBadCRC(t *testing.T) {
	buf := buildInode(t, 1, 0100644, 1, 0)
	buf[len(buf)-1] ^= 0x01 // flip a payload byte without fixing up the CRC

	_, err := node.Parse(buf, 0, 0)

	assert.ErrorIs(t, err, node.ErrBadCRC)
}

func TestDataNodeValidateRejectsZeroAndOversizedPayload(t *testing.T) {
	mk := func(size uint32) []byte {
		body := make([]byte, 12)
		binary.LittleEndian.PutUint32(body[0:4], 9)
		binary.LittleEndian.PutUint32(body[4:8], 0)
		binary.LittleEndian.PutUint32(body[8:12], size)
		buf := make([]byte, node.HeaderLen+len(body))
		copy(buf[node.HeaderLen:], body)
		node.EncodeHeader(buf, node.Header{Len: uint32(len(buf)), NodeType: node.TypeData})
		return buf
	}

	_, err := node.ParseAndValidate(mk(0), 0, 0)
	assert.ErrorIs(t, err, node.ErrValidation)

	_, err = node.ParseAndValidate(mk(node.BlockSize+1), 0, 0)
	assert.ErrorIs(t, err, node.ErrValidation)

	n, err := node.ParseAndValidate(mk(100), 0, 0)
	assert.NoError(t, err)
	assert.Equal(t, uint32(100), n.(*node.Data).Size)
}

func TestTrunValidateRejectsNonShrinkingTruncation(t *testing.T) {
	body := make([]byte, 20)
	binary.LittleEndian.PutUint32(body[0:4], 5)
	binary.LittleEndian.PutUint64(body[4:12], 100) // old
	binary.LittleEndian.PutUint64(body[12:20], 200) // new > old: invalid
	buf := make([]byte, node.HeaderLen+len(body))
	copy(buf[node.HeaderLen:], body)
	node.EncodeHeader(buf, node.Header{Len: uint32(len(buf)), NodeType: node.TypeTrun})

	_, err := node.ParseAndValidate(buf, 0, 0)

	assert.ErrorIs(t, err, node.ErrValidation)
}

func TestDirEntryRequiresNulTermination(t *testing.T) {
	name := "foo"
	body := make([]byte, 20+len(name)+1)
	binary.LittleEndian.PutUint32(body[4:8], 11)
	binary.LittleEndian.PutUint16(body[10:12], uint16(len(name)))
	copy(body[20:20+len(name)], name)
	body[20+len(name)] = 'x' // not NUL

	buf := make([]byte, node.HeaderLen+len(body))
	copy(buf[node.HeaderLen:], body)
	node.EncodeHeader(buf, node.Header{Len: uint32(len(buf)), NodeType: node.TypeDent})

	_, err := node.Parse(buf, 0, 0)

	assert.ErrorIs(t, err, node.ErrValidation)
}
