package tnc_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ubifsck/ubifsck/internal/key"
	"github.com/ubifsck/ubifsck/internal/tnc"
)

func TestAddLookupRemove(t *testing.T) {
	tr := tnc.New()
	k := key.Inode(7)

	tr.Add(k, tnc.Loc{Lnum: 1, Offs: 100, Len: 64})

	loc, err := tr.Lookup(k)
	require.NoError(t, err)
	assert.Equal(t, 1, loc.Lnum)

	tr.Remove(k)
	_, err = tr.Lookup(k)
	assert.ErrorIs(t, err, tnc.ErrNotFound)
}

func TestAddNmDisambiguatesHashCollisions(t *testing.T) {
	tr := tnc.New()
	k := key.Dent(1, "a") // same key.Key used for both names to simulate a hash collision

	tr.AddNm(k, "a", tnc.Loc{Lnum: 1, Offs: 10})
	tr.AddNm(k, "b", tnc.Loc{Lnum: 1, Offs: 20})

	locA, err := tr.LookupNm(k, "a")
	require.NoError(t, err)
	locB, err := tr.LookupNm(k, "b")
	require.NoError(t, err)

	assert.Equal(t, 10, locA.Offs)
	assert.Equal(t, 20, locB.Offs)
}

func TestRemoveNodeDeletesOnlyMatchingLocation(t *testing.T) {
	tr := tnc.New()
	k := key.DataBlock(5, 0)
	tr.Add(k, tnc.Loc{Lnum: 2, Offs: 50})

	tr.RemoveNode(k, 2, 999) // wrong offset: no-op
	_, err := tr.Lookup(k)
	require.NoError(t, err)

	tr.RemoveNode(k, 2, 50)
	_, err = tr.Lookup(k)
	assert.ErrorIs(t, err, tnc.ErrNotFound)
}

func TestNextEntWalksSameInodeGroup(t *testing.T) {
	tr := tnc.New()
	tr.AddNm(key.Dent(1, "a"), "a", tnc.Loc{Lnum: 1, Offs: 1})
	tr.AddNm(key.Dent(1, "b"), "b", tnc.Loc{Lnum: 1, Offs: 2})
	tr.Add(key.Inode(2), tnc.Loc{Lnum: 1, Offs: 3})

	k, name, _, err := tr.NextEnt(key.New(1, key.TypeDent, 0), "")
	require.NoError(t, err)
	_ = k
	_ = name

	_, _, _, err = tr.NextEnt(key.Dent(1, "b"), "b")
	assert.ErrorIs(t, err, tnc.ErrNotFound)
}

func TestHasNode(t *testing.T) {
	tr := tnc.New()
	k := key.Inode(9)
	tr.Add(k, tnc.Loc{Lnum: 4, Offs: 0})

	assert.True(t, tr.HasNode(k, 4, 0))
	assert.False(t, tr.HasNode(k, 4, 1))
}

func TestBuildFromLeavesFoldsBottomUp(t *testing.T) {
	tr := tnc.New()
	for i := uint32(0); i < 9; i++ {
		tr.Add(key.Inode(i), tnc.Loc{Lnum: int(i), Offs: 0, Len: 32})
	}

	root := tr.BuildFromLeaves(4)
	require.NotNil(t, root)

	var leaves int
	err := tnc.WalkIndex(root, nil, func(b tnc.Branch) error {
		leaves++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 9, leaves)
}

func TestWalkIndexVisitsZnodesBeforeTheirLeaves(t *testing.T) {
	tr := tnc.New()
	for i := uint32(0); i < 5; i++ {
		tr.Add(key.Inode(i), tnc.Loc{Lnum: int(i)})
	}
	root := tr.BuildFromLeaves(2)

	var znodeCount, leafCount int
	err := tnc.WalkIndex(root,
		func(z *tnc.Znode) error { znodeCount++; return nil },
		func(b tnc.Branch) error { leafCount++; return nil },
	)

	require.NoError(t, err)
	assert.Equal(t, 5, leafCount)
	assert.Greater(t, znodeCount, 0)
}
