package lpt_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ubifsck/ubifsck/internal/lpt"
)

func TestNewAllEmpty(t *testing.T) {
	l := lpt.New(10, 1024, 4, 4)
	p, err := l.Lookup(0)
	require.NoError(t, err)
	assert.Equal(t, lpt.CategoryEmpty, p.Flags)
	assert.Equal(t, uint32(1024), p.Free)
}

func TestChangeCategorizesMainLeb(t *testing.T) {
	l := lpt.New(4, 1024, 4, 4)

	require.NoError(t, l.Change(0, 1024, 0, false, false, 0))
	p, _ := l.Lookup(0)
	assert.Equal(t, lpt.CategoryEmpty, p.Flags)

	require.NoError(t, l.Change(1, 1000, 2, false, false, 22))
	p, _ = l.Lookup(1)
	assert.Equal(t, lpt.CategoryFree, p.Flags)

	require.NoError(t, l.Change(2, 100, 100, false, false, 824))
	p, _ = l.Lookup(2)
	assert.Equal(t, lpt.CategoryDirty, p.Flags)

	require.NoError(t, l.Change(3, 900, 124, false, false, 0))
	p, _ = l.Lookup(3)
	assert.Equal(t, lpt.CategoryFreeable, p.Flags)
}

func TestChangeCategorizesIndexLeb(t *testing.T) {
	l := lpt.New(2, 1024, 4, 100)

	require.NoError(t, l.Change(0, 50, 200, true, false, 774))
	p, _ := l.Lookup(0)
	assert.Equal(t, lpt.CategoryDirtyIndex, p.Flags)

	require.NoError(t, l.Change(1, 50, 50, true, false, 924))
	p, _ = l.Lookup(1)
	assert.Equal(t, lpt.CategoryIndex, p.Flags)
}

func TestChangeRejectsInvariantViolation(t *testing.T) {
	l := lpt.New(1, 1024, 4, 4)
	err := l.Change(0, 100, 100, false, false, 100)
	assert.ErrorIs(t, err, lpt.ErrInvariant)
}

func TestChangeOneReDerivesFromPriorClassification(t *testing.T) {
	l := lpt.New(1, 1024, 4, 100)
	require.NoError(t, l.Change(0, 50, 50, true, false, 924))

	require.NoError(t, l.ChangeOne(0, 50, 200, 774))
	p, _ := l.Lookup(0)
	assert.Equal(t, lpt.CategoryDirtyIndex, p.Flags)
}

func TestUpdateOneOverridesCategory(t *testing.T) {
	l := lpt.New(1, 1024, 4, 4)
	require.NoError(t, l.UpdateOne(0, lpt.CategoryTaken))
	p, _ := l.Lookup(0)
	assert.Equal(t, lpt.CategoryTaken, p.Flags)
}

func TestStatSumsAcrossLebs(t *testing.T) {
	l := lpt.New(2, 1024, 4, 4)
	require.NoError(t, l.Change(0, 1000, 24, false, false, 0))
	require.NoError(t, l.Change(1, 500, 100, false, false, 424))

	s := l.Stat()
	assert.Equal(t, uint64(1500), s.TotalFree)
	assert.Equal(t, uint64(124), s.TotalDirty)
	assert.Equal(t, uint64(424), s.TotalUsed)
}

func TestLookupOutOfRange(t *testing.T) {
	l := lpt.New(1, 1024, 4, 4)
	_, err := l.Lookup(5)
	assert.Error(t, err)
}

func TestBitWriterReaderRoundTrip(t *testing.T) {
	w := lpt.NewBitWriter(64)
	w.Write(5, 3)
	w.Write(100, 7)
	w.Write(1, 1)

	r := lpt.NewBitReader(w.Bytes())
	assert.Equal(t, uint32(5), r.Read(3))
	assert.Equal(t, uint32(100), r.Read(7))
	assert.Equal(t, uint32(1), r.Read(1))
}

func TestBitsFor(t *testing.T) {
	assert.Equal(t, 1, lpt.BitsFor(0))
	assert.Equal(t, 1, lpt.BitsFor(1))
	assert.Equal(t, 2, lpt.BitsFor(2))
	assert.Equal(t, 11, lpt.BitsFor(2047))
}

func TestPackUnpackPnodeRoundTrip(t *testing.T) {
	geom := lpt.CalcLptGeom(8, 4096, 4)
	props := []lpt.Prop{
		{Free: 1000, Dirty: 50, Flags: lpt.CategoryFree},
		{Free: 0, Dirty: 4096, Flags: lpt.CategoryFreeable},
		{Free: 4096, Dirty: 0, Flags: lpt.CategoryEmpty},
		{Free: 200, Dirty: 200, Flags: lpt.CategoryDirty},
	}

	buf := lpt.PackPnode(geom, props)
	got := lpt.UnpackPnode(geom, buf)
	require.Len(t, got, geom.Fanout)
	for i, want := range props {
		assert.Equal(t, want.Free, got[i].Free)
		assert.Equal(t, want.Dirty, got[i].Dirty)
		assert.Equal(t, want.Flags, got[i].Flags)
	}
}

func TestPackUnpackNnodeRoundTrip(t *testing.T) {
	geom := lpt.CalcLptGeom(100, 4096, 4)
	children := []int{3, 17, 42, 99}

	buf := lpt.PackNnode(geom, children)
	got := lpt.UnpackNnode(geom, buf)
	assert.Equal(t, children, got)
}

func TestCalcLptGeomHeightGrowsWithLebCount(t *testing.T) {
	small := lpt.CalcLptGeom(4, 4096, 4)
	assert.Equal(t, 1, small.Height)

	big := lpt.CalcLptGeom(64, 4096, 4)
	assert.Greater(t, big.Height, small.Height)
}

func TestCreateLptProducesOnePnodePerFanoutGroup(t *testing.T) {
	l := lpt.New(10, 4096, 4, 4)
	geom, pnodes, err := lpt.CreateLpt(l, 4)
	require.NoError(t, err)
	assert.Equal(t, 3, len(pnodes)) // ceil(10/4)
	assert.Equal(t, geom.PnodeCnt, len(pnodes))
}
