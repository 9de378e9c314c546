package lpt

import "fmt"

// Geom holds the bit-packed LPT geometry derived from volume size,
// matching spec.md §4.4's "large" on-flash LPT layout: a pnode holds
// FANOUT per-LEB entries, an nnode holds FANOUT child pointers, and the
// tree has as many levels as needed to cover every LEB.
type Geom struct {
	Fanout      int
	LebCnt      int
	LebSize     uint32
	FreeBits    int // width of a pnode's free field
	DirtyBits   int // width of a pnode's dirty field
	LnumBits    int // width of an lsave/ltab LEB-number field
	PnodeCnt    int
	NnodeCnt    int
	Height      int
}

// CalcLptGeom derives the packed-tree geometry for a volume of lebCnt
// LEBs of lebSize bytes, fanning out fanout-wide at every tree level.
func CalcLptGeom(lebCnt int, lebSize uint32, fanout int) Geom {
	if fanout < 2 {
		fanout = 2
	}
	lnumMax := uint32(0)
	if lebCnt > 0 {
		lnumMax = uint32(lebCnt - 1)
	}
	g := Geom{
		Fanout:    fanout,
		LebCnt:    lebCnt,
		LebSize:   lebSize,
		FreeBits:  BitsFor(lebSize),
		DirtyBits: BitsFor(lebSize),
		LnumBits:  BitsFor(lnumMax),
	}
	g.PnodeCnt = (lebCnt + fanout - 1) / fanout
	n := g.PnodeCnt
	height := 1
	for n > 1 {
		n = (n + fanout - 1) / fanout
		g.NnodeCnt += n
		height++
	}
	g.Height = height
	return g
}

// PackPnode packs up to geom.Fanout consecutive LEBs' (free, dirty, flags)
// triples into a pnode body. flags is packed as a fixed 4-bit field, wide
// enough for every Category value this package defines.
func PackPnode(geom Geom, props []Prop) []byte {
	w := NewBitWriter(geom.Fanout * (geom.FreeBits + geom.DirtyBits + 4))
	for i := 0; i < geom.Fanout; i++ {
		var p Prop
		if i < len(props) {
			p = props[i]
		}
		w.Write(p.Free, geom.FreeBits)
		w.Write(p.Dirty, geom.DirtyBits)
		w.Write(uint32(p.Flags), 4)
	}
	return w.Bytes()
}

// UnpackPnode is PackPnode's inverse, reconstructing up to geom.Fanout
// Prop entries from a packed pnode body.
func UnpackPnode(geom Geom, buf []byte) []Prop {
	r := NewBitReader(buf)
	props := make([]Prop, geom.Fanout)
	for i := range props {
		free := r.Read(geom.FreeBits)
		dirty := r.Read(geom.DirtyBits)
		flags := Category(r.Read(4))
		props[i] = Prop{Free: free, Dirty: dirty, Flags: flags}
	}
	return props
}

// PackNnode packs geom.Fanout child LEB numbers (0 for an absent slot)
// into an nnode body.
func PackNnode(geom Geom, children []int) []byte {
	w := NewBitWriter(geom.Fanout * geom.LnumBits)
	for i := 0; i < geom.Fanout; i++ {
		var c int
		if i < len(children) {
			c = children[i]
		}
		w.Write(uint32(c), geom.LnumBits)
	}
	return w.Bytes()
}

// UnpackNnode is PackNnode's inverse.
func UnpackNnode(geom Geom, buf []byte) []int {
	r := NewBitReader(buf)
	children := make([]int, geom.Fanout)
	for i := range children {
		children[i] = int(r.Read(geom.LnumBits))
	}
	return children
}

// PackLtab packs the LEB table — one (free,dirty) pair per LPT-area LEB,
// used at mount time to find the LPT's own free space without walking
// the tree it describes.
func PackLtab(geom Geom, props []Prop) []byte {
	w := NewBitWriter(len(props) * (geom.FreeBits + geom.DirtyBits))
	for _, p := range props {
		w.Write(p.Free, geom.FreeBits)
		w.Write(p.Dirty, geom.DirtyBits)
	}
	return w.Bytes()
}

// PackLsave packs the "save" list of LEB numbers preserved verbatim
// across commits so the allocator has seed candidates without a full
// tree walk immediately after mount.
func PackLsave(geom Geom, lnums []int) []byte {
	w := NewBitWriter(len(lnums) * geom.LnumBits)
	for _, n := range lnums {
		w.Write(uint32(n), geom.LnumBits)
	}
	return w.Bytes()
}

// CreateLpt packs an entire Lpt's current state into per-pnode byte
// slices in LEB order, the "create_lpt" step run once at the end of
// rebuild (spec.md §4.6 stage 11) to produce the written LPT.
func CreateLpt(l *Lpt, fanout int) (Geom, [][]byte, error) {
	if l == nil {
		return Geom{}, nil, fmt.Errorf("lpt: CreateLpt called with nil table")
	}
	geom := CalcLptGeom(len(l.props), l.LebSize, fanout)
	pnodes := make([][]byte, 0, geom.PnodeCnt)
	for i := 0; i < len(l.props); i += fanout {
		end := i + fanout
		if end > len(l.props) {
			end = len(l.props)
		}
		pnodes = append(pnodes, PackPnode(geom, l.props[i:end]))
	}
	return geom, pnodes, nil
}
