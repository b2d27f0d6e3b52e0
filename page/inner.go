package page

import "encoding/binary"

const (
	innerOffPrev    = 0
	innerOffNext    = 8
	innerOffNum     = 16
	innerHeaderLen  = 18
	innerEntrySize  = 16 // key:u64 + leaf:u64
)

// M is the maximum number of (key, leaf) entries an inner node can carry.
var M = (BodySize - innerHeaderLen) / innerEntrySize

// InnerEntry is one (cumulative-size key, child page) pair in an inner
// node. Entries are ordered by position in the leaf chain, not by key
// value (spec §3: "entries are ordered logically by position in the leaf
// chain").
type InnerEntry struct {
	Key  uint64 // total byte size of the subtree rooted at Leaf
	Leaf Pgno
}

// Inner is the body of an INNER page: one layer of the rp-tree above the
// data-list leaves (or above another inner layer).
type Inner struct {
	Prev    Pgno
	Next    Pgno
	Entries []InnerEntry // len() <= M
}

// DecodeInner reads the Inner body out of p. p must be TypeInner.
func DecodeInner(p *Page) (*Inner, error) {
	if p.Type() != TypeInner {
		return nil, ErrWrongType
	}
	b := p.Body()
	n := binary.LittleEndian.Uint16(b[innerOffNum:])
	in := &Inner{
		Prev:    Pgno(binary.LittleEndian.Uint64(b[innerOffPrev:])),
		Next:    Pgno(binary.LittleEndian.Uint64(b[innerOffNext:])),
		Entries: make([]InnerEntry, n),
	}
	for i := 0; i < int(n); i++ {
		off := innerHeaderLen + i*innerEntrySize
		in.Entries[i] = InnerEntry{
			Key:  binary.LittleEndian.Uint64(b[off:]),
			Leaf: Pgno(binary.LittleEndian.Uint64(b[off+8:])),
		}
	}
	return in, nil
}

// EncodeInner writes in into p's body and sets p's type to TypeInner.
// It panics if len(in.Entries) > M — callers must keep nodes within
// capacity before encoding (the rebalancer never encodes an over-full
// node; see spec §9's note on transient invalid states living only in
// node_updates, never in an observable page).
func EncodeInner(p *Page, in *Inner) {
	if len(in.Entries) > M {
		panic("page: inner node entries exceed M")
	}
	p.SetType(TypeInner)
	b := p.Body()
	binary.LittleEndian.PutUint64(b[innerOffPrev:], uint64(in.Prev))
	binary.LittleEndian.PutUint64(b[innerOffNext:], uint64(in.Next))
	binary.LittleEndian.PutUint16(b[innerOffNum:], uint16(len(in.Entries)))
	for i, e := range in.Entries {
		off := innerHeaderLen + i*innerEntrySize
		binary.LittleEndian.PutUint64(b[off:], e.Key)
		binary.LittleEndian.PutUint64(b[off+8:], uint64(e.Leaf))
	}
}

// TotalSize returns the sum of every entry's Key, i.e. the total byte
// size of the subtree rooted at this node.
func (in *Inner) TotalSize() uint64 {
	var total uint64
	for _, e := range in.Entries {
		total += e.Key
	}
	return total
}

// IndexOfLeaf returns the index of the entry whose Leaf equals pgno, or
// -1 if not present. Inner node invariant: no duplicate leaf within a
// node, so this is well-defined.
func (in *Inner) IndexOfLeaf(pgno Pgno) int {
	for i, e := range in.Entries {
		if e.Leaf == pgno {
			return i
		}
	}
	return -1
}
