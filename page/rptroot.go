package page

import "encoding/binary"

const (
	rptRootOffTop       = 0
	rptRootOffTotalSize = 8
	rptRootOffTopIsLeaf = 16
)

// RPTRoot is the body of an RPT_ROOT page: the root of one variable's
// B+ tree (spec §3: "rooted at an RPT_ROOT page that stores the current
// top-layer page number and the total size").
type RPTRoot struct {
	Top       Pgno // current top-layer page, or Null if the tree is empty
	TotalSize uint64
	// TopIsLeaf is true when Top points directly at a DATA_LIST page
	// (the tree has not yet grown an inner layer) rather than an INNER
	// page. Needed because a one-leaf tree has no inner node to carry
	// that distinction.
	TopIsLeaf bool
}

// DecodeRPTRoot reads the RPTRoot body out of p. p must be TypeRPTRoot.
func DecodeRPTRoot(p *Page) (RPTRoot, error) {
	if p.Type() != TypeRPTRoot {
		return RPTRoot{}, ErrWrongType
	}
	b := p.Body()
	return RPTRoot{
		Top:       Pgno(binary.LittleEndian.Uint64(b[rptRootOffTop:])),
		TotalSize: binary.LittleEndian.Uint64(b[rptRootOffTotalSize:]),
		TopIsLeaf: b[rptRootOffTopIsLeaf] != 0,
	}, nil
}

// EncodeRPTRoot writes r into p's body and sets p's type to TypeRPTRoot.
func EncodeRPTRoot(p *Page, r RPTRoot) {
	p.SetType(TypeRPTRoot)
	b := p.Body()
	binary.LittleEndian.PutUint64(b[rptRootOffTop:], uint64(r.Top))
	binary.LittleEndian.PutUint64(b[rptRootOffTotalSize:], r.TotalSize)
	if r.TopIsLeaf {
		b[rptRootOffTopIsLeaf] = 1
	} else {
		b[rptRootOffTopIsLeaf] = 0
	}
}
