package page

import "encoding/binary"

const tombstoneOffNext = 0

// Tombstone is the body of a TOMBSTONE page: a page currently on the
// free list. Next points at the next tombstone in the chain (toward the
// tail of the list, away from ROOT.first_tmbst), or Null if this is the
// last free page.
type Tombstone struct {
	Next Pgno
}

// DecodeTombstone reads the Tombstone body out of p. p must be TypeTombstone.
func DecodeTombstone(p *Page) (Tombstone, error) {
	if p.Type() != TypeTombstone {
		return Tombstone{}, ErrWrongType
	}
	b := p.Body()
	return Tombstone{Next: Pgno(binary.LittleEndian.Uint64(b[tombstoneOffNext:]))}, nil
}

// EncodeTombstone writes t into p's body and sets p's type to TypeTombstone.
func EncodeTombstone(p *Page, t Tombstone) {
	p.SetType(TypeTombstone)
	b := p.Body()
	binary.LittleEndian.PutUint64(b[tombstoneOffNext:], uint64(t.Next))
}
