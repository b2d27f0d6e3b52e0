package page

import "encoding/binary"

// Root is the body of page 0, always TypeRoot (spec §6).
//
// Layout: first_tmbst:u64 | master_lsn:u64
type Root struct {
	FirstTombstone Pgno
	MasterLSN      LSN
}

const (
	rootOffFirstTmbst = 0
	rootOffMasterLSN  = 8
)

// DecodeRoot reads the Root body out of p. p must be TypeRoot.
func DecodeRoot(p *Page) (Root, error) {
	if p.Type() != TypeRoot {
		return Root{}, ErrWrongType
	}
	b := p.Body()
	return Root{
		FirstTombstone: Pgno(binary.LittleEndian.Uint64(b[rootOffFirstTmbst:])),
		MasterLSN:      LSN(binary.LittleEndian.Uint64(b[rootOffMasterLSN:])),
	}, nil
}

// EncodeRoot writes r into p's body and sets p's type to TypeRoot.
func EncodeRoot(p *Page, r Root) {
	p.SetType(TypeRoot)
	b := p.Body()
	binary.LittleEndian.PutUint64(b[rootOffFirstTmbst:], uint64(r.FirstTombstone))
	binary.LittleEndian.PutUint64(b[rootOffMasterLSN:], uint64(r.MasterLSN))
}
