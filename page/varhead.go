package page

import "encoding/binary"

const (
	varHeadOffNameLen = 0
	varHeadOffTypeLen = 2
	varHeadOffRoot    = 4
	varHeadOffNext    = 12
	varHeadOffTail    = 20
	varHeadHeaderLen  = 28

	// VarHeadInlineCap is how many name+type payload bytes fit directly
	// in a VAR_HEAD page before spilling into VAR_TAIL overflow pages.
	VarHeadInlineCap = BodySize - varHeadHeaderLen

	// MaxVSTR bounds a variable name's length (spec §4.9).
	MaxVSTR = 1 << 16
)

// VarHead is the body of a VAR_HEAD page: the head of one variable
// record, optionally chained to VAR_TAIL overflow pages when the
// serialised name+type doesn't fit inline.
type VarHead struct {
	NameLen uint16
	TypeLen uint16
	Root    Pgno // RPT_ROOT page of this variable's tree
	Next    Pgno // next VAR_HEAD in this bucket's chain, or Null
	Tail    Pgno // first VAR_TAIL overflow page, or Null
	Inline  [VarHeadInlineCap]byte
}

// DecodeVarHead reads the VarHead body out of p. p must be TypeVarHead.
func DecodeVarHead(p *Page) (*VarHead, error) {
	if p.Type() != TypeVarHead {
		return nil, ErrWrongType
	}
	b := p.Body()
	vh := &VarHead{
		NameLen: binary.LittleEndian.Uint16(b[varHeadOffNameLen:]),
		TypeLen: binary.LittleEndian.Uint16(b[varHeadOffTypeLen:]),
		Root:    Pgno(binary.LittleEndian.Uint64(b[varHeadOffRoot:])),
		Next:    Pgno(binary.LittleEndian.Uint64(b[varHeadOffNext:])),
		Tail:    Pgno(binary.LittleEndian.Uint64(b[varHeadOffTail:])),
	}
	copy(vh.Inline[:], b[varHeadHeaderLen:])
	return vh, nil
}

// EncodeVarHead writes vh into p's body and sets p's type to TypeVarHead.
func EncodeVarHead(p *Page, vh *VarHead) {
	p.SetType(TypeVarHead)
	b := p.Body()
	binary.LittleEndian.PutUint16(b[varHeadOffNameLen:], vh.NameLen)
	binary.LittleEndian.PutUint16(b[varHeadOffTypeLen:], vh.TypeLen)
	binary.LittleEndian.PutUint64(b[varHeadOffRoot:], uint64(vh.Root))
	binary.LittleEndian.PutUint64(b[varHeadOffNext:], uint64(vh.Next))
	binary.LittleEndian.PutUint64(b[varHeadOffTail:], uint64(vh.Tail))
	copy(b[varHeadHeaderLen:], vh.Inline[:])
}

const (
	varTailOffNext   = 0
	varTailHeaderLen = 8

	// VarTailCap is how many overflow payload bytes fit in one VAR_TAIL page.
	VarTailCap = BodySize - varTailHeaderLen
)

// VarTail is the body of a VAR_TAIL overflow page chained off a VAR_HEAD.
type VarTail struct {
	Next    Pgno // next VAR_TAIL in the chain, or Null
	Payload [VarTailCap]byte
}

// DecodeVarTail reads the VarTail body out of p. p must be TypeVarTail.
func DecodeVarTail(p *Page) (*VarTail, error) {
	if p.Type() != TypeVarTail {
		return nil, ErrWrongType
	}
	b := p.Body()
	vt := &VarTail{Next: Pgno(binary.LittleEndian.Uint64(b[varTailOffNext:]))}
	copy(vt.Payload[:], b[varTailHeaderLen:])
	return vt, nil
}

// EncodeVarTail writes vt into p's body and sets p's type to TypeVarTail.
func EncodeVarTail(p *Page, vt *VarTail) {
	p.SetType(TypeVarTail)
	b := p.Body()
	binary.LittleEndian.PutUint64(b[varTailOffNext:], uint64(vt.Next))
	copy(b[varTailHeaderLen:], vt.Payload[:])
}
