package page

import (
	"encoding/binary"
	"hash/fnv"
)

// NumBuckets is the number of bucket-head slots the VAR_HASH page (page 1)
// carries, sized to fill the page body with 8-byte pgno slots.
const NumBuckets = BodySize / 8

// VarHash is the body of page 1, always TypeVarHash: a fixed-length array
// of bucket heads, each the Pgno of the first VAR_HEAD page in that
// bucket's chain, or Null if the bucket is empty.
type VarHash struct {
	Buckets [NumBuckets]Pgno
}

// Bucket hashes a variable name to a bucket index.
func Bucket(name string) int {
	h := fnv.New64a()
	h.Write([]byte(name))
	return int(h.Sum64() % uint64(NumBuckets))
}

// DecodeVarHash reads the VarHash body out of p. p must be TypeVarHash.
func DecodeVarHash(p *Page) (*VarHash, error) {
	if p.Type() != TypeVarHash {
		return nil, ErrWrongType
	}
	vh := &VarHash{}
	b := p.Body()
	for i := 0; i < NumBuckets; i++ {
		vh.Buckets[i] = Pgno(binary.LittleEndian.Uint64(b[i*8:]))
	}
	return vh, nil
}

// EncodeVarHash writes vh into p's body and sets p's type to TypeVarHash.
func EncodeVarHash(p *Page, vh *VarHash) {
	p.SetType(TypeVarHash)
	b := p.Body()
	for i := 0; i < NumBuckets; i++ {
		binary.LittleEndian.PutUint64(b[i*8:], uint64(vh.Buckets[i]))
	}
}

// NewVarHash returns a VarHash with every bucket initialized to Null.
func NewVarHash() *VarHash {
	vh := &VarHash{}
	for i := range vh.Buckets {
		vh.Buckets[i] = Null
	}
	return vh
}
