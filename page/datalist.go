package page

import "encoding/binary"

const (
	dataListOffPrev   = 0
	dataListOffNext   = 8
	dataListOffUsed   = 16
	dataListHeaderLen = 18

	// DataListCap is the number of payload bytes one data-list leaf can
	// hold.
	DataListCap = BodySize - dataListHeaderLen
)

// DataList is the body of a DATA_LIST page: the bottom layer of the
// rp-tree, holding raw variable-payload bytes plus sibling links.
type DataList struct {
	Prev    Pgno
	Next    Pgno
	Used    uint16 // bytes of Payload currently in use, from index 0
	Payload [DataListCap]byte
}

// DecodeDataList reads the DataList body out of p. p must be TypeDataList.
func DecodeDataList(p *Page) (*DataList, error) {
	if p.Type() != TypeDataList {
		return nil, ErrWrongType
	}
	b := p.Body()
	dl := &DataList{
		Prev: Pgno(binary.LittleEndian.Uint64(b[dataListOffPrev:])),
		Next: Pgno(binary.LittleEndian.Uint64(b[dataListOffNext:])),
		Used: binary.LittleEndian.Uint16(b[dataListOffUsed:]),
	}
	copy(dl.Payload[:], b[dataListHeaderLen:])
	return dl, nil
}

// EncodeDataList writes dl into p's body and sets p's type to TypeDataList.
func EncodeDataList(p *Page, dl *DataList) {
	p.SetType(TypeDataList)
	b := p.Body()
	binary.LittleEndian.PutUint64(b[dataListOffPrev:], uint64(dl.Prev))
	binary.LittleEndian.PutUint64(b[dataListOffNext:], uint64(dl.Next))
	binary.LittleEndian.PutUint16(b[dataListOffUsed:], dl.Used)
	copy(b[dataListHeaderLen:], dl.Payload[:])
}

// Size returns the number of used bytes, matching spec §3: "Size of a
// leaf is bytes used".
func (dl *DataList) Size() int { return int(dl.Used) }

// FreeSpace returns how many more bytes can be appended before the leaf
// is full.
func (dl *DataList) FreeSpace() int { return DataListCap - int(dl.Used) }
