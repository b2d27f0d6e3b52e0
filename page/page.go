// Package page implements the fixed-size page format and per-page-type
// body codecs the storage engine persists to the data file (spec §3, §6).
//
// Every page is exactly Size bytes. The first HeaderSize bytes are a
// common header (type tag + per-page LSN); everything after that is a
// type-specific body decoded by the Root/VarHash/VarHead/VarTail/Inner/
// DataList/Tombstone/RPTRoot codecs in this package. All multi-byte
// integers are little-endian per spec §6.
package page

import "encoding/binary"

// Size is the fixed page size. The spec calls this P; 4 KiB matches the
// teacher's btree.PageSize and the common OS page size.
const Size = 4096

// Pgno identifies a page by its 0-based position in the data file.
type Pgno uint64

// Null is the sentinel "no page" value (spec §6: "PGNO_NULL is all-ones").
const Null Pgno = ^Pgno(0)

// LSN is a monotonically increasing log sequence number / byte offset
// into the WAL file.
type LSN uint64

// Type tags a page's body layout.
type Type byte

const (
	TypeRoot Type = iota
	TypeVarHash
	TypeVarHead
	TypeVarTail
	TypeInner
	TypeDataList
	TypeTombstone
	TypeRPTRoot
)

func (t Type) String() string {
	switch t {
	case TypeRoot:
		return "ROOT"
	case TypeVarHash:
		return "VAR_HASH"
	case TypeVarHead:
		return "VAR_HEAD"
	case TypeVarTail:
		return "VAR_TAIL"
	case TypeInner:
		return "INNER"
	case TypeDataList:
		return "DATA_LIST"
	case TypeTombstone:
		return "TOMBSTONE"
	case TypeRPTRoot:
		return "RPT_ROOT"
	default:
		return "UNKNOWN"
	}
}

// TypeMask is a bitmask of acceptable page types, used by the pager's Get
// to validate that a fetched page is one of the types the caller expects.
type TypeMask uint16

func MaskOf(types ...Type) TypeMask {
	var m TypeMask
	for _, t := range types {
		m |= 1 << uint(t)
	}
	return m
}

func (m TypeMask) Has(t Type) bool { return m&(1<<uint(t)) != 0 }

const (
	// HeaderSize is the 9-byte common header: type(1) + lsn(8).
	HeaderSize = 1 + 8

	offsetType = 0
	offsetLSN  = 1

	// BodySize is the number of bytes available to a type-specific body.
	BodySize = Size - HeaderSize
)

// Page is one fixed-size page: its identity (Pgno, not itself persisted
// inside the page body — it's implied by file position), and the raw
// Size-byte buffer other codecs in this package encode into / decode
// from.
type Page struct {
	Pgno Pgno
	Buf  [Size]byte
}

// New creates a zeroed page of the given type, ready for a body codec to
// populate.
func New(pgno Pgno, t Type) *Page {
	p := &Page{Pgno: pgno}
	p.Buf[offsetType] = byte(t)
	return p
}

// FromBytes wraps an existing Size-byte buffer (e.g. just read from disk)
// as a Page without copying semantics beyond the fixed array assignment.
func FromBytes(pgno Pgno, data []byte) (*Page, error) {
	if len(data) != Size {
		return nil, ErrBadPageSize
	}
	p := &Page{Pgno: pgno}
	copy(p.Buf[:], data)
	return p, nil
}

// Type returns the page's type tag.
func (p *Page) Type() Type { return Type(p.Buf[offsetType]) }

// SetType overwrites the page's type tag. Used when a freed page is
// converted to TOMBSTONE, or a tombstone is popped and reinitialized as
// some other type.
func (p *Page) SetType(t Type) { p.Buf[offsetType] = byte(t) }

// LSN returns the page's per-page LSN (the LSN of the last WAL record
// that was applied to this page's current on-disk image).
func (p *Page) LSN() LSN { return LSN(binary.LittleEndian.Uint64(p.Buf[offsetLSN:])) }

// SetLSN sets the page's per-page LSN.
func (p *Page) SetLSN(l LSN) { binary.LittleEndian.PutUint64(p.Buf[offsetLSN:], uint64(l)) }

// Body returns the mutable type-specific body slice (everything after the
// common header).
func (p *Page) Body() []byte { return p.Buf[HeaderSize:] }

// Bytes returns the full Size-byte on-disk image, header included.
func (p *Page) Bytes() []byte { return p.Buf[:] }

// Clone returns a deep copy of the page, used by the pager/WAL to capture
// undo/redo images before/after a mutation.
func (p *Page) Clone() *Page {
	c := &Page{Pgno: p.Pgno}
	c.Buf = p.Buf
	return c
}
