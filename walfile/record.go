// Package walfile implements the append-only write-ahead log: the seven
// record variants recovery replays, their CRC32-checked wire encoding,
// and the file that stores them (spec §3, §6).
package walfile

import (
	"encoding/binary"

	"github.com/intellect4all/numstore/page"
	"github.com/intellect4all/numstore/pkgerr"
)

// Type tags a WAL record's variant.
type Type byte

const (
	TypeBegin Type = iota + 1
	TypeUpdate
	TypeCLR
	TypeCommit
	TypeEnd
	TypeCkptBegin
	TypeCkptEnd
)

func (t Type) String() string {
	switch t {
	case TypeBegin:
		return "BEGIN"
	case TypeUpdate:
		return "UPDATE"
	case TypeCLR:
		return "CLR"
	case TypeCommit:
		return "COMMIT"
	case TypeEnd:
		return "END"
	case TypeCkptBegin:
		return "CKPT_BEGIN"
	case TypeCkptEnd:
		return "CKPT_END"
	default:
		return "UNKNOWN"
	}
}

// TxnID identifies a transaction across its BEGIN/UPDATE*/COMMIT/END
// chain of records.
type TxnID uint64

// AttEntry is one row of the active-transaction-table snapshot a
// CKPT_END record carries: spec §3's transaction table, serialized.
type AttEntry struct {
	Tid     TxnID
	State   uint8 // mirrors the runtime txn.State encoding
	LastLSN page.LSN
}

// DptEntry is one row of the dirty-page-table snapshot a CKPT_END
// record carries.
type DptEntry struct {
	Pgno  page.Pgno
	RecLSN page.LSN
}

// Record is a single WAL entry. Only the fields relevant to Type are
// meaningful; the zero value of the rest is ignored by Encode.
type Record struct {
	Type Type

	Tid  TxnID
	Prev page.LSN // prev_lsn: this transaction's previous record LSN

	Pgno       page.Pgno
	UndoImage  []byte // exactly page.Size bytes when present
	RedoImage  []byte // exactly page.Size bytes when present
	UndoNextLSN page.LSN // CLR only, != 0

	Att []AttEntry // CKPT_END only
	Dpt []DptEntry // CKPT_END only

	// LSN is the byte offset this record was written at. Populated by
	// Append/decode, not by the caller.
	LSN page.LSN
}

const (
	attEntrySize = 8 + 1 + 8  // tid + state + last_lsn
	dptEntrySize = 8 + 8      // pgno + recLSN
)

// payloadLen returns the encoded payload length for r, not counting the
// leading type byte or the trailing CRC32.
func payloadLen(r *Record) int {
	switch r.Type {
	case TypeBegin:
		return 8
	case TypeCommit, TypeEnd:
		return 16
	case TypeUpdate:
		return 8 + 8 + 8 + page.Size + page.Size
	case TypeCLR:
		return 8 + 8 + 8 + 8 + page.Size
	case TypeCkptBegin:
		return 0
	case TypeCkptEnd:
		return 4 + 4 + len(r.Att)*attEntrySize + len(r.Dpt)*dptEntrySize
	default:
		return -1
	}
}

// Encode serializes r as type:u8 | payload | crc32:u32, per §6.
func Encode(r *Record) ([]byte, error) {
	pl := payloadLen(r)
	if pl < 0 {
		return nil, pkgerr.New(pkgerr.InvalidArgument, "walfile: unknown record type")
	}
	if r.Type == TypeUpdate && (len(r.UndoImage) != page.Size || len(r.RedoImage) != page.Size) {
		return nil, pkgerr.New(pkgerr.InvalidArgument, "walfile: UPDATE images must be exactly page.Size")
	}
	if r.Type == TypeCLR && len(r.RedoImage) != page.Size {
		return nil, pkgerr.New(pkgerr.InvalidArgument, "walfile: CLR redo image must be exactly page.Size")
	}

	buf := make([]byte, 1+pl+4)
	buf[0] = byte(r.Type)
	body := buf[1 : 1+pl]

	switch r.Type {
	case TypeBegin:
		binary.LittleEndian.PutUint64(body[0:8], uint64(r.Tid))
	case TypeCommit, TypeEnd:
		binary.LittleEndian.PutUint64(body[0:8], uint64(r.Tid))
		binary.LittleEndian.PutUint64(body[8:16], uint64(r.Prev))
	case TypeUpdate:
		binary.LittleEndian.PutUint64(body[0:8], uint64(r.Tid))
		binary.LittleEndian.PutUint64(body[8:16], uint64(r.Prev))
		binary.LittleEndian.PutUint64(body[16:24], uint64(r.Pgno))
		copy(body[24:24+page.Size], r.UndoImage)
		copy(body[24+page.Size:24+2*page.Size], r.RedoImage)
	case TypeCLR:
		binary.LittleEndian.PutUint64(body[0:8], uint64(r.Tid))
		binary.LittleEndian.PutUint64(body[8:16], uint64(r.Prev))
		binary.LittleEndian.PutUint64(body[16:24], uint64(r.Pgno))
		binary.LittleEndian.PutUint64(body[24:32], uint64(r.UndoNextLSN))
		copy(body[32:32+page.Size], r.RedoImage)
	case TypeCkptBegin:
		// no payload
	case TypeCkptEnd:
		binary.LittleEndian.PutUint32(body[0:4], uint32(len(r.Att)))
		binary.LittleEndian.PutUint32(body[4:8], uint32(len(r.Dpt)))
		off := 8
		for _, e := range r.Att {
			binary.LittleEndian.PutUint64(body[off:off+8], uint64(e.Tid))
			body[off+8] = e.State
			binary.LittleEndian.PutUint64(body[off+9:off+17], uint64(e.LastLSN))
			off += attEntrySize
		}
		for _, e := range r.Dpt {
			binary.LittleEndian.PutUint64(body[off:off+8], uint64(e.Pgno))
			binary.LittleEndian.PutUint64(body[off+8:off+16], uint64(e.RecLSN))
			off += dptEntrySize
		}
	}

	binary.LittleEndian.PutUint32(buf[1+pl:], crc(buf[:1+pl]))
	return buf, nil
}

// Decode parses a record from buf, which must contain exactly the bytes
// of one record (type + payload + crc32, no more, no less). It returns
// pkgerr.Corrupt if the CRC does not match, matching the teacher's
// decodeRecord "corrupted record" behavior.
func Decode(buf []byte) (*Record, error) {
	if len(buf) < 5 {
		return nil, pkgerr.New(pkgerr.Corrupt, "walfile: record too short")
	}
	r := &Record{Type: Type(buf[0])}
	pl := payloadLen(r)
	if pl < 0 {
		return nil, pkgerr.New(pkgerr.Corrupt, "walfile: unknown record type")
	}
	if r.Type == TypeCkptEnd && len(buf) >= 1+8 {
		nAtt := binary.LittleEndian.Uint32(buf[1:5])
		nDpt := binary.LittleEndian.Uint32(buf[5:9])
		pl = 8 + int(nAtt)*attEntrySize + int(nDpt)*dptEntrySize
	}
	if len(buf) != 1+pl+4 {
		return nil, pkgerr.New(pkgerr.Corrupt, "walfile: record length mismatch for type")
	}
	body := buf[1 : 1+pl]

	switch r.Type {
	case TypeBegin:
		r.Tid = TxnID(binary.LittleEndian.Uint64(body[0:8]))
	case TypeCommit, TypeEnd:
		r.Tid = TxnID(binary.LittleEndian.Uint64(body[0:8]))
		r.Prev = page.LSN(binary.LittleEndian.Uint64(body[8:16]))
	case TypeUpdate:
		r.Tid = TxnID(binary.LittleEndian.Uint64(body[0:8]))
		r.Prev = page.LSN(binary.LittleEndian.Uint64(body[8:16]))
		r.Pgno = page.Pgno(binary.LittleEndian.Uint64(body[16:24]))
		r.UndoImage = append([]byte(nil), body[24:24+page.Size]...)
		r.RedoImage = append([]byte(nil), body[24+page.Size:24+2*page.Size]...)
	case TypeCLR:
		r.Tid = TxnID(binary.LittleEndian.Uint64(body[0:8]))
		r.Prev = page.LSN(binary.LittleEndian.Uint64(body[8:16]))
		r.Pgno = page.Pgno(binary.LittleEndian.Uint64(body[16:24]))
		r.UndoNextLSN = page.LSN(binary.LittleEndian.Uint64(body[24:32]))
		r.RedoImage = append([]byte(nil), body[32:32+page.Size]...)
	case TypeCkptBegin:
		// no payload
	case TypeCkptEnd:
		nAtt := binary.LittleEndian.Uint32(body[0:4])
		nDpt := binary.LittleEndian.Uint32(body[4:8])
		off := 8
		if nAtt > 0 {
			r.Att = make([]AttEntry, nAtt)
		}
		for i := range r.Att {
			r.Att[i].Tid = TxnID(binary.LittleEndian.Uint64(body[off : off+8]))
			r.Att[i].State = body[off+8]
			r.Att[i].LastLSN = page.LSN(binary.LittleEndian.Uint64(body[off+9 : off+17]))
			off += attEntrySize
		}
		if nDpt > 0 {
			r.Dpt = make([]DptEntry, nDpt)
		}
		for i := range r.Dpt {
			r.Dpt[i].Pgno = page.Pgno(binary.LittleEndian.Uint64(body[off : off+8]))
			r.Dpt[i].RecLSN = page.LSN(binary.LittleEndian.Uint64(body[off+8 : off+16]))
			off += dptEntrySize
		}
	}

	want := binary.LittleEndian.Uint32(buf[1+pl:])
	if got := crc(buf[:1+pl]); got != want {
		return nil, pkgerr.New(pkgerr.Corrupt, "walfile: checksum mismatch")
	}
	return r, nil
}
