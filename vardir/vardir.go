// Package vardir resolves a variable name to its RPT_ROOT page number
// through the VAR_HASH bucket table (page 1) and the chained VAR_HEAD/
// VAR_TAIL pages each bucket holds (spec §4.9). Grounded on
// original_source's var_cursor.c (vpc_new/vpc_get/vpc_delete): walk a
// bucket's VAR_HEAD chain comparing name bytes — read across VAR_TAIL
// overflow when the name+type payload doesn't fit inline — and insert or
// unlink at the bucket head or mid-chain.
package vardir

import (
	"bytes"

	"github.com/intellect4all/numstore/page"
	"github.com/intellect4all/numstore/pager"
	"github.com/intellect4all/numstore/pkgerr"
	"github.com/intellect4all/numstore/walfile"
)

// Entry is what Get resolves a variable name to.
type Entry struct {
	Root     page.Pgno
	TypeInfo []byte
}

func errNotExist(name string) error {
	return pkgerr.New(pkgerr.VariableNotExist, "vardir: variable "+name+" does not exist")
}

// payload concatenates a variable's name and serialized type info into
// the single byte run a VAR_HEAD/VAR_TAIL chain carries, name first.
func payload(name string, typeInfo []byte) []byte {
	buf := make([]byte, len(name)+len(typeInfo))
	copy(buf, name)
	copy(buf[len(name):], typeInfo)
	return buf
}

// readPayload reads the first nameLen+typeLen bytes of headPgno's
// name+type chain, following VAR_TAIL overflow pages as needed.
func readPayload(p *pager.Pager, headPgno page.Pgno, nameLen, typeLen uint16) ([]byte, error) {
	total := int(nameLen) + int(typeLen)
	out := make([]byte, 0, total)

	head, err := p.Get(headPgno, page.MaskOf(page.TypeVarHead))
	if err != nil {
		return nil, err
	}
	vh, err := page.DecodeVarHead(head)
	if err != nil {
		p.Release(headPgno, page.MaskOf(page.TypeVarHead))
		return nil, err
	}
	n := min(total, len(vh.Inline))
	out = append(out, vh.Inline[:n]...)
	next := vh.Tail
	if err := p.Release(headPgno, page.MaskOf(page.TypeVarHead)); err != nil {
		return nil, err
	}

	for len(out) < total {
		if next == page.Null {
			return nil, pkgerr.New(pkgerr.Corrupt, "vardir: name/type chain ended early")
		}
		tailPg, err := p.Get(next, page.MaskOf(page.TypeVarTail))
		if err != nil {
			return nil, err
		}
		vt, err := page.DecodeVarTail(tailPg)
		if err != nil {
			p.Release(next, page.MaskOf(page.TypeVarTail))
			return nil, err
		}
		take := min(total-len(out), len(vt.Payload))
		out = append(out, vt.Payload[:take]...)
		thisNext := vt.Next
		if err := p.Release(next, page.MaskOf(page.TypeVarTail)); err != nil {
			return nil, err
		}
		next = thisNext
	}
	return out, nil
}

// writePayload writes data (name+type already concatenated) into
// headPgno's inline region, allocating as many VAR_TAIL overflow pages
// as are needed for the remainder and chaining them via head.Tail.
func writePayload(p *pager.Pager, tid walfile.TxnID, headPgno page.Pgno, data []byte) error {
	headPart := data
	var overflow []byte
	if len(data) > page.VarHeadInlineCap {
		headPart = data[:page.VarHeadInlineCap]
		overflow = data[page.VarHeadInlineCap:]
	}

	var tailPgnos []page.Pgno
	var tailHandles []*page.Page
	for off := 0; off < len(overflow); off += page.VarTailCap {
		tp, err := p.New(tid, page.TypeVarTail)
		if err != nil {
			return err
		}
		tailHandles = append(tailHandles, tp)
		tailPgnos = append(tailPgnos, tp.Pgno)
	}

	for i, off := 0, 0; i < len(tailHandles); i++ {
		end := min(off+page.VarTailCap, len(overflow))
		next := page.Null
		if i+1 < len(tailPgnos) {
			next = tailPgnos[i+1]
		}
		vt := page.VarTail{Next: next}
		copy(vt.Payload[:], overflow[off:end])
		page.EncodeVarTail(tailHandles[i], &vt)
		if err := p.Release(tailPgnos[i], page.MaskOf(page.TypeVarTail)); err != nil {
			return err
		}
		off = end
	}

	headTail := page.Null
	if len(tailPgnos) > 0 {
		headTail = tailPgnos[0]
	}

	hp, err := p.GetWritable(headPgno, page.MaskOf(page.TypeVarHead), tid)
	if err != nil {
		return err
	}
	vh, err := page.DecodeVarHead(hp)
	if err != nil {
		p.Release(headPgno, page.MaskOf(page.TypeVarHead))
		return err
	}
	copy(vh.Inline[:], headPart)
	vh.Tail = headTail
	page.EncodeVarHead(hp, vh)
	return p.Release(headPgno, page.MaskOf(page.TypeVarHead))
}

// nameMatches reports whether headPgno's stored name equals name,
// returning the decoded VAR_HEAD body either way (the caller needs its
// Next pointer to keep walking on a miss).
func nameMatches(p *pager.Pager, headPgno page.Pgno, name string) (bool, *page.VarHead, error) {
	head, err := p.Get(headPgno, page.MaskOf(page.TypeVarHead))
	if err != nil {
		return false, nil, err
	}
	vh, err := page.DecodeVarHead(head)
	if err != nil {
		p.Release(headPgno, page.MaskOf(page.TypeVarHead))
		return false, nil, err
	}
	if err := p.Release(headPgno, page.MaskOf(page.TypeVarHead)); err != nil {
		return false, nil, err
	}
	if int(vh.NameLen) != len(name) {
		return false, vh, nil
	}
	nameBytes, err := readPayload(p, headPgno, vh.NameLen, 0)
	if err != nil {
		return false, vh, err
	}
	return bytes.Equal(nameBytes, []byte(name)), vh, nil
}

func bucketHead(p *pager.Pager, bucket int) (page.Pgno, error) {
	vhPage, err := p.Get(1, page.MaskOf(page.TypeVarHash))
	if err != nil {
		return page.Null, err
	}
	vh, err := page.DecodeVarHash(vhPage)
	if err != nil {
		p.Release(1, page.MaskOf(page.TypeVarHash))
		return page.Null, err
	}
	if err := p.Release(1, page.MaskOf(page.TypeVarHash)); err != nil {
		return page.Null, err
	}
	return vh.Buckets[bucket], nil
}

func setBucketHead(p *pager.Pager, tid walfile.TxnID, bucket int, head page.Pgno) error {
	hp, err := p.GetWritable(1, page.MaskOf(page.TypeVarHash), tid)
	if err != nil {
		return err
	}
	vh, err := page.DecodeVarHash(hp)
	if err != nil {
		p.Release(1, page.MaskOf(page.TypeVarHash))
		return err
	}
	vh.Buckets[bucket] = head
	page.EncodeVarHash(hp, vh)
	return p.Release(1, page.MaskOf(page.TypeVarHash))
}

// New resolves name's bucket, walks the chain rejecting a duplicate, and
// appends a fresh VAR_HEAD carrying root and typeInfo, linking it onto
// the bucket (at the head, if the bucket was empty, or onto the tail
// node's Next otherwise).
func New(p *pager.Pager, tid walfile.TxnID, name string, typeInfo []byte, root page.Pgno) error {
	if len(name) == 0 || len(name) >= page.MaxVSTR {
		return pkgerr.New(pkgerr.InvalidArgument, "vardir: invalid variable name length")
	}
	bucket := page.Bucket(name)

	head, err := bucketHead(p, bucket)
	if err != nil {
		return err
	}

	prevPgno := page.Null
	cur := head
	for cur != page.Null {
		match, vh, err := nameMatches(p, cur, name)
		if err != nil {
			return err
		}
		if match {
			return pkgerr.New(pkgerr.DuplicateVariable, "vardir: variable "+name+" already exists")
		}
		prevPgno = cur
		cur = vh.Next
	}

	newHead, err := p.New(tid, page.TypeVarHead)
	if err != nil {
		return err
	}
	newPgno := newHead.Pgno
	body := page.VarHead{
		NameLen: uint16(len(name)),
		TypeLen: uint16(len(typeInfo)),
		Root:    root,
		Next:    page.Null,
		Tail:    page.Null,
	}
	page.EncodeVarHead(newHead, &body)
	if err := p.Release(newPgno, page.MaskOf(page.TypeVarHead)); err != nil {
		return err
	}

	if prevPgno == page.Null {
		if err := setBucketHead(p, tid, bucket, newPgno); err != nil {
			return err
		}
	} else {
		pp, err := p.GetWritable(prevPgno, page.MaskOf(page.TypeVarHead), tid)
		if err != nil {
			return err
		}
		pb, err := page.DecodeVarHead(pp)
		if err != nil {
			p.Release(prevPgno, page.MaskOf(page.TypeVarHead))
			return err
		}
		pb.Next = newPgno
		page.EncodeVarHead(pp, pb)
		if err := p.Release(prevPgno, page.MaskOf(page.TypeVarHead)); err != nil {
			return err
		}
	}

	return writePayload(p, tid, newPgno, payload(name, typeInfo))
}

// Get resolves name to its stored RPT_ROOT page and type info.
func Get(p *pager.Pager, name string) (Entry, error) {
	bucket := page.Bucket(name)
	head, err := bucketHead(p, bucket)
	if err != nil {
		return Entry{}, err
	}

	cur := head
	for cur != page.Null {
		match, vh, err := nameMatches(p, cur, name)
		if err != nil {
			return Entry{}, err
		}
		if match {
			full, err := readPayload(p, cur, vh.NameLen, vh.TypeLen)
			if err != nil {
				return Entry{}, err
			}
			return Entry{Root: vh.Root, TypeInfo: append([]byte(nil), full[vh.NameLen:]...)}, nil
		}
		cur = vh.Next
	}
	return Entry{}, errNotExist(name)
}

// Delete unlinks name's VAR_HEAD from its bucket chain (rewriting the
// bucket head or the previous node's Next) and tombstones the entire
// chain: the VAR_HEAD and every VAR_TAIL overflow page behind it.
func Delete(p *pager.Pager, tid walfile.TxnID, name string) error {
	bucket := page.Bucket(name)
	head, err := bucketHead(p, bucket)
	if err != nil {
		return err
	}

	prevPgno := page.Null
	cur := head
	for cur != page.Null {
		match, vh, err := nameMatches(p, cur, name)
		if err != nil {
			return err
		}
		if match {
			if prevPgno == page.Null {
				if err := setBucketHead(p, tid, bucket, vh.Next); err != nil {
					return err
				}
			} else {
				pp, err := p.GetWritable(prevPgno, page.MaskOf(page.TypeVarHead), tid)
				if err != nil {
					return err
				}
				pb, err := page.DecodeVarHead(pp)
				if err != nil {
					p.Release(prevPgno, page.MaskOf(page.TypeVarHead))
					return err
				}
				pb.Next = vh.Next
				page.EncodeVarHead(pp, pb)
				if err := p.Release(prevPgno, page.MaskOf(page.TypeVarHead)); err != nil {
					return err
				}
			}
			return deleteChain(p, tid, cur)
		}
		prevPgno = cur
		cur = vh.Next
	}
	return errNotExist(name)
}

// deleteChain tombstones headPgno and every VAR_TAIL overflow page
// chained behind it via Tail/Next.
func deleteChain(p *pager.Pager, tid walfile.TxnID, headPgno page.Pgno) error {
	head, err := p.GetWritable(headPgno, page.MaskOf(page.TypeVarHead), tid)
	if err != nil {
		return err
	}
	vh, err := page.DecodeVarHead(head)
	if err != nil {
		p.Release(headPgno, page.MaskOf(page.TypeVarHead))
		return err
	}
	tail := vh.Tail
	if err := p.DeleteAndRelease(headPgno, tid); err != nil {
		return err
	}

	for tail != page.Null {
		tp, err := p.GetWritable(tail, page.MaskOf(page.TypeVarTail), tid)
		if err != nil {
			return err
		}
		vt, err := page.DecodeVarTail(tp)
		if err != nil {
			p.Release(tail, page.MaskOf(page.TypeVarTail))
			return err
		}
		next := vt.Next
		if err := p.DeleteAndRelease(tail, tid); err != nil {
			return err
		}
		tail = next
	}
	return nil
}
