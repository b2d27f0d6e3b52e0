package rptree

import (
	"github.com/intellect4all/numstore/page"
	"github.com/intellect4all/numstore/pkgerr"
	"github.com/intellect4all/numstore/stride"
	"github.com/intellect4all/numstore/walfile"
)

// Write overwrites nelems existing elements of size bytes at strided
// absolute positions bstart, bstart+strideBytes, ..., sourced from src in
// order. Total tree size never changes; no rebalancing (spec §4.7.3).
func (t *Tree) Write(tid walfile.TxnID, src []byte, size, bstart, strideBytes, nelems int) error {
	if nelems == 0 {
		return nil
	}
	if ok, err := t.tryWriteSingleLeaf(tid, src, size, bstart, strideBytes, nelems); ok || err != nil {
		return err
	}
	for i := 0; i < nelems; i++ {
		off := bstart + i*strideBytes
		if err := t.writeAt(tid, uint64(off), src[i*size:(i+1)*size]); err != nil {
			return err
		}
	}
	return nil
}

// tryWriteSingleLeaf handles the common case where every strided
// position falls within one leaf, driving the copy through stride.Strinc
// (spec §3.12): src is consumed monotonically while each hop's
// DestOffset jumps to its strided position in the leaf buffer.
func (t *Tree) tryWriteSingleLeaf(tid walfile.TxnID, src []byte, size, bstart, strideBytes, nelems int) (bool, error) {
	_, leafPgno, localOffset, err := t.descend(uint64(bstart))
	if err != nil || leafPgno == page.Null {
		return false, err
	}
	span := localOffset + (nelems-1)*strideBytes + size

	_, peek, err := t.getLeaf(leafPgno)
	if err != nil {
		return false, err
	}
	fits := span <= int(peek.Used)
	if err := t.p.Release(leafPgno, page.MaskOf(page.TypeDataList)); err != nil {
		return false, err
	}
	if !fits {
		return false, nil
	}

	pg, dl, err := t.getLeafWritable(tid, leafPgno)
	if err != nil {
		return false, err
	}

	entries := make([]stride.StrincEntry, nelems)
	for i := range entries {
		entries[i] = stride.StrincEntry{
			Pattern:    stride.AccessPattern{NReads: 1, ReadBytes: size, SkipBytes: 0},
			DestOffset: localOffset + i*strideBytes,
		}
	}
	s := stride.NewStrinc(stride.StrincPlan{Entries: entries})
	s.Step(src, dl.Payload[:])

	page.EncodeDataList(pg, dl)
	return true, t.p.Release(leafPgno, page.MaskOf(page.TypeDataList))
}

func (t *Tree) writeAt(tid walfile.TxnID, offset uint64, data []byte) error {
	written := 0
	for written < len(data) {
		_, leafPgno, localOffset, err := t.descend(offset + uint64(written))
		if err != nil {
			return err
		}
		if leafPgno == page.Null {
			return pkgerr.New(pkgerr.InvalidArgument, "rptree: write past end of tree")
		}
		pg, dl, err := t.getLeafWritable(tid, leafPgno)
		if err != nil {
			return err
		}
		avail := int(dl.Used) - localOffset
		if avail <= 0 {
			t.p.Release(leafPgno, page.MaskOf(page.TypeDataList))
			return pkgerr.New(pkgerr.InvalidArgument, "rptree: write past end of data")
		}
		n := min(avail, len(data)-written)
		copy(dl.Payload[localOffset:localOffset+n], data[written:written+n])
		page.EncodeDataList(pg, dl)
		if err := t.p.Release(leafPgno, page.MaskOf(page.TypeDataList)); err != nil {
			return err
		}
		written += n
	}
	return nil
}

// Read gathers nelems elements of size bytes from strided absolute
// positions bstart, bstart+strideBytes, ..., into dest in order. Returns
// the number of bytes actually read: running past the tree's end yields
// a short read rather than an error (spec §4.7.3).
func (t *Tree) Read(dest []byte, size, bstart, strideBytes, nelems int) (int, error) {
	if nelems == 0 {
		return 0, nil
	}
	if n, ok, err := t.tryReadSingleLeaf(dest, size, bstart, strideBytes, nelems); ok || err != nil {
		return n, err
	}
	total := 0
	for i := 0; i < nelems; i++ {
		off := bstart + i*strideBytes
		n, err := t.readAt(uint64(off), dest[i*size:(i+1)*size])
		if err != nil {
			return total, err
		}
		total += n
		if n < size {
			return total, nil
		}
	}
	return total, nil
}

// tryReadSingleLeaf handles the common case where every strided position
// falls within one leaf, driving the gather through stride.Jmp (spec
// §3.12): dest is filled monotonically while each hop's SrcOffset jumps
// to its strided position in the leaf buffer.
func (t *Tree) tryReadSingleLeaf(dest []byte, size, bstart, strideBytes, nelems int) (int, bool, error) {
	_, leafPgno, localOffset, err := t.descend(uint64(bstart))
	if err != nil || leafPgno == page.Null {
		return 0, false, err
	}
	span := localOffset + (nelems-1)*strideBytes + size
	_, dl, err := t.getLeaf(leafPgno)
	if err != nil {
		return 0, false, err
	}
	defer t.p.Release(leafPgno, page.MaskOf(page.TypeDataList))
	if span > int(dl.Used) {
		return 0, false, nil
	}

	entries := make([]stride.JmpEntry, nelems)
	for i := range entries {
		entries[i] = stride.JmpEntry{
			Pattern:   stride.AccessPattern{NReads: 1, ReadBytes: size, SkipBytes: 0},
			SrcOffset: localOffset + i*strideBytes,
		}
	}
	j := stride.NewJmp(stride.JmpPlan{Entries: entries})
	n, _ := j.Step(dl.Payload[:], dest[:size*nelems])
	return n, true, nil
}

func (t *Tree) readAt(offset uint64, dest []byte) (int, error) {
	read := 0
	for read < len(dest) {
		root, err := t.readRoot()
		if err != nil {
			return read, err
		}
		if offset+uint64(read) >= root.TotalSize {
			break
		}
		_, leafPgno, localOffset, err := t.descend(offset + uint64(read))
		if err != nil {
			return read, err
		}
		if leafPgno == page.Null {
			break
		}
		_, dl, err := t.getLeaf(leafPgno)
		if err != nil {
			return read, err
		}
		avail := int(dl.Used) - localOffset
		n := min(avail, len(dest)-read)
		if n > 0 {
			copy(dest[read:read+n], dl.Payload[localOffset:localOffset+n])
		}
		if err := t.p.Release(leafPgno, page.MaskOf(page.TypeDataList)); err != nil {
			return read, err
		}
		read += n
		if n == 0 {
			break
		}
	}
	return read, nil
}
