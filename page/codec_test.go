package page

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestRoundTrip checks Testable Property 1: for every page type,
// encode(decode(bytes)) == bytes.
func TestRoundTrip(t *testing.T) {
	t.Run("root", func(t *testing.T) {
		p := New(0, TypeRoot)
		want := Root{FirstTombstone: 7, MasterLSN: 1234}
		EncodeRoot(p, want)
		got, err := DecodeRoot(p)
		require.NoError(t, err)
		require.Equal(t, want, got)

		p2 := New(0, TypeRoot)
		EncodeRoot(p2, got)
		require.Equal(t, p.Bytes(), p2.Bytes())
	})

	t.Run("var_hash", func(t *testing.T) {
		p := New(1, TypeVarHash)
		vh := NewVarHash()
		vh.Buckets[0] = 42
		vh.Buckets[NumBuckets-1] = 99
		EncodeVarHash(p, vh)
		got, err := DecodeVarHash(p)
		require.NoError(t, err)
		require.Equal(t, vh, got)

		p2 := New(1, TypeVarHash)
		EncodeVarHash(p2, got)
		require.Equal(t, p.Bytes(), p2.Bytes())
	})

	t.Run("var_head", func(t *testing.T) {
		p := New(5, TypeVarHead)
		vh := &VarHead{NameLen: 3, TypeLen: 4, Root: 100, Next: Null, Tail: 55}
		copy(vh.Inline[:], "v1U32")
		EncodeVarHead(p, vh)
		got, err := DecodeVarHead(p)
		require.NoError(t, err)
		require.Equal(t, vh, got)
	})

	t.Run("var_tail", func(t *testing.T) {
		p := New(6, TypeVarTail)
		vt := &VarTail{Next: Null}
		copy(vt.Payload[:], "overflow bytes")
		EncodeVarTail(p, vt)
		got, err := DecodeVarTail(p)
		require.NoError(t, err)
		require.Equal(t, vt, got)
	})

	t.Run("inner", func(t *testing.T) {
		p := New(2, TypeInner)
		in := &Inner{Prev: Null, Next: 9, Entries: []InnerEntry{
			{Key: 10, Leaf: 3},
			{Key: 20, Leaf: 4},
		}}
		EncodeInner(p, in)
		got, err := DecodeInner(p)
		require.NoError(t, err)
		require.Equal(t, in, got)
	})

	t.Run("data_list", func(t *testing.T) {
		p := New(3, TypeDataList)
		dl := &DataList{Prev: 2, Next: Null, Used: 5}
		copy(dl.Payload[:], []byte{1, 2, 3, 4, 5})
		EncodeDataList(p, dl)
		got, err := DecodeDataList(p)
		require.NoError(t, err)
		require.Equal(t, dl, got)
	})

	t.Run("tombstone", func(t *testing.T) {
		p := New(4, TypeTombstone)
		tmb := Tombstone{Next: 8}
		EncodeTombstone(p, tmb)
		got, err := DecodeTombstone(p)
		require.NoError(t, err)
		require.Equal(t, tmb, got)
	})

	t.Run("rpt_root", func(t *testing.T) {
		p := New(7, TypeRPTRoot)
		r := RPTRoot{Top: 11, TotalSize: 4096 * 3, TopIsLeaf: false}
		EncodeRPTRoot(p, r)
		got, err := DecodeRPTRoot(p)
		require.NoError(t, err)
		require.Equal(t, r, got)
	})
}

func TestWrongTypeRejected(t *testing.T) {
	p := New(0, TypeRoot)
	_, err := DecodeInner(p)
	require.ErrorIs(t, err, ErrWrongType)
}

func TestFromBytesRejectsBadSize(t *testing.T) {
	_, err := FromBytes(0, make([]byte, Size-1))
	require.ErrorIs(t, err, ErrBadPageSize)
}
