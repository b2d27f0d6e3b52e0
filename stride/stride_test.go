package stride

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestStrincSimple reproduces scenario S1: a single hop copies 4 bytes
// straight through with no skip.
func TestStrincSimple(t *testing.T) {
	plan := StrincPlan{Entries: []StrincEntry{
		{Pattern: AccessPattern{NReads: 1, ReadBytes: 4, SkipBytes: 0}, DestOffset: 0},
	}}
	src := []byte{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF}
	dst := make([]byte, 100)

	s := NewStrinc(plan)
	used, done := s.Step(src, dst)
	require.True(t, done)
	require.Equal(t, 4, used)
	require.Equal(t, []byte{0xAA, 0xBB, 0xCC, 0xDD}, dst[:4])
}

// TestStrincWithSkip reproduces scenario S2: 3 hops of (read 3, skip 2)
// pull the non-skipped bytes into a contiguous destination run.
func TestStrincWithSkip(t *testing.T) {
	plan := StrincPlan{Entries: []StrincEntry{
		{Pattern: AccessPattern{NReads: 3, ReadBytes: 3, SkipBytes: 2}, DestOffset: 0},
	}}
	src := []byte{1, 2, 3, 99, 99, 4, 5, 6, 99, 99, 7, 8, 9}
	dst := make([]byte, 9)

	s := NewStrinc(plan)
	used, done := s.Step(src, dst)
	require.True(t, done)
	require.Equal(t, len(src), used)
	require.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8, 9}, dst)
}

// TestJmpResumable reproduces scenario S3: a 3-hop (read 4, skip 0)
// plan filling a destination that arrives in two undersized chunks.
func TestJmpResumable(t *testing.T) {
	plan := JmpPlan{Entries: []JmpEntry{
		{Pattern: AccessPattern{NReads: 3, ReadBytes: 4, SkipBytes: 0}, SrcOffset: 0},
	}}
	src := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}

	j := NewJmp(plan)

	dst1 := make([]byte, 5)
	n1, done1 := j.Step(src, dst1)
	require.False(t, done1)
	require.Equal(t, 5, n1)
	require.Equal(t, []byte{1, 2, 3, 4, 5}, dst1)

	dst2 := make([]byte, 15)
	n2, done2 := j.Step(src, dst2)
	require.True(t, done2)
	require.Equal(t, 7, n2)
	require.Equal(t, []byte{6, 7, 8, 9, 10, 11, 12}, dst2[:7])
}

// TestStrincZeroLengthEdgeCase checks the "src_len = 0 or dest_len = 0
// returns false without mutation" edge case of Testable Property 12.
func TestStrincZeroLengthEdgeCase(t *testing.T) {
	plan := StrincPlan{Entries: []StrincEntry{
		{Pattern: AccessPattern{NReads: 1, ReadBytes: 4, SkipBytes: 0}, DestOffset: 0},
	}}
	dst := []byte{9, 9, 9, 9}

	s := NewStrinc(plan)
	used, done := s.Step(nil, dst)
	require.False(t, done)
	require.Equal(t, 0, used)
	require.Equal(t, []byte{9, 9, 9, 9}, dst)

	used, done = s.Step([]byte{1, 2, 3, 4}, nil)
	require.False(t, done)
	require.Equal(t, 0, used)
}

func TestJmpZeroLengthEdgeCase(t *testing.T) {
	plan := JmpPlan{Entries: []JmpEntry{
		{Pattern: AccessPattern{NReads: 1, ReadBytes: 4, SkipBytes: 0}, SrcOffset: 0},
	}}
	src := []byte{1, 2, 3, 4}

	j := NewJmp(plan)
	n, done := j.Step(src, nil)
	require.False(t, done)
	require.Equal(t, 0, n)

	n, done = j.Step(nil, make([]byte, 4))
	require.False(t, done)
	require.Equal(t, 0, n)
}

// TestStrincResumableUnderArbitrarySplits checks Testable Property 12:
// feeding the same source through a Strinc chunked at arbitrary
// boundaries must produce the same destination as a single whole-buffer
// call.
func TestStrincResumableUnderArbitrarySplits(t *testing.T) {
	pattern := AccessPattern{NReads: 5, ReadBytes: 6, SkipBytes: 3}
	plan := StrincPlan{Entries: []StrincEntry{{Pattern: pattern, DestOffset: 0}}}

	total := pattern.totalReadBytes() + pattern.NReads*pattern.SkipBytes
	src := make([]byte, total)
	for i := range src {
		src[i] = byte(i + 1)
	}

	want := make([]byte, pattern.totalReadBytes())
	whole := NewStrinc(plan)
	whole.Step(src, want)

	rng := rand.New(rand.NewSource(42))
	for trial := 0; trial < 50; trial++ {
		got := make([]byte, pattern.totalReadBytes())
		cur := NewStrinc(plan)
		pos := 0
		for pos < len(src) {
			chunk := rng.Intn(4) + 1
			end := pos + chunk
			if end > len(src) {
				end = len(src)
			}
			cur.Step(src[pos:end], got)
			pos = end
		}
		require.Equal(t, want, got, "trial %d", trial)
		require.True(t, cur.Done())
	}
}

// TestJmpResumableUnderArbitrarySplits mirrors the above for Jmp, where
// the destination side is fed incrementally instead of the source.
func TestJmpResumableUnderArbitrarySplits(t *testing.T) {
	pattern := AccessPattern{NReads: 4, ReadBytes: 5, SkipBytes: 2}
	plan := JmpPlan{Entries: []JmpEntry{{Pattern: pattern, SrcOffset: 0}}}

	total := pattern.totalReadBytes() + pattern.NReads*pattern.SkipBytes
	src := make([]byte, total)
	for i := range src {
		src[i] = byte(i + 1)
	}

	want := make([]byte, pattern.totalReadBytes())
	whole := NewJmp(plan)
	whole.Step(src, want)

	rng := rand.New(rand.NewSource(7))
	for trial := 0; trial < 50; trial++ {
		got := make([]byte, 0, pattern.totalReadBytes())
		cur := NewJmp(plan)
		for len(got) < pattern.totalReadBytes() {
			chunk := rng.Intn(4) + 1
			buf := make([]byte, chunk)
			n, _ := cur.Step(src, buf)
			got = append(got, buf[:n]...)
		}
		require.Equal(t, want, got, "trial %d", trial)
		require.True(t, cur.Done())
	}
}
