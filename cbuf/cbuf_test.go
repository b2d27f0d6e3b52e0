package cbuf

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestLaws checks Testable Property 3: after any sequence of write(k)/
// read(k) respecting capacity, len equals bytes written minus bytes
// read; avail = cap - len; peek does not mutate.
func TestLaws(t *testing.T) {
	b := New(16)
	written, read := 0, 0

	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 200; i++ {
		if rng.Intn(2) == 0 {
			chunk := make([]byte, rng.Intn(8)+1)
			n := b.Write(chunk)
			written += n
		} else {
			chunk := make([]byte, rng.Intn(8)+1)
			peeked := b.Peek(chunk)
			again := make([]byte, len(chunk))
			peekedAgain := b.Peek(again)
			require.Equal(t, peeked, peekedAgain)
			require.Equal(t, chunk[:peeked], again[:peekedAgain])

			n := b.Read(chunk)
			require.Equal(t, peeked, n)
			read += n
		}
		require.Equal(t, written-read, b.Len())
		require.Equal(t, b.Cap()-b.Len(), b.Avail())
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	b := New(8)
	require.Equal(t, 5, b.Write([]byte("hello")))
	out := make([]byte, 5)
	require.Equal(t, 5, b.Read(out))
	require.Equal(t, "hello", string(out))
	require.Equal(t, 0, b.Len())

	// wrap around
	require.Equal(t, 8, b.Write([]byte("abcdefgh")))
	mid := make([]byte, 4)
	b.Read(mid)
	require.Equal(t, "abcd", string(mid))
	require.Equal(t, 4, b.Write([]byte("ijkl")))
	rest := make([]byte, 8)
	require.Equal(t, 8, b.Read(rest))
	require.Equal(t, "efghijkl", string(rest))
}

func TestWriteTruncatesWhenFull(t *testing.T) {
	b := New(4)
	n := b.Write([]byte("abcdef"))
	require.Equal(t, 4, n)
	require.Equal(t, 0, b.Avail())
}
