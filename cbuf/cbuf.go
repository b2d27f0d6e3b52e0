// Package cbuf implements a resumable circular byte buffer, the primitive
// the WAL streaming reader and the variable-directory chain scanner use to
// decouple "how much got produced this call" from "how much got consumed
// this call" (spec §2, row 2; original_source libs/nscore/cbuffer.c).
package cbuf

// Buffer is a fixed-capacity ring buffer of bytes. It is not safe for
// concurrent use; callers serialize access the way the WAL's own mutex
// serializes access to its write offset.
type Buffer struct {
	data  []byte
	start int // index of the first valid byte
	len   int // number of valid bytes currently buffered
}

// New allocates a Buffer with the given capacity.
func New(capacity int) *Buffer {
	if capacity <= 0 {
		panic("cbuf: capacity must be positive")
	}
	return &Buffer{data: make([]byte, capacity)}
}

// Cap returns the buffer's total capacity.
func (b *Buffer) Cap() int { return len(b.data) }

// Len returns the number of bytes currently buffered (written, not yet read).
func (b *Buffer) Len() int { return b.len }

// Avail returns how many more bytes can be written before the buffer is full.
func (b *Buffer) Avail() int { return len(b.data) - b.len }

// Write copies as much of p into the buffer as fits and returns the
// number of bytes copied. It never blocks and never grows the buffer.
func (b *Buffer) Write(p []byte) int {
	n := min(len(p), b.Avail())
	writeAt := (b.start + b.len) % len(b.data)
	for i := 0; i < n; i++ {
		b.data[(writeAt+i)%len(b.data)] = p[i]
	}
	b.len += n
	return n
}

// Read copies as much buffered data into p as fits, advancing the read
// position, and returns the number of bytes copied.
func (b *Buffer) Read(p []byte) int {
	n := b.Peek(p)
	b.start = (b.start + n) % len(b.data)
	b.len -= n
	return n
}

// Peek copies as much buffered data into p as fits without consuming it:
// a subsequent Read or Peek sees the same bytes again. Satisfies spec §8
// Testable Property 3 ("peek does not mutate").
func (b *Buffer) Peek(p []byte) int {
	n := min(len(p), b.len)
	for i := 0; i < n; i++ {
		p[i] = b.data[(b.start+i)%len(b.data)]
	}
	return n
}

// Discard drops up to n buffered bytes without copying them anywhere,
// e.g. to skip a record's payload the caller has already inspected via
// Peek.
func (b *Buffer) Discard(n int) int {
	n = min(n, b.len)
	b.start = (b.start + n) % len(b.data)
	b.len -= n
	return n
}

// Reset empties the buffer.
func (b *Buffer) Reset() {
	b.start = 0
	b.len = 0
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
