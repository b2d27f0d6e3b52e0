// Package stride implements the resumable strided accessor primitive
// spec §4.8 describes: a single-pass, allocation-free, recursion-free
// copy driver for two access directions —
//
//   - Strinc ("strictly-increasing"): the source is consumed monotonically
//     across calls; the destination is addressed absolutely and may jump
//     between regions (e.g. writing into several non-adjacent rp-tree
//     leaves from one contiguous source buffer).
//   - Jmp ("jump"): the destination is filled monotonically across calls;
//     the source is addressed absolutely and may jump between regions
//     (e.g. reading several non-adjacent leaves into one contiguous
//     destination buffer).
//
// Both are driven by repeatedly calling Step with the next available
// chunk of the monotonic side; the other side is passed in full each
// time, addressed by absolute offset. All progress state survives across
// calls so a caller can resume after partially draining a source buffer
// or partially filling a destination buffer, matching spec Testable
// Property 12.
package stride

// AccessPattern describes one "hop cycle" applied NReads times: read
// ReadBytes bytes, then skip SkipBytes bytes, repeated NReads times.
type AccessPattern struct {
	NReads    int
	ReadBytes int
	SkipBytes int
}

// totalReadBytes returns how many bytes of the monotonic side this pattern
// consumes/produces in total (just the reads; skips never touch the
// monotonic side).
func (a AccessPattern) totalReadBytes() int { return a.NReads * a.ReadBytes }

// state is the resumable progress record shared by both plan types,
// named after spec §4.8's {hop_number, hop_index, local_index, nread,
// is_skipping}.
type state struct {
	hopNumber  int  // hops completed so far, across the whole plan
	hopIndex   int  // which hop (0..NReads-1) within the current entry
	localIndex int  // bytes processed within the current read/skip segment
	nread      int  // bytes already read within the current hop's read segment
	isSkipping bool // whether the current hop is in its skip phase
	entry      int  // index of the plan entry hopNumber falls into
	done       bool
}

func (s *state) reset() { *s = state{} }
