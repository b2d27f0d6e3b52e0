package stride

// StrincEntry is one element of a strictly-increasing plan: apply Pattern
// starting at DestOffset in the (absolute, full) destination buffer,
// consuming the monotonic source as it goes.
type StrincEntry struct {
	Pattern    AccessPattern
	DestOffset int
}

// StrincPlan is an ordered list of entries; the source is consumed in
// entry order, each entry's reads landing contiguously starting at its
// own DestOffset.
type StrincPlan struct {
	Entries []StrincEntry
}

// Strinc drives a StrincPlan across possibly many Step calls.
type Strinc struct {
	plan state
	p    StrincPlan
}

// NewStrinc returns a driver positioned at the start of plan.
func NewStrinc(plan StrincPlan) *Strinc {
	return &Strinc{p: plan}
}

// Done reports whether the plan has been fully consumed.
func (s *Strinc) Done() bool { return s.plan.done }

// Step consumes bytes from src (the next available chunk of source data)
// and writes them into dst (the full, absolutely-addressed destination
// buffer) per the plan. It returns how many bytes of src were consumed
// and whether the plan is now fully satisfied. Calling Step again after
// it ran out of src resumes exactly where it left off; calling it with
// an empty src or empty dst (when entries remain) returns (0, false)
// without mutating dst, satisfying Testable Property 12's "src_len = 0
// or dest_len = 0 returns false without mutation".
func (s *Strinc) Step(src []byte, dst []byte) (srcUsed int, done bool) {
	if s.plan.done {
		return 0, true
	}
	if len(s.p.Entries) == 0 {
		s.plan.done = true
		return 0, true
	}
	if len(src) == 0 || len(dst) == 0 {
		return 0, false
	}

	si := 0
	for si < len(src) {
		if s.plan.entry >= len(s.p.Entries) {
			s.plan.done = true
			return si, true
		}
		entry := s.p.Entries[s.plan.entry]
		pat := entry.Pattern

		if s.plan.hopIndex >= pat.NReads {
			// Entry exhausted, move to the next one.
			s.plan.entry++
			s.plan.hopIndex = 0
			s.plan.localIndex = 0
			s.plan.nread = 0
			s.plan.isSkipping = false
			continue
		}

		if !s.plan.isSkipping {
			remaining := pat.ReadBytes - s.plan.localIndex
			n := min(remaining, len(src)-si)
			if n > 0 {
				destStart := entry.DestOffset + hopsReadSoFar(pat, s.plan.hopIndex) + s.plan.localIndex
				copy(dst[destStart:destStart+n], src[si:si+n])
				si += n
				s.plan.localIndex += n
				s.plan.nread += n
			}
			if s.plan.localIndex < pat.ReadBytes {
				// Ran out of src mid-read; resume here next call.
				break
			}
			s.plan.localIndex = 0
			s.plan.nread = 0
			// A skip phase only has meaning between two hops; the very
			// last hop of the very last entry has nothing after it to
			// skip past, so we finish the hop immediately instead of
			// waiting on skip bytes the source may never supply.
			if pat.SkipBytes == 0 || isLastHop(s.p.Entries, s.plan.entry, s.plan.hopIndex) {
				s.plan.hopIndex++
				s.plan.hopNumber++
				continue
			}
			s.plan.isSkipping = true
			continue
		}

		// Skipping: advance the source pointer without touching dst.
		remaining := pat.SkipBytes - s.plan.localIndex
		n := min(remaining, len(src)-si)
		si += n
		s.plan.localIndex += n
		if s.plan.localIndex < pat.SkipBytes {
			break
		}
		s.plan.localIndex = 0
		s.plan.isSkipping = false
		s.plan.hopIndex++
		s.plan.hopNumber++
		s.plan.nread = 0
	}

	// src may run out exactly as the last hop of an entry completes;
	// step past exhausted entries so a fully consumed plan reports done.
	for s.plan.entry < len(s.p.Entries) && s.plan.hopIndex >= s.p.Entries[s.plan.entry].Pattern.NReads {
		s.plan.entry++
		s.plan.hopIndex = 0
	}
	if s.plan.entry >= len(s.p.Entries) {
		s.plan.done = true
	}
	return si, s.plan.done
}

// hopsReadSoFar returns how many bytes the completed hops (0..hopIndex)
// of pat have already contributed to the destination.
func hopsReadSoFar(pat AccessPattern, hopIndex int) int {
	return hopIndex * pat.ReadBytes
}

// isLastHop reports whether hopIndex is the final hop of the final
// entry in entries, i.e. there is nothing left to skip past.
func isLastHop(entries []StrincEntry, entryIdx, hopIndex int) bool {
	if entryIdx != len(entries)-1 {
		return false
	}
	return hopIndex == entries[entryIdx].Pattern.NReads-1
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
