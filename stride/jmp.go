package stride

// JmpEntry is one element of a jump plan: apply Pattern starting at
// SrcOffset in the (absolute, full) source buffer, filling the monotonic
// destination as it goes.
type JmpEntry struct {
	Pattern   AccessPattern
	SrcOffset int
}

// JmpPlan is an ordered list of entries; the destination is filled in
// entry order, each entry's reads landing contiguously in the caller's
// monotonic destination stream.
type JmpPlan struct {
	Entries []JmpEntry
}

// Jmp drives a JmpPlan across possibly many Step calls.
type Jmp struct {
	plan state
	p    JmpPlan
}

// NewJmp returns a driver positioned at the start of plan.
func NewJmp(plan JmpPlan) *Jmp {
	return &Jmp{p: plan}
}

// Done reports whether the plan has been fully consumed.
func (j *Jmp) Done() bool { return j.plan.done }

// Step reads from src (the full, absolutely-addressed source buffer) and
// writes into dst (the next available chunk of destination space) per
// the plan. It returns how many bytes of dst were filled and whether the
// plan is now fully satisfied. Calling Step again after it ran out of
// dst resumes exactly where it left off; an empty src or empty dst (with
// entries remaining) returns (0, false) without mutating dst.
func (j *Jmp) Step(src []byte, dst []byte) (dstWritten int, done bool) {
	if j.plan.done {
		return 0, true
	}
	if len(j.p.Entries) == 0 {
		j.plan.done = true
		return 0, true
	}
	if len(src) == 0 || len(dst) == 0 {
		return 0, false
	}

	di := 0
	for di < len(dst) {
		if j.plan.entry >= len(j.p.Entries) {
			j.plan.done = true
			return di, true
		}
		entry := j.p.Entries[j.plan.entry]
		pat := entry.Pattern

		if j.plan.hopIndex >= pat.NReads {
			j.plan.entry++
			j.plan.hopIndex = 0
			j.plan.localIndex = 0
			j.plan.nread = 0
			j.plan.isSkipping = false
			continue
		}

		if !j.plan.isSkipping {
			remaining := pat.ReadBytes - j.plan.localIndex
			n := min(remaining, len(dst)-di)
			if n > 0 {
				srcStart := entry.SrcOffset + j.plan.hopIndex*(pat.ReadBytes+pat.SkipBytes) + j.plan.localIndex
				copy(dst[di:di+n], src[srcStart:srcStart+n])
				di += n
				j.plan.localIndex += n
				j.plan.nread += n
			}
			if j.plan.localIndex < pat.ReadBytes {
				break
			}
			j.plan.localIndex = 0
			j.plan.isSkipping = true
			if pat.SkipBytes == 0 {
				j.plan.isSkipping = false
				j.plan.hopIndex++
				j.plan.hopNumber++
				j.plan.nread = 0
			}
			continue
		}

		// Skipped bytes are never delivered to the destination stream,
		// so the skip phase completes in full the instant we reach it.
		j.plan.localIndex = 0
		j.plan.isSkipping = false
		j.plan.hopIndex++
		j.plan.hopNumber++
		j.plan.nread = 0
	}

	// dst may run out exactly as a hop's read completes; finish its
	// (instant) skip phase and step past exhausted entries so a fully
	// consumed plan reports done.
	if j.plan.isSkipping {
		j.plan.isSkipping = false
		j.plan.hopIndex++
		j.plan.hopNumber++
		j.plan.nread = 0
	}
	for j.plan.entry < len(j.p.Entries) && j.plan.hopIndex >= j.p.Entries[j.plan.entry].Pattern.NReads {
		j.plan.entry++
		j.plan.hopIndex = 0
	}
	if j.plan.entry >= len(j.p.Entries) {
		j.plan.done = true
	}
	return di, j.plan.done
}
