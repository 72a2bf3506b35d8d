package logindex

// FilterState records, for one attached file, which predicates matched
// each line. A message is a head line plus its continuations; a
// predicate matches the message iff it matches any of its lines, and
// the matched bit is spread over every line of the message once the
// message ends.
type FilterState struct {
	mask []uint32

	count [MaxFilters]int
	hits  [MaxFilters]int

	messageMatched  [MaxFilters]bool
	linesForMessage int

	lastMessageMatched  [MaxFilters]bool
	lastLinesForMessage int
}

// NewFilterState creates an empty state.
func NewFilterState() *FilterState {
	return &FilterState{}
}

// LinesProcessed returns how many lines have been run through AddLine.
func (fs *FilterState) LinesProcessed() int {
	return len(fs.mask)
}

// Count returns the number of lines finalized for predicate p.
func (fs *FilterState) Count(p int) int {
	return fs.count[p]
}

// Hits returns the number of finalized lines that matched predicate p.
func (fs *FilterState) Hits(p int) int {
	return fs.hits[p]
}

// Mask returns the raw bit pattern for a line.
func (fs *FilterState) Mask(line int) uint32 {
	return fs.mask[line]
}

// AddLine folds one line into the accumulator. A non-continued line
// starts a new message, finalizing the previous one first.
func (fs *FilterState) AddLine(set *FilterSet, body []byte, continued bool) {
	if !continued && fs.linesForMessage > 0 {
		fs.EndOfMessage(set)
	}

	matched := set.MatchMask(body)
	for i := range fs.messageMatched {
		if matched&(1<<uint(i)) != 0 {
			fs.messageMatched[i] = true
		}
	}

	fs.linesForMessage++
	fs.mask = append(fs.mask, 0)
}

// EndOfMessage finalizes the accumulated message: the matched bit for
// each predicate is ORed into the mask of every line of the message,
// the counters advance, and a snapshot is kept for rollback.
func (fs *FilterState) EndOfMessage(set *FilterSet) {
	if fs.linesForMessage == 0 {
		return
	}

	first := len(fs.mask) - fs.linesForMessage
	for i, f := range set.filters {
		if f == nil || !f.enabled {
			continue
		}
		if fs.messageMatched[i] {
			bit := uint32(1) << uint(i)
			for line := first; line < len(fs.mask); line++ {
				fs.mask[line] |= bit
			}
			fs.hits[i] += fs.linesForMessage
		}
		fs.count[i] += fs.linesForMessage
	}

	fs.lastMessageMatched = fs.messageMatched
	fs.lastLinesForMessage = fs.linesForMessage
	fs.messageMatched = [MaxFilters]bool{}
	fs.linesForMessage = 0
}

// RevertToLast reopens the most recently finalized message so more
// continuations can be folded in, then drops rollbackSize of its
// trailing lines. Used when a file is re-observed across a truncation
// or when a message straddles two observation batches.
// Precondition: no message is currently accumulating.
func (fs *FilterState) RevertToLast(set *FilterSet, rollbackSize int) {
	if fs.linesForMessage != 0 {
		panic("logindex: RevertToLast with open message")
	}

	fs.messageMatched = fs.lastMessageMatched
	fs.linesForMessage = fs.lastLinesForMessage

	for i, f := range set.filters {
		if f == nil || !f.enabled {
			continue
		}
		bit := ^(uint32(1) << uint(i))
		for line := fs.count[i] - fs.linesForMessage; line < fs.count[i]; line++ {
			fs.mask[line] &= bit
		}
		if fs.messageMatched[i] {
			fs.hits[i] -= fs.linesForMessage
		}
		fs.count[i] -= fs.linesForMessage
	}

	if rollbackSize > 0 {
		fs.mask = fs.mask[:len(fs.mask)-rollbackSize]
		fs.linesForMessage -= rollbackSize
	}
}

// Excluded reports whether a line fails the active masks: it is
// excluded if any OUT predicate matched it, or if IN predicates are
// enabled and none matched it.
func (fs *FilterState) Excluded(inMask, outMask uint32, line int) bool {
	if line >= len(fs.mask) {
		return inMask != 0
	}
	m := fs.mask[line]
	if m&outMask != 0 {
		return true
	}
	if inMask != 0 && m&inMask == 0 {
		return true
	}
	return false
}

// ClearDeleted wipes mask bits and counters for slots no longer
// occupied in the filter set.
func (fs *FilterState) ClearDeleted(set *FilterSet) {
	stale := ^set.registeredMask()
	if stale == 0 {
		return
	}
	for i := range fs.mask {
		fs.mask[i] &^= stale
	}
	for i := 0; i < MaxFilters; i++ {
		if stale&(1<<uint(i)) != 0 {
			fs.count[i] = 0
			fs.hits[i] = 0
			fs.messageMatched[i] = false
			fs.lastMessageMatched[i] = false
		}
	}
}

// Reset drops all recorded state, used when the owning file is
// re-read from scratch.
func (fs *FilterState) Reset() {
	fs.mask = fs.mask[:0]
	fs.count = [MaxFilters]int{}
	fs.hits = [MaxFilters]int{}
	fs.messageMatched = [MaxFilters]bool{}
	fs.linesForMessage = 0
	fs.lastMessageMatched = [MaxFilters]bool{}
	fs.lastLinesForMessage = 0
}

// MinCount returns the smallest finalized count across enabled
// predicates, capped to size. The Indexer's filter-change replay does
// not use it: TextFiltersChanged resets the state and replays from line 0.
func (fs *FilterState) MinCount(set *FilterSet, size int) int {
	min := size
	for i, f := range set.filters {
		if f == nil || !f.enabled {
			continue
		}
		if fs.count[i] < min {
			min = fs.count[i]
		}
	}
	return min
}
