package logindex

// LocationHistory is a bounded back/forward stack of visited rows,
// stored as ContentLines so entries survive index rebuilds. Position 0
// is the newest entry.
type LocationHistory struct {
	idx     *Indexer
	entries []ContentLine
	pos     int
	limit   int
}

// NewLocationHistory creates a history bounded to limit entries.
func NewLocationHistory(idx *Indexer, limit int) *LocationHistory {
	if limit <= 0 {
		limit = 100
	}
	return &LocationHistory{idx: idx, limit: limit}
}

// Push records the given top row, truncating any forward entries and
// resetting the cursor to the head.
func (h *LocationHistory) Push(top int) {
	if top < 0 || top >= h.idx.RowCount() {
		return
	}
	cl := h.idx.At(top)

	h.entries = h.entries[:len(h.entries)-h.pos]
	h.pos = 0
	h.entries = append(h.entries, cl)

	if len(h.entries) > h.limit {
		h.entries = h.entries[len(h.entries)-h.limit:]
	}
}

// Back moves toward older entries, skipping any whose ContentLine no
// longer resolves to a row. Returns the row to jump to.
func (h *LocationHistory) Back(currentTop int) (int, bool) {
	for h.pos < len(h.entries) {
		cl := h.entries[len(h.entries)-1-h.pos]
		row, ok := h.idx.FromContent(cl)

		if h.pos == 0 && ok && row != currentTop {
			return row, true
		}

		if h.pos+1 >= len(h.entries) {
			break
		}
		h.pos++

		cl = h.entries[len(h.entries)-1-h.pos]
		if row, ok := h.idx.FromContent(cl); ok {
			return row, true
		}
	}

	return 0, false
}

// Forward moves toward newer entries, symmetric to Back.
func (h *LocationHistory) Forward(currentTop int) (int, bool) {
	for h.pos > 0 {
		h.pos--
		cl := h.entries[len(h.entries)-1-h.pos]
		if row, ok := h.idx.FromContent(cl); ok {
			return row, true
		}
	}
	return 0, false
}
