package path

// history is a bounded undo stack. The oldest snapshot is dropped once depth is reached.
type history struct {
	depth int
	items []Path
}

func newHistory(depth int) history {
	if depth <= 0 {
		depth = 20
	}
	return history{depth: depth}
}

func (h *history) push(p Path) {
	if len(h.items) == h.depth {
		h.items = append(h.items[:0:0], h.items[1:]...)
	}
	h.items = append(h.items, p)
}

func (h *history) pop() (Path, bool) {
	if len(h.items) == 0 {
		return Path{}, false
	}
	p := h.items[len(h.items)-1]
	h.items = h.items[:len(h.items)-1]
	return p, true
}

func (h *history) len() int { return len(h.items) }
