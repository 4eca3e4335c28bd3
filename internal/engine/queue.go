package engine

// worklist is a deduplicating FIFO queue of arena entries.
//
// Single-threaded: the attributor owns it for the duration of Run.
type worklist struct {
	items  []*entry
	queued map[*entry]bool
}

// newWorklist creates an empty work-list.
func newWorklist() *worklist {
	return &worklist{
		items:  make([]*entry, 0, 64),
		queued: make(map[*entry]bool),
	}
}

// Push appends e unless it is already queued. Reports whether it was added.
func (w *worklist) Push(e *entry) bool {
	if w.queued[e] {
		return false
	}
	w.queued[e] = true
	w.items = append(w.items, e)
	return true
}

// Drain removes and returns every queued entry in FIFO order.
func (w *worklist) Drain() []*entry {
	out := w.items
	w.items = make([]*entry, 0, len(out))
	clear(w.queued)
	return out
}

// Len returns the number of queued entries.
func (w *worklist) Len() int {
	return len(w.items)
}
