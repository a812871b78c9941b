package metrics

// historyRing is a fixed-capacity FIFO of history points. Push is O(1);
// once full the oldest point is overwritten.
type historyRing struct {
	buf  []HistoryPoint
	head int
	size int
}

func newHistoryRing(capacity int) *historyRing {
	if capacity < 1 {
		capacity = 1
	}
	return &historyRing{buf: make([]HistoryPoint, capacity)}
}

func (r *historyRing) push(p HistoryPoint) {
	if r.size < len(r.buf) {
		r.buf[(r.head+r.size)%len(r.buf)] = p
		r.size++
		return
	}
	r.buf[r.head] = p
	r.head = (r.head + 1) % len(r.buf)
}

// points returns the history oldest-first as a fresh slice.
func (r *historyRing) points() []HistoryPoint {
	out := make([]HistoryPoint, r.size)
	for i := 0; i < r.size; i++ {
		out[i] = r.buf[(r.head+i)%len(r.buf)]
	}
	return out
}

func (r *historyRing) len() int {
	return r.size
}
