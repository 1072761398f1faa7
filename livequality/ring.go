package livequality

// Interval is a closed [start, end] buffering interval in milliseconds.
type Interval [2]int64

// intervalRing is a fixed-capacity ring keeping the most recent buffering
// intervals, evicting the oldest on overflow.
type intervalRing struct {
	buf   []Interval
	head  int
	count int
}

func newIntervalRing(capacity int) *intervalRing {
	return &intervalRing{buf: make([]Interval, capacity)}
}

func (r *intervalRing) push(iv Interval) {
	r.buf[(r.head+r.count)%len(r.buf)] = iv
	if r.count < len(r.buf) {
		r.count++
	} else {
		r.head = (r.head + 1) % len(r.buf)
	}
}

// items returns the retained intervals, oldest first.
func (r *intervalRing) items() []Interval {
	out := make([]Interval, r.count)
	for i := 0; i < r.count; i++ {
		out[i] = r.buf[(r.head+i)%len(r.buf)]
	}
	return out
}

func (r *intervalRing) len() int {
	return r.count
}
