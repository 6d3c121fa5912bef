package progress

import "sync"

// Recorder keeps every event it receives. It is safe to inspect once Listen returns.
type Recorder struct {
	mu     sync.Mutex
	total  int64
	events []Event
}

func (r *Recorder) Listen(total int64, events <-chan Event) {
	r.mu.Lock()
	r.total = total
	r.mu.Unlock()
	for event := range events {
		r.mu.Lock()
		r.events = append(r.events, event)
		r.mu.Unlock()
	}
}

// Total is the length the reporter was started with.
func (r *Recorder) Total() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.total
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Bytes sums the Length of every recorded event.
func (r *Recorder) Bytes() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, event := range r.events {
		n += event.Length
	}
	return n
}
