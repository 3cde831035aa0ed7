package audit

import "sync"

// ringBuffer is a bounded queue of pending events. When full, the oldest
// event is dropped to make room.
type ringBuffer struct {
	mu       sync.Mutex
	events   []Event
	head     int
	tail     int
	count    int
	capacity int
	dropped  int64
}

func newRingBuffer(capacity int) *ringBuffer {
	if capacity <= 0 {
		capacity = defaultBufferSize
	}
	return &ringBuffer{
		events:   make([]Event, capacity),
		capacity: capacity,
	}
}

// enqueue adds an event and reports whether an older one was dropped.
func (b *ringBuffer) enqueue(event Event) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	dropped := false
	if b.count >= b.capacity {
		b.tail = (b.tail + 1) % b.capacity
		b.count--
		b.dropped++
		dropped = true
	}
	b.events[b.head] = event
	b.head = (b.head + 1) % b.capacity
	b.count++
	return dropped
}

// dequeueBatch removes up to n events, oldest first.
func (b *ringBuffer) dequeueBatch(n int) []Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count == 0 {
		return nil
	}
	if n > b.count {
		n = b.count
	}
	out := make([]Event, n)
	for i := 0; i < n; i++ {
		out[i] = b.events[b.tail]
		b.events[b.tail] = Event{}
		b.tail = (b.tail + 1) % b.capacity
	}
	b.count -= n
	return out
}

// requeue puts a batch that failed to persist back at the front, as far as
// capacity allows.
func (b *ringBuffer) requeue(batch []Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i := len(batch) - 1; i >= 0; i-- {
		if b.count >= b.capacity {
			b.dropped += int64(i + 1)
			return
		}
		b.tail = (b.tail - 1 + b.capacity) % b.capacity
		b.events[b.tail] = batch[i]
		b.count++
	}
}

// pending copies the queued events matching keep, oldest first.
func (b *ringBuffer) pending(keep func(Event) bool) []Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []Event
	for i := 0; i < b.count; i++ {
		e := b.events[(b.tail+i)%b.capacity]
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}

func (b *ringBuffer) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}
