package notify

import (
	"sync"

	"haven/internal/audit/models"
)

// RingBuffer is a bounded, thread-safe queue of pending alerts.
// When full, the oldest alert is dropped to make room for the new one.
type RingBuffer struct {
	mu       sync.Mutex
	alerts   []models.Alert
	head     int // next write position
	tail     int // next read position
	count    int
	capacity int

	dropped int64
}

func NewRingBuffer(capacity int) *RingBuffer {
	if capacity <= 0 {
		capacity = DefaultBufferSize
	}
	return &RingBuffer{
		alerts:   make([]models.Alert, capacity),
		capacity: capacity,
	}
}

// Enqueue adds an alert and reports whether an older one was dropped.
func (b *RingBuffer) Enqueue(a models.Alert) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	dropped := false
	if b.count >= b.capacity {
		b.tail = (b.tail + 1) % b.capacity
		b.count--
		b.dropped++
		dropped = true
	}

	b.alerts[b.head] = a
	b.head = (b.head + 1) % b.capacity
	b.count++
	return dropped
}

// DequeueBatch removes up to n alerts, oldest first.
func (b *RingBuffer) DequeueBatch(n int) []models.Alert {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count == 0 {
		return nil
	}
	n = min(n, b.count)

	out := make([]models.Alert, n)
	for i := range n {
		out[i] = b.alerts[b.tail]
		b.alerts[b.tail] = models.Alert{}
		b.tail = (b.tail + 1) % b.capacity
	}
	b.count -= n
	return out
}

func (b *RingBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Dropped returns the total number of alerts discarded for lack of space.
func (b *RingBuffer) Dropped() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}
