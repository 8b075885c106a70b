package store

import (
	"sync"
	"sync/atomic"
)

// Buffer is a bounded, thread-safe append-only ring of records. When full,
// the oldest record is overwritten: recent forensic context is worth more
// than ancient history.
type Buffer struct {
	records []Record
	size    int
	head    int
	count   int
	mu      sync.Mutex

	totalAppended uint64
	totalEvicted  uint64
}

// NewBuffer creates a Buffer with the specified capacity.
func NewBuffer(size int) *Buffer {
	if size <= 0 {
		size = 10000
	}
	return &Buffer{
		records: make([]Record, size),
		size:    size,
	}
}

// Append adds a record, evicting the oldest when at capacity.
func (b *Buffer) Append(rec Record) {
	b.mu.Lock()
	defer b.mu.Unlock()

	tail := (b.head + b.count) % b.size
	b.records[tail] = rec

	if b.count == b.size {
		b.head = (b.head + 1) % b.size
		atomic.AddUint64(&b.totalEvicted, 1)
	} else {
		b.count++
	}
	atomic.AddUint64(&b.totalAppended, 1)
}

// Snapshot returns the buffered records, oldest first.
func (b *Buffer) Snapshot() []Record {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]Record, b.count)
	for i := 0; i < b.count; i++ {
		out[i] = b.records[(b.head+i)%b.size]
	}
	return out
}

// Len returns the current number of buffered records.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Cap returns the buffer capacity.
func (b *Buffer) Cap() int {
	return b.size
}

// Metrics returns buffer statistics.
func (b *Buffer) Metrics() BufferMetrics {
	return BufferMetrics{
		Appended: atomic.LoadUint64(&b.totalAppended),
		Evicted:  atomic.LoadUint64(&b.totalEvicted),
		Depth:    b.Len(),
		Capacity: b.size,
	}
}

// BufferMetrics holds statistics about buffer usage.
type BufferMetrics struct {
	Appended uint64 `json:"appended"`
	Evicted  uint64 `json:"evicted"`
	Depth    int    `json:"depth"`
	Capacity int    `json:"capacity"`
}
