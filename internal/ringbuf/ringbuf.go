// Package ringbuf implements the shared ring buffer (SRB) that connects the
// audio capture context to the inference context: a fixed-capacity mono
// float32 sample store with a single producer and a single consumer and no
// locks on the hot path.
//
// The design mirrors the atomic publish/observe discipline used for
// reference counts in audiocore's buffer pool: the producer stores sample
// data first, then publishes a new write index with release semantics; the
// consumer loads that index with acquire semantics before reading. Go's
// memory model gives atomic.Int64 store/load that ordering, which is enough
// to make readLatest observe only fully-written samples under SPSC
// discipline.
package ringbuf

import (
	"sync/atomic"

	"github.com/fretcoach/chordverify/internal/errors"
)

// Buffer is a fixed-capacity mono float32 sample ring. Exactly one
// goroutine may call Write (the capture context); exactly one goroutine may
// call ReadLatest (the inference context). Construction is not concurrent
// with either.
type Buffer struct {
	capacity   int
	samples    []float32
	writeIndex atomic.Int64 // total samples ever written (monotone, never wraps modulo internally)
}

// New constructs a Buffer able to hold capacity samples. Construction fails
// if capacity is non-positive.
func New(capacity int) (*Buffer, error) {
	if capacity <= 0 {
		return nil, errors.New(errors.NewStd("ring buffer capacity must be positive")).
			Component("ringbuf").
			Category(errors.CategoryValidation).
			Context("capacity", capacity).
			Build()
	}
	return &Buffer{
		capacity: capacity,
		samples:  make([]float32, capacity),
	}, nil
}

// Capacity returns the fixed sample capacity of the buffer.
func (b *Buffer) Capacity() int { return b.capacity }

// Written returns the total number of samples ever written, for
// diagnostics and tests; it is not required by readers.
func (b *Buffer) Written() int64 { return b.writeIndex.Load() }

// Write appends samples to the buffer, overwriting the oldest data once the
// buffer has wrapped. Must be called only from the capture context. Does
// not allocate and does not block.
func (b *Buffer) Write(samples []float32) {
	if len(samples) == 0 {
		return
	}
	start := b.writeIndex.Load()
	for i, s := range samples {
		pos := (start + int64(i)) % int64(b.capacity)
		b.samples[pos] = s
	}
	// Release: publish the new index only after all sample stores above
	// are visible to a subsequent acquire-load by the reader.
	b.writeIndex.Store(start + int64(len(samples)))
}

// ReadLatest copies the n most recent samples into out, with the most
// recent sample at out[n-1]. If fewer than n samples have ever been
// written, the front of out is zero-padded. n is clamped to capacity.
// n == 0 is a no-op. Safe to call concurrently with Write.
func (b *Buffer) ReadLatest(n int, out []float32) {
	if n <= 0 {
		return
	}
	if n > b.capacity {
		n = b.capacity
	}
	// Acquire: this load happens-after the writer's release store, so the
	// sample positions it implies are fully written.
	total := b.writeIndex.Load()

	if total <= 0 {
		for i := range out[:n] {
			out[i] = 0
		}
		return
	}

	available := total
	if available > int64(b.capacity) {
		available = int64(b.capacity)
	}

	padCount := 0
	if int64(n) > available {
		padCount = n - int(available)
	}
	for i := 0; i < padCount; i++ {
		out[i] = 0
	}

	toCopy := n - padCount
	start := total - int64(toCopy)
	for i := 0; i < toCopy; i++ {
		pos := (start + int64(i)) % int64(b.capacity)
		out[padCount+i] = b.samples[pos]
	}
}
