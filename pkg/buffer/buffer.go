// Package buffer provides the fixed-capacity circular sample store used by
// the monitor program.
//
// Sample k is written to slot k mod capacity. The buffer never grows: once
// it is full each write overwrites the oldest slot, so a reader keeps at most
// Capacity samples of history.
//
// Slots are zero-filled until written. ReadAll returns only written samples;
// a caller reading before any write, the way a driver reads its own output
// arrays, uses Slots and sees zeros.
package buffer

import (
	"sync"
	"time"

	"github.com/charlie0129/smuseq/pkg/status"
)

// Sample is one (timestamp, voltage, current) triple.
type Sample struct {
	Time    time.Time `json:"time"`
	Voltage float64   `json:"voltage"`
	Current float64   `json:"current"`
}

// Buffer is a circular store of samples. Voltage and current live in
// separate slices so callers can hand in instrument-style parallel arrays.
type Buffer struct {
	mu      sync.Mutex
	times   []time.Time
	voltage []float64
	current []float64
	cursor  int
	written int
}

// New returns a zero-filled buffer of the given capacity.
func New(capacity int) (*Buffer, error) {
	if capacity <= 0 {
		return nil, status.New(status.CodeInvalidBuffer, "buffer capacity must be positive, got %d", capacity)
	}
	return &Buffer{
		times:   make([]time.Time, capacity),
		voltage: make([]float64, capacity),
		current: make([]float64, capacity),
	}, nil
}

// NewFrom wraps caller-owned voltage and current slices. Both must be the
// same non-zero length; they are zeroed and never resized.
func NewFrom(voltage, current []float64) (*Buffer, error) {
	if len(voltage) == 0 || len(current) == 0 {
		return nil, status.New(status.CodeInvalidBuffer, "buffer sizes must be positive, got V=%d I=%d", len(voltage), len(current))
	}
	if len(voltage) != len(current) {
		return nil, status.New(status.CodeBufferMismatch, "voltage buffer holds %d samples but current buffer holds %d", len(voltage), len(current))
	}
	clear(voltage)
	clear(current)
	return &Buffer{
		times:   make([]time.Time, len(voltage)),
		voltage: voltage,
		current: current,
	}, nil
}

// Capacity returns the fixed number of slots.
func (b *Buffer) Capacity() int {
	return len(b.voltage)
}

// Write stores s at the cursor and advances the cursor with wraparound.
// It never blocks on the reader and never allocates.
func (b *Buffer) Write(s Sample) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.times[b.cursor] = s.Time
	b.voltage[b.cursor] = s.Voltage
	b.current[b.cursor] = s.Current
	b.cursor = (b.cursor + 1) % len(b.voltage)
	b.written++
}

// Cursor is the slot the next Write goes to, always in [0, Capacity).
func (b *Buffer) Cursor() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.cursor
}

// Written is the total number of writes, including overwritten ones.
func (b *Buffer) Written() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.written
}

// Len is the number of retained samples, at most Capacity.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return min(b.written, len(b.voltage))
}

// At returns the raw content of slot i.
func (b *Buffer) At(i int) Sample {
	b.mu.Lock()
	defer b.mu.Unlock()

	return Sample{Time: b.times[i], Voltage: b.voltage[i], Current: b.current[i]}
}

// Slots returns every slot in index order, including zero-filled ones.
func (b *Buffer) Slots() []Sample {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]Sample, len(b.voltage))
	for i := range out {
		out[i] = Sample{Time: b.times[i], Voltage: b.voltage[i], Current: b.current[i]}
	}
	return out
}

// ReadAll returns the retained samples oldest first. Before the first write
// it is empty; use Slots for the zero-filled view.
func (b *Buffer) ReadAll() []Sample {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := min(b.written, len(b.voltage))
	start := 0
	if b.written > len(b.voltage) {
		start = b.cursor
	}

	out := make([]Sample, 0, n)
	for k := 0; k < n; k++ {
		i := (start + k) % len(b.voltage)
		out = append(out, Sample{Time: b.times[i], Voltage: b.voltage[i], Current: b.current[i]})
	}
	return out
}

// Voltages returns a copy of the voltage slots in index order.
func (b *Buffer) Voltages() []float64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	return append([]float64(nil), b.voltage...)
}

// Currents returns a copy of the current slots in index order.
func (b *Buffer) Currents() []float64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	return append([]float64(nil), b.current...)
}
