// internal/dsp/window.go
// Package dsp implements the single-sample signal conditioning primitives:
// fixed-capacity windows, biquad IIR stages, stage chains and decimation.
package dsp

import "errors"

// ErrInvalidCapacity indicates a window capacity must be positive
var ErrInvalidCapacity = errors.New("window capacity must be positive")

// SlidingWindow is a fixed-capacity ring buffer with overwrite-oldest
// semantics. The backing storage is allocated once at construction; Push
// never allocates.
type SlidingWindow struct {
	buf  []float32
	idx  int
	full bool
}

// NewSlidingWindow creates a window holding the most recent n samples.
func NewSlidingWindow(n int) (*SlidingWindow, error) {
	if n <= 0 {
		return nil, ErrInvalidCapacity
	}
	return &SlidingWindow{buf: make([]float32, n)}, nil
}

// Push inserts a sample, returning the evicted sample if the window was full.
func (w *SlidingWindow) Push(x float32) (float32, bool) {
	var old float32
	evicted := false
	if w.full {
		old = w.buf[w.idx]
		evicted = true
	}
	w.buf[w.idx] = x
	w.idx++
	if w.idx == len(w.buf) {
		w.idx = 0
		w.full = true
	}
	return old, evicted
}

// Len returns the number of samples currently held.
func (w *SlidingWindow) Len() int {
	if w.full {
		return len(w.buf)
	}
	return w.idx
}

// Cap returns the fixed capacity.
func (w *SlidingWindow) Cap() int {
	return len(w.buf)
}

// Full reports whether the window holds Cap() samples.
func (w *SlidingWindow) Full() bool {
	return w.full
}

// Do calls fn for each held sample, oldest first.
func (w *SlidingWindow) Do(fn func(float32)) {
	n := w.Len()
	start := 0
	if w.full {
		start = w.idx
	}
	for i := 0; i < n; i++ {
		fn(w.buf[(start+i)%len(w.buf)])
	}
}

// CopyTo fills dst with the held samples, oldest first, and returns the
// number copied. dst must have at least Len() elements; used by callers that
// keep a fixed scratch buffer to stay allocation-free.
func (w *SlidingWindow) CopyTo(dst []float32) int {
	n := 0
	w.Do(func(x float32) {
		dst[n] = x
		n++
	})
	return n
}

// Reset empties the window. The backing storage is retained.
func (w *SlidingWindow) Reset() {
	w.idx = 0
	w.full = false
}

// MovingAverage is a running mean over the most recent N samples, maintained
// as an incremental sum so each update is O(1).
type MovingAverage struct {
	window *SlidingWindow
	sum    float32
}

// NewMovingAverage creates a moving average over a window of n samples.
func NewMovingAverage(n int) (*MovingAverage, error) {
	w, err := NewSlidingWindow(n)
	if err != nil {
		return nil, err
	}
	return &MovingAverage{window: w}, nil
}

// Update pushes a sample and returns the mean of the current window
// contents. Before the window fills, the mean is over the samples seen so
// far, which ramps the output smoothly from cold start.
func (a *MovingAverage) Update(x float32) float32 {
	a.sum += x
	if old, evicted := a.window.Push(x); evicted {
		a.sum -= old
	}
	return a.sum / float32(a.window.Len())
}

// Reset clears the window and the running sum.
func (a *MovingAverage) Reset() {
	a.window.Reset()
	a.sum = 0
}
