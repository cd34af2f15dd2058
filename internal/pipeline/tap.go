// internal/pipeline/tap.go
package pipeline

import (
	"errors"
	"sync/atomic"
)

// ErrInvalidQueueSize indicates the tap queue size must be positive
var ErrInvalidQueueSize = errors.New("tap queue size must be positive")

// Tap is the bounded hand-off between the sampling loop and downstream
// consumers (display, storage, reporting). When a consumer cannot keep up
// the oldest unread output is dropped; sampling correctness never depends on
// consumer speed. Offer is called by the single producer; Outputs may be
// read by one consumer goroutine.
type Tap struct {
	ch    chan Output
	drops atomic.Uint64
}

// NewTap creates a tap holding at most size unread outputs.
func NewTap(size int) (*Tap, error) {
	if size <= 0 {
		return nil, ErrInvalidQueueSize
	}
	return &Tap{ch: make(chan Output, size)}, nil
}

// Offer enqueues an output without ever blocking the producer. If the queue
// is full the oldest unread output is discarded first.
func (t *Tap) Offer(out Output) {
	for {
		select {
		case t.ch <- out:
			return
		default:
		}
		select {
		case <-t.ch:
			t.drops.Add(1)
		default:
		}
	}
}

// Outputs returns the consumer side of the queue.
func (t *Tap) Outputs() <-chan Output {
	return t.ch
}

// Close releases the consumer; the producer must not Offer afterwards.
func (t *Tap) Close() {
	close(t.ch)
}

// Drops returns how many outputs were discarded unread.
func (t *Tap) Drops() uint64 {
	return t.drops.Load()
}
