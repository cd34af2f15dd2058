// internal/dsp/stage.go
package dsp

import "errors"

// ErrEmptyChain indicates a chain needs at least one stage
var ErrEmptyChain = errors.New("chain requires at least one stage")

// Stage is a single signal-conditioning transformation with
// one-sample-in/one-sample-out semantics. Process must be deterministic,
// O(1) time and space, and must not allocate; Reset returns the stage to
// its cold-start state.
type Stage interface {
	Process(x float32) float32
	Reset()
}

// instabilityCounter is implemented by stages that recover from non-finite
// state. The chain aggregates the counts for the driver.
type instabilityCounter interface {
	InstabilityResets() uint64
}

// Chain is an ordered, fixed composition of Stages. The order is set at
// construction and never changes at runtime: filter order (notch before
// low-pass, for example) affects numerical behavior and must stay auditable.
// Chain itself satisfies Stage, so chains compose recursively.
type Chain struct {
	stages []Stage
}

// NewChain creates a chain running the given stages in order.
func NewChain(stages ...Stage) (*Chain, error) {
	if len(stages) == 0 {
		return nil, ErrEmptyChain
	}
	owned := make([]Stage, len(stages))
	copy(owned, stages)
	return &Chain{stages: owned}, nil
}

// Process runs the sample through every stage in order.
func (c *Chain) Process(x float32) float32 {
	for _, s := range c.stages {
		x = s.Process(x)
	}
	return x
}

// Reset resets every stage.
func (c *Chain) Reset() {
	for _, s := range c.stages {
		s.Reset()
	}
}

// Len returns the number of stages.
func (c *Chain) Len() int {
	return len(c.stages)
}

// InstabilityResets returns the total number of instability state resets
// across all stages that track them.
func (c *Chain) InstabilityResets() uint64 {
	var total uint64
	for _, s := range c.stages {
		if ic, ok := s.(instabilityCounter); ok {
			total += ic.InstabilityResets()
		}
	}
	return total
}
