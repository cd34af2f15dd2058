// internal/dsp/stage_test.go
package dsp

import (
	"testing"

	"github.com/chewxy/math32"
)

// offsetStage and scaleStage are trivial stages for verifying composition
// order; their Reset counts invocations.
type offsetStage struct {
	offset float32
	resets int
}

func (s *offsetStage) Process(x float32) float32 { return x + s.offset }
func (s *offsetStage) Reset()                    { s.resets++ }

type scaleStage struct {
	scale  float32
	resets int
}

func (s *scaleStage) Process(x float32) float32 { return x * s.scale }
func (s *scaleStage) Reset()                    { s.resets++ }

func TestNewChain_Empty(t *testing.T) {
	if _, err := NewChain(); err != ErrEmptyChain {
		t.Errorf("expected ErrEmptyChain, got %v", err)
	}
}

func TestChain_OrderMatters(t *testing.T) {
	add := &offsetStage{offset: 1}
	mul := &scaleStage{scale: 2}

	addThenMul, err := NewChain(add, mul)
	if err != nil {
		t.Fatalf("NewChain failed: %v", err)
	}
	mulThenAdd, err := NewChain(mul, add)
	if err != nil {
		t.Fatalf("NewChain failed: %v", err)
	}

	if got := addThenMul.Process(3); got != 8 {
		t.Errorf("(3+1)*2 = %v, want 8", got)
	}
	if got := mulThenAdd.Process(3); got != 7 {
		t.Errorf("3*2+1 = %v, want 7", got)
	}
}

func TestChain_ComposesRecursively(t *testing.T) {
	inner, err := NewChain(&offsetStage{offset: 1}, &scaleStage{scale: 2})
	if err != nil {
		t.Fatalf("NewChain failed: %v", err)
	}
	// A chain is itself a Stage, so it nests without special-casing.
	outer, err := NewChain(inner, &offsetStage{offset: 10})
	if err != nil {
		t.Fatalf("NewChain failed: %v", err)
	}

	if got := outer.Process(3); got != 18 {
		t.Errorf("((3+1)*2)+10 = %v, want 18", got)
	}
	if outer.Len() != 2 {
		t.Errorf("outer.Len() = %d, want 2", outer.Len())
	}
}

func TestChain_ResetPropagates(t *testing.T) {
	a := &offsetStage{offset: 1}
	b := &scaleStage{scale: 2}
	chain, _ := NewChain(a, b)

	chain.Reset()
	if a.resets != 1 || b.resets != 1 {
		t.Errorf("resets = (%d, %d), want (1, 1)", a.resets, b.resets)
	}
}

func TestChain_FixedOrderIsCopied(t *testing.T) {
	stages := []Stage{&offsetStage{offset: 1}, &scaleStage{scale: 2}}
	chain, _ := NewChain(stages...)

	// Mutating the caller's slice must not affect the chain.
	stages[0] = &offsetStage{offset: 100}
	if got := chain.Process(3); got != 8 {
		t.Errorf("Process(3) = %v, want 8 (chain order must be fixed at construction)", got)
	}
}

func TestChain_InstabilityResetsAggregation(t *testing.T) {
	lp, err := NewLowPass(1000, 40)
	if err != nil {
		t.Fatalf("NewLowPass failed: %v", err)
	}
	chain, _ := NewChain(&offsetStage{offset: 0}, lp)

	if chain.InstabilityResets() != 0 {
		t.Errorf("fresh chain InstabilityResets = %d, want 0", chain.InstabilityResets())
	}

	lp.Process(math32.Inf(1)) // forces a guard reset
	if chain.InstabilityResets() != 1 {
		t.Errorf("InstabilityResets = %d, want 1", chain.InstabilityResets())
	}
}
