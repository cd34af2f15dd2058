// internal/dsp/window_test.go
package dsp

import "testing"

func TestNewSlidingWindow_InvalidCapacity(t *testing.T) {
	for _, n := range []int{0, -1, -100} {
		if _, err := NewSlidingWindow(n); err != ErrInvalidCapacity {
			t.Errorf("NewSlidingWindow(%d): expected ErrInvalidCapacity, got %v", n, err)
		}
	}
}

func TestSlidingWindow_FillAndEvict(t *testing.T) {
	w, err := NewSlidingWindow(3)
	if err != nil {
		t.Fatalf("NewSlidingWindow failed: %v", err)
	}

	for i, x := range []float32{1, 2, 3} {
		old, evicted := w.Push(x)
		if evicted {
			t.Errorf("push %d: unexpected eviction of %v", i, old)
		}
	}
	if !w.Full() {
		t.Error("window should be full after capacity pushes")
	}

	// Fourth push evicts the oldest value.
	old, evicted := w.Push(4)
	if !evicted || old != 1 {
		t.Errorf("expected eviction of 1, got (%v, %v)", old, evicted)
	}
}

func TestSlidingWindow_DoOrder(t *testing.T) {
	w, _ := NewSlidingWindow(3)
	for _, x := range []float32{1, 2, 3, 4, 5} {
		w.Push(x)
	}

	var got []float32
	w.Do(func(x float32) { got = append(got, x) })

	want := []float32{3, 4, 5}
	if len(got) != len(want) {
		t.Fatalf("Do visited %d samples, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Do order[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestSlidingWindow_CopyTo(t *testing.T) {
	w, _ := NewSlidingWindow(4)
	for _, x := range []float32{1, 2, 3} {
		w.Push(x)
	}

	dst := make([]float32, 4)
	n := w.CopyTo(dst)
	if n != 3 {
		t.Fatalf("CopyTo returned %d, want 3", n)
	}
	for i, want := range []float32{1, 2, 3} {
		if dst[i] != want {
			t.Errorf("dst[%d] = %v, want %v", i, dst[i], want)
		}
	}
}

func TestSlidingWindow_Reset(t *testing.T) {
	w, _ := NewSlidingWindow(2)
	w.Push(1)
	w.Push(2)
	w.Reset()

	if w.Len() != 0 || w.Full() {
		t.Errorf("after Reset: Len=%d Full=%v, want 0/false", w.Len(), w.Full())
	}
	if _, evicted := w.Push(3); evicted {
		t.Error("push after Reset should not evict")
	}
}

func TestMovingAverage_RampAndSteadyState(t *testing.T) {
	a, err := NewMovingAverage(4)
	if err != nil {
		t.Fatalf("NewMovingAverage failed: %v", err)
	}

	// Partial window: mean over samples seen so far.
	if got := a.Update(4); got != 4 {
		t.Errorf("first update = %v, want 4", got)
	}
	if got := a.Update(8); got != 6 {
		t.Errorf("second update = %v, want 6", got)
	}

	a.Update(0)
	a.Update(0)
	// Window now [4 8 0 0]; push 4 evicts 4 -> [8 0 0 4], mean 3.
	if got := a.Update(4); got != 3 {
		t.Errorf("steady-state update = %v, want 3", got)
	}
}

func TestMovingAverage_Reset(t *testing.T) {
	a, _ := NewMovingAverage(2)
	a.Update(10)
	a.Update(20)
	a.Reset()

	if got := a.Update(6); got != 6 {
		t.Errorf("update after Reset = %v, want 6", got)
	}
}
