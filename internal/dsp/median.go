// internal/dsp/median.go
package dsp

// MedianFilter emits the median of the most recent N samples. It starts
// emitting once the window has filled; until then Update reports false.
// The scratch buffer is allocated once, so steady-state updates are
// allocation-free. Selection is a partial selection sort over the small
// windows used here (3-9 samples).
type MedianFilter struct {
	window  *SlidingWindow
	scratch []float32
}

// NewMedianFilter creates a median filter over a window of n samples.
func NewMedianFilter(n int) (*MedianFilter, error) {
	w, err := NewSlidingWindow(n)
	if err != nil {
		return nil, err
	}
	return &MedianFilter{
		window:  w,
		scratch: make([]float32, n),
	}, nil
}

// Update pushes a sample and returns the window median once the window is
// full. The boolean is false while the filter is still warming up.
func (m *MedianFilter) Update(x float32) (float32, bool) {
	m.window.Push(x)
	if !m.window.Full() {
		return 0, false
	}

	n := m.window.CopyTo(m.scratch)
	return selectNth(m.scratch[:n], n/2), true
}

// Reset empties the window.
func (m *MedianFilter) Reset() {
	m.window.Reset()
}

// selectNth partially sorts data in place and returns the nth smallest value.
func selectNth(data []float32, n int) float32 {
	for i := 0; i <= n; i++ {
		min := i
		for j := i + 1; j < len(data); j++ {
			if data[j] < data[min] {
				min = j
			}
		}
		data[i], data[min] = data[min], data[i]
	}
	return data[n]
}
