// internal/dsp/biquad.go
package dsp

import (
	"errors"
	"math"

	"github.com/chewxy/math32"
)

var (
	// ErrInvalidSampleRate indicates sample rate must be positive
	ErrInvalidSampleRate = errors.New("sample rate must be positive")
	// ErrInvalidCutoff indicates cutoff must be positive and below Nyquist
	ErrInvalidCutoff = errors.New("cutoff frequency must be positive and less than Nyquist frequency")
	// ErrInvalidQ indicates the quality factor must be positive
	ErrInvalidQ = errors.New("quality factor must be positive")
)

// Biquad is a single second-order IIR section in direct form II transposed.
// Coefficients are computed once at construction from the RBJ audio-EQ
// cookbook formulas; Process touches only the two state variables and never
// allocates.
//
// The section guards its own numerical stability: if the recursion ever
// produces a non-finite value the state is cleared, a neutral zero is
// substituted, and the event is counted. A non-zero count indicates a
// coefficient/configuration bug and is surfaced by the pipeline driver.
type Biquad struct {
	b0, b1, b2 float32
	a1, a2     float32

	z1, z2 float32

	// dcOffset removal for the high-pass variant: the first sample is
	// treated as the resting baseline so a large DC step at power-on does
	// not ring through the recursion.
	subtractFirst bool
	haveFirst     bool
	first         float32

	resets uint64
}

// biquadKind selects the RBJ design formula.
type biquadKind int

const (
	kindLowPass biquadKind = iota
	kindHighPass
	kindNotch
)

// butterworthQ is the quality factor of a maximally flat second-order
// section (1/sqrt(2)).
const butterworthQ = 0.7071068

// NewLowPass creates a second-order Butterworth low-pass section.
func NewLowPass(sampleRate, cutoff float64) (*Biquad, error) {
	return design(kindLowPass, sampleRate, cutoff, butterworthQ, false)
}

// NewHighPass creates a second-order Butterworth high-pass section.
// The first input sample is subtracted as the resting baseline, which keeps
// the power-on DC step out of the recursion (baseline-wander removal starts
// from the signal, not from the converter's offset).
func NewHighPass(sampleRate, cutoff float64) (*Biquad, error) {
	return design(kindHighPass, sampleRate, cutoff, butterworthQ, true)
}

// NewNotch creates a narrow-band notch section centered on freq. Q controls
// the rejection bandwidth (bw = freq/Q); mains suppression typically uses a
// Q around 30 for a 50/60 Hz line.
func NewNotch(sampleRate, freq, q float64) (*Biquad, error) {
	return design(kindNotch, sampleRate, freq, q, false)
}

func design(kind biquadKind, sampleRate, freq, q float64, subtractFirst bool) (*Biquad, error) {
	if sampleRate <= 0 {
		return nil, ErrInvalidSampleRate
	}
	if freq <= 0 || freq >= sampleRate/2 {
		return nil, ErrInvalidCutoff
	}
	if q <= 0 {
		return nil, ErrInvalidQ
	}

	w0 := 2 * math.Pi * freq / sampleRate
	cosw0 := math.Cos(w0)
	alpha := math.Sin(w0) / (2 * q)

	var b0, b1, b2, a0, a1, a2 float64
	switch kind {
	case kindLowPass:
		b1 = 1 - cosw0
		b0 = b1 / 2
		b2 = b0
	case kindHighPass:
		b1 = -(1 + cosw0)
		b0 = -b1 / 2
		b2 = b0
	case kindNotch:
		b0 = 1
		b1 = -2 * cosw0
		b2 = 1
	}
	a0 = 1 + alpha
	a1 = -2 * cosw0
	a2 = 1 - alpha

	return &Biquad{
		b0:            float32(b0 / a0),
		b1:            float32(b1 / a0),
		b2:            float32(b2 / a0),
		a1:            float32(a1 / a0),
		a2:            float32(a2 / a0),
		subtractFirst: subtractFirst,
	}, nil
}

// Process filters one sample.
func (b *Biquad) Process(x float32) float32 {
	if b.subtractFirst {
		if !b.haveFirst {
			b.haveFirst = true
			b.first = x
		}
		x -= b.first
	}

	y := b.b0*x + b.z1
	b.z1 = b.b1*x - b.a1*y + b.z2
	b.z2 = b.b2*x - b.a2*y

	if math32.IsNaN(y) || math32.IsInf(y, 0) {
		b.z1 = 0
		b.z2 = 0
		b.resets++
		return 0
	}
	return y
}

// Reset clears the delay line and the baseline latch.
func (b *Biquad) Reset() {
	b.z1 = 0
	b.z2 = 0
	b.haveFirst = false
	b.first = 0
}

// InstabilityResets returns how many times the section recovered from a
// non-finite state. Zero in any correctly configured pipeline.
func (b *Biquad) InstabilityResets() uint64 {
	return b.resets
}
