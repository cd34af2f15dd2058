// internal/source/simulator.go
// Package source provides raw-sample producers standing in for the analog
// front end: a deterministic synthetic ECG generator and a serial-port
// adapter for an external front-end board.
package source

import (
	"errors"

	"github.com/chewxy/math32"

	"github.com/openecg/ecgmon/internal/pipeline"
)

var (
	// ErrInvalidSimRate indicates sample rate must be positive
	ErrInvalidSimRate = errors.New("simulator sample rate must be positive")
	// ErrInvalidSimBPM indicates the simulated heart rate must be positive
	ErrInvalidSimBPM = errors.New("simulator bpm must be positive")
	// ErrInvalidSimNoise indicates the noise amplitude must be non-negative
	ErrInvalidSimNoise = errors.New("simulator noise must be non-negative")
)

// Source delivers raw samples one at a time, like the front-end driver does.
type Source interface {
	Next() (pipeline.RawSample, error)
}

// SimulatorConfig holds configuration for the synthetic ECG generator.
type SimulatorConfig struct {
	// SampleRate in Hz (from config: sample_rate)
	SampleRate float64
	// BPM is the simulated heart rate (from config: sim_bpm)
	BPM float64
	// Noise is the peak amplitude of the deterministic noise term relative
	// to the R-wave (from config: sim_noise)
	Noise float64
}

// Simulator generates a non-clinical but ECG-shaped waveform: a slow
// baseline plus Gaussian P, Q, R, S and T deflections and a cheap
// deterministic noise term. Two simulators with the same configuration
// produce bit-identical streams, which the determinism tests rely on.
type Simulator struct {
	config SimulatorConfig
	step   float32
	phase  float32
}

// gaussian positions and widths within one normalized cardiac cycle.
var simWaves = [...]struct{ amp, mu, sigma float32 }{
	{0.08, 0.18, 0.03},   // P
	{-0.12, 0.30, 0.01},  // Q
	{1.00, 0.32, 0.008},  // R
	{-0.25, 0.35, 0.012}, // S
	{0.25, 0.60, 0.06},   // T
}

// NewSimulator creates a generator producing samples at the configured rate.
func NewSimulator(cfg SimulatorConfig) (*Simulator, error) {
	if cfg.SampleRate <= 0 {
		return nil, ErrInvalidSimRate
	}
	if cfg.BPM <= 0 {
		return nil, ErrInvalidSimBPM
	}
	if cfg.Noise < 0 {
		return nil, ErrInvalidSimNoise
	}
	return &Simulator{
		config: cfg,
		step:   float32(cfg.BPM / 60.0 / cfg.SampleRate),
	}, nil
}

// Next returns the next sample and advances the cycle phase. The error is
// always nil; it exists to satisfy Source.
func (s *Simulator) Next() (pipeline.RawSample, error) {
	t := s.phase
	s.phase += s.step
	if s.phase >= 1.0 {
		s.phase -= 1.0
	}

	// slow respiration-like baseline drift
	v := 0.05 * math32.Sin(2*math32.Pi*0.33*t)

	for _, w := range simWaves {
		z := (t - w.mu) / w.sigma
		v += w.amp * math32.Exp(-0.5*z*z)
	}

	if s.config.Noise > 0 {
		// deterministic pseudo-noise, cheap and repeatable
		n := math32.Sin(12345.678*t) * 9876.543
		v += float32(s.config.Noise) * (2*(n-math32.Floor(n)) - 1)
	}

	return pipeline.RawSample{Value: v, Valid: true}, nil
}

// Config returns the configuration.
func (s *Simulator) Config() SimulatorConfig {
	return s.config
}
