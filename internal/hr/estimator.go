// internal/hr/estimator.go
// Package hr derives a smoothed heart-rate estimate from accepted heartbeat
// events, with physiological outlier rejection and stale-estimate timeout.
package hr

import (
	"errors"
	"time"

	"github.com/openecg/ecgmon/internal/dsp"
	"github.com/openecg/ecgmon/internal/qrs"
)

var (
	// ErrInvalidSampleRate indicates sample rate must be positive
	ErrInvalidSampleRate = errors.New("sample rate must be positive")
	// ErrInvalidCapacity indicates the R-R history capacity must be positive
	ErrInvalidCapacity = errors.New("r-r history capacity must be positive")
	// ErrInvalidBounds indicates the R-R rejection bounds are inconsistent
	ErrInvalidBounds = errors.New("min r-r interval must be positive and less than max")
	// ErrInvalidTimeout indicates the estimate timeout must exceed the max interval
	ErrInvalidTimeout = errors.New("rate timeout must be greater than the max r-r interval")
)

// medianSpan is the length of the median filter smoothing the raw rate, so a
// single aberrant interval cannot move the reported value.
const medianSpan = 3

// millisPerMinute converts mean R-R milliseconds to beats per minute.
const millisPerMinute = 60000.0

// Estimate is the current heart-rate state. BPM is meaningful only while
// Valid is true; an invalid estimate means no rate is available (cold start,
// signal lost, or beat timeout), never a stale number.
type Estimate struct {
	BPM   float32
	Valid bool
}

// Config holds configuration for the estimator.
type Config struct {
	// SampleRate is the decimated rate the beat indices are clocked at
	SampleRate float64
	// Capacity is the R-R interval history length (from config: rr_capacity)
	Capacity int
	// MinRR and MaxRR bound physiologically plausible intervals; values
	// outside are dropped from statistics without resetting the history
	// (from config: min_rr_ms, max_rr_ms)
	MinRR time.Duration
	MaxRR time.Duration
	// Timeout invalidates the estimate when no beat has been accepted for
	// this long (from config: rate_timeout_ms)
	Timeout time.Duration
}

// DefaultConfig returns the standard tuning for the given decimated rate.
func DefaultConfig(sampleRate float64) Config {
	return Config{
		SampleRate: sampleRate,
		Capacity:   8,
		MinRR:      300 * time.Millisecond,
		MaxRR:      2 * time.Second,
		Timeout:    5 * time.Second,
	}
}

// Estimator maintains a bounded R-R history and produces a smoothed
// beats-per-minute estimate. One estimator serves one recording session.
type Estimator struct {
	config Config

	rr     *dsp.SlidingWindow // retained intervals, milliseconds
	median *dsp.MedianFilter

	timeoutSamples uint64
	lastBeatIdx    uint64
	haveBeat       bool

	current Estimate
}

// NewEstimator creates an estimator for the given configuration.
func NewEstimator(cfg Config) (*Estimator, error) {
	if cfg.SampleRate <= 0 {
		return nil, ErrInvalidSampleRate
	}
	if cfg.Capacity <= 0 {
		return nil, ErrInvalidCapacity
	}
	if cfg.MinRR <= 0 || cfg.MinRR >= cfg.MaxRR {
		return nil, ErrInvalidBounds
	}
	if cfg.Timeout <= cfg.MaxRR {
		return nil, ErrInvalidTimeout
	}

	rr, err := dsp.NewSlidingWindow(cfg.Capacity)
	if err != nil {
		return nil, err
	}
	median, err := dsp.NewMedianFilter(medianSpan)
	if err != nil {
		return nil, err
	}

	return &Estimator{
		config:         cfg,
		rr:             rr,
		median:         median,
		timeoutSamples: uint64(cfg.Timeout.Seconds() * cfg.SampleRate),
	}, nil
}

// OnBeat consumes one accepted heartbeat. It returns the updated estimate
// and whether the implied R-R interval was retained; a false return marks a
// physiologically implausible interval that was dropped from statistics.
func (e *Estimator) OnBeat(beat qrs.Beat) (Estimate, bool) {
	if !e.haveBeat {
		e.haveBeat = true
		e.lastBeatIdx = beat.Index
		return e.current, true
	}

	intervalMs := float32(beat.Index-e.lastBeatIdx) * 1000 / float32(e.config.SampleRate)
	e.lastBeatIdx = beat.Index

	if intervalMs < float32(e.config.MinRR.Milliseconds()) ||
		intervalMs > float32(e.config.MaxRR.Milliseconds()) {
		// Outliers do not contaminate the buffer and do not reset it.
		return e.current, false
	}

	e.rr.Push(intervalMs)
	e.recompute()
	return e.current, true
}

// recompute derives BPM from the mean retained interval and smooths it
// through the median filter. The estimate stays invalid until the median
// window has filled.
func (e *Estimator) recompute() {
	var sum float32
	e.rr.Do(func(v float32) { sum += v })
	mean := sum / float32(e.rr.Len())

	raw := float32(millisPerMinute) / mean
	if bpm, ok := e.median.Update(raw); ok {
		e.current = Estimate{BPM: bpm, Valid: true}
	}
}

// Tick ages the estimate against the decimated sample clock. If no beat has
// been accepted within the configured timeout the estimate transitions to
// unavailable; the interval history is kept so a returning signal recovers
// quickly.
func (e *Estimator) Tick(idx uint64) Estimate {
	if e.haveBeat && idx-e.lastBeatIdx > e.timeoutSamples {
		e.current.Valid = false
	}
	return e.current
}

// Current returns the latest estimate without advancing the clock.
func (e *Estimator) Current() Estimate {
	return e.current
}

// Config returns the configuration.
func (e *Estimator) Config() Config {
	return e.config
}
