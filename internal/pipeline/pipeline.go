// internal/pipeline/pipeline.go
// Package pipeline wires the conditioning chain, decimator, QRS detector and
// heart-rate estimator into a single per-sample Tick entry point.
package pipeline

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/openecg/ecgmon/internal/dsp"
	"github.com/openecg/ecgmon/internal/hr"
	"github.com/openecg/ecgmon/internal/qrs"
)

// ErrInvalidSampleRate indicates sample rate must be positive
var ErrInvalidSampleRate = errors.New("sample rate must be positive")

// RawSample is one delivery from the analog front end. Valid is false on
// lead-off or saturation; the pipeline substitutes safe values for invalid
// samples and degrades the output quality instead of propagating them.
type RawSample struct {
	Value float32
	Valid bool
}

// Quality flags the trustworthiness of one tick's output.
type Quality uint8

const (
	// QualityGood marks a fully valid tick.
	QualityGood Quality = iota
	// QualitySuspect marks a tick where the detector or estimator rejected
	// a physiologically implausible measurement; transient, self-clearing.
	QualitySuspect
	// QualityDegraded marks a tick whose input was invalid (lead-off,
	// saturation) or whose filters recovered from numerical instability.
	QualityDegraded
)

// String returns a human-readable quality name.
func (q Quality) String() string {
	switch q {
	case QualityGood:
		return "good"
	case QualitySuspect:
		return "suspect"
	case QualityDegraded:
		return "degraded"
	default:
		return "unknown"
	}
}

// Output is everything computed for one input sample. These values are the
// sole data handed to display, storage and reporting consumers; none of them
// reach into pipeline internals.
type Output struct {
	// Index is the raw-sample sequence number, derived from stream position.
	Index uint64
	// Conditioned is the filtered sample for display and recording.
	Conditioned float32
	// Quality flags this tick's trustworthiness.
	Quality Quality
	// Beat carries a detected heartbeat when HasBeat is true. Its Index is
	// on the decimated clock and may precede the current tick when the
	// beat was recovered by search-back.
	Beat    qrs.Beat
	HasBeat bool
	// Rate is the current heart-rate estimate.
	Rate hr.Estimate
}

// Config holds the construction-time pipeline configuration. Nothing here is
// mutable mid-session; changing any of it means constructing a new pipeline.
type Config struct {
	// SampleRate is the raw input rate in Hz (from config: sample_rate)
	SampleRate float64
	// DecimationFactor reduces the rate ahead of detection (from config: decimation_factor)
	DecimationFactor int
	// Topology selects the anti-alias filter (from config: topology)
	Topology dsp.Topology
	// MainsFrequency tunes the power-line notch in Hz (from config: mains_frequency)
	MainsFrequency float64
	// NotchQ sets the notch rejection bandwidth (from config: notch_q)
	NotchQ float64
	// HighpassCutoff removes baseline wander in Hz (from config: highpass_cutoff)
	HighpassCutoff float64
	// LowpassCutoff bounds the conditioned bandwidth in Hz (from config: lowpass_cutoff)
	LowpassCutoff float64
	// Detector and Estimator carry the downstream tuning; their SampleRate
	// fields are overwritten with the decimated rate during construction.
	Detector  qrs.Config
	Estimator hr.Config
}

// DefaultConfig returns the standard pipeline tuning for a 1 kHz front end
// on a 50 Hz mains grid.
func DefaultConfig() Config {
	decimated := 1000.0 / 8
	return Config{
		SampleRate:       1000,
		DecimationFactor: 8,
		Topology:         dsp.TopologyStandard,
		MainsFrequency:   50,
		NotchQ:           30,
		HighpassCutoff:   0.5,
		LowpassCutoff:    40,
		Detector:         qrs.DefaultConfig(decimated),
		Estimator:        hr.DefaultConfig(decimated),
	}
}

// Pipeline owns one conditioning chain, one decimator, one detector and one
// estimator for the lifetime of a recording session. Exactly one Tick call
// may be in flight at a time; serialization across producers is the caller's
// responsibility. Tick never blocks, suspends or performs I/O.
type Pipeline struct {
	config Config

	chain     *dsp.Chain
	decimator *dsp.Decimator
	detector  *qrs.Detector
	estimator *hr.Estimator

	idx           uint64
	lastValid     float32
	seenResets    uint64
	rate          hr.Estimate
	suspectTicks  uint64
	degradedTicks uint64
}

// New constructs a pipeline from the configuration. The stage order is
// fixed: baseline high-pass, mains notch, low-pass, then decimation.
func New(cfg Config) (*Pipeline, error) {
	if cfg.SampleRate <= 0 {
		return nil, ErrInvalidSampleRate
	}

	highpass, err := dsp.NewHighPass(cfg.SampleRate, cfg.HighpassCutoff)
	if err != nil {
		return nil, fmt.Errorf("highpass stage: %w", err)
	}
	notch, err := dsp.NewNotch(cfg.SampleRate, cfg.MainsFrequency, cfg.NotchQ)
	if err != nil {
		return nil, fmt.Errorf("notch stage: %w", err)
	}
	lowpass, err := dsp.NewLowPass(cfg.SampleRate, cfg.LowpassCutoff)
	if err != nil {
		return nil, fmt.Errorf("lowpass stage: %w", err)
	}
	chain, err := dsp.NewChain(highpass, notch, lowpass)
	if err != nil {
		return nil, err
	}

	decimator, err := dsp.NewDecimator(dsp.DecimatorConfig{
		SampleRate: cfg.SampleRate,
		Factor:     cfg.DecimationFactor,
		Topology:   cfg.Topology,
	})
	if err != nil {
		return nil, fmt.Errorf("decimator: %w", err)
	}

	cfg.Detector.SampleRate = decimator.OutputRate()
	detector, err := qrs.NewDetector(cfg.Detector)
	if err != nil {
		return nil, fmt.Errorf("detector: %w", err)
	}

	cfg.Estimator.SampleRate = decimator.OutputRate()
	estimator, err := hr.NewEstimator(cfg.Estimator)
	if err != nil {
		return nil, fmt.Errorf("estimator: %w", err)
	}

	return &Pipeline{
		config:    cfg,
		chain:     chain,
		decimator: decimator,
		detector:  detector,
		estimator: estimator,
	}, nil
}

// Tick processes one raw sample and returns everything computed for it.
// It is pure computation over owned state: no locks, no channels, no clock
// reads, making it safe to call from a timer-driven hard-real-time context.
func (p *Pipeline) Tick(raw RawSample) Output {
	out := Output{Index: p.idx}
	p.idx++

	if raw.Valid {
		out.Conditioned = p.chain.Process(raw.Value)
		p.lastValid = out.Conditioned
		out.Quality = QualityGood
	} else {
		// Lead-off or saturation: hold the last valid conditioned value so
		// downstream consumers never see NaN/Inf, and flag the tick.
		out.Conditioned = p.lastValid
		out.Quality = QualityDegraded
		p.degradedTicks++
	}

	if resets := p.chain.InstabilityResets() + p.decimator.InstabilityResets(); resets != p.seenResets {
		log.Printf("pipeline: filter state reset after numerical instability (total %d)", resets)
		p.seenResets = resets
		out.Quality = QualityDegraded
	}

	if decimated, ok := p.decimator.Push(out.Conditioned); ok {
		if beat, detected := p.detector.Update(decimated); detected {
			out.Beat = beat
			out.HasBeat = true
			if est, retained := p.estimator.OnBeat(beat); retained {
				p.rate = est
			} else if out.Quality == QualityGood {
				// Implausible R-R rejected from statistics: transient flag,
				// never fatal.
				out.Quality = QualitySuspect
				p.suspectTicks++
			}
		}
		p.rate = p.estimator.Tick(p.detector.Index())
	}

	out.Rate = p.rate
	return out
}

// SamplePeriod returns the wall-clock duration of one raw sample. A Tick
// that cannot complete within this period is a fatal configuration error
// (undersized compute budget), not something the pipeline retries.
func (p *Pipeline) SamplePeriod() time.Duration {
	return time.Duration(float64(time.Second) / p.config.SampleRate)
}

// Index returns the number of raw samples consumed.
func (p *Pipeline) Index() uint64 {
	return p.idx
}

// DegradedTicks returns how many ticks carried invalid input.
func (p *Pipeline) DegradedTicks() uint64 {
	return p.degradedTicks
}

// SuspectTicks returns how many ticks carried a rejected measurement.
func (p *Pipeline) SuspectTicks() uint64 {
	return p.suspectTicks
}

// Config returns the construction configuration.
func (p *Pipeline) Config() Config {
	return p.config
}
