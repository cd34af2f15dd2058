// internal/dsp/decimator.go
package dsp

import "errors"

var (
	// ErrInvalidFactor indicates the decimation factor must be at least 1
	ErrInvalidFactor = errors.New("decimation factor must be at least 1")
	// ErrInvalidTopology indicates an unknown anti-alias topology
	ErrInvalidTopology = errors.New("unknown decimator topology")
)

// Topology selects the anti-alias filter wrapped by the decimator. The
// choice trades rejection quality against compute and is fixed at
// construction; it never changes the decimation contract.
type Topology int

const (
	// TopologyStandard cascades two Butterworth low-pass sections
	// (4th order) for best alias rejection.
	TopologyStandard Topology = iota
	// TopologyLight uses a single section (2nd order), trading stop-band
	// rejection for roughly half the per-sample work.
	TopologyLight
)

// String returns the config-file spelling of the topology.
func (t Topology) String() string {
	switch t {
	case TopologyStandard:
		return "standard"
	case TopologyLight:
		return "light"
	default:
		return "unknown"
	}
}

// ParseTopology maps the config-file spelling to a Topology.
func ParseTopology(s string) (Topology, error) {
	switch s {
	case "standard":
		return TopologyStandard, nil
	case "light":
		return TopologyLight, nil
	default:
		return 0, ErrInvalidTopology
	}
}

// antiAliasCutoffRatio places the low-pass corner below the post-decimation
// Nyquist frequency (0.4 of the output rate) to leave a transition band.
const antiAliasCutoffRatio = 0.4

// DecimatorConfig holds configuration for a Decimator.
type DecimatorConfig struct {
	// SampleRate is the input rate in Hz (from config: sample_rate)
	SampleRate float64
	// Factor is the decimation ratio N (from config: decimation_factor)
	Factor int
	// Topology selects the anti-alias filter (from config: topology)
	Topology Topology
}

// Decimator reduces the sample rate by an integer factor. Every input sample
// passes through the wrapped anti-alias Stage; exactly one filtered output is
// emitted per Factor inputs, so a sequence of length k yields ⌊k/N⌋ outputs.
type Decimator struct {
	config DecimatorConfig
	filter Stage
	count  int
}

// NewDecimator creates a decimator with the configured anti-alias topology.
func NewDecimator(cfg DecimatorConfig) (*Decimator, error) {
	if cfg.Factor < 1 {
		return nil, ErrInvalidFactor
	}

	cutoff := antiAliasCutoffRatio * cfg.SampleRate / float64(cfg.Factor)

	var filter Stage
	switch cfg.Topology {
	case TopologyStandard:
		first, err := NewLowPass(cfg.SampleRate, cutoff)
		if err != nil {
			return nil, err
		}
		second, err := NewLowPass(cfg.SampleRate, cutoff)
		if err != nil {
			return nil, err
		}
		chain, err := NewChain(first, second)
		if err != nil {
			return nil, err
		}
		filter = chain
	case TopologyLight:
		lp, err := NewLowPass(cfg.SampleRate, cutoff)
		if err != nil {
			return nil, err
		}
		filter = lp
	default:
		return nil, ErrInvalidTopology
	}

	return &Decimator{config: cfg, filter: filter}, nil
}

// Push filters one input sample and reports whether an output was produced.
// The counter wraps every Factor calls; the decimator never emits early and
// never completes a wrap without emitting.
func (d *Decimator) Push(x float32) (float32, bool) {
	y := d.filter.Process(x)

	d.count++
	if d.count == d.config.Factor {
		d.count = 0
		return y, true
	}
	return 0, false
}

// OutputRate returns the post-decimation rate in Hz.
func (d *Decimator) OutputRate() float64 {
	return d.config.SampleRate / float64(d.config.Factor)
}

// InstabilityResets reports instability recoveries in the anti-alias filter.
func (d *Decimator) InstabilityResets() uint64 {
	if ic, ok := d.filter.(instabilityCounter); ok {
		return ic.InstabilityResets()
	}
	return 0
}

// Reset clears the anti-alias filter and the phase counter.
func (d *Decimator) Reset() {
	d.filter.Reset()
	d.count = 0
}

// Config returns the configuration (for testing and inspection).
func (d *Decimator) Config() DecimatorConfig {
	return d.config
}
