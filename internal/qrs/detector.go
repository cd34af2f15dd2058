// internal/qrs/detector.go
// Package qrs implements heartbeat detection on the conditioned, decimated
// ECG signal using a Pan-Tompkins style transform with adaptive thresholds,
// refractory blanking, T-wave rejection and search-back recovery.
package qrs

import (
	"errors"
	"time"

	"github.com/chewxy/math32"

	"github.com/openecg/ecgmon/internal/dsp"
)

var (
	// ErrInvalidSampleRate indicates sample rate must be positive
	ErrInvalidSampleRate = errors.New("sample rate must be positive")
	// ErrInvalidRefractory indicates the refractory period must be positive
	ErrInvalidRefractory = errors.New("refractory period must be positive")
	// ErrInvalidSearchback indicates the search-back multiplier must exceed 1
	ErrInvalidSearchback = errors.New("search-back multiplier must be greater than 1.0")
	// ErrInvalidFraction indicates the threshold fraction must be in (0,1)
	ErrInvalidFraction = errors.New("threshold fraction must be between 0.0 and 1.0")
	// ErrInvalidHistory indicates history capacities must be positive
	ErrInvalidHistory = errors.New("history capacity must be positive")
	// ErrInvalidLearning indicates the learning period must be positive
	ErrInvalidLearning = errors.New("learning period must be positive")
)

// Tuning constants. These set the qualitative behavior (adapt, recover
// missed beats, resist T-wave false positives); the exact values are not
// load-bearing beyond that.
const (
	// integrationWindow is the moving-window integration length. Wide
	// enough to merge the rising- and falling-edge energy of one QRS
	// complex into a single peak, short enough to keep T-wave energy out.
	integrationWindow = 150 * time.Millisecond
	// tWaveWindow is how long after an accepted beat a candidate is
	// screened against the T-wave amplitude test.
	tWaveWindow = 360 * time.Millisecond
	// tWaveAmpRatio classifies a candidate inside the T-wave window as
	// noise when its amplitude is below this fraction of the last beat's.
	tWaveAmpRatio = 0.5
	// signalWeight and noiseWeight are the exponential-smoothing weights
	// for the adaptive signal and noise levels (new peak contribution).
	signalWeight = 0.125
	noiseWeight  = 0.125
	// searchbackWeight adapts the signal level faster on a search-back
	// acceptance, since the recovered beat is evidence the level is high.
	searchbackWeight = 0.25
	// levelFloor keeps the adaptive levels from freezing at exactly zero.
	levelFloor = 1e-6
)

// Beat is one accepted heartbeat. Index is the detector input sample at
// which the QRS energy peaked (decimated-rate clock); Amplitude is the
// integrated transform value at that peak; Confidence is the margin above
// the acceptance threshold, normalized to 0..1.
type Beat struct {
	Index      uint64
	Amplitude  float32
	Confidence float32
}

// Config holds configuration for the detector. All durations are wall-clock
// and converted to sample counts at the configured (decimated) rate during
// construction.
type Config struct {
	// SampleRate is the decimated input rate in Hz
	SampleRate float64
	// Refractory is the minimum interval between accepted beats (from config: refractory_ms)
	Refractory time.Duration
	// Learning is the cold-start period during which thresholds are seeded
	// from observed statistics and no beats are emitted (from config: learning_ms)
	Learning time.Duration
	// SearchbackFactor triggers a lowered-threshold re-scan when no beat has
	// been accepted for this multiple of the recent average R-R interval
	// (from config: searchback_factor)
	SearchbackFactor float64
	// ThresholdFraction positions the acceptance threshold between the noise
	// and signal levels (from config: threshold_fraction)
	ThresholdFraction float64
	// PeakHistory is the capacity of the recent-peak ring used by search-back
	PeakHistory int
	// RRHistory is the capacity of the R-R interval ring used for the
	// search-back trigger average
	RRHistory int
}

// DefaultConfig returns the standard tuning for the given decimated rate.
func DefaultConfig(sampleRate float64) Config {
	return Config{
		SampleRate:        sampleRate,
		Refractory:        200 * time.Millisecond,
		Learning:          2 * time.Second,
		SearchbackFactor:  1.66,
		ThresholdFraction: 0.25,
		PeakHistory:       16,
		RRHistory:         8,
	}
}

// peakRecord is one observed (non-accepted) local peak kept for search-back.
type peakRecord struct {
	idx uint64
	amp float32
}

// peakRing is a fixed-capacity overwrite-oldest buffer of peak records.
type peakRing struct {
	buf   []peakRecord
	head  int
	count int
}

func newPeakRing(n int) *peakRing {
	return &peakRing{buf: make([]peakRecord, n)}
}

func (r *peakRing) push(p peakRecord) {
	r.buf[(r.head+r.count)%len(r.buf)] = p
	if r.count < len(r.buf) {
		r.count++
	} else {
		r.head = (r.head + 1) % len(r.buf)
	}
}

func (r *peakRing) do(fn func(peakRecord)) {
	for i := 0; i < r.count; i++ {
		fn(r.buf[(r.head+i)%len(r.buf)])
	}
}

func (r *peakRing) reset() {
	r.head = 0
	r.count = 0
}

// Detector consumes conditioned, decimated samples one at a time and emits
// discrete heartbeat events. All state is owned exclusively by the instance;
// a fresh session constructs a fresh detector rather than reusing one.
type Detector struct {
	config Config

	// converted sample counts
	refractorySamples uint64
	tWaveSamples      uint64
	learnSamples      int

	// transform state
	deriv      [4]float32 // x[n-1] .. x[n-4]
	derivFill  int
	integrator *dsp.MovingAverage

	// local-maximum tracking on the integrated transform
	prevInteg float32
	rising    bool

	// adaptive levels
	signalLevel float32
	noiseLevel  float32

	// cold-start learning statistics
	learnRemaining int
	learnMax       float32
	learnSum       float64
	learnCount     int

	// beat bookkeeping
	idx         uint64 // samples consumed
	lastBeatIdx uint64
	lastBeatAmp float32
	haveBeat    bool

	peaks *peakRing
	rr    *dsp.SlidingWindow
}

// NewDetector creates a detector for the given configuration.
func NewDetector(cfg Config) (*Detector, error) {
	if cfg.SampleRate <= 0 {
		return nil, ErrInvalidSampleRate
	}
	if cfg.Refractory <= 0 {
		return nil, ErrInvalidRefractory
	}
	if cfg.Learning <= 0 {
		return nil, ErrInvalidLearning
	}
	if cfg.SearchbackFactor <= 1.0 {
		return nil, ErrInvalidSearchback
	}
	if cfg.ThresholdFraction <= 0 || cfg.ThresholdFraction >= 1 {
		return nil, ErrInvalidFraction
	}
	if cfg.PeakHistory <= 0 || cfg.RRHistory <= 0 {
		return nil, ErrInvalidHistory
	}

	integLen := samplesFor(integrationWindow, cfg.SampleRate)
	integrator, err := dsp.NewMovingAverage(integLen)
	if err != nil {
		return nil, err
	}
	rr, err := dsp.NewSlidingWindow(cfg.RRHistory)
	if err != nil {
		return nil, err
	}

	return &Detector{
		config:            cfg,
		refractorySamples: uint64(samplesFor(cfg.Refractory, cfg.SampleRate)),
		tWaveSamples:      uint64(samplesFor(tWaveWindow, cfg.SampleRate)),
		learnSamples:      samplesFor(cfg.Learning, cfg.SampleRate),
		integrator:        integrator,
		learnRemaining:    samplesFor(cfg.Learning, cfg.SampleRate),
		peaks:             newPeakRing(cfg.PeakHistory),
		rr:                rr,
	}, nil
}

// samplesFor converts a duration to a sample count at rate, at least 1.
func samplesFor(d time.Duration, rate float64) int {
	n := int(d.Seconds() * rate)
	if n < 1 {
		n = 1
	}
	return n
}

// Update consumes one conditioned, decimated sample. It returns a Beat and
// true when a heartbeat is accepted on this sample; a search-back acceptance
// carries an Index earlier than the current sample.
func (d *Detector) Update(x float32) (Beat, bool) {
	integ := d.transform(x)
	current := d.idx
	d.idx++

	if d.learnRemaining > 0 {
		d.learn(integ)
		d.prevInteg = integ
		return Beat{}, false
	}

	// Local maximum of the integrated transform: a strict fall after a
	// rise marks the previous sample as a candidate peak.
	var beat Beat
	accepted := false
	if d.rising && integ < d.prevInteg {
		beat, accepted = d.classify(current-1, d.prevInteg)
	}
	if integ > d.prevInteg {
		d.rising = true
	} else if integ < d.prevInteg {
		d.rising = false
	}
	d.prevInteg = integ

	if !accepted {
		beat, accepted = d.searchback(current)
	}
	return beat, accepted
}

// transform applies the derivative-square-integrate emphasis.
func (d *Detector) transform(x float32) float32 {
	// Five-point derivative: (2x[n] + x[n-1] - x[n-3] - 2x[n-4]) / 8.
	var dv float32
	if d.derivFill < 4 {
		d.derivFill++
	} else {
		dv = (2*x + d.deriv[0] - d.deriv[2] - 2*d.deriv[3]) / 8
	}
	d.deriv[3] = d.deriv[2]
	d.deriv[2] = d.deriv[1]
	d.deriv[1] = d.deriv[0]
	d.deriv[0] = x

	return d.integrator.Update(dv * dv)
}

// learn accumulates cold-start statistics and seeds the adaptive levels when
// the learning period ends. No beats are emitted while learning.
func (d *Detector) learn(integ float32) {
	if integ > d.learnMax {
		d.learnMax = integ
	}
	d.learnSum += float64(integ)
	d.learnCount++

	d.learnRemaining--
	if d.learnRemaining == 0 {
		mean := float32(d.learnSum / float64(d.learnCount))
		d.signalLevel = math32.Max(d.learnMax, levelFloor)
		d.noiseLevel = math32.Max(mean, levelFloor)
	}
}

// threshold returns the primary acceptance threshold.
func (d *Detector) threshold() float32 {
	return d.noiseLevel + float32(d.config.ThresholdFraction)*(d.signalLevel-d.noiseLevel)
}

// classify decides whether a candidate peak is a beat, a T-wave, or noise.
func (d *Detector) classify(peakIdx uint64, amp float32) (Beat, bool) {
	if d.haveBeat {
		since := peakIdx - d.lastBeatIdx
		if since < d.refractorySamples {
			// Physiological minimum R-R: ignore entirely.
			return Beat{}, false
		}
		if since < d.tWaveSamples && amp < tWaveAmpRatio*d.lastBeatAmp {
			// Secondary, time-delayed screen: low-amplitude energy this
			// soon after a beat is the T-wave, not a second complex.
			d.markNoise(amp)
			return Beat{}, false
		}
	}

	thr := d.threshold()
	if amp > thr {
		return d.accept(peakIdx, amp, thr, signalWeight), true
	}

	d.markNoise(amp)
	if amp > thr/2 {
		// Above the lowered search-back threshold: keep as a candidate
		// for retroactive recovery.
		d.peaks.push(peakRecord{idx: peakIdx, amp: amp})
	}
	return Beat{}, false
}

// markNoise folds a rejected peak into the noise level.
func (d *Detector) markNoise(amp float32) {
	d.noiseLevel = noiseWeight*amp + (1-noiseWeight)*d.noiseLevel
	if d.noiseLevel < levelFloor {
		d.noiseLevel = levelFloor
	}
}

// accept records a beat at peakIdx and adapts the signal level.
func (d *Detector) accept(peakIdx uint64, amp, thr float32, weight float32) Beat {
	if d.haveBeat {
		d.rr.Push(float32(peakIdx - d.lastBeatIdx))
	}
	d.lastBeatIdx = peakIdx
	d.lastBeatAmp = amp
	d.haveBeat = true

	d.signalLevel = weight*amp + (1-weight)*d.signalLevel
	if d.signalLevel < levelFloor {
		d.signalLevel = levelFloor
	}

	conf := float32(1)
	if d.signalLevel > thr {
		conf = (amp - thr) / (d.signalLevel - thr)
	}
	return Beat{
		Index:      peakIdx,
		Amplitude:  amp,
		Confidence: math32.Max(0, math32.Min(1, conf)),
	}
}

// searchback retroactively accepts a missed, lower-amplitude beat when no
// beat has arrived for longer than the search-back multiple of the recent
// average R-R interval. The threshold is halved only for this re-scan, so
// the primary sensitivity is unchanged.
func (d *Detector) searchback(current uint64) (Beat, bool) {
	if !d.haveBeat || d.rr.Len() == 0 {
		return Beat{}, false
	}
	avg := d.averageRR()
	if float64(current-d.lastBeatIdx) <= d.config.SearchbackFactor*float64(avg) {
		return Beat{}, false
	}

	thr := d.threshold() / 2
	earliest := d.lastBeatIdx + d.refractorySamples

	best := peakRecord{}
	found := false
	d.peaks.do(func(p peakRecord) {
		if p.idx >= earliest && p.idx < current && p.amp > thr && (!found || p.amp > best.amp) {
			best = p
			found = true
		}
	})
	if !found {
		return Beat{}, false
	}

	return d.accept(best.idx, best.amp, thr, searchbackWeight), true
}

// averageRR returns the mean of the R-R history in samples.
func (d *Detector) averageRR() float32 {
	var sum float32
	d.rr.Do(func(v float32) { sum += v })
	return sum / float32(d.rr.Len())
}

// Thresholds returns the current adaptive levels (for testing and
// inspection).
func (d *Detector) Thresholds() (signal, noise float32) {
	return d.signalLevel, d.noiseLevel
}

// Index returns the number of samples consumed.
func (d *Detector) Index() uint64 {
	return d.idx
}

// Config returns the configuration.
func (d *Detector) Config() Config {
	return d.config
}

// Reset returns the detector to its cold-start state, including a fresh
// learning period.
func (d *Detector) Reset() {
	d.deriv = [4]float32{}
	d.derivFill = 0
	d.integrator.Reset()
	d.prevInteg = 0
	d.rising = false
	d.signalLevel = 0
	d.noiseLevel = 0
	d.learnRemaining = d.learnSamples
	d.learnMax = 0
	d.learnSum = 0
	d.learnCount = 0
	d.idx = 0
	d.lastBeatIdx = 0
	d.lastBeatAmp = 0
	d.haveBeat = false
	d.peaks.reset()
	d.rr.Reset()
}
