// internal/hr/estimator_test.go
package hr

import (
	"testing"
	"time"

	"github.com/openecg/ecgmon/internal/qrs"
)

// Tests clock beats at the pipeline's default decimated rate.
const hrTestRate = 125.0

func createTestEstimator(t *testing.T) *Estimator {
	t.Helper()
	e, err := NewEstimator(DefaultConfig(hrTestRate))
	if err != nil {
		t.Fatalf("NewEstimator failed: %v", err)
	}
	return e
}

// feedBeats pushes beats at the given indices and returns the last estimate.
func feedBeats(e *Estimator, indices ...uint64) Estimate {
	var est Estimate
	for _, idx := range indices {
		est, _ = e.OnBeat(qrs.Beat{Index: idx})
	}
	return est
}

func TestNewEstimator_InvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{"zero sample rate", func(c *Config) { c.SampleRate = 0 }, ErrInvalidSampleRate},
		{"zero capacity", func(c *Config) { c.Capacity = 0 }, ErrInvalidCapacity},
		{"zero min rr", func(c *Config) { c.MinRR = 0 }, ErrInvalidBounds},
		{"min above max", func(c *Config) { c.MinRR = 3 * time.Second }, ErrInvalidBounds},
		{"timeout below max rr", func(c *Config) { c.Timeout = time.Second }, ErrInvalidTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig(hrTestRate)
			tt.mutate(&cfg)
			if _, err := NewEstimator(cfg); err != tt.want {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestEstimator_SteadyRate(t *testing.T) {
	e := createTestEstimator(t)

	// 60 bpm: one beat every 125 samples. The estimate becomes available
	// once the median window has filled (three retained intervals).
	if est := feedBeats(e, 0, 125, 250); est.Valid {
		t.Error("estimate valid before the median window filled")
	}

	est := feedBeats(e, 375)
	if !est.Valid {
		t.Fatal("estimate not valid after three retained intervals")
	}
	if est.BPM != 60 {
		t.Errorf("BPM = %v, want exactly 60", est.BPM)
	}

	// More beats at the same rate keep it pinned.
	if est := feedBeats(e, 500, 625, 750); est.BPM != 60 || !est.Valid {
		t.Errorf("estimate drifted to (%v, %v) on a steady train", est.BPM, est.Valid)
	}
}

func TestEstimator_FirstBeatOnlyAnchors(t *testing.T) {
	e := createTestEstimator(t)

	est, retained := e.OnBeat(qrs.Beat{Index: 100})
	if !retained {
		t.Error("first beat reported as dropped")
	}
	if est.Valid {
		t.Error("estimate valid after a single beat")
	}
}

func TestEstimator_RejectsShortInterval(t *testing.T) {
	e := createTestEstimator(t)
	before := feedBeats(e, 0, 125, 250, 375, 500)

	// 80 ms interval is far below the 300 ms floor.
	est, retained := e.OnBeat(qrs.Beat{Index: 510})
	if retained {
		t.Error("implausibly short interval was retained")
	}
	if est != before {
		t.Errorf("estimate changed from %+v to %+v on a rejected interval", before, est)
	}
}

func TestEstimator_RejectsLongInterval(t *testing.T) {
	e := createTestEstimator(t)
	before := feedBeats(e, 0, 125, 250, 375, 500)

	// 3 s gap exceeds the 2 s ceiling: dropped, history kept.
	est, retained := e.OnBeat(qrs.Beat{Index: 875})
	if retained {
		t.Error("implausibly long interval was retained")
	}
	if est != before {
		t.Errorf("estimate changed from %+v to %+v on a rejected interval", before, est)
	}

	// The next plausible interval resumes normal accumulation.
	est, retained = e.OnBeat(qrs.Beat{Index: 1000})
	if !retained || !est.Valid {
		t.Errorf("estimate (%+v, retained=%v) after recovery beat", est, retained)
	}
}

func TestEstimator_MedianResistsSingleOutlier(t *testing.T) {
	e := createTestEstimator(t)
	feedBeats(e, 0, 125, 250, 375, 500, 625)

	// One 500 ms interval (120 bpm raw) passes the plausibility bounds but
	// must not move the median-smoothed output on its own.
	est, retained := e.OnBeat(qrs.Beat{Index: 688})
	if !retained {
		t.Fatal("plausible interval was dropped")
	}
	if est.BPM > 70 {
		t.Errorf("BPM jumped to %v on a single odd interval", est.BPM)
	}
}

func TestEstimator_TimeoutInvalidates(t *testing.T) {
	e := createTestEstimator(t)
	feedBeats(e, 0, 125, 250, 375, 500)

	// 5 s at 125 Hz is 625 samples past the last beat.
	if est := e.Tick(500 + 625); !est.Valid {
		t.Error("estimate invalidated exactly at the timeout boundary")
	}
	if est := e.Tick(500 + 626); est.Valid {
		t.Error("estimate still valid past the timeout")
	}
	if e.Current().Valid {
		t.Error("Current() disagrees with the ticked state")
	}
}

func TestEstimator_RecoversAfterTimeout(t *testing.T) {
	e := createTestEstimator(t)
	feedBeats(e, 0, 125, 250, 375, 500)
	e.Tick(5000)
	if e.Current().Valid {
		t.Fatal("estimate should be invalid after the gap")
	}

	// The first returning beat spans the gap and is dropped as implausible;
	// the history survives, so one plausible interval restores the estimate.
	feedBeats(e, 5100)
	est := feedBeats(e, 5225)
	if !est.Valid || est.BPM != 60 {
		t.Errorf("estimate after recovery = %+v, want valid 60 bpm", est)
	}
}

func TestEstimator_NoTimeoutBeforeFirstBeat(t *testing.T) {
	e := createTestEstimator(t)
	if est := e.Tick(100000); est.Valid {
		t.Error("estimate valid with no beats ever seen")
	}
}
