// cmd/monitor_test.go
package cmd

import (
	"bytes"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/openecg/ecgmon/internal/config"
	"github.com/openecg/ecgmon/internal/hr"
	"github.com/openecg/ecgmon/internal/pipeline"
	"github.com/openecg/ecgmon/internal/qrs"
)

func testSettings() *config.Settings {
	return &config.Settings{
		SampleRate:        1000,
		DecimationFactor:  8,
		Topology:          "standard",
		MainsFrequency:    50,
		NotchQ:            30,
		HighpassCutoff:    0.5,
		LowpassCutoff:     40,
		RefractoryMs:      200,
		LearningMs:        2000,
		SearchbackFactor:  1.66,
		ThresholdFraction: 0.25,
		RRCapacity:        8,
		MinRRMs:           300,
		MaxRRMs:           2000,
		RateTimeoutMs:     5000,
		Source:            "sim",
		SimBPM:            72,
		SimNoise:          0.02,
		SerialBaud:        115200,
		QueueSize:         256,
	}
}

func TestBuildPipeline(t *testing.T) {
	pipe, err := buildPipeline(testSettings())
	if err != nil {
		t.Fatalf("buildPipeline failed: %v", err)
	}

	cfg := pipe.Config()
	if cfg.SampleRate != 1000 || cfg.DecimationFactor != 8 {
		t.Errorf("acquisition config = %v Hz /%d", cfg.SampleRate, cfg.DecimationFactor)
	}
	if cfg.Detector.SearchbackFactor != 1.66 {
		t.Errorf("Detector.SearchbackFactor = %v, want 1.66", cfg.Detector.SearchbackFactor)
	}
	if cfg.Estimator.Capacity != 8 {
		t.Errorf("Estimator.Capacity = %d, want 8", cfg.Estimator.Capacity)
	}
}

func TestBuildPipeline_BadTopology(t *testing.T) {
	s := testSettings()
	s.Topology = "heavy"
	if _, err := buildPipeline(s); err == nil {
		t.Error("expected error for unknown topology, got nil")
	}
}

func TestBuildSource_Simulator(t *testing.T) {
	src, closeSrc, err := buildSource(testSettings())
	if err != nil {
		t.Fatalf("buildSource failed: %v", err)
	}
	defer closeSrc()

	raw, err := src.Next()
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if !raw.Valid {
		t.Error("simulator sample marked invalid")
	}
}

func TestBuildSource_BadSerialPort(t *testing.T) {
	s := testSettings()
	s.Source = "serial"
	s.SerialPort = "/dev/does-not-exist-ecgmon-test"
	if _, _, err := buildSource(s); err == nil {
		t.Error("expected error opening a nonexistent port, got nil")
	}
}

func TestPrintOutputs(t *testing.T) {
	tap, err := pipeline.NewTap(16)
	if err != nil {
		t.Fatalf("NewTap failed: %v", err)
	}

	tap.Offer(pipeline.Output{Index: 0})
	tap.Offer(pipeline.Output{
		Index:   1,
		HasBeat: true,
		Beat:    qrs.Beat{Index: 12, Amplitude: 0.5, Confidence: 0.8},
		Rate:    hr.Estimate{BPM: 60, Valid: true},
	})
	tap.Offer(pipeline.Output{Index: 2, Quality: pipeline.QualityDegraded, Rate: hr.Estimate{BPM: 60, Valid: true}})
	tap.Close()

	var buf bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&buf)
	printOutputs(cmd, tap, true)

	out := buf.String()
	for _, want := range []string{"beat", "index=12", "rate", "60 bpm", "good -> degraded"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}
