// cmd/monitor.go
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/openecg/ecgmon/internal/config"
	"github.com/openecg/ecgmon/internal/dsp"
	"github.com/openecg/ecgmon/internal/pipeline"
	"github.com/openecg/ecgmon/internal/recovery"
	"github.com/openecg/ecgmon/internal/source"
)

// pacing for the sampling loop: samples are produced in small bursts on a
// coarse ticker instead of one timer event per sample, which a general
// purpose OS cannot deliver at 1 kHz.
const paceInterval = 20 * time.Millisecond

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Run the pipeline and print beats and heart rate",
	RunE:  runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
}

func runMonitor(cmd *cobra.Command, args []string) error {
	settings, err := config.Get()
	if err != nil {
		return err
	}

	pipe, err := buildPipeline(settings)
	if err != nil {
		return fmt.Errorf("build pipeline: %w", err)
	}
	src, closeSrc, err := buildSource(settings)
	if err != nil {
		return fmt.Errorf("build source: %w", err)
	}
	defer closeSrc()

	tap, err := pipeline.NewTap(settings.QueueSize)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	done := make(chan struct{})
	go func() {
		defer recovery.HandlePanicFunc(func() { stop() })
		defer close(done)
		printOutputs(cmd, tap, settings.Debug)
	}()

	err = sampleLoop(ctx, src, pipe, tap, settings.SampleRate)
	tap.Close()
	<-done

	if drops := tap.Drops(); drops > 0 && settings.Debug {
		fmt.Fprintf(cmd.ErrOrStderr(), "dropped %d unread outputs\n", drops)
	}
	return err
}

// buildPipeline translates validated settings into the pipeline config.
func buildPipeline(s *config.Settings) (*pipeline.Pipeline, error) {
	topology, err := dsp.ParseTopology(s.Topology)
	if err != nil {
		return nil, err
	}

	cfg := pipeline.DefaultConfig()
	cfg.SampleRate = s.SampleRate
	cfg.DecimationFactor = s.DecimationFactor
	cfg.Topology = topology
	cfg.MainsFrequency = s.MainsFrequency
	cfg.NotchQ = s.NotchQ
	cfg.HighpassCutoff = s.HighpassCutoff
	cfg.LowpassCutoff = s.LowpassCutoff

	cfg.Detector.Refractory = time.Duration(s.RefractoryMs) * time.Millisecond
	cfg.Detector.Learning = time.Duration(s.LearningMs) * time.Millisecond
	cfg.Detector.SearchbackFactor = s.SearchbackFactor
	cfg.Detector.ThresholdFraction = s.ThresholdFraction
	cfg.Detector.RRHistory = s.RRCapacity

	cfg.Estimator.Capacity = s.RRCapacity
	cfg.Estimator.MinRR = time.Duration(s.MinRRMs) * time.Millisecond
	cfg.Estimator.MaxRR = time.Duration(s.MaxRRMs) * time.Millisecond
	cfg.Estimator.Timeout = time.Duration(s.RateTimeoutMs) * time.Millisecond

	return pipeline.New(cfg)
}

// buildSource selects the configured sample producer.
func buildSource(s *config.Settings) (source.Source, func() error, error) {
	switch s.Source {
	case "serial":
		ser, err := source.OpenSerial(s.SerialPort, s.SerialBaud)
		if err != nil {
			return nil, nil, err
		}
		return ser, ser.Close, nil
	default:
		sim, err := source.NewSimulator(source.SimulatorConfig{
			SampleRate: s.SampleRate,
			BPM:        s.SimBPM,
			Noise:      s.SimNoise,
		})
		if err != nil {
			return nil, nil, err
		}
		return sim, func() error { return nil }, nil
	}
}

// sampleLoop is the producer: it pulls raw samples, drives the pipeline one
// tick per sample, and offers outputs to the tap without ever blocking.
func sampleLoop(ctx context.Context, src source.Source, pipe *pipeline.Pipeline, tap *pipeline.Tap, rate float64) error {
	perBurst := int(rate * paceInterval.Seconds())
	if perBurst < 1 {
		perBurst = 1
	}

	ticker := time.NewTicker(paceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			for i := 0; i < perBurst; i++ {
				raw, err := src.Next()
				if err != nil {
					return err
				}
				tap.Offer(pipe.Tick(raw))
			}
		}
	}
}

// printOutputs is the consumer: beats, rate changes and (in debug) quality
// transitions go to stdout.
func printOutputs(cmd *cobra.Command, tap *pipeline.Tap, debug bool) {
	out := cmd.OutOrStdout()

	var lastRate float32
	rateKnown := false
	lastQuality := pipeline.QualityGood

	for o := range tap.Outputs() {
		if o.HasBeat {
			fmt.Fprintf(out, "beat  index=%d amplitude=%.4f confidence=%.2f\n",
				o.Beat.Index, o.Beat.Amplitude, o.Beat.Confidence)
		}
		if o.Rate.Valid && (!rateKnown || o.Rate.BPM != lastRate) {
			fmt.Fprintf(out, "rate  %.0f bpm\n", o.Rate.BPM)
			lastRate = o.Rate.BPM
			rateKnown = true
		}
		if debug && o.Quality != lastQuality {
			fmt.Fprintf(out, "quality %s -> %s at sample %d\n", lastQuality, o.Quality, o.Index)
			lastQuality = o.Quality
		}
	}
}
