// cmd/stream.go
package cmd

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/openecg/ecgmon/internal/config"
	"github.com/openecg/ecgmon/internal/pipeline"
	"github.com/openecg/ecgmon/internal/recovery"
	"github.com/openecg/ecgmon/internal/stream"
)

var streamCmd = &cobra.Command{
	Use:   "stream",
	Short: "Run the pipeline and publish outputs to NATS",
	Long:  `Runs the processing pipeline and publishes conditioned samples, heartbeat events and heart-rate updates as JSON on the ecg.> subjects.`,
	RunE:  runStream,
}

func init() {
	rootCmd.AddCommand(streamCmd)
}

func runStream(cmd *cobra.Command, args []string) error {
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

	nc, err := stream.Connect(settings.NatsURL)
	if err != nil {
		return err
	}
	defer nc.Drain()

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

		pub := stream.NewPublisher(nc)
		for o := range tap.Outputs() {
			if err := pub.Publish(o); err != nil {
				// Publishing is best effort; sampling never depends on it.
				log.Printf("stream: %v", err)
			}
		}
	}()

	err = sampleLoop(ctx, src, pipe, tap, settings.SampleRate)
	tap.Close()
	<-done
	return err
}
