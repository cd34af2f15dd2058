// internal/stream/publisher.go
// Package stream reports pipeline outputs to a NATS bus for remote
// consumers. It only ever sees computed outputs; pipeline internals stay
// private to the sampling loop.
package stream

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/openecg/ecgmon/internal/pipeline"
)

// Subjects carrying the three output kinds.
const (
	SubjectSamples = "ecg.samples"
	SubjectBeats   = "ecg.beats"
	SubjectRate    = "ecg.rate"
)

// sampleMsg is the wire form of one conditioned sample.
type sampleMsg struct {
	Index   uint64  `json:"index"`
	Value   float32 `json:"value"`
	Quality string  `json:"quality"`
}

// beatMsg is the wire form of one heartbeat event.
type beatMsg struct {
	Index      uint64  `json:"index"`
	Amplitude  float32 `json:"amplitude"`
	Confidence float32 `json:"confidence"`
}

// rateMsg is the wire form of a heart-rate update.
type rateMsg struct {
	BPM       float32 `json:"bpm"`
	Available bool    `json:"available"`
}

// Connect dials the NATS server with reconnection enabled.
func Connect(url string) (*nats.Conn, error) {
	nc, err := nats.Connect(
		url,
		nats.Name("ecgmon"),
		nats.Timeout(3*time.Second),
		nats.ReconnectWait(500*time.Millisecond),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return nc, nil
}

// Conn is the slice of the NATS client the publisher needs.
type Conn interface {
	Publish(subject string, data []byte) error
}

// Publisher serializes pipeline outputs onto the bus. It tracks the last
// published rate so rate messages go out only on change.
type Publisher struct {
	nc       Conn
	lastRate rateMsg
	haveRate bool
}

// NewPublisher wraps an established connection.
func NewPublisher(nc Conn) *Publisher {
	return &Publisher{nc: nc}
}

// Publish sends the sample message for every output, a beat message when the
// output carries one, and a rate message when the estimate changed.
func (p *Publisher) Publish(out pipeline.Output) error {
	if err := p.publishJSON(SubjectSamples, sampleMsg{
		Index:   out.Index,
		Value:   out.Conditioned,
		Quality: out.Quality.String(),
	}); err != nil {
		return err
	}

	if out.HasBeat {
		if err := p.publishJSON(SubjectBeats, beatMsg{
			Index:      out.Beat.Index,
			Amplitude:  out.Beat.Amplitude,
			Confidence: out.Beat.Confidence,
		}); err != nil {
			return err
		}
	}

	rate := rateMsg{BPM: out.Rate.BPM, Available: out.Rate.Valid}
	if !p.haveRate || rate != p.lastRate {
		if err := p.publishJSON(SubjectRate, rate); err != nil {
			return err
		}
		p.lastRate = rate
		p.haveRate = true
	}
	return nil
}

func (p *Publisher) publishJSON(subject string, msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", subject, err)
	}
	if err := p.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}
