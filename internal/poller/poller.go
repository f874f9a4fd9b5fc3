package poller

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/avr-controller/internal/model"
)

type StateSource interface {
	GetFullState(ctx context.Context) (model.ReceiverState, error)
}

// Sink receives every successfully polled state.
type Sink interface {
	Sync(state model.ReceiverState)
}

type SinkFunc func(model.ReceiverState)

func (f SinkFunc) Sync(state model.ReceiverState) { f(state) }

type Poller struct {
	source   StateSource
	interval time.Duration
	sinks    []Sink
}

func New(source StateSource, interval time.Duration, sinks ...Sink) *Poller {
	return &Poller{source: source, interval: interval, sinks: sinks}
}

// Run polls immediately and then once per interval until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	log.Info().Dur("interval", p.interval).Msg("Starting receiver state polling")

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Receiver state polling stopped")
			return
		case <-timer.C:
			p.PollOnce(ctx)
			timer.Reset(p.interval)
		}
	}
}

func (p *Poller) PollOnce(ctx context.Context) {
	log.Debug().Msg("Polling full receiver state")

	state, err := p.source.GetFullState(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Couldn't poll full receiver state")
		return
	}

	log.Info().
		Bool("power", state.IsPoweredOn).
		Str("input", string(state.Input)).
		Bool("muted", state.IsMuted).
		Float64("volume_db", state.VolumeDB).
		Float64("volume_percent", state.VolumePercent).
		Msg("Polled full receiver state")

	for _, s := range p.sinks {
		s.Sync(state)
	}
}
