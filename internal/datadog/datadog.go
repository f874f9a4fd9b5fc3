package datadog

import (
	"github.com/DataDog/datadog-go/statsd"
	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/avr-controller/internal/config"
	"github.com/thatsimonsguy/avr-controller/internal/model"
)

// Gauger is the subset of statsd.ClientInterface the metrics sink uses.
type Gauger interface {
	Gauge(name string, value float64, tags []string, rate float64) error
}

type Metrics struct {
	dogstatsd Gauger
}

// InitMetrics returns nil when metrics are disabled or the client can't be created.
func InitMetrics(cfg config.Datadog) *Metrics {
	if !cfg.Enabled {
		return nil
	}

	client, err := statsd.New(cfg.AgentAddr)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to create DogStatsD client")
		return nil
	}

	client.Namespace = cfg.Namespace
	client.Tags = cfg.Tags

	log.Info().
		Str("addr", cfg.AgentAddr).
		Str("namespace", cfg.Namespace).
		Strs("tags", cfg.Tags).
		Msg("Datadog metrics initialized")

	return &Metrics{dogstatsd: client}
}

func NewWithClient(g Gauger) *Metrics {
	return &Metrics{dogstatsd: g}
}

func (m *Metrics) Gauge(name string, value float64, tags ...string) {
	if m == nil || m.dogstatsd == nil {
		return
	}
	if err := m.dogstatsd.Gauge(name, value, tags, 1); err != nil {
		log.Warn().Err(err).Str("metric", name).Msg("Failed to emit gauge metric")
	}
}

// Sync emits one gauge per state field. The dB gauge is skipped at the mute floor.
func (m *Metrics) Sync(state model.ReceiverState) {
	tags := []string{"input:" + string(state.Input)}
	if state.Input == model.InputUnknown {
		tags = []string{"input:unknown"}
	}

	m.Gauge("receiver.power", boolGauge(state.IsPoweredOn), tags...)
	m.Gauge("receiver.muted", boolGauge(state.IsMuted), tags...)
	m.Gauge("receiver.volume_percent", state.VolumePercent, tags...)
	if !state.AtMuteFloor() {
		m.Gauge("receiver.volume_db", state.VolumeDB, tags...)
	}
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
