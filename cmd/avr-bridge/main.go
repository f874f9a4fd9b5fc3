package main

import (
	"context"
	"time"

	"github.com/brutella/hc"
	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/avr-controller/internal/accessory"
	"github.com/thatsimonsguy/avr-controller/internal/api"
	"github.com/thatsimonsguy/avr-controller/internal/config"
	"github.com/thatsimonsguy/avr-controller/internal/datadog"
	"github.com/thatsimonsguy/avr-controller/internal/logging"
	"github.com/thatsimonsguy/avr-controller/internal/mqtt"
	"github.com/thatsimonsguy/avr-controller/internal/poller"
	"github.com/thatsimonsguy/avr-controller/internal/receiver"
)

func main() {
	cfg := config.Load()
	logging.Init(cfg.LogLevel, cfg.LogFile)

	log.Info().
		Str("config_file", cfg.ConfigFile).
		Str("ip", cfg.IP).
		Str("name", cfg.Name).
		Msg("Starting AVR bridge")

	client := receiver.NewClient(cfg.IP)
	acc := accessory.New(cfg, client)

	sinks := []poller.Sink{acc}
	if metrics := datadog.InitMetrics(cfg.Datadog); metrics != nil {
		sinks = append(sinks, metrics)
	}
	if cfg.MQTT.Broker != "" {
		mq, err := mqtt.Connect(cfg.MQTT)
		if err != nil {
			log.Warn().Err(err).Msg("MQTT state publishing disabled")
		} else {
			defer mq.Close()
			sinks = append(sinks, mqtt.NewStatePublisher(mq, cfg.MQTT.TopicPrefix, cfg.MQTT.QoS))
		}
	}

	if cfg.APIPort > 0 {
		server := api.NewServer(client, float64(cfg.MaxVolume))
		go func() {
			if err := server.Start(cfg.APIPort); err != nil {
				log.Error().Err(err).Msg("REST API server stopped")
			}
		}()
	}

	transport, err := hc.NewIPTransport(hc.Config{
		Pin:         cfg.HomeKitPin,
		StoragePath: cfg.StoragePath,
	}, acc.Accessory)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create HomeKit transport")
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := poller.New(client, time.Duration(cfg.PollingIntervalMs)*time.Millisecond, sinks...)
	go p.Run(ctx)

	hc.OnTermination(func() {
		log.Info().Msg("Shutting down AVR bridge")
		cancel()
		<-transport.Stop()
	})

	transport.Start()
}
