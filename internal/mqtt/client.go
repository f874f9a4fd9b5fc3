// Package mqtt publishes polled receiver state to an MQTT broker so other home
// automation software can follow the receiver without polling it as well.
package mqtt

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/avr-controller/internal/config"
	"github.com/thatsimonsguy/avr-controller/internal/model"
)

const (
	defaultConnectTimeout    = 10 * time.Second
	defaultPublishTimeout    = 5 * time.Second
	defaultDisconnectQuiesce = 1000 // milliseconds
)

// Publisher is satisfied by *Client.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

type Client struct {
	client pahomqtt.Client
}

// Connect dials the broker and keeps reconnecting in the background if the
// connection is lost later.
func Connect(cfg config.MQTT) (*Client, error) {
	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(defaultConnectTimeout)
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		log.Warn().Err(err).Str("broker", cfg.Broker).Msg("MQTT connection lost")
	})

	c := &Client{client: pahomqtt.NewClient(opts)}
	token := c.client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, defaultConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	log.Info().Str("broker", cfg.Broker).Str("client_id", cfg.ClientID).Msg("Connected to MQTT broker")
	return c, nil
}

func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if !c.client.IsConnected() {
		return ErrNotConnected
	}

	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	return nil
}

func (c *Client) Close() {
	c.client.Disconnect(defaultDisconnectQuiesce)
}

// StatePublisher publishes each polled state, retained, to <prefix>/state.
type StatePublisher struct {
	pub   Publisher
	topic string
	qos   byte
}

func NewStatePublisher(pub Publisher, prefix string, qos int) *StatePublisher {
	return &StatePublisher{
		pub:   pub,
		topic: StateTopic(prefix),
		qos:   byte(qos),
	}
}

func StateTopic(prefix string) string {
	return strings.TrimSuffix(prefix, "/") + "/state"
}

func (p *StatePublisher) Sync(state model.ReceiverState) {
	payload, err := json.Marshal(state)
	if err != nil {
		log.Error().Err(err).Msg("Failed to encode receiver state for MQTT")
		return
	}
	if err := p.pub.Publish(p.topic, payload, p.qos, true); err != nil {
		log.Warn().Err(err).Str("topic", p.topic).Msg("Failed to publish receiver state")
	}
}
