// Package mqtt publishes system-state snapshots to an MQTT broker for the
// external dashboard collaborator. The simulation core never depends on it;
// the publisher is wired in by the app layer when enabled.
package mqtt

import (
	"encoding/json"
	"fmt"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/enerflow/bess/core/ems"
	"github.com/enerflow/bess/infra/logger"
)

// Config defines the connection parameters for the state publisher.
type Config struct {
	Enabled  bool   `json:"enabled"`
	Broker   string `json:"broker"`
	ClientID string `json:"client_id"`
	Username string `json:"username"`
	Password string `json:"password"`
	Topic    string `json:"topic"`
	QoS      byte   `json:"qos"`
	Retain   bool   `json:"retain"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.Topic == "" {
		c.Topic = "bess/state"
	}
}

// Validate checks mandatory fields when the publisher is enabled.
func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Broker == "" {
		return fmt.Errorf("broker is required when the mqtt publisher is enabled")
	}
	if c.QoS > 2 {
		return fmt.Errorf("qos must be 0, 1 or 2, got %d", c.QoS)
	}
	return nil
}

// StatePublisher pushes ems.State snapshots to one topic.
type StatePublisher struct {
	cli    paho.Client
	topic  string
	qos    byte
	retain bool
	log    logger.Logger
}

// NewStatePublisher connects to the broker.
func NewStatePublisher(cfg Config) (*StatePublisher, error) {
	id := cfg.ClientID
	if id == "" {
		id = "bess-" + uuid.NewString()
	}
	opts := paho.NewClientOptions().AddBroker(cfg.Broker).SetClientID(id)
	opts.AutoReconnect = true
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	log := logger.New("mqtt-publisher")
	opts.OnConnect = func(paho.Client) { log.Infof("MQTT connected") }
	opts.OnConnectionLost = func(_ paho.Client, err error) { log.Errorf("connection lost: %v", err) }

	cli := paho.NewClient(opts)
	if token := cli.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	return &StatePublisher{cli: cli, topic: cfg.Topic, qos: cfg.QoS, retain: cfg.Retain, log: log}, nil
}

// Publish serializes the snapshot as JSON and publishes it.
func (p *StatePublisher) Publish(st ems.State) error {
	payload, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	if token := p.cli.Publish(p.topic, p.qos, p.retain, payload); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	return nil
}

// Close disconnects from the broker.
func (p *StatePublisher) Close() {
	p.cli.Disconnect(250)
}
