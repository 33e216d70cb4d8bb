package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/jgoulah/flowmeter/internal/config"
	"github.com/jgoulah/flowmeter/internal/meter"
	"github.com/jgoulah/flowmeter/pkg/models"
)

const publishTimeout = 10 * time.Second

// MQTT publishes the latest state of each meter as a retained message
type MQTT struct {
	client      mqtt.Client
	topicPrefix string
}

// NewMQTT connects to the broker in cfg
func NewMQTT(cfg config.MQTTConfig, topicPrefix, clientID string) (*MQTT, error) {
	if cfg.Broker == "" {
		return nil, fmt.Errorf("MQTT broker address is required when enabled")
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s", cfg.Broker))
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(10 * time.Second)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connecting to MQTT broker: %w", token.Error())
	}

	return NewMQTTWithClient(client, topicPrefix), nil
}

// NewMQTTWithClient wraps an already connected client
func NewMQTTWithClient(client mqtt.Client, topicPrefix string) *MQTT {
	return &MQTT{client: client, topicPrefix: topicPrefix}
}

// StatePayload is the retained JSON state of a meter
type StatePayload struct {
	Kind      string  `json:"kind"`
	Value     float64 `json:"value"`
	Display   string  `json:"display"`
	Unit      string  `json:"unit"`
	Timestamp string  `json:"timestamp"`
}

// StateTopic returns the topic for a meter kind, e.g. flowmeter/gas/state
func (m *MQTT) StateTopic(kind models.Kind) string {
	return fmt.Sprintf("%s/%s/state", m.topicPrefix, kind)
}

func (m *MQTT) Name() string { return "mqtt" }

// Publish sends a reading as the retained meter state
func (m *MQTT) Publish(ctx context.Context, reading models.Reading) error {
	body, err := json.Marshal(StatePayload{
		Kind:      reading.Kind.String(),
		Value:     reading.Value,
		Display:   meter.Format(reading.Kind, reading.Value),
		Unit:      reading.Kind.Unit(),
		Timestamp: reading.Timestamp.Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("encoding payload: %w", err)
	}

	token := m.client.Publish(m.StateTopic(reading.Kind), 1, true, body)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(publishTimeout):
		return fmt.Errorf("publishing to %s: timeout after %v", m.StateTopic(reading.Kind), publishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publishing to %s: %w", m.StateTopic(reading.Kind), err)
	}
	return nil
}

// Close disconnects from the MQTT broker
func (m *MQTT) Close() {
	if m.client != nil && m.client.IsConnected() {
		m.client.Disconnect(250)
	}
}
