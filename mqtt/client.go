package mqtt

import (
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/eddielth/co2-sensor/config"
	"github.com/eddielth/co2-sensor/logger"
	"github.com/eddielth/co2-sensor/sensor"
)

// Publisher forwards measurements to an MQTT broker. It satisfies
// storage.StorageBackend.
type Publisher struct {
	client mqtt.Client
	config config.MQTTConfig
	topic  string
}

// NewPublisher creates a publisher; Connect must be called before Store.
func NewPublisher(cfg config.MQTTConfig) (*Publisher, error) {
	if cfg.Broker == "" {
		return nil, fmt.Errorf("MQTT broker address cannot be empty")
	}
	return newPublisher(cfg, mqtt.NewClient(clientOptions(&cfg))), nil
}

func newPublisher(cfg config.MQTTConfig, client mqtt.Client) *Publisher {
	return &Publisher{
		client: client,
		config: cfg,
		topic:  TopicFor(cfg.Topic, cfg.Device),
	}
}

func clientOptions(cfg *config.MQTTConfig) *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)

	if cfg.ClientID == "" {
		cfg.ClientID = "co2-sensor-" + uuid.NewString()
	}
	opts.SetClientID(cfg.ClientID)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Error("MQTT connection lost: %v", err)
	})
	opts.SetReconnectingHandler(func(_ mqtt.Client, _ *mqtt.ClientOptions) {
		logger.Info("trying to reconnect to MQTT broker...")
	})
	return opts
}

// Connect connects to the MQTT broker
func (p *Publisher) Connect() error {
	token := p.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return fmt.Errorf("connection to MQTT broker timed out")
	}
	if err := token.Error(); err != nil {
		return err
	}

	logger.Info("connected to MQTT broker %s, publishing to %s", p.config.Broker, p.topic)
	return nil
}

// Store publishes m as a JSON object
func (p *Publisher) Store(m sensor.Measurement) error {
	payload, err := m.MarshalJSON()
	if err != nil {
		return fmt.Errorf("serialize measurement failed: %w", err)
	}

	token := p.client.Publish(p.topic, p.config.QoS, false, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish to topic %s timed out", p.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to topic %s failed: %w", p.topic, err)
	}

	logger.Debug("published measurement to %s", p.topic)
	return nil
}

// Close disconnects from the MQTT broker
func (p *Publisher) Close() error {
	if p.client.IsConnected() {
		p.client.Disconnect(250)
		logger.Info("disconnected from MQTT broker")
	}
	return nil
}

// Topic returns the resolved publish topic
func (p *Publisher) Topic() string {
	return p.topic
}

// TopicFor substitutes {device} in template. The default layout is
// sensors/{device}/measurement.
func TopicFor(template, device string) string {
	if template == "" {
		template = "sensors/{device}/measurement"
	}
	if device == "" {
		device = "co2-sensor"
	}
	return strings.ReplaceAll(template, "{device}", device)
}
