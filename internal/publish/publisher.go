package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/iottest/wifiposition/internal/config"
)

// Prediction is the MQTT payload mirrored for every accepted live prediction.
type Prediction struct {
	DeviceID  string    `json:"device_id"`
	Location  string    `json:"location"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher mirrors live predictions to an MQTT topic. Predictions are queued
// and published by Start; a full queue drops the newest value.
type Publisher struct {
	client   mqtt.Client
	topic    string
	deviceID string

	predictions chan Prediction
}

const queueSize = 16

// Connect opens a connection to the configured broker. Missing client and
// device ids are generated.
func Connect(cfg config.MQTTConfig) (*Publisher, error) {
	deviceID := cfg.DeviceID
	if deviceID == "" {
		deviceID = uuid.NewString()
	}
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "wifipos-" + deviceID
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(clientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetOnConnectHandler(connectHandler)
	opts.SetConnectionLostHandler(connectLostHandler)
	opts.SetAutoReconnect(true)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetConnectTimeout(10 * time.Second)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}
	slog.Info("Connected to MQTT broker", "broker", cfg.Broker, "client_id", clientID)

	return NewPublisher(client, cfg.Topic, deviceID), nil
}

// NewPublisher wraps an existing client.
func NewPublisher(client mqtt.Client, topic, deviceID string) *Publisher {
	return &Publisher{
		client:      client,
		topic:       topic,
		deviceID:    deviceID,
		predictions: make(chan Prediction, queueSize),
	}
}

// Topic returns the resolved topic.
func (p *Publisher) Topic() string {
	return formatTopic(p.topic, p.deviceID)
}

// PublishPrediction queues a prediction without blocking the caller.
func (p *Publisher) PublishPrediction(location string, at time.Time) {
	pred := Prediction{DeviceID: p.deviceID, Location: location, Timestamp: at.UTC()}
	select {
	case p.predictions <- pred:
	default:
		slog.Warn("MQTT queue full, dropping prediction", "location", location)
	}
}

// Start publishes queued predictions until ctx is cancelled.
func (p *Publisher) Start(ctx context.Context) {
	slog.Debug("MQTT publisher started", "topic", p.Topic())
	for {
		select {
		case <-ctx.Done():
			slog.Debug("MQTT publisher stopped")
			return
		case pred := <-p.predictions:
			if err := p.publish(pred); err != nil {
				slog.Warn("Failed to publish prediction", "error", err)
			}
		}
	}
}

func (p *Publisher) publish(pred Prediction) error {
	payload, err := json.Marshal(pred)
	if err != nil {
		return fmt.Errorf("failed to marshal prediction: %w", err)
	}

	topic := formatTopic(p.topic, pred.DeviceID)
	token := p.client.Publish(topic, 1, false, payload)
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, token.Error())
	}
	slog.Debug("Published prediction", "topic", topic, "location", pred.Location)
	return nil
}

// Close disconnects from the broker.
func (p *Publisher) Close() {
	if p.client.IsConnected() {
		p.client.Disconnect(250)
	}
	slog.Debug("MQTT client disconnected")
}

// formatTopic replaces the {device_id} placeholder with the device id.
func formatTopic(topicPattern, deviceID string) string {
	return strings.ReplaceAll(topicPattern, "{device_id}", deviceID)
}

var connectHandler mqtt.OnConnectHandler = func(client mqtt.Client) {
	slog.Debug("MQTT connection established")
}

var connectLostHandler mqtt.ConnectionLostHandler = func(client mqtt.Client, err error) {
	slog.Warn("MQTT connection lost", "error", err)
}
