package report

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/e7canasta/orion-care-sensor/modules/stream-tracker/internal/correlate"
)

// DefaultTopicPrefix roots every published topic.
const DefaultTopicPrefix = "stream-tracker"

// MQTTConfig configures the broker reporter.
type MQTTConfig struct {
	Broker      string // host:port or a full URL such as tcp://host:1883
	TopicPrefix string
	ClientID    string // generated when empty
	QoS         byte
	Encoding    Encoding
	QueueSize   int

	ConnectTimeout time.Duration
	PublishTimeout time.Duration
}

func (c MQTTConfig) withDefaults() MQTTConfig {
	if c.TopicPrefix == "" {
		c.TopicPrefix = DefaultTopicPrefix
	}
	if c.ClientID == "" {
		c.ClientID = "stream-tracker-" + uuid.NewString()
	}
	if c.Encoding == "" {
		c.Encoding = EncodingJSON
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 5 * time.Second
	}
	if c.PublishTimeout <= 0 {
		c.PublishTimeout = 2 * time.Second
	}
	return c
}

// Topic returns the topic records of stream i are published on.
func Topic(prefix string, stream int) string {
	return fmt.Sprintf("%s/stream/%d/detections", strings.TrimSuffix(prefix, "/"), stream)
}

// publisher is the subset of mqtt.Client the reporter uses.
type publisher interface {
	Connect() mqtt.Token
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	IsConnected() bool
	Disconnect(quiesce uint)
}

// MQTT publishes each record to its stream topic.
type MQTT struct {
	cfg       MQTTConfig
	client    publisher
	q         *queue
	connected atomic.Bool
}

// NewMQTT creates a reporter for cfg. Call Connect before the pipeline plays.
func NewMQTT(cfg MQTTConfig) *MQTT {
	cfg = cfg.withDefaults()
	m := &MQTT{cfg: cfg}

	broker := cfg.Broker
	if !strings.Contains(broker, "://") {
		broker = "tcp://" + broker
	}
	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.OnConnect = func(mqtt.Client) {
		m.connected.Store(true)
		slog.Info("report: mqtt connected", "broker", broker, "client_id", cfg.ClientID)
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		m.connected.Store(false)
		slog.Warn("report: mqtt connection lost, reconnecting", "broker", broker, "error", err)
	}

	return m.init(mqtt.NewClient(opts))
}

func newMQTTWithClient(cfg MQTTConfig, client publisher) *MQTT {
	m := &MQTT{cfg: cfg.withDefaults()}
	return m.init(client)
}

func (m *MQTT) init(client publisher) *MQTT {
	m.client = client
	m.q = newQueue(m.cfg.QueueSize, m.publish)
	return m
}

// Connect dials the broker and waits up to the configured timeout.
func (m *MQTT) Connect(ctx context.Context) error {
	token := m.client.Connect()
	select {
	case <-token.Done():
	case <-time.After(m.cfg.ConnectTimeout):
		return fmt.Errorf("report: mqtt connect to %s: timeout after %s", m.cfg.Broker, m.cfg.ConnectTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("report: mqtt connect to %s: %w", m.cfg.Broker, err)
	}
	m.connected.Store(true)
	return nil
}

// Report queues rec for publishing.
func (m *MQTT) Report(rec correlate.Record) {
	m.q.push(rec)
}

func (m *MQTT) publish(rec correlate.Record) error {
	if !m.connected.Load() {
		return fmt.Errorf("report: mqtt not connected")
	}
	payload, err := m.cfg.Encoding.Encode(rec)
	if err != nil {
		return fmt.Errorf("report: encode record: %w", err)
	}

	topic := Topic(m.cfg.TopicPrefix, rec.Stream)
	token := m.client.Publish(topic, m.cfg.QoS, false, payload)
	if !token.WaitTimeout(m.cfg.PublishTimeout) {
		slog.Debug("report: mqtt publish timeout", "topic", topic)
		return fmt.Errorf("report: publish to %s: timeout", topic)
	}
	if err := token.Error(); err != nil {
		slog.Debug("report: mqtt publish failed", "topic", topic, "error", err)
		return fmt.Errorf("report: publish to %s: %w", topic, err)
	}
	return nil
}

// Stats returns publish counters.
func (m *MQTT) Stats() Stats { return m.q.stats() }

// Close flushes queued records and disconnects.
func (m *MQTT) Close() error {
	m.q.close()
	if m.client.IsConnected() {
		m.client.Disconnect(250)
		slog.Info("report: mqtt disconnected")
	}
	m.connected.Store(false)
	return nil
}
