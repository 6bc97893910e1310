// Package publisher pushes finalized rig measurements to an MQTT broker.
package publisher

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/NotCoffee418/vitals_rig/pkg/bpdecoder"
	"github.com/NotCoffee418/vitals_rig/pkg/config"
	"github.com/NotCoffee418/vitals_rig/pkg/errors"
	"github.com/NotCoffee418/vitals_rig/pkg/logger"
	"github.com/NotCoffee418/vitals_rig/pkg/sensors"
)

const (
	connectTimeout = 5 * time.Second
	publishTimeout = 2 * time.Second
)

var errFactory = errors.New()

// Client is the part of mqtt.Client the publisher uses.
type Client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

type Stats struct {
	Published map[string]uint64
	Errors    uint64
}

type Publisher struct {
	client Client
	prefix string
	qos    byte

	mu        sync.Mutex
	published map[string]uint64
	errors    uint64
}

// New wraps an already connected client.
func New(client Client, topicPrefix string, qos byte) *Publisher {
	return &Publisher{
		client:    client,
		prefix:    strings.TrimSuffix(topicPrefix, "/"),
		qos:       qos,
		published: make(map[string]uint64),
	}
}

// Connect dials the configured broker. The paho client reconnects on its
// own after a successful first connection.
func Connect(cfg config.MQTTConfig) (*Publisher, mqtt.Client, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(mqtt.Client) {
		logger.Info().Str("broker", cfg.Broker).Msg("MQTT connection established")
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		logger.Warn().Err(err).Str("broker", cfg.Broker).Msg("MQTT connection lost, reconnecting")
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, nil, errFactory.WithMessage(errors.ErrPublishFailed, "mqtt connection timeout").WithData(cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, nil, errFactory.Wrap(errors.ErrPublishFailed, err).WithData(cfg.Broker)
	}

	return New(client, cfg.TopicPrefix, cfg.QoS), client, nil
}

// MeasurementTopic is <prefix>/<sensor>/<metric>.
func (p *Publisher) MeasurementTopic(m sensors.Measurement) string {
	return p.prefix + "/" + m.Sensor + "/" + m.Metric
}

func (p *Publisher) BPTopic() string {
	return p.prefix + "/bp"
}

// PublishMeasurement publishes m and waits for the broker.
func (p *Publisher) PublishMeasurement(m sensors.Measurement) error {
	return p.publish(p.MeasurementTopic(m), m, true)
}

// PublishBP publishes r and waits for the broker.
func (p *Publisher) PublishBP(r bpdecoder.Reading) error {
	return p.publish(p.BPTopic(), r, true)
}

// MeasurementObserver publishes without waiting, so sensor managers are
// never held up by the broker.
func (p *Publisher) MeasurementObserver() sensors.Observer {
	return func(m sensors.Measurement) {
		if err := p.publish(p.MeasurementTopic(m), m, false); err != nil {
			logger.Warn().Err(err).Str("metric", m.Metric).Msg("Failed to publish measurement")
		}
	}
}

// BPObserver publishes final paired readings only.
func (p *Publisher) BPObserver() func(bpdecoder.Reading) {
	return func(r bpdecoder.Reading) {
		if !r.Paired() {
			return
		}
		if err := p.publish(p.BPTopic(), r, false); err != nil {
			logger.Warn().Err(err).Msg("Failed to publish blood pressure reading")
		}
	}
}

func (p *Publisher) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	published := make(map[string]uint64, len(p.published))
	for k, v := range p.published {
		published[k] = v
	}
	return Stats{Published: published, Errors: p.errors}
}

func (p *Publisher) publish(topic string, value any, wait bool) error {
	payload, err := json.Marshal(value)
	if err != nil {
		p.recordError()
		return errFactory.Wrap(errors.ErrPublishFailed, err).WithData(topic)
	}

	token := p.client.Publish(topic, p.qos, false, payload)
	if !wait {
		go p.await(topic, token)
		return nil
	}
	return p.finish(topic, token)
}

func (p *Publisher) await(topic string, token mqtt.Token) {
	if err := p.finish(topic, token); err != nil {
		logger.Warn().Err(err).Str("topic", topic).Msg("MQTT publish failed")
	}
}

func (p *Publisher) finish(topic string, token mqtt.Token) error {
	if !token.WaitTimeout(publishTimeout) {
		p.recordError()
		return errFactory.WithMessage(errors.ErrPublishFailed, "publish timeout").WithData(topic)
	}
	if err := token.Error(); err != nil {
		p.recordError()
		return errFactory.Wrap(errors.ErrPublishFailed, err).WithData(topic)
	}

	p.mu.Lock()
	p.published[topic]++
	p.mu.Unlock()

	logger.Debug().Str("topic", topic).Msg("Published to MQTT")
	return nil
}

func (p *Publisher) recordError() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.errors++
}
