package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/sirupsen/logrus"
)

// Alert is a newly detected previous expiry cross
type Alert struct {
	Symbol     string    `json:"symbol"`
	Kind       string    `json:"kind"`
	Session    time.Time `json:"session"`
	LivePrice  float64   `json:"live_price"`
	Level      float64   `json:"level"`
	DetectedAt time.Time `json:"detected_at"`
}

// AlertSink receives breakout alerts
type AlertSink interface {
	Publish(ctx context.Context, alerts []Alert) error
	Close()
}

// NoopAlertSink drops every alert
type NoopAlertSink struct{}

func (NoopAlertSink) Publish(ctx context.Context, alerts []Alert) error { return nil }
func (NoopAlertSink) Close()                                            {}

// KafkaAlertSink publishes alerts as JSON messages keyed by symbol
type KafkaAlertSink struct {
	producer *kafka.Producer
	topic    string
	logger   *logrus.Logger
}

// NewKafkaAlertSink connects a producer to broker
func NewKafkaAlertSink(broker, topic string, logger *logrus.Logger) (*KafkaAlertSink, error) {
	config := kafka.ConfigMap{
		"bootstrap.servers": broker,
	}

	producer, err := kafka.NewProducer(&config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}

	sink := &KafkaAlertSink{
		producer: producer,
		topic:    topic,
		logger:   logger,
	}
	sink.deliveryReport()

	logger.WithField("topic", topic).Info("Kafka alert sink initialized")
	return sink, nil
}

// deliveryReport logs failed deliveries
func (k *KafkaAlertSink) deliveryReport() {
	go func() {
		for e := range k.producer.Events() {
			switch ev := e.(type) {
			case *kafka.Message:
				if ev.TopicPartition.Error != nil {
					k.logger.Errorf("Alert delivery failed: %v", ev.TopicPartition.Error)
				}
			}
		}
	}()
}

// Publish enqueues alerts on the topic
func (k *KafkaAlertSink) Publish(ctx context.Context, alerts []Alert) error {
	topic := k.topic
	for _, a := range alerts {
		if err := ctx.Err(); err != nil {
			return err
		}

		payload, err := json.Marshal(a)
		if err != nil {
			return fmt.Errorf("failed to encode alert: %w", err)
		}

		err = k.producer.Produce(&kafka.Message{
			TopicPartition: kafka.TopicPartition{Topic: &topic, Partition: kafka.PartitionAny},
			Key:            []byte(a.Symbol),
			Value:          payload,
		}, nil)
		if err != nil {
			return fmt.Errorf("failed to produce alert: %w", err)
		}
	}
	return nil
}

// Close flushes pending messages and closes the producer
func (k *KafkaAlertSink) Close() {
	k.producer.Flush(5000)
	k.producer.Close()
}

// AlertDeduper remembers which crosses were already announced during a session
type AlertDeduper struct {
	mu      sync.Mutex
	session time.Time
	seen    map[string]bool
}

// NewAlertDeduper creates an empty deduper
func NewAlertDeduper() *AlertDeduper {
	return &AlertDeduper{seen: make(map[string]bool)}
}

// Fresh returns the crosses of scan not yet announced for the session.
// A new session forgets everything announced before.
func (d *AlertDeduper) Fresh(scan CrossScan, session, now time.Time) []Alert {
	d.mu.Lock()
	defer d.mu.Unlock()

	session = civilDate(session)
	if !session.Equal(d.session) {
		d.session = session
		d.seen = make(map[string]bool)
	}

	var alerts []Alert
	for _, kind := range []string{CrossBreakoutClose, CrossBreakoutHigh, CrossBreakdownClose, CrossBreakdownLow} {
		for _, row := range scan.Kinds()[kind] {
			key := row.Symbol + "|" + kind
			if d.seen[key] {
				continue
			}
			d.seen[key] = true
			alerts = append(alerts, Alert{
				Symbol:     row.Symbol,
				Kind:       kind,
				Session:    session,
				LivePrice:  row.LiveClose,
				Level:      crossLevel(kind, row),
				DetectedAt: now,
			})
		}
	}
	return alerts
}

func crossLevel(kind string, row CrossRow) float64 {
	switch kind {
	case CrossBreakoutHigh:
		return row.PrevExpiryHigh
	case CrossBreakdownLow:
		return row.PrevExpiryLow
	}
	return row.PrevExpiryClose
}
