// Package ingest pulls classified alerts off a Kafka topic and feeds
// them through the policy engine. The intake feed is trusted as-is;
// authenticity of the upstream pipeline is out of scope here.
package ingest

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
)

type Message struct {
	Value []byte
}

type Consumer interface {
	ReadMessage(ctx context.Context) (Message, error)
	Close() error
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
	GroupID string
}

// ConfigFromEnv reads KAFKA_BROKERS (comma-separated), KAFKA_TOPIC and
// KAFKA_GROUP_ID. An empty broker list means intake is disabled.
func ConfigFromEnv() KafkaConfig {
	cfg := KafkaConfig{
		Topic:   strings.TrimSpace(os.Getenv("KAFKA_TOPIC")),
		GroupID: strings.TrimSpace(os.Getenv("KAFKA_GROUP_ID")),
	}
	if cfg.Topic == "" {
		cfg.Topic = "triage.alerts"
	}
	if cfg.GroupID == "" {
		cfg.GroupID = "triage-gateway"
	}
	for _, b := range strings.Split(os.Getenv("KAFKA_BROKERS"), ",") {
		if t := strings.TrimSpace(b); t != "" {
			cfg.Brokers = append(cfg.Brokers, t)
		}
	}
	return cfg
}

type KafkaConsumer struct {
	reader kafkaReader
}

type kafkaReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

func NewKafkaConsumer(cfg KafkaConfig) (*KafkaConsumer, error) {
	brokers := make([]string, 0, len(cfg.Brokers))
	for _, b := range cfg.Brokers {
		trimmed := strings.TrimSpace(b)
		if trimmed != "" {
			brokers = append(brokers, trimmed)
		}
	}
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers required")
	}
	if strings.TrimSpace(cfg.Topic) == "" {
		return nil, fmt.Errorf("kafka topic required")
	}
	if strings.TrimSpace(cfg.GroupID) == "" {
		return nil, fmt.Errorf("kafka group id required")
	}
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          cfg.Topic,
		GroupID:        cfg.GroupID,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: time.Second,
		MaxWait:        500 * time.Millisecond,
	})
	return &KafkaConsumer{reader: r}, nil
}

func (c *KafkaConsumer) ReadMessage(ctx context.Context) (Message, error) {
	if c == nil || c.reader == nil {
		return Message{}, fmt.Errorf("kafka consumer not initialized")
	}
	msg, err := c.reader.ReadMessage(ctx)
	if err != nil {
		return Message{}, err
	}
	return Message{Value: msg.Value}, nil
}

func (c *KafkaConsumer) Close() error {
	if c == nil || c.reader == nil {
		return nil
	}
	return c.reader.Close()
}
