// Package kafka relays notifications to a Kafka topic.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/IBM/sarama"

	"github.com/Gopher0727/chatsync/config"
	"github.com/Gopher0727/chatsync/internal/relay"
	"github.com/Gopher0727/chatsync/pkg/events"
)

// DefaultTopic is used when the configuration names none.
const DefaultTopic = "chatsync.events"

// KindHeader carries the notification kind so consumers can filter without
// decoding the value.
const KindHeader = "kind"

var errNoBrokers = errors.New("no brokers configured")

// Producer is a relay sink backed by a synchronous sarama producer.
type Producer struct {
	sync  sarama.SyncProducer
	topic string
	now   func() time.Time
}

// NewProducer connects to cfg.Brokers.
func NewProducer(cfg *config.KafkaConfig) (*Producer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("failed to create kafka producer: %w", errNoBrokers)
	}
	sp, err := sarama.NewSyncProducer(cfg.Brokers, RelayConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}
	return NewProducerFrom(sp, cfg.Topic), nil
}

// NewProducerFrom relays through sp. An empty topic means DefaultTopic.
func NewProducerFrom(sp sarama.SyncProducer, topic string) *Producer {
	if topic == "" {
		topic = DefaultTopic
	}
	return &Producer{sync: sp, topic: topic, now: time.Now}
}

// RelayConfig favours ordering over throughput: idempotent writes with a
// single in-flight request keep per-key order across retries.
func RelayConfig() *sarama.Config {
	c := sarama.NewConfig()
	c.ClientID = "chatsync"

	c.Producer.Return.Successes = true
	c.Producer.Return.Errors = true
	c.Producer.RequiredAcks = sarama.WaitForAll
	c.Producer.Idempotent = true
	c.Producer.Partitioner = sarama.NewHashPartitioner
	c.Producer.Compression = sarama.CompressionSnappy
	c.Producer.Retry.Max = 3
	c.Producer.Retry.Backoff = 100 * time.Millisecond
	c.Net.MaxOpenRequests = 1

	const netTimeout = 10 * time.Second
	c.Net.DialTimeout = netTimeout
	c.Net.ReadTimeout = netTimeout
	c.Net.WriteTimeout = netTimeout
	c.Metadata.Timeout = netTimeout
	c.Metadata.Retry.Max = 3
	c.Metadata.Retry.Backoff = 250 * time.Millisecond
	return c
}

func (p *Producer) Name() string {
	return "kafka"
}

func (p *Producer) Topic() string {
	return p.topic
}

// Publish produces n keyed by the entity it is about, so every notification
// of one channel or server lands on the same partition in order.
func (p *Producer) Publish(ctx context.Context, n events.Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := relay.Encode(n, p.now())
	if err != nil {
		return err
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Value: sarama.ByteEncoder(payload),
		Headers: []sarama.RecordHeader{
			{Key: []byte(KindHeader), Value: []byte(n.Kind())},
		},
	}
	if subject := relay.SubjectOf(n); subject != "" {
		msg.Key = sarama.StringEncoder(subject)
	}

	if _, _, err := p.sync.SendMessage(msg); err != nil {
		return fmt.Errorf("failed to relay %s to %s: %w", n.Kind(), p.topic, err)
	}
	return nil
}

func (p *Producer) Close() error {
	if p.sync == nil {
		return nil
	}
	if err := p.sync.Close(); err != nil {
		return fmt.Errorf("failed to close kafka producer: %w", err)
	}
	return nil
}
