package queue

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// ErrNoBrokers is returned when topic setup has nowhere to connect
var ErrNoBrokers = errors.New("no Kafka brokers configured")

// messageWriter is the subset of *kafka.Writer used by Producer
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes hive-keyed messages to one topic. Messages sharing a
// hive id land on the same partition, so each hive's stream stays ordered.
type Producer struct {
	writer messageWriter
	topic  string
}

// NewProducer creates a producer for topic
func NewProducer(brokers []string, topic string) *Producer {
	return &Producer{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireOne,
			BatchTimeout:           10 * time.Millisecond,
			AllowAutoTopicCreation: true,
		},
		topic: topic,
	}
}

// Topic returns the topic the producer writes to
func (p *Producer) Topic() string {
	return p.topic
}

// Publish writes value under the given hive key and waits for the leader ack
func (p *Producer) Publish(ctx context.Context, key string, value []byte) error {
	if err := p.writer.WriteMessages(ctx, kafka.Message{Key: []byte(key), Value: value}); err != nil {
		return fmt.Errorf("failed to write message to %s: %w", p.topic, err)
	}
	return nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

// messageFetcher is the subset of *kafka.Reader used by Consumer
type messageFetcher interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer reads a topic as part of a consumer group. Offsets only move when
// Commit is called, so a notification the subscriber fails to handle is
// delivered again.
type Consumer struct {
	reader messageFetcher
	topic  string
}

// NewConsumer joins groupID on topic, starting from the newest offset when the
// group has none committed.
func NewConsumer(brokers []string, topic, groupID string) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:     brokers,
			Topic:       topic,
			GroupID:     groupID,
			MaxBytes:    1 << 20,
			MaxWait:     time.Second,
			StartOffset: kafka.LastOffset,
		}),
		topic: topic,
	}
}

// Consume blocks until the next message arrives or ctx ends
func (c *Consumer) Consume(ctx context.Context) (kafka.Message, error) {
	msg, err := c.reader.FetchMessage(ctx)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("failed to fetch message from %s: %w", c.topic, err)
	}
	return msg, nil
}

// Commit marks msg as handled for the group
func (c *Consumer) Commit(ctx context.Context, msg kafka.Message) error {
	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to commit offset %d on %s: %w", msg.Offset, c.topic, err)
	}
	return nil
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}

// EnsureTopics creates the record and alert topics through the cluster
// controller. Topics that already exist are left as they are.
func EnsureTopics(ctx context.Context, brokers []string, topics []string, partitions, replication int, logger *zap.Logger) error {
	if len(brokers) == 0 {
		return ErrNoBrokers
	}

	conn, err := kafka.DialContext(ctx, "tcp", brokers[0])
	if err != nil {
		return fmt.Errorf("failed to dial broker %s: %w", brokers[0], err)
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		return fmt.Errorf("failed to locate controller: %w", err)
	}

	ctrl, err := kafka.DialContext(ctx, "tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	if err != nil {
		return fmt.Errorf("failed to dial controller: %w", err)
	}
	defer ctrl.Close()

	configs := make([]kafka.TopicConfig, 0, len(topics))
	for _, topic := range topics {
		configs = append(configs, kafka.TopicConfig{
			Topic:             topic,
			NumPartitions:     partitions,
			ReplicationFactor: replication,
		})
	}
	if err := ctrl.CreateTopics(configs...); err != nil && !errors.Is(err, kafka.TopicAlreadyExists) {
		return fmt.Errorf("failed to create topics %v: %w", topics, err)
	}

	logger.Info("Kafka topics ready", zap.Strings("topics", topics), zap.Int("partitions", partitions))
	return nil
}
