// Package messaging carries domain events (orders placed, tables closed)
// between the API process and the workers.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/tableside/internal/config"
)

const (
	minFetchBackoff = time.Second
	maxFetchBackoff = 30 * time.Second
)

// Message is one event read from the bus.
type Message struct {
	Topic   string
	Key     []byte
	Value   []byte
	Headers map[string]string
	Offset  int64
	Time    time.Time
}

// Handler processes an inbound message.
type Handler func(context.Context, Message) error

// Client publishes and consumes events on a single topic.
type Client interface {
	Publish(ctx context.Context, key []byte, value []byte) error
	Consume(ctx context.Context, handler Handler) error
	Topic() string
}

// Module wires the messaging client.
var Module = fx.Provide(NewClient)

// NewClient returns the kafka client when messaging is enabled and a noop
// client otherwise. Services publish unconditionally either way.
func NewClient(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (Client, error) {
	if !cfg.Messaging.Enabled || cfg.Messaging.Driver == "noop" {
		logger.Info("messaging disabled; domain events are dropped")
		return NewNoopClient(cfg.Messaging.Kafka.Topic), nil
	}
	if cfg.Messaging.Driver != "kafka" {
		return nil, fmt.Errorf("unsupported messaging driver: %s", cfg.Messaging.Driver)
	}
	return newKafkaClient(lc, cfg.Messaging, logger), nil
}

// NewNoopClient returns a client that drops published events and blocks
// on Consume until ctx is done.
func NewNoopClient(topic string) Client {
	return noopClient{topic: topic}
}

type noopClient struct {
	topic string
}

func (n noopClient) Publish(context.Context, []byte, []byte) error { return nil }

func (n noopClient) Consume(ctx context.Context, _ Handler) error {
	<-ctx.Done()
	return ctx.Err()
}

func (n noopClient) Topic() string { return n.topic }

type kafkaClient struct {
	writer *kafka.Writer
	reader *kafka.Reader
	topic  string
	logger *zap.Logger
}

func newKafkaClient(lc fx.Lifecycle, cfg config.Messaging, logger *zap.Logger) *kafkaClient {
	kcfg := cfg.Kafka
	log := kafkaLogger{logger: logger.Named("kafka")}

	// Events are keyed by table or order id; hashing keeps each key on one
	// partition so a table's events are consumed in publish order.
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(kcfg.Brokers...),
		Topic:                  kcfg.Topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		BatchTimeout:           10 * time.Millisecond,
		AllowAutoTopicCreation: true,
		Logger:                 log,
		ErrorLogger:            log,
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        kcfg.Brokers,
		GroupID:        cfg.ConsumerGroup,
		Topic:          kcfg.Topic,
		MinBytes:       kcfg.MinBytes,
		MaxBytes:       kcfg.MaxBytes,
		CommitInterval: kcfg.CommitInterval,
		Dialer: &kafka.Dialer{
			Timeout:  kcfg.ConnectTimeout,
			ClientID: kcfg.ClientID,
		},
		ErrorLogger: log,
	})

	client := &kafkaClient{writer: writer, reader: reader, topic: kcfg.Topic, logger: logger}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			logger.Info("closing kafka client", zap.String("topic", kcfg.Topic))
			return errors.Join(writer.Close(), reader.Close())
		},
	})
	return client
}

func (k *kafkaClient) Topic() string { return k.topic }

func (k *kafkaClient) Publish(ctx context.Context, key []byte, value []byte) error {
	return k.writer.WriteMessages(ctx, kafka.Message{Key: key, Value: value})
}

// Consume reads until ctx ends. Fetch failures back off exponentially.
// Events are notifications, so a failed handler is logged and its offset
// committed anyway rather than replayed.
func (k *kafkaClient) Consume(ctx context.Context, handler Handler) error {
	backoff := minFetchBackoff
	for {
		msg, err := k.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			k.logger.Error("kafka fetch failed", zap.Error(err), zap.Duration("retry_in", backoff))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, maxFetchBackoff)
			continue
		}
		backoff = minFetchBackoff

		if err := handler(ctx, fromKafka(msg)); err != nil {
			k.logger.Error("event handler failed",
				zap.Error(err),
				zap.ByteString("key", msg.Key),
				zap.Int("partition", msg.Partition),
				zap.Int64("offset", msg.Offset))
		}
		if err := k.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			k.logger.Warn("kafka commit failed", zap.Error(err), zap.Int64("offset", msg.Offset))
		}
	}
}

func fromKafka(msg kafka.Message) Message {
	out := Message{
		Topic:  msg.Topic,
		Key:    append([]byte(nil), msg.Key...),
		Value:  append([]byte(nil), msg.Value...),
		Offset: msg.Offset,
		Time:   msg.Time,
	}
	if len(msg.Headers) > 0 {
		out.Headers = make(map[string]string, len(msg.Headers))
		for _, h := range msg.Headers {
			out.Headers[h.Key] = string(h.Value)
		}
	}
	return out
}

type kafkaLogger struct {
	logger *zap.Logger
}

func (k kafkaLogger) Printf(msg string, args ...interface{}) {
	k.logger.Sugar().Debugf(msg, args...)
}
