// kafka — реализация publisher.Producer на confluent-kafka-go (librdkafka).
//
// Сборка требует CGO_ENABLED=1.
package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"

	"github.com/pribylovaa/go-events-parser/internal/publisher"
)

// Options — параметры продюсера (acks, идемпотентность, linger, таймауты).
type Options struct {
	Brokers         []string
	ClientID        string
	Acks            string
	Idempotence     bool
	Linger          time.Duration
	RequestTimeout  time.Duration
	RetryBackoff    time.Duration
	DeliveryTimeout time.Duration
	FlushTimeout    time.Duration
}

// Producer — обёртка над *kafka.Producer с синхронной отправкой.
type Producer struct {
	p            *kafka.Producer
	flushTimeout time.Duration
	log          *slog.Logger
	done         chan struct{}
}

var _ publisher.Producer = (*Producer)(nil)

// ConfigMap собирает конфигурацию librdkafka из Options.
func ConfigMap(opts Options) *kafka.ConfigMap {
	cm := &kafka.ConfigMap{
		"bootstrap.servers":  strings.Join(opts.Brokers, ","),
		"acks":               opts.Acks,
		"enable.idempotence": opts.Idempotence,
		"linger.ms":          int(opts.Linger.Milliseconds()),
		"request.timeout.ms": int(opts.RequestTimeout.Milliseconds()),
		"retry.backoff.ms":   int(opts.RetryBackoff.Milliseconds()),
	}
	if opts.ClientID != "" {
		_ = cm.SetKey("client.id", opts.ClientID)
	}
	if opts.DeliveryTimeout > 0 {
		_ = cm.SetKey("delivery.timeout.ms", int(opts.DeliveryTimeout.Milliseconds()))
	}

	return cm
}

// New создаёт продюсер и запускает чтение служебных событий librdkafka.
func New(opts Options, log *slog.Logger) (*Producer, error) {
	const op = "publisher.kafka.New"

	if len(opts.Brokers) == 0 {
		return nil, fmt.Errorf("%s: no brokers configured", op)
	}
	if log == nil {
		log = slog.Default()
	}

	p, err := kafka.NewProducer(ConfigMap(opts))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	flush := opts.FlushTimeout
	if flush <= 0 {
		flush = 10 * time.Second
	}

	pr := &Producer{p: p, flushTimeout: flush, log: log, done: make(chan struct{})}
	go pr.watchEvents()

	return pr, nil
}

// watchEvents логирует ошибки клиента, не привязанные к конкретному сообщению.
// Delivery report'ы идут в персональные каналы Send и сюда не попадают.
func (pr *Producer) watchEvents() {
	defer close(pr.done)

	for e := range pr.p.Events() {
		if kerr, ok := e.(kafka.Error); ok {
			pr.log.Warn("kafka_client_error",
				slog.String("op", "publisher.kafka.watchEvents"),
				slog.String("code", kerr.Code().String()),
				slog.String("err", kerr.Error()),
			)
		}
	}
}

// Send отправляет сообщение и ждёт delivery report или отмены ctx.
func (pr *Producer) Send(ctx context.Context, topic string, key, value []byte) error {
	const op = "publisher.kafka.Send"

	delivery := make(chan kafka.Event, 1)
	msg := &kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &topic, Partition: kafka.PartitionAny},
		Key:            key,
		Value:          value,
	}

	if err := pr.p.Produce(msg, delivery); err != nil {
		return fmt.Errorf("%s: produce: %w", op, err)
	}

	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: wait_delivery: %w", op, ctx.Err())
	case e := <-delivery:
		m, ok := e.(*kafka.Message)
		if !ok {
			return fmt.Errorf("%s: unexpected delivery event %T", op, e)
		}
		if m.TopicPartition.Error != nil {
			return fmt.Errorf("%s: delivery: %w", op, m.TopicPartition.Error)
		}
		return nil
	}
}

// Close досылает буфер (до FlushTimeout) и закрывает продюсер.
func (pr *Producer) Close() error {
	remaining := pr.p.Flush(int(pr.flushTimeout.Milliseconds()))
	pr.p.Close()
	<-pr.done

	if remaining > 0 {
		return fmt.Errorf("publisher.kafka.Close: %d messages not delivered", remaining)
	}

	return nil
}
