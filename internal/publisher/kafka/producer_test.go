package kafka

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/stretchr/testify/require"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"

	"github.com/pribylovaa/go-events-parser/internal/models"
	"github.com/pribylovaa/go-events-parser/internal/publisher"
)

// TestConfigMap — гарантии доставки попадают в конфигурацию librdkafka.
func TestConfigMap(t *testing.T) {
	t.Parallel()

	cm := ConfigMap(Options{
		Brokers:         []string{"kafka1:29091", "kafka2:29092"},
		ClientID:        "events-parser",
		Acks:            "all",
		Idempotence:     true,
		Linger:          50 * time.Millisecond,
		RequestTimeout:  40 * time.Second,
		RetryBackoff:    300 * time.Millisecond,
		DeliveryTimeout: 45 * time.Second,
	})

	get := func(key string) kafka.ConfigValue {
		v, err := cm.Get(key, nil)
		require.NoError(t, err, key)
		return v
	}

	require.Equal(t, "kafka1:29091,kafka2:29092", get("bootstrap.servers"))
	require.Equal(t, "all", get("acks"))
	require.Equal(t, true, get("enable.idempotence"))
	require.Equal(t, 50, get("linger.ms"))
	require.Equal(t, 40000, get("request.timeout.ms"))
	require.Equal(t, 300, get("retry.backoff.ms"))
	require.Equal(t, 45000, get("delivery.timeout.ms"))
	require.Equal(t, "events-parser", get("client.id"))
}

func TestNew_NoBrokers(t *testing.T) {
	t.Parallel()

	_, err := New(Options{}, nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "no brokers configured")
}

// Интеграционный тест на реальном брокере (testcontainers-go, модуль kafka).
//
// Запуск локально:
//   GO_TEST_INTEGRATION=1 CGO_ENABLED=1 go test ./internal/publisher/kafka -v -count=1
func TestIntegration_PublishAndConsume(t *testing.T) {
	if os.Getenv("GO_TEST_INTEGRATION") == "" {
		t.Skip("integration tests are disabled (set GO_TEST_INTEGRATION=1)")
	}

	ctx := context.Background()
	kc, err := tckafka.Run(ctx, "confluentinc/confluent-local:7.5.0", tckafka.WithClusterID("events-parser-test"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = kc.Terminate(context.Background()) })

	brokers, err := kc.Brokers(ctx)
	require.NoError(t, err)

	prod, err := New(Options{
		Brokers:         brokers,
		Acks:            "all",
		Idempotence:     true,
		Linger:          10 * time.Millisecond,
		RequestTimeout:  10 * time.Second,
		RetryBackoff:    100 * time.Millisecond,
		DeliveryTimeout: 30 * time.Second,
	}, nil)
	require.NoError(t, err)
	defer func() { require.NoError(t, prod.Close()) }()

	pub := publisher.New(prod, publisher.Options{Topic: "events.new", Attempts: 5, AttemptTimeout: 30 * time.Second})
	ev := models.Event{Link: "https://yolo.ge/ru/poster/integration", Title: "Integration", Country: "Грузия", Category: "music"}
	require.NoError(t, pub.Publish(ctx, ev))

	consumer, err := kafka.NewConsumer(&kafka.ConfigMap{
		"bootstrap.servers": brokers[0],
		"group.id":          "events-parser-test",
		"auto.offset.reset": "earliest",
	})
	require.NoError(t, err)
	defer consumer.Close()
	require.NoError(t, consumer.SubscribeTopics([]string{"events.new"}, nil))

	msg, err := consumer.ReadMessage(30 * time.Second)
	require.NoError(t, err)
	require.Equal(t, publisher.Key(ev.Link), msg.Key)
	require.Contains(t, string(msg.Value), `"title":"Integration"`)
}
