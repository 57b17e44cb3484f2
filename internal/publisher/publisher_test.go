package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pribylovaa/go-events-parser/internal/models"
)

// fakeProducer — Producer, возвращающий ошибки по сценарию.
type fakeProducer struct {
	errs  []error // i-я попытка -> errs[i]; за пределами — nil
	calls int
	topic string
	key   []byte
	value []byte
}

func (f *fakeProducer) Send(_ context.Context, topic string, key, value []byte) error {
	f.calls++
	f.topic, f.key, f.value = topic, key, value
	if f.calls <= len(f.errs) {
		return f.errs[f.calls-1]
	}
	return nil
}

// recordSleep подменяет ожидание и записывает задержки.
func recordSleep(p *Publisher) *[]time.Duration {
	var delays []time.Duration
	p.sleep = func(_ context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}
	return &delays
}

func strPtr(s string) *string { return &s }

func sampleEvent() models.Event {
	price := 50.0
	return models.Event{
		Link:     "https://yolo.ge/ru/poster/concert-1",
		Title:    "Concert",
		Country:  "Грузия",
		Category: "music",
		StartsAt: strPtr("2026-02-01T19:00:00+04:00"),
		Price:    &price,
		Currency: strPtr("GEL"),
	}
}

func TestPublish_FirstAttemptOK(t *testing.T) {
	t.Parallel()

	fp := &fakeProducer{}
	p := New(fp, Options{Topic: "events.new"})
	delays := recordSleep(p)

	require.NoError(t, p.Publish(context.Background(), sampleEvent()))
	require.Equal(t, 1, fp.calls)
	require.Empty(t, *delays)

	require.Equal(t, "events.new", fp.topic)
	require.Equal(t, []byte(models.URLHash("https://yolo.ge/ru/poster/concert-1")), fp.key)
	require.Len(t, fp.key, 40)

	var got map[string]any
	require.NoError(t, json.Unmarshal(fp.value, &got))
	require.Equal(t, "Concert", got["title"])
	require.Equal(t, "2026-02-01T19:00:00+04:00", got["starts_at"])
	require.Equal(t, 50.0, got["price"])
	require.Equal(t, "GEL", got["currency"])
	require.Contains(t, got, "age")
	require.Nil(t, got["age"])
}

// TestPublish_RetriesThenOK — две ошибки, затем успех: задержки 0.5s и 1s.
func TestPublish_RetriesThenOK(t *testing.T) {
	t.Parallel()

	fp := &fakeProducer{errs: []error{errors.New("broker down"), errors.New("leader not available")}}
	p := New(fp, Options{Topic: "events.new"})
	delays := recordSleep(p)

	require.NoError(t, p.Publish(context.Background(), sampleEvent()))
	require.Equal(t, 3, fp.calls)
	require.Equal(t, []time.Duration{500 * time.Millisecond, time.Second}, *delays)
}

// TestPublish_Exhausted — ровно 5 попыток, задержки 0.5/1/2/4/8s, наружу — последняя ошибка.
func TestPublish_Exhausted(t *testing.T) {
	t.Parallel()

	var errs []error
	for i := 1; i <= 5; i++ {
		errs = append(errs, fmt.Errorf("attempt %d failed", i))
	}
	last := errs[4]

	fp := &fakeProducer{errs: errs}
	p := New(fp, Options{Topic: "events.new"})
	delays := recordSleep(p)

	err := p.Publish(context.Background(), sampleEvent())
	require.Error(t, err)
	require.ErrorIs(t, err, ErrExhausted)
	require.ErrorIs(t, err, last)
	require.Equal(t, 5, fp.calls)
	require.Equal(t, []time.Duration{
		500 * time.Millisecond,
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
	}, *delays)
}

// TestPublish_BackoffFromBase — расписание удваивается от BackoffBase без джиттера.
func TestPublish_BackoffFromBase(t *testing.T) {
	t.Parallel()

	boom := errors.New("broker down")
	fp := &fakeProducer{errs: []error{boom, boom, boom}}
	p := New(fp, Options{Topic: "events.new", Attempts: 3, BackoffBase: 100 * time.Millisecond})
	delays := recordSleep(p)

	require.ErrorIs(t, p.Publish(context.Background(), sampleEvent()), ErrExhausted)
	require.Equal(t, []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
	}, *delays)
}

// TestPublish_CanceledDuringBackoff — отмена ctx прерывает серию повторов.
func TestPublish_CanceledDuringBackoff(t *testing.T) {
	t.Parallel()

	boom := errors.New("broker down")
	fp := &fakeProducer{errs: []error{boom, boom, boom, boom, boom}}
	p := New(fp, Options{Topic: "events.new", BackoffBase: time.Hour})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	err := p.Publish(ctx, sampleEvent())
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.ErrorIs(t, err, boom)
	require.Equal(t, 1, fp.calls)
}

// TestPublish_AttemptTimeout — попытка получает свой дедлайн.
func TestPublish_AttemptTimeout(t *testing.T) {
	t.Parallel()

	var deadlines []bool
	prod := producerFunc(func(ctx context.Context, _ string, _, _ []byte) error {
		_, ok := ctx.Deadline()
		deadlines = append(deadlines, ok)
		return nil
	})

	require.NoError(t, New(prod, Options{Topic: "t", AttemptTimeout: time.Second}).Publish(context.Background(), sampleEvent()))
	require.NoError(t, New(prod, Options{Topic: "t"}).Publish(context.Background(), sampleEvent()))
	require.Equal(t, []bool{true, false}, deadlines)
}

type producerFunc func(ctx context.Context, topic string, key, value []byte) error

func (f producerFunc) Send(ctx context.Context, topic string, key, value []byte) error {
	return f(ctx, topic, key, value)
}

func TestKey_Deterministic(t *testing.T) {
	t.Parallel()

	require.Equal(t, Key("https://a"), Key("https://a"))
	require.NotEqual(t, Key("https://a"), Key("https://b"))
	// sha1("abc")
	require.Equal(t, "a9993e364706816aba3e25717850c26c9cd0d89d", string(Key("abc")))
}
