// publisher — публикация событий в брокер с повторами и экспоненциальной задержкой.
package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/pribylovaa/go-events-parser/internal/metrics"
	"github.com/pribylovaa/go-events-parser/internal/models"
	"github.com/pribylovaa/go-events-parser/internal/pkg/log"
)

// ErrExhausted — все попытки отправки исчерпаны. Возвращаемая ошибка
// оборачивает и ErrExhausted, и последнюю ошибку брокера.
var ErrExhausted = errors.New("publish attempts exhausted")

const (
	defaultAttempts    = 5
	defaultBackoffBase = 500 * time.Millisecond
)

// Producer — транспорт брокера: одна отправка с ожиданием подтверждения.
type Producer interface {
	Send(ctx context.Context, topic string, key, value []byte) error
}

// Options — топик и политика повторов.
type Options struct {
	Topic string
	// Attempts — число попыток (по умолчанию 5).
	Attempts int
	// BackoffBase — задержка после первой неудачи, далее удваивается.
	BackoffBase time.Duration
	// AttemptTimeout — таймаут одной попытки; 0 — без отдельного таймаута.
	AttemptTimeout time.Duration
}

// Publisher отправляет models.Event в топик.
//
// Ключ сообщения — hex(sha1(link)): повторные публикации одного события
// попадают в одну партицию и распознаются потребителями как дубликаты.
type Publisher struct {
	producer Producer
	opts     Options
	sleep    func(ctx context.Context, d time.Duration) error
}

// New создаёт Publisher.
func New(producer Producer, opts Options) *Publisher {
	if opts.Attempts <= 0 {
		opts.Attempts = defaultAttempts
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = defaultBackoffBase
	}

	return &Publisher{producer: producer, opts: opts, sleep: sleepCtx}
}

// Key — ключ сообщения для ссылки события.
func Key(link string) []byte {
	return []byte(models.URLHash(link))
}

// Publish сериализует событие в JSON и отправляет его.
//
// После каждой неудачной попытки i (с нуля) выжидает BackoffBase*2^i,
// при дефолтах: 0.5s, 1s, 2s, 4s, 8s. После исчерпания попыток
// возвращает ErrExhausted вместе с последней ошибкой брокера; отмена ctx
// прерывает ожидание.
func (p *Publisher) Publish(ctx context.Context, ev models.Event) error {
	const op = "publisher.Publish"

	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("%s: marshal: %w", op, err)
	}
	key := Key(ev.Link)

	// Задержка выдерживается и после последней попытки.
	schedule := p.schedule()

	var lastErr error
	for i := 0; i < p.opts.Attempts; i++ {
		if lastErr = p.send(ctx, key, value); lastErr == nil {
			metrics.PublishAttempts.WithLabelValues("ok").Inc()
			return nil
		}

		metrics.PublishAttempts.WithLabelValues("error").Inc()
		delay := schedule.NextBackOff()
		log.From(ctx).Warn("publish_attempt_failed",
			slog.String("op", op),
			slog.String("link", ev.Link),
			slog.Int("attempt", i+1),
			slog.Duration("backoff", delay),
			slog.String("err", lastErr.Error()),
		)

		if err := p.sleep(ctx, delay); err != nil {
			return fmt.Errorf("%s: %w (last error: %w)", op, err, lastErr)
		}
	}

	return fmt.Errorf("%s: %w after %d attempts: %w", op, ErrExhausted, p.opts.Attempts, lastErr)
}

// schedule — BackoffBase*2^i без джиттера и без ограничения по общему времени.
func (p *Publisher) schedule() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.opts.BackoffBase
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = time.Duration(math.MaxInt64)
	b.MaxElapsedTime = 0
	b.Reset()

	return b
}

func (p *Publisher) send(ctx context.Context, key, value []byte) error {
	if p.opts.AttemptTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.AttemptTimeout)
		defer cancel()
	}

	return p.producer.Send(ctx, p.opts.Topic, key, value)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
