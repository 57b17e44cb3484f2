// browser — абстракция «рендерящего» клиента: навигация, ожидание элемента,
// выборка элементов по CSS-селектору, чтение текста и атрибутов.
//
// Логика извлечения в адаптерах зависит только от интерфейсов пакета,
// конкретный движок (см. Static) подставляется в main.
package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pribylovaa/go-events-parser/internal/metrics"
	"github.com/pribylovaa/go-events-parser/internal/pkg/log"
)

var (
	// ErrNavigation — страница не открылась за все попытки.
	ErrNavigation = errors.New("navigation failed")
	// ErrElementNotFound — ожидаемый элемент не появился на странице.
	ErrElementNotFound = errors.New("element not found")
	// ErrClosed — страница или браузер уже закрыты.
	ErrClosed = errors.New("closed")
)

// Element — узел документа.
type Element interface {
	// Text — текстовое содержимое узла вместе с потомками.
	Text() string
	// Attr — значение атрибута и признак его наличия.
	Attr(name string) (string, bool)
}

// Page — короткоживущий контекст просмотра одной страницы.
// Должна быть закрыта на любом пути выхода.
type Page interface {
	Goto(ctx context.Context, url string) error
	WaitFor(ctx context.Context, selector string) error
	QueryOne(selector string) (Element, bool)
	QueryAll(selector string) []Element
	// URL — адрес загруженного документа (после редиректов).
	URL() string
	Close() error
}

// Browser — долгоживущая сессия, из которой открываются страницы.
type Browser interface {
	NewPage(ctx context.Context) (Page, error)
	Close() error
}

// NavOptions — политика навигации.
type NavOptions struct {
	// Attempts — число попыток (по умолчанию 3).
	Attempts int
	// Step — шаг линейной задержки: после попытки n ждём Step*n.
	Step time.Duration
	// GotoTimeout — таймаут загрузки документа.
	GotoTimeout time.Duration
	// WaitTimeout — таймаут ожидания элемента.
	WaitTimeout time.Duration
}

const (
	defaultAttempts    = 3
	defaultStep        = time.Second
	defaultGotoTimeout = 30 * time.Second
	defaultWaitTimeout = 20 * time.Second
)

func (o NavOptions) withDefaults() NavOptions {
	if o.Attempts <= 0 {
		o.Attempts = defaultAttempts
	}
	if o.Step <= 0 {
		o.Step = defaultStep
	}
	if o.GotoTimeout <= 0 {
		o.GotoTimeout = defaultGotoTimeout
	}
	if o.WaitTimeout <= 0 {
		o.WaitTimeout = defaultWaitTimeout
	}

	return o
}

// Navigate открывает url и ждёт появления waitSelector.
//
// Неудачная попытка n (с единицы) выжидает Step*n перед следующей;
// после последней ожидания нет, возвращается ErrNavigation с последней причиной.
func Navigate(ctx context.Context, page Page, url, waitSelector string, opts NavOptions) error {
	const op = "browser.Navigate"

	opts = opts.withDefaults()

	var lastErr error
	for attempt := 1; attempt <= opts.Attempts; attempt++ {
		if lastErr = navigateOnce(ctx, page, url, waitSelector, opts); lastErr == nil {
			return nil
		}
		if attempt == opts.Attempts {
			break
		}

		metrics.NavigationRetries.Inc()
		delay := opts.Step * time.Duration(attempt)
		log.From(ctx).Debug("navigation_retry",
			slog.String("op", op),
			slog.String("url", url),
			slog.Int("attempt", attempt),
			slog.Duration("backoff", delay),
			slog.String("err", lastErr.Error()),
		)

		if err := sleepCtx(ctx, delay); err != nil {
			return fmt.Errorf("%s: %s: %w (last error: %w)", op, url, err, lastErr)
		}
	}

	return fmt.Errorf("%s: %w: %s after %d attempts: %w", op, ErrNavigation, url, opts.Attempts, lastErr)
}

func navigateOnce(ctx context.Context, page Page, url, waitSelector string, opts NavOptions) error {
	gotoCtx, cancel := context.WithTimeout(ctx, opts.GotoTimeout)
	err := page.Goto(gotoCtx, url)
	cancel()
	if err != nil {
		return err
	}

	if waitSelector == "" {
		return nil
	}

	waitCtx, cancel := context.WithTimeout(ctx, opts.WaitTimeout)
	defer cancel()

	return page.WaitFor(waitCtx, waitSelector)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
