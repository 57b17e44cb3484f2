package browser

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
)

// StaticOptions — параметры HTTP-клиента статического движка.
type StaticOptions struct {
	UserAgent      string
	RequestTimeout time.Duration
}

// Static — Browser поверх colly: документ загружается одним GET
// и разбирается goquery. JavaScript не исполняется, поэтому WaitFor
// проверяет наличие элемента в уже загруженном документе.
type Static struct {
	collector *colly.Collector
	closed    atomic.Bool
	open      atomic.Int64
}

var _ Browser = (*Static)(nil)

// NewStatic создаёт сессию с общим HTTP-клиентом для всех страниц.
func NewStatic(opts StaticOptions) *Static {
	c := colly.NewCollector(colly.AllowURLRevisit())
	if opts.UserAgent != "" {
		c.UserAgent = opts.UserAgent
	}
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = defaultGotoTimeout
	}
	c.SetRequestTimeout(timeout)

	return &Static{collector: c}
}

// NewPage открывает пустую страницу.
func (s *Static) NewPage(_ context.Context) (Page, error) {
	if s.closed.Load() {
		return nil, fmt.Errorf("browser.static.NewPage: %w", ErrClosed)
	}
	s.open.Add(1)

	return &staticPage{owner: s}, nil
}

// OpenPages — число открытых и ещё не закрытых страниц.
func (s *Static) OpenPages() int { return int(s.open.Load()) }

// Close закрывает сессию; новые страницы больше не открываются.
func (s *Static) Close() error {
	s.closed.Store(true)
	return nil
}

type staticPage struct {
	owner *Static

	mu     sync.RWMutex
	doc    *goquery.Selection
	url    string
	closed bool
}

func (p *staticPage) Goto(ctx context.Context, rawURL string) error {
	const op = "browser.static.Goto"

	p.mu.RLock()
	closed := p.closed
	p.mu.RUnlock()
	if closed {
		return fmt.Errorf("%s: %w", op, ErrClosed)
	}

	// Клон разделяет HTTP-клиент и настройки, но не колбэки.
	c := p.owner.collector.Clone()

	var (
		doc   *goquery.Selection
		final string
	)
	c.OnResponse(func(r *colly.Response) {
		final = r.Request.URL.String()
	})
	c.OnHTML("html", func(e *colly.HTMLElement) {
		doc = e.DOM
	})

	done := make(chan error, 1)
	go func() { done <- c.Visit(rawURL) }()

	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %s: %w", op, rawURL, ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("%s: visit %s: %w", op, rawURL, err)
		}
	}

	if doc == nil {
		return fmt.Errorf("%s: %s: response is not an html document", op, rawURL)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return fmt.Errorf("%s: %w", op, ErrClosed)
	}
	p.doc, p.url = doc, final

	return nil
}

func (p *staticPage) WaitFor(ctx context.Context, selector string) error {
	const op = "browser.static.WaitFor"

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if _, ok := p.QueryOne(selector); !ok {
		return fmt.Errorf("%s: %q: %w", op, selector, ErrElementNotFound)
	}

	return nil
}

func (p *staticPage) QueryOne(selector string) (Element, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed || p.doc == nil {
		return nil, false
	}

	sel := p.doc.Find(selector).First()
	if sel.Length() == 0 {
		return nil, false
	}

	return element{sel: sel}, true
}

func (p *staticPage) QueryAll(selector string) []Element {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed || p.doc == nil {
		return nil
	}

	var out []Element
	p.doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		out = append(out, element{sel: s})
	})

	return out
}

func (p *staticPage) URL() string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.url
}

// Close освобождает документ. Повторный вызов безопасен.
func (p *staticPage) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	p.doc = nil
	p.owner.open.Add(-1)

	return nil
}

type element struct {
	sel *goquery.Selection
}

func (e element) Text() string {
	return strings.TrimSpace(e.sel.Text())
}

func (e element) Attr(name string) (string, bool) {
	return e.sel.Attr(name)
}
