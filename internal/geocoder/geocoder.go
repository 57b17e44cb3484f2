// geocoder — обратное геокодирование (Nominatim reverse) с кэшем
// по округлённым координатам и ограничением частоты запросов.
package geocoder

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/pribylovaa/go-events-parser/internal/metrics"
	"github.com/pribylovaa/go-events-parser/internal/normalize"
	"github.com/pribylovaa/go-events-parser/internal/pkg/log"
)

const (
	// minQPS — нижняя граница частоты запросов.
	minQPS         = 0.1
	defaultTimeout = 15 * time.Second
	defaultUA      = "events-parser/1.0"
)

// Limiter выдаёт разрешение на очередной исходящий запрос.
// *rate.Limiter с burst=1 гарантирует интервал не меньше 1/qps между разрешениями.
type Limiter interface {
	Wait(ctx context.Context) error
}

// Options — параметры геокодера.
type Options struct {
	// Endpoint — URL reverse-метода, например https://nominatim.openstreetmap.org/reverse.
	Endpoint string
	// Language — accept-language ответа.
	Language string
	// UserAgent — идентификатор клиента, обязателен по политике Nominatim.
	UserAgent string
	// QPS — максимум запросов в секунду.
	QPS float64
	// Timeout — таймаут одного запроса.
	Timeout time.Duration
}

// Geocoder определяет город по координатам.
//
// Кэш и лимитер принадлежат экземпляру: один Geocoder живёт один проход пайплайна.
// Безопасен для конкурентного использования; одновременные запросы одной точки
// схлопываются в один исходящий запрос.
type Geocoder struct {
	client  *http.Client
	opts    Options
	limiter Limiter
	cache   *Cache
	group   singleflight.Group

	mu      sync.Mutex
	flights map[Point]*flight
}

// flight — общий контекст запроса одной точки. Отменяется, когда точку
// больше не ждёт ни один вызывающий.
type flight struct {
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

// New создаёт геокодер со своим кэшем и лимитером max(QPS, 0.1).
func New(client *http.Client, opts Options) *Geocoder {
	if client == nil {
		client = &http.Client{}
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUA
	}

	qps := opts.QPS
	if qps < minQPS {
		qps = minQPS
	}

	return &Geocoder{
		client:  client,
		opts:    opts,
		limiter: rate.NewLimiter(rate.Limit(qps), 1),
		cache:   NewCache(),
		flights: make(map[Point]*flight),
	}
}

// Cache возвращает кэш экземпляра.
func (g *Geocoder) Cache() *Cache { return g.cache }

// CityFrom возвращает город для пары координат в строковом виде.
// Пустая строка — города нет: координаты отсутствуют/нечисловые, запрос
// не удался или ctx вызывающего отменён. Ошибки не пробрасываются,
// «нет города» от API тоже кэшируется.
//
// Одновременные вызовы для одной точки делят один исходящий запрос.
// Отмена ctx одного вызывающего не прерывает запрос для остальных.
func (g *Geocoder) CityFrom(ctx context.Context, lat, lon string) string {
	latF, lonF := normalize.Float(lat), normalize.Float(lon)
	if latF == nil || lonF == nil {
		return ""
	}

	p := Round(*latF, *lonF)
	if city, ok := g.cache.Get(p); ok {
		metrics.GeocoderCacheHits.Inc()
		return city
	}

	f := g.join(ctx, p)
	defer g.leave(p, f)

	ch := g.group.DoChan(p.String(), func() (any, error) {
		return g.resolve(f.ctx, p), nil
	})

	select {
	case <-ctx.Done():
		return ""
	case res := <-ch:
		return res.Val.(string)
	}
}

// join регистрирует вызывающего в запросе точки p.
// Контекст запроса сохраняет значения ctx (логгер), но не его отмену.
func (g *Geocoder) join(ctx context.Context, p Point) *flight {
	g.mu.Lock()
	defer g.mu.Unlock()

	f, ok := g.flights[p]
	if !ok {
		fctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		f = &flight{ctx: fctx, cancel: cancel}
		g.flights[p] = f
	}
	f.waiters++

	return f
}

func (g *Geocoder) leave(p Point, f *flight) {
	g.mu.Lock()
	defer g.mu.Unlock()

	f.waiters--
	if f.waiters > 0 {
		return
	}
	f.cancel()
	if g.flights[p] == f {
		delete(g.flights, p)
	}
}

// resolve выполняет запрос под лимитером и кэширует ответ.
// Запрос, прерванный отменой, в кэш не пишется.
func (g *Geocoder) resolve(ctx context.Context, p Point) string {
	const op = "geocoder.resolve"

	if city, ok := g.cache.Get(p); ok {
		metrics.GeocoderCacheHits.Inc()
		return city
	}

	if err := g.limiter.Wait(ctx); err != nil {
		return ""
	}

	city, err := g.lookup(ctx, p)
	if err != nil {
		if ctx.Err() != nil {
			return ""
		}
		metrics.GeocoderRequests.WithLabelValues("error").Inc()
		log.From(ctx).Warn("geocode_failed",
			slog.String("op", op),
			slog.String("point", p.String()),
			slog.String("err", err.Error()),
		)
		city = ""
	} else {
		metrics.GeocoderRequests.WithLabelValues("ok").Inc()
	}

	g.cache.Set(p, city)
	return city
}

// reverseResponse — интересующая часть ответа format=jsonv2.
type reverseResponse struct {
	Address struct {
		City         string `json:"city"`
		Town         string `json:"town"`
		Village      string `json:"village"`
		Municipality string `json:"municipality"`
		County       string `json:"county"`
	} `json:"address"`
}

// city выбирает первое непустое поле: city, town, village, municipality, county.
func (r reverseResponse) city() string {
	a := r.Address
	for _, v := range []string{a.City, a.Town, a.Village, a.Municipality, a.County} {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}

	return ""
}

// lookup выполняет один GET к reverse-методу.
func (g *Geocoder) lookup(ctx context.Context, p Point) (string, error) {
	const op = "geocoder.lookup"

	ctx, cancel := context.WithTimeout(ctx, g.opts.Timeout)
	defer cancel()

	u, err := url.Parse(g.opts.Endpoint)
	if err != nil {
		return "", fmt.Errorf("%s: parse_endpoint: %w", op, err)
	}

	q := u.Query()
	q.Set("format", "jsonv2")
	q.Set("lat", strconv.FormatFloat(p.Lat, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(p.Lon, 'f', -1, 64))
	q.Set("addressdetails", "1")
	if g.opts.Language != "" {
		q.Set("accept-language", g.opts.Language)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", fmt.Errorf("%s: new_request: %w", op, err)
	}
	req.Header.Set("User-Agent", g.opts.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%s: do: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return "", fmt.Errorf("%s: status=%d", op, resp.StatusCode)
	}

	var body reverseResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("%s: decode: %w", op, err)
	}

	return body.city(), nil
}
