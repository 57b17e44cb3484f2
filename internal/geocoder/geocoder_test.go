package geocoder

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

// Тесты геокодера на httptest-сервере:
//  - параметры запроса (format/lat/lon/addressdetails/accept-language) и User-Agent;
//  - порядок предпочтения полей адреса;
//  - кэш по округлённым координатам, в том числе для неудачных ответов;
//  - интервал между исходящими запросами не меньше 1/qps;
//  - схлопывание одновременных запросов одной точки.

// fakeNominatim — reverse-эндпоинт, считающий запросы и время их прихода.
type fakeNominatim struct {
	mu       sync.Mutex
	hits     int
	arrivals []time.Time
	last     *http.Request
	status   int
	body     string
	delay    time.Duration
}

func (f *fakeNominatim) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.hits++
	f.arrivals = append(f.arrivals, time.Now())
	f.last = r.Clone(context.Background())
	status, body, delay := f.status, f.body, f.delay
	f.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if status == 0 {
		status = http.StatusOK
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func (f *fakeNominatim) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hits
}

func newTestGeocoder(t *testing.T, f *fakeNominatim, qps float64) *Geocoder {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)

	return New(srv.Client(), Options{
		Endpoint:  srv.URL + "/reverse",
		Language:  "ru",
		UserAgent: "events-parser-test/1.0",
		QPS:       qps,
		Timeout:   2 * time.Second,
	})
}

func TestCityFrom_RequestShapeAndCity(t *testing.T) {
	t.Parallel()

	f := &fakeNominatim{body: `{"address":{"city":"Тбилиси","county":"Мцхета"}}`}
	g := newTestGeocoder(t, f, 100)

	city := g.CityFrom(context.Background(), "41.7", "44.8")
	require.Equal(t, "Тбилиси", city)

	q := f.last.URL.Query()
	require.Equal(t, "/reverse", f.last.URL.Path)
	require.Equal(t, "jsonv2", q.Get("format"))
	require.Equal(t, "41.7", q.Get("lat"))
	require.Equal(t, "44.8", q.Get("lon"))
	require.Equal(t, "1", q.Get("addressdetails"))
	require.Equal(t, "ru", q.Get("accept-language"))
	require.Equal(t, "events-parser-test/1.0", f.last.Header.Get("User-Agent"))
}

// TestCityFrom_PreferenceOrder — city > town > village > municipality > county.
func TestCityFrom_PreferenceOrder(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		`{"address":{"town":"Гори","village":"X","county":"Y"}}`:     "Гори",
		`{"address":{"city":" ","village":"Сно","county":"Y"}}`:      "Сно",
		`{"address":{"municipality":"Казбеги","county":"Мцхета"}}`:   "Казбеги",
		`{"address":{"county":"Мцхета-Мтианети"}}`:                   "Мцхета-Мтианети",
		`{"address":{}}`:                                             "",
		`{"error":"Unable to geocode"}`:                              "",
	}

	for body, want := range cases {
		f := &fakeNominatim{body: body}
		g := newTestGeocoder(t, f, 100)
		require.Equal(t, want, g.CityFrom(context.Background(), "42.0", "44.0"), body)
	}
}

// TestCityFrom_CacheByRoundedPoint — точки, совпадающие после округления, дают один запрос.
func TestCityFrom_CacheByRoundedPoint(t *testing.T) {
	t.Parallel()

	f := &fakeNominatim{body: `{"address":{"city":"Батуми"}}`}
	g := newTestGeocoder(t, f, 100)
	ctx := context.Background()

	require.Equal(t, "Батуми", g.CityFrom(ctx, "41.64231", "41.63392"))
	require.Equal(t, "Батуми", g.CityFrom(ctx, "41.64229", "41.63388"))
	require.Equal(t, "Батуми", g.CityFrom(ctx, " 41.6423 ", "41.6339"))

	require.Equal(t, 1, f.count())
	require.Equal(t, 1, g.Cache().Len())
}

// TestCityFrom_FailuresAreCached — ошибка API деградирует в «нет города» и кэшируется.
func TestCityFrom_FailuresAreCached(t *testing.T) {
	t.Parallel()

	for _, f := range []*fakeNominatim{
		{status: http.StatusInternalServerError, body: `oops`},
		{status: http.StatusTooManyRequests},
		{body: `{not json`},
	} {
		g := newTestGeocoder(t, f, 100)

		require.Empty(t, g.CityFrom(context.Background(), "41.7", "44.8"))
		require.Empty(t, g.CityFrom(context.Background(), "41.7", "44.8"))
		require.Equal(t, 1, f.count())

		city, ok := g.Cache().Get(Round(41.7, 44.8))
		require.True(t, ok)
		require.Empty(t, city)
	}
}

func TestCityFrom_Timeout(t *testing.T) {
	t.Parallel()

	f := &fakeNominatim{body: `{"address":{"city":"late"}}`, delay: 300 * time.Millisecond}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)

	g := New(srv.Client(), Options{Endpoint: srv.URL, QPS: 100, Timeout: 50 * time.Millisecond})
	require.Empty(t, g.CityFrom(context.Background(), "41.7", "44.8"))
}

// TestCityFrom_MissingOrInvalidCoordinates — без координат запросов нет.
func TestCityFrom_MissingOrInvalidCoordinates(t *testing.T) {
	t.Parallel()

	f := &fakeNominatim{body: `{"address":{"city":"Тбилиси"}}`}
	g := newTestGeocoder(t, f, 100)
	ctx := context.Background()

	require.Empty(t, g.CityFrom(ctx, "", "44.8"))
	require.Empty(t, g.CityFrom(ctx, "41.7", ""))
	require.Empty(t, g.CityFrom(ctx, "north", "44.8"))
	require.Zero(t, f.count())
	require.Zero(t, g.Cache().Len())
}

// TestCityFrom_RateLimitInterval — между исходящими запросами не меньше 1/qps.
func TestCityFrom_RateLimitInterval(t *testing.T) {
	t.Parallel()

	f := &fakeNominatim{body: `{"address":{"city":"X"}}`}
	g := newTestGeocoder(t, f, 20) // 50ms
	ctx := context.Background()

	for _, lat := range []string{"41.1", "41.2", "41.3", "41.4"} {
		g.CityFrom(ctx, lat, "44.8")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	require.Len(t, f.arrivals, 4)
	for i := 1; i < len(f.arrivals); i++ {
		gap := f.arrivals[i].Sub(f.arrivals[i-1])
		require.GreaterOrEqual(t, gap, 45*time.Millisecond, "gap #%d = %s", i, gap)
	}
}

// TestCityFrom_ConcurrentCallersShareLimiter — конкурентные вызовы для разных точек
// всё равно проходят через общий лимитер, одна точка — один запрос.
func TestCityFrom_ConcurrentCallersShareLimiter(t *testing.T) {
	t.Parallel()

	f := &fakeNominatim{body: `{"address":{"city":"X"}}`, delay: 20 * time.Millisecond}
	g := newTestGeocoder(t, f, 25) // 40ms

	var wg sync.WaitGroup
	var empty atomic.Int32
	for i := 0; i < 8; i++ {
		lat := "41.1"
		if i%2 == 1 {
			lat = "41.2"
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if g.CityFrom(context.Background(), lat, "44.8") == "" {
				empty.Add(1)
			}
		}()
	}
	wg.Wait()

	require.Zero(t, empty.Load())
	require.Equal(t, 2, f.count())

	f.mu.Lock()
	defer f.mu.Unlock()
	gap := f.arrivals[1].Sub(f.arrivals[0])
	require.GreaterOrEqual(t, gap, 35*time.Millisecond)
}

// TestCityFrom_CanceledWhileWaiting — отмена на лимитере не кэширует «нет города».
func TestCityFrom_CanceledWhileWaiting(t *testing.T) {
	t.Parallel()

	f := &fakeNominatim{body: `{"address":{"city":"X"}}`}
	g := newTestGeocoder(t, f, 0.1)

	// Первый запрос забирает единственный токен.
	require.Equal(t, "X", g.CityFrom(context.Background(), "41.1", "44.8"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.Empty(t, g.CityFrom(ctx, "41.2", "44.8"))

	_, ok := g.Cache().Get(Round(41.2, 44.8))
	require.False(t, ok)
	require.Equal(t, 1, f.count())
}

// TestCityFrom_CanceledCallerDoesNotFailOthers — отмена одного из ожидающих
// точку не прерывает общий запрос: второй вызывающий получает город.
func TestCityFrom_CanceledCallerDoesNotFailOthers(t *testing.T) {
	t.Parallel()

	f := &fakeNominatim{body: `{"address":{"city":"Тбилиси"}}`, delay: 150 * time.Millisecond}
	g := newTestGeocoder(t, f, 100)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	first := make(chan string, 1)
	go func() { first <- g.CityFrom(ctx, "41.7", "44.8") }()

	// Второй вызывающий присоединяется, пока запрос первого в полёте.
	require.Eventually(t, func() bool { return f.count() == 1 }, time.Second, time.Millisecond)
	second := g.CityFrom(context.Background(), "41.7", "44.8")

	require.Empty(t, <-first)
	require.Equal(t, "Тбилиси", second)
	require.Equal(t, 1, f.count())

	city, ok := g.Cache().Get(Round(41.7, 44.8))
	require.True(t, ok)
	require.Equal(t, "Тбилиси", city)
}

// TestCityFrom_LastCallerGoneCancelsLookup — когда точку никто не ждёт,
// запрос отменяется и не кэшируется.
func TestCityFrom_LastCallerGoneCancelsLookup(t *testing.T) {
	t.Parallel()

	f := &fakeNominatim{body: `{"address":{"city":"X"}}`, delay: 200 * time.Millisecond}
	g := newTestGeocoder(t, f, 100)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	require.Empty(t, g.CityFrom(ctx, "41.7", "44.8"))

	require.Never(t, func() bool {
		_, ok := g.Cache().Get(Round(41.7, 44.8))
		return ok
	}, 300*time.Millisecond, 10*time.Millisecond)
}

// TestNew_QPSFloor — qps <= 0 не даёт деления на ноль: применяется нижняя граница.
func TestNew_QPSFloor(t *testing.T) {
	t.Parallel()

	g := New(nil, Options{QPS: 0})
	lim, ok := g.limiter.(*rate.Limiter)
	require.True(t, ok)
	require.Equal(t, rate.Limit(minQPS), lim.Limit())
	require.Equal(t, 1, lim.Burst())
}

func TestRound(t *testing.T) {
	t.Parallel()

	require.Equal(t, Point{Lat: 41.7152, Lon: 44.8271}, Round(41.71516, 44.82714))
	require.Equal(t, Round(41.70001, 44.8), Round(41.70004, 44.80002))
	require.Equal(t, "41.7000,44.8000", Round(41.7, 44.8).String())
}
