// metrics — счётчики Prometheus events-parser.
// Регистрируются в default registry и отдаются через promhttp.Handler() на /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "events_parser"

// Причины пропуска карточки.
const (
	SkipSeen      = "seen"
	SkipNoTitle   = "no_title"
	SkipDuplicate = "duplicate"
)

// Этапы, на которых карточка может упасть.
const (
	StageDedup    = "dedup"
	StageNavigate = "navigate"
	StagePublish  = "publish"
)

var (
	// EventsPublished — опубликованные события по источникам.
	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_published_total",
		Help:      "Events published to the broker.",
	}, []string{"source"})

	// CardsSkipped — карточки, пропущенные без ошибки.
	CardsSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cards_skipped_total",
		Help:      "Detail cards skipped (already seen, empty title, duplicate date).",
	}, []string{"source", "reason"})

	// CardsFailed — карточки, обработка которых прервана ошибкой.
	CardsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cards_failed_total",
		Help:      "Detail cards aborted by an error.",
	}, []string{"source", "stage"})

	// ListingsFailed — листинги, которые не удалось открыть.
	ListingsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "listings_failed_total",
		Help:      "Listing pages that could not be opened after all attempts.",
	}, []string{"source"})

	// NavigationRetries — повторные попытки открыть страницу.
	NavigationRetries = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "navigation_retries_total",
		Help:      "Page navigation retries.",
	})

	// PublishAttempts — попытки отправки в брокер по результату.
	PublishAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "publish_attempts_total",
		Help:      "Broker send attempts.",
	}, []string{"result"})

	// GeocoderRequests — исходящие запросы геокодера по результату.
	GeocoderRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "geocoder_requests_total",
		Help:      "Outgoing reverse geocoding requests.",
	}, []string{"result"})

	// GeocoderCacheHits — ответы геокодера из кэша.
	GeocoderCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "geocoder_cache_hits_total",
		Help:      "Reverse geocoding lookups served from the run cache.",
	})

	// RunsTotal — завершённые проходы по результату.
	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "runs_total",
		Help:      "Completed pipeline passes.",
	}, []string{"result"})

	// HTTPRequests — запросы к служебному серверу по шаблону маршрута и коду ответа.
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Requests served by the operations HTTP server.",
	}, []string{"route", "code"})
)
