// http — служебный HTTP-сервер events-parser: пробы, метрики, статус прохода.
package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pribylovaa/go-events-parser/internal/http/middleware"
	"github.com/pribylovaa/go-events-parser/internal/service"
)

// StatusProvider отдаёт статус последнего прохода.
type StatusProvider interface {
	LastRun() (service.RunStatus, bool)
}

// Options — параметры сборки роутера.
type Options struct {
	Logger *slog.Logger
	// Ready — готовность процесса (соединения открыты).
	Ready func() bool
	// Status — источник /status; nil — маршрут не регистрируется.
	Status StatusProvider
	// Metrics — обработчик /metrics; nil — promhttp.Handler().
	Metrics http.Handler
	// RequestTimeout — дедлайн обработки запроса; 0 — без дедлайна.
	RequestTimeout time.Duration
}

// NewRouter собирает http.Handler:
//   - GET /livez — процесс жив;
//   - GET /healthz — 200 после открытия соединений, иначе 503;
//   - GET /metrics — Prometheus;
//   - GET /status — итог последнего прохода (204, пока проходов не было).
func NewRouter(opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID(),
		middleware.Logging(opts.Logger),
		middleware.Recover(),
		middleware.Timeout(opts.RequestTimeout),
	)

	r.Get("/livez", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		if opts.Ready != nil && opts.Ready() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
			return
		}
		http.Error(w, "not ready", http.StatusServiceUnavailable)
	})

	metrics := opts.Metrics
	if metrics == nil {
		metrics = promhttp.Handler()
	}
	r.Method(http.MethodGet, "/metrics", metrics)

	if opts.Status != nil {
		r.Get("/status", statusHandler(opts.Status))
	}

	return r
}

func statusHandler(p StatusProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		st, ok := p.LastRun()
		if !ok {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(st)
	}
}
