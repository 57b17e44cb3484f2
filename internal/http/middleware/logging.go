package middleware

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pribylovaa/go-events-parser/internal/metrics"
	"github.com/pribylovaa/go-events-parser/internal/pkg/log"
)

// Logging кладёт в контекст логгер запроса (с request_id), считает запрос
// в events_parser_http_requests_total и пишет http_request.
// Пробы и /metrics (коды < 400) идут на Debug, чтобы не шуметь.
func Logging(l *slog.Logger) Middleware {
	const op = "http.Logging"

	if l == nil {
		l = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqLogger := l
			if rid := r.Header.Get(HeaderRequestID); rid != "" {
				reqLogger = reqLogger.With(slog.String("request_id", rid))
			}
			r = r.WithContext(log.Into(r.Context(), reqLogger))

			meta := metaOf(w)
			start := time.Now()
			next.ServeHTTP(meta, r)

			status := meta.status()
			route := routeOf(r)
			metrics.HTTPRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()

			level := slog.LevelDebug
			if status >= http.StatusBadRequest {
				level = slog.LevelWarn
			}
			reqLogger.LogAttrs(r.Context(), level, "http_request",
				slog.String("op", op),
				slog.String("method", r.Method),
				slog.String("route", route),
				slog.String("path", r.URL.Path),
				slog.Int("status", status),
				slog.Duration("dur", time.Since(start)),
				slog.Int("bytes", meta.bytes),
			)
		})
	}
}

// routeOf — шаблон маршрута chi; вне роутера или без совпадения — "unmatched".
// Путь в метку метрики не попадает.
func routeOf(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}
