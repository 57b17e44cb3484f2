package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/pribylovaa/go-events-parser/internal/pkg/log"
)

// Timeout ограничивает обработку запроса дедлайном d.
//
// Контракт:
//  1. d <= 0 — обработчик возвращается без обёртки;
//  2. дедлайн уже задан — он сохраняется;
//  3. обработчик вышел по истёкшему дедлайну, ничего не записав, —
//     ответ 503 и запись http_timeout.
func Timeout(d time.Duration) Middleware {
	const op = "http.Timeout"

	return func(next http.Handler) http.Handler {
		if d <= 0 {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := r.Context().Deadline(); ok {
				next.ServeHTTP(w, r)
				return
			}

			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()

			meta := metaOf(w)
			next.ServeHTTP(meta, r.WithContext(ctx))

			if errors.Is(ctx.Err(), context.DeadlineExceeded) && !meta.wrote() {
				log.From(ctx).Warn("http_timeout",
					slog.String("op", op),
					slog.String("path", r.URL.Path),
					slog.Duration("timeout", d),
				)
				http.Error(meta, "timeout", http.StatusServiceUnavailable)
			}
		})
	}
}
