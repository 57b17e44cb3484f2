package middleware

import (
	"log/slog"
	"net/http"

	"github.com/pribylovaa/go-events-parser/internal/pkg/log"
)

// Recover перехватывает panic обработчика: пишет http_panic в логгер запроса
// и отвечает 500, если ответ ещё не начат. Детали паники клиенту не отдаются.
func Recover() Middleware {
	const op = "http.Recover"

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			meta := metaOf(w)

			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				log.From(r.Context()).LogAttrs(r.Context(), slog.LevelError, "http_panic",
					slog.String("op", op),
					slog.String("path", r.URL.Path),
					slog.Any("reason", rec),
				)
				if !meta.wrote() {
					http.Error(meta, "internal error", http.StatusInternalServerError)
				}
			}()

			next.ServeHTTP(meta, r)
		})
	}
}
