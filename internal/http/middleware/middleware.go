// middleware — мидлвары служебного HTTP-сервера events-parser.
//
// Порядок в роутере: RequestID -> Logging -> Recover -> Timeout.
// Logging кладёт в ctx логгер с request_id, поэтому Recover и обработчики
// пишут в лог уже с ним, а паника попадает в журнал запросов как 500.
package middleware

import (
	"net/http"
)

// Middleware — мидлвар net/http, совместимый с chi.Router.Use.
type Middleware = func(http.Handler) http.Handler

// responseMeta запоминает код и размер ответа для журнала, метрик и Timeout.
type responseMeta struct {
	http.ResponseWriter
	code  int
	bytes int
}

func (m *responseMeta) WriteHeader(code int) {
	if m.code == 0 {
		m.code = code
	}
	m.ResponseWriter.WriteHeader(code)
}

func (m *responseMeta) Write(p []byte) (int, error) {
	if m.code == 0 {
		m.code = http.StatusOK
	}

	n, err := m.ResponseWriter.Write(p)
	m.bytes += n
	return n, err
}

// wrote — ответ уже начат.
func (m *responseMeta) wrote() bool { return m.code != 0 }

// status — итоговый код; без записи net/http отвечает 200.
func (m *responseMeta) status() int {
	if m.code == 0 {
		return http.StatusOK
	}
	return m.code
}

// metaOf переиспользует обёртку, если она уже стоит выше по цепочке.
func metaOf(w http.ResponseWriter) *responseMeta {
	if m, ok := w.(*responseMeta); ok {
		return m
	}
	return &responseMeta{ResponseWriter: w}
}
