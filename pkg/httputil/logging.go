package httputil

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/wayplan/collab-service/pkg/logger"
)

// Логирует метод, путь, статус, длительность и X-Request-ID.
// Тела не пишем: на /collab живёт WebSocket, а остальные ответы мелкие.
func MiddlewareLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// hijack-несовместимая обёртка ломает upgrade — WS пропускаем как есть
		if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		lrw := &logResponseWriter{ResponseWriter: w}
		next.ServeHTTP(lrw, r)

		reqID, _ := FromContext(r.Context())
		args := []any{
			"req_id", reqID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", lrw.status,
			"bytes", lrw.bytes,
			"duration", time.Since(start).String(),
		}
		// trace_id/span_id, если запрос пришёл с активным span-ом
		for _, a := range logger.AttrsFromCtx(r.Context()) {
			args = append(args, a)
		}
		slog.Info("http request", args...)
	})
}

type logResponseWriter struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (w *logResponseWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *logResponseWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n

	return n, err
}
