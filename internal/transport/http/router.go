package http

import (
	"net/http"

	"github.com/wayplan/collab-service/internal/transport/ws"
	"github.com/wayplan/collab-service/pkg/httputil"

	"github.com/go-chi/chi/v5"
	middlewareChi "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

func NewRouter(h *Handler, wsServer *ws.Server, allowedOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(httputil.MiddlewareRequestID)
	r.Use(middlewareChi.RealIP)
	r.Use(middlewareChi.Recoverer)
	r.Use(httputil.MiddlewareLogging)

	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", httputil.HeaderRequestID},
	}))

	// долгоживущий WS канал коллаборации
	r.Get("/collab", wsServer.HandleWS)

	r.Get("/collab/rooms/{id}", h.GetRoomInfo)

	// health
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return r
}
