package http

import (
	"net/http"

	"github.com/wayplan/collab-service/pkg/httputil"

	"github.com/go-chi/chi/v5"
)

type RoomInfoProvider interface {
	RoomInfo(roomKey string) (size int, exists bool)
}

type Handler struct {
	rooms RoomInfoProvider
}

func NewHandler(rooms RoomInfoProvider) *Handler {
	return &Handler{rooms: rooms}
}

type RoomInfoResponse struct {
	RoomID      string `json:"roomId"`
	ClientCount int    `json:"clientCount"`
	Exists      bool   `json:"exists"`
}

// GET /collab/rooms/{id}
func (h *Handler) GetRoomInfo(w http.ResponseWriter, r *http.Request) {
	roomKey := chi.URLParam(r, "id")
	if roomKey == "" {
		httputil.Error(w, http.StatusBadRequest, "missing room id")
		return
	}

	size, exists := h.rooms.RoomInfo(roomKey)
	httputil.JSON(w, http.StatusOK, RoomInfoResponse{
		RoomID:      roomKey,
		ClientCount: size,
		Exists:      exists,
	})
}
