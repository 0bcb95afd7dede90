package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/wayplan/collab-service/internal/domain"
	"github.com/wayplan/collab-service/internal/registry"

	"github.com/gorilla/websocket"
)

type CollaboratorRegistrar interface {
	RegisterCollaborator(ctx context.Context, roomKey, authID string) error
}

type Server struct {
	upgrader websocket.Upgrader
	reg      *registry.Registry
	collab   CollaboratorRegistrar

	readLimit    int64
	writeTimeout time.Duration
}

func NewServer(reg *registry.Registry, collab CollaboratorRegistrar) *Server {
	return &Server{
		reg:    reg,
		collab: collab,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		readLimit:    1 << 20,
		writeTimeout: 5 * time.Second,
	}
}

func (s *Server) SetReadLimit(n int64) {
	if n > 0 {
		s.readLimit = n
	}
}

func (s *Server) SetWriteTimeout(d time.Duration) {
	if d > 0 {
		s.writeTimeout = d
	}
}

// WS endpoint: GET /collab?room=...&userId=...
// userId — subject внешнего identity-провайдера; его отсутствие допустимо
// (анонимное соединение), отсутствие room — нарушение протокола.
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	roomKey := strings.TrimSpace(q.Get("room"))
	userID := strings.TrimSpace(q.Get("userId"))

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("ws upgrade failed", "err", err)
		return
	}

	if roomKey == "" {
		// протокольное закрытие до какой-либо регистрации в комнатах
		deadline := time.Now().Add(s.writeTimeout)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "Missing room parameter"),
			deadline)
		_ = conn.Close()
		return
	}

	c := newWsConn(conn, s.writeTimeout)
	p := registry.NewParticipant(c, userID)

	size := s.reg.Join(roomKey, p)
	slog.Info("collab join", "room", roomKey, "user", orAnonymous(userID), "size", size)

	// Снапшот — только новому соединению, до того как оно объявит себя.
	if err := c.Send(RoomState{
		Type:      TypeRoomState,
		Users:     s.reg.Snapshot(roomKey, userID),
		RoomSize:  size,
		Timestamp: now(),
	}); err != nil {
		slog.Warn("ws send room state failed", "room", roomKey, "user", orAnonymous(userID), "err", err)
	}

	// user_joined здесь не рассылается: участник анонсируется комнате
	// только когда пришлёт user_profile с годным для UI именем.

	s.readLoop(c, p, roomKey, userID)

	remaining := s.reg.Leave(roomKey, p)
	s.reg.Broadcast(roomKey, UserLeft{
		Type:      TypeUserLeft,
		UserID:    userID,
		RoomSize:  remaining,
		Timestamp: now(),
	})
	slog.Info("collab leave", "room", roomKey, "user", orAnonymous(userID), "size", remaining)
	if remaining == 0 {
		slog.Info("room closed", "room", roomKey)
	}

	_ = c.Close()
}

func (s *Server) readLoop(c *wsConn, p *registry.Participant, roomKey, userID string) {
	c.conn.SetReadLimit(s.readLimit)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var raw map[string]any
		if err := json.Unmarshal(data, &raw); err != nil {
			// битое сообщение выбрасывается, соединение живёт дальше
			slog.Warn("ws message parse error", "room", roomKey, "user", orAnonymous(userID), "err", err)
			continue
		}
		msgType, _ := raw["type"].(string)

		switch msgType {
		case TypeUserProfile:
			var msg ProfileMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				slog.Warn("ws profile parse error", "room", roomKey, "user", orAnonymous(userID), "err", err)
				continue
			}
			s.handleProfile(p, roomKey, userID, msg)

		case TypeCursorMove, TypeEventAdded, TypeEventUpdated, TypeEventDeleted:
			s.relay(raw, roomKey, userID)

		default:
			// произвольные activity-события доменного слоя
			s.relay(raw, roomKey, userID)
		}
	}
}

// handleProfile — единственный вид сообщений, который мутирует реестр и
// трогает внешний мир: профиль в комнате, фоновая регистрация соавтора,
// затем user_joined всем, включая отправителя.
func (s *Server) handleProfile(p *registry.Participant, roomKey, userID string, msg ProfileMessage) {
	s.reg.SetProfile(roomKey, p, msg.DisplayName, msg.Avatar)

	go s.registerCollaborator(roomKey, userID)

	s.reg.Broadcast(roomKey, UserJoined{
		Type:        TypeUserJoined,
		UserID:      userID,
		DisplayName: msg.DisplayName,
		Avatar:      msg.Avatar,
		RoomSize:    s.reg.RoomSize(roomKey),
		Timestamp:   now(),
	})
}

// relay пересылает сообщение всей комнате (отправителю тоже — клиент сам
// отбрасывает своё эхо по userId), проставив источник и серверное время.
func (s *Server) relay(raw map[string]any, roomKey, userID string) {
	raw["userId"] = userID
	raw["timestamp"] = now()
	s.reg.Broadcast(roomKey, raw)
}

// registerCollaborator — fire-and-forget: live-сессия не ждёт результата,
// любой исход только логируется.
func (s *Server) registerCollaborator(roomKey, authID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := s.collab.RegisterCollaborator(ctx, roomKey, authID)
	switch {
	case err == nil:
		slog.Debug("collaborator registered", "room", roomKey, "user", authID)
	case errors.Is(err, domain.ErrNoTripInKey),
		errors.Is(err, domain.ErrUserNotFound),
		errors.Is(err, domain.ErrTripNotFound),
		errors.Is(err, domain.ErrAlreadyCollaborator):
		slog.Debug("collaborator registration skipped",
			"room", roomKey, "user", orAnonymous(authID), "reason", err)
	default:
		slog.Warn("collaborator registration failed",
			"room", roomKey, "user", authID, "err", err)
	}
}

func orAnonymous(userID string) string {
	if userID == "" {
		return "anonymous"
	}
	return userID
}
