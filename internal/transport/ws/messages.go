package ws

import (
	"time"

	"github.com/wayplan/collab-service/internal/domain"
)

// Типы событий комнаты. Всё, что не перечислено, пересылается комнате
// как есть (passthrough для произвольных activity-событий клиента).
const (
	TypeRoomState    = "room_state"   // снапшот комнаты, unicast новому соединению
	TypeUserJoined   = "user_joined"  // участник стал видимым (после user_profile)
	TypeUserLeft     = "user_left"    // соединение закрылось
	TypeUserProfile  = "user_profile" // входящий профиль участника
	TypeCursorMove   = "cursor_move"
	TypeEventAdded   = "event_added"
	TypeEventUpdated = "event_updated"
	TypeEventDeleted = "event_deleted"
)

// ProfileMessage — единственное входящее сообщение, которое сервер разбирает
// по полям; остальные уходят в комнату нетронутыми.
type ProfileMessage struct {
	Type        string  `json:"type"`
	DisplayName *string `json:"displayName"`
	Avatar      *string `json:"avatar"`
}

type RoomState struct {
	Type      string            `json:"type"`
	Users     []domain.Presence `json:"users"`
	RoomSize  int               `json:"roomSize"`
	Timestamp string            `json:"timestamp"`
}

type UserJoined struct {
	Type        string  `json:"type"`
	UserID      string  `json:"userId"`
	DisplayName *string `json:"displayName,omitempty"`
	Avatar      *string `json:"avatar,omitempty"`
	RoomSize    int     `json:"roomSize"`
	Timestamp   string  `json:"timestamp"`
}

type UserLeft struct {
	Type      string `json:"type"`
	UserID    string `json:"userId"`
	RoomSize  int    `json:"roomSize"`
	Timestamp string `json:"timestamp"`
}

// timestampLayout — ISO-8601 c миллисекундами, как Date.toISOString() у клиента.
const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

func now() string {
	return time.Now().UTC().Format(timestampLayout)
}
