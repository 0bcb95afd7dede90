package registry

import (
	"sync"

	"github.com/wayplan/collab-service/internal/domain"
)

// Conn — канал доставки сообщений одному участнику.
// Принадлежит ровно одной записи Participant.
type Conn interface {
	Send(v any) error
	Close() error
}

// Participant — одно живое соединение внутри комнаты. Профиль (имя, аватар)
// появляется позже, отдельным сообщением user_profile; до этого участник
// не виден в снапшотах, но учитывается в размере комнаты.
type Participant struct {
	conn        Conn
	userID      string // внешний id; пустой у анонимов
	displayName *string
	avatar      *string
	profiled    bool
}

func NewParticipant(conn Conn, userID string) *Participant {
	return &Participant{conn: conn, userID: userID}
}

func (p *Participant) UserID() string { return p.userID }

// Profiled — присылал ли участник user_profile.
func (p *Participant) Profiled() bool { return p.profiled }

func (p *Participant) presence() domain.Presence {
	return domain.Presence{
		UserID:      p.userID,
		DisplayName: p.displayName,
		Avatar:      p.avatar,
	}
}

// Registry — авторитетная карта активных комнат процесса.
// Комната создаётся первым Join и удаляется, как только пустеет:
// пустая комната в карте не живёт.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string][]*Participant // roomKey -> участники в порядке входа
}

func New() *Registry {
	return &Registry{rooms: make(map[string][]*Participant)}
}

// Join добавляет участника, создавая комнату при необходимости.
// Возвращает размер комнаты после добавления.
func (r *Registry) Join(roomKey string, p *Participant) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.rooms[roomKey] = append(r.rooms[roomKey], p)
	return len(r.rooms[roomKey])
}

// Leave удаляет участника; удаление отсутствующего — no-op.
// Возвращает размер комнаты после удаления.
func (r *Registry) Leave(roomKey string, p *Participant) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	ps, ok := r.rooms[roomKey]
	if !ok {
		return 0
	}
	for i, q := range ps {
		if q == p {
			ps = append(ps[:i], ps[i+1:]...)
			break
		}
	}
	if len(ps) == 0 {
		delete(r.rooms, roomKey)
		return 0
	}
	r.rooms[roomKey] = ps

	return len(ps)
}

// Snapshot — участники комнаты, видимые новому соединению: уже присылавшие
// user_profile и не несущие excludeUserID. Порядок — порядок входа.
func (r *Registry) Snapshot(roomKey, excludeUserID string) []domain.Presence {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Presence, 0, len(r.rooms[roomKey]))
	for _, p := range r.rooms[roomKey] {
		if p.userID == excludeUserID {
			continue
		}
		if !p.Profiled() {
			continue
		}
		out = append(out, p.presence())
	}

	return out
}

// SetProfile выставляет имя и аватар участнику. Защита: если участника
// в комнате уже нет (гонка с отключением), вызов — no-op.
func (r *Registry) SetProfile(roomKey string, p *Participant, displayName, avatar *string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, q := range r.rooms[roomKey] {
		if q == p {
			q.displayName = displayName
			q.avatar = avatar
			q.profiled = true
			return
		}
	}
}

// RoomSize — текущее число соединений в комнате (0, если комнаты нет).
func (r *Registry) RoomSize(roomKey string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.rooms[roomKey])
}

// RoomInfo — размер комнаты и признак её существования.
func (r *Registry) RoomInfo(roomKey string) (size int, exists bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ps, ok := r.rooms[roomKey]
	return len(ps), ok
}

// Broadcast шлёт сообщение каждому соединению комнаты. Ошибка отправки
// одному получателю не прерывает рассылку остальным.
func (r *Registry) Broadcast(roomKey string, v any) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.rooms[roomKey] {
		_ = p.conn.Send(v) // best-effort
	}
}
