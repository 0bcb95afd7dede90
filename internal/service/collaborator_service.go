package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/wayplan/collab-service/internal/domain"
)

type IdentityResolver interface {
	ResolveAuthID(ctx context.Context, authID string) (int64, error)
}

type TripStore interface {
	Exists(ctx context.Context, tripID int64) (bool, error)
}

type CollaboratorStore interface {
	Exists(ctx context.Context, tripID, userID int64) (bool, error)
	Upsert(ctx context.Context, c domain.Collaborator) error
}

// CollaboratorService превращает live-подключение в durable-запись соавтора
// поездки. Вызывается из WS-сессии как fire-and-forget: результат только
// логируется и ни на что в сессии не влияет.
type CollaboratorService struct {
	users   IdentityResolver
	trips   TripStore
	collabs CollaboratorStore
}

func NewCollaboratorService(users IdentityResolver, trips TripStore, collabs CollaboratorStore) *CollaboratorService {
	return &CollaboratorService{
		users:   users,
		trips:   trips,
		collabs: collabs,
	}
}

// RegisterCollaborator — best-effort регистрация участника комнаты как
// соавтора поездки. Ключ комнаты непрозрачен для live-слоя, но доменный слой
// строит его как "trip_<id>"; любой другой ключ (ad-hoc комнаты) поездки не
// несёт, и регистрировать нечего.
func (s *CollaboratorService) RegisterCollaborator(ctx context.Context, roomKey, authID string) error {
	tripID, err := TripIDFromRoomKey(roomKey)
	if err != nil {
		return err
	}
	if authID == "" {
		// аноним — в users его нет
		return domain.ErrUserNotFound
	}

	userID, err := s.users.ResolveAuthID(ctx, authID)
	if err != nil {
		return fmt.Errorf("resolve auth id: %w", err)
	}

	ok, err := s.trips.Exists(ctx, tripID)
	if err != nil {
		return fmt.Errorf("check trip: %w", err)
	}
	if !ok {
		return domain.ErrTripNotFound
	}

	already, err := s.collabs.Exists(ctx, tripID, userID)
	if err != nil {
		return fmt.Errorf("check collaborator: %w", err)
	}
	if already {
		return domain.ErrAlreadyCollaborator
	}

	if err := s.collabs.Upsert(ctx, domain.LiveCollaborator(tripID, userID)); err != nil {
		return fmt.Errorf("upsert collaborator: %w", err)
	}

	return nil
}

// TripIDFromRoomKey извлекает id поездки из ключа вида "trip_<id>".
func TripIDFromRoomKey(roomKey string) (int64, error) {
	rest, ok := strings.CutPrefix(roomKey, "trip_")
	if !ok {
		return 0, domain.ErrNoTripInKey
	}
	id, err := strconv.ParseInt(rest, 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.ErrNoTripInKey
	}
	return id, nil
}
