package domain

// Роль и статус, с которыми live-сессия регистрирует соавтора поездки.
const (
	CollaboratorRoleEditor     = "editor"
	CollaboratorStatusAccepted = "accepted"
)

type Collaborator struct {
	TripID int64  `db:"trip_id"`
	UserID int64  `db:"user_id"`
	Role   string `db:"role"`
	Status string `db:"status"`
}

// LiveCollaborator — запись, которую порождает подключение к комнате поездки.
func LiveCollaborator(tripID, userID int64) Collaborator {
	return Collaborator{
		TripID: tripID,
		UserID: userID,
		Role:   CollaboratorRoleEditor,
		Status: CollaboratorStatusAccepted,
	}
}
