package domain

import "errors"

var (
	ErrUserNotFound        = errors.New("user not found")
	ErrTripNotFound        = errors.New("trip not found")
	ErrNoTripInKey         = errors.New("room key carries no trip id")
	ErrAlreadyCollaborator = errors.New("user is already a trip collaborator")
)
