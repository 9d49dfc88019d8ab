package services

import (
	"github.com/ahmetcoskunkizilkaya/civictrack/internal/models"
	"github.com/google/uuid"
)

// Actor is the authenticated user behind a request.
type Actor struct {
	ID   uuid.UUID
	Role string
	Name string
}

type Action string

const (
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
	ActionPhoto  Action = "photo"
)

// privileged lists the roles allowed to perform an action on issues they do
// not own.
var privileged = map[Action][]string{
	ActionUpdate: {models.RoleNGO, models.RoleAdmin},
	ActionDelete: {models.RoleAdmin},
	ActionPhoto:  {models.RoleAdmin},
}

// CanMutate reports whether actor may perform action on issue. Owners may
// always act; other users need a privileged role for the action.
func CanMutate(actor Actor, issue *models.Issue, action Action) bool {
	if actor.ID == uuid.Nil || issue == nil {
		return false
	}
	if issue.OwnerID == actor.ID {
		return true
	}
	return models.IsMember(privileged[action], actor.Role)
}
