package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// User is the slice of the provider's user directory this service reads to
// decorate audit events.
type User struct {
	ID        uuid.UUID
	TenantID  *uuid.UUID // nil for platform operators
	Username  string
	Email     string
	Role      string // "admin", "auditor", "clinician", ...
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Snapshot returns the display copy stored alongside audit events.
func (u *User) Snapshot() *ActorSnapshot {
	return &ActorSnapshot{
		Username: u.Username,
		Email:    u.Email,
		Role:     u.Role,
	}
}

// UserRepository is read-only: the user directory is owned by another service.
type UserRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
}
