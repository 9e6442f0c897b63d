package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// SystemActor is the actor id used for events raised by background jobs.
const SystemActor = "SYSTEM"

// ActorSnapshot is a display-only copy of the acting user captured at write
// time. It is never part of the event hash.
type ActorSnapshot struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Role     string `json:"role"`
}

// AuditEvent is one append-only audit row. Rows are never updated or deleted.
type AuditEvent struct {
	ID            uuid.UUID      `json:"-"`
	Seq           int64          `json:"-"` // store-assigned tiebreaker, not hashed
	TenantID      *uuid.UUID     `json:"tenantId"`
	ActorID       *string        `json:"actorId"`
	ActorSnapshot *ActorSnapshot `json:"actorSnapshot"`
	Timestamp     time.Time      `json:"timestamp"`
	ActionType    ActionType     `json:"actionType"`
	ResourceType  *string        `json:"resourceType"`
	ResourceID    *string        `json:"resourceId"`
	Payload       map[string]any `json:"payload"`
	EventHash     string         `json:"hashEvento"`
	PrevEventHash *string        `json:"hashEventoAnterior"`
}

// CanonicalFields returns the seven logical attributes covered by the hash.
func (e *AuditEvent) CanonicalFields() CanonicalFields {
	return CanonicalFields{
		TenantID:     e.TenantID,
		ActorID:      e.ActorID,
		Timestamp:    e.Timestamp,
		ActionType:   e.ActionType,
		ResourceType: e.ResourceType,
		ResourceID:   e.ResourceID,
		Payload:      e.Payload,
	}
}

// CanonicalFields holds exactly the attributes that feed the event hash.
type CanonicalFields struct {
	TenantID     *uuid.UUID
	ActorID      *string
	Timestamp    time.Time
	ActionType   ActionType
	ResourceType *string
	ResourceID   *string
	Payload      map[string]any
}

// AuditOutboxEntry holds an event whose primary write failed under the
// soft-fail policy. ProcessedAt is owned by an external drain process.
type AuditOutboxEntry struct {
	ID            uuid.UUID      `json:"id"`
	TenantID      *uuid.UUID     `json:"tenantId"`
	ActorID       *string        `json:"actorId"`
	ActorSnapshot *ActorSnapshot `json:"actorSnapshot"`
	Timestamp     time.Time      `json:"timestamp"`
	ActionType    ActionType     `json:"actionType"`
	ResourceType  *string        `json:"resourceType"`
	ResourceID    *string        `json:"resourceId"`
	Payload       map[string]any `json:"payload"`
	EventClass    EventClass     `json:"eventClass"`
	ErrorMessage  string         `json:"errorMessage"`
	CreatedAt     time.Time      `json:"createdAt"`
	ProcessedAt   *time.Time     `json:"processedAt"`
}

// EventFilter selects events of a single tenant. Zero-valued optional fields
// are not applied.
type EventFilter struct {
	TenantID     uuid.UUID
	From         *time.Time
	To           *time.Time
	ActorID      string
	ResourceType string
	ResourceID   string
	ActionType   ActionType
}

// AuditEventRepository is the append-only event store. It deliberately has no
// update or delete methods.
type AuditEventRepository interface {
	Create(ctx context.Context, e *AuditEvent) error
	// LatestHash returns the hash of the most recent event for the tenant, or
	// nil when the tenant has no events yet.
	LatestHash(ctx context.Context, tenantID uuid.UUID) (*string, error)
	// Find returns matching events ordered by timestamp descending.
	Find(ctx context.Context, filter EventFilter, offset, limit int) ([]*AuditEvent, error)
	Count(ctx context.Context, filter EventFilter) (int64, error)
	// ListRange returns the tenant's events with from <= timestamp <= to in
	// ascending order.
	ListRange(ctx context.Context, tenantID uuid.UUID, from, to time.Time) ([]*AuditEvent, error)
}

// AuditOutboxRepository stores soft-fail fallbacks. Draining is out of scope
// for this service, so only creation and a read-only pending view exist.
type AuditOutboxRepository interface {
	Create(ctx context.Context, entry *AuditOutboxEntry) error
	ListPending(ctx context.Context, limit int) ([]*AuditOutboxEntry, error)
}
