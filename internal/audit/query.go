package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/gosuda/clinaudit/internal/domain"
)

const (
	DefaultPageLimit = 50
	MaxPageLimit     = 500
)

// EventReader is the read side of the event store.
// domain.AuditEventRepository satisfies this interface.
type EventReader interface {
	Find(ctx context.Context, filter domain.EventFilter, offset, limit int) ([]*domain.AuditEvent, error)
	Count(ctx context.Context, filter domain.EventFilter) (int64, error)
	ListRange(ctx context.Context, tenantID uuid.UUID, from, to time.Time) ([]*domain.AuditEvent, error)
}

// EventQuery holds the optional filters and paging of FindEvents.
type EventQuery struct {
	From         *time.Time
	To           *time.Time
	ActorID      string
	ResourceType string
	ResourceID   string
	ActionType   domain.ActionType
	Page         int
	Limit        int
}

// EventPage is one page of FindEvents results. Total counts every match.
type EventPage struct {
	Items []*domain.AuditEvent `json:"items"`
	Total int64                `json:"total"`
	Page  int                  `json:"page"`
	Limit int                  `json:"limit"`
}

// QueryEngine serves filtered, paginated reads of one tenant's events.
type QueryEngine struct {
	events EventReader
}

// NewQueryEngine creates a QueryEngine.
func NewQueryEngine(events EventReader) *QueryEngine {
	return &QueryEngine{events: events}
}

// FindEvents returns the tenant's matching events, newest first.
func (q *QueryEngine) FindEvents(ctx context.Context, tenantID uuid.UUID, query EventQuery) (*EventPage, error) {
	if query.From != nil && query.To != nil && query.From.After(*query.To) {
		return nil, fmt.Errorf("audit.QueryEngine.FindEvents: %w", ErrInvalidTimeRange)
	}

	page, limit := normalizePaging(query.Page, query.Limit)

	filter := domain.EventFilter{
		TenantID:     tenantID,
		From:         query.From,
		To:           query.To,
		ActorID:      query.ActorID,
		ResourceType: query.ResourceType,
		ResourceID:   query.ResourceID,
		ActionType:   query.ActionType,
	}

	items, err := q.events.Find(ctx, filter, (page-1)*limit, limit)
	if err != nil {
		return nil, fmt.Errorf("audit.QueryEngine.FindEvents: %w", err)
	}

	total, err := q.events.Count(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("audit.QueryEngine.FindEvents: count: %w", err)
	}

	if items == nil {
		items = []*domain.AuditEvent{}
	}

	return &EventPage{Items: items, Total: total, Page: page, Limit: limit}, nil
}

func normalizePaging(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultPageLimit
	}
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}
	return page, limit
}
