// Package memory implements the audit repositories in process memory. It
// backs the "memory" store driver for local development and the tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gosuda/clinaudit/internal/domain"
)

// Store groups the in-memory repositories.
type Store struct {
	events *EventRepo
	outbox *OutboxRepo
	users  *UserRepo
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		events: NewEventRepo(),
		outbox: NewOutboxRepo(),
		users:  NewUserRepo(),
	}
}

func (s *Store) Events() domain.AuditEventRepository  { return s.events }
func (s *Store) Outbox() domain.AuditOutboxRepository { return s.outbox }
func (s *Store) Users() domain.UserRepository         { return s.users }

// Ping always succeeds; the store lives in process.
func (s *Store) Ping(context.Context) error { return nil }

// UserDirectory exposes the writable user repository for seeding.
func (s *Store) UserDirectory() *UserRepo { return s.users }

// --- Events ---

// EventRepo is an append-only event list.
type EventRepo struct {
	mu     sync.RWMutex
	events []*domain.AuditEvent
	seq    int64
}

func NewEventRepo() *EventRepo {
	return &EventRepo{}
}

// Create stores the payload the way the persistent drivers read it back, so
// later changes to the caller's maps do not reach the stored event.
func (r *EventRepo) Create(_ context.Context, e *domain.AuditEvent) error {
	payload, err := domain.NormalizePayload(e.Payload)
	if err != nil {
		return fmt.Errorf("memory.EventRepo.Create: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	e.Seq = r.seq
	stored := cloneEvent(e)
	stored.Payload = payload
	r.events = append(r.events, stored)
	return nil
}

func (r *EventRepo) LatestHash(_ context.Context, tenantID uuid.UUID) (*string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var latest *domain.AuditEvent
	for _, e := range r.events {
		if e.TenantID == nil || *e.TenantID != tenantID {
			continue
		}
		if latest == nil || after(e, latest) {
			latest = e
		}
	}
	if latest == nil {
		return nil, nil
	}
	h := latest.EventHash
	return &h, nil
}

func (r *EventRepo) Find(_ context.Context, filter domain.EventFilter, offset, limit int) ([]*domain.AuditEvent, error) {
	matched := r.match(filter)
	sort.SliceStable(matched, func(i, j int) bool { return after(matched[i], matched[j]) })

	if offset >= len(matched) {
		return []*domain.AuditEvent{}, nil
	}
	end := len(matched)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return matched[offset:end], nil
}

func (r *EventRepo) Count(_ context.Context, filter domain.EventFilter) (int64, error) {
	return int64(len(r.match(filter))), nil
}

func (r *EventRepo) ListRange(_ context.Context, tenantID uuid.UUID, from, to time.Time) ([]*domain.AuditEvent, error) {
	matched := r.match(domain.EventFilter{TenantID: tenantID, From: &from, To: &to})
	sort.SliceStable(matched, func(i, j int) bool { return after(matched[j], matched[i]) })
	return matched, nil
}

// match returns copies of the events accepted by filter.
func (r *EventRepo) match(f domain.EventFilter) []*domain.AuditEvent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*domain.AuditEvent, 0)
	for _, e := range r.events {
		if matches(f, e) {
			out = append(out, cloneEvent(e))
		}
	}
	return out
}

func matches(f domain.EventFilter, e *domain.AuditEvent) bool {
	if e.TenantID == nil || *e.TenantID != f.TenantID {
		return false
	}
	if f.From != nil && e.Timestamp.Before(*f.From) {
		return false
	}
	if f.To != nil && e.Timestamp.After(*f.To) {
		return false
	}
	if f.ActorID != "" && (e.ActorID == nil || *e.ActorID != f.ActorID) {
		return false
	}
	if f.ResourceType != "" && (e.ResourceType == nil || *e.ResourceType != f.ResourceType) {
		return false
	}
	if f.ResourceID != "" && (e.ResourceID == nil || *e.ResourceID != f.ResourceID) {
		return false
	}
	if f.ActionType != "" && e.ActionType != f.ActionType {
		return false
	}
	return true
}

// after orders by timestamp, then by insertion sequence.
func after(a, b *domain.AuditEvent) bool {
	if !a.Timestamp.Equal(b.Timestamp) {
		return a.Timestamp.After(b.Timestamp)
	}
	return a.Seq > b.Seq
}

func cloneEvent(e *domain.AuditEvent) *domain.AuditEvent {
	c := *e
	if e.ActorSnapshot != nil {
		snap := *e.ActorSnapshot
		c.ActorSnapshot = &snap
	}
	c.Payload = clonePayload(e.Payload)
	return &c
}

func clonePayload(p map[string]any) map[string]any {
	if p == nil {
		return nil
	}
	c := make(map[string]any, len(p))
	for k, v := range p {
		c[k] = cloneValue(v)
	}
	return c
}

func cloneValue(v any) any {
	switch v := v.(type) {
	case map[string]any:
		return clonePayload(v)
	case []any:
		c := make([]any, len(v))
		for i, item := range v {
			c[i] = cloneValue(item)
		}
		return c
	default:
		return v
	}
}

// --- Outbox ---

// OutboxRepo holds soft-fail fallbacks.
type OutboxRepo struct {
	mu      sync.RWMutex
	entries []*domain.AuditOutboxEntry
}

func NewOutboxRepo() *OutboxRepo {
	return &OutboxRepo{}
}

func (r *OutboxRepo) Create(_ context.Context, entry *domain.AuditOutboxEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := *entry
	c.Payload = clonePayload(entry.Payload)
	r.entries = append(r.entries, &c)
	return nil
}

func (r *OutboxRepo) ListPending(_ context.Context, limit int) ([]*domain.AuditOutboxEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*domain.AuditOutboxEntry, 0)
	for _, e := range r.entries {
		if e.ProcessedAt != nil {
			continue
		}
		c := *e
		c.Payload = clonePayload(e.Payload)
		out = append(out, &c)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// --- Users ---

// UserRepo is a seedable user directory.
type UserRepo struct {
	mu    sync.RWMutex
	users map[uuid.UUID]*domain.User
}

func NewUserRepo() *UserRepo {
	return &UserRepo{users: make(map[uuid.UUID]*domain.User)}
}

// Put inserts or replaces a user.
func (r *UserRepo) Put(u *domain.User) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := *u
	r.users[u.ID] = &c
}

func (r *UserRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[id]
	if !ok {
		return nil, fmt.Errorf("memory.UserRepo.GetByID: %w", domain.ErrNotFound)
	}
	c := *u
	return &c, nil
}
