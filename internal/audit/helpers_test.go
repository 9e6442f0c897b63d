package audit_test

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gosuda/clinaudit/internal/audit"
	"github.com/gosuda/clinaudit/internal/domain"
	"github.com/gosuda/clinaudit/internal/notify"
)

var baseTime = time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

// stepClock returns a clock that starts at start and advances by step on
// every call.
func stepClock(start time.Time, step time.Duration) func() time.Time {
	var mu sync.Mutex
	next := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now := next
		next = next.Add(step)
		return now
	}
}

func tenantPtr(id uuid.UUID) *uuid.UUID { return &id }

// --- Mocks ---

type mockEventWriter struct {
	createFunc     func(ctx context.Context, e *domain.AuditEvent) error
	latestHashFunc func(ctx context.Context, tenantID uuid.UUID) (*string, error)
}

func (m *mockEventWriter) Create(ctx context.Context, e *domain.AuditEvent) error {
	if m.createFunc != nil {
		return m.createFunc(ctx, e)
	}
	return nil
}

func (m *mockEventWriter) LatestHash(ctx context.Context, tenantID uuid.UUID) (*string, error) {
	if m.latestHashFunc != nil {
		return m.latestHashFunc(ctx, tenantID)
	}
	return nil, nil
}

type mockOutbox struct {
	mu      sync.Mutex
	entries []*domain.AuditOutboxEntry
	err     error
}

func (m *mockOutbox) Create(_ context.Context, entry *domain.AuditOutboxEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.entries = append(m.entries, entry)
	return nil
}

func (m *mockOutbox) Entries() []*domain.AuditOutboxEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*domain.AuditOutboxEntry(nil), m.entries...)
}

type mockActors struct {
	snapshotFunc func(ctx context.Context, actorID string) (*domain.ActorSnapshot, error)
	calls        int
}

func (m *mockActors) Snapshot(ctx context.Context, actorID string) (*domain.ActorSnapshot, error) {
	m.calls++
	return m.snapshotFunc(ctx, actorID)
}

type mockNotifier struct {
	alerts []notify.Alert
	err    error
}

func (m *mockNotifier) Notify(_ context.Context, alert notify.Alert) error {
	m.alerts = append(m.alerts, alert)
	return m.err
}

type mockPublisher struct {
	events []*domain.AuditEvent
	err    error
}

func (m *mockPublisher) PublishEvent(_ context.Context, e *domain.AuditEvent) error {
	m.events = append(m.events, e)
	return m.err
}

// tamperedReader serves events from an inner reader and lets a test
// rewrite them after they are read, simulating direct storage edits.
type tamperedReader struct {
	inner  audit.EventReader
	mutate func(events []*domain.AuditEvent) []*domain.AuditEvent
}

func (r *tamperedReader) Find(context.Context, domain.EventFilter, int, int) ([]*domain.AuditEvent, error) {
	return nil, nil
}

func (r *tamperedReader) Count(context.Context, domain.EventFilter) (int64, error) {
	return 0, nil
}

func (r *tamperedReader) ListRange(ctx context.Context, tenantID uuid.UUID, from, to time.Time) ([]*domain.AuditEvent, error) {
	events, err := r.inner.ListRange(ctx, tenantID, from, to)
	if err != nil {
		return nil, err
	}
	return r.mutate(events), nil
}
