package audit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/clinaudit/internal/domain"
	"github.com/gosuda/clinaudit/internal/notify"
)

// EventWriter is the write side of the event store used by Recorder.
// domain.AuditEventRepository satisfies this interface.
type EventWriter interface {
	Create(ctx context.Context, e *domain.AuditEvent) error
	LatestHash(ctx context.Context, tenantID uuid.UUID) (*string, error)
}

// OutboxWriter stores soft-fail fallbacks.
type OutboxWriter interface {
	Create(ctx context.Context, entry *domain.AuditOutboxEntry) error
}

// ActorLookup resolves the display snapshot of an acting user.
type ActorLookup interface {
	Snapshot(ctx context.Context, actorID string) (*domain.ActorSnapshot, error)
}

// Notifier raises operational alerts. *notify.Notifier satisfies this interface.
type Notifier interface {
	Notify(ctx context.Context, alert notify.Alert) error
}

// Publisher announces stored events to live viewers.
type Publisher interface {
	PublishEvent(ctx context.Context, e *domain.AuditEvent) error
}

// RecordInput describes one sensitive action. Class is trusted as given;
// callers normally pass domain.ClassOf(ActionType).
type RecordInput struct {
	TenantID     *uuid.UUID
	ActorID      *string
	ActionType   domain.ActionType
	ResourceType *string
	ResourceID   *string
	Payload      map[string]any
	Class        domain.EventClass
}

// RecorderOption configures optional Recorder collaborators.
type RecorderOption func(*Recorder)

// WithActorLookup enables actor snapshots.
func WithActorLookup(l ActorLookup) RecorderOption {
	return func(r *Recorder) { r.actors = l }
}

// WithNotifier enables alerts on outbox fallback.
func WithNotifier(n Notifier) RecorderOption {
	return func(r *Recorder) { r.notifier = n }
}

// WithPublisher enables live publication of stored events.
func WithPublisher(p Publisher) RecorderOption {
	return func(r *Recorder) { r.publisher = p }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) RecorderOption {
	return func(r *Recorder) { r.now = now }
}

// WithTenantSerialization serializes the latest-hash read and the event write
// per tenant within this process. Without it, two concurrent writers for the
// same tenant can both chain off the same previous hash and fork the chain.
// The lock does not span processes: replicas sharing a store can still fork.
func WithTenantSerialization() RecorderOption {
	return func(r *Recorder) { r.locks = newTenantLocks() }
}

// Recorder appends audit events and applies the criticality policy when the
// write fails.
type Recorder struct {
	events    EventWriter
	outbox    OutboxWriter
	actors    ActorLookup
	notifier  Notifier
	publisher Publisher
	locks     *tenantLocks
	now       func() time.Time
}

// NewRecorder creates a Recorder over the given stores.
func NewRecorder(events EventWriter, outbox OutboxWriter, opts ...RecorderOption) *Recorder {
	r := &Recorder{
		events: events,
		outbox: outbox,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record appends one event. A storage failure is returned for hard-fail
// events; soft-fail events are parked in the outbox and Record returns nil.
// Any class other than soft-fail is handled as hard-fail.
func (r *Recorder) Record(ctx context.Context, in RecordInput) error {
	if !in.ActionType.Valid() {
		return fmt.Errorf("audit.Recorder.Record: %q: %w", in.ActionType, ErrUnknownAction)
	}

	// The hash is taken over the payload as stores read it back, not over
	// the caller's Go values.
	payload, err := domain.NormalizePayload(in.Payload)
	if err != nil {
		return fmt.Errorf("audit.Recorder.Record: %w: %w", ErrInvalidPayload, err)
	}

	event := &domain.AuditEvent{
		ID:            uuid.New(),
		TenantID:      in.TenantID,
		ActorID:       in.ActorID,
		ActorSnapshot: r.snapshot(ctx, in.ActorID),
		ActionType:    in.ActionType,
		ResourceType:  in.ResourceType,
		ResourceID:    in.ResourceID,
		Payload:       payload,
	}

	err = r.append(ctx, event)
	if err == nil {
		r.publish(ctx, event)
		return nil
	}

	if in.Class != domain.ClassSoftFail {
		return fmt.Errorf("audit.Recorder.Record: %w", err)
	}

	r.fallback(ctx, event, in.Class, err)
	return nil
}

// append stamps the event, resolves the previous hash, links and stores it.
// The timestamp is taken inside the tenant lock so that timestamp order
// matches chain order.
func (r *Recorder) append(ctx context.Context, event *domain.AuditEvent) error {
	if event.TenantID != nil && r.locks != nil {
		unlock := r.locks.lock(*event.TenantID)
		defer unlock()
	}

	event.Timestamp = r.now().UTC().Truncate(time.Millisecond)

	var prev *string
	if event.TenantID != nil {
		latest, err := r.events.LatestHash(ctx, *event.TenantID)
		if err != nil {
			return fmt.Errorf("latest hash: %w", err)
		}
		prev = latest
	}

	canonical, err := Canonicalize(event.CanonicalFields())
	if err != nil {
		return err
	}

	link := LinkEvent(canonical, prev)
	event.EventHash = link.EventHash
	event.PrevEventHash = link.PrevEventHash

	if err := r.events.Create(ctx, event); err != nil {
		return fmt.Errorf("create event: %w", err)
	}

	return nil
}

// snapshot is best effort: any failure yields nil.
func (r *Recorder) snapshot(ctx context.Context, actorID *string) *domain.ActorSnapshot {
	if r.actors == nil || actorID == nil || *actorID == "" || *actorID == domain.SystemActor {
		return nil
	}

	snap, err := r.actors.Snapshot(ctx, *actorID)
	if err != nil {
		log.Debug().Err(err).Str("actor_id", *actorID).Msg("audit.Recorder: actor snapshot unavailable")
		return nil
	}
	return snap
}

func (r *Recorder) publish(ctx context.Context, event *domain.AuditEvent) {
	if r.publisher == nil {
		return
	}
	if err := r.publisher.PublishEvent(ctx, event); err != nil {
		log.Warn().Err(err).Str("event_id", event.ID.String()).Msg("audit.Recorder: failed to publish event")
	}
}

// fallback parks the event in the outbox. The request context may already
// be cancelled, so the outbox write and alert run on a detached context.
func (r *Recorder) fallback(ctx context.Context, event *domain.AuditEvent, class domain.EventClass, cause error) {
	ctx = context.WithoutCancel(ctx)

	entry := &domain.AuditOutboxEntry{
		ID:            uuid.New(),
		TenantID:      event.TenantID,
		ActorID:       event.ActorID,
		ActorSnapshot: event.ActorSnapshot,
		Timestamp:     event.Timestamp,
		ActionType:    event.ActionType,
		ResourceType:  event.ResourceType,
		ResourceID:    event.ResourceID,
		Payload:       event.Payload,
		EventClass:    class,
		ErrorMessage:  cause.Error(),
		CreatedAt:     r.now().UTC(),
	}

	logger := log.Warn().Err(cause).Str("action_type", string(event.ActionType))
	if event.TenantID != nil {
		logger = logger.Str("tenant_id", event.TenantID.String())
	}
	logger.Msg("audit.Recorder: event write failed, parking in outbox")

	if err := r.outbox.Create(ctx, entry); err != nil {
		log.Error().Err(err).Str("action_type", string(event.ActionType)).Msg("audit.Recorder: outbox write failed, event lost")
	}

	r.alert(ctx, entry)
}

func (r *Recorder) alert(ctx context.Context, entry *domain.AuditOutboxEntry) {
	if r.notifier == nil {
		return
	}

	err := r.notifier.Notify(ctx, notify.Alert{
		Severity: notify.SeverityWarning,
		Title:    "audit event parked in outbox",
		Text:     entry.ErrorMessage,
		TenantID: entry.TenantID,
		Fields: map[string]string{
			"action_type": string(entry.ActionType),
			"event_class": string(entry.EventClass),
			"outbox_id":   entry.ID.String(),
		},
	})
	if err != nil {
		log.Warn().Err(err).Str("outbox_id", entry.ID.String()).Msg("audit.Recorder: failed to raise alert")
	}
}

type tenantLock struct {
	mu   sync.Mutex
	refs int
}

// tenantLocks hands out one mutex per tenant and drops it once unused.
type tenantLocks struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*tenantLock
}

func newTenantLocks() *tenantLocks {
	return &tenantLocks{locks: make(map[uuid.UUID]*tenantLock)}
}

func (t *tenantLocks) lock(tenantID uuid.UUID) func() {
	t.mu.Lock()
	l, ok := t.locks[tenantID]
	if !ok {
		l = &tenantLock{}
		t.locks[tenantID] = l
	}
	l.refs++
	t.mu.Unlock()

	l.mu.Lock()

	return func() {
		l.mu.Unlock()

		t.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(t.locks, tenantID)
		}
		t.mu.Unlock()
	}
}
