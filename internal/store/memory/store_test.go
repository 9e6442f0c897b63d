package memory_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/clinaudit/internal/domain"
	"github.com/gosuda/clinaudit/internal/store/memory"
)

var t0 = time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

func event(tenant uuid.UUID, ts time.Time, hash string) *domain.AuditEvent {
	return &domain.AuditEvent{
		ID:         uuid.New(),
		TenantID:   &tenant,
		Timestamp:  ts,
		ActionType: domain.ActionLoginSuccess,
		Payload:    map[string]any{"k": "v"},
		EventHash:  hash,
	}
}

func TestEventRepo_LatestHash(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := memory.NewEventRepo()
	tenant := uuid.New()

	latest, err := repo.LatestHash(ctx, tenant)
	require.NoError(t, err)
	assert.Nil(t, latest)

	require.NoError(t, repo.Create(ctx, event(tenant, t0, "a")))
	require.NoError(t, repo.Create(ctx, event(tenant, t0.Add(time.Second), "b")))
	require.NoError(t, repo.Create(ctx, event(uuid.New(), t0.Add(time.Hour), "other")))

	latest, err = repo.LatestHash(ctx, tenant)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "b", *latest)
}

func TestEventRepo_SameTimestampOrdersByInsertion(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := memory.NewEventRepo()
	tenant := uuid.New()

	for _, h := range []string{"a", "b", "c"} {
		require.NoError(t, repo.Create(ctx, event(tenant, t0, h)))
	}

	latest, err := repo.LatestHash(ctx, tenant)
	require.NoError(t, err)
	assert.Equal(t, "c", *latest)

	asc, err := repo.ListRange(ctx, tenant, t0, t0)
	require.NoError(t, err)
	require.Len(t, asc, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{asc[0].EventHash, asc[1].EventHash, asc[2].EventHash})

	desc, err := repo.Find(ctx, domain.EventFilter{TenantID: tenant}, 0, 10)
	require.NoError(t, err)
	require.Len(t, desc, 3)
	assert.Equal(t, "c", desc[0].EventHash)
	assert.Equal(t, "a", desc[2].EventHash)
}

func TestEventRepo_CreateAssignsSequence(t *testing.T) {
	t.Parallel()

	repo := memory.NewEventRepo()
	a := event(uuid.New(), t0, "a")
	b := event(uuid.New(), t0, "b")
	require.NoError(t, repo.Create(context.Background(), a))
	require.NoError(t, repo.Create(context.Background(), b))
	assert.Less(t, a.Seq, b.Seq)
}

func TestEventRepo_ReturnsCopies(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := memory.NewEventRepo()
	tenant := uuid.New()
	original := event(tenant, t0, "a")
	require.NoError(t, repo.Create(ctx, original))

	original.Payload["k"] = "changed"
	got, err := repo.ListRange(ctx, tenant, t0, t0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "v", got[0].Payload["k"])

	got[0].EventHash = "tampered"
	again, err := repo.ListRange(ctx, tenant, t0, t0)
	require.NoError(t, err)
	assert.Equal(t, "a", again[0].EventHash)
}

func TestEventRepo_NestedPayloadIsCopied(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := memory.NewEventRepo()
	tenant := uuid.New()

	vitals := map[string]any{"pulse": 72}
	e := event(tenant, t0, "a")
	e.Payload = map[string]any{"vitals": vitals, "tags": []any{"a"}}
	require.NoError(t, repo.Create(ctx, e))

	vitals["pulse"] = 180
	e.Payload["tags"].([]any)[0] = "changed"

	got, err := repo.ListRange(ctx, tenant, t0, t0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, map[string]any{"pulse": json.Number("72")}, got[0].Payload["vitals"])
	assert.Equal(t, []any{"a"}, got[0].Payload["tags"])

	got[0].Payload["vitals"].(map[string]any)["pulse"] = json.Number("0")
	again, err := repo.ListRange(ctx, tenant, t0, t0)
	require.NoError(t, err)
	assert.Equal(t, json.Number("72"), again[0].Payload["vitals"].(map[string]any)["pulse"])
}

func TestEventRepo_RejectsUnencodablePayload(t *testing.T) {
	t.Parallel()

	e := event(uuid.New(), t0, "a")
	e.Payload = map[string]any{"ch": make(chan int)}
	require.Error(t, memory.NewEventRepo().Create(context.Background(), e))
}

func TestEventRepo_FindAndCount(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := memory.NewEventRepo()
	tenant := uuid.New()
	for i := range 5 {
		e := event(tenant, t0.Add(time.Duration(i)*time.Minute), "h")
		if i%2 == 0 {
			e.ActorID = strPtr("alice")
		}
		require.NoError(t, repo.Create(ctx, e))
	}

	filter := domain.EventFilter{TenantID: tenant, ActorID: "alice"}
	n, err := repo.Count(ctx, filter)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)

	page, err := repo.Find(ctx, filter, 1, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, t0.Add(2*time.Minute), page[0].Timestamp)

	past, err := repo.Find(ctx, filter, 10, 5)
	require.NoError(t, err)
	assert.Empty(t, past)
}

func TestOutboxRepo_ListPending(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := memory.NewOutboxRepo()
	done := t0

	require.NoError(t, repo.Create(ctx, &domain.AuditOutboxEntry{ID: uuid.New(), ActionType: domain.ActionLoginFail}))
	require.NoError(t, repo.Create(ctx, &domain.AuditOutboxEntry{ID: uuid.New(), ActionType: domain.ActionDraftCreate, ProcessedAt: &done}))
	require.NoError(t, repo.Create(ctx, &domain.AuditOutboxEntry{ID: uuid.New(), ActionType: domain.ActionSystemJob}))

	pending, err := repo.ListPending(ctx, 0)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, domain.ActionLoginFail, pending[0].ActionType)
	assert.Equal(t, domain.ActionSystemJob, pending[1].ActionType)

	limited, err := repo.ListPending(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestUserRepo_GetByID(t *testing.T) {
	t.Parallel()

	store := memory.New()
	u := &domain.User{ID: uuid.New(), Username: "jdoe", Role: "clinician"}
	store.UserDirectory().Put(u)

	got, err := store.Users().GetByID(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Equal(t, "jdoe", got.Username)

	_, err = store.Users().GetByID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func strPtr(s string) *string { return &s }
