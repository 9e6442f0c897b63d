package postgres

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/clinaudit/internal/domain"
)

func TestBuildWhere_TenantOnly(t *testing.T) {
	t.Parallel()

	tenant := uuid.New()
	where, args := buildWhere(domain.EventFilter{TenantID: tenant})

	assert.Equal(t, "tenant_id = $1", where)
	assert.Equal(t, []any{tenant}, args)
}

func TestBuildWhere_AllFilters(t *testing.T) {
	t.Parallel()

	tenant := uuid.New()
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	to := from.Add(time.Hour)

	where, args := buildWhere(domain.EventFilter{
		TenantID:     tenant,
		From:         &from,
		To:           &to,
		ActorID:      "u1",
		ResourceType: "document",
		ResourceID:   "doc123",
		ActionType:   domain.ActionDocFinalize,
	})

	assert.Equal(t,
		"tenant_id = $1 AND ts >= $2 AND ts <= $3 AND actor_id = $4 AND resource_type = $5 AND resource_id = $6 AND action_type = $7",
		where)
	require.Len(t, args, 7)
	assert.Equal(t, []any{tenant, from, to, "u1", "document", "doc123", "DOC_FINALIZE"}, args)
}

func TestBuildWhere_PlaceholdersFollowPresentFilters(t *testing.T) {
	t.Parallel()

	where, args := buildWhere(domain.EventFilter{TenantID: uuid.New(), ResourceID: "doc123"})

	assert.Equal(t, "tenant_id = $1 AND resource_id = $2", where)
	assert.Len(t, args, 2)
}

func TestNullableJSON(t *testing.T) {
	t.Parallel()

	data, err := marshalNullable(nil, true)
	require.NoError(t, err)
	assert.Nil(t, data)

	data, err = marshalNullable(map[string]any{"b": 1, "a": 2}, false)
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":2,"b":1}`, string(data))

	var snap *domain.ActorSnapshot
	require.NoError(t, unmarshalNullable(nil, &snap))
	assert.Nil(t, snap)

	require.NoError(t, unmarshalNullable([]byte(`{"username":"jdoe","email":"","role":"admin"}`), &snap))
	require.NotNil(t, snap)
	assert.Equal(t, "jdoe", snap.Username)
}

func TestSchema_PayloadKeepsNumberLiterals(t *testing.T) {
	t.Parallel()

	for _, stmt := range schema {
		if strings.Contains(stmt, "CREATE TABLE") {
			assert.Regexp(t, `payload\s+JSON,`, stmt)
		}
	}
}

func TestSchema_FilteredIndexesEndInSortOrder(t *testing.T) {
	t.Parallel()

	want := []string{
		"(tenant_id, actor_id, ts DESC, seq DESC)",
		"(tenant_id, resource_type, resource_id, ts DESC, seq DESC)",
		"(tenant_id, action_type, ts DESC, seq DESC)",
	}
	ddl := strings.Join(schema, "\n")
	for _, cols := range want {
		assert.Contains(t, ddl, "ON audit_events "+cols)
	}
}

func TestSchema_CreatesAppendOnlyTrigger(t *testing.T) {
	t.Parallel()

	var found bool
	for _, stmt := range schema {
		if strings.Contains(stmt, "BEFORE UPDATE OR DELETE ON audit_events") {
			found = true
		}
	}
	assert.True(t, found)
}
