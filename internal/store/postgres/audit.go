package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gosuda/clinaudit/internal/domain"
)

const eventColumns = `id, seq, tenant_id, actor_id, actor_snapshot, ts, action_type,
		 resource_type, resource_id, payload, event_hash, prev_event_hash`

type EventRepo struct {
	pool *pgxpool.Pool
}

func NewEventRepo(pool *pgxpool.Pool) *EventRepo {
	return &EventRepo{pool: pool}
}

func (r *EventRepo) Create(ctx context.Context, e *domain.AuditEvent) error {
	snapshot, err := marshalNullable(e.ActorSnapshot, e.ActorSnapshot == nil)
	if err != nil {
		return fmt.Errorf("eventRepo.Create: marshal snapshot: %w", err)
	}
	payload, err := domain.EncodePayload(e.Payload)
	if err != nil {
		return fmt.Errorf("eventRepo.Create: %w", err)
	}

	err = r.pool.QueryRow(ctx,
		`INSERT INTO audit_events (id, tenant_id, actor_id, actor_snapshot, ts, action_type,
		 resource_type, resource_id, payload, event_hash, prev_event_hash)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 RETURNING seq`,
		e.ID, e.TenantID, e.ActorID, snapshot, e.Timestamp, e.ActionType,
		e.ResourceType, e.ResourceID, payload, e.EventHash, e.PrevEventHash,
	).Scan(&e.Seq)
	if err != nil {
		return fmt.Errorf("eventRepo.Create: %w", err)
	}

	return nil
}

func (r *EventRepo) LatestHash(ctx context.Context, tenantID uuid.UUID) (*string, error) {
	var hash string
	err := r.pool.QueryRow(ctx,
		`SELECT event_hash FROM audit_events WHERE tenant_id = $1
		 ORDER BY ts DESC, seq DESC
		 LIMIT 1`,
		tenantID,
	).Scan(&hash)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("eventRepo.LatestHash: %w", err)
	}

	return &hash, nil
}

func (r *EventRepo) Find(ctx context.Context, filter domain.EventFilter, offset, limit int) ([]*domain.AuditEvent, error) {
	where, args := buildWhere(filter)
	n := len(args)
	args = append(args, limit, offset)

	rows, err := r.pool.Query(ctx,
		`SELECT `+eventColumns+`
		 FROM audit_events WHERE `+where+`
		 ORDER BY ts DESC, seq DESC
		 LIMIT $`+strconv.Itoa(n+1)+` OFFSET $`+strconv.Itoa(n+2),
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("eventRepo.Find: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows, "eventRepo.Find")
}

func (r *EventRepo) Count(ctx context.Context, filter domain.EventFilter) (int64, error) {
	where, args := buildWhere(filter)

	var n int64
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM audit_events WHERE `+where, args...).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("eventRepo.Count: %w", err)
	}

	return n, nil
}

func (r *EventRepo) ListRange(ctx context.Context, tenantID uuid.UUID, from, to time.Time) ([]*domain.AuditEvent, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+eventColumns+`
		 FROM audit_events WHERE tenant_id = $1 AND ts >= $2 AND ts <= $3
		 ORDER BY ts ASC, seq ASC`,
		tenantID, from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("eventRepo.ListRange: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows, "eventRepo.ListRange")
}

// buildWhere renders the filter as a parameterized predicate. The tenant
// condition is always present.
func buildWhere(f domain.EventFilter) (string, []any) {
	conds := []string{"tenant_id = $1"}
	args := []any{f.TenantID}

	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, cond+" $"+strconv.Itoa(len(args)))
	}

	if f.From != nil {
		add("ts >=", *f.From)
	}
	if f.To != nil {
		add("ts <=", *f.To)
	}
	if f.ActorID != "" {
		add("actor_id =", f.ActorID)
	}
	if f.ResourceType != "" {
		add("resource_type =", f.ResourceType)
	}
	if f.ResourceID != "" {
		add("resource_id =", f.ResourceID)
	}
	if f.ActionType != "" {
		add("action_type =", string(f.ActionType))
	}

	return strings.Join(conds, " AND "), args
}

func scanEvents(rows pgx.Rows, caller string) ([]*domain.AuditEvent, error) {
	events := make([]*domain.AuditEvent, 0)
	for rows.Next() {
		var e domain.AuditEvent
		var snapshot, payload []byte

		if err := rows.Scan(
			&e.ID, &e.Seq, &e.TenantID, &e.ActorID, &snapshot, &e.Timestamp, &e.ActionType,
			&e.ResourceType, &e.ResourceID, &payload, &e.EventHash, &e.PrevEventHash,
		); err != nil {
			return nil, fmt.Errorf("%s: scan: %w", caller, err)
		}
		e.Timestamp = e.Timestamp.UTC()

		if err := unmarshalNullable(snapshot, &e.ActorSnapshot); err != nil {
			return nil, fmt.Errorf("%s: unmarshal snapshot: %w", caller, err)
		}
		decoded, err := domain.DecodePayload(payload)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", caller, err)
		}
		e.Payload = decoded
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: rows: %w", caller, err)
	}

	return events, nil
}

// --- Helpers ---

// marshalNullable stores absent values as SQL NULL rather than JSON null.
func marshalNullable(v any, isNil bool) ([]byte, error) {
	if isNil {
		return nil, nil
	}
	return json.Marshal(v)
}

func unmarshalNullable(data []byte, dst any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, dst)
}
