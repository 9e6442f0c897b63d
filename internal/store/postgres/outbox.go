package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gosuda/clinaudit/internal/domain"
)

type OutboxRepo struct {
	pool *pgxpool.Pool
}

func NewOutboxRepo(pool *pgxpool.Pool) *OutboxRepo {
	return &OutboxRepo{pool: pool}
}

func (r *OutboxRepo) Create(ctx context.Context, entry *domain.AuditOutboxEntry) error {
	snapshot, err := marshalNullable(entry.ActorSnapshot, entry.ActorSnapshot == nil)
	if err != nil {
		return fmt.Errorf("outboxRepo.Create: marshal snapshot: %w", err)
	}
	payload, err := domain.EncodePayload(entry.Payload)
	if err != nil {
		return fmt.Errorf("outboxRepo.Create: %w", err)
	}

	_, err = r.pool.Exec(ctx,
		`INSERT INTO audit_outbox (id, tenant_id, actor_id, actor_snapshot, ts, action_type,
		 resource_type, resource_id, payload, event_class, error_message, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		entry.ID, entry.TenantID, entry.ActorID, snapshot, entry.Timestamp, entry.ActionType,
		entry.ResourceType, entry.ResourceID, payload, entry.EventClass, entry.ErrorMessage, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("outboxRepo.Create: %w", err)
	}

	return nil
}

// ListPending returns unprocessed entries, oldest first.
func (r *OutboxRepo) ListPending(ctx context.Context, limit int) ([]*domain.AuditOutboxEntry, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, tenant_id, actor_id, actor_snapshot, ts, action_type, resource_type, resource_id,
		 payload, event_class, error_message, created_at, processed_at
		 FROM audit_outbox WHERE processed_at IS NULL
		 ORDER BY created_at ASC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("outboxRepo.ListPending: %w", err)
	}
	defer rows.Close()

	entries := make([]*domain.AuditOutboxEntry, 0)
	for rows.Next() {
		var e domain.AuditOutboxEntry
		var snapshot, payload []byte

		if err := rows.Scan(
			&e.ID, &e.TenantID, &e.ActorID, &snapshot, &e.Timestamp, &e.ActionType, &e.ResourceType,
			&e.ResourceID, &payload, &e.EventClass, &e.ErrorMessage, &e.CreatedAt, &e.ProcessedAt,
		); err != nil {
			return nil, fmt.Errorf("outboxRepo.ListPending: scan: %w", err)
		}
		if err := unmarshalNullable(snapshot, &e.ActorSnapshot); err != nil {
			return nil, fmt.Errorf("outboxRepo.ListPending: unmarshal snapshot: %w", err)
		}
		decoded, err := domain.DecodePayload(payload)
		if err != nil {
			return nil, fmt.Errorf("outboxRepo.ListPending: %w", err)
		}
		e.Payload = decoded
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("outboxRepo.ListPending: rows: %w", err)
	}

	return entries, nil
}
