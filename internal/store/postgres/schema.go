package postgres

// schema is applied in order by Store.Migrate. Every statement is idempotent.
// Payloads are JSON rather than JSONB: JSONB rewrites number literals, which
// would change the hashed form of stored events.
var schema = []string{ //nolint:gochecknoglobals // static DDL
	`CREATE TABLE IF NOT EXISTS audit_events (
		id              UUID PRIMARY KEY,
		seq             BIGSERIAL NOT NULL UNIQUE,
		tenant_id       UUID,
		actor_id        TEXT,
		actor_snapshot  JSONB,
		ts              TIMESTAMPTZ NOT NULL,
		action_type     TEXT NOT NULL,
		resource_type   TEXT,
		resource_id     TEXT,
		payload         JSON,
		event_hash      CHAR(64) NOT NULL,
		prev_event_hash CHAR(64)
	)`,
	`CREATE INDEX IF NOT EXISTS audit_events_tenant_ts_idx ON audit_events (tenant_id, ts DESC, seq DESC)`,
	`DROP INDEX IF EXISTS audit_events_tenant_actor_idx`,
	`DROP INDEX IF EXISTS audit_events_tenant_resource_idx`,
	`DROP INDEX IF EXISTS audit_events_tenant_action_idx`,
	`CREATE INDEX IF NOT EXISTS audit_events_tenant_actor_ts_idx
		ON audit_events (tenant_id, actor_id, ts DESC, seq DESC)`,
	`CREATE INDEX IF NOT EXISTS audit_events_tenant_resource_ts_idx
		ON audit_events (tenant_id, resource_type, resource_id, ts DESC, seq DESC)`,
	`CREATE INDEX IF NOT EXISTS audit_events_tenant_action_ts_idx
		ON audit_events (tenant_id, action_type, ts DESC, seq DESC)`,
	`CREATE OR REPLACE FUNCTION audit_events_reject_change() RETURNS trigger AS $$
	BEGIN
		RAISE EXCEPTION 'audit_events is append-only';
	END;
	$$ LANGUAGE plpgsql`,
	`DROP TRIGGER IF EXISTS audit_events_append_only ON audit_events`,
	`CREATE TRIGGER audit_events_append_only
		BEFORE UPDATE OR DELETE ON audit_events
		FOR EACH ROW EXECUTE FUNCTION audit_events_reject_change()`,
	`CREATE TABLE IF NOT EXISTS audit_outbox (
		id             UUID PRIMARY KEY,
		tenant_id      UUID,
		actor_id       TEXT,
		actor_snapshot JSONB,
		ts             TIMESTAMPTZ NOT NULL,
		action_type    TEXT NOT NULL,
		resource_type  TEXT,
		resource_id    TEXT,
		payload        JSON,
		event_class    TEXT NOT NULL,
		error_message  TEXT NOT NULL,
		created_at     TIMESTAMPTZ NOT NULL,
		processed_at   TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS audit_outbox_pending_idx ON audit_outbox (created_at) WHERE processed_at IS NULL`,
}
