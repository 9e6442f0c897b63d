package v1

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/gosuda/clinaudit/internal/audit"
	"github.com/gosuda/clinaudit/internal/domain"
)

// EventFinder abstracts filtered reads for handler testing.
// *audit.QueryEngine satisfies this interface.
type EventFinder interface {
	FindEvents(ctx context.Context, tenantID uuid.UUID, query audit.EventQuery) (*audit.EventPage, error)
}

// EventExporter abstracts export rendering for handler testing.
// *audit.Exporter satisfies this interface.
type EventExporter interface {
	ExportEvents(ctx context.Context, tenantID uuid.UUID, from, to time.Time, format audit.Format) ([]byte, error)
}

// ChainVerifier abstracts integrity checks for handler testing.
// *audit.Verifier satisfies this interface.
type ChainVerifier interface {
	VerifyExport(ctx context.Context, tenantID uuid.UUID, from, to time.Time) (*audit.VerifyResult, error)
}

// ActionRecorder records the reads of the audit trail itself.
// *audit.Recorder satisfies this interface.
type ActionRecorder interface {
	Record(ctx context.Context, in audit.RecordInput) error
}

// OutboxReader lists soft-fail fallbacks awaiting the drain job.
// domain.AuditOutboxRepository satisfies this interface.
type OutboxReader interface {
	ListPending(ctx context.Context, limit int) ([]*domain.AuditOutboxEntry, error)
}

// AuditServices bundles the collaborators of the audit routes.
type AuditServices struct {
	Query    EventFinder
	Exporter EventExporter
	Verifier ChainVerifier
	Recorder ActionRecorder
}
