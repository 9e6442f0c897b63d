package v1_test

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/gosuda/clinaudit/internal/audit"
	"github.com/gosuda/clinaudit/internal/domain"
	"github.com/gosuda/clinaudit/internal/server/middleware"
)

// ---------------------------------------------------------------------------
// Context helpers: inject tenant/user/role into context for GetCtx
// ---------------------------------------------------------------------------

func tenantCtx(tenantID uuid.UUID) context.Context {
	ctx := context.Background()
	ctx = context.WithValue(ctx, middleware.ContextKeyTenantID, tenantID)
	return ctx
}

func auditorCtx(tenantID, userID uuid.UUID) context.Context {
	ctx := tenantCtx(tenantID)
	ctx = context.WithValue(ctx, middleware.ContextKeyUserID, userID)
	ctx = context.WithValue(ctx, middleware.ContextKeyUserRole, middleware.RoleAuditor)
	return ctx
}

// ---------------------------------------------------------------------------
// Mock EventFinder
// ---------------------------------------------------------------------------

type mockFinder struct {
	findEventsFunc func(ctx context.Context, tenantID uuid.UUID, query audit.EventQuery) (*audit.EventPage, error)
}

func (m *mockFinder) FindEvents(ctx context.Context, tenantID uuid.UUID, query audit.EventQuery) (*audit.EventPage, error) {
	return m.findEventsFunc(ctx, tenantID, query)
}

// ---------------------------------------------------------------------------
// Mock EventExporter
// ---------------------------------------------------------------------------

type mockExporter struct {
	exportEventsFunc func(ctx context.Context, tenantID uuid.UUID, from, to time.Time, format audit.Format) ([]byte, error)
}

func (m *mockExporter) ExportEvents(ctx context.Context, tenantID uuid.UUID, from, to time.Time, format audit.Format) ([]byte, error) {
	return m.exportEventsFunc(ctx, tenantID, from, to, format)
}

// ---------------------------------------------------------------------------
// Mock ChainVerifier
// ---------------------------------------------------------------------------

type mockVerifier struct {
	verifyExportFunc func(ctx context.Context, tenantID uuid.UUID, from, to time.Time) (*audit.VerifyResult, error)
}

func (m *mockVerifier) VerifyExport(ctx context.Context, tenantID uuid.UUID, from, to time.Time) (*audit.VerifyResult, error) {
	return m.verifyExportFunc(ctx, tenantID, from, to)
}

// ---------------------------------------------------------------------------
// Mock ActionRecorder
// ---------------------------------------------------------------------------

type mockRecorder struct {
	recordFunc func(ctx context.Context, in audit.RecordInput) error
	recorded   []audit.RecordInput
}

func (m *mockRecorder) Record(ctx context.Context, in audit.RecordInput) error {
	m.recorded = append(m.recorded, in)
	if m.recordFunc == nil {
		return nil
	}
	return m.recordFunc(ctx, in)
}

// ---------------------------------------------------------------------------
// Mock OutboxReader
// ---------------------------------------------------------------------------

type mockOutbox struct {
	listPendingFunc func(ctx context.Context, limit int) ([]*domain.AuditOutboxEntry, error)
}

func (m *mockOutbox) ListPending(ctx context.Context, limit int) ([]*domain.AuditOutboxEntry, error) {
	return m.listPendingFunc(ctx, limit)
}
