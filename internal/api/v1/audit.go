package v1

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"

	"github.com/gosuda/clinaudit/internal/audit"
	"github.com/gosuda/clinaudit/internal/domain"
	"github.com/gosuda/clinaudit/internal/server/middleware"
)

type ListEventsInput struct {
	From         time.Time `query:"from" doc:"Inclusive lower bound (RFC 3339)"`
	To           time.Time `query:"to" doc:"Inclusive upper bound (RFC 3339)"`
	ActorID      string    `query:"actor_id" doc:"Filter by actor"`
	ResourceType string    `query:"resource_type" doc:"Filter by resource type"`
	ResourceID   string    `query:"resource_id" doc:"Filter by resource id"`
	ActionType   string    `query:"action_type" doc:"Filter by action type"`
	Page         int       `query:"page" doc:"1-based page number"`
	Limit        int       `query:"limit" doc:"Page size, capped at 500"`
}

type ListEventsOutput struct {
	Body *audit.EventPage
}

type ExportEventsInput struct {
	From   time.Time `query:"from" required:"true" doc:"Inclusive lower bound (RFC 3339)"`
	To     time.Time `query:"to" required:"true" doc:"Inclusive upper bound (RFC 3339)"`
	Format string    `query:"format" default:"json" doc:"Export format"`
}

type ExportEventsOutput struct {
	ContentType        string `header:"Content-Type"`
	ContentDisposition string `header:"Content-Disposition"`
	Body               []byte
}

type VerifyChainInput struct {
	From time.Time `query:"from" required:"true" doc:"Inclusive lower bound (RFC 3339)"`
	To   time.Time `query:"to" required:"true" doc:"Inclusive upper bound (RFC 3339)"`
}

type VerifyChainOutput struct {
	Body *audit.VerifyResult
}

type ListOutboxInput struct {
	Limit int `query:"limit" minimum:"1" maximum:"500" default:"100" doc:"Maximum entries"`
}

type ListOutboxOutput struct {
	Body []*domain.AuditOutboxEntry
}

func RegisterAuditRoutes(api huma.API, svc AuditServices) {
	huma.Register(api, huma.Operation{
		OperationID: "list-audit-events",
		Method:      http.MethodGet,
		Path:        "/audit/events",
		Summary:     "Search the tenant's audit trail",
		Tags:        []string{"Audit"},
	}, func(ctx context.Context, input *ListEventsInput) (*ListEventsOutput, error) {
		tenantID, ok := middleware.TenantIDFromContext(ctx)
		if !ok {
			return nil, huma.Error403Forbidden("missing tenant context")
		}

		q := audit.EventQuery{
			ActorID:      input.ActorID,
			ResourceType: input.ResourceType,
			ResourceID:   input.ResourceID,
			Page:         input.Page,
			Limit:        input.Limit,
		}
		if !input.From.IsZero() {
			q.From = &input.From
		}
		if !input.To.IsZero() {
			q.To = &input.To
		}
		if input.ActionType != "" {
			q.ActionType = domain.ActionType(input.ActionType)
			if !q.ActionType.Valid() {
				return nil, huma.Error400BadRequest("unknown action type: "+input.ActionType, &huma.ErrorDetail{
					Location: "query.action_type",
					Message:  "expected one of " + knownActionTypes(),
					Value:    input.ActionType,
				})
			}
		}

		page, err := svc.Query.FindEvents(ctx, tenantID, q)
		if err != nil {
			return nil, serviceError("failed to query audit events", err)
		}

		return &ListEventsOutput{Body: page}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "export-audit-events",
		Method:      http.MethodGet,
		Path:        "/audit/export",
		Summary:     "Download the tenant's audit trail for a time range",
		Tags:        []string{"Audit"},
	}, func(ctx context.Context, input *ExportEventsInput) (*ExportEventsOutput, error) {
		tenantID, ok := middleware.TenantIDFromContext(ctx)
		if !ok {
			return nil, huma.Error403Forbidden("missing tenant context")
		}

		format, err := audit.ParseFormat(input.Format)
		if err != nil {
			return nil, huma.Error400BadRequest("unsupported export format: " + input.Format)
		}
		if input.From.After(input.To) {
			return nil, huma.Error400BadRequest("from must not be after to")
		}

		// Downloading the trail is itself audited, and must be on record
		// before any data leaves the service.
		err = svc.Recorder.Record(ctx, exportAuditInput(ctx, tenantID, input.From, input.To, format))
		if err != nil {
			return nil, serviceError("failed to record export", err)
		}

		data, err := svc.Exporter.ExportEvents(ctx, tenantID, input.From, input.To, format)
		if err != nil {
			return nil, serviceError("failed to export audit events", err)
		}

		return &ExportEventsOutput{
			ContentType:        format.ContentType(),
			ContentDisposition: fmt.Sprintf("attachment; filename=%q", exportFilename(tenantID, input.From, input.To, format)),
			Body:               data,
		}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "verify-audit-chain",
		Method:      http.MethodGet,
		Path:        "/audit/verify",
		Summary:     "Check the integrity of the tenant's audit trail for a time range",
		Tags:        []string{"Audit"},
	}, func(ctx context.Context, input *VerifyChainInput) (*VerifyChainOutput, error) {
		tenantID, ok := middleware.TenantIDFromContext(ctx)
		if !ok {
			return nil, huma.Error403Forbidden("missing tenant context")
		}

		result, err := svc.Verifier.VerifyExport(ctx, tenantID, input.From, input.To)
		if err != nil {
			return nil, serviceError("failed to verify audit chain", err)
		}

		return &VerifyChainOutput{Body: result}, nil
	})
}

// RegisterOutboxRoutes exposes the pending soft-fail fallbacks. Mount it on
// an admin-only group.
func RegisterOutboxRoutes(api huma.API, outbox OutboxReader) {
	huma.Register(api, huma.Operation{
		OperationID: "list-audit-outbox",
		Method:      http.MethodGet,
		Path:        "/audit/outbox",
		Summary:     "List audit events awaiting redelivery",
		Tags:        []string{"Audit"},
	}, func(ctx context.Context, input *ListOutboxInput) (*ListOutboxOutput, error) {
		// Outbox entries span tenants; the admin group still requires one.
		if _, ok := middleware.TenantIDFromContext(ctx); !ok {
			return nil, huma.Error403Forbidden("missing tenant context")
		}

		entries, err := outbox.ListPending(ctx, input.Limit)
		if err != nil {
			return nil, huma.Error500InternalServerError("failed to list outbox", err)
		}
		if entries == nil {
			entries = []*domain.AuditOutboxEntry{}
		}

		return &ListOutboxOutput{Body: entries}, nil
	})
}

func exportAuditInput(ctx context.Context, tenantID uuid.UUID, from, to time.Time, format audit.Format) audit.RecordInput {
	resourceType := "audit_export"
	in := audit.RecordInput{
		TenantID:     &tenantID,
		ActionType:   domain.ActionAuditExportDownload,
		ResourceType: &resourceType,
		Payload: map[string]any{
			"from":   audit.FormatTimestamp(from),
			"to":     audit.FormatTimestamp(to),
			"format": string(format),
		},
		Class: domain.ClassOf(domain.ActionAuditExportDownload),
	}
	if actorID, ok := middleware.ActorIDFromContext(ctx); ok {
		in.ActorID = &actorID
	}
	return in
}

func exportFilename(tenantID uuid.UUID, from, to time.Time, format audit.Format) string {
	const compact = "20060102T150405Z"
	return fmt.Sprintf("audit-%s-%s-%s.%s", tenantID, from.UTC().Format(compact), to.UTC().Format(compact), format)
}

func knownActionTypes() string {
	actions := domain.ActionTypes()
	names := make([]string, len(actions))
	for i, a := range actions {
		names[i] = string(a)
	}
	return strings.Join(names, ", ")
}

// serviceError maps audit service failures onto HTTP errors. Anything
// wrapping domain.ErrInvalidInput is the caller's fault.
func serviceError(msg string, err error) error {
	switch {
	case errors.Is(err, audit.ErrInvalidTimeRange):
		return huma.Error400BadRequest("from must not be after to")
	case errors.Is(err, audit.ErrUnsupportedFormat):
		return huma.Error400BadRequest("unsupported export format")
	case errors.Is(err, domain.ErrInvalidInput):
		return huma.Error400BadRequest("invalid request")
	}
	return huma.Error500InternalServerError(msg, err)
}
