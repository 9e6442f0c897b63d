package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/clinaudit/internal/domain"
)

// Format is an export rendering.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

// ParseFormat validates a user-supplied format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatJSON, FormatCSV:
		return f, nil
	default:
		return "", fmt.Errorf("%q: %w", s, ErrUnsupportedFormat)
	}
}

// ContentType returns the MIME type of the rendering.
func (f Format) ContentType() string {
	if f == FormatCSV {
		return "text/csv; charset=utf-8"
	}
	return "application/json"
}

// CSVHeader is the fixed first line of CSV exports.
const CSVHeader = "timestamp,actorId,actorUsername,actorEmail,actorRole,actionType,resourceType,resourceId,hashEvento,hashEventoAnterior"

// Archiver keeps a copy of each export for compliance handoff.
type Archiver interface {
	Store(ctx context.Context, key, contentType string, data []byte) error
}

// ExporterOption configures an Exporter.
type ExporterOption func(*Exporter)

// WithArchiver stores every rendered export through a. Archive failures are
// logged and do not fail the export.
func WithArchiver(a Archiver) ExporterOption {
	return func(e *Exporter) { e.archiver = a }
}

// Exporter renders an ascending slice of a tenant's events.
type Exporter struct {
	events   EventReader
	archiver Archiver
}

// NewExporter creates an Exporter.
func NewExporter(events EventReader, opts ...ExporterOption) *Exporter {
	e := &Exporter{events: events}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// exportedEvent is the JSON export shape.
type exportedEvent struct {
	TenantID      *string               `json:"tenantId"`
	ActorID       *string               `json:"actorId"`
	ActorSnapshot *domain.ActorSnapshot `json:"actorSnapshot"`
	Timestamp     string                `json:"timestamp"`
	ActionType    domain.ActionType     `json:"actionType"`
	ResourceType  *string               `json:"resourceType"`
	ResourceID    *string               `json:"resourceId"`
	Payload       map[string]any        `json:"payload"`
	HashEvento    string                `json:"hashEvento"`
	HashAnterior  *string               `json:"hashEventoAnterior"`
}

// ExportEvents renders the tenant's events with from <= timestamp <= to,
// oldest first.
func (e *Exporter) ExportEvents(ctx context.Context, tenantID uuid.UUID, from, to time.Time, format Format) ([]byte, error) {
	if from.After(to) {
		return nil, fmt.Errorf("audit.Exporter.ExportEvents: %w", ErrInvalidTimeRange)
	}
	if format != FormatJSON && format != FormatCSV {
		return nil, fmt.Errorf("audit.Exporter.ExportEvents: %q: %w", format, ErrUnsupportedFormat)
	}

	events, err := e.events.ListRange(ctx, tenantID, from, to)
	if err != nil {
		return nil, fmt.Errorf("audit.Exporter.ExportEvents: %w", err)
	}

	var data []byte
	if format == FormatCSV {
		data = renderCSV(events)
	} else {
		data, err = renderJSON(events)
		if err != nil {
			return nil, fmt.Errorf("audit.Exporter.ExportEvents: %w", err)
		}
	}

	e.archive(ctx, tenantID, from, to, format, data)

	return data, nil
}

// ArchiveKey is the object key an export is archived under.
func ArchiveKey(tenantID uuid.UUID, from, to time.Time, format Format) string {
	const compact = "20060102T150405.000Z"
	return fmt.Sprintf("audit-exports/%s/%s_%s.%s",
		tenantID, from.UTC().Format(compact), to.UTC().Format(compact), format)
}

func (e *Exporter) archive(ctx context.Context, tenantID uuid.UUID, from, to time.Time, format Format, data []byte) {
	if e.archiver == nil {
		return
	}
	key := ArchiveKey(tenantID, from, to, format)
	if err := e.archiver.Store(ctx, key, format.ContentType(), data); err != nil {
		log.Warn().Err(err).Str("tenant_id", tenantID.String()).Str("key", key).Msg("audit.Exporter: archive failed")
	}
}

func renderJSON(events []*domain.AuditEvent) ([]byte, error) {
	out := make([]exportedEvent, 0, len(events))
	for _, ev := range events {
		var tenant *string
		if ev.TenantID != nil {
			s := ev.TenantID.String()
			tenant = &s
		}
		out = append(out, exportedEvent{
			TenantID:      tenant,
			ActorID:       ev.ActorID,
			ActorSnapshot: ev.ActorSnapshot,
			Timestamp:     FormatTimestamp(ev.Timestamp),
			ActionType:    ev.ActionType,
			ResourceType:  ev.ResourceType,
			ResourceID:    ev.ResourceID,
			Payload:       ev.Payload,
			HashEvento:    ev.EventHash,
			HashAnterior:  ev.PrevEventHash,
		})
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return nil, fmt.Errorf("render json: %w", err)
	}
	return buf.Bytes(), nil
}

// renderCSV quotes every field, which encoding/csv does not support.
func renderCSV(events []*domain.AuditEvent) []byte {
	var b strings.Builder
	b.WriteString(CSVHeader)
	b.WriteByte('\n')

	for _, ev := range events {
		var username, email, role string
		if ev.ActorSnapshot != nil {
			username = ev.ActorSnapshot.Username
			email = ev.ActorSnapshot.Email
			role = ev.ActorSnapshot.Role
		}

		fields := []string{
			FormatTimestamp(ev.Timestamp),
			deref(ev.ActorID),
			username,
			email,
			role,
			string(ev.ActionType),
			deref(ev.ResourceType),
			deref(ev.ResourceID),
			ev.EventHash,
			deref(ev.PrevEventHash),
		}
		for i, f := range fields {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(quoteCSV(f))
		}
		b.WriteByte('\n')
	}

	return []byte(b.String())
}

func quoteCSV(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
