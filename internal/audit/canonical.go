// Package audit implements the tamper-evident audit trail: canonical
// serialization, hashing and linking of events, recording with criticality
// aware failure handling, and the query, export and verification read paths.
package audit

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gosuda/clinaudit/internal/domain"
)

// TimestampLayout is the ISO-8601 UTC form used in canonical payloads and
// exports. Millisecond precision matches what every store round-trips.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// canonicalEvent fixes the key order of the hashed representation.
// encoding/json emits struct fields in declaration order and nil pointers
// or maps as null.
type canonicalEvent struct {
	TenantID     *string            `json:"tenantId"`
	ActorID      *string            `json:"actorId"`
	Timestamp    *string            `json:"timestamp"`
	ActionType   *domain.ActionType `json:"actionType"`
	ResourceType *string            `json:"resourceType"`
	ResourceID   *string            `json:"resourceId"`
	Payload      map[string]any     `json:"payload"`
}

// Canonicalize returns the byte-stable JSON form of the hashed fields. Payload
// keys are written in encoding/json map order, which is sorted.
func Canonicalize(f domain.CanonicalFields) (string, error) {
	c := canonicalEvent{
		ActorID:      f.ActorID,
		ResourceType: f.ResourceType,
		ResourceID:   f.ResourceID,
		Payload:      f.Payload,
	}
	if f.TenantID != nil {
		s := f.TenantID.String()
		c.TenantID = &s
	}
	if !f.Timestamp.IsZero() {
		s := FormatTimestamp(f.Timestamp)
		c.Timestamp = &s
	}
	if f.ActionType != "" {
		a := f.ActionType
		c.ActionType = &a
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(c); err != nil {
		return "", fmt.Errorf("audit.Canonicalize: %w", err)
	}

	// Encode terminates with a newline that is not part of the canonical form.
	return string(bytes.TrimSuffix(buf.Bytes(), []byte("\n"))), nil
}

// FormatTimestamp renders t in the canonical ISO-8601 UTC form.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}
