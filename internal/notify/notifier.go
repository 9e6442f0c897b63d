package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// ErrNoSinks is returned when an alert is raised with no sink registered.
var ErrNoSinks = errors.New("notify: no alert sinks registered") //nolint:gochecknoglobals // sentinel error

// Severity of an operational alert.
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Alert is an operational signal raised by the audit core, e.g. when an event
// was parked in the outbox instead of the primary store.
type Alert struct {
	Severity Severity          `json:"severity"`
	Title    string            `json:"title"`
	Text     string            `json:"text"`
	TenantID *uuid.UUID        `json:"tenant_id,omitempty"`
	Fields   map[string]string `json:"fields,omitempty"`
	RaisedAt time.Time         `json:"raised_at"`
}

// Sink delivers alerts to one destination.
type Sink interface {
	Send(ctx context.Context, alert Alert) error
}

// SinkRegistry lists the configured sinks by name.
type SinkRegistry interface {
	All() map[string]Sink
}

// Notifier fans an alert out to every registered sink.
type Notifier struct {
	sinks SinkRegistry
}

// New creates a Notifier over the given sink registry.
func New(sinks SinkRegistry) *Notifier {
	return &Notifier{sinks: sinks}
}

// Notify delivers the alert to all sinks. Every sink is attempted; the
// returned error joins the failures of the sinks that did not accept it.
func (n *Notifier) Notify(ctx context.Context, alert Alert) error {
	sinks := n.sinks.All()
	if len(sinks) == 0 {
		log.Warn().Str("title", alert.Title).Str("text", alert.Text).Msg("notify: no sinks, alert logged only")
		return ErrNoSinks
	}

	if alert.RaisedAt.IsZero() {
		alert.RaisedAt = time.Now().UTC()
	}

	var errs []error
	for name, sink := range sinks {
		if err := sink.Send(ctx, alert); err != nil {
			errs = append(errs, fmt.Errorf("sink %q: %w", name, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify.Notifier.Notify: %w", errors.Join(errs...))
	}

	return nil
}
