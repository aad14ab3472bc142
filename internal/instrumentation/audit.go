package instrumentation

import (
	"context"
	"log/slog"
	"time"

	"github.com/teemow/bookcal/internal/logging"
)

// EventAudit captures one calendar event operation for the audit log.
//
// CustomerEmail is PII. LogAttrs replaces it with an anonymized hash;
// LogAuditAttrs keeps it and is only used when the audit logger is
// configured to include PII.
type EventAudit struct {
	Operation     string
	Company       string
	CustomerEmail string
	EventID       string
	Start         time.Time

	StartedAt time.Time
	Duration  time.Duration
	Success   bool
	Error     string

	TraceID string
	SpanID  string
}

// NewEventAudit starts timing an event operation.
func NewEventAudit(operation, company string) *EventAudit {
	return &EventAudit{
		Operation: operation,
		Company:   company,
		StartedAt: time.Now(),
	}
}

// WithCustomer sets the attendee email.
func (a *EventAudit) WithCustomer(email string) *EventAudit {
	a.CustomerEmail = email
	return a
}

// WithEvent sets the calendar event id and, when known, its start.
func (a *EventAudit) WithEvent(id string, start time.Time) *EventAudit {
	a.EventID = id
	a.Start = start
	return a
}

// WithSpanContext copies the trace context of the span in ctx.
func (a *EventAudit) WithSpanContext(ctx context.Context) *EventAudit {
	a.TraceID = GetTraceID(ctx)
	a.SpanID = GetSpanID(ctx)
	return a
}

// Complete stops the timer and records the outcome.
func (a *EventAudit) Complete(err error) *EventAudit {
	a.Duration = time.Since(a.StartedAt)
	a.Success = err == nil
	if err != nil {
		a.Error = err.Error()
	}
	return a
}

// Status returns StatusSuccess or StatusError.
func (a *EventAudit) Status() string {
	if a.Success {
		return StatusSuccess
	}
	return StatusError
}

// LogAttrs returns the anonymized attribute set.
func (a *EventAudit) LogAttrs() []slog.Attr {
	attrs := a.commonAttrs()
	if a.CustomerEmail != "" {
		attrs = append(attrs,
			slog.String(logging.KeyUserHash, logging.AnonymizeEmail(a.CustomerEmail)),
			slog.String("user_domain", ExtractUserDomain(a.CustomerEmail)),
		)
	}
	return attrs
}

// LogAuditAttrs returns the attribute set including the customer email.
func (a *EventAudit) LogAuditAttrs() []slog.Attr {
	attrs := a.commonAttrs()
	if a.CustomerEmail != "" {
		attrs = append(attrs, slog.String("customer_email", a.CustomerEmail))
	}
	if a.SpanID != "" {
		attrs = append(attrs, slog.String("span_id", a.SpanID))
	}
	return attrs
}

func (a *EventAudit) commonAttrs() []slog.Attr {
	attrs := []slog.Attr{
		slog.String(logging.KeyOperation, a.Operation),
		slog.String(logging.KeyCompany, a.Company),
		slog.Duration(logging.KeyDuration, a.Duration),
		slog.String(logging.KeyStatus, a.Status()),
	}
	if a.EventID != "" {
		attrs = append(attrs, slog.String(logging.KeyEventID, a.EventID))
	}
	if !a.Start.IsZero() {
		attrs = append(attrs, slog.String("start", a.Start.UTC().Format(time.RFC3339)))
	}
	if a.TraceID != "" {
		attrs = append(attrs, slog.String("trace_id", a.TraceID))
	}
	if a.Error != "" {
		attrs = append(attrs, slog.String(logging.KeyError, a.Error))
	}
	return attrs
}

// AuditLogger writes event audit records.
type AuditLogger struct {
	logger     *slog.Logger
	includePII bool
	enabled    bool
}

// NewAuditLogger creates an AuditLogger. A nil logger uses slog.Default().
func NewAuditLogger(logger *slog.Logger, config AuditLoggingConfig) *AuditLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditLogger{
		logger:     logger,
		includePII: config.IncludePII,
		enabled:    config.Enabled,
	}
}

// Log writes a completed EventAudit. Failures are logged at warn level.
// A nil AuditLogger drops the record.
func (al *AuditLogger) Log(ctx context.Context, a *EventAudit) {
	if al == nil || !al.enabled {
		return
	}

	var attrs []slog.Attr
	if al.includePII {
		attrs = a.LogAuditAttrs()
	} else {
		attrs = a.LogAttrs()
	}

	level := slog.LevelInfo
	msg := "event_operation"
	if !a.Success {
		level = slog.LevelWarn
		msg = "event_operation_failed"
	}
	al.logger.LogAttrs(ctx, level, msg, attrs...)
}
