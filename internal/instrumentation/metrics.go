package instrumentation

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	attrMethod    = "method"
	attrPath      = "path"
	attrStatus    = "status"
	attrOperation = "operation"
	attrService   = "service"
	attrResult    = "result"
	attrQuery     = "query"
	attrCompany   = "company"
)

// Metrics records bookcal's metrics. A nil *Metrics or a zero Metrics is a
// valid no-op recorder.
type Metrics struct {
	httpRequestsTotal   metric.Int64Counter
	httpRequestDuration metric.Float64Histogram

	googleAPIOperationsTotal   metric.Int64Counter
	googleAPIOperationDuration metric.Float64Histogram

	oauthTokenRefreshTotal metric.Int64Counter

	availabilityQueriesTotal  metric.Int64Counter
	availabilityQueryDuration metric.Float64Histogram
	availabilityDaysScanned   metric.Int64Histogram

	appointmentsRecordedTotal metric.Int64Counter
	reservationsTotal         metric.Int64Counter

	// detailedLabels adds the company label where it is meaningful.
	detailedLabels bool
}

// NewMetrics creates every instrument on meter.
func NewMetrics(meter metric.Meter, detailedLabels bool) (*Metrics, error) {
	m := &Metrics{detailedLabels: detailedLabels}

	var err error

	m.httpRequestsTotal, err = meter.Int64Counter(
		"http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http_requests_total counter: %w", err)
	}

	m.httpRequestDuration, err = meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.01, 0.1, 0.5, 1.0, 2.5, 5.0, 10.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http_request_duration_seconds histogram: %w", err)
	}

	m.googleAPIOperationsTotal, err = meter.Int64Counter(
		"google_api_operations_total",
		metric.WithDescription("Total number of Google API operations"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create google_api_operations_total counter: %w", err)
	}

	m.googleAPIOperationDuration, err = meter.Float64Histogram(
		"google_api_operation_duration_seconds",
		metric.WithDescription("Google API operation duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create google_api_operation_duration_seconds histogram: %w", err)
	}

	m.oauthTokenRefreshTotal, err = meter.Int64Counter(
		"oauth_token_refresh_total",
		metric.WithDescription("Total number of OAuth token refresh attempts"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create oauth_token_refresh_total counter: %w", err)
	}

	m.availabilityQueriesTotal, err = meter.Int64Counter(
		"availability_queries_total",
		metric.WithDescription("Total number of availability queries"),
		metric.WithUnit("{query}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create availability_queries_total counter: %w", err)
	}

	m.availabilityQueryDuration, err = meter.Float64Histogram(
		"availability_query_duration_seconds",
		metric.WithDescription("Availability query duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create availability_query_duration_seconds histogram: %w", err)
	}

	m.availabilityDaysScanned, err = meter.Int64Histogram(
		"availability_days_scanned",
		metric.WithDescription("Calendar days examined by a single available-days query"),
		metric.WithUnit("{day}"),
		metric.WithExplicitBucketBoundaries(1, 7, 14, 30, 60, 120, 240, 370),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create availability_days_scanned histogram: %w", err)
	}

	m.appointmentsRecordedTotal, err = meter.Int64Counter(
		"appointments_recorded_total",
		metric.WithDescription("Total number of appointment writes"),
		metric.WithUnit("{appointment}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create appointments_recorded_total counter: %w", err)
	}

	m.reservationsTotal, err = meter.Int64Counter(
		"slot_reservations_total",
		metric.WithDescription("Total number of slot reservation operations"),
		metric.WithUnit("{reservation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create slot_reservations_total counter: %w", err)
	}

	return m, nil
}

// RecordHTTPRequest records an inbound HTTP request.
// path must be the route pattern, not the raw URL.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, statusCode int, duration time.Duration) {
	if m == nil || m.httpRequestsTotal == nil || m.httpRequestDuration == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String(attrMethod, method),
		attribute.String(attrPath, path),
		attribute.String(attrStatus, strconv.Itoa(statusCode)),
	)
	m.httpRequestsTotal.Add(ctx, 1, attrs)
	m.httpRequestDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordGoogleAPIOperation records a call to a Google API.
//
// Parameters:
//   - service: ServiceCalendar or ServiceOAuth
//   - operation: one of the Operation* constants
//   - status: StatusSuccess or StatusError
func (m *Metrics) RecordGoogleAPIOperation(ctx context.Context, service, operation, status string, duration time.Duration) {
	if m == nil || m.googleAPIOperationsTotal == nil || m.googleAPIOperationDuration == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String(attrService, service),
		attribute.String(attrOperation, operation),
		attribute.String(attrStatus, status),
	)
	m.googleAPIOperationsTotal.Add(ctx, 1, attrs)
	m.googleAPIOperationDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordOAuthTokenRefresh records a refresh-token grant. Result is
// OAuthResultSuccess or OAuthResultFailure.
func (m *Metrics) RecordOAuthTokenRefresh(ctx context.Context, result string) {
	if m == nil || m.oauthTokenRefreshTotal == nil {
		return
	}
	m.oauthTokenRefreshTotal.Add(ctx, 1, metric.WithAttributes(attribute.String(attrResult, result)))
}

// RecordAvailabilityQuery records an availability query of the given kind
// (QueryDays or QueryHours).
func (m *Metrics) RecordAvailabilityQuery(ctx context.Context, query, company, status string, duration time.Duration) {
	if m == nil || m.availabilityQueriesTotal == nil || m.availabilityQueryDuration == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrQuery, query),
		attribute.String(attrStatus, status),
	}
	if m.detailedLabels && company != "" {
		attrs = append(attrs, attribute.String(attrCompany, company))
	}

	m.availabilityQueriesTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.availabilityQueryDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordDaysScanned records how many calendar days an available-days query examined.
func (m *Metrics) RecordDaysScanned(ctx context.Context, days int) {
	if m == nil || m.availabilityDaysScanned == nil {
		return
	}
	m.availabilityDaysScanned.Record(ctx, int64(days))
}

// RecordAppointment records an appointment write.
func (m *Metrics) RecordAppointment(ctx context.Context, company, status string) {
	if m == nil || m.appointmentsRecordedTotal == nil {
		return
	}

	attrs := []attribute.KeyValue{attribute.String(attrStatus, status)}
	if m.detailedLabels && company != "" {
		attrs = append(attrs, attribute.String(attrCompany, company))
	}
	m.appointmentsRecordedTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordReservation records a reservation outcome (ReservationAcquired,
// ReservationConflict or ReservationReleased).
func (m *Metrics) RecordReservation(ctx context.Context, result string) {
	if m == nil || m.reservationsTotal == nil {
		return
	}
	m.reservationsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String(attrResult, result)))
}
