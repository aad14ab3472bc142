// Package instrumentation provides OpenTelemetry metrics, tracing and the
// booking audit log for bookcal.
//
// # Metrics
//
// Server/HTTP:
//   - http_requests_total: requests by method, route pattern and status
//   - http_request_duration_seconds
//
// Google APIs:
//   - google_api_operations_total: calendar and oauth calls by operation and status
//   - google_api_operation_duration_seconds
//   - oauth_token_refresh_total: refresh-token grants by result
//
// Availability and booking:
//   - availability_queries_total, availability_query_duration_seconds: by query kind (days, hours)
//   - availability_days_scanned: calendar days examined per available-days query
//   - appointments_recorded_total: appointment writes by status
//   - slot_reservations_total: reservation outcomes (acquired, conflict, released)
//
// The company label is only attached when detailed labels are enabled.
//
// # Tracing
//
// Spans are created for availability queries (availability.days,
// availability.hours) and for every Google API call
// (google.<service>.<operation>). Inbound HTTP spans come from otelhttp.
//
// # Configuration
//
// DefaultConfig reads:
//   - INSTRUMENTATION_ENABLED (default: true)
//   - METRICS_EXPORTER: prometheus, otlp, stdout (default: prometheus)
//   - TRACING_EXPORTER: otlp, stdout, none (default: none)
//   - OTEL_EXPORTER_OTLP_ENDPOINT, OTEL_EXPORTER_OTLP_INSECURE
//   - OTEL_TRACES_SAMPLER_ARG (default: 0.1)
//   - OTEL_SERVICE_NAME (default: bookcal)
//   - METRICS_DETAILED_LABELS (default: false)
//   - AUDIT_LOGGING_ENABLED, AUDIT_LOGGING_INCLUDE_PII
//
// # Example Usage
//
//	provider, err := instrumentation.NewProvider(ctx, instrumentation.DefaultConfig())
//	if err != nil {
//		return err
//	}
//	defer provider.Shutdown(ctx)
//
//	metrics := provider.Metrics()
//	metrics.RecordAvailabilityQuery(ctx, instrumentation.QueryHours, "acme", instrumentation.StatusSuccess, time.Since(start))
package instrumentation
