// Package server exposes the availability and event API over HTTP.
//
// # Key Components
//
// API maps the HTTP surface onto the availability engine and the calendar
// gateway. Every error is rendered as {"detail": "..."} with the status from
// apperr.HTTPStatus.
//
// HealthChecker serves /healthz, /readyz and /healthz/detailed. Readiness
// pings the document store.
//
// MetricsServer exposes Prometheus metrics on a dedicated port.
//
// NewHandler wires the routes behind request-id, access-log and metrics
// middleware and wraps the result with otelhttp for tracing.
package server
