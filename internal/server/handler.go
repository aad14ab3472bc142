package server

import (
	"log/slog"
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/teemow/bookcal/internal/instrumentation"
)

// HandlerConfig collects the parts of the public HTTP handler.
type HandlerConfig struct {
	API     *API
	Health  *HealthChecker
	Metrics *instrumentation.Metrics
	Logger  *slog.Logger
}

// NewHandler builds the public handler: API and health routes behind
// request-id, access-log and metrics middleware, traced with otelhttp.
func NewHandler(config HandlerConfig) http.Handler {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()
	if config.Health != nil {
		config.Health.RegisterHealthEndpoints(mux)
	}
	if config.API != nil {
		config.API.Register(mux)
	}

	h := Chain(mux,
		WithRequestID,
		WithAccessLog(logger),
		WithMetrics(config.Metrics),
	)
	return otelhttp.NewHandler(h, instrumentation.DefaultServiceName)
}
