package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/teemow/bookcal/internal/appointments"
	"github.com/teemow/bookcal/internal/availability"
	"github.com/teemow/bookcal/internal/calendar"
	"github.com/teemow/bookcal/internal/google"
	"github.com/teemow/bookcal/internal/instrumentation"
	"github.com/teemow/bookcal/internal/logging"
	"github.com/teemow/bookcal/internal/resolver"
	"github.com/teemow/bookcal/internal/server"
	"github.com/teemow/bookcal/internal/store"
	"github.com/teemow/bookcal/internal/store/postgres"
)

// Storage and cache backends
const (
	storeTypeMemory   = "memory"
	storeTypePostgres = "postgres"

	cacheTypeMemory = "memory"
	cacheTypeRedis  = "redis"
)

const (
	defaultHTTPAddr       = ":8080"
	defaultReadTimeout    = 15 * time.Second
	defaultWriteTimeout   = 30 * time.Second
	defaultIdleTimeout    = 60 * time.Second
	metricsStartupTimeout = 5 * time.Second
)

// MetricsConfig holds configuration for the metrics server
type MetricsConfig struct {
	// Enabled determines whether to start the metrics server (default: true)
	Enabled bool

	// Addr is the address for the metrics server (e.g., ":9090")
	Addr string
}

// ServeConfig holds everything runServe needs.
type ServeConfig struct {
	Debug     bool
	LogFormat string
	HTTPAddr  string

	GoogleClientID     string
	GoogleClientSecret string

	// StoreType is "memory" or "postgres"
	StoreType   string
	DatabaseURL string

	// CacheType is "memory" or "redis"
	CacheType        string
	RedisURL         string
	IdentityCacheTTL time.Duration

	DefaultTimeZone string
	ScanHorizonDays int
	ReserveSlots    bool

	Metrics MetricsConfig
}

// Validate checks the combination of settings.
func (c *ServeConfig) Validate() error {
	switch c.StoreType {
	case storeTypeMemory:
	case storeTypePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("--database-url (or DATABASE_URL) is required for store type %q", storeTypePostgres)
		}
	default:
		return fmt.Errorf("invalid store type %q: must be %q or %q", c.StoreType, storeTypeMemory, storeTypePostgres)
	}

	switch c.CacheType {
	case cacheTypeMemory:
	case cacheTypeRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("--redis-url (or REDIS_URL) is required for cache type %q", cacheTypeRedis)
		}
	default:
		return fmt.Errorf("invalid cache type %q: must be %q or %q", c.CacheType, cacheTypeMemory, cacheTypeRedis)
	}

	if c.IdentityCacheTTL < 0 {
		return fmt.Errorf("identity cache TTL must not be negative")
	}
	if c.ScanHorizonDays < 0 {
		return fmt.Errorf("scan horizon must not be negative")
	}
	if _, err := availability.ParseZone(c.DefaultTimeZone); err != nil {
		return fmt.Errorf("invalid default time zone: %w", err)
	}
	return nil
}

func newServeCmd() *cobra.Command {
	return serveCommand(&ServeConfig{}, runServe)
}

// serveCommand builds the serve command around cfg. run receives the
// settings after flags, environment variables and validation are applied.
func serveCommand(cfg *ServeConfig, run func(ServeConfig) error) *cobra.Command {
	var envFile string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the availability and booking HTTP API",
		Long: `Start the HTTP API.

Endpoints:
  GET    /availability/days?name_company=[&time_zone=]
  GET    /availability/hours?name_company=&date_select=&time_zone=
  GET    /events?name_company=[&time_min=][&calendar_id=]
  POST   /events?name_company=
  GET    /events/{event_id}?name_company=
  PUT    /events/{event_id}?name_company=
  DELETE /events/{event_id}?name_company=
  GET    /healthz, /readyz, /healthz/detailed

Prometheus metrics are served on a dedicated port (--metrics-addr).

Configuration:
  Every flag can also be set with the environment variable shown in its
  help text. A .env file is loaded first when present (--env-file).

  Google OAuth:
    --google-client-id and --google-client-secret
      OR GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET env vars
      Required to refresh expired access tokens.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := loadEnvFile(envFile, cmd.Flags().Changed("env-file")); err != nil {
				return err
			}
			if err := loadServeEnvVars(cmd, cfg); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return run(*cfg)
		},
	}

	cmd.Flags().StringVar(&envFile, "env-file", ".env", "Path to a .env file loaded before reading environment variables")
	cmd.Flags().BoolVar(&cfg.Debug, "debug", false, "Enable debug logging")
	cmd.Flags().StringVar(&cfg.LogFormat, "log-format", "json", "Log format: json or text. Can also use LOG_FORMAT env var.")
	cmd.Flags().StringVar(&cfg.HTTPAddr, "http-addr", defaultHTTPAddr, "HTTP server address. Can also use HTTP_ADDR env var.")

	cmd.Flags().StringVar(&cfg.GoogleClientID, "google-client-id", "", "Google OAuth Client ID used to refresh access tokens. Can also use GOOGLE_CLIENT_ID env var.")
	cmd.Flags().StringVar(&cfg.GoogleClientSecret, "google-client-secret", "", "Google OAuth Client Secret used to refresh access tokens. Can also use GOOGLE_CLIENT_SECRET env var.")

	cmd.Flags().StringVar(&cfg.StoreType, "store-type", storeTypeMemory, "Document store: memory or postgres. Can also use STORE_TYPE env var.")
	cmd.Flags().StringVar(&cfg.DatabaseURL, "database-url", "", "PostgreSQL connection URL. Can also use DATABASE_URL env var.")

	cmd.Flags().StringVar(&cfg.CacheType, "cache-type", cacheTypeMemory, "Identity cache: memory or redis. Can also use CACHE_TYPE env var.")
	cmd.Flags().StringVar(&cfg.RedisURL, "redis-url", "", "Redis URL (e.g., redis://localhost:6379/0). Can also use REDIS_URL env var.")
	cmd.Flags().DurationVar(&cfg.IdentityCacheTTL, "identity-cache-ttl", resolver.DefaultCacheTTL, "How long resolved identities are cached. Can also use IDENTITY_CACHE_TTL env var.")

	cmd.Flags().StringVar(&cfg.DefaultTimeZone, "default-time-zone", availability.DefaultTimeZone, "Zone used when a request does not name one. Can also use DEFAULT_TIME_ZONE env var.")
	cmd.Flags().IntVar(&cfg.ScanHorizonDays, "scan-horizon-days", availability.DefaultHorizonDays, "Maximum number of days scanned for available days. Can also use SCAN_HORIZON_DAYS env var.")
	cmd.Flags().BoolVar(&cfg.ReserveSlots, "reserve-slots", false, "Reserve a slot in the store before creating its event, rejecting double bookings. Can also use RESERVE_SLOTS env var.")

	cmd.Flags().BoolVar(&cfg.Metrics.Enabled, "metrics-enabled", true, "Enable the metrics server on a dedicated port. Can also use METRICS_ENABLED env var.")
	cmd.Flags().StringVar(&cfg.Metrics.Addr, "metrics-addr", server.DefaultMetricsAddr, "Metrics server address. Can also use METRICS_ADDR env var.")

	return cmd
}

// loadEnvFile loads a .env file without overriding variables already set.
// A missing default file is not an error.
func loadEnvFile(path string, explicit bool) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

// loadServeEnvVars applies environment variables to settings whose flag was
// not explicitly set.
func loadServeEnvVars(cmd *cobra.Command, cfg *ServeConfig) error {
	flags := cmd.Flags()
	str := func(flag, env string, dst *string) {
		if !flags.Changed(flag) {
			if v := os.Getenv(env); v != "" {
				*dst = v
			}
		}
	}
	boolean := func(flag, env string, dst *bool) error {
		if flags.Changed(flag) {
			return nil
		}
		v := os.Getenv(env)
		if v == "" {
			return nil
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", env, v, err)
		}
		*dst = b
		return nil
	}

	str("log-format", "LOG_FORMAT", &cfg.LogFormat)
	str("http-addr", "HTTP_ADDR", &cfg.HTTPAddr)
	str("google-client-id", "GOOGLE_CLIENT_ID", &cfg.GoogleClientID)
	str("google-client-secret", "GOOGLE_CLIENT_SECRET", &cfg.GoogleClientSecret)
	str("store-type", "STORE_TYPE", &cfg.StoreType)
	str("database-url", "DATABASE_URL", &cfg.DatabaseURL)
	str("cache-type", "CACHE_TYPE", &cfg.CacheType)
	str("redis-url", "REDIS_URL", &cfg.RedisURL)
	str("default-time-zone", "DEFAULT_TIME_ZONE", &cfg.DefaultTimeZone)
	str("metrics-addr", "METRICS_ADDR", &cfg.Metrics.Addr)

	if !flags.Changed("identity-cache-ttl") {
		if v := os.Getenv("IDENTITY_CACHE_TTL"); v != "" {
			ttl, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("invalid IDENTITY_CACHE_TTL %q: %w", v, err)
			}
			cfg.IdentityCacheTTL = ttl
		}
	}
	if !flags.Changed("scan-horizon-days") {
		if v := os.Getenv("SCAN_HORIZON_DAYS"); v != "" {
			days, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid SCAN_HORIZON_DAYS %q: %w", v, err)
			}
			cfg.ScanHorizonDays = days
		}
	}
	if err := boolean("reserve-slots", "RESERVE_SLOTS", &cfg.ReserveSlots); err != nil {
		return err
	}
	return boolean("metrics-enabled", "METRICS_ENABLED", &cfg.Metrics.Enabled)
}

func runServe(cfg ServeConfig) error {
	// Setup graceful shutdown
	shutdownCtx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger := logging.New(os.Stderr, cfg.LogFormat, cfg.Debug)
	slog.SetDefault(logger)

	// Initialize instrumentation provider
	instrConfig := instrumentation.DefaultConfig()
	instrConfig.ServiceVersion = version

	provider, err := instrumentation.NewProvider(shutdownCtx, instrConfig)
	if err != nil {
		return fmt.Errorf("failed to create instrumentation provider: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), server.DefaultShutdownTimeout)
		defer cancel()
		if err := provider.Shutdown(ctx); err != nil {
			logger.Error("error during instrumentation shutdown", logging.Err(err))
		}
	}()
	metrics := provider.Metrics()

	var metricsServer *server.MetricsServer
	if cfg.Metrics.Enabled && provider.Enabled() {
		metricsServer, err = startMetricsServer(cfg.Metrics, provider, logger)
		if err != nil {
			return err
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), server.DefaultShutdownTimeout)
			defer cancel()
			if err := metricsServer.Shutdown(ctx); err != nil {
				logger.Error("error shutting down metrics server", logging.Err(err))
			}
		}()
	}

	st, err := openStore(shutdownCtx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	cache, checks, closeCache, err := newIdentityCache(cfg, logger)
	if err != nil {
		return err
	}
	defer closeCache()
	checks["store"] = st

	zone, err := availability.ParseZone(cfg.DefaultTimeZone)
	if err != nil {
		return err
	}

	res := resolver.New(st, st, cache, logger)
	adapter := logging.NewSlogAdapter(logger)
	lookup := appointments.NewLookup(st, adapter.With("component", "appointments"))
	engine := availability.New(res, lookup, availability.Options{
		DefaultZone: zone,
		HorizonDays: cfg.ScanHorizonDays,
		Logger:      adapter.With("component", "availability"),
		Metrics:     metrics,
	})

	if cfg.GoogleClientID == "" || cfg.GoogleClientSecret == "" {
		logger.Warn("google OAuth client not configured, expired access tokens cannot be refreshed")
	}
	tokens := google.NewStoreTokenProvider(google.NewOAuthConfig(cfg.GoogleClientID, cfg.GoogleClientSecret), res, st,
		google.TokenProviderOptions{Logger: logger, Metrics: metrics})

	gatewayOpts := calendar.GatewayOptions{
		TimeZone: zone,
		Logger:   logger,
		Metrics:  metrics,
		Audit:    instrumentation.NewAuditLogger(logger, instrConfig.AuditLogging),
	}
	if cfg.ReserveSlots {
		if cfg.StoreType == storeTypeMemory {
			logger.Warn("slot reservations with the memory store only protect a single instance")
		}
		gatewayOpts.Reservations = st
	}
	gateway := calendar.NewGateway(tokens, res, lookup, gatewayOpts)

	health := server.NewHealthChecker(checks)
	handler := server.NewHandler(server.HandlerConfig{
		API:     server.NewAPI(engine, gateway, validator.New(validator.WithRequiredStructEnabled()), logger),
		Health:  health,
		Metrics: metrics,
		Logger:  logger,
	})

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: defaultReadTimeout,
		WriteTimeout:      defaultWriteTimeout,
		IdleTimeout:       defaultIdleTimeout,
	}

	logger.Info("http server starting",
		"addr", cfg.HTTPAddr,
		"store", cfg.StoreType,
		"cache", cfg.CacheType,
		"default_time_zone", zone.String(),
		"reserve_slots", cfg.ReserveSlots)

	serverDone := make(chan error, 1)
	go func() {
		defer close(serverDone)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverDone <- err
		}
	}()

	select {
	case <-shutdownCtx.Done():
		logger.Info("shutdown signal received, stopping HTTP server")
		health.MarkShuttingDown()
		ctx, cancel := context.WithTimeout(context.Background(), server.DefaultShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(ctx); err != nil {
			return fmt.Errorf("error shutting down HTTP server: %w", err)
		}
	case err := <-serverDone:
		if err != nil {
			return fmt.Errorf("HTTP server stopped with error: %w", err)
		}
	}

	logger.Info("http server stopped")
	return nil
}

func startMetricsServer(cfg MetricsConfig, provider *instrumentation.Provider, logger *slog.Logger) (*server.MetricsServer, error) {
	metricsServer, err := server.NewMetricsServer(server.MetricsServerConfig{
		Addr:                    cfg.Addr,
		Enabled:                 true,
		InstrumentationProvider: provider,
		Logger:                  logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics server: %w", err)
	}

	// Use ready channel to confirm metrics server started successfully
	metricsReady := make(chan struct{})
	metricsErr := make(chan error, 1)
	go func() {
		if err := metricsServer.StartWithReadySignal(metricsReady); err != nil && !errors.Is(err, http.ErrServerClosed) {
			metricsErr <- err
		}
		close(metricsErr)
	}()

	select {
	case <-metricsReady:
		return metricsServer, nil
	case err := <-metricsErr:
		return nil, fmt.Errorf("metrics server failed to start: %w", err)
	case <-time.After(metricsStartupTimeout):
		return nil, fmt.Errorf("metrics server startup timed out")
	}
}

// openStore opens the configured document store.
func openStore(ctx context.Context, cfg ServeConfig) (store.Store, error) {
	switch cfg.StoreType {
	case storeTypeMemory:
		slog.Warn("using in-memory store, data is lost on restart")
		return store.NewMemory(), nil
	case storeTypePostgres:
		pg, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres store: %w", err)
		}
		return bootstrapStore(ctx, pg)
	default:
		return nil, fmt.Errorf("invalid store type %q", cfg.StoreType)
	}
}

// schemaStore is a store that creates its own schema.
type schemaStore interface {
	store.Store
	EnsureSchema(ctx context.Context) error
}

// bootstrapStore creates st's schema, closing st when that fails.
func bootstrapStore(ctx context.Context, st schemaStore) (store.Store, error) {
	if err := st.EnsureSchema(ctx); err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to bootstrap postgres schema: %w", err)
	}
	return st, nil
}

// redisPinger adapts a redis client to server.Pinger.
type redisPinger struct {
	client *redis.Client
}

func (p redisPinger) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

// newIdentityCache builds the identity cache and the readiness checks it
// adds. The returned close function is always non-nil.
func newIdentityCache(cfg ServeConfig, logger *slog.Logger) (resolver.Cache, map[string]server.Pinger, func(), error) {
	checks := map[string]server.Pinger{}
	switch cfg.CacheType {
	case cacheTypeMemory:
		return resolver.NewMemoryCache(cfg.IdentityCacheTTL), checks, func() {}, nil
	case cacheTypeRedis:
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("invalid redis URL: %w", err)
		}
		client := redis.NewClient(opts)
		checks["cache"] = redisPinger{client: client}
		closeFn := func() {
			if err := client.Close(); err != nil {
				logger.Warn("failed to close redis client", logging.Err(err))
			}
		}
		return resolver.NewRedisCache(client, cfg.IdentityCacheTTL, "", logger), checks, closeFn, nil
	default:
		return nil, nil, nil, fmt.Errorf("invalid cache type %q", cfg.CacheType)
	}
}
