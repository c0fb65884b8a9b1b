package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"

	"github.com/shopspring/decimal"

	jsonfileAdapter "cyberlevels/adapters/jsonfile"
	mem "cyberlevels/adapters/memory"
	"cyberlevels/analytics"
	redisAdapter "cyberlevels/adapters/redis"
	sqlxAdapter "cyberlevels/adapters/sqlx"
	"cyberlevels/api/httpapi"
	"cyberlevels/config"
	"cyberlevels/engine"
	"cyberlevels/integrations/webhook"
	"cyberlevels/levels"
	"cyberlevels/numeric"
	"cyberlevels/realtime"
)

// App aggregates the assembled server components.
type App struct {
	Config    *config.Config
	Logger    *slog.Logger
	Bus       *engine.EventBus
	Hub       *realtime.Hub
	Webhook   *webhook.Sink
	Analytics *analytics.Service
	Service   engine.API
	Handler   http.Handler
	Server    *http.Server
}

func provideConfig(ctx context.Context) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if cfg.Environment == config.EnvProduction {
		if err := cfg.LoadSecretsFromEnv(ctx); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func provideLogger(cfg *config.Config) *slog.Logger {
	return setupLogging(cfg)
}

func provideBus(log *slog.Logger) *engine.EventBus {
	return engine.NewEventBus(engine.DispatchAsync, log)
}

// provideHub creates the websocket fan-out hub and streams every bus event
// through it.
func provideHub(bus *engine.EventBus) *realtime.Hub {
	hub := realtime.NewHub()
	hub.AttachBus(bus)
	return hub
}

// provideWebhook attaches the configured endpoints to the bus. Returns nil
// when no endpoints are configured.
func provideWebhook(cfg *config.Config, bus *engine.EventBus, log *slog.Logger) *webhook.Sink {
	if len(cfg.Webhooks.Endpoints) == 0 {
		return nil
	}
	sink := webhook.New(cfg.Webhooks.Endpoints, webhook.WithLogger(log))
	sink.Attach(bus)
	return sink
}

// provideAnalytics starts the KPI pipeline when enabled. Returns nil when
// analytics is off.
func provideAnalytics(ctx context.Context, cfg *config.Config, bus *engine.EventBus, log *slog.Logger) *analytics.Service {
	if !cfg.Analytics.Enabled {
		return nil
	}
	opts := []analytics.ServiceOption{analytics.WithServiceLogger(log)}
	if cfg.Analytics.ExportInterval > 0 {
		opts = append(opts, analytics.WithExportInterval(cfg.Analytics.ExportInterval))
	}
	if cfg.Analytics.ExportURL != "" {
		opts = append(opts, analytics.WithExporters(
			analytics.NewHTTPExporter(cfg.Analytics.ExportURL, cfg.Analytics.ExportAPIKey, 10),
		))
	}
	svc := analytics.NewService(opts...)
	svc.Attach(bus)
	svc.Start(ctx)
	return svc
}

func provideStorage(ctx context.Context, cfg *config.Config) (engine.Storage, error) {
	return setupStorage(ctx, cfg)
}

func provideService(cfg *config.Config, storage engine.Storage, bus *engine.EventBus, log *slog.Logger) (engine.API, error) {
	return setupService(cfg, storage, bus, log)
}

func provideHandler(svc engine.API, hub *realtime.Hub, cfg *config.Config) http.Handler {
	return httpapi.NewMux(svc, hub, httpapi.Options{
		PathPrefix:       cfg.Server.PathPrefix,
		AllowCORSOrigin:  cfg.Server.CORSOrigin,
		APIKeys:          cfg.Security.APIKeys,
		RateLimitEnabled: cfg.Security.EnableRateLimit,
		RateLimitRPM:     cfg.Security.RateLimit.RequestsPerMinute,
		RateLimitBurst:   cfg.Security.RateLimit.BurstSize,
	})
}

func provideServer(cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           handler,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}
}

// levelingOptions maps the leveling section of the config onto the registry
// options shared by both numeric policies.
func levelingOptions(cfg *config.Config) (levels.Options, error) {
	opts := levels.DefaultOptions()
	l := cfg.Leveling

	opts.StartLevel = l.StartLevel
	opts.StartExp = l.StartExp
	opts.MaxLevel = l.MaxLevel
	opts.Formula = l.Formula
	opts.RoundingEnabled = l.RoundingEnabled
	opts.RoundingDigits = l.RoundingDigits
	opts.PreventDuplicateRewards = l.PreventDuplicateRewards
	opts.AddLevelRewards = l.AddLevelRewards
	opts.StackComboExp = l.StackComboExp
	if l.ComboWindow > 0 {
		opts.ComboWindow = l.ComboWindow
	}
	if l.ProgressBar.Bar != "" {
		opts.Progress = levels.ProgressStyle{
			Bar:        l.ProgressBar.Bar,
			Complete:   l.ProgressBar.Complete,
			Incomplete: l.ProgressBar.Incomplete,
			End:        l.ProgressBar.End,
		}
	}

	if len(l.CustomFormulas) > 0 {
		opts.CustomFormulas = make(map[int64]string, len(l.CustomFormulas))
		for key, expr := range l.CustomFormulas {
			lvl, err := strconv.ParseInt(key, 10, 64)
			if err != nil {
				return opts, fmt.Errorf("custom formula key %q: %w", key, err)
			}
			opts.CustomFormulas[lvl] = expr
		}
	}

	return opts, nil
}

// setupService instantiates the progression service for the configured
// numeric policy.
func setupService(cfg *config.Config, storage engine.Storage, bus *engine.EventBus, log *slog.Logger) (engine.API, error) {
	opts, err := levelingOptions(cfg)
	if err != nil {
		return nil, err
	}

	svcOpts := engine.Options{
		Bus:      bus,
		Logger:   log,
		AutoSave: cfg.Leveling.AutoSave,
	}

	switch cfg.Leveling.Policy {
	case "decimal":
		system, err := levels.NewSystem[decimal.Decimal](numeric.Decimal{}, opts)
		if err != nil {
			return nil, fmt.Errorf("invalid leveling options: %w", err)
		}
		return engine.NewService(system, storage, svcOpts), nil
	default:
		system, err := levels.NewSystem[float64](numeric.Float64{}, opts)
		if err != nil {
			return nil, fmt.Errorf("invalid leveling options: %w", err)
		}
		return engine.NewService(system, storage, svcOpts), nil
	}
}

// setupLogging configures the logger based on configuration.
func setupLogging(cfg *config.Config) *slog.Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Logging.Level),
	}

	switch cfg.Logging.Format {
	case "text":
		handler = slog.NewTextHandler(os.Stdout, opts)
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, opts)
	default:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	if len(cfg.Logging.Attributes) > 0 {
		handler = handler.WithAttrs(convertAttributes(cfg.Logging.Attributes))
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// parseLogLevel converts string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// convertAttributes converts map[string]string to []slog.Attr.
func convertAttributes(attrs map[string]string) []slog.Attr {
	var result []slog.Attr
	for k, v := range attrs {
		result = append(result, slog.String(k, v))
	}
	return result
}

// setupStorage creates the appropriate storage adapter based on configuration.
func setupStorage(ctx context.Context, cfg *config.Config) (engine.Storage, error) {
	switch cfg.Storage.Adapter {
	case "memory":
		return mem.New(), nil
	case "redis":
		return redisAdapter.New(cfg.Storage.Redis)
	case "sql":
		store, err := sqlxAdapter.New(cfg.Storage.SQL)
		if err != nil {
			return nil, err
		}
		if err := store.Migrate(ctx); err != nil {
			return nil, fmt.Errorf("failed to migrate schema: %w", err)
		}
		return store, nil
	case "file":
		return jsonfileAdapter.New(cfg.Storage.File.Path)
	default:
		return nil, fmt.Errorf("unknown storage adapter: %s", cfg.Storage.Adapter)
	}
}
