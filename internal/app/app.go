// Package app wires configuration, storage, the coupon service and the HTTP
// server together.
package app

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/xenking/coupon-selector/internal/domain/coupon"
	"github.com/xenking/coupon-selector/internal/handler"
	"github.com/xenking/coupon-selector/internal/storage/memory"
	"github.com/xenking/coupon-selector/internal/storage/postgres"
	"github.com/xenking/coupon-selector/internal/storage/redis"
	"github.com/xenking/coupon-selector/pkg/health"
	"github.com/xenking/coupon-selector/pkg/httpmiddleware"
)

const (
	serviceName = "coupon-api"
	livePath    = "/livez"
	readyPath   = "/readyz"
)

// Storage is the catalog and usage ledger selected by configuration, plus
// the readiness checks and closers of the backing connections.
type Storage struct {
	Catalog coupon.Catalog
	Ledger  coupon.Ledger

	checks  map[string]health.CheckFunc
	closers []io.Closer
}

// Close releases every backing connection.
func (s *Storage) Close() error {
	var err error
	for i := len(s.closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, s.closers[i].Close())
	}
	return err
}

type closerFunc func()

func (f closerFunc) Close() error {
	f()
	return nil
}

// OpenStorage connects the catalog and the usage ledger chosen in cfg.
func OpenStorage(ctx context.Context, lg *zap.Logger, cfg *Config) (_ *Storage, rerr error) {
	s := &Storage{checks: map[string]health.CheckFunc{}}
	defer func() {
		if rerr != nil {
			_ = s.Close()
		}
	}()

	switch cfg.Storage.Driver {
	case DriverMemory:
		store := memory.NewStore()
		s.Catalog = store
		if cfg.UsageDriver() == DriverMemory {
			s.Ledger = store
		}
	case DriverPostgres:
		pool, err := postgres.NewPool(ctx, cfg.Storage.DatabaseURL)
		if err != nil {
			return nil, errors.Wrap(err, "create db pool")
		}
		s.closers = append(s.closers, closerFunc(pool.Close))
		s.checks["postgres"] = health.PingCheck(pool)

		if err := postgres.RunMigrations(ctx, pool); err != nil {
			return nil, errors.Wrap(err, "run migrations")
		}
		s.Catalog = postgres.NewCouponRepository(pool, lg.Named("catalog"))

		switch cfg.UsageDriver() {
		case DriverPostgres:
			s.Ledger = postgres.NewUsageRepository(pool)
		case DriverMemory:
			s.Ledger = memory.NewStore()
		}
	default:
		return nil, errors.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}

	if cfg.UsageDriver() == DriverRedis {
		ledger, err := redis.Connect(ctx, redis.Options{
			Addr:     cfg.Usage.RedisAddr,
			Password: cfg.Usage.RedisPassword,
			DB:       cfg.Usage.RedisDB,
		})
		if err != nil {
			return nil, errors.Wrap(err, "connect redis")
		}
		s.closers = append(s.closers, ledger)
		s.checks["redis"] = health.PingCheck(ledger)
		s.Ledger = ledger
	}

	if s.Ledger == nil {
		return nil, errors.Errorf("unsupported usage driver %q with storage %q", cfg.UsageDriver(), cfg.Storage.Driver)
	}

	lg.Info("Storage ready",
		zap.String("catalog", cfg.Storage.Driver),
		zap.String("usage", cfg.UsageDriver()),
	)
	return s, nil
}

// NewHandler builds the full HTTP stack: API routes, health probes,
// middlewares and OpenTelemetry instrumentation.
func NewHandler(
	ctx context.Context,
	lg *zap.Logger,
	tp trace.TracerProvider,
	mp metric.MeterProvider,
	cfg *Config,
	svc *coupon.Service,
	healthSvc *health.Health,
) (http.Handler, error) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+livePath, healthSvc.LiveEndpoint)
	mux.HandleFunc("GET "+readyPath, healthSvc.ReadyEndpoint)
	handler.New(svc).Register(mux)

	instrument, err := httpmiddleware.Instrument(mp.Meter(serviceName))
	if err != nil {
		return nil, errors.Wrap(err, "create http instruments")
	}

	h := httpmiddleware.Wrap(mux,
		httpmiddleware.Recovery(),
		httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
			Max:    cfg.RateLimit.Max,
			Window: cfg.RateLimit.Window,
			Skip:   httpmiddleware.SkipPaths(livePath, readyPath),
		}),
		httpmiddleware.RequestID(),
		httpmiddleware.InjectLogger(lg),
		httpmiddleware.LogRequests(),
		instrument,
	)
	return otelhttp.NewHandler(h, serviceName,
		otelhttp.WithTracerProvider(tp),
		otelhttp.WithMeterProvider(mp),
	), nil
}

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	storage, err := OpenStorage(ctx, lg, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := storage.Close(); err != nil {
			lg.Warn("Close storage", zap.Error(err))
		}
	}()

	healthSvc := health.New()
	for name, check := range storage.checks {
		healthSvc.AddReadinessCheck(name, 5*time.Second, check)
	}
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	svc, err := coupon.NewService(coupon.ServiceConfig{
		TracerProvider: m.TracerProvider(),
		MeterProvider:  m.MeterProvider(),
	}, storage.Catalog, storage.Ledger, lg.Named("coupon"))
	if err != nil {
		return errors.Wrap(err, "create coupon service")
	}

	h, err := NewHandler(ctx, zctx.From(ctx), m.TracerProvider(), m.MeterProvider(), cfg, svc, healthSvc)
	if err != nil {
		return err
	}

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler:           h,
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}
