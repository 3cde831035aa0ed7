package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"github.com/genialityco/gen-live-web-sub000/internal/audit"
	"github.com/genialityco/gen-live-web-sub000/internal/form/schema"
	"github.com/genialityco/gen-live-web-sub000/internal/identity/backend"
	"github.com/genialityco/gen-live-web-sub000/internal/identity/local"
	identitymetrics "github.com/genialityco/gen-live-web-sub000/internal/identity/metrics"
	"github.com/genialityco/gen-live-web-sub000/internal/identity/ports"
	identitystore "github.com/genialityco/gen-live-web-sub000/internal/identity/store"
	"github.com/genialityco/gen-live-web-sub000/internal/platform/config"
	"github.com/genialityco/gen-live-web-sub000/internal/platform/httpserver"
	"github.com/genialityco/gen-live-web-sub000/internal/platform/logger"
	"github.com/genialityco/gen-live-web-sub000/internal/platform/metrics"
	"github.com/genialityco/gen-live-web-sub000/internal/platform/middleware"
	"github.com/genialityco/gen-live-web-sub000/internal/platform/redis"
	"github.com/genialityco/gen-live-web-sub000/internal/registration/handler"
	registrationmetrics "github.com/genialityco/gen-live-web-sub000/internal/registration/metrics"
	"github.com/genialityco/gen-live-web-sub000/internal/registration/service"
	"github.com/genialityco/gen-live-web-sub000/internal/session"
	sessionmetrics "github.com/genialityco/gen-live-web-sub000/internal/session/metrics"
	"github.com/genialityco/gen-live-web-sub000/internal/session/provider"
	sessionstore "github.com/genialityco/gen-live-web-sub000/internal/session/store"
	"github.com/genialityco/gen-live-web-sub000/pkg/platform/circuit"
	"github.com/genialityco/gen-live-web-sub000/pkg/platform/middleware/device"
	"github.com/genialityco/gen-live-web-sub000/pkg/platform/tx"
)

const shutdownTimeout = 10 * time.Second

// main wires dependencies, serves the registration API, and drains background
// workers on SIGINT or SIGTERM. Business logic lives in internal packages.
func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Environment, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
}

type infra struct {
	db    *sql.DB
	redis *redis.Client
}

func (i infra) close(log *slog.Logger) {
	if i.redis != nil {
		if err := i.redis.Close(); err != nil {
			log.Warn("failed to close redis", "error", err)
		}
	}
	if i.db != nil {
		if err := i.db.Close(); err != nil {
			log.Warn("failed to close postgres", "error", err)
		}
	}
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	deps, err := openInfra(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer deps.close(log)

	forms, registrationBackend, err := buildBackend(cfg, deps, log)
	if err != nil {
		return err
	}

	sessions := sessionstore.Store(sessionstore.NewInMemory())
	if deps.redis != nil {
		sessions = sessionstore.NewRedis(deps.redis.Client, sessionstore.WithDefaultTTL(cfg.Session.TTL))
	}
	binder := session.NewBinder(sessions,
		provider.NewJWTProvider(cfg.Session.SigningKey, cfg.Session.Issuer, cfg.Session.TTL),
		session.WithLogger(log),
		session.WithMetrics(sessionmetrics.New()),
	)

	auditStore := audit.Store(audit.NewInMemoryStore())
	if deps.db != nil {
		auditStore = audit.NewPostgresStore(deps.db)
	}
	publisher := audit.NewPublisher(auditStore,
		audit.WithLogger(log),
		audit.WithMetrics(audit.NewMetrics()),
	)

	visits := service.New(forms, registrationBackend, binder,
		service.WithLogger(log),
		service.WithMetrics(registrationmetrics.New()),
		service.WithAuditPublisher(publisher),
		service.WithDebounceWindow(cfg.Flow.DebounceWindow),
		service.WithVisitTTL(cfg.Flow.VisitTTL),
	)
	defer visits.Shutdown()

	httpMetrics := metrics.New()
	var limiter *middleware.RateLimiter
	if cfg.Flow.VerifyPerMinute > 0 {
		limiter = middleware.NewRateLimiter(cfg.Flow.VerifyPerMinute, cfg.Flow.VerifyBurst,
			middleware.WithRateLimitMetrics(httpMetrics),
			middleware.WithRateLimitLogger(log),
		)
	}

	router := chi.NewRouter()
	router.Get("/health", httpserver.Health(healthChecks(deps)))
	router.Handle("/metrics", promhttp.Handler())
	handler.New(visits, log, httpMetrics, limiter, device.Config{Secure: cfg.CookiesSecure()}).Register(router)

	srv := httpserver.New(cfg.Addr, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return ignoreCancel(publisher.Run(gctx))
	})
	g.Go(func() error {
		return ignoreCancel(visits.RunJanitor(gctx, cfg.Flow.JanitorInterval))
	})
	if limiter != nil {
		g.Go(func() error {
			limiter.Run(gctx)
			return nil
		})
	}
	g.Go(func() error {
		log.Info("starting registration server", "addr", cfg.Addr, "environment", cfg.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func openInfra(ctx context.Context, cfg config.Config, log *slog.Logger) (infra, error) {
	var deps infra
	if cfg.Postgres.DSN != "" {
		db, err := sql.Open("postgres", cfg.Postgres.DSN)
		if err != nil {
			return infra{}, err
		}
		db.SetMaxOpenConns(cfg.Postgres.MaxOpenConns)
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return infra{}, err
		}
		if cfg.Postgres.Migrate {
			if err := identitystore.Migrate(ctx, db); err != nil {
				_ = db.Close()
				return infra{}, err
			}
			if err := audit.Migrate(ctx, db); err != nil {
				_ = db.Close()
				return infra{}, err
			}
		}
		deps.db = db
		log.Info("postgres connected")
	}

	rc, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		deps.close(log)
		return infra{}, err
	}
	if rc != nil {
		deps.redis = rc
		log.Info("redis connected")
	}
	return deps, nil
}

// buildBackend selects the remote backend when a URL is configured and the
// in-process backend otherwise.
func buildBackend(cfg config.Config, deps infra, log *slog.Logger) (service.FormSource, ports.Backend, error) {
	if cfg.Backend.URL != "" {
		client, err := backend.New(cfg.Backend.URL,
			backend.WithHTTPClient(&http.Client{Timeout: cfg.Backend.Timeout}),
			backend.WithTokenSource(backend.StaticToken(cfg.Backend.Token)),
			backend.WithBreaker(circuit.New("registration-backend",
				circuit.WithFailureThreshold(cfg.Backend.FailureThreshold),
				circuit.WithSuccessThreshold(cfg.Backend.SuccessThreshold),
				circuit.WithCooldown(cfg.Backend.Cooldown),
			)),
			backend.WithMetrics(identitymetrics.New()),
			backend.WithTracerProvider(otel.GetTracerProvider()),
			backend.WithLogger(log),
		)
		if err != nil {
			return nil, nil, err
		}
		log.Info("using remote registration backend", "url", cfg.Backend.URL)
		return schema.NewRemote(client, schema.WithRemoteLogger(log)), client, nil
	}

	loader, err := schema.NewLoader(cfg.Forms.Dir, schema.WithLogger(log))
	if err != nil {
		return nil, nil, err
	}
	var (
		attendees  identitystore.AttendeeStore  = identitystore.NewInMemoryAttendeeStore()
		eventUsers identitystore.EventUserStore = identitystore.NewInMemoryEventUserStore()
		transactor tx.Transactor                = tx.None{}
	)
	if deps.db != nil {
		attendees = identitystore.NewPostgresAttendeeStore(deps.db)
		eventUsers = identitystore.NewPostgresEventUserStore(deps.db)
		transactor = tx.NewPostgres(deps.db)
	}
	log.Info("using local registration backend", "forms_dir", cfg.Forms.Dir, "postgres", deps.db != nil)
	return loader, local.New(attendees, eventUsers, local.WithLogger(log), local.WithTransactor(transactor)), nil
}

func healthChecks(deps infra) map[string]httpserver.Check {
	checks := map[string]httpserver.Check{}
	if deps.db != nil {
		checks["postgres"] = deps.db.PingContext
	}
	if deps.redis != nil {
		checks["redis"] = deps.redis.Health
	}
	return checks
}

func ignoreCancel(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
