// Copyright 2026 The ClaimDesk Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/claimdesk/claimdesk/internal/access"
	"github.com/claimdesk/claimdesk/internal/apikey"
	"github.com/claimdesk/claimdesk/internal/audit"
	"github.com/claimdesk/claimdesk/internal/authn"
	"github.com/claimdesk/claimdesk/internal/authz"
	"github.com/claimdesk/claimdesk/internal/billing"
	"github.com/claimdesk/claimdesk/internal/claim"
	"github.com/claimdesk/claimdesk/internal/config"
	"github.com/claimdesk/claimdesk/internal/identity"
	"github.com/claimdesk/claimdesk/internal/observability/logger"
	"github.com/claimdesk/claimdesk/internal/observability/metrics"
	"github.com/claimdesk/claimdesk/internal/observability/tracing"
	"github.com/claimdesk/claimdesk/internal/ratelimit"
	"github.com/claimdesk/claimdesk/internal/session"
	"github.com/claimdesk/claimdesk/internal/store/postgres"
	"github.com/claimdesk/claimdesk/internal/tenant"
	transportHTTP "github.com/claimdesk/claimdesk/internal/transport/http"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger.InitLogger(logger.Config{
		Level:       cfg.Observability.LogLevel,
		Format:      cfg.Observability.LogFormat,
		ServiceName: cfg.Observability.ServiceName,
		OTELEnabled: cfg.Observability.OTELEnabled,
	})

	if len(os.Args) > 1 {
		var cmdErr error
		switch os.Args[1] {
		case "migrate":
			cmdErr = runMigrate(cfg)
		case "bootstrap":
			cmdErr = runBootstrap(cfg)
		default:
			cmdErr = fmt.Errorf("unknown command %q", os.Args[1])
		}
		if cmdErr != nil {
			slog.Error("command failed", logger.Operation(os.Args[1]), logger.Error(cmdErr))
			os.Exit(1)
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("server exited with error", logger.Error(err))
		os.Exit(1)
	}
	slog.Info("server stopped")
}

func run(ctx context.Context, cfg *config.Config) error {
	slog.Info("starting claimdesk", logger.String("version", cfg.Observability.ServiceVersion))

	tracer, err := tracing.New(ctx, tracing.Config{
		Enabled:        cfg.Observability.OTELEnabled,
		ServiceName:    cfg.Observability.ServiceName,
		ServiceVersion: cfg.Observability.ServiceVersion,
		SamplingRate:   1.0,
	})
	if err != nil {
		slog.Error("failed to initialize tracer, continuing without tracing", logger.Error(err))
		tracer = tracing.Noop()
	}

	meter, err := metrics.New(ctx, metrics.Config{Enabled: cfg.Observability.OTELEnabled}, cfg.Observability.ServiceName)
	if err != nil {
		return fmt.Errorf("failed to initialize meter: %w", err)
	}
	instruments, err := metrics.NewInstruments(meter)
	if err != nil {
		return fmt.Errorf("failed to create instruments: %w", err)
	}
	var httpMetrics *metrics.HTTPMetrics
	if cfg.Observability.MetricsEnabled {
		httpMetrics = metrics.NewHTTPMetrics("claimdesk")
	}

	db, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	slog.Info("connected to database")

	health := map[string]transportHTTP.PingFunc{"postgres": db.Ping}

	// Without Redis each replica counts its own window.
	var counter ratelimit.Counter = ratelimit.NewMemoryCounter()
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		counter = ratelimit.NewRedisCounter(rdb)
		health["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
		slog.Info("rate limiter using redis", logger.String("addr", cfg.Redis.Addr))
	}

	// Repositories
	tenantRepo := postgres.NewTenantRepository(db)
	memberRepo := postgres.NewMembershipRepository(db)
	userRepo := postgres.NewUserRepository(db)
	keyRepo := postgres.NewAPIKeyRepository(db)
	subscriptionRepo := postgres.NewSubscriptionRepository(db)
	usage := postgres.NewUsageCounter(db)
	claimRepo := postgres.NewClaimRepository(db)
	auditRepo := postgres.NewAuditRepository(db)

	// Services
	users := newIdentityService(cfg, userRepo)
	issuer := session.NewIssuer(cfg.Session.JWTSecret, cfg.Session.Issuer, cfg.Session.TokenTTL)
	billingService := billing.NewService(subscriptionRepo, usage, billing.DefaultCatalog())
	gate := billing.NewGate(billingService, usage)
	tenants := tenant.NewService(tenantRepo, memberRepo, billingService)
	toucher := apikey.NewToucher(keyRepo, 256, instruments)
	keys := apikey.NewService(keyRepo, toucher)
	claims := claim.NewService(claimRepo, gate, tenants, claim.NewLogNotifier(nil))
	limiter := ratelimit.NewLimiter(counter, cfg.RateLimit.Window, cfg.RateLimit.MaxRequests, instruments)
	recorder := audit.NewRecorder(auditRepo, audit.Options{
		QueueSize:    cfg.Audit.QueueSize,
		Workers:      cfg.Audit.Workers,
		WriteTimeout: cfg.Audit.WriteTimeout,
	}, instruments)
	security := logger.NewSecurityLogger(slog.Default())

	bootstrap := identity.NewBootstrapService(users, tenants, bootstrapOptions(cfg))
	if err := bootstrap.Bootstrap(ctx); err != nil {
		slog.Error("bootstrap failed", logger.Error(err))
	}

	pipeline := access.NewPipeline(access.Deps{
		Credentials: authn.NewResolver(keys, issuer),
		Tenants:     tenant.NewResolver(tenantRepo),
		Authorizer:  authz.NewAuthorizer(tenants),
		Limiter:     limiter,
		Gate:        gate,
		Tracer:      tracer,
		Instruments: instruments,
		Security:    security,
	}, access.Config{
		DefaultLocale: cfg.Tenant.DefaultLocale,
		UpgradeURL:    cfg.Billing.UpgradeURL,
		PlanAware:     cfg.RateLimit.PlanAware,
	})

	handler := transportHTTP.NewHandler(transportHTTP.Deps{
		Pipeline:    pipeline,
		Limiter:     limiter,
		Users:       users,
		Issuer:      issuer,
		Tenants:     tenants,
		Billing:     billingService,
		Keys:        keys,
		Claims:      claims,
		Recorder:    recorder,
		AuditLog:    auditRepo,
		Security:    security,
		HTTPMetrics: httpMetrics,
		Health:      health,
	}, transportHTTP.Config{
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		RequestTimeout: cfg.Server.WriteTimeout,
		LoginRPS:       cfg.Security.LoginRPS,
		LoginBurst:     cfg.Security.LoginBurst,
	})

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      transportHTTP.NewRouter(handler),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("listening", logger.Component("server"), logger.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error { return toucher.Run(gctx) })
	g.Go(func() error { return handler.LoginThrottle().Run(gctx) })
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		var errs []error
		if err := server.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("server shutdown: %w", err))
		}
		// In-flight handlers have returned; drain what they queued.
		if err := recorder.Close(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("audit drain: %w", err))
		}
		if err := tracer.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("tracer shutdown: %w", err))
		}
		return errors.Join(errs...)
	})

	return g.Wait()
}

func openDB(ctx context.Context, cfg *config.Config) (*postgres.DB, error) {
	db, err := postgres.New(ctx, postgres.Config{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		Database:        cfg.Database.Database,
		SSLMode:         cfg.Database.SSLMode,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

func newIdentityService(cfg *config.Config, repo identity.UserRepository) *identity.Service {
	hasher := identity.NewPasswordHasher(
		cfg.Security.Argon2Memory,
		cfg.Security.Argon2Iterations,
		cfg.Security.Argon2Parallelism,
		cfg.Security.Argon2SaltLength,
		cfg.Security.Argon2KeyLength,
	)
	return identity.NewService(repo, hasher, cfg.Security.LockoutAttempts, cfg.Security.LockoutDuration)
}

func bootstrapOptions(cfg *config.Config) identity.BootstrapOptions {
	return identity.BootstrapOptions{
		Enabled:           cfg.Bootstrap.SeedSuperadmin,
		SuperadminEmail:   cfg.Bootstrap.SuperadminEmail,
		SuperadminPass:    cfg.Bootstrap.SuperadminPassword,
		DefaultTenantSlug: cfg.Tenant.DefaultSlug,
		DefaultTenantName: cfg.Bootstrap.DefaultTenantName,
		DefaultLocale:     cfg.Tenant.DefaultLocale,
	}
}

func runBootstrap(cfg *config.Config) error {
	ctx := context.Background()
	db, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	billingService := billing.NewService(
		postgres.NewSubscriptionRepository(db), postgres.NewUsageCounter(db), billing.DefaultCatalog())
	tenants := tenant.NewService(postgres.NewTenantRepository(db), postgres.NewMembershipRepository(db), billingService)
	users := newIdentityService(cfg, postgres.NewUserRepository(db))

	opts := bootstrapOptions(cfg)
	opts.Enabled = true
	return identity.NewBootstrapService(users, tenants, opts).Bootstrap(ctx)
}

func runMigrate(cfg *config.Config) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	db, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("applying initial schema")
	if err := db.Migrate(ctx, postgres.InitialSchema); err != nil {
		return err
	}
	slog.Info("migration complete")
	return nil
}
