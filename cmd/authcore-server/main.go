// Command authcore-server serves the authcore HTTP API.
//
// Configuration comes from the environment (a .env file is loaded when
// present). AUTH_JWT_SECRET is required for the default HS256 signer. Optional:
//
//	DATABASE_URL     PostgreSQL DSN; accounts are kept in memory when unset
//	REDIS_ADDR       Redis for the revocation set and login throttle
//	PORT             listen port (default 8080)
//	SENTRY_DSN       error reporting
//	APP_ENV          Sentry environment (default development)
//	ADMIN_USERNAME   with ADMIN_EMAIL and ADMIN_PASSWORD, seeds an admin account
//	LOGIN_RATE_LIMIT_MAX, LOGIN_RATE_LIMIT_WINDOW  login throttle (10 per 1m)
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	authcore "github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/internal/httpapi"
	"github.com/MrEthical07/authcore/internal/rate"
	promexport "github.com/MrEthical07/authcore/metrics/export/prometheus"
	"github.com/MrEthical07/authcore/revocation"
	"github.com/MrEthical07/authcore/store/memstore"
	"github.com/MrEthical07/authcore/store/postgres"
)

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("server exited", "error", err)
		sentry.Flush(2 * time.Second)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	if dsn := os.Getenv("SENTRY_DSN"); dsn != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              dsn,
			Environment:      envOrDefault("APP_ENV", "development"),
			AttachStacktrace: true,
		}); err != nil {
			logger.Error("sentry init failed", "error", err)
		}
	}
	defer sentry.Flush(2 * time.Second)

	cfg, err := authcore.ConfigFromEnv(os.Getenv)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg.Audit.Enabled = true
	cfg.Metrics.Enabled = true
	cfg.Metrics.EnableLatencyHistograms = true

	ctx := context.Background()

	var (
		store  authcore.CredentialStore
		health []func(context.Context) error
	)
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		db, err := postgres.Open(ctx, dsn)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := postgres.Migrate(ctx, db); err != nil {
			return err
		}
		store = postgres.New(db)
		health = append(health, db.PingContext)
		logger.Info("using postgres credential store")
	} else {
		store = memstore.New()
		logger.Warn("DATABASE_URL not set, accounts are kept in memory")
	}

	limiterCfg := rate.DefaultConfig()
	limiterCfg.MaxAttempts = envInt("LOGIN_RATE_LIMIT_MAX", limiterCfg.MaxAttempts)
	limiterCfg.Window = envDuration("LOGIN_RATE_LIMIT_WINDOW", limiterCfg.Window)

	var (
		revocations authcore.RevocationSet
		limiter     rate.Limiter
	)
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		defer client.Close()
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("ping redis: %w", err)
		}
		redisRevocations := revocation.NewRedis(client, "")
		revocations = redisRevocations
		limiter = rate.NewRedis(client, limiterCfg)
		health = append(health, redisRevocations.Ping)
		logger.Info("using redis revocation set", "addr", addr)
	} else {
		revocations = revocation.NewMemory(nil)
		limiter = rate.NewLocal(limiterCfg)
		logger.Warn("REDIS_ADDR not set, revocations are kept in memory")
	}

	engine, err := authcore.New().
		WithConfig(cfg).
		WithStore(store).
		WithRevocationSet(revocations).
		WithAuditSink(authcore.NewSlogSink(logger)).
		WithLogger(logger).
		Build()
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer engine.Close()

	report := engine.SecurityReport()
	logger.Info("security posture",
		"algorithm", report.SigningAlgorithm,
		"access_ttl", report.AccessTTL.String(),
		"refresh_ttl", report.RefreshTTL.String(),
		"lockout_active", report.LockoutActive,
		"refresh_rotation", report.RefreshRotationEnabled,
		"bcrypt_cost", report.BcryptCost,
	)

	if err := seedAdmin(ctx, engine, logger); err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		promexport.NewExporter(engine),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	router := httpapi.NewRouter(httpapi.Deps{
		Engine:  engine,
		Limiter: limiter,
		Metrics: promexport.Handler(registry),
		Health: func(ctx context.Context) error {
			ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
			defer cancel()
			for _, check := range health {
				if err := check(ctx); err != nil {
					return err
				}
			}
			return nil
		},
		Logger: logger,
	})

	server := &http.Server{
		Addr:              ":" + envOrDefault("PORT", "8080"),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("authcore server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("listen: %w", err)
	case <-stop:
	}

	logger.Info("shutting down authcore server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	return nil
}

// seedAdmin creates the bootstrap admin once. An existing account is left as is.
func seedAdmin(ctx context.Context, engine *authcore.Engine, logger *slog.Logger) error {
	username := strings.TrimSpace(os.Getenv("ADMIN_USERNAME"))
	password := os.Getenv("ADMIN_PASSWORD")
	if username == "" || password == "" {
		return nil
	}

	_, err := engine.CreateAccount(ctx, authcore.CreateAccountRequest{
		Username:    username,
		Email:       envOrDefault("ADMIN_EMAIL", username+"@localhost.localdomain"),
		Password:    password,
		Role:        authcore.RoleAdmin,
		IsSuperuser: true,
		IsVerified:  true,
	})
	switch {
	case err == nil:
		logger.Info("admin account created", "username", username)
	case errors.Is(err, authcore.ErrAccountExists):
	default:
		return fmt.Errorf("seed admin: %w", err)
	}
	return nil
}

func envOrDefault(name, fallback string) string {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	return value
}

func envInt(name string, fallback int) int {
	parsed, err := strconv.Atoi(strings.TrimSpace(os.Getenv(name)))
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func envDuration(name string, fallback time.Duration) time.Duration {
	parsed, err := time.ParseDuration(strings.TrimSpace(os.Getenv(name)))
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}
