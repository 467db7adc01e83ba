package main

import (
	"context"
	"encoding/base64"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/fleetkit/napi/internal/alloc"
	"github.com/fleetkit/napi/internal/audit"
	"github.com/fleetkit/napi/internal/config"
	"github.com/fleetkit/napi/internal/database"
	"github.com/fleetkit/napi/internal/domain"
	"github.com/fleetkit/napi/internal/handler"
	"github.com/fleetkit/napi/internal/metrics"
	"github.com/fleetkit/napi/internal/netreg"
	"github.com/fleetkit/napi/internal/repository"
	"github.com/fleetkit/napi/internal/service"
	"github.com/fleetkit/napi/internal/store"
)

var (
	version = "dev"
	commit  = "none"
	builtBy = "fleetkit"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("napi %s (commit %s) built by %s\n", version, commit, builtBy)
		return
	}

	metrics.Register()

	cfg, err := config.LoadFromFileOrEnv(config.DefaultConfigPath())
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), shutdownSignals()...)
	defer stop()

	st, err := openStore(cfg.Store)
	if err != nil {
		slog.Error("failed to open store", "backend", cfg.Store.Backend, "error", err)
		os.Exit(1)
	}

	networks, err := netreg.Load(cfg.Alloc.NetworksPath)
	if err != nil {
		slog.Error("failed to load network registry", "path", cfg.Alloc.NetworksPath, "error", err)
		os.Exit(1)
	}

	aud, closeAudit := openAuditor(cfg.Audit)
	defer closeAudit()

	if cfg.Redis.Enabled {
		if _, err := database.NewRedisClient(cfg.Redis); err != nil {
			slog.Warn("redis fabric cache unavailable, continuing without it", "error", err)
		} else {
			slog.Info("redis fabric cache connected", "host", cfg.Redis.Host, "port", cfg.Redis.Port)
		}
	}

	macOUI := cfg.Alloc.MacOUI
	if macOUI == "" {
		macOUI = "90:b8:d0"
	}
	mac, err := domain.ParseMAC(macOUI + ":00:00:00")
	if err != nil {
		slog.Error("invalid alloc.mac_oui", "value", cfg.Alloc.MacOUI, "error", err)
		os.Exit(1)
	}
	allocCfg := alloc.Config{MacOUI: mac.OUI(), MacRetries: cfg.Alloc.MacRetries}

	nicService := service.New(st, allocCfg, networks, aud)
	nicHandler := handler.NewNICHandler(nicService, repository.NewInMemoryIdempotencyRepository())

	if cfg.Server.IsDevelopment() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(handler.RequestIDMiddleware())
	r.Use(metrics.GinMiddleware())
	r.Use(handler.RateLimitMiddleware(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst))

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/metrics", metrics.Handler())

	authed := r.Group("")
	authed.Use(handler.AuthMiddleware([]byte(cfg.JWT.Secret)))
	nicHandler.RegisterRoutes(authed)

	admin := r.Group("/v1/audit")
	admin.Use(handler.AuthMiddleware([]byte(cfg.JWT.Secret)), handler.RequireAdmin())
	admin.GET("/logs", handler.AuditListHandler(aud))
	admin.GET("/integrity", handler.AuditIntegrityHandler(aud))

	srv := &http.Server{
		Addr:              cfg.Server.Address(),
		Handler:           r,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received, draining http server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil && err != http.ErrServerClosed {
			slog.Error("error during graceful shutdown", "error", err)
		}
	}()

	storeLabel := cfg.Store.Backend
	if storeLabel == "" {
		storeLabel = "memory"
	}
	slog.Info("napi server starting", "addr", srv.Addr, "store", storeLabel)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

// openStore selects and opens the store.Store backend named by cfg.Backend,
// running schema migrations for the durable backends.
func openStore(cfg config.StoreConfig) (store.Store, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", "memory":
		return store.NewMemory(), nil
	case "sqlite":
		path := cfg.SQLitePath
		if path == "" {
			path = "napi.db"
		}
		s, err := store.OpenSQLite(path)
		if err != nil {
			return nil, err
		}
		if cfg.MigrationsPath != "" {
			if err := store.MigrateSQLite(s.DB(), cfg.MigrationsPath); err != nil {
				return nil, err
			}
		}
		return s, nil
	case "postgres":
		s, err := store.OpenPostgres(cfg.ConnectionString())
		if err != nil {
			return nil, err
		}
		if cfg.MigrationsPath != "" {
			if err := store.MigratePostgres(s.DB(), cfg.MigrationsPath); err != nil {
				return nil, err
			}
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

// openAuditor builds the audit.Auditor sink chain per cfg: a SQLite-backed
// hash-chained auditor when a DSN is configured, else stdout. Both are
// wrapped to increment the audit event counter and, if cfg.Async requests
// it, buffered through AsyncAuditor so the request path never blocks on the
// sink. The returned close func flushes and must be deferred.
func openAuditor(cfg config.AuditConfig) (audit.Auditor, func()) {
	var base audit.Auditor
	if dsn := strings.TrimSpace(cfg.SQLiteDSN); dsn != "" {
		var opts []audit.SqliteOption
		if secret, ok := firstHashSecret(cfg.HashSecrets); ok {
			opts = append(opts, audit.WithSqliteHashing(secret))
		}
		sa, err := audit.NewSqliteAuditor(dsn, opts...)
		if err != nil {
			slog.Warn("sqlite auditor unavailable, falling back to stdout", "error", err)
			base = audit.NewStdoutAuditor()
		} else {
			base = sa
		}
	} else {
		base = audit.NewStdoutAuditor()
	}

	wrapped := audit.WithMetrics(base)

	if !cfg.Async {
		return wrapped, func() {}
	}

	var opts []audit.AsyncOption
	if cfg.QueueSize > 0 {
		opts = append(opts, audit.WithQueueSize(cfg.QueueSize))
	}
	if cfg.WorkerCount > 0 {
		opts = append(opts, audit.WithWorkers(cfg.WorkerCount))
	}
	async := audit.NewAsyncAuditor(wrapped, opts...)
	return async, func() {
		if err := async.Close(); err != nil {
			slog.Warn("error closing async auditor", "error", err)
		}
	}
}

// firstHashSecret decodes the first non-empty entry of a comma-separated
// base64 secret list, trying URL-safe then standard encoding.
func firstHashSecret(csv string) ([]byte, bool) {
	for _, part := range strings.Split(csv, ",") {
		s := strings.TrimSpace(part)
		if s == "" {
			continue
		}
		if b, err := base64.RawURLEncoding.DecodeString(s); err == nil && len(b) > 0 {
			return b, true
		}
		if b, err := base64.StdEncoding.DecodeString(s); err == nil && len(b) > 0 {
			return b, true
		}
	}
	return nil, false
}

func shutdownSignals() []os.Signal {
	return []os.Signal{os.Interrupt, syscall.Signal(15)}
}
