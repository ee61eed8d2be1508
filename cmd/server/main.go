package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"github.com/example/smartcabb-dispatch/internal/archive"
	"github.com/example/smartcabb-dispatch/internal/config"
	"github.com/example/smartcabb-dispatch/internal/dispatch"
	"github.com/example/smartcabb-dispatch/internal/events"
	"github.com/example/smartcabb-dispatch/internal/expiry"
	"github.com/example/smartcabb-dispatch/internal/httpapi"
	"github.com/example/smartcabb-dispatch/internal/logging"
	"github.com/example/smartcabb-dispatch/internal/matcher"
	"github.com/example/smartcabb-dispatch/internal/store"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadServerConfig()
	logger := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	var st store.Store
	if cfg.RedisAddr != "" {
		rs := store.NewRedis(cfg.RedisAddr, cfg.RedisPassword)
		if err := rs.Ping(context.Background()); err != nil {
			logger.Error("redis unreachable", "addr", cfg.RedisAddr, "error", err)
			os.Exit(1)
		}
		defer rs.Close()
		st = rs
	} else {
		logger.Warn("REDIS_ADDR not set, using in-memory store")
		st = store.NewMemory()
	}

	wsreg := dispatch.NewWSRegistry()

	engine := matcher.New(st, logger)
	engine.Push = wsreg
	engine.DispatchRadiusKm = cfg.DispatchRadiusKm
	engine.RedispatchRadiusKm = cfg.RedispatchRadiusKm
	engine.NotificationTTL = cfg.NotificationTTL
	engine.MaxAttempts = cfg.DispatchMaxAttempts

	if len(cfg.KafkaBrokers) > 0 {
		kp := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer kp.Close()
		engine.Events = kp
	}

	if cfg.PGDSN != "" {
		if cfg.RunMigrations {
			migrate(cfg.PGDSN, logger)
		}
		pa, err := archive.NewPostgresArchive(cfg.PGDSN)
		if err != nil {
			logger.Error("postgres unreachable", "error", err)
			os.Exit(1)
		}
		defer pa.Close()
		engine.Archive = pa
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sweeper := expiry.New(st, engine, logger, cfg.ExpirySweepInterval)
	go sweeper.Run(ctx)

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      httpapi.NewServer(cfg, st, engine, wsreg, logger),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	go func() {
		logger.Info("dispatch listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server stopped", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
}

func migrate(dsn string, logger *slog.Logger) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		logger.Error("migration db open error", "error", err)
		return
	}
	defer db.Close()
	b, err := os.ReadFile(filepath.Join("migrations", "001_create_rides.sql"))
	if err != nil {
		logger.Error("migration read error", "error", err)
		return
	}
	if _, err := db.Exec(string(b)); err != nil {
		logger.Error("migration exec error", "error", err)
		return
	}
	logger.Info("migration applied", "file", "001_create_rides.sql")
}
