package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/p-n-ai/pai-academy/internal/catalog"
	"github.com/p-n-ai/pai-academy/internal/notify"
	"github.com/p-n-ai/pai-academy/internal/platform/cache"
	"github.com/p-n-ai/pai-academy/internal/platform/config"
	"github.com/p-n-ai/pai-academy/internal/platform/database"
	"github.com/p-n-ai/pai-academy/internal/progress"
	"github.com/p-n-ai/pai-academy/internal/server"
)

func main() {
	// A missing .env is normal outside local development.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to read .env", "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(newLogger(os.Stdout, cfg.Log))

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	db, err := database.New(ctx, cfg.Database.URL, cfg.Database.MaxConns, cfg.Database.MinConns)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		return err
	}

	checks := map[string]server.Checker{"database": db}

	var rdb *cache.Cache
	if cfg.Cache.Enabled {
		rdb, err = cache.New(ctx, cfg.Cache.URL)
		if err != nil {
			return err
		}
		defer rdb.Close()
		checks["cache"] = rdb
	}

	repo, err := catalog.NewPostgresRepository(db.Pool)
	if err != nil {
		return err
	}
	if err := seedCatalog(ctx, cfg.Catalog.SeedPath, repo); err != nil {
		return err
	}

	store, err := progress.NewPostgresStore(db.Pool)
	if err != nil {
		return err
	}
	inbox, err := notify.NewPostgresInbox(db.Pool)
	if err != nil {
		return err
	}
	hub := notify.NewHub(cfg.Notify.AllowedOrigins...)

	gw := notify.NewGateway()
	gw.Register("inbox", inbox)
	gw.Register("websocket", hub)

	engine := progress.NewEngine(progress.EngineConfig{
		Catalog:  repo,
		Store:    store,
		Notifier: gw,
		Locker:   newLocker(cfg.Progress, rdb),
	})

	srv, err := server.New(server.Options{
		Engine:  engine,
		Inbox:   inbox,
		Hub:     hub,
		Reports: store,
		Checks:  checks,
	})
	if err != nil {
		return err
	}

	httpSrv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      srv.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server starting", "addr", httpSrv.Addr, "lock_backend", cfg.Progress.LockBackend)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Websocket streams are hijacked and end with their request contexts.
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// seedCatalog loads YAML modules into an empty catalog. A populated catalog
// is left alone so restarts do not collide with existing rows.
func seedCatalog(ctx context.Context, dir string, repo catalog.Repository) error {
	if dir == "" {
		return nil
	}
	existing, err := repo.ActiveModules(ctx)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		slog.Info("catalog already populated, skipping seed", "modules", len(existing))
		return nil
	}

	loader, err := catalog.NewLoader(dir)
	if err != nil {
		return err
	}
	return loader.Seed(ctx, repo)
}

func newLocker(cfg config.ProgressConfig, rdb *cache.Cache) progress.Locker {
	if cfg.LockBackend == config.LockBackendRedis && rdb != nil {
		return rdb.Locker(cfg.LockTTL)
	}
	return progress.NewKeyedMutex()
}

func newLogger(w io.Writer, cfg config.LogConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}
	if strings.EqualFold(cfg.Format, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func parseLevel(s string) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}
