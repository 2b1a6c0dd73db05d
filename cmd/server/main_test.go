package main

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/p-n-ai/pai-academy/internal/catalog"
	"github.com/p-n-ai/pai-academy/internal/platform/config"
	"github.com/p-n-ai/pai-academy/internal/progress"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"loud", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := parseLevel(tt.in); got != tt.want {
				t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	newLogger(&buf, config.LogConfig{Level: "warn", Format: "json"}).Info("hidden")
	if buf.Len() != 0 {
		t.Errorf("info logged at warn level: %s", buf.String())
	}

	newLogger(&buf, config.LogConfig{Level: "info", Format: "json"}).Info("shown", "user_id", "u1")
	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("json handler output %q: %v", buf.String(), err)
	}
	if rec["user_id"] != "u1" {
		t.Errorf("record = %v", rec)
	}

	buf.Reset()
	newLogger(&buf, config.LogConfig{Level: "info", Format: "text"}).Info("shown")
	if !strings.Contains(buf.String(), "msg=shown") {
		t.Errorf("text handler output = %q", buf.String())
	}
}

func TestNewLocker_DefaultsToInProcess(t *testing.T) {
	tests := []config.ProgressConfig{
		{LockBackend: config.LockBackendMemory},
		{LockBackend: config.LockBackendRedis},
	}
	for _, cfg := range tests {
		if _, ok := newLocker(cfg, nil).(*progress.KeyedMutex); !ok {
			t.Errorf("newLocker(%q, nil) should be a KeyedMutex", cfg.LockBackend)
		}
	}
}

const moduleYAML = `id: m1
title: Basics
order: 1
chapters:
  - id: c1
    title: Intro
    order: 1
    content:
      id: v1
      type: VIDEO
      url: https://cdn.example.com/v1.mp4
      duration: 120
`

func TestSeedCatalog(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "m1.yaml"), []byte(moduleYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	repo := catalog.NewMemoryRepository()

	if err := seedCatalog(ctx, "", repo); err != nil {
		t.Fatalf("seedCatalog(empty dir) error = %v", err)
	}
	if err := seedCatalog(ctx, dir, repo); err != nil {
		t.Fatalf("seedCatalog() error = %v", err)
	}
	if _, err := repo.GetContent(ctx, "v1"); err != nil {
		t.Fatalf("seeded content missing: %v", err)
	}

	// A second start must not try to insert the same rows again.
	if err := seedCatalog(ctx, dir, repo); err != nil {
		t.Errorf("seedCatalog() on populated catalog error = %v", err)
	}
}
