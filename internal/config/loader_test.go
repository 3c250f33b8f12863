package config_test

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/canning1295/RealTimeTranslate/internal/config"
)

func TestLoad_FileNotFound(t *testing.T) {
	t.Parallel()
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
	if !strings.Contains(err.Error(), "open") {
		t.Errorf("error should mention open, got: %v", err)
	}
}

func TestLoad_ValidFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(sampleYAML), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Session.TargetLanguage != "fr-FR" {
		t.Errorf("session.target_language: got %q, want fr-FR", cfg.Session.TargetLanguage)
	}
}

func TestLoad_InvalidYAMLSyntax(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("session: [unterminated"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	_, err := config.Load(path)
	if err == nil {
		t.Fatal("expected error for malformed yaml, got nil")
	}
}

func TestLogLevel_Slog(t *testing.T) {
	t.Parallel()
	cases := []struct {
		level config.LogLevel
		want  slog.Level
	}{
		{config.LogDebug, slog.LevelDebug},
		{config.LogInfo, slog.LevelInfo},
		{config.LogWarn, slog.LevelWarn},
		{config.LogError, slog.LevelError},
		{config.LogLevel(""), slog.LevelInfo},
		{config.LogLevel("bogus"), slog.LevelInfo},
	}
	for _, tc := range cases {
		if got := tc.level.Slog(); got != tc.want {
			t.Errorf("LogLevel(%q).Slog(): got %v, want %v", tc.level, got, tc.want)
		}
	}
}

func TestStopPolicy_IsValid(t *testing.T) {
	t.Parallel()
	if !config.StopDrain.IsValid() || !config.StopAbort.IsValid() {
		t.Error("drain and abort should be valid stop policies")
	}
	if config.StopPolicy("pause").IsValid() {
		t.Error("pause should not be a valid stop policy")
	}
}

func TestDuration_MarshalYAML(t *testing.T) {
	t.Parallel()
	d := config.Duration(1500 * time.Millisecond)
	v, err := d.MarshalYAML()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != "1.5s" {
		t.Errorf("marshalled duration: got %v, want 1.5s", v)
	}
}
