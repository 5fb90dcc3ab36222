package infra

import (
	"testing"
	"time"
)

func TestLoadConfigRequiresComfyBaseURL(t *testing.T) {
	t.Setenv("COMFY_BASE_URL", "")
	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error without COMFY_BASE_URL")
	}
	t.Setenv("COMFY_BASE_URL", "not a url")
	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error for relative COMFY_BASE_URL")
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("COMFY_BASE_URL", "http://127.0.0.1:8188/")
	for _, key := range []string{"COMFY_PUBLIC_URL", "POLL_INTERVAL_MS", "POLL_MAX_ATTEMPTS", "DEFAULT_WIDTH", "HISTORY_LIMIT", "CORS_ALLOWED_ORIGINS", "DATABASE_URL"} {
		t.Setenv(key, "")
	}

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.ComfyBaseURL != "http://127.0.0.1:8188" {
		t.Fatalf("ComfyBaseURL mismatch: %q", cfg.ComfyBaseURL)
	}
	if cfg.ComfyPublicURL != cfg.ComfyBaseURL {
		t.Fatalf("ComfyPublicURL should default to base url, got %q", cfg.ComfyPublicURL)
	}
	if cfg.PollInterval != 1500*time.Millisecond || cfg.PollMaxAttempts != 300 {
		t.Fatalf("poll defaults mismatch: %v %d", cfg.PollInterval, cfg.PollMaxAttempts)
	}
	if cfg.ComfyTimeout != 30*time.Second {
		t.Fatalf("ComfyTimeout mismatch: %v", cfg.ComfyTimeout)
	}
	if cfg.DefaultWidth != 1088 || cfg.DefaultHeight != 1920 || cfg.DefaultBatchSize != 1 {
		t.Fatalf("size defaults mismatch: %dx%d x%d", cfg.DefaultWidth, cfg.DefaultHeight, cfg.DefaultBatchSize)
	}
	if cfg.MaxPromptLength != 1000 || cfg.HistoryLimit != 50 {
		t.Fatalf("limit defaults mismatch: %d %d", cfg.MaxPromptLength, cfg.HistoryLimit)
	}
	if len(cfg.CORSAllowedOrigins) != 1 || cfg.CORSAllowedOrigins[0] != "*" {
		t.Fatalf("CORSAllowedOrigins mismatch: %#v", cfg.CORSAllowedOrigins)
	}
	if cfg.DatabaseURL != "" {
		t.Fatalf("DatabaseURL should be optional, got %q", cfg.DatabaseURL)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("COMFY_BASE_URL", "http://gpu:8188")
	t.Setenv("COMFY_PUBLIC_URL", "https://images.example.com/")
	t.Setenv("POLL_INTERVAL_MS", "500")
	t.Setenv("ERROR_THRESHOLD", "oops")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, ,https://b.example")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.ComfyPublicURL != "https://images.example.com" {
		t.Fatalf("ComfyPublicURL mismatch: %q", cfg.ComfyPublicURL)
	}
	if cfg.PollInterval != 500*time.Millisecond {
		t.Fatalf("PollInterval mismatch: %v", cfg.PollInterval)
	}
	if cfg.ErrorThreshold != 5 {
		t.Fatalf("invalid ERROR_THRESHOLD should fall back, got %d", cfg.ErrorThreshold)
	}
	if len(cfg.CORSAllowedOrigins) != 2 || cfg.CORSAllowedOrigins[1] != "https://b.example" {
		t.Fatalf("CORSAllowedOrigins mismatch: %#v", cfg.CORSAllowedOrigins)
	}
}
