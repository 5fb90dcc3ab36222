package infra

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv   string
	Port     string
	LogLevel string

	ComfyBaseURL string
	// ComfyPublicURL is the address handed to clients for artifact URLs.
	ComfyPublicURL string
	ComfyTimeout   time.Duration

	PollInterval       time.Duration
	PollMaxAttempts    int
	QueueWaitCeiling   time.Duration
	PreparationCeiling time.Duration
	CompletionGrace    time.Duration
	ErrorThreshold     int

	DefaultWidth          int
	DefaultHeight         int
	DefaultBatchSize      int
	DefaultNegativePrompt string
	MaxPromptLength       int
	CheckpointName        string
	WorkflowPath          string

	DatabaseURL  string
	HistoryLimit int
	StoragePath  string

	CORSAllowedOrigins []string
	RateLimitPerMin    int
	GeoIPDBPath        string
	DefaultLocale      string

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:   getEnv("APP_ENV", "development"),
		Port:     getEnv("PORT", "8080"),
		LogLevel: os.Getenv("LOG_LEVEL"),

		ComfyBaseURL:   strings.TrimRight(strings.TrimSpace(os.Getenv("COMFY_BASE_URL")), "/"),
		ComfyPublicURL: strings.TrimRight(strings.TrimSpace(os.Getenv("COMFY_PUBLIC_URL")), "/"),
		ComfyTimeout:   time.Second * time.Duration(getEnvInt("COMFY_TIMEOUT_SECONDS", 30)),

		PollInterval:       time.Millisecond * time.Duration(getEnvInt("POLL_INTERVAL_MS", 1500)),
		PollMaxAttempts:    getEnvInt("POLL_MAX_ATTEMPTS", 300),
		QueueWaitCeiling:   time.Second * time.Duration(getEnvInt("QUEUE_WAIT_CEILING_SECONDS", 180)),
		PreparationCeiling: time.Second * time.Duration(getEnvInt("PREPARATION_CEILING_SECONDS", 60)),
		CompletionGrace:    time.Millisecond * time.Duration(getEnvInt("COMPLETION_GRACE_MS", 3000)),
		ErrorThreshold:     getEnvInt("ERROR_THRESHOLD", 5),

		DefaultWidth:          getEnvInt("DEFAULT_WIDTH", 1088),
		DefaultHeight:         getEnvInt("DEFAULT_HEIGHT", 1920),
		DefaultBatchSize:      getEnvInt("DEFAULT_BATCH_SIZE", 1),
		DefaultNegativePrompt: os.Getenv("DEFAULT_NEGATIVE_PROMPT"),
		MaxPromptLength:       getEnvInt("MAX_PROMPT_LENGTH", 1000),
		CheckpointName:        os.Getenv("CHECKPOINT_NAME"),
		WorkflowPath:          os.Getenv("WORKFLOW_PATH"),

		DatabaseURL:  os.Getenv("DATABASE_URL"),
		HistoryLimit: getEnvInt("HISTORY_LIMIT", 50),
		StoragePath:  os.Getenv("STORAGE_PATH"),

		CORSAllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		RateLimitPerMin:    getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
		GeoIPDBPath:        os.Getenv("GEOIP_DB_PATH"),
		DefaultLocale:      getEnv("DEFAULT_LOCALE", "en"),

		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
	}

	if cfg.ComfyBaseURL == "" {
		return nil, fmt.Errorf("COMFY_BASE_URL is required")
	}
	if u, err := url.Parse(cfg.ComfyBaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("COMFY_BASE_URL must be an absolute url, got %q", cfg.ComfyBaseURL)
	}
	if cfg.ComfyPublicURL == "" {
		cfg.ComfyPublicURL = cfg.ComfyBaseURL
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	raw, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
