package main

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime settings. Every key can be set from the environment or
// a .env file in the working directory.
type Config struct {
	DBURL          string
	Port           string
	LogLevel       string
	MigrateOnStart bool

	OpenAIAPIKey     string
	OpenAIBaseURL    string
	OpenAIModel      string
	InferenceTimeout time.Duration

	S3Bucket         string
	S3Region         string
	ThumbnailBaseURL string

	RateLimitPerMinute int
	ShutdownTimeout    time.Duration
}

// loadConfig reads .env (if present) then the environment, applying defaults.
func loadConfig() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetDefault("PORT", "3000")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("MIGRATE_ON_START", false)
	v.SetDefault("OPENAI_MODEL", "gpt-4o-mini")
	v.SetDefault("INFERENCE_TIMEOUT", 30*time.Second)
	v.SetDefault("S3_REGION", "us-east-1")
	v.SetDefault("RATE_LIMIT_PER_MINUTE", 20)
	v.SetDefault("SHUTDOWN_TIMEOUT", 10*time.Second)
	v.AutomaticEnv()

	cfg := &Config{
		DBURL:              v.GetString("DB_URL"),
		Port:               v.GetString("PORT"),
		LogLevel:           v.GetString("LOG_LEVEL"),
		MigrateOnStart:     v.GetBool("MIGRATE_ON_START"),
		OpenAIAPIKey:       v.GetString("OPENAI_API_KEY"),
		OpenAIBaseURL:      v.GetString("OPENAI_BASE_URL"),
		OpenAIModel:        v.GetString("OPENAI_MODEL"),
		InferenceTimeout:   v.GetDuration("INFERENCE_TIMEOUT"),
		S3Bucket:           v.GetString("S3_BUCKET"),
		S3Region:           v.GetString("S3_REGION"),
		ThumbnailBaseURL:   v.GetString("THUMBNAIL_BASE_URL"),
		RateLimitPerMinute: v.GetInt("RATE_LIMIT_PER_MINUTE"),
		ShutdownTimeout:    v.GetDuration("SHUTDOWN_TIMEOUT"),
	}
	if cfg.DBURL == "" {
		return nil, fmt.Errorf("DB_URL is not set")
	}
	if cfg.RateLimitPerMinute <= 0 {
		return nil, fmt.Errorf("RATE_LIMIT_PER_MINUTE must be positive, got %d", cfg.RateLimitPerMinute)
	}
	return cfg, nil
}
