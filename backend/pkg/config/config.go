package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	apperrors "promptcanvas/backend/pkg/errors"
)

// Image providers
const (
	ImageProviderOpenAI = "openai"
	ImageProviderRunPod = "runpod"
)

// Config holds all application configuration
type Config struct {
	// App
	Port     string
	Env      string
	LogLevel string

	// Text AI (LiteLLM / OpenRouter, OpenAI-compatible)
	LiteLLMURL       string
	ModelID          string
	VisionModelID    string
	OpenRouterAPIKey string

	// Image generation
	ImageProvider     string
	ImageModelID      string
	OpenAIBaseURL     string
	OpenAIAPIKey      string
	RunPodAPIKey      string
	RunPodEndpointID  string
	ModelRegistryFile string

	// Operations
	OperationTimeout time.Duration

	// Retention
	CleanupInterval           time.Duration
	AggressiveCleanupInterval time.Duration
	NodeMaxAge                time.Duration
	ImageMaxAge               time.Duration
	PromptMaxAge              time.Duration
	MaxNodes                  int
	MaxImages                 int
	MaxPrompts                int
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()

	cfg := &Config{
		Port:              getEnv("PORT", "8080"),
		Env:               getEnv("ENV", "development"),
		LogLevel:          getEnv("LOG_LEVEL", ""),
		LiteLLMURL:        getEnv("LITELLM_URL", "http://localhost:4000"),
		ModelID:           getEnv("MODEL_ID", "openrouter/anthropic/claude-3.5-sonnet"),
		VisionModelID:     getEnv("VISION_MODEL_ID", ""),
		OpenRouterAPIKey:  getEnv("OPENROUTER_API_KEY", ""),
		ImageProvider:     getEnv("IMAGE_PROVIDER", ImageProviderOpenAI),
		ImageModelID:      getEnv("IMAGE_MODEL_ID", "gpt-image-1"),
		OpenAIBaseURL:     getEnv("OPENAI_BASE_URL", "https://api.openai.com"),
		OpenAIAPIKey:      getEnv("OPENAI_API_KEY", ""),
		RunPodAPIKey:      getEnv("RUNPOD_API_KEY", ""),
		RunPodEndpointID:  getEnv("RUNPOD_ENDPOINT_ID", ""),
		ModelRegistryFile: getEnv("MODEL_REGISTRY_FILE", ""),

		OperationTimeout: getEnvDuration("OPERATION_TIMEOUT", 2*time.Minute),

		CleanupInterval:           getEnvDuration("CLEANUP_INTERVAL", 5*time.Minute),
		AggressiveCleanupInterval: getEnvDuration("AGGRESSIVE_CLEANUP_INTERVAL", time.Minute),
		NodeMaxAge:                getEnvDuration("NODE_MAX_AGE", 24*time.Hour),
		ImageMaxAge:               getEnvDuration("IMAGE_MAX_AGE", 12*time.Hour),
		PromptMaxAge:              getEnvDuration("PROMPT_MAX_AGE", 24*time.Hour),
		MaxNodes:                  getEnvInt("MAX_NODES", 100),
		MaxImages:                 getEnvInt("MAX_IMAGES", 50),
		MaxPrompts:                getEnvInt("MAX_PROMPTS", 100),
	}

	if cfg.VisionModelID == "" {
		cfg.VisionModelID = cfg.ModelID
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that required configuration values are set
func (c *Config) Validate() error {
	if c.LiteLLMURL == "" {
		return apperrors.NewConfigMissingRequired("LITELLM_URL")
	}
	if c.ModelID == "" {
		return apperrors.NewConfigMissingRequired("MODEL_ID")
	}
	switch c.ImageProvider {
	case ImageProviderOpenAI:
	case ImageProviderRunPod:
		if c.RunPodEndpointID == "" {
			return apperrors.NewConfigMissingRequired("RUNPOD_ENDPOINT_ID")
		}
	default:
		return apperrors.NewConfigValidationFailed("IMAGE_PROVIDER", fmt.Sprintf("unknown provider %q", c.ImageProvider))
	}
	if c.CleanupInterval <= 0 || c.AggressiveCleanupInterval <= 0 {
		return apperrors.NewConfigValidationFailed("CLEANUP_INTERVAL", "intervals must be positive")
	}
	if c.AggressiveCleanupInterval > c.CleanupInterval {
		return apperrors.NewConfigValidationFailed("AGGRESSIVE_CLEANUP_INTERVAL", "must not exceed CLEANUP_INTERVAL")
	}
	if c.MaxNodes <= 0 || c.MaxImages <= 0 || c.MaxPrompts <= 0 {
		return apperrors.NewConfigValidationFailed("MAX_*", "caps must be positive")
	}
	// API keys are optional for local LiteLLM development
	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var result int
		if _, err := fmt.Sscanf(value, "%d", &result); err == nil {
			return result
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
