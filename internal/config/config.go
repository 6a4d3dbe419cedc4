package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port        int
	NatsURL     string
	NatsToken   string
	DatabaseURL string
	LogLevel    string
	APIToken    string

	EncryptionKey   string
	UploadDir       string
	MaxUploadSizeMB int

	RetentionDays          int
	RetentionSweepInterval time.Duration

	RateLimitPerMinute int
	AmbiguityTopN      int
	LexiconFile        string

	AnalysisEngine  string
	LLMProvider     string
	OpenAIAPIKey    string
	OpenAIModel     string
	AnthropicAPIKey string
	AnthropicModel  string
	LLMMaxAttempts  int
}

// Engine names.
const (
	EngineHeuristic = "heuristic"
	EngineLLM       = "llm"
)

func Load() Config {
	return Config{
		Port:        envInt("MIXSIG_PORT", 8760),
		NatsURL:     envStr("NATS_URL", "nats://hermes:4222"),
		NatsToken:   envStr("NATS_TOKEN", ""),
		DatabaseURL: envStr("DATABASE_URL", ""),
		LogLevel:    envStr("LOG_LEVEL", "info"),
		APIToken:    envStr("MIXSIG_API_TOKEN", ""),

		EncryptionKey:   envStr("ENCRYPTION_KEY", ""),
		UploadDir:       envStr("UPLOAD_DIR", "data/uploads"),
		MaxUploadSizeMB: envInt("MAX_UPLOAD_SIZE_MB", 15),

		RetentionDays:          envInt("RETENTION_DAYS", 30),
		RetentionSweepInterval: envDuration("RETENTION_SWEEP_INTERVAL", time.Hour),

		RateLimitPerMinute: envInt("RATE_LIMIT_PER_MINUTE", 60),
		AmbiguityTopN:      envInt("AMBIGUITY_TOP_N", 5),
		LexiconFile:        envStr("LEXICON_FILE", ""),

		AnalysisEngine:  strings.ToLower(envStr("ANALYSIS_ENGINE", EngineHeuristic)),
		LLMProvider:     strings.ToLower(envStr("LLM_PROVIDER", "openai")),
		OpenAIAPIKey:    envStr("OPENAI_API_KEY", ""),
		OpenAIModel:     envStr("OPENAI_MODEL", "gpt-4o-mini"),
		AnthropicAPIKey: envStr("ANTHROPIC_API_KEY", ""),
		AnthropicModel:  envStr("ANTHROPIC_MODEL", "claude-sonnet-4-20250514"),
		LLMMaxAttempts:  envInt("LLM_MAX_ATTEMPTS", 3),
	}
}

// MaxUploadBytes is the upload size cap in bytes.
func (c Config) MaxUploadBytes() int64 {
	return int64(c.MaxUploadSizeMB) * 1024 * 1024
}

// Retention is how long an analysed upload is kept.
func (c Config) Retention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}
