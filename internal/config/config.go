// Package config handles application configuration from environment variables
// and an optional YAML risk policy file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/snair2001/WalletRiskAgentWithIExec/internal/engine"
	"github.com/snair2001/WalletRiskAgentWithIExec/internal/rules"
)

// Reasoner kinds.
const (
	ReasonerOpenAI = "openai"
	ReasonerStub   = "stub"
	ReasonerNone   = "none"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port      string
	Env       string // "development", "staging", "production"
	LogLevel  string
	LogFormat string // "text" or "json"

	// Database
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)

	// Observability
	OTLPEndpoint string // OpenTelemetry collector (optional, tracing disabled if not set)

	// HTTP protection
	RateLimitRPS   int
	MaxRequestBody int64
	CORSOrigins    []string

	// Reasoning backend
	Reasoner         string // "openai", "stub" or "none"
	ReasoningEnabled bool
	ReasoningTimeout time.Duration
	MaxInFlight      int64
	LLMBaseURL       string
	LLMModel         string
	LLMAPIKey        string
	LLMTemperature   float64

	// Decision policy
	AmbiguousLow  float64
	AmbiguousHigh float64
	PolicyFile    string
	Policy        *Policy // nil when no policy file is configured
}

const (
	DefaultPort           = "8080"
	DefaultEnv            = "development"
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "text"
	DefaultRateLimit      = 100
	DefaultMaxRequestBody = 1 << 20
	DefaultReasoner       = ReasonerOpenAI
)

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	defaults := engine.DefaultConfig()
	cfg := &Config{
		Port:             getEnv("PORT", DefaultPort),
		Env:              getEnv("ENV", DefaultEnv),
		LogLevel:         getEnv("LOG_LEVEL", DefaultLogLevel),
		LogFormat:        getEnv("LOG_FORMAT", DefaultLogFormat),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		OTLPEndpoint:     os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		RateLimitRPS:     int(getEnvInt64("RATE_LIMIT_RPS", DefaultRateLimit)),
		MaxRequestBody:   getEnvInt64("MAX_REQUEST_BODY", DefaultMaxRequestBody),
		CORSOrigins:      getEnvList("CORS_ORIGINS"),
		Reasoner:         strings.ToLower(getEnv("REASONER", DefaultReasoner)),
		ReasoningEnabled: getEnvBool("LLM_ENABLED", true),
		ReasoningTimeout: getEnvDuration("LLM_TIMEOUT", defaults.ReasoningTimeout),
		MaxInFlight:      getEnvInt64("LLM_MAX_IN_FLIGHT", defaults.MaxInFlight),
		LLMBaseURL:       os.Getenv("LLM_BASE_URL"),
		LLMModel:         os.Getenv("LLM_MODEL"),
		LLMAPIKey:        os.Getenv("OPENAI_API_KEY"),
		LLMTemperature:   getEnvFloat("LLM_TEMPERATURE", 0.2),
		AmbiguousLow:     defaults.AmbiguousLow,
		AmbiguousHigh:    defaults.AmbiguousHigh,
		PolicyFile:       os.Getenv("RISK_POLICY_FILE"),
	}

	if cfg.PolicyFile != "" {
		policy, err := LoadPolicy(cfg.PolicyFile)
		if err != nil {
			return nil, err
		}
		cfg.Policy = policy
		if policy.AmbiguousBand != nil {
			cfg.AmbiguousLow = policy.AmbiguousBand.Low
			cfg.AmbiguousHigh = policy.AmbiguousBand.High
		}
	}

	// Explicit environment wins over the policy file.
	cfg.AmbiguousLow = getEnvFloat("AMBIGUOUS_BAND_LOW", cfg.AmbiguousLow)
	cfg.AmbiguousHigh = getEnvFloat("AMBIGUOUS_BAND_HIGH", cfg.AmbiguousHigh)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration is present and that the
// resulting engine configuration is usable.
func (c *Config) Validate() error {
	switch c.Reasoner {
	case ReasonerOpenAI, ReasonerStub, ReasonerNone:
	default:
		return fmt.Errorf("REASONER must be one of openai, stub, none (got %q)", c.Reasoner)
	}

	if c.Reasoner == ReasonerOpenAI && c.ReasoningEnabled && c.LLMAPIKey == "" && c.LLMBaseURL == "" {
		return fmt.Errorf("OPENAI_API_KEY is required when REASONER=openai (set LLM_ENABLED=false or REASONER=stub to run without it)")
	}

	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("LOG_FORMAT must be text or json (got %q)", c.LogFormat)
	}

	if c.RateLimitRPS < 0 {
		return fmt.Errorf("RATE_LIMIT_RPS must be non-negative")
	}

	if c.MaxRequestBody <= 0 {
		return fmt.Errorf("MAX_REQUEST_BODY must be positive")
	}

	ec := c.EngineConfig()
	if err := ec.Validate(); err != nil {
		return err
	}
	if err := ec.Weights.Validate(); err != nil {
		return err
	}
	known := make(map[rules.Category]bool)
	for _, cat := range rules.DefaultRegistry().Categories() {
		known[cat] = true
	}
	for cat := range ec.Weights {
		if !known[cat] {
			return fmt.Errorf("risk policy: unknown weight category %q", cat)
		}
	}
	return rules.CompileCheck(ec.CustomRules)
}

// EngineConfig derives the decision engine configuration.
func (c *Config) EngineConfig() engine.Config {
	ec := engine.DefaultConfig()
	ec.AmbiguousLow = c.AmbiguousLow
	ec.AmbiguousHigh = c.AmbiguousHigh
	ec.ReasoningEnabled = c.ReasoningEnabled && c.Reasoner != ReasonerNone
	ec.ReasoningTimeout = c.ReasoningTimeout
	ec.MaxInFlight = c.MaxInFlight
	if c.Policy != nil {
		c.Policy.apply(&ec)
	}
	return ec
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("5s") or plain seconds ("5").
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.ParseFloat(value, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	return defaultValue
}

func getEnvList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
