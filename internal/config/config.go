// Package config defines configuration parsing and helpers.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Config holds all application configuration parsed from environment variables.
type Config struct {
	AppEnv   string `env:"APP_ENV" envDefault:"dev"`
	Port     int    `env:"PORT" envDefault:"8080"`
	LogLevel string `env:"LOG_LEVEL"`

	OpenAIAPIKey       string `env:"OPENAI_API_KEY"`
	OpenAIBaseURL      string `env:"OPENAI_BASE_URL" envDefault:"https://api.openai.com/v1"`
	OpenAIEvalModel    string `env:"OPENAI_EVAL_MODEL" envDefault:"gpt-4o-mini"`
	OpenAIConsultModel string `env:"OPENAI_CONSULT_MODEL" envDefault:"gpt-4o"`

	AnthropicAPIKey  string `env:"ANTHROPIC_API_KEY"`
	AnthropicBaseURL string `env:"ANTHROPIC_BASE_URL"`
	AnthropicModel   string `env:"ANTHROPIC_MODEL" envDefault:"claude-3-5-sonnet-20240620"`

	// AI call configuration
	AIMaxTokens              int           `env:"AI_MAX_TOKENS" envDefault:"1000"`
	AIMaxAttempts            int           `env:"AI_MAX_ATTEMPTS" envDefault:"5"`
	AIBackoffInitialInterval time.Duration `env:"AI_BACKOFF_INITIAL_INTERVAL" envDefault:"1s"`
	AIBackoffMultiplier      float64       `env:"AI_BACKOFF_MULTIPLIER" envDefault:"2"`
	AIRequestTimeout         time.Duration `env:"AI_REQUEST_TIMEOUT" envDefault:"60s"`
	// AIMaxConcurrency caps in-flight calls per fan-out stage; 0 means unbounded.
	AIMaxConcurrency int `env:"AI_MAX_CONCURRENCY" envDefault:"0"`
	// RubricStrictParsing fails the job on an unparsable grammar list, verdict or story score
	// instead of degrading.
	RubricStrictParsing bool `env:"RUBRIC_STRICT_PARSING" envDefault:"false"`

	SimilarityThreshold float64 `env:"SIMILARITY_THRESHOLD" envDefault:"0.2"`
	MaxBatchSize        int     `env:"MAX_BATCH_SIZE" envDefault:"500"`
	// CreatedAtLayout is the Go time layout used for the created_at field of job views.
	CreatedAtLayout string `env:"CREATED_AT_LAYOUT" envDefault:"2006년 1월 2일 15:04"`
	MaxUploadMB     int64  `env:"MAX_UPLOAD_MB" envDefault:"10"`

	OTLPEndpoint    string `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:""`
	OTELServiceName string `env:"OTEL_SERVICE_NAME" envDefault:"content-ranker"`

	CORSAllowOrigins      string        `env:"CORS_ALLOW_ORIGINS" envDefault:"*"`
	RateLimitPerMin       int           `env:"RATE_LIMIT_PER_MIN" envDefault:"30"`
	ServerShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" envDefault:"30s"`
	HTTPReadTimeout       time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"15s"`
	HTTPWriteTimeout      time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`
	HTTPIdleTimeout       time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"60s"`
}

// DotenvPath is the optional env file read by Load before parsing the environment.
var DotenvPath = ".env"

// Load parses environment variables into a Config.
// Values from DotenvPath never override variables already set in the environment.
func Load() (Config, error) {
	if err := godotenv.Load(DotenvPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("op=config.Load: dotenv: %w", err)
	}
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("op=config.Load: %w", err)
	}
	if cfg.AIMaxAttempts < 1 {
		return Config{}, fmt.Errorf("op=config.Load: AI_MAX_ATTEMPTS must be >= 1, got %d", cfg.AIMaxAttempts)
	}
	if cfg.SimilarityThreshold < 0 || cfg.SimilarityThreshold > 1 {
		return Config{}, fmt.Errorf("op=config.Load: SIMILARITY_THRESHOLD must be within [0,1], got %v", cfg.SimilarityThreshold)
	}
	return cfg, nil
}

// IsDev reports whether the app is running in development mode.
func (c Config) IsDev() bool { return strings.ToLower(c.AppEnv) == "dev" }

// IsProd reports whether the app is running in production mode.
func (c Config) IsProd() bool { return strings.ToLower(c.AppEnv) == "prod" }

// IsTest reports whether the app is running in test mode.
func (c Config) IsTest() bool { return strings.ToLower(c.AppEnv) == "test" }

// OpenAIConfigured reports whether the evaluation provider has credentials.
func (c Config) OpenAIConfigured() bool { return strings.TrimSpace(c.OpenAIAPIKey) != "" }

// AnthropicConfigured reports whether the consult-only provider has credentials.
func (c Config) AnthropicConfigured() bool { return strings.TrimSpace(c.AnthropicAPIKey) != "" }
