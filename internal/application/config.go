// Package application wires the dual-track pipeline together: it loads
// configuration, builds the language-model clients, stores and caches, and
// exposes the Service used by the CLI and the HTTP adapter.
package application

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sotruth/dualtrack/infrastructure/agents"
	"github.com/sotruth/dualtrack/infrastructure/cache"
	"github.com/sotruth/dualtrack/infrastructure/store"
	"github.com/sotruth/dualtrack/internal/domain"
	"github.com/sotruth/dualtrack/internal/ports"
)

// EnvPrefix prefixes every environment override. Nested keys are separated
// by a double underscore, e.g. DUALTRACK_LLM__RATE_LIMIT__RPS.
const EnvPrefix = "DUALTRACK_"

// ConfigPathEnv names the variable LoadConfig falls back to when no path is
// given.
const ConfigPathEnv = EnvPrefix + "CONFIG"

// Config is the complete process configuration.
type Config struct {
	// AppEnv selects logger presets: production emits JSON.
	AppEnv string `koanf:"app_env" yaml:"app_env" validate:"oneof=development production test"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `koanf:"log_level" yaml:"log_level" validate:"oneof=debug info warn error"`

	LLM        LLMConfig          `koanf:"llm" yaml:"llm"`
	Scorer     agents.AgentConfig `koanf:"scorer" yaml:"scorer"`
	Classifier agents.AgentConfig `koanf:"classifier" yaml:"classifier"`
	Store      store.Config       `koanf:"store" yaml:"store"`
	Cache      cache.Config       `koanf:"cache" yaml:"cache"`
	HTTP       HTTPConfig         `koanf:"http" yaml:"http"`

	// BatchConcurrency bounds parallel scoring in ScoreBatch. Values
	// below 2 score sequentially.
	BatchConcurrency int `koanf:"batch_concurrency" yaml:"batch_concurrency" validate:"min=0,max=64"`
}

// LLMConfig selects the provider and the resilience middleware around it.
type LLMConfig struct {
	Provider string `koanf:"provider" yaml:"provider" validate:"oneof=anthropic openai google"`
	// Model overrides the model of both agents when set.
	Model   string        `koanf:"model" yaml:"model"`
	BaseURL string        `koanf:"base_url" yaml:"base_url" validate:"omitempty,url"`
	Timeout time.Duration `koanf:"timeout" yaml:"timeout" validate:"min=0"`

	RateLimit      RateLimitConfig      `koanf:"rate_limit" yaml:"rate_limit"`
	CircuitBreaker CircuitBreakerConfig `koanf:"circuit_breaker" yaml:"circuit_breaker"`
	Retry          RetryConfig          `koanf:"retry" yaml:"retry"`
}

// RateLimitConfig throttles outgoing requests. A zero RPS disables it.
type RateLimitConfig struct {
	RPS   float64 `koanf:"rps" yaml:"rps" validate:"min=0"`
	Burst int     `koanf:"burst" yaml:"burst" validate:"min=0"`
}

// CircuitBreakerConfig opens the breaker after MaxFailures consecutive
// failures. A zero MaxFailures disables it.
type CircuitBreakerConfig struct {
	MaxFailures int           `koanf:"max_failures" yaml:"max_failures" validate:"min=0"`
	Cooldown    time.Duration `koanf:"cooldown" yaml:"cooldown" validate:"min=0"`
}

// RetryConfig controls retries of transient provider failures.
type RetryConfig struct {
	MaxAttempts int           `koanf:"max_attempts" yaml:"max_attempts" validate:"min=0,max=10"`
	BaseDelay   time.Duration `koanf:"base_delay" yaml:"base_delay" validate:"min=0"`
	MaxDelay    time.Duration `koanf:"max_delay" yaml:"max_delay" validate:"min=0"`
}

// HTTPConfig configures the API server.
type HTTPConfig struct {
	Addr              string        `koanf:"addr" yaml:"addr" validate:"required"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout" yaml:"read_header_timeout"`
}

// DefaultConfig returns the configuration used when nothing overrides it.
func DefaultConfig() *Config {
	return &Config{
		AppEnv:   "development",
		LogLevel: "info",
		LLM: LLMConfig{
			Provider:       "anthropic",
			Timeout:        2 * time.Minute,
			RateLimit:      RateLimitConfig{RPS: 2, Burst: 4},
			CircuitBreaker: CircuitBreakerConfig{MaxFailures: 5, Cooldown: 30 * time.Second},
			Retry:          RetryConfig{MaxAttempts: 2, BaseDelay: time.Second, MaxDelay: 20 * time.Second},
		},
		Scorer:     agents.ScorerConfig(),
		Classifier: agents.ClassifierConfig(),
		Store:      store.Config{Driver: "file", Path: "data/dataset.yaml"},
		Cache:      cache.Config{Driver: "memory", TTL: 24 * time.Hour},
		HTTP:       HTTPConfig{Addr: ":8080", ReadHeaderTimeout: 10 * time.Second},
	}
}

// LoadConfig layers defaults, the YAML file at path (or $DUALTRACK_CONFIG
// when path is empty) and DUALTRACK_ environment variables, then validates
// the result.
func LoadConfig(path string) (*Config, error) {
	k := koanf.New(".")

	if path == "" {
		path = os.Getenv(ConfigPathEnv)
	}
	if path != "" {
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			return nil, ports.NewConfigError(path, fmt.Errorf("%w: %v", ports.ErrConfigNotFound, err))
		}
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, ports.NewConfigError(path, err)
		}
	}

	envProvider := env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(s, EnvPrefix)
		return strings.ReplaceAll(strings.ToLower(s), "__", ".")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, ports.NewConfigError("env", err)
	}
	// The config path itself is not a setting.
	k.Delete("config")

	cfg := DefaultConfig()
	// ZeroFields replaces default lists, such as agent tools, instead of
	// merging into them.
	conf := koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.StringToSliceHookFunc(","),
			),
			Result:           cfg,
			TagName:          "koanf",
			WeaklyTypedInput: true,
			ZeroFields:       true,
		},
	}
	if err := k.UnmarshalWithConf("", cfg, conf); err != nil {
		return nil, ports.NewConfigError("unmarshal", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field constraints and the requirements each driver adds.
func (c *Config) Validate() error {
	if err := domain.ValidateStruct("config", c); err != nil {
		return ports.NewConfigError("config", err)
	}

	switch {
	case c.Store.Driver == "sqlite" && c.Store.DSN == "":
		return ports.NewConfigError("store.dsn", fmt.Errorf("required for the sqlite driver: %w", domain.ErrInvalidConfiguration))
	case c.Store.Driver == "file" && c.Store.Path == "":
		return ports.NewConfigError("store.path", fmt.Errorf("required for the file driver: %w", domain.ErrInvalidConfiguration))
	case c.Cache.Driver == "redis" && c.Cache.Addr == "":
		return ports.NewConfigError("cache.addr", fmt.Errorf("required for the redis driver: %w", domain.ErrInvalidConfiguration))
	}
	return nil
}

// NewLogger builds a zap logger for cfg: JSON in production, console
// otherwise.
func NewLogger(cfg *Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, ports.NewConfigError("log_level", err)
	}

	zc := zap.NewDevelopmentConfig()
	if cfg.AppEnv == "production" {
		zc = zap.NewProductionConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}
