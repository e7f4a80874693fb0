// Package config provides centralized configuration management using viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config represents the complete service configuration.
type Config struct {
	Server        ServerConfig   `mapstructure:"server" validate:"required"`
	Redis         RedisConfig    `mapstructure:"redis" validate:"required"`
	OpenTelemetry OTelConfig     `mapstructure:"opentelemetry" validate:"required"`
	Logging       LoggingConfig  `mapstructure:"logging" validate:"required"`
	Limits        LimitsConfig   `mapstructure:"limits" validate:"required"`
	Defaults      DefaultsConfig `mapstructure:"defaults" validate:"required"`
}

// ServerConfig defines gRPC server settings.
type ServerConfig struct {
	Host            string        `mapstructure:"host" validate:"required,hostname_rfc1123|ip"`
	Port            int           `mapstructure:"port" validate:"min=1024,max=65535"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"min=1s,max=5m"`
	MaxRecvMsgSize  int           `mapstructure:"max_recv_msg_size" validate:"min=1024,max=67108864"`
	MaxSendMsgSize  int           `mapstructure:"max_send_msg_size" validate:"min=1024,max=67108864"`
}

// RedisConfig defines Redis connection settings for rule persistence.
type RedisConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	URL            string        `mapstructure:"url" validate:"required,url"`
	DB             int           `mapstructure:"db" validate:"min=0,max=15"`
	Password       string        `mapstructure:"password"`
	TLSEnabled     bool          `mapstructure:"tls_enabled"`
	TLSSkipVerify  bool          `mapstructure:"tls_skip_verify"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout" validate:"min=1s,max=30s"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout" validate:"min=1s,max=30s"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout" validate:"min=1s,max=30s"`
	MaxRetries     int           `mapstructure:"max_retries" validate:"min=0,max=10"`
	PoolSize       int           `mapstructure:"pool_size" validate:"min=1,max=100"`
}

// OTelConfig defines OpenTelemetry settings.
type OTelConfig struct {
	Endpoint       string            `mapstructure:"endpoint" validate:"required,url"`
	ServiceName    string            `mapstructure:"service_name" validate:"required,min=1,max=100"`
	ServiceVersion string            `mapstructure:"service_version" validate:"required,semver"`
	Environment    string            `mapstructure:"environment" validate:"required,oneof=development staging production"`
	Insecure       bool              `mapstructure:"insecure"`
	Headers        map[string]string `mapstructure:"headers"`
	Timeout        time.Duration     `mapstructure:"timeout" validate:"min=1s,max=30s"`
}

// LoggingConfig defines logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"required,oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"required,oneof=json text"`
}

// LimitsConfig defines rate limit rule loading settings.
type LimitsConfig struct {
	// RulesPath points at a YAML rule set applied at startup. Empty disables
	// file loading.
	RulesPath string `mapstructure:"rules_path"`

	// CleanupInterval controls how often idle window state is reclaimed.
	CleanupInterval time.Duration `mapstructure:"cleanup_interval" validate:"min=1s,max=1h"`
}

// DefaultsConfig defines fallback retry and rate limit parameters.
type DefaultsConfig struct {
	Retry     RetryConfig     `mapstructure:"retry" validate:"required"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit" validate:"required"`
}

// RetryConfig defines default retry behavior.
type RetryConfig struct {
	MaxAttempts       int           `mapstructure:"max_attempts" validate:"min=1,max=10"`
	InitialDelay      time.Duration `mapstructure:"initial_delay" validate:"min=1ms,max=10s"`
	MaxDelay          time.Duration `mapstructure:"max_delay" validate:"min=1s,max=5m"`
	BackoffMultiplier float64       `mapstructure:"backoff_multiplier" validate:"min=1.0,max=10.0"`
	DisableJitter     bool          `mapstructure:"disable_jitter"`
}

// RateLimitConfig defines the default rule applied when a rule set names a
// pattern without parameters.
type RateLimitConfig struct {
	Algorithm string        `mapstructure:"algorithm" validate:"oneof=token_bucket sliding_window fixed_window leaky_bucket"`
	Limit     int           `mapstructure:"limit" validate:"min=1,max=100000"`
	Window    time.Duration `mapstructure:"window" validate:"min=1s,max=1h"`
	BurstSize int           `mapstructure:"burst_size" validate:"min=0,max=10000"`
}

var configValidator = validator.New()

// Load loads configuration from file and environment variables using viper.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	v.AddConfigPath("/etc/execution-core")

	v.AutomaticEnv()
	v.SetEnvPrefix("EXECCORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// A missing config file is acceptable, defaults and env vars apply.
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

// Validate validates the configuration using struct tags and custom rules.
func Validate(config *Config) error {
	if err := configValidator.Struct(config); err != nil {
		return formatValidationError(err)
	}
	return validateCustomRules(config)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 50061)
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.max_recv_msg_size", 4194304) // 4MB
	v.SetDefault("server.max_send_msg_size", 4194304) // 4MB

	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.url", "redis://localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.tls_enabled", false)
	v.SetDefault("redis.tls_skip_verify", false)
	v.SetDefault("redis.connect_timeout", "5s")
	v.SetDefault("redis.read_timeout", "3s")
	v.SetDefault("redis.write_timeout", "3s")
	v.SetDefault("redis.max_retries", 3)
	v.SetDefault("redis.pool_size", 10)

	v.SetDefault("opentelemetry.endpoint", "http://localhost:4317")
	v.SetDefault("opentelemetry.service_name", "execution-core")
	v.SetDefault("opentelemetry.service_version", "1.0.0")
	v.SetDefault("opentelemetry.environment", "development")
	v.SetDefault("opentelemetry.insecure", true)
	v.SetDefault("opentelemetry.timeout", "10s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("limits.rules_path", "")
	v.SetDefault("limits.cleanup_interval", "1m")

	v.SetDefault("defaults.retry.max_attempts", 3)
	v.SetDefault("defaults.retry.initial_delay", "1s")
	v.SetDefault("defaults.retry.max_delay", "30s")
	v.SetDefault("defaults.retry.backoff_multiplier", 2.0)
	v.SetDefault("defaults.retry.disable_jitter", false)

	v.SetDefault("defaults.rate_limit.algorithm", "sliding_window")
	v.SetDefault("defaults.rate_limit.limit", 1000)
	v.SetDefault("defaults.rate_limit.window", "1m")
	v.SetDefault("defaults.rate_limit.burst_size", 0)
}

func validateCustomRules(config *Config) error {
	if config.Defaults.Retry.InitialDelay > config.Defaults.Retry.MaxDelay {
		return fmt.Errorf("initial delay (%v) cannot be greater than max delay (%v)",
			config.Defaults.Retry.InitialDelay, config.Defaults.Retry.MaxDelay)
	}

	if config.OpenTelemetry.Environment == "production" {
		if config.OpenTelemetry.Insecure {
			return fmt.Errorf("insecure OpenTelemetry not allowed in production")
		}
		if config.Redis.Enabled && !config.Redis.TLSEnabled {
			return fmt.Errorf("TLS must be enabled for Redis in production")
		}
		if config.Redis.TLSSkipVerify {
			return fmt.Errorf("TLS verification cannot be skipped in production")
		}
	}

	return nil
}

// formatValidationError formats validation errors with detailed messages.
func formatValidationError(err error) error {
	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		var messages []string
		for _, fieldError := range validationErrors {
			messages = append(messages, fmt.Sprintf("field '%s' failed validation: %s (value: %v)",
				fieldError.Field(), fieldError.Tag(), fieldError.Value()))
		}
		return fmt.Errorf("validation errors: %s", strings.Join(messages, "; "))
	}
	return err
}
