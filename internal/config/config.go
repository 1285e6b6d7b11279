package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Supabase   SupabaseConfig   `mapstructure:"supabase"`
	Log        LogConfig        `mapstructure:"log"`
	Store      StoreConfig      `mapstructure:"store"`
	Dispatcher DispatcherConfig `mapstructure:"dispatcher"`
	Oracle     OracleConfig     `mapstructure:"oracle"`
	Engine     EngineConfig     `mapstructure:"engine"`
	Insights   InsightsConfig   `mapstructure:"insights"`
	Tracing    TracingConfig    `mapstructure:"tracing"`
}

// ServerConfig holds server-specific configuration
type ServerConfig struct {
	Port string `mapstructure:"port"`
	Env  string `mapstructure:"env"`
	// GenerateRPS and GenerateBurst bound POST /insights/generate per user
	GenerateRPS   float64 `mapstructure:"generate_rps"`
	GenerateBurst int     `mapstructure:"generate_burst"`
	// CORSAllowedOrigins accepts exact origins and single-label wildcards
	// such as https://*.cyclesense.pages.dev. Empty allows all origins.
	CORSAllowedOrigins []string `mapstructure:"cors_allowed_origins"`
}

// SupabaseConfig holds Supabase-specific configuration
type SupabaseConfig struct {
	URL        string `mapstructure:"url"`
	ServiceKey string `mapstructure:"service_key"`
}

// LogConfig selects the logging backend and verbosity
type LogConfig struct {
	Level   string `mapstructure:"level"`
	Format  string `mapstructure:"format"`
	Backend string `mapstructure:"backend"`
}

// StoreConfig selects where insight blobs are persisted
type StoreConfig struct {
	Driver      string `mapstructure:"driver"` // sqlite, redis or memory
	Path        string `mapstructure:"path"`
	RedisAddr   string `mapstructure:"redis_addr"`
	RedisDB     int    `mapstructure:"redis_db"`
	RedisPrefix string `mapstructure:"redis_prefix"`
}

// DispatcherConfig mirrors dispatcher.Config
type DispatcherConfig struct {
	MaxConcurrent int           `mapstructure:"max_concurrent"`
	MaxPerWindow  int           `mapstructure:"max_per_window"`
	Window        time.Duration `mapstructure:"window"`
	MaxQueue      int           `mapstructure:"max_queue"`
}

// OracleConfig configures the remote text-completion backend
type OracleConfig struct {
	Provider    string        `mapstructure:"provider"` // anthropic, openai or none
	APIKey      string        `mapstructure:"api_key"`
	Model       string        `mapstructure:"model"`
	BaseURL     string        `mapstructure:"base_url"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MinInterval time.Duration `mapstructure:"min_interval"`
}

// EngineConfig tunes the generation strategies
type EngineConfig struct {
	EnhancedMinInterval time.Duration `mapstructure:"enhanced_min_interval"`
	SimulatedLatency    time.Duration `mapstructure:"simulated_latency"`
	DefaultMaxInsights  int           `mapstructure:"default_max_insights"`
}

// InsightsConfig tunes the lifecycle manager
type InsightsConfig struct {
	Retention       int           `mapstructure:"retention"`
	RegenerateAfter time.Duration `mapstructure:"regenerate_after"`
	MinActive       int           `mapstructure:"min_active"`
}

// TracingConfig configures OpenTelemetry export
type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	Exporter    string  `mapstructure:"exporter"` // stdout or otlp
	Endpoint    string  `mapstructure:"endpoint"`
	Insecure    bool    `mapstructure:"insecure"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

// Load reads configuration from environment variables and config files
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	// Read from environment variables
	v.SetEnvPrefix("CYCLESENSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Also bind to non-prefixed environment variables used by the hosting platform
	v.BindEnv("server.port", "PORT")
	v.BindEnv("supabase.url", "SUPABASE_URL")
	v.BindEnv("supabase.service_key", "SUPABASE_SERVICE_KEY")
	v.BindEnv("server.cors_allowed_origins", "CORS_ALLOWED_ORIGINS")
	v.BindEnv("oracle.api_key", "CYCLESENSE_ORACLE_API_KEY", "ANTHROPIC_API_KEY")

	// Read from config file if it exists
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// It's okay if config file doesn't exist
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	// Validate required fields
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// setDefaults registers every key so AutomaticEnv can override it during Unmarshal
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.env", "development")
	v.SetDefault("server.generate_rps", 0.2)
	v.SetDefault("server.generate_burst", 2)
	v.SetDefault("server.cors_allowed_origins", []string{})

	v.SetDefault("supabase.url", "")
	v.SetDefault("supabase.service_key", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.backend", "slog")

	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "cyclesense.db")
	v.SetDefault("store.redis_addr", "localhost:6379")
	v.SetDefault("store.redis_db", 0)
	v.SetDefault("store.redis_prefix", "cyclesense")

	v.SetDefault("dispatcher.max_concurrent", 3)
	v.SetDefault("dispatcher.max_per_window", 30)
	v.SetDefault("dispatcher.window", time.Minute)
	v.SetDefault("dispatcher.max_queue", 0)

	v.SetDefault("oracle.provider", "none")
	v.SetDefault("oracle.api_key", "")
	v.SetDefault("oracle.model", "claude-sonnet-4-5")
	v.SetDefault("oracle.base_url", "")
	v.SetDefault("oracle.timeout", 30*time.Second)
	v.SetDefault("oracle.min_interval", time.Second)

	v.SetDefault("engine.enhanced_min_interval", 500*time.Millisecond)
	v.SetDefault("engine.simulated_latency", 800*time.Millisecond)
	v.SetDefault("engine.default_max_insights", 5)

	v.SetDefault("insights.retention", 15)
	v.SetDefault("insights.regenerate_after", 24*time.Hour)
	v.SetDefault("insights.min_active", 3)

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.exporter", "stdout")
	v.SetDefault("tracing.endpoint", "")
	v.SetDefault("tracing.insecure", false)
	v.SetDefault("tracing.sample_ratio", 1.0)
}

// Validate checks that all required configuration values are present
func (c *Config) Validate() error {
	if c.Supabase.URL == "" {
		return fmt.Errorf("SUPABASE_URL is required")
	}
	if c.Supabase.ServiceKey == "" {
		return fmt.Errorf("SUPABASE_SERVICE_KEY is required")
	}

	switch c.Store.Driver {
	case "sqlite":
		if c.Store.Path == "" {
			return fmt.Errorf("store.path is required for the sqlite driver")
		}
	case "redis":
		if c.Store.RedisAddr == "" {
			return fmt.Errorf("store.redis_addr is required for the redis driver")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}

	switch c.Oracle.Provider {
	case "none", "":
	case "anthropic", "openai":
		if c.Oracle.APIKey == "" {
			return fmt.Errorf("oracle.api_key is required for provider %q", c.Oracle.Provider)
		}
	default:
		return fmt.Errorf("unknown oracle provider %q", c.Oracle.Provider)
	}

	if c.Dispatcher.MaxConcurrent < 1 {
		return fmt.Errorf("dispatcher.max_concurrent must be at least 1")
	}
	if c.Dispatcher.MaxPerWindow < 1 {
		return fmt.Errorf("dispatcher.max_per_window must be at least 1")
	}
	if c.Dispatcher.MaxQueue < 0 {
		return fmt.Errorf("dispatcher.max_queue must not be negative")
	}
	if c.Insights.Retention < 1 {
		return fmt.Errorf("insights.retention must be at least 1")
	}

	if c.Tracing.Enabled && c.Tracing.Exporter != "stdout" && c.Tracing.Exporter != "otlp" {
		return fmt.Errorf("unknown tracing exporter %q", c.Tracing.Exporter)
	}
	return nil
}
