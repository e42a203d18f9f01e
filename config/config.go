package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"argus/core"
)

// Config holds all configuration for the Argus service
type Config struct {
	// LogLevel controls zap verbosity: debug, info, warn, error
	LogLevel string `mapstructure:"log_level"`

	DataPaths struct {
		// DataDir is the base data directory (ARGUS_DATA_DIR, default: ./data)
		DataDir string `mapstructure:"data_dir"`
		// SQLitePath is the SQLite database file path (default: ${DataDir}/argus.db)
		SQLitePath string `mapstructure:"sqlite_path"`
		// RulesDir holds YAML rule files loaded at startup (default: ${DataDir}/rules)
		RulesDir string `mapstructure:"rules_dir"`
	} `mapstructure:"data_paths"`

	API struct {
		Port int    `mapstructure:"port"`
		Host string `mapstructure:"host"`
		// ReadTimeout / WriteTimeout guard slow clients
		ReadTimeout  time.Duration `mapstructure:"read_timeout"`
		WriteTimeout time.Duration `mapstructure:"write_timeout"`
		RateLimit    struct {
			RequestsPerSecond int `mapstructure:"requests_per_second"`
			Burst             int `mapstructure:"burst"`
		} `mapstructure:"rate_limit"`
		JSONBodyLimit int64 `mapstructure:"json_body_limit"`
	} `mapstructure:"api"`

	Storage struct {
		// Backend selects the store: sqlite or memory
		Backend string `mapstructure:"backend"`
	} `mapstructure:"storage"`

	Redis struct {
		Enabled  bool   `mapstructure:"enabled"`
		Addr     string `mapstructure:"addr"`
		Password string `mapstructure:"password"`
		DB       int    `mapstructure:"db"`
		PoolSize int    `mapstructure:"pool_size"`
	} `mapstructure:"redis"`

	Engine struct {
		// CorrelationWindow bounds how long an open alert absorbs
		// repeat occurrences of the same rule and source
		CorrelationWindow time.Duration `mapstructure:"correlation_window"`
		// ResolvedRetention is how long resolved alerts stay queryable
		// in the active set before eviction
		ResolvedRetention time.Duration `mapstructure:"resolved_retention"`
		DispatchWorkers   int           `mapstructure:"dispatch_workers"`
		DispatchQueueSize int           `mapstructure:"dispatch_queue_size"`
		NotifyTimeout     time.Duration `mapstructure:"notify_timeout"`
	} `mapstructure:"engine"`
}

func setDefaults() {
	viper.SetDefault("log_level", "info")

	viper.SetDefault("data_paths.data_dir", "./data")
	viper.SetDefault("data_paths.sqlite_path", "") // Empty = derive from data_dir
	viper.SetDefault("data_paths.rules_dir", "")   // Empty = derive from data_dir

	viper.SetDefault("api.port", 8080)
	viper.SetDefault("api.host", "0.0.0.0")
	viper.SetDefault("api.read_timeout", 15*time.Second)
	viper.SetDefault("api.write_timeout", 15*time.Second)
	viper.SetDefault("api.rate_limit.requests_per_second", 100)
	viper.SetDefault("api.rate_limit.burst", 200)
	viper.SetDefault("api.json_body_limit", 1048576) // 1MB

	viper.SetDefault("storage.backend", "sqlite")

	viper.SetDefault("redis.enabled", false)
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.pool_size", 10)

	viper.SetDefault("engine.correlation_window", core.DefaultWindow)
	viper.SetDefault("engine.resolved_retention", 5*time.Minute)
	viper.SetDefault("engine.dispatch_workers", 4)
	viper.SetDefault("engine.dispatch_queue_size", 1000)
	viper.SetDefault("engine.notify_timeout", 10*time.Second)
}

func loadFromEnv() {
	viper.SetEnvPrefix("ARGUS")
	viper.AutomaticEnv()

	_ = viper.BindEnv("log_level", "ARGUS_LOG_LEVEL")
	_ = viper.BindEnv("data_paths.data_dir", "ARGUS_DATA_DIR")
	_ = viper.BindEnv("data_paths.sqlite_path", "ARGUS_SQLITE_PATH")
	_ = viper.BindEnv("data_paths.rules_dir", "ARGUS_RULES_DIR")
	_ = viper.BindEnv("api.port", "ARGUS_API_PORT")
	_ = viper.BindEnv("storage.backend", "ARGUS_STORAGE_BACKEND")
	_ = viper.BindEnv("redis.addr", "ARGUS_REDIS_ADDR")
}

// LoadConfig loads configuration from file and environment variables.
// Looks for config.yaml in the working directory and ./config.
func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	setDefaults()
	loadFromEnv()

	if err := viper.ReadInConfig(); err != nil {
		// Config file not found, will use defaults and env vars
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	config.ResolveDataPaths()

	return &config, nil
}

// ResolveDataPaths derives unset paths from DataDir
func (c *Config) ResolveDataPaths() {
	dataDir := c.DataPaths.DataDir
	if dataDir == "" {
		dataDir = "./data"
	}

	if c.DataPaths.SQLitePath == "" {
		c.DataPaths.SQLitePath = filepath.Join(dataDir, "argus.db")
	} else if !filepath.IsAbs(c.DataPaths.SQLitePath) {
		c.DataPaths.SQLitePath = filepath.Clean(c.DataPaths.SQLitePath)
	}

	if c.DataPaths.RulesDir == "" {
		c.DataPaths.RulesDir = filepath.Join(dataDir, "rules")
	} else if !filepath.IsAbs(c.DataPaths.RulesDir) {
		c.DataPaths.RulesDir = filepath.Clean(c.DataPaths.RulesDir)
	}

	c.DataPaths.DataDir = dataDir
}

func validateConfig(config *Config) error {
	if config.API.Port < 1 || config.API.Port > 65535 {
		return fmt.Errorf("invalid API port: %d (must be 1-65535)", config.API.Port)
	}
	if config.API.Host == "" {
		return fmt.Errorf("API host cannot be empty")
	}

	switch config.Storage.Backend {
	case "sqlite", "memory":
	default:
		return fmt.Errorf("invalid storage backend: %q (must be sqlite or memory)", config.Storage.Backend)
	}

	if config.Redis.Enabled && config.Redis.Addr == "" {
		return fmt.Errorf("redis enabled but no address configured")
	}

	if config.Engine.CorrelationWindow <= 0 {
		return fmt.Errorf("engine.correlation_window must be positive, got %v", config.Engine.CorrelationWindow)
	}
	if config.Engine.ResolvedRetention <= 0 {
		return fmt.Errorf("engine.resolved_retention must be positive, got %v", config.Engine.ResolvedRetention)
	}
	if config.Engine.DispatchWorkers < 1 {
		return fmt.Errorf("engine.dispatch_workers must be at least 1, got %d", config.Engine.DispatchWorkers)
	}
	if config.Engine.NotifyTimeout < time.Second || config.Engine.NotifyTimeout > time.Minute {
		return fmt.Errorf("engine.notify_timeout must be between 1s and 1m, got %v", config.Engine.NotifyTimeout)
	}

	if config.API.RateLimit.RequestsPerSecond < 1 {
		return fmt.Errorf("api.rate_limit.requests_per_second must be positive, got %d", config.API.RateLimit.RequestsPerSecond)
	}
	if config.API.RateLimit.Burst < config.API.RateLimit.RequestsPerSecond {
		return fmt.Errorf("api.rate_limit.burst must be at least requests_per_second")
	}

	return nil
}
