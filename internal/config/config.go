// Package config provides configuration management for the Flowfile core.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the application configuration.
type Config struct {
	Server  ServerConfig
	Cache   CacheConfig
	Redis   RedisConfig
	Worker  WorkerConfig
	Kernel  KernelConfig
	Logging LoggingConfig
}

// ServerConfig holds HTTP-server-related configuration.
type ServerConfig struct {
	Port            int
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	// RunDeadline bounds a single flow run; zero means no deadline beyond
	// ctx cancellation. FLOWFILE_RUN_DEADLINE.
	RunDeadline time.Duration
}

// CacheConfig holds fingerprint/result cache configuration.
type CacheConfig struct {
	// Dir is FLOWFILE_CACHE_DIR: the root of {cache_dir}/{flow_id}/{fp}.arrow.
	Dir string
	// SharedVolume is FLOWFILE_SHARED_VOLUME, the shared-artifacts root
	// ({shared_artifacts}/{kernel_id}/{name}.{ext}).
	SharedVolume string
	// MaxParallelWorkers is the default FLOWFILE_MAX_PARALLEL_WORKERS override,
	// used when a flow's own settings do not specify one.
	MaxParallelWorkers int
	// Mode is FLOWFILE_MODE, one of "electron" or "docker".
	Mode string
}

// RedisConfig configures the optional distributed fingerprint-mutex/cache front.
type RedisConfig struct {
	Enabled  bool
	URL      string
	Password string
	DB       int
	PoolSize int
}

// WorkerConfig configures the worker-dispatch client (C5).
type WorkerConfig struct {
	// URL is FLOWFILE_WORKER_URL, e.g. "ws://localhost:8081".
	URL                string
	RequestTimeout     time.Duration
	MaxConcurrentSpawn int
	CapacityWaitTime   time.Duration
}

// KernelConfig configures the kernel coordinator (C6).
type KernelConfig struct {
	DockerHost      string
	DockerAPIVer    string
	DefaultImage    string
	HealthTimeout   time.Duration
	HealthPollEvery time.Duration
	AutoRestart     bool
}

// LoggingConfig holds logging-related configuration.
type LoggingConfig struct {
	Level  string
	Format string // "json" or "text"
}

// Load loads the configuration from environment variables.
func Load() (*Config, error) {
	godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnvAsInt("FLOWFILE_PORT", 8080),
			Host:            getEnv("FLOWFILE_HOST", "0.0.0.0"),
			ReadTimeout:     getEnvAsDuration("FLOWFILE_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvAsDuration("FLOWFILE_WRITE_TIMEOUT", 15*time.Second),
			ShutdownTimeout: getEnvAsDuration("FLOWFILE_SHUTDOWN_TIMEOUT", 30*time.Second),
			RunDeadline:     getEnvAsDuration("FLOWFILE_RUN_DEADLINE", 0),
		},
		Cache: CacheConfig{
			Dir:                getEnv("FLOWFILE_CACHE_DIR", "./data/cache"),
			SharedVolume:       getEnv("FLOWFILE_SHARED_VOLUME", "./data/shared"),
			MaxParallelWorkers: getEnvAsInt("FLOWFILE_MAX_PARALLEL_WORKERS", 4),
			Mode:               getEnv("FLOWFILE_MODE", "electron"),
		},
		Redis: RedisConfig{
			Enabled:  getEnvAsBool("FLOWFILE_REDIS_ENABLED", false),
			URL:      getEnv("FLOWFILE_REDIS_URL", "redis://localhost:6379"),
			Password: getEnv("FLOWFILE_REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("FLOWFILE_REDIS_DB", 0),
			PoolSize: getEnvAsInt("FLOWFILE_REDIS_POOL_SIZE", 10),
		},
		Worker: WorkerConfig{
			URL:                getEnv("FLOWFILE_WORKER_URL", "ws://localhost:8081"),
			RequestTimeout:     getEnvAsDuration("FLOWFILE_WORKER_TIMEOUT", 5*time.Minute),
			MaxConcurrentSpawn: getEnvAsInt("FLOWFILE_WORKER_MAX_SPAWN", 4),
			CapacityWaitTime:   getEnvAsDuration("FLOWFILE_WORKER_CAPACITY_WAIT", 30*time.Second),
		},
		Kernel: KernelConfig{
			DockerHost:      getEnv("FLOWFILE_KERNEL_DOCKER_HOST", "unix:///var/run/docker.sock"),
			DockerAPIVer:    getEnv("FLOWFILE_KERNEL_DOCKER_API_VERSION", "1.49"),
			DefaultImage:    getEnv("FLOWFILE_KERNEL_IMAGE", "flowfile/kernel-runtime:latest"),
			HealthTimeout:   getEnvAsDuration("FLOWFILE_KERNEL_HEALTH_TIMEOUT", 30*time.Second),
			HealthPollEvery: getEnvAsDuration("FLOWFILE_KERNEL_HEALTH_POLL_INTERVAL", 500*time.Millisecond),
			AutoRestart:     getEnvAsBool("FLOWFILE_KERNEL_AUTO_RESTART", true),
		},
		Logging: LoggingConfig{
			Level:  getEnv("FLOWFILE_LOG_LEVEL", "info"),
			Format: getEnv("FLOWFILE_LOG_FORMAT", "json"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}

	if c.Cache.MaxParallelWorkers < 1 {
		return fmt.Errorf("FLOWFILE_MAX_PARALLEL_WORKERS must be at least 1")
	}

	if c.Cache.Mode != "electron" && c.Cache.Mode != "docker" {
		return fmt.Errorf("invalid FLOWFILE_MODE: %s (must be electron or docker)", c.Cache.Mode)
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	if c.Logging.Format != "json" && c.Logging.Format != "text" {
		return fmt.Errorf("invalid log format: %s (must be json or text)", c.Logging.Format)
	}

	if c.Worker.MaxConcurrentSpawn < 1 {
		return fmt.Errorf("FLOWFILE_WORKER_MAX_SPAWN must be at least 1")
	}

	return nil
}

// Helper functions for environment variables.

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
