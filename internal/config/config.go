// Package config loads application configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	App      AppConfig
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Log      LogConfig
	Scraper  ScraperConfig
	AI       AIConfig
	Storage  StorageConfig
	Worker   WorkerConfig
	Poller   PollerConfig
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Name  string
	Env   string
	Debug bool
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	MaxBodySize     int64
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DSN returns the PostgreSQL connection string.
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Host         string
	Port         int
	Password     string
	DB           int
	PoolSize     int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Addr returns the host:port address.
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string
	Format string
}

// ScraperConfig holds configuration for the external scraping platform.
type ScraperConfig struct {
	BaseURL string
	Token   string
	Timeout time.Duration

	// Dispatch rate limiting across all channels of a scan job.
	DispatchRatePerSecond float64
	DispatchBurst         int

	// Actor IDs per platform, mapping platform name to the scraping
	// platform's actor identifier.
	Actors map[string]string
}

// AIConfig holds configuration for the generative AI service.
type AIConfig struct {
	APIKey      string
	Model       string
	Timeout     time.Duration
	MaxRetries  int
	MaxTokens   int
	Temperature float64

	// LibrarianTopK is how many past examples the librarian returns.
	LibrarianTopK int

	// LibrarianCacheTTL bounds how long ranked example sets are cached.
	LibrarianCacheTTL time.Duration
}

// StorageConfig holds object storage configuration.
type StorageConfig struct {
	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
}

// WorkerConfig holds background worker configuration.
type WorkerConfig struct {
	Concurrency int
}

// PollerConfig holds run-status polling loop configuration.
type PollerConfig struct {
	// Schedule is a cron expression; defaults to every minute.
	Schedule string

	// BatchSize bounds how many started runs one poll cycle picks up.
	BatchSize int

	// MaxConcurrent bounds how many runs are checked at once.
	MaxConcurrent int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		App: AppConfig{
			Name:  getEnv("APP_NAME", "adscan"),
			Env:   getEnv("APP_ENV", "development"),
			Debug: getEnvBool("APP_DEBUG", false),
		},
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getEnvInt("SERVER_PORT", 8080),
			ReadTimeout:     getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			ShutdownTimeout: getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
			MaxBodySize:     getEnvInt64("SERVER_MAX_BODY_SIZE", 1<<20),
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnvInt("DB_PORT", 5432),
			User:            getEnv("DB_USER", "adscan"),
			Password:        getEnv("DB_PASSWORD", "secret"),
			Name:            getEnv("DB_NAME", "adscan"),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			Host:         getEnv("REDIS_HOST", "localhost"),
			Port:         getEnvInt("REDIS_PORT", 6379),
			Password:     getEnv("REDIS_PASSWORD", ""),
			DB:           getEnvInt("REDIS_DB", 0),
			PoolSize:     getEnvInt("REDIS_POOL_SIZE", 10),
			DialTimeout:  getEnvDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getEnvDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getEnvDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Scraper: ScraperConfig{
			BaseURL:               getEnv("SCRAPER_BASE_URL", "https://api.apify.com"),
			Token:                 getEnv("SCRAPER_TOKEN", ""),
			Timeout:               getEnvDuration("SCRAPER_TIMEOUT", 60*time.Second),
			DispatchRatePerSecond: getEnvFloat("SCRAPER_DISPATCH_RATE", 2.0),
			DispatchBurst:         getEnvInt("SCRAPER_DISPATCH_BURST", 5),
			Actors:                getEnvMap("SCRAPER_ACTORS", defaultActors()),
		},
		AI: AIConfig{
			APIKey:            getEnv("AI_API_KEY", ""),
			Model:             getEnv("AI_MODEL", "gemini-1.5-pro"),
			Timeout:           getEnvDuration("AI_TIMEOUT", 90*time.Second),
			MaxRetries:        getEnvInt("AI_MAX_RETRIES", 3),
			MaxTokens:         getEnvInt("AI_MAX_TOKENS", 4000),
			Temperature:       getEnvFloat("AI_TEMPERATURE", 0.2),
			LibrarianTopK:     getEnvInt("AI_LIBRARIAN_TOP_K", 3),
			LibrarianCacheTTL: getEnvDuration("AI_LIBRARIAN_CACHE_TTL", 15*time.Minute),
		},
		Storage: StorageConfig{
			Bucket:    getEnv("STORAGE_BUCKET", "adscan-media"),
			Region:    getEnv("STORAGE_REGION", "us-east-1"),
			Endpoint:  getEnv("STORAGE_ENDPOINT", ""),
			AccessKey: getEnv("STORAGE_ACCESS_KEY", ""),
			SecretKey: getEnv("STORAGE_SECRET_KEY", ""),
		},
		Worker: WorkerConfig{
			Concurrency: getEnvInt("WORKER_CONCURRENCY", 10),
		},
		Poller: PollerConfig{
			Schedule:      getEnv("POLLER_SCHEDULE", "* * * * *"),
			BatchSize:     getEnvInt("POLLER_BATCH_SIZE", 50),
			MaxConcurrent: getEnvInt("POLLER_MAX_CONCURRENT", 5),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required settings.
func (c *Config) Validate() error {
	if c.App.Env == "production" {
		if c.Scraper.Token == "" {
			return fmt.Errorf("SCRAPER_TOKEN is required in production")
		}
		if c.AI.APIKey == "" {
			return fmt.Errorf("AI_API_KEY is required in production")
		}
	}
	if c.Worker.Concurrency < 1 {
		return fmt.Errorf("WORKER_CONCURRENCY must be at least 1")
	}
	if c.Poller.MaxConcurrent < 1 {
		return fmt.Errorf("POLLER_MAX_CONCURRENT must be at least 1")
	}
	return nil
}

// defaultActors maps the supported platforms to their scraping actors.
func defaultActors() map[string]string {
	return map[string]string{
		"instagram": "apify/instagram-scraper",
		"facebook":  "apify/facebook-posts-scraper",
		"tiktok":    "clockworks/tiktok-scraper",
		"youtube":   "streamers/youtube-scraper",
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getEnvMap parses "key1=val1,key2=val2" pairs.
func getEnvMap(key string, defaultValue map[string]string) map[string]string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	result := make(map[string]string)
	for _, pair := range strings.Split(value, ",") {
		parts := strings.SplitN(strings.TrimSpace(pair), "=", 2)
		if len(parts) == 2 && parts[0] != "" {
			result[parts[0]] = parts[1]
		}
	}
	if len(result) == 0 {
		return defaultValue
	}
	return result
}
