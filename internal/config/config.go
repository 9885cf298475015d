package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig
	Redis     RedisConfig
	Studio    StudioConfig
	GenAI     GenAIConfig
	Occasions OccasionsConfig
	LogLevel  string
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port         int
	ReadTimeout  int
	WriteTimeout int
}

// RedisConfig holds Redis-related configuration
type RedisConfig struct {
	Enabled       bool
	Addr          string
	Password      string
	DB            int
	ConsumerGroup string
	ConsumerName  string
	StoreTTL      time.Duration // expiry for persisted session data, 0 = none
}

// StudioConfig holds export pipeline configuration
type StudioConfig struct {
	HardLimitBytes int
	MinWidth       int
	MinHeight      int
	Padding        int
	Workers        int
	ExportTimeout  time.Duration
	// SessionIdleTTL evicts sessions from memory after this long without a
	// request; persisted data follows Redis.StoreTTL
	SessionIdleTTL    time.Duration
	AllowPrivateFetch bool // allow image URLs on private networks
}

// GenAIConfig holds configuration for the generative AI collaborator
type GenAIConfig struct {
	APIKey        string
	EditModel     string
	JSONModel     string
	SVGModel      string
	RetryAttempts int
	RetryBase     time.Duration
	RatePerMinute int
}

// OccasionsConfig holds the occasions catalog location
type OccasionsConfig struct {
	Path string // empty uses the built-in catalog
}

// DefaultHardLimitBytes is the export size ceiling (512 KiB)
const DefaultHardLimitBytes = 512 * 1024

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (optional)
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:         getEnvAsInt("SERVER_PORT", 8080),
			ReadTimeout:  getEnvAsInt("SERVER_READ_TIMEOUT", 10),
			WriteTimeout: getEnvAsInt("SERVER_WRITE_TIMEOUT", 60),
		},
		Redis: RedisConfig{
			Enabled:       getEnvAsBool("REDIS_ENABLED", true),
			Addr:          getRedisAddr(),
			Password:      getEnv("REDIS_PASSWORD", ""),
			DB:            getEnvAsInt("REDIS_DB", 0),
			ConsumerGroup: getEnv("REDIS_CONSUMER_GROUP", "studio-renderers"),
			ConsumerName:  getEnv("REDIS_CONSUMER_NAME", ""),
			StoreTTL:      time.Duration(getEnvAsInt("STORE_TTL_SECONDS", 7*24*3600)) * time.Second,
		},
		Studio: StudioConfig{
			HardLimitBytes:    getEnvAsInt("STUDIO_HARD_LIMIT_BYTES", DefaultHardLimitBytes),
			MinWidth:          getEnvAsInt("STUDIO_MIN_WIDTH", 800),
			MinHeight:         getEnvAsInt("STUDIO_MIN_HEIGHT", 600),
			Padding:           getEnvAsInt("STUDIO_PADDING", 40),
			Workers:           getEnvAsInt("STUDIO_WORKERS", 4),
			ExportTimeout:     getEnvAsDuration("STUDIO_EXPORT_TIMEOUT", 60*time.Second),
			SessionIdleTTL:    getEnvAsDuration("STUDIO_SESSION_IDLE_TTL", time.Hour),
			AllowPrivateFetch: getEnvAsBool("STUDIO_ALLOW_PRIVATE_FETCH", false),
		},
		GenAI: GenAIConfig{
			APIKey:        getEnv("GENAI_API_KEY", ""),
			EditModel:     getEnv("GENAI_EDIT_MODEL", "gemini-2.5-flash-image"),
			JSONModel:     getEnv("GENAI_JSON_MODEL", "gemini-2.5-flash"),
			SVGModel:      getEnv("GENAI_SVG_MODEL", "gemini-3-pro-preview"),
			RetryAttempts: getEnvAsInt("GENAI_RETRY_ATTEMPTS", 3),
			RetryBase:     time.Duration(getEnvAsInt("GENAI_RETRY_BASE_DELAY_MS", 2000)) * time.Millisecond,
			RatePerMinute: getEnvAsInt("GENAI_RATE_PER_MINUTE", 30),
		},
		Occasions: OccasionsConfig{
			Path: getEnv("OCCASIONS_PATH", ""),
		},
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	return cfg, nil
}

// getRedisAddr resolves the Redis address from REDIS_URL or REDIS_ADDR
func getRedisAddr() string {
	if url := os.Getenv("REDIS_URL"); url != "" {
		return strings.TrimPrefix(url, "redis://")
	}
	return getEnv("REDIS_ADDR", "localhost:6379")
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as int or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvAsDuration accepts Go duration strings ("45s") or plain seconds
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
