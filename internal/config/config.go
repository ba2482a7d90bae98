package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	LogLevel string
	Database DatabaseConfig
	Rabbit   RabbitConfig
	HTTP     HTTPConfig
	Engine   EngineConfig
}

type DatabaseConfig struct {
	Driver     string
	Host       string
	Port       int
	User       string
	Password   string
	DBName     string
	SSLMode    string
	SQLitePath string
}

type RabbitConfig struct {
	Enabled            bool
	Host               string
	Port               int
	User               string
	Password           string
	VHost              string
	Queue              string
	AutomationExchange string
	Prefetch           int
	Workers            int
}

// URL is the AMQP dial address.
func (c RabbitConfig) URL() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%d%s", c.User, c.Password, c.Host, c.Port, c.VHost)
}

type HTTPConfig struct {
	Addr        string
	CORSEnabled bool
}

type EngineConfig struct {
	TimeZone         string
	FlushDelay       time.Duration
	SnapshotThrottle time.Duration
	LeaderboardSize  int
	SweepInterval    time.Duration
	WarmupBatchSize  int
}

// Load reads the environment, after an optional .env file.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		LogLevel: getenv("LOG_LEVEL", "info"),
		Database: DatabaseConfig{
			Driver:     getenv("DB_DRIVER", "postgres"),
			Host:       getenv("DB_HOST", "localhost"),
			Port:       intFromEnv("DB_PORT", 5432),
			User:       getenv("DB_USER", "postgres"),
			Password:   getenv("DB_PASSWORD", "postgres"),
			DBName:     getenv("DB_NAME", "engagement_db"),
			SSLMode:    getenv("DB_SSLMODE", "disable"),
			SQLitePath: getenv("SQLITE_PATH", "engagement.sqlite3"),
		},
		Rabbit: RabbitConfig{
			Enabled:            getenv("RABBITMQ_ENABLED", "true") == "true",
			Host:               getenv("RABBITMQ_HOST", "localhost"),
			Port:               intFromEnv("RABBITMQ_PORT", 5672),
			User:               getenv("RABBITMQ_USER", "guest"),
			Password:           getenv("RABBITMQ_PASSWORD", "guest"),
			VHost:              getenv("RABBITMQ_VHOST", "/"),
			Queue:              getenv("RABBITMQ_QUEUE", "viewer_events"),
			AutomationExchange: getenv("RABBITMQ_AUTOMATION_EXCHANGE", "automation"),
			Prefetch:           intFromEnv("RABBITMQ_PREFETCH", 50),
			Workers:            clamp(intFromEnv("RABBITMQ_WORKERS", 1), 1, 4),
		},
		HTTP: HTTPConfig{
			Addr:        getenv("HTTP_ADDR", ":8080"),
			CORSEnabled: getenv("CORS_ENABLED", "true") == "true",
		},
		Engine: EngineConfig{
			TimeZone:         getenv("ENGINE_TIMEZONE", "Local"),
			FlushDelay:       time.Duration(intFromEnv("LEADERBOARD_FLUSH_DELAY_MS", 5000)) * time.Millisecond,
			SnapshotThrottle: time.Duration(intFromEnv("LEADERBOARD_THROTTLE_MS", 2000)) * time.Millisecond,
			LeaderboardSize:  clamp(intFromEnv("LEADERBOARD_SIZE", 10), 1, 100),
			SweepInterval:    time.Duration(intFromEnv("TRACKER_SWEEP_INTERVAL_SECONDS", 300)) * time.Second,
			WarmupBatchSize:  intFromEnv("LEADERBOARD_WARMUP_BATCH_SIZE", 1000),
		},
	}
}

func getenv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}

	return def
}

func intFromEnv(key string, def int) int {
	val := getenv(key, "")
	if val == "" {
		return def
	}

	if parsed, err := strconv.Atoi(val); err == nil {
		return parsed
	}

	return def
}

func clamp(value, min, max int) int {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
