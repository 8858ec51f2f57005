package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App     AppConfig
	Ai      AIConfig
	Session SessionConfig
	Stream  StreamConfig
	Otel    OtelConfig
}

type AppConfig struct {
	Port                string
	RealtimePort        string
	Environment         string
	LogFilePath         string
	RealtimeLogFilePath string
	CorsAllowedOrigins  string
	NatsURL             string // empty disables the NATS relay
	RedisURL            string
}

type AIConfig struct {
	DatasetDir      string
	DefaultLocale   string
	Locale          string
	UnclassifiedDir string
	AssistantName   string
}

type SessionConfig struct {
	Backend         string // "file", "redis" or "memory"
	Dir             string
	CacheTTL        time.Duration
	DefaultTimezone string
}

type StreamConfig struct {
	HandlerWordDelay  time.Duration
	WSEventDelay      time.Duration
	SSEEventDelay     time.Duration
	MaxMessageBytes   int
	HandshakeMaxBytes int
}

// OtelConfig controls trace export. Tracing is off unless Enabled.
type OtelConfig struct {
	Enabled     bool
	Endpoint    string
	ServiceName string
}

func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, usage system environment")
	}

	return &Config{
		App: AppConfig{
			Port:                getEnv("APP_PORT", "3000"),
			RealtimePort:        getEnv("REALTIME_PORT", "8081"),
			Environment:         getEnv("GO_ENV", "development"),
			LogFilePath:         getEnv("LOG_FILE_PATH", "logs/app.log"),
			RealtimeLogFilePath: getEnv("REALTIME_LOG_FILE_PATH", "logs/realtime.log"),
			CorsAllowedOrigins:  getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),
			NatsURL:             getEnv("NATS_URL", ""),
			RedisURL:            getEnv("REDIS_URL", "redis://localhost:6379"),
		},
		Ai: AIConfig{
			DatasetDir:      getEnv("DATASET_DIR", "datasets/locale"),
			DefaultLocale:   getEnv("DEFAULT_LOCALE", "en_GB"),
			Locale:          getEnv("LOCALE", "en_GB"),
			UnclassifiedDir: getEnv("UNCLASSIFIED_DIR", "datasets/unclassified"),
			AssistantName:   getEnv("ASSISTANT_NAME", "EpiNett AI"),
		},
		Session: SessionConfig{
			Backend:         getEnv("SESSION_BACKEND", "file"),
			Dir:             getEnv("SESSION_DIR", "var/sessions/ai"),
			CacheTTL:        getEnvAsDuration("SESSION_CACHE_TTL", time.Hour),
			DefaultTimezone: getEnv("DEFAULT_TIMEZONE", "Europe/Berlin"),
		},
		Stream: StreamConfig{
			HandlerWordDelay:  getEnvAsDuration("HANDLER_WORD_DELAY", 80*time.Millisecond),
			WSEventDelay:      getEnvAsDuration("WS_EVENT_DELAY", 100*time.Millisecond),
			SSEEventDelay:     getEnvAsDuration("SSE_EVENT_DELAY", 150*time.Millisecond),
			MaxMessageBytes:   getEnvAsInt("MAX_MESSAGE_BYTES", 1<<20),
			HandshakeMaxBytes: getEnvAsInt("HANDSHAKE_MAX_BYTES", 8<<10),
		},
		Otel: OtelConfig{
			Enabled:     getEnvAsBool("OTEL_ENABLED", false),
			Endpoint:    getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318"),
			ServiceName: getEnv("OTEL_SERVICE_NAME", "ai-intent-chat-backend"),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseBool(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	strValue := getEnv(key, "")
	if value, err := time.ParseDuration(strValue); err == nil {
		return value
	}
	return fallback
}
