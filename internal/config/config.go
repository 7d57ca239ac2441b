package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App      AppConfig
	Upstream UpstreamConfig
	Timing   TimingConfig
}

type AppConfig struct {
	Port               string
	Environment        string
	LogFilePath        string
	CorsAllowedOrigins string
	NatsURL            string
	RedisURL           string
	JWTSecret          string
}

// UpstreamConfig holds the address and per-call deadlines for the LLM
// inference service this gateway fronts.
type UpstreamConfig struct {
	BaseURL         string
	MetadataTimeout time.Duration // 10s
	HistoryTimeout  time.Duration // 15s
	ChatTimeout     time.Duration // 30s
	StopTimeout     time.Duration // 100s
}

// TimingConfig holds the streaming gates from the concurrency model.
type TimingConfig struct {
	IdleBeforeFirstDone    time.Duration // 300ms
	IdleBeforeFirstPending time.Duration // 1000ms
	QuiescenceDone         time.Duration // 1500ms
	QuiescenceNone         time.Duration // 5000ms
	SafetyTimeout          time.Duration // 60s
	ErrorDrain             time.Duration // 2000ms
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, usage system environment")
	}

	return &Config{
		App: AppConfig{
			Port:               getEnv("APP_PORT", "3000"),
			Environment:        getEnv("GO_ENV", "development"),
			LogFilePath:        getEnv("LOG_FILE_PATH", "orchestrator.log"),
			CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),
			NatsURL:            getEnv("NATS_URL", "nats://localhost:4222"),
			RedisURL:           getEnv("REDIS_URL", "redis://localhost:6379"),
			JWTSecret:          getEnv("JWT_SECRET", ""),
		},
		Upstream: UpstreamConfig{
			BaseURL:         getEnv("UPSTREAM_BASE_URL", "http://localhost:8080"),
			MetadataTimeout: getEnvAsDuration("UPSTREAM_METADATA_TIMEOUT_MS", 10_000),
			HistoryTimeout:  getEnvAsDuration("UPSTREAM_HISTORY_TIMEOUT_MS", 15_000),
			ChatTimeout:     getEnvAsDuration("UPSTREAM_CHAT_TIMEOUT_MS", 30_000),
			StopTimeout:     getEnvAsDuration("UPSTREAM_STOP_TIMEOUT_MS", 100_000),
		},
		Timing: TimingConfig{
			IdleBeforeFirstDone:    getEnvAsDuration("TIMING_IDLE_FIRST_DONE_MS", 300),
			IdleBeforeFirstPending: getEnvAsDuration("TIMING_IDLE_FIRST_PENDING_MS", 1_000),
			QuiescenceDone:         getEnvAsDuration("TIMING_QUIESCENCE_DONE_MS", 1_500),
			QuiescenceNone:         getEnvAsDuration("TIMING_QUIESCENCE_NONE_MS", 5_000),
			SafetyTimeout:          getEnvAsDuration("TIMING_SAFETY_TIMEOUT_MS", 60_000),
			ErrorDrain:             getEnvAsDuration("TIMING_ERROR_DRAIN_MS", 2_000),
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

func getEnvAsDuration(key string, fallbackMs int) time.Duration {
	return time.Duration(getEnvAsInt(key, fallbackMs)) * time.Millisecond
}
