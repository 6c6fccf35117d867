package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App           AppConfig
	Database      DatabaseConfig
	SMTP          SMTPConfig
	Collaborators CollaboratorConfig
	Pipeline      PipelineConfig
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

type DatabaseConfig struct {
	Connection string
}

type SMTPConfig struct {
	Host          string
	Port          int
	Email         string
	Password      string
	SenderName    string
	OperatorEmail string
}

type CollaboratorConfig struct {
	EntityExtractionURL string
	LiteratureBaseURL   string
	LiteratureEmail     string
	LiteratureAPIKey    string
	EmbeddingBaseURL    string
	EmbeddingModel      string
}

// PipelineConfig holds the orchestration tuning knobs. Defaults follow the
// documented contracts: 3 attempts, 10s call timeout, 1h cache TTL,
// 1 concurrent run per session, 50 buffered events per session.
type PipelineConfig struct {
	MaxAttempts        int
	CallTimeout        time.Duration
	RetryBaseDelay     time.Duration
	CacheTTL           time.Duration
	SessionTTL         time.Duration
	RunRetention       time.Duration
	MaxRunsPerSession  int
	EventBufferSize    int
	BreakerThreshold   int
	BreakerCooldown    time.Duration
	RateLimitPerSecond float64
	RateBurst          int
	MaxConcurrentCalls int64
	TopK               int
	MaxSearchResults   int
	LiteratureDaysBack int
	MinQueryLength     int
	MaxQueryLength     int
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, using system environment")
	}

	return &Config{
		App: AppConfig{
			Port:               getEnv("APP_PORT", "3000"),
			Environment:        getEnv("GO_ENV", "development"),
			LogFilePath:        getEnv("LOG_FILE_PATH", "logs/app.log"),
			CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),
			NatsURL:            getEnv("NATS_URL", "nats://localhost:4222"),
			RedisURL:           getEnv("REDIS_URL", "redis://localhost:6379"),
			JWTSecret:          getEnv("JWT_SECRET", ""),
		},
		Database: DatabaseConfig{
			Connection: getEnv("DB_CONNECTION_STRING", ""),
		},
		SMTP: SMTPConfig{
			Host:          getEnv("SMTP_HOST", ""),
			Port:          getEnvAsInt("SMTP_PORT", 587),
			Email:         getEnv("SMTP_EMAIL", ""),
			Password:      getEnv("SMTP_PASSWORD", ""),
			SenderName:    getEnv("SMTP_SENDER_NAME", "CDSS"),
			OperatorEmail: getEnv("OPERATOR_ALERT_EMAIL", ""),
		},
		Collaborators: CollaboratorConfig{
			EntityExtractionURL: getEnv("ENTITY_EXTRACTION_URL", "http://localhost:8100"),
			LiteratureBaseURL:   getEnv("LITERATURE_BASE_URL", "https://eutils.ncbi.nlm.nih.gov/entrez/eutils"),
			LiteratureEmail:     getEnv("LITERATURE_CONTACT_EMAIL", ""),
			LiteratureAPIKey:    getEnv("LITERATURE_API_KEY", ""),
			EmbeddingBaseURL:    getEnv("EMBEDDING_BASE_URL", "http://localhost:11434"),
			EmbeddingModel:      getEnv("EMBEDDING_MODEL", "pubmedbert-base-embeddings"),
		},
		Pipeline: PipelineConfig{
			MaxAttempts:        getEnvAsInt("PIPELINE_MAX_ATTEMPTS", 3),
			CallTimeout:        getEnvAsDuration("PIPELINE_CALL_TIMEOUT", 10*time.Second),
			RetryBaseDelay:     getEnvAsDuration("PIPELINE_RETRY_BASE_DELAY", 200*time.Millisecond),
			CacheTTL:           getEnvAsDuration("EVIDENCE_CACHE_TTL", time.Hour),
			SessionTTL:         getEnvAsDuration("SESSION_TTL", 30*time.Minute),
			RunRetention:       getEnvAsDuration("RUN_RETENTION", time.Hour),
			MaxRunsPerSession:  getEnvAsInt("MAX_RUNS_PER_SESSION", 1),
			EventBufferSize:    getEnvAsInt("EVENT_BUFFER_SIZE", 50),
			BreakerThreshold:   getEnvAsInt("BREAKER_FAILURE_THRESHOLD", 5),
			BreakerCooldown:    getEnvAsDuration("BREAKER_COOLDOWN", 30*time.Second),
			RateLimitPerSecond: getEnvAsFloat("COLLABORATOR_RATE_LIMIT", 10),
			RateBurst:          getEnvAsInt("COLLABORATOR_RATE_BURST", 5),
			MaxConcurrentCalls: int64(getEnvAsInt("MAX_CONCURRENT_CALLS", 8)),
			TopK:               getEnvAsInt("SIMILARITY_TOP_K", 10),
			MaxSearchResults:   getEnvAsInt("LITERATURE_FETCH_LIMIT", 20),
			LiteratureDaysBack: getEnvAsInt("LITERATURE_DAYS_BACK", 1825),
			MinQueryLength:     getEnvAsInt("MIN_QUERY_LENGTH", 10),
			MaxQueryLength:     getEnvAsInt("MAX_QUERY_LENGTH", 10000),
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

func getEnvAsFloat(key string, fallback float64) float64 {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseFloat(strValue, 64); err == nil {
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
