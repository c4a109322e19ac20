package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App       AppConfig
	Database  DatabaseConfig
	Keys      APIKeys
	LLM       LLMConfig
	Embedding EmbeddingConfig
	Agent     AgentConfig
	Memory    MemoryConfig
	RAG       RAGConfig
	Store     StoreConfig
	Tracing   TracingConfig
}

type AppConfig struct {
	Port               string
	Environment        string
	LogFilePath        string
	EventLogFilePath   string
	CorsAllowedOrigins string
	NatsURL            string
	RedisURL           string
}

type DatabaseConfig struct {
	Connection string
}

type APIKeys struct {
	JWTSecret string
}

type LLMConfig struct {
	Provider     string // "gateway" or "ollama"
	BaseURL      string
	Model        string
	APIKey       string
	PhaseTimeout time.Duration
}

type EmbeddingConfig struct {
	Provider      string // "hash" or "ollama"
	OllamaBaseURL string
	OllamaModel   string
	Dimension     int
}

type AgentConfig struct {
	MaxMemoryTokens int
	MaxRAGTokens    int
	AutoApprove     bool
	UseMemorySystem bool
	UseRAGSystem    bool
}

type MemoryConfig struct {
	MaxShortTermItems  int
	MaxLongTermItems   int
	MaxTokensPerMemory int
	SnapshotKey        string
	Retention          time.Duration
}

type RAGConfig struct {
	SimilarityThreshold float64
	TrackMaxAge         time.Duration
	CleanupInterval     time.Duration
}

type StoreConfig struct {
	Backend    string // "sqlite", "postgres", "redis" or "none"
	SQLitePath string
	RedisTTL   time.Duration
}

type TracingConfig struct {
	Enabled     bool
	Endpoint    string
	ServiceName string
	SampleRatio float64 // 1 records every trace
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, usage system environment")
	}

	return &Config{
		App: AppConfig{
			Port:               getEnv("APP_PORT", "3000"),
			Environment:        getEnv("GO_ENV", "development"),
			LogFilePath:        getEnv("LOG_FILE_PATH", "logs/agent.log"),
			EventLogFilePath:   getEnv("EVENT_LOG_FILE_PATH", "logs/events.log"),
			CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),
			NatsURL:            getEnv("NATS_URL", ""),
			RedisURL:           getEnv("REDIS_URL", ""),
		},
		Database: DatabaseConfig{
			Connection: getEnv("DB_CONNECTION_STRING", ""),
		},
		Keys: APIKeys{
			JWTSecret: getEnv("JWT_SECRET", ""),
		},
		LLM: LLMConfig{
			Provider:     getEnv("LLM_PROVIDER", "gateway"),
			BaseURL:      getEnv("LLM_BASE_URL", "http://localhost:3001"),
			Model:        getEnv("LLM_MODEL", ""),
			APIKey:       getEnv("LLM_API_KEY", ""),
			PhaseTimeout: getEnvAsDuration("LLM_PHASE_TIMEOUT", 90*time.Second),
		},
		Embedding: EmbeddingConfig{
			Provider:      getEnv("EMBEDDING_PROVIDER", "hash"),
			OllamaBaseURL: getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
			OllamaModel:   getEnv("OLLAMA_EMBEDDING_MODEL", "nomic-embed-text"),
			Dimension:     getEnvAsInt("EMBEDDING_DIMENSION", 384),
		},
		Agent: AgentConfig{
			MaxMemoryTokens: getEnvAsInt("AGENT_MAX_MEMORY_TOKENS", 800),
			MaxRAGTokens:    getEnvAsInt("AGENT_MAX_RAG_TOKENS", 1200),
			AutoApprove:     getEnvAsBool("AGENT_AUTO_APPROVE", true),
			UseMemorySystem: getEnvAsBool("AGENT_USE_MEMORY", true),
			UseRAGSystem:    getEnvAsBool("AGENT_USE_RAG", true),
		},
		Memory: MemoryConfig{
			MaxShortTermItems:  getEnvAsInt("MEMORY_MAX_SHORT_TERM", 50),
			MaxLongTermItems:   getEnvAsInt("MEMORY_MAX_LONG_TERM", 100),
			MaxTokensPerMemory: getEnvAsInt("MEMORY_MAX_TOKENS_PER_ITEM", 500),
			SnapshotKey:        getEnv("MEMORY_SNAPSHOT_KEY", "agent-memory"),
			Retention:          getEnvAsDuration("MEMORY_RETENTION", 30*24*time.Hour),
		},
		RAG: RAGConfig{
			SimilarityThreshold: getEnvAsFloat("RAG_SIMILARITY_THRESHOLD", 0.7),
			TrackMaxAge:         getEnvAsDuration("RAG_TRACK_MAX_AGE", time.Hour),
			CleanupInterval:     getEnvAsDuration("RAG_CLEANUP_INTERVAL", 10*time.Minute),
		},
		Store: StoreConfig{
			Backend:    getEnv("BLOB_STORE", "sqlite"),
			SQLitePath: getEnv("SQLITE_PATH", "data/agent.db"),
			RedisTTL:   getEnvAsDuration("BLOB_REDIS_TTL", 0),
		},
		Tracing: TracingConfig{
			Enabled:     getEnvAsBool("OTEL_ENABLED", false),
			Endpoint:    getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318"),
			ServiceName: getEnv("OTEL_SERVICE_NAME", "daw-agent-backend"),
			SampleRatio: getEnvAsFloat("OTEL_TRACES_SAMPLER_ARG", 1),
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
