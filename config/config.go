package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	PostgresDSN string

	Neo4jURI  string
	Neo4jUser string
	Neo4jPass string

	OpenAIAPIKey  string
	OpenAIBaseURL string

	ChatModel          string
	EmbeddingModel     string
	TranscriptionModel string
	EmbeddingDimension int

	RetrievalK      int
	SimilarityFloor float64
	TokenBudget     int

	ListenAddr string
}

func Load() Config {
	// Missing .env is fine; plain environment variables still apply.
	_ = godotenv.Load()

	return Config{
		PostgresDSN:        getEnv("POSTGRES_DSN", "postgres://localhost:5432/lectern?sslmode=disable"),
		Neo4jURI:           getEnv("NEO4J_URI", ""),
		Neo4jUser:          getEnv("NEO4J_USERNAME", "neo4j"),
		Neo4jPass:          getEnv("NEO4J_PASSWORD", "password"),
		OpenAIAPIKey:       getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:      getEnv("OPENAI_BASE_URL", ""),
		ChatModel:          getEnv("CHAT_MODEL", "gpt-4o-mini"),
		EmbeddingModel:     getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),
		TranscriptionModel: getEnv("TRANSCRIPTION_MODEL", "whisper-1"),
		EmbeddingDimension: getEnvInt("EMBEDDING_DIMENSION", 1536),
		RetrievalK:         getEnvInt("RETRIEVAL_K", 5),
		SimilarityFloor:    getEnvFloat("SIMILARITY_FLOOR", 0.5),
		TokenBudget:        getEnvInt("TOKEN_BUDGET", 2000),
		ListenAddr:         getEnv("LISTEN_ADDR", ":3333"),
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return fallback
}
