// Package config loads agentbrain configuration from the environment.
package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// Config holds all configuration values.
type Config struct {
	// SurrealDB connection
	SurrealDBURL       string
	SurrealDBNamespace string
	SurrealDBDatabase  string
	SurrealDBUser      string
	SurrealDBPass      string
	SurrealDBAuthLevel string

	// Embedding/generation provider
	ProviderBackend string   // "openai" or "ollama"
	ProviderBaseURL string
	ProviderAPIKeys []string // rotated on quota errors
	OllamaHost      string
	EmbeddingModel  string
	GenerationModel string
	EmbeddingDim    int

	// External transcription service (audio/video/youtube sources)
	TranscriberURL string

	// HTTP server
	ServerPort string

	// Logging
	LogFile  string
	LogLevel slog.Level
}

// Load reads configuration from environment variables with defaults
// suitable for local development.
func Load() Config {
	return Config{
		SurrealDBURL:       getEnv("SURREALDB_URL", "ws://localhost:8000/rpc"),
		SurrealDBNamespace: getEnv("SURREALDB_NAMESPACE", "agentbrain"),
		SurrealDBDatabase:  getEnv("SURREALDB_DATABASE", "knowledge"),
		SurrealDBUser:      getEnv("SURREALDB_USER", "root"),
		SurrealDBPass:      getEnv("SURREALDB_PASS", "root"),
		SurrealDBAuthLevel: getEnv("SURREALDB_AUTH_LEVEL", "root"),

		ProviderBackend: getEnv("AGENTBRAIN_PROVIDER", "openai"),
		ProviderBaseURL: getEnv("AGENTBRAIN_PROVIDER_URL", ""),
		ProviderAPIKeys: splitKeys(getEnv("AGENTBRAIN_API_KEYS", os.Getenv("OPENAI_API_KEY"))),
		OllamaHost:      getEnv("AGENTBRAIN_OLLAMA_HOST", "http://localhost:11434"),
		EmbeddingModel:  getEnv("AGENTBRAIN_EMBEDDING_MODEL", "text-embedding-3-small"),
		GenerationModel: getEnv("AGENTBRAIN_GENERATION_MODEL", "gpt-4o-mini"),
		EmbeddingDim:    getEnvInt("AGENTBRAIN_EMBEDDING_DIM", 768),

		TranscriberURL: getEnv("AGENTBRAIN_TRANSCRIBER_URL", ""),

		ServerPort: getEnv("AGENTBRAIN_SERVER_PORT", "8585"),

		LogFile:  getEnv("AGENTBRAIN_LOG_FILE", "/tmp/agentbrain.log"),
		LogLevel: parseLogLevel(getEnv("AGENTBRAIN_LOG_LEVEL", "INFO")),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil && n > 0 {
			return n
		}
	}
	return defaultVal
}

// splitKeys parses a comma-separated credential list, dropping empties.
func splitKeys(s string) []string {
	var keys []string
	for _, k := range strings.Split(s, ",") {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
