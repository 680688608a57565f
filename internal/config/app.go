package config

import (
	"coach-app/internal/logger"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultModel is the free-tier OpenRouter model used when OPENROUTER_MODEL is unset
const DefaultModel = "meta-llama/llama-3.3-8b-instruct:free"

// AppConfig holds all application configuration
type AppConfig struct {
	Server    ServerConfig
	Database  DatabaseConfig
	LLM       LLMConfig
	Embedding EmbeddingConfig
	Auth      AuthConfig
	RAG       RAGConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port            string
	ShutdownTimeout time.Duration
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	URL          string
	MaxOpenConns int
}

// LLMConfig holds the chat-completion gateway configuration
type LLMConfig struct {
	OpenRouterAPIKey string
	BaseURL          string
	Model            string
	SiteURL          string
	AppName          string
}

// EmbeddingConfig holds the embeddings endpoint configuration
type EmbeddingConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	Dimensions int
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	JWTSecret       []byte
	TokenExpiration time.Duration
}

// RAGConfig holds retrieval tunables
type RAGConfig struct {
	StopWords       []string
	MaxContextChars int
}

// LoadConfig loads and validates application configuration from environment
func LoadConfig() (*AppConfig, error) {
	config := &AppConfig{}

	config.Server = ServerConfig{
		Port:            getEnvOrDefault("SERVER_PORT", "8080"),
		ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
	}

	config.Database = DatabaseConfig{
		URL:          os.Getenv("DATABASE_URL"),
		MaxOpenConns: getEnvAsInt("DATABASE_MAX_OPEN_CONNS", 10),
	}
	if config.Database.URL == "" {
		logger.Log.Warn("DATABASE_URL not set, AI endpoints will report a server misconfiguration")
	}

	apiKey := os.Getenv("OPENROUTER_API_KEY")
	if apiKey == "" {
		logger.Log.Warn("OPENROUTER_API_KEY environment variable not set")
	}

	config.LLM = LLMConfig{
		OpenRouterAPIKey: apiKey,
		BaseURL:          strings.TrimRight(getEnvOrDefault("OPENROUTER_BASE_URL", "https://openrouter.ai/api/v1"), "/"),
		Model:            getEnvOrDefault("OPENROUTER_MODEL", DefaultModel),
		SiteURL:          getEnvOrDefault("OPENROUTER_SITE_URL", "http://localhost:3000"),
		AppName:          getEnvOrDefault("OPENROUTER_APP_NAME", "Coach App"),
	}

	config.Embedding = EmbeddingConfig{
		APIKey:     getEnvOrDefault("EMBEDDING_API_KEY", os.Getenv("OPENAI_API_KEY")),
		BaseURL:    strings.TrimRight(getEnvOrDefault("EMBEDDING_BASE_URL", "https://api.openai.com/v1"), "/"),
		Model:      getEnvOrDefault("EMBEDDING_MODEL", "text-embedding-3-small"),
		Dimensions: getEnvAsInt("EMBEDDING_DIMENSIONS", 1536),
	}
	if config.Embedding.APIKey == "" {
		logger.Log.Warn("EMBEDDING_API_KEY not set, retrieval will return empty context")
	}

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET environment variable must be set")
	}
	if len(jwtSecret) < 32 {
		return nil, fmt.Errorf("JWT_SECRET must be at least 32 characters (current length: %d)", len(jwtSecret))
	}

	config.Auth = AuthConfig{
		JWTSecret:       []byte(jwtSecret),
		TokenExpiration: getEnvAsDuration("JWT_TOKEN_EXPIRATION", 24*time.Hour),
	}

	config.RAG = RAGConfig{
		StopWords:       getEnvAsList("RAG_STOP_WORDS", DefaultStopWords),
		MaxContextChars: getEnvAsInt("RAG_MAX_CONTEXT_CHARS", 0),
	}

	return config, nil
}

// Configured reports whether a database connection URL was provided
func (c *DatabaseConfig) Configured() bool {
	return c.URL != ""
}

// DefaultStopWords mixes Spanish and English filler words. Only words longer than
// three characters can ever match, shorter ones are filtered before the lookup.
var DefaultStopWords = []string{
	"para", "como", "esto", "este", "esta", "estos", "estas", "pero", "porque", "cuando",
	"donde", "sobre", "entre", "desde", "hasta", "tengo", "tiene", "quiero", "puedo",
	"hacer", "cual", "cuál", "cómo", "qué", "también", "muy", "todo", "todos", "algo",
	"what", "that", "this", "with", "have", "from", "about", "which", "would", "could",
	"should", "there", "their", "they", "your", "when", "where",
}

// Helper functions for environment variable parsing

func getEnvOrDefault(key, defaultValue string) string {
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
		logger.Log.WithFields(logrus.Fields{"key": key, "default": defaultValue}).Warn("Invalid integer value, using default")
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
		logger.Log.WithFields(logrus.Fields{"key": key, "default": defaultValue}).Warn("Invalid duration value, using default")
		return defaultValue
	}
	return value
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(valueStr, ",") {
		if item = strings.ToLower(strings.TrimSpace(item)); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
