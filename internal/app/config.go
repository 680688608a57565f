package app

import (
	"coach-app/internal/auth"
	"coach-app/internal/config"
	"coach-app/internal/repository/db"
	"coach-app/internal/service/chat"
	"coach-app/internal/service/embedding"
	"coach-app/internal/service/llm"
	"coach-app/internal/service/prompt"
	"coach-app/internal/service/rag"
)

// Config holds all application dependencies and configuration
type Config struct {
	// Database interface for data persistence, nil when DATABASE_URL is unset
	DB db.Database
	// Centralized application configuration
	AppConfig *config.AppConfig

	Tokens      *auth.Manager
	ChatService *chat.ChatService
}

// NewConfig wires the services of the chat pipeline. The chat service is only
// built when a database is available.
func NewConfig(database db.Database, appConfig *config.AppConfig) *Config {
	c := &Config{
		DB:        database,
		AppConfig: appConfig,
		Tokens:    auth.NewManager(appConfig.Auth),
	}

	if database != nil {
		embedder := embedding.NewClient(appConfig.Embedding)
		diversifier := rag.NewDiversifier(embedder, rag.NewGateway(database), appConfig.RAG.StopWords)
		c.ChatService = chat.NewChatService(
			database,
			diversifier,
			prompt.NewAssembler(appConfig.RAG.MaxContextChars),
			llm.NewOpenRouterClient(appConfig.LLM),
		)
	}

	return c
}

// DatabaseConfigured reports whether the data-backed endpoints can be served
func (c *Config) DatabaseConfigured() bool {
	return c.DB != nil
}
