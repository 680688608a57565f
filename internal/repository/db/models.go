package db

import (
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Chat message roles
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// User represents a local account that can be issued session tokens
type User struct {
	ID           string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// VerifyPassword checks if the provided password matches the user's hashed password
func (u *User) VerifyPassword(password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) == nil
}

// ChatMessage is one stored turn of a user's coach conversation
type ChatMessage struct {
	ID          string
	UserID      string
	Role        string
	Content     string
	ContextUsed []string // knowledge chunk ids injected into the prompt
	TokensUsed  *int
	CreatedAt   time.Time
}

// CreateChatMessage is the payload for AddChatMessage
type CreateChatMessage struct {
	UserID      string
	Role        string
	Content     string
	ContextUsed []string
	TokensUsed  *int
}

// DailyUsage is the per-user, per-UTC-day usage counter
type DailyUsage struct {
	UserID       string
	Date         string // YYYY-MM-DD
	MessageCount int
	TokensUsed   int
}

// CommitTurn carries everything written once an assistant reply has finished streaming
type CommitTurn struct {
	UserID      string
	Date        string
	Content     string
	ContextUsed []string
	TokensUsed  int
}

// KnowledgeChunk is a unit of knowledge-base text. Similarity is only set on search results.
type KnowledgeChunk struct {
	ID         string
	Content    string
	Source     string
	Metadata   map[string]any
	Similarity float64
}

// CreateKnowledgeChunk is the payload the ingestion tool writes
type CreateKnowledgeChunk struct {
	Content   string
	Source    string
	Metadata  map[string]any
	Embedding []float32
}
