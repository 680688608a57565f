package db

import (
	"context"
	"errors"
)

// ErrNotFound is returned by lookups that match no row
var ErrNotFound = errors.New("not found")

// ErrDuplicateEmail is returned by CreateUser when the email is taken
var ErrDuplicateEmail = errors.New("email already registered")

// Database defines the interface for all database operations
// This allows for easier testing through mocking and decouples the services from the specific database implementation
type Database interface {
	// Users
	CreateUser(ctx context.Context, email, password string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)

	// Chat messages
	AddChatMessage(ctx context.Context, create CreateChatMessage) (*ChatMessage, error)
	ListRecentChatMessages(ctx context.Context, userID string, limit int) ([]ChatMessage, error)
	DeleteChatMessages(ctx context.Context, userID string) (int64, error)

	// Usage
	GetDailyUsage(ctx context.Context, userID, date string) (*DailyUsage, error)
	ReserveDailyMessage(ctx context.Context, userID, date string, limit int) (*DailyUsage, bool, error)
	CommitTurn(ctx context.Context, turn CommitTurn) (*ChatMessage, error)

	// Knowledge base
	MatchKnowledgeChunks(ctx context.Context, embedding []float32, threshold float64, count int) ([]KnowledgeChunk, error)
	InsertKnowledgeChunk(ctx context.Context, create CreateKnowledgeChunk) (string, error)

	Close() error
}
