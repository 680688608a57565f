package testutil

import (
	"coach-app/internal/repository/db"
	"coach-app/internal/service/llm"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
)

// MockDatabase is a mock implementation of db.Database for testing
type MockDatabase struct {
	// User mocks
	CreateUserFunc     func(ctx context.Context, email, password string) (*db.User, error)
	GetUserByEmailFunc func(ctx context.Context, email string) (*db.User, error)

	// Chat message mocks
	AddChatMessageFunc         func(ctx context.Context, create db.CreateChatMessage) (*db.ChatMessage, error)
	ListRecentChatMessagesFunc func(ctx context.Context, userID string, limit int) ([]db.ChatMessage, error)
	DeleteChatMessagesFunc     func(ctx context.Context, userID string) (int64, error)

	// Usage mocks
	GetDailyUsageFunc       func(ctx context.Context, userID, date string) (*db.DailyUsage, error)
	ReserveDailyMessageFunc func(ctx context.Context, userID, date string, limit int) (*db.DailyUsage, bool, error)
	CommitTurnFunc          func(ctx context.Context, turn db.CommitTurn) (*db.ChatMessage, error)

	// Knowledge mocks
	MatchKnowledgeChunksFunc func(ctx context.Context, embedding []float32, threshold float64, count int) ([]db.KnowledgeChunk, error)
	InsertKnowledgeChunkFunc func(ctx context.Context, create db.CreateKnowledgeChunk) (string, error)
}

var _ db.Database = (*MockDatabase)(nil)

// User methods
func (m *MockDatabase) CreateUser(ctx context.Context, email, password string) (*db.User, error) {
	if m.CreateUserFunc != nil {
		return m.CreateUserFunc(ctx, email, password)
	}
	return nil, errors.New("not implemented")
}

func (m *MockDatabase) GetUserByEmail(ctx context.Context, email string) (*db.User, error) {
	if m.GetUserByEmailFunc != nil {
		return m.GetUserByEmailFunc(ctx, email)
	}
	return nil, errors.New("not implemented")
}

// Chat message methods
func (m *MockDatabase) AddChatMessage(ctx context.Context, create db.CreateChatMessage) (*db.ChatMessage, error) {
	if m.AddChatMessageFunc != nil {
		return m.AddChatMessageFunc(ctx, create)
	}
	return nil, errors.New("not implemented")
}

func (m *MockDatabase) ListRecentChatMessages(ctx context.Context, userID string, limit int) ([]db.ChatMessage, error) {
	if m.ListRecentChatMessagesFunc != nil {
		return m.ListRecentChatMessagesFunc(ctx, userID, limit)
	}
	return nil, errors.New("not implemented")
}

func (m *MockDatabase) DeleteChatMessages(ctx context.Context, userID string) (int64, error) {
	if m.DeleteChatMessagesFunc != nil {
		return m.DeleteChatMessagesFunc(ctx, userID)
	}
	return 0, errors.New("not implemented")
}

// Usage methods
func (m *MockDatabase) GetDailyUsage(ctx context.Context, userID, date string) (*db.DailyUsage, error) {
	if m.GetDailyUsageFunc != nil {
		return m.GetDailyUsageFunc(ctx, userID, date)
	}
	return nil, errors.New("not implemented")
}

func (m *MockDatabase) ReserveDailyMessage(ctx context.Context, userID, date string, limit int) (*db.DailyUsage, bool, error) {
	if m.ReserveDailyMessageFunc != nil {
		return m.ReserveDailyMessageFunc(ctx, userID, date, limit)
	}
	return nil, false, errors.New("not implemented")
}

func (m *MockDatabase) CommitTurn(ctx context.Context, turn db.CommitTurn) (*db.ChatMessage, error) {
	if m.CommitTurnFunc != nil {
		return m.CommitTurnFunc(ctx, turn)
	}
	return nil, errors.New("not implemented")
}

// Knowledge methods
func (m *MockDatabase) MatchKnowledgeChunks(ctx context.Context, embedding []float32, threshold float64, count int) ([]db.KnowledgeChunk, error) {
	if m.MatchKnowledgeChunksFunc != nil {
		return m.MatchKnowledgeChunksFunc(ctx, embedding, threshold, count)
	}
	return nil, errors.New("not implemented")
}

func (m *MockDatabase) InsertKnowledgeChunk(ctx context.Context, create db.CreateKnowledgeChunk) (string, error) {
	if m.InsertKnowledgeChunkFunc != nil {
		return m.InsertKnowledgeChunkFunc(ctx, create)
	}
	return "", errors.New("not implemented")
}

func (m *MockDatabase) Close() error {
	return nil
}

// MockCompleter is a mock implementation of llm.Completer
type MockCompleter struct {
	OpenStreamFunc func(ctx context.Context, messages []llm.Message, opts llm.CompletionOptions) (io.ReadCloser, error)
	Calls          int
}

func (m *MockCompleter) OpenStream(ctx context.Context, messages []llm.Message, opts llm.CompletionOptions) (io.ReadCloser, error) {
	m.Calls++
	if m.OpenStreamFunc != nil {
		return m.OpenStreamFunc(ctx, messages, opts)
	}
	return nil, errors.New("not implemented")
}

// MockRetriever is a mock context retriever
type MockRetriever struct {
	RetrieveFunc func(ctx context.Context, query string, k int) []db.KnowledgeChunk
}

func (m *MockRetriever) Retrieve(ctx context.Context, query string, k int) []db.KnowledgeChunk {
	if m.RetrieveFunc != nil {
		return m.RetrieveFunc(ctx, query, k)
	}
	return nil
}

// MockEmbedder is a mock embedding client
type MockEmbedder struct {
	EmbedFunc func(ctx context.Context, text string) ([]float32, error)
}

func (m *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if m.EmbedFunc != nil {
		return m.EmbedFunc(ctx, text)
	}
	return nil, errors.New("not implemented")
}

// SSEBody renders deltas as an OpenAI-style completion stream ending in [DONE]
func SSEBody(deltas ...string) io.ReadCloser {
	var b strings.Builder
	for _, d := range deltas {
		b.WriteString(`data: {"choices":[{"delta":{"content":`)
		b.WriteString(quote(d))
		b.WriteString("}}]}\n\n")
	}
	b.WriteString("data: [DONE]\n\n")
	return io.NopCloser(strings.NewReader(b.String()))
}

func quote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
