package chat

import (
	"coach-app/internal/logger"
	"coach-app/internal/repository/db"
	"coach-app/internal/service/llm"
	"coach-app/internal/service/prompt"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"
)

// Chat pipeline constants
const (
	DailyMessageLimit   = 20
	ContextChunks       = 3
	Temperature         = 0.7
	MaxTokens           = 1500
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 200
)

// QuotaExceededError is returned by Prepare when today's message quota is used up
type QuotaExceededError struct {
	Limit int
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("daily message limit of %d reached", e.Limit)
}

// Retriever supplies knowledge chunks for a user message
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int) []db.KnowledgeChunk
}

// Request is one incoming coach message. A nil History means the caller sent none
// and the stored conversation is replayed instead.
type Request struct {
	UserID  string
	Message string
	History []llm.Message
}

// UsageReport is today's usage as returned to the client
type UsageReport struct {
	MessageCount int    `json:"messageCount"`
	TokensUsed   int    `json:"tokensUsed"`
	Remaining    int    `json:"remaining"`
	Limit        int    `json:"limit"`
	ResetTime    string `json:"resetTime"`
}

// ChatService handles the business logic of the coach chat
type ChatService struct {
	db        db.Database
	retriever Retriever
	assembler *prompt.Assembler
	completer llm.Completer
	now       func() time.Time
}

// NewChatService creates a new ChatService
func NewChatService(database db.Database, retriever Retriever, assembler *prompt.Assembler, completer llm.Completer) *ChatService {
	return &ChatService{
		db:        database,
		retriever: retriever,
		assembler: assembler,
		completer: completer,
		now:       time.Now,
	}
}

// Turn is a chat turn whose completion stream is open and not yet relayed
type Turn struct {
	service  *ChatService
	userID   string
	day      string
	chunkIDs []string
	body     io.ReadCloser
}

// Prepare runs every step that can still fail with a plain error response: quota,
// history, context retrieval and opening the completion stream.
func (s *ChatService) Prepare(ctx context.Context, req Request) (*Turn, error) {
	day := DayKey(s.now())

	usage, reserved, err := s.db.ReserveDailyMessage(ctx, req.UserID, day, DailyMessageLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to check usage: %w", err)
	}
	if !reserved {
		entry := logger.Log.WithField("user_id", req.UserID)
		if usage != nil {
			entry = entry.WithField("message_count", usage.MessageCount)
		}
		entry.Info("Daily message limit reached")
		return nil, &QuotaExceededError{Limit: DailyMessageLimit}
	}

	history := req.History
	if history == nil {
		// Read before the new message is stored so it is not replayed twice
		history = s.storedHistory(ctx, req.UserID)
	}

	if _, err := s.db.AddChatMessage(ctx, db.CreateChatMessage{
		UserID:  req.UserID,
		Role:    db.RoleUser,
		Content: req.Message,
	}); err != nil {
		logger.Log.WithError(err).WithField("user_id", req.UserID).Error("Failed to save user message")
	}

	chunks := s.retriever.Retrieve(ctx, req.Message, ContextChunks)
	messages := s.assembler.Build(req.Message, chunks, history)

	chunkIDs := make([]string, 0, len(chunks))
	for _, c := range chunks {
		chunkIDs = append(chunkIDs, c.ID)
	}

	logger.Log.WithFields(logrus.Fields{
		"user_id":       req.UserID,
		"history":       len(history),
		"chunks":        len(chunks),
		"message_count": len(messages),
	}).Debug("Prepared coach prompt")

	body, err := s.completer.OpenStream(ctx, messages, llm.CompletionOptions{Temperature: Temperature, MaxTokens: MaxTokens})
	if err != nil {
		return nil, fmt.Errorf("failed to open completion stream: %w", err)
	}

	return &Turn{service: s, userID: req.UserID, day: day, chunkIDs: chunkIDs, body: body}, nil
}

// Relay passes every content delta to emit while accumulating the reply, then
// stores the reply and its token estimate. An error means the stream was cut short
// and nothing was stored.
func (t *Turn) Relay(ctx context.Context, emit func(delta string) error) error {
	reader := llm.NewDeltaReader(t.body)
	var full strings.Builder

	for {
		delta, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("stream interrupted: %w", err)
		}
		full.WriteString(delta)
		if err := emit(delta); err != nil {
			return fmt.Errorf("failed to relay delta: %w", err)
		}
	}

	content := full.String()
	if content == "" {
		logger.Log.WithField("user_id", t.userID).Warn("Completion stream ended without content")
		return nil
	}

	tokens := EstimateTokens(content)
	// The client may already be gone, the reply is stored regardless
	if _, err := t.service.db.CommitTurn(context.WithoutCancel(ctx), db.CommitTurn{
		UserID:      t.userID,
		Date:        t.day,
		Content:     content,
		ContextUsed: t.chunkIDs,
		TokensUsed:  tokens,
	}); err != nil {
		logger.Log.WithError(err).WithField("user_id", t.userID).Error("Failed to save assistant turn")
		return nil
	}

	logger.Log.WithFields(logrus.Fields{
		"user_id": t.userID,
		"tokens":  tokens,
		"chunks":  len(t.chunkIDs),
	}).Info("Coach turn completed")
	return nil
}

// Close releases the upstream stream
func (t *Turn) Close() error {
	return t.body.Close()
}

func (s *ChatService) storedHistory(ctx context.Context, userID string) []llm.Message {
	stored, err := s.db.ListRecentChatMessages(ctx, userID, prompt.HistoryWindow)
	if err != nil {
		logger.Log.WithError(err).WithField("user_id", userID).Warn("Failed to load stored history")
		return []llm.Message{}
	}
	history := make([]llm.Message, 0, len(stored))
	for _, m := range stored {
		history = append(history, llm.Message{Role: m.Role, Content: m.Content})
	}
	return history
}

// History returns the user's most recent messages in chronological order
func (s *ChatService) History(ctx context.Context, userID string, limit int) ([]db.ChatMessage, error) {
	messages, err := s.db.ListRecentChatMessages(ctx, userID, NormalizeHistoryLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	return messages, nil
}

// ClearHistory deletes every stored message of the user
func (s *ChatService) ClearHistory(ctx context.Context, userID string) error {
	if _, err := s.db.DeleteChatMessages(ctx, userID); err != nil {
		return fmt.Errorf("failed to clear history: %w", err)
	}
	return nil
}

// Usage reports today's usage against the daily limit
func (s *ChatService) Usage(ctx context.Context, userID string) (*UsageReport, error) {
	now := s.now()
	usage, err := s.db.GetDailyUsage(ctx, userID, DayKey(now))
	if err != nil {
		return nil, fmt.Errorf("failed to load usage: %w", err)
	}

	return &UsageReport{
		MessageCount: usage.MessageCount,
		TokensUsed:   usage.TokensUsed,
		Remaining:    max(0, DailyMessageLimit-usage.MessageCount),
		Limit:        DailyMessageLimit,
		ResetTime:    NextReset(now).Format(time.RFC3339),
	}, nil
}

// NormalizeHistoryLimit applies the default and upper bound of the history endpoint
func NormalizeHistoryLimit(limit int) int {
	if limit <= 0 {
		return DefaultHistoryLimit
	}
	return min(limit, MaxHistoryLimit)
}

// DayKey is the UTC calendar day a usage row belongs to
func DayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// NextReset is the next UTC midnight after t
func NextReset(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, time.UTC)
}

// EstimateTokens approximates the token count as one token per four characters
func EstimateTokens(text string) int {
	return (utf8.RuneCountInString(text) + 3) / 4
}
