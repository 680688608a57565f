package postgres

import (
	"coach-app/internal/logger"
	"coach-app/internal/repository/db"
	"context"
	"database/sql"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

// queryer is satisfied by both *sql.DB and *sql.Tx
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// AddChatMessage stores a single chat message for a user
func (p *PostgresDB) AddChatMessage(ctx context.Context, create db.CreateChatMessage) (*db.ChatMessage, error) {
	msg, err := insertChatMessage(ctx, p.conn, create)
	if err != nil {
		return nil, err
	}

	logger.Log.WithFields(logrus.Fields{
		"user_id": create.UserID,
		"role":    create.Role,
		"chars":   len(create.Content),
	}).Debug("Added chat message")

	return msg, nil
}

func insertChatMessage(ctx context.Context, q queryer, create db.CreateChatMessage) (*db.ChatMessage, error) {
	msg := &db.ChatMessage{
		ID:          uuid.New().String(),
		UserID:      create.UserID,
		Role:        create.Role,
		Content:     create.Content,
		ContextUsed: create.ContextUsed,
		TokensUsed:  create.TokensUsed,
	}

	var contextUsed any
	if len(create.ContextUsed) > 0 {
		contextUsed = pq.Array(create.ContextUsed)
	}

	query := `
	INSERT INTO chat_messages (id, user_id, role, content, context_used, tokens_used)
	VALUES ($1, $2, $3, $4, $5, $6)
	RETURNING created_at
	`

	err := q.QueryRowContext(ctx, query, msg.ID, msg.UserID, msg.Role, msg.Content, contextUsed, create.TokensUsed).Scan(&msg.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("error adding chat message: %w", err)
	}
	return msg, nil
}

// ListRecentChatMessages returns the user's last `limit` messages in chronological order
func (p *PostgresDB) ListRecentChatMessages(ctx context.Context, userID string, limit int) ([]db.ChatMessage, error) {
	query := `
	SELECT id, user_id, role, content, context_used, tokens_used, created_at
	FROM chat_messages
	WHERE user_id = $1
	ORDER BY created_at DESC, id DESC
	LIMIT $2
	`

	rows, err := p.conn.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("error querying chat messages: %w", err)
	}
	defer rows.Close()

	messages := []db.ChatMessage{}
	for rows.Next() {
		var msg db.ChatMessage
		var tokens sql.NullInt64
		if err := rows.Scan(&msg.ID, &msg.UserID, &msg.Role, &msg.Content, pq.Array(&msg.ContextUsed), &tokens, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("error scanning chat message: %w", err)
		}
		if tokens.Valid {
			t := int(tokens.Int64)
			msg.TokensUsed = &t
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating chat messages: %w", err)
	}

	// Newest first from the query, replay oldest first
	slices.Reverse(messages)
	return messages, nil
}

// DeleteChatMessages removes every stored message of a user
func (p *PostgresDB) DeleteChatMessages(ctx context.Context, userID string) (int64, error) {
	res, err := p.conn.ExecContext(ctx, `DELETE FROM chat_messages WHERE user_id = $1`, userID)
	if err != nil {
		return 0, fmt.Errorf("error deleting chat messages: %w", err)
	}

	deleted, _ := res.RowsAffected()
	logger.Log.WithFields(logrus.Fields{"user_id": userID, "deleted": deleted}).Info("Cleared chat history")
	return deleted, nil
}
