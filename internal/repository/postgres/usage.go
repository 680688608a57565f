package postgres

import (
	"coach-app/internal/logger"
	"coach-app/internal/repository/db"
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
)

// GetDailyUsage returns the usage row for a day, or a zero row if none exists yet
func (p *PostgresDB) GetDailyUsage(ctx context.Context, userID, date string) (*db.DailyUsage, error) {
	usage := &db.DailyUsage{UserID: userID, Date: date}

	query := `SELECT message_count, tokens_used FROM ai_usage WHERE user_id = $1 AND usage_date = $2`
	err := p.conn.QueryRowContext(ctx, query, userID, date).Scan(&usage.MessageCount, &usage.TokensUsed)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("error retrieving usage: %w", err)
	}

	return usage, nil
}

// ReserveDailyMessage counts one message against the day's quota in a single conditional
// upsert. It reports false, with the current row, when the quota is already used up.
func (p *PostgresDB) ReserveDailyMessage(ctx context.Context, userID, date string, limit int) (*db.DailyUsage, bool, error) {
	if limit <= 0 {
		usage, err := p.GetDailyUsage(ctx, userID, date)
		return usage, false, err
	}

	usage := &db.DailyUsage{UserID: userID, Date: date}

	query := `
	INSERT INTO ai_usage (user_id, usage_date, message_count, tokens_used)
	VALUES ($1, $2, 1, 0)
	ON CONFLICT (user_id, usage_date) DO UPDATE
	SET message_count = ai_usage.message_count + 1, updated_at = now()
	WHERE ai_usage.message_count < $3
	RETURNING message_count, tokens_used
	`

	err := p.conn.QueryRowContext(ctx, query, userID, date, limit).Scan(&usage.MessageCount, &usage.TokensUsed)
	if errors.Is(err, sql.ErrNoRows) {
		current, err := p.GetDailyUsage(ctx, userID, date)
		return current, false, err
	}
	if err != nil {
		return nil, false, fmt.Errorf("error reserving daily message: %w", err)
	}

	logger.Log.WithFields(logrus.Fields{
		"user_id":       userID,
		"date":          date,
		"message_count": usage.MessageCount,
	}).Debug("Reserved daily message")

	return usage, true, nil
}

// CommitTurn stores the assistant reply and adds its tokens to the day's usage in one transaction
func (p *PostgresDB) CommitTurn(ctx context.Context, turn db.CommitTurn) (*db.ChatMessage, error) {
	tx, err := p.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("error starting transaction: %w", err)
	}
	defer tx.Rollback()

	tokens := turn.TokensUsed
	msg, err := insertChatMessage(ctx, tx, db.CreateChatMessage{
		UserID:      turn.UserID,
		Role:        db.RoleAssistant,
		Content:     turn.Content,
		ContextUsed: turn.ContextUsed,
		TokensUsed:  &tokens,
	})
	if err != nil {
		return nil, err
	}

	// Message count was taken by ReserveDailyMessage, only tokens are added here
	if _, err := tx.ExecContext(ctx, `SELECT increment_ai_usage($1, $2, 0, $3)`, turn.UserID, turn.Date, turn.TokensUsed); err != nil {
		return nil, fmt.Errorf("error incrementing usage: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("error committing turn: %w", err)
	}

	logger.Log.WithFields(logrus.Fields{
		"user_id":    turn.UserID,
		"message_id": msg.ID,
		"tokens":     turn.TokensUsed,
		"chunks":     len(turn.ContextUsed),
	}).Debug("Committed assistant turn")

	return msg, nil
}
