package validation

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Limits of a chat request
const (
	MaxMessageRunes  = 4000
	MaxHistoryLength = 50
)

// ChatRequestValidator validates chat-related requests
type ChatRequestValidator struct{}

// NewChatRequestValidator creates a new ChatRequestValidator
func NewChatRequestValidator() *ChatRequestValidator {
	return &ChatRequestValidator{}
}

// ValidateMessage validates a chat message
func (v *ChatRequestValidator) ValidateMessage(message string) error {
	if strings.TrimSpace(message) == "" {
		return errors.New("message cannot be empty")
	}

	if n := utf8.RuneCountInString(message); n > MaxMessageRunes {
		return fmt.Errorf("message must be at most %d characters long, got %d", MaxMessageRunes, n)
	}
	return nil
}

// ValidateHistoryRole validates the role of a replayed conversation turn
func (v *ChatRequestValidator) ValidateHistoryRole(role string) error {
	if role != "user" && role != "assistant" {
		return fmt.Errorf("conversationHistory role must be one of: user, assistant; got %q", role)
	}
	return nil
}

// ValidateHistory validates the roles of the replayed turns and their count
func (v *ChatRequestValidator) ValidateHistory(roles []string) error {
	if len(roles) > MaxHistoryLength {
		return fmt.Errorf("conversationHistory must have at most %d entries, got %d", MaxHistoryLength, len(roles))
	}

	for _, role := range roles {
		if err := v.ValidateHistoryRole(role); err != nil {
			return err
		}
	}
	return nil
}

// ValidateChatRequest validates a complete chat request
func (v *ChatRequestValidator) ValidateChatRequest(message string, historyRoles []string) error {
	if err := v.ValidateMessage(message); err != nil {
		return err
	}

	if err := v.ValidateHistory(historyRoles); err != nil {
		return err
	}

	return nil
}
