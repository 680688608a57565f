package validation

import (
	"strings"
	"testing"
)

func TestChatRequestValidator_ValidateMessage(t *testing.T) {
	validator := NewChatRequestValidator()

	tests := []struct {
		name    string
		message string
		wantErr bool
		errMsg  string
	}{
		{
			name:    "valid message",
			message: "¿Cómo mantengo la motivación?",
			wantErr: false,
		},
		{
			name:    "maximum length counted in characters",
			message: strings.Repeat("ñ", MaxMessageRunes),
			wantErr: false,
		},
		{
			name:    "empty message",
			message: "",
			wantErr: true,
			errMsg:  "message cannot be empty",
		},
		{
			name:    "whitespace only",
			message: " \n\t ",
			wantErr: true,
			errMsg:  "message cannot be empty",
		},
		{
			name:    "message too long",
			message: strings.Repeat("a", MaxMessageRunes+1),
			wantErr: true,
			errMsg:  "message must be at most 4000 characters long",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validator.ValidateMessage(tt.message)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateMessage() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.wantErr && err != nil && tt.errMsg != "" {
				if !strings.Contains(err.Error(), tt.errMsg) {
					t.Errorf("ValidateMessage() error message = %v, want to contain %v", err.Error(), tt.errMsg)
				}
			}
		})
	}
}

func TestChatRequestValidator_ValidateHistory(t *testing.T) {
	validator := NewChatRequestValidator()

	tooMany := make([]string, MaxHistoryLength+1)
	for i := range tooMany {
		tooMany[i] = "user"
	}

	tests := []struct {
		name    string
		roles   []string
		wantErr bool
		errMsg  string
	}{
		{name: "no history", roles: nil, wantErr: false},
		{name: "user and assistant", roles: []string{"user", "assistant", "user"}, wantErr: false},
		{name: "system role rejected", roles: []string{"user", "system"}, wantErr: true, errMsg: "role must be one of"},
		{name: "empty role rejected", roles: []string{""}, wantErr: true, errMsg: "role must be one of"},
		{name: "too many entries", roles: tooMany, wantErr: true, errMsg: "at most 50 entries"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validator.ValidateHistory(tt.roles)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateHistory() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.wantErr && err != nil && tt.errMsg != "" {
				if !strings.Contains(err.Error(), tt.errMsg) {
					t.Errorf("ValidateHistory() error message = %v, want to contain %v", err.Error(), tt.errMsg)
				}
			}
		})
	}
}

func TestChatRequestValidator_ValidateChatRequest(t *testing.T) {
	validator := NewChatRequestValidator()

	tests := []struct {
		name    string
		message string
		roles   []string
		wantErr bool
	}{
		{name: "valid request", message: "hola", roles: []string{"user", "assistant"}, wantErr: false},
		{name: "invalid message", message: "", roles: nil, wantErr: true},
		{name: "invalid history", message: "hola", roles: []string{"tool"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validator.ValidateChatRequest(tt.message, tt.roles)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateChatRequest() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
