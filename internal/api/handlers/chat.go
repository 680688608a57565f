package handlers

import (
	"coach-app/internal/logger"
	chatService "coach-app/internal/service/chat"
	"coach-app/internal/service/llm"
	"coach-app/pkg/validation"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
)

const quotaMessage = "Has alcanzado el límite de mensajes de hoy. Vuelve mañana para seguir conversando con tu coach."

// Request/Response types

type ChatRequest struct {
	Message             string        `json:"message"`
	ConversationHistory []llm.Message `json:"conversationHistory,omitempty"`
}

type MessageData struct {
	ID        string `json:"id"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at"`
}

type MessagesResponse struct {
	Messages []MessageData `json:"messages"`
}

type DeleteResponse struct {
	Success bool `json:"success"`
}

// ChatHandlers serves the coach chat endpoints
type ChatHandlers struct {
	validator   *validation.ChatRequestValidator
	chatService *chatService.ChatService
}

// NewChatHandlers creates chat handlers over the chat service
func NewChatHandlers(service *chatService.ChatService) *ChatHandlers {
	return &ChatHandlers{
		validator:   validation.NewChatRequestValidator(),
		chatService: service,
	}
}

// ChatStreamHandler is the SSE endpoint streaming the coach reply
func (ch *ChatHandlers) ChatStreamHandler(w http.ResponseWriter, r *http.Request) {
	userID := UserIDFromContext(r.Context())

	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	roles := make([]string, 0, len(req.ConversationHistory))
	for _, m := range req.ConversationHistory {
		roles = append(roles, m.Role)
	}
	if err := ch.validator.ValidateChatRequest(req.Message, roles); err != nil {
		sendError(w, http.StatusBadRequest, "Validation failed", err.Error())
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		sendError(w, http.StatusInternalServerError, "Streaming not supported", "")
		return
	}

	logger.Log.WithFields(logrus.Fields{
		"user_id":       userID,
		"message_chars": len(req.Message),
		"history":       len(req.ConversationHistory),
	}).Info("Chat stream request received")

	turn, err := ch.chatService.Prepare(r.Context(), chatService.Request{
		UserID:  userID,
		Message: req.Message,
		History: req.ConversationHistory,
	})
	if err != nil {
		var quotaErr *chatService.QuotaExceededError
		if errors.As(err, &quotaErr) {
			respondJSON(w, http.StatusTooManyRequests, ErrorResponse{
				Error:   "Daily limit reached",
				Message: quotaMessage,
				Limit:   quotaErr.Limit,
			})
			return
		}
		logger.Log.WithError(err).WithField("user_id", userID).Error("Error preparing chat turn")
		sendError(w, http.StatusInternalServerError, "Failed to generate response", "")
		return
	}
	defer turn.Close()

	setupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	if err := turn.Relay(r.Context(), func(delta string) error {
		return sendSSEChunk(w, flusher, contentChunk{Content: delta})
	}); err != nil {
		logger.Log.WithError(err).WithField("user_id", userID).Warn("Chat stream aborted")
		// Headers are sent, the only way to signal failure is dropping the connection
		panic(http.ErrAbortHandler)
	}

	sendSSEDone(w, flusher)
}

// GetHistoryHandler returns the user's stored messages, oldest first
func (ch *ChatHandlers) GetHistoryHandler(w http.ResponseWriter, r *http.Request) {
	userID := UserIDFromContext(r.Context())

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			sendError(w, http.StatusBadRequest, "Invalid limit", "limit must be a non-negative integer")
			return
		}
		limit = parsed
	}

	messages, err := ch.chatService.History(r.Context(), userID, limit)
	if err != nil {
		logger.Log.WithError(err).WithField("user_id", userID).Error("Error loading history")
		sendError(w, http.StatusInternalServerError, "Error loading history", "")
		return
	}

	data := make([]MessageData, 0, len(messages))
	for _, m := range messages {
		data = append(data, MessageData{
			ID:        m.ID,
			Role:      m.Role,
			Content:   m.Content,
			CreatedAt: m.CreatedAt.UTC().Format(time.RFC3339Nano),
		})
	}

	respondJSON(w, http.StatusOK, MessagesResponse{Messages: data})
}

// DeleteHistoryHandler clears the user's stored messages
func (ch *ChatHandlers) DeleteHistoryHandler(w http.ResponseWriter, r *http.Request) {
	userID := UserIDFromContext(r.Context())

	if err := ch.chatService.ClearHistory(r.Context(), userID); err != nil {
		logger.Log.WithError(err).WithField("user_id", userID).Error("Error clearing history")
		sendError(w, http.StatusInternalServerError, "Error clearing history", "")
		return
	}

	respondJSON(w, http.StatusOK, DeleteResponse{Success: true})
}

// GetUsageHandler reports today's usage against the daily limit
func (ch *ChatHandlers) GetUsageHandler(w http.ResponseWriter, r *http.Request) {
	userID := UserIDFromContext(r.Context())

	report, err := ch.chatService.Usage(r.Context(), userID)
	if err != nil {
		logger.Log.WithError(err).WithField("user_id", userID).Error("Error loading usage")
		sendError(w, http.StatusInternalServerError, "Error loading usage", "")
		return
	}

	respondJSON(w, http.StatusOK, report)
}
