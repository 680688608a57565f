package api

import (
	"bytes"
	"coach-app/internal/app"
	"coach-app/internal/auth"
	"coach-app/internal/config"
	"coach-app/internal/logger"
	"coach-app/internal/repository/db"
	"coach-app/internal/service/chat"
	"coach-app/internal/service/llm"
	"coach-app/internal/service/prompt"
	"coach-app/internal/testutil"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

// memoryStore backs a MockDatabase with in-memory chat messages and usage rows
type memoryStore struct {
	mu       sync.Mutex
	messages []db.ChatMessage
	usage    map[string]*db.DailyUsage
	clock    time.Time
}

func newMemoryStore() (*memoryStore, *testutil.MockDatabase) {
	s := &memoryStore{usage: map[string]*db.DailyUsage{}, clock: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)}
	mock := &testutil.MockDatabase{}

	add := func(userID, role, content string, contextUsed []string, tokens *int) *db.ChatMessage {
		s.clock = s.clock.Add(time.Second)
		msg := db.ChatMessage{
			ID:          fmt.Sprintf("m%d", len(s.messages)+1),
			UserID:      userID,
			Role:        role,
			Content:     content,
			ContextUsed: contextUsed,
			TokensUsed:  tokens,
			CreatedAt:   s.clock,
		}
		s.messages = append(s.messages, msg)
		return &msg
	}

	mock.AddChatMessageFunc = func(ctx context.Context, create db.CreateChatMessage) (*db.ChatMessage, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		return add(create.UserID, create.Role, create.Content, create.ContextUsed, create.TokensUsed), nil
	}
	mock.ListRecentChatMessagesFunc = func(ctx context.Context, userID string, limit int) ([]db.ChatMessage, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		var out []db.ChatMessage
		for _, m := range s.messages {
			if m.UserID == userID {
				out = append(out, m)
			}
		}
		if len(out) > limit {
			out = out[len(out)-limit:]
		}
		return out, nil
	}
	mock.DeleteChatMessagesFunc = func(ctx context.Context, userID string) (int64, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		kept := s.messages[:0]
		var deleted int64
		for _, m := range s.messages {
			if m.UserID == userID {
				deleted++
				continue
			}
			kept = append(kept, m)
		}
		s.messages = kept
		return deleted, nil
	}
	row := func(userID, date string) *db.DailyUsage {
		key := userID + "/" + date
		if s.usage[key] == nil {
			s.usage[key] = &db.DailyUsage{UserID: userID, Date: date}
		}
		return s.usage[key]
	}
	mock.GetDailyUsageFunc = func(ctx context.Context, userID, date string) (*db.DailyUsage, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		u := *row(userID, date)
		return &u, nil
	}
	mock.ReserveDailyMessageFunc = func(ctx context.Context, userID, date string, limit int) (*db.DailyUsage, bool, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		u := row(userID, date)
		if u.MessageCount >= limit {
			c := *u
			return &c, false, nil
		}
		u.MessageCount++
		c := *u
		return &c, true, nil
	}
	mock.CommitTurnFunc = func(ctx context.Context, turn db.CommitTurn) (*db.ChatMessage, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		tokens := turn.TokensUsed
		row(turn.UserID, turn.Date).TokensUsed += tokens
		return add(turn.UserID, db.RoleAssistant, turn.Content, turn.ContextUsed, &tokens), nil
	}
	return s, mock
}

type testServer struct {
	handler   http.Handler
	store     *memoryStore
	completer *testutil.MockCompleter
	tokens    *auth.Manager
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger.Silence()

	store, mockDB := newMemoryStore()
	completer := &testutil.MockCompleter{
		OpenStreamFunc: func(ctx context.Context, messages []llm.Message, opts llm.CompletionOptions) (io.ReadCloser, error) {
			return testutil.SSEBody("Empieza ", "con <una> meta \"pequeña\"."), nil
		},
	}
	retriever := &testutil.MockRetriever{}
	tokens := auth.NewManager(config.AuthConfig{JWTSecret: []byte(testSecret), TokenExpiration: time.Hour})

	cfg := &app.Config{
		DB:          mockDB,
		AppConfig:   &config.AppConfig{},
		Tokens:      tokens,
		ChatService: chat.NewChatService(mockDB, retriever, prompt.NewAssembler(0), completer),
	}

	return &testServer{handler: NewRouter(cfg), store: store, completer: completer, tokens: tokens}
}

func (s *testServer) do(t *testing.T, method, path, userID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		token, err := s.tokens.GenerateToken(userID, userID+"@example.com")
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp := httptest.NewRecorder()
	s.handler.ServeHTTP(resp, req)
	return resp
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	resp := s.do(t, http.MethodGet, "/api/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.JSONEq(t, `{"status":"ok"}`, resp.Body.String())
}

func TestChat_Unauthorized(t *testing.T) {
	s := newTestServer(t)

	resp := s.do(t, http.MethodPost, "/api/ai/chat", "", map[string]string{"message": "hola"})
	assert.Equal(t, http.StatusUnauthorized, resp.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/ai/chat", strings.NewReader(`{"message":"hola"}`))
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, 0, s.completer.Calls)
}

func TestChat_StreamsFramesAndDone(t *testing.T) {
	s := newTestServer(t)

	resp := s.do(t, http.MethodPost, "/api/ai/chat", "user-1", map[string]any{
		"message":             "¿Cómo empiezo?",
		"conversationHistory": []map[string]string{{"role": "user", "content": "hola"}},
	})

	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "text/event-stream", resp.Header().Get("Content-Type"))
	assert.Equal(t,
		"data: {\"content\":\"Empieza \"}\n\n"+
			"data: {\"content\":\"con <una> meta \\\"pequeña\\\".\"}\n\n"+
			"data: [DONE]\n\n",
		resp.Body.String())
}

func TestChat_QuotaExceeded(t *testing.T) {
	s := newTestServer(t)
	s.store.usage["user-1/"+chat.DayKey(time.Now())] = &db.DailyUsage{MessageCount: chat.DailyMessageLimit}

	resp := s.do(t, http.MethodPost, "/api/ai/chat", "user-1", map[string]string{"message": "hola"})

	require.Equal(t, http.StatusTooManyRequests, resp.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	assert.Equal(t, float64(20), body["limit"])
	assert.NotEmpty(t, body["error"])
	assert.NotEmpty(t, body["message"])
	assert.Equal(t, 0, s.completer.Calls)
}

func TestChat_NineteenthMessageStreamsThenLimit(t *testing.T) {
	s := newTestServer(t)
	day := chat.DayKey(time.Now())
	s.store.usage["user-1/"+day] = &db.DailyUsage{MessageCount: chat.DailyMessageLimit - 1}

	resp := s.do(t, http.MethodPost, "/api/ai/chat", "user-1", map[string]string{"message": "hola"})
	require.Equal(t, http.StatusOK, resp.Code)
	assert.True(t, strings.HasSuffix(resp.Body.String(), "data: [DONE]\n\n"))
	assert.Equal(t, chat.DailyMessageLimit, s.store.usage["user-1/"+day].MessageCount)

	resp = s.do(t, http.MethodPost, "/api/ai/chat", "user-1", map[string]string{"message": "otra vez"})
	assert.Equal(t, http.StatusTooManyRequests, resp.Code)
}

func TestChat_ValidationError(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name string
		body any
	}{
		{name: "empty message", body: map[string]string{"message": "   "}},
		{name: "bad history role", body: map[string]any{
			"message":             "hola",
			"conversationHistory": []map[string]string{{"role": "system", "content": "x"}},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := s.do(t, http.MethodPost, "/api/ai/chat", "user-1", tt.body)
			assert.Equal(t, http.StatusBadRequest, resp.Code)
		})
	}
	assert.Equal(t, 0, s.completer.Calls)
}

func TestChat_OpenStreamFailure(t *testing.T) {
	s := newTestServer(t)
	s.completer.OpenStreamFunc = func(ctx context.Context, messages []llm.Message, opts llm.CompletionOptions) (io.ReadCloser, error) {
		return nil, &llm.UpstreamError{Service: "completion", Status: 502, Body: "bad gateway"}
	}

	resp := s.do(t, http.MethodPost, "/api/ai/chat", "user-1", map[string]string{"message": "hola"})
	assert.Equal(t, http.StatusInternalServerError, resp.Code)
	assert.Equal(t, "application/json", resp.Header().Get("Content-Type"))
}

func TestChat_MidStreamErrorAbortsConnection(t *testing.T) {
	s := newTestServer(t)
	s.completer.OpenStreamFunc = func(ctx context.Context, messages []llm.Message, opts llm.CompletionOptions) (io.ReadCloser, error) {
		body := io.MultiReader(
			strings.NewReader("data: {\"choices\":[{\"delta\":{\"content\":\"Hola\"}}]}\n\n"),
			iotestErrReader{err: errors.New("connection reset by peer")},
		)
		return io.NopCloser(body), nil
	}

	req := httptest.NewRequest(http.MethodPost, "/api/ai/chat", strings.NewReader(`{"message":"hola"}`))
	token, _ := s.tokens.GenerateToken("user-1", "u@example.com")
	req.Header.Set("Authorization", "Bearer "+token)

	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		s.handler.ServeHTTP(httptest.NewRecorder(), req)
	})

	// Only the user message was stored
	require.Len(t, s.store.messages, 1)
	assert.Equal(t, db.RoleUser, s.store.messages[0].Role)
}

type iotestErrReader struct{ err error }

func (r iotestErrReader) Read([]byte) (int, error) { return 0, r.err }

func TestHistory_RoundTripAndClear(t *testing.T) {
	s := newTestServer(t)

	resp := s.do(t, http.MethodPost, "/api/ai/chat", "user-1", map[string]string{"message": "Quiero correr"})
	require.Equal(t, http.StatusOK, resp.Code)

	var first, second map[string][]map[string]string
	resp = s.do(t, http.MethodGet, "/api/ai/history", "user-1", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &first))

	msgs := first["messages"]
	require.Len(t, msgs, 2)
	assert.Equal(t, "user", msgs[0]["role"])
	assert.Equal(t, "Quiero correr", msgs[0]["content"])
	assert.Equal(t, "assistant", msgs[1]["role"])
	assert.Equal(t, "Empieza con <una> meta \"pequeña\".", msgs[1]["content"])
	assert.Less(t, msgs[0]["created_at"], msgs[1]["created_at"])

	// Reading history does not change it
	resp = s.do(t, http.MethodGet, "/api/ai/history", "user-1", nil)
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &second))
	assert.Equal(t, first, second)

	resp = s.do(t, http.MethodDelete, "/api/ai/history", "user-1", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.JSONEq(t, `{"success":true}`, resp.Body.String())

	resp = s.do(t, http.MethodGet, "/api/ai/history", "user-1", nil)
	assert.JSONEq(t, `{"messages":[]}`, resp.Body.String())
}

func TestHistory_InvalidLimit(t *testing.T) {
	s := newTestServer(t)
	resp := s.do(t, http.MethodGet, "/api/ai/history?limit=abc", "user-1", nil)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestUsage(t *testing.T) {
	s := newTestServer(t)

	resp := s.do(t, http.MethodPost, "/api/ai/chat", "user-1", map[string]string{"message": "hola"})
	require.Equal(t, http.StatusOK, resp.Code)

	resp = s.do(t, http.MethodGet, "/api/ai/usage", "user-1", nil)
	require.Equal(t, http.StatusOK, resp.Code)

	var report chat.UsageReport
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &report))
	assert.Equal(t, 1, report.MessageCount)
	assert.Equal(t, chat.EstimateTokens("Empieza con <una> meta \"pequeña\"."), report.TokensUsed)
	assert.Equal(t, 19, report.Remaining)
	assert.Equal(t, 20, report.Limit)
	assert.True(t, strings.HasSuffix(report.ResetTime, "T00:00:00Z"))
}

func TestMisconfiguredDatabase(t *testing.T) {
	logger.Silence()
	tokens := auth.NewManager(config.AuthConfig{JWTSecret: []byte(testSecret)})
	handler := NewRouter(app.NewConfig(nil, &config.AppConfig{Auth: config.AuthConfig{JWTSecret: []byte(testSecret)}}))

	for _, path := range []string{"/api/ai/usage", "/api/ai/history"} {
		// No token at all still yields the misconfiguration error
		req := httptest.NewRequest(http.MethodGet, path, nil)
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, req)
		assert.Equal(t, http.StatusInternalServerError, resp.Code, path)
		assert.Contains(t, resp.Body.String(), "Server misconfiguration")
	}

	token, _ := tokens.GenerateToken("user-1", "u@example.com")
	req := httptest.NewRequest(http.MethodPost, "/api/ai/chat", strings.NewReader(`{"message":"hola"}`))
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	assert.Equal(t, http.StatusInternalServerError, resp.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/health", nil)
	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	assert.Equal(t, http.StatusOK, resp.Code)
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/ai/chat", nil)
	resp := httptest.NewRecorder()
	s.handler.ServeHTTP(resp, req)

	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "*", resp.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, resp.Header().Get("Access-Control-Allow-Headers"), "Authorization")
}
