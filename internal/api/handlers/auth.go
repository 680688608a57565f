package handlers

import (
	"coach-app/internal/auth"
	"coach-app/internal/logger"
	"coach-app/internal/repository/db"
	"coach-app/pkg/validation"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"
)

type contextKey string

// UserContextKey holds the authenticated user id in the request context
const UserContextKey contextKey = "user"

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token string `json:"token"`
}

type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RegisterResponse struct {
	Message string `json:"message"`
	Token   string `json:"token"`
}

// AuthHandlers serves account registration and login
type AuthHandlers struct {
	db        db.Database
	tokens    *auth.Manager
	validator *validation.AuthRequestValidator
}

// NewAuthHandlers creates auth handlers
func NewAuthHandlers(database db.Database, tokens *auth.Manager) *AuthHandlers {
	return &AuthHandlers{
		db:        database,
		tokens:    tokens,
		validator: validation.NewAuthRequestValidator(),
	}
}

// RegisterHandler creates a new user account
func (ah *AuthHandlers) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	req.Email = strings.TrimSpace(req.Email)
	if err := ah.validator.ValidateRegisterRequest(req.Email, req.Password); err != nil {
		sendError(w, http.StatusBadRequest, "Validation failed", err.Error())
		return
	}

	user, err := ah.db.CreateUser(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, db.ErrDuplicateEmail) {
			sendError(w, http.StatusConflict, "Email already registered", "")
			return
		}
		logger.Log.WithError(err).Error("Registration failed")
		sendError(w, http.StatusInternalServerError, "Error creating user", "")
		return
	}

	token, err := ah.tokens.GenerateToken(user.ID, user.Email)
	if err != nil {
		logger.Log.WithError(err).Error("Error generating token")
		sendError(w, http.StatusInternalServerError, "Error generating token", "")
		return
	}

	logger.Log.WithField("user_id", user.ID).Info("User registered successfully")
	respondJSON(w, http.StatusCreated, RegisterResponse{
		Message: "User registered successfully",
		Token:   token,
	})
}

// LoginHandler authenticates a user and returns a session token
func (ah *AuthHandlers) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	if err := ah.validator.ValidateLoginRequest(req.Email, req.Password); err != nil {
		sendError(w, http.StatusBadRequest, "Validation failed", err.Error())
		return
	}

	user, err := ah.db.GetUserByEmail(r.Context(), req.Email)
	if err != nil {
		if !errors.Is(err, db.ErrNotFound) {
			logger.Log.WithError(err).Error("Error looking up user")
			sendError(w, http.StatusInternalServerError, "Error looking up user", "")
			return
		}
		logger.Log.Info("Login failed: user not found")
		sendError(w, http.StatusUnauthorized, "Invalid credentials", "")
		return
	}

	if !user.VerifyPassword(req.Password) {
		logger.Log.WithField("user_id", user.ID).Info("Login failed: invalid password")
		sendError(w, http.StatusUnauthorized, "Invalid credentials", "")
		return
	}

	token, err := ah.tokens.GenerateToken(user.ID, user.Email)
	if err != nil {
		logger.Log.WithError(err).Error("Error generating token")
		sendError(w, http.StatusInternalServerError, "Error generating token", "")
		return
	}

	logger.Log.WithField("user_id", user.ID).Info("User logged in successfully")
	respondJSON(w, http.StatusOK, LoginResponse{Token: token})
}

// Authenticate resolves the bearer token into a user id stored under UserContextKey
func Authenticate(tokens *auth.Manager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				sendError(w, http.StatusUnauthorized, "Unauthorized", "Missing authorization header")
				return
			}

			scheme, token, ok := strings.Cut(authHeader, " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
				sendError(w, http.StatusUnauthorized, "Unauthorized", "Invalid authorization header format")
				return
			}

			claims, err := tokens.ValidateToken(strings.TrimSpace(token))
			if err != nil {
				logger.Log.WithError(err).WithFields(logrus.Fields{"path": r.URL.Path}).Debug("Rejected session token")
				sendError(w, http.StatusUnauthorized, "Unauthorized", "Invalid token")
				return
			}

			ctx := context.WithValue(r.Context(), UserContextKey, claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireDatabase answers 500 for every request while no database is configured
func RequireDatabase(configured bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !configured {
				sendError(w, http.StatusInternalServerError, "Server misconfiguration", "")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// UserIDFromContext returns the authenticated user id
func UserIDFromContext(ctx context.Context) string {
	userID, _ := ctx.Value(UserContextKey).(string)
	return userID
}
