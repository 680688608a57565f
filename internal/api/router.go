package api

import (
	"coach-app/internal/api/handlers"
	"coach-app/internal/app"
	"coach-app/internal/logger"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter wires HTTP routes to the application services
func NewRouter(cfg *app.Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{Logger: logger.Log, NoColor: true}))
	r.Use(middleware.Recoverer)
	r.Use(enableCORS)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"status":"ok"}`))
		})

		r.Group(func(r chi.Router) {
			r.Use(handlers.RequireDatabase(cfg.DatabaseConfigured()))

			authHandlers := handlers.NewAuthHandlers(cfg.DB, cfg.Tokens)
			r.Post("/auth/register", authHandlers.RegisterHandler)
			r.Post("/auth/login", authHandlers.LoginHandler)

			r.Route("/ai", func(r chi.Router) {
				r.Use(handlers.Authenticate(cfg.Tokens))

				chatHandlers := handlers.NewChatHandlers(cfg.ChatService)
				r.Post("/chat", chatHandlers.ChatStreamHandler)
				r.Get("/history", chatHandlers.GetHistoryHandler)
				r.Delete("/history", chatHandlers.DeleteHistoryHandler)
				r.Get("/usage", chatHandlers.GetUsageHandler)
			})
		})
	})

	return r
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
