package main

import (
	"coach-app/internal/api"
	"coach-app/internal/app"
	"coach-app/internal/config"
	"coach-app/internal/logger"
	"coach-app/internal/repository/db"
	"coach-app/internal/repository/postgres"
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		logger.Log.Debug("No .env file loaded, using system environment only")
	}
	logger.SetLevel(os.Getenv("LOG_LEVEL"))

	appConfig, err := config.LoadConfig()
	if err != nil {
		logger.Log.WithError(err).Fatal("Failed to load configuration")
	}

	// A nil interface keeps the server running with AI endpoints reporting misconfiguration
	var database db.Database
	if appConfig.Database.Configured() {
		store, err := postgres.NewPostgresDB(ctx, appConfig.Database)
		if err != nil {
			logger.Log.WithError(err).Fatal("Failed to initialize database")
		}
		defer store.Close()
		database = store
	}

	router := api.NewRouter(app.NewConfig(database, appConfig))

	srv := &http.Server{
		Addr:              ":" + appConfig.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logger.Log.WithFields(logrus.Fields{
		"port":     appConfig.Server.Port,
		"model":    appConfig.LLM.Model,
		"database": appConfig.Database.Configured(),
	}).Info("Server starting")

	if err := runServer(ctx, srv, appConfig.Server.ShutdownTimeout); err != nil {
		logger.Log.WithError(err).Fatal("Server failed")
	}
	logger.Log.Info("Server stopped")
}

func runServer(ctx context.Context, srv *http.Server, shutdownTimeout time.Duration) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Log.Info("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
