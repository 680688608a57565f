package main

import (
	"coach-app/internal/config"
	"coach-app/internal/ingest"
	"coach-app/internal/logger"
	"coach-app/internal/repository/postgres"
	"coach-app/internal/service/embedding"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		dir      string
		maxChars int
		dryRun   bool
	)

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Load markdown and text documents into the coach knowledge base",
		Long: "Walks a directory of .md and .txt files, splits them into paragraph chunks, " +
			"embeds every chunk and stores it in knowledge_chunks.",
		SilenceUsage: true,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if dir == "" {
				return errors.New("--dir is required")
			}
			info, err := os.Stat(dir)
			if err != nil {
				return err
			}
			if !info.IsDir() {
				return fmt.Errorf("%s is not a directory", dir)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), dir, ingest.Options{MaxChars: maxChars, DryRun: dryRun})
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "directory containing the documents")
	cmd.Flags().IntVar(&maxChars, "max-chars", ingest.DefaultMaxChars, "maximum characters per chunk")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "only report how documents would be chunked")

	return cmd
}

func run(ctx context.Context, dir string, opts ingest.Options) error {
	if err := godotenv.Load(); err != nil {
		logger.Log.Debug("No .env file loaded, using system environment only")
	}
	logger.SetLevel(os.Getenv("LOG_LEVEL"))

	var ingester *ingest.Ingester
	if opts.DryRun {
		ingester = ingest.NewIngester(nil, nil)
	} else {
		appConfig, err := config.LoadConfig()
		if err != nil {
			return err
		}
		store, err := postgres.NewPostgresDB(ctx, appConfig.Database)
		if err != nil {
			return err
		}
		defer store.Close()
		ingester = ingest.NewIngester(embedding.NewClient(appConfig.Embedding), store)
	}

	stats, err := ingester.IngestDir(ctx, os.DirFS(dir), opts)
	if err != nil {
		logger.Log.WithError(err).Error("Ingestion failed")
		return err
	}

	logger.Log.WithFields(logrus.Fields{
		"dir":     dir,
		"files":   stats.Files,
		"chunks":  stats.Chunks,
		"dry_run": opts.DryRun,
	}).Info("Ingestion finished")
	return nil
}
