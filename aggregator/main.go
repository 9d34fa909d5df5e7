package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/moshelati/knesset-data-vote-sub001/internal/platform/env"
	"github.com/moshelati/knesset-data-vote-sub001/internal/platform/postgres"
	pgrepo "github.com/moshelati/knesset-data-vote-sub001/internal/repo/postgres"
	"github.com/moshelati/knesset-data-vote-sub001/internal/scoring"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	ctx := context.Background()
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	topics := scoring.DefaultTopics
	if path := strings.TrimSpace(env.String("KNESSET_TOPICS_FILE", "")); path != "" {
		loaded, err := scoring.LoadTopics(path)
		if err != nil {
			logger.Error("invalid topics file", "path", path, "error", err)
			os.Exit(2)
		}
		topics = loaded
	}
	classifier, err := scoring.NewClassifier(topics)
	if err != nil {
		logger.Error("invalid topics", "error", err)
		os.Exit(2)
	}

	dbCfg, err := postgres.ConfigFromEnv()
	if err != nil {
		logger.Error("invalid database config", "error", err)
		os.Exit(2)
	}
	db, err := postgres.Open(ctx, dbCfg)
	if err != nil {
		logger.Error("database unavailable", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	engine, err := scoring.NewEngine(logger, pgrepo.NewEntityStore(db), pgrepo.NewAggregateStore(db), classifier)
	if err != nil {
		logger.Error("invalid aggregation engine", "error", err)
		os.Exit(2)
	}
	rows, err := engine.Run(ctx)
	if err != nil {
		logger.Error("aggregation failed", "error", err)
		os.Exit(1)
	}
	logger.Info("aggregation summary", "rows", len(rows), "topics", len(classifier.Keys()))
}
