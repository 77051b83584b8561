// Command seed imports the development fixtures into MongoDB or deletes
// every tour, user and review.
//
// Run: go run ./cmd/seed -import [-data dev-data]
//
//	go run ./cmd/seed -delete
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/natours/natours/internal/auth"
	"github.com/natours/natours/internal/config"
	"github.com/natours/natours/internal/ratings"
	mongorepo "github.com/natours/natours/internal/repository/mongo"
	"github.com/natours/natours/internal/seed"
	"github.com/natours/natours/pkg/database"
	"github.com/natours/natours/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run() error {
	importData := flag.Bool("import", false, "import the fixtures of -data")
	deleteData := flag.Bool("delete", false, "delete every tour, user and review")
	dataDir := flag.String("data", "dev-data", "fixture directory")
	flag.Parse()

	if *importData == *deleteData {
		return errors.New("pass exactly one of -import or -delete")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.StoreDriver != config.StoreMongo {
		return fmt.Errorf("seeding needs STORE_DRIVER=%s", config.StoreMongo)
	}
	log := logger.NewForEnvironment("natours-seed", cfg.LogLevel, cfg.Environment)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	client, err := database.NewMongoClient(ctx, database.MongoConfig{
		URI:            cfg.MongoURI,
		Database:       cfg.MongoDatabase,
		AppName:        "natours-seed",
		ConnectTimeout: cfg.MongoConnectTimeout,
		MaxPoolSize:    cfg.MongoMaxPoolSize,
	}, log)
	if err != nil {
		return fmt.Errorf("connect to mongo: %w", err)
	}
	defer func() { _ = client.Disconnect(context.Background()) }()

	store := mongorepo.NewStore(client.Database(cfg.MongoDatabase))

	if *deleteData {
		if err := store.DeleteAll(ctx); err != nil {
			return err
		}
		log.Info("fixtures deleted", slog.String("database", cfg.MongoDatabase))
		return nil
	}

	if err := store.EnsureIndexes(ctx); err != nil {
		return fmt.Errorf("ensure indexes: %w", err)
	}
	data, err := seed.Load(*dataDir)
	if err != nil {
		return err
	}
	engine := ratings.NewEngine(store.Reviews, store.Tours, nil, nil, ratings.DefaultConfig(), log)
	im := seed.NewImporter(store.Tours, store.Reviews, store.Users, auth.NewPasswordHasher(auth.DefaultCost), engine.Sync, log)
	if _, err := im.Import(ctx, data); err != nil {
		return err
	}
	return nil
}
