package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/ignite/notify-engine/internal/api"
	"github.com/ignite/notify-engine/internal/config"
	"github.com/ignite/notify-engine/internal/eventlog"
	"github.com/ignite/notify-engine/internal/store/postgres"
)

func main() {
	log.Println("Starting notify-engine server...")

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}
	cfg, err := config.LoadFromEnv(cfgPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	db, err := postgres.Connect(cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Connected to database")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eventStore, err := buildEventStore(ctx, cfg, db)
	if err != nil {
		log.Fatalf("Failed to init event log: %v", err)
	}

	handlers := &api.Handlers{
		Queue:        postgres.NewQueueStore(db),
		Suppressions: postgres.NewSuppressionStore(db),
		Events:       eventStore,
	}

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	log.Printf("Listening on %s", addr)
	if err := api.Serve(ctx, addr, api.SetupRoutes(handlers)); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}
	log.Println("Server stopped")
}

func buildEventStore(ctx context.Context, cfg *config.Config, db *sql.DB) (eventlog.Store, error) {
	switch cfg.EventLog.Backend {
	case "dynamodb":
		return eventlog.NewDynamoStore(ctx, cfg.EventLog.DynamoDBTable, cfg.EventLog.AWSRegion)
	case "postgres", "":
		return eventlog.NewPostgresStore(db), nil
	default:
		return nil, fmt.Errorf("unknown event log backend %q", cfg.EventLog.Backend)
	}
}
