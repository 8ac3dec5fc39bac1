package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ignite/notify-engine/internal/channel"
	"github.com/ignite/notify-engine/internal/config"
	"github.com/ignite/notify-engine/internal/dispatch"
	"github.com/ignite/notify-engine/internal/eventlog"
	"github.com/ignite/notify-engine/internal/provider"
	"github.com/ignite/notify-engine/internal/store/postgres"
	"github.com/ignite/notify-engine/internal/suppression"
	"github.com/ignite/notify-engine/internal/template"
)

func main() {
	log.Println("Starting notify-engine worker...")

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

	queue := postgres.NewQueueStore(db)
	contacts := postgres.NewContactStore(db)
	registry := postgres.NewWorkerRegistry(db)

	eventStore, err := buildEventStore(ctx, cfg, db)
	if err != nil {
		log.Fatalf("Failed to init event log: %v", err)
	}
	events := eventlog.New(eventStore)

	supService := suppression.NewService(postgres.NewSuppressionStore(db))
	if err := supService.WarmCache(ctx); err != nil {
		log.Printf("Suppression cache warm failed, falling back to direct lookups: %v", err)
	}

	emailHandler := channel.NewEmailHandler(cfg.SES, cfg.Notify, func(c config.SESConfig) (provider.EmailProvider, error) {
		return provider.NewSESProvider(c.AccessKey, c.SecretKey, c.Region)
	}, supService, events)

	smsHandler := channel.NewSMSHandler(cfg.SMSGateway, cfg.Notify, func(c config.SMSGatewayConfig) (provider.SMSProvider, error) {
		return provider.NewGatewayProvider(c.AccountID, c.AuthToken, c.BaseURL, c.Timeout())
	}, events)
	defer smsHandler.Close()

	router := channel.NewRouter()
	router.Register("EMAIL", emailHandler)
	router.Register("SMS", smsHandler)

	templates := template.NewEngine()
	registerBuiltinTemplates(templates)

	var limiter *dispatch.RateLimiter
	if cfg.Redis.URL != "" {
		limiter, err = dispatch.NewRateLimiterFromURL(cfg.Redis.URL)
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		log.Println("Rate limiting enabled")
	} else {
		log.Println("REDIS_URL not set, rate limiting disabled")
	}

	dispatcher := dispatch.NewDispatcher(router, contacts, templates, limiter, cfg.Notify)
	pool := dispatch.NewPool(queue, dispatcher, registry, cfg.Worker)

	log.Printf("Worker %s running, press Ctrl+C to stop", pool.WorkerID())
	pool.Run(ctx)
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

// registerBuiltinTemplates binds the default template sets shipped with the
// engine. Deployments typically extend this from their own registration
// code.
func registerBuiltinTemplates(e *template.Engine) {
	e.Register("system.alert", template.Set{
		Subject:  "[Alert] {{ title | default: \"System notification\" }}",
		HTMLBody: "<h2>{{ title }}</h2><p>{{ message }}</p>",
		TextBody: "{{ title }}\n\n{{ message }}",
		SMSBody:  "{{ title }}: {{ message | truncate: 140 }}",
	})
	e.Register("account.welcome", template.Set{
		Subject:  "Welcome, {{ first_name | default: \"there\" }}!",
		HTMLBody: "<p>Hi {{ first_name | default: \"there\" }},</p><p>{{ message }}</p>",
		TextBody: "Hi {{ first_name | default: \"there\" }},\n\n{{ message }}",
		SMSBody:  "Welcome {{ first_name | default: \"there\" }}! {{ message | truncate: 120 }}",
	})
}
