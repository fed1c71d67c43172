// Command dispatcher performs a single dispatch run and exits. It is meant
// to be invoked from cron or a scheduler; the HTTP server exposes the same
// run via POST /api/dispatch/run.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"flag"
	"log"
	"os"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/clienthq/followup-engine/internal/config"
	"github.com/clienthq/followup-engine/internal/content"
	"github.com/clienthq/followup-engine/internal/delivery"
	"github.com/clienthq/followup-engine/internal/dispatcher"
	"github.com/clienthq/followup-engine/internal/pkg/distlock"
	"github.com/clienthq/followup-engine/internal/store"
)

func main() {
	includeQueue := flag.Bool("queue", false, "also process the follow-up queue table")
	timeout := flag.Duration("timeout", 10*time.Minute, "overall run timeout")
	flag.Parse()

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}
	cfg, err := config.LoadFromEnv(cfgPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	db, err := openDB(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	var redisClient *redis.Client
	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			log.Fatalf("Invalid REDIS_URL: %v", err)
		}
		redisClient = redis.NewClient(opts)
		defer redisClient.Close()
	}

	d := buildDispatcher(cfg, store.New(db), db, redisClient)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	summary, err := d.Run(ctx)
	if err != nil {
		if errors.Is(err, dispatcher.ErrAlreadyRunning) {
			log.Println("Another dispatch run is already in progress, nothing to do")
			return
		}
		log.Fatalf("Dispatch run failed: %v", err)
	}
	if *includeQueue {
		queueSummary, err := d.RunQueue(ctx)
		if err != nil {
			log.Fatalf("Queue run failed: %v", err)
		}
		summary.Merge(queueSummary)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		log.Fatalf("Failed to encode summary: %v", err)
	}
}

func openDB(cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetimeDuration())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func buildDispatcher(cfg *config.Config, st *store.Store, db *sql.DB, redisClient *redis.Client) *dispatcher.Dispatcher {
	var limiter content.RateLimiter
	if redisClient != nil {
		limiter = content.NewRedisLimiter(redisClient, cfg.Content.RequestsPerMinute, time.Minute)
	} else {
		limiter = content.NewWindowLimiter(cfg.Content.RequestsPerMinute, time.Minute)
	}
	generator := content.NewAIGenerator(
		cfg.Content.AnthropicKey, cfg.Content.OpenAIKey, cfg.Content.Model,
		cfg.Content.Timeout(), limiter)

	var providers []delivery.Provider
	if cfg.Delivery.SESAccessKey != "" {
		ses, err := delivery.NewSESProvider(cfg.Delivery.SESAccessKey, cfg.Delivery.SESSecretKey, cfg.Delivery.SESRegion)
		if err != nil {
			log.Printf("WARNING: SES provider unavailable: %v", err)
		} else {
			providers = append(providers, ses)
		}
	}
	if cfg.Delivery.SparkPostKey != "" {
		providers = append(providers, delivery.NewSparkPostProvider(cfg.Delivery.SparkPostKey, cfg.Delivery.AttemptTimeout()))
	}
	if cfg.Delivery.SimulationFallback || len(providers) == 0 {
		providers = append(providers, delivery.SimulationProvider{})
	}
	chain := delivery.NewChain(providers, cfg.Delivery.MaxAttempts, cfg.Delivery.AttemptTimeout())

	var attachments dispatcher.AttachmentSource
	if cfg.Attachments.S3Bucket != "" {
		fetcher, err := delivery.NewAttachmentFetcher(
			cfg.Delivery.SESAccessKey, cfg.Delivery.SESSecretKey,
			cfg.Attachments.S3Region, cfg.Attachments.S3Bucket)
		if err != nil {
			log.Printf("WARNING: attachment fetcher unavailable: %v", err)
		} else {
			attachments = fetcher
		}
	}

	lock := distlock.NewLock(redisClient, db, "dispatch:run", cfg.Dispatch.LockTTL())

	return dispatcher.New(dispatcher.Options{
		Store:       st,
		Generator:   generator,
		Renderer:    content.NewRenderer(),
		Sender:      chain,
		Attachments: attachments,
		Lock:        lock,
		FromEmail:   cfg.Delivery.FromEmail,
		FromName:    cfg.Delivery.FromName,
		BatchSize:   cfg.Dispatch.BatchSize,
	})
}
