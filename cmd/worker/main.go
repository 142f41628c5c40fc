package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/harshit-ig/startup-genie/internal/config"
	"github.com/harshit-ig/startup-genie/internal/llm"
	"github.com/harshit-ig/startup-genie/internal/logging"
	"github.com/harshit-ig/startup-genie/internal/queue"
	"github.com/harshit-ig/startup-genie/internal/repository"
	"github.com/harshit-ig/startup-genie/internal/worker"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: loading .env: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		panic(err)
	}

	logger, err := logging.New(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, File: cfg.LogFile})
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	if cfg.StoreDriver == config.StoreDriverMemory {
		logger.Fatal("worker needs a shared store; memory driver only works inside one process")
	}

	stores, err := repository.OpenStores(ctx, repository.StoreOptions{
		Driver:        cfg.StoreDriver,
		DatabaseURL:   cfg.DatabaseURL,
		MongoURL:      cfg.MongoURL,
		MongoDatabase: cfg.MongoDatabase,
	})
	if err != nil {
		logger.Fatal("store connect", zap.String("driver", cfg.StoreDriver), zap.Error(err))
	}
	defer stores.Close()

	llmClient := llm.NewHTTPClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModel, llm.Options{
		Temperature: cfg.LLMTemperature,
		MaxTokens:   cfg.LLMMaxTokens,
		Timeout:     5 * time.Minute,
	}, logger)

	w := worker.New(stores.Prompts, stores.Responses, stores.Histories, llmClient, worker.Config{
		PollInterval: cfg.WorkerPollInterval,
		Concurrency:  cfg.WorkerConcurrency,
	}, logger)

	if cfg.KafkaEnabled() {
		sub := queue.NewKafkaSubscriber(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaGroupID, logger)
		defer sub.Close()
		go func() {
			err := sub.Run(ctx, func(_ context.Context, ev queue.PromptEvent) {
				logger.Debug("prompt event received", zap.String("prompt_id", ev.PromptID))
				w.Notify()
			})
			if err != nil {
				logger.Error("prompt subscriber stopped", zap.Error(err))
			}
		}()
	}

	if err := w.Run(ctx); err != nil {
		logger.Error("worker error", zap.Error(err))
	}
}
