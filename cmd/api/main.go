package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/harshit-ig/startup-genie/internal/config"
	"github.com/harshit-ig/startup-genie/internal/email"
	apihttp "github.com/harshit-ig/startup-genie/internal/http"
	"github.com/harshit-ig/startup-genie/internal/logging"
	"github.com/harshit-ig/startup-genie/internal/queue"
	"github.com/harshit-ig/startup-genie/internal/relay"
	"github.com/harshit-ig/startup-genie/internal/repository"
	"github.com/harshit-ig/startup-genie/internal/service"
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

	emailSender := email.NewDisabledSender("email sender not configured")
	if cfg.SMTPHost != "" {
		sender, err := email.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPFrom, cfg.SMTPFromName, cfg.SMTPUseTLS)
		if err != nil {
			logger.Warn("smtp sender init failed", zap.Error(err))
		} else {
			emailSender = sender
		}
	}

	var (
		resetLimiter service.RateLimiter
		tokenStore   service.RefreshTokenStore
	)
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer redisClient.Close()
		ctxPing, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := redisClient.Ping(ctxPing).Err(); err != nil {
			logger.Warn("redis ping failed", zap.Error(err))
		} else {
			resetLimiter = service.NewRedisRateLimiter(redisClient, "auth:reset:rl:", 10*time.Minute, 3)
			tokenStore = service.NewRedisRefreshTokenStore(redisClient)
		}
		cancel()
	}

	jwtSvc := service.NewJWTService(
		cfg.JWTSecret,
		time.Duration(cfg.JWTAccessTTLMinutes)*time.Minute,
		time.Duration(cfg.JWTRefreshTTLMinutes)*time.Minute,
		tokenStore,
	)
	if cfg.JWTSecret == "" {
		logger.Warn("jwt secret not configured")
	}

	var publisher queue.Publisher = queue.NopPublisher{}
	if cfg.KafkaEnabled() {
		publisher = queue.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		logger.Info("prompt events enabled", zap.Strings("brokers", cfg.KafkaBrokers), zap.String("topic", cfg.KafkaTopic))
	}
	defer publisher.Close()

	userSvc := service.NewUserService(logger, stores.Users, emailSender, resetLimiter)
	promptSvc := service.NewPromptService(logger, stores.Prompts, stores.Histories, publisher)
	streamRelay := relay.New(stores.Prompts, stores.Responses, relay.Config{
		PollInterval:      cfg.StreamPollInterval,
		MaxPromptAttempts: cfg.StreamMaxPromptAttempts,
		ResponseGrace:     cfg.StreamResponseGrace,
		InactivityTimeout: cfg.StreamInactivityTimeout,
	}, logger)

	userHandler := apihttp.NewUserHandler(logger, userSvc, jwtSvc, apihttp.UserHandlerOptions{
		CookieSecure: cfg.CookieSecure || cfg.IsProduction(),
		ResetURLBase: cfg.ResetURLBase,
	})
	aiHandler := apihttp.NewAIHandler(logger, promptSvc, streamRelay)
	router := apihttp.NewRouter(logger, jwtSvc, userHandler, aiHandler, stores.Ping)

	// Sin WriteTimeout: los streams SSE duran lo que dure la generacion.
	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("server shutdown", zap.Error(err))
		}
	}()

	logger.Info("starting server",
		zap.String("port", cfg.HTTPPort),
		zap.String("store", cfg.StoreDriver),
		zap.String("env", cfg.AppEnv),
	)

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server error", zap.Error(err))
	}
	logger.Info("server stopped")
}
