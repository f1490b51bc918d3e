package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"poll-api/internal/config"
	"poll-api/internal/db"
	"poll-api/internal/email"
	apihttp "poll-api/internal/http"
	"poll-api/internal/repository"
	"poll-api/internal/service"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
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

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		logger.Fatal("db connect", zap.Error(err))
	}
	defer pool.Close()
	if err := db.Ping(ctx, pool); err != nil {
		logger.Fatal("db ping", zap.Error(err))
	}
	if err := db.EnsureSchema(ctx, pool); err != nil {
		logger.Fatal("db schema", zap.Error(err))
	}

	userRepo := repository.NewPgUserRepository(pool)
	pollRepo := repository.NewPgPollRepository(pool)

	emailSender := email.NewDisabledSender("email sender not configured")
	if cfg.SMTPHost != "" {
		sender, err := email.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPFrom, cfg.SMTPFromName, cfg.SMTPUseTLS)
		if err != nil {
			logger.Warn("smtp sender init failed", zap.Error(err))
		} else {
			emailSender = sender
		}
	}

	rateWindow := time.Duration(cfg.OTPRateWindowMinutes) * time.Minute
	var (
		issueLimiter = service.NewMemoryIssueLimiter(rateWindow, cfg.OTPRateMax)
		sessionStore = service.NewMemorySessionStore()
		redisClient  *redis.Client
	)
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		ctxPing, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := redisClient.Ping(ctxPing).Err(); err != nil {
			logger.Warn("redis ping failed, using in-memory limiter and sessions", zap.Error(err))
		} else {
			issueLimiter = service.NewRedisIssueLimiter(redisClient, rateWindow, cfg.OTPRateMax)
			sessionStore = service.NewRedisSessionStore(redisClient)
		}
		cancel()
	}

	jwtSvc := service.NewJWTServiceWithStore(
		cfg.JWTSecret,
		time.Duration(cfg.JWTSessionTTLMinutes)*time.Minute,
		sessionStore,
	)

	var strategy service.VerificationStrategy = service.OTPStrategy{}
	if cfg.VerificationStrategy == config.VerificationLink {
		strategy = service.NewLinkStrategy(jwtSvc, time.Duration(cfg.VerificationLinkTTLMinutes)*time.Minute)
	}
	notifier := service.NewNotifier(logger, emailSender, cfg.EmailTimeout)
	verifier := service.NewVerifier(logger, strategy, notifier, issueLimiter)

	userSvc := service.NewUserService(logger, userRepo, verifier, notifier, jwtSvc, time.Duration(cfg.ResetTokenTTLMinutes)*time.Minute)
	pollSvc := service.NewPollService(logger, pollRepo)
	voteSvc := service.NewVoteService(logger, pollRepo, verifier, cfg.VoteConfirmation)

	userHandler := apihttp.NewUserHandler(logger, userSvc, cfg.PublicBaseURL)
	pollHandler := apihttp.NewPollHandler(logger, pollSvc, voteSvc, cfg.PublicBaseURL)
	router := apihttp.NewRouter(logger, jwtSvc, cfg.RequestTimeout, cfg.CORSAllowedOrigins, userHandler, pollHandler)

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger.Info("starting server",
		zap.String("port", cfg.HTTPPort),
		zap.String("verification", verifier.Strategy()),
		zap.Bool("vote_confirmation", cfg.VoteConfirmation),
	)

	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			logger.Error("server error", zap.Error(err))
		}
	case <-ctx.Done():
		logger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server shutdown", zap.Error(err))
	}
	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", zap.Error(err))
		}
	}
}
