package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/account-validity/internal/application/directory"
	"github.com/account-validity/internal/application/notifier"
	"github.com/account-validity/internal/application/renewal"
	"github.com/account-validity/internal/application/scanner"
	"github.com/account-validity/internal/config"
	"github.com/account-validity/internal/infrastructure/cache"
	"github.com/account-validity/internal/infrastructure/dynamo"
	jwtinfra "github.com/account-validity/internal/infrastructure/jwt"
	s3infra "github.com/account-validity/internal/infrastructure/s3"
	"github.com/account-validity/internal/infrastructure/smtp"
	"github.com/account-validity/internal/infrastructure/sns"
	pkgclock "github.com/account-validity/internal/pkg/clock"
	transporthttp "github.com/account-validity/internal/transport/http"
	"github.com/joho/godotenv"
)

// bootstrapBatchSize is the page size for the startup backfill of accounts
// that predate validity tracking.
const bootstrapBatchSize = 100

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file found, reading from environment")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	// Bootstrap DynamoDB tables (creates them if they don't exist).
	dynamoClient := dynamo.NewClient(cfg)
	dynamo.Bootstrap(context.Background(), dynamoClient, cfg.DynamoTables)

	// Expiration read cache: Redis when configured, in-process otherwise.
	var expCache cache.ExpirationCache
	if cfg.RedisURL != "" {
		redisClient, err := cache.Connect(cfg.RedisURL)
		if err != nil {
			slog.Error("redis connection failed", "error", err)
			os.Exit(1)
		}
		expCache = cache.NewRedis(redisClient)
	} else {
		expCache = cache.NewMemory()
	}

	clk := pkgclock.System{}
	validityRepo := dynamo.NewValidityRepo(dynamoClient, cfg.DynamoTables.Validity, cfg.DynamoTables.RenewalTokens, expCache, clk, cfg.Period)
	accountRepo := dynamo.NewAccountRepo(dynamoClient, cfg.DynamoTables.Accounts)
	noticeRepo := dynamo.NewNoticeRepo(dynamoClient, cfg.DynamoTables.RenewalNotices)

	// JWT provider (optional — without it all authenticated routes reject).
	var jwtProvider *jwtinfra.Provider
	if p, err := jwtinfra.NewProvider(cfg); err == nil {
		jwtProvider = p
	} else {
		slog.Warn("JWT provider not available, authenticated routes disabled", "error", err)
	}

	// Notice and page templates, with optional S3 overrides.
	s3Client := s3infra.NewClient(cfg)
	templates, err := s3infra.LoadTemplates(context.Background(), s3Client, cfg.S3TemplateBucket)
	if err != nil {
		slog.Error("failed to load templates", "error", err)
		os.Exit(1)
	}

	mailer := smtp.NewMailer(cfg)

	// SNS SMS sender (optional — graceful fallback).
	var smsSender sns.SMSSender
	if sender, err := sns.NewSender(cfg); err == nil {
		smsSender = sender
	} else {
		slog.Warn("SNS sender not available, SMS codes disabled", "error", err)
	}

	renewalSvc := renewal.NewService(validityRepo, clk, cfg.Period)
	directorySvc := directory.NewService(accountRepo)
	notifierSvc := notifier.NewService(notifier.Deps{
		Renewal:       renewalSvc,
		Directory:     directorySvc,
		Store:         validityRepo,
		Notices:       noticeRepo,
		Mailer:        mailer,
		SMS:           smsSender,
		Templates:     templates,
		Clock:         clk,
		AppName:       cfg.AppName,
		Subject:       cfg.RenewMailSubject,
		PublicBaseURL: cfg.PublicBaseURL,
		TokenFormat:   cfg.TokenFormat,
	})

	scanCtx, stopScan := context.WithCancel(context.Background())
	defer stopScan()

	// Backfill validity records for accounts created before this service was
	// deployed, a page at a time so a huge directory does not stall startup.
	if cfg.BootstrapOnStart {
		go func() {
			for {
				inserted, err := validityRepo.BootstrapMissing(scanCtx, accountRepo, bootstrapBatchSize)
				if err != nil {
					slog.Error("validity bootstrap pass failed", "error", err)
					return
				}
				slog.Info("validity bootstrap pass complete", "inserted", inserted)
				if inserted < bootstrapBatchSize {
					return
				}
			}
		}()
	}

	sc := scanner.New(validityRepo, notifierSvc, cfg.RenewAt, time.Duration(cfg.ScanInterval)*time.Millisecond)
	go sc.Run(scanCtx)

	router := transporthttp.NewRouter(cfg, &transporthttp.Deps{
		Renewal:     renewalSvc,
		Notifier:    notifierSvc,
		Notices:     noticeRepo,
		Templates:   templates,
		JWTProvider: jwtProvider,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.AppPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "port", cfg.AppPort, "env", cfg.AppEnv, "token_format", cfg.TokenFormat)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down")
	stopScan()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("forced shutdown", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}
