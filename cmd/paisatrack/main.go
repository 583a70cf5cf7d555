package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/abhisheksenku/paisatrack/internal/alerts"
	"github.com/abhisheksenku/paisatrack/internal/amqp"
	"github.com/abhisheksenku/paisatrack/internal/auth"
	"github.com/abhisheksenku/paisatrack/internal/config"
	apphttp "github.com/abhisheksenku/paisatrack/internal/http"
	applog "github.com/abhisheksenku/paisatrack/internal/log"
	"github.com/abhisheksenku/paisatrack/internal/mail"
	"github.com/abhisheksenku/paisatrack/internal/realtime"
	"github.com/abhisheksenku/paisatrack/internal/services"
	"github.com/abhisheksenku/paisatrack/internal/storage"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := applog.New(applog.DefaultConfig())
	applog.SetDefault(logger)

	logger.Info("Starting paisatrack")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", applog.FieldError, err)
		os.Exit(1)
	}

	verifier, err := auth.NewVerifier(cfg.JWTSecret)
	if err != nil {
		logger.Error("Failed to initialize token verifier", applog.FieldError, err)
		os.Exit(1)
	}

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository",
			applog.FieldError, err,
			"path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	// Out-of-band alert delivery: queue when a broker is configured,
	// direct SMTP when only mail is, nothing otherwise.
	var notifier alerts.Notifier
	switch {
	case cfg.AMQPURL != "":
		amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", applog.FieldError, err)
			os.Exit(1)
		}
		defer amqpClient.Close()
		notifier = alerts.NewQueueNotifier(amqpClient)
		logger.Info("Queued alert delivery enabled",
			applog.FieldExchange, cfg.AMQPExchange,
			applog.FieldQueue, cfg.AMQPQueue)
	case cfg.MailConfigured():
		mailer := mail.NewMailer(mail.Config{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
			FromName: cfg.SMTPFromName,
		})
		notifier = alerts.NewMailNotifier(mailer)
		logger.Info("Direct mail alert delivery enabled", "host", cfg.SMTPHost)
	default:
		logger.Info("Alert delivery limited to realtime broadcast - no AMQP or SMTP configured")
	}

	router := realtime.NewRouter()
	hub := realtime.NewHub(router, logger)

	evalOpts := []alerts.Option{}
	if notifier != nil {
		evalOpts = append(evalOpts, alerts.WithNotifier(notifier))
	}
	evaluator := alerts.NewEvaluator(repo, repo, hub, logger, evalOpts...)

	svc := services.NewExpenseService(repo, hub, router, evaluator, logger)
	ws := realtime.NewServer(verifier, router, hub, svc, logger)

	srv := apphttp.NewServer(":"+cfg.Port, ws, svc, verifier, logger)
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 0 // websocket connections write indefinitely
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	// Graceful shutdown handling
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Starting paisatrack server", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		logger.Info("Shutdown signal received")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer shutdownCancel()

		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server error", applog.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}
