package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"financeflow/internal/amqp"
	"financeflow/internal/assistant"
	"financeflow/internal/config"
	"financeflow/internal/ledger"
	"financeflow/internal/log"
	"financeflow/internal/mail"
	"financeflow/internal/storage"
	"financeflow/internal/worker"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := log.New(log.Config{Component: log.ComponentAlerts})
	log.SetDefault(logger)

	logger.Info("Starting alerts-worker")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}
	if cfg.SMTPHost == "" {
		logger.Error("SMTP_HOST is required - the alerts worker only sends mail")
		os.Exit(1)
	}

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	mailer := mail.NewSMTPMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.MailFrom)
	ledgerSvc := ledger.NewService(repo, nil)

	var insights worker.InsightsProvider
	if cfg.GeminiAPIKey != "" {
		generator, err := assistant.NewGeminiClient(context.Background(), cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			logger.Warn("Failed to initialize Gemini client, reports go out without commentary", "error", err)
		} else {
			insights = assistant.NewService(generator, ledgerSvc)
		}
	}

	alertsWorker := worker.NewAlertsWorker(repo, ledgerSvc, mailer, insights)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Report loop starting", "interval", cfg.AlertInterval)
		if err := alertsWorker.Run(ctx, cfg.AlertInterval); err != nil && ctx.Err() == nil {
			return err
		}
		return nil
	})

	if cfg.AMQPURL != "" {
		amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, running on timer only", "error", err)
		} else {
			defer amqpClient.Close()
			g.Go(func() error {
				logger.Info("Consuming ledger events", "queue", cfg.AMQPQueue)
				err := amqpClient.ConsumeTransactionPosted(ctx, func(msg *amqp.TransactionPostedMessage) error {
					return alertsWorker.HandleTransactionPosted(ctx, msg)
				})
				if err != nil && ctx.Err() == nil {
					return err
				}
				return nil
			})
		}
	} else {
		logger.Info("AMQP disabled - running on timer only")
	}

	if err := g.Wait(); err != nil {
		logger.Error("alerts-worker failed", "error", err)
		os.Exit(1)
	}
	logger.Info("alerts-worker stopped gracefully")
}
