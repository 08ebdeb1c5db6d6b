package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/vedanschi/pebble-outreach/internal/db"
	apperrors "github.com/vedanschi/pebble-outreach/internal/errors"
	"github.com/vedanschi/pebble-outreach/internal/mail"
	"github.com/vedanschi/pebble-outreach/internal/model"
	"github.com/vedanschi/pebble-outreach/internal/queue"
	"github.com/vedanschi/pebble-outreach/internal/repository"
	"github.com/vedanschi/pebble-outreach/internal/service"
)

// The worker consumes due jobs published by the server's sweep and runs
// them through the dispatch engine. Conflicts are normal here: with
// multiple workers only the first writer records the send.
func main() {
	// Missing .env is fine; the OS environment is used as-is.
	godotenv.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	conn, err := db.Open()
	if err != nil {
		logger.Fatal("database connection failed", zap.Error(err))
	}
	defer conn.Close()

	transport := mail.NewSMTPTransport(mail.SMTPConfig{
		Host:     os.Getenv("SMTP_HOST"),
		Port:     envDefault("SMTP_PORT", "587"),
		Username: os.Getenv("SMTP_USER"),
		Password: os.Getenv("SMTP_PASSWORD"),
		Sender:   os.Getenv("SMTP_SENDER_EMAIL"),
		Timeout:  10 * time.Second,
	})

	dispatchService := &service.DispatchService{
		CampaignRepo:    &repository.CampaignRepository{DB: conn},
		ContactRepo:     &repository.ContactRepository{DB: conn},
		TemplateRepo:    &repository.TemplateRepository{DB: conn},
		RuleRepo:        &repository.FollowUpRuleRepository{DB: conn},
		SentRepo:        &repository.SentEmailRepository{DB: conn},
		Transport:       transport,
		TrackingBaseURL: envDefault("TRACKING_BASE_URL", "http://localhost:8080"),
		Clock:           time.Now,
		Logger:          logger,
	}

	q, err := queue.Dial(os.Getenv("AMQP_URL"), logger)
	if err != nil {
		logger.Fatal("queue connection failed", zap.Error(err))
	}
	defer q.Close()

	logger.Info("worker running, waiting for jobs")
	err = q.Consume(ctx, func(ctx context.Context, job model.FollowUpJob) error {
		_, err := dispatchService.Dispatch(ctx, job)
		if errors.Is(err, apperrors.ErrDispatchConflict) {
			// Already handled elsewhere; do not retry.
			return nil
		}
		return err
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("consumer stopped", zap.Error(err))
	}
}

func envDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
