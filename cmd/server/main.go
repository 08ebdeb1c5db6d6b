package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/vedanschi/pebble-outreach/internal/db"
	"github.com/vedanschi/pebble-outreach/internal/handler"
	"github.com/vedanschi/pebble-outreach/internal/llm"
	"github.com/vedanschi/pebble-outreach/internal/mail"
	"github.com/vedanschi/pebble-outreach/internal/model"
	"github.com/vedanschi/pebble-outreach/internal/queue"
	"github.com/vedanschi/pebble-outreach/internal/repository"
	"github.com/vedanschi/pebble-outreach/internal/service"
)

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
	if err := db.Migrate(conn); err != nil {
		logger.Fatal("migration failed", zap.Error(err))
	}

	campaignRepo := &repository.CampaignRepository{DB: conn}
	contactRepo := &repository.ContactRepository{DB: conn}
	conversationRepo := &repository.ConversationRepository{DB: conn}
	templateRepo := &repository.TemplateRepository{DB: conn}
	ruleRepo := &repository.FollowUpRuleRepository{DB: conn}
	sentRepo := &repository.SentEmailRepository{DB: conn}

	generator, err := llm.NewGeminiGenerator(ctx,
		os.Getenv("GEMINI_API_KEY"),
		os.Getenv("GEMINI_MODEL"),
		envDuration("GENERATION_TIMEOUT", 30*time.Second),
	)
	if err != nil {
		logger.Fatal("generator init failed", zap.Error(err))
	}

	transport := mail.NewSMTPTransport(mail.SMTPConfig{
		Host:     os.Getenv("SMTP_HOST"),
		Port:     envDefault("SMTP_PORT", "587"),
		Username: os.Getenv("SMTP_USER"),
		Password: os.Getenv("SMTP_PASSWORD"),
		Sender:   os.Getenv("SMTP_SENDER_EMAIL"),
		Timeout:  envDuration("SMTP_TIMEOUT", 10*time.Second),
	})

	campaignService := &service.CampaignService{
		CampaignRepo: campaignRepo,
		SentRepo:     sentRepo,
		Logger:       logger,
	}
	conversationService := &service.ConversationService{
		ConversationRepo: conversationRepo,
		TemplateRepo:     templateRepo,
		Generator:        generator,
		Logger:           logger,
	}
	followUpService := &service.FollowUpService{
		CampaignRepo: campaignRepo,
		ContactRepo:  contactRepo,
		RuleRepo:     ruleRepo,
		SentRepo:     sentRepo,
		MaxJobAge:    envDuration("MAX_JOB_AGE", 14*24*time.Hour),
		Logger:       logger,
	}
	dispatchService := &service.DispatchService{
		CampaignRepo:    campaignRepo,
		ContactRepo:     contactRepo,
		TemplateRepo:    templateRepo,
		RuleRepo:        ruleRepo,
		SentRepo:        sentRepo,
		Transport:       transport,
		TrackingBaseURL: envDefault("TRACKING_BASE_URL", "http://localhost:8080"),
		Clock:           time.Now,
		Logger:          logger,
	}

	// With AMQP configured the sweep publishes jobs for cmd/worker;
	// otherwise it dispatches inline.
	dispatch := func(ctx context.Context, job model.FollowUpJob) error {
		_, err := dispatchService.Dispatch(ctx, job)
		return err
	}
	if amqpURL := os.Getenv("AMQP_URL"); amqpURL != "" {
		q, err := queue.Dial(amqpURL, logger)
		if err != nil {
			logger.Fatal("queue connection failed", zap.Error(err))
		}
		defer q.Close()
		dispatch = q.Publish
	}

	sweeper := &service.Sweeper{
		Scheduler:   followUpService,
		Campaigns:   campaignService,
		Dispatch:    dispatch,
		Clock:       time.Now,
		Interval:    envDuration("SWEEP_INTERVAL", time.Minute),
		Concurrency: 4,
		Logger:      logger,
	}
	sweeper.Start(ctx)
	defer sweeper.Stop()

	campaignHandler := &handler.CampaignHandler{
		Campaigns:     campaignService,
		Conversations: conversationService,
		ContactRepo:   contactRepo,
		RuleRepo:      ruleRepo,
		TemplateRepo:  templateRepo,
		Logger:        logger,
	}
	trackingHandler := &handler.TrackingHandler{
		Dispatch: dispatchService,
		Logger:   logger,
	}

	r := chi.NewRouter()
	r.Post("/campaigns", campaignHandler.CreateCampaign)
	r.Get("/campaigns/{id}", campaignHandler.GetCampaign)
	r.Post("/campaigns/{id}/activate", campaignHandler.ActivateCampaign)
	r.Post("/campaigns/{id}/pause", campaignHandler.PauseCampaign)
	r.Post("/campaigns/{id}/send", campaignHandler.SendCampaign)
	r.Post("/campaigns/{id}/contacts", campaignHandler.AddContact)
	r.Post("/campaigns/{id}/rules", campaignHandler.AddFollowUpRule)
	r.Post("/campaigns/{id}/personalized-preview", campaignHandler.PersonalizedPreview)
	r.Post("/campaigns/{id}/conversations", campaignHandler.StartConversation)
	r.Post("/conversations/{conversationID}/messages", campaignHandler.ChatMessage)
	r.Post("/conversations/{conversationID}/finalize", campaignHandler.FinalizeConversation)
	r.Get("/track/open/{pixelID}.png", trackingHandler.ServeOpenPixel)

	srv := &http.Server{Addr: ":" + envDefault("PORT", "8080"), Handler: r}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info("server running", zap.String("addr", srv.Addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func envDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
