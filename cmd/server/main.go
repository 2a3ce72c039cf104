package main

import (
	"context"
	stdErrors "errors"
	"fmt"
	"log"
	netHttp "net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"

	"studio-booking/config"
	"studio-booking/db"
	"studio-booking/http"
	"studio-booking/http/handlers"
	"studio-booking/logger"
	"studio-booking/services"
	"studio-booking/services/kafka"
)

func main() {
	// Determine project root by searching upward for go.mod
	cwd, err := os.Getwd()
	if err != nil {
		log.Fatal("Error getting current working directory:", err)
	}
	if root := findProjectRoot(cwd); root != "" {
		if err := os.Chdir(root); err != nil {
			log.Fatal("Error changing to project root:", err)
		}
	}

	// Load configuration
	cfg := config.LoadConfig()

	appLog := logger.New(logger.Config{
		Level: logger.ParseLevel(cfg.LogLevel),
		JSON:  cfg.LogFormat == "json",
	})
	logger.SetDefault(appLog)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Store
	var (
		store services.Store
		conn  *sqlx.DB
	)
	switch cfg.StoreDriver {
	case "memory":
		appLog.Warn("Using in-memory store, verifications are lost on restart")
		store = services.NewMemoryStore()
	default:
		conn, err = db.Open(ctx, cfg)
		if err != nil {
			logger.Fatal("Error initializing database: %v", err)
		}
		defer conn.Close()
		store = services.NewPostgresStore(conn)
	}

	// Kafka (non-fatal)
	var dlqStore *kafka.DeadLetterStore
	if conn != nil {
		dlqStore = kafka.NewDeadLetterStore(conn)
	}
	dlq := kafka.NewDLQ(cfg.Brokers(), cfg.KafkaDLQTopic, dlqStore, appLog)
	defer dlq.Close()

	producer := kafka.NewProducer(cfg.Brokers(), appLog).WithDeadLetters(dlq)
	defer producer.Close()

	if cfg.KafkaEnabled() {
		kafka.EnsureTopics(cfg.Brokers(), []string{cfg.KafkaEmailTopic, cfg.KafkaBookingTopic, cfg.KafkaDLQTopic}, appLog)
	}

	// Notifications and booking
	smtp, err := services.NewSMTPSender(cfg, appLog)
	if err != nil {
		logger.Fatal("Error configuring email: %v", err)
	}

	bank := services.BankDetails{
		AccountName:   cfg.BankAccountName,
		AccountNumber: cfg.BankAccountNumber,
		RoutingNumber: cfg.BankRoutingNumber,
	}
	pdf := services.NewInstructionsPDF(cfg.InstructionsDir, cfg.StudioName, bank)

	// Direct delivery is what the consumer runs; the ledger queues when Kafka is up.
	directNotifier := services.NewEmailNotifier(smtp, pdf, cfg.StudioName, bank, cfg.ExpiryWindow, appLog)
	bookingService := services.NewBookingService(services.NewMeetingProvisioner(cfg.MeetingBaseURL), directNotifier, appLog)

	notifier := directNotifier
	var booking services.BookingProcessor = bookingService
	if producer.Enabled() {
		notifier = services.NewEmailNotifier(services.NewQueuedMailer(producer, cfg.KafkaEmailTopic), pdf, cfg.StudioName, bank, cfg.ExpiryWindow, appLog)
		booking = services.NewQueuedBookingProcessor(producer, cfg.KafkaBookingTopic)
	}

	consumer := kafka.NewConsumer(cfg.Brokers(), cfg.KafkaGroupID, []string{cfg.KafkaEmailTopic, cfg.KafkaBookingTopic}, dlq, appLog)
	if consumer != nil {
		consumer.Register(services.EventEmailSend, services.EmailEventHandler(smtp))
		consumer.Register(services.EventBookingRequested, services.BookingEventHandler(bookingService))
		consumer.Start(ctx)
		defer func() {
			if err := consumer.Stop(); err != nil {
				logger.Error("Error closing Kafka consumer: %v", err)
			}
		}()
	}

	// Ledger and verifier
	ledger := services.NewLedger(store, notifier, booking,
		services.WithExpiry(cfg.ExpiryWindow),
		services.WithLedgerLogger(appLog),
	)

	feed, err := newFeed(cfg)
	if err != nil {
		logger.Fatal("Error configuring transaction feed: %v", err)
	}

	verifier := services.NewVerifier(ledger, feed,
		services.WithPollInterval(cfg.PollInterval),
		services.WithFetchTimeout(cfg.FeedTimeout),
		services.WithVerifierLogger(appLog),
	)
	verifier.Start(ctx)

	// Setup routes
	routes := http.Handlers{
		Verifications: handlers.NewVerificationHandler(ledger, verifier, appLog),
		Health: handlers.HealthChecks{
			Store:          store.Ping,
			VerifierActive: verifier.Running,
			LastPass:       verifier.LastRun,
		},
	}
	if producer.Enabled() {
		routes.Health.KafkaConnected = producer.IsConnected
	}
	if cfg.RazorpayWebhookSecret != "" {
		routes.Webhooks = handlers.NewWebhookHandler(ledger, cfg.RazorpayWebhookSecret, appLog)
	}
	if dlqStore != nil {
		routes.DLQ = handlers.NewDLQHandler(dlqStore, appLog)
	}
	e := http.NewRouter(routes, appLog)

	// Start server in a goroutine
	go func() {
		logger.Info("Server starting on %s", cfg.HTTPAddr)
		if err := e.Start(cfg.HTTPAddr); err != nil && !stdErrors.Is(err, netHttp.ErrServerClosed) {
			logger.Fatal("Server error: %v", err)
		}
	}()

	// Wait for shutdown signal
	<-ctx.Done()
	logger.Info("Shutdown signal received")

	verifier.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error shutting down HTTP server: %v", err)
	}

	logger.Info("Server shutdown complete")
}

func newFeed(cfg config.Config) (services.TransactionFeed, error) {
	switch cfg.FeedSource {
	case "razorpay":
		feed, err := services.NewRazorpayFeed(cfg.RazorpayKeyID, cfg.RazorpaySecret, cfg.FeedLookback)
		if err != nil {
			return nil, err
		}
		return feed, nil
	case "statement":
		return services.NewStatementFeed(cfg.StatementPath), nil
	case "static":
		logger.Warn("Using static transaction feed, no real payments will be matched")
		return services.NewStaticFeed(), nil
	default:
		return nil, fmt.Errorf("unknown FEED_SOURCE %q", cfg.FeedSource)
	}
}

// findProjectRoot walks up from start and returns the first directory containing go.mod
func findProjectRoot(start string) string {
	dir := start
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir || strings.HasSuffix(dir, ":\\") || parent == "" {
			break
		}
		dir = parent
	}
	return ""
}
