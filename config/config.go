package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr  string
	LogLevel  string
	LogFormat string

	StoreDriver string
	DBHost      string
	DBPort      string
	DBUser      string
	DBPassword  string
	DBName      string

	PollInterval   time.Duration
	ExpiryWindow   time.Duration
	FeedSource     string
	FeedTimeout    time.Duration
	FeedLookback   time.Duration
	StatementPath  string
	RazorpayKeyID  string
	RazorpaySecret string
	// RazorpayWebhookSecret enables the payment.captured webhook when set.
	RazorpayWebhookSecret string

	SMTPHost  string
	SMTPPort  int
	SMTPUser  string
	SMTPPass  string
	EmailFrom string

	// Kafka
	KafkaBrokers      string
	KafkaEmailTopic   string
	KafkaBookingTopic string
	KafkaDLQTopic     string
	KafkaGroupID      string

	InstructionsDir   string
	BankAccountName   string
	BankAccountNumber string
	BankRoutingNumber string
	MeetingBaseURL    string
	StudioName        string
}

var AppConfig Config

// LoadConfig reads the first .env file found and builds AppConfig from the environment.
func LoadConfig() Config {
	envLocations := []string{
		".env",
		"config/.env",
		"../config/.env",
		"../../config/.env",
	}

	envLoaded := false
	for _, location := range envLocations {
		if err := godotenv.Load(location); err == nil {
			envLoaded = true
			break
		}
	}

	if !envLoaded {
		log.Println("No .env file found, using environment variables")
	}

	AppConfig = FromEnv()
	return AppConfig
}

// FromEnv builds a Config from the current process environment only.
func FromEnv() Config {
	return Config{
		HTTPAddr:  getEnvWithDefault("HTTP_ADDR", ":8080"),
		LogLevel:  getEnvWithDefault("LOG_LEVEL", "info"),
		LogFormat: getEnvWithDefault("LOG_FORMAT", "text"),

		StoreDriver: getEnvWithDefault("STORE_DRIVER", "postgres"),
		DBHost:      getEnvWithDefault("DB_HOST", "localhost"),
		DBPort:      getEnvWithDefault("DB_PORT", "5432"),
		DBUser:      getEnvWithDefault("DB_USER", "postgres"),
		DBPassword:  os.Getenv("DB_PASSWORD"),
		DBName:      getEnvWithDefault("DB_NAME", "postgres"),

		PollInterval:   getDurationWithDefault("VERIFICATION_POLL_INTERVAL", 30*time.Second),
		ExpiryWindow:   getDurationWithDefault("VERIFICATION_EXPIRY", 24*time.Hour),
		FeedSource:     getEnvWithDefault("FEED_SOURCE", "razorpay"),
		FeedTimeout:    getDurationWithDefault("FEED_TIMEOUT", 20*time.Second),
		FeedLookback:   getDurationWithDefault("FEED_LOOKBACK", 48*time.Hour),
		StatementPath:  getEnvWithDefault("FEED_STATEMENT_PATH", "statements/bank.xlsx"),
		RazorpayKeyID:  os.Getenv("RazorpayKeyID"),
		RazorpaySecret: os.Getenv("RazorpayKeySecret"),

		RazorpayWebhookSecret: os.Getenv("RAZORPAY_WEBHOOK_SECRET"),

		SMTPHost:  getEnvWithDefault("SMTP_HOST", "smtp.gmail.com"),
		SMTPPort:  getIntWithDefault("SMTP_PORT", 587),
		SMTPUser:  os.Getenv("SMTP_USER"),
		SMTPPass:  os.Getenv("SMTP_PASS"),
		EmailFrom: os.Getenv("EMAIL_FROM"),

		// Kafka settings (comma-separated brokers)
		KafkaBrokers:      getEnvIfSet("KAFKA_BROKERS", "127.0.0.1:9092"),
		KafkaEmailTopic:   getEnvWithDefault("KAFKA_EMAIL_TOPIC", "emails"),
		KafkaBookingTopic: getEnvWithDefault("KAFKA_BOOKING_TOPIC", "bookings"),
		KafkaDLQTopic:     getEnvWithDefault("KAFKA_DLQ_TOPIC", "dlq"),
		KafkaGroupID:      getEnvWithDefault("KAFKA_GROUP_ID", "studio-booking-consumer-group"),

		InstructionsDir:   getEnvWithDefault("INSTRUCTIONS_DIR", "instructions"),
		BankAccountName:   os.Getenv("BANK_ACCOUNT_NAME"),
		BankAccountNumber: os.Getenv("BANK_ACCOUNT_NUMBER"),
		BankRoutingNumber: os.Getenv("BANK_ROUTING_NUMBER"),
		MeetingBaseURL:    getEnvWithDefault("MEETING_BASE_URL", "https://zoom.us/j/"),
		StudioName:        getEnvWithDefault("STUDIO_NAME", "Namaste Yoga Studio"),
	}
}

// Brokers splits KafkaBrokers and drops empty entries.
func (c Config) Brokers() []string {
	var brokers []string
	for _, b := range strings.Split(c.KafkaBrokers, ",") {
		if b := strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

// KafkaEnabled reports whether at least one broker is configured.
func (c Config) KafkaEnabled() bool {
	return len(c.Brokers()) > 0
}

func (c Config) DBConnString() string {
	return "host=" + c.DBHost +
		" port=" + c.DBPort +
		" user=" + c.DBUser +
		" password=" + c.DBPassword +
		" dbname=" + c.DBName +
		" sslmode=disable"
}

func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvIfSet differs from getEnvWithDefault in that an explicitly empty value is kept.
func getEnvIfSet(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return defaultValue
}

func getIntWithDefault(key string, defaultValue int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return defaultValue
}

func getDurationWithDefault(key string, defaultValue time.Duration) time.Duration {
	if v, err := time.ParseDuration(os.Getenv(key)); err == nil && v > 0 {
		return v
	}
	return defaultValue
}
