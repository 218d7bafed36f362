package config

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	aws_pkg "github.com/KaranSingh0790/Cupid-s-Arrow/pkg/aws"
	"github.com/joho/godotenv"
)

// Config holds all configuration for the lifecycle service.
type Config struct {
	Port             string
	AppEnv           string
	AppURL           string
	FunctionsBaseURL string
	AllowedOrigins   []string

	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresHost     string
	PostgresPort     string
	PostgresSSLMode  string
	PostgresTimeZone string

	RazorpayKeyID         string
	RazorpayKeySecret     string
	RazorpayWebhookSecret string
	StripeAPIKey          string
	StripeWebhookSecret   string

	EmailProvider string
	EmailFrom     string
	ResendAPIKey  string
	SMTPHost      string
	SMTPPort      string
	SMTPUser      string
	SMTPPass      string
	AdminEmail    string

	ApprovalTokenSecret string
	ApprovalTokenTTL    time.Duration

	EventsBackend        string
	LifecycleSNSTopicARN string
	KafkaBrokers         []string
	KafkaTopic           string

	EmailRetryQueueURL  string
	EmailRetryQueueName string
	ScreenshotBucket    string
	RedisURL            string
	StalledPaidSweep    time.Duration
}

// secretSource is the subset of the Secrets Manager client LoadConfig needs.
type secretSource interface {
	GetSecretMap(ctx context.Context, name string) (map[string]string, error)
}

// LoadConfig reads configuration from .env and environment variables, with an
// optional Secrets Manager override when AWS_USE_SECRETS=true.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := fromEnv()

	if os.Getenv("AWS_USE_SECRETS") == "true" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if awsCfg, err := aws_pkg.LoadAWSConfig(ctx); err == nil {
			applySecrets(ctx, cfg, aws_pkg.NewSecretsClient(awsCfg))
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func fromEnv() *Config {
	cfg := &Config{
		Port:             getEnv("PORT", "8080"),
		AppEnv:           getEnv("APP_ENV", "development"),
		AppURL:           strings.TrimSuffix(getEnv("APP_URL", "http://localhost:5173"), "/"),
		FunctionsBaseURL: strings.TrimSuffix(getEnv("FUNCTIONS_BASE_URL", "http://localhost:8080"), "/"),

		PostgresUser:     os.Getenv("POSTGRES_USER"),
		PostgresPassword: os.Getenv("POSTGRES_PASSWORD"),
		PostgresDB:       os.Getenv("POSTGRES_DB"),
		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
		PostgresTimeZone: getEnv("POSTGRES_TIMEZONE", "Asia/Kolkata"),

		RazorpayKeyID:         os.Getenv("RAZORPAY_KEY_ID"),
		RazorpayKeySecret:     os.Getenv("RAZORPAY_KEY_SECRET"),
		RazorpayWebhookSecret: os.Getenv("RAZORPAY_WEBHOOK_SECRET"),
		StripeAPIKey:          os.Getenv("STRIPE_API_KEY"),
		StripeWebhookSecret:   os.Getenv("STRIPE_WEBHOOK_SECRET"),

		EmailProvider: getEnv("EMAIL_PROVIDER", "resend"),
		EmailFrom:     getEnv("EMAIL_FROM", "Cupid's Arrow <noreply@cupidsarrow.app>"),
		ResendAPIKey:  os.Getenv("RESEND_API_KEY"),
		SMTPHost:      os.Getenv("SMTP_HOST"),
		SMTPPort:      getEnv("SMTP_PORT", "587"),
		SMTPUser:      os.Getenv("SMTP_USER"),
		SMTPPass:      os.Getenv("SMTP_PASS"),
		AdminEmail:    os.Getenv("ADMIN_EMAIL"),

		ApprovalTokenSecret: os.Getenv("APPROVAL_TOKEN_SECRET"),
		ApprovalTokenTTL:    getDuration("APPROVAL_TOKEN_TTL", 72*time.Hour),

		EventsBackend:        getEnv("EVENTS_BACKEND", "none"),
		LifecycleSNSTopicARN: os.Getenv("LIFECYCLE_SNS_TOPIC_ARN"),
		KafkaBrokers:         splitList(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:           getEnv("KAFKA_TOPIC", "experience-lifecycle"),

		EmailRetryQueueURL:  os.Getenv("EMAIL_RETRY_QUEUE_URL"),
		EmailRetryQueueName: os.Getenv("EMAIL_RETRY_QUEUE_NAME"),
		ScreenshotBucket:    os.Getenv("SCREENSHOT_BUCKET"),
		RedisURL:            os.Getenv("REDIS_URL"),
		StalledPaidSweep:    getDuration("STALLED_PAID_SWEEP_INTERVAL", 0),
	}
	cfg.AllowedOrigins = splitList(getEnv("ALLOWED_ORIGINS", cfg.AppURL))
	return cfg
}

// applySecrets overrides database credentials and payment keys with values from
// Secrets Manager. Lookup failures leave the env values in place.
func applySecrets(ctx context.Context, cfg *Config, sm secretSource) {
	if m, err := sm.GetSecretMap(ctx, "cupids-arrow/DB_CREDENTIALS"); err == nil {
		override(&cfg.PostgresUser, m, "POSTGRES_USER")
		override(&cfg.PostgresPassword, m, "POSTGRES_PASSWORD")
		override(&cfg.PostgresDB, m, "POSTGRES_DB")
		override(&cfg.PostgresHost, m, "POSTGRES_HOST")
		override(&cfg.PostgresPort, m, "POSTGRES_PORT")
	}
	if m, err := sm.GetSecretMap(ctx, "cupids-arrow/PAYMENT_KEYS"); err == nil {
		override(&cfg.RazorpayKeyID, m, "RAZORPAY_KEY_ID")
		override(&cfg.RazorpayKeySecret, m, "RAZORPAY_KEY_SECRET")
		override(&cfg.RazorpayWebhookSecret, m, "RAZORPAY_WEBHOOK_SECRET")
		override(&cfg.StripeAPIKey, m, "STRIPE_API_KEY")
		override(&cfg.StripeWebhookSecret, m, "STRIPE_WEBHOOK_SECRET")
		override(&cfg.ResendAPIKey, m, "RESEND_API_KEY")
		override(&cfg.ApprovalTokenSecret, m, "APPROVAL_TOKEN_SECRET")
	}
}

func override(dst *string, m map[string]string, key string) {
	if v, ok := m[key]; ok && v != "" {
		*dst = v
	}
}

// Validate checks the settings the service cannot start without.
func (c *Config) Validate() error {
	var missing []string
	for name, v := range map[string]string{
		"POSTGRES_USER":         c.PostgresUser,
		"POSTGRES_PASSWORD":     c.PostgresPassword,
		"POSTGRES_DB":           c.PostgresDB,
		"APPROVAL_TOKEN_SECRET": c.ApprovalTokenSecret,
	} {
		if v == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("missing required config: %s", strings.Join(missing, ", "))
	}

	switch c.EmailProvider {
	case "resend":
		if c.ResendAPIKey == "" {
			return fmt.Errorf("RESEND_API_KEY not set")
		}
	case "smtp":
		if c.SMTPHost == "" {
			return fmt.Errorf("SMTP_HOST not set")
		}
	default:
		return fmt.Errorf("unsupported EMAIL_PROVIDER %q", c.EmailProvider)
	}

	switch c.EventsBackend {
	case "none":
	case "sns":
		if c.LifecycleSNSTopicARN == "" {
			return fmt.Errorf("LIFECYCLE_SNS_TOPIC_ARN not set")
		}
	case "kafka":
		if len(c.KafkaBrokers) == 0 {
			return fmt.Errorf("KAFKA_BROKERS not set")
		}
	default:
		return fmt.Errorf("unsupported EVENTS_BACKEND %q", c.EventsBackend)
	}
	return nil
}

// DSN returns the postgres connection string.
func (c *Config) DSN() string {
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=%s",
		c.PostgresHost, c.PostgresUser, c.PostgresPassword, c.PostgresDB,
		c.PostgresPort, c.PostgresSSLMode, c.PostgresTimeZone,
	)
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return fallback
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
