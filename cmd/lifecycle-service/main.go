package main

import (
	"context"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/KaranSingh0790/Cupid-s-Arrow/internal/config"
	"github.com/KaranSingh0790/Cupid-s-Arrow/internal/consumer"
	"github.com/KaranSingh0790/Cupid-s-Arrow/internal/controllers"
	"github.com/KaranSingh0790/Cupid-s-Arrow/internal/database"
	"github.com/KaranSingh0790/Cupid-s-Arrow/internal/events"
	"github.com/KaranSingh0790/Cupid-s-Arrow/internal/logger"
	"github.com/KaranSingh0790/Cupid-s-Arrow/internal/middleware"
	"github.com/KaranSingh0790/Cupid-s-Arrow/internal/providers"
	"github.com/KaranSingh0790/Cupid-s-Arrow/internal/repository"
	"github.com/KaranSingh0790/Cupid-s-Arrow/internal/routes"
	"github.com/KaranSingh0790/Cupid-s-Arrow/internal/sender"
	"github.com/KaranSingh0790/Cupid-s-Arrow/internal/services"
	"github.com/KaranSingh0790/Cupid-s-Arrow/internal/verifier"
	aws_pkg "github.com/KaranSingh0790/Cupid-s-Arrow/pkg/aws"
	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const serviceName = "lifecycle-service"

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// AWS clients
	awsCfg, awsErr := aws_pkg.LoadAWSConfig(context.Background())

	var cwWriter io.Writer
	if awsErr == nil {
		if cw, err := aws_pkg.NewCloudWatchLogsClient(context.Background(), awsCfg, serviceName); err == nil && cw.IsEnabled() {
			cwWriter = cw
		}
	}

	zapLogger, err := logger.New(cfg.AppEnv, cwWriter)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer zapLogger.Sync() //nolint:errcheck

	if awsErr != nil {
		zapLogger.Warn("AWS config unavailable, SNS/SQS/S3/CloudWatch disabled", zap.Error(awsErr))
	}

	if err := database.Connect(zapLogger, cfg.DSN()); err != nil {
		zapLogger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer database.Close() //nolint:errcheck

	var metrics aws_pkg.MetricsRecorder
	if awsErr == nil {
		metrics = aws_pkg.NewMetricsClient(awsCfg)
	}

	emailSender, err := newEmailSender(cfg)
	if err != nil {
		zapLogger.Fatal("Failed to init email sender", zap.Error(err))
	}
	renderer, err := sender.NewRenderer()
	if err != nil {
		zapLogger.Fatal("Failed to load email templates", zap.Error(err))
	}

	publisher := newPublisher(cfg, awsCfg, awsErr, zapLogger)
	defer publisher.Close() //nolint:errcheck

	var ledger events.EventLedger = events.NoopLedger{}
	if cfg.RedisURL != "" {
		redisClient, err := events.NewRedisClient(context.Background(), cfg.RedisURL)
		if err != nil {
			zapLogger.Warn("Redis unavailable, webhook event de-duplication disabled", zap.Error(err))
		} else {
			defer redisClient.Close() //nolint:errcheck
			ledger = events.NewRedisEventLedger(redisClient, 72*time.Hour)
		}
	}

	var retryQueue services.RetryQueue = services.NoopRetryQueue{}
	var sqsQueue *aws_pkg.SQSQueue
	queueURL := cfg.EmailRetryQueueURL
	if queueURL == "" && cfg.EmailRetryQueueName != "" && awsErr == nil {
		if queueURL, err = aws_pkg.GetQueueURL(context.Background(), awsCfg, cfg.EmailRetryQueueName); err != nil {
			zapLogger.Warn("Email retry queue not found, retries disabled", zap.String("queue", cfg.EmailRetryQueueName), zap.Error(err))
		}
	}
	if queueURL != "" && awsErr == nil {
		sqsQueue = aws_pkg.NewSQSQueue(awsCfg, queueURL)
		retryQueue = services.NewSQSRetryQueue(sqsQueue, 60*time.Second)
	}

	var presigner *aws_pkg.Presigner
	if cfg.ScreenshotBucket != "" && awsErr == nil {
		presigner = aws_pkg.NewPresigner(awsCfg, cfg.ScreenshotBucket)
	}

	// Repositories
	experienceRepo := repository.NewGormExperienceRepository(database.DB)
	attemptRepo := repository.NewGormPaymentAttemptRepository(database.DB)
	claimRepo := repository.NewGormClaimRepo(database.DB)
	auditRepo := repository.NewAuditRepository(database.DB)

	// Services
	audit := services.NewAuditRecorder(auditRepo, publisher, zapLogger)
	delivery := services.NewDeliveryTrigger(experienceRepo, emailSender, renderer, audit, metrics, cfg.AppURL, zapLogger)
	applier := services.NewTransitionApplier(attemptRepo, experienceRepo, delivery, retryQueue, audit, metrics, zapLogger)

	var gateways []providers.PaymentGateway
	if cfg.RazorpayKeyID != "" && cfg.RazorpayKeySecret != "" {
		gateways = append(gateways, providers.NewRazorpayGateway(cfg.RazorpayKeyID, cfg.RazorpayKeySecret))
	}
	if cfg.StripeAPIKey != "" {
		gateways = append(gateways, providers.NewStripeGateway(cfg.StripeAPIKey, cfg.AppURL))
	}

	experienceService := services.NewExperienceService(experienceRepo, emailSender, renderer, audit, metrics, zapLogger)
	paymentService := services.NewPaymentService(
		experienceRepo,
		attemptRepo,
		gateways,
		verifier.NewRazorpayCheckoutVerifier(cfg.RazorpayKeySecret),
		applier,
		audit,
		metrics,
		zapLogger,
	)
	webhookService := services.NewWebhookService(
		verifier.NewRazorpayWebhookVerifier(cfg.RazorpayWebhookSecret),
		verifier.NewStripeWebhookVerifier(cfg.StripeWebhookSecret, 0),
		ledger,
		applier,
		attemptRepo,
		audit,
		metrics,
		zapLogger,
	)
	manualService := services.NewManualPaymentService(
		experienceRepo,
		attemptRepo,
		claimRepo,
		verifier.NewApprovalTokenIssuer(cfg.ApprovalTokenSecret, cfg.ApprovalTokenTTL),
		applier,
		emailSender,
		renderer,
		optionalPresigner(presigner),
		audit,
		services.ManualPaymentConfig{AdminEmail: cfg.AdminEmail, FunctionsBaseURL: cfg.FunctionsBaseURL},
		zapLogger,
	)

	// Background workers
	workerCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()

	if sqsQueue != nil {
		retryConsumer := consumer.NewEmailRetryConsumer(sqsQueue, delivery, metrics, zapLogger)
		go retryConsumer.Start(workerCtx)
	}
	if cfg.StalledPaidSweep > 0 {
		go sweepStalled(workerCtx, delivery, cfg.StalledPaidSweep, zapLogger)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.RequestID())
	r.Use(middleware.RequestLogger(zapLogger))
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORSMiddleware(cfg.AllowedOrigins))
	r.Use(middleware.RateLimitMiddleware())
	r.Use(middleware.Metrics(metrics, serviceName))
	r.Use(middleware.Timeout(30 * time.Second))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": serviceName})
	})

	routes.RegisterRoutes(r, routes.Controllers{
		Experiences: controllers.NewExperienceController(experienceService, delivery, zapLogger),
		Payments:    controllers.NewPaymentController(paymentService, manualService, zapLogger),
		Webhooks:    controllers.NewWebhookController(webhookService, zapLogger),
		Admin:       controllers.NewAdminController(manualService, zapLogger),
	})

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLogger.Fatal("Server failed", zap.Error(err))
		}
	}()

	zapLogger.Info("Lifecycle service started",
		zap.String("port", cfg.Port),
		zap.Int("gateways", len(gateways)),
		zap.String("events_backend", cfg.EventsBackend),
	)
	<-quit
	zapLogger.Info("Shutting down lifecycle service...")

	stopWorkers()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		zapLogger.Error("Server forced to shutdown", zap.Error(err))
	}
	zapLogger.Info("Server exited cleanly")
}

func newEmailSender(cfg *config.Config) (sender.EmailSender, error) {
	if cfg.EmailProvider == "smtp" {
		return sender.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.EmailFrom)
	}
	return sender.NewResendSender(cfg.ResendAPIKey, cfg.EmailFrom)
}

func newPublisher(cfg *config.Config, awsCfg sdkaws.Config, awsErr error, l *zap.Logger) events.Publisher {
	switch cfg.EventsBackend {
	case "sns":
		if awsErr != nil {
			l.Warn("SNS events backend selected but AWS is unavailable, lifecycle events disabled")
			return events.NoopPublisher{}
		}
		return events.NewSNSPublisher(aws_pkg.NewSNSClient(awsCfg), cfg.LifecycleSNSTopicARN)
	case "kafka":
		return events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
	default:
		return events.NoopPublisher{}
	}
}

// optionalPresigner keeps a nil *Presigner from becoming a non-nil interface.
func optionalPresigner(p *aws_pkg.Presigner) interface {
	PresignPut(ctx context.Context, key, contentType string, expiry time.Duration) (string, map[string]string, error)
} {
	if p == nil {
		return nil
	}
	return p
}

// sweepStalled re-runs delivery for experiences left in PAID.
func sweepStalled(ctx context.Context, delivery services.DeliveryTrigger, interval time.Duration, l *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := delivery.RetryStalled(ctx, time.Now().Add(-interval), 50)
			if err != nil {
				l.Error("stalled delivery sweep failed", zap.Error(err))
				continue
			}
			if n > 0 {
				l.Info("stalled deliveries retried", zap.Int("count", n))
			}
		}
	}
}
