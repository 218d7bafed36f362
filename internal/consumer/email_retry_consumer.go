package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/KaranSingh0790/Cupid-s-Arrow/internal/apperrors"
	"github.com/KaranSingh0790/Cupid-s-Arrow/internal/models"
	"github.com/KaranSingh0790/Cupid-s-Arrow/internal/services"
	aws_pkg "github.com/KaranSingh0790/Cupid-s-Arrow/pkg/aws"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// queue is implemented by *aws_pkg.SQSQueue.
type queue interface {
	Receive(ctx context.Context, maxMessages, waitSeconds int32) ([]aws_pkg.Message, error)
	Delete(ctx context.Context, receiptHandle string) error
}

// EmailRetryConsumer drains the email retry queue into the delivery trigger.
type EmailRetryConsumer struct {
	queue    queue
	delivery services.DeliveryTrigger
	metrics  aws_pkg.MetricsRecorder
	logger   *zap.Logger

	backoff time.Duration
}

func NewEmailRetryConsumer(q queue, delivery services.DeliveryTrigger, metrics aws_pkg.MetricsRecorder, logger *zap.Logger) *EmailRetryConsumer {
	return &EmailRetryConsumer{
		queue:    q,
		delivery: delivery,
		metrics:  metrics,
		logger:   logger,
		backoff:  5 * time.Second,
	}
}

// Start polls until ctx is cancelled.
func (c *EmailRetryConsumer) Start(ctx context.Context) {
	c.logger.Info("email retry consumer started")
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("email retry consumer shutting down")
			return
		default:
			c.poll(ctx)
		}
	}
}

func (c *EmailRetryConsumer) poll(ctx context.Context) {
	msgs, err := c.queue.Receive(ctx, 10, 20)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		c.logger.Error("SQS receive error", zap.Error(err))
		select {
		case <-ctx.Done():
		case <-time.After(c.backoff):
		}
		return
	}
	for _, msg := range msgs {
		c.processMessage(ctx, msg)
	}
}

func (c *EmailRetryConsumer) processMessage(ctx context.Context, msg aws_pkg.Message) {
	var retry models.EmailRetryMessage
	if err := json.Unmarshal([]byte(msg.Body), &retry); err != nil {
		c.logger.Error("failed to unmarshal email retry message", zap.Error(err))
		c.deleteMessage(ctx, msg.ReceiptHandle)
		return
	}
	experienceID, err := uuid.Parse(retry.ExperienceID)
	if err != nil {
		c.logger.Error("email retry message has invalid experience id", zap.String("experience_id", retry.ExperienceID))
		c.deleteMessage(ctx, msg.ReceiptHandle)
		return
	}

	log := c.logger.With(
		zap.String("experience_id", retry.ExperienceID),
		zap.String("receive_count", msg.ReceiveCount),
	)
	c.recordRetry()

	result, err := c.delivery.Deliver(ctx, experienceID)
	switch {
	case err == nil:
		log.Info("email retry delivered", zap.String("message_id", result.MessageID))
	case errors.Is(err, apperrors.ErrNotPayableState), errors.Is(err, apperrors.ErrNotFound):
		// Already SENT through another path, or gone.
		log.Info("email retry no longer applicable", zap.Error(err))
	default:
		log.Warn("email retry failed, leaving message for redelivery", zap.Error(err))
		return
	}
	c.deleteMessage(ctx, msg.ReceiptHandle)
}

func (c *EmailRetryConsumer) recordRetry() {
	if c.metrics == nil || !c.metrics.IsEnabled() {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = c.metrics.RecordCount(ctx, aws_pkg.MetricEmailRetries, nil)
	}()
}

func (c *EmailRetryConsumer) deleteMessage(ctx context.Context, receiptHandle string) {
	if err := c.queue.Delete(ctx, receiptHandle); err != nil {
		c.logger.Error("failed to delete SQS message", zap.Error(err))
	}
}
