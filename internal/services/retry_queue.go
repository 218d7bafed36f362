package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/KaranSingh0790/Cupid-s-Arrow/internal/models"
	"github.com/google/uuid"
)

// RetryQueue is the backup path for deliveries that failed after a committed PAID transition.
type RetryQueue interface {
	EnqueueEmailRetry(ctx context.Context, experienceID uuid.UUID, reason string) error
}

type messageSender interface {
	SendMessage(ctx context.Context, body string, delaySeconds int32) error
}

// SQSRetryQueue enqueues EmailRetryMessage bodies with a short delay.
type SQSRetryQueue struct {
	queue messageSender
	delay time.Duration
}

func NewSQSRetryQueue(queue messageSender, delay time.Duration) *SQSRetryQueue {
	return &SQSRetryQueue{queue: queue, delay: delay}
}

func (q *SQSRetryQueue) EnqueueEmailRetry(ctx context.Context, experienceID uuid.UUID, reason string) error {
	body, err := json.Marshal(models.EmailRetryMessage{
		ExperienceID: experienceID.String(),
		Reason:       reason,
		QueuedAt:     time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to encode retry message: %w", err)
	}
	return q.queue.SendMessage(ctx, string(body), int32(q.delay/time.Second))
}

// NoopRetryQueue is used when no retry queue is configured; stalled experiences
// are then only picked up by the sweep or a manual resend.
type NoopRetryQueue struct{}

func (NoopRetryQueue) EnqueueEmailRetry(context.Context, uuid.UUID, string) error { return nil }
