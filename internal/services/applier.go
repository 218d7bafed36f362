package services

import (
	"context"
	"errors"
	"time"

	"github.com/KaranSingh0790/Cupid-s-Arrow/internal/apperrors"
	"github.com/KaranSingh0790/Cupid-s-Arrow/internal/models"
	"github.com/KaranSingh0790/Cupid-s-Arrow/internal/repository"
	aws_pkg "github.com/KaranSingh0790/Cupid-s-Arrow/pkg/aws"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// CompletionSignal is one "payment has completed" assertion from a verified source.
type CompletionSignal struct {
	Reference string
	// ExperienceID, when set, must match the attempt's experience.
	ExperienceID     uuid.UUID
	GatewayPaymentID string
	Source           models.TriggerSource
}

// CompletionResult reports what applying a signal changed.
type CompletionResult struct {
	ExperienceID     uuid.UUID
	AttemptID        uuid.UUID
	AlreadyCompleted bool
	Transitioned     bool
	EmailSent        bool
	EmailError       error
}

// TransitionApplier is the single chokepoint that moves an experience to PAID.
type TransitionApplier interface {
	ApplyPaymentCompleted(ctx context.Context, signal CompletionSignal) (*CompletionResult, error)
}

type completionDecision int

const (
	completionProceed completionDecision = iota
	completionAttemptSettled
	completionExperiencePaid
)

// decideCompletion is the idempotency check. A settled attempt (COMPLETED or
// REFUNDED) is a no-op; an experience already PAID or later keeps any second
// attempt from reaching COMPLETED.
func decideCompletion(attemptStatus string, state models.LifecycleState) completionDecision {
	switch attemptStatus {
	case models.PaymentStatusCompleted, models.PaymentStatusRefunded:
		return completionAttemptSettled
	}
	if state.AtLeast(models.StatePaid) {
		return completionExperiencePaid
	}
	return completionProceed
}

type transitionApplier struct {
	attempts    repository.PaymentAttemptRepository
	experiences repository.ExperienceRepository
	delivery    DeliveryTrigger
	retries     RetryQueue
	audit       AuditRecorder
	metrics     aws_pkg.MetricsRecorder
	logger      *zap.Logger
	now         func() time.Time
}

func NewTransitionApplier(
	attempts repository.PaymentAttemptRepository,
	experiences repository.ExperienceRepository,
	delivery DeliveryTrigger,
	retries RetryQueue,
	audit AuditRecorder,
	metrics aws_pkg.MetricsRecorder,
	logger *zap.Logger,
) TransitionApplier {
	if retries == nil {
		retries = NoopRetryQueue{}
	}
	return &transitionApplier{
		attempts:    attempts,
		experiences: experiences,
		delivery:    delivery,
		retries:     retries,
		audit:       audit,
		metrics:     metrics,
		logger:      logger,
		now:         time.Now,
	}
}

func (a *transitionApplier) ApplyPaymentCompleted(ctx context.Context, signal CompletionSignal) (*CompletionResult, error) {
	if signal.Reference == "" {
		return nil, apperrors.Validation("payment reference is required")
	}
	log := a.logger.With(
		zap.String("reference", signal.Reference),
		zap.String("source", string(signal.Source)),
	)

	attempt, err := a.attempts.FindByReference(ctx, signal.Reference)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.UnknownAttempt(signal.Reference)
		}
		return nil, apperrors.Internal("Failed to load payment attempt", err)
	}
	if signal.ExperienceID != uuid.Nil && signal.ExperienceID != attempt.ExperienceID {
		log.Warn("completion signal names a different experience",
			zap.String("signal_experience_id", signal.ExperienceID.String()),
			zap.String("attempt_experience_id", attempt.ExperienceID.String()),
		)
		return nil, apperrors.UnknownAttempt(signal.Reference)
	}

	result := &CompletionResult{ExperienceID: attempt.ExperienceID, AttemptID: attempt.ID}

	exp, err := a.experiences.FindByID(ctx, attempt.ExperienceID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("Experience not found")
		}
		return nil, apperrors.Internal("Failed to load experience", err)
	}

	switch decideCompletion(attempt.Status, exp.LifecycleState) {
	case completionAttemptSettled:
		log.Info("payment attempt already settled, ignoring signal", zap.String("status", attempt.Status))
		recordCount(a.metrics, aws_pkg.MetricDuplicateSignals, map[string]string{"Source": string(signal.Source)})
		result.AlreadyCompleted = true
		return result, nil
	case completionExperiencePaid:
		log.Warn("payment completed for an experience that is already paid",
			zap.String("experience_id", exp.ID.String()),
			zap.String("state", string(exp.LifecycleState)),
		)
		recordCount(a.metrics, aws_pkg.MetricDuplicateSignals, map[string]string{"Source": string(signal.Source)})
		result.AlreadyCompleted = true
		return result, nil
	}

	now := a.now()
	var paymentID *string
	if signal.GatewayPaymentID != "" {
		paymentID = &signal.GatewayPaymentID
	}
	won, err := a.attempts.MarkCompleted(ctx, attempt.ID, paymentID, now)
	if err != nil {
		return nil, apperrors.Internal("Failed to complete payment attempt", err)
	}
	if !won {
		log.Info("lost completion race for payment attempt")
		result.AlreadyCompleted = true
		return result, nil
	}

	paid, err := a.experiences.TransitionState(ctx, exp.ID, models.PrePaymentStates, models.StatePaid,
		map[string]interface{}{"paid_at": now},
	)
	if err != nil {
		return nil, apperrors.Internal("Failed to mark experience paid", err)
	}
	if !paid {
		log.Warn("experience already paid by another attempt", zap.String("experience_id", exp.ID.String()))
		return result, nil
	}
	result.Transitioned = true

	a.audit.Record(ctx, exp.ID, models.EventPaymentCompleted, map[string]interface{}{
		"source":     string(signal.Source),
		"attempt_id": attempt.ID.String(),
		"gateway":    string(attempt.Gateway),
		"amount":     attempt.Amount,
		"currency":   attempt.Currency,
	})
	recordCount(a.metrics, aws_pkg.MetricPaymentsCompleted, map[string]string{
		"Gateway": string(attempt.Gateway),
		"Source":  string(signal.Source),
	})
	log.Info("experience marked paid", zap.String("experience_id", exp.ID.String()))

	if _, err := a.delivery.Deliver(ctx, exp.ID); err != nil {
		result.EmailError = err
		log.Warn("delivery failed after payment, queueing retry",
			zap.String("experience_id", exp.ID.String()),
			zap.Error(err),
		)
		if qerr := a.retries.EnqueueEmailRetry(context.WithoutCancel(ctx), exp.ID, err.Error()); qerr != nil {
			log.Error("failed to enqueue email retry", zap.String("experience_id", exp.ID.String()), zap.Error(qerr))
		}
		return result, nil
	}
	result.EmailSent = true
	return result, nil
}
