package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/KaranSingh0790/Cupid-s-Arrow/internal/apperrors"
	"github.com/KaranSingh0790/Cupid-s-Arrow/internal/models"
	"github.com/KaranSingh0790/Cupid-s-Arrow/internal/repository"
	"github.com/KaranSingh0790/Cupid-s-Arrow/internal/sender"
	aws_pkg "github.com/KaranSingh0790/Cupid-s-Arrow/pkg/aws"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DeliveryTrigger emails the recipient of a PAID experience and moves it to SENT.
type DeliveryTrigger interface {
	Deliver(ctx context.Context, experienceID uuid.UUID) (*models.DeliveryResult, error)
	// RetryStalled re-runs delivery for experiences left in PAID since before olderThan.
	RetryStalled(ctx context.Context, olderThan time.Time, limit int) (int, error)
}

// experienceEmailRenderer is implemented by *sender.Renderer.
type experienceEmailRenderer interface {
	ExperienceEmail(e *models.Experience, experienceURL string) (sender.Email, error)
}

type deliveryTrigger struct {
	experiences repository.ExperienceRepository
	emailSender sender.EmailSender
	renderer    experienceEmailRenderer
	audit       AuditRecorder
	metrics     aws_pkg.MetricsRecorder
	appURL      string
	logger      *zap.Logger

	maxAttempts int
	claimTTL    time.Duration
	sleep       func(time.Duration)
	now         func() time.Time
}

// defaultClaimTTL bounds how long a crashed sender can hold an experience's delivery claim.
const defaultClaimTTL = 10 * time.Minute

func NewDeliveryTrigger(
	experiences repository.ExperienceRepository,
	emailSender sender.EmailSender,
	renderer experienceEmailRenderer,
	audit AuditRecorder,
	metrics aws_pkg.MetricsRecorder,
	appURL string,
	logger *zap.Logger,
) DeliveryTrigger {
	return &deliveryTrigger{
		experiences: experiences,
		emailSender: emailSender,
		renderer:    renderer,
		audit:       audit,
		metrics:     metrics,
		appURL:      appURL,
		logger:      logger,
		maxAttempts: 3,
		claimTTL:    defaultClaimTTL,
		sleep:       time.Sleep,
		now:         time.Now,
	}
}

func (d *deliveryTrigger) Deliver(ctx context.Context, experienceID uuid.UUID) (*models.DeliveryResult, error) {
	exp, err := d.experiences.FindByID(ctx, experienceID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("Experience not found")
		}
		return nil, apperrors.Internal("Failed to load experience", err)
	}
	if exp.LifecycleState != models.StatePaid {
		return nil, apperrors.NotPayableState(fmt.Sprintf("Experience is not in PAID state (current: %s)", exp.LifecycleState))
	}

	msg, err := d.renderer.ExperienceEmail(exp, d.appURL+"/v/"+exp.ID.String())
	if err != nil {
		return nil, apperrors.Internal("Failed to render email", err)
	}

	// Only the claim holder sends; everyone else backs off.
	claimedAt := d.now()
	claimed, err := d.experiences.ClaimDelivery(ctx, exp.ID, claimedAt, claimedAt.Add(-d.claimTTL))
	if err != nil {
		return nil, apperrors.Internal("Failed to claim email delivery", err)
	}
	if !claimed {
		d.logger.Info("email delivery already claimed",
			zap.String("experience_id", exp.ID.String()),
		)
		return nil, apperrors.NotPayableState("Email delivery is already in progress or complete")
	}

	result, err := d.sendWithRetry(ctx, msg, exp.ID)
	if err != nil {
		if relErr := d.experiences.ReleaseDelivery(context.WithoutCancel(ctx), exp.ID); relErr != nil {
			d.logger.Error("failed to release delivery claim",
				zap.String("experience_id", exp.ID.String()),
				zap.Error(relErr),
			)
		}
		d.audit.Record(ctx, exp.ID, models.EventEmailFailed, map[string]interface{}{"error": err.Error()})
		recordCount(d.metrics, aws_pkg.MetricEmailsFailed, map[string]string{"ExperienceType": string(exp.ExperienceType)})
		return nil, apperrors.EmailDelivery("Failed to send email", err)
	}

	sentAt := d.now()
	moved, err := d.experiences.TransitionState(ctx, exp.ID,
		[]models.LifecycleState{models.StatePaid}, models.StateSent,
		map[string]interface{}{"sent_at": sentAt},
	)
	if err != nil {
		// Email already sent: log only, never retry.
		d.logger.Error("email sent but SENT transition failed",
			zap.String("experience_id", exp.ID.String()),
			zap.String("message_id", result.MessageID),
			zap.Error(err),
		)
	} else if !moved {
		d.logger.Warn("experience left PAID before SENT transition",
			zap.String("experience_id", exp.ID.String()),
		)
	}

	d.audit.Record(ctx, exp.ID, models.EventEmailSent, map[string]interface{}{"email_id": result.MessageID})
	recordCount(d.metrics, aws_pkg.MetricEmailsSent, map[string]string{"ExperienceType": string(exp.ExperienceType)})
	d.logger.Info("experience email sent",
		zap.String("experience_id", exp.ID.String()),
		zap.String("message_id", result.MessageID),
	)

	return &models.DeliveryResult{
		ExperienceID: exp.ID.String(),
		MessageID:    result.MessageID,
		SentAt:       sentAt,
	}, nil
}

func (d *deliveryTrigger) sendWithRetry(ctx context.Context, msg sender.Email, experienceID uuid.UUID) (sender.SendResult, error) {
	var lastErr error
	for attempt := 0; attempt < d.maxAttempts; attempt++ {
		if attempt > 0 {
			if ctx.Err() != nil {
				break
			}
			d.sleep(time.Duration(attempt) * time.Second)
		}

		result, err := d.emailSender.SendEmail(ctx, msg)
		if err == nil {
			return result, nil
		}
		lastErr = err

		d.logger.Warn("send attempt failed",
			zap.String("experience_id", experienceID.String()),
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)
	}
	if lastErr == nil {
		lastErr = ctx.Err()
	}
	return sender.SendResult{}, lastErr
}

func (d *deliveryTrigger) RetryStalled(ctx context.Context, olderThan time.Time, limit int) (int, error) {
	stalled, err := d.experiences.ListByState(ctx, models.StatePaid, olderThan, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to list stalled experiences: %w", err)
	}

	delivered := 0
	for i := range stalled {
		if _, err := d.Deliver(ctx, stalled[i].ID); err != nil {
			d.logger.Warn("stalled delivery retry failed",
				zap.String("experience_id", stalled[i].ID.String()),
				zap.Error(err),
			)
			continue
		}
		delivered++
	}
	return delivered, nil
}
