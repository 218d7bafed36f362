package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/KaranSingh0790/Cupid-s-Arrow/internal/events"
	"github.com/KaranSingh0790/Cupid-s-Arrow/internal/models"
	"github.com/KaranSingh0790/Cupid-s-Arrow/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// AuditRecorder persists lifecycle events and mirrors them to the event bus.
// Recording never fails the caller.
type AuditRecorder interface {
	Record(ctx context.Context, experienceID uuid.UUID, eventType string, metadata map[string]interface{})
}

type auditRecorder struct {
	repo      repository.AuditRepository
	publisher events.Publisher
	logger    *zap.Logger
}

func NewAuditRecorder(repo repository.AuditRepository, publisher events.Publisher, logger *zap.Logger) AuditRecorder {
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	return &auditRecorder{repo: repo, publisher: publisher, logger: logger}
}

func (a *auditRecorder) Record(ctx context.Context, experienceID uuid.UUID, eventType string, metadata map[string]interface{}) {
	raw, err := json.Marshal(metadata)
	if err != nil {
		a.logger.Warn("failed to encode audit metadata", zap.String("event_type", eventType), zap.Error(err))
		raw = []byte("{}")
	}

	if err := a.repo.Save(ctx, &models.AuditEvent{
		ExperienceID: experienceID,
		EventType:    eventType,
		Metadata:     datatypes.JSON(raw),
	}); err != nil {
		a.logger.Warn("failed to persist audit event",
			zap.String("event_type", eventType),
			zap.String("experience_id", experienceID.String()),
			zap.Error(err),
		)
	}

	if err := a.publisher.Publish(ctx, models.LifecycleEvent{
		EventType:    eventType,
		ExperienceID: experienceID.String(),
		Metadata:     metadata,
		Timestamp:    time.Now().UTC(),
	}); err != nil {
		a.logger.Warn("failed to publish lifecycle event",
			zap.String("event_type", eventType),
			zap.String("experience_id", experienceID.String()),
			zap.Error(err),
		)
	}
}
