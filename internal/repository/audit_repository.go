package repository

import (
	"context"

	"github.com/KaranSingh0790/Cupid-s-Arrow/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type AuditRepository interface {
	Save(ctx context.Context, event *models.AuditEvent) error
	ListByExperience(ctx context.Context, experienceID uuid.UUID) ([]models.AuditEvent, error)
}

type auditRepository struct {
	db *gorm.DB
}

func NewAuditRepository(db *gorm.DB) AuditRepository {
	return &auditRepository{db: db}
}

func (r *auditRepository) Save(ctx context.Context, event *models.AuditEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *auditRepository) ListByExperience(ctx context.Context, experienceID uuid.UUID) ([]models.AuditEvent, error) {
	var events []models.AuditEvent
	err := r.db.WithContext(ctx).
		Where("experience_id = ?", experienceID).
		Order("created_at ASC").
		Find(&events).Error
	return events, err
}
