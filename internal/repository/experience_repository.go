package repository

import (
	"context"
	"time"

	"github.com/KaranSingh0790/Cupid-s-Arrow/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ExperienceRepository defines data-access operations for experiences.
type ExperienceRepository interface {
	Create(ctx context.Context, experience *models.Experience) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Experience, error)
	// TransitionState moves the experience to `to` only while its current state
	// is one of `from`. It reports whether this call performed the transition.
	TransitionState(ctx context.Context, id uuid.UUID, from []models.LifecycleState, to models.LifecycleState, fields map[string]interface{}) (bool, error)
	// ClaimDelivery takes the right to email a PAID experience. It fails while
	// another claim newer than staleBefore is held.
	ClaimDelivery(ctx context.Context, id uuid.UUID, at, staleBefore time.Time) (bool, error)
	// ReleaseDelivery drops the claim on an experience still in PAID.
	ReleaseDelivery(ctx context.Context, id uuid.UUID) error
	SetReply(ctx context.Context, id uuid.UUID, message string, at time.Time) (bool, error)
	ListByState(ctx context.Context, state models.LifecycleState, olderThan time.Time, limit int) ([]models.Experience, error)
}

// GormExperienceRepository implements ExperienceRepository using GORM.
type GormExperienceRepository struct {
	db *gorm.DB
}

// NewGormExperienceRepository creates a new GormExperienceRepository.
func NewGormExperienceRepository(db *gorm.DB) ExperienceRepository {
	return &GormExperienceRepository{db: db}
}

func (r *GormExperienceRepository) Create(ctx context.Context, experience *models.Experience) error {
	return r.db.WithContext(ctx).Create(experience).Error
}

func (r *GormExperienceRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.Experience, error) {
	var e models.Experience
	if err := r.db.WithContext(ctx).First(&e, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *GormExperienceRepository) TransitionState(
	ctx context.Context,
	id uuid.UUID,
	from []models.LifecycleState,
	to models.LifecycleState,
	fields map[string]interface{},
) (bool, error) {
	updates := make(map[string]interface{}, len(fields)+1)
	for k, v := range fields {
		updates[k] = v
	}
	updates["lifecycle_state"] = to

	res := r.db.WithContext(ctx).
		Model(&models.Experience{}).
		Where("id = ? AND lifecycle_state IN ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *GormExperienceRepository) ClaimDelivery(ctx context.Context, id uuid.UUID, at, staleBefore time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Experience{}).
		Where("id = ? AND lifecycle_state = ? AND (delivery_claimed_at IS NULL OR delivery_claimed_at < ?)",
			id, models.StatePaid, staleBefore).
		Update("delivery_claimed_at", at)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *GormExperienceRepository) ReleaseDelivery(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.Experience{}).
		Where("id = ? AND lifecycle_state = ?", id, models.StatePaid).
		Update("delivery_claimed_at", gorm.Expr("NULL")).Error
}

func (r *GormExperienceRepository) SetReply(ctx context.Context, id uuid.UUID, message string, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Experience{}).
		Where("id = ? AND reply_message IS NULL", id).
		Updates(map[string]interface{}{
			"reply_message": message,
			"replied_at":    at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ListByState returns experiences stuck in state since before olderThan, oldest first.
func (r *GormExperienceRepository) ListByState(ctx context.Context, state models.LifecycleState, olderThan time.Time, limit int) ([]models.Experience, error) {
	if limit < 1 || limit > 100 {
		limit = 100
	}
	var out []models.Experience
	err := r.db.WithContext(ctx).
		Where("lifecycle_state = ? AND updated_at < ?", state, olderThan).
		Order("updated_at ASC").
		Limit(limit).
		Find(&out).Error
	return out, err
}
