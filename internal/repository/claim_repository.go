package repository

import (
	"context"
	"time"

	"github.com/KaranSingh0790/Cupid-s-Arrow/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ClaimRepository defines data-access operations for manual payment claims.
type ClaimRepository interface {
	Create(ctx context.Context, claim *models.ManualPaymentClaim) error
	FindByExperienceID(ctx context.Context, experienceID uuid.UUID) (*models.ManualPaymentClaim, error)
	FindByToken(ctx context.Context, token string) (*models.ManualPaymentClaim, error)
	// MarkReviewed consumes the claim's approval token. It reports false when
	// the claim was already reviewed.
	MarkReviewed(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	// ReissueToken replaces the approval nonce of an unreviewed claim and
	// clears its admin notification.
	ReissueToken(ctx context.Context, id uuid.UUID, nonce string, expiresAt time.Time) (bool, error)
	MarkAdminNotified(ctx context.Context, id uuid.UUID, at time.Time) error
}

type gormClaimRepo struct {
	db *gorm.DB
}

func NewGormClaimRepo(db *gorm.DB) ClaimRepository {
	return &gormClaimRepo{db: db}
}

func (r *gormClaimRepo) Create(ctx context.Context, claim *models.ManualPaymentClaim) error {
	return r.db.WithContext(ctx).Create(claim).Error
}

func (r *gormClaimRepo) FindByExperienceID(ctx context.Context, experienceID uuid.UUID) (*models.ManualPaymentClaim, error) {
	var c models.ManualPaymentClaim
	if err := r.db.WithContext(ctx).Where("experience_id = ?", experienceID).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *gormClaimRepo) FindByToken(ctx context.Context, token string) (*models.ManualPaymentClaim, error) {
	var c models.ManualPaymentClaim
	if err := r.db.WithContext(ctx).Where("approval_token = ?", token).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *gormClaimRepo) MarkReviewed(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.ManualPaymentClaim{}).
		Where("id = ? AND reviewed = ?", id, false).
		Updates(map[string]interface{}{
			"reviewed":    true,
			"reviewed_at": at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *gormClaimRepo) ReissueToken(ctx context.Context, id uuid.UUID, nonce string, expiresAt time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.ManualPaymentClaim{}).
		Where("id = ? AND reviewed = ?", id, false).
		Updates(map[string]interface{}{
			"approval_token":    nonce,
			"token_expires_at":  expiresAt,
			"admin_notified_at": gorm.Expr("NULL"),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *gormClaimRepo) MarkAdminNotified(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.ManualPaymentClaim{}).
		Where("id = ?", id).
		Update("admin_notified_at", at).Error
}
