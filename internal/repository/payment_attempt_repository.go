package repository

import (
	"context"
	"time"

	"github.com/KaranSingh0790/Cupid-s-Arrow/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PaymentAttemptRepository defines data-access operations for payment attempts.
type PaymentAttemptRepository interface {
	Create(ctx context.Context, attempt *models.PaymentAttempt) error
	FindByReference(ctx context.Context, reference string) (*models.PaymentAttempt, error)
	FindPending(ctx context.Context, experienceID uuid.UUID, gateway models.Gateway) (*models.PaymentAttempt, error)
	// MarkCompleted flips a PENDING or FAILED attempt to COMPLETED. It reports
	// false when another caller already completed it.
	MarkCompleted(ctx context.Context, id uuid.UUID, gatewayPaymentID *string, at time.Time) (bool, error)
	MarkFailed(ctx context.Context, reference, errorCode, errorDescription string) (bool, error)
	MarkRefunded(ctx context.Context, gatewayPaymentID string) (*models.PaymentAttempt, error)
}

// GormPaymentAttemptRepository implements PaymentAttemptRepository using GORM.
type GormPaymentAttemptRepository struct {
	db *gorm.DB
}

// NewGormPaymentAttemptRepository creates a new GormPaymentAttemptRepository.
func NewGormPaymentAttemptRepository(db *gorm.DB) PaymentAttemptRepository {
	return &GormPaymentAttemptRepository{db: db}
}

func (r *GormPaymentAttemptRepository) Create(ctx context.Context, attempt *models.PaymentAttempt) error {
	return r.db.WithContext(ctx).Create(attempt).Error
}

func (r *GormPaymentAttemptRepository) FindByReference(ctx context.Context, reference string) (*models.PaymentAttempt, error) {
	var p models.PaymentAttempt
	if err := r.db.WithContext(ctx).
		Where("gateway_reference = ?", reference).
		First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *GormPaymentAttemptRepository) FindPending(ctx context.Context, experienceID uuid.UUID, gateway models.Gateway) (*models.PaymentAttempt, error) {
	var p models.PaymentAttempt
	if err := r.db.WithContext(ctx).
		Where("experience_id = ? AND gateway = ? AND status = ?", experienceID, gateway, models.PaymentStatusPending).
		Order("created_at DESC").
		First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *GormPaymentAttemptRepository) MarkCompleted(ctx context.Context, id uuid.UUID, gatewayPaymentID *string, at time.Time) (bool, error) {
	updates := map[string]interface{}{
		"status":      models.PaymentStatusCompleted,
		"verified_at": at,
	}
	if gatewayPaymentID != nil && *gatewayPaymentID != "" {
		updates["gateway_payment_id"] = *gatewayPaymentID
	}
	res := r.db.WithContext(ctx).
		Model(&models.PaymentAttempt{}).
		Where("id = ? AND status IN ?", id, []string{models.PaymentStatusPending, models.PaymentStatusFailed}).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *GormPaymentAttemptRepository) MarkFailed(ctx context.Context, reference, errorCode, errorDescription string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.PaymentAttempt{}).
		Where("gateway_reference = ? AND status = ?", reference, models.PaymentStatusPending).
		Updates(map[string]interface{}{
			"status":            models.PaymentStatusFailed,
			"error_code":        errorCode,
			"error_description": errorDescription,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// MarkRefunded flips the COMPLETED attempt carrying gatewayPaymentID to REFUNDED.
// It returns gorm.ErrRecordNotFound when no completed attempt matches.
func (r *GormPaymentAttemptRepository) MarkRefunded(ctx context.Context, gatewayPaymentID string) (*models.PaymentAttempt, error) {
	var p models.PaymentAttempt
	if err := r.db.WithContext(ctx).
		Where("gateway_payment_id = ? AND status = ?", gatewayPaymentID, models.PaymentStatusCompleted).
		First(&p).Error; err != nil {
		return nil, err
	}
	res := r.db.WithContext(ctx).
		Model(&models.PaymentAttempt{}).
		Where("id = ? AND status = ?", p.ID, models.PaymentStatusCompleted).
		Update("status", models.PaymentStatusRefunded)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, gorm.ErrRecordNotFound
	}
	p.Status = models.PaymentStatusRefunded
	return &p, nil
}
