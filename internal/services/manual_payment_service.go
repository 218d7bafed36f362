package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/KaranSingh0790/Cupid-s-Arrow/internal/apperrors"
	"github.com/KaranSingh0790/Cupid-s-Arrow/internal/models"
	"github.com/KaranSingh0790/Cupid-s-Arrow/internal/repository"
	"github.com/KaranSingh0790/Cupid-s-Arrow/internal/sender"
	"github.com/KaranSingh0790/Cupid-s-Arrow/internal/verifier"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const minTransactionIDLength = 6

var screenshotTypes = map[string]string{
	"image/jpeg": "jpg",
	"image/png":  "png",
	"image/webp": "webp",
	"image/heic": "heic",
}

type ManualPaymentService interface {
	SubmitClaim(ctx context.Context, req models.ManualPaymentRequest) (*models.ManualPaymentResult, error)
	CreateUploadURL(ctx context.Context, req models.UploadURLRequest) (*models.UploadURL, error)
	// Approve redeems an admin approval token and applies the payment.
	Approve(ctx context.Context, token string) (*models.AdminVerifyResult, error)
}

// approvalTokens is implemented by *verifier.ApprovalTokenIssuer.
type approvalTokens interface {
	Issue(claimID uuid.UUID) (verifier.ApprovalToken, error)
	Parse(token string) (*verifier.ApprovalClaims, error)
}

// adminEmailRenderer is implemented by *sender.Renderer.
type adminEmailRenderer interface {
	AdminClaimEmail(to string, data sender.AdminClaimEmailData) (sender.Email, error)
}

// uploadPresigner is implemented by *aws_pkg.Presigner.
type uploadPresigner interface {
	PresignPut(ctx context.Context, key, contentType string, expiry time.Duration) (string, map[string]string, error)
}

// ManualPaymentConfig holds the deployment settings of the manual rail.
type ManualPaymentConfig struct {
	AdminEmail       string
	FunctionsBaseURL string
	UploadURLExpiry  time.Duration
}

type manualPaymentService struct {
	experiences repository.ExperienceRepository
	attempts    repository.PaymentAttemptRepository
	claims      repository.ClaimRepository
	tokens      approvalTokens
	applier     TransitionApplier
	emailSender sender.EmailSender
	renderer    adminEmailRenderer
	presigner   uploadPresigner
	audit       AuditRecorder
	cfg         ManualPaymentConfig
	logger      *zap.Logger
	now         func() time.Time
}

func NewManualPaymentService(
	experiences repository.ExperienceRepository,
	attempts repository.PaymentAttemptRepository,
	claims repository.ClaimRepository,
	tokens approvalTokens,
	applier TransitionApplier,
	emailSender sender.EmailSender,
	renderer adminEmailRenderer,
	presigner uploadPresigner,
	audit AuditRecorder,
	cfg ManualPaymentConfig,
	logger *zap.Logger,
) ManualPaymentService {
	if cfg.UploadURLExpiry <= 0 {
		cfg.UploadURLExpiry = 15 * time.Minute
	}
	return &manualPaymentService{
		experiences: experiences,
		attempts:    attempts,
		claims:      claims,
		tokens:      tokens,
		applier:     applier,
		emailSender: emailSender,
		renderer:    renderer,
		presigner:   presigner,
		audit:       audit,
		cfg:         cfg,
		logger:      logger,
		now:         time.Now,
	}
}

func validateManualPayment(req *models.ManualPaymentRequest) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(req.ExperienceID))
	if err != nil {
		return uuid.Nil, apperrors.Validation("experience_id is required")
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.PaymentMethod = strings.ToLower(strings.TrimSpace(req.PaymentMethod))
	req.TransactionID = strings.TrimSpace(req.TransactionID)
	req.ScreenshotKey = strings.TrimSpace(req.ScreenshotKey)

	switch {
	case req.Name == "":
		return uuid.Nil, apperrors.Validation("name is required")
	case !emailPattern.MatchString(req.Email):
		return uuid.Nil, apperrors.Validation("A valid email is required")
	case req.PaymentMethod != models.ManualMethodUPI && req.PaymentMethod != models.ManualMethodPayPal:
		return uuid.Nil, apperrors.Validation("payment_method must be upi or paypal")
	case len(req.TransactionID) < minTransactionIDLength:
		return uuid.Nil, apperrors.Validation(fmt.Sprintf("transaction_id must be at least %d characters", minTransactionIDLength))
	}
	return id, nil
}

func (s *manualPaymentService) SubmitClaim(ctx context.Context, req models.ManualPaymentRequest) (*models.ManualPaymentResult, error) {
	experienceID, err := validateManualPayment(&req)
	if err != nil {
		return nil, err
	}

	exp, err := s.experiences.FindByID(ctx, experienceID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("Experience not found")
		}
		return nil, apperrors.Internal("Failed to load experience", err)
	}
	if exp.LifecycleState.AtLeast(models.StatePaid) {
		return nil, apperrors.AlreadyPaid("Experience already paid")
	}

	if existing, err := s.claims.FindByExperienceID(ctx, exp.ID); err == nil {
		return s.resumeClaim(ctx, exp, existing)
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.Internal("Failed to look up payment claim", err)
	}

	claimID := uuid.New()
	token, err := s.tokens.Issue(claimID)
	if err != nil {
		return nil, apperrors.Internal("Failed to issue approval token", err)
	}

	claim := &models.ManualPaymentClaim{
		ID:             claimID,
		ExperienceID:   exp.ID,
		PayerName:      req.Name,
		PayerEmail:     req.Email,
		PaymentMethod:  req.PaymentMethod,
		TransactionID:  req.TransactionID,
		Amount:         exp.AmountDue,
		Currency:       exp.Currency,
		ApprovalToken:  token.Nonce,
		TokenExpiresAt: token.ExpiresAt,
	}
	if req.ScreenshotKey != "" {
		claim.ScreenshotKey = &req.ScreenshotKey
	}
	if err := s.claims.Create(ctx, claim); err != nil {
		// experience_id is unique; a concurrent submission may have won.
		if existing, ferr := s.claims.FindByExperienceID(ctx, exp.ID); ferr == nil {
			return &models.ManualPaymentResult{ClaimID: existing.ID.String(), AlreadySubmitted: true}, nil
		}
		return nil, apperrors.Internal("Failed to save payment claim", err)
	}

	if err := s.ensureAttempt(ctx, exp, claimID); err != nil {
		return nil, err
	}
	s.moveToPreview(ctx, exp.ID)

	notified := s.notifyAdmin(ctx, exp, claim, token)

	s.audit.Record(ctx, exp.ID, models.EventManualPaymentSubmitted, map[string]interface{}{
		"claim_id":       claimID.String(),
		"payment_method": req.PaymentMethod,
		"transaction_id": req.TransactionID,
		"admin_notified": notified,
	})

	return &models.ManualPaymentResult{ClaimID: claimID.String(), AdminNotified: notified}, nil
}

// resumeClaim finishes a claim left half-done by an earlier submission: it
// records the missing attempt and, when the admin never got a usable link,
// issues a fresh token and emails it again.
func (s *manualPaymentService) resumeClaim(ctx context.Context, exp *models.Experience, claim *models.ManualPaymentClaim) (*models.ManualPaymentResult, error) {
	result := &models.ManualPaymentResult{ClaimID: claim.ID.String(), AlreadySubmitted: true}
	if claim.Reviewed {
		return result, nil
	}

	if err := s.ensureAttempt(ctx, exp, claim.ID); err != nil {
		return nil, err
	}
	s.moveToPreview(ctx, exp.ID)

	if claim.AdminNotifiedAt != nil && s.now().Before(claim.TokenExpiresAt) {
		return result, nil
	}

	token, err := s.tokens.Issue(claim.ID)
	if err != nil {
		return nil, apperrors.Internal("Failed to issue approval token", err)
	}
	reissued, err := s.claims.ReissueToken(ctx, claim.ID, token.Nonce, token.ExpiresAt)
	if err != nil {
		return nil, apperrors.Internal("Failed to save approval token", err)
	}
	if !reissued {
		// Reviewed in the meantime.
		return result, nil
	}
	claim.ApprovalToken = token.Nonce
	claim.TokenExpiresAt = token.ExpiresAt

	result.AdminNotified = s.notifyAdmin(ctx, exp, claim, token)
	s.logger.Info("manual payment claim re-sent to admin",
		zap.String("claim_id", claim.ID.String()),
		zap.Bool("admin_notified", result.AdminNotified),
	)
	s.audit.Record(ctx, exp.ID, models.EventManualPaymentSubmitted, map[string]interface{}{
		"claim_id":       claim.ID.String(),
		"payment_method": claim.PaymentMethod,
		"transaction_id": claim.TransactionID,
		"admin_notified": result.AdminNotified,
		"resubmitted":    true,
	})
	return result, nil
}

// ensureAttempt records the pending manual attempt for claimID unless it exists.
func (s *manualPaymentService) ensureAttempt(ctx context.Context, exp *models.Experience, claimID uuid.UUID) error {
	reference := models.ManualAttemptReference(claimID)
	if _, err := s.attempts.FindByReference(ctx, reference); err == nil {
		return nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return apperrors.Internal("Failed to look up payment attempt", err)
	}

	err := s.attempts.Create(ctx, &models.PaymentAttempt{
		ExperienceID:     exp.ID,
		Gateway:          models.GatewayManual,
		GatewayReference: &reference,
		Status:           models.PaymentStatusPending,
		Amount:           exp.AmountDue,
		Currency:         exp.Currency,
	})
	if err != nil {
		// gateway_reference is unique; a concurrent submission may have won.
		if _, ferr := s.attempts.FindByReference(ctx, reference); ferr == nil {
			return nil
		}
		return apperrors.Internal("Failed to record payment attempt", err)
	}
	return nil
}

func (s *manualPaymentService) moveToPreview(ctx context.Context, experienceID uuid.UUID) {
	if _, err := s.experiences.TransitionState(ctx, experienceID,
		[]models.LifecycleState{models.StateDraft}, models.StatePreview, nil,
	); err != nil {
		s.logger.Warn("failed to move experience to PREVIEW", zap.String("experience_id", experienceID.String()), zap.Error(err))
	}
}

func (s *manualPaymentService) notifyAdmin(ctx context.Context, exp *models.Experience, claim *models.ManualPaymentClaim, token verifier.ApprovalToken) bool {
	if s.cfg.AdminEmail == "" {
		s.logger.Warn("ADMIN_EMAIL not configured, manual claim not announced", zap.String("claim_id", claim.ID.String()))
		return false
	}

	label := "UPI app"
	if claim.PaymentMethod == models.ManualMethodPayPal {
		label = "PayPal"
	}
	screenshot := ""
	if claim.ScreenshotKey != nil {
		screenshot = *claim.ScreenshotKey
	}

	msg, err := s.renderer.AdminClaimEmail(s.cfg.AdminEmail, sender.AdminClaimEmailData{
		PayerName:      claim.PayerName,
		PayerEmail:     claim.PayerEmail,
		Method:         claim.PaymentMethod,
		MethodLabel:    label,
		TransactionID:  claim.TransactionID,
		Amount:         models.FormatAmount(claim.Amount, claim.Currency),
		ExperienceType: exp.ExperienceType,
		RecipientName:  exp.RecipientName,
		ScreenshotKey:  screenshot,
		ApproveURL:     s.cfg.FunctionsBaseURL + "/adminVerify?token=" + token.Token,
		ExpiresAt:      token.ExpiresAt.UTC().Format(time.RFC1123),
	})
	if err != nil {
		s.logger.Error("failed to render admin email", zap.Error(err))
		return false
	}
	if _, err := s.emailSender.SendEmail(ctx, msg); err != nil {
		s.logger.Error("failed to notify admin of manual payment",
			zap.String("claim_id", claim.ID.String()),
			zap.Error(err),
		)
		return false
	}
	if err := s.claims.MarkAdminNotified(ctx, claim.ID, s.now()); err != nil {
		s.logger.Warn("admin notified but claim not updated",
			zap.String("claim_id", claim.ID.String()),
			zap.Error(err),
		)
	}
	return true
}

func (s *manualPaymentService) CreateUploadURL(ctx context.Context, req models.UploadURLRequest) (*models.UploadURL, error) {
	if s.presigner == nil {
		return nil, apperrors.Internal("Screenshot uploads are not configured", nil)
	}
	experienceID, err := uuid.Parse(strings.TrimSpace(req.ExperienceID))
	if err != nil {
		return nil, apperrors.Validation("experience_id is required")
	}
	contentType := strings.ToLower(strings.TrimSpace(req.ContentType))
	if contentType == "" {
		contentType = "image/jpeg"
	}
	ext, ok := screenshotTypes[contentType]
	if !ok {
		return nil, apperrors.Validation("content_type must be a jpeg, png, webp or heic image")
	}

	if _, err := s.experiences.FindByID(ctx, experienceID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("Experience not found")
		}
		return nil, apperrors.Internal("Failed to load experience", err)
	}

	key := fmt.Sprintf("payment-screenshots/%s/%s.%s", experienceID, uuid.NewString(), ext)
	url, headers, err := s.presigner.PresignPut(ctx, key, contentType, s.cfg.UploadURLExpiry)
	if err != nil {
		return nil, apperrors.Internal("Failed to create upload URL", err)
	}
	return &models.UploadURL{URL: url, Key: key, Headers: headers}, nil
}

func (s *manualPaymentService) Approve(ctx context.Context, token string) (*models.AdminVerifyResult, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, apperrors.InvalidToken("Missing approval token", nil).WithCode(400)
	}
	claims, err := s.tokens.Parse(token)
	if err != nil {
		if claims != nil {
			return s.expiredApproval(ctx, claims, err)
		}
		return nil, err
	}

	claim, err := s.claims.FindByToken(ctx, claims.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("Payment claim not found")
		}
		return nil, apperrors.Internal("Failed to load payment claim", err)
	}
	if claim.ID != claims.ClaimID() {
		return nil, apperrors.InvalidToken("Invalid approval token", nil)
	}

	exp, err := s.experiences.FindByID(ctx, claim.ExperienceID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("Experience not found")
		}
		return nil, apperrors.Internal("Failed to load experience", err)
	}
	result := &models.AdminVerifyResult{ExperienceID: exp.ID.String(), RecipientName: exp.RecipientName}

	if claim.Reviewed {
		result.AlreadyApproved = true
		return result, nil
	}
	if s.now().After(claim.TokenExpiresAt) {
		return nil, apperrors.InvalidToken("Approval link has expired", nil)
	}

	completion, err := s.applier.ApplyPaymentCompleted(ctx, CompletionSignal{
		Reference:    models.ManualAttemptReference(claim.ID),
		ExperienceID: claim.ExperienceID,
		Source:       models.SourceAdminApproval,
	})
	if err != nil {
		return nil, err
	}

	if completion.AlreadyCompleted {
		s.markReviewed(ctx, claim.ID)
		result.AlreadyApproved = true
		return result, nil
	}
	marked, err := s.claims.MarkReviewed(ctx, claim.ID, s.now())
	if err != nil {
		// The payment is applied; this approval still counts as the first.
		s.logger.Error("payment applied but claim not marked reviewed",
			zap.String("claim_id", claim.ID.String()),
			zap.Error(err),
		)
	} else if !marked {
		result.AlreadyApproved = true
		return result, nil
	}

	result.EmailSent = completion.EmailSent
	s.audit.Record(ctx, exp.ID, models.EventPaymentVerifiedByAdmin, map[string]interface{}{
		"claim_id":       claim.ID.String(),
		"transaction_id": claim.TransactionID,
		"email_sent":     completion.EmailSent,
	})
	s.logger.Info("manual payment approved",
		zap.String("claim_id", claim.ID.String()),
		zap.String("experience_id", exp.ID.String()),
		zap.Bool("email_sent", completion.EmailSent),
	)
	return result, nil
}

func (s *manualPaymentService) markReviewed(ctx context.Context, claimID uuid.UUID) {
	if _, err := s.claims.MarkReviewed(ctx, claimID, s.now()); err != nil {
		s.logger.Error("failed to mark claim reviewed",
			zap.String("claim_id", claimID.String()),
			zap.Error(err),
		)
	}
}

// expiredApproval answers a correctly signed but expired link. A claim that
// was already approved reports so; anything else keeps the expiry error.
func (s *manualPaymentService) expiredApproval(ctx context.Context, claims *verifier.ApprovalClaims, parseErr error) (*models.AdminVerifyResult, error) {
	claim, err := s.claims.FindByToken(ctx, claims.ID)
	if err != nil || claim.ID != claims.ClaimID() || !claim.Reviewed {
		return nil, parseErr
	}
	exp, err := s.experiences.FindByID(ctx, claim.ExperienceID)
	if err != nil {
		return nil, parseErr
	}
	return &models.AdminVerifyResult{
		ExperienceID:    exp.ID.String(),
		RecipientName:   exp.RecipientName,
		AlreadyApproved: true,
	}, nil
}
