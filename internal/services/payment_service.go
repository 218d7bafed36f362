package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/KaranSingh0790/Cupid-s-Arrow/internal/apperrors"
	"github.com/KaranSingh0790/Cupid-s-Arrow/internal/models"
	"github.com/KaranSingh0790/Cupid-s-Arrow/internal/providers"
	"github.com/KaranSingh0790/Cupid-s-Arrow/internal/repository"
	aws_pkg "github.com/KaranSingh0790/Cupid-s-Arrow/pkg/aws"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type PaymentService interface {
	// CreateIntent returns a checkout handle for experienceID on gateway, reusing
	// a pending attempt for the same gateway when one exists.
	CreateIntent(ctx context.Context, experienceID uuid.UUID, gateway models.Gateway) (*models.PaymentIntent, error)
	// VerifyRazorpay applies a completion reported by the browser after Razorpay Checkout.
	VerifyRazorpay(ctx context.Context, req models.VerifyRazorpayRequest) (*CompletionResult, error)
}

// checkoutVerifier is implemented by *verifier.RazorpayCheckoutVerifier.
type checkoutVerifier interface {
	VerifyPayment(orderID, paymentID, signature string) error
}

// publicKeyHolder is implemented by gateways whose checkout needs a public key.
type publicKeyHolder interface {
	KeyID() string
}

type paymentService struct {
	experiences repository.ExperienceRepository
	attempts    repository.PaymentAttemptRepository
	gateways    map[models.Gateway]providers.PaymentGateway
	checkout    checkoutVerifier
	applier     TransitionApplier
	audit       AuditRecorder
	metrics     aws_pkg.MetricsRecorder
	logger      *zap.Logger
}

func NewPaymentService(
	experiences repository.ExperienceRepository,
	attempts repository.PaymentAttemptRepository,
	gateways []providers.PaymentGateway,
	checkout checkoutVerifier,
	applier TransitionApplier,
	audit AuditRecorder,
	metrics aws_pkg.MetricsRecorder,
	logger *zap.Logger,
) PaymentService {
	byName := make(map[models.Gateway]providers.PaymentGateway, len(gateways))
	for _, g := range gateways {
		byName[g.Name()] = g
	}
	return &paymentService{
		experiences: experiences,
		attempts:    attempts,
		gateways:    byName,
		checkout:    checkout,
		applier:     applier,
		audit:       audit,
		metrics:     metrics,
		logger:      logger,
	}
}

func (s *paymentService) CreateIntent(ctx context.Context, experienceID uuid.UUID, gateway models.Gateway) (*models.PaymentIntent, error) {
	gw, ok := s.gateways[gateway]
	if !ok {
		return nil, apperrors.Validation(fmt.Sprintf("Payment gateway %q is not available", gateway))
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
	if !gw.SupportsCurrency(exp.Currency) {
		return nil, apperrors.Validation(fmt.Sprintf("%s does not accept %s payments", gateway, exp.Currency))
	}

	pending, err := s.attempts.FindPending(ctx, exp.ID, gateway)
	switch {
	case err == nil:
		s.logger.Info("reusing pending payment attempt",
			zap.String("experience_id", exp.ID.String()),
			zap.String("reference", pending.Reference()),
		)
		intent := intentFromAttempt(pending, true)
		if k, ok := gw.(publicKeyHolder); ok {
			intent.KeyID = k.KeyID()
		}
		return intent, nil
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, apperrors.Internal("Failed to look up payment attempts", err)
	}

	checkout, err := gw.CreateCheckout(ctx, providers.CheckoutRequest{
		ExperienceID:   exp.ID,
		ExperienceType: exp.ExperienceType,
		RecipientEmail: exp.RecipientEmail,
		Amount:         exp.AmountDue,
		Currency:       exp.Currency,
	})
	if err != nil {
		s.logger.Error("gateway checkout failed",
			zap.String("gateway", string(gateway)),
			zap.String("experience_id", exp.ID.String()),
			zap.Error(err),
		)
		return nil, apperrors.Gateway("Failed to create payment", err)
	}

	attempt := &models.PaymentAttempt{
		ExperienceID:     exp.ID,
		Gateway:          gateway,
		GatewayReference: &checkout.Reference,
		Status:           models.PaymentStatusPending,
		Amount:           checkout.Amount,
		Currency:         checkout.Currency,
	}
	if checkout.CheckoutURL != "" {
		attempt.CheckoutURL = &checkout.CheckoutURL
	}
	if err := s.attempts.Create(ctx, attempt); err != nil {
		return nil, apperrors.Internal("Failed to record payment attempt", err)
	}

	if _, err := s.experiences.TransitionState(ctx, exp.ID,
		[]models.LifecycleState{models.StateDraft}, models.StatePreview, nil,
	); err != nil {
		s.logger.Warn("failed to move experience to PREVIEW", zap.String("experience_id", exp.ID.String()), zap.Error(err))
	}

	eventType := models.EventPaymentInitiated
	if gateway == models.GatewayStripe {
		eventType = models.EventStripePaymentInitiated
	}
	s.audit.Record(ctx, exp.ID, eventType, map[string]interface{}{
		"gateway":   string(gateway),
		"reference": checkout.Reference,
		"amount":    checkout.Amount,
		"currency":  checkout.Currency,
	})
	recordCount(s.metrics, aws_pkg.MetricPaymentsInitiated, map[string]string{"Gateway": string(gateway)})

	intent := intentFromAttempt(attempt, false)
	intent.KeyID = checkout.KeyID
	return intent, nil
}

func intentFromAttempt(a *models.PaymentAttempt, reused bool) *models.PaymentIntent {
	intent := &models.PaymentIntent{
		AttemptID:    a.ID.String(),
		ExperienceID: a.ExperienceID.String(),
		Gateway:      a.Gateway,
		Reference:    a.Reference(),
		Amount:       a.Amount,
		Currency:     a.Currency,
		Reused:       reused,
	}
	if a.CheckoutURL != nil {
		intent.CheckoutURL = *a.CheckoutURL
	}
	return intent
}

func (s *paymentService) VerifyRazorpay(ctx context.Context, req models.VerifyRazorpayRequest) (*CompletionResult, error) {
	if err := s.checkout.VerifyPayment(req.OrderID, req.PaymentID, req.Signature); err != nil {
		recordCount(s.metrics, aws_pkg.MetricSignatureRejected, map[string]string{"Source": string(models.SourceClientVerify)})
		s.logger.Warn("razorpay checkout signature rejected", zap.String("order_id", req.OrderID))
		return nil, err
	}

	result, err := s.applier.ApplyPaymentCompleted(ctx, CompletionSignal{
		Reference:        req.OrderID,
		GatewayPaymentID: req.PaymentID,
		Source:           models.SourceClientVerify,
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, result.ExperienceID, models.EventPaymentVerified, map[string]interface{}{
		"order_id":          req.OrderID,
		"payment_id":        req.PaymentID,
		"already_completed": result.AlreadyCompleted,
	})
	return result, nil
}
