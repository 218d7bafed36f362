package services

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/KaranSingh0790/Cupid-s-Arrow/internal/apperrors"
	"github.com/KaranSingh0790/Cupid-s-Arrow/internal/events"
	"github.com/KaranSingh0790/Cupid-s-Arrow/internal/models"
	"github.com/KaranSingh0790/Cupid-s-Arrow/internal/repository"
	"github.com/KaranSingh0790/Cupid-s-Arrow/internal/verifier"
	aws_pkg "github.com/KaranSingh0790/Cupid-s-Arrow/pkg/aws"
	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v80"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Webhook acknowledgement statuses.
const (
	WebhookProcessed = "processed"
	WebhookDuplicate = "duplicate"
	WebhookIgnored   = "ignored"
	WebhookUnknown   = "unknown_attempt"
)

// WebhookAck is returned to the gateway with a 200.
type WebhookAck struct {
	Event        string `json:"event"`
	Status       string `json:"status"`
	ExperienceID string `json:"experience_id,omitempty"`
	EmailSent    bool   `json:"email_sent,omitempty"`
}

type WebhookService interface {
	HandleRazorpay(ctx context.Context, payload []byte, signature, eventID string) (*WebhookAck, error)
	HandleStripe(ctx context.Context, payload []byte, signature string) (*WebhookAck, error)
}

// stripeEventVerifier is implemented by *verifier.StripeWebhookVerifier.
type stripeEventVerifier interface {
	ConstructEvent(payload []byte, signature string) (stripe.Event, error)
}

type razorpayEvent struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity razorpayPayment `json:"entity"`
		} `json:"payment"`
		Order struct {
			Entity struct {
				ID string `json:"id"`
			} `json:"entity"`
		} `json:"order"`
	} `json:"payload"`
}

type razorpayPayment struct {
	ID               string `json:"id"`
	OrderID          string `json:"order_id"`
	Status           string `json:"status"`
	ErrorCode        string `json:"error_code"`
	ErrorDescription string `json:"error_description"`
}

type webhookService struct {
	razorpay verifier.Verifier
	stripe   stripeEventVerifier
	ledger   events.EventLedger
	applier  TransitionApplier
	attempts repository.PaymentAttemptRepository
	audit    AuditRecorder
	metrics  aws_pkg.MetricsRecorder
	logger   *zap.Logger
}

func NewWebhookService(
	razorpay verifier.Verifier,
	stripe stripeEventVerifier,
	ledger events.EventLedger,
	applier TransitionApplier,
	attempts repository.PaymentAttemptRepository,
	audit AuditRecorder,
	metrics aws_pkg.MetricsRecorder,
	logger *zap.Logger,
) WebhookService {
	if ledger == nil {
		ledger = events.NoopLedger{}
	}
	return &webhookService{
		razorpay: razorpay,
		stripe:   stripe,
		ledger:   ledger,
		applier:  applier,
		attempts: attempts,
		audit:    audit,
		metrics:  metrics,
		logger:   logger,
	}
}

func (s *webhookService) rejectSignature(gateway string, err error) error {
	recordCount(s.metrics, aws_pkg.MetricSignatureRejected, map[string]string{"Source": gateway + "_webhook"})
	s.logger.Warn("webhook signature rejected", zap.String("gateway", gateway), zap.Error(err))
	return err
}

// once runs handle unless eventID was already processed. A failed handle
// forgets the id so the gateway's redelivery is processed again.
func (s *webhookService) once(ctx context.Context, gateway, eventType, eventID string, handle func() (*WebhookAck, error)) (*WebhookAck, error) {
	first, err := s.ledger.FirstSeen(ctx, gateway, eventID)
	if err != nil {
		s.logger.Warn("event ledger unavailable, processing anyway", zap.String("event_id", eventID), zap.Error(err))
		first = true
	}
	if !first {
		s.logger.Info("duplicate webhook delivery", zap.String("gateway", gateway), zap.String("event_id", eventID))
		recordCount(s.metrics, aws_pkg.MetricDuplicateSignals, map[string]string{"Source": gateway + "_webhook"})
		return &WebhookAck{Event: eventType, Status: WebhookDuplicate}, nil
	}

	ack, err := handle()
	if err != nil {
		if ferr := s.ledger.Forget(context.WithoutCancel(ctx), gateway, eventID); ferr != nil {
			s.logger.Warn("failed to forget webhook event", zap.String("event_id", eventID), zap.Error(ferr))
		}
		return nil, err
	}
	return ack, nil
}

func (s *webhookService) HandleRazorpay(ctx context.Context, payload []byte, signature, eventID string) (*WebhookAck, error) {
	if err := s.razorpay.Verify(payload, signature); err != nil {
		return nil, s.rejectSignature("razorpay", err)
	}

	var evt razorpayEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		return nil, apperrors.Validation("Invalid webhook payload")
	}

	return s.once(ctx, "razorpay", evt.Event, eventID, func() (*WebhookAck, error) {
		payment := evt.Payload.Payment.Entity
		orderID := payment.OrderID
		if orderID == "" {
			orderID = evt.Payload.Order.Entity.ID
		}

		switch evt.Event {
		case "payment.captured", "order.paid":
			return s.complete(ctx, evt.Event, CompletionSignal{
				Reference:        orderID,
				GatewayPaymentID: payment.ID,
				Source:           models.SourceRazorpayWebhook,
			})
		case "payment.failed":
			return s.fail(ctx, evt.Event, orderID, payment.ErrorCode, payment.ErrorDescription)
		default:
			s.logger.Debug("ignoring razorpay event", zap.String("event", evt.Event))
			return &WebhookAck{Event: evt.Event, Status: WebhookIgnored}, nil
		}
	})
}

func (s *webhookService) HandleStripe(ctx context.Context, payload []byte, signature string) (*WebhookAck, error) {
	event, err := s.stripe.ConstructEvent(payload, signature)
	if err != nil {
		return nil, s.rejectSignature("stripe", err)
	}
	eventType := string(event.Type)

	return s.once(ctx, "stripe", eventType, event.ID, func() (*WebhookAck, error) {
		switch event.Type {
		case stripe.EventTypeCheckoutSessionCompleted, stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded:
			var sess stripe.CheckoutSession
			if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
				return nil, apperrors.Validation("Invalid checkout session payload")
			}
			if sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusUnpaid {
				s.logger.Info("checkout session completed without payment yet", zap.String("session_id", sess.ID))
				return &WebhookAck{Event: eventType, Status: WebhookIgnored}, nil
			}
			experienceID, err := uuid.Parse(sess.Metadata["experience_id"])
			if err != nil {
				return nil, apperrors.Validation("Checkout session is missing experience_id metadata")
			}
			signal := CompletionSignal{
				Reference:    sess.ID,
				ExperienceID: experienceID,
				Source:       models.SourceStripeWebhook,
			}
			if sess.PaymentIntent != nil {
				signal.GatewayPaymentID = sess.PaymentIntent.ID
			}
			return s.complete(ctx, eventType, signal)

		case stripe.EventTypeCheckoutSessionExpired, stripe.EventTypeCheckoutSessionAsyncPaymentFailed:
			var sess stripe.CheckoutSession
			if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
				return nil, apperrors.Validation("Invalid checkout session payload")
			}
			code := "session_expired"
			if event.Type == stripe.EventTypeCheckoutSessionAsyncPaymentFailed {
				code = "async_payment_failed"
			}
			return s.fail(ctx, eventType, sess.ID, code, "Stripe Checkout session "+code)

		case stripe.EventTypeChargeRefunded:
			var charge stripe.Charge
			if err := json.Unmarshal(event.Data.Raw, &charge); err != nil {
				return nil, apperrors.Validation("Invalid charge payload")
			}
			if charge.PaymentIntent == nil || charge.PaymentIntent.ID == "" {
				return &WebhookAck{Event: eventType, Status: WebhookIgnored}, nil
			}
			return s.refund(ctx, eventType, charge.PaymentIntent.ID, charge.AmountRefunded)

		default:
			s.logger.Debug("ignoring stripe event", zap.String("event", eventType))
			return &WebhookAck{Event: eventType, Status: WebhookIgnored}, nil
		}
	})
}

// complete applies a verified completion. The email outcome never fails the
// acknowledgement.
func (s *webhookService) complete(ctx context.Context, eventType string, signal CompletionSignal) (*WebhookAck, error) {
	result, err := s.applier.ApplyPaymentCompleted(ctx, signal)
	if err != nil {
		if errors.Is(err, apperrors.ErrUnknownAttempt) {
			s.logger.Warn("webhook references an unknown payment attempt",
				zap.String("event", eventType),
				zap.String("reference", signal.Reference),
			)
			return &WebhookAck{Event: eventType, Status: WebhookUnknown}, nil
		}
		return nil, err
	}

	ack := &WebhookAck{
		Event:        eventType,
		Status:       WebhookProcessed,
		ExperienceID: result.ExperienceID.String(),
		EmailSent:    result.EmailSent,
	}
	if result.AlreadyCompleted {
		ack.Status = WebhookDuplicate
	}
	return ack, nil
}

func (s *webhookService) fail(ctx context.Context, eventType, reference, code, description string) (*WebhookAck, error) {
	if reference == "" {
		return &WebhookAck{Event: eventType, Status: WebhookIgnored}, nil
	}
	marked, err := s.attempts.MarkFailed(ctx, reference, code, description)
	if err != nil {
		return nil, apperrors.Internal("Failed to mark payment attempt failed", err)
	}
	if !marked {
		return &WebhookAck{Event: eventType, Status: WebhookIgnored}, nil
	}

	attempt, err := s.attempts.FindByReference(ctx, reference)
	if err != nil {
		s.logger.Warn("failed attempt not reloadable", zap.String("reference", reference), zap.Error(err))
		return &WebhookAck{Event: eventType, Status: WebhookProcessed}, nil
	}
	s.audit.Record(ctx, attempt.ExperienceID, models.EventPaymentFailed, map[string]interface{}{
		"reference":         reference,
		"error_code":        code,
		"error_description": description,
	})
	return &WebhookAck{Event: eventType, Status: WebhookProcessed, ExperienceID: attempt.ExperienceID.String()}, nil
}

func (s *webhookService) refund(ctx context.Context, eventType, paymentIntentID string, amountRefunded int64) (*WebhookAck, error) {
	attempt, err := s.attempts.MarkRefunded(ctx, paymentIntentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &WebhookAck{Event: eventType, Status: WebhookIgnored}, nil
		}
		return nil, apperrors.Internal("Failed to mark payment refunded", err)
	}
	s.audit.Record(ctx, attempt.ExperienceID, models.EventPaymentRefunded, map[string]interface{}{
		"payment_intent":  paymentIntentID,
		"amount_refunded": amountRefunded,
	})
	s.logger.Info("payment refunded",
		zap.String("experience_id", attempt.ExperienceID.String()),
		zap.String("payment_intent", paymentIntentID),
	)
	return &WebhookAck{Event: eventType, Status: WebhookProcessed, ExperienceID: attempt.ExperienceID.String()}, nil
}
