package verifier

import (
	"errors"
	"strings"
	"time"

	"github.com/KaranSingh0790/Cupid-s-Arrow/internal/apperrors"
	"github.com/stripe/stripe-go/v80"
	"github.com/stripe/stripe-go/v80/webhook"
)

// DefaultStripeTolerance is the maximum accepted timestamp skew.
const DefaultStripeTolerance = 300 * time.Second

// StripeWebhookVerifier checks the Stripe-Signature header (t=…,v1=…) over
// "timestamp.body" and rejects timestamps outside the tolerance window.
type StripeWebhookVerifier struct {
	secret    string
	tolerance time.Duration
}

func NewStripeWebhookVerifier(secret string, tolerance time.Duration) *StripeWebhookVerifier {
	if tolerance <= 0 {
		tolerance = DefaultStripeTolerance
	}
	return &StripeWebhookVerifier{secret: secret, tolerance: tolerance}
}

func (v *StripeWebhookVerifier) Verify(payload []byte, signature string) error {
	_, err := v.ConstructEvent(payload, signature)
	return err
}

// ConstructEvent verifies the payload and decodes it into a stripe.Event.
func (v *StripeWebhookVerifier) ConstructEvent(payload []byte, signature string) (stripe.Event, error) {
	if strings.TrimSpace(signature) == "" {
		return stripe.Event{}, ErrMissingSignature
	}
	if v.secret == "" {
		return stripe.Event{}, apperrors.InvalidSignature("webhook secret not configured", nil)
	}
	event, err := webhook.ConstructEventWithOptions(payload, signature, v.secret, webhook.ConstructEventOptions{
		Tolerance:                v.tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		switch {
		case errors.Is(err, webhook.ErrTooOld):
			return stripe.Event{}, apperrors.InvalidSignature("signature timestamp outside tolerance", err)
		case errors.Is(err, webhook.ErrNotSigned), errors.Is(err, webhook.ErrInvalidHeader):
			return stripe.Event{}, apperrors.InvalidSignature("malformed signature header", err)
		default:
			return stripe.Event{}, apperrors.InvalidSignature("invalid signature", err)
		}
	}
	return event, nil
}
