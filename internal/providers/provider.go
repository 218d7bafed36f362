package providers

import (
	"context"

	"github.com/KaranSingh0790/Cupid-s-Arrow/internal/models"
	"github.com/google/uuid"
)

// CheckoutRequest is everything a gateway needs to mint an order or session.
type CheckoutRequest struct {
	ExperienceID   uuid.UUID
	ExperienceType models.ExperienceType
	RecipientEmail string
	Amount         int64 // minor units
	Currency       string
}

// Checkout is the gateway's handle for a pending payment.
type Checkout struct {
	Reference   string
	CheckoutURL string
	KeyID       string
	Amount      int64
	Currency    string
}

// PaymentGateway is implemented by each SDK-backed payment rail.
type PaymentGateway interface {
	Name() models.Gateway
	SupportsCurrency(currency string) bool
	CreateCheckout(ctx context.Context, req CheckoutRequest) (*Checkout, error)
}
