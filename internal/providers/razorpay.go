package providers

import (
	"context"
	"fmt"
	"strings"

	"github.com/KaranSingh0790/Cupid-s-Arrow/internal/models"
	razorpay "github.com/razorpay/razorpay-go"
)

// orderCreator is the slice of the Razorpay SDK this package uses.
type orderCreator interface {
	Create(data map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error)
}

// RazorpayGateway creates Razorpay orders for INR experiences.
type RazorpayGateway struct {
	keyID  string
	orders orderCreator
}

// NewRazorpayGateway creates a RazorpayGateway backed by the razorpay-go client.
func NewRazorpayGateway(keyID, keySecret string) *RazorpayGateway {
	client := razorpay.NewClient(keyID, keySecret)
	return &RazorpayGateway{keyID: keyID, orders: client.Order}
}

func (g *RazorpayGateway) Name() models.Gateway { return models.GatewayRazorpay }

// KeyID is the public key the browser passes to Razorpay Checkout.
func (g *RazorpayGateway) KeyID() string { return g.keyID }

func (g *RazorpayGateway) SupportsCurrency(currency string) bool {
	return strings.EqualFold(currency, "inr")
}

// CreateCheckout creates an order; the SDK does not accept a context so ctx
// is only checked before the call.
func (g *RazorpayGateway) CreateCheckout(ctx context.Context, req CheckoutRequest) (*Checkout, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	id := req.ExperienceID.String()
	data := map[string]interface{}{
		"amount":   req.Amount,
		"currency": strings.ToUpper(req.Currency),
		"receipt":  "exp_" + id[:8],
		"notes": map[string]interface{}{
			"experience_id":   id,
			"experience_type": string(req.ExperienceType),
			"recipient_email": req.RecipientEmail,
		},
	}

	order, err := g.orders.Create(data, nil)
	if err != nil {
		return nil, fmt.Errorf("razorpay order create failed: %w", err)
	}
	orderID, _ := order["id"].(string)
	if orderID == "" {
		return nil, fmt.Errorf("razorpay order response missing id")
	}

	return &Checkout{
		Reference: orderID,
		KeyID:     g.keyID,
		Amount:    req.Amount,
		Currency:  strings.ToLower(req.Currency),
	}, nil
}
