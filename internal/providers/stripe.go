package providers

import (
	"context"
	"fmt"
	"strings"

	"github.com/KaranSingh0790/Cupid-s-Arrow/internal/models"
	"github.com/stripe/stripe-go/v80"
	"github.com/stripe/stripe-go/v80/checkout/session"
)

var stripeCurrencies = map[string]bool{"usd": true, "eur": true, "gbp": true, "inr": true}

var stripeProductNames = map[models.ExperienceType]string{
	models.ExperienceCrush:  "Crush Experience",
	models.ExperienceCouple: "Couple Experience",
}

// StripeGateway creates hosted Checkout sessions.
type StripeGateway struct {
	appURL     string
	newSession func(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

func NewStripeGateway(secretKey, appURL string) *StripeGateway {
	stripe.Key = secretKey
	return &StripeGateway{
		appURL:     strings.TrimSuffix(appURL, "/"),
		newSession: session.New,
	}
}

func (g *StripeGateway) Name() models.Gateway { return models.GatewayStripe }

func (g *StripeGateway) SupportsCurrency(currency string) bool {
	return stripeCurrencies[strings.ToLower(currency)]
}

func (g *StripeGateway) CreateCheckout(ctx context.Context, req CheckoutRequest) (*Checkout, error) {
	id := req.ExperienceID.String()
	currency := strings.ToLower(req.Currency)

	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency: stripe.String(currency),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name:        stripe.String(stripeProductNames[req.ExperienceType]),
						Description: stripe.String("A personalized experience delivered by email"),
					},
					UnitAmount: stripe.Int64(req.Amount),
				},
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(fmt.Sprintf("%s/create/payment/success?session_id={CHECKOUT_SESSION_ID}&experience_id=%s", g.appURL, id)),
		CancelURL:  stripe.String(fmt.Sprintf("%s/create/payment/cancel?experience_id=%s", g.appURL, id)),
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: map[string]string{"experience_id": id},
		},
	}
	params.Context = ctx
	params.AddMetadata("experience_id", id)
	params.AddMetadata("experience_type", string(req.ExperienceType))

	sess, err := g.newSession(params)
	if err != nil {
		return nil, fmt.Errorf("stripe checkout session create failed: %w", err)
	}

	return &Checkout{
		Reference:   sess.ID,
		CheckoutURL: sess.URL,
		Amount:      req.Amount,
		Currency:    currency,
	}, nil
}
