package providers

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/KaranSingh0790/Cupid-s-Arrow/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v80"
)

type fakeOrders struct {
	got  map[string]interface{}
	resp map[string]interface{}
	err  error
}

func (f *fakeOrders) Create(data map[string]interface{}, _ map[string]string) (map[string]interface{}, error) {
	f.got = data
	return f.resp, f.err
}

func TestRazorpayCreateCheckout(t *testing.T) {
	orders := &fakeOrders{resp: map[string]interface{}{"id": "order_XYZ", "amount": float64(4900)}}
	g := &RazorpayGateway{keyID: "rzp_test_key", orders: orders}
	expID := uuid.New()

	co, err := g.CreateCheckout(context.Background(), CheckoutRequest{
		ExperienceID:   expID,
		ExperienceType: models.ExperienceCrush,
		RecipientEmail: "asha@example.com",
		Amount:         4900,
		Currency:       "inr",
	})
	require.NoError(t, err)
	assert.Equal(t, "order_XYZ", co.Reference)
	assert.Equal(t, "rzp_test_key", co.KeyID)

	assert.Equal(t, int64(4900), orders.got["amount"])
	assert.Equal(t, "INR", orders.got["currency"])
	assert.Equal(t, "exp_"+expID.String()[:8], orders.got["receipt"])
	notes := orders.got["notes"].(map[string]interface{})
	assert.Equal(t, expID.String(), notes["experience_id"])
}

func TestRazorpayCreateCheckout_Errors(t *testing.T) {
	g := &RazorpayGateway{orders: &fakeOrders{err: errors.New("BAD_REQUEST_ERROR")}}
	_, err := g.CreateCheckout(context.Background(), CheckoutRequest{ExperienceID: uuid.New(), Amount: 4900, Currency: "inr"})
	assert.Error(t, err)

	g = &RazorpayGateway{orders: &fakeOrders{resp: map[string]interface{}{}}}
	_, err = g.CreateCheckout(context.Background(), CheckoutRequest{ExperienceID: uuid.New(), Amount: 4900, Currency: "inr"})
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = g.CreateCheckout(ctx, CheckoutRequest{ExperienceID: uuid.New()})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRazorpaySupportsCurrency(t *testing.T) {
	g := &RazorpayGateway{}
	assert.True(t, g.SupportsCurrency("INR"))
	assert.False(t, g.SupportsCurrency("usd"))
}

func TestStripeCreateCheckout(t *testing.T) {
	var captured *stripe.CheckoutSessionParams
	g := &StripeGateway{
		appURL: "https://cupidsarrow.app",
		newSession: func(p *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
			captured = p
			return &stripe.CheckoutSession{ID: "cs_test_1", URL: "https://checkout.stripe.com/c/cs_test_1"}, nil
		},
	}
	expID := uuid.New()

	co, err := g.CreateCheckout(context.Background(), CheckoutRequest{
		ExperienceID:   expID,
		ExperienceType: models.ExperienceCouple,
		Amount:         299,
		Currency:       "USD",
	})
	require.NoError(t, err)
	assert.Equal(t, "cs_test_1", co.Reference)
	assert.Equal(t, "usd", co.Currency)
	assert.NotEmpty(t, co.CheckoutURL)

	require.NotNil(t, captured)
	assert.Equal(t, expID.String(), captured.Metadata["experience_id"])
	assert.True(t, strings.HasSuffix(*captured.CancelURL, "experience_id="+expID.String()))
	assert.Contains(t, *captured.SuccessURL, "{CHECKOUT_SESSION_ID}")
	assert.Equal(t, int64(299), *captured.LineItems[0].PriceData.UnitAmount)
}

func TestStripeCreateCheckout_Error(t *testing.T) {
	g := &StripeGateway{newSession: func(*stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
		return nil, errors.New("api down")
	}}
	_, err := g.CreateCheckout(context.Background(), CheckoutRequest{ExperienceID: uuid.New(), Currency: "usd"})
	assert.Error(t, err)
}
