package verifier

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/KaranSingh0790/Cupid-s-Arrow/internal/apperrors"
)

// Verifier proves an inbound completion signal is genuine before it is allowed
// to drive a lifecycle transition. Implementations fail closed.
type Verifier interface {
	Verify(payload []byte, signature string) error
}

// ErrMissingSignature is returned when the signature header is absent.
var ErrMissingSignature = apperrors.InvalidSignature("missing signature", nil).WithCode(http.StatusBadRequest)

// RazorpayWebhookVerifier checks X-Razorpay-Signature: hex(HMAC-SHA256(body, webhook secret)).
type RazorpayWebhookVerifier struct {
	secret []byte
}

func NewRazorpayWebhookVerifier(secret string) *RazorpayWebhookVerifier {
	return &RazorpayWebhookVerifier{secret: []byte(secret)}
}

func (v *RazorpayWebhookVerifier) Verify(payload []byte, signature string) error {
	if strings.TrimSpace(signature) == "" {
		return ErrMissingSignature
	}
	if len(v.secret) == 0 {
		return apperrors.InvalidSignature("webhook secret not configured", nil)
	}
	if !validHexHMAC(v.secret, payload, signature) {
		return apperrors.InvalidSignature("invalid signature", nil)
	}
	return nil
}

// RazorpayCheckoutVerifier checks the signature Razorpay Checkout hands the
// browser: hex(HMAC-SHA256(order_id|payment_id, key secret)).
type RazorpayCheckoutVerifier struct {
	keySecret []byte
}

func NewRazorpayCheckoutVerifier(keySecret string) *RazorpayCheckoutVerifier {
	return &RazorpayCheckoutVerifier{keySecret: []byte(keySecret)}
}

// Verify expects payload to be "order_id|payment_id".
func (v *RazorpayCheckoutVerifier) Verify(payload []byte, signature string) error {
	if strings.TrimSpace(signature) == "" {
		return ErrMissingSignature
	}
	if len(v.keySecret) == 0 {
		return apperrors.InvalidSignature("key secret not configured", nil)
	}
	if !validHexHMAC(v.keySecret, payload, signature) {
		return apperrors.InvalidSignature("invalid payment signature", nil)
	}
	return nil
}

// VerifyPayment verifies the checkout signature for an order/payment pair.
func (v *RazorpayCheckoutVerifier) VerifyPayment(orderID, paymentID, signature string) error {
	return v.Verify([]byte(orderID+"|"+paymentID), signature)
}

// SignHex returns hex(HMAC-SHA256(payload, secret)).
func SignHex(secret, payload []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func validHexHMAC(secret, payload []byte, signature string) bool {
	expected := SignHex(secret, payload)
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(strings.TrimSpace(signature))))
}
