package controllers

import (
	"net/http"

	"github.com/KaranSingh0790/Cupid-s-Arrow/internal/services"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// maxWebhookBody bounds the payload read before signature verification.
const maxWebhookBody = 1 << 20

// WebhookController receives gateway webhooks. Bodies are read raw so the
// signature is checked over the exact bytes the gateway signed.
type WebhookController struct {
	webhooks services.WebhookService
	logger   *zap.Logger
}

func NewWebhookController(webhooks services.WebhookService, logger *zap.Logger) *WebhookController {
	return &WebhookController{webhooks: webhooks, logger: logger}
}

func readBody(ctx *gin.Context) ([]byte, bool) {
	ctx.Request.Body = http.MaxBytesReader(ctx.Writer, ctx.Request.Body, maxWebhookBody)
	payload, err := ctx.GetRawData()
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Unable to read request body"})
		return nil, false
	}
	return payload, true
}

// Razorpay handles POST /webhooks/razorpay
func (wc *WebhookController) Razorpay(ctx *gin.Context) {
	payload, ok := readBody(ctx)
	if !ok {
		return
	}
	ack, err := wc.webhooks.HandleRazorpay(
		ctx.Request.Context(),
		payload,
		ctx.GetHeader("X-Razorpay-Signature"),
		ctx.GetHeader("X-Razorpay-Event-Id"),
	)
	if err != nil {
		respondError(ctx, wc.logger, err)
		return
	}
	ctx.JSON(http.StatusOK, ack)
}

// Stripe handles POST /webhooks/stripe
func (wc *WebhookController) Stripe(ctx *gin.Context) {
	payload, ok := readBody(ctx)
	if !ok {
		return
	}
	ack, err := wc.webhooks.HandleStripe(ctx.Request.Context(), payload, ctx.GetHeader("Stripe-Signature"))
	if err != nil {
		respondError(ctx, wc.logger, err)
		return
	}
	ctx.JSON(http.StatusOK, ack)
}
