package controllers

import (
	"net/http"

	"github.com/KaranSingh0790/Cupid-s-Arrow/internal/models"
	"github.com/KaranSingh0790/Cupid-s-Arrow/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PaymentController serves checkout creation, client verification and manual claims.
type PaymentController struct {
	payments services.PaymentService
	manual   services.ManualPaymentService
	logger   *zap.Logger
}

func NewPaymentController(payments services.PaymentService, manual services.ManualPaymentService, logger *zap.Logger) *PaymentController {
	return &PaymentController{payments: payments, manual: manual, logger: logger}
}

// CreateRazorpayOrder handles POST /payments/razorpay/order
func (pc *PaymentController) CreateRazorpayOrder(ctx *gin.Context) {
	pc.createIntent(ctx, models.GatewayRazorpay)
}

// CreateStripeSession handles POST /payments/stripe/session
func (pc *PaymentController) CreateStripeSession(ctx *gin.Context) {
	pc.createIntent(ctx, models.GatewayStripe)
}

func (pc *PaymentController) createIntent(ctx *gin.Context, gateway models.Gateway) {
	var req models.CreatePaymentRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "experience_id is required"})
		return
	}
	id, err := uuid.Parse(req.ExperienceID)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid experience id"})
		return
	}

	intent, err := pc.payments.CreateIntent(ctx.Request.Context(), id, gateway)
	if err != nil {
		respondError(ctx, pc.logger, err)
		return
	}
	ctx.JSON(http.StatusOK, intent)
}

// VerifyRazorpay handles POST /payments/razorpay/verify
func (pc *PaymentController) VerifyRazorpay(ctx *gin.Context) {
	var req models.VerifyRazorpayRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "razorpay_order_id, razorpay_payment_id and razorpay_signature are required"})
		return
	}

	result, err := pc.payments.VerifyRazorpay(ctx.Request.Context(), req)
	if err != nil {
		respondError(ctx, pc.logger, err)
		return
	}

	resp := gin.H{
		"success":           true,
		"experience_id":     result.ExperienceID.String(),
		"already_completed": result.AlreadyCompleted,
		"email_sent":        result.EmailSent,
	}
	if result.EmailError != nil {
		resp["email_error"] = "Email delivery is delayed and will be retried"
	}
	ctx.JSON(http.StatusOK, resp)
}

// ConfirmManual handles POST /payments/manual/confirm
func (pc *PaymentController) ConfirmManual(ctx *gin.Context) {
	var req models.ManualPaymentRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}

	result, err := pc.manual.SubmitClaim(ctx.Request.Context(), req)
	if err != nil {
		respondError(ctx, pc.logger, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"success":           true,
		"claim_id":          result.ClaimID,
		"already_submitted": result.AlreadySubmitted,
		"admin_notified":    result.AdminNotified,
	})
}

// UploadURL handles POST /payments/manual/upload-url
func (pc *PaymentController) UploadURL(ctx *gin.Context) {
	var req models.UploadURLRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "experience_id is required"})
		return
	}

	upload, err := pc.manual.CreateUploadURL(ctx.Request.Context(), req)
	if err != nil {
		respondError(ctx, pc.logger, err)
		return
	}
	ctx.JSON(http.StatusOK, upload)
}
