package routes

import (
	"github.com/KaranSingh0790/Cupid-s-Arrow/internal/controllers"
	"github.com/gin-gonic/gin"
)

// Controllers groups the HTTP handlers mounted by RegisterRoutes.
type Controllers struct {
	Experiences *controllers.ExperienceController
	Payments    *controllers.PaymentController
	Webhooks    *controllers.WebhookController
	Admin       *controllers.AdminController
}

// RegisterRoutes sets up the public API, gateway webhooks and the admin approval link.
func RegisterRoutes(r *gin.Engine, c Controllers) {
	experiences := r.Group("/experiences")
	experiences.POST("", c.Experiences.Create)
	experiences.GET("/:id", c.Experiences.Get)
	experiences.POST("/:id/open", c.Experiences.Open)
	experiences.POST("/:id/respond", c.Experiences.Respond)
	experiences.POST("/:id/reply", c.Experiences.Reply)
	experiences.POST("/:id/send", c.Experiences.Send)

	payments := r.Group("/payments")
	payments.POST("/razorpay/order", c.Payments.CreateRazorpayOrder)
	payments.POST("/razorpay/verify", c.Payments.VerifyRazorpay)
	payments.POST("/stripe/session", c.Payments.CreateStripeSession)
	payments.POST("/manual/confirm", c.Payments.ConfirmManual)
	payments.POST("/manual/upload-url", c.Payments.UploadURL)

	// Authenticated by gateway signature
	webhooks := r.Group("/webhooks")
	webhooks.POST("/razorpay", c.Webhooks.Razorpay)
	webhooks.POST("/stripe", c.Webhooks.Stripe)

	// Linked from the admin notification email
	r.GET("/adminVerify", c.Admin.Verify)
	r.POST("/adminVerify", c.Admin.Verify)
}
