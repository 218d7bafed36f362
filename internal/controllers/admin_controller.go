package controllers

import (
	"bytes"
	"html/template"
	"net/http"

	"github.com/KaranSingh0790/Cupid-s-Arrow/internal/apperrors"
	"github.com/KaranSingh0790/Cupid-s-Arrow/internal/logger"
	"github.com/KaranSingh0790/Cupid-s-Arrow/internal/models"
	"github.com/KaranSingh0790/Cupid-s-Arrow/internal/services"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var adminPage = template.Must(template.New("admin").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>{{.Title}}</title></head>
<body style="font-family:-apple-system,BlinkMacSystemFont,'Segoe UI',Roboto,sans-serif;background:#fdf2f8;padding:40px;">
<div style="max-width:480px;margin:0 auto;background:#fff;border-radius:16px;padding:32px;text-align:center;">
<div style="font-size:48px;">{{.Icon}}</div>
<h1 style="color:{{.Color}};font-size:22px;">{{.Title}}</h1>
<p style="color:#4b5563;">{{.Message}}</p>
</div>
</body>
</html>`))

type adminPageData struct {
	Icon    string
	Title   string
	Message string
	Color   string
}

// AdminController serves the one-click approval link sent to the admin.
type AdminController struct {
	manual services.ManualPaymentService
	logger *zap.Logger
}

func NewAdminController(manual services.ManualPaymentService, logger *zap.Logger) *AdminController {
	return &AdminController{manual: manual, logger: logger}
}

// Verify handles GET and POST /adminVerify
func (ac *AdminController) Verify(ctx *gin.Context) {
	var req models.AdminVerifyRequest
	if ctx.Request.Method == http.MethodPost {
		// An unparseable body is treated as a missing token.
		_ = ctx.ShouldBind(&req)
	} else {
		req.Token = ctx.Query("token")
		req.ApprovalToken = ctx.Query("approval_token")
	}
	token := req.Token
	if token == "" {
		token = req.ApprovalToken
	}

	result, err := ac.manual.Approve(ctx.Request.Context(), token)
	if err != nil {
		appErr := apperrors.From(err)
		if appErr.Code >= http.StatusInternalServerError {
			logger.FromContext(ctx, ac.logger).Error("admin approval failed", zap.Error(appErr))
		}
		ac.render(ctx, appErr.Code, adminPageData{Icon: "❌", Title: "Approval failed", Message: appErr.Message, Color: "#dc2626"})
		return
	}

	if result.AlreadyApproved {
		ac.render(ctx, http.StatusOK, adminPageData{
			Icon:    "✅",
			Title:   "Already approved",
			Message: "This payment was already verified. No further action is needed.",
			Color:   "#2563eb",
		})
		return
	}

	msg := "Payment verified. The experience for " + result.RecipientName + " has been sent."
	if !result.EmailSent {
		msg = "Payment verified. Email delivery to " + result.RecipientName + " is delayed and will be retried."
	}
	ac.render(ctx, http.StatusOK, adminPageData{Icon: "💘", Title: "Payment approved", Message: msg, Color: "#16a34a"})
}

func (ac *AdminController) render(ctx *gin.Context, code int, data adminPageData) {
	var buf bytes.Buffer
	if err := adminPage.Execute(&buf, data); err != nil {
		ac.logger.Error("failed to render admin page", zap.Error(err))
		ctx.String(http.StatusInternalServerError, "internal error")
		return
	}
	ctx.Data(code, "text/html; charset=utf-8", buf.Bytes())
}
