package controllers

import (
	"net/http"

	"github.com/KaranSingh0790/Cupid-s-Arrow/internal/models"
	"github.com/KaranSingh0790/Cupid-s-Arrow/internal/services"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ExperienceController serves the builder and playback endpoints.
type ExperienceController struct {
	experiences services.ExperienceService
	delivery    services.DeliveryTrigger
	logger      *zap.Logger
}

func NewExperienceController(experiences services.ExperienceService, delivery services.DeliveryTrigger, logger *zap.Logger) *ExperienceController {
	return &ExperienceController{experiences: experiences, delivery: delivery, logger: logger}
}

// Create handles POST /experiences
func (ec *ExperienceController) Create(ctx *gin.Context) {
	var req models.CreateExperienceRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}

	resp, err := ec.experiences.Create(ctx.Request.Context(), req)
	if err != nil {
		respondError(ctx, ec.logger, err)
		return
	}
	ctx.JSON(http.StatusCreated, resp)
}

// Get handles GET /experiences/:id
func (ec *ExperienceController) Get(ctx *gin.Context) {
	id, ok := experienceID(ctx)
	if !ok {
		return
	}
	exp, err := ec.experiences.Get(ctx.Request.Context(), id)
	if err != nil {
		respondError(ctx, ec.logger, err)
		return
	}
	ctx.JSON(http.StatusOK, exp)
}

// Open handles POST /experiences/:id/open
func (ec *ExperienceController) Open(ctx *gin.Context) {
	id, ok := experienceID(ctx)
	if !ok {
		return
	}
	exp, err := ec.experiences.MarkOpened(ctx.Request.Context(), id)
	if err != nil {
		respondError(ctx, ec.logger, err)
		return
	}
	ctx.JSON(http.StatusOK, exp)
}

// Respond handles POST /experiences/:id/respond
func (ec *ExperienceController) Respond(ctx *gin.Context) {
	id, ok := experienceID(ctx)
	if !ok {
		return
	}
	var req models.RespondRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "response is required"})
		return
	}
	exp, err := ec.experiences.Respond(ctx.Request.Context(), id, models.Response(req.Response))
	if err != nil {
		respondError(ctx, ec.logger, err)
		return
	}
	ctx.JSON(http.StatusOK, exp)
}

// Reply handles POST /experiences/:id/reply
func (ec *ExperienceController) Reply(ctx *gin.Context) {
	id, ok := experienceID(ctx)
	if !ok {
		return
	}
	var req models.ReplyRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "message is required"})
		return
	}
	if err := ec.experiences.Reply(ctx.Request.Context(), id, req.Message); err != nil {
		respondError(ctx, ec.logger, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"success": true})
}

// Send handles POST /experiences/:id/send, the manual resend path for a PAID experience.
func (ec *ExperienceController) Send(ctx *gin.Context) {
	id, ok := experienceID(ctx)
	if !ok {
		return
	}
	result, err := ec.delivery.Deliver(ctx.Request.Context(), id)
	if err != nil {
		respondError(ctx, ec.logger, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"success": true, "email_id": result.MessageID, "sent_at": result.SentAt})
}
