package controllers

import (
	"net/http"

	"github.com/KaranSingh0790/Cupid-s-Arrow/internal/apperrors"
	"github.com/KaranSingh0790/Cupid-s-Arrow/internal/logger"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// respondError writes err as {"error": message} with its mapped status.
// Idempotent no-ops answer 200 so callers treat them as success.
func respondError(ctx *gin.Context, l *zap.Logger, err error) {
	appErr := apperrors.From(err)
	if apperrors.IsSuccessNoOp(appErr) {
		ctx.JSON(http.StatusOK, gin.H{"status": string(appErr.Kind), "message": appErr.Message})
		return
	}
	if appErr.Code >= http.StatusInternalServerError {
		logger.FromContext(ctx, l).Error("request failed", zap.String("path", ctx.FullPath()), zap.Error(appErr))
	}
	_ = ctx.Error(appErr)
	ctx.JSON(appErr.Code, gin.H{"error": appErr.Message})
}

// experienceID parses the :id path parameter.
func experienceID(ctx *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(ctx.Param("id"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid experience id"})
		return uuid.Nil, false
	}
	return id, true
}
