package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/leokovaski/linkfono-workspace-manager/internal/middleware"
	"github.com/leokovaski/linkfono-workspace-manager/internal/services"
)

// TrialHandler exposes trial eligibility.
type TrialHandler struct {
	trial *services.TrialService
}

// NewTrialHandler creates a new trial handler
func NewTrialHandler(trial *services.TrialService) *TrialHandler {
	return &TrialHandler{trial: trial}
}

// Status handles GET /api/v1/users/me/trial-status
func (h *TrialHandler) Status(c *gin.Context) {
	userID := middleware.GetUserID(c)
	if userID == uuid.Nil {
		ErrorResponse(c, http.StatusUnauthorized, "Authentication required", nil)
		return
	}

	status, err := h.trial.CheckEligibility(c.Request.Context(), userID)
	if err != nil {
		respondServiceError(c, err, "Failed to check trial status")
		return
	}

	SuccessResponse(c, http.StatusOK, "Trial status retrieved", status)
}
