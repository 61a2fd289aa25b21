package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/leokovaski/linkfono-workspace-manager/internal/plans"
)

// PlanHandler serves the plan catalog for the signup wizard.
type PlanHandler struct {
	catalog *plans.Catalog
}

// NewPlanHandler creates a new plan handler
func NewPlanHandler(catalog *plans.Catalog) *PlanHandler {
	return &PlanHandler{catalog: catalog}
}

// List handles GET /api/v1/plans
func (h *PlanHandler) List(c *gin.Context) {
	SuccessResponse(c, http.StatusOK, "Plans retrieved", h.catalog.List())
}
