package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/leokovaski/linkfono-workspace-manager/internal/middleware"
	"github.com/leokovaski/linkfono-workspace-manager/internal/services"
)

// WorkspaceHandler exposes workspace CRUD and lifecycle endpoints.
type WorkspaceHandler struct {
	provisioning *services.ProvisioningService
	workspaces   *services.WorkspaceService
}

// NewWorkspaceHandler creates a new workspace handler
func NewWorkspaceHandler(provisioning *services.ProvisioningService, workspaces *services.WorkspaceService) *WorkspaceHandler {
	return &WorkspaceHandler{
		provisioning: provisioning,
		workspaces:   workspaces,
	}
}

// Create handles POST /api/v1/workspaces
func (h *WorkspaceHandler) Create(c *gin.Context) {
	userID := middleware.GetUserID(c)
	if userID == uuid.Nil {
		ErrorResponse(c, http.StatusUnauthorized, "Authentication required", nil)
		return
	}

	var req services.CreateWorkspaceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	workspace, err := h.provisioning.Provision(c.Request.Context(), userID, &req)
	if err != nil {
		respondServiceError(c, err, "Failed to create workspace")
		return
	}

	SuccessResponse(c, http.StatusCreated, "Workspace created", workspace)
}

// List handles GET /api/v1/workspaces
func (h *WorkspaceHandler) List(c *gin.Context) {
	userID := middleware.GetUserID(c)
	if userID == uuid.Nil {
		ErrorResponse(c, http.StatusUnauthorized, "Authentication required", nil)
		return
	}

	workspaces, err := h.workspaces.List(c.Request.Context(), userID)
	if err != nil {
		respondServiceError(c, err, "Failed to list workspaces")
		return
	}

	SuccessResponse(c, http.StatusOK, "Workspaces retrieved", workspaces)
}

// Get handles GET /api/v1/workspaces/:id
func (h *WorkspaceHandler) Get(c *gin.Context) {
	userID, workspaceID, ok := h.identify(c)
	if !ok {
		return
	}

	workspace, err := h.workspaces.Get(c.Request.Context(), workspaceID, userID)
	if err != nil {
		respondServiceError(c, err, "Failed to get workspace")
		return
	}

	SuccessResponse(c, http.StatusOK, "Workspace retrieved", workspace)
}

// Update handles PATCH /api/v1/workspaces/:id
func (h *WorkspaceHandler) Update(c *gin.Context) {
	userID, workspaceID, ok := h.identify(c)
	if !ok {
		return
	}

	var req services.UpdateWorkspaceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	workspace, err := h.workspaces.Update(c.Request.Context(), workspaceID, userID, &req)
	if err != nil {
		respondServiceError(c, err, "Failed to update workspace")
		return
	}

	SuccessResponse(c, http.StatusOK, "Workspace updated", workspace)
}

// UpdateSettings handles PATCH /api/v1/workspaces/:id/settings
func (h *WorkspaceHandler) UpdateSettings(c *gin.Context) {
	userID, workspaceID, ok := h.identify(c)
	if !ok {
		return
	}

	var req services.UpdateSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	settings, err := h.workspaces.UpdateSettings(c.Request.Context(), workspaceID, userID, &req)
	if err != nil {
		respondServiceError(c, err, "Failed to update settings")
		return
	}

	SuccessResponse(c, http.StatusOK, "Settings updated", settings)
}

// ChangePlanRequest carries the target plan.
type ChangePlanRequest struct {
	PlanType string `json:"plan_type" binding:"required"`
}

// ChangePlan handles POST /api/v1/workspaces/:id/change-plan
func (h *WorkspaceHandler) ChangePlan(c *gin.Context) {
	userID, workspaceID, ok := h.identify(c)
	if !ok {
		return
	}

	var req ChangePlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	workspace, err := h.workspaces.ChangePlan(c.Request.Context(), workspaceID, userID, req.PlanType)
	if err != nil {
		respondServiceError(c, err, "Failed to change plan")
		return
	}

	SuccessResponse(c, http.StatusOK, "Plan changed", workspace)
}

// CancelSubscription handles POST /api/v1/workspaces/:id/cancel-subscription
func (h *WorkspaceHandler) CancelSubscription(c *gin.Context) {
	userID, workspaceID, ok := h.identify(c)
	if !ok {
		return
	}

	workspace, err := h.workspaces.CancelSubscription(c.Request.Context(), workspaceID, userID)
	if err != nil {
		respondServiceError(c, err, "Failed to cancel subscription")
		return
	}

	SuccessResponse(c, http.StatusOK, "Subscription cancellation scheduled", workspace)
}

// Delete handles DELETE /api/v1/workspaces/:id
func (h *WorkspaceHandler) Delete(c *gin.Context) {
	userID, workspaceID, ok := h.identify(c)
	if !ok {
		return
	}

	if err := h.workspaces.Delete(c.Request.Context(), workspaceID, userID); err != nil {
		respondServiceError(c, err, "Failed to delete workspace")
		return
	}

	SuccessResponse(c, http.StatusOK, "Workspace cancelled", nil)
}

func (h *WorkspaceHandler) identify(c *gin.Context) (userID, workspaceID uuid.UUID, ok bool) {
	userID = middleware.GetUserID(c)
	if userID == uuid.Nil {
		ErrorResponse(c, http.StatusUnauthorized, "Authentication required", nil)
		return uuid.Nil, uuid.Nil, false
	}

	workspaceID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid workspace id", err)
		return uuid.Nil, uuid.Nil, false
	}

	return userID, workspaceID, true
}

// respondServiceError maps service sentinel errors to HTTP statuses.
func respondServiceError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, services.ErrForbidden):
		ErrorResponse(c, http.StatusForbidden, "Only the workspace owner can perform this action", err)
	case errors.Is(err, services.ErrWorkspaceNotFound):
		ErrorResponse(c, http.StatusNotFound, "Workspace not found", err)
	case errors.Is(err, services.ErrProfileNotFound):
		ErrorResponse(c, http.StatusNotFound, "User profile not found", err)
	case errors.Is(err, services.ErrInvalidPlan):
		ErrorResponse(c, http.StatusBadRequest, "Invalid plan type", err)
	case errors.Is(err, services.ErrSamePlan):
		ErrorResponse(c, http.StatusBadRequest, "Workspace is already on this plan", err)
	case errors.Is(err, services.ErrNoSubscription):
		ErrorResponse(c, http.StatusBadRequest, "Workspace has no subscription", err)
	case errors.Is(err, services.ErrMembershipNotFound):
		ErrorResponse(c, http.StatusNotFound, "Workspace not found", err)
	default:
		ErrorResponse(c, http.StatusInternalServerError, fallback, err)
	}
}
