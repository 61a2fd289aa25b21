package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/leokovaski/linkfono-workspace-manager/internal/middleware"
	"github.com/leokovaski/linkfono-workspace-manager/internal/services"
)

// CheckoutHandler exposes the hosted checkout endpoint.
type CheckoutHandler struct {
	checkout *services.CheckoutService
}

// NewCheckoutHandler creates a new checkout handler
func NewCheckoutHandler(checkout *services.CheckoutService) *CheckoutHandler {
	return &CheckoutHandler{checkout: checkout}
}

// CreateSession handles POST /api/v1/checkout/create-session
func (h *CheckoutHandler) CreateSession(c *gin.Context) {
	userID := middleware.GetUserID(c)
	if userID == uuid.Nil {
		ErrorResponse(c, http.StatusUnauthorized, "Authentication required", nil)
		return
	}

	var req services.CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	resp, err := h.checkout.CreateSession(c.Request.Context(), userID, &req)
	if err != nil {
		respondServiceError(c, err, "Failed to create checkout session")
		return
	}

	SuccessResponse(c, http.StatusCreated, "Checkout session created", resp)
}
