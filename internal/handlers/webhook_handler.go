package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v82"

	"github.com/leokovaski/linkfono-workspace-manager/internal/metrics"
	"github.com/leokovaski/linkfono-workspace-manager/internal/services"
)

// Stripe webhook payloads are small; cap reads to keep a hostile client
// from streaming an unbounded body.
const maxWebhookBodyBytes = 1 << 16

// SignatureVerifier authenticates a raw webhook payload.
type SignatureVerifier interface {
	VerifyEventSignature(payload []byte, sigHeader string) (stripe.Event, error)
}

// WebhookHandler receives billing events. Signature verification is the
// authentication mechanism for this endpoint; there is no other auth.
type WebhookHandler struct {
	verifier   SignatureVerifier
	reconciler *services.ReconcilerService
	metrics    *metrics.Metrics
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(verifier SignatureVerifier, reconciler *services.ReconcilerService, m *metrics.Metrics) *WebhookHandler {
	return &WebhookHandler{
		verifier:   verifier,
		reconciler: reconciler,
		metrics:    m,
	}
}

// Handle handles POST /webhooks/stripe. A bad signature is the only 400;
// recognized events that match nothing locally are still acknowledged with
// 200 so the remote side stops retrying them.
func (h *WebhookHandler) Handle(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBodyBytes))
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Failed to read request body", err)
		return
	}

	event, err := h.verifier.VerifyEventSignature(payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid webhook signature", err)
		return
	}

	outcome, err := h.reconciler.HandleEvent(c.Request.Context(), event)
	if h.metrics != nil {
		h.metrics.ObserveWebhookEvent(string(event.Type), outcome)
	}
	if err != nil {
		// 500 so the remote side redelivers; the dedup marker was cleared.
		ErrorResponse(c, http.StatusInternalServerError, "Failed to process event", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}
