package services

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/leokovaski/linkfono-workspace-manager/internal/clients"
	"github.com/leokovaski/linkfono-workspace-manager/internal/models"
	"github.com/leokovaski/linkfono-workspace-manager/internal/plans"
	"github.com/leokovaski/linkfono-workspace-manager/internal/repository"
)

// CheckoutService opens hosted checkout sessions for deferred provisioning.
// The full workspace definition travels as subscription metadata and is
// materialized by the reconciler when checkout completes, so abandoning the
// page leaves no local rows behind.
type CheckoutService struct {
	profiles ProfileStore
	gateway  Gateway
	catalog  *plans.Catalog
	trial    *TrialService
	appURL   string
}

// NewCheckoutService creates a new checkout service
func NewCheckoutService(profiles ProfileStore, gateway Gateway, catalog *plans.Catalog, trial *TrialService, appURL string) *CheckoutService {
	return &CheckoutService{
		profiles: profiles,
		gateway:  gateway,
		catalog:  catalog,
		trial:    trial,
		appURL:   appURL,
	}
}

// CreateSessionRequest carries the workspace definition to defer behind a
// checkout session.
type CreateSessionRequest struct {
	Name                string `json:"name" binding:"required"`
	PlanType            string `json:"plan_type" binding:"required"`
	CPFCNPJ             string `json:"cpf_cnpj"`
	Address             string `json:"address"`
	Number              string `json:"number"`
	Complement          string `json:"complement"`
	Neighborhood        string `json:"neighborhood"`
	City                string `json:"city"`
	State               string `json:"state"`
	ZipCode             string `json:"zip_code"`
	AppointmentDuration int    `json:"appointment_duration"`
	ReminderHoursBefore int    `json:"reminder_hours_before"`
	SuccessURL          string `json:"success_url"`
	CancelURL           string `json:"cancel_url"`
}

// CreateSessionResponse is the hosted checkout handle returned to clients.
type CreateSessionResponse struct {
	SessionID   string `json:"session_id"`
	CheckoutURL string `json:"checkout_url"`
}

// CreateSession validates the plan, resolves the billing customer and opens
// a checkout session. Trial eligibility is stamped into the intent at
// session-creation time; the reconciler honors that stamp even if
// eligibility changes before the customer pays.
func (s *CheckoutService) CreateSession(ctx context.Context, userID uuid.UUID, req *CreateSessionRequest) (*CreateSessionResponse, error) {
	plan, ok := s.catalog.Resolve(req.PlanType)
	if !ok {
		return nil, ErrInvalidPlan
	}

	profile, err := s.profiles.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}

	eligibility, err := s.trial.CheckEligibility(ctx, userID)
	if err != nil {
		return nil, err
	}

	customerID, err := s.gateway.GetOrCreateCustomer(profile.StripeCustomerID, profile.Email, profile.FullName, userID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to resolve billing customer: %w", err)
	}
	if customerID != profile.StripeCustomerID {
		if err := s.profiles.SetStripeCustomerID(ctx, userID, customerID); err != nil {
			log.Printf("[CheckoutService] Failed to persist customer %s for user %s: %v", customerID, userID, err)
		}
	}

	intent := &models.ProvisioningIntent{
		UserID:              userID,
		PlanType:            plan.ID,
		TrialAvailable:      eligibility.TrialAvailable,
		Name:                req.Name,
		CPFCNPJ:             req.CPFCNPJ,
		Address:             req.Address,
		Number:              req.Number,
		Complement:          req.Complement,
		Neighborhood:        req.Neighborhood,
		City:                req.City,
		State:               req.State,
		ZipCode:             req.ZipCode,
		AppointmentDuration: req.AppointmentDuration,
		ReminderHoursBefore: req.ReminderHoursBefore,
	}
	encoded, err := intent.Encode()
	if err != nil {
		return nil, fmt.Errorf("failed to encode provisioning intent: %w", err)
	}

	var trialDays int64
	if eligibility.TrialAvailable {
		trialDays = TrialDays
	}

	successURL := req.SuccessURL
	if successURL == "" {
		successURL = s.appURL + "/checkout/success?session_id={CHECKOUT_SESSION_ID}"
	}
	cancelURL := req.CancelURL
	if cancelURL == "" {
		cancelURL = s.appURL + "/checkout/cancelled"
	}

	sessionID, checkoutURL, err := s.gateway.CreateCheckoutSession(clients.CheckoutSessionInput{
		CustomerID: customerID,
		PriceID:    plan.StripePriceID,
		SuccessURL: successURL,
		CancelURL:  cancelURL,
		TrialDays:  trialDays,
		Metadata: map[string]string{
			models.MetadataKeyIntent: encoded,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create checkout session: %w", err)
	}

	log.Printf("[CheckoutService] Created checkout session %s for user %s (plan=%s trial=%t)",
		sessionID, userID, plan.ID, eligibility.TrialAvailable)
	return &CreateSessionResponse{SessionID: sessionID, CheckoutURL: checkoutURL}, nil
}
