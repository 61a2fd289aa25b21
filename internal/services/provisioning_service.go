package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/leokovaski/linkfono-workspace-manager/internal/models"
	natsclient "github.com/leokovaski/linkfono-workspace-manager/internal/nats"
	"github.com/leokovaski/linkfono-workspace-manager/internal/plans"
	"github.com/leokovaski/linkfono-workspace-manager/internal/repository"
)

// ProvisioningService creates a workspace together with its billing
// subscription in one operation. The remote subscription is created first;
// if any local insert fails afterwards the local rows are compensated away
// and the remote objects are left for support tooling to reap, with their
// IDs logged.
type ProvisioningService struct {
	workspaces WorkspaceStore
	profiles   ProfileStore
	gateway    Gateway
	catalog    *plans.Catalog
	trial      *TrialService
	events     EventPublisher
}

// NewProvisioningService creates a new provisioning service
func NewProvisioningService(workspaces WorkspaceStore, profiles ProfileStore, gateway Gateway, catalog *plans.Catalog, trial *TrialService, events EventPublisher) *ProvisioningService {
	return &ProvisioningService{
		workspaces: workspaces,
		profiles:   profiles,
		gateway:    gateway,
		catalog:    catalog,
		trial:      trial,
		events:     events,
	}
}

// CreateWorkspaceRequest carries the workspace fields for direct
// provisioning.
type CreateWorkspaceRequest struct {
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
}

// Provision implements the direct provisioning path: remote customer and
// subscription first, then workspace, settings and owner membership. Plan
// validation happens before any remote call.
func (s *ProvisioningService) Provision(ctx context.Context, userID uuid.UUID, req *CreateWorkspaceRequest) (*models.Workspace, error) {
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
			log.Printf("[ProvisioningService] Failed to persist customer %s for user %s: %v", customerID, userID, err)
		}
	}

	var trialDays int64
	if eligibility.TrialAvailable {
		trialDays = TrialDays
	}

	sub, err := s.gateway.CreateSubscription(customerID, plan.StripePriceID, trialDays, map[string]string{
		"user_id":        userID.String(),
		"workspace_name": req.Name,
		"plan_type":      plan.ID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create subscription: %w", err)
	}

	now := time.Now().UTC()
	status := models.StatusPaymentPending
	if eligibility.TrialAvailable {
		status = models.StatusTrial
	}

	workspace := &models.Workspace{
		Name:                 req.Name,
		OwnerID:              userID,
		CPFCNPJ:              req.CPFCNPJ,
		Address:              req.Address,
		Number:               req.Number,
		Complement:           req.Complement,
		Neighborhood:         req.Neighborhood,
		City:                 req.City,
		State:                req.State,
		ZipCode:              req.ZipCode,
		Status:               status,
		PlanType:             plan.ID,
		StripeCustomerID:     customerID,
		StripeSubscriptionID: sub.ID,
		TrialEndsAt:          TrialEnd(now, trialDays),
		MaxPatients:          plan.MaxPatients,
		MaxMembers:           plan.MaxMembers,
	}
	if sub.CurrentPeriodEnd > 0 {
		periodEnd := time.Unix(sub.CurrentPeriodEnd, 0).UTC()
		workspace.SubscriptionEndsAt = &periodEnd
	}

	if err := s.workspaces.CreateWorkspace(ctx, workspace); err != nil {
		s.abandonRemote(customerID, sub.ID)
		return nil, fmt.Errorf("failed to create workspace: %w", err)
	}

	settings := &models.WorkspaceSettings{
		WorkspaceID:         workspace.ID,
		AppointmentDuration: defaultInt(req.AppointmentDuration, 50),
		ReminderHoursBefore: defaultInt(req.ReminderHoursBefore, 24),
		AllowOnlineBooking:  false,
	}
	if err := s.workspaces.CreateSettings(ctx, settings); err != nil {
		s.compensate(ctx, workspace.ID, customerID, sub.ID)
		return nil, fmt.Errorf("failed to create workspace settings: %w", err)
	}

	owner := &models.WorkspaceMember{
		WorkspaceID: workspace.ID,
		UserID:      userID,
		Role:        models.RoleOwner,
		IsActive:    true,
	}
	if err := s.workspaces.CreateMember(ctx, owner); err != nil {
		s.compensate(ctx, workspace.ID, customerID, sub.ID)
		return nil, fmt.Errorf("failed to create owner membership: %w", err)
	}

	if eligibility.TrialAvailable {
		if err := s.trial.Consume(ctx, userID); err != nil {
			log.Printf("[ProvisioningService] Failed to consume trial for user %s: %v", userID, err)
		}
	}

	workspace.Settings = settings
	workspace.Members = []models.WorkspaceMember{*owner}

	if s.events != nil {
		if err := s.events.PublishWorkspaceCreated(ctx, &natsclient.WorkspaceCreatedEvent{
			WorkspaceID: workspace.ID.String(),
			OwnerID:     userID.String(),
			Name:        workspace.Name,
			PlanType:    workspace.PlanType,
			Status:      workspace.Status,
		}); err != nil {
			log.Printf("[ProvisioningService] Failed to publish workspace.created: %v", err)
		}
	}

	log.Printf("[ProvisioningService] Provisioned workspace %s (plan=%s status=%s) for user %s",
		workspace.ID, workspace.PlanType, workspace.Status, userID)
	return workspace, nil
}

// compensate removes the partially created local rows after a mid-flight
// failure. The remote customer and subscription stay behind; their IDs are
// logged so they can be reaped out of band.
func (s *ProvisioningService) compensate(ctx context.Context, workspaceID uuid.UUID, customerID, subscriptionID string) {
	if err := s.workspaces.Delete(ctx, workspaceID); err != nil {
		log.Printf("[ProvisioningService] Compensation failed for workspace %s: %v", workspaceID, err)
	}
	s.abandonRemote(customerID, subscriptionID)
}

func (s *ProvisioningService) abandonRemote(customerID, subscriptionID string) {
	log.Printf("[ProvisioningService] Orphaned remote objects after local failure: customer=%s subscription=%s", customerID, subscriptionID)
}

func defaultInt(v, fallback int) int {
	if v <= 0 {
		return fallback
	}
	return v
}
