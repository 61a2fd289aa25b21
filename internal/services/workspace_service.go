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

// WorkspaceService handles workspace reads and owner-gated mutations.
// Member-level access is enough to read; every mutation requires the
// caller to hold the owner role.
type WorkspaceService struct {
	workspaces WorkspaceStore
	gateway    Gateway
	catalog    *plans.Catalog
	events     EventPublisher
}

// NewWorkspaceService creates a new workspace service
func NewWorkspaceService(workspaces WorkspaceStore, gateway Gateway, catalog *plans.Catalog, events EventPublisher) *WorkspaceService {
	return &WorkspaceService{
		workspaces: workspaces,
		gateway:    gateway,
		catalog:    catalog,
		events:     events,
	}
}

// List returns every workspace the user is an active member of.
func (s *WorkspaceService) List(ctx context.Context, userID uuid.UUID) ([]models.Workspace, error) {
	workspaces, err := s.workspaces.ListForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list workspaces: %w", err)
	}
	return workspaces, nil
}

// Get returns a workspace the user is a member of.
func (s *WorkspaceService) Get(ctx context.Context, workspaceID, userID uuid.UUID) (*models.Workspace, error) {
	if _, err := s.requireMembership(ctx, workspaceID, userID); err != nil {
		return nil, err
	}

	workspace, err := s.workspaces.GetByID(ctx, workspaceID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrWorkspaceNotFound
		}
		return nil, fmt.Errorf("failed to get workspace: %w", err)
	}
	return workspace, nil
}

// UpdateWorkspaceRequest carries the mutable workspace fields. Nil pointers
// leave the field untouched.
type UpdateWorkspaceRequest struct {
	Name         *string `json:"name"`
	CPFCNPJ      *string `json:"cpf_cnpj"`
	Address      *string `json:"address"`
	Number       *string `json:"number"`
	Complement   *string `json:"complement"`
	Neighborhood *string `json:"neighborhood"`
	City         *string `json:"city"`
	State        *string `json:"state"`
	ZipCode      *string `json:"zip_code"`
}

// Update applies field changes. Owner only.
func (s *WorkspaceService) Update(ctx context.Context, workspaceID, userID uuid.UUID, req *UpdateWorkspaceRequest) (*models.Workspace, error) {
	workspace, err := s.requireOwnedWorkspace(ctx, workspaceID, userID)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		workspace.Name = *req.Name
	}
	if req.CPFCNPJ != nil {
		workspace.CPFCNPJ = *req.CPFCNPJ
	}
	if req.Address != nil {
		workspace.Address = *req.Address
	}
	if req.Number != nil {
		workspace.Number = *req.Number
	}
	if req.Complement != nil {
		workspace.Complement = *req.Complement
	}
	if req.Neighborhood != nil {
		workspace.Neighborhood = *req.Neighborhood
	}
	if req.City != nil {
		workspace.City = *req.City
	}
	if req.State != nil {
		workspace.State = *req.State
	}
	if req.ZipCode != nil {
		workspace.ZipCode = *req.ZipCode
	}

	if err := s.workspaces.Update(ctx, workspace); err != nil {
		return nil, fmt.Errorf("failed to update workspace: %w", err)
	}
	return workspace, nil
}

// UpdateSettingsRequest carries mutable settings fields.
type UpdateSettingsRequest struct {
	AppointmentDuration *int  `json:"appointment_duration"`
	ReminderHoursBefore *int  `json:"reminder_hours_before"`
	AllowOnlineBooking  *bool `json:"allow_online_booking"`
}

// UpdateSettings applies settings changes. Owner only.
func (s *WorkspaceService) UpdateSettings(ctx context.Context, workspaceID, userID uuid.UUID, req *UpdateSettingsRequest) (*models.WorkspaceSettings, error) {
	workspace, err := s.requireOwnedWorkspace(ctx, workspaceID, userID)
	if err != nil {
		return nil, err
	}
	if workspace.Settings == nil {
		workspace.Settings = &models.WorkspaceSettings{
			WorkspaceID:         workspace.ID,
			AppointmentDuration: 50,
			ReminderHoursBefore: 24,
		}
	}

	settings := workspace.Settings
	if req.AppointmentDuration != nil {
		settings.AppointmentDuration = *req.AppointmentDuration
	}
	if req.ReminderHoursBefore != nil {
		settings.ReminderHoursBefore = *req.ReminderHoursBefore
	}
	if req.AllowOnlineBooking != nil {
		settings.AllowOnlineBooking = *req.AllowOnlineBooking
	}

	if err := s.workspaces.UpdateSettings(ctx, settings); err != nil {
		return nil, fmt.Errorf("failed to update settings: %w", err)
	}
	return settings, nil
}

// ChangePlan swaps the workspace onto a different plan. The remote
// subscription is updated first; only after that succeeds are the local
// plan type and denormalized limits rewritten, so a remote failure leaves
// the row untouched.
func (s *WorkspaceService) ChangePlan(ctx context.Context, workspaceID, userID uuid.UUID, newPlanType string) (*models.Workspace, error) {
	plan, ok := s.catalog.Resolve(newPlanType)
	if !ok {
		return nil, ErrInvalidPlan
	}

	workspace, err := s.requireOwnedWorkspace(ctx, workspaceID, userID)
	if err != nil {
		return nil, err
	}

	if workspace.PlanType == plan.ID {
		return nil, ErrSamePlan
	}
	if workspace.StripeSubscriptionID == "" {
		return nil, ErrNoSubscription
	}

	sub, err := s.gateway.UpdateSubscriptionPrice(workspace.StripeSubscriptionID, plan.StripePriceID)
	if err != nil {
		return nil, fmt.Errorf("failed to update remote subscription: %w", err)
	}

	workspace.PlanType = plan.ID
	workspace.MaxPatients = plan.MaxPatients
	workspace.MaxMembers = plan.MaxMembers
	if sub.CurrentPeriodEnd > 0 {
		periodEnd := time.Unix(sub.CurrentPeriodEnd, 0).UTC()
		workspace.SubscriptionEndsAt = &periodEnd
	}

	if err := s.workspaces.Update(ctx, workspace); err != nil {
		return nil, fmt.Errorf("failed to persist plan change: %w", err)
	}

	log.Printf("[WorkspaceService] Workspace %s changed plan to %s", workspace.ID, plan.ID)
	return workspace, nil
}

// Delete soft-deletes a workspace: status flips to cancelled and the remote
// subscription is cancelled immediately, best effort. The row is kept for
// audit and possible reactivation.
func (s *WorkspaceService) Delete(ctx context.Context, workspaceID, userID uuid.UUID) error {
	workspace, err := s.requireOwnedWorkspace(ctx, workspaceID, userID)
	if err != nil {
		return err
	}

	if workspace.StripeSubscriptionID != "" {
		if err := s.gateway.CancelSubscriptionNow(workspace.StripeSubscriptionID); err != nil {
			log.Printf("[WorkspaceService] Failed to cancel remote subscription %s: %v", workspace.StripeSubscriptionID, err)
		}
	}

	workspace.Status = models.StatusCancelled
	if err := s.workspaces.Update(ctx, workspace); err != nil {
		return fmt.Errorf("failed to cancel workspace: %w", err)
	}

	if s.events != nil {
		if err := s.events.PublishWorkspaceDeleted(ctx, &natsclient.WorkspaceDeletedEvent{
			WorkspaceID: workspace.ID.String(),
			OwnerID:     userID.String(),
		}); err != nil {
			log.Printf("[WorkspaceService] Failed to publish workspace.deleted: %v", err)
		}
	}

	log.Printf("[WorkspaceService] Workspace %s cancelled by owner %s", workspace.ID, userID)
	return nil
}

// CancelSubscription schedules cancellation at period end, keeping the
// workspace active until then. Owner only.
func (s *WorkspaceService) CancelSubscription(ctx context.Context, workspaceID, userID uuid.UUID) (*models.Workspace, error) {
	workspace, err := s.requireOwnedWorkspace(ctx, workspaceID, userID)
	if err != nil {
		return nil, err
	}
	if workspace.StripeSubscriptionID == "" {
		return nil, ErrNoSubscription
	}

	sub, err := s.gateway.CancelSubscription(workspace.StripeSubscriptionID)
	if err != nil {
		return nil, fmt.Errorf("failed to cancel remote subscription: %w", err)
	}

	if sub.CurrentPeriodEnd > 0 {
		periodEnd := time.Unix(sub.CurrentPeriodEnd, 0).UTC()
		workspace.SubscriptionEndsAt = &periodEnd
	}
	if err := s.workspaces.Update(ctx, workspace); err != nil {
		return nil, fmt.Errorf("failed to persist cancellation: %w", err)
	}

	if s.events != nil {
		endsAt := time.Time{}
		if workspace.SubscriptionEndsAt != nil {
			endsAt = *workspace.SubscriptionEndsAt
		}
		if err := s.events.PublishWorkspaceCancelled(ctx, &natsclient.WorkspaceCancelledEvent{
			WorkspaceID: workspace.ID.String(),
			PlanType:    workspace.PlanType,
			EndsAt:      endsAt,
		}); err != nil {
			log.Printf("[WorkspaceService] Failed to publish workspace.cancelled: %v", err)
		}
	}

	log.Printf("[WorkspaceService] Subscription for workspace %s scheduled for cancellation", workspace.ID)
	return workspace, nil
}

// requireMembership loads the caller's active membership or fails with
// ErrWorkspaceNotFound. A 404 rather than 403 for non-members avoids
// leaking workspace existence.
func (s *WorkspaceService) requireMembership(ctx context.Context, workspaceID, userID uuid.UUID) (*models.WorkspaceMember, error) {
	member, err := s.workspaces.GetMembership(ctx, workspaceID, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrWorkspaceNotFound
		}
		return nil, fmt.Errorf("failed to check membership: %w", err)
	}
	return member, nil
}

// requireOwnedWorkspace loads the workspace and verifies the caller is its
// owner. Members without the owner role get ErrForbidden.
func (s *WorkspaceService) requireOwnedWorkspace(ctx context.Context, workspaceID, userID uuid.UUID) (*models.Workspace, error) {
	member, err := s.requireMembership(ctx, workspaceID, userID)
	if err != nil {
		return nil, err
	}
	if !member.IsOwner() {
		return nil, ErrForbidden
	}

	workspace, err := s.workspaces.GetByID(ctx, workspaceID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrWorkspaceNotFound
		}
		return nil, fmt.Errorf("failed to get workspace: %w", err)
	}
	return workspace, nil
}
