package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/leokovaski/linkfono-workspace-manager/internal/clients"
	"github.com/leokovaski/linkfono-workspace-manager/internal/models"
	natsclient "github.com/leokovaski/linkfono-workspace-manager/internal/nats"
)

// WorkspaceStore is the persistence surface the services need for
// workspaces, settings and memberships.
type WorkspaceStore interface {
	CreateWorkspace(ctx context.Context, workspace *models.Workspace) error
	CreateSettings(ctx context.Context, settings *models.WorkspaceSettings) error
	CreateMember(ctx context.Context, member *models.WorkspaceMember) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Workspace, error)
	GetBySubscriptionID(ctx context.Context, subscriptionID string) (*models.Workspace, error)
	GetByCustomerID(ctx context.Context, customerID string) (*models.Workspace, error)
	ListForUser(ctx context.Context, userID uuid.UUID) ([]models.Workspace, error)
	GetMembership(ctx context.Context, workspaceID, userID uuid.UUID) (*models.WorkspaceMember, error)
	Update(ctx context.Context, workspace *models.Workspace) error
	UpdateSettings(ctx context.Context, settings *models.WorkspaceSettings) error
	AttachSubscription(ctx context.Context, workspaceID uuid.UUID, subscriptionID string, updates map[string]interface{}) error
	ApplyLifecycleUpdate(ctx context.Context, workspaceID uuid.UUID, eventTS time.Time, updates map[string]interface{}) error
	Delete(ctx context.Context, workspaceID uuid.UUID) error
}

// ProfileStore is the persistence surface for user profiles.
type ProfileStore interface {
	GetByID(ctx context.Context, userID uuid.UUID) (*models.Profile, error)
	SetStripeCustomerID(ctx context.Context, userID uuid.UUID, customerID string) error
	MarkTrialUsed(ctx context.Context, userID uuid.UUID) error
}

// Gateway is the slice of the billing provider the services use.
type Gateway interface {
	CreateCustomer(email, name, userID string) (string, error)
	GetOrCreateCustomer(existingID, email, name, userID string) (string, error)
	CreateSubscription(customerID, priceID string, trialDays int64, metadata map[string]string) (*clients.SubscriptionResult, error)
	CreateCheckoutSession(in clients.CheckoutSessionInput) (string, string, error)
	UpdateSubscriptionPrice(subscriptionID, newPriceID string) (*clients.SubscriptionResult, error)
	CancelSubscription(subscriptionID string) (*clients.SubscriptionResult, error)
	CancelSubscriptionNow(subscriptionID string) error
}

// EventDeduper records processed webhook event IDs.
type EventDeduper interface {
	MarkEventProcessed(ctx context.Context, eventID string) (bool, error)
	ClearEventProcessed(ctx context.Context, eventID string) error
}

// EventPublisher emits workspace lifecycle events to downstream consumers.
type EventPublisher interface {
	PublishWorkspaceCreated(ctx context.Context, event *natsclient.WorkspaceCreatedEvent) error
	PublishWorkspaceStatusChanged(ctx context.Context, event *natsclient.WorkspaceStatusChangedEvent) error
	PublishWorkspaceCancelled(ctx context.Context, event *natsclient.WorkspaceCancelledEvent) error
	PublishWorkspaceDeleted(ctx context.Context, event *natsclient.WorkspaceDeletedEvent) error
}
