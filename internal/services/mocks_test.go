package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/leokovaski/linkfono-workspace-manager/internal/clients"
	"github.com/leokovaski/linkfono-workspace-manager/internal/models"
	natsclient "github.com/leokovaski/linkfono-workspace-manager/internal/nats"
)

// MockWorkspaceStore is a mock implementation of WorkspaceStore
type MockWorkspaceStore struct {
	mock.Mock
}

func (m *MockWorkspaceStore) CreateWorkspace(ctx context.Context, workspace *models.Workspace) error {
	args := m.Called(ctx, workspace)
	return args.Error(0)
}

func (m *MockWorkspaceStore) CreateSettings(ctx context.Context, settings *models.WorkspaceSettings) error {
	args := m.Called(ctx, settings)
	return args.Error(0)
}

func (m *MockWorkspaceStore) CreateMember(ctx context.Context, member *models.WorkspaceMember) error {
	args := m.Called(ctx, member)
	return args.Error(0)
}

func (m *MockWorkspaceStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Workspace, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Workspace), args.Error(1)
}

func (m *MockWorkspaceStore) GetBySubscriptionID(ctx context.Context, subscriptionID string) (*models.Workspace, error) {
	args := m.Called(ctx, subscriptionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Workspace), args.Error(1)
}

func (m *MockWorkspaceStore) GetByCustomerID(ctx context.Context, customerID string) (*models.Workspace, error) {
	args := m.Called(ctx, customerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Workspace), args.Error(1)
}

func (m *MockWorkspaceStore) ListForUser(ctx context.Context, userID uuid.UUID) ([]models.Workspace, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Workspace), args.Error(1)
}

func (m *MockWorkspaceStore) GetMembership(ctx context.Context, workspaceID, userID uuid.UUID) (*models.WorkspaceMember, error) {
	args := m.Called(ctx, workspaceID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.WorkspaceMember), args.Error(1)
}

func (m *MockWorkspaceStore) Update(ctx context.Context, workspace *models.Workspace) error {
	args := m.Called(ctx, workspace)
	return args.Error(0)
}

func (m *MockWorkspaceStore) UpdateSettings(ctx context.Context, settings *models.WorkspaceSettings) error {
	args := m.Called(ctx, settings)
	return args.Error(0)
}

func (m *MockWorkspaceStore) AttachSubscription(ctx context.Context, workspaceID uuid.UUID, subscriptionID string, updates map[string]interface{}) error {
	args := m.Called(ctx, workspaceID, subscriptionID, updates)
	return args.Error(0)
}

func (m *MockWorkspaceStore) ApplyLifecycleUpdate(ctx context.Context, workspaceID uuid.UUID, eventTS time.Time, updates map[string]interface{}) error {
	args := m.Called(ctx, workspaceID, eventTS, updates)
	return args.Error(0)
}

func (m *MockWorkspaceStore) Delete(ctx context.Context, workspaceID uuid.UUID) error {
	args := m.Called(ctx, workspaceID)
	return args.Error(0)
}

// MockProfileStore is a mock implementation of ProfileStore
type MockProfileStore struct {
	mock.Mock
}

func (m *MockProfileStore) GetByID(ctx context.Context, userID uuid.UUID) (*models.Profile, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Profile), args.Error(1)
}

func (m *MockProfileStore) SetStripeCustomerID(ctx context.Context, userID uuid.UUID, customerID string) error {
	args := m.Called(ctx, userID, customerID)
	return args.Error(0)
}

func (m *MockProfileStore) MarkTrialUsed(ctx context.Context, userID uuid.UUID) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

// MockGateway is a mock implementation of Gateway
type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) CreateCustomer(email, name, userID string) (string, error) {
	args := m.Called(email, name, userID)
	return args.String(0), args.Error(1)
}

func (m *MockGateway) GetOrCreateCustomer(existingID, email, name, userID string) (string, error) {
	args := m.Called(existingID, email, name, userID)
	return args.String(0), args.Error(1)
}

func (m *MockGateway) CreateSubscription(customerID, priceID string, trialDays int64, metadata map[string]string) (*clients.SubscriptionResult, error) {
	args := m.Called(customerID, priceID, trialDays, metadata)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*clients.SubscriptionResult), args.Error(1)
}

func (m *MockGateway) CreateCheckoutSession(in clients.CheckoutSessionInput) (string, string, error) {
	args := m.Called(in)
	return args.String(0), args.String(1), args.Error(2)
}

func (m *MockGateway) UpdateSubscriptionPrice(subscriptionID, newPriceID string) (*clients.SubscriptionResult, error) {
	args := m.Called(subscriptionID, newPriceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*clients.SubscriptionResult), args.Error(1)
}

func (m *MockGateway) CancelSubscription(subscriptionID string) (*clients.SubscriptionResult, error) {
	args := m.Called(subscriptionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*clients.SubscriptionResult), args.Error(1)
}

func (m *MockGateway) CancelSubscriptionNow(subscriptionID string) error {
	args := m.Called(subscriptionID)
	return args.Error(0)
}

// MockDeduper is a mock implementation of EventDeduper
type MockDeduper struct {
	mock.Mock
}

func (m *MockDeduper) MarkEventProcessed(ctx context.Context, eventID string) (bool, error) {
	args := m.Called(ctx, eventID)
	return args.Bool(0), args.Error(1)
}

func (m *MockDeduper) ClearEventProcessed(ctx context.Context, eventID string) error {
	args := m.Called(ctx, eventID)
	return args.Error(0)
}

// MockPublisher is a mock implementation of EventPublisher
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) PublishWorkspaceCreated(ctx context.Context, event *natsclient.WorkspaceCreatedEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockPublisher) PublishWorkspaceStatusChanged(ctx context.Context, event *natsclient.WorkspaceStatusChangedEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockPublisher) PublishWorkspaceCancelled(ctx context.Context, event *natsclient.WorkspaceCancelledEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockPublisher) PublishWorkspaceDeleted(ctx context.Context, event *natsclient.WorkspaceDeletedEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}
