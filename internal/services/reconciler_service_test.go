package services

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82"

	"github.com/leokovaski/linkfono-workspace-manager/internal/models"
	"github.com/leokovaski/linkfono-workspace-manager/internal/plans"
	"github.com/leokovaski/linkfono-workspace-manager/internal/repository"
)

func newReconcilerFixture() (*MockWorkspaceStore, *MockProfileStore, *MockDeduper, *ReconcilerService) {
	workspaces := new(MockWorkspaceStore)
	profiles := new(MockProfileStore)
	dedup := new(MockDeduper)
	catalog := plans.NewCatalog()
	trial := NewTrialService(profiles)
	svc := NewReconcilerService(workspaces, profiles, catalog, trial, dedup, nil)
	return workspaces, profiles, dedup, svc
}

func makeEvent(t *testing.T, eventType string, payload interface{}) stripe.Event {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return stripe.Event{
		ID:      "evt_" + uuid.NewString(),
		Type:    stripe.EventType(eventType),
		Created: time.Now().Unix(),
		Data:    &stripe.EventData{Raw: raw},
	}
}

func TestMapSubscriptionStatusTotal(t *testing.T) {
	cases := map[string]string{
		"active":             models.StatusActive,
		"trialing":           models.StatusTrial,
		"past_due":           models.StatusPaymentPending,
		"canceled":           models.StatusCancelled,
		"unpaid":             models.StatusCancelled,
		"incomplete":         models.StatusPaymentPending,
		"incomplete_expired": models.StatusPaymentPending,
		"paused":             models.StatusInactive,
		"":                   models.StatusInactive,
		"something_new":      models.StatusInactive,
	}
	for remote, want := range cases {
		assert.Equal(t, want, MapSubscriptionStatus(remote), "remote status %q", remote)
	}
}

func TestReconcilerDuplicateEventIsNoOp(t *testing.T) {
	workspaces, _, dedup, svc := newReconcilerFixture()
	event := makeEvent(t, EventSubscriptionUpdated, map[string]interface{}{"id": "sub_1", "status": "active"})
	dedup.On("MarkEventProcessed", mock.Anything, event.ID).Return(false, nil)

	outcome, err := svc.HandleEvent(context.Background(), event)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, outcome)
	workspaces.AssertNotCalled(t, "ApplyLifecycleUpdate", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestReconcilerUnknownEventTypeAcked(t *testing.T) {
	workspaces, _, dedup, svc := newReconcilerFixture()
	event := makeEvent(t, "customer.created", map[string]interface{}{"id": "cus_1"})
	dedup.On("MarkEventProcessed", mock.Anything, event.ID).Return(true, nil)

	outcome, err := svc.HandleEvent(context.Background(), event)
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, outcome)
	workspaces.AssertExpectations(t)
}

func TestReconcilerSubscriptionUpdatedApplied(t *testing.T) {
	workspaces, _, dedup, svc := newReconcilerFixture()
	wsID := uuid.New()
	event := makeEvent(t, EventSubscriptionUpdated, map[string]interface{}{
		"id":     "sub_1",
		"status": "past_due",
		"items": map[string]interface{}{
			"data": []map[string]interface{}{{"current_period_end": 1900000000}},
		},
	})

	dedup.On("MarkEventProcessed", mock.Anything, event.ID).Return(true, nil)
	workspaces.On("GetBySubscriptionID", mock.Anything, "sub_1").Return(&models.Workspace{
		ID: wsID, Status: models.StatusActive, PlanType: plans.PlanIndividual,
	}, nil)
	workspaces.On("ApplyLifecycleUpdate", mock.Anything, wsID, mock.AnythingOfType("time.Time"), mock.MatchedBy(func(u map[string]interface{}) bool {
		return u["status"] == models.StatusPaymentPending && u["subscription_ends_at"] != nil
	})).Return(nil)

	outcome, err := svc.HandleEvent(context.Background(), event)
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, outcome)
	workspaces.AssertExpectations(t)
}

func TestReconcilerStaleEventRejected(t *testing.T) {
	workspaces, _, dedup, svc := newReconcilerFixture()
	wsID := uuid.New()
	event := makeEvent(t, EventSubscriptionUpdated, map[string]interface{}{"id": "sub_1", "status": "active"})

	dedup.On("MarkEventProcessed", mock.Anything, event.ID).Return(true, nil)
	workspaces.On("GetBySubscriptionID", mock.Anything, "sub_1").Return(&models.Workspace{
		ID: wsID, Status: models.StatusCancelled,
	}, nil)
	workspaces.On("ApplyLifecycleUpdate", mock.Anything, wsID, mock.AnythingOfType("time.Time"), mock.Anything).Return(repository.ErrStaleEvent)

	outcome, err := svc.HandleEvent(context.Background(), event)
	require.NoError(t, err)
	assert.Equal(t, OutcomeStale, outcome)
}

func TestReconcilerSubscriptionDeletedForcesCancelled(t *testing.T) {
	workspaces, _, dedup, svc := newReconcilerFixture()
	wsID := uuid.New()
	event := makeEvent(t, EventSubscriptionDeleted, map[string]interface{}{"id": "sub_1", "status": "active"})

	dedup.On("MarkEventProcessed", mock.Anything, event.ID).Return(true, nil)
	workspaces.On("GetBySubscriptionID", mock.Anything, "sub_1").Return(&models.Workspace{
		ID: wsID, Status: models.StatusActive,
	}, nil)
	workspaces.On("ApplyLifecycleUpdate", mock.Anything, wsID, mock.AnythingOfType("time.Time"), mock.MatchedBy(func(u map[string]interface{}) bool {
		return u["status"] == models.StatusCancelled
	})).Return(nil)

	outcome, err := svc.HandleEvent(context.Background(), event)
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, outcome)
}

func TestReconcilerInvoiceWithoutSubscriptionIgnored(t *testing.T) {
	workspaces, _, dedup, svc := newReconcilerFixture()
	event := makeEvent(t, EventInvoicePaid, map[string]interface{}{"id": "in_1", "customer": "cus_1"})
	dedup.On("MarkEventProcessed", mock.Anything, event.ID).Return(true, nil)

	outcome, err := svc.HandleEvent(context.Background(), event)
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, outcome)
	workspaces.AssertNotCalled(t, "GetBySubscriptionID", mock.Anything, mock.Anything)
}

func TestReconcilerInvoicePaidForcesActive(t *testing.T) {
	workspaces, _, dedup, svc := newReconcilerFixture()
	wsID := uuid.New()
	event := makeEvent(t, EventInvoicePaid, map[string]interface{}{
		"id": "in_1", "subscription": "sub_1",
	})

	dedup.On("MarkEventProcessed", mock.Anything, event.ID).Return(true, nil)
	workspaces.On("GetBySubscriptionID", mock.Anything, "sub_1").Return(&models.Workspace{
		ID: wsID, Status: models.StatusPaymentPending,
	}, nil)
	workspaces.On("ApplyLifecycleUpdate", mock.Anything, wsID, mock.AnythingOfType("time.Time"), mock.MatchedBy(func(u map[string]interface{}) bool {
		return u["status"] == models.StatusActive
	})).Return(nil)

	outcome, err := svc.HandleEvent(context.Background(), event)
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, outcome)
}

func TestReconcilerInvoiceFailedForcesPaymentPending(t *testing.T) {
	workspaces, _, dedup, svc := newReconcilerFixture()
	wsID := uuid.New()
	event := makeEvent(t, EventInvoiceFailed, map[string]interface{}{
		"id": "in_2", "parent": map[string]interface{}{
			"subscription_details": map[string]interface{}{"subscription": "sub_2"},
		},
	})

	dedup.On("MarkEventProcessed", mock.Anything, event.ID).Return(true, nil)
	workspaces.On("GetBySubscriptionID", mock.Anything, "sub_2").Return(&models.Workspace{
		ID: wsID, Status: models.StatusActive,
	}, nil)
	workspaces.On("ApplyLifecycleUpdate", mock.Anything, wsID, mock.AnythingOfType("time.Time"), mock.MatchedBy(func(u map[string]interface{}) bool {
		return u["status"] == models.StatusPaymentPending
	})).Return(nil)

	outcome, err := svc.HandleEvent(context.Background(), event)
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, outcome)
}

func TestReconcilerNoMatchingWorkspaceAcked(t *testing.T) {
	workspaces, _, dedup, svc := newReconcilerFixture()
	event := makeEvent(t, EventSubscriptionUpdated, map[string]interface{}{"id": "sub_missing", "status": "active"})

	dedup.On("MarkEventProcessed", mock.Anything, event.ID).Return(true, nil)
	workspaces.On("GetBySubscriptionID", mock.Anything, "sub_missing").Return(nil, repository.ErrNotFound)

	outcome, err := svc.HandleEvent(context.Background(), event)
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoMatch, outcome)
	workspaces.AssertNotCalled(t, "ApplyLifecycleUpdate", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestReconcilerCheckoutCompletedProvisionsFromIntent(t *testing.T) {
	workspaces, profiles, dedup, svc := newReconcilerFixture()
	userID := uuid.New()

	intent := &models.ProvisioningIntent{
		UserID:         userID,
		PlanType:       plans.PlanFonoPlus,
		TrialAvailable: true,
		Name:           "Clinica Webhook",
	}
	encoded, err := intent.Encode()
	require.NoError(t, err)

	event := makeEvent(t, EventCheckoutCompleted, map[string]interface{}{
		"id":           "cs_1",
		"mode":         "subscription",
		"customer":     "cus_1",
		"subscription": "sub_new",
		"metadata":     map[string]string{models.MetadataKeyIntent: encoded},
	})

	dedup.On("MarkEventProcessed", mock.Anything, event.ID).Return(true, nil)
	workspaces.On("GetBySubscriptionID", mock.Anything, "sub_new").Return(nil, repository.ErrNotFound)
	workspaces.On("CreateWorkspace", mock.Anything, mock.MatchedBy(func(ws *models.Workspace) bool {
		return ws.Status == models.StatusTrial &&
			ws.PlanType == plans.PlanFonoPlus &&
			ws.StripeSubscriptionID == "sub_new" &&
			ws.StripeCustomerID == "cus_1" &&
			ws.MaxPatients == 30
	})).Return(nil).Run(func(args mock.Arguments) {
		args.Get(1).(*models.Workspace).ID = uuid.New()
	})
	workspaces.On("CreateSettings", mock.Anything, mock.AnythingOfType("*models.WorkspaceSettings")).Return(nil)
	workspaces.On("CreateMember", mock.Anything, mock.MatchedBy(func(m *models.WorkspaceMember) bool {
		return m.UserID == userID && m.Role == models.RoleOwner
	})).Return(nil)
	profiles.On("MarkTrialUsed", mock.Anything, userID).Return(nil)

	outcome, err := svc.HandleEvent(context.Background(), event)
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, outcome)
	workspaces.AssertExpectations(t)
	profiles.AssertExpectations(t)
}

func TestReconcilerCheckoutCompletedRedeliveryIsNoOp(t *testing.T) {
	workspaces, _, dedup, svc := newReconcilerFixture()
	userID := uuid.New()

	intent := &models.ProvisioningIntent{
		UserID:   userID,
		PlanType: plans.PlanIndividual,
		Name:     "Clinica Redelivery",
	}
	encoded, err := intent.Encode()
	require.NoError(t, err)

	event := makeEvent(t, EventCheckoutCompleted, map[string]interface{}{
		"id":           "cs_2",
		"customer":     "cus_2",
		"subscription": "sub_done",
		"metadata":     map[string]string{models.MetadataKeyIntent: encoded},
	})

	dedup.On("MarkEventProcessed", mock.Anything, event.ID).Return(true, nil)
	workspaces.On("GetBySubscriptionID", mock.Anything, "sub_done").Return(&models.Workspace{ID: uuid.New()}, nil)

	outcome, err := svc.HandleEvent(context.Background(), event)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, outcome)
	workspaces.AssertNotCalled(t, "CreateWorkspace", mock.Anything, mock.Anything)
}

func TestReconcilerCheckoutMalformedIntentDropped(t *testing.T) {
	workspaces, _, dedup, svc := newReconcilerFixture()
	event := makeEvent(t, EventCheckoutCompleted, map[string]interface{}{
		"id":           "cs_3",
		"customer":     "cus_3",
		"subscription": "sub_3",
		"metadata":     map[string]string{models.MetadataKeyIntent: "{not json"},
	})
	dedup.On("MarkEventProcessed", mock.Anything, event.ID).Return(true, nil)

	outcome, err := svc.HandleEvent(context.Background(), event)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDropped, outcome)
	workspaces.AssertNotCalled(t, "CreateWorkspace", mock.Anything, mock.Anything)
}

func TestReconcilerCheckoutWithoutTrialExpiresImmediately(t *testing.T) {
	workspaces, _, dedup, svc := newReconcilerFixture()
	userID := uuid.New()

	intent := &models.ProvisioningIntent{
		UserID:         userID,
		PlanType:       plans.PlanIndividual,
		TrialAvailable: false,
		Name:           "Clinica Sem Trial",
	}
	encoded, err := intent.Encode()
	require.NoError(t, err)

	event := makeEvent(t, EventCheckoutCompleted, map[string]interface{}{
		"id":           "cs_5",
		"customer":     "cus_5",
		"subscription": "sub_5",
		"metadata":     map[string]string{models.MetadataKeyIntent: encoded},
	})

	dedup.On("MarkEventProcessed", mock.Anything, event.ID).Return(true, nil)
	workspaces.On("GetBySubscriptionID", mock.Anything, "sub_5").Return(nil, repository.ErrNotFound)
	var created *models.Workspace
	workspaces.On("CreateWorkspace", mock.Anything, mock.AnythingOfType("*models.Workspace")).Return(nil).Run(func(args mock.Arguments) {
		created = args.Get(1).(*models.Workspace)
		created.ID = uuid.New()
	})
	workspaces.On("CreateSettings", mock.Anything, mock.AnythingOfType("*models.WorkspaceSettings")).Return(nil)
	workspaces.On("CreateMember", mock.Anything, mock.AnythingOfType("*models.WorkspaceMember")).Return(nil)

	outcome, err := svc.HandleEvent(context.Background(), event)
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, outcome)
	require.NotNil(t, created)
	assert.Equal(t, models.StatusPaymentPending, created.Status)
	// No trial granted, so the expiry must not sit a week out.
	assert.WithinDuration(t, time.Now(), created.TrialEndsAt, time.Minute)
}

func TestReconcilerCheckoutWithoutSubscriptionIgnored(t *testing.T) {
	workspaces, _, dedup, svc := newReconcilerFixture()
	userID := uuid.New()

	intent := &models.ProvisioningIntent{
		UserID:   userID,
		PlanType: plans.PlanIndividual,
		Name:     "Clinica Incompleta",
	}
	encoded, err := intent.Encode()
	require.NoError(t, err)

	event := makeEvent(t, EventCheckoutCompleted, map[string]interface{}{
		"id":       "cs_6",
		"customer": "cus_6",
		"metadata": map[string]string{models.MetadataKeyIntent: encoded},
	})
	dedup.On("MarkEventProcessed", mock.Anything, event.ID).Return(true, nil)

	outcome, err := svc.HandleEvent(context.Background(), event)
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, outcome)
	workspaces.AssertNotCalled(t, "CreateWorkspace", mock.Anything, mock.Anything)
	workspaces.AssertNotCalled(t, "GetBySubscriptionID", mock.Anything, mock.Anything)
}

func TestReconcilerCheckoutWithoutIntentAttachesByCustomer(t *testing.T) {
	workspaces, _, dedup, svc := newReconcilerFixture()
	wsID := uuid.New()
	event := makeEvent(t, EventCheckoutCompleted, map[string]interface{}{
		"id":           "cs_4",
		"customer":     "cus_4",
		"subscription": "sub_4",
	})

	dedup.On("MarkEventProcessed", mock.Anything, event.ID).Return(true, nil)
	workspaces.On("GetByCustomerID", mock.Anything, "cus_4").Return(&models.Workspace{ID: wsID}, nil)
	workspaces.On("AttachSubscription", mock.Anything, wsID, "sub_4", mock.Anything).Return(nil)

	outcome, err := svc.HandleEvent(context.Background(), event)
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, outcome)
	workspaces.AssertExpectations(t)
}

func TestReconcilerHandlerFailureClearsDedupMarker(t *testing.T) {
	workspaces, _, dedup, svc := newReconcilerFixture()
	event := makeEvent(t, EventSubscriptionUpdated, map[string]interface{}{"id": "sub_err", "status": "active"})

	dedup.On("MarkEventProcessed", mock.Anything, event.ID).Return(true, nil)
	workspaces.On("GetBySubscriptionID", mock.Anything, "sub_err").Return(nil, assert.AnError)
	dedup.On("ClearEventProcessed", mock.Anything, event.ID).Return(nil)

	outcome, err := svc.HandleEvent(context.Background(), event)
	require.Error(t, err)
	assert.Equal(t, OutcomeError, outcome)
	dedup.AssertCalled(t, "ClearEventProcessed", mock.Anything, event.ID)
}
