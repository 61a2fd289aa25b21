package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v82"

	"github.com/leokovaski/linkfono-workspace-manager/internal/models"
	natsclient "github.com/leokovaski/linkfono-workspace-manager/internal/nats"
	"github.com/leokovaski/linkfono-workspace-manager/internal/plans"
	"github.com/leokovaski/linkfono-workspace-manager/internal/repository"
)

// Webhook event types the reconciler acts on. Everything else is
// acknowledged and dropped.
const (
	EventSubscriptionCreated = "customer.subscription.created"
	EventSubscriptionUpdated = "customer.subscription.updated"
	EventSubscriptionDeleted = "customer.subscription.deleted"
	EventInvoicePaid         = "invoice.payment_succeeded"
	EventInvoiceFailed       = "invoice.payment_failed"
	EventCheckoutCompleted   = "checkout.session.completed"
)

// Outcome labels reported back to the webhook handler for metrics.
const (
	OutcomeApplied   = "applied"
	OutcomeDuplicate = "duplicate"
	OutcomeIgnored   = "ignored"
	OutcomeStale     = "stale"
	OutcomeNoMatch   = "no_match"
	OutcomeDropped   = "dropped"
	OutcomeError     = "error"
)

// ReconcilerService applies remote billing events to local workspace state.
// Handlers are idempotent and guarded by a per-workspace event watermark, so
// duplicated or out-of-order deliveries converge on the remote truth.
type ReconcilerService struct {
	workspaces WorkspaceStore
	profiles   ProfileStore
	catalog    *plans.Catalog
	trial      *TrialService
	dedup      EventDeduper
	events     EventPublisher
}

// NewReconcilerService creates a new reconciler service
func NewReconcilerService(workspaces WorkspaceStore, profiles ProfileStore, catalog *plans.Catalog, trial *TrialService, dedup EventDeduper, events EventPublisher) *ReconcilerService {
	return &ReconcilerService{
		workspaces: workspaces,
		profiles:   profiles,
		catalog:    catalog,
		trial:      trial,
		dedup:      dedup,
		events:     events,
	}
}

// MapSubscriptionStatus translates a remote subscription status into the
// local workspace lifecycle vocabulary. Total: unrecognized remote statuses
// map to inactive rather than failing.
func MapSubscriptionStatus(remote string) string {
	switch remote {
	case "active":
		return models.StatusActive
	case "trialing":
		return models.StatusTrial
	case "past_due":
		return models.StatusPaymentPending
	case "canceled", "unpaid":
		return models.StatusCancelled
	case "incomplete", "incomplete_expired":
		return models.StatusPaymentPending
	default:
		return models.StatusInactive
	}
}

// Lean payload shapes decoded from event.Data.Raw. Only the fields the
// reconciler reads are declared, which keeps the decode stable across
// remote API versions.

type remoteSubscription struct {
	ID                string `json:"id"`
	Customer          string `json:"customer"`
	Status            string `json:"status"`
	CancelAtPeriodEnd bool   `json:"cancel_at_period_end"`
	CurrentPeriodEnd  int64  `json:"current_period_end"`
	Items             struct {
		Data []struct {
			CurrentPeriodEnd int64 `json:"current_period_end"`
			Price            struct {
				ID string `json:"id"`
			} `json:"price"`
		} `json:"data"`
	} `json:"items"`
	Metadata map[string]string `json:"metadata"`
}

// periodEnd prefers the item-level period end (newer API shape) and falls
// back to the top-level field carried by older payloads.
func (s *remoteSubscription) periodEnd() int64 {
	if len(s.Items.Data) > 0 && s.Items.Data[0].CurrentPeriodEnd > 0 {
		return s.Items.Data[0].CurrentPeriodEnd
	}
	return s.CurrentPeriodEnd
}

type remoteInvoice struct {
	ID           string `json:"id"`
	Customer     string `json:"customer"`
	Subscription string `json:"subscription"`
	Parent       struct {
		SubscriptionDetails struct {
			Subscription string `json:"subscription"`
		} `json:"subscription_details"`
	} `json:"parent"`
}

// subscriptionRef returns the subscription the invoice belongs to, empty
// for one-off invoices.
func (i *remoteInvoice) subscriptionRef() string {
	if i.Subscription != "" {
		return i.Subscription
	}
	return i.Parent.SubscriptionDetails.Subscription
}

type remoteCheckoutSession struct {
	ID           string            `json:"id"`
	Mode         string            `json:"mode"`
	Customer     string            `json:"customer"`
	Subscription string            `json:"subscription"`
	Metadata     map[string]string `json:"metadata"`
}

// HandleEvent routes a verified webhook event to its handler and returns an
// outcome label for metrics. Errors are returned only for transient handler
// failures; everything unrecognized or unmatched is acknowledged so the
// remote side stops retrying.
func (s *ReconcilerService) HandleEvent(ctx context.Context, event stripe.Event) (string, error) {
	first, err := s.dedup.MarkEventProcessed(ctx, event.ID)
	if err != nil {
		log.Printf("[ReconcilerService] Dedup check failed for event %s, processing anyway: %v", event.ID, err)
		first = true
	}
	if !first {
		log.Printf("[ReconcilerService] Duplicate event %s (%s), skipping", event.ID, event.Type)
		return OutcomeDuplicate, nil
	}

	eventTS := time.Unix(event.Created, 0).UTC()

	outcome, err := s.dispatch(ctx, event, eventTS)
	if err != nil {
		// Allow the next delivery of this event to retry.
		if clearErr := s.dedup.ClearEventProcessed(ctx, event.ID); clearErr != nil {
			log.Printf("[ReconcilerService] Failed to clear dedup marker for event %s: %v", event.ID, clearErr)
		}
		return OutcomeError, err
	}
	return outcome, nil
}

func (s *ReconcilerService) dispatch(ctx context.Context, event stripe.Event, eventTS time.Time) (string, error) {
	switch string(event.Type) {
	case EventSubscriptionCreated, EventSubscriptionUpdated:
		var sub remoteSubscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			log.Printf("[ReconcilerService] Malformed subscription payload in event %s: %v", event.ID, err)
			return OutcomeDropped, nil
		}
		return s.applySubscriptionState(ctx, &sub, eventTS)

	case EventSubscriptionDeleted:
		var sub remoteSubscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			log.Printf("[ReconcilerService] Malformed subscription payload in event %s: %v", event.ID, err)
			return OutcomeDropped, nil
		}
		return s.applyForcedStatus(ctx, sub.ID, models.StatusCancelled, eventTS)

	case EventInvoicePaid:
		var inv remoteInvoice
		if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
			log.Printf("[ReconcilerService] Malformed invoice payload in event %s: %v", event.ID, err)
			return OutcomeDropped, nil
		}
		if inv.subscriptionRef() == "" {
			return OutcomeIgnored, nil
		}
		return s.applyForcedStatus(ctx, inv.subscriptionRef(), models.StatusActive, eventTS)

	case EventInvoiceFailed:
		var inv remoteInvoice
		if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
			log.Printf("[ReconcilerService] Malformed invoice payload in event %s: %v", event.ID, err)
			return OutcomeDropped, nil
		}
		if inv.subscriptionRef() == "" {
			return OutcomeIgnored, nil
		}
		return s.applyForcedStatus(ctx, inv.subscriptionRef(), models.StatusPaymentPending, eventTS)

	case EventCheckoutCompleted:
		var session remoteCheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			log.Printf("[ReconcilerService] Malformed checkout payload in event %s: %v", event.ID, err)
			return OutcomeDropped, nil
		}
		return s.handleCheckoutCompleted(ctx, &session, eventTS)

	default:
		log.Printf("[ReconcilerService] Ignoring event %s of type %s", event.ID, event.Type)
		return OutcomeIgnored, nil
	}
}

// applySubscriptionState maps the remote subscription status onto the
// workspace bound to it and refreshes the billing period end.
func (s *ReconcilerService) applySubscriptionState(ctx context.Context, sub *remoteSubscription, eventTS time.Time) (string, error) {
	workspace, err := s.workspaces.GetBySubscriptionID(ctx, sub.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			log.Printf("[ReconcilerService] No workspace for subscription %s, acknowledging", sub.ID)
			return OutcomeNoMatch, nil
		}
		return "", fmt.Errorf("failed to locate workspace for subscription %s: %w", sub.ID, err)
	}

	newStatus := MapSubscriptionStatus(sub.Status)
	updates := map[string]interface{}{
		"status": newStatus,
	}
	if end := sub.periodEnd(); end > 0 {
		updates["subscription_ends_at"] = time.Unix(end, 0).UTC()
	}

	return s.applyUpdates(ctx, workspace, newStatus, eventTS, updates)
}

// applyForcedStatus sets a specific status regardless of what the
// subscription object currently says. Used for deletion and invoice events.
func (s *ReconcilerService) applyForcedStatus(ctx context.Context, subscriptionID, status string, eventTS time.Time) (string, error) {
	workspace, err := s.workspaces.GetBySubscriptionID(ctx, subscriptionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			log.Printf("[ReconcilerService] No workspace for subscription %s, acknowledging", subscriptionID)
			return OutcomeNoMatch, nil
		}
		return "", fmt.Errorf("failed to locate workspace for subscription %s: %w", subscriptionID, err)
	}

	return s.applyUpdates(ctx, workspace, status, eventTS, map[string]interface{}{"status": status})
}

func (s *ReconcilerService) applyUpdates(ctx context.Context, workspace *models.Workspace, newStatus string, eventTS time.Time, updates map[string]interface{}) (string, error) {
	oldStatus := workspace.Status

	err := s.workspaces.ApplyLifecycleUpdate(ctx, workspace.ID, eventTS, updates)
	if err != nil {
		if errors.Is(err, repository.ErrStaleEvent) {
			log.Printf("[ReconcilerService] Stale event for workspace %s (event_ts=%s), skipping", workspace.ID, eventTS)
			return OutcomeStale, nil
		}
		if errors.Is(err, repository.ErrNotFound) {
			return OutcomeNoMatch, nil
		}
		return "", fmt.Errorf("failed to apply lifecycle update: %w", err)
	}

	if oldStatus != newStatus {
		log.Printf("[ReconcilerService] Workspace %s status %s -> %s", workspace.ID, oldStatus, newStatus)
		if s.events != nil {
			if err := s.events.PublishWorkspaceStatusChanged(ctx, &natsclient.WorkspaceStatusChangedEvent{
				WorkspaceID: workspace.ID.String(),
				OldStatus:   oldStatus,
				NewStatus:   newStatus,
				PlanType:    workspace.PlanType,
			}); err != nil {
				log.Printf("[ReconcilerService] Failed to publish status change: %v", err)
			}
		}
	}

	return OutcomeApplied, nil
}

// handleCheckoutCompleted finishes the deferred provisioning path. A session
// carrying a provisioning intent materializes the full workspace; a session
// without one links the subscription to an existing workspace by customer.
func (s *ReconcilerService) handleCheckoutCompleted(ctx context.Context, session *remoteCheckoutSession, eventTS time.Time) (string, error) {
	raw, hasIntent := session.Metadata[models.MetadataKeyIntent]
	if !hasIntent {
		return s.attachByCustomer(ctx, session)
	}

	// A completed session without a subscription reference cannot be
	// provisioned: the workspace would have no subscription id and no
	// later lifecycle event could ever locate it.
	if session.Subscription == "" {
		log.Printf("[ReconcilerService] Checkout session %s completed without a subscription, acknowledging", session.ID)
		return OutcomeIgnored, nil
	}

	intent, err := models.DecodeProvisioningIntent(raw)
	if err != nil {
		log.Printf("[ReconcilerService] Dropping checkout session %s with malformed intent: %v", session.ID, err)
		return OutcomeDropped, nil
	}

	userID := intent.UserID

	plan, ok := s.catalog.Resolve(intent.PlanType)
	if !ok {
		log.Printf("[ReconcilerService] Dropping checkout session %s with unknown plan %q", session.ID, intent.PlanType)
		return OutcomeDropped, nil
	}

	// If this event is redelivered after a successful provision, the
	// subscription is already linked and the insert must not repeat.
	if existing, err := s.workspaces.GetBySubscriptionID(ctx, session.Subscription); err == nil {
		log.Printf("[ReconcilerService] Workspace %s already provisioned for subscription %s", existing.ID, session.Subscription)
		return OutcomeDuplicate, nil
	}

	now := time.Now().UTC()
	status := models.StatusPaymentPending
	var trialDays int64
	if intent.TrialAvailable {
		status = models.StatusTrial
		trialDays = TrialDays
	}

	workspace := &models.Workspace{
		Name:                 intent.Name,
		OwnerID:              userID,
		CPFCNPJ:              intent.CPFCNPJ,
		Address:              intent.Address,
		Number:               intent.Number,
		Complement:           intent.Complement,
		Neighborhood:         intent.Neighborhood,
		City:                 intent.City,
		State:                intent.State,
		ZipCode:              intent.ZipCode,
		Status:               status,
		PlanType:             plan.ID,
		StripeCustomerID:     session.Customer,
		StripeSubscriptionID: session.Subscription,
		TrialEndsAt:          TrialEnd(now, trialDays),
		MaxPatients:          plan.MaxPatients,
		MaxMembers:           plan.MaxMembers,
		EventTS:              &eventTS,
	}

	if err := s.workspaces.CreateWorkspace(ctx, workspace); err != nil {
		return "", fmt.Errorf("failed to provision workspace from checkout: %w", err)
	}

	settings := &models.WorkspaceSettings{
		WorkspaceID:         workspace.ID,
		AppointmentDuration: defaultInt(intent.AppointmentDuration, 50),
		ReminderHoursBefore: defaultInt(intent.ReminderHoursBefore, 24),
		AllowOnlineBooking:  false,
	}
	if err := s.workspaces.CreateSettings(ctx, settings); err != nil {
		s.compensate(ctx, workspace.ID)
		return "", fmt.Errorf("failed to create settings from checkout: %w", err)
	}

	owner := &models.WorkspaceMember{
		WorkspaceID: workspace.ID,
		UserID:      userID,
		Role:        models.RoleOwner,
		IsActive:    true,
	}
	if err := s.workspaces.CreateMember(ctx, owner); err != nil {
		s.compensate(ctx, workspace.ID)
		return "", fmt.Errorf("failed to create owner membership from checkout: %w", err)
	}

	if intent.TrialAvailable {
		if err := s.trial.Consume(ctx, userID); err != nil {
			log.Printf("[ReconcilerService] Failed to consume trial for user %s: %v", userID, err)
		}
	}

	if s.events != nil {
		if err := s.events.PublishWorkspaceCreated(ctx, &natsclient.WorkspaceCreatedEvent{
			WorkspaceID: workspace.ID.String(),
			OwnerID:     userID.String(),
			Name:        workspace.Name,
			PlanType:    workspace.PlanType,
			Status:      workspace.Status,
		}); err != nil {
			log.Printf("[ReconcilerService] Failed to publish workspace.created: %v", err)
		}
	}

	log.Printf("[ReconcilerService] Provisioned workspace %s from checkout session %s (plan=%s status=%s)",
		workspace.ID, session.ID, workspace.PlanType, workspace.Status)
	return OutcomeApplied, nil
}

// attachByCustomer links a checkout-created subscription to the customer's
// most recent workspace when no intent metadata is present.
func (s *ReconcilerService) attachByCustomer(ctx context.Context, session *remoteCheckoutSession) (string, error) {
	if session.Customer == "" || session.Subscription == "" {
		log.Printf("[ReconcilerService] Checkout session %s has no customer or subscription, acknowledging", session.ID)
		return OutcomeIgnored, nil
	}

	workspace, err := s.workspaces.GetByCustomerID(ctx, session.Customer)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			log.Printf("[ReconcilerService] No workspace for customer %s, acknowledging", session.Customer)
			return OutcomeNoMatch, nil
		}
		return "", fmt.Errorf("failed to locate workspace for customer %s: %w", session.Customer, err)
	}

	if err := s.workspaces.AttachSubscription(ctx, workspace.ID, session.Subscription, nil); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return OutcomeNoMatch, nil
		}
		return "", fmt.Errorf("failed to attach subscription: %w", err)
	}

	log.Printf("[ReconcilerService] Attached subscription %s to workspace %s", session.Subscription, workspace.ID)
	return OutcomeApplied, nil
}

func (s *ReconcilerService) compensate(ctx context.Context, workspaceID uuid.UUID) {
	if err := s.workspaces.Delete(ctx, workspaceID); err != nil {
		log.Printf("[ReconcilerService] Compensation failed for workspace %s: %v", workspaceID, err)
	}
}
