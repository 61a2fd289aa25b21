package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/leokovaski/linkfono-workspace-manager/internal/models"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("record not found")

// ErrStaleEvent is returned when a lifecycle update carries an event
// timestamp older than the one already applied to the workspace.
var ErrStaleEvent = errors.New("stale lifecycle event")

// WorkspaceRepository handles workspace, settings and membership database
// operations.
type WorkspaceRepository struct {
	db *gorm.DB
}

// NewWorkspaceRepository creates a new workspace repository
func NewWorkspaceRepository(db *gorm.DB) *WorkspaceRepository {
	return &WorkspaceRepository{db: db}
}

// CreateWorkspace inserts a workspace row.
func (r *WorkspaceRepository) CreateWorkspace(ctx context.Context, workspace *models.Workspace) error {
	if err := r.db.WithContext(ctx).Create(workspace).Error; err != nil {
		return fmt.Errorf("failed to create workspace: %w", err)
	}
	return nil
}

// CreateSettings inserts a settings row for a workspace.
func (r *WorkspaceRepository) CreateSettings(ctx context.Context, settings *models.WorkspaceSettings) error {
	if err := r.db.WithContext(ctx).Create(settings).Error; err != nil {
		return fmt.Errorf("failed to create workspace settings: %w", err)
	}
	return nil
}

// CreateMember inserts a membership row.
func (r *WorkspaceRepository) CreateMember(ctx context.Context, member *models.WorkspaceMember) error {
	if err := r.db.WithContext(ctx).Create(member).Error; err != nil {
		return fmt.Errorf("failed to create workspace member: %w", err)
	}
	return nil
}

// GetByID retrieves a workspace with its settings and members preloaded.
func (r *WorkspaceRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Workspace, error) {
	var workspace models.Workspace
	err := r.db.WithContext(ctx).
		Preload("Settings").
		Preload("Members").
		First(&workspace, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get workspace: %w", err)
	}
	return &workspace, nil
}

// GetBySubscriptionID retrieves the workspace bound to a remote subscription.
func (r *WorkspaceRepository) GetBySubscriptionID(ctx context.Context, subscriptionID string) (*models.Workspace, error) {
	var workspace models.Workspace
	err := r.db.WithContext(ctx).
		First(&workspace, "stripe_subscription_id = ?", subscriptionID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get workspace by subscription: %w", err)
	}
	return &workspace, nil
}

// GetByCustomerID retrieves the most recently created workspace for a remote
// customer. Used when an event references a subscription not yet linked
// locally.
func (r *WorkspaceRepository) GetByCustomerID(ctx context.Context, customerID string) (*models.Workspace, error) {
	var workspace models.Workspace
	err := r.db.WithContext(ctx).
		Where("stripe_customer_id = ?", customerID).
		Order("created_at DESC").
		First(&workspace).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get workspace by customer: %w", err)
	}
	return &workspace, nil
}

// ListForUser returns all workspaces where the user holds an active
// membership, with settings and members preloaded.
func (r *WorkspaceRepository) ListForUser(ctx context.Context, userID uuid.UUID) ([]models.Workspace, error) {
	var workspaces []models.Workspace
	err := r.db.WithContext(ctx).
		Preload("Settings").
		Preload("Members").
		Joins("JOIN workspace_members ON workspace_members.workspace_id = workspaces.id").
		Where("workspace_members.user_id = ? AND workspace_members.is_active = ?", userID, true).
		Order("workspaces.created_at DESC").
		Find(&workspaces).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list workspaces: %w", err)
	}
	return workspaces, nil
}

// GetMembership returns the membership row for a user in a workspace, or
// ErrNotFound when the user has no active membership there.
func (r *WorkspaceRepository) GetMembership(ctx context.Context, workspaceID, userID uuid.UUID) (*models.WorkspaceMember, error) {
	var member models.WorkspaceMember
	err := r.db.WithContext(ctx).
		Where("workspace_id = ? AND user_id = ? AND is_active = ?", workspaceID, userID, true).
		First(&member).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get membership: %w", err)
	}
	return &member, nil
}

// Update persists field changes on a workspace.
func (r *WorkspaceRepository) Update(ctx context.Context, workspace *models.Workspace) error {
	if err := r.db.WithContext(ctx).Save(workspace).Error; err != nil {
		return fmt.Errorf("failed to update workspace: %w", err)
	}
	return nil
}

// UpdateSettings persists settings changes for a workspace.
func (r *WorkspaceRepository) UpdateSettings(ctx context.Context, settings *models.WorkspaceSettings) error {
	if err := r.db.WithContext(ctx).Save(settings).Error; err != nil {
		return fmt.Errorf("failed to update workspace settings: %w", err)
	}
	return nil
}

// AttachSubscription links a remote subscription to a workspace after
// checkout completes, updating plan limits at the same time.
func (r *WorkspaceRepository) AttachSubscription(ctx context.Context, workspaceID uuid.UUID, subscriptionID string, updates map[string]interface{}) error {
	if updates == nil {
		updates = map[string]interface{}{}
	}
	updates["stripe_subscription_id"] = subscriptionID

	result := r.db.WithContext(ctx).
		Model(&models.Workspace{}).
		Where("id = ?", workspaceID).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to attach subscription: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ApplyLifecycleUpdate applies a status change driven by a remote billing
// event. The update is guarded by the event_ts watermark: an event older
// than the last applied one is rejected with ErrStaleEvent so out-of-order
// delivery cannot regress the workspace state.
func (r *WorkspaceRepository) ApplyLifecycleUpdate(ctx context.Context, workspaceID uuid.UUID, eventTS time.Time, updates map[string]interface{}) error {
	updates["event_ts"] = eventTS

	result := r.db.WithContext(ctx).
		Model(&models.Workspace{}).
		Where("id = ? AND (event_ts IS NULL OR event_ts <= ?)", workspaceID, eventTS).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to apply lifecycle update: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		var count int64
		if err := r.db.WithContext(ctx).Model(&models.Workspace{}).Where("id = ?", workspaceID).Count(&count).Error; err != nil {
			return fmt.Errorf("failed to verify workspace existence: %w", err)
		}
		if count == 0 {
			return ErrNotFound
		}
		return ErrStaleEvent
	}
	return nil
}

// Delete removes a workspace. Settings and memberships are removed in the
// same transaction so no orphan rows remain.
func (r *WorkspaceRepository) Delete(ctx context.Context, workspaceID uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("workspace_id = ?", workspaceID).Delete(&models.WorkspaceMember{}).Error; err != nil {
			return fmt.Errorf("failed to delete memberships: %w", err)
		}
		if err := tx.Where("workspace_id = ?", workspaceID).Delete(&models.WorkspaceSettings{}).Error; err != nil {
			return fmt.Errorf("failed to delete settings: %w", err)
		}
		result := tx.Delete(&models.Workspace{}, "id = ?", workspaceID)
		if result.Error != nil {
			return fmt.Errorf("failed to delete workspace: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}
