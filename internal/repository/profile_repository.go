package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/leokovaski/linkfono-workspace-manager/internal/models"
)

// ProfileRepository handles user profile database operations.
type ProfileRepository struct {
	db *gorm.DB
}

// NewProfileRepository creates a new profile repository
func NewProfileRepository(db *gorm.DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

// GetByID retrieves a profile by user ID.
func (r *ProfileRepository) GetByID(ctx context.Context, userID uuid.UUID) (*models.Profile, error) {
	var profile models.Profile
	if err := r.db.WithContext(ctx).First(&profile, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return &profile, nil
}

// SetStripeCustomerID records the remote customer reference on a profile.
func (r *ProfileRepository) SetStripeCustomerID(ctx context.Context, userID uuid.UUID, customerID string) error {
	result := r.db.WithContext(ctx).
		Model(&models.Profile{}).
		Where("id = ?", userID).
		Update("stripe_customer_id", customerID)
	if result.Error != nil {
		return fmt.Errorf("failed to set stripe customer id: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkTrialUsed flips the trial flag for a user. The flag is monotonic:
// once set it is never cleared, so calling this repeatedly is harmless.
func (r *ProfileRepository) MarkTrialUsed(ctx context.Context, userID uuid.UUID) error {
	result := r.db.WithContext(ctx).
		Model(&models.Profile{}).
		Where("id = ?", userID).
		Update("trial_used", true)
	if result.Error != nil {
		return fmt.Errorf("failed to mark trial used: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
