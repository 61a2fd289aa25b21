package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/leokovaski/linkfono-workspace-manager/internal/repository"
)

// TrialDays is how long the free trial lasts. Every user gets it exactly
// once, on any plan.
const TrialDays = 7

// TrialService decides whether a user may still start a free trial.
type TrialService struct {
	profiles ProfileStore
}

// NewTrialService creates a new trial service
func NewTrialService(profiles ProfileStore) *TrialService {
	return &TrialService{profiles: profiles}
}

// TrialStatus is the eligibility report for a user.
type TrialStatus struct {
	TrialAvailable bool `json:"trial_available"`
	TrialDays      int  `json:"trial_days"`
}

// CheckEligibility reports whether the user can still claim the trial.
// A missing profile is eligible: the flag only ever flips one way, so
// absence of the record means the trial was never consumed.
func (s *TrialService) CheckEligibility(ctx context.Context, userID uuid.UUID) (*TrialStatus, error) {
	profile, err := s.profiles.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return &TrialStatus{TrialAvailable: true, TrialDays: TrialDays}, nil
		}
		return nil, fmt.Errorf("failed to check trial eligibility: %w", err)
	}

	return &TrialStatus{
		TrialAvailable: !profile.TrialUsed,
		TrialDays:      TrialDays,
	}, nil
}

// Consume marks the user's trial as used. Idempotent: consuming an already
// used trial is a no-op, and a missing profile is ignored so provisioning
// never fails on this step.
func (s *TrialService) Consume(ctx context.Context, userID uuid.UUID) error {
	err := s.profiles.MarkTrialUsed(ctx, userID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("failed to consume trial: %w", err)
	}
	return nil
}

// TrialEnd returns the trial expiry for a trial of the given length
// starting now. Zero days means no trial was granted and the expiry is
// already in the past.
func TrialEnd(now time.Time, days int64) time.Time {
	return now.Add(time.Duration(days) * 24 * time.Hour)
}
