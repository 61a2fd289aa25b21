package services

import "errors"

// Sentinel errors returned by the service layer. Handlers map these to
// HTTP status codes.
var (
	ErrForbidden          = errors.New("only the workspace owner can perform this action")
	ErrWorkspaceNotFound  = errors.New("workspace not found")
	ErrProfileNotFound    = errors.New("user profile not found")
	ErrInvalidPlan        = errors.New("invalid plan type")
	ErrSamePlan           = errors.New("workspace is already on this plan")
	ErrMembershipNotFound = errors.New("user is not a member of this workspace")
	ErrNoSubscription     = errors.New("workspace has no active subscription")
)
