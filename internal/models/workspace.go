package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Workspace statuses. The reconciler only ever moves a workspace between
// these values; there is no hard delete (deletion is a transition to
// StatusCancelled).
const (
	StatusTrial          = "trial"
	StatusActive         = "active"
	StatusInactive       = "inactive"
	StatusPaymentPending = "payment_pending"
	StatusCancelled      = "cancelled"
	StatusSuspended      = "suspended"
)

// Membership roles
const (
	RoleOwner  = "owner"
	RoleMember = "member"
)

// Workspace represents a tenant unit (one clinic) with its own plan,
// limits and membership.
type Workspace struct {
	ID      uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:uuid_generate_v4()"`
	OwnerID uuid.UUID `json:"owner_id" gorm:"type:uuid;not null;index"`
	Name    string    `json:"name" gorm:"not null" validate:"required,min=2,max=255"`
	CPFCNPJ string    `json:"cpf_cnpj" gorm:"column:cpf_cnpj;size:18"`

	// Postal address
	Address      string `json:"address" gorm:"size:255"`
	Number       string `json:"number" gorm:"size:20"`
	Complement   string `json:"complement" gorm:"size:100"`
	Neighborhood string `json:"neighborhood" gorm:"size:100"`
	City         string `json:"city" gorm:"size:100"`
	State        string `json:"state" gorm:"size:2"`
	ZipCode      string `json:"zip_code" gorm:"size:9"`

	Status   string `json:"status" gorm:"default:'trial';index" validate:"oneof=trial active inactive payment_pending cancelled suspended"`
	PlanType string `json:"plan_type" gorm:"not null;index" validate:"required"`

	// External payment processor references
	StripeCustomerID     string `json:"stripe_customer_id" gorm:"size:255;index"`
	StripeSubscriptionID string `json:"stripe_subscription_id" gorm:"size:255;index"`

	TrialEndsAt        time.Time  `json:"trial_ends_at" gorm:"not null"`
	SubscriptionEndsAt *time.Time `json:"subscription_ends_at"`

	// Denormalized entitlement limits from the plan catalog; -1 = unlimited.
	// Re-synced on every plan change.
	MaxPatients int `json:"max_patients" gorm:"not null"`
	MaxMembers  int `json:"max_members" gorm:"not null"`

	// EventTS is the watermark of the last applied lifecycle event.
	// Lifecycle updates carrying an older timestamp are ignored, so
	// out-of-order webhook redeliveries cannot roll the row backwards.
	EventTS *time.Time `json:"-" gorm:"column:event_ts;index"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	Settings *WorkspaceSettings `json:"settings,omitempty" gorm:"foreignKey:WorkspaceID"`
	Members  []WorkspaceMember  `json:"members,omitempty" gorm:"foreignKey:WorkspaceID"`
}

// WorkspaceSettings is the 1:1 child of a workspace. Created atomically
// with it, mutated only by the owner.
type WorkspaceSettings struct {
	ID          uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:uuid_generate_v4()"`
	WorkspaceID uuid.UUID `json:"workspace_id" gorm:"type:uuid;not null;uniqueIndex"`

	AppointmentDuration int  `json:"appointment_duration" gorm:"default:50"`
	ReminderHoursBefore int  `json:"reminder_hours_before" gorm:"default:24"`
	AllowOnlineBooking  bool `json:"allow_online_booking" gorm:"default:false"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// WorkspaceMember represents the membership of a user in a workspace.
// Exactly one owner is created at provisioning time.
type WorkspaceMember struct {
	ID          uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:uuid_generate_v4()"`
	WorkspaceID uuid.UUID `json:"workspace_id" gorm:"type:uuid;not null;index"`
	UserID      uuid.UUID `json:"user_id" gorm:"type:uuid;not null;index"`
	Role        string    `json:"role" gorm:"size:20;not null;default:'member'" validate:"oneof=owner member"`
	IsActive    bool      `json:"is_active" gorm:"default:true"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	Workspace *Workspace `json:"workspace,omitempty" gorm:"foreignKey:WorkspaceID"`
}

// Profile is the user identity record. It is owned by the external auth
// system; this service only reads it and flips trial_used / the stored
// customer reference.
type Profile struct {
	ID       uuid.UUID `json:"id" gorm:"type:uuid;primary_key"`
	Email    string    `json:"email" gorm:"not null;index" validate:"required,email"`
	FullName string    `json:"full_name" gorm:"size:255"`

	// TrialUsed is monotonic: false -> true, never reset.
	TrialUsed bool `json:"trial_used" gorm:"default:false"`

	// StripeCustomerID is persisted the first time a customer is created
	// for this user so later checkouts reuse the same remote customer.
	StripeCustomerID string `json:"stripe_customer_id" gorm:"size:255;index"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate hooks
func (w *Workspace) BeforeCreate(tx *gorm.DB) error {
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	return nil
}

func (s *WorkspaceSettings) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

func (m *WorkspaceMember) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

// IsOwner reports whether the membership grants owner-level mutation rights.
func (m *WorkspaceMember) IsOwner() bool {
	return m.Role == RoleOwner && m.IsActive
}
