package models

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// ProvisioningIntentVersion is bumped whenever the metadata payload shape
// changes. In-flight checkout sessions carry the version they were created
// with, so the reconciler can refuse shapes it no longer understands
// instead of misreading them.
const ProvisioningIntentVersion = 1

// MetadataKeyIntent is the checkout-session metadata key carrying the
// serialized intent.
const MetadataKeyIntent = "provisioning_intent"

// ProvisioningIntent is the full workspace-creation payload smuggled
// through checkout-session metadata. The workspace does not exist yet when
// the session is created; the reconciler materializes it from this value
// when checkout.session.completed arrives.
type ProvisioningIntent struct {
	Version  int       `json:"v"`
	UserID   uuid.UUID `json:"user_id"`
	PlanType string    `json:"plan_type"`
	// TrialAvailable is the eligibility decision stamped at
	// session-creation time; the reconciler does not re-query it.
	TrialAvailable bool `json:"trial_available"`

	Name         string `json:"name"`
	CPFCNPJ      string `json:"cpf_cnpj,omitempty"`
	Address      string `json:"address,omitempty"`
	Number       string `json:"number,omitempty"`
	Complement   string `json:"complement,omitempty"`
	Neighborhood string `json:"neighborhood,omitempty"`
	City         string `json:"city,omitempty"`
	State        string `json:"state,omitempty"`
	ZipCode      string `json:"zip_code,omitempty"`

	AppointmentDuration int `json:"appointment_duration,omitempty"`
	ReminderHoursBefore int `json:"reminder_hours_before,omitempty"`
}

// Encode serializes the intent for checkout-session metadata. Stripe caps
// metadata values at 500 characters, which bounds how much address data
// can ride along; the flat shape above stays well inside that.
func (i *ProvisioningIntent) Encode() (string, error) {
	i.Version = ProvisioningIntentVersion
	data, err := json.Marshal(i)
	if err != nil {
		return "", fmt.Errorf("failed to encode provisioning intent: %w", err)
	}
	return string(data), nil
}

// DecodeProvisioningIntent parses and validates an intent from metadata.
func DecodeProvisioningIntent(raw string) (*ProvisioningIntent, error) {
	var intent ProvisioningIntent
	if err := json.Unmarshal([]byte(raw), &intent); err != nil {
		return nil, fmt.Errorf("malformed provisioning intent: %w", err)
	}
	if intent.Version != ProvisioningIntentVersion {
		return nil, fmt.Errorf("unsupported provisioning intent version %d", intent.Version)
	}
	if intent.UserID == uuid.Nil {
		return nil, fmt.Errorf("provisioning intent missing user id")
	}
	if intent.PlanType == "" {
		return nil, fmt.Errorf("provisioning intent missing plan type")
	}
	if intent.Name == "" {
		return nil, fmt.Errorf("provisioning intent missing workspace name")
	}
	return &intent, nil
}
