package stream

import (
	"github.com/rashdiman/ridepulse/internal/apperr"
	"github.com/rashdiman/ridepulse/internal/auth"
	"github.com/rashdiman/ridepulse/internal/metrics"
	"github.com/rashdiman/ridepulse/internal/session"
)

// Validator is the stateless ingestion guard: a reading is accepted only if
// its sender is a rider and it references an active session owned by that
// sender. Rejections are expected during session-end races and are dropped
// by the caller, never escalated to the connection.
type Validator struct {
	registry *session.Registry
}

func NewValidator(registry *session.Registry) *Validator {
	return &Validator{registry: registry}
}

func (v *Validator) Validate(sender auth.Identity, reading metrics.SensorReading) error {
	if sender.Role != auth.RoleRider {
		return apperr.ErrForbidden
	}
	s, ok := v.registry.Get(reading.SessionID)
	if !ok || s.RiderID != sender.UserID || reading.RiderID != sender.UserID {
		return apperr.ErrInvalidSession
	}
	return nil
}
