package schedule

import (
	"errors"
	"fmt"
	"time"

	"github.com/horizon-devs/warden/automod/event"
)

type Kind string

const (
	// Lifts a previously applied temporary restriction.
	RestrictionExpiry Kind = "restriction-expiry"
	// Sends a reminder notification to the original requester.
	ReminderDelivery Kind = "reminder-delivery"
)

func (k Kind) Valid() bool {
	return k == RestrictionExpiry || k == ReminderDelivery
}

type RestrictionType string

const (
	RestrictionMute RestrictionType = "mute"
	RestrictionBan  RestrictionType = "ban"
)

func (r RestrictionType) Valid() bool {
	return r == RestrictionMute || r == RestrictionBan
}

// Kind-specific data carried by a scheduled action. The scheduler only validates it; executors interpret it.
type Payload struct {
	// Restriction target for RestrictionExpiry; the requesting user for ReminderDelivery.
	Actor event.ActorKey
	// Only for RestrictionExpiry.
	Restriction RestrictionType
	// Only for ReminderDelivery: where the reminder is delivered (eg, channel ID).
	Destination string
	// Only for ReminderDelivery.
	Text string
}

// A pending one-shot action. Values are copies; mutating one does not affect the scheduler.
type Action struct {
	ID      string
	Kind    Kind
	Due     time.Time
	Created time.Time
	Payload Payload
}

var ErrValidation = errors.New("invalid scheduling request")

// Returned synchronously for malformed scheduling requests. Such requests never enter the pending set.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrValidation, e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

func validate(kind Kind, p Payload) error {
	if !kind.Valid() {
		return invalid("kind", "unknown action kind %q", kind)
	}
	if p.Actor.Community == "" || p.Actor.User == "" {
		return invalid("actor", "community and user are required")
	}
	switch kind {
	case RestrictionExpiry:
		if !p.Restriction.Valid() {
			return invalid("restriction", "unknown restriction type %q", p.Restriction)
		}
	case ReminderDelivery:
		if p.Destination == "" {
			return invalid("destination", "required for reminders")
		}
		if p.Text == "" {
			return invalid("text", "required for reminders")
		}
	}
	return nil
}
