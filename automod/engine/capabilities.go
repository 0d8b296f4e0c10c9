package engine

import (
	"context"
	"time"

	"github.com/horizon-devs/warden/automod/event"
	"github.com/horizon-devs/warden/automod/schedule"
)

const (
	FlagBurst         = "burst"
	FlagBlockedPhrase = "blocked-phrase"
)

// Restriction and removal actions against the chat platform. Any call may fail; the engine logs failures and does not retry.
type Moderator interface {
	ApplyTemporaryRestriction(ctx context.Context, actor event.ActorKey, kind schedule.RestrictionType, reason string, until time.Time) error
	LiftRestriction(ctx context.Context, actor event.ActorKey, kind schedule.RestrictionType) error
	RemoveContent(ctx context.Context, ref event.MessageRef) error
}

// Records that an actor did something worth a moderator's attention.
type Flagger interface {
	FlagActor(ctx context.Context, actor event.ActorKey, flag string) error
}

// Delivers text to a destination, such as a channel.
type Notifier interface {
	DeliverReminder(ctx context.Context, requester event.ActorKey, destination, text string) error
	// Public notice about an automated action taken against `subject`.
	PostNotice(ctx context.Context, destination string, subject event.ActorKey, text string) error
}
