package flagstore

import (
	"context"

	"github.com/horizon-devs/warden/automod/event"
)

// Records named flags against actors (eg, "burst", "blocked-phrase"). Flags are a set: adding an existing flag is a no-op.
type FlagStore interface {
	// Returns the actor's flags, sorted. Never nil.
	Get(ctx context.Context, actor event.ActorKey) ([]string, error)
	// Returns the flags the actor did not already have, in argument order. Concurrent adds of the same flag report it as new exactly once.
	Add(ctx context.Context, actor event.ActorKey, flags ...string) ([]string, error)
	// Removing flags the actor does not have is not an error.
	Remove(ctx context.Context, actor event.ActorKey, flags ...string) error
	// Actors in the community holding at least one flag, sorted by user.
	Flagged(ctx context.Context, community string) ([]event.ActorKey, error)
}
