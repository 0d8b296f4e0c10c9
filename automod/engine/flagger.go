package engine

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/horizon-devs/warden/automod/event"
	"github.com/horizon-devs/warden/automod/flagstore"
)

// Flagger which records flags in a FlagStore, and alerts Slack the first time an actor receives a given flag.
type StoreFlagger struct {
	Store flagstore.FlagStore
	// optional
	Slack  *SlackNotifier
	Logger *slog.Logger
}

var _ Flagger = (*StoreFlagger)(nil)

func (f *StoreFlagger) FlagActor(ctx context.Context, actor event.ActorKey, flag string) error {
	added, err := f.Store.Add(ctx, actor, flag)
	if err != nil {
		return fmt.Errorf("persisting flag: %w", err)
	}
	// only the caller that actually added the flag alerts
	if f.Slack == nil || !slices.Contains(added, flag) {
		return nil
	}
	if err := f.Slack.SendFlag(ctx, actor, flag); err != nil {
		// the flag is already persisted; alerting is best-effort
		logger := f.Logger
		if logger == nil {
			logger = slog.Default()
		}
		logger.Warn("failed to send slack flag alert", "actor", actor.String(), "flag", flag, "err", err)
	}
	return nil
}
