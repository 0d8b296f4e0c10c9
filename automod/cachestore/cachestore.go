package cachestore

import (
	"context"
	"fmt"
	"time"
)

// String values with a store-wide TTL, namespaced by name.
type CacheStore interface {
	Get(ctx context.Context, name, key string) (string, error)
	Set(ctx context.Context, name, key string, val string) error
	Purge(ctx context.Context, name, key string) error
	// Atomically marks the key as present for the store's TTL. Returns false if it already was. Claims are kept apart from values: Get does not see them, Purge clears both.
	Claim(ctx context.Context, name, key string) (bool, error)
}

// Suppresses repeats of the same key for the TTL of the underlying store.
type Cooldown struct {
	Store CacheStore
	Name  string
}

// Returns true if the key has not been seen within the TTL, and marks it as seen as of `now`. Of several concurrent callers with the same key, exactly one is allowed.
//
// A failure to record the start time still returns true, along with the error.
func (c Cooldown) Allow(ctx context.Context, key string, now time.Time) (bool, error) {
	ok, err := c.Store.Claim(ctx, c.Name, key)
	if err != nil || !ok {
		return ok, err
	}
	if err := c.Store.Set(ctx, c.Name, key, now.UTC().Format(time.RFC3339Nano)); err != nil {
		return true, fmt.Errorf("recording cooldown start: %w", err)
	}
	return true, nil
}

// When the key's current cooldown started. The bool is false if no cooldown is active.
func (c Cooldown) Since(ctx context.Context, key string) (time.Time, bool, error) {
	raw, err := c.Store.Get(ctx, c.Name, key)
	if err != nil || raw == "" {
		return time.Time{}, false, err
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parsing cooldown start: %w", err)
	}
	return t, true, nil
}

// Clears the key, so the next Allow succeeds (eg, after a moderator reviews the actor).
func (c Cooldown) Reset(ctx context.Context, key string) error {
	return c.Store.Purge(ctx, c.Name, key)
}
