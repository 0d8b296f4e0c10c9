package cachestore

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func TestMemCacheStoreBasics(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	cs := NewMemCacheStore(100, time.Hour)

	v, err := cs.Get(ctx, "flag-cooldown", "guild1/user1")
	assert.NoError(err)
	assert.Equal("", v)

	assert.NoError(cs.Set(ctx, "flag-cooldown", "guild1/user1", "burst"))
	v, err = cs.Get(ctx, "flag-cooldown", "guild1/user1")
	assert.NoError(err)
	assert.Equal("burst", v)

	// names are separate namespaces
	v, err = cs.Get(ctx, "other", "guild1/user1")
	assert.NoError(err)
	assert.Equal("", v)

	assert.NoError(cs.Purge(ctx, "flag-cooldown", "guild1/user1"))
	v, err = cs.Get(ctx, "flag-cooldown", "guild1/user1")
	assert.NoError(err)
	assert.Equal("", v)
}

func TestCooldown(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	cd := Cooldown{Store: NewMemCacheStore(100, 50*time.Millisecond), Name: "flag-cooldown"}

	ok, err := cd.Allow(ctx, "guild1/user1/burst", epoch)
	assert.NoError(err)
	assert.True(ok)

	ok, err = cd.Allow(ctx, "guild1/user1/burst", epoch)
	assert.NoError(err)
	assert.False(ok)

	ok, err = cd.Allow(ctx, "guild1/user2/burst", epoch)
	assert.NoError(err)
	assert.True(ok)

	require.Eventually(t, func() bool {
		ok, err := cd.Allow(ctx, "guild1/user1/burst", epoch)
		return err == nil && ok
	}, 2*time.Second, 10*time.Millisecond)
}

func TestCooldownReset(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	cd := Cooldown{Store: NewMemCacheStore(100, time.Hour), Name: "flag-cooldown"}
	ok, err := cd.Allow(ctx, "guild1/user1/burst", epoch)
	assert.NoError(err)
	assert.True(ok)

	assert.NoError(cd.Reset(ctx, "guild1/user1/burst"))
	ok, err = cd.Allow(ctx, "guild1/user1/burst", epoch)
	assert.NoError(err)
	assert.True(ok)
}

func TestCooldownSince(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	cs := NewMemCacheStore(100, time.Hour)
	cd := Cooldown{Store: cs, Name: "flag-cooldown"}

	_, active, err := cd.Since(ctx, "guild1/user1/burst")
	assert.NoError(err)
	assert.False(active)

	ok, err := cd.Allow(ctx, "guild1/user1/burst", epoch)
	require.NoError(t, err)
	require.True(t, ok)
	// a suppressed repeat does not move the start
	ok, err = cd.Allow(ctx, "guild1/user1/burst", epoch.Add(time.Minute))
	require.NoError(t, err)
	require.False(t, ok)

	since, active, err := cd.Since(ctx, "guild1/user1/burst")
	assert.NoError(err)
	assert.True(active)
	assert.True(since.Equal(epoch))

	assert.NoError(cd.Reset(ctx, "guild1/user1/burst"))
	_, active, err = cd.Since(ctx, "guild1/user1/burst")
	assert.NoError(err)
	assert.False(active)

	require.NoError(t, cs.Set(ctx, "flag-cooldown", "guild1/user2/burst", "garbage"))
	_, _, err = cd.Since(ctx, "guild1/user2/burst")
	assert.Error(err)
}

func TestCooldownConcurrentAllowsOnce(t *testing.T) {
	ctx := context.Background()
	cd := Cooldown{Store: NewMemCacheStore(100, time.Hour), Name: "flag-cooldown"}

	var allowed atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := cd.Allow(ctx, "guild1/user1/burst", epoch)
			assert.NoError(t, err)
			if ok {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), allowed.Load())
}

func TestRedisCacheStoreBasics(t *testing.T) {
	t.Skip("live test, need redis running locally")
	assert := assert.New(t)
	ctx := context.Background()

	cs, err := NewRedisCacheStore("redis://localhost:6379/0", time.Minute)
	require.NoError(t, err)

	assert.NoError(cs.Set(ctx, "test", "key1", "val1"))
	v, err := cs.Get(ctx, "test", "key1")
	assert.NoError(err)
	assert.Equal("val1", v)
	assert.NoError(cs.Purge(ctx, "test", "key1"))
	v, err = cs.Get(ctx, "test", "key1")
	assert.NoError(err)
	assert.Equal("", v)

	assert.NoError(cs.Purge(ctx, "test", "key2"))
	ok, err := cs.Claim(ctx, "test", "key2")
	assert.NoError(err)
	assert.True(ok)
	ok, err = cs.Claim(ctx, "test", "key2")
	assert.NoError(err)
	assert.False(ok)
}
