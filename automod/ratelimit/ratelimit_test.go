package ratelimit

import (
	"context"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/horizon-devs/warden/automod/event"
	"github.com/horizon-devs/warden/pkg/clock"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	epoch  = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	alice  = event.ActorKey{Community: "guild1", User: "alice"}
	bob    = event.ActorKey{Community: "guild1", User: "bob"}
	alice2 = event.ActorKey{Community: "guild2", User: "alice"}
)

func at(sec int) time.Time {
	return epoch.Add(time.Duration(sec) * time.Second)
}

func testLimiter(t *testing.T, window time.Duration, threshold int) *Limiter {
	t.Helper()
	lim, err := NewLimiter(Config{Window: window, Threshold: threshold})
	require.NoError(t, err)
	return lim
}

func TestNewLimiterValidation(t *testing.T) {
	assert := assert.New(t)

	_, err := NewLimiter(Config{Window: 0, Threshold: 5})
	assert.ErrorIs(err, ErrInvalidConfig)
	_, err = NewLimiter(Config{Window: time.Second, Threshold: 0})
	assert.ErrorIs(err, ErrInvalidConfig)

	lim, err := NewLimiter(Config{Window: DefaultWindow, Threshold: DefaultThreshold})
	assert.NoError(err)
	assert.Equal(5*time.Second, lim.Window())
	assert.Equal(5, lim.Threshold())
}

func TestBurstWithinWindow(t *testing.T) {
	assert := assert.New(t)
	lim := testLimiter(t, 5*time.Second, 5)

	for i := 0; i < 4; i++ {
		assert.False(lim.RecordEvent(alice, at(i)), "event at t=%d", i)
	}
	assert.True(lim.RecordEvent(alice, at(4)))

	// no reset after flagging: burst keeps being reported
	assert.True(lim.RecordEvent(alice, at(4)))
	assert.Equal(6, lim.Count(alice, at(4)))
}

func TestGapDropsOldEvents(t *testing.T) {
	assert := assert.New(t)
	lim := testLimiter(t, 5*time.Second, 5)

	for _, sec := range []int{0, 1, 2, 3, 9} {
		assert.False(lim.RecordEvent(alice, at(sec)), "event at t=%d", sec)
	}
	// window at t=9 holds only itself
	assert.Equal(1, lim.Count(alice, at(9)))
}

func TestWindowBoundaryIsExclusive(t *testing.T) {
	assert := assert.New(t)
	lim := testLimiter(t, 5*time.Second, 2)

	assert.False(lim.RecordEvent(alice, at(0)))
	// exactly W later: the first event has aged out
	assert.False(lim.RecordEvent(alice, at(5)))
	assert.True(lim.RecordEvent(alice, epoch.Add(9*time.Second+999*time.Millisecond)))
}

func TestActorsAreIndependent(t *testing.T) {
	assert := assert.New(t)
	lim := testLimiter(t, 5*time.Second, 3)

	lim.RecordEvent(alice, at(0))
	lim.RecordEvent(alice, at(1))
	assert.False(lim.RecordEvent(bob, at(1)))
	assert.False(lim.RecordEvent(alice2, at(1)))
	assert.True(lim.RecordEvent(alice, at(2)))
	assert.Equal(1, lim.Count(bob, at(2)))
	assert.Equal(3, lim.Size())

	lim.Reset(alice)
	assert.Equal(0, lim.Count(alice, at(2)))
	assert.False(lim.RecordEvent(alice, at(2)))
}

func TestCountDoesNotCreateWindow(t *testing.T) {
	lim := testLimiter(t, time.Second, 1)
	assert.Equal(t, 0, lim.Count(alice, at(0)))
	assert.Equal(t, 0, lim.Size())
}

// compares against a brute-force count over the full history
func TestSlidingWindowMatchesNaiveModel(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for round := 0; round < 50; round++ {
		window := time.Duration(1+rng.Intn(10)) * time.Second
		threshold := 1 + rng.Intn(8)
		lim := testLimiter(t, window, threshold)

		var history []time.Time
		now := epoch
		for i := 0; i < 200; i++ {
			now = now.Add(time.Duration(rng.Intn(3000)) * time.Millisecond)
			history = append(history, now)

			expected := 0
			for _, ts := range history {
				if now.Sub(ts) < window {
					expected++
				}
			}
			got := lim.RecordEvent(alice, now)
			if !assert.Equal(t, expected >= threshold, got, "round=%d i=%d window=%s threshold=%d", round, i, window, threshold) {
				return
			}
		}
	}
}

func TestPruneRemovesQuietWindows(t *testing.T) {
	assert := assert.New(t)
	lim := testLimiter(t, 5*time.Second, 5)

	lim.RecordEvent(alice, at(0))
	lim.RecordEvent(bob, at(3))

	assert.Equal(0, lim.Prune(at(4)))
	assert.Equal(1, lim.Prune(at(5)))
	assert.Equal(1, lim.Size())
	assert.Equal(1, lim.Prune(at(8)))
	assert.Equal(0, lim.Size())
}

func TestJanitor(t *testing.T) {
	lim := testLimiter(t, 5*time.Second, 5)
	clk := clock.NewMockClock(epoch)
	lim.RecordEvent(alice, clk.Now())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- lim.RunJanitor(ctx, clk, time.Minute)
	}()

	require.Eventually(t, func() bool { return clk.WaiterCount() >= 1 }, 2*time.Second, time.Millisecond)
	clk.Advance(time.Minute)
	require.Eventually(t, func() bool { return lim.Size() == 0 }, 2*time.Second, time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}

func TestConcurrentRecordEvent(t *testing.T) {
	assert := assert.New(t)
	lim := testLimiter(t, time.Hour, 1000)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				lim.RecordEvent(alice, epoch)
				lim.RecordEvent(bob, epoch)
				lim.Count(alice, epoch)
			}
		}()
	}
	wg.Wait()

	// every insert is kept, none lost to interleaving
	assert.Equal(800, lim.Count(alice, epoch))
	assert.Equal(800, lim.Count(bob, epoch))
	assert.False(lim.RecordEvent(alice2, epoch))
}
