package engine

import (
	"sync"
	"time"

	"github.com/RussellLuo/slidingwindow"
)

// Caps automatic restrictions per community per hour, so a raid or a bad threshold can't restrict a whole community.
type restrictionBreaker struct {
	quota    int64
	mu       sync.Mutex
	limiters map[string]*slidingwindow.Limiter
}

func windowFunc() (slidingwindow.Window, slidingwindow.StopFunc) {
	return slidingwindow.NewLocalWindow()
}

// A non-positive quota disables the breaker.
func newRestrictionBreaker(quota int64) *restrictionBreaker {
	return &restrictionBreaker{
		quota:    quota,
		limiters: make(map[string]*slidingwindow.Limiter),
	}
}

// Consumes one unit of the community's quota, returning false if it is exhausted.
func (b *restrictionBreaker) Allow(community string, now time.Time) bool {
	if b.quota <= 0 {
		return true
	}
	b.mu.Lock()
	lim, ok := b.limiters[community]
	if !ok {
		lim, _ = slidingwindow.NewLimiter(time.Hour, b.quota, windowFunc)
		b.limiters[community] = lim
	}
	b.mu.Unlock()
	return lim.AllowN(now, 1)
}
