// Package cooldown gates repeated actions per user.
package cooldown

import (
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Tracker holds one single-token bucket per user. The bucket refills one
// token per threshold, so an action is allowed exactly when at least one
// threshold has elapsed since the last allowed action. Denied attempts do not
// consume anything and therefore never extend the wait.
type Tracker struct {
	mu        sync.Mutex
	threshold time.Duration
	limiters  map[string]*rate.Limiter
	now       func() time.Time
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		t.now = now
	}
}

// New creates a tracker with the given threshold.
func New(threshold time.Duration, opts ...Option) *Tracker {
	t := &Tracker{
		threshold: threshold,
		limiters:  make(map[string]*rate.Limiter),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Check records an action for userID if the cooldown has elapsed. When it has
// not, it returns false and the whole seconds left, rounded up.
func (t *Tracker) Check(userID string) (bool, int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	lim := t.limiter(userID)
	if lim.AllowN(now, 1) {
		return true, 0
	}
	return false, t.remaining(lim, now)
}

// Remaining reports the whole seconds left for userID without recording
// anything. Zero means an action would be allowed now.
func (t *Tracker) Remaining(userID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	lim, ok := t.limiters[userID]
	if !ok {
		return 0
	}
	return t.remaining(lim, t.now())
}

func (t *Tracker) limiter(userID string) *rate.Limiter {
	lim, ok := t.limiters[userID]
	if !ok {
		lim = rate.NewLimiter(rate.Every(t.threshold), 1)
		t.limiters[userID] = lim
	}
	return lim
}

func (t *Tracker) remaining(lim *rate.Limiter, now time.Time) int {
	tokens := lim.TokensAt(now)
	if tokens >= 1 {
		return 0
	}
	wait := time.Duration((1 - tokens) * float64(t.threshold))
	secs := int(math.Ceil(wait.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return secs
}
