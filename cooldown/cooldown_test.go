package cooldown

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestCheck_FirstActionAllowed(t *testing.T) {
	clock := newFakeClock()
	tr := New(5*time.Second, WithClock(clock.Now))

	allowed, remaining := tr.Check("42")
	assert.True(t, allowed)
	assert.Equal(t, 0, remaining)
}

func TestCheck_SecondActionWithinThresholdDenied(t *testing.T) {
	clock := newFakeClock()
	tr := New(5*time.Second, WithClock(clock.Now))

	tr.Check("42")
	clock.Advance(2 * time.Second)

	allowed, remaining := tr.Check("42")
	assert.False(t, allowed)
	assert.Equal(t, 3, remaining)
}

func TestCheck_RemainingIsCeiling(t *testing.T) {
	clock := newFakeClock()
	tr := New(5*time.Second, WithClock(clock.Now))

	tr.Check("42")
	clock.Advance(4500 * time.Millisecond)

	allowed, remaining := tr.Check("42")
	assert.False(t, allowed)
	assert.Equal(t, 1, remaining)
}

func TestCheck_RemainingBounds(t *testing.T) {
	clock := newFakeClock()
	tr := New(5*time.Second, WithClock(clock.Now))

	tr.Check("42")
	allowed, remaining := tr.Check("42")
	assert.False(t, allowed)
	assert.Greater(t, remaining, 0)
	assert.LessOrEqual(t, remaining, 5)
}

func TestCheck_DeniedAttemptsDoNotResetWindow(t *testing.T) {
	clock := newFakeClock()
	tr := New(5*time.Second, WithClock(clock.Now))

	tr.Check("42")
	for i := 0; i < 4; i++ {
		clock.Advance(time.Second)
		allowed, _ := tr.Check("42")
		assert.False(t, allowed)
	}

	clock.Advance(time.Second)
	allowed, remaining := tr.Check("42")
	assert.True(t, allowed, "window measured from the last allowed action")
	assert.Equal(t, 0, remaining)
}

func TestCheck_AllowedAfterThreshold(t *testing.T) {
	clock := newFakeClock()
	tr := New(5*time.Second, WithClock(clock.Now))

	tr.Check("42")
	clock.Advance(5 * time.Second)

	allowed, _ := tr.Check("42")
	assert.True(t, allowed)

	// The allowed action restarts the window.
	clock.Advance(time.Second)
	allowed, remaining := tr.Check("42")
	assert.False(t, allowed)
	assert.Equal(t, 4, remaining)
}

func TestCheck_UsersAreIndependent(t *testing.T) {
	clock := newFakeClock()
	tr := New(5*time.Second, WithClock(clock.Now))

	allowedA, _ := tr.Check("a")
	allowedB, _ := tr.Check("b")
	assert.True(t, allowedA)
	assert.True(t, allowedB)
}

func TestRemaining_DoesNotRecord(t *testing.T) {
	clock := newFakeClock()
	tr := New(5*time.Second, WithClock(clock.Now))

	assert.Equal(t, 0, tr.Remaining("42"))
	assert.Equal(t, 0, tr.Remaining("42"))

	allowed, _ := tr.Check("42")
	assert.True(t, allowed, "peeking must not consume the cooldown")

	clock.Advance(time.Second)
	assert.Equal(t, 4, tr.Remaining("42"))
}

func TestCheck_ConcurrentCallersSingleWinner(t *testing.T) {
	tr := New(time.Hour)

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowedCount := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := tr.Check("42"); ok {
				mu.Lock()
				allowedCount++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, allowedCount)
}
