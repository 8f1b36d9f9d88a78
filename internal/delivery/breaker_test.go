package delivery

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBreakerOpensAtThreshold(t *testing.T) {
	b := NewBreaker(3, time.Minute)

	assert.True(t, b.Allow("bad.example"))
	b.RecordFailure("bad.example")
	b.RecordFailure("bad.example")
	assert.True(t, b.Allow("bad.example"), "still closed below threshold")
	b.RecordFailure("bad.example")
	assert.False(t, b.Allow("bad.example"), "open at threshold")

	// other domains are isolated
	assert.True(t, b.Allow("good.example"))
}

func TestBreakerSuccessResetsRun(t *testing.T) {
	b := NewBreaker(2, time.Minute)
	b.RecordFailure("x.example")
	b.RecordSuccess("x.example")
	b.RecordFailure("x.example")
	assert.True(t, b.Allow("x.example"), "run was reset by success")
}

func TestBreakerHalfOpenAfterCoolOff(t *testing.T) {
	b := NewBreaker(1, time.Minute)
	now := time.Now()
	b.now = func() time.Time { return now }

	b.RecordFailure("y.example")
	assert.False(t, b.Allow("y.example"))

	// within the cool-off window: still open
	now = now.Add(30 * time.Second)
	assert.False(t, b.Allow("y.example"))

	// window elapsed: probe allowed
	now = now.Add(31 * time.Second)
	assert.True(t, b.Allow("y.example"))

	// a failed probe re-opens immediately, it does not buy a fresh run
	b.RecordFailure("y.example")
	assert.False(t, b.Allow("y.example"))

	// a successful probe closes fully
	now = now.Add(61 * time.Second)
	assert.True(t, b.Allow("y.example"))
	b.RecordSuccess("y.example")
	assert.True(t, b.Allow("y.example"))
}

func TestBreakerProbeBudgetAboveOne(t *testing.T) {
	b := NewBreaker(3, time.Minute)
	now := time.Now()
	b.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		b.RecordFailure("z.example")
	}
	assert.False(t, b.Allow("z.example"))

	// after the cool-off the domain gets one probe, not a fresh threshold
	now = now.Add(61 * time.Second)
	assert.True(t, b.Allow("z.example"))
	b.RecordFailure("z.example")
	assert.False(t, b.Allow("z.example"), "one failed probe re-opens")

	// a probe that succeeds resets the run completely
	now = now.Add(61 * time.Second)
	assert.True(t, b.Allow("z.example"))
	b.RecordSuccess("z.example")
	b.RecordFailure("z.example")
	b.RecordFailure("z.example")
	assert.True(t, b.Allow("z.example"), "two failures stay below the threshold after a success")
}
