package delivery

import (
	"sync"
	"time"
)

// Breaker isolates consistently failing destination domains. After a run of
// consecutive transient failures reaches the threshold, the domain opens for
// a cool-off window during which jobs fail fast without a network call.
type Breaker struct {
	mu        sync.Mutex
	threshold int
	coolOff   time.Duration
	domains   map[string]*domainState

	now func() time.Time // test hook
}

type domainState struct {
	consecutive int
	openedUntil time.Time
}

func NewBreaker(threshold int, coolOff time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = 5
	}
	if coolOff <= 0 {
		coolOff = time.Minute
	}
	return &Breaker{
		threshold: threshold,
		coolOff:   coolOff,
		domains:   make(map[string]*domainState),
		now:       time.Now,
	}
}

// Allow reports whether a delivery to domain may proceed.
func (b *Breaker) Allow(domain string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	st, ok := b.domains[domain]
	if !ok {
		return true
	}
	if st.openedUntil.IsZero() {
		return true
	}
	if b.now().Before(st.openedUntil) {
		return false
	}
	// cool-off elapsed: half-open, allow a single probe. The counter stays
	// one below the threshold so a failed probe re-opens immediately.
	st.openedUntil = time.Time{}
	st.consecutive = b.threshold - 1
	return true
}

// RecordSuccess resets the failure run for domain.
func (b *Breaker) RecordSuccess(domain string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.domains, domain)
}

// RecordFailure counts a transient failure; opens the breaker at threshold.
func (b *Breaker) RecordFailure(domain string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	st, ok := b.domains[domain]
	if !ok {
		st = &domainState{}
		b.domains[domain] = st
	}
	st.consecutive++
	if st.consecutive >= b.threshold {
		st.openedUntil = b.now().Add(b.coolOff)
	}
}

// CoolOff returns the configured cool-off window.
func (b *Breaker) CoolOff() time.Duration { return b.coolOff }
