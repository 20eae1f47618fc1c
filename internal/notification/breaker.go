package notification

import (
	"sync"
	"time"

	"checkout-service/internal/util"
)

// Breaker states
const (
	StateClosed = "closed"
	StateOpen   = "open"
)

// CircuitBreaker counts consecutive primary transport failures. It opens when
// the count reaches the threshold and closes again once cooldown has passed
// since the last failure. One instance is shared by every worker.
type CircuitBreaker struct {
	mu          sync.Mutex
	threshold   int
	cooldown    time.Duration
	failures    int
	lastFailure time.Time
	now         func() time.Time
}

func NewCircuitBreaker(threshold int, cooldown time.Duration) *CircuitBreaker {
	if threshold <= 0 {
		threshold = 10
	}
	if cooldown <= 0 {
		cooldown = 5 * time.Minute
	}
	return &CircuitBreaker{threshold: threshold, cooldown: cooldown, now: time.Now}
}

// Allow returns ErrCircuitOpen while the breaker is open. After the cooldown
// it resets the counter and lets the call through.
func (b *CircuitBreaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.failures < b.threshold {
		return nil
	}
	if b.now().Sub(b.lastFailure) < b.cooldown {
		return ErrCircuitOpen
	}

	b.failures = 0
	util.NotificationCircuitOpen.Set(0)
	return nil
}

func (b *CircuitBreaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	b.lastFailure = b.now()
	if b.failures >= b.threshold {
		util.NotificationCircuitOpen.Set(1)
	}
}

func (b *CircuitBreaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = 0
	util.NotificationCircuitOpen.Set(0)
}

// State reports the breaker state without changing it
func (b *CircuitBreaker) State() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.failures >= b.threshold && b.now().Sub(b.lastFailure) < b.cooldown {
		return StateOpen
	}
	return StateClosed
}

// Failures returns the current consecutive failure count
func (b *CircuitBreaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}
