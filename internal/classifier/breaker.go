package classifier

import (
	"sync"
	"time"

	"github.com/hrygo/slawatch/internal/metrics"
)

// BreakerState is the circuit breaker state.
type BreakerState string

const (
	BreakerClosed   BreakerState = "CLOSED"
	BreakerOpen     BreakerState = "OPEN"
	BreakerHalfOpen BreakerState = "HALF_OPEN"
)

const (
	defaultFailureThreshold = 5
	defaultSuccessThreshold = 2
	defaultBreakerTimeout   = 60 * time.Second
)

// Breaker is a three-state circuit breaker guarding AI calls. It is
// per-process state; concurrent processes converge independently.
type Breaker struct {
	mu               sync.Mutex
	failureThreshold int
	successThreshold int
	timeout          time.Duration
	now              func() time.Time
	exporter         *metrics.Exporter

	state       BreakerState
	failures    int
	successes   int
	lastFailure time.Time
}

// NewBreaker creates a closed breaker with the default thresholds.
func NewBreaker(exporter *metrics.Exporter) *Breaker {
	return &Breaker{
		failureThreshold: defaultFailureThreshold,
		successThreshold: defaultSuccessThreshold,
		timeout:          defaultBreakerTimeout,
		now:              time.Now,
		exporter:         exporter,
		state:            BreakerClosed,
	}
}

// CanRequest reports whether a request may go out. An open breaker admits the
// first caller after the timeout window and moves to half-open; half-open
// admits until a failure reopens it or enough successes close it.
func (b *Breaker) CanRequest() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerOpen:
		if b.now().Sub(b.lastFailure) >= b.timeout {
			b.transition(BreakerHalfOpen)
			return true
		}
		return false
	default:
		return true
	}
}

// RecordSuccess registers a successful call.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerClosed:
		b.failures = 0
	case BreakerHalfOpen:
		b.successes++
		if b.successes >= b.successThreshold {
			b.transition(BreakerClosed)
		}
	}
}

// RecordFailure registers a failed call.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lastFailure = b.now()
	switch b.state {
	case BreakerClosed:
		b.failures++
		if b.failures >= b.failureThreshold {
			b.transition(BreakerOpen)
		}
	case BreakerHalfOpen:
		b.transition(BreakerOpen)
	}
}

// State returns the current state.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Reset forces the breaker back to closed with cleared counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.transition(BreakerClosed)
}

// transition must be called with the mutex held.
func (b *Breaker) transition(to BreakerState) {
	b.state = to
	b.failures = 0
	b.successes = 0

	b.exporter.RecordBreakerTransition(string(to))
	switch to {
	case BreakerClosed:
		b.exporter.SetBreakerState(0)
	case BreakerOpen:
		b.exporter.SetBreakerState(1)
	case BreakerHalfOpen:
		b.exporter.SetBreakerState(2)
	}
}
